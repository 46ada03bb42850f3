//go:build onnx
// +build onnx

package ner

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// OnnxModel implements Model using ONNX Runtime (via yalue/onnxruntime_go).
type OnnxModel struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	labels     []string
	logger     *zap.Logger
	mu         sync.Mutex
}

// NewModel initializes an ONNX Runtime token-classification session.
func NewModel(logger *zap.Logger, modelPath string, labels []string) (Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("onnx runtime init failed: %w", err)
		}
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect model %s: %w", modelPath, err)
	}
	if len(outputsInfo) == 0 {
		return nil, fmt.Errorf("model %s reports no outputs", modelPath)
	}

	// Keep the model's declared order, restricted to inputs we can feed.
	var inputNames []string
	for _, ii := range inputsInfo {
		switch inputKind(ii.Name) {
		case "ids", "mask", "type":
			inputNames = append(inputNames, ii.Name)
		}
	}
	if len(inputNames) == 0 {
		return nil, fmt.Errorf("model %s has no recognizable inputs", modelPath)
	}
	outputName := outputsInfo[0].Name

	sess, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("onnx session creation failed: %w", err)
	}

	logger.Info("ONNX NER model ready",
		zap.String("model", modelPath),
		zap.Strings("inputs", inputNames),
		zap.String("output", outputName),
		zap.Int("labels", len(labels)),
	)
	return &OnnxModel{session: sess, inputNames: inputNames, outputName: outputName, labels: labels, logger: logger}, nil
}

func inputKind(name string) string {
	name = strings.ToLower(name)
	switch {
	case strings.Contains(name, "token_type") || strings.Contains(name, "segment"):
		return "type"
	case strings.Contains(name, "attention") || strings.Contains(name, "mask"):
		return "mask"
	case strings.Contains(name, "ids") || name == "input":
		return "ids"
	default:
		return ""
	}
}

// Classify runs one window and returns the argmax label and its softmax
// probability for every position.
func (m *OnnxModel) Classify(ctx context.Context, input *TokenizedInput) ([]string, []float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil, fmt.Errorf("onnx model closed")
	}

	seqLen := len(input.InputIDs)
	shape := ort.NewShape(1, int64(seqLen))

	widen := func(src []int32) []int64 {
		out := make([]int64, len(src))
		for i, v := range src {
			out[i] = int64(v)
		}
		return out
	}

	tensors := map[string]*ort.Tensor[int64]{}
	for kind, data := range map[string][]int32{
		"ids":  input.InputIDs,
		"mask": input.AttentionMask,
		"type": input.TokenTypeIDs,
	} {
		t, err := ort.NewTensor(shape, widen(data))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create %s tensor: %w", kind, err)
		}
		defer t.Destroy()
		tensors[kind] = t
	}

	inputs := make([]ort.Value, 0, len(m.inputNames))
	for _, name := range m.inputNames {
		inputs = append(inputs, tensors[inputKind(name)])
	}

	outputs := make([]ort.Value, 1)
	if err := m.session.Run(inputs, outputs); err != nil {
		return nil, nil, fmt.Errorf("onnx run failed: %w", err)
	}
	if outputs[0] == nil {
		return nil, nil, fmt.Errorf("onnx returned no outputs")
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("unexpected output type (want float32 tensor)")
	}
	outShape := logits.GetShape()
	if len(outShape) != 3 || int(outShape[1]) != seqLen {
		return nil, nil, fmt.Errorf("unsupported output shape %v", outShape)
	}
	numLabels := int(outShape[2])
	if numLabels != len(m.labels) {
		return nil, nil, fmt.Errorf("model emits %d labels, %d configured", numLabels, len(m.labels))
	}

	data := logits.GetData()
	labels := make([]string, seqLen)
	scores := make([]float32, seqLen)
	for pos := 0; pos < seqLen; pos++ {
		row := data[pos*numLabels : (pos+1)*numLabels]
		best := 0
		for k := range row {
			if row[k] > row[best] {
				best = k
			}
		}
		var denom float64
		for _, v := range row {
			denom += math.Exp(float64(v - row[best]))
		}
		labels[pos] = m.labels[best]
		scores[pos] = float32(1 / denom)
	}
	return labels, scores, nil
}

// Close releases session and environment resources.
func (m *OnnxModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
	ort.DestroyEnvironment()
	return nil
}
