//go:build !onnx
// +build !onnx

package ner

import (
	"go.uber.org/zap"
)

// NewModel is unavailable when the 'onnx' build tag is not set.
func NewModel(logger *zap.Logger, modelPath string, labels []string) (Model, error) {
	return nil, ErrUnavailable
}
