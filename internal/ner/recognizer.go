package ner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/piiredact/internal/redact"
)

// TokenRecognizer runs a Model over WordPiece windows of the input.
type TokenRecognizer struct {
	tokenizer *Tokenizer
	model     Model
	logger    *zap.Logger
}

// NewTokenRecognizer wires a tokenizer to a model.
func NewTokenRecognizer(tokenizer *Tokenizer, model Model, logger *zap.Logger) *TokenRecognizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenRecognizer{tokenizer: tokenizer, model: model, logger: logger}
}

// NewRecognizer builds the recognizer described by cfg. Without the onnx
// build tag it returns ErrUnavailable.
func NewRecognizer(cfg Config, logger *zap.Logger) (Recognizer, error) {
	if cfg.MaxLength == 0 {
		cfg.MaxLength = 128
	}
	if len(cfg.Labels) == 0 {
		cfg.Labels = DefaultLabels
	}

	vocab, err := LoadVocab(cfg.VocabPath)
	if err != nil {
		return nil, err
	}
	tokenizer, err := NewTokenizer(vocab, cfg.MaxLength, cfg.Lowercase)
	if err != nil {
		return nil, err
	}

	model, err := NewModel(logger, cfg.ModelPath, cfg.Labels)
	if err != nil {
		return nil, err
	}
	return NewTokenRecognizer(tokenizer, model, logger), nil
}

// Recognize tokenizes text, classifies each window and decodes the tags.
func (r *TokenRecognizer) Recognize(ctx context.Context, text string) ([]Entity, error) {
	start := time.Now()
	tokens := r.tokenizer.Encode(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	var entities []Entity
	for _, window := range r.tokenizer.Windows(tokens) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		labels, scores, err := r.model.Classify(ctx, window)
		if err != nil {
			return nil, fmt.Errorf("token classification failed: %w", err)
		}
		entities = append(entities, DecodeBIO(window, labels, scores)...)
	}

	r.logger.Debug("Entity recognition completed",
		zap.Int("tokens", len(tokens)),
		zap.Int("entities", len(entities)),
		zap.Duration("duration", time.Since(start)),
	)
	return entities, nil
}

// Close releases the model.
func (r *TokenRecognizer) Close() error {
	return r.model.Close()
}

// Source adapts a Recognizer to the redaction engine: it maps entity types
// to rule categories and drops low-confidence or unmapped entities.
type Source struct {
	recognizer Recognizer
	mapping    map[string]string
	minScore   float32
	priority   int
	timeout    time.Duration
}

// NewSource creates a Source. A nil mapping selects DefaultMapping.
func NewSource(recognizer Recognizer, cfg Config) *Source {
	mapping := cfg.Mapping
	if len(mapping) == 0 {
		mapping = DefaultMapping()
	}
	return &Source{
		recognizer: recognizer,
		mapping:    mapping,
		minScore:   cfg.MinScore,
		priority:   cfg.Priority,
		timeout:    cfg.Timeout,
	}
}

// Entities implements redact.EntitySource.
func (s *Source) Entities(ctx context.Context, text string) ([]redact.Entity, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	found, err := s.recognizer.Recognize(ctx, text)
	if err != nil {
		return nil, err
	}

	out := make([]redact.Entity, 0, len(found))
	for _, e := range found {
		category, ok := s.mapping[e.Label]
		if !ok || e.Score < s.minScore {
			continue
		}
		out = append(out, redact.Entity{
			Start:    e.Start,
			End:      e.End,
			Category: category,
			Priority: s.priority,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return out, nil
}

// Close releases the underlying recognizer.
func (s *Source) Close() error {
	return s.recognizer.Close()
}
