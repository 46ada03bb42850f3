// Package ner finds person and location names that pattern rules miss, using
// a token-classification model.
package ner

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the binary was built without a model backend.
var ErrUnavailable = errors.New("entity recognition unavailable: build with -tags onnx")

// Entity is one recognized span. Offsets are byte offsets into the input.
type Entity struct {
	Start int     `json:"start"`
	End   int     `json:"end"`
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// Recognizer finds entities in text.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
	Close() error
}

// Model classifies every token of one window. It returns one label and one
// confidence per input position.
type Model interface {
	Classify(ctx context.Context, input *TokenizedInput) (labels []string, scores []float32, err error)
	Close() error
}

// Config contains recognizer configuration
type Config struct {
	Enabled   bool              `yaml:"enabled" mapstructure:"enabled"`
	ModelPath string            `yaml:"model_path" mapstructure:"model_path"` // "./models/ner.onnx"
	VocabPath string            `yaml:"vocab_path" mapstructure:"vocab_path"` // "./models/vocab.txt"
	Labels    []string          `yaml:"labels" mapstructure:"labels"`         // model output index -> BIO tag
	Mapping   map[string]string `yaml:"mapping" mapstructure:"mapping"`       // entity type -> rule category
	MaxLength int               `yaml:"max_length" mapstructure:"max_length"` // 128
	Lowercase bool              `yaml:"lowercase" mapstructure:"lowercase"`
	MinScore  float32           `yaml:"min_score" mapstructure:"min_score"`
	Priority  int               `yaml:"priority" mapstructure:"priority"`
	Timeout   time.Duration     `yaml:"timeout" mapstructure:"timeout"`
}

// DefaultLabels is the CoNLL-2003 tag set used by common BERT NER checkpoints.
var DefaultLabels = []string{"O", "B-MISC", "I-MISC", "B-PER", "I-PER", "B-ORG", "I-ORG", "B-LOC", "I-LOC"}

// DefaultMapping routes model entity types to rule categories.
func DefaultMapping() map[string]string {
	return map[string]string{
		"PER": "name",
		"LOC": "address",
	}
}
