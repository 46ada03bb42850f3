// Package redact finds PII spans in text and replaces them with placeholders.
//
// Matching always runs against the original text in a single pass. Rules are
// applied in priority order and a span claimed by one rule cannot be claimed,
// even partially, by a later one. Replacement text is never re-scanned.
package redact

import (
	"fmt"
	"strings"
)

// Strategy selects how a matched span is rewritten.
type Strategy string

const (
	// StrategyPlaceholder writes the rule's replacement template.
	StrategyPlaceholder Strategy = "placeholder"
	// StrategyHash writes [REDACTED:<category>:<hash8>], stable per value.
	StrategyHash Strategy = "hash"
	// StrategyFake writes a synthetic value of the same kind.
	StrategyFake Strategy = "fake"
)

// ParseStrategy validates a strategy name. The empty string selects the placeholder strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyPlaceholder:
		return StrategyPlaceholder, nil
	case StrategyHash:
		return StrategyHash, nil
	case StrategyFake:
		return StrategyFake, nil
	default:
		return "", fmt.Errorf("unknown strategy %q (must be placeholder, hash or fake)", s)
	}
}

const (
	// SourcePattern marks spans found by a pattern rule.
	SourcePattern = "pattern"
	// SourceEntity marks spans supplied by an entity recognizer.
	SourceEntity = "ner"
)

// MatchSpan is one applied redaction. Offsets are byte offsets into the
// original text, end exclusive.
type MatchSpan struct {
	Start        int    `json:"start"`
	End          int    `json:"end"`
	Category     string `json:"category"`
	Replacement  string `json:"replacement"`
	Source       string `json:"source"`
	OriginalText string `json:"original_text,omitempty"`
	Line         int    `json:"line,omitempty"`
	Column       int    `json:"column,omitempty"`
}

// Result is the outcome of one redaction pass.
type Result struct {
	RedactedText string         `json:"redacted_text"`
	Matches      []MatchSpan    `json:"matches"`
	Counts       map[string]int `json:"counts"`
	// Warnings lists rules skipped for this input because they ran out of time.
	Warnings []*MatchTimeoutError `json:"-"`
	// Fingerprint identifies the rule set that produced the result. It is
	// set by Redactor.
	Fingerprint string `json:"-"`
}

// Total returns the number of applied spans.
func (r *Result) Total() int {
	return len(r.Matches)
}

// WarningMessages renders Warnings for serialization.
func (r *Result) WarningMessages() []string {
	if len(r.Warnings) == 0 {
		return nil
	}
	out := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		out[i] = w.Error()
	}
	return out
}

// Entity is a candidate span produced outside the rule set, such as by a
// named-entity recognizer. Offsets are byte offsets into the text.
type Entity struct {
	Start    int
	End      int
	Category string
	Priority int
}

// Options tunes a single redaction pass.
type Options struct {
	Strategy Strategy
	// IncludeOriginals copies matched text into MatchSpan.OriginalText.
	IncludeOriginals bool
	// FakeSeed salts the fake-value generator.
	FakeSeed uint64
	// Entities are merged with rule matches under the same overlap policy.
	Entities []Entity
}
