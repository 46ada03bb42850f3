// Package rules assembles the set of PII pattern rules used for a redaction run.
package rules

import (
	"strings"
	"time"
)

const (
	// SourceBuiltin marks rules shipped with the binary.
	SourceBuiltin = "builtin"
	// SourceCustom marks rules loaded from a pattern file.
	SourceCustom = "custom"

	// NamePlaceholder is substituted with the rule name in replacement templates.
	NamePlaceholder = "<name>"
	// DefaultReplacement is used when a rule does not define its own template.
	DefaultReplacement = "[REDACTED:" + NamePlaceholder + "]"
	// DefaultCustomPriority is assigned to custom rules that set no priority
	// and do not override a built-in.
	DefaultCustomPriority = 100
	// DefaultMatchTimeout bounds a single rule's matching against one input.
	DefaultMatchTimeout = 250 * time.Millisecond
)

// PatternRule is a named regular expression identifying one PII category.
type PatternRule struct {
	Name        string `json:"name" yaml:"name"`
	Pattern     string `json:"pattern" yaml:"pattern"`
	Replacement string `json:"replacement,omitempty" yaml:"replacement,omitempty"`
	Priority    int    `json:"priority" yaml:"priority"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Source      string `json:"source,omitempty" yaml:"source,omitempty"`

	// hasPriority is false for custom rules whose file entry omitted priority.
	hasPriority bool
}

// Template returns the replacement template, falling back to DefaultReplacement.
func (r PatternRule) Template() string {
	if r.Replacement == "" {
		return DefaultReplacement
	}
	return r.Replacement
}

// Placeholder renders the replacement template for this rule.
func (r PatternRule) Placeholder() string {
	return strings.ReplaceAll(r.Template(), NamePlaceholder, r.Name)
}

// WithPriority returns a copy of r with an explicit priority.
func (r PatternRule) WithPriority(p int) PatternRule {
	r.Priority = p
	r.hasPriority = true
	return r
}

// fileRule is the on-disk shape of one custom rule.
type fileRule struct {
	Name        string `json:"name" yaml:"name"`
	Pattern     string `json:"pattern" yaml:"pattern"`
	Replacement string `json:"replacement" yaml:"replacement"`
	Priority    *int   `json:"priority" yaml:"priority"`
	Description string `json:"description" yaml:"description"`
}

func (f fileRule) toRule() PatternRule {
	r := PatternRule{
		Name:        strings.TrimSpace(f.Name),
		Pattern:     f.Pattern,
		Replacement: f.Replacement,
		Description: f.Description,
		Source:      SourceCustom,
	}
	if f.Priority != nil {
		r.Priority = *f.Priority
		r.hasPriority = true
	}
	return r
}
