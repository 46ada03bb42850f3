package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dlclark/regexp2"
)

// Merge combines built-in and custom rules. A custom rule whose name matches a
// built-in replaces it in place and inherits its priority when none was given.
// The result is sorted by priority, ties kept in registration order. Neither
// input is modified.
func Merge(defaults, custom []PatternRule) []PatternRule {
	merged := make([]PatternRule, 0, len(defaults)+len(custom))
	index := make(map[string]int, len(defaults)+len(custom))

	for _, rule := range defaults {
		if i, ok := index[rule.Name]; ok {
			merged[i] = rule
			continue
		}
		index[rule.Name] = len(merged)
		merged = append(merged, rule)
	}

	for _, rule := range custom {
		if i, ok := index[rule.Name]; ok {
			if !rule.hasPriority {
				rule = rule.WithPriority(merged[i].Priority)
			}
			merged[i] = rule
			continue
		}
		if !rule.hasPriority {
			rule = rule.WithPriority(DefaultCustomPriority)
		}
		index[rule.Name] = len(merged)
		merged = append(merged, rule)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Priority < merged[j].Priority
	})
	return merged
}

// Options controls how a rule set is compiled.
type Options struct {
	// MatchTimeout bounds one rule's matching against one input. Zero means
	// DefaultMatchTimeout, a negative value disables the bound.
	MatchTimeout time.Duration
}

// Rule is a compiled PatternRule.
type Rule struct {
	PatternRule
	// Order is the registration position after merging.
	Order int

	re *regexp2.Regexp
}

// Regexp returns the compiled expression.
func (r *Rule) Regexp() *regexp2.Regexp {
	return r.re
}

// Registry is an immutable, compiled rule set. It is safe for concurrent use.
type Registry struct {
	rules        []*Rule
	matchTimeout time.Duration
	fingerprint  string
}

// Compile validates and compiles rules into a Registry. Rules are evaluated in
// priority order, ties broken by their position in the input.
func Compile(patternRules []PatternRule, opts Options) (*Registry, error) {
	timeout := opts.MatchTimeout
	if timeout == 0 {
		timeout = DefaultMatchTimeout
	}

	ordered := make([]PatternRule, len(patternRules))
	copy(ordered, patternRules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	reg := &Registry{
		rules:        make([]*Rule, 0, len(ordered)),
		matchTimeout: timeout,
	}
	seen := make(map[string]bool, len(ordered))
	hasher := sha256.New()

	for i, pr := range ordered {
		if pr.Name == "" {
			return nil, &ConfigError{Err: fmt.Errorf("rule #%d has no name", i+1)}
		}
		if seen[pr.Name] {
			return nil, &ConfigError{Rule: pr.Name, Err: errors.New("duplicate rule name")}
		}
		seen[pr.Name] = true

		re, err := compilePattern(pr.Pattern)
		if err != nil {
			return nil, &ConfigError{Rule: pr.Name, Err: err}
		}
		if timeout > 0 {
			re.MatchTimeout = timeout
		}

		reg.rules = append(reg.rules, &Rule{PatternRule: pr, Order: i, re: re})
		fmt.Fprintf(hasher, "%s\x00%s\x00%s\x00%d\n", pr.Name, pr.Pattern, pr.Template(), pr.Priority)
	}

	reg.fingerprint = hex.EncodeToString(hasher.Sum(nil))[:16]
	return reg, nil
}

// Build loads the effective rule set: built-ins (unless useDefaults is false),
// merged with the rules from patternsPath when it is set.
func Build(patternsPath string, useDefaults bool, opts Options) (*Registry, error) {
	var defaults []PatternRule
	if useDefaults {
		defaults = LoadDefaults()
	}

	var custom []PatternRule
	if patternsPath != "" {
		loaded, err := LoadCustom(patternsPath)
		if err != nil {
			return nil, err
		}
		custom = loaded
	}

	reg, err := Compile(Merge(defaults, custom), opts)
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) && cfgErr.Path == "" {
			cfgErr.Path = patternsPath
		}
		return nil, err
	}
	return reg, nil
}

// Compiled returns the rules in evaluation order. Callers must not modify them.
func (r *Registry) Compiled() []*Rule {
	return r.rules
}

// Rules returns a copy of the rule definitions in evaluation order.
func (r *Registry) Rules() []PatternRule {
	out := make([]PatternRule, len(r.rules))
	for i, rule := range r.rules {
		out[i] = rule.PatternRule
	}
	return out
}

// Lookup returns the rule with the given name.
func (r *Registry) Lookup(name string) (PatternRule, bool) {
	for _, rule := range r.rules {
		if rule.Name == name {
			return rule.PatternRule, true
		}
	}
	return PatternRule{}, false
}

// Names returns rule names in evaluation order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.rules))
	for i, rule := range r.rules {
		names[i] = rule.Name
	}
	return names
}

// Len returns the number of rules.
func (r *Registry) Len() int {
	return len(r.rules)
}

// MatchTimeout returns the per-rule matching budget; zero or less means unbounded.
func (r *Registry) MatchTimeout() time.Duration {
	return r.matchTimeout
}

// Fingerprint identifies the rule set's content. Two registries built from the
// same rules share a fingerprint.
func (r *Registry) Fingerprint() string {
	return r.fingerprint
}
