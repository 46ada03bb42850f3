package rules

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/goccy/go-json"
	"go.yaml.in/yaml/v3"
)

// LoadCustom reads custom rules from a pattern file. The file holds an array of
// {name, pattern, replacement?, priority?} objects. An object mapping rule name
// to pattern is accepted as well, as is the same content in YAML when the file
// ends in .yaml or .yml. Every pattern is compiled before returning.
func LoadCustom(path string) ([]PatternRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var entries []fileRule
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		entries, err = decodeYAML(data)
	default:
		entries, err = decodeJSON(data)
	}
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	custom := make([]PatternRule, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for i, entry := range entries {
		rule := entry.toRule()
		if rule.Name == "" {
			return nil, &ConfigError{Path: path, Err: fmt.Errorf("rule #%d has no name", i+1)}
		}
		if seen[rule.Name] {
			return nil, &ConfigError{Path: path, Rule: rule.Name, Err: errors.New("duplicate rule name")}
		}
		seen[rule.Name] = true

		if _, err := compilePattern(rule.Pattern); err != nil {
			return nil, &ConfigError{Path: path, Rule: rule.Name, Err: err}
		}
		custom = append(custom, rule)
	}

	return custom, nil
}

func decodeJSON(data []byte) ([]fileRule, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty pattern file")
	}

	if trimmed[0] == '{' {
		var legacy map[string]string
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return fromLegacy(legacy), nil
	}

	var entries []fileRule
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return entries, nil
}

func decodeYAML(data []byte) ([]fileRule, error) {
	var entries []fileRule
	if err := yaml.Unmarshal(data, &entries); err == nil {
		return entries, nil
	}

	var legacy map[string]string
	if err := yaml.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return fromLegacy(legacy), nil
}

// fromLegacy converts a name -> pattern object. Rules are ordered by name so
// that registration order does not depend on map iteration.
func fromLegacy(legacy map[string]string) []fileRule {
	names := make([]string, 0, len(legacy))
	for name := range legacy {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]fileRule, 0, len(names))
	for _, name := range names {
		entries = append(entries, fileRule{Name: name, Pattern: legacy[name]})
	}
	return entries
}

func compilePattern(pattern string) (*regexp2.Regexp, error) {
	if pattern == "" {
		return nil, errors.New("empty pattern")
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	return re, nil
}
