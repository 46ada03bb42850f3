package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	defaults := LoadDefaults()

	require.Len(t, defaults, 3)
	assert.Equal(t, "phone", defaults[0].Name)
	assert.Equal(t, "address", defaults[1].Name)
	assert.Equal(t, "name", defaults[2].Name)

	for _, rule := range defaults {
		_, err := compilePattern(rule.Pattern)
		assert.NoError(t, err, rule.Name)
		assert.Equal(t, SourceBuiltin, rule.Source)
		assert.Equal(t, "[REDACTED:"+rule.Name+"]", rule.Placeholder())
	}

	t.Run("Deterministic", func(t *testing.T) {
		assert.Equal(t, LoadDefaults(), LoadDefaults())
	})

	t.Run("CallerCopy", func(t *testing.T) {
		first := LoadDefaults()
		first[0].Pattern = "x"
		assert.NotEqual(t, "x", LoadDefaults()[0].Pattern)
	})
}

func defaultMatches(t *testing.T, pattern, text string) []string {
	t.Helper()
	re, err := compilePattern(pattern)
	require.NoError(t, err)

	var found []string
	m, err := re.FindStringMatch(text)
	for ; m != nil && err == nil; m, err = re.FindNextMatch(m) {
		found = append(found, m.String())
	}
	require.NoError(t, err)
	return found
}

func TestPhonePattern(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"call 555-0100", []string{"555-0100"}},
		{"Phone:555-0100", []string{"555-0100"}},
		{"dial +1 415.555.0199 now", []string{"+1 415.555.0199"}},
		{"call [REDACTED:phone:10450470]", nil},
		{"[REDACTED:custom:ticket:15550100] then 555-0100", []string{"555-0100"}},
		{"order 12345678901234", nil},
	}

	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, defaultMatches(t, phonePattern, tc.text))
		})
	}
}

func TestNamePattern(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"Contact Jane Doe at home", []string{"Jane Doe"}},
		{"Dear Mary Ann Smith", []string{"Mary Ann Smith"}},
		{"signed John Q. Public", []string{"John Q. Public"}},
		{"from Mary Smith-Jones", []string{"Mary Smith-Jones"}},
		{"met Jane Doe Thanks again", []string{"Jane Doe"}},
		{"see you Monday Morning", nil},
	}

	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, defaultMatches(t, namePattern, tc.text))
		})
	}

	t.Run("StopWords", func(t *testing.T) {
		for _, word := range nameStopWords {
			assert.Empty(t, defaultMatches(t, namePattern, "x "+word+" Smith y"), word)
		}
	})
}

func TestLoadCustom(t *testing.T) {
	t.Run("Array", func(t *testing.T) {
		path := writeFile(t, "patterns.json", `[
			{"name": "email", "pattern": "[a-z]+@[a-z]+\\.com"},
			{"name": "custom:employee-id", "pattern": "EMP-\\d{6}", "replacement": "<EMPLOYEE>", "priority": 5}
		]`)

		custom, err := LoadCustom(path)
		require.NoError(t, err)
		require.Len(t, custom, 2)

		assert.Equal(t, "email", custom[0].Name)
		assert.False(t, custom[0].hasPriority)
		assert.Equal(t, SourceCustom, custom[0].Source)
		assert.Equal(t, "[REDACTED:email]", custom[0].Placeholder())

		assert.Equal(t, "custom:employee-id", custom[1].Name)
		assert.True(t, custom[1].hasPriority)
		assert.Equal(t, 5, custom[1].Priority)
		assert.Equal(t, "<EMPLOYEE>", custom[1].Placeholder())
	})

	t.Run("LegacyObject", func(t *testing.T) {
		path := writeFile(t, "patterns.json", `{"ssn": "\\d{3}-\\d{2}-\\d{4}", "email": "\\S+@\\S+"}`)

		custom, err := LoadCustom(path)
		require.NoError(t, err)
		require.Len(t, custom, 2)
		assert.Equal(t, "email", custom[0].Name)
		assert.Equal(t, "ssn", custom[1].Name)
	})

	t.Run("YAML", func(t *testing.T) {
		path := writeFile(t, "patterns.yaml", "- name: ticket\n  pattern: 'TCK-\\d+'\n  priority: 3\n")

		custom, err := LoadCustom(path)
		require.NoError(t, err)
		require.Len(t, custom, 1)
		assert.Equal(t, "ticket", custom[0].Name)
		assert.Equal(t, 3, custom[0].Priority)
	})

	failures := []struct {
		name    string
		file    string
		content string
		rule    string
	}{
		{name: "InvalidJSON", file: "p.json", content: `[{"name": "a", "pattern": `},
		{name: "Empty", file: "p.json", content: "  "},
		{name: "BadPattern", file: "p.json", content: `[{"name": "broken", "pattern": "([a-z"}]`, rule: "broken"},
		{name: "EmptyPattern", file: "p.json", content: `[{"name": "blank", "pattern": ""}]`, rule: "blank"},
		{name: "Duplicate", file: "p.json", content: `[{"name": "a", "pattern": "a"}, {"name": "a", "pattern": "b"}]`, rule: "a"},
		{name: "NoName", file: "p.json", content: `[{"pattern": "a"}]`},
		{name: "WrongShape", file: "p.json", content: `"just a string"`},
	}

	for _, tc := range failures {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, tc.file, tc.content)

			_, err := LoadCustom(path)
			require.Error(t, err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %T", err)
			assert.Equal(t, path, cfgErr.Path)
			assert.Equal(t, tc.rule, cfgErr.Rule)
			assert.Contains(t, err.Error(), path)
		})
	}

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadCustom(filepath.Join(t.TempDir(), "nope.json"))

		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})
}

func TestMerge(t *testing.T) {
	defaults := LoadDefaults()

	t.Run("OverrideByName", func(t *testing.T) {
		custom := []PatternRule{{Name: "phone", Pattern: `TEL:\d+`, Source: SourceCustom}}

		merged := Merge(defaults, custom)
		require.Len(t, merged, 3)
		assert.Equal(t, "phone", merged[0].Name)
		assert.Equal(t, `TEL:\d+`, merged[0].Pattern)
		assert.Equal(t, 10, merged[0].Priority, "override inherits built-in priority")
		assert.Equal(t, SourceCustom, merged[0].Source)
	})

	t.Run("OverrideWithPriority", func(t *testing.T) {
		custom := []PatternRule{(PatternRule{Name: "phone", Pattern: `\d+`}).WithPriority(50)}

		merged := Merge(defaults, custom)
		assert.Equal(t, []string{"address", "name", "phone"}, names(merged))
	})

	t.Run("AppendsCustom", func(t *testing.T) {
		custom := []PatternRule{
			{Name: "email", Pattern: `\S+@\S+`},
			(PatternRule{Name: "ssn", Pattern: `\d{3}-\d{2}-\d{4}`}).WithPriority(1),
		}

		merged := Merge(defaults, custom)
		assert.Equal(t, []string{"ssn", "phone", "address", "name", "email"}, names(merged))
		assert.Equal(t, DefaultCustomPriority, merged[4].Priority)
	})

	t.Run("TiesKeepRegistrationOrder", func(t *testing.T) {
		custom := []PatternRule{
			(PatternRule{Name: "b", Pattern: "b"}).WithPriority(10),
			(PatternRule{Name: "a", Pattern: "a"}).WithPriority(10),
		}

		merged := Merge(defaults, custom)
		assert.Equal(t, []string{"phone", "b", "a", "address", "name"}, names(merged))
	})

	t.Run("InputsUntouched", func(t *testing.T) {
		custom := []PatternRule{{Name: "phone", Pattern: "x"}}
		before := LoadDefaults()

		Merge(defaults, custom)
		assert.Equal(t, before, defaults)
		assert.False(t, custom[0].hasPriority)
	})
}

func TestCompile(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		reg, err := Compile(LoadDefaults(), Options{})
		require.NoError(t, err)

		assert.Equal(t, 3, reg.Len())
		assert.Equal(t, DefaultMatchTimeout, reg.MatchTimeout())
		assert.Equal(t, []string{"phone", "address", "name"}, reg.Names())
		for i, rule := range reg.Compiled() {
			assert.Equal(t, i, rule.Order)
			assert.NotNil(t, rule.Regexp())
		}

		rule, ok := reg.Lookup("address")
		require.True(t, ok)
		assert.Equal(t, 20, rule.Priority)
	})

	t.Run("Fingerprint", func(t *testing.T) {
		a, err := Compile(LoadDefaults(), Options{})
		require.NoError(t, err)
		b, err := Compile(LoadDefaults(), Options{MatchTimeout: -1})
		require.NoError(t, err)
		c, err := Compile(Merge(LoadDefaults(), []PatternRule{{Name: "email", Pattern: "@"}}), Options{})
		require.NoError(t, err)

		assert.Len(t, a.Fingerprint(), 16)
		assert.Equal(t, a.Fingerprint(), b.Fingerprint())
		assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	})

	t.Run("Duplicate", func(t *testing.T) {
		_, err := Compile([]PatternRule{{Name: "a", Pattern: "a"}, {Name: "a", Pattern: "b"}}, Options{})

		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "a", cfgErr.Rule)
	})

	t.Run("RulesIsCopy", func(t *testing.T) {
		reg, err := Compile(LoadDefaults(), Options{})
		require.NoError(t, err)

		listed := reg.Rules()
		listed[0].Name = "changed"
		assert.Equal(t, "phone", reg.Rules()[0].Name)
	})
}

func TestBuild(t *testing.T) {
	t.Run("DefaultsOnly", func(t *testing.T) {
		reg, err := Build("", true, Options{})
		require.NoError(t, err)
		assert.Equal(t, 3, reg.Len())
	})

	t.Run("CustomReplacesDefaults", func(t *testing.T) {
		path := writeFile(t, "p.json", `[{"name": "email", "pattern": "\\S+@\\S+"}]`)

		reg, err := Build(path, false, Options{})
		require.NoError(t, err)
		assert.Equal(t, []string{"email"}, reg.Names())
	})

	t.Run("ConfigErrorCarriesPath", func(t *testing.T) {
		path := writeFile(t, "p.json", `not json`)

		_, err := Build(path, true, Options{})
		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, path, cfgErr.Path)
	})
}

func names(rs []PatternRule) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Name
	}
	return out
}
