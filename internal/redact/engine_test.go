package redact

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/piiredact/internal/rules"
)

func defaultRegistry(t *testing.T) *rules.Registry {
	t.Helper()
	reg, err := rules.Compile(rules.LoadDefaults(), rules.Options{})
	require.NoError(t, err)
	return reg
}

func compileRules(t *testing.T, opts rules.Options, rs ...rules.PatternRule) *rules.Registry {
	t.Helper()
	reg, err := rules.Compile(rs, opts)
	require.NoError(t, err)
	return reg
}

func rule(name, pattern string, priority int) rules.PatternRule {
	return (rules.PatternRule{Name: name, Pattern: pattern}).WithPriority(priority)
}

func TestRedactEndToEnd(t *testing.T) {
	reg := defaultRegistry(t)
	text := "Contact Jane Doe at jane@example.com or 555-0100."

	result, err := Redact(text, reg)
	require.NoError(t, err)

	assert.Equal(t, "Contact [REDACTED:name] at jane@example.com or [REDACTED:phone].", result.RedactedText)
	assert.Equal(t, map[string]int{"name": 1, "phone": 1}, result.Counts)
	require.Len(t, result.Matches, 2)

	assert.Equal(t, "name", result.Matches[0].Category)
	assert.Equal(t, "Jane Doe", text[result.Matches[0].Start:result.Matches[0].End])
	assert.Equal(t, "phone", result.Matches[1].Category)
	assert.Equal(t, "555-0100", text[result.Matches[1].Start:result.Matches[1].End])
	assert.Empty(t, result.Matches[0].OriginalText)
}

func TestRedactIdentity(t *testing.T) {
	reg := compileRules(t, rules.Options{}, rule("ssn", `\d{3}-\d{2}-\d{4}`, 1))

	for _, text := range []string{"", "nothing to see here", "héllo wörld ✓"} {
		result, err := Redact(text, reg)
		require.NoError(t, err)
		assert.Equal(t, text, result.RedactedText)
		assert.NotNil(t, result.Matches)
		assert.Empty(t, result.Matches)
		assert.Empty(t, result.Counts)
	}
}

func TestRedactSingleBuiltin(t *testing.T) {
	reg := defaultRegistry(t)

	cases := []struct {
		name     string
		text     string
		category string
		match    string
	}{
		{name: "Phone", text: "call (415) 555-0199 today", category: "phone", match: "(415) 555-0199"},
		{name: "PhoneInternational", text: "dial +1 415.555.0199", category: "phone", match: "+1 415.555.0199"},
		{name: "Address", text: "ship it to 1600 Pennsylvania Avenue please", category: "address", match: "1600 Pennsylvania Avenue"},
		{name: "Name", text: "signed by Ada Lovelace yesterday", category: "name", match: "Ada Lovelace"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := Redact(tc.text, reg)
			require.NoError(t, err)
			require.Len(t, result.Matches, 1)

			span := result.Matches[0]
			assert.Equal(t, tc.category, span.Category)
			assert.Equal(t, strings.Index(tc.text, tc.match), span.Start)
			assert.Equal(t, strings.Index(tc.text, tc.match)+len(tc.match), span.End)
			assert.Equal(t, SourcePattern, span.Source)
		})
	}
}

func TestRedactOverlap(t *testing.T) {
	t.Run("HigherPriorityWins", func(t *testing.T) {
		reg := compileRules(t, rules.Options{},
			rule("generic-digits", `\d{3}-\d{4}`, 2),
			rule("phone", `\d{3}-\d{3}-\d{4}`, 1),
		)

		result, err := Redact("Call 555-123-4567 now", reg)
		require.NoError(t, err)
		assert.Equal(t, "Call [REDACTED:phone] now", result.RedactedText)
		require.Len(t, result.Matches, 1)
		assert.Equal(t, "phone", result.Matches[0].Category)
	})

	t.Run("LowerPriorityKeepsUnclaimedMatches", func(t *testing.T) {
		reg := compileRules(t, rules.Options{},
			rule("phone", `\d{3}-\d{3}-\d{4}`, 1),
			rule("generic-digits", `\d{3}-\d{4}`, 2),
		)

		result, err := Redact("555-123-4567 and 999-0000", reg)
		require.NoError(t, err)
		assert.Equal(t, "[REDACTED:phone] and [REDACTED:generic-digits]", result.RedactedText)
	})

	t.Run("CandidateStartingBeforeClaim", func(t *testing.T) {
		reg := compileRules(t, rules.Options{},
			rule("code", `XY`, 1),
			rule("word", `[A-Z]{3}`, 2),
		)

		// "AXY" overlaps the claimed "XY"; "BCD" after it is still found.
		result, err := Redact("AXYBCD", reg)
		require.NoError(t, err)
		assert.Equal(t, "A[REDACTED:code][REDACTED:word]", result.RedactedText)
	})

	t.Run("TiesByRegistrationOrder", func(t *testing.T) {
		reg := compileRules(t, rules.Options{},
			rule("first", `abc`, 5),
			rule("second", `bcd`, 5),
		)

		result, err := Redact("abcd", reg)
		require.NoError(t, err)
		assert.Equal(t, "[REDACTED:first]d", result.RedactedText)
	})

	t.Run("ReplacementNotRescanned", func(t *testing.T) {
		reg := compileRules(t, rules.Options{},
			(rules.PatternRule{Name: "secret", Pattern: `s3cr3t`, Replacement: "TOKEN"}).WithPriority(1),
			rule("token", `TOKEN`, 2),
		)

		result, err := Redact("s3cr3t", reg)
		require.NoError(t, err)
		assert.Equal(t, "TOKEN", result.RedactedText)
		require.Len(t, result.Matches, 1)
		assert.Equal(t, "secret", result.Matches[0].Category)
	})
}

func TestRedactIdempotent(t *testing.T) {
	reg := defaultRegistry(t)
	text := "Dear Grace Hopper,\nyour parcel for 42 Elm Street ships today. Call +1 (212) 555-0147.\nBob Smith"

	first, err := Redact(text, reg)
	require.NoError(t, err)
	require.NotEmpty(t, first.Matches)

	second, err := Redact(first.RedactedText, reg)
	require.NoError(t, err)
	assert.Empty(t, second.Matches)
	assert.Equal(t, first.RedactedText, second.RedactedText)
}

func TestRedactCustomOverride(t *testing.T) {
	custom := []rules.PatternRule{{Name: "phone", Pattern: `TEL#\d{4}`, Replacement: "<PHONE>", Source: rules.SourceCustom}}
	reg := compileRules(t, rules.Options{}, rules.Merge(rules.LoadDefaults(), custom)...)

	result, err := Redact("reach me at TEL#1234", reg)
	require.NoError(t, err)
	assert.Equal(t, "reach me at <PHONE>", result.RedactedText)
	assert.Equal(t, 1, result.Counts["phone"])

	result, err = Redact("reach me at 555-0100", reg)
	require.NoError(t, err)
	assert.Empty(t, result.Matches, "built-in phone pattern was replaced")
}

func TestRedactInputError(t *testing.T) {
	_, err := Redact("bad \xff bytes", defaultRegistry(t))

	var inputErr *InputError
	require.True(t, errors.As(err, &inputErr))
}

func TestRedactZeroLengthMatches(t *testing.T) {
	reg := compileRules(t, rules.Options{}, rule("maybe", `x*`, 1))

	result, err := Redact("abxxc", reg)
	require.NoError(t, err)
	assert.Equal(t, "ab[REDACTED:maybe]c", result.RedactedText)
	require.Len(t, result.Matches, 1)
}

func TestRedactMultibyteOffsets(t *testing.T) {
	reg := compileRules(t, rules.Options{}, rule("id", `ID-\d+`, 1))
	text := "café ✓ ID-42 fin"

	result, err := Redact(text, reg)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)

	span := result.Matches[0]
	assert.Equal(t, "ID-42", text[span.Start:span.End])
	assert.Equal(t, "café ✓ [REDACTED:id] fin", result.RedactedText)
}

func TestRedactMatchTimeout(t *testing.T) {
	reg := compileRules(t, rules.Options{MatchTimeout: 20 * time.Millisecond},
		rule("phone", `\d{3}-\d{4}`, 1),
		rule("evil", `(a+)+b`, 2),
	)
	text := "555-0100 " + strings.Repeat("a", 40) + "!"

	result, err := Redact(text, reg)
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "evil", result.Warnings[0].Rule)
	assert.Equal(t, 20*time.Millisecond, result.Warnings[0].Timeout)
	assert.NotContains(t, result.Warnings[0].Error(), "aaaa")

	assert.Equal(t, map[string]int{"phone": 1}, result.Counts)
	assert.True(t, strings.HasPrefix(result.RedactedText, "[REDACTED:phone] "))
}

func TestRedactWithOptions(t *testing.T) {
	reg := defaultRegistry(t)
	text := "Contact Jane Doe or 555-0100."

	t.Run("IncludeOriginals", func(t *testing.T) {
		result, err := RedactWithOptions(text, reg, Options{IncludeOriginals: true})
		require.NoError(t, err)
		require.Len(t, result.Matches, 2)
		assert.Equal(t, "Jane Doe", result.Matches[0].OriginalText)
		assert.Equal(t, "555-0100", result.Matches[1].OriginalText)
	})

	t.Run("HashStrategy", func(t *testing.T) {
		result, err := RedactWithOptions(text, reg, Options{Strategy: StrategyHash})
		require.NoError(t, err)
		assert.Regexp(t, `^Contact \[REDACTED:name:[0-9a-f]{8}\] or \[REDACTED:phone:[0-9a-f]{8}\]\.$`, result.RedactedText)

		again, err := RedactWithOptions(text, reg, Options{Strategy: StrategyHash})
		require.NoError(t, err)
		assert.Equal(t, result.RedactedText, again.RedactedText)
	})

	t.Run("HashOutputIsStable", func(t *testing.T) {
		for i := 0; i < 2000; i++ {
			input := fmt.Sprintf("call 555-%03d-%04d", i%1000, i)
			first, err := RedactWithOptions(input, reg, Options{Strategy: StrategyHash})
			require.NoError(t, err)
			require.Len(t, first.Matches, 1, input)

			second, err := RedactWithOptions(first.RedactedText, reg, Options{Strategy: StrategyHash})
			require.NoError(t, err)
			require.Empty(t, second.Matches, "%s -> %s", input, first.RedactedText)
		}
	})

	t.Run("FakeStrategy", func(t *testing.T) {
		result, err := RedactWithOptions(text, reg, Options{Strategy: StrategyFake, FakeSeed: 7})
		require.NoError(t, err)
		assert.NotContains(t, result.RedactedText, "Jane Doe")
		assert.NotContains(t, result.RedactedText, "555-0100")
		assert.NotContains(t, result.RedactedText, "[REDACTED")

		again, err := RedactWithOptions(text, reg, Options{Strategy: StrategyFake, FakeSeed: 7})
		require.NoError(t, err)
		assert.Equal(t, result.RedactedText, again.RedactedText)
	})

	t.Run("FakeFallsBackToPlaceholder", func(t *testing.T) {
		custom := compileRules(t, rules.Options{}, rule("ticket", `TCK-\d+`, 1))
		result, err := RedactWithOptions("see TCK-9", custom, Options{Strategy: StrategyFake})
		require.NoError(t, err)
		assert.Equal(t, "see [REDACTED:ticket]", result.RedactedText)
	})

	t.Run("UnknownStrategy", func(t *testing.T) {
		_, err := RedactWithOptions(text, reg, Options{Strategy: "shred"})
		assert.Error(t, err)
	})
}

func TestRedactWithEntities(t *testing.T) {
	reg := defaultRegistry(t)
	text := "ping madonna at 555-0100"
	start := strings.Index(text, "madonna")

	t.Run("FillsGaps", func(t *testing.T) {
		result, err := RedactWithEntities(text, reg, []Entity{{Start: start, End: start + len("madonna"), Category: "name", Priority: 30}})
		require.NoError(t, err)
		assert.Equal(t, "ping [REDACTED:name] at [REDACTED:phone]", result.RedactedText)
		assert.Equal(t, SourceEntity, result.Matches[0].Source)
	})

	t.Run("YieldsToHigherPriority", func(t *testing.T) {
		phone := strings.Index(text, "555")
		result, err := RedactWithEntities(text, reg, []Entity{{Start: phone - 3, End: len(text), Category: "address", Priority: 50}})
		require.NoError(t, err)
		assert.Equal(t, "ping madonna at [REDACTED:phone]", result.RedactedText)
	})

	t.Run("InvalidOffsetsIgnored", func(t *testing.T) {
		result, err := RedactWithEntities(text, reg, []Entity{
			{Start: -1, End: 3, Category: "name"},
			{Start: 5, End: 500, Category: "name"},
			{Start: 8, End: 8, Category: "name"},
		})
		require.NoError(t, err)
		assert.Equal(t, "ping madonna at [REDACTED:phone]", result.RedactedText)
	})
}

func TestAddLineInfo(t *testing.T) {
	text := "first line\nsecond é line 555-0100\nthird"
	reg := defaultRegistry(t)

	result, err := Redact(text, reg)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)

	AddLineInfo(text, result.Matches)
	assert.Equal(t, 2, result.Matches[0].Line)
	assert.Equal(t, 15, result.Matches[0].Column)
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{
		"":            StrategyPlaceholder,
		"placeholder": StrategyPlaceholder,
		" HASH ":      StrategyHash,
		"fake":        StrategyFake,
	} {
		got, err := ParseStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseStrategy("nope")
	assert.Error(t, err)
}
