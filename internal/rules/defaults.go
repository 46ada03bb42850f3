package rules

import "strings"

const (
	// phonePattern covers North American numbers with or without an area code:
	// 555-0100, 555-123-4567, (555) 123-4567, +1 555.123.4567, 5551234567.
	// Digits inside an already rendered placeholder such as
	// [REDACTED:phone:10450470] are skipped.
	phonePattern = `(?<![\w+])(?<!\[REDACTED:[^\[\]]*)(?:\+?1[-.\s]?)?(?:\(\d{3}\)[-.\s]?|\d{3}[-.\s]?)?\d{3}[-.\s]?\d{4}(?!\w)`

	// addressPattern matches a house number followed by one to three
	// capitalized words and a street suffix.
	addressPattern = `\b\d{1,6}\s+(?:[A-Z][A-Za-z]*\.?\s+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Place|Pl|Way|Terrace|Parkway|Pkwy)\b`
)

// nameStopWords are capitalized words that commonly start a sentence or
// precede a name and are never taken as a first name. The list is a tunable
// heuristic. Place and organization names such as "New York Times" still
// match; use a NER source when those matter.
var nameStopWords = []string{
	"Contact", "Call", "Email", "Text", "Dear", "Hello", "Hi", "Hey", "Meet", "Ask", "Tell",
	"Thanks", "Thank", "Please", "From", "To", "Attn", "Regards", "Sincerely",
	"My", "The", "This", "That", "These", "Those", "And", "But", "Or", "If",
	"When", "Where", "What", "Who", "Mr", "Mrs", "Ms", "Dr", "Prof",
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// namePattern is a heuristic: two or three capitalized words, optionally with
// a middle initial or a hyphenated surname. Neither the first nor the third
// word may be a stop word.
var namePattern = buildNamePattern(nameStopWords)

func buildNamePattern(stop []string) string {
	notStop := `(?!(?:` + strings.Join(stop, "|") + `)\b)`
	return `\b` + notStop + `[A-Z][a-z]+(?:[ \t]+[A-Z]\.)?[ \t]+[A-Z][a-z]+(?:[ \t]+` + notStop + `[A-Z][a-z]+)?(?:-[A-Z][a-z]+)?\b`
}

// LoadDefaults returns the built-in rule set. The result is identical on every
// call and safe to modify.
func LoadDefaults() []PatternRule {
	return []PatternRule{
		{
			Name:        "phone",
			Pattern:     phonePattern,
			Replacement: DefaultReplacement,
			Priority:    10,
			Description: "North American phone number",
			Source:      SourceBuiltin,
			hasPriority: true,
		},
		{
			Name:        "address",
			Pattern:     addressPattern,
			Replacement: DefaultReplacement,
			Priority:    20,
			Description: "Street address with house number",
			Source:      SourceBuiltin,
			hasPriority: true,
		},
		{
			Name:        "name",
			Pattern:     namePattern,
			Replacement: DefaultReplacement,
			Priority:    30,
			Description: "Person name (heuristic)",
			Source:      SourceBuiltin,
			hasPriority: true,
		},
	}
}
