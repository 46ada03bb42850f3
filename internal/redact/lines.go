package redact

import (
	"sort"
	"unicode/utf8"
)

// AddLineInfo fills Line and Column (both 1-indexed, column counted in runes)
// for each match.
func AddLineInfo(text string, matches []MatchSpan) {
	if len(matches) == 0 {
		return
	}

	lineStarts := []int{0}
	for i, c := range text {
		if c == '\n' {
			lineStarts = append(lineStarts, i+1)
		}
	}

	for i := range matches {
		pos := matches[i].Start
		line := sort.Search(len(lineStarts), func(j int) bool {
			return lineStarts[j] > pos
		}) - 1
		if line < 0 {
			line = 0
		}
		matches[i].Line = line + 1
		if pos > len(text) {
			pos = len(text)
		}
		matches[i].Column = utf8.RuneCountInString(text[lineStarts[line]:pos]) + 1
	}
}
