package redact

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/raaihank/piiredact/internal/rules"
)

// Redact applies every rule in reg to text using placeholder replacement.
func Redact(text string, reg *rules.Registry) (*Result, error) {
	return RedactWithOptions(text, reg, Options{})
}

// RedactWithEntities is Redact with recognizer spans added as candidates.
func RedactWithEntities(text string, reg *rules.Registry, entities []Entity) (*Result, error) {
	return RedactWithOptions(text, reg, Options{Entities: entities})
}

// pass is one unit of matching: a single rule, or all entities sharing a
// priority.
type pass struct {
	priority int
	rule     *rules.Rule
	entities []Entity
}

// RedactWithOptions finds PII in text and returns the redacted copy.
//
// Passes run in (priority, registration order). Each rule scans the original
// text left to right and may only claim regions no earlier pass claimed, so
// higher priority wins an overlap and, within a rule, the leftmost match
// wins. A rule that runs out of time contributes nothing and is reported in
// Result.Warnings.
func RedactWithOptions(text string, reg *rules.Registry, opts Options) (*Result, error) {
	if !utf8.ValidString(text) {
		return nil, &InputError{Reason: "text is not valid UTF-8"}
	}
	strategy, err := ParseStrategy(string(opts.Strategy))
	if err != nil {
		return nil, err
	}

	result := &Result{
		RedactedText: text,
		Matches:      []MatchSpan{},
		Counts:       map[string]int{},
	}
	if reg == nil || text == "" {
		return result, nil
	}

	idx := newRuneIndex(text)
	runes := []rune(text)
	accepted := &claims{}

	for _, p := range buildPasses(reg, opts.Entities) {
		if p.rule != nil {
			found, timedOut := scanRule(p.rule, runes, accepted, reg.MatchTimeout())
			if timedOut {
				result.Warnings = append(result.Warnings, &MatchTimeoutError{
					Rule:    p.rule.Name,
					Timeout: reg.MatchTimeout(),
				})
				continue
			}
			for _, c := range found {
				accepted.add(c)
			}
			continue
		}
		claimEntities(p, idx, accepted)
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, c := range accepted.spans {
		start, end := idx.byteOffset(c.start), idx.byteOffset(c.end)
		original := text[start:end]
		replacement := render(reg, strategy, c, original, opts.FakeSeed)

		b.WriteString(text[last:start])
		b.WriteString(replacement)
		last = end

		span := MatchSpan{
			Start:       start,
			End:         end,
			Category:    c.category,
			Replacement: replacement,
			Source:      c.source,
		}
		if opts.IncludeOriginals {
			span.OriginalText = original
		}
		result.Matches = append(result.Matches, span)
		result.Counts[c.category]++
	}
	b.WriteString(text[last:])
	result.RedactedText = b.String()

	return result, nil
}

func buildPasses(reg *rules.Registry, entities []Entity) []pass {
	compiled := reg.Compiled()
	passes := make([]pass, 0, len(compiled)+1)
	for _, rule := range compiled {
		passes = append(passes, pass{priority: rule.Priority, rule: rule})
	}

	if len(entities) > 0 {
		byPriority := map[int][]Entity{}
		var priorities []int
		for _, e := range entities {
			if _, ok := byPriority[e.Priority]; !ok {
				priorities = append(priorities, e.Priority)
			}
			byPriority[e.Priority] = append(byPriority[e.Priority], e)
		}
		sort.Ints(priorities)
		for _, p := range priorities {
			passes = append(passes, pass{priority: p, entities: byPriority[p]})
		}
	}

	// Rules keep registry order; an entity pass runs after rules of equal priority.
	sort.SliceStable(passes, func(i, j int) bool {
		return passes[i].priority < passes[j].priority
	})
	return passes
}

// scanRule collects the rule's matches over unclaimed text. Spans are
// returned uncommitted so a timeout discards them all.
func scanRule(rule *rules.Rule, runes []rune, accepted *claims, budget time.Duration) ([]claim, bool) {
	re := rule.Regexp()
	began := time.Now()

	var found []claim
	pos := 0
	for pos <= len(runes) {
		m, err := re.FindRunesMatchStartingAt(runes, pos)
		if err != nil {
			// regexp2 only fails on MatchTimeout. Its error text quotes the
			// input, so it is dropped here.
			return nil, true
		}
		if budget > 0 && time.Since(began) > budget {
			return nil, true
		}
		if m == nil {
			break
		}

		start, end := m.Index, m.Index+m.Length
		if end == start {
			pos = start + 1
			continue
		}
		if c, ok := accepted.overlapping(start, end); ok {
			if start >= c.start {
				pos = c.end
			} else {
				pos = start + 1
			}
			continue
		}

		found = append(found, claim{
			start:     start,
			end:       end,
			category:  rule.Name,
			source:    SourcePattern,
			priority:  rule.Priority,
			ruleIndex: rule.Order,
		})
		pos = end
	}
	return found, false
}

// claimEntities accepts entity spans leftmost first, longer first on equal
// start. Spans with offsets outside the text or inside a multi-byte rune are
// ignored.
func claimEntities(p pass, idx runeIndex, accepted *claims) {
	candidates := make([]claim, 0, len(p.entities))
	for _, e := range p.entities {
		if e.Category == "" {
			continue
		}
		start, ok := idx.runePos(e.Start)
		if !ok {
			continue
		}
		end, ok := idx.runePos(e.End)
		if !ok || end <= start {
			continue
		}
		candidates = append(candidates, claim{
			start:     start,
			end:       end,
			category:  e.Category,
			source:    SourceEntity,
			priority:  e.Priority,
			ruleIndex: -1,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].start != candidates[j].start {
			return candidates[i].start < candidates[j].start
		}
		return candidates[i].end > candidates[j].end
	})

	for _, c := range candidates {
		if _, overlaps := accepted.overlapping(c.start, c.end); overlaps {
			continue
		}
		accepted.add(c)
	}
}

func render(reg *rules.Registry, strategy Strategy, c claim, original string, salt uint64) string {
	switch strategy {
	case StrategyHash:
		return hashPlaceholder(c.category, original)
	case StrategyFake:
		if fake, ok := fakeValue(c.category, original, salt); ok {
			return fake
		}
	}

	if c.ruleIndex >= 0 {
		return reg.Compiled()[c.ruleIndex].Placeholder()
	}
	if rule, ok := reg.Lookup(c.category); ok {
		return rule.Placeholder()
	}
	return strings.ReplaceAll(rules.DefaultReplacement, rules.NamePlaceholder, c.category)
}
