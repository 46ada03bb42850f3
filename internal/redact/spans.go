package redact

import "sort"

// claim is an accepted span in rune indices.
type claim struct {
	start, end int
	category   string
	source     string
	priority   int
	ruleIndex  int // -1 for entities
}

// claims is the set of spans accepted so far, kept sorted by start and
// pairwise disjoint.
type claims struct {
	spans []claim
}

// overlapping returns the accepted span intersecting [start, end), if any.
func (c *claims) overlapping(start, end int) (claim, bool) {
	i := sort.Search(len(c.spans), func(i int) bool {
		return c.spans[i].end > start
	})
	if i < len(c.spans) && c.spans[i].start < end {
		return c.spans[i], true
	}
	return claim{}, false
}

// add inserts a span known not to overlap any accepted one.
func (c *claims) add(s claim) {
	i := sort.Search(len(c.spans), func(i int) bool {
		return c.spans[i].start >= s.start
	})
	c.spans = append(c.spans, claim{})
	copy(c.spans[i+1:], c.spans[i:])
	c.spans[i] = s
}

// runeIndex maps byte offsets to rune indices for one text.
type runeIndex struct {
	// bytes[i] is the byte offset of rune i; the final entry is len(text).
	bytes []int
}

func newRuneIndex(text string) runeIndex {
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))
	return runeIndex{bytes: offsets}
}

func (r runeIndex) byteOffset(runePos int) int {
	return r.bytes[runePos]
}

// runePos returns the rune index starting at byte offset b. ok is false when
// b is out of range or falls inside a multi-byte rune.
func (r runeIndex) runePos(b int) (int, bool) {
	i := sort.SearchInts(r.bytes, b)
	if i < len(r.bytes) && r.bytes[i] == b {
		return i, true
	}
	return 0, false
}
