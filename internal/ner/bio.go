package ner

import "strings"

// DecodeBIO groups per-position BIO tags into entities. Positions with
// negative offsets (special tokens, padding) end any open entity. An I- tag
// that does not continue an entity of the same type starts a new one, and a
// B- tag on a subword glued to an open entity of its type extends it.
func DecodeBIO(input *TokenizedInput, labels []string, scores []float32) []Entity {
	var (
		entities []Entity
		current  *Entity
		sum      float32
		count    int
	)

	flush := func() {
		if current != nil {
			current.Score = sum / float32(count)
			entities = append(entities, *current)
			current = nil
		}
	}

	n := len(labels)
	if len(input.Offsets) < n {
		n = len(input.Offsets)
	}

	for i := 0; i < n; i++ {
		off := input.Offsets[i]
		if off[0] < 0 {
			flush()
			continue
		}

		prefix, kind := splitTag(labels[i])
		var score float32 = 1
		if i < len(scores) {
			score = scores[i]
		}

		switch {
		case kind == "":
			flush()
		case current != nil && current.Label == kind && (prefix == "I" || off[0] == current.End):
			current.End = off[1]
			sum += score
			count++
		default:
			flush()
			current = &Entity{Start: off[0], End: off[1], Label: kind}
			sum, count = score, 1
		}
	}
	flush()
	return entities
}

// splitTag turns "B-PER" into ("B", "PER"). "O" yields an empty kind and a
// bare "PER" is treated as "I-PER".
func splitTag(tag string) (string, string) {
	if tag == "" || tag == "O" {
		return "", ""
	}
	if len(tag) > 2 && tag[1] == '-' {
		return strings.ToUpper(tag[:1]), tag[2:]
	}
	return "I", tag
}
