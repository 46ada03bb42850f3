package ner

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	tokenPad = "[PAD]"
	tokenUnk = "[UNK]"
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"

	maxWordChars = 100
)

// Token is one WordPiece with its byte span in the source text.
type Token struct {
	ID    int32
	Piece string
	Start int
	End   int
}

// TokenizedInput represents one window ready for model inference
type TokenizedInput struct {
	InputIDs      []int32
	AttentionMask []int32
	TokenTypeIDs  []int32
	// Offsets holds the source byte span per position; special and padding
	// positions are {-1, -1}.
	Offsets [][2]int
	Length  int
}

// Tokenizer is a BERT WordPiece tokenizer that keeps byte offsets.
type Tokenizer struct {
	Vocab     map[string]int32
	MaxLength int
	Lowercase bool
}

// LoadVocab reads a vocab.txt file, one token per line, id = line number.
func LoadVocab(path string) (map[string]int32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab: %w", err)
	}
	defer file.Close()

	vocab := make(map[string]int32)
	scanner := bufio.NewScanner(file)
	var id int32
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r")
		if token != "" {
			vocab[token] = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}
	return vocab, nil
}

// NewTokenizer creates a tokenizer. The vocab must contain the BERT special tokens.
func NewTokenizer(vocab map[string]int32, maxLength int, lowercase bool) (*Tokenizer, error) {
	for _, special := range []string{tokenPad, tokenUnk, tokenCLS, tokenSEP} {
		if _, ok := vocab[special]; !ok {
			return nil, fmt.Errorf("vocab is missing %s", special)
		}
	}
	if maxLength < 3 {
		return nil, fmt.Errorf("max length %d is too small", maxLength)
	}
	return &Tokenizer{Vocab: vocab, MaxLength: maxLength, Lowercase: lowercase}, nil
}

// Encode splits text into WordPiece tokens without truncation.
func (t *Tokenizer) Encode(text string) []Token {
	var tokens []Token
	for _, w := range splitWords(text) {
		tokens = append(tokens, t.wordPieces(text[w[0]:w[1]], w[0])...)
	}
	return tokens
}

// Windows packs tokens into model inputs of at most MaxLength positions,
// each wrapped in [CLS] ... [SEP] and padded.
func (t *Tokenizer) Windows(tokens []Token) []*TokenizedInput {
	span := t.MaxLength - 2
	var windows []*TokenizedInput
	for start := 0; start < len(tokens); start += span {
		end := start + span
		if end > len(tokens) {
			end = len(tokens)
		}
		windows = append(windows, t.pack(tokens[start:end]))
	}
	return windows
}

func (t *Tokenizer) pack(tokens []Token) *TokenizedInput {
	in := &TokenizedInput{
		InputIDs:      make([]int32, 0, t.MaxLength),
		AttentionMask: make([]int32, 0, t.MaxLength),
		TokenTypeIDs:  make([]int32, t.MaxLength),
		Offsets:       make([][2]int, 0, t.MaxLength),
	}

	push := func(id int32, mask int32, start, end int) {
		in.InputIDs = append(in.InputIDs, id)
		in.AttentionMask = append(in.AttentionMask, mask)
		in.Offsets = append(in.Offsets, [2]int{start, end})
	}

	push(t.Vocab[tokenCLS], 1, -1, -1)
	for _, tok := range tokens {
		push(tok.ID, 1, tok.Start, tok.End)
	}
	push(t.Vocab[tokenSEP], 1, -1, -1)
	in.Length = len(in.InputIDs)

	for len(in.InputIDs) < t.MaxLength {
		push(t.Vocab[tokenPad], 0, -1, -1)
	}
	return in
}

// wordPieces runs greedy longest-match-first over one word.
func (t *Tokenizer) wordPieces(word string, base int) []Token {
	runes := []rune(word)
	if len(runes) > maxWordChars {
		return []Token{{ID: t.Vocab[tokenUnk], Piece: tokenUnk, Start: base, End: base + len(word)}}
	}

	// byteAt[i] is the byte offset of rune i within word.
	byteAt := make([]int, len(runes)+1)
	pos := 0
	for i, r := range runes {
		byteAt[i] = pos
		pos += utf8.RuneLen(r)
	}
	byteAt[len(runes)] = pos

	lookup := runes
	if t.Lowercase {
		lookup = make([]rune, len(runes))
		for i, r := range runes {
			lookup[i] = unicode.ToLower(r)
		}
	}

	var pieces []Token
	start := 0
	for start < len(lookup) {
		end := len(lookup)
		found := false
		for end > start {
			piece := string(lookup[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.Vocab[piece]; ok {
				pieces = append(pieces, Token{ID: id, Piece: piece, Start: base + byteAt[start], End: base + byteAt[end]})
				found = true
				break
			}
			end--
		}
		if !found {
			return []Token{{ID: t.Vocab[tokenUnk], Piece: tokenUnk, Start: base, End: base + len(word)}}
		}
		start = end
	}
	return pieces
}

// splitWords returns byte spans of words, with every punctuation rune as its
// own word, as BERT's basic tokenizer does.
func splitWords(text string) [][2]int {
	var words [][2]int
	start := -1
	for i, r := range text {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			if start >= 0 {
				words = append(words, [2]int{start, i})
				start = -1
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			if start >= 0 {
				words = append(words, [2]int{start, i})
				start = -1
			}
			words = append(words, [2]int{i, i + utf8.RuneLen(r)})
		default:
			if start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		words = append(words, [2]int{start, len(text)})
	}
	return words
}
