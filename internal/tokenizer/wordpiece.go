package tokenizer

import (
	"bufio"
	"os"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Special tokens of BERT-style vocabularies.
const (
	TokenCLS = "[CLS]"
	TokenSEP = "[SEP]"
	TokenPAD = "[PAD]"
	TokenUNK = "[UNK]"
)

const maxWordChars = 100

// WordPieceOptions configures a WordPiece tokenizer.
type WordPieceOptions struct {
	// Lowercase lowercases the input before splitting (uncased models).
	Lowercase bool
}

// WordPiece implements greedy longest-match-first WordPiece tokenization.
//
// Text is split on whitespace and punctuation, then every word is matched
// against the vocabulary, continuation pieces carrying a "##" prefix. Words
// that cannot be matched become [UNK]. Encode wraps the sequence in [CLS]
// and [SEP] when the vocabulary has them.
type WordPiece struct {
	vocab   map[string]int32
	inverse []string
	opts    WordPieceOptions

	cls, sep, pad, unk int32
}

// LoadWordPiece reads a vocab.txt file: one token per line, the line number
// being the id.
func LoadWordPiece(path string, opts WordPieceOptions) (*WordPiece, error) {
	//nolint:gosec // G304: vocabulary paths come from the caller
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open vocabulary")
	}
	defer func() { _ = f.Close() }()

	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tokens = append(tokens, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read vocabulary")
	}
	return NewWordPiece(tokens, opts)
}

// NewWordPiece builds a tokenizer from an ordered token list.
func NewWordPiece(tokens []string, opts WordPieceOptions) (*WordPiece, error) {
	if len(tokens) == 0 {
		return nil, errors.New("empty vocabulary")
	}
	w := &WordPiece{
		vocab:   make(map[string]int32, len(tokens)),
		inverse: tokens,
		opts:    opts,
	}
	for i, tok := range tokens {
		if _, dup := w.vocab[tok]; !dup {
			w.vocab[tok] = int32(i) //nolint:gosec // G115: vocabularies are far below 2^31
		}
	}
	w.cls, w.sep, w.pad, w.unk = w.id(TokenCLS), w.id(TokenSEP), w.id(TokenPAD), w.id(TokenUNK)
	if w.unk < 0 {
		return nil, errors.Errorf("vocabulary has no %s token", TokenUNK)
	}
	return w, nil
}

func (w *WordPiece) id(token string) int32 {
	if id, ok := w.vocab[token]; ok {
		return id
	}
	return -1
}

// Encode tokenizes text and wraps it in [CLS] ... [SEP].
func (w *WordPiece) Encode(text string) ([]int32, error) {
	var ids []int32
	if w.cls >= 0 {
		ids = append(ids, w.cls)
	}
	for _, word := range w.splitWords(text) {
		ids = append(ids, w.wordPieces(word)...)
	}
	if w.sep >= 0 {
		ids = append(ids, w.sep)
	}
	return ids, nil
}

// splitWords performs the basic tokenization: whitespace split with every
// punctuation character as its own word.
func (w *WordPiece) splitWords(text string) []string {
	if w.opts.Lowercase {
		text = strings.ToLower(text)
	}
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

func (w *WordPiece) wordPieces(word string) []int32 {
	runes := []rune(word)
	if len(runes) > maxWordChars {
		return []int32{w.unk}
	}

	var pieces []int32
	for start := 0; start < len(runes); {
		end := len(runes)
		match := int32(-1)
		for ; end > start; end-- {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := w.vocab[piece]; ok {
				match = id
				break
			}
		}
		if match < 0 {
			return []int32{w.unk}
		}
		pieces = append(pieces, match)
		start = end
	}
	return pieces
}

// Decode joins tokens back into text, merging "##" continuations and
// dropping special tokens.
func (w *WordPiece) Decode(tokens []int32) (string, error) {
	var sb strings.Builder
	for _, t := range tokens {
		if t < 0 || int(t) >= len(w.inverse) {
			return "", errors.Errorf("token id %d out of range [0, %d)", t, len(w.inverse))
		}
		if w.IsSpecialToken(t) {
			continue
		}
		tok := w.inverse[t]
		if rest, ok := strings.CutPrefix(tok, "##"); ok {
			sb.WriteString(rest)
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok)
	}
	return sb.String(), nil
}

// VocabSize returns the vocabulary size.
func (w *WordPiece) VocabSize() int {
	return len(w.inverse)
}

// PadToken returns the [PAD] id, or -1.
func (w *WordPiece) PadToken() int32 {
	return w.pad
}

// UnkToken returns the [UNK] id.
func (w *WordPiece) UnkToken() int32 {
	return w.unk
}

// IsSpecialToken reports whether token is [CLS], [SEP] or [PAD].
func (w *WordPiece) IsSpecialToken(token int32) bool {
	return token >= 0 && (token == w.cls || token == w.sep || token == w.pad)
}
