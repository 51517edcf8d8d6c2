package tokenizer

import (
	"github.com/pkg/errors"
	"github.com/pkoukk/tiktoken-go"
)

// Encoding names supported by tiktoken.
const (
	encodingCL100kBase = "cl100k_base"
	encodingP50kBase   = "p50k_base"
	encodingR50kBase   = "r50k_base" // GPT-2
)

// TikToken wraps a tiktoken encoding.
//
// tiktoken downloads the BPE ranks on first use and caches them in
// $TIKTOKEN_CACHE_DIR.
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTikToken loads a tiktoken encoding by name ("r50k_base", ...).
func NewTikToken(encodingName string) (*TikToken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load tiktoken encoding %q", encodingName)
	}
	return &TikToken{encoding: encoding, name: encodingName}, nil
}

// Encode converts text to token IDs. Special tokens in the text are encoded
// as ordinary text.
func (t *TikToken) Encode(text string) ([]int32, error) {
	tokens := t.encoding.Encode(text, nil, nil)
	result := make([]int32, len(tokens))
	for i, tok := range tokens {
		result[i] = int32(tok) //nolint:gosec // G115: vocabularies are far below 2^31
	}
	return result, nil
}

// Decode converts token IDs back to text.
func (t *TikToken) Decode(tokens []int32) (string, error) {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		ids[i] = int(tok)
	}
	return t.encoding.Decode(ids), nil
}

// VocabSize returns the vocabulary size, special tokens included.
func (t *TikToken) VocabSize() int {
	switch t.name {
	case encodingCL100kBase:
		return 100256
	case encodingP50kBase, encodingR50kBase:
		return 50257
	default:
		return 100000
	}
}

// PadToken returns -1: the GPT-2 encodings have no padding token.
func (t *TikToken) PadToken() int32 {
	return -1
}

// UnkToken returns -1: byte-level BPE never produces unknown tokens.
func (t *TikToken) UnkToken() int32 {
	return -1
}

// IsSpecialToken reports whether token is <|endoftext|>.
func (t *TikToken) IsSpecialToken(token int32) bool {
	switch t.name {
	case encodingCL100kBase:
		return token >= 100256 && token <= 100276
	case encodingP50kBase, encodingR50kBase:
		return token == 50256
	}
	return false
}

// Name returns the encoding name.
func (t *TikToken) Name() string {
	return t.name
}
