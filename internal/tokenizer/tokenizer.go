// Package tokenizer turns text into the integer ids fed to pretrained models.
//
// Two implementations are provided:
//   - TikToken: the GPT-2 byte-level BPE through github.com/pkoukk/tiktoken-go
//   - WordPiece: the BERT-style vocabulary read from vocab.txt
//
// ForModel picks the right one for a model family.
package tokenizer

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/born-ml/pretrained/internal/tensor"
)

// Tokenizer converts between text and token ids.
type Tokenizer interface {
	// Encode converts text to token IDs, including any special tokens the
	// model expects around a sequence.
	Encode(text string) ([]int32, error)

	// Decode converts token IDs back to text.
	Decode(tokens []int32) (string, error)

	// VocabSize returns the vocabulary size.
	VocabSize() int

	// PadToken returns the padding token ID, or -1 if none.
	PadToken() int32

	// UnkToken returns the unknown token ID, or -1 if none.
	UnkToken() int32

	// IsSpecialToken reports whether token is a control token.
	IsSpecialToken(token int32) bool
}

// VocabFile is the WordPiece vocabulary file inside a model directory.
const VocabFile = "vocab.txt"

// ForModel returns the tokenizer for a model family stored in dir.
// GPT-2 uses the r50k_base BPE; the other families need dir/vocab.txt.
func ForModel(dir, family string) (Tokenizer, error) {
	if enc, ok := EncodingForFamily(family); ok {
		tok, err := NewTikToken(enc)
		if err != nil {
			return nil, err
		}
		return tok, nil
	}
	path := filepath.Join(dir, VocabFile)
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "no tokenizer for %s model in %s", family, dir)
	}
	tok, err := LoadWordPiece(path, WordPieceOptions{Lowercase: family == "bert"})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// EncodingForFamily returns the tiktoken encoding for a family, if any.
func EncodingForFamily(family string) (string, bool) {
	if family == "gpt2" {
		return encodingR50kBase, true
	}
	return "", false
}

// EncodeBatch encodes texts into an Int64 [batch, seq] tensor, padding with
// the pad token (0 when the tokenizer has none) and truncating to maxLen
// when maxLen > 0.
func EncodeBatch(tok Tokenizer, texts []string, maxLen int) (*tensor.RawTensor, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts to encode")
	}
	rows := make([][]int32, len(texts))
	seq := 0
	for i, text := range texts {
		ids, err := tok.Encode(text)
		if err != nil {
			return nil, err
		}
		if maxLen > 0 && len(ids) > maxLen {
			ids = ids[:maxLen]
		}
		rows[i] = ids
		seq = max(seq, len(ids))
	}
	if seq == 0 {
		return nil, errors.New("texts encode to no tokens")
	}

	pad := int64(max(tok.PadToken(), 0))
	out := tensor.MustNewRaw(tensor.Shape{len(texts), seq}, tensor.Int64)
	data := out.AsInt64()
	for i, ids := range rows {
		for j := range seq {
			if j < len(ids) {
				data[i*seq+j] = int64(ids[j])
			} else {
				data[i*seq+j] = pad
			}
		}
	}
	return out, nil
}
