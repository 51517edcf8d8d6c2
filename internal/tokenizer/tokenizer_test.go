package tokenizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pretrained/internal/tensor"
)

var testVocab = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]",
	"hello", "world", "un", "##aff", "##able", ",", "!",
}

func newTestWordPiece(t *testing.T) *WordPiece {
	t.Helper()
	w, err := NewWordPiece(testVocab, WordPieceOptions{Lowercase: true})
	require.NoError(t, err)
	return w
}

func TestWordPiece_Encode(t *testing.T) {
	w := newTestWordPiece(t)

	tests := []struct {
		name string
		text string
		want []int32
	}{
		{"simple", "Hello world", []int32{2, 4, 5, 3}},
		{"punctuation", "hello, world!", []int32{2, 4, 9, 5, 10, 3}},
		{"continuation", "unaffable", []int32{2, 6, 7, 8, 3}},
		{"unknown word", "hello xyz", []int32{2, 4, 1, 3}},
		{"partial match is unknown", "unaffx", []int32{2, 1, 3}},
		{"empty", "   ", []int32{2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := w.Encode(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWordPiece_Decode(t *testing.T) {
	w := newTestWordPiece(t)
	text, err := w.Decode([]int32{2, 6, 7, 8, 5, 3, 0})
	require.NoError(t, err)
	assert.Equal(t, "unaffable world", text)

	_, err = w.Decode([]int32{99})
	assert.Error(t, err)
}

func TestWordPiece_SpecialTokens(t *testing.T) {
	w := newTestWordPiece(t)
	assert.Equal(t, 11, w.VocabSize())
	assert.Equal(t, int32(0), w.PadToken())
	assert.Equal(t, int32(1), w.UnkToken())
	assert.True(t, w.IsSpecialToken(2))
	assert.False(t, w.IsSpecialToken(4))

	_, err := NewWordPiece([]string{"a", "b"}, WordPieceOptions{})
	assert.Error(t, err, "vocabulary without [UNK]")
}

func TestWordPiece_LongWordIsUnknown(t *testing.T) {
	w := newTestWordPiece(t)
	got, err := w.Encode(strings.Repeat("un", 60))
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 1, 3}, got)
}

func TestForModel_WordPieceFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, VocabFile), []byte(strings.Join(testVocab, "\n")+"\n"), 0o600))

	tok, err := ForModel(dir, "bert")
	require.NoError(t, err)
	ids, err := tok.Encode("HELLO")
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 4, 3}, ids, "bert vocabularies are uncased")

	_, err = ForModel(t.TempDir(), "xlm")
	assert.Error(t, err)
}

func TestEncodingForFamily(t *testing.T) {
	enc, ok := EncodingForFamily("gpt2")
	assert.True(t, ok)
	assert.Equal(t, "r50k_base", enc)

	for _, family := range []string{"bert", "xlnet", "xlm", "openai-gpt"} {
		_, ok := EncodingForFamily(family)
		assert.False(t, ok, family)
	}
}

func TestEncodeBatch_Pads(t *testing.T) {
	w := newTestWordPiece(t)
	ids, err := EncodeBatch(w, []string{"hello", "hello world !"}, 0)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 5}, ids.Shape())
	assert.Equal(t, []int64{2, 4, 3, 0, 0, 2, 4, 5, 10, 3}, ids.AsInt64())

	ids, err = EncodeBatch(w, []string{"hello world !"}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 5}, ids.AsInt64())

	_, err = EncodeBatch(w, nil, 0)
	assert.Error(t, err)
}
