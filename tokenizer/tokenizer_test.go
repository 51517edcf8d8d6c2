package tokenizer_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pretrained/tokenizer"
)

func TestForModel_WordPiece(t *testing.T) {
	dir := t.TempDir()
	vocab := []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "hello", "world", "##s"}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vocab.txt"), []byte(strings.Join(vocab, "\n")), 0o600))

	tok, err := tokenizer.ForModel(dir, "bert")
	require.NoError(t, err)

	ids, err := tokenizer.EncodeBatch(tok, []string{"Hello worlds", "hello"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 5, 6, 3, 2, 4, 3, 0, 0}, ids.AsInt64())
}

func TestLoadWordPiece_MissingFile(t *testing.T) {
	tok, err := tokenizer.LoadWordPiece(filepath.Join(t.TempDir(), "vocab.txt"), tokenizer.WordPieceOptions{})
	assert.Error(t, err)
	assert.Nil(t, tok)
}
