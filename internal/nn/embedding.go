package nn

import (
	"math/rand"

	"github.com/born-ml/pretrained/internal/tensor"
)

// Embedding is a lookup table mapping token (or position) ids to vectors.
//
//	emb := nn.NewEmbedding("embeddings.word_embeddings", 30522, 768, backend, rng)
//	x := emb.Forward(ids) // [batch, seq] -> [batch, seq, 768]
type Embedding struct {
	NumEmbeddings int
	EmbeddingDim  int
	Weight        *Parameter // [num_embeddings, embedding_dim]
	backend       tensor.Backend
}

// NewEmbedding creates an embedding table whose parameter is name+".weight".
func NewEmbedding(name string, numEmbeddings, embeddingDim int, backend tensor.Backend, rng *rand.Rand) *Embedding {
	return &Embedding{
		NumEmbeddings: numEmbeddings,
		EmbeddingDim:  embeddingDim,
		Weight:        NewParameter(name+".weight", Normal(tensor.Shape{numEmbeddings, embeddingDim}, InitStd, rng)),
		backend:       backend,
	}
}

// Forward looks up the rows for the integer ids.
func (e *Embedding) Forward(ids *RawTensor) *RawTensor {
	return e.backend.Embedding(e.Weight.Tensor(), ids)
}

// Parameters returns [weight].
func (e *Embedding) Parameters() []*Parameter {
	return []*Parameter{e.Weight}
}

// Positions returns the int64 tensor [0, 1, ..., seqLen-1].
func Positions(seqLen int) *RawTensor {
	pos := tensor.MustNewRaw(tensor.Shape{seqLen}, tensor.Int64)
	data := pos.AsInt64()
	for i := range data {
		data[i] = int64(i)
	}
	return pos
}
