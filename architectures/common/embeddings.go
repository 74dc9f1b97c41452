package common

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
)

// Embedding retrieves embeddings from the context.
// Uses the GoMLX layers.Embedding which expects "embeddings" variable in scope.
func Embedding(ctx *context.Context, inputIDs *Node, vocabSize, hiddenSize int) *Node {
	embeddings := layers.Embedding(ctx, inputIDs, dtypes.Float32, vocabSize, hiddenSize)

	// layers.Embedding may return 2D when seq_len=1.
	if embeddings.Shape().Rank() == 2 {
		embeddings = InsertAxes(embeddings, 1)
	}
	return embeddings
}

// LookupRows gathers rows of table [rows, hidden] for ids [batch, seq],
// returning [batch, seq, hidden].
func LookupRows(table, ids *Node) *Node {
	dims := ids.Shape().Dimensions
	return Gather(table, Reshape(ids, dims[0], dims[1], 1))
}

// PositionIDs creates sequential position IDs starting at offset, shaped [batch, seq].
// RoBERTa-style models start positions after the padding index.
func PositionIDs(g *Graph, batchSize, seqLen, offset int) *Node {
	positions := make([]int32, seqLen)
	for i := range positions {
		positions[i] = int32(i + offset)
	}
	posNode := Reshape(Const(g, positions), 1, seqLen)
	return BroadcastToDims(posNode, batchSize, seqLen)
}

// ExpandAttentionMask expands attention mask for multi-head attention.
// Input mask: [batch, seq_len] (1 for valid, 0 for masked)
// Output: [batch, 1, 1, seq_len] with 0 for valid, large negative for masked.
func ExpandAttentionMask(mask *Node, dtype dtypes.DType) *Node {
	mask = ConvertDType(InsertAxes(mask, 1, 1), dtype)
	return AdditiveMask(mask)
}

// AdditiveMask turns a {0, 1} "allowed" mask into 0 for allowed and a large
// negative value for masked positions, to be added to attention scores.
func AdditiveMask(allowed *Node) *Node {
	negInf := ConstAs(allowed, -1e9)
	one := ConstAs(allowed, 1.0)
	return Mul(Sub(one, allowed), negInf)
}
