package common

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
)

// WindowBand returns a row-major [seqLen, seqLen] mask with 1 where |i-j| <= oneSided
// and 0 elsewhere: the non-causal sliding window each token attends within.
func WindowBand(seqLen, oneSided int) []float32 {
	band := make([]float32, seqLen*seqLen)
	for i := 0; i < seqLen; i++ {
		for j := i - oneSided; j <= i+oneSided; j++ {
			if j >= 0 && j < seqLen {
				band[i*seqLen+j] = 1
			}
		}
	}
	return band
}

// LocalWindowMask creates the {0, 1} sliding window mask of shape [1, 1, seq_len, seq_len].
// The mask is dense: attention restricted by it still computes every score.
func LocalWindowMask(g *Graph, seqLen, oneSided int, dtype dtypes.DType) *Node {
	mask := Reshape(Const(g, WindowBand(seqLen, oneSided)), 1, 1, seqLen, seqLen)
	return ConvertDType(mask, dtype)
}

// AllowGlobal widens a {0, 1} mask [1, 1, seq, seq] so that tokens flagged in
// global [batch, seq] attend to every position and are attended by every position.
// Returns [batch, 1, seq, seq].
func AllowGlobal(band, global *Node) *Node {
	dims := global.Shape().Dimensions
	batchSize, seqLen := dims[0], dims[1]
	global = ConvertDType(global, band.DType())

	full := []int{batchSize, 1, seqLen, seqLen}
	one := ConstAs(band, 1.0)
	band = BroadcastToDims(band, full...)
	rows := BroadcastToDims(Reshape(global, batchSize, 1, seqLen, 1), full...)
	cols := BroadcastToDims(Reshape(global, batchSize, 1, 1, seqLen), full...)

	// Union of {0, 1} masks: 1 - (1-a)(1-b)(1-c).
	blocked := Mul(Sub(one, band), Mul(Sub(one, rows), Sub(one, cols)))
	return Sub(one, blocked)
}

// SplitHeads reshapes [batch, seq, hidden] into [batch, heads, seq, head_dim].
func SplitHeads(x *Node, numHeads, headDim int) *Node {
	dims := x.Shape().Dimensions
	x = Reshape(x, dims[0], dims[1], numHeads, headDim)
	return Transpose(x, 1, 2)
}

// MergeHeads reshapes [batch, heads, seq, head_dim] back into [batch, seq, hidden].
func MergeHeads(x *Node) *Node {
	dims := x.Shape().Dimensions
	x = Transpose(x, 1, 2)
	return Reshape(x, dims[0], dims[2], dims[1]*dims[3])
}

// ScaledDotProductAttention computes softmax(QK^T/sqrt(d) + masks)V over
// [batch, heads, seq, head_dim] inputs. Masks are additive, each broadcastable
// to the [batch, heads, seq, seq] scores; nil masks are skipped.
func ScaledDotProductAttention(query, key, value *Node, masks ...*Node) *Node {
	headDim := query.Shape().Dimensions[3]
	scores := Einsum("bhqd,bhkd->bhqk", query, key)
	scores = Mul(scores, Sqrt(ConstAs(scores, 1.0/float64(headDim))))
	for _, mask := range masks {
		if mask != nil {
			scores = Add(scores, mask)
		}
	}
	weights := Softmax(scores, -1)
	return Einsum("bhqk,bhkd->bhqd", weights, value)
}
