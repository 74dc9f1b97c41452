// Package common provides shared components for transformer architectures.
package common

import (
	"fmt"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// LayerNorm applies layer normalization using pre-loaded weights.
// Expects variables "gain" and "offset" in the context scope.
func LayerNorm(ctx *context.Context, x *Node, epsilon float64) *Node {
	g := x.Graph()

	gainVar := ctx.GetVariableByScopeAndName(ctx.Scope(), "gain")
	if gainVar == nil {
		panic(fmt.Sprintf("LayerNorm: missing variable 'gain' in scope %q", ctx.Scope()))
	}
	gain := gainVar.ValueGraph(g)

	offsetVar := ctx.GetVariableByScopeAndName(ctx.Scope(), "offset")
	if offsetVar == nil {
		panic(fmt.Sprintf("LayerNorm: missing variable 'offset' in scope %q", ctx.Scope()))
	}
	offset := offsetVar.ValueGraph(g)

	return ApplyLayerNormWithParams(x, gain, offset, epsilon)
}

// ApplyLayerNormWithParams normalizes over the last axis and applies gain and offset.
func ApplyLayerNormWithParams(x, gain, offset *Node, epsilon float64) *Node {
	mean := ReduceAndKeep(x, ReduceMean, -1)
	normalized := Sub(x, mean)
	variance := ReduceAndKeep(Square(normalized), ReduceMean, -1)
	normalized = Div(normalized, Sqrt(Add(variance, ConstAs(x, epsilon))))

	shape := broadcastLast(x.Shape().Rank(), gain.Shape().Dimensions[0])
	return Add(Mul(normalized, Reshape(gain, shape...)), Reshape(offset, shape...))
}

// broadcastLast returns [1, ..., 1, size] with the given rank.
func broadcastLast(rank, size int) []int {
	dims := make([]int, rank)
	for i := range dims {
		dims[i] = 1
	}
	dims[rank-1] = size
	return dims
}
