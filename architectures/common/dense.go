package common

import (
	"fmt"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
)

// DenseWithBias applies a dense layer using pre-loaded weights.
// Expects variables "weights" and "biases" in the context scope.
// Handles 2D [batch, features] and 3D [batch, seq, features] inputs.
func DenseWithBias(ctx *context.Context, x *Node) *Node {
	g := x.Graph()

	weightsVar := ctx.GetVariableByScopeAndName(ctx.Scope(), "weights")
	if weightsVar == nil {
		panic(fmt.Sprintf("DenseWithBias: missing variable 'weights' in scope %q", ctx.Scope()))
	}
	biasesVar := ctx.GetVariableByScopeAndName(ctx.Scope(), "biases")
	if biasesVar == nil {
		panic(fmt.Sprintf("DenseWithBias: missing variable 'biases' in scope %q", ctx.Scope()))
	}

	return ApplyDenseWithBias(x, weightsVar.ValueGraph(g), biasesVar.ValueGraph(g))
}

// HasDense reports whether the context scope holds dense layer weights.
func HasDense(ctx *context.Context) bool {
	return ctx.GetVariableByScopeAndName(ctx.Scope(), "weights") != nil
}

// ApplyDenseWithBias applies a dense layer with explicit weight and bias tensors.
// weights shape: [out_features, in_features] (PyTorch convention)
func ApplyDenseWithBias(x, weights, biases *Node) *Node {
	out := biases.Shape().Dimensions[0]
	switch rank := x.Shape().Rank(); rank {
	case 2:
		return Add(Einsum("bi,oi->bo", x, weights), Reshape(biases, 1, out))
	case 3:
		return Add(Einsum("bsi,oi->bso", x, weights), Reshape(biases, 1, 1, out))
	default:
		panic(fmt.Sprintf("ApplyDenseWithBias: unsupported input rank %d", rank))
	}
}

// Activation applies the activation named by a config's hidden_act.
// Unknown names fall back to GELU, the BERT family default.
func Activation(name string, x *Node) *Node {
	switch name {
	case "relu":
		return activations.Relu(x)
	case "silu", "swish":
		return SiLU(x)
	case "tanh":
		return Tanh(x)
	default:
		return GELU(x)
	}
}

// GELU approximation using the tanh formula.
func GELU(x *Node) *Node {
	// GELU(x) = 0.5 * x * (1 + tanh(sqrt(2/pi) * (x + 0.044715 * x^3)))
	sqrt2OverPi := ConstAs(x, 0.7978845608028654)
	coeff := ConstAs(x, 0.044715)
	half := ConstAs(x, 0.5)
	one := ConstAs(x, 1.0)

	x3 := Mul(x, Mul(x, x))
	inner := Mul(sqrt2OverPi, Add(x, Mul(coeff, x3)))
	return Mul(half, Mul(x, Add(one, Tanh(inner))))
}

// SiLU (Swish) activation.
func SiLU(x *Node) *Node {
	return Mul(x, Sigmoid(x))
}
