//go:build integration

package models_test

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/backends/xla"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/longformer-gomlx"
	"github.com/ajroetker/longformer-gomlx/architectures/longformer"
)

// getBackend returns the XLA backend for testing.
func getBackend() backends.Backend {
	// Auto-install XLA PJRT if not available.
	if err := xla.AutoInstall(); err != nil {
		panic(fmt.Sprintf("failed to auto-install XLA: %v", err))
	}
	// Use default config which will pick up the versioned plugin.
	backends.DefaultConfig = ""
	return backends.MustNew()
}

const (
	testBatchSize = 2
	testSeqLen    = 8
)

func smallLongformer(t *testing.T, window, mode string) *longformer.Builder {
	t.Helper()
	configJSON := `{
		"model_type": "longformer",
		"vocab_size": 100,
		"hidden_size": 32,
		"num_hidden_layers": 2,
		"num_attention_heads": 2,
		"intermediate_size": 64,
		"hidden_act": "gelu",
		"layer_norm_eps": 1e-5,
		"max_position_embeddings": 64,
		"type_vocab_size": 1,
		"pad_token_id": 1,
		"attention_window": ` + window + `,
		"attention_mode": "` + mode + `"
	}`

	cfg, err := models.ParseConfigContent([]byte(configJSON))
	require.NoError(t, err)

	builder, err := models.NewBuilder(cfg.ModelType)
	require.NoError(t, err)
	require.NoError(t, builder.ParseConfig(cfg))

	lf, ok := builder.(*longformer.Builder)
	require.True(t, ok, "expected Longformer builder")
	return lf
}

// mockWeights returns deterministic checkpoint tensors for every name in the mapping.
func mockWeights(builder *longformer.Builder) models.MapSource {
	shapesByScope := builder.VariableShapes()
	source := make(models.MapSource)
	for name, scope := range builder.WeightMapping() {
		shape := shapesByScope[scope]
		data := make([]float32, shape.Size())
		switch {
		case strings.HasSuffix(scope, "/gain"):
			for i := range data {
				data[i] = 1
			}
		case strings.HasSuffix(scope, "/offset"), strings.HasSuffix(scope, "/biases"):
		default:
			for i := range data {
				data[i] = float32((i*7)%100-50) * 0.002
			}
		}
		source[name] = tensors.FromFlatDataAndDimensions(data, shape.Dimensions...)
	}
	return source
}

func inputTensors(global ...int) (ids, mask, globalMask *tensors.Tensor) {
	idsData := make([]int32, testBatchSize*testSeqLen)
	maskData := make([]float32, testBatchSize*testSeqLen)
	globalData := make([]float32, testBatchSize*testSeqLen)
	for i := range idsData {
		idsData[i] = int32(3 + i%90)
		maskData[i] = 1
	}
	for b := 0; b < testBatchSize; b++ {
		for _, pos := range global {
			globalData[b*testSeqLen+pos] = 1
		}
	}
	return tensors.FromFlatDataAndDimensions(idsData, testBatchSize, testSeqLen),
		tensors.FromFlatDataAndDimensions(maskData, testBatchSize, testSeqLen),
		tensors.FromFlatDataAndDimensions(globalData, testBatchSize, testSeqLen)
}

// run executes the encoder and returns the last hidden state.
func run(t *testing.T, builder *longformer.Builder, withGlobal bool, global ...int) [][][]float32 {
	t.Helper()
	ctx := context.New()
	require.NoError(t, builder.LoadWeights(ctx, mockWeights(builder)))

	backend := getBackend()
	ids, mask, globalMask := inputTensors(global...)

	var output *tensors.Tensor
	if withGlobal {
		exec, err := context.NewExec(backend, ctx.Reuse(), builder.CreateExecGraphFn())
		require.NoError(t, err)
		output = exec.MustExec(ids, mask, globalMask)[0]
	} else {
		exec, err := context.NewExec(backend, ctx.Reuse(), func(ctx *context.Context, inputIDs, attentionMask *graph.Node) *graph.Node {
			hidden, _ := builder.Forward(ctx, inputIDs, attentionMask, nil)
			return hidden
		})
		require.NoError(t, err)
		output = exec.MustExec(ids, mask)[0]
	}

	require.Equal(t, []int{testBatchSize, testSeqLen, builder.Config().HiddenSize}, output.Shape().Dimensions)
	return output.Value().([][][]float32)
}

func maxAbsDiff(a, b [][][]float32) float64 {
	var diff float64
	for i := range a {
		for j := range a[i] {
			for k := range a[i][j] {
				diff = math.Max(diff, math.Abs(float64(a[i][j][k]-b[i][j][k])))
			}
		}
	}
	return diff
}

// TestLongformerGraphBuild verifies output shapes with mock weights.
func TestLongformerGraphBuild(t *testing.T) {
	builder := smallLongformer(t, "[4, 2]", "longformer")

	ctx := context.New()
	require.NoError(t, builder.LoadWeights(ctx, mockWeights(builder)))

	g := graph.NewGraph(getBackend(), "longformer_test")
	inputIDs := graph.Parameter(g, "input_ids", shapes.Make(dtypes.Int32, testBatchSize, testSeqLen))
	attentionMask := graph.Parameter(g, "attention_mask", shapes.Make(dtypes.Float32, testBatchSize, testSeqLen))
	globalMask := graph.Parameter(g, "global_attention_mask", shapes.Make(dtypes.Float32, testBatchSize, testSeqLen))

	hidden, pooled := builder.Forward(ctx.Reuse(), inputIDs, attentionMask, globalMask)

	expectedHidden := shapes.Make(dtypes.Float32, testBatchSize, testSeqLen, 32)
	require.True(t, hidden.Shape().Equal(expectedHidden), "hidden shape: got %s, want %s", hidden.Shape(), expectedHidden)
	require.NotNil(t, pooled)
	expectedPooled := shapes.Make(dtypes.Float32, testBatchSize, 32)
	require.True(t, pooled.Shape().Equal(expectedPooled), "pooled shape: got %s, want %s", pooled.Shape(), expectedPooled)
}

// TestWideWindowMatchesFullAttention checks that a window covering the whole
// sequence reproduces full self-attention.
func TestWideWindowMatchesFullAttention(t *testing.T) {
	window := fmt.Sprintf("%d", 2*testSeqLen)
	windowed := run(t, smallLongformer(t, window, "longformer"), false)
	full := run(t, smallLongformer(t, window, "bert"), false)

	require.Less(t, maxAbsDiff(windowed, full), 1e-4)
}

// TestGlobalAttention checks that an all-zero global mask is the same as none,
// and that a global token changes the result.
func TestGlobalAttention(t *testing.T) {
	builder := smallLongformer(t, "2", "longformer")

	local := run(t, builder, false)
	noGlobal := run(t, builder, true)
	require.Less(t, maxAbsDiff(local, noGlobal), 1e-5)

	withGlobal := run(t, builder, true, 0)
	require.Greater(t, maxAbsDiff(local, withGlobal), 1e-4)
}
