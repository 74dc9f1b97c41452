// Package longformer provides the Longformer architecture for GoMLX.
//
// Longformer is RoBERTa with a self-attention whose cost, in a banded
// implementation, scales linearly with the sequence length:
//   - attention_window: each token attends to window/2 neighbours on each side,
//     one size for every layer or one size per layer
//   - global attention: flagged tokens attend to, and are attended by, every token,
//     using separate query/key/value projections
//   - attention_mode "bert": full n^2 attention, for comparison only
//
// Forward is a dense reference implementation of these semantics: the window
// and global attention are applied as masks over the full seq x seq scores, so
// its memory grows with the square of the sequence length in both modes.
//
// Importing the package registers the "longformer" model type and the
// pretrained configurations longformer-base-4096 and longformer-large-4096.
//
// Reference: https://arxiv.org/abs/2004.05150
package longformer

import (
	"fmt"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"k8s.io/klog/v2"

	"github.com/ajroetker/longformer-gomlx"
	"github.com/ajroetker/longformer-gomlx/architectures/common"
)

func init() {
	models.RegisterArchitecture(ModelType, func() models.ArchitectureBuilder { return &Builder{} })
	registerPretrained()
}

// Builder implements the Longformer architecture.
type Builder struct {
	config *Config
}

// NewBuilder returns a builder for a configuration built in code.
func NewBuilder(config *Config) (*Builder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Builder{config: config}, nil
}

// Name returns the architecture name.
func (b *Builder) Name() string {
	return "Longformer"
}

// ParseConfig extracts the Longformer fields from BaseConfig.Raw and validates them.
func (b *Builder) ParseConfig(base *models.BaseConfig) error {
	config, err := FromBase(base)
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}
	b.config = config
	return nil
}

// Config returns the base configuration.
func (b *Builder) Config() *models.BaseConfig {
	return b.config.BaseConfig
}

// LongformerConfig returns the full Longformer configuration.
func (b *Builder) LongformerConfig() *Config {
	return b.config
}

// LoadWeights loads weights into the GoMLX context.
func (b *Builder) LoadWeights(ctx *context.Context, weights models.WeightSource) error {
	mapping := b.WeightMapping()
	loaded, err := models.LoadWeightsFromMapping(weights, mapping, ctx)
	if err != nil {
		return err
	}
	klog.V(1).Infof("Loaded %d of %d Longformer tensors", loaded, len(mapping))
	return nil
}

// hasGlobalProjections reports whether layers carry the global attention projections.
func (b *Builder) hasGlobalProjections() bool {
	return b.config.AttentionMode == ModeLongformer
}

func (b *Builder) projections() []string {
	if b.hasGlobalProjections() {
		return []string{"query", "key", "value", "query_global", "key_global", "value_global"}
	}
	return []string{"query", "key", "value"}
}

// WeightMapping returns the mapping from checkpoint tensor names to context scope paths.
func (b *Builder) WeightMapping() map[string]string {
	mapping := make(map[string]string)
	prefix := "longformer"

	mapping[prefix+".embeddings.word_embeddings.weight"] = "embeddings/embeddings"
	mapping[prefix+".embeddings.position_embeddings.weight"] = "embeddings/position_embeddings"
	mapping[prefix+".embeddings.token_type_embeddings.weight"] = "embeddings/token_type_embeddings"
	mapping[prefix+".embeddings.LayerNorm.weight"] = "embeddings/layer_norm/gain"
	mapping[prefix+".embeddings.LayerNorm.bias"] = "embeddings/layer_norm/offset"

	for i := 0; i < b.config.NumHiddenLayers; i++ {
		layerPrefix := fmt.Sprintf("%s.encoder.layer.%d", prefix, i)
		layerScope := fmt.Sprintf("encoder/layer/%d", i)

		for _, proj := range b.projections() {
			mapping[layerPrefix+".attention.self."+proj+".weight"] = layerScope + "/attention/" + proj + "/weights"
			mapping[layerPrefix+".attention.self."+proj+".bias"] = layerScope + "/attention/" + proj + "/biases"
		}

		mapping[layerPrefix+".attention.output.dense.weight"] = layerScope + "/attention/output/dense/weights"
		mapping[layerPrefix+".attention.output.dense.bias"] = layerScope + "/attention/output/dense/biases"
		mapping[layerPrefix+".attention.output.LayerNorm.weight"] = layerScope + "/attention/output/layer_norm/gain"
		mapping[layerPrefix+".attention.output.LayerNorm.bias"] = layerScope + "/attention/output/layer_norm/offset"

		mapping[layerPrefix+".intermediate.dense.weight"] = layerScope + "/ff/intermediate/weights"
		mapping[layerPrefix+".intermediate.dense.bias"] = layerScope + "/ff/intermediate/biases"
		mapping[layerPrefix+".output.dense.weight"] = layerScope + "/ff/output/weights"
		mapping[layerPrefix+".output.dense.bias"] = layerScope + "/ff/output/biases"
		mapping[layerPrefix+".output.LayerNorm.weight"] = layerScope + "/ff/layer_norm/gain"
		mapping[layerPrefix+".output.LayerNorm.bias"] = layerScope + "/ff/layer_norm/offset"
	}

	// Pooler (optional).
	mapping[prefix+".pooler.dense.weight"] = "pooler/weights"
	mapping[prefix+".pooler.dense.bias"] = "pooler/biases"

	return mapping
}

// VariableShapes returns the expected shape of every variable, keyed by the
// scope paths of WeightMapping.
func (b *Builder) VariableShapes() map[string]shapes.Shape {
	cfg := b.config
	h, inter := cfg.HiddenSize, cfg.IntermediateSize
	f32 := func(dims ...int) shapes.Shape { return shapes.Make(dtypes.Float32, dims...) }

	typeVocab := cfg.TypeVocabSize
	if typeVocab < 1 {
		typeVocab = 1
	}
	result := map[string]shapes.Shape{
		"embeddings/embeddings":            f32(cfg.VocabSize, h),
		"embeddings/position_embeddings":   f32(cfg.MaxPositionEmbeddings, h),
		"embeddings/token_type_embeddings": f32(typeVocab, h),
		"embeddings/layer_norm/gain":       f32(h),
		"embeddings/layer_norm/offset":     f32(h),
		"pooler/weights":                   f32(h, h),
		"pooler/biases":                    f32(h),
	}
	for i := 0; i < cfg.NumHiddenLayers; i++ {
		layerScope := fmt.Sprintf("encoder/layer/%d", i)
		for _, proj := range b.projections() {
			result[layerScope+"/attention/"+proj+"/weights"] = f32(h, h)
			result[layerScope+"/attention/"+proj+"/biases"] = f32(h)
		}
		result[layerScope+"/attention/output/dense/weights"] = f32(h, h)
		result[layerScope+"/attention/output/dense/biases"] = f32(h)
		result[layerScope+"/attention/output/layer_norm/gain"] = f32(h)
		result[layerScope+"/attention/output/layer_norm/offset"] = f32(h)
		result[layerScope+"/ff/intermediate/weights"] = f32(inter, h)
		result[layerScope+"/ff/intermediate/biases"] = f32(inter)
		result[layerScope+"/ff/output/weights"] = f32(h, inter)
		result[layerScope+"/ff/output/biases"] = f32(h)
		result[layerScope+"/ff/layer_norm/gain"] = f32(h)
		result[layerScope+"/ff/layer_norm/offset"] = f32(h)
	}
	return result
}

// BuildEmbeddings builds the embedding layer. Positions start after the
// padding index, as in RoBERTa. tokenTypeIDs may be nil.
func (b *Builder) BuildEmbeddings(ctx *context.Context, inputIDs, tokenTypeIDs *Node) *Node {
	g := inputIDs.Graph()
	cfg := b.config
	embCtx := ctx.In("embeddings")

	batchSize := inputIDs.Shape().Dimensions[0]
	seqLen := inputIDs.Shape().Dimensions[1]

	embeddings := common.Embedding(embCtx, inputIDs, cfg.VocabSize, cfg.HiddenSize)

	posEmb := embCtx.GetVariableByScopeAndName(embCtx.Scope(), "position_embeddings").ValueGraph(g)
	positionIDs := common.PositionIDs(g, batchSize, seqLen, cfg.PadTokenID+1)
	embeddings = Add(embeddings, common.LookupRows(posEmb, positionIDs))

	if typeVar := embCtx.GetVariableByScopeAndName(embCtx.Scope(), "token_type_embeddings"); typeVar != nil {
		typeEmb := typeVar.ValueGraph(g)
		if tokenTypeIDs != nil {
			embeddings = Add(embeddings, common.LookupRows(typeEmb, tokenTypeIDs))
		} else {
			// All tokens are of type 0.
			first := Slice(typeEmb, AxisRange(0, 1), AxisRange())
			embeddings = Add(embeddings, Reshape(first, 1, 1, cfg.HiddenSize))
		}
	}

	return common.LayerNorm(embCtx.In("layer_norm"), embeddings, cfg.LayerNormEps)
}

// BuildSelfAttention builds the self-attention of one layer over hidden
// [batch, seq, hidden]. paddingMask is additive [batch, 1, 1, seq] and
// globalMask is {0, 1} [batch, seq]; both may be nil.
func (b *Builder) BuildSelfAttention(ctx *context.Context, hidden *Node, layer int, paddingMask, globalMask *Node) *Node {
	cfg := b.config
	heads, headDim := cfg.NumAttentionHeads, cfg.HeadDim()
	project := func(name string) *Node {
		return common.SplitHeads(common.DenseWithBias(ctx.In(name), hidden), heads, headDim)
	}

	query, key, value := project("query"), project("key"), project("value")

	if cfg.AttentionMode == ModeBert {
		return common.MergeHeads(common.ScaledDotProductAttention(query, key, value, paddingMask))
	}

	batchSize, seqLen := hidden.Shape().Dimensions[0], hidden.Shape().Dimensions[1]
	allowed := common.LocalWindowMask(hidden.Graph(), seqLen, cfg.Window(layer)/2, hidden.DType())
	if globalMask != nil {
		allowed = common.AllowGlobal(allowed, globalMask)
	}
	local := common.ScaledDotProductAttention(query, key, value, common.AdditiveMask(allowed), paddingMask)

	if globalMask == nil || !common.HasDense(ctx.In("query_global")) {
		return common.MergeHeads(local)
	}

	// Rows of global tokens attend the whole sequence with their own projections.
	global := common.ScaledDotProductAttention(project("query_global"), project("key_global"), project("value_global"), paddingMask)
	rows := Reshape(ConvertDType(globalMask, local.DType()), batchSize, 1, seqLen, 1)
	mixed := Add(Mul(global, rows), Mul(local, Sub(ConstAs(rows, 1.0), rows)))
	return common.MergeHeads(mixed)
}

// BuildEncoderLayer builds a single transformer encoder layer.
func (b *Builder) BuildEncoderLayer(ctx *context.Context, hidden *Node, layer int, paddingMask, globalMask *Node) *Node {
	cfg := b.config

	attnCtx := ctx.In("attention")
	residual := hidden
	attnOutput := b.BuildSelfAttention(attnCtx, hidden, layer, paddingMask, globalMask)
	attnOutput = common.DenseWithBias(attnCtx.In("output").In("dense"), attnOutput)
	hidden = common.LayerNorm(attnCtx.In("output").In("layer_norm"), Add(residual, attnOutput), cfg.LayerNormEps)

	ffCtx := ctx.In("ff")
	residual = hidden
	hidden = common.Activation(cfg.HiddenAct, common.DenseWithBias(ffCtx.In("intermediate"), hidden))
	hidden = common.DenseWithBias(ffCtx.In("output"), hidden)
	return common.LayerNorm(ffCtx.In("layer_norm"), Add(residual, hidden), cfg.LayerNormEps)
}

// BuildEncoder builds the full encoder stack.
func (b *Builder) BuildEncoder(ctx *context.Context, hidden, paddingMask, globalMask *Node) *Node {
	encCtx := ctx.In("encoder")
	for i := 0; i < b.config.NumHiddenLayers; i++ {
		hidden = b.BuildEncoderLayer(encCtx.In("layer").In(itoa(i)), hidden, i, paddingMask, globalMask)
	}
	return hidden
}

// BuildPooler applies the pooler (first token projection and tanh).
// Returns nil if the checkpoint has no pooler.
func (b *Builder) BuildPooler(ctx *context.Context, hidden *Node) *Node {
	poolerCtx := ctx.In("pooler")
	if !common.HasDense(poolerCtx) {
		return nil
	}

	batchSize := hidden.Shape().Dimensions[0]
	first := Slice(hidden, AxisRange(), AxisElem(0), AxisRange())
	first = Reshape(first, batchSize, b.config.HiddenSize)
	return Tanh(common.DenseWithBias(poolerCtx, first))
}

// Forward runs the forward pass and returns the last hidden state and the
// pooled output (nil without pooler weights).
//
// attentionMask is 1 for tokens and 0 for padding; globalAttentionMask is 1 for
// tokens with global attention. Either may be nil.
func (b *Builder) Forward(ctx *context.Context, inputIDs, attentionMask, globalAttentionMask *Node) (*Node, *Node) {
	hidden := b.BuildEmbeddings(ctx, inputIDs, nil)

	var paddingMask *Node
	if attentionMask != nil {
		paddingMask = common.ExpandAttentionMask(attentionMask, hidden.DType())
	}

	hidden = b.BuildEncoder(ctx, hidden, paddingMask, globalAttentionMask)
	return hidden, b.BuildPooler(ctx, hidden)
}

// CreateExecGraphFn returns a function suitable for context.NewExec.
// The function signature is: func(ctx, inputIDs, attentionMask, globalAttentionMask) -> lastHiddenState
func (b *Builder) CreateExecGraphFn() func(*context.Context, *Node, *Node, *Node) *Node {
	return func(ctx *context.Context, inputIDs, attentionMask, globalAttentionMask *Node) *Node {
		hidden, _ := b.Forward(ctx, inputIDs, attentionMask, globalAttentionMask)
		return hidden
	}
}

func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}
