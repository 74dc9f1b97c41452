package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/ajroetker/longformer-gomlx"
	"github.com/ajroetker/longformer-gomlx/architectures/longformer"
	"github.com/ajroetker/longformer-gomlx/checkpoint"
)

// variableShaper is implemented by builders that know their variable shapes.
type variableShaper interface {
	VariableShapes() map[string]shapes.Shape
}

// InspectHandler shows a configuration given by pretrained name or local path.
// With --load the weights are opened as well.
func InspectHandler(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	flags := cmd.Flags()
	load, _ := flags.GetBool("load")
	showWeights, _ := flags.GetBool("weights")
	seqLen, _ := flags.GetInt("seq-len")

	if load {
		model, err := loadModel(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(w, model.Summary())
		if err := showInfo(w, model.Config, model.Builder, seqLen); err != nil {
			return err
		}
		if showWeights {
			showWeightMapping(w, model.WeightMapping())
			showTensors(w, model)
		}
		return nil
	}

	cfg, err := models.ResolveConfig(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	builder, err := models.NewBuilder(cfg.ModelType)
	if err != nil {
		return err
	}
	if err := builder.ParseConfig(cfg); err != nil {
		return err
	}

	if err := showInfo(w, cfg, builder, seqLen); err != nil {
		return err
	}
	if showWeights {
		showWeightMapping(w, builder.WeightMapping())
	}
	if path, _ := flags.GetString("checkpoint"); path != "" {
		return verifyCheckpoint(w, path, builder)
	}
	return nil
}

// verifyCheckpoint checks a single-file checkpoint against the builder's mapping.
func verifyCheckpoint(w io.Writer, path string, builder models.ArchitectureBuilder) error {
	f, err := checkpoint.Open(path)
	if err != nil {
		return err
	}
	var expected map[string]shapes.Shape
	if vs, ok := builder.(variableShaper); ok {
		expected = vs.VariableShapes()
	}
	report := checkpoint.Verify(f, builder.WeightMapping(), expected)

	var data [][]string
	for _, name := range report.Missing {
		data = append(data, []string{name, "missing", ""})
	}
	for _, m := range report.Mismatched {
		data = append(data, []string{m.Name, "shape", fmt.Sprintf("got %v, want %v", m.Got.Dimensions, m.Want.Dimensions)})
	}
	for _, name := range report.Unused {
		data = append(data, []string{name, "unused", ""})
	}
	fmt.Fprintf(w, "  Checkpoint %s: %d of %d mapped tensors match\n", path, len(report.Matched), len(builder.WeightMapping()))
	if len(data) > 0 {
		renderTable(w, []string{"TENSOR", "PROBLEM", "DETAIL"}, data)
	}

	if !report.OK() {
		return errors.Errorf("checkpoint %s does not match the configuration: %d missing, %d mismatched",
			path, len(report.Missing), len(report.Mismatched))
	}
	return nil
}

func loadModel(nameOrDir string) (*models.Model, error) {
	if _, ok := models.LookupPretrained(nameOrDir); ok {
		klog.Infof("Loading pretrained %s from the hub", nameOrDir)
		return models.NewPretrained(nameOrDir)
	}
	klog.Infof("Loading model from local directory %s", nameOrDir)
	return models.NewFromLocal(nameOrDir)
}

func showInfo(w io.Writer, cfg *models.BaseConfig, builder models.ArchitectureBuilder, seqLen int) error {
	rows := [][]string{
		{"", "architecture", builder.Name()},
		{"", "model_type", cfg.ModelType},
		{"", "vocab_size", strconv.Itoa(cfg.VocabSize)},
		{"", "hidden_size", strconv.Itoa(cfg.HiddenSize)},
		{"", "num_hidden_layers", strconv.Itoa(cfg.NumHiddenLayers)},
		{"", "num_attention_heads", strconv.Itoa(cfg.NumAttentionHeads)},
		{"", "intermediate_size", strconv.Itoa(cfg.IntermediateSize)},
		{"", "max_position_embeddings", strconv.Itoa(cfg.MaxPositionEmbeddings)},
		{"", "hidden_act", cfg.HiddenAct},
		{"", "layer_norm_eps", strconv.FormatFloat(cfg.LayerNormEps, 'g', -1, 64)},
	}

	if lb, ok := builder.(*longformer.Builder); ok {
		lf := lb.LongformerConfig()
		params := lf.NumParameters()
		rows = append(rows,
			[]string{"", "attention_window", lf.AttentionWindow.String()},
			[]string{"", "attention_mode", string(lf.Mode())},
			[]string{"", "parameters", humanize.Comma(params)},
			[]string{"", "fp32 size", humanize.Bytes(uint64(params) * 4)},
		)
		if seqLen > 0 {
			rows = append(rows, []string{"", "padding for " + strconv.Itoa(seqLen) + " tokens", strconv.Itoa(lf.PaddingLength(seqLen))})
		}
	}

	fmt.Fprintln(w, "  Configuration")
	renderTable(w, nil, rows)
	fmt.Fprintln(w)
	return nil
}

func showWeightMapping(w io.Writer, mapping map[string]string) {
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := make([][]string, 0, len(keys))
	for _, k := range keys {
		data = append(data, []string{k, mapping[k]})
	}
	renderTable(w, []string{"CHECKPOINT TENSOR", "CONTEXT VARIABLE"}, data)
	fmt.Fprintln(w)
}

func showTensors(w io.Writer, model *models.Model) {
	names := model.Weights.ListTensorNames()
	sort.Strings(names)

	data := make([][]string, 0, len(names))
	for _, name := range names {
		meta, err := model.Weights.GetTensorMetadata(name)
		if err != nil {
			data = append(data, []string{name, "error: " + err.Error(), ""})
			continue
		}
		data = append(data, []string{name, fmt.Sprint(meta.Dtype), fmt.Sprint(meta.Shape)})
	}
	renderTable(w, []string{"TENSOR", "DTYPE", "SHAPE"}, data)
}

func newInspectCmd() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect NAME|PATH",
		Short: "Show a pretrained or local configuration",
		Args:  cobra.ExactArgs(1),
		RunE:  InspectHandler,
	}

	flags := inspectCmd.Flags()
	flags.Bool("weights", false, "show the weight mapping")
	flags.Bool("load", false, "open the safetensors weights (downloads pretrained checkpoints)")
	flags.Int("seq-len", 0, "show the padding a sequence of this length needs")
	flags.String("checkpoint", "", "check a single-file safetensors checkpoint against the configuration")
	return inspectCmd
}
