package models

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gomlx/go-huggingface/hub"
	"github.com/gomlx/go-huggingface/models/safetensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/ajroetker/longformer-gomlx/internal/envconfig"
)

// Model represents a loaded Hugging Face model with its weights and architecture.
type Model struct {
	// Config is the parsed model configuration.
	Config *BaseConfig

	// Builder is the architecture-specific builder, configured from Config.
	Builder ArchitectureBuilder

	// Weights contains the loaded safetensors model (single-file or sharded).
	Weights *safetensors.Model
}

// New creates a Model from a Hugging Face repository.
// It downloads config.json, routes it to the builder registered for its
// model_type and opens the safetensors weights.
func New(repo *hub.Repo) (*Model, error) {
	if err := repo.DownloadInfo(false); err != nil {
		return nil, errors.Wrap(err, "failed to download repo info")
	}

	configPath, err := repo.DownloadFile("config.json")
	if err != nil {
		return nil, errors.Wrap(err, "failed to download config.json")
	}

	config, err := ParseConfigFile(configPath)
	if err != nil {
		return nil, err
	}

	builder, err := newConfiguredBuilder(config)
	if err != nil {
		return nil, err
	}

	weights, err := safetensors.New(repo)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load safetensors weights")
	}

	return &Model{
		Config:  config,
		Builder: builder,
		Weights: weights,
	}, nil
}

// NewPretrained creates a Model from a registered pretrained name, using the
// hub repository recorded for it. HF_TOKEN and HF_HUB_CACHE are honored.
func NewPretrained(name string) (*Model, error) {
	p, ok := LookupPretrained(name)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownPretrained, "%q (known: %v)", name, ListPretrained())
	}
	if p.RepoID == "" {
		return nil, errors.Errorf("pretrained configuration %q has no hub repository for weights", name)
	}

	klog.V(1).Infof("Resolved pretrained %s to hub repository %s", name, p.RepoID)
	repo := hub.New(p.RepoID).WithCacheDir(envconfig.HubCache())
	if token := envconfig.Token(); token != "" {
		repo = repo.WithAuth(token)
	}
	return New(repo)
}

// NewFromLocal creates a Model from a local directory containing config.json and model.safetensors.
// The directory should be a cached Hugging Face model directory (e.g., from a previous download).
func NewFromLocal(dir string) (*Model, error) {
	configPath := filepath.Join(dir, "config.json")
	config, err := ParseConfigFile(configPath)
	if err != nil {
		return nil, err
	}

	builder, err := newConfiguredBuilder(config)
	if err != nil {
		return nil, err
	}

	// Point a hub repo at the local directory as its cache.
	modelID := filepath.Base(dir)
	repo := hub.New(modelID).WithCacheDir(filepath.Dir(dir))

	weights, err := safetensors.New(repo)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load weights from %s", dir)
	}

	return &Model{
		Config:  config,
		Builder: builder,
		Weights: weights,
	}, nil
}

// newConfiguredBuilder routes config on its model_type tag and lets the builder
// parse and check its architecture-specific fields.
func newConfiguredBuilder(config *BaseConfig) (ArchitectureBuilder, error) {
	builder, err := NewBuilder(config.ModelType)
	if err != nil {
		return nil, err
	}
	if err := builder.ParseConfig(config); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s config", config.ModelType)
	}
	klog.V(1).Infof("Configured %s builder for model_type %q", builder.Name(), config.ModelType)
	return builder, nil
}

// LoadWeightsIntoContext loads all model weights into the given GoMLX context.
// This should be called once before building the computation graph.
func (m *Model) LoadWeightsIntoContext(ctx *context.Context) error {
	return m.Builder.LoadWeights(ctx, &SafetensorsSource{Model: m.Weights})
}

// WeightMapping returns the mapping from checkpoint tensor names to context scope paths.
func (m *Model) WeightMapping() map[string]string {
	return m.Builder.WeightMapping()
}

// Summary returns a summary of the model configuration and weights.
func (m *Model) Summary() string {
	var sb strings.Builder
	sb.WriteString("Model Summary:\n")
	sb.WriteString("  Architecture: " + m.Builder.Name() + "\n")
	sb.WriteString("  Model Type: " + m.Config.ModelType + "\n")
	sb.WriteString("  Hidden Size: " + itoa(m.Config.HiddenSize) + "\n")
	sb.WriteString("  Num Layers: " + itoa(m.Config.NumHiddenLayers) + "\n")
	sb.WriteString("  Num Heads: " + itoa(m.Config.NumAttentionHeads) + "\n")
	sb.WriteString("  Vocab Size: " + itoa(m.Config.VocabSize) + "\n")
	if m.Weights != nil {
		sb.WriteString("  Tensors: " + itoa(len(m.Weights.ListTensorNames())) + "\n")
	}
	return sb.String()
}

func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}
