package models

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gomlx/gomlx/pkg/ml/context"
)

// ArchitectureBuilder defines the interface for building model architectures.
type ArchitectureBuilder interface {
	// Name returns the architecture name for logging/debugging.
	Name() string

	// ParseConfig extracts architecture-specific config from BaseConfig.Raw
	// and rejects values the architecture cannot be built with.
	ParseConfig(base *BaseConfig) error

	// LoadWeights loads weights into the GoMLX context from any weight source.
	// The context should use hierarchical scopes matching WeightMapping.
	LoadWeights(ctx *context.Context, weights WeightSource) error

	// WeightMapping returns the mapping from checkpoint tensor names to context scope paths.
	WeightMapping() map[string]string

	// Config returns the base configuration.
	Config() *BaseConfig
}

// BuilderConstructor is a function that creates a new ArchitectureBuilder.
type BuilderConstructor func() ArchitectureBuilder

// PretrainedConfig describes where a named pretrained configuration lives.
type PretrainedConfig struct {
	// Name is the short name callers load by, e.g. "longformer-base-4096".
	Name string

	// ModelType is the model_type tag of the configuration.
	ModelType string

	// ConfigURL points directly at the config.json.
	ConfigURL string

	// RepoID is the hub repository holding the same checkpoint, if any.
	RepoID string
}

var (
	registry   = make(map[string]BuilderConstructor)
	registryMu sync.RWMutex

	pretrained   = make(map[string]PretrainedConfig)
	pretrainedMu sync.RWMutex
)

// RegisterArchitecture registers an architecture builder for a model type.
// Multiple model types can map to the same builder.
func RegisterArchitecture(modelType string, constructor BuilderConstructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[modelType] = constructor
}

// GetArchitecture returns the builder constructor for a model type.
func GetArchitecture(modelType string) (BuilderConstructor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	constructor, ok := registry[modelType]
	return constructor, ok
}

// ListArchitectures returns all registered model types, sorted.
func ListArchitectures() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// NewBuilder creates a new architecture builder for the given model type.
func NewBuilder(modelType string) (ArchitectureBuilder, error) {
	constructor, ok := GetArchitecture(modelType)
	if !ok {
		return nil, fmt.Errorf("unsupported model type %q; supported types: %v", modelType, ListArchitectures())
	}
	return constructor(), nil
}

// RegisterPretrained makes a pretrained configuration loadable by name.
// Registering an existing name replaces it.
func RegisterPretrained(p PretrainedConfig) {
	pretrainedMu.Lock()
	defer pretrainedMu.Unlock()
	pretrained[p.Name] = p
}

// LookupPretrained returns the pretrained configuration registered under name.
func LookupPretrained(name string) (PretrainedConfig, bool) {
	pretrainedMu.RLock()
	defer pretrainedMu.RUnlock()
	p, ok := pretrained[name]
	return p, ok
}

// ListPretrained returns all registered pretrained names, sorted.
func ListPretrained() []string {
	pretrainedMu.RLock()
	defer pretrainedMu.RUnlock()

	names := make([]string, 0, len(pretrained))
	for name := range pretrained {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
