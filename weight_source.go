package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gomlx/go-huggingface/models/safetensors"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"k8s.io/klog/v2"
)

// WeightSource abstracts over where checkpoint tensors come from.
type WeightSource interface {
	// GetTensor loads a single tensor by name. Missing tensors produce an
	// error mentioning "not found".
	GetTensor(name string) (*tensors.Tensor, error)

	// ListTensorNames returns all available tensor names.
	ListTensorNames() []string
}

// SafetensorsSource adapts *safetensors.Model to the WeightSource interface.
type SafetensorsSource struct {
	Model *safetensors.Model
}

// GetTensor loads a tensor from the safetensors model.
func (s *SafetensorsSource) GetTensor(name string) (*tensors.Tensor, error) {
	tn, err := s.Model.GetTensor(name)
	if err != nil {
		return nil, err
	}
	return tn.Tensor, nil
}

// ListTensorNames returns all tensor names in the safetensors model.
func (s *SafetensorsSource) ListTensorNames() []string {
	return s.Model.ListTensorNames()
}

// MapSource serves tensors held in memory, e.g. converted or synthetic weights.
type MapSource map[string]*tensors.Tensor

// GetTensor returns the named tensor.
func (m MapSource) GetTensor(name string) (*tensors.Tensor, error) {
	t, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("tensor %q not found", name)
	}
	return t, nil
}

// ListTensorNames returns the tensor names, sorted.
func (m MapSource) ListTensorNames() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadWeightsFromMapping loads weights from a WeightSource into a GoMLX context
// using the given mapping from tensor names to context scope paths.
// Tensors missing from the source are skipped; the number loaded is returned.
func LoadWeightsFromMapping(weights WeightSource, mapping map[string]string, ctx *context.Context) (int, error) {
	loaded := 0
	for tensorKey, scopePath := range mapping {
		tensor, err := weights.GetTensor(tensorKey)
		if err != nil {
			if strings.Contains(err.Error(), "not found") {
				klog.V(2).Infof("Skipping missing tensor %s", tensorKey)
				continue
			}
			return loaded, fmt.Errorf("failed to load tensor %q: %w", tensorKey, err)
		}

		varCtx, varName := ScopeFor(ctx, scopePath)
		varCtx.VariableWithValue(varName, tensor)
		loaded++
	}
	return loaded, nil
}

// ScopeFor descends ctx along the directories of a "a/b/name" scope path and
// returns the innermost context with the variable name.
func ScopeFor(ctx *context.Context, scopePath string) (*context.Context, string) {
	parts := strings.Split(scopePath, "/")
	for _, part := range parts[:len(parts)-1] {
		ctx = ctx.In(part)
	}
	return ctx, parts[len(parts)-1]
}
