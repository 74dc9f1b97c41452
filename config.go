// Package models provides support for loading and running Hugging Face models in GoMLX.
//
// It parses config.json files to understand model architectures, routes them on
// their model_type tag to a registered architecture builder, and loads weights
// from safetensors format into GoMLX contexts.
package models

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// BaseConfig contains fields common to all Hugging Face models.
// Architecture-specific fields are available in Raw for custom parsing.
type BaseConfig struct {
	// Path to the config file (not from JSON).
	ConfigFile string `json:"-"`

	// Core architecture identifier.
	ModelType     string   `json:"model_type"`
	Architectures []string `json:"architectures,omitempty"`

	// Common dimensions.
	VocabSize             int `json:"vocab_size"`
	HiddenSize            int `json:"hidden_size"`
	NumHiddenLayers       int `json:"num_hidden_layers"`
	NumAttentionHeads     int `json:"num_attention_heads"`
	IntermediateSize      int `json:"intermediate_size"`
	MaxPositionEmbeddings int `json:"max_position_embeddings"`

	// Normalization.
	LayerNormEps float64 `json:"layer_norm_eps,omitempty"`
	RMSNormEps   float64 `json:"rms_norm_eps,omitempty"`

	// Activation function.
	HiddenAct string `json:"hidden_act,omitempty"`

	// Dropout (used during training).
	HiddenDropoutProb     float64 `json:"hidden_dropout_prob,omitempty"`
	AttentionProbsDropout float64 `json:"attention_probs_dropout_prob,omitempty"`

	// Type embeddings (BERT-style).
	TypeVocabSize int `json:"type_vocab_size,omitempty"`

	InitializerRange float64 `json:"initializer_range,omitempty"`

	// Special tokens. Begin/end of sequence are unset for BERT.
	PadTokenID int  `json:"pad_token_id"`
	BOSTokenID *int `json:"bos_token_id,omitempty"`
	EOSTokenID *int `json:"eos_token_id,omitempty"`

	// Task heads and outputs.
	FinetuningTask     string            `json:"finetuning_task,omitempty"`
	ID2Label           map[string]string `json:"id2label,omitempty"`
	OutputAttentions   bool              `json:"output_attentions,omitempty"`
	OutputHiddenStates bool              `json:"output_hidden_states,omitempty"`
	IsDecoder          bool              `json:"is_decoder,omitempty"`

	// The raw JSON for architecture-specific parsing.
	Raw map[string]interface{} `json:"-"`
}

// Options enumerates every base option accepted when a configuration is built in
// code rather than parsed from config.json. Start from DefaultOptions and override.
type Options struct {
	VocabSize             int     `json:"vocab_size"`
	HiddenSize            int     `json:"hidden_size"`
	NumHiddenLayers       int     `json:"num_hidden_layers"`
	NumAttentionHeads     int     `json:"num_attention_heads"`
	IntermediateSize      int     `json:"intermediate_size"`
	HiddenAct             string  `json:"hidden_act"`
	HiddenDropoutProb     float64 `json:"hidden_dropout_prob"`
	AttentionProbsDropout float64 `json:"attention_probs_dropout_prob"`
	MaxPositionEmbeddings int     `json:"max_position_embeddings"`
	TypeVocabSize         int     `json:"type_vocab_size"`
	InitializerRange      float64 `json:"initializer_range"`
	LayerNormEps          float64 `json:"layer_norm_eps"`

	PadTokenID int  `json:"pad_token_id"`
	BOSTokenID *int `json:"bos_token_id"`
	EOSTokenID *int `json:"eos_token_id"`

	Architectures      []string          `json:"architectures"`
	FinetuningTask     string            `json:"finetuning_task"`
	ID2Label           map[string]string `json:"id2label"`
	OutputAttentions   bool              `json:"output_attentions"`
	OutputHiddenStates bool              `json:"output_hidden_states"`
	IsDecoder          bool              `json:"is_decoder"`
}

// DefaultOptions returns the BERT-base defaults shared by the BERT family.
func DefaultOptions() Options {
	return Options{
		VocabSize:             30522,
		HiddenSize:            768,
		NumHiddenLayers:       12,
		NumAttentionHeads:     12,
		IntermediateSize:      3072,
		HiddenAct:             "gelu",
		HiddenDropoutProb:     0.1,
		AttentionProbsDropout: 0.1,
		MaxPositionEmbeddings: 512,
		TypeVocabSize:         2,
		InitializerRange:      0.02,
		LayerNormEps:          1e-12,
	}
}

// Validate checks the options a model cannot be built without.
func (o Options) Validate() error {
	positive := []struct {
		field string
		value int
	}{
		{"vocab_size", o.VocabSize},
		{"hidden_size", o.HiddenSize},
		{"num_hidden_layers", o.NumHiddenLayers},
		{"num_attention_heads", o.NumAttentionHeads},
		{"intermediate_size", o.IntermediateSize},
		{"max_position_embeddings", o.MaxPositionEmbeddings},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return &FieldError{Field: p.field, Value: p.value, Reason: "must be positive"}
		}
	}
	if o.HiddenSize%o.NumAttentionHeads != 0 {
		return &FieldError{
			Field:  "hidden_size",
			Value:  o.HiddenSize,
			Reason: "must be a multiple of num_attention_heads (" + itoa(o.NumAttentionHeads) + ")",
		}
	}
	if o.LayerNormEps <= 0 {
		return &FieldError{Field: "layer_norm_eps", Value: o.LayerNormEps, Reason: "must be positive"}
	}
	return nil
}

// NewBaseConfig builds a configuration tagged with modelType from explicit options.
// Raw is left empty: every option has a typed field.
func NewBaseConfig(modelType string, opts Options) (*BaseConfig, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &BaseConfig{
		ModelType:             modelType,
		Architectures:         opts.Architectures,
		VocabSize:             opts.VocabSize,
		HiddenSize:            opts.HiddenSize,
		NumHiddenLayers:       opts.NumHiddenLayers,
		NumAttentionHeads:     opts.NumAttentionHeads,
		IntermediateSize:      opts.IntermediateSize,
		MaxPositionEmbeddings: opts.MaxPositionEmbeddings,
		LayerNormEps:          opts.LayerNormEps,
		HiddenAct:             opts.HiddenAct,
		HiddenDropoutProb:     opts.HiddenDropoutProb,
		AttentionProbsDropout: opts.AttentionProbsDropout,
		TypeVocabSize:         opts.TypeVocabSize,
		InitializerRange:      opts.InitializerRange,
		PadTokenID:            opts.PadTokenID,
		BOSTokenID:            opts.BOSTokenID,
		EOSTokenID:            opts.EOSTokenID,
		FinetuningTask:        opts.FinetuningTask,
		ID2Label:              opts.ID2Label,
		OutputAttentions:      opts.OutputAttentions,
		OutputHiddenStates:    opts.OutputHiddenStates,
		IsDecoder:             opts.IsDecoder,
	}, nil
}

// ParseConfigFile loads and parses a config.json file.
func ParseConfigFile(filePath string) (*BaseConfig, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %q", filePath)
	}

	config, err := ParseConfigContent(content)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %q", filePath)
	}
	config.ConfigFile = filePath

	return config, nil
}

// ParseConfigContent parses config.json content from bytes.
func ParseConfigContent(content []byte) (*BaseConfig, error) {
	config := &BaseConfig{}

	if err := json.Unmarshal(content, config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config JSON")
	}
	if err := json.Unmarshal(content, &config.Raw); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config JSON to raw map")
	}

	if config.LayerNormEps == 0 {
		config.LayerNormEps = 1e-12
	}
	if config.HiddenAct == "" {
		config.HiddenAct = "gelu"
	}

	return config, nil
}

// ToMap returns the configuration as a JSON object: keys in Raw that have no typed
// field are kept, typed fields take precedence.
func (c *BaseConfig) ToMap() (map[string]interface{}, error) {
	content, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal config")
	}
	var typed map[string]interface{}
	if err := json.Unmarshal(content, &typed); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config to map")
	}

	result := make(map[string]interface{}, len(c.Raw)+len(typed))
	for k, v := range c.Raw {
		result[k] = v
	}
	for k, v := range typed {
		result[k] = v
	}
	return result, nil
}

// GetString retrieves a string field from Raw config.
func (c *BaseConfig) GetString(key string) (string, bool) {
	if v, ok := c.Raw[key]; ok {
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	return "", false
}

// GetInt retrieves an integer field from Raw config.
func (c *BaseConfig) GetInt(key string) (int, bool) {
	if v, ok := c.Raw[key]; ok {
		return asInt(v)
	}
	return 0, false
}

// GetFloat retrieves a float field from Raw config.
func (c *BaseConfig) GetFloat(key string) (float64, bool) {
	if v, ok := c.Raw[key]; ok {
		if f, ok := v.(float64); ok {
			return f, true
		}
	}
	return 0, false
}

// GetBool retrieves a boolean field from Raw config.
func (c *BaseConfig) GetBool(key string) (bool, bool) {
	if v, ok := c.Raw[key]; ok {
		if b, ok := v.(bool); ok {
			return b, true
		}
	}
	return false, false
}

// GetStringSlice retrieves a string slice from Raw config.
func (c *BaseConfig) GetStringSlice(key string) ([]string, bool) {
	if v, ok := c.Raw[key]; ok {
		if arr, ok := v.([]interface{}); ok {
			result := make([]string, 0, len(arr))
			for _, item := range arr {
				if s, ok := item.(string); ok {
					result = append(result, s)
				}
			}
			return result, true
		}
	}
	return nil, false
}

// GetIntSlice retrieves an integer slice from Raw config. It fails if any element
// is not an integral number.
func (c *BaseConfig) GetIntSlice(key string) ([]int, bool) {
	v, ok := c.Raw[key]
	if !ok {
		return nil, false
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	result := make([]int, 0, len(arr))
	for _, item := range arr {
		n, ok := asInt(item)
		if !ok {
			return nil, false
		}
		result = append(result, n)
	}
	return result, true
}

// HeadDim returns the dimension of each attention head.
func (c *BaseConfig) HeadDim() int {
	if c.NumAttentionHeads == 0 {
		return 0
	}
	return c.HiddenSize / c.NumAttentionHeads
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}
