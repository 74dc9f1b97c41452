package longformer

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/ajroetker/longformer-gomlx"
)

// ModelType is the model_type tag of Longformer configurations.
const ModelType = "longformer"

// DefaultAttentionWindow is the window applied to every layer unless configured.
const DefaultAttentionWindow = 512

// AttentionMode selects the self-attention implementation.
type AttentionMode string

const (
	// ModeLongformer uses sliding window attention plus global attention.
	ModeLongformer AttentionMode = "longformer"

	// ModeBert uses full n^2 self-attention. It exists for comparison only and
	// runs out of memory on long sequences.
	ModeBert AttentionMode = "bert"
)

// Valid reports whether m is a known mode.
func (m AttentionMode) Valid() bool {
	return m == ModeLongformer || m == ModeBert
}

// Options are the constructor options of a Longformer configuration: every base
// option plus the two attention fields.
type Options struct {
	models.Options

	AttentionWindow AttentionWindow `json:"attention_window"`
	AttentionMode   AttentionMode   `json:"attention_mode"`
}

// DefaultOptions returns the RoBERTa defaults with a 512 token window in
// longformer mode.
func DefaultOptions() Options {
	base := models.DefaultOptions()
	bos, eos := 0, 2
	base.PadTokenID = 1
	base.BOSTokenID = &bos
	base.EOSTokenID = &eos
	return Options{
		Options:         base,
		AttentionWindow: WindowSize(DefaultAttentionWindow),
		AttentionMode:   ModeLongformer,
	}
}

// Config holds the Longformer configuration.
type Config struct {
	*models.BaseConfig

	// AttentionWindow is the window size around each token, uniform or per layer.
	AttentionWindow AttentionWindow

	// AttentionMode selects windowed or full self-attention.
	AttentionMode AttentionMode
}

// NewConfig builds a configuration from options. Base options are checked the
// way models.NewBaseConfig checks them; the attention fields are stored as
// given and only checked by Validate.
func NewConfig(opts Options) (*Config, error) {
	base, err := models.NewBaseConfig(ModelType, opts.Options)
	if err != nil {
		return nil, err
	}
	return &Config{
		BaseConfig:      base,
		AttentionWindow: opts.AttentionWindow,
		AttentionMode:   opts.AttentionMode,
	}, nil
}

// Default returns the configuration built from DefaultOptions.
func Default() *Config {
	config, err := NewConfig(DefaultOptions())
	if err != nil {
		panic(errors.Wrap(err, "longformer default options are invalid"))
	}
	return config
}

// NewConfigFromMap builds a configuration from named options, starting from
// DefaultOptions. Names are the config.json keys. Unknown names fail with a
// *models.UnrecognizedOptionError; model_type is accepted only if it is "longformer".
func NewConfigFromMap(options map[string]interface{}) (*Config, error) {
	named := make(map[string]interface{}, len(options))
	for k, v := range options {
		named[k] = v
	}
	if v, ok := named["model_type"]; ok {
		if v != ModelType {
			return nil, &models.FieldError{Field: "model_type", Value: v, Reason: "must be " + ModelType}
		}
		delete(named, "model_type")
	}

	opts := DefaultOptions()
	if err := models.DecodeOptions(named, &opts, attentionWindowHook); err != nil {
		return nil, err
	}
	return NewConfig(opts)
}

// ParseConfig parses a Longformer config.json.
func ParseConfig(content []byte) (*Config, error) {
	base, err := models.ParseConfigContent(content)
	if err != nil {
		return nil, err
	}
	return FromBase(base)
}

// FromBase reads the Longformer fields of a parsed config.json. Missing fields
// take their defaults; keys Longformer does not know stay in base.Raw.
func FromBase(base *models.BaseConfig) (*Config, error) {
	switch base.ModelType {
	case ModelType:
	case "":
		base.ModelType = ModelType
	default:
		return nil, &models.FieldError{Field: "model_type", Value: base.ModelType, Reason: "must be " + ModelType}
	}

	config := &Config{
		BaseConfig:      base,
		AttentionWindow: WindowSize(DefaultAttentionWindow),
		AttentionMode:   ModeLongformer,
	}
	if v, ok := base.Raw["attention_window"]; ok {
		window, err := parseAttentionWindow(v)
		if err != nil {
			return nil, err
		}
		config.AttentionWindow = window
	}
	if v, ok := base.Raw["attention_mode"]; ok {
		mode, isString := v.(string)
		if !isString {
			return nil, &models.FieldError{Field: "attention_mode", Value: v, Reason: "must be a string"}
		}
		config.AttentionMode = AttentionMode(mode)
	}
	return config, nil
}

// Base returns the base configuration.
func (c *Config) Base() *models.BaseConfig {
	return c.BaseConfig
}

// Window returns the attention window of a hidden layer, or 0 when a per-layer
// window has no entry for it. Validate reports such configurations.
func (c *Config) Window(layer int) int {
	return c.AttentionWindow.ForLayer(layer)
}

// Mode returns the attention mode.
func (c *Config) Mode() AttentionMode {
	return c.AttentionMode
}

// Validate reports the first attention field a model cannot be built with.
// Windows must be positive and even (half of it lies on each side of a token)
// and a per-layer list needs one entry per hidden layer.
func (c *Config) Validate() error {
	if !c.AttentionMode.Valid() {
		return &models.FieldError{
			Field:  "attention_mode",
			Value:  c.AttentionMode,
			Reason: "must be one of " + string(ModeLongformer) + ", " + string(ModeBert),
		}
	}

	w := c.AttentionWindow
	if !w.IsPerLayer() {
		return checkWindow("attention_window", w.Size())
	}
	if got := len(w.perLayer); got != c.NumHiddenLayers {
		return &models.FieldError{
			Field:  "attention_window",
			Value:  w,
			Reason: "has " + itoa(got) + " entries but num_hidden_layers is " + itoa(c.NumHiddenLayers),
		}
	}
	for i, size := range w.perLayer {
		if err := checkWindow("attention_window["+itoa(i)+"]", size); err != nil {
			return err
		}
	}
	return nil
}

func checkWindow(field string, size int) error {
	switch {
	case size <= 0:
		return &models.FieldError{Field: field, Value: size, Reason: "must be positive"}
	case size%2 != 0:
		return &models.FieldError{Field: field, Value: size, Reason: "must be even"}
	}
	return nil
}

// PaddingLength returns how many tokens to append to a sequence of seqLen so
// its length is a multiple of the largest attention window.
func (c *Config) PaddingLength(seqLen int) int {
	w := c.AttentionWindow.Max()
	if w <= 0 {
		return 0
	}
	return (w - seqLen%w) % w
}

// NumParameters returns the number of weights of the encoder and pooler.
func (c *Config) NumParameters() int64 {
	h := int64(c.HiddenSize)
	inter := int64(c.IntermediateSize)
	dense := func(in, out int64) int64 { return in*out + out }

	embeddings := (int64(c.VocabSize)+int64(c.MaxPositionEmbeddings)+int64(c.TypeVocabSize))*h + 2*h

	projections := int64(3)
	if c.AttentionMode == ModeLongformer {
		projections += 3 // global query, key and value
	}
	layer := projections*dense(h, h) + dense(h, h) + 2*h + dense(h, inter) + dense(inter, h) + 2*h

	return embeddings + int64(c.NumHiddenLayers)*layer + dense(h, h)
}

// ToMap returns the configuration as the JSON object written to config.json.
func (c *Config) ToMap() (map[string]interface{}, error) {
	m, err := c.BaseConfig.ToMap()
	if err != nil {
		return nil, err
	}
	m["model_type"] = ModelType
	m["attention_window"] = c.AttentionWindow.Value()
	m["attention_mode"] = string(c.AttentionMode)
	return m, nil
}

// MarshalJSON encodes the configuration as config.json content.
func (c *Config) MarshalJSON() ([]byte, error) {
	m, err := c.ToMap()
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Save writes the configuration to a config.json file.
func (c *Config) Save(path string) error {
	m, err := c.ToMap()
	if err != nil {
		return err
	}
	content, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	if err := os.WriteFile(path, append(content, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write config file %q", path)
	}
	return nil
}
