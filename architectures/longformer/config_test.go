package longformer_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/longformer-gomlx"
	"github.com/ajroetker/longformer-gomlx/architectures/longformer"
)

func TestDefault(t *testing.T) {
	cfg := longformer.Default()

	assert.False(t, cfg.AttentionWindow.IsPerLayer())
	assert.Equal(t, 512, cfg.AttentionWindow.Size())
	assert.Equal(t, longformer.ModeLongformer, cfg.Mode())
	assert.Equal(t, "longformer", cfg.ModelType)

	// Base defaults come from RoBERTa.
	assert.Equal(t, 30522, cfg.VocabSize)
	assert.Equal(t, 768, cfg.HiddenSize)
	assert.Equal(t, 12, cfg.NumHiddenLayers)
	assert.Equal(t, 12, cfg.NumAttentionHeads)
	assert.Equal(t, 3072, cfg.IntermediateSize)
	assert.Equal(t, 1, cfg.PadTokenID)
	require.NotNil(t, cfg.BOSTokenID)
	require.NotNil(t, cfg.EOSTokenID)
	assert.Equal(t, 0, *cfg.BOSTokenID)
	assert.Equal(t, 2, *cfg.EOSTokenID)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfig_PerLayerWindowPreserved(t *testing.T) {
	opts := longformer.DefaultOptions()
	opts.AttentionWindow = longformer.PerLayerWindows(64, 64, 128)

	cfg, err := longformer.NewConfig(opts)
	require.NoError(t, err)

	assert.True(t, cfg.AttentionWindow.IsPerLayer())
	assert.Equal(t, []int{64, 64, 128}, cfg.AttentionWindow.PerLayer())
	assert.Equal(t, 128, cfg.Window(2))
	assert.Equal(t, 128, cfg.AttentionWindow.Max())
}

func TestNewConfig_BertModePreserved(t *testing.T) {
	opts := longformer.DefaultOptions()
	opts.AttentionMode = longformer.ModeBert

	cfg, err := longformer.NewConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, longformer.AttentionMode("bert"), cfg.Mode())
}

func TestNewConfig_PermissiveAttentionFields(t *testing.T) {
	opts := longformer.DefaultOptions()
	opts.AttentionMode = "sparse"
	opts.AttentionWindow = longformer.PerLayerWindows(3)

	// Construction stores the fields as given; Validate reports them.
	cfg, err := longformer.NewConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, longformer.AttentionMode("sparse"), cfg.Mode())
	assert.Error(t, cfg.Validate())
}

func TestNewConfig_BaseOptionsPassThrough(t *testing.T) {
	opts := longformer.DefaultOptions()
	opts.VocabSize = 50265
	opts.HiddenSize = 1024
	opts.NumHiddenLayers = 24
	opts.NumAttentionHeads = 16
	opts.IntermediateSize = 4096
	opts.MaxPositionEmbeddings = 4098
	opts.TypeVocabSize = 1
	opts.LayerNormEps = 1e-5
	opts.HiddenAct = "relu"
	opts.OutputAttentions = true
	opts.ID2Label = map[string]string{"0": "NEG", "1": "POS"}

	cfg, err := longformer.NewConfig(opts)
	require.NoError(t, err)

	assert.Equal(t, 50265, cfg.VocabSize)
	assert.Equal(t, 1024, cfg.HiddenSize)
	assert.Equal(t, 24, cfg.NumHiddenLayers)
	assert.Equal(t, 16, cfg.NumAttentionHeads)
	assert.Equal(t, 4096, cfg.IntermediateSize)
	assert.Equal(t, 4098, cfg.MaxPositionEmbeddings)
	assert.Equal(t, 1, cfg.TypeVocabSize)
	assert.Equal(t, 1e-5, cfg.LayerNormEps)
	assert.Equal(t, "relu", cfg.HiddenAct)
	assert.True(t, cfg.OutputAttentions)
	assert.Equal(t, map[string]string{"0": "NEG", "1": "POS"}, cfg.ID2Label)
	assert.Equal(t, 64, cfg.HeadDim())

	// The attention fields sit next to, not over, the base fields.
	m, err := cfg.ToMap()
	require.NoError(t, err)
	for _, key := range []string{"vocab_size", "hidden_size", "num_hidden_layers", "num_attention_heads",
		"intermediate_size", "max_position_embeddings", "layer_norm_eps", "hidden_act", "pad_token_id"} {
		assert.Contains(t, m, key)
	}
	assert.Equal(t, 512, m["attention_window"])
	assert.Equal(t, "longformer", m["attention_mode"])
}

func TestNewConfig_BaseErrorPropagates(t *testing.T) {
	opts := longformer.DefaultOptions()
	opts.HiddenSize = 100
	opts.NumAttentionHeads = 12

	_, err := longformer.NewConfig(opts)
	require.Error(t, err)

	var fieldErr *models.FieldError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "hidden_size", fieldErr.Field)
}

func TestNewConfigFromMap(t *testing.T) {
	cfg, err := longformer.NewConfigFromMap(map[string]interface{}{
		"attention_window":    []interface{}{float64(32), float64(64)},
		"attention_mode":      "bert",
		"num_hidden_layers":   2,
		"hidden_size":         "256",
		"num_attention_heads": 4,
		"model_type":          "longformer",
	})
	require.NoError(t, err)

	assert.Equal(t, []int{32, 64}, cfg.AttentionWindow.PerLayer())
	assert.Equal(t, longformer.ModeBert, cfg.Mode())
	assert.Equal(t, 2, cfg.NumHiddenLayers)
	assert.Equal(t, 256, cfg.HiddenSize)
	assert.Equal(t, 4, cfg.NumAttentionHeads)
	assert.Equal(t, 3072, cfg.IntermediateSize, "unset options keep their defaults")
	assert.Equal(t, "longformer", cfg.ModelType)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfigFromMap_Empty(t *testing.T) {
	cfg, err := longformer.NewConfigFromMap(nil)
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.AttentionWindow.Size())
	assert.Equal(t, longformer.ModeLongformer, cfg.Mode())
}

func TestNewConfigFromMap_UnrecognizedOption(t *testing.T) {
	_, err := longformer.NewConfigFromMap(map[string]interface{}{
		"attention_window": 256,
		"window_size":      256,
		"hiden_size":       768,
	})
	require.Error(t, err)

	var unrecognized *models.UnrecognizedOptionError
	require.True(t, errors.As(err, &unrecognized))
	assert.Equal(t, []string{"hiden_size", "window_size"}, unrecognized.Options)
}

func TestNewConfigFromMap_ModelTypeMismatch(t *testing.T) {
	_, err := longformer.NewConfigFromMap(map[string]interface{}{"model_type": "bert"})
	require.Error(t, err)

	var fieldErr *models.FieldError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "model_type", fieldErr.Field)
}

func TestNewConfigFromMap_BadWindow(t *testing.T) {
	_, err := longformer.NewConfigFromMap(map[string]interface{}{
		"attention_window": []interface{}{64, "wide"},
	})
	assert.Error(t, err)
}

func TestParseConfig_NonStringAttentionMode(t *testing.T) {
	for _, content := range []string{`{"attention_mode": null}`, `{"attention_mode": 1}`, `{"attention_mode": ["bert"]}`} {
		_, err := longformer.ParseConfig([]byte(content))
		require.Error(t, err, content)

		var fieldErr *models.FieldError
		require.True(t, errors.As(err, &fieldErr), content)
		assert.Equal(t, "attention_mode", fieldErr.Field)
	}
}

func TestModelTypeIsFixed(t *testing.T) {
	opts := longformer.DefaultOptions()
	opts.AttentionMode = longformer.ModeBert
	opts.AttentionWindow = longformer.WindowSize(8)

	cfg, err := longformer.NewConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, longformer.ModelType, cfg.ModelType)

	m, err := cfg.ToMap()
	require.NoError(t, err)
	assert.Equal(t, "longformer", m["model_type"])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		window longformer.AttentionWindow
		mode   longformer.AttentionMode
		layers int
		field  string
	}{
		{"uniform", longformer.WindowSize(256), longformer.ModeLongformer, 12, ""},
		{"per layer", longformer.PerLayerWindows(32, 64, 128), longformer.ModeLongformer, 3, ""},
		{"bert mode", longformer.WindowSize(512), longformer.ModeBert, 12, ""},
		{"unknown mode", longformer.WindowSize(512), "n2", 12, "attention_mode"},
		{"empty mode", longformer.WindowSize(512), "", 12, "attention_mode"},
		{"odd window", longformer.WindowSize(511), longformer.ModeLongformer, 12, "attention_window"},
		{"zero window", longformer.WindowSize(0), longformer.ModeLongformer, 12, "attention_window"},
		{"negative window", longformer.WindowSize(-2), longformer.ModeLongformer, 12, "attention_window"},
		{"too few layers", longformer.PerLayerWindows(64, 64), longformer.ModeLongformer, 3, "attention_window"},
		{"too many layers", longformer.PerLayerWindows(64, 64, 64, 64), longformer.ModeLongformer, 3, "attention_window"},
		{"odd layer window", longformer.PerLayerWindows(64, 63, 64), longformer.ModeLongformer, 3, "attention_window[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := longformer.DefaultOptions()
			opts.NumHiddenLayers = tt.layers
			opts.AttentionWindow = tt.window
			opts.AttentionMode = tt.mode
			cfg, err := longformer.NewConfig(opts)
			require.NoError(t, err)

			err = cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var fieldErr *models.FieldError
			require.True(t, errors.As(err, &fieldErr), "expected a FieldError, got %v", err)
			assert.Equal(t, tt.field, fieldErr.Field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestParseConfig_PretrainedBase(t *testing.T) {
	// config.json of allenai/longformer-base-4096, attention_window shortened to 2 layers.
	configJSON := `{
		"attention_mode": "longformer",
		"attention_probs_dropout_prob": 0.1,
		"attention_window": [512, 512],
		"bos_token_id": 0,
		"eos_token_id": 2,
		"gradient_checkpointing": false,
		"hidden_act": "gelu",
		"hidden_dropout_prob": 0.1,
		"hidden_size": 768,
		"ignore_attention_mask": false,
		"initializer_range": 0.02,
		"intermediate_size": 3072,
		"layer_norm_eps": 1e-05,
		"max_position_embeddings": 4098,
		"model_type": "longformer",
		"num_attention_heads": 12,
		"num_hidden_layers": 2,
		"pad_token_id": 1,
		"sep_token_id": 2,
		"type_vocab_size": 1,
		"vocab_size": 50265
	}`

	cfg, err := longformer.ParseConfig([]byte(configJSON))
	require.NoError(t, err)

	assert.Equal(t, []int{512, 512}, cfg.AttentionWindow.PerLayer())
	assert.Equal(t, longformer.ModeLongformer, cfg.Mode())
	assert.Equal(t, 50265, cfg.VocabSize)
	assert.Equal(t, 4098, cfg.MaxPositionEmbeddings)
	assert.Equal(t, 1e-5, cfg.LayerNormEps)
	assert.Equal(t, 1, cfg.PadTokenID)
	assert.NoError(t, cfg.Validate())

	// Keys without a typed field survive in Raw.
	sep, ok := cfg.GetInt("sep_token_id")
	assert.True(t, ok)
	assert.Equal(t, 2, sep)
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := longformer.ParseConfig([]byte(`{"hidden_size": 64, "num_attention_heads": 4, "num_hidden_layers": 2}`))
	require.NoError(t, err)
	assert.Equal(t, "longformer", cfg.ModelType)
	assert.Equal(t, 512, cfg.AttentionWindow.Size())
	assert.Equal(t, longformer.ModeLongformer, cfg.Mode())
}

func TestParseConfig_WrongModelType(t *testing.T) {
	_, err := longformer.ParseConfig([]byte(`{"model_type": "bert"}`))
	assert.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		window longformer.AttentionWindow
	}{
		{"uniform", longformer.WindowSize(256)},
		{"per layer", longformer.PerLayerWindows(64, 64, 128)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := longformer.DefaultOptions()
			opts.NumHiddenLayers = 3
			opts.AttentionWindow = tt.window
			opts.AttentionMode = longformer.ModeBert
			cfg, err := longformer.NewConfig(opts)
			require.NoError(t, err)

			content, err := json.Marshal(cfg)
			require.NoError(t, err)

			parsed, err := longformer.ParseConfig(content)
			require.NoError(t, err)

			assert.Equal(t, tt.window.IsPerLayer(), parsed.AttentionWindow.IsPerLayer())
			assert.Equal(t, tt.window.Value(), parsed.AttentionWindow.Value())
			assert.Equal(t, longformer.ModeBert, parsed.Mode())

			want, err := cfg.ToMap()
			require.NoError(t, err)
			got, err := parsed.ToMap()
			require.NoError(t, err)
			// Numbers come back from JSON as float64.
			if diff := cmp.Diff(normalize(t, want), normalize(t, got)); diff != "" {
				t.Errorf("config changed through JSON (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := longformer.Default()
	cfg.Raw = map[string]interface{}{"sep_token_id": float64(2)}
	require.NoError(t, cfg.Save(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	parsed, err := longformer.ParseConfig(content)
	require.NoError(t, err)
	assert.Equal(t, 512, parsed.AttentionWindow.Size())

	sep, ok := parsed.GetInt("sep_token_id")
	assert.True(t, ok, "unknown keys should be written back")
	assert.Equal(t, 2, sep)
}

func TestPaddingLength(t *testing.T) {
	opts := longformer.DefaultOptions()
	opts.NumHiddenLayers = 2
	opts.AttentionWindow = longformer.PerLayerWindows(4, 8)
	cfg, err := longformer.NewConfig(opts)
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.PaddingLength(16))
	assert.Equal(t, 3, cfg.PaddingLength(5))
	assert.Equal(t, 7, cfg.PaddingLength(9))
	assert.Equal(t, 0, cfg.PaddingLength(0))
}

func TestNumParameters(t *testing.T) {
	opts := longformer.DefaultOptions()
	opts.VocabSize = 10
	opts.HiddenSize = 4
	opts.NumAttentionHeads = 2
	opts.NumHiddenLayers = 1
	opts.IntermediateSize = 8
	opts.MaxPositionEmbeddings = 6
	opts.TypeVocabSize = 1

	cfg, err := longformer.NewConfig(opts)
	require.NoError(t, err)

	embeddings := int64((10+6+1)*4 + 2*4)
	dense := func(in, out int64) int64 { return in*out + out }
	layer := 6*dense(4, 4) + dense(4, 4) + 2*4 + dense(4, 8) + dense(8, 4) + 2*4
	assert.Equal(t, embeddings+layer+dense(4, 4), cfg.NumParameters())

	cfg.AttentionMode = longformer.ModeBert
	assert.Equal(t, embeddings+layer-3*dense(4, 4)+dense(4, 4), cfg.NumParameters())
}

func normalize(t *testing.T, m map[string]interface{}) map[string]interface{} {
	t.Helper()
	content, err := json.Marshal(m)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(content, &out))
	return out
}
