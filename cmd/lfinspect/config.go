package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ajroetker/longformer-gomlx/architectures/longformer"
)

// optionFlags maps command line flags to config.json option names.
var optionFlags = []struct {
	flag, option, usage string
}{
	{"layers", "num_hidden_layers", "number of hidden layers"},
	{"hidden-size", "hidden_size", "hidden size"},
	{"heads", "num_attention_heads", "number of attention heads"},
	{"intermediate-size", "intermediate_size", "feed forward size"},
	{"max-positions", "max_position_embeddings", "number of position embeddings"},
	{"vocab-size", "vocab_size", "vocabulary size"},
}

// ConfigHandler builds a Longformer configuration from flags and prints or saves it.
func ConfigHandler(cmd *cobra.Command, args []string) error {
	options, err := configOptions(cmd)
	if err != nil {
		return err
	}

	cfg, err := longformer.NewConfigFromMap(options)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if output, _ := cmd.Flags().GetString("output"); output != "" {
		if err := cfg.Save(output); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s parameters)\n", output, humanize.Comma(cfg.NumParameters()))
		return nil
	}

	format, _ := cmd.Flags().GetString("format")
	return writeConfig(cmd.OutOrStdout(), cfg, format)
}

func configOptions(cmd *cobra.Command) (map[string]interface{}, error) {
	flags := cmd.Flags()
	options := make(map[string]interface{})

	if flags.Changed("window") {
		window, _ := flags.GetIntSlice("window")
		if len(window) == 1 {
			options["attention_window"] = window[0]
		} else {
			options["attention_window"] = window
		}
	}
	if flags.Changed("mode") {
		mode, _ := flags.GetString("mode")
		options["attention_mode"] = mode
	}
	for _, f := range optionFlags {
		if flags.Changed(f.flag) {
			v, _ := flags.GetInt(f.flag)
			options[f.option] = v
		}
	}

	sets, _ := flags.GetStringArray("set")
	for _, kv := range sets {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, errors.Errorf("invalid --set %q, expected key=value", kv)
		}
		var value interface{}
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, errors.Wrapf(err, "invalid value for %s", key)
		}
		options[key] = value
	}
	return options, nil
}

func writeConfig(w io.Writer, cfg *longformer.Config, format string) error {
	m, err := cfg.ToMap()
	if err != nil {
		return err
	}

	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(m)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(m); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return errors.Errorf("unknown format %q, expected json or yaml", format)
	}
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Build a Longformer config.json",
		Long: `Build a Longformer config.json from the default configuration.

Any config.json key can be set with --set key=value; values are parsed as YAML,
so --set attention_window=[64,128] gives a per-layer window.`,
		Args: cobra.NoArgs,
		RunE: ConfigHandler,
	}

	flags := configCmd.Flags()
	flags.IntSlice("window", nil, "attention window, one value for every layer or one per layer")
	flags.String("mode", string(longformer.ModeLongformer), "attention mode (longformer or bert)")
	for _, f := range optionFlags {
		flags.Int(f.flag, 0, f.usage)
	}
	flags.StringArray("set", nil, "set a config.json key (key=value)")
	flags.String("format", "json", "output format (json or yaml)")
	flags.StringP("output", "o", "", "write config.json to a file")
	return configCmd
}
