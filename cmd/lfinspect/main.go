// Command lfinspect inspects Longformer configurations and checkpoints.
//
// Usage:
//
//	lfinspect list                                  # Pretrained configs and architectures
//	lfinspect config --window 256 --layers 6        # Build a config.json from options
//	lfinspect inspect longformer-base-4096          # Show a pretrained configuration
//	lfinspect inspect ./model --weights             # Show the weight mapping of a local model
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	// Import architectures to register them.
	_ "github.com/ajroetker/longformer-gomlx/architectures/longformer"
)

func main() {
	defer klog.Flush()
	if err := NewCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewCLI returns the root command.
func NewCLI() *cobra.Command {
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)

	rootCmd := &cobra.Command{
		Use:           "lfinspect",
		Short:         "Inspect Longformer configurations and checkpoints",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)

	rootCmd.AddCommand(
		newListCmd(),
		newConfigCmd(),
		newInspectCmd(),
	)
	return rootCmd
}
