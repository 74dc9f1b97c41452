package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ajroetker/longformer-gomlx"
)

// ListHandler lists the registered pretrained configurations and architectures.
func ListHandler(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	var data [][]string
	for _, name := range models.ListPretrained() {
		if len(args) > 0 && !strings.HasPrefix(name, args[0]) {
			continue
		}
		p, _ := models.LookupPretrained(name)
		repo := p.RepoID
		if repo == "" {
			repo = "-"
		}
		data = append(data, []string{p.Name, p.ModelType, repo, p.ConfigURL})
	}

	renderTable(w, []string{"NAME", "MODEL TYPE", "REPOSITORY", "CONFIG URL"}, data)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Architectures: %s\n", strings.Join(models.ListArchitectures(), ", "))
	return nil
}

func renderTable(w io.Writer, header []string, data [][]string) {
	table := tablewriter.NewWriter(w)
	if header != nil {
		table.SetHeader(header)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetHeaderLine(false)
	}
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list [PREFIX]",
		Aliases: []string{"ls"},
		Short:   "List pretrained configurations",
		Args:    cobra.MaximumNArgs(1),
		RunE:    ListHandler,
	}
}
