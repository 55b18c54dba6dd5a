package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"

	"github.com/bentoml/bento/envconfig"
)

func NewEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print the resolved bento environment configuration",
		Args:  cobra.ExactArgs(0),
		RunE:  envHandler,
	}
}

func envHandler(cmd *cobra.Command, args []string) error {
	vars := envconfig.AsMap()
	keys := maps.Keys(vars)
	sort.Strings(keys)

	var data [][]string
	for _, k := range keys {
		ev := vars[k]
		data = append(data, []string{ev.Name, fmt.Sprintf("%v", ev.Value), ev.Description})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"NAME", "VALUE", "DESCRIPTION"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}
