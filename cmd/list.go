package cmd

import (
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/bentoml/bento/format"
)

func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list [NAME]",
		Aliases: []string{"ls"},
		Short:   "List bentos in the local store",
		Args:    cobra.MaximumNArgs(1),
		RunE:    listHandler,
	}

	return cmd
}

func listHandler(cmd *cobra.Command, args []string) error {
	bentos, _, err := openStores()
	if err != nil {
		return err
	}
	entries, err := bentos.List()
	if err != nil {
		return err
	}

	var data [][]string
	for _, e := range entries {
		if len(args) == 0 || strings.HasPrefix(strings.ToLower(e.Tag.Name), strings.ToLower(args[0])) {
			data = append(data, []string{e.Tag.String(), format.HumanBytes(e.Size), format.HumanTime(e.CreatedAt, "Never")})
		}
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"TAG", "SIZE", "CREATED"})
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
