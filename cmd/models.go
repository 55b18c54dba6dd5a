package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bentoml/bento/format"
	"github.com/bentoml/bento/types/tag"
)

func NewModelsCmd() *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Manage the local model store",
	}

	listCmd := &cobra.Command{
		Use:     "list [NAME]",
		Aliases: []string{"ls"},
		Short:   "List models in the local store",
		Args:    cobra.MaximumNArgs(1),
		RunE:    modelListHandler,
	}

	getCmd := &cobra.Command{
		Use:   "get TAG",
		Short: "Print the manifest of a stored model",
		Args:  cobra.ExactArgs(1),
		RunE:  modelGetHandler,
	}

	deleteCmd := &cobra.Command{
		Use:     "delete TAG...",
		Aliases: []string{"rm"},
		Short:   "Delete one or more models from the local store",
		Args:    cobra.MinimumNArgs(1),
		RunE:    modelDeleteHandler,
	}

	modelsCmd.AddCommand(listCmd, getCmd, deleteCmd)
	return modelsCmd
}

func modelListHandler(cmd *cobra.Command, args []string) error {
	_, models, err := openStores()
	if err != nil {
		return err
	}
	entries, err := models.List()
	if err != nil {
		return err
	}

	var data [][]string
	for _, e := range entries {
		if len(args) > 0 && !strings.HasPrefix(strings.ToLower(e.Tag.Name), strings.ToLower(args[0])) {
			continue
		}
		module := ""
		if m, err := models.Get(e.Tag); err == nil {
			module = m.Info.Module
		}
		data = append(data, []string{e.Tag.String(), module, format.HumanBytes(e.Size), format.HumanTime(e.CreatedAt, "Never")})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"TAG", "MODULE", "SIZE", "CREATED"})
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

func modelGetHandler(cmd *cobra.Command, args []string) error {
	t, err := tag.Parse(args[0])
	if err != nil {
		return err
	}
	_, models, err := openStores()
	if err != nil {
		return err
	}
	m, err := models.Get(t)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(m.Info); err != nil {
		return err
	}
	return enc.Close()
}

func modelDeleteHandler(cmd *cobra.Command, args []string) error {
	_, models, err := openStores()
	if err != nil {
		return err
	}
	for _, arg := range args {
		t, err := tag.Parse(arg)
		if err != nil {
			return err
		}
		if err := models.Delete(t); err != nil {
			return err
		}
		fmt.Println("deleted", arg)
	}
	return nil
}
