package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bentoml/bento/types/tag"
)

func NewDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete TAG...",
		Aliases: []string{"rm"},
		Short:   "Delete one or more bentos from the local store",
		Args:    cobra.MinimumNArgs(1),
		RunE:    deleteHandler,
	}
}

func deleteHandler(cmd *cobra.Command, args []string) error {
	bentos, _, err := openStores()
	if err != nil {
		return err
	}
	for _, arg := range args {
		t, err := tag.Parse(arg)
		if err != nil {
			return err
		}
		if err := bentos.Delete(t); err != nil {
			return err
		}
		fmt.Println("deleted", arg)
	}
	return nil
}
