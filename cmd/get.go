package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/bentoml/bento/types/tag"
)

func NewGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get TAG",
		Short: "Print the manifest of a stored bento",
		Args:  cobra.ExactArgs(1),
		RunE:  getHandler,
	}
}

func getHandler(cmd *cobra.Command, args []string) error {
	t, err := tag.Parse(args[0])
	if err != nil {
		return err
	}
	bentos, _, err := openStores()
	if err != nil {
		return err
	}
	b, err := bentos.Get(t)
	if err != nil {
		return err
	}
	return b.Info().Encode(os.Stdout)
}
