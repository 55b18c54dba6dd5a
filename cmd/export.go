package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bentoml/bento/progress"
	"github.com/bentoml/bento/types/tag"
)

func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export TAG DESTINATION",
		Short: "Export a stored bento as an archive, bundling its models",
		Args:  cobra.ExactArgs(2),
		RunE:  exportHandler,
	}

	cmd.Flags().String("format", "", "Archive format: bento, gz or zip (default from the destination)")
	cmd.Flags().String("subpath", "", "Directory inside a zip destination to write under")
	return cmd
}

func exportHandler(cmd *cobra.Command, args []string) error {
	t, err := tag.Parse(args[0])
	if err != nil {
		return err
	}
	bentos, models, err := openStores()
	if err != nil {
		return err
	}
	b, err := bentos.Get(t)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	subpath, _ := cmd.Flags().GetString("subpath")

	p := progress.NewProgress(os.Stderr)
	defer p.Stop()
	p.Add(progress.NewSpinner(fmt.Sprintf("exporting %s", b.Tag())))

	out, err := b.Export(args[1], format, subpath, models)
	if err != nil {
		p.StopAndClear()
		return err
	}
	p.StopAndClear()

	fmt.Println(out)
	return nil
}
