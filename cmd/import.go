package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bentoml/bento/bento"
	"github.com/bentoml/bento/progress"
)

func NewImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import SOURCE",
		Short: "Import a bento archive into the local store",
		Args:  cobra.ExactArgs(1),
		RunE:  importHandler,
	}

	cmd.Flags().String("format", "", "Archive format of the source (default detected from the extension)")
	cmd.Flags().Bool("no-save", false, "Inspect the archive and print its tag without saving it")
	return cmd
}

func importHandler(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	noSave, _ := cmd.Flags().GetBool("no-save")

	b, err := bento.Import(args[0], format)
	if err != nil {
		return err
	}
	defer b.Close()

	if noSave {
		fmt.Println(b.Tag())
		return nil
	}

	bentos, models, err := openStores()
	if err != nil {
		return err
	}

	p := progress.NewProgress(os.Stderr)
	defer p.Stop()
	p.Add(progress.NewSpinner(fmt.Sprintf("importing %s", b.Tag())))

	if err := b.Save(bentos, models); err != nil {
		p.StopAndClear()
		return err
	}
	p.StopAndClear()

	fmt.Println("imported", b.Tag())
	return nil
}
