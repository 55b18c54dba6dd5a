// Package cmd implements the bento command line interface. Commands work
// directly on the local stores under BENTOML_HOME; the serve command
// exposes the same stores over HTTP.
package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/bentoml/bento/bento"
	"github.com/bentoml/bento/envconfig"
	"github.com/bentoml/bento/model"
	"github.com/bentoml/bento/version"
)

func openStores() (*bento.Store, *model.Store, error) {
	bentos, err := bento.NewStore(envconfig.BentoStoreDir())
	if err != nil {
		return nil, nil, err
	}
	models, err := model.NewStore(envconfig.ModelStoreDir())
	if err != nil {
		return nil, nil, err
	}
	return bentos, models, nil
}

func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:     "bento",
		Short:   "Build, store and ship bento service archives",
		Version: version.Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
		},
	}

	rootCmd.AddCommand(
		NewBuildCmd(),
		NewListCmd(),
		NewGetCmd(),
		NewDeleteCmd(),
		NewExportCmd(),
		NewImportCmd(),
		NewModelsCmd(),
		NewEnvCmd(),
		NewServeCmd(),
	)

	return rootCmd
}
