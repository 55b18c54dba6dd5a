package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bentoml/bento/bento"
	"github.com/bentoml/bento/bentofile"
	"github.com/bentoml/bento/progress"
	"github.com/bentoml/bento/vfs"
)

func NewBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [CONTEXT]",
		Short: "Build a bento from a bentofile and save it into the local store",
		Args:  cobra.MaximumNArgs(1),
		RunE:  buildHandler,
	}

	cmd.Flags().StringP("bentofile", "f", "", "Path to the build config (default CONTEXT/"+bentofile.DefaultFilename+")")
	cmd.Flags().String("version", "", "Version for the built bento (generated when omitted)")
	cmd.Flags().StringArray("arg", nil, "Template argument as key=value; repeatable")
	return cmd
}

// parseBuildArgs turns repeated --arg key=value flags into the template
// argument map.
func parseBuildArgs(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --arg %q, expected key=value", arg)
		}
		out[k] = v
	}
	return out, nil
}

func buildHandler(cmd *cobra.Command, args []string) error {
	buildCtx := "."
	if len(args) == 1 {
		buildCtx = args[0]
	}
	buildCtx, err := filepath.Abs(buildCtx)
	if err != nil {
		return err
	}
	if fi, err := os.Stat(buildCtx); err != nil {
		return err
	} else if !fi.IsDir() {
		return fmt.Errorf("build context %q is not a directory", buildCtx)
	}

	configPath, _ := cmd.Flags().GetString("bentofile")
	if configPath == "" {
		configPath = filepath.Join(buildCtx, bentofile.DefaultFilename)
	}
	rawArgs, _ := cmd.Flags().GetStringArray("arg")
	buildArgs, err := parseBuildArgs(rawArgs)
	if err != nil {
		return err
	}
	cfg, err := bentofile.ReadFile(configPath, buildArgs)
	if err != nil {
		return err
	}

	bentos, models, err := openStores()
	if err != nil {
		return err
	}

	p := progress.NewProgress(os.Stderr)
	defer p.Stop()
	p.Add(progress.NewSpinner("building bento"))

	ver, _ := cmd.Flags().GetString("version")
	b, err := bento.Create(cfg, ver, vfs.Dir(buildCtx), models)
	if err != nil {
		p.StopAndClear()
		return err
	}
	if err := b.Save(bentos, models); err != nil {
		p.StopAndClear()
		return err
	}
	p.StopAndClear()

	fmt.Println("built", b.Tag())
	return nil
}
