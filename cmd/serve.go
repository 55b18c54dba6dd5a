package cmd

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bentoml/bento/envconfig"
	"github.com/bentoml/bento/server"
)

func NewServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the bento API server",
		Args:    cobra.ExactArgs(0),
		RunE:    serveHandler,
	}

	serveCmd.SetUsageTemplate(serveCmd.UsageTemplate() + `
Environment Variables:

    BENTOML_HOST       The host:port to bind to (default "127.0.0.1:3000")
    BENTOML_ORIGINS    A comma separated list of allowed origins
    BENTOML_HOME       The directory for local bento and model stores (default "~/bentoml")
`)

	return serveCmd
}

func serveHandler(cmd *cobra.Command, _ []string) error {
	host, err := envconfig.GetHost()
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host.Host, host.Port))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Serve(ctx, ln)
}
