package run

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/portbridge/internal/app"
	"github.com/tphakala/portbridge/internal/runner"
)

// Command creates the run command, which keeps a bridge client active until interrupted
func Command(a *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bridge client",
		Long:  "Register the configured client and ports with the audio server and process audio until interrupted or the server shuts down.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, err := runner.Run(ctx, a.Settings)
			return err
		},
	}
}
