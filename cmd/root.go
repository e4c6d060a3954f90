// Package cmd wires the portbridge command line
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/portbridge/cmd/config"
	"github.com/tphakala/portbridge/cmd/devices"
	"github.com/tphakala/portbridge/cmd/render"
	"github.com/tphakala/portbridge/cmd/run"
	"github.com/tphakala/portbridge/internal/app"
)

// RootCommand creates and returns the root command
func RootCommand(version string) *cobra.Command {
	a := &app.App{Version: version}

	rootCmd := &cobra.Command{
		Use:           "portbridge",
		Short:         "Real-time audio callback bridge",
		Long:          "portbridge registers a client with an audio server and runs a processing routine on every block the server delivers.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, a)

	rootCmd.AddCommand(
		run.Command(a),
		render.Command(a),
		devices.Command(a),
		config.Command(a),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return a.Setup(cmd.Flags())
	}
	rootCmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		return a.Shutdown()
	}

	return rootCmd
}

// Execute runs the root command and exits non-zero on failure
func Execute(version string) {
	rootCmd := RootCommand(version)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupFlags defines the flags shared by all subcommands. Their names match
// the config bindings so a set flag overrides file and environment values.
func setupFlags(rootCmd *cobra.Command, a *app.App) {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.ConfigFile, "config", "c", "", "Path to config file (default: search ./, ~/.config/portbridge, /etc/portbridge)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("name", "", "Client name registered with the audio server")
	flags.Int("inputs", 0, "Number of input ports")
	flags.Int("outputs", 0, "Number of output ports")
	flags.String("backend", "", "Audio server backend (jack, malgo, offline)")
	flags.String("device", "", "Soundcard for the malgo backend (\"default\", \"USB Audio\", \":0,0\", etc.)")
	flags.Int("sample-rate", 0, "Sample rate in Hz for the malgo and offline backends")
	flags.Int("period", 0, "Frames per period for the malgo and offline backends")
	flags.String("routine", "", "Processing routine (passthrough, silence)")
	flags.Bool("monitor", false, "Periodically report port peak levels")
	flags.String("log-level", "", "Default log level (trace, debug, info, warn, error)")
	flags.String("metrics-textfile", "", "Prometheus textfile path for node_exporter, used when metrics.enabled is set")
}
