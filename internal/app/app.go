// Package app holds process-wide state shared by the command line tools:
// loaded settings, the central logger and telemetry.
package app

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/tphakala/portbridge/internal/conf"
	"github.com/tphakala/portbridge/internal/logger"
	"github.com/tphakala/portbridge/internal/telemetry"
)

// App is populated by Setup before a subcommand runs
type App struct {
	Version    string
	ConfigFile string
	Settings   *conf.Settings

	central *logger.CentralLogger
}

// Setup loads settings from the config file, environment and flags, then
// installs the global logger and starts telemetry if enabled
func (a *App) Setup(flags *pflag.FlagSet) error {
	settings, err := conf.Load(a.ConfigFile, flags)
	if err != nil {
		return err
	}
	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetGlobal(central)
	a.central = central
	a.Settings = settings

	if _, err := telemetry.Init(settings.Sentry, a.Version); err != nil {
		// telemetry is optional, a bad DSN must not stop the bridge
		central.Module("app").Warn("telemetry disabled", logger.Error(err))
	}
	return nil
}

// Shutdown flushes telemetry and closes the logger
func (a *App) Shutdown() error {
	telemetry.Shutdown(telemetry.DefaultFlushTimeout)
	if a.central == nil {
		return nil
	}
	return a.central.Close()
}
