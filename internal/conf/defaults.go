// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
// Every key that may come from the environment needs a default so viper knows about it.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("client.name", "portbridge")
	v.SetDefault("client.inputs", 2)
	v.SetDefault("client.outputs", 2)

	v.SetDefault("server.backend", BackendJack)
	v.SetDefault("server.nostartserver", true)
	v.SetDefault("server.samplerate", 48000)
	v.SetDefault("server.periodframes", 256)
	v.SetDefault("server.maxblockframes", 4096)
	v.SetDefault("server.device", "")

	v.SetDefault("routine.name", RoutinePassthrough)

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.interval", 5*time.Second)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/portbridge.log")
	v.SetDefault("logging.file_output.level", "info")
	v.SetDefault("logging.module_levels", map[string]string{})

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("metrics.interval", 15*time.Second)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.debug", false)
}
