// Package conf loads, validates and saves portbridge settings.
//
// Settings come from, in increasing precedence: built-in defaults, a YAML
// config file, PORTBRIDGE_* environment variables and command line flags.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/portbridge/internal/errors"
	"github.com/tphakala/portbridge/internal/logger"
)

// Server backends
const (
	BackendJack    = "jack"
	BackendMalgo   = "malgo"
	BackendOffline = "offline"
)

// Processing routines selectable from config
const (
	RoutinePassthrough = "passthrough"
	RoutineSilence     = "silence"
)

// ClientSettings describes the bridge client identity and port layout
type ClientSettings struct {
	Name    string `yaml:"name" mapstructure:"name"`       // client name registered with the server
	Inputs  int    `yaml:"inputs" mapstructure:"inputs"`   // number of input ports
	Outputs int    `yaml:"outputs" mapstructure:"outputs"` // number of output ports
}

// ServerSettings selects and configures the audio server backend
type ServerSettings struct {
	Backend        string `yaml:"backend" mapstructure:"backend"`               // jack, malgo or offline
	NoStartServer  bool   `yaml:"nostartserver" mapstructure:"nostartserver"`   // jack: do not autostart a server
	SampleRate     int    `yaml:"samplerate" mapstructure:"samplerate"`         // malgo/offline sample rate in Hz
	PeriodFrames   int    `yaml:"periodframes" mapstructure:"periodframes"`     // malgo/offline frames per period
	MaxBlockFrames int    `yaml:"maxblockframes" mapstructure:"maxblockframes"` // largest block delivered to a client
	Device         string `yaml:"device" mapstructure:"device"`                 // malgo: device name or ID substring, empty for default
}

// RoutineSettings selects the processing routine used by the run command
type RoutineSettings struct {
	Name string `yaml:"name" mapstructure:"name"` // passthrough or silence
}

// MonitorSettings controls the periodic peak meter log
type MonitorSettings struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// MetricsSettings controls prometheus textfile export
type MetricsSettings struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Textfile string        `yaml:"textfile" mapstructure:"textfile"` // node_exporter textfile collector target
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// SentrySettings controls error telemetry
type SentrySettings struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN         string `yaml:"dsn" mapstructure:"dsn"`
	Environment string `yaml:"environment" mapstructure:"environment"`
	Debug       bool   `yaml:"debug" mapstructure:"debug"`
}

// Settings contains all configuration options for portbridge
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Client  ClientSettings       `yaml:"client" mapstructure:"client"`
	Server  ServerSettings       `yaml:"server" mapstructure:"server"`
	Routine RoutineSettings      `yaml:"routine" mapstructure:"routine"`
	Monitor MonitorSettings      `yaml:"monitor" mapstructure:"monitor"`
	Logging logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Metrics MetricsSettings      `yaml:"metrics" mapstructure:"metrics"`
	Sentry  SentrySettings       `yaml:"sentry" mapstructure:"sentry"`
}

// settingsInstance is the most recently loaded settings
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// flagBindings maps command line flag names to config keys
var flagBindings = map[string]string{
	"debug":            "debug",
	"name":             "client.name",
	"inputs":           "client.inputs",
	"outputs":          "client.outputs",
	"backend":          "server.backend",
	"device":           "server.device",
	"sample-rate":      "server.samplerate",
	"period":           "server.periodframes",
	"routine":          "routine.name",
	"monitor":          "monitor.enabled",
	"log-level":        "logging.default_level",
	"metrics-textfile": "metrics.textfile",
}

// Load reads defaults, the config file, environment and flags into a new Settings.
// An empty configFile searches the default config paths; a missing file there is not an error.
// flags may be nil.
func Load(configFile string, flags *pflag.FlagSet) (*Settings, error) {
	v, err := newViper(configFile, flags)
	if err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal-config").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryValidation).
			Context("operation", "validate-config").
			Build()
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// newViper builds an isolated viper instance so repeated loads never share state
func newViper(configFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := validateEnvVars(v); err != nil {
		return nil, err
	}

	if err := readConfigFile(v, configFile); err != nil {
		return nil, err
	}

	if flags != nil {
		for name, key := range flagBindings {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errors.New(err).
					Category(errors.CategoryConfiguration).
					Context("operation", "bind-flag").
					Context("flag", name).
					Build()
			}
		}
	}

	return v, nil
}

func readConfigFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.New(err).
				Category(errors.CategoryFileIO).
				Context("operation", "read-config").
				Context("config_file", configFile).
				Build()
		}
		return nil
	}

	v.SetConfigName("config")
	for _, path := range GetDefaultConfigPaths() {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.New(err).
			Category(errors.CategoryFileParsing).
			Context("operation", "read-config").
			Build()
	}
	return nil
}

// GetSettings returns the settings from the last successful Load, or nil
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetDefaultConfigPaths returns the directories searched for config.yaml, most specific first
func GetDefaultConfigPaths() []string {
	paths := []string{"."}

	homeDir, err := os.UserHomeDir()
	if runtime.GOOS == "windows" {
		if err == nil {
			paths = append(paths, filepath.Join(homeDir, "AppData", "Roaming", "portbridge"))
		}
		return paths
	}

	if err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "portbridge"))
	}
	return append(paths, "/etc/portbridge")
}

// DefaultConfigFile returns the path config init writes to
func DefaultConfigFile() string {
	paths := GetDefaultConfigPaths()
	if len(paths) > 1 {
		return filepath.Join(paths[1], "config.yaml")
	}
	return filepath.Join(paths[0], "config.yaml")
}

// Defaults returns settings populated only from built-in defaults
func Defaults() (*Settings, error) {
	v := viper.New()
	setDefaultConfig(v)

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling default settings: %w", err)
	}
	return settings, nil
}

// SaveYAMLConfig writes settings to configPath atomically.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "create-config-dir").
			Build()
	}

	// write to a temp file in the same directory so the rename is atomic
	tempFile, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "replace-config").
			Build()
	}

	return nil
}
