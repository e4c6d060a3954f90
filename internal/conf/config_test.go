package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/portbridge/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	settings, err := Defaults()
	require.NoError(t, err)

	assert.Equal(t, "portbridge", settings.Client.Name)
	assert.Equal(t, 2, settings.Client.Inputs)
	assert.Equal(t, 2, settings.Client.Outputs)
	assert.Equal(t, BackendJack, settings.Server.Backend)
	assert.True(t, settings.Server.NoStartServer)
	assert.Equal(t, 48000, settings.Server.SampleRate)
	assert.Equal(t, 256, settings.Server.PeriodFrames)
	assert.Equal(t, RoutinePassthrough, settings.Routine.Name)
	assert.Equal(t, 5*time.Second, settings.Monitor.Interval)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
	require.NoError(t, ValidateSettings(settings))
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
client:
  name: synth
  inputs: 0
  outputs: 1
server:
  backend: offline
  periodframes: 64
monitor:
  enabled: true
  interval: 250ms
logging:
  module_levels:
    bridge: debug
`)

	settings, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "synth", settings.Client.Name)
	assert.Equal(t, 0, settings.Client.Inputs)
	assert.Equal(t, 1, settings.Client.Outputs)
	assert.Equal(t, BackendOffline, settings.Server.Backend)
	assert.Equal(t, 64, settings.Server.PeriodFrames)
	assert.Equal(t, 250*time.Millisecond, settings.Monitor.Interval)
	assert.Equal(t, "debug", settings.Logging.ModuleLevels["bridge"])
	assert.Same(t, settings, GetSettings())
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, "client:\n  name: fromfile\n  inputs: 1\n")
	t.Setenv("PORTBRIDGE_CLIENT_NAME", "fromenv")
	t.Setenv("PORTBRIDGE_CLIENT_OUTPUTS", "3")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("inputs", 0, "")
	flags.String("name", "", "")
	require.NoError(t, flags.Parse([]string{"--inputs=4"}))

	settings, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "fromenv", settings.Client.Name, "env overrides file, unset flag does not override")
	assert.Equal(t, 4, settings.Client.Inputs, "set flag overrides file")
	assert.Equal(t, 3, settings.Client.Outputs)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("PORTBRIDGE_SERVER_BACKEND", "pulse")

	_, err := Load(writeConfig(t, "{}"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORTBRIDGE_SERVER_BACKEND")
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid defaults", func(*Settings) {}, ""},
		{"empty name", func(s *Settings) { s.Client.Name = " " }, "client name must not be empty"},
		{"long name", func(s *Settings) { s.Client.Name = string(make([]byte, 64)) }, "exceeds 63"},
		{"colon in name", func(s *Settings) { s.Client.Name = "a:b" }, "':'"},
		{"no ports", func(s *Settings) { s.Client.Inputs, s.Client.Outputs = 0, 0 }, "at least one"},
		{"negative ports", func(s *Settings) { s.Client.Inputs = -1 }, "negative"},
		{"too many ports", func(s *Settings) { s.Client.Outputs = MaxPorts + 1 }, "exceed"},
		{"bad backend", func(s *Settings) { s.Server.Backend = "pulse" }, "unknown server backend"},
		{"malgo zero rate", func(s *Settings) {
			s.Server.Backend = BackendMalgo
			s.Server.SampleRate = 0
		}, "sample rate"},
		{"jack ignores rate", func(s *Settings) { s.Server.SampleRate = 0 }, ""},
		{"period over max", func(s *Settings) { s.Server.PeriodFrames = 8192 }, "exceed max block frames"},
		{"bad routine", func(s *Settings) { s.Routine.Name = "reverb" }, "unknown routine"},
		{"monitor interval", func(s *Settings) {
			s.Monitor.Enabled = true
			s.Monitor.Interval = 0
		}, "monitor interval"},
		{"metrics without file", func(s *Settings) { s.Metrics.Enabled = true }, "textfile"},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "DSN"},
		{"bad module level", func(s *Settings) {
			s.Logging.ModuleLevels = map[string]string{"bridge": "loud"}
		}, "module bridge"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings, err := Defaults()
			require.NoError(t, err)
			tt.mutate(settings)

			err = ValidateSettings(settings)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var ve ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	settings, err := Defaults()
	require.NoError(t, err)
	settings.Client.Name = "saved"
	settings.Server.Backend = BackendMalgo
	settings.Metrics.Interval = 30 * time.Second

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveYAMLConfig(path, settings))

	loaded, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.Client.Name)
	assert.Equal(t, BackendMalgo, loaded.Server.Backend)
	assert.Equal(t, 30*time.Second, loaded.Metrics.Interval)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}
