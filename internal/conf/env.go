// env.go - Environment variable validation for portbridge
package conf

import (
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/viper"

	"github.com/tphakala/portbridge/internal/errors"
)

// EnvPrefix is prepended to every environment variable, e.g. PORTBRIDGE_CLIENT_NAME
const EnvPrefix = "PORTBRIDGE"

// envBinding holds metadata for environment variables that get validated before use
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "PORTBRIDGE_DEBUG", validateEnvBool},
		{"client.inputs", "PORTBRIDGE_CLIENT_INPUTS", validateEnvPortCount},
		{"client.outputs", "PORTBRIDGE_CLIENT_OUTPUTS", validateEnvPortCount},
		{"server.backend", "PORTBRIDGE_SERVER_BACKEND", validateEnvBackend},
		{"server.samplerate", "PORTBRIDGE_SERVER_SAMPLERATE", validateEnvPositiveInt},
		{"server.periodframes", "PORTBRIDGE_SERVER_PERIODFRAMES", validateEnvPositiveInt},
		{"server.maxblockframes", "PORTBRIDGE_SERVER_MAXBLOCKFRAMES", validateEnvPositiveInt},
		{"sentry.dsn", "PORTBRIDGE_SENTRY_DSN", nil},
	}
}

// validateEnvVars rejects malformed values early so the error names the variable, not the config key
func validateEnvVars(v *viper.Viper) error {
	var problems []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			problems = append(problems, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		value, ok := os.LookupEnv(binding.EnvVar)
		if !ok || binding.Validate == nil {
			continue
		}
		if err := binding.Validate(value); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", binding.EnvVar, err))
		}
	}

	if len(problems) > 0 {
		return errors.New(ValidationError{Errors: problems}).
			Category(errors.CategoryConfiguration).
			Context("operation", "validate-env").
			Build()
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean %q", value)
	}
	return nil
}

func validateEnvPortCount(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer %q", value)
	}
	if n < 0 || n > MaxPorts {
		return fmt.Errorf("port count %d out of range 0..%d", n, MaxPorts)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer %q", value)
	}
	if n <= 0 {
		return fmt.Errorf("value %d must be positive", n)
	}
	return nil
}

func validateEnvBackend(value string) error {
	if !slices.Contains([]string{BackendJack, BackendMalgo, BackendOffline}, value) {
		return fmt.Errorf("unknown backend %q", value)
	}
	return nil
}
