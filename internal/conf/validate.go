// conf/validate.go

package conf

import (
	"fmt"
	"slices"
	"strings"
)

// Limits shared with the audio server backends
const (
	// MaxClientNameLength is the JACK client name limit without the terminating NUL
	MaxClientNameLength = 63
	// MaxPorts caps each direction of the port layout
	MaxPorts = 256
)

var validLogLevels = []string{"trace", "debug", "info", "warn", "error"}

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateClientSettings(&settings.Client)...)
	ve.Errors = append(ve.Errors, validateServerSettings(&settings.Server)...)

	if !slices.Contains([]string{RoutinePassthrough, RoutineSilence}, settings.Routine.Name) {
		ve.Errors = append(ve.Errors, fmt.Sprintf("unknown routine %q", settings.Routine.Name))
	}

	if settings.Monitor.Enabled && settings.Monitor.Interval <= 0 {
		ve.Errors = append(ve.Errors, "monitor interval must be positive")
	}

	ve.Errors = append(ve.Errors, validateLoggingLevels(settings)...)

	if settings.Metrics.Enabled {
		if settings.Metrics.Textfile == "" {
			ve.Errors = append(ve.Errors, "metrics textfile path is required when metrics are enabled")
		}
		if settings.Metrics.Interval <= 0 {
			ve.Errors = append(ve.Errors, "metrics interval must be positive")
		}
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry DSN is required when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateClientSettings(c *ClientSettings) []string {
	var errs []string

	switch {
	case strings.TrimSpace(c.Name) == "":
		errs = append(errs, "client name must not be empty")
	case len(c.Name) > MaxClientNameLength:
		errs = append(errs, fmt.Sprintf("client name exceeds %d characters", MaxClientNameLength))
	case strings.Contains(c.Name, ":"):
		errs = append(errs, "client name must not contain ':'")
	}

	if c.Inputs < 0 || c.Outputs < 0 {
		errs = append(errs, "port counts must not be negative")
	}
	if c.Inputs+c.Outputs == 0 {
		errs = append(errs, "at least one input or output port is required")
	}
	if c.Inputs > MaxPorts || c.Outputs > MaxPorts {
		errs = append(errs, fmt.Sprintf("port counts must not exceed %d", MaxPorts))
	}

	return errs
}

func validateServerSettings(s *ServerSettings) []string {
	var errs []string

	if !slices.Contains([]string{BackendJack, BackendMalgo, BackendOffline}, s.Backend) {
		errs = append(errs, fmt.Sprintf("unknown server backend %q", s.Backend))
	}

	// the JACK server dictates rate and period
	if s.Backend != BackendJack {
		if s.SampleRate <= 0 {
			errs = append(errs, "sample rate must be positive")
		}
		if s.PeriodFrames <= 0 {
			errs = append(errs, "period frames must be positive")
		}
	}

	if s.MaxBlockFrames <= 0 {
		errs = append(errs, "max block frames must be positive")
	} else if s.PeriodFrames > s.MaxBlockFrames {
		errs = append(errs, fmt.Sprintf("period frames %d exceed max block frames %d", s.PeriodFrames, s.MaxBlockFrames))
	}

	return errs
}

func validateLoggingLevels(settings *Settings) []string {
	var errs []string

	check := func(what, level string) {
		if level != "" && !slices.Contains(validLogLevels, level) {
			errs = append(errs, fmt.Sprintf("invalid %s log level %q", what, level))
		}
	}

	check("default", settings.Logging.DefaultLevel)
	if settings.Logging.Console != nil {
		check("console", settings.Logging.Console.Level)
	}
	if settings.Logging.FileOutput != nil {
		check("file", settings.Logging.FileOutput.Level)
	}
	for module, level := range settings.Logging.ModuleLevels {
		check("module "+module, level)
	}

	return errs
}
