// Package telemetry provides opt-in, privacy-filtered error reporting to Sentry
package telemetry

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/portbridge/internal/conf"
	"github.com/tphakala/portbridge/internal/errors"
	"github.com/tphakala/portbridge/internal/logger"
)

// DefaultFlushTimeout bounds how long Shutdown waits for queued events
const DefaultFlushTimeout = 2 * time.Second

var (
	mu          sync.Mutex
	initialized bool
)

// PlatformInfo holds privacy-safe platform information attached to events
type PlatformInfo struct {
	OS           string `json:"os"`
	Architecture string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	GoVersion    string `json:"go_version"`
}

func collectPlatformInfo() PlatformInfo {
	return PlatformInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}
}

func getLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

// Init starts Sentry reporting when settings.Enabled is set and routes
// enhanced errors to it. It reports whether reporting is active.
func Init(settings conf.SentrySettings, release string) (bool, error) {
	return initWithTransport(settings, release, nil)
}

func initWithTransport(settings conf.SentrySettings, release string, transport sentry.Transport) (bool, error) {
	if !settings.Enabled {
		getLogger().Debug("sentry telemetry is disabled (opt-in required)")
		return false, nil
	}

	mu.Lock()
	defer mu.Unlock()

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		Transport:        transport,
		Debug:            settings.Debug,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      settings.Environment,
		ServerName:       "",
		Release:          "portbridge@" + release,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return false, errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	platform := collectPlatformInfo()
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", platform.OS)
		scope.SetTag("arch", platform.Architecture)
		scope.SetContext("platform", map[string]any{
			"os":         platform.OS,
			"arch":       platform.Architecture,
			"num_cpu":    platform.NumCPU,
			"go_version": platform.GoVersion,
		})
	})

	errors.SetPrivacyScrubber(newMessageScrubber(settings.DSN))
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized = true

	getLogger().Info("sentry telemetry initialized",
		logger.String("environment", settings.Environment),
		logger.String("release", release))

	return true, nil
}

// Enabled reports whether Init activated reporting
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return initialized
}

// Shutdown flushes pending events and detaches the error reporter
func Shutdown(timeout time.Duration) bool {
	mu.Lock()
	defer mu.Unlock()

	if !initialized {
		return true
	}
	errors.SetTelemetryReporter(nil)
	errors.SetPrivacyScrubber(nil)
	initialized = false

	flushed := sentry.Flush(timeout)
	if !flushed {
		getLogger().Warn("sentry flush timed out", logger.Duration("timeout", timeout))
	}
	return flushed
}

var (
	ipv4Regex  = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?::\d+)?\b`)
	emailRegex = regexp.MustCompile(`[\w.+-]+@[\w-]+(?:\.[\w-]+)+`)
)

// newMessageScrubber redacts network addresses, email addresses and the
// configured DSN from error messages before they leave the host.
func newMessageScrubber(dsn string) errors.PrivacyScrubber {
	return func(message string) string {
		if dsn != "" {
			message = strings.ReplaceAll(message, dsn, "[DSN]")
		}
		message = emailRegex.ReplaceAllString(message, "[EMAIL]")
		return ipv4Regex.ReplaceAllString(message, "[IP]")
	}
}

// applyPrivacyFilters strips user, host and runtime details from an event
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}
