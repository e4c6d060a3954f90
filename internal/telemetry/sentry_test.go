package telemetry

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/portbridge/internal/conf"
	"github.com/tphakala/portbridge/internal/errors"
)

func TestInitDisabled(t *testing.T) {
	active, err := Init(conf.SentrySettings{Enabled: false}, "test")
	require.NoError(t, err)
	assert.False(t, active)
	assert.False(t, Enabled())
	assert.True(t, Shutdown(DefaultFlushTimeout), "shutdown without init is a no-op")
}

func TestEnhancedErrorsAreReported(t *testing.T) {
	transport := NewMockTransport()
	active, err := initWithTransport(conf.SentrySettings{
		Enabled:     true,
		Environment: "test",
	}, "test", transport)
	require.NoError(t, err)
	require.True(t, active)
	t.Cleanup(func() { Shutdown(DefaultFlushTimeout) })

	built := errors.Newf("port registration refused for /home/alice/session").
		Component("bridge").
		Category(errors.CategoryPortRegistration).
		Context("port", "in_0").
		Build()

	events := transport.Events()
	require.Len(t, events, 1)
	event := events[0]
	assert.Equal(t, "bridge", event.Tags["component"])
	assert.Equal(t, string(errors.CategoryPortRegistration), event.Tags["category"])
	assert.Contains(t, event.Message, "/home/[USER]")
	assert.NotContains(t, event.Message, "alice")
	assert.Equal(t, "portbridge@test", event.Release)
	assert.True(t, event.Timestamp.Equal(built.GetTimestamp()), "event time is when the error was built")

	require.True(t, Shutdown(DefaultFlushTimeout))
	assert.False(t, Enabled())

	_ = errors.Newf("after shutdown").Component("bridge").Build()
	assert.Len(t, transport.Events(), 1, "no reporting after shutdown")
}

func TestApplyPrivacyFilters(t *testing.T) {
	event := sentry.NewEvent()
	event.ServerName = "studio-host"
	event.User = sentry.User{ID: "42"}
	event.Contexts["os"] = sentry.Context{"name": "linux"}
	event.Contexts["platform"] = sentry.Context{"arch": "amd64"}
	event.Extra["component"] = "bridge"
	event.Extra["path"] = "/home/alice"
	event.Tags["hostname"] = "studio-host"

	filtered := applyPrivacyFilters(event)

	assert.Empty(t, filtered.ServerName)
	assert.True(t, filtered.User.IsEmpty())
	assert.NotContains(t, filtered.Contexts, "os")
	assert.Contains(t, filtered.Contexts, "platform")
	assert.Equal(t, map[string]any{"component": "bridge"}, filtered.Extra)
	assert.NotContains(t, filtered.Tags, "hostname")
}

func TestMessagesAreScrubbedBeforeSending(t *testing.T) {
	transport := NewMockTransport()
	_, err := initWithTransport(conf.SentrySettings{Enabled: true}, "test", transport)
	require.NoError(t, err)
	t.Cleanup(func() { Shutdown(DefaultFlushTimeout) })

	_ = errors.Newf("netjack peer 192.168.1.20:19000 dropped, owner ops@studio.example").
		Component("server.jack").
		Category(errors.CategoryConnection).
		Build()

	events := transport.Events()
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Message, "[IP]")
	assert.Contains(t, events[0].Message, "[EMAIL]")
	assert.NotContains(t, events[0].Message, "192.168.1.20")
	assert.NotContains(t, events[0].Message, "ops@studio.example")
}

func TestMessageScrubber(t *testing.T) {
	const dsn = "https://abc@o1.ingest.example/7"
	scrub := newMessageScrubber(dsn)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "ipv4 with port", in: "peer 10.0.0.5:4713 lost", want: "peer [IP] lost"},
		{name: "email", in: "contact a.b+c@host.example", want: "contact [EMAIL]"},
		{name: "dsn", in: "dsn " + dsn + " rejected", want: "dsn [DSN] rejected"},
		{name: "port names untouched", in: "system:capture_1 in_0", want: "system:capture_1 in_0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scrub(tt.in))
		})
	}
}
