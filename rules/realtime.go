//go:build ruleguard

// Package gorules defines custom linter rules for portbridge.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// NotificationPathAllocation flags allocation in the files that run on the
// audio server's real-time thread.
//
// process.go in internal/bridge runs once per block.
func NotificationPathAllocation(m dsl.Matcher) {
	m.Match(
		`make($*_)`,
		`append($*_)`,
		`new($_)`,
	).
		Where(m.File().Name.Matches(`^process\.go$`)).
		Report("no allocation on the notification path; size buffers when the client is constructed")
}

// NotificationPathBlocking flags logging, formatting and sleeping in
// notification path files.
func NotificationPathBlocking(m dsl.Matcher) {
	m.Match(
		`$l.Trace($*_)`,
		`$l.Debug($*_)`,
		`$l.Info($*_)`,
		`$l.Warn($*_)`,
		`$l.Error($*_)`,
	).
		Where(m.File().Name.Matches(`^process\.go$`) && m["l"].Type.Implements(`github.com/tphakala/portbridge/internal/logger.Logger`)).
		Report("no logging on the notification path; report through the Observer instead")

	m.Match(
		`fmt.$_($*_)`,
		`time.Sleep($_)`,
	).
		Where(m.File().Name.Matches(`^process\.go$`)).
		Report("no formatting or sleeping on the notification path")
}

// EnhancedErrorWithoutCause flags enhanced errors built from a nil error.
//
//	errors.New(nil).Context("error", "device not found").Build()
//
// produces an error whose message is empty. Wrap a package sentinel instead.
func EnhancedErrorWithoutCause(m dsl.Matcher) {
	m.Import(`github.com/tphakala/portbridge/internal/errors`)

	m.Match(`errors.New(nil)`).
		Report("errors.New(nil) builds an error with no message; wrap a sentinel or use errors.Newf")
}

// SentinelComparison flags == comparisons against package sentinels, which
// miss wrapped errors.
func SentinelComparison(m dsl.Matcher) {
	m.Match(
		`$err == $sentinel`,
		`$err != $sentinel`,
	).
		Where(m["err"].Type.Is(`error`) &&
			m["sentinel"].Text.Matches(`^(\w+\.)?Err[A-Z]\w*$`)).
		Report("compare errors with errors.Is($err, $sentinel); sentinels are usually wrapped")
}
