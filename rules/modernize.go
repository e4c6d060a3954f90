//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo suggests wg.Go for the Add(1) plus deferred Done pattern (Go 1.25+).
func WaitGroupGo(m dsl.Matcher) {
	m.Match(
		`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`,
	).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done pattern (Go 1.25+)").
		Suggest("$wg.Go(func() { $body })")
}

// TestingContext suggests t.Context() over context.Background() in tests.
// The test context is cancelled when the test ends, which stops goroutines
// that goleak would otherwise report.
func TestingContext(m dsl.Matcher) {
	m.Match(
		`$ctx := context.Background()`,
		`$ctx := context.TODO()`,
		`$fn(context.Background(), $*args)`,
		`$fn(context.TODO(), $*args)`,
	).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("in tests, use t.Context() instead of a background context (Go 1.24+)")
}

// ClearBuiltin suggests clear() over zeroing loops.
//
// Output buffers are zeroed every block, so this pattern shows up in routines.
func ClearBuiltin(m dsl.Matcher) {
	m.Match(
		`for $i := range $s { $s[$i] = 0 }`,
	).
		Where(m["s"].Type.Is("[]float32") || m["s"].Type.Is("[]float64")).
		Report("use clear($s) to zero a sample buffer").
		Suggest("clear($s)")

	m.Match(
		`for $k := range $m { delete($m, $k) }`,
	).
		Report("use clear($m) instead of loop-based map clearing (Go 1.21+)").
		Suggest("clear($m)")
}

// DeferredTimeSince catches defer recordDuration(time.Since(start)), which
// evaluates time.Since when the defer statement runs rather than at return.
func DeferredTimeSince(m dsl.Matcher) {
	m.Match(`defer $fn($*_, time.Since($start), $*_)`).
		Report("time.Since($start) is evaluated when defer is declared; wrap the call in a closure")
}
