package otel

import (
	"os"
	"sync/atomic"
)

// tracing gates the high-volume events: one per keystroke and one per live
// merge. Starts from VIBESPHERE_TRACE; the client's -trace flag turns it on.
var tracing atomic.Bool

func init() {
	tracing.Store(os.Getenv("VIBESPHERE_TRACE") != "")
}

// TraceEnabled reports whether high-volume events should be emitted.
func TraceEnabled() bool {
	return tracing.Load()
}

// SetTraceEnabled switches high-volume events on or off.
func SetTraceEnabled(v bool) {
	tracing.Store(v)
}
