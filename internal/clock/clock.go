// Package clock provides the monotonic millisecond time base used for
// recognition timestamps.
package clock

import "time"

// Clock returns monotonic milliseconds. Values never decrease for a given Clock.
type Clock interface {
	NowMs() int64
}

// Monotonic measures elapsed time since its creation using the runtime's
// monotonic clock reading, so wall-clock adjustments never move it backwards.
type Monotonic struct {
	origin time.Time
}

// NewMonotonic returns a Clock whose zero is the moment of the call.
// The first reading is offset by one millisecond so that zero stays free to
// mean "unstamped" on frames.
func NewMonotonic() *Monotonic {
	return &Monotonic{origin: time.Now().Add(-time.Millisecond)}
}

// NowMs returns milliseconds elapsed since origin.
func (m *Monotonic) NowMs() int64 {
	return time.Since(m.origin).Milliseconds()
}

// process is shared by every producer in the process so frames from different
// sources stay on one time base.
var process = NewMonotonic()

// Process returns the process-wide monotonic clock.
func Process() Clock { return process }

// Func adapts a function to Clock. Used by tests to script timestamps.
type Func func() int64

// NowMs calls f.
func (f Func) NowMs() int64 { return f() }
