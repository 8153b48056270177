package gesture

// ResultSink receives the top gesture of each recognized frame.
//
// Called from the coordinator's result goroutine, one call at a time, and
// never after Stop returns. Implementations must not block for long: the
// next result waits behind them.
type ResultSink interface {
	OnGesture(label string, score float32)
}

// ObservationSink is implemented by sinks that want the full observation
// (timestamp and hand index). The coordinator prefers it over OnGesture.
type ObservationSink interface {
	ResultSink
	OnObservation(obs Observation)
}

// SinkFunc adapts a function to ResultSink.
type SinkFunc func(label string, score float32)

// OnGesture calls f.
func (f SinkFunc) OnGesture(label string, score float32) { f(label, score) }

// ErrorFunc receives pipeline faults. Called from pipeline goroutines; must
// not call Start or Stop synchronously.
type ErrorFunc func(err error)
