package sink

import (
	"fmt"

	"github.com/e7canasta/senyas-gesture/gesture"
)

// Fanout forwards every observation to each sink in order.
//
// A panicking sink does not stop delivery to the ones after it. Once every
// sink has been called, the first panic is re-raised as an error so the
// coordinator reports it as a SinkFault.
type Fanout []gesture.ResultSink

func (f Fanout) OnGesture(label string, score float32) {
	f.each(func(s gesture.ResultSink) { s.OnGesture(label, score) })
}

// OnObservation forwards the full observation to sinks that accept it.
func (f Fanout) OnObservation(obs gesture.Observation) {
	f.each(func(s gesture.ResultSink) {
		if os, ok := s.(gesture.ObservationSink); ok {
			os.OnObservation(obs)
			return
		}
		s.OnGesture(obs.Label, obs.Score)
	})
}

func (f Fanout) each(call func(gesture.ResultSink)) {
	var first any
	panicked := 0
	for _, s := range f {
		if r := deliver(s, call); r != nil {
			if first == nil {
				first = r
			}
			panicked++
		}
	}
	if panicked > 0 {
		panic(fmt.Errorf("sink: %d of %d sinks panicked: %v", panicked, len(f), first))
	}
}

func deliver(s gesture.ResultSink, call func(gesture.ResultSink)) (recovered any) {
	defer func() { recovered = recover() }()
	call(s)
	return nil
}
