package gesture

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/e7canasta/senyas-gesture/frame"
	"github.com/e7canasta/senyas-gesture/framesource"
	"github.com/e7canasta/senyas-gesture/recognizer"
)

// fakeEngine records requests and answers through respond.
type fakeEngine struct {
	mu        sync.Mutex
	requests  []int64
	events    *eventLog
	submitErr error
	// panicWith, when set, makes RecognizeAsync panic with it.
	panicWith any

	// respond, when set, produces a result for each accepted request.
	respond func(req recognizer.Request) *recognizer.Result

	// block, when set, makes RecognizeAsync wait on it after signalling entered.
	block   chan struct{}
	entered chan struct{}

	// late is pushed into the results channel during Close and drained
	// before the channel closes.
	late *recognizer.Result

	results    chan recognizer.Result
	closeCount atomic.Int32
	closed     atomic.Bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{results: make(chan recognizer.Result, 64)}
}

func (e *fakeEngine) RecognizeAsync(req recognizer.Request) error {
	if e.closed.Load() {
		return recognizer.ErrClosed
	}
	if e.block != nil {
		e.entered <- struct{}{}
		<-e.block
		e.events.add("submit-resolved")
	}
	if e.panicWith != nil {
		panic(e.panicWith)
	}
	if e.submitErr != nil {
		return e.submitErr
	}
	e.mu.Lock()
	e.requests = append(e.requests, req.TimestampMs)
	e.mu.Unlock()

	if e.respond != nil {
		if res := e.respond(req); res != nil {
			e.results <- *res
		}
	}
	return nil
}

func (e *fakeEngine) Results() <-chan recognizer.Result { return e.results }

func (e *fakeEngine) Close() error {
	e.closeCount.Add(1)
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.events.add("engine-closed")
	if e.late != nil {
		e.results <- *e.late
		deadline := time.Now().Add(time.Second)
		for len(e.results) > 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
	close(e.results)
	return nil
}

func (e *fakeEngine) timestamps() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int64(nil), e.requests...)
}

// eventLog captures ordering across goroutines. Nil-safe.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(ev string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type gestureCall struct {
	label string
	score float32
}

type recordingSink struct {
	mu    sync.Mutex
	calls []gestureCall
	panic bool
}

func (s *recordingSink) OnGesture(label string, score float32) {
	s.mu.Lock()
	s.calls = append(s.calls, gestureCall{label, score})
	shouldPanic := s.panic
	s.mu.Unlock()
	if shouldPanic {
		panic("sink exploded")
	}
}

func (s *recordingSink) list() []gestureCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gestureCall(nil), s.calls...)
}

type errorRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *errorRecorder) record(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *errorRecorder) list() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// fakeSource is a Provider whose Start can fail.
type fakeSource struct {
	startErr error
	started  atomic.Int32
	stopped  atomic.Int32
	rotation atomic.Int32
	out      framesource.Publisher
}

func (s *fakeSource) Start(_ context.Context, out framesource.Publisher, _ framesource.FaultFunc) error {
	s.started.Add(1)
	if s.startErr != nil {
		return s.startErr
	}
	s.out = out
	return nil
}

func (s *fakeSource) Stop() error {
	s.stopped.Add(1)
	return nil
}

func (s *fakeSource) Stats() framesource.Stats {
	return framesource.Stats{RotationDegrees: int(s.rotation.Load())}
}

func (s *fakeSource) SetRotation(deg int) error {
	s.rotation.Store(int32(deg))
	return nil
}

type harness struct {
	coord     *Coordinator
	engine    *fakeEngine
	sink      *recordingSink
	errs      *errorRecorder
	factories atomic.Int32
}

func newHarness(t *testing.T, engine *fakeEngine, source framesource.Provider) *harness {
	t.Helper()
	h := &harness{engine: engine, sink: &recordingSink{}, errs: &errorRecorder{}}
	coord, err := New(Deps{
		Factory: func(context.Context, recognizer.Options) (recognizer.Engine, error) {
			h.factories.Add(1)
			return h.engine, nil
		},
		Source:  source,
		Sink:    h.sink,
		OnError: h.errs.record,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.coord = coord
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.coord.Start(context.Background(), recognizer.DefaultOptions()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func trackedFrame(ts int64, releases *atomic.Int32) *frame.Frame {
	return frame.New(make([]byte, 3), 1, 1,
		frame.WithTimestamp(ts),
		frame.WithSeq(uint64(ts)),
		frame.WithRelease(func() { releases.Add(1) }),
	)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
