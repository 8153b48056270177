// Package gesture coordinates the live recognition pipeline.
//
// The Coordinator owns the lifecycle of a frame source, a backpressure gate
// and a recognition engine, and turns engine results into single best
// gesture observations for a ResultSink.
//
//	FrameSource ─Publish─▶ Gate ─Take─▶ drain ─Submit─▶ Engine ─Results─▶ result loop ─▶ ResultSink
//	  (capture)          (1 slot)     goroutine                           goroutine
//
// Guarantees:
//   - every frame is released exactly once on every path
//   - timestamps observed by one engine instance never decrease
//   - no ResultSink call happens after Stop returns
//   - Stop releases source, engine and gate in order and is idempotent
package gesture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/e7canasta/senyas-gesture/frame"
	"github.com/e7canasta/senyas-gesture/framegate"
	"github.com/e7canasta/senyas-gesture/framesource"
	"github.com/e7canasta/senyas-gesture/internal/clock"
	"github.com/e7canasta/senyas-gesture/internal/logging"
	"github.com/e7canasta/senyas-gesture/recognizer"
)

// Deps are the coordinator's collaborators.
type Deps struct {
	// Factory builds the engine on Start. Required.
	Factory recognizer.Factory

	// Source is bound on Start and unbound on Stop. Optional: without it,
	// frames are fed through Publish or Submit.
	Source framesource.Provider

	// Gate defaults to framegate.New().
	Gate framegate.Gate

	// Sink receives observations. Required.
	Sink ResultSink

	// OnError receives faults. Optional.
	OnError ErrorFunc

	// Clock stamps frames that arrive without a timestamp. Defaults to the
	// process monotonic clock.
	Clock clock.Clock

	Logger *zap.Logger
}

// Stats is a snapshot of coordinator counters.
type Stats struct {
	State          State
	Sessions       uint64
	Submitted      uint64
	Rejected       uint64
	Regressions    uint64
	SubmitFaults   uint64
	Results        uint64
	Observations   uint64
	EmptyResults   uint64
	Discarded      uint64
	EngineFaults   uint64
	CaptureFaults  uint64
	Errors         uint64
	LastObservedMs int64
	Gate           framegate.Stats
}

// Coordinator drives the pipeline state machine.
type Coordinator struct {
	factory recognizer.Factory
	source  framesource.Provider
	gate    framegate.Gate
	sink    ResultSink
	onError ErrorFunc
	clock   clock.Clock
	logger  *zap.Logger

	// lifecycleMu serializes Start and Stop.
	lifecycleMu sync.Mutex
	state       atomic.Int32

	// submitMu: Submit holds it shared, Stop takes it exclusively to wait
	// out in-flight submissions before closing the engine.
	submitMu sync.RWMutex
	engine   recognizer.Engine

	// orderMu makes the timestamp check and the engine handoff one step,
	// so concurrent submitters cannot reorder timestamps.
	orderMu sync.Mutex
	lastTs  int64
	hasLast bool

	cancel      context.CancelFunc
	drainDone   chan struct{}
	quit        chan struct{}
	resultsDone chan struct{}

	sessions       atomic.Uint64
	submitted      atomic.Uint64
	rejected       atomic.Uint64
	regressions    atomic.Uint64
	submitFaults   atomic.Uint64
	results        atomic.Uint64
	observations   atomic.Uint64
	emptyResults   atomic.Uint64
	discarded      atomic.Uint64
	engineFaults   atomic.Uint64
	captureFaults  atomic.Uint64
	errorsEmitted  atomic.Uint64
	lastObservedMs atomic.Int64
}

// New validates deps and returns a Stopped coordinator.
func New(deps Deps) (*Coordinator, error) {
	if deps.Factory == nil {
		return nil, errors.New("gesture: engine factory is required")
	}
	if deps.Sink == nil {
		return nil, errors.New("gesture: result sink is required")
	}
	if deps.Gate == nil {
		deps.Gate = framegate.New()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Process()
	}

	c := &Coordinator{
		factory: deps.Factory,
		source:  deps.Source,
		gate:    deps.Gate,
		sink:    deps.Sink,
		onError: deps.OnError,
		clock:   deps.Clock,
		logger:  logging.OrNop(deps.Logger).Named("gesture"),
	}
	c.state.Store(int32(Stopped))
	return c, nil
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	c.logger.Debug("gesture: state changed", zap.Stringer("from", old), zap.Stringer("to", s))
}

// Start builds the engine and binds the frame source.
//
// Sequence:
//  1. Stopped → Starting (any other state: *InvalidStateError, no side effects)
//  2. Build engine (failure: *EngineInitError, back to Stopped)
//  3. Open gate, start result loop
//  4. Bind source (failure: *CaptureFault, engine closed, back to Stopped)
//  5. Starting → Running, start drain goroutine
//
// ctx bounds engine construction and source binding; the session itself
// runs until Stop.
func (c *Coordinator) Start(ctx context.Context, opts recognizer.Options) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if st := c.State(); st != Stopped {
		return &InvalidStateError{Op: "start", State: st}
	}
	c.setState(Starting)

	engine, err := c.buildEngine(ctx, opts)
	if err != nil {
		c.setState(Stopped)
		initErr := &EngineInitError{Cause: err}
		c.emit(initErr)
		return initErr
	}

	c.submitMu.Lock()
	c.engine = engine
	c.submitMu.Unlock()

	c.orderMu.Lock()
	c.lastTs, c.hasLast = 0, false
	c.orderMu.Unlock()

	c.gate.Open()
	c.quit = make(chan struct{})
	c.resultsDone = make(chan struct{})
	go c.resultLoop(engine.Results(), c.quit, c.resultsDone)

	if c.source != nil {
		if err := c.source.Start(ctx, c.gate, c.captureFault); err != nil {
			c.teardownEngine()
			c.gate.Close()
			c.setState(Stopped)
			fault := &CaptureFault{Cause: err}
			c.emit(fault)
			return fault
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.drainDone = make(chan struct{})

	c.sessions.Add(1)
	c.setState(Running)
	go c.drain(runCtx, c.drainDone)

	c.logger.Info("gesture: pipeline started",
		zap.String("model", opts.ModelAssetPath),
		zap.Int("num_hands", opts.NumHands),
		zap.Stringer("running_mode", opts.RunningMode),
		zap.Bool("source_bound", c.source != nil),
	)
	return nil
}

func (c *Coordinator) buildEngine(ctx context.Context, opts recognizer.Options) (engine recognizer.Engine, err error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			engine, err = nil, fmt.Errorf("engine factory panicked: %v", r)
		}
	}()
	engine, err = c.factory(ctx, opts)
	if err == nil && engine == nil {
		err = errors.New("engine factory returned nil engine")
	}
	return engine, err
}

// Publish hands a frame to the gate. Used when frames are pushed by the host
// rather than by a bound Source.
func (c *Coordinator) Publish(f *frame.Frame) {
	c.gate.Publish(f)
}

// Submit forwards one frame to the engine.
//
// The frame is released before Submit returns on every path. A frame
// without timestamp is stamped from the coordinator clock. Returns:
//   - *InvalidStateError when not Running
//   - *TimestampRegressionError when older than the last submitted frame
//   - *SubmissionFault when the engine rejects it synchronously
func (c *Coordinator) Submit(f *frame.Frame) error {
	if f == nil {
		return errors.New("gesture: nil frame")
	}
	defer f.Close()

	// Fast path: once Stopping is set, Stop may be waiting for the write
	// lock and a new RLock would queue behind it.
	if st := c.State(); st != Running {
		c.rejected.Add(1)
		return &InvalidStateError{Op: "submit", State: st}
	}

	c.submitMu.RLock()
	defer c.submitMu.RUnlock()

	if st := c.State(); st != Running {
		c.rejected.Add(1)
		return &InvalidStateError{Op: "submit", State: st}
	}

	c.orderMu.Lock()
	defer c.orderMu.Unlock()

	if f.AcquiredAtMs == 0 {
		f.AcquiredAtMs = c.clock.NowMs()
	}
	ts := f.AcquiredAtMs

	if c.hasLast && ts < c.lastTs {
		c.regressions.Add(1)
		err := &TimestampRegressionError{Previous: c.lastTs, Got: ts, Seq: f.Seq}
		c.emit(err)
		return err
	}

	if err := c.recognize(recognizer.Request{Frame: f, TimestampMs: ts}); err != nil {
		c.submitFaults.Add(1)
		fault := &SubmissionFault{Seq: f.Seq, TimestampMs: ts, Cause: err}
		c.emit(fault)
		return fault
	}

	c.lastTs, c.hasLast = ts, true
	c.submitted.Add(1)
	return nil
}

// recognize calls the engine, turning a synchronous panic into an error.
func (c *Coordinator) recognize(req recognizer.Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panicked: %v", r)
		}
	}()
	return c.engine.RecognizeAsync(req)
}

// drain moves frames from the gate into the engine until cancelled.
func (c *Coordinator) drain(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		f, err := c.gate.Take(ctx)
		if err != nil {
			return
		}
		// Faults are already emitted by Submit.
		_ = c.Submit(f)
	}
}

// resultLoop is the only goroutine that calls the sink.
func (c *Coordinator) resultLoop(results <-chan recognizer.Result, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case res, ok := <-results:
			if !ok {
				return
			}
			c.handleResult(res)
		case <-quit:
			return
		}
	}
}

// handleResult routes one engine result. Results observed while not Running
// are discarded.
func (c *Coordinator) handleResult(res recognizer.Result) {
	defer func() {
		if r := recover(); r != nil {
			c.emit(&SinkFault{Cause: fmt.Errorf("%v", r)})
		}
	}()

	c.results.Add(1)

	if c.State() != Running {
		c.discarded.Add(1)
		return
	}

	if res.Err != nil {
		c.engineFaults.Add(1)
		c.emit(&EngineFault{TimestampMs: res.TimestampMs, Cause: res.Err})
		return
	}

	obs, ok := TopGesture(res)
	if !ok {
		c.emptyResults.Add(1)
		return
	}

	c.observations.Add(1)
	c.lastObservedMs.Store(obs.TimestampMs)

	if full, ok := c.sink.(ObservationSink); ok {
		full.OnObservation(obs)
		return
	}
	c.sink.OnGesture(obs.Label, obs.Score)
}

func (c *Coordinator) captureFault(err error) {
	c.captureFaults.Add(1)
	c.emit(&CaptureFault{Cause: err})
}

// emit logs err and forwards it to OnError. A panicking handler is logged
// and swallowed.
func (c *Coordinator) emit(err error) {
	c.errorsEmitted.Add(1)

	switch {
	case errors.Is(err, ErrTimestampRegression):
		c.logger.Warn("gesture: frame dropped", zap.Error(err))
	default:
		c.logger.Error("gesture: pipeline fault", zap.Error(err))
	}

	if c.onError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("gesture: error handler panicked", zap.Any("panic", r))
		}
	}()
	c.onError(err)
}

// Stop tears the pipeline down. Idempotent and safe from any goroutine
// except the sink and error callbacks.
//
// Sequence:
//  1. → Stopping (Submit fails fast from here on)
//  2. Unbind source (no more Publish)
//  3. Stop drain goroutine
//  4. Wait for in-flight Submit calls
//  5. Close engine, stop result loop
//  6. Close gate (pending frame released)
//  7. → Stopped
func (c *Coordinator) Stop() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.State() == Stopped {
		return nil
	}
	c.setState(Stopping)

	var err error
	if c.source != nil {
		if stopErr := c.source.Stop(); stopErr != nil {
			err = multierr.Append(err, fmt.Errorf("gesture: stop source: %w", stopErr))
		}
	}

	c.cancel()
	<-c.drainDone

	err = multierr.Append(err, c.teardownEngine())

	released := c.gate.Clear()
	c.gate.Close()

	c.setState(Stopped)
	c.logger.Info("gesture: pipeline stopped",
		zap.Uint64("submitted", c.submitted.Load()),
		zap.Uint64("observations", c.observations.Load()),
		zap.Uint64("discarded_results", c.discarded.Load()),
		zap.Int("pending_frames_released", released),
	)
	return err
}

// teardownEngine waits for in-flight submits, closes the engine and stops
// the result loop.
func (c *Coordinator) teardownEngine() error {
	c.submitMu.Lock()
	engine := c.engine
	c.engine = nil
	c.submitMu.Unlock()

	var err error
	if engine != nil {
		if closeErr := engine.Close(); closeErr != nil {
			err = fmt.Errorf("gesture: close engine: %w", closeErr)
		}
	}
	close(c.quit)
	<-c.resultsDone
	return err
}

// Stats returns a counter snapshot.
func (c *Coordinator) Stats() Stats {
	return Stats{
		State:          c.State(),
		Sessions:       c.sessions.Load(),
		Submitted:      c.submitted.Load(),
		Rejected:       c.rejected.Load(),
		Regressions:    c.regressions.Load(),
		SubmitFaults:   c.submitFaults.Load(),
		Results:        c.results.Load(),
		Observations:   c.observations.Load(),
		EmptyResults:   c.emptyResults.Load(),
		Discarded:      c.discarded.Load(),
		EngineFaults:   c.engineFaults.Load(),
		CaptureFaults:  c.captureFaults.Load(),
		Errors:         c.errorsEmitted.Load(),
		LastObservedMs: c.lastObservedMs.Load(),
		Gate:           c.gate.Stats(),
	}
}

// SetRotation forwards a rotation change to the bound source. The engine is
// not reset: rotation travels with each frame.
func (c *Coordinator) SetRotation(deg int) error {
	if c.source == nil {
		return errors.New("gesture: no frame source bound")
	}
	return c.source.SetRotation(deg)
}

// SourceStats returns the bound source's statistics, if any.
func (c *Coordinator) SourceStats() (framesource.Stats, bool) {
	if c.source == nil {
		return framesource.Stats{}, false
	}
	return c.source.Stats(), true
}
