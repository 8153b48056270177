package subprocess

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/e7canasta/senyas-gesture/internal/logging"
	"github.com/e7canasta/senyas-gesture/recognizer"
)

// Config tunes the worker bridge. Zero values use defaults.
type Config struct {
	// Spawner defaults to ExecSpawner.
	Spawner Spawner

	ReadyTimeout time.Duration // default 15s (model load)
	WriteTimeout time.Duration // default 2s
	StopTimeout  time.Duration // default 2s
	QueueSize    int           // default 2
	ResultBuffer int           // default 16

	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Spawner == nil {
		c.Spawner = ExecSpawner
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 2 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 2
	}
	if c.ResultBuffer <= 0 {
		c.ResultBuffer = 16
	}
	c.Logger = logging.OrNop(c.Logger)
	return c
}

// ErrWorkerExited is reported when the worker process dies on its own.
var ErrWorkerExited = errors.New("subprocess: worker exited")

// WorkerError is a recognition failure reported by the worker.
type WorkerError struct {
	Seq     uint64
	Message string
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("subprocess: worker error seq=%d: %s", e.Seq, e.Message)
}

// Factory returns a recognizer.Factory backed by cfg.
func Factory(cfg Config) recognizer.Factory {
	return func(ctx context.Context, opts recognizer.Options) (recognizer.Engine, error) {
		return New(ctx, opts, cfg)
	}
}

type pending struct {
	seq  uint64
	ts   int64
	wire []byte
}

// Engine bridges recognition requests to an out-of-process worker over
// length-prefixed msgpack on stdin/stdout.
//
// Goroutines:
//
//	[1] writeLoop   - drains the bounded queue into stdin, in submission order
//	[2] readLoop    - decodes stdout messages into Results
//	[3] logStderr   - maps worker log lines to log levels
//	[4] waitProcess - reaps the process, reports unexpected exits
type Engine struct {
	cfg    Config
	logger *zap.Logger
	proc   *Process
	model  string

	mu      sync.RWMutex
	closed  bool
	input   chan pending
	results chan recognizer.Result

	// sendMu guards results against a send racing its close.
	sendMu        sync.RWMutex
	resultsClosed bool

	done      chan struct{}
	wg        sync.WaitGroup
	exited    chan struct{}
	closeOnce sync.Once
	closeErr  error

	sent     atomic.Uint64
	dropped  atomic.Uint64
	received atomic.Uint64
	faults   atomic.Uint64
}

// New spawns the worker and waits for its ready handshake.
//
// Fails when the model file is missing, the worker cannot start or it does
// not report ready within ReadyTimeout (the process is killed).
func New(ctx context.Context, opts recognizer.Options, cfg Config) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(opts.WorkerCommand) == 0 {
		return nil, errors.New("subprocess: worker_command is required")
	}
	if _, err := os.Stat(opts.ModelAssetPath); err != nil {
		return nil, fmt.Errorf("subprocess: model asset: %w", err)
	}

	cfg = cfg.withDefaults()
	logger := cfg.Logger.Named("subprocess")

	argv := append(append([]string(nil), opts.WorkerCommand...),
		"--model", opts.ModelAssetPath,
		"--num-hands", strconv.Itoa(opts.NumHands),
		"--min-score", strconv.FormatFloat(float64(opts.MinScore), 'f', 2, 32),
		"--running-mode", opts.RunningMode.String(),
	)

	proc, err := cfg.Spawner(ctx, argv)
	if err != nil {
		return nil, fmt.Errorf("subprocess: spawn: %w", err)
	}

	ready, err := awaitReady(ctx, proc, cfg.ReadyTimeout)
	if err != nil {
		_ = proc.Stdin.Close()
		_ = proc.Kill()
		go func() { _ = proc.Wait() }()
		return nil, fmt.Errorf("subprocess: handshake: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		proc:    proc,
		model:   opts.ModelAssetPath,
		input:   make(chan pending, cfg.QueueSize),
		results: make(chan recognizer.Result, cfg.ResultBuffer),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}

	e.wg.Add(2)
	go e.writeLoop()
	go e.readLoop()
	if proc.Stderr != nil {
		e.wg.Add(1)
		go e.logStderr()
	}
	go e.waitProcess()

	logger.Info("subprocess: worker ready",
		zap.Int("pid", proc.Pid),
		zap.String("model", opts.ModelAssetPath),
		zap.String("worker_model", ready.Model),
		zap.Int("num_hands", opts.NumHands),
	)
	return e, nil
}

// awaitReady reads the first message and requires it to be "ready".
func awaitReady(ctx context.Context, proc *Process, timeout time.Duration) (*response, error) {
	type outcome struct {
		msg *response
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		var msg response
		err := readMessage(proc.Stdout, &msg)
		ch <- outcome{&msg, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return nil, o.err
		}
		switch o.msg.Type {
		case typeReady:
			return o.msg, nil
		case typeError:
			return nil, errors.New(o.msg.Error)
		default:
			return nil, fmt.Errorf("unexpected first message %q", o.msg.Type)
		}
	case <-time.After(timeout):
		return nil, fmt.Errorf("worker not ready after %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RecognizeAsync encodes the frame (copying its pixels) and queues it.
// Returns recognizer.ErrQueueFull when the worker is behind.
func (e *Engine) RecognizeAsync(req recognizer.Request) error {
	f := req.Frame
	if f == nil {
		return errors.New("subprocess: nil frame")
	}

	wire, err := encodeMessage(&request{
		Type:            typeRecognize,
		Seq:             f.Seq,
		TimestampMs:     req.TimestampMs,
		Width:           f.Width,
		Height:          f.Height,
		Format:          f.Format,
		RotationDegrees: f.RotationDegrees,
		FrameData:       f.Data,
	})
	if err != nil {
		return fmt.Errorf("subprocess: %w", err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return recognizer.ErrClosed
	}
	select {
	case <-e.exited:
		return ErrWorkerExited
	default:
	}

	select {
	case e.input <- pending{seq: f.Seq, ts: req.TimestampMs, wire: wire}:
		return nil
	default:
		e.dropped.Add(1)
		return recognizer.ErrQueueFull
	}
}

// Results delivers worker answers. Closed after Close returns.
func (e *Engine) Results() <-chan recognizer.Result { return e.results }

func (e *Engine) writeLoop() {
	defer e.wg.Done()
	for p := range e.input {
		if err := e.write(p.wire); err != nil {
			e.deliver(recognizer.Result{Seq: p.seq, TimestampMs: p.ts, Err: err})
			if errors.Is(err, errWriteTimeout) {
				e.logger.Error("subprocess: worker hung, killing", zap.Uint64("seq", p.seq))
				_ = e.proc.Kill()
				return
			}
			continue
		}
		e.sent.Add(1)
	}
}

var errWriteTimeout = errors.New("subprocess: stdin write timeout (worker may be hung)")

// write sends one message with a timeout.
func (e *Engine) write(wire []byte) error {
	errc := make(chan error, 1)
	go func() {
		_, err := e.proc.Stdin.Write(wire)
		errc <- err
	}()
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("subprocess: write stdin: %w", err)
		}
		return nil
	case <-time.After(e.cfg.WriteTimeout):
		return errWriteTimeout
	}
}

func (e *Engine) readLoop() {
	defer e.wg.Done()
	for {
		var msg response
		err := readMessage(e.proc.Stdout, &msg)
		if err != nil {
			var decErr *decodeError
			if errors.As(err, &decErr) {
				e.faults.Add(1)
				e.logger.Error("subprocess: undecodable message", zap.Error(err))
				continue
			}
			if !errors.Is(err, io.EOF) && !e.isClosed() {
				e.logger.Error("subprocess: read stdout", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case typeResult:
			e.received.Add(1)
			e.deliver(recognizer.Result{
				TimestampMs: msg.TimestampMs,
				Seq:         msg.Seq,
				Gestures:    toCategories(msg.Gestures),
				Handedness:  toCategories(msg.Handedness),
			})
		case typeError:
			e.faults.Add(1)
			e.deliver(recognizer.Result{
				TimestampMs: msg.TimestampMs,
				Seq:         msg.Seq,
				Err:         &WorkerError{Seq: msg.Seq, Message: msg.Error},
			})
		default:
			e.logger.Debug("subprocess: ignoring message", zap.String("type", msg.Type))
		}
	}
}

// deliver hands r to the consumer, giving up once Close started.
// Blocked senders are released by done before Close takes sendMu.
func (e *Engine) deliver(r recognizer.Result) {
	e.sendMu.RLock()
	defer e.sendMu.RUnlock()
	if e.resultsClosed {
		return
	}
	select {
	case <-e.done:
		return
	default:
	}
	select {
	case e.results <- r:
	case <-e.done:
	}
}

// logStderr maps worker log prefixes to log levels.
func (e *Engine) logStderr() {
	defer e.wg.Done()
	scanner := bufio.NewScanner(e.proc.Stderr)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
			e.logger.Error("subprocess: worker", zap.String("line", line))
		case strings.Contains(line, "[WARNING]"), strings.Contains(line, "[WARN]"):
			e.logger.Warn("subprocess: worker", zap.String("line", line))
		default:
			e.logger.Debug("subprocess: worker", zap.String("line", line))
		}
	}
}

// waitProcess reaps the worker. An exit before Close is a fault.
func (e *Engine) waitProcess() {
	err := e.proc.Wait()
	close(e.exited)
	if e.isClosed() {
		return
	}
	e.faults.Add(1)
	e.logger.Error("subprocess: worker exited unexpectedly", zap.Error(err))
	e.deliver(recognizer.Result{Err: fmt.Errorf("%w: %v", ErrWorkerExited, err)})
}

func (e *Engine) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// Close stops the worker: close stdin, wait StopTimeout for a clean exit,
// kill otherwise. The results channel is closed before Close returns.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.input)
		e.mu.Unlock()

		close(e.done)
		_ = e.proc.Stdin.Close()

		if !waitTimeout(&e.wg, e.cfg.StopTimeout) {
			e.logger.Warn("subprocess: worker did not exit, killing")
			if err := e.proc.Kill(); err != nil {
				e.closeErr = fmt.Errorf("subprocess: kill worker: %w", err)
			}
			if !waitTimeout(&e.wg, e.cfg.StopTimeout) {
				e.logger.Error("subprocess: goroutines still running after kill")
			}
		}

		e.sendMu.Lock()
		e.resultsClosed = true
		close(e.results)
		e.sendMu.Unlock()

		e.logger.Info("subprocess: worker stopped",
			zap.String("model", e.model),
			zap.Uint64("sent", e.sent.Load()),
			zap.Uint64("received", e.received.Load()),
			zap.Uint64("dropped", e.dropped.Load()),
			zap.Uint64("faults", e.faults.Load()),
		)
	})
	return e.closeErr
}

// Stats reports bridge counters.
type Stats struct {
	Sent, Dropped, Received, Faults uint64
}

// Stats returns a counter snapshot.
func (e *Engine) Stats() Stats {
	return Stats{
		Sent:     e.sent.Load(),
		Dropped:  e.dropped.Load(),
		Received: e.received.Load(),
		Faults:   e.faults.Load(),
	}
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
