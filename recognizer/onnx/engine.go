package onnx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/e7canasta/senyas-gesture/frame"
	"github.com/e7canasta/senyas-gesture/internal/logging"
	"github.com/e7canasta/senyas-gesture/recognizer"
)

// Config tunes the in-process engine. Zero values use defaults.
type Config struct {
	// LibraryPath is the onnxruntime shared library. Empty uses the
	// runtime's default lookup.
	LibraryPath string

	InputSize  int    // default 224
	InputName  string // default "input"
	OutputName string // default "output"
	Threads    int    // default runtime.NumCPU()

	QueueSize    int // default 2
	ResultBuffer int // default 16

	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.InputSize <= 0 {
		c.InputSize = 224
	}
	if c.InputName == "" {
		c.InputName = "input"
	}
	if c.OutputName == "" {
		c.OutputName = "output"
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

// Factory returns a recognizer.Factory that loads the model with ONNX Runtime.
func Factory(cfg Config) recognizer.Factory {
	return func(ctx context.Context, opts recognizer.Options) (recognizer.Engine, error) {
		return New(ctx, opts, cfg)
	}
}

// New loads the model and starts the inference goroutine.
//
// Labels come from opts.Labels, or from the label file next to the model.
func New(ctx context.Context, opts recognizer.Options, cfg Config) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(opts.ModelAssetPath); err != nil {
		return nil, fmt.Errorf("onnx: model asset: %w", err)
	}

	labels := opts.Labels
	if len(labels) == 0 {
		var err error
		if labels, err = LoadLabels(LabelsPath(opts.ModelAssetPath)); err != nil {
			return nil, err
		}
	}

	cfg = cfg.withDefaults()
	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	start := time.Now()
	m, err := newORTModel(opts.ModelAssetPath, cfg.InputSize, len(labels), cfg.Threads, cfg.InputName, cfg.OutputName)
	if err != nil {
		return nil, err
	}

	e := newEngine(m, labels, opts, cfg)
	e.logger.Info("onnx: model loaded",
		zap.String("model", opts.ModelAssetPath),
		zap.Int("classes", len(labels)),
		zap.Int("input_size", cfg.InputSize),
		zap.Duration("load_time", time.Since(start)),
	)
	return e, nil
}

type job struct {
	frame *frame.Frame
	ts    int64
}

// Engine serializes inference on one goroutine behind a bounded queue.
type Engine struct {
	model    model
	labels   []string
	size     int
	minScore float32
	logger   *zap.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan job
	results chan recognizer.Result
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	processed  atomic.Uint64
	dropped    atomic.Uint64
	empty      atomic.Uint64
	failures   atomic.Uint64
	runs       atomic.Uint64
	inferenceN atomic.Int64 // total inference time, ns
}

func newEngine(m model, labels []string, opts recognizer.Options, cfg Config) *Engine {
	e := &Engine{
		model:    m,
		labels:   labels,
		size:     cfg.InputSize,
		minScore: opts.MinScore,
		logger:   cfg.Logger.Named("onnx"),
		queue:    make(chan job, cfg.QueueSize),
		results:  make(chan recognizer.Result, cfg.ResultBuffer),
		done:     make(chan struct{}),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

// RecognizeAsync copies the frame and queues it. Returns
// recognizer.ErrQueueFull when inference is behind.
func (e *Engine) RecognizeAsync(req recognizer.Request) error {
	f := req.Frame
	if f == nil {
		return errors.New("onnx: nil frame")
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("onnx: %w", err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return recognizer.ErrClosed
	}

	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	cp := frame.New(data, f.Width, f.Height,
		frame.WithFormat(f.Format),
		frame.WithRotation(f.RotationDegrees),
		frame.WithSeq(f.Seq),
		frame.WithTimestamp(req.TimestampMs),
	)

	select {
	case e.queue <- job{frame: cp, ts: req.TimestampMs}:
		return nil
	default:
		e.dropped.Add(1)
		return recognizer.ErrQueueFull
	}
}

// Results delivers one Result per accepted request. Closed by Close.
func (e *Engine) Results() <-chan recognizer.Result { return e.results }

func (e *Engine) run() {
	defer e.wg.Done()
	for j := range e.queue {
		res := e.infer(j)
		select {
		case e.results <- res:
		case <-e.done:
		}
	}
}

func (e *Engine) infer(j job) recognizer.Result {
	res := recognizer.Result{TimestampMs: j.ts, Seq: j.frame.Seq}

	if err := preprocess(j.frame, e.size, e.model.Input()); err != nil {
		e.failures.Add(1)
		res.Err = err
		return res
	}

	start := time.Now()
	logits, err := e.model.Run()
	e.inferenceN.Add(int64(time.Since(start)))
	e.runs.Add(1)
	if err != nil {
		e.failures.Add(1)
		res.Err = fmt.Errorf("onnx: run: %w", err)
		return res
	}
	e.processed.Add(1)

	cats := classify(logits, e.labels, e.minScore)
	if cats == nil {
		e.empty.Add(1)
		return res
	}
	res.Gestures = [][]recognizer.Category{cats}
	return res
}

// Close drops queued work, waits for the running inference and frees the
// session. Idempotent.
func (e *Engine) Close() error {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.queue)
		e.mu.Unlock()

		close(e.done)
		e.wg.Wait()
		e.model.Destroy()
		close(e.results)

		s := e.Stats()
		e.logger.Info("onnx: engine closed",
			zap.Uint64("processed", s.Processed),
			zap.Uint64("dropped", s.Dropped),
			zap.Uint64("empty", s.Empty),
			zap.Uint64("failures", s.Failures),
			zap.Duration("avg_inference", s.AvgInference),
		)
	})
	return nil
}

// Stats reports engine counters.
type Stats struct {
	Processed    uint64
	Dropped      uint64
	Empty        uint64
	Failures     uint64
	AvgInference time.Duration
}

// Stats returns a counter snapshot.
func (e *Engine) Stats() Stats {
	s := Stats{
		Processed: e.processed.Load(),
		Dropped:   e.dropped.Load(),
		Empty:     e.empty.Load(),
		Failures:  e.failures.Load(),
	}
	if n := e.runs.Load(); n > 0 {
		s.AvgInference = time.Duration(e.inferenceN.Load() / int64(n))
	}
	return s
}
