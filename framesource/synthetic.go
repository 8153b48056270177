package framesource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/e7canasta/senyas-gesture/frame"
	"github.com/e7canasta/senyas-gesture/internal/clock"
)

// ErrInjected is the fault cause produced by SyntheticConfig.FailEvery.
var ErrInjected = errors.New("framesource: injected capture fault")

// Synthetic generates moving test-pattern frames on a ticker.
//
// Used when no camera is configured, and in tests.
type Synthetic struct {
	cfg    SyntheticConfig
	logger *zap.Logger
	clock  clock.Clock

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started time.Time

	rotation    atomic.Int32
	frameCount  atomic.Uint64
	bytesRead   atomic.Uint64
	faults      atomic.Uint64
	lastFrameMs atomic.Int64
	attempts    atomic.Uint64
}

// NewSynthetic validates cfg and returns an idle source.
func NewSynthetic(cfg SyntheticConfig, opts ...Option) (*Synthetic, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("framesource: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.TargetFPS <= 0 || cfg.TargetFPS > 1000 {
		return nil, fmt.Errorf("framesource: invalid FPS %.2f", cfg.TargetFPS)
	}
	if !frame.ValidRotation(cfg.RotationDegrees) {
		return nil, fmt.Errorf("framesource: invalid rotation %d", cfg.RotationDegrees)
	}

	o := buildOptions(opts)
	s := &Synthetic{
		cfg:    cfg,
		logger: o.logger.Named("synthetic"),
		clock:  o.clock,
	}
	s.rotation.Store(int32(cfg.RotationDegrees))
	return s, nil
}

// Start launches the generator goroutine.
func (s *Synthetic) Start(ctx context.Context, out Publisher, onFault FaultFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("framesource: synthetic source already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = time.Now()

	interval := time.Duration(float64(time.Second) / s.cfg.TargetFPS)

	s.wg.Add(1)
	go s.run(runCtx, interval, out, onFault)

	s.logger.Info("framesource: synthetic source started",
		zap.String("resolution", resolution(s.cfg.Width, s.cfg.Height)),
		zap.Float64("target_fps", s.cfg.TargetFPS),
	)
	return nil
}

func (s *Synthetic) run(ctx context.Context, interval time.Duration, out Publisher, onFault FaultFunc) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.capture(out, onFault)
		}
	}
}

// capture produces one frame or one fault.
func (s *Synthetic) capture(out Publisher, onFault FaultFunc) {
	attempt := s.attempts.Add(1)
	if s.cfg.FailEvery > 0 && attempt%s.cfg.FailEvery == 0 {
		s.faults.Add(1)
		onFault(&CaptureError{Category: ErrCategoryUnknown, Seq: attempt, Err: ErrInjected})
		return
	}

	seq := s.frameCount.Add(1)
	data := pattern(s.cfg.Width, s.cfg.Height, seq)
	s.bytesRead.Add(uint64(len(data)))

	now := s.clock.NowMs()
	s.lastFrameMs.Store(now)

	out.Publish(frame.New(data, s.cfg.Width, s.cfg.Height,
		frame.WithSeq(seq),
		frame.WithTimestamp(now),
		frame.WithRotation(int(s.rotation.Load())),
		frame.WithTraceID(uuid.New().String()),
	))
}

// pattern renders a diagonal RGB gradient shifted by seq.
func pattern(w, h int, seq uint64) []byte {
	data := make([]byte, w*h*3)
	shift := int(seq % 256)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			data[i] = byte((x + shift) % 256)
			data[i+1] = byte((y + shift) % 256)
			data[i+2] = byte((x + y) % 256)
		}
	}
	return data
}

// Stop halts the generator and waits for it. Idempotent.
func (s *Synthetic) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.wg.Wait()
	s.cancel = nil

	s.logger.Info("framesource: synthetic source stopped",
		zap.Uint64("frames_generated", s.frameCount.Load()),
		zap.Uint64("faults", s.faults.Load()),
	)
	return nil
}

// SetRotation updates the rotation stamped on subsequent frames.
func (s *Synthetic) SetRotation(deg int) error {
	if !frame.ValidRotation(deg) {
		return fmt.Errorf("framesource: invalid rotation %d (must be 0, 90, 180 or 270)", deg)
	}
	s.rotation.Store(int32(deg))
	return nil
}

// Stats returns current generator statistics.
func (s *Synthetic) Stats() Stats {
	s.mu.Lock()
	running := s.cancel != nil
	started := s.started
	s.mu.Unlock()

	frames := s.frameCount.Load()
	var fpsReal float64
	if running {
		if up := time.Since(started).Seconds(); up > 0 {
			fpsReal = float64(frames) / up
		}
	}
	var latency int64
	if last := s.lastFrameMs.Load(); last > 0 {
		latency = s.clock.NowMs() - last
	}

	return Stats{
		FrameCount:      frames,
		Faults:          s.faults.Load(),
		FPSTarget:       s.cfg.TargetFPS,
		FPSReal:         fpsReal,
		LatencyMS:       latency,
		Resolution:      resolution(s.cfg.Width, s.cfg.Height),
		RotationDegrees: int(s.rotation.Load()),
		BytesRead:       s.bytesRead.Load(),
		IsRunning:       running,
		ErrorsUnknown:   s.faults.Load(),
	}
}
