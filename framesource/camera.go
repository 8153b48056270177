package framesource

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
	"go.uber.org/zap"

	"github.com/e7canasta/senyas-gesture/frame"
	"github.com/e7canasta/senyas-gesture/framesource/internal/v4l2"
	"github.com/e7canasta/senyas-gesture/internal/clock"
)

// Camera implements Provider on a V4L2 device through GStreamer.
type Camera struct {
	device    string
	width     int
	height    int
	targetFPS float64

	logger       *zap.Logger
	clock        clock.Clock
	pool         *v4l2.BufferPool
	reconnectCfg v4l2.ReconnectConfig

	mu       sync.Mutex
	elements *v4l2.PipelineElements
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  time.Time

	// running gates Publish: frames arriving while stopping are released
	// instead of published.
	running atomic.Bool

	rotation    atomic.Int32
	frameCount  atomic.Uint64
	bytesRead   atomic.Uint64
	faults      atomic.Uint64
	lastFrameMs atomic.Int64

	errorCounters  v4l2.ErrorCounters
	reconnectState v4l2.ReconnectState
}

// NewCamera creates a camera source with fail-fast validation.
//
// Returns an error if the configuration is invalid or GStreamer/v4l2src is
// not available.
func NewCamera(cfg CameraConfig, opts ...Option) (*Camera, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("framesource: camera device is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("framesource: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.TargetFPS < 1 || cfg.TargetFPS > 60 {
		return nil, fmt.Errorf("framesource: invalid FPS %.2f (must be 1-60)", cfg.TargetFPS)
	}
	if !frame.ValidRotation(cfg.RotationDegrees) {
		return nil, fmt.Errorf("framesource: invalid rotation %d", cfg.RotationDegrees)
	}
	if err := v4l2.CheckAvailable(); err != nil {
		return nil, fmt.Errorf("framesource: GStreamer not available: %w", err)
	}

	o := buildOptions(opts)

	reconnectCfg := v4l2.DefaultReconnectConfig()
	if cfg.MaxReconnectAttempts > 0 {
		reconnectCfg.MaxRetries = cfg.MaxReconnectAttempts
	}
	if cfg.ReconnectInitialDelay > 0 {
		reconnectCfg.RetryDelay = cfg.ReconnectInitialDelay
	}
	if cfg.ReconnectMaxDelay > 0 {
		reconnectCfg.MaxRetryDelay = cfg.ReconnectMaxDelay
	}

	c := &Camera{
		device:       cfg.Device,
		width:        cfg.Width,
		height:       cfg.Height,
		targetFPS:    cfg.TargetFPS,
		logger:       o.logger.Named("camera"),
		clock:        o.clock,
		pool:         v4l2.NewBufferPool(cfg.Width * cfg.Height * 3),
		reconnectCfg: reconnectCfg,
	}
	c.rotation.Store(int32(cfg.RotationDegrees))

	c.logger.Info("framesource: camera created",
		zap.String("device", cfg.Device),
		zap.String("resolution", resolution(cfg.Width, cfg.Height)),
		zap.Float64("target_fps", cfg.TargetFPS),
		zap.Int("rotation_degrees", cfg.RotationDegrees),
	)

	return c, nil
}

// Start builds the pipeline, sets it PLAYING and launches the bus monitor.
//
// Returns once the pipeline accepted the PLAYING transition. On failure the
// pipeline is torn down before returning.
func (c *Camera) Start(ctx context.Context, out Publisher, onFault FaultFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return fmt.Errorf("framesource: camera already started")
	}

	elements, err := v4l2.CreatePipeline(v4l2.PipelineConfig{
		Device:    c.device,
		Width:     c.width,
		Height:    c.height,
		TargetFPS: c.targetFPS,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("framesource: failed to create pipeline: %w", err)
	}

	counted := func(err error) {
		c.faults.Add(1)
		onFault(err)
	}

	cbCtx := &v4l2.CallbackContext{
		Publish:      c.guardedPublish(out),
		OnFault:      counted,
		Pool:         c.pool,
		Clock:        c.clock,
		Rotation:     &c.rotation,
		FrameCounter: &c.frameCount,
		BytesRead:    &c.bytesRead,
		LastFrameMs:  &c.lastFrameMs,
		Width:        c.width,
		Height:       c.height,
		Logger:       c.logger,
	}
	elements.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return v4l2.OnNewSample(sink, cbCtx)
		},
	})

	c.running.Store(true)
	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		c.running.Store(false)
		_ = v4l2.DestroyPipeline(elements)
		return &CaptureError{
			Category: v4l2.Classify(err.Error(), ""),
			Err:      fmt.Errorf("failed to start pipeline on %s: %w", c.device, err),
		}
	}

	c.elements = elements
	c.started = time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runPipeline(runCtx, counted)

	c.logger.Info("framesource: camera started", zap.String("device", c.device))
	return nil
}

func (c *Camera) guardedPublish(out Publisher) func(*frame.Frame) {
	return func(f *frame.Frame) {
		if !c.running.Load() {
			f.Close()
			return
		}
		out.Publish(f)
	}
}

// runPipeline watches the bus and restarts the pipeline with backoff.
//
// The first session reuses the pipeline Start already set PLAYING; later
// sessions cycle it through NULL → PLAYING.
func (c *Camera) runPipeline(ctx context.Context, onFault FaultFunc) {
	defer c.wg.Done()

	elements := c.elements
	first := true

	connect := func(ctx context.Context) error {
		if !first {
			_ = v4l2.DestroyPipeline(elements)
			if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
				return fmt.Errorf("restart pipeline: %w", err)
			}
		}
		first = false
		return v4l2.MonitorPipelineBus(ctx, elements, &c.errorCounters, &c.reconnectState, onFault, c.logger)
	}

	err := v4l2.RunWithReconnect(ctx, connect, c.reconnectCfg, &c.reconnectState, c.logger)
	if err != nil && ctx.Err() == nil {
		c.logger.Error("framesource: camera stopped after reconnection failure",
			zap.Error(err),
			zap.String("device", c.device),
			zap.Duration("uptime", time.Since(c.started)),
			zap.Uint64("frames_captured", c.frameCount.Load()),
		)
		onFault(&CaptureError{Category: ErrCategoryDevice, Err: err})
	}
}

// Stop cancels monitoring, waits for it (3s max) and sets the pipeline to
// NULL, which releases the device. Idempotent.
func (c *Camera) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel == nil {
		return nil
	}

	c.running.Store(false)
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		c.logger.Warn("framesource: stop timeout exceeded, bus monitor may still be running")
	}

	var err error
	if destroyErr := v4l2.DestroyPipeline(c.elements); destroyErr != nil {
		err = fmt.Errorf("framesource: %w", destroyErr)
		c.logger.Error("framesource: failed to destroy pipeline", zap.Error(destroyErr))
	}

	c.logger.Info("framesource: camera stopped",
		zap.Uint64("frames_captured", c.frameCount.Load()),
		zap.Uint32("reconnects", c.reconnectState.Reconnects.Load()),
		zap.Duration("uptime", time.Since(c.started)),
	)

	c.elements = nil
	c.cancel = nil
	return err
}

// SetRotation updates the rotation stamped on subsequent frames.
func (c *Camera) SetRotation(deg int) error {
	if !frame.ValidRotation(deg) {
		return fmt.Errorf("framesource: invalid rotation %d (must be 0, 90, 180 or 270)", deg)
	}
	old := c.rotation.Swap(int32(deg))
	c.logger.Info("framesource: rotation updated", zap.Int32("old", old), zap.Int("new", deg))
	return nil
}

// Stats returns current capture statistics.
func (c *Camera) Stats() Stats {
	c.mu.Lock()
	started := c.started
	running := c.cancel != nil
	c.mu.Unlock()

	frames := c.frameCount.Load()
	var fpsReal float64
	if running && !started.IsZero() {
		if up := time.Since(started).Seconds(); up > 0 {
			fpsReal = float64(frames) / up
		}
	}

	var latency int64
	if last := c.lastFrameMs.Load(); last > 0 {
		latency = c.clock.NowMs() - last
	}

	return Stats{
		FrameCount:       frames,
		Faults:           c.faults.Load(),
		FPSTarget:        c.targetFPS,
		FPSReal:          fpsReal,
		LatencyMS:        latency,
		Resolution:       resolution(c.width, c.height),
		RotationDegrees:  int(c.rotation.Load()),
		Reconnects:       c.reconnectState.Reconnects.Load(),
		BytesRead:        c.bytesRead.Load(),
		IsRunning:        running,
		ErrorsDevice:     c.errorCounters.Device.Load(),
		ErrorsFormat:     c.errorCounters.Format.Load(),
		ErrorsPermission: c.errorCounters.Permission.Load(),
		ErrorsUnknown:    c.errorCounters.Unknown.Load(),
	}
}
