package framesource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/e7canasta/senyas-gesture/frame"
	"github.com/e7canasta/senyas-gesture/framesource/internal/warmup"
)

// CalculateFPSStats computes rate statistics from monotonic frame timestamps
// (milliseconds) observed over totalDuration.
func CalculateFPSStats(timestampsMs []int64, totalDuration time.Duration) *WarmupStats {
	s := warmup.CalculateFPSStats(timestampsMs, totalDuration)
	return &WarmupStats{
		FramesReceived: s.FramesReceived,
		Duration:       s.Duration,
		FPSMean:        s.FPSMean,
		FPSStdDev:      s.FPSStdDev,
		FPSMin:         s.FPSMin,
		FPSMax:         s.FPSMax,
		IsStable:       s.IsStable,
		JitterMean:     s.JitterMean,
		JitterStdDev:   s.JitterStdDev,
		JitterMax:      s.JitterMax,
	}
}

// timestampRecorder is a Publisher that keeps only acquisition times.
type timestampRecorder struct {
	mu    sync.Mutex
	times []int64
}

func (r *timestampRecorder) Publish(f *frame.Frame) {
	r.mu.Lock()
	r.times = append(r.times, f.AcquiredAtMs)
	r.mu.Unlock()
	f.Close()
}

// Warmup runs p for duration and measures its frame rate stability.
//
// p is started and stopped by Warmup; it must be idle on entry. Faults during
// warmup are logged and otherwise ignored.
//
// Returns an error if fewer than 2 frames arrive or ctx is cancelled.
func Warmup(ctx context.Context, p Provider, duration time.Duration, logger *zap.Logger) (*WarmupStats, error) {
	rec := &timestampRecorder{times: make([]int64, 0, 128)}
	onFault := func(err error) {
		logger.Warn("framesource: fault during warmup", zap.Error(err))
	}

	start := time.Now()
	if err := p.Start(ctx, rec, onFault); err != nil {
		return nil, fmt.Errorf("framesource: warmup start: %w", err)
	}

	select {
	case <-ctx.Done():
		_ = p.Stop()
		return nil, ctx.Err()
	case <-time.After(duration):
	}

	if err := p.Stop(); err != nil {
		return nil, fmt.Errorf("framesource: warmup stop: %w", err)
	}
	elapsed := time.Since(start)

	rec.mu.Lock()
	times := rec.times
	rec.mu.Unlock()

	if len(times) < 2 {
		return nil, fmt.Errorf("framesource: not enough frames during warmup (got %d, need at least 2)", len(times))
	}

	stats := CalculateFPSStats(times, elapsed)
	logger.Info("framesource: warmup complete",
		zap.Int("frames", stats.FramesReceived),
		zap.Duration("duration", stats.Duration),
		zap.Float64("fps_mean", stats.FPSMean),
		zap.Float64("fps_stddev", stats.FPSStdDev),
		zap.Bool("stable", stats.IsStable),
	)
	return stats, nil
}
