package v4l2

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ReconnectConfig is the restart policy for a broken capture session.
type ReconnectConfig struct {
	MaxRetries    int
	RetryDelay    time.Duration // first delay, doubled per consecutive failure
	MaxRetryDelay time.Duration
}

// DefaultReconnectConfig allows 5 restarts between 1s and 30s apart.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// ReconnectState counts restarts. CurrentRetries belongs to the
// RunWithReconnect goroutine; Reconnects may be read from anywhere.
type ReconnectState struct {
	CurrentRetries int
	Reconnects     atomic.Uint32
}

// Reset clears the retry streak after the pipeline reached PLAYING again.
func (s *ReconnectState) Reset() {
	s.CurrentRetries = 0
}

// ConnectFunc runs one capture session. It returns nil on graceful
// shutdown and an error when the session broke and should be retried.
type ConnectFunc func(ctx context.Context) error

// RunWithReconnect runs connectFn until it returns nil, ctx is cancelled
// or MaxRetries consecutive failures happen.
//
// Backoff schedule with defaults: 1s, 2s, 4s, 8s, 16s, then give up.
func RunWithReconnect(
	ctx context.Context,
	connectFn ConnectFunc,
	cfg ReconnectConfig,
	state *ReconnectState,
	logger *zap.Logger,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := connectFn(ctx)
		if err == nil {
			state.Reset()
			return nil
		}

		logger.Error("v4l2: capture session failed", zap.Error(err))

		state.CurrentRetries++
		state.Reconnects.Add(1)

		if state.CurrentRetries > cfg.MaxRetries {
			return fmt.Errorf("v4l2: max retries exceeded (%d attempts): %w", cfg.MaxRetries, err)
		}

		delay := calculateBackoff(state.CurrentRetries, cfg)

		logger.Warn("v4l2: restarting capture",
			zap.Int("attempt", state.CurrentRetries),
			zap.Int("max_retries", cfg.MaxRetries),
			zap.Duration("delay", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// calculateBackoff returns retryDelay * 2^(attempt-1), capped at MaxRetryDelay.
func calculateBackoff(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay || delay <= 0 {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
