package framesource

import (
	"go.uber.org/zap"

	"github.com/e7canasta/senyas-gesture/internal/clock"
	"github.com/e7canasta/senyas-gesture/internal/logging"
)

type options struct {
	logger *zap.Logger
	clock  clock.Clock
}

// Option customises a Provider.
type Option func(*options)

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the timestamp source. Default is the process monotonic clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.Process()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger)
	return o
}
