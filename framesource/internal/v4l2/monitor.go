package v4l2

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"go.uber.org/zap"
)

// ErrorCounters holds atomic counters per error category.
type ErrorCounters struct {
	Device     atomic.Uint64
	Format     atomic.Uint64
	Permission atomic.Uint64
	Unknown    atomic.Uint64
}

// Add increments the counter for category.
func (c *ErrorCounters) Add(category ErrorCategory) {
	switch category {
	case ErrCategoryDevice:
		c.Device.Add(1)
	case ErrCategoryFormat:
		c.Format.Add(1)
	case ErrCategoryPermission:
		c.Permission.Add(1)
	default:
		c.Unknown.Add(1)
	}
}

// errEOS is returned when the camera stops producing (device unplugged).
var errEOS = errors.New("end of stream")

// MonitorPipelineBus polls the pipeline bus until ctx is done or the pipeline
// fails.
//
// Errors are classified, counted and reported through onFault before being
// returned, so RunWithReconnect can restart the session. Reaching PLAYING
// resets the retry streak.
//
// Returns nil if ctx is cancelled (graceful shutdown).
func MonitorPipelineBus(
	ctx context.Context,
	elements *PipelineElements,
	counters *ErrorCounters,
	state *ReconnectState,
	onFault func(error),
	logger *zap.Logger,
) error {
	if elements == nil || elements.Pipeline == nil {
		return errors.New("pipeline not initialized")
	}

	bus := elements.Pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			counters.Add(ErrCategoryDevice)
			err := &CaptureError{Category: ErrCategoryDevice, Err: errEOS}
			logger.Warn("v4l2: end of stream received")
			onFault(err)
			return err

		case gst.MessageError:
			gerr := msg.ParseError()
			category := ClassifyGStreamerError(gerr)
			counters.Add(category)

			logger.Error("v4l2: pipeline error",
				zap.String("error", gerr.Error()),
				zap.String("debug", gerr.DebugString()),
				zap.String("category", category.String()),
				zap.Uint32("reconnects", state.Reconnects.Load()),
			)

			err := &CaptureError{Category: category, Err: errors.New(gerr.Error())}
			onFault(err)
			return err

		case gst.MessageStateChanged:
			if msg.Source() == elements.Pipeline.GetName() {
				old, current := msg.ParseStateChanged()
				logger.Debug("v4l2: pipeline state changed",
					zap.Any("from", old),
					zap.Any("to", current),
				)
				if current == gst.StatePlaying {
					state.Reset()
				}
			}
		}
	}
}
