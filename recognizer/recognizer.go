// Package recognizer defines the asynchronous recognition-engine boundary.
//
// An Engine accepts frames with RecognizeAsync and delivers results, out of
// band, on its Results channel. The coordinator consumes that channel from a
// single goroutine, so engine implementations never call back into caller code.
//
//	Coordinator ──RecognizeAsync(req)──▶ Engine ──Results()──▶ Coordinator result loop
//
// Engines require non-decreasing request timestamps for one instance.
package recognizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/e7canasta/senyas-gesture/frame"
)

// RunningMode selects how the engine schedules work.
type RunningMode int

const (
	// LiveStream delivers results asynchronously on Results().
	LiveStream RunningMode = iota
	// Image processes requests one at a time; still reported on Results().
	Image
)

func (m RunningMode) String() string {
	switch m {
	case LiveStream:
		return "live_stream"
	case Image:
		return "image"
	default:
		return fmt.Sprintf("RunningMode(%d)", int(m))
	}
}

// DefaultModelAssetPath is the recognizer bundle used when none is configured.
const DefaultModelAssetPath = "gesture_recognizer.task"

// Options configures engine construction.
type Options struct {
	ModelAssetPath string
	NumHands       int
	RunningMode    RunningMode

	// MinScore drops hands whose confidence is below it. Zero keeps everything.
	MinScore float32

	// Labels overrides the label set of classifier-style models.
	Labels []string

	// WorkerCommand is the argv of an out-of-process runner (subprocess backend).
	WorkerCommand []string
}

// DefaultOptions returns streaming options for one hand.
func DefaultOptions() Options {
	return Options{
		ModelAssetPath: DefaultModelAssetPath,
		NumHands:       1,
		RunningMode:    LiveStream,
	}
}

// Validate checks the options are usable.
func (o Options) Validate() error {
	if o.ModelAssetPath == "" {
		return errors.New("recognizer: model_asset_path is required")
	}
	if o.NumHands < 1 {
		return fmt.Errorf("recognizer: num_hands must be >= 1, got %d", o.NumHands)
	}
	if o.MinScore < 0 || o.MinScore > 1 {
		return fmt.Errorf("recognizer: min_score must be in [0,1], got %v", o.MinScore)
	}
	return nil
}

// Request is one frame submitted for recognition.
type Request struct {
	Frame       *frame.Frame
	TimestampMs int64
}

// Category is one classification candidate.
type Category struct {
	Name  string
	Score float32
	Index int
}

// Result is the engine's answer for one request.
type Result struct {
	TimestampMs int64
	Seq         uint64

	// Gestures holds candidates per detected hand.
	Gestures [][]Category

	// Handedness holds left/right candidates per detected hand. May be empty.
	Handedness [][]Category

	// Err is set when the engine failed asynchronously for this request.
	Err error
}

// Engine is an asynchronous recognizer.
type Engine interface {
	// RecognizeAsync enqueues req. It must not block beyond a bounded copy of
	// the frame content: the caller releases the frame as soon as it returns.
	RecognizeAsync(req Request) error

	// Results delivers outcomes. Closed after Close returns.
	Results() <-chan Result

	// Close stops the engine and releases native resources. Idempotent.
	Close() error
}

// Factory constructs an Engine. Errors are reported as initialization failures.
type Factory func(ctx context.Context, opts Options) (Engine, error)

// ErrQueueFull is returned by RecognizeAsync when the bounded queue is saturated.
var ErrQueueFull = errors.New("recognizer: queue full")

// ErrClosed is returned by RecognizeAsync after Close.
var ErrClosed = errors.New("recognizer: engine closed")
