package framesource

import (
	"context"

	"github.com/e7canasta/senyas-gesture/frame"
)

// Publisher receives captured frames. framegate.Gate satisfies it.
//
// Publish must not block: it is called from the capture thread.
type Publisher interface {
	Publish(f *frame.Frame)
}

// FaultFunc receives capture faults. Called from capture goroutines.
type FaultFunc func(err error)

// Provider is a push-style frame source.
//
// Implementations must guarantee:
//   - Start() returns once capture is running; frames arrive asynchronously
//   - for each capture attempt exactly one of out.Publish or onFault is called
//   - published frames carry a monotonic AcquiredAtMs and a release hook
//   - Stop() is idempotent and returns only after no further Publish happens
//   - Stats() and SetRotation() are safe from any goroutine
type Provider interface {
	// Start binds the source to out and begins capture.
	//
	// Returns an error if the device cannot be opened or the pipeline cannot
	// be built. On error nothing is left running.
	Start(ctx context.Context, out Publisher, onFault FaultFunc) error

	// Stop halts capture and releases the device.
	Stop() error

	// Stats returns a counter snapshot.
	Stats() Stats

	// SetRotation changes the rotation metadata stamped on subsequent frames.
	// Takes effect without restarting capture. deg must be 0, 90, 180 or 270.
	SetRotation(deg int) error
}
