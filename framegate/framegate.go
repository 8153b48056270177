// Package framegate implements the drop-latest single-slot mailbox between a
// frame producer and the recognition submitter.
//
// Philosophy: "Drop frames, never queue. Latency > Completeness."
//
// The producer (camera callback) must never block on the consumer
// (recognizer submission). The gate holds at most one unclaimed frame: a new
// Publish atomically swaps itself into the slot and releases whatever it
// displaced. The consumer takes ownership of the slot content with TryTake.
//
//	FrameSource ──Publish──▶ [ slot ] ──TryTake/Take──▶ Coordinator.Submit
//	  (30fps)                   │
//	                       displaced frame → Close()
//
// The gate never fails; under load it only drops.
package framegate

import (
	"context"
	"errors"

	"github.com/e7canasta/senyas-gesture/frame"
	"github.com/e7canasta/senyas-gesture/framegate/internal"
)

// ErrClosed is returned by Take once the gate has been closed.
var ErrClosed = errors.New("framegate: closed")

// Gate is the single-slot, drop-latest handoff.
//
// Lifecycle: New() → Open() → Publish()/Take() → Close() → (Open() again).
// A new gate starts open.
type Gate interface {
	// Publish places f in the slot, releasing any frame it displaces.
	// Never blocks. After Close, f is released immediately.
	Publish(f *frame.Frame)

	// TryTake removes and returns the slot content, or nil if empty.
	// The caller owns the returned frame. Never blocks.
	TryTake() *frame.Frame

	// Take blocks until a frame is available, the gate is closed (ErrClosed)
	// or ctx is done (ctx.Err()).
	Take(ctx context.Context) (*frame.Frame, error)

	// Clear releases a pending frame, returning how many were released (0 or 1).
	Clear() int

	// Open re-enables Publish after Close.
	Open()

	// Close clears the slot, rejects further frames and wakes a blocked Take.
	// Idempotent.
	Close()

	// Stats returns a counter snapshot.
	Stats() Stats
}

// Stats is re-exported from the internal package.
// See internal/gate.go for field documentation.
type Stats = internal.Stats

// New returns an open Gate.
func New() Gate {
	return internal.NewGate(ErrClosed)
}
