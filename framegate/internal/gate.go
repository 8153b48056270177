package internal

import (
	"context"
	"sync/atomic"

	"github.com/e7canasta/senyas-gesture/frame"
)

// Stats is a snapshot of gate counters.
type Stats struct {
	// Published counts frames handed to Publish, accepted or not.
	Published uint64

	// Taken counts frames whose ownership moved to a consumer.
	Taken uint64

	// Dropped counts unclaimed frames displaced by a newer Publish.
	// Non-zero is normal: it means the recognizer is slower than the camera.
	Dropped uint64

	// Discarded counts frames released by Clear/Close or published while closed.
	Discarded uint64
}

// Gate is the atomic-swap implementation behind framegate.Gate.
type Gate struct {
	slot   atomic.Pointer[frame.Frame]
	notify chan struct{}
	closed atomic.Bool

	errClosed error

	published atomic.Uint64
	taken     atomic.Uint64
	dropped   atomic.Uint64
	discarded atomic.Uint64
}

// NewGate creates an open gate. errClosed is returned by Take after Close.
func NewGate(errClosed error) *Gate {
	return &Gate{
		notify:    make(chan struct{}, 1),
		errClosed: errClosed,
	}
}

// Publish swaps f into the slot.
//
// Algorithm:
//  1. Closed → release f, done
//  2. Swap(f) → displaced frame is released and counted as drop
//  3. Re-check closed: a Close racing with step 2 may have missed f, so
//     empty the slot again (Swap guarantees only one side gets the frame)
//  4. Non-blocking wake of the consumer
func (g *Gate) Publish(f *frame.Frame) {
	if f == nil {
		return
	}
	g.published.Add(1)

	if g.closed.Load() {
		g.discarded.Add(1)
		f.Close()
		return
	}

	if old := g.slot.Swap(f); old != nil {
		g.dropped.Add(1)
		old.Close()
	}

	if g.closed.Load() {
		g.Clear()
		return
	}

	g.wake()
}

// TryTake transfers slot ownership to the caller.
func (g *Gate) TryTake() *frame.Frame {
	f := g.slot.Swap(nil)
	if f != nil {
		g.taken.Add(1)
	}
	return f
}

// Take waits on the notify channel between TryTake attempts.
func (g *Gate) Take(ctx context.Context) (*frame.Frame, error) {
	for {
		if g.closed.Load() {
			return nil, g.errClosed
		}
		if f := g.TryTake(); f != nil {
			return f, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-g.notify:
		}
	}
}

// Clear releases the pending frame, if any.
func (g *Gate) Clear() int {
	if f := g.slot.Swap(nil); f != nil {
		g.discarded.Add(1)
		f.Close()
		return 1
	}
	return 0
}

// Open re-enables the gate.
func (g *Gate) Open() {
	g.closed.Store(false)
}

// Close rejects further frames and wakes a blocked Take.
func (g *Gate) Close() {
	g.closed.Store(true)
	g.Clear()
	g.wake()
}

// Stats reads the counters without locking.
func (g *Gate) Stats() Stats {
	return Stats{
		Published: g.published.Load(),
		Taken:     g.taken.Load(),
		Dropped:   g.dropped.Load(),
		Discarded: g.discarded.Load(),
	}
}

func (g *Gate) wake() {
	select {
	case g.notify <- struct{}{}:
	default:
	}
}
