package framegate_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/e7canasta/senyas-gesture/frame"
	"github.com/e7canasta/senyas-gesture/framegate"
)

// trackedFrame builds a frame whose releases are counted.
func trackedFrame(ts int64, releases *atomic.Int32) *frame.Frame {
	return frame.New([]byte{1, 2, 3}, 1, 1,
		frame.WithTimestamp(ts),
		frame.WithRelease(func() { releases.Add(1) }),
	)
}

// TestOnlyLatestRetrievable validates the keep-only-latest policy.
//
// Scenario:
//  1. Publish t=0, t=5, t=10 with no consumer
//  2. TryTake returns t=10
//  3. t=0 and t=5 were each released exactly once
func TestOnlyLatestRetrievable(t *testing.T) {
	g := framegate.New()
	var r0, r5, r10 atomic.Int32

	g.Publish(trackedFrame(0, &r0))
	g.Publish(trackedFrame(5, &r5))
	g.Publish(trackedFrame(10, &r10))

	f := g.TryTake()
	if f == nil {
		t.Fatal("TryTake() = nil, want frame t=10")
	}
	if f.AcquiredAtMs != 10 {
		t.Errorf("took t=%d, want t=10", f.AcquiredAtMs)
	}
	if r0.Load() != 1 || r5.Load() != 1 {
		t.Errorf("releases t=0:%d t=5:%d, want 1 each", r0.Load(), r5.Load())
	}
	if r10.Load() != 0 {
		t.Errorf("taken frame released by gate (%d)", r10.Load())
	}
	if g.TryTake() != nil {
		t.Error("second TryTake() should be empty")
	}

	s := g.Stats()
	if s.Published != 3 || s.Dropped != 2 || s.Taken != 1 {
		t.Errorf("stats = %+v, want published=3 dropped=2 taken=1", s)
	}
}

// TestPublishSequenceReleasesAllButLast runs random-length publish bursts.
func TestPublishSequenceReleasesAllButLast(t *testing.T) {
	for n := 1; n <= 20; n++ {
		g := framegate.New()
		counts := make([]atomic.Int32, n)
		for i := 0; i < n; i++ {
			g.Publish(trackedFrame(int64(i), &counts[i]))
		}
		f := g.TryTake()
		if f == nil || f.AcquiredAtMs != int64(n-1) {
			t.Fatalf("n=%d: took %v, want last frame", n, f)
		}
		for i := 0; i < n-1; i++ {
			if c := counts[i].Load(); c != 1 {
				t.Errorf("n=%d: frame %d released %d times", n, i, c)
			}
		}
	}
}

func TestClear(t *testing.T) {
	g := framegate.New()
	var r atomic.Int32
	g.Publish(trackedFrame(1, &r))

	if n := g.Clear(); n != 1 {
		t.Errorf("Clear() = %d, want 1", n)
	}
	if n := g.Clear(); n != 0 {
		t.Errorf("second Clear() = %d, want 0", n)
	}
	if r.Load() != 1 {
		t.Errorf("releases = %d, want 1", r.Load())
	}
}

func TestPublishAfterCloseReleases(t *testing.T) {
	g := framegate.New()
	g.Close()

	var r atomic.Int32
	g.Publish(trackedFrame(1, &r))
	if r.Load() != 1 {
		t.Errorf("frame published after Close released %d times, want 1", r.Load())
	}
	if g.TryTake() != nil {
		t.Error("closed gate should hold nothing")
	}

	g.Open()
	g.Publish(trackedFrame(2, &r))
	if f := g.TryTake(); f == nil {
		t.Error("reopened gate should accept frames")
	}
}

func TestTakeBlocksUntilPublish(t *testing.T) {
	g := framegate.New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got := make(chan *frame.Frame, 1)
	go func() {
		f, _ := g.Take(ctx)
		got <- f
	}()

	time.Sleep(10 * time.Millisecond)
	var r atomic.Int32
	g.Publish(trackedFrame(42, &r))

	select {
	case f := <-got:
		if f == nil || f.AcquiredAtMs != 42 {
			t.Errorf("Take() = %v, want t=42", f)
		}
	case <-time.After(time.Second):
		t.Fatal("Take() did not wake on Publish")
	}
}

func TestTakeReturnsOnClose(t *testing.T) {
	g := framegate.New()
	done := make(chan error, 1)
	go func() {
		_, err := g.Take(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	g.Close()

	select {
	case err := <-done:
		if !errors.Is(err, framegate.ErrClosed) {
			t.Errorf("Take() err = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Take() did not return after Close")
	}
}

func TestTakeHonoursContext(t *testing.T) {
	g := framegate.New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := g.Take(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Take() err = %v, want DeadlineExceeded", err)
	}
}

// TestConcurrentPublishTake checks no frame is lost or double released
// with a fast producer and a slower consumer.
func TestConcurrentPublishTake(t *testing.T) {
	g := framegate.New()
	const total = 2000

	var released atomic.Int32
	var consumed atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			f, err := g.Take(ctx)
			if err != nil {
				return
			}
			consumed.Add(1)
			f.Close()
		}
	}()

	for i := 0; i < total; i++ {
		g.Publish(trackedFrame(int64(i), &released))
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()
	g.Close()

	if got := released.Load(); got != total {
		t.Errorf("released = %d, want %d", got, total)
	}
	s := g.Stats()
	if s.Taken+s.Dropped+s.Discarded != total {
		t.Errorf("taken(%d)+dropped(%d)+discarded(%d) != %d", s.Taken, s.Dropped, s.Discarded, total)
	}
}
