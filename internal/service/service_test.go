package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/senyas-gesture/config"
	"github.com/e7canasta/senyas-gesture/recognizer"
)

// echoEngine answers every request with one open_palm hand.
type echoEngine struct {
	mu      sync.Mutex
	closed  bool
	results chan recognizer.Result
}

func (e *echoEngine) RecognizeAsync(req recognizer.Request) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return recognizer.ErrClosed
	}
	select {
	case e.results <- recognizer.Result{
		TimestampMs: req.TimestampMs,
		Seq:         req.Frame.Seq,
		Gestures:    [][]recognizer.Category{{{Name: "open_palm", Score: 0.92}}},
	}:
		return nil
	default:
		return recognizer.ErrQueueFull
	}
}

func (e *echoEngine) Results() <-chan recognizer.Result { return e.results }

func (e *echoEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.results)
	}
	return nil
}

func echoFactory(built *int, mu *sync.Mutex) recognizer.Factory {
	return func(_ context.Context, opts recognizer.Options) (recognizer.Engine, error) {
		mu.Lock()
		*built++
		mu.Unlock()
		return &echoEngine{results: make(chan recognizer.Result, 8)}, nil
	}
}

const testConfig = `
instance_id: test-kiosk
camera:
  synthetic: true
  width: 32
  height: 24
  fps: 100
recognizer:
  worker_command: [unused]
history:
  stable_frames: 2
`

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestService_EndToEnd(t *testing.T) {
	cfg, err := config.Parse([]byte(testConfig))
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	built := 0
	svc, err := New(cfg, nil, Overrides{Factory: echoFactory(&built, &mu)})
	if err != nil {
		t.Fatal(err)
	}

	if got := svc.HealthCheck().Status; got != "unhealthy" {
		t.Errorf("health before Run = %q", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(ctx) }()

	waitFor(t, "first gesture", func() bool { return svc.Latest().Text() == "open_palm  (92.0%)" })
	waitFor(t, "history entry", func() bool {
		entries, _ := svc.History().List(context.Background())
		return len(entries) == 1 && entries[0].Text == "open_palm"
	})

	hc := svc.HealthCheck()
	if hc.Status != "healthy" || hc.State != "running" || !hc.SourceRunning {
		t.Errorf("health = %+v", hc)
	}
	if hc.Counters["observations"] == 0 {
		t.Errorf("no observations counted: %v", hc.Counters)
	}
	if st := svc.Status(); st["instance_id"] != "test-kiosk" || st["state"] != "running" {
		t.Errorf("status = %v", st)
	}

	// Control-plane stop/start cycles the engine.
	cb := svc.Callbacks()
	if err := cb.OnStop(); err != nil {
		t.Fatal(err)
	}
	if got := svc.HealthCheck().Status; got != "unhealthy" {
		t.Errorf("health after stop = %q", got)
	}
	if err := cb.OnStart(); err != nil {
		t.Fatal(err)
	}
	if err := cb.OnSetRotation(90); err != nil {
		t.Fatal(err)
	}
	if err := cb.OnSetRotation(45); err == nil {
		t.Error("expected error for invalid rotation")
	}
	mu.Lock()
	if built != 2 {
		t.Errorf("engines built = %d, want 2", built)
	}
	mu.Unlock()

	n, err := cb.OnDeleteHistory(context.Background(), "open_palm")
	if err != nil || n < 1 {
		t.Errorf("delete history = %d, %v", n, err)
	}

	cancel()
	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := svc.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
	if hc := svc.HealthCheck(); hc.State != "stopped" {
		t.Errorf("state after shutdown = %q", hc.State)
	}
}

func TestRecognizerOptions(t *testing.T) {
	cfg, err := config.Parse([]byte(testConfig))
	if err != nil {
		t.Fatal(err)
	}
	opts := RecognizerOptions(cfg.Recognizer)
	if opts.ModelAssetPath != recognizer.DefaultModelAssetPath || opts.NumHands != 1 || opts.RunningMode != recognizer.LiveStream {
		t.Errorf("options = %+v", opts)
	}
	if err := opts.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestService_RunTwice(t *testing.T) {
	cfg, _ := config.Parse([]byte(testConfig))
	var mu sync.Mutex
	built := 0
	svc, err := New(cfg, nil, Overrides{Factory: echoFactory(&built, &mu)})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	waitFor(t, "running", func() bool { return svc.HealthCheck().State == "running" })

	if err := svc.Run(context.Background()); err == nil {
		t.Error("expected error when already running")
	}
	cancel()
	<-done
	_ = svc.Shutdown(context.Background())
}
