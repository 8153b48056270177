package frame_test

import (
	"sync"
	"testing"

	"github.com/e7canasta/senyas-gesture/frame"
)

// TestCloseReleasesOnce validates the release hook runs exactly once even
// under concurrent Close calls.
func TestCloseReleasesOnce(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	f := frame.New(make([]byte, 12), 2, 2, frame.WithRelease(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.Close()
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("release calls = %d, want 1", calls)
	}
	if !f.Closed() {
		t.Error("Closed() = false after Close")
	}
}

func TestCloseNil(t *testing.T) {
	var f *frame.Frame
	if err := f.Close(); err != nil {
		t.Errorf("Close on nil frame: %v", err)
	}
	if !f.Closed() {
		t.Error("nil frame should report closed")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		f       *frame.Frame
		wantErr bool
	}{
		{"ok rgb", frame.New(make([]byte, 2*2*3), 2, 2), false},
		{"ok gray", frame.New(make([]byte, 4), 2, 2, frame.WithFormat(frame.FormatGray8)), false},
		{"short buffer", frame.New(make([]byte, 5), 2, 2), true},
		{"zero size", frame.New(nil, 0, 2), true},
		{"bad format", frame.New(make([]byte, 16), 2, 2, frame.WithFormat("NV12")), true},
		{"bad rotation", frame.New(make([]byte, 12), 2, 2, frame.WithRotation(45)), true},
		{"rotated", frame.New(make([]byte, 12), 2, 2, frame.WithRotation(270)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.f.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
