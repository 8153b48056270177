package onnx

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/senyas-gesture/frame"
	"github.com/e7canasta/senyas-gesture/recognizer"
)

type fakeModel struct {
	input  []float32
	logits []float32
	err    error
	gate   chan struct{}

	mu        sync.Mutex
	runs      int
	destroyed int
	lastInput []float32
}

func newFakeModel(size int, logits ...float32) *fakeModel {
	return &fakeModel{input: make([]float32, 3*size*size), logits: logits}
}

func (m *fakeModel) Input() []float32 { return m.input }

func (m *fakeModel) Run() ([]float32, error) {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
	m.lastInput = append([]float32(nil), m.input...)
	return m.logits, m.err
}

func (m *fakeModel) Destroy() {
	m.mu.Lock()
	m.destroyed++
	m.mu.Unlock()
}

func approx(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-4 }

func TestSoftmax(t *testing.T) {
	p := softmax([]float32{1, 1, 1, 1})
	for i, v := range p {
		if !approx(v, 0.25) {
			t.Errorf("p[%d] = %v, want 0.25", i, v)
		}
	}

	// Large logits must not overflow.
	p = softmax([]float32{1000, 0})
	if !approx(p[0], 1) || !approx(p[1], 0) {
		t.Errorf("unexpected probabilities: %v", p)
	}

	if got := softmax(nil); len(got) != 0 {
		t.Errorf("softmax(nil) = %v", got)
	}
}

func TestClassify(t *testing.T) {
	labels := []string{"none", "open_palm", "thumb_up"}

	cats := classify([]float32{0, 3, 1}, labels, 0)
	if len(cats) != 3 {
		t.Fatalf("got %d categories, want 3", len(cats))
	}
	if cats[0].Name != "open_palm" || cats[0].Index != 1 {
		t.Errorf("top = %+v, want open_palm/1", cats[0])
	}
	if cats[1].Name != "thumb_up" || cats[2].Name != "none" {
		t.Errorf("not sorted by score: %+v", cats)
	}

	var sum float32
	for _, c := range cats {
		sum += c.Score
	}
	if !approx(sum, 1) {
		t.Errorf("scores sum to %v", sum)
	}

	if got := classify([]float32{0, 0, 0}, labels, 0.5); got != nil {
		t.Errorf("expected no candidates below min score, got %+v", got)
	}
}

func TestClassify_MissingLabels(t *testing.T) {
	cats := classify([]float32{0, 5}, []string{"a"}, 0)
	if cats[0].Name != "class_1" {
		t.Errorf("got %q, want class_1", cats[0].Name)
	}
}

func TestPreprocess_RGBPlanes(t *testing.T) {
	// 2x2 pure red frame.
	data := []byte{255, 0, 0, 255, 0, 0, 255, 0, 0, 255, 0, 0}
	dst := make([]float32, 3*2*2)
	if err := preprocess(frame.New(data, 2, 2), 2, dst); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if !approx(dst[i], 1) || !approx(dst[4+i], 0) || !approx(dst[8+i], 0) {
			t.Fatalf("unexpected planes: %v", dst)
		}
	}
}

func TestPreprocess_Errors(t *testing.T) {
	dst := make([]float32, 3*4)
	if err := preprocess(frame.New([]byte{1}, 2, 2), 2, dst); err == nil {
		t.Error("expected short buffer error")
	}
	if err := preprocess(frame.New(make([]byte, 12), 2, 2), 4, dst); err == nil {
		t.Error("expected small tensor error")
	}
}

func TestLoadLabels(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "gestures.onnx")
	if got := LabelsPath(model); got != filepath.Join(dir, "gestures.labels") {
		t.Fatalf("LabelsPath = %q", got)
	}
	content := "# classes\nnone\n\nopen_palm\n  thumb_up  \n"
	if err := os.WriteFile(LabelsPath(model), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	labels, err := LoadLabels(LabelsPath(model))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"none", "open_palm", "thumb_up"}
	if len(labels) != len(want) {
		t.Fatalf("labels = %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("labels[%d] = %q, want %q", i, labels[i], want[i])
		}
	}

	empty := filepath.Join(dir, "empty.labels")
	_ = os.WriteFile(empty, []byte("\n# nothing\n"), 0o644)
	if _, err := LoadLabels(empty); err == nil {
		t.Error("expected error for empty label file")
	}
}

func testEngine(t *testing.T, m *fakeModel, minScore float32, queue int) *Engine {
	t.Helper()
	opts := recognizer.DefaultOptions()
	opts.MinScore = minScore
	e := newEngine(m, []string{"none", "open_palm"}, opts, Config{InputSize: 2, QueueSize: queue}.withDefaults())
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func recv(t *testing.T, e *Engine) recognizer.Result {
	t.Helper()
	select {
	case r := <-e.Results():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for result")
	}
	return recognizer.Result{}
}

func TestEngine_SingleHandResult(t *testing.T) {
	m := newFakeModel(2, 0, 4)
	e := testEngine(t, m, 0, 2)

	f := frame.New(make([]byte, 12), 2, 2, frame.WithSeq(9))
	if err := e.RecognizeAsync(recognizer.Request{Frame: f, TimestampMs: 77}); err != nil {
		t.Fatal(err)
	}
	r := recv(t, e)
	if r.Err != nil {
		t.Fatal(r.Err)
	}
	if r.TimestampMs != 77 || r.Seq != 9 {
		t.Errorf("got ts=%d seq=%d", r.TimestampMs, r.Seq)
	}
	if len(r.Gestures) != 1 || r.Gestures[0][0].Name != "open_palm" {
		t.Errorf("unexpected gestures %+v", r.Gestures)
	}
}

func TestEngine_BelowMinScoreYieldsZeroHands(t *testing.T) {
	m := newFakeModel(2, 0, 0)
	e := testEngine(t, m, 0.9, 2)

	if err := e.RecognizeAsync(recognizer.Request{Frame: frame.New(make([]byte, 12), 2, 2), TimestampMs: 1}); err != nil {
		t.Fatal(err)
	}
	r := recv(t, e)
	if r.Err != nil || len(r.Gestures) != 0 {
		t.Errorf("expected empty result, got %+v", r)
	}
	if e.Stats().Empty != 1 {
		t.Errorf("empty = %d, want 1", e.Stats().Empty)
	}
}

func TestEngine_RunErrorReported(t *testing.T) {
	m := newFakeModel(2, 0, 1)
	m.err = errors.New("boom")
	e := testEngine(t, m, 0, 2)

	if err := e.RecognizeAsync(recognizer.Request{Frame: frame.New(make([]byte, 12), 2, 2), TimestampMs: 1}); err != nil {
		t.Fatal(err)
	}
	if r := recv(t, e); r.Err == nil {
		t.Error("expected error result")
	}
}

func TestEngine_CopiesFrame(t *testing.T) {
	m := newFakeModel(2, 0, 1)
	m.gate = make(chan struct{})
	e := testEngine(t, m, 0, 2)

	data := make([]byte, 12)
	for i := range data {
		data[i] = 255
	}
	if err := e.RecognizeAsync(recognizer.Request{Frame: frame.New(data, 2, 2), TimestampMs: 1}); err != nil {
		t.Fatal(err)
	}
	for i := range data {
		data[i] = 0
	}
	close(m.gate)
	recv(t, e)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !approx(m.lastInput[0], 1) {
		t.Errorf("model saw caller's later writes: %v", m.lastInput[0])
	}
}

func TestEngine_QueueFullAndClose(t *testing.T) {
	m := newFakeModel(2, 0, 1)
	m.gate = make(chan struct{})
	e := testEngine(t, m, 0, 1)

	var full int
	for i := 0; i < 5; i++ {
		err := e.RecognizeAsync(recognizer.Request{Frame: frame.New(make([]byte, 12), 2, 2), TimestampMs: int64(i)})
		if errors.Is(err, recognizer.ErrQueueFull) {
			full++
		}
	}
	if full == 0 {
		t.Error("expected ErrQueueFull while inference is blocked")
	}
	close(m.gate)

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	_ = e.Close()

	for range e.Results() {
	}
	m.mu.Lock()
	destroyed := m.destroyed
	m.mu.Unlock()
	if destroyed != 1 {
		t.Errorf("model destroyed %d times, want 1", destroyed)
	}
	err := e.RecognizeAsync(recognizer.Request{Frame: frame.New(make([]byte, 12), 2, 2), TimestampMs: 9})
	if !errors.Is(err, recognizer.ErrClosed) {
		t.Errorf("after Close: %v, want ErrClosed", err)
	}
}

func TestNew_MissingModel(t *testing.T) {
	opts := recognizer.DefaultOptions()
	opts.ModelAssetPath = filepath.Join(t.TempDir(), "none.onnx")
	if _, err := New(context.Background(), opts, Config{}); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}

func TestNew_MissingLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gestures.onnx")
	_ = os.WriteFile(path, []byte("x"), 0o644)
	opts := recognizer.DefaultOptions()
	opts.ModelAssetPath = path
	if _, err := New(context.Background(), opts, Config{}); err == nil {
		t.Fatal("expected missing labels error")
	}
}
