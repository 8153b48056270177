package onnx

import (
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// model runs one inference over a prepared input buffer.
type model interface {
	// Input is the buffer the next Run reads.
	Input() []float32
	// Run executes the model and returns the output logits. The slice is
	// only valid until the next Run.
	Run() ([]float32, error)
	Destroy()
}

var (
	envMu   sync.Mutex
	envPath string
	envInit bool
)

// initEnvironment loads the ONNX Runtime shared library once per process.
func initEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envInit {
		if libraryPath != "" && libraryPath != envPath {
			return fmt.Errorf("onnx: runtime already initialized from %q", envPath)
		}
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("onnx: initialize runtime: %w", err)
	}
	envPath = libraryPath
	envInit = true
	return nil
}

// ortModel is a model backed by an ONNX Runtime session with fixed tensors.
type ortModel struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func newORTModel(path string, size, classes, threads int, inputName, outputName string) (*ortModel, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: session options: %w", err)
	}
	defer options.Destroy()

	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("onnx: set threads: %w", err)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, fmt.Errorf("onnx: input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(classes)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("onnx: output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		path,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("onnx: create session: %w", err)
	}

	return &ortModel{session: session, input: input, output: output}, nil
}

func (m *ortModel) Input() []float32 { return m.input.GetData() }

func (m *ortModel) Run() ([]float32, error) {
	if err := m.session.Run(); err != nil {
		return nil, err
	}
	return m.output.GetData(), nil
}

func (m *ortModel) Destroy() {
	m.session.Destroy()
	m.input.Destroy()
	m.output.Destroy()
}
