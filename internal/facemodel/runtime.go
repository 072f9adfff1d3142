package facemodel

import (
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initialized bool
	initMu      sync.Mutex
)

// InitializeRuntime sets up the ONNX Runtime environment once per process.
// An empty libraryPath keeps the onnxruntime_go default lookup.
func InitializeRuntime(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	slog.Info("onnx runtime initialized", "library", libraryPath)
	initialized = true
	return nil
}

// ShutdownRuntime releases the ONNX Runtime environment.
func ShutdownRuntime() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// session wraps an ONNX Runtime session and serialises Run calls.
type session struct {
	mu          sync.Mutex
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputs      []ort.InputOutputInfo
	outputs     []ort.InputOutputInfo
	inputNames  []string
	outputNames []string
}

// newSession opens a model and discovers its input and output names.
func newSession(modelPath string) (*session, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info for %s: %w", modelPath, err)
	}

	inputNames := make([]string, len(inputs))
	for i, info := range inputs {
		inputNames[i] = info.Name
	}
	outputNames := make([]string, len(outputs))
	for i, info := range outputs {
		outputNames[i] = info.Name
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		_ = options.Destroy()
	}()

	s, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	slog.Debug("onnx session created",
		"model", modelPath,
		"inputs", inputNames,
		"outputs", outputNames)

	return &session{
		session:     s,
		modelPath:   modelPath,
		inputs:      inputs,
		outputs:     outputs,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// inputIndex returns the position of the named input, or -1.
func (s *session) inputIndex(name string) int {
	for i, n := range s.inputNames {
		if n == name {
			return i
		}
	}
	return -1
}

// run executes inference. Outputs are allocated by ONNX Runtime and must be
// released by the caller with destroyValues.
func (s *session) run(inputs []ort.Value) ([]ort.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outputs := make([]ort.Value, len(s.outputNames))
	if err := s.session.Run(inputs, outputs); err != nil {
		destroyValues(outputs)
		return nil, fmt.Errorf("inference failed for %s: %w", s.modelPath, err)
	}
	return outputs, nil
}

func (s *session) destroy() error {
	if s == nil || s.session == nil {
		return nil
	}
	return s.session.Destroy()
}

// floatOutput returns the data of a float32 output tensor.
func floatOutput(v ort.Value) ([]float32, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("expected float32 output tensor, got %T", v)
	}
	return t.GetData(), nil
}

func destroyValues(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			_ = v.Destroy()
		}
	}
}
