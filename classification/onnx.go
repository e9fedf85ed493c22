package classification

import (
	"fmt"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// ONNXOptions configures how models are opened with ONNX Runtime.
type ONNXOptions struct {
	LibraryPath    string
	PoolSize       int
	AcquireTimeout time.Duration
	Fallback       Size
	IntraOpThreads int
}

var envMu sync.Mutex

// ensureEnvironment initializes the ONNX Runtime shared library once per
// process. A failed attempt may be retried by a later load.
func ensureEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

// DestroyEnvironment releases ONNX Runtime if it was initialized.
func DestroyEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// NewONNXOpener returns an OpenFunc backed by ONNX Runtime sessions.
func NewONNXOpener(opts ONNXOptions, logger *zap.Logger) OpenFunc {
	if opts.Fallback.Width <= 0 || opts.Fallback.Height <= 0 {
		opts.Fallback = Size{Width: DefaultInputWidth, Height: DefaultInputHeight}
	}
	return func(path string) (Engine, error) {
		return openONNX(path, opts, logger)
	}
}

func openONNX(path string, opts ONNXOptions, logger *zap.Logger) (Engine, error) {
	if err := ensureEnvironment(opts.LibraryPath); err != nil {
		return nil, newError(KindModelLoad, "onnx.environment", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, newError(KindModelLoad, "onnx.inspect", fmt.Errorf("failed to read model info: %w", err))
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, newError(KindModelLoad, "onnx.inspect",
			fmt.Errorf("model declares %d inputs and %d outputs", len(inputs), len(outputs)))
	}
	in, out := inputs[0], outputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat || out.DataType != ort.TensorElementDataTypeFloat {
		return nil, newError(KindModelLoad, "onnx.inspect",
			fmt.Errorf("unsupported tensor types: input %v, output %v", in.DataType, out.DataType))
	}

	spec := ResolveInput(in.Dimensions, opts.Fallback)
	if !spec.FromModel {
		logger.Warn("could not determine model input size, using fallback",
			zap.Int64s("declared", in.Dimensions),
			zap.Int("width", spec.Size.Width),
			zap.Int("height", spec.Size.Height))
	}

	outShape, err := batchOfOne(out.Dimensions)
	if err != nil {
		return nil, newError(KindModelLoad, "onnx.inspect", err)
	}

	factory := func() (session, error) {
		s, err := newONNXSession(path, in.Name, out.Name, spec.Shape(), outShape, opts.IntraOpThreads)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	pool, err := newSessionPool(opts.PoolSize, opts.AcquireTimeout, factory)
	if err != nil {
		return nil, newError(KindModelLoad, "onnx.session", err)
	}

	return newPooledEngine(spec, int(outShape.FlattenedSize()), pool), nil
}

// batchOfOne pins a dynamic leading batch dimension to one. Any other
// dynamic dimension cannot be bound to a preallocated output.
func batchOfOne(dims ort.Shape) (ort.Shape, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("model output has no dimensions")
	}
	shape := dims.Clone()
	if shape[0] <= 0 {
		shape[0] = 1
	}
	for i, d := range shape[1:] {
		if d <= 0 {
			return nil, fmt.Errorf("model output dimension %d is dynamic: %v", i+1, dims)
		}
	}
	return shape, nil
}

type onnxSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func newONNXSession(path, inputName, outputName string, inShape []int64, outShape ort.Shape, threads int) (*onnxSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if threads > 0 {
		if err := options.SetIntraOpNumThreads(threads); err != nil {
			return nil, fmt.Errorf("error setting intra-op threads: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(inShape...))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	sess, err := ort.NewAdvancedSession(
		path,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &onnxSession{session: sess, input: inputTensor, output: outputTensor}, nil
}

func (s *onnxSession) Run(input []float32) ([]float32, error) {
	copy(s.input.GetData(), input)
	if err := s.session.Run(); err != nil {
		return nil, err
	}
	data := s.output.GetData()
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

func (s *onnxSession) Destroy() {
	if s.session != nil {
		s.session.Destroy()
	}
	if s.input != nil {
		s.input.Destroy()
	}
	if s.output != nil {
		s.output.Destroy()
	}
}
