package encoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/sha1n/snipsearch/internal/domain"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNX graph input names.
const (
	InputIDsName      = "input_ids"
	AttentionMaskName = "attention_mask"
	TokenTypeIDsName  = "token_type_ids"
)

var runtimeMu sync.Mutex

// ONNXConfig configures the ONNX Runtime backend.
type ONNXConfig struct {
	// ModelPath is the path to the exported model.onnx graph.
	ModelPath string

	// RuntimeLibrary is the onnxruntime shared library path. Empty uses the platform default.
	RuntimeLibrary string

	// OutputName selects the per-token embedding output. Empty selects the first graph output.
	OutputName string

	// HiddenSize overrides the embedding width read from the graph.
	HiddenSize int
}

// ONNXModel runs a transformer encoder exported to ONNX.
// The session is safe for concurrent Run calls.
type ONNXModel struct {
	session       *ort.DynamicAdvancedSession
	hiddenSize    int
	withTypeInput bool
}

// OpenONNXModel loads the model graph and creates an inference session.
func OpenONNXModel(cfg ONNXConfig) (*ONNXModel, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %w: model not found: %s", domain.ErrProcessInit, domain.ErrModelLoad, cfg.ModelPath)
	}

	if err := initRuntime(cfg.RuntimeLibrary); err != nil {
		return nil, fmt.Errorf("%w: %w: onnxruntime init: %v", domain.ErrProcessInit, domain.ErrModelLoad, err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: read model graph: %v", domain.ErrProcessInit, domain.ErrModelLoad, err)
	}

	inputNames := make([]string, 0, len(inputs))
	for _, in := range inputs {
		inputNames = append(inputNames, in.Name)
	}
	for _, required := range []string{InputIDsName, AttentionMaskName} {
		if !slices.Contains(inputNames, required) {
			return nil, fmt.Errorf("%w: %w: model has no %q input (inputs: %v)", domain.ErrProcessInit, domain.ErrModelLoad, required, inputNames)
		}
	}
	withTypeInput := slices.Contains(inputNames, TokenTypeIDsName)

	output, err := selectOutput(outputs, cfg.OutputName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", domain.ErrProcessInit, domain.ErrModelLoad, err)
	}

	hidden := cfg.HiddenSize
	if hidden <= 0 && len(output.Dimensions) == 3 {
		hidden = int(output.Dimensions[2])
	}
	if hidden <= 0 {
		return nil, fmt.Errorf("%w: %w: cannot determine hidden size of output %q (dims %v)", domain.ErrProcessInit, domain.ErrModelLoad, output.Name, output.Dimensions)
	}

	sessionInputs := []string{InputIDsName, AttentionMaskName}
	if withTypeInput {
		sessionInputs = append(sessionInputs, TokenTypeIDsName)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, sessionInputs, []string{output.Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: create session: %v", domain.ErrProcessInit, domain.ErrModelLoad, err)
	}

	return &ONNXModel{
		session:       session,
		hiddenSize:    hidden,
		withTypeInput: withTypeInput,
	}, nil
}

// Run executes the model over one padded batch.
func (m *ONNXModel) Run(ctx context.Context, ids, mask []int64, batch, seqLen int) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ids) != batch*seqLen || len(mask) != batch*seqLen {
		return nil, fmt.Errorf("input shape mismatch: %d ids, %d mask, want %d", len(ids), len(mask), batch*seqLen)
	}

	shape := ort.NewShape(int64(batch), int64(seqLen))

	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer func() { _ = idsTensor.Destroy() }()

	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer func() { _ = maskTensor.Destroy() }()

	inputs := []ort.Value{idsTensor, maskTensor}
	if m.withTypeInput {
		typeTensor, err := ort.NewTensor(shape, make([]int64, batch*seqLen))
		if err != nil {
			return nil, fmt.Errorf("token_type_ids tensor: %w", err)
		}
		defer func() { _ = typeTensor.Destroy() }()
		inputs = append(inputs, typeTensor)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(batch), int64(seqLen), int64(m.hiddenSize)))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer func() { _ = output.Destroy() }()

	if err := m.session.Run(inputs, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("session run: %w", err)
	}

	// Tensor memory is released on Destroy
	data := output.GetData()
	result := make([]float32, len(data))
	copy(result, data)
	return result, nil
}

// HiddenSize returns the per-token embedding width.
func (m *ONNXModel) HiddenSize() int {
	return m.hiddenSize
}

// Close destroys the inference session.
func (m *ONNXModel) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}

func initRuntime(library string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if library != "" {
		ort.SetSharedLibraryPath(library)
	}
	return ort.InitializeEnvironment()
}

func selectOutput(outputs []ort.InputOutputInfo, name string) (ort.InputOutputInfo, error) {
	if len(outputs) == 0 {
		return ort.InputOutputInfo{}, errors.New("model has no outputs")
	}
	if name == "" {
		return outputs[0], nil
	}
	for _, out := range outputs {
		if out.Name == name {
			return out, nil
		}
	}
	return ort.InputOutputInfo{}, fmt.Errorf("model has no output named %q", name)
}
