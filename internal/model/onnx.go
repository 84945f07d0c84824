package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var runtimeMu sync.Mutex

// InitRuntime initializes the process-wide ONNX Runtime environment.
// libraryPath may be empty to use the runtime's default lookup.
func InitRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

// DestroyRuntime tears down the ONNX Runtime environment, if it was started.
func DestroyRuntime() {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

// ONNXNetwork runs an exported graph through ONNX Runtime. Each Predict call
// allocates its own tensors, so calls may run concurrently.
type ONNXNetwork struct {
	session     *ort.DynamicAdvancedSession
	path        string
	inputName   string
	nchw        bool
	inputSize   int
	outputNames []string
	heads       []string
}

// LoadONNX opens an ONNX graph. Output heads are mapped using the optional
// <name>.meta.json sidecar, then output names, then position.
func LoadONNX(path string) (*ONNXNetwork, error) {
	if err := InitRuntime(""); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect ONNX graph: %w", err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: %s declares no inputs", ErrInputShape, path)
	}
	if len(outputs) == 0 {
		return nil, ErrNoOutputs
	}

	meta, err := readMetadata(path)
	if err != nil {
		return nil, err
	}

	n := &ONNXNetwork{
		path:      path,
		inputName: inputs[0].Name,
		inputSize: DefaultInputSize,
	}
	dims := inputs[0].Dimensions
	if len(dims) == 4 {
		n.nchw = dims[1] == 3
		h := dims[1]
		if n.nchw {
			h = dims[2]
		}
		if h > 0 {
			n.inputSize = int(h)
		}
	}
	if meta != nil {
		if meta.InputName != "" {
			n.inputName = meta.InputName
		}
		switch strings.ToUpper(meta.InputLayout) {
		case "NCHW":
			n.nchw = true
		case "NHWC":
			n.nchw = false
		}
		if meta.ImageSize > 0 {
			n.inputSize = meta.ImageSize
		}
	}

	for _, o := range outputs {
		n.outputNames = append(n.outputNames, o.Name)
	}
	n.heads = mapHeads(n.outputNames, meta)

	n.session, err = ort.NewDynamicAdvancedSession(path, []string{n.inputName}, n.outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return n, nil
}

func readMetadata(path string) (*Metadata, error) {
	metaPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".meta.json"
	raw, err := os.ReadFile(metaPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &meta, nil
}

// mapHeads assigns a head name to each output. A nil result means the graph
// has one undifferentiated output.
func mapHeads(outputNames []string, meta *Metadata) []string {
	if meta != nil && len(meta.Heads) > 0 {
		heads := make([]string, len(outputNames))
		for head, output := range meta.Heads {
			for i, name := range outputNames {
				if name == output {
					heads[i] = head
				}
			}
		}
		return heads
	}

	keywords := []struct{ key, head string }{
		{"severity", HeadSeverity},
		{"confidence", HeadConfidence},
		{"dimension", HeadDimensions},
		{"risk", HeadRisk},
		{"priority", HeadPriority},
	}
	byName := make([]string, len(outputNames))
	seen := map[string]bool{}
	for i, name := range outputNames {
		lower := strings.ToLower(name)
		for _, kw := range keywords {
			if strings.Contains(lower, kw.key) && !seen[kw.head] {
				byName[i] = kw.head
				seen[kw.head] = true
				break
			}
		}
	}
	if len(seen) == len(outputNames) && len(outputNames) > 1 {
		return byName
	}

	if len(outputNames) == 1 {
		return nil
	}
	heads := make([]string, len(outputNames))
	for i := range outputNames {
		if i < len(HeadNames) {
			heads[i] = HeadNames[i]
		}
	}
	return heads
}

// assemble turns per-output values into a RawPrediction.
func assemble(heads []string, values [][]float32) *RawPrediction {
	p := &RawPrediction{}
	if heads == nil {
		if len(values) > 0 {
			p.Merged = values[0]
		}
		return p
	}
	for i, head := range heads {
		if head != "" && i < len(values) {
			p.SetHead(head, values[i])
		}
	}
	return p
}

func toNCHW(t Tensor) []float32 {
	plane := t.Height * t.Width
	out := make([]float32, len(t.Data))
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			for c := 0; c < t.Channels; c++ {
				out[c*plane+y*t.Width+x] = t.At(y, x, c)
			}
		}
	}
	return out
}

func (n *ONNXNetwork) Predict(t Tensor) (*RawPrediction, error) {
	if t.Height != n.inputSize || t.Width != n.inputSize || t.Channels != 3 {
		return nil, fmt.Errorf("%w: got %v, want %dx%d", ErrInputShape, t.Shape(), n.inputSize, n.inputSize)
	}

	data := t.Data
	shape := ort.NewShape(1, int64(t.Height), int64(t.Width), 3)
	if n.nchw {
		data = toNCHW(t)
		shape = ort.NewShape(1, 3, int64(t.Height), int64(t.Width))
	}

	input, err := ort.NewTensor(shape, data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	outs := make([]ort.Value, len(n.outputNames))
	if err := n.session.Run([]ort.Value{input}, outs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		for _, o := range outs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	values := make([][]float32, len(outs))
	for i, o := range outs {
		tensor, ok := o.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %q is not a float32 tensor", n.outputNames[i])
		}
		values[i] = append([]float32(nil), tensor.GetData()...)
	}
	return assemble(n.heads, values), nil
}

func (n *ONNXNetwork) Info() Info {
	return Info{
		Backend:   "onnx",
		Path:      n.path,
		InputSize: n.inputSize,
		Layers:    len(n.outputNames),
		Outputs:   n.outputNames,
		MultiHead: n.heads != nil,
	}
}

// Save copies the graph (and its sidecar, if any) to path.
func (n *ONNXNetwork) Save(path string) error {
	if filepath.Clean(path) == filepath.Clean(n.path) {
		return nil
	}
	if err := copyFile(n.path, path); err != nil {
		return err
	}
	srcMeta := strings.TrimSuffix(n.path, filepath.Ext(n.path)) + ".meta.json"
	if _, err := os.Stat(srcMeta); err == nil {
		return copyFile(srcMeta, strings.TrimSuffix(path, filepath.Ext(path))+".meta.json")
	}
	return nil
}

func copyFile(src, dst string) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return os.Rename(tmp, dst)
}

func (n *ONNXNetwork) Close() error {
	if n.session != nil {
		return n.session.Destroy()
	}
	return nil
}
