package model

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
)

const nativeFormat = "pothole-native/v1"

// DenseLayer is a fully connected layer. Weights holds Out rows of In values.
type DenseLayer struct {
	Name       string    `json:"name"`
	In         int       `json:"in"`
	Out        int       `json:"out"`
	Activation string    `json:"activation"`
	Weights    []float32 `json:"weights"`
	Bias       []float32 `json:"bias"`
}

func (l *DenseLayer) forward(x []float32) []float32 {
	out := make([]float32, l.Out)
	for o := 0; o < l.Out; o++ {
		row := l.Weights[o*l.In : (o+1)*l.In]
		sum := l.Bias[o]
		for i, v := range x {
			sum += row[i] * v
		}
		out[o] = sum
	}
	activate(l.Activation, out)
	return out
}

func (l *DenseLayer) params() int64 {
	return int64(len(l.Weights) + len(l.Bias))
}

func (l *DenseLayer) validate(in int) error {
	if l.In != in {
		return fmt.Errorf("layer %q expects %d inputs, previous layer gives %d", l.Name, l.In, in)
	}
	if len(l.Weights) != l.In*l.Out || len(l.Bias) != l.Out {
		return fmt.Errorf("layer %q has %d weights and %d biases for %dx%d", l.Name, len(l.Weights), len(l.Bias), l.Out, l.In)
	}
	switch l.Activation {
	case "", "linear", "relu", "sigmoid", "softmax":
	default:
		return fmt.Errorf("layer %q has unknown activation %q", l.Name, l.Activation)
	}
	return nil
}

func activate(kind string, v []float32) {
	switch kind {
	case "relu":
		for i := range v {
			if v[i] < 0 {
				v[i] = 0
			}
		}
	case "sigmoid":
		for i := range v {
			v[i] = float32(1 / (1 + math.Exp(-float64(v[i]))))
		}
	case "softmax":
		maxV := v[0]
		for _, x := range v[1:] {
			maxV = max(maxV, x)
		}
		var sum float64
		for i := range v {
			e := math.Exp(float64(v[i] - maxV))
			v[i] = float32(e)
			sum += e
		}
		for i := range v {
			v[i] = float32(float64(v[i]) / sum)
		}
	}
}

// NativeNetwork is a small pure-Go network: grid average pooling over the
// input tensor followed by dense layers. Without heads the last layer's
// output is returned as a single merged array.
type NativeNetwork struct {
	Format    string                `json:"format"`
	InputSize int                   `json:"input_size"`
	Grid      int                   `json:"grid"`
	Layers    []DenseLayer          `json:"layers"`
	Heads     map[string]DenseLayer `json:"heads,omitempty"`

	path string
}

// LoadNative reads a native network from a JSON file.
func LoadNative(path string) (*NativeNetwork, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	var n NativeNetwork
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	if err := n.validate(); err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", path, err)
	}
	n.path = path
	return &n, nil
}

// CreateNative builds the untrained detector architecture. The five output
// layers are chained one after another, so the network has one output and
// no heads until it is trained and re-exported with heads attached.
// The same seed always yields the same weights.
func CreateNative(inputSize int, seed uint64) *NativeNetwork {
	rng := rand.New(rand.NewPCG(seed, 0x706f74686f6c65))
	n := &NativeNetwork{
		Format:    nativeFormat,
		InputSize: inputSize,
		Grid:      4,
	}

	shape := []struct {
		name string
		out  int
		act  string
	}{
		{"dense_1", 512, "relu"},
		{"dense_2", 256, "relu"},
		{"dense_3", 128, "relu"},
		{"dense_4", 64, "relu"},
		{"severity_output", 4, "linear"},
		{"confidence_output", 1, "linear"},
		{"dimensions_output", 3, "linear"},
		{"risk_level_output", 1, "linear"},
		{"priority_output", 1, "linear"},
	}
	in := n.features()
	for _, s := range shape {
		n.Layers = append(n.Layers, glorotLayer(rng, s.name, in, s.out, s.act))
		in = s.out
	}
	return n
}

func glorotLayer(rng *rand.Rand, name string, in, out int, act string) DenseLayer {
	limit := math.Sqrt(6 / float64(in+out))
	l := DenseLayer{
		Name:       name,
		In:         in,
		Out:        out,
		Activation: act,
		Weights:    make([]float32, in*out),
		Bias:       make([]float32, out),
	}
	for i := range l.Weights {
		l.Weights[i] = float32((rng.Float64()*2 - 1) * limit)
	}
	return l
}

func (n *NativeNetwork) features() int {
	return n.Grid * n.Grid * 3
}

func (n *NativeNetwork) validate() error {
	if n.Format != nativeFormat {
		return fmt.Errorf("unsupported format %q", n.Format)
	}
	if n.InputSize <= 0 || n.Grid <= 0 || n.Grid > n.InputSize {
		return fmt.Errorf("bad input size %d or grid %d", n.InputSize, n.Grid)
	}
	if len(n.Layers) == 0 && len(n.Heads) == 0 {
		return fmt.Errorf("no layers")
	}
	in := n.features()
	for i := range n.Layers {
		if err := n.Layers[i].validate(in); err != nil {
			return err
		}
		in = n.Layers[i].Out
	}
	for name, head := range n.Heads {
		width, ok := HeadWidths[name]
		if !ok {
			return fmt.Errorf("unknown head %q", name)
		}
		if head.Out != width {
			return fmt.Errorf("head %q has %d outputs, want %d", name, head.Out, width)
		}
		if err := head.validate(in); err != nil {
			return err
		}
	}
	return nil
}

// pool averages each channel over a Grid x Grid partition of the image.
func (n *NativeNetwork) pool(t Tensor) []float32 {
	out := make([]float32, 0, n.features())
	for gy := 0; gy < n.Grid; gy++ {
		y0, y1 := gy*t.Height/n.Grid, (gy+1)*t.Height/n.Grid
		for gx := 0; gx < n.Grid; gx++ {
			x0, x1 := gx*t.Width/n.Grid, (gx+1)*t.Width/n.Grid
			var sum [3]float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					for c := 0; c < 3; c++ {
						sum[c] += float64(t.At(y, x, c))
					}
				}
			}
			cells := float64((y1 - y0) * (x1 - x0))
			for c := 0; c < 3; c++ {
				out = append(out, float32(sum[c]/cells))
			}
		}
	}
	return out
}

func (n *NativeNetwork) Predict(t Tensor) (*RawPrediction, error) {
	if t.Height != n.InputSize || t.Width != n.InputSize || t.Channels != 3 || len(t.Data) != t.Height*t.Width*3 {
		return nil, fmt.Errorf("%w: got %v, want [1 %d %d 3]", ErrInputShape, t.Shape(), n.InputSize, n.InputSize)
	}

	x := n.pool(t)
	for i := range n.Layers {
		x = n.Layers[i].forward(x)
	}

	if len(n.Heads) == 0 {
		return &RawPrediction{Merged: x}, nil
	}
	p := &RawPrediction{}
	for name, head := range n.Heads {
		p.SetHead(name, head.forward(x))
	}
	return p, nil
}

func (n *NativeNetwork) Info() Info {
	info := Info{
		Backend:   "native",
		Path:      n.path,
		InputSize: n.InputSize,
		Layers:    len(n.Layers) + len(n.Heads),
		MultiHead: len(n.Heads) > 0,
	}
	for i := range n.Layers {
		info.Parameters += n.Layers[i].params()
	}
	for _, name := range HeadNames {
		if head, ok := n.Heads[name]; ok {
			info.Parameters += head.params()
			info.Outputs = append(info.Outputs, name)
		}
	}
	if len(n.Heads) == 0 && len(n.Layers) > 0 {
		info.Outputs = []string{n.Layers[len(n.Layers)-1].Name}
	}
	return info
}

// Save writes the network as JSON. The file is replaced atomically.
func (n *NativeNetwork) Save(path string) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	return os.Rename(tmp, path)
}

func (n *NativeNetwork) Close() error {
	return nil
}
