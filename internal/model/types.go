package model

// Head names shared by every backend.
const (
	HeadSeverity   = "severity"
	HeadConfidence = "confidence"
	HeadDimensions = "dimensions"
	HeadRisk       = "risk"
	HeadPriority   = "priority"
)

// HeadNames lists the five output heads in their canonical order.
var HeadNames = []string{HeadSeverity, HeadConfidence, HeadDimensions, HeadRisk, HeadPriority}

// HeadWidths is the number of values each head emits for a single image.
var HeadWidths = map[string]int{
	HeadSeverity:   4,
	HeadConfidence: 1,
	HeadDimensions: 3,
	HeadRisk:       1,
	HeadPriority:   1,
}

// DefaultInputSize is the square spatial size every network consumes.
const DefaultInputSize = 224

// Tensor is a normalized NHWC image batch of size 1, values in [0,1].
type Tensor struct {
	Height   int
	Width    int
	Channels int
	Data     []float32
}

// Shape returns the tensor shape including the leading batch dimension.
func (t Tensor) Shape() []int64 {
	return []int64{1, int64(t.Height), int64(t.Width), int64(t.Channels)}
}

// At returns the value at (y, x, c).
func (t Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Width+x)*t.Channels+c]
}

// RawPrediction is the output of one forward pass. A nil head means the
// network did not produce it. Merged is set instead of the heads when the
// network only has a single undifferentiated output.
type RawPrediction struct {
	Severity   []float32
	Confidence []float32
	Dimensions []float32
	Risk       []float32
	Priority   []float32
	Merged     []float32
}

// Head returns the named head, or nil.
func (p *RawPrediction) Head(name string) []float32 {
	switch name {
	case HeadSeverity:
		return p.Severity
	case HeadConfidence:
		return p.Confidence
	case HeadDimensions:
		return p.Dimensions
	case HeadRisk:
		return p.Risk
	case HeadPriority:
		return p.Priority
	}
	return nil
}

// SetHead stores values under the named head. Unknown names are ignored.
func (p *RawPrediction) SetHead(name string, values []float32) {
	switch name {
	case HeadSeverity:
		p.Severity = values
	case HeadConfidence:
		p.Confidence = values
	case HeadDimensions:
		p.Dimensions = values
	case HeadRisk:
		p.Risk = values
	case HeadPriority:
		p.Priority = values
	}
}

// HeadCount returns how many of the five heads are present.
func (p *RawPrediction) HeadCount() int {
	n := 0
	for _, name := range HeadNames {
		if p.Head(name) != nil {
			n++
		}
	}
	return n
}

// Info describes a loaded network for diagnostics.
type Info struct {
	Backend    string   `json:"backend"`
	Path       string   `json:"model_path"`
	InputSize  int      `json:"input_size"`
	Parameters int64    `json:"total_parameters"`
	Layers     int      `json:"model_layers"`
	Outputs    []string `json:"outputs"`
	MultiHead  bool     `json:"multi_head"`
}

// Metadata is the optional sidecar for ONNX graphs (<name>.meta.json).
type Metadata struct {
	InputName   string            `json:"input_name"`
	InputLayout string            `json:"input_layout"`
	Heads       map[string]string `json:"heads"`
	ImageSize   int               `json:"image_size"`
}
