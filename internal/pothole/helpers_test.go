package pothole

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/roadguard/pothole-api/internal/model"
	"github.com/stretchr/testify/require"
)

// fakeNetwork returns a fixed prediction regardless of input.
type fakeNetwork struct {
	pred   *model.RawPrediction
	err    error
	panics bool
	closed atomic.Bool
}

func (f *fakeNetwork) Predict(t model.Tensor) (*model.RawPrediction, error) {
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.pred, nil
}

func (f *fakeNetwork) Info() model.Info {
	return model.Info{Backend: "fake", InputSize: 8}
}

func (f *fakeNetwork) Save(path string) error {
	return nil
}

func (f *fakeNetwork) Close() error {
	f.closed.Store(true)
	return nil
}

func fullPrediction() *model.RawPrediction {
	return &model.RawPrediction{
		Severity:   []float32{0.1, 0.2, 0.6, 0.1},
		Confidence: []float32{0.8},
		Dimensions: []float32{0.452, 0.5233, 0.425},
		Risk:       []float32{0.75},
		Priority:   []float32{0.8},
	}
}

func newTestDetector(t *testing.T, opts Options) *Detector {
	if opts.Fallback == nil {
		opts.Fallback = NewSeededFallback(1)
	}
	d := New(logs.NewTestingLog(t), opts)
	t.Cleanup(func() { d.Close() })
	return d
}

func withNetwork(d *Detector, n model.Network) {
	d.install(State{Network: n, Path: "fake", InputSize: 8})
}

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// requireBounded checks the range and derivation guarantees every result must meet.
func requireBounded(t *testing.T, r AnalysisResult) {
	t.Helper()
	require.Contains(t, Severities, r.Severity)
	require.Contains(t, RiskLevels, r.RiskLevel)
	require.GreaterOrEqual(t, r.Dimensions.Width, 10.0)
	require.LessOrEqual(t, r.Dimensions.Width, 100.0)
	require.GreaterOrEqual(t, r.Dimensions.Length, 10.0)
	require.LessOrEqual(t, r.Dimensions.Length, 120.0)
	require.GreaterOrEqual(t, r.Dimensions.Depth, 1.0)
	require.LessOrEqual(t, r.Dimensions.Depth, 20.0)
	require.GreaterOrEqual(t, r.Confidence, 0.1)
	require.LessOrEqual(t, r.Confidence, 0.99)
	require.GreaterOrEqual(t, r.SeverityConfidence, 0.0)
	require.LessOrEqual(t, r.SeverityConfidence, 1.0)
	require.GreaterOrEqual(t, r.RiskScore, 0.0)
	require.LessOrEqual(t, r.RiskScore, 1.0)
	require.GreaterOrEqual(t, r.Priority, 1)
	require.LessOrEqual(t, r.Priority, 10)
	area := r.Dimensions.Width * r.Dimensions.Length
	require.InDelta(t, area, r.Area, 1e-6)
	require.InDelta(t, area*r.Dimensions.Depth, r.Volume, 1e-4)
}
