package pothole

import (
	"fmt"
	"math"

	"github.com/roadguard/pothole-api/internal/model"
)

// Physical range of each dimension, in centimeters. Ratios emitted by the
// dimensions head are multiplied by the maximum and clamped into the range.
const (
	minWidthCM, maxWidthCM   = 10, 100
	minLengthCM, maxLengthCM = 10, 120
	minDepthCM, maxDepthCM   = 1, 20
)

// Values substituted for heads the network does not produce.
var headDefaults = map[string][]float64{
	model.HeadSeverity:   {0.25, 0.25, 0.25, 0.25},
	model.HeadConfidence: {0.8},
	model.HeadDimensions: {0.5, 0.5, 0.3},
	model.HeadRisk:       {0.5},
	model.HeadPriority:   {0.5},
}

// Decoded is the typed form of a raw prediction, before rounding and
// unit presentation.
type Decoded struct {
	Severity           Severity
	SeverityConfidence float64
	Confidence         float64
	Width              float64
	Length             float64
	Depth              float64
	Risk               float64
	RiskLevel          RiskLevel
	Priority           int
}

// DecodePrediction converts the raw network output. Missing heads take their
// defaults; a prediction with no heads at all, a single merged output, a
// mis-sized head or a non-finite value yields a *DegradedModelError.
func DecodePrediction(p *model.RawPrediction) (Decoded, error) {
	if p == nil {
		return Decoded{}, &DegradedModelError{Reason: "no prediction"}
	}
	if p.HeadCount() == 0 {
		if p.Merged != nil {
			return Decoded{}, &DegradedModelError{Reason: fmt.Sprintf("single output of %d values", len(p.Merged))}
		}
		return Decoded{}, &DegradedModelError{Reason: "prediction has no heads"}
	}

	heads := make(map[string][]float64, len(model.HeadNames))
	for _, name := range model.HeadNames {
		values, err := headValues(p, name)
		if err != nil {
			return Decoded{}, err
		}
		heads[name] = values
	}

	var d Decoded
	idx := argmax(heads[model.HeadSeverity])
	d.Severity = Severities[idx]
	d.SeverityConfidence = heads[model.HeadSeverity][idx]
	d.Confidence = heads[model.HeadConfidence][0]

	dims := heads[model.HeadDimensions]
	d.Width = clamp(dims[0]*maxWidthCM, minWidthCM, maxWidthCM)
	d.Length = clamp(dims[1]*maxLengthCM, minLengthCM, maxLengthCM)
	d.Depth = clamp(dims[2]*maxDepthCM, minDepthCM, maxDepthCM)

	d.Risk = heads[model.HeadRisk][0]
	d.RiskLevel = RiskLevelFor(d.Risk)
	d.Priority = PriorityFor(heads[model.HeadPriority][0])
	return d, nil
}

func headValues(p *model.RawPrediction, name string) ([]float64, error) {
	raw := p.Head(name)
	if raw == nil {
		return headDefaults[name], nil
	}
	if want := model.HeadWidths[name]; len(raw) != want {
		return nil, &DegradedModelError{Reason: fmt.Sprintf("%s head has %d values, want %d", name, len(raw), want)}
	}
	values := make([]float64, len(raw))
	for i, v := range raw {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &DegradedModelError{Reason: fmt.Sprintf("%s head contains %v", name, f)}
		}
		values[i] = f
	}
	return values, nil
}

// argmax returns the index of the first maximum.
func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// RiskLevelFor buckets a risk scalar. Each bucket includes its lower bound.
func RiskLevelFor(risk float64) RiskLevel {
	switch {
	case risk < 0.3:
		return RiskLow
	case risk < 0.6:
		return RiskMedium
	case risk < 0.8:
		return RiskHigh
	}
	return RiskCritical
}

// PriorityFor maps the priority head to an integer in [1,10].
func PriorityFor(v float64) int {
	return int(clamp(math.Round(v*10), 1, 10))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
