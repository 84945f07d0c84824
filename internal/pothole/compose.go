package pothole

import "math"

const (
	minConfidence = 0.1
	maxConfidence = 0.99
)

// Compose builds the final result from a decoded prediction. It has no hidden
// state: equal inputs give equal results.
func Compose(d Decoded) AnalysisResult {
	overall := clamp((d.Confidence+d.SeverityConfidence)/2, minConfidence, maxConfidence)

	return withDerived(AnalysisResult{
		Confidence:         round(overall, 3),
		Severity:           d.Severity,
		SeverityConfidence: round(clamp(d.SeverityConfidence, 0, 1), 3),
		Dimensions: Dimensions{
			Width:  round(d.Width, 1),
			Length: round(d.Length, 1),
			Depth:  round(d.Depth, 1),
		},
		RiskLevel: d.RiskLevel,
		RiskScore: round(clamp(d.Risk, 0, 1), 3),
		Priority:  d.Priority,
		Source:    SourceModel,
	})
}

// withDerived fills Area and Volume from the already rounded dimensions.
// Products of one-decimal values are exact at two and three decimals.
func withDerived(r AnalysisResult) AnalysisResult {
	area := r.Dimensions.Width * r.Dimensions.Length
	r.Area = round(area, 2)
	r.Volume = round(area*r.Dimensions.Depth, 3)
	return r
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
