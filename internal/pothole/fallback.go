package pothole

import (
	"math/rand/v2"
	"sync"
	"time"
)

// RandSource is the randomness the fallback generator draws from.
// *rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
	IntN(n int) int
}

// Fallback produces plausible but non-model results. Severity and risk label
// are drawn independently, so they can disagree (e.g. "critical" with
// "Low Risk").
type Fallback struct {
	mu  sync.Mutex
	rng RandSource
}

func NewFallback(rng RandSource) *Fallback {
	return &Fallback{rng: rng}
}

// NewSeededFallback returns a generator whose sequence is fixed by seed.
func NewSeededFallback(seed uint64) *Fallback {
	return NewFallback(rand.New(rand.NewPCG(seed, seed)))
}

func (f *Fallback) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*f.rng.Float64()
}

// Generate draws a new result. Area and volume are derived from the drawn
// dimensions, never drawn themselves.
func (f *Fallback) Generate() AnalysisResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	severity := Severities[f.rng.IntN(len(Severities))]
	risk := RiskLevels[f.rng.IntN(len(RiskLevels))]
	width := f.uniform(20, 80)
	length := f.uniform(25, 100)
	depth := f.uniform(3, 15)

	return withDerived(AnalysisResult{
		Confidence:         round(f.uniform(0.7, 0.9), 3),
		Severity:           severity,
		SeverityConfidence: round(f.uniform(0.8, 0.95), 3),
		Dimensions: Dimensions{
			Width:  round(width, 1),
			Length: round(length, 1),
			Depth:  round(depth, 1),
		},
		RiskLevel: risk,
		RiskScore: round(f.uniform(0.3, 0.9), 3),
		Priority:  3 + f.rng.IntN(7),
		Source:    SourceFallback,
	})
}

func clockSeed() uint64 {
	return uint64(time.Now().UnixNano())
}
