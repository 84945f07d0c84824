package pothole

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose(t *testing.T) {
	d := Decoded{
		Severity:           SeverityHigh,
		SeverityConfidence: 0.9,
		Confidence:         0.8,
		Width:              45.23,
		Length:             62.77,
		Depth:              8.46,
		Risk:               0.75,
		RiskLevel:          RiskHigh,
		Priority:           8,
	}
	r := Compose(d)
	assert.Equal(t, 0.85, r.Confidence)
	assert.Equal(t, SeverityHigh, r.Severity)
	assert.Equal(t, 0.9, r.SeverityConfidence)
	assert.Equal(t, Dimensions{Width: 45.2, Length: 62.8, Depth: 8.5}, r.Dimensions)
	assert.Equal(t, RiskHigh, r.RiskLevel)
	assert.Equal(t, 0.75, r.RiskScore)
	assert.Equal(t, 8, r.Priority)
	assert.InDelta(t, 2838.56, r.Area, 1e-9)
	assert.InDelta(t, 24127.76, r.Volume, 1e-9)
	assert.Equal(t, SourceModel, r.Source)
	requireBounded(t, r)

	require.Equal(t, r, Compose(d))
}

func TestComposeClampsScores(t *testing.T) {
	r := Compose(Decoded{
		Severity:           SeverityLow,
		SeverityConfidence: 1.2,
		Confidence:         1.5,
		Width:              10,
		Length:             10,
		Depth:              1,
		Risk:               -0.2,
		RiskLevel:          RiskLevelFor(-0.2),
		Priority:           1,
	})
	assert.Equal(t, 0.99, r.Confidence)
	assert.Equal(t, 1.0, r.SeverityConfidence)
	assert.Equal(t, 0.0, r.RiskScore)
	assert.Equal(t, RiskLow, r.RiskLevel)
	requireBounded(t, r)

	r = Compose(Decoded{Severity: SeverityLow, Width: 10, Length: 10, Depth: 1, RiskLevel: RiskLow, Priority: 1})
	assert.Equal(t, 0.1, r.Confidence)
}
