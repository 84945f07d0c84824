package pothole

// Severity is the damage class predicted for a pothole.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities is ordered by the severity head's output index.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// RiskLevel is the bucketed risk label.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low Risk"
	RiskMedium   RiskLevel = "Medium Risk"
	RiskHigh     RiskLevel = "High Risk"
	RiskCritical RiskLevel = "Critical Risk"
)

// RiskLevels is ordered from lowest to highest risk.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Source tells whether a result came from the model or the fallback generator.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Dimensions are in centimeters.
type Dimensions struct {
	Width  float64 `json:"width"`
	Length float64 `json:"length"`
	Depth  float64 `json:"depth"`
}

// AnalysisResult is the analysis of one pothole image. Area is in cm² and
// Volume in cm³, both derived from Dimensions.
type AnalysisResult struct {
	Confidence         float64    `json:"confidence"`
	Severity           Severity   `json:"severity"`
	SeverityConfidence float64    `json:"severity_confidence"`
	Dimensions         Dimensions `json:"dimensions"`
	RiskLevel          RiskLevel  `json:"riskLevel"`
	RiskScore          float64    `json:"risk_score"`
	Priority           int        `json:"priority"`
	Area               float64    `json:"area"`
	Volume             float64    `json:"volume"`
	Source             Source     `json:"source"`
}
