package locate

import (
	"github.com/litescript/ls-sunfix/internal/geo"
)

// StageResult is the best candidate found by one stage.
type StageResult struct {
	Stage       SearchStage     `json:"stage"`
	Center      geo.GeoPosition `json:"center"`
	ErrorScore  float64         `json:"error_score"`
	Evaluations int             `json:"evaluations"`
	Skipped     int             `json:"skipped"` // out-of-range cells
}

// Direction is a sun direction in degrees.
type Direction struct {
	AzimuthDeg   float64 `json:"azimuth_deg"`
	ElevationDeg float64 `json:"elevation_deg"`
}

// Result is the outcome of an estimate.
type Result struct {
	// Position is the reported fix, rounded to Config.RoundDecimals.
	Position geo.GeoPosition `json:"position"`

	// ErrorScore is the weighted residual at the reported stage's center.
	// Callers judge confidence from it; the search itself never fails.
	ErrorScore float64 `json:"error_score"`

	// AngularResidualDeg is the great-circle angle between the modeled and
	// the observed sun direction at the reported center.
	AngularResidualDeg float64 `json:"angular_residual_deg"`

	// Modeled is the sun direction the model predicts at the reported center.
	Modeled Direction `json:"modeled"`

	Confidence Confidence    `json:"confidence"`
	Return     ReturnMode    `json:"-"`
	Stages     []StageResult `json:"stages"`
}

// Confidence buckets the error score for display.
type Confidence int

const (
	ConfidenceHigh   Confidence = iota // score < 0.5
	ConfidenceMedium                   // 0.5-5
	ConfidenceLow                      // >= 5
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

// MarshalText renders the tier by name in JSON.
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ConfidenceFor returns the tier for an error score.
func ConfidenceFor(score float64) Confidence {
	switch {
	case score < 0.5:
		return ConfidenceHigh
	case score < 5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
