package locate

import (
	"errors"
	"fmt"
	"math"

	"github.com/litescript/ls-sunfix/internal/astro"
	"github.com/litescript/ls-sunfix/internal/geo"
)

// MaxCellsPerStage bounds the work a single stage may do.
const MaxCellsPerStage = 1_000_000

// ErrInvalidConfig is returned by Validate and New.
var ErrInvalidConfig = errors.New("invalid search config")

// SearchStage is one level of the coarse-to-fine search: a square window of
// half-width RadiusKm sampled every StepKm.
type SearchStage struct {
	Name     string  `json:"name"`
	RadiusKm float64 `json:"radius_km"`
	StepKm   float64 `json:"step_km"`
}

// Cells returns the number of grid cells the stage lays out (before any are
// skipped for being out of range).
func (s SearchStage) Cells() int {
	half := math.Floor(s.RadiusKm/s.StepKm + 1e-9)
	if half > MaxCellsPerStage {
		return math.MaxInt
	}
	n := 2*int(half) + 1
	return n * n
}

// DefaultStages returns coarse (1000/50 km), fine (50/1 km) and extra-fine
// (1/0.1 km).
func DefaultStages() []SearchStage {
	return []SearchStage{
		{Name: "coarse", RadiusKm: 1000, StepKm: 50},
		{Name: "fine", RadiusKm: 50, StepKm: 1},
		{Name: "extra-fine", RadiusKm: 1, StepKm: 0.1},
	}
}

// ReturnMode selects which stage's center becomes the reported position.
type ReturnMode int

const (
	// ReturnMostRefined reports the last stage's center.
	ReturnMostRefined ReturnMode = iota
	// ReturnLegacyFine reports the penultimate stage's center and discards
	// the last refinement, matching the first release of the tool.
	ReturnLegacyFine
)

func (m ReturnMode) String() string {
	switch m {
	case ReturnMostRefined:
		return "most-refined"
	case ReturnLegacyFine:
		return "legacy-fine"
	default:
		return "unknown"
	}
}

// Config holds every tunable of the search.
type Config struct {
	Stages []SearchStage

	// ElevationWeight multiplies the elevation residual in the error score.
	// One degree of elevation moves the fix much further than one degree of
	// azimuth near local noon.
	ElevationWeight float64

	// WrapAzimuth scores the azimuth residual as the shortest angle instead
	// of the plain difference, so 359° vs 1° counts as 2°.
	WrapAzimuth bool

	// TZOffsetHours is the reference zone of the solar-time arithmetic.
	TZOffsetHours float64

	// KmPerDegLat and KmPerDegLon (at the equator) convert search offsets
	// from kilometres to degrees.
	KmPerDegLat float64
	KmPerDegLon float64

	Return ReturnMode

	// Polish runs a Nelder-Mead minimization from the last stage's center.
	Polish bool

	// RoundDecimals is applied to the reported position (4 ≈ 11 m).
	RoundDecimals int
}

// DefaultConfig returns the standard three-stage search.
func DefaultConfig() Config {
	proj := geo.DefaultProjection()
	return Config{
		Stages:          DefaultStages(),
		ElevationWeight: 10,
		TZOffsetHours:   astro.DefaultTZOffsetHours,
		KmPerDegLat:     proj.KmPerDegLat,
		KmPerDegLon:     proj.KmPerDegLon,
		Return:          ReturnMostRefined,
		RoundDecimals:   4,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if len(c.Stages) == 0 {
		return fmt.Errorf("%w: no search stages", ErrInvalidConfig)
	}
	for i, s := range c.Stages {
		if !(s.RadiusKm > 0) || !(s.StepKm > 0) || math.IsInf(s.RadiusKm, 0) || math.IsInf(s.StepKm, 0) {
			return fmt.Errorf("%w: stage %d (%s): radius and step must be positive", ErrInvalidConfig, i, s.Name)
		}
		if s.Cells() > MaxCellsPerStage {
			return fmt.Errorf("%w: stage %d (%s): %d cells exceeds %d", ErrInvalidConfig, i, s.Name, s.Cells(), MaxCellsPerStage)
		}
		if i > 0 {
			prev := c.Stages[i-1]
			if s.RadiusKm >= prev.RadiusKm || s.StepKm >= prev.StepKm {
				return fmt.Errorf("%w: stage %d (%s) must be strictly finer than stage %d (%s)",
					ErrInvalidConfig, i, s.Name, i-1, prev.Name)
			}
		}
	}
	if math.IsNaN(c.ElevationWeight) || math.IsInf(c.ElevationWeight, 0) || c.ElevationWeight < 0 {
		return fmt.Errorf("%w: elevation weight %v", ErrInvalidConfig, c.ElevationWeight)
	}
	if math.IsNaN(c.TZOffsetHours) || c.TZOffsetHours < -14 || c.TZOffsetHours > 14 {
		return fmt.Errorf("%w: time zone offset %v h", ErrInvalidConfig, c.TZOffsetHours)
	}
	if !(c.KmPerDegLat > 0) || !(c.KmPerDegLon > 0) {
		return fmt.Errorf("%w: km-per-degree factors must be positive", ErrInvalidConfig)
	}
	switch c.Return {
	case ReturnMostRefined:
	case ReturnLegacyFine:
		if len(c.Stages) < 2 {
			return fmt.Errorf("%w: legacy return needs at least two stages", ErrInvalidConfig)
		}
		if c.Polish {
			return fmt.Errorf("%w: polish refines the last stage, which legacy return discards", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: return mode %d", ErrInvalidConfig, c.Return)
	}
	if c.RoundDecimals < 0 || c.RoundDecimals > 12 {
		return fmt.Errorf("%w: round decimals %d", ErrInvalidConfig, c.RoundDecimals)
	}
	return nil
}

func (c Config) projection() geo.Projection {
	return geo.Projection{KmPerDegLat: c.KmPerDegLat, KmPerDegLon: c.KmPerDegLon}
}
