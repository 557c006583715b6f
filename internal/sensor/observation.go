// Package sensor fuses compass heading and device tilt into solar
// observations.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultDeclinationDeg is the magnetic declination of the site the tool
// was first calibrated at (southern California).
const DefaultDeclinationDeg = 10.97

// DefaultFlipThresholdDeg is the pitch below which the device is taken to
// be sampling the bearing opposite the sun.
const DefaultFlipThresholdDeg = 45.0

// Errors returned while building observations.
var (
	ErrInvalidReading     = errors.New("invalid sensor reading")
	ErrInvalidObservation = errors.New("invalid observation")
	ErrUncalibrated       = errors.New("heading not calibrated")
)

// Observation is a measured solar direction at an instant.
type Observation struct {
	AzimuthDeg   float64   `json:"azimuth_deg"`   // true azimuth, [0,360)
	ElevationDeg float64   `json:"elevation_deg"` // [-90,90]
	Time         time.Time `json:"time"`
}

// At returns a copy of the observation stamped with t.
func (o Observation) At(t time.Time) Observation {
	o.Time = t
	return o
}

// Validate checks the angle ranges and that a timestamp is present.
func (o Observation) Validate() error {
	if math.IsNaN(o.AzimuthDeg) || o.AzimuthDeg < 0 || o.AzimuthDeg >= 360 {
		return fmt.Errorf("%w: azimuth %v outside [0,360)", ErrInvalidObservation, o.AzimuthDeg)
	}
	if math.IsNaN(o.ElevationDeg) || o.ElevationDeg < -90 || o.ElevationDeg > 90 {
		return fmt.Errorf("%w: elevation %v outside [-90,90]", ErrInvalidObservation, o.ElevationDeg)
	}
	if o.Time.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidObservation)
	}
	return nil
}

// FlipPolicy resolves the forward/backward pointing ambiguity. Held flatter
// than ThresholdDeg, the device reads the bearing opposite the sun, so the
// heading is turned around by 180°.
type FlipPolicy struct {
	ThresholdDeg float64
}

// DefaultFlipPolicy flips below 45° of pitch.
func DefaultFlipPolicy() FlipPolicy {
	return FlipPolicy{ThresholdDeg: DefaultFlipThresholdDeg}
}

// Applies reports whether a reading at pitchDeg is flipped.
func (p FlipPolicy) Applies(pitchDeg float64) bool {
	return pitchDeg < p.ThresholdDeg
}

// Apply returns the corrected heading for a true heading in [0,360).
func (p FlipPolicy) Apply(trueHeadingDeg, pitchDeg float64) float64 {
	if !p.Applies(pitchDeg) {
		return trueHeadingDeg
	}
	if trueHeadingDeg > 180 {
		return trueHeadingDeg - 180
	}
	return normalize360(trueHeadingDeg + 180)
}

// BuilderConfig configures observation building.
type BuilderConfig struct {
	DeclinationDeg float64
	Flip           FlipPolicy
}

// DefaultBuilderConfig returns the site declination and the 45° flip policy.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		DeclinationDeg: DefaultDeclinationDeg,
		Flip:           DefaultFlipPolicy(),
	}
}

// Reading is one fused sample of the device sensors.
type Reading struct {
	MagneticHeadingDeg float64
	// HeadingAccuracyDeg is the compass's own accuracy estimate. Negative
	// means the compass is not calibrated.
	HeadingAccuracyDeg float64
	PitchDeg           float64 // inclination from horizontal
	Time               time.Time
}

// Build turns a reading into an observation.
func Build(r Reading, cfg BuilderConfig) (Observation, error) {
	if r.HeadingAccuracyDeg < 0 {
		return Observation{}, ErrUncalibrated
	}
	obs, err := BuildObservation(r.MagneticHeadingDeg, r.PitchDeg, cfg.DeclinationDeg, cfg.Flip)
	if err != nil {
		return Observation{}, err
	}
	return obs.At(r.Time), nil
}

// BuildObservation fuses a magnetic heading and pitch into a true solar
// azimuth/elevation pair. The policy defaults to DefaultFlipPolicy when
// omitted. The returned observation carries no timestamp.
func BuildObservation(magneticHeadingDeg, pitchDeg, declinationDeg float64, policy ...FlipPolicy) (Observation, error) {
	if !isFinite(magneticHeadingDeg) || !isFinite(declinationDeg) {
		return Observation{}, fmt.Errorf("%w: heading %v declination %v", ErrInvalidReading, magneticHeadingDeg, declinationDeg)
	}
	if !isFinite(pitchDeg) || pitchDeg < 0 || pitchDeg > 180 {
		return Observation{}, fmt.Errorf("%w: pitch %v outside [0,180]", ErrInvalidReading, pitchDeg)
	}

	flip := DefaultFlipPolicy()
	if len(policy) > 0 {
		flip = policy[0]
	}

	trueHeading := normalize360(magneticHeadingDeg + declinationDeg)
	return Observation{
		AzimuthDeg:   flip.Apply(trueHeading, pitchDeg),
		ElevationDeg: 90 - pitchDeg,
	}, nil
}

func normalize360(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a = 0
	}
	return a
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
