package astro

import (
	"errors"
	"math"
	"time"
)

// SunriseElevationDeg is the geometric elevation of the sun's centre at
// apparent sunrise and sunset: half a solar diameter plus standard
// refraction below the horizon.
const SunriseElevationDeg = -0.833

// DaylightWindow is one rise-transit-set cycle of the sun at a position.
type DaylightWindow struct {
	Sunrise      time.Time // zero if the sun was already up at the start
	SolarNoon    time.Time // time of highest elevation
	Sunset       time.Time // zero if the sun did not set in the window
	MaxElevation float64   // elevation at SolarNoon, degrees

	PolarDay   bool // sun never set during the window
	PolarNight bool // sun never rose during the window
}

// DayLength returns the time between sunrise and sunset, or 0 when either is
// unknown.
func (w DaylightWindow) DayLength() time.Duration {
	if w.Sunrise.IsZero() || w.Sunset.IsZero() || w.Sunset.Before(w.Sunrise) {
		return 0
	}
	return w.Sunset.Sub(w.Sunrise)
}

// ErrInsufficientSamples is returned when the sampling step leaves fewer
// than three samples in a day.
var ErrInsufficientSamples = errors.New("insufficient samples for daylight calculation")

type elSample struct {
	t     time.Time
	elDeg float64
}

// Daylight samples the sun every step over the 24 hours starting at from and
// returns the first sunrise, the following sunset and the transit between
// them. Crossings are linearly interpolated between samples.
func (e Ephemeris) Daylight(latDeg, lonDeg float64, from time.Time, step time.Duration) (DaylightWindow, error) {
	if err := ValidateCoordinate(latDeg, lonDeg); err != nil {
		return DaylightWindow{}, err
	}
	if from.IsZero() {
		return DaylightWindow{}, ErrInvalidTimestamp
	}
	if step <= 0 || 24*time.Hour/step < 2 {
		return DaylightWindow{}, ErrInsufficientSamples
	}

	n := int(24*time.Hour/step) + 1
	samples := make([]elSample, n)
	minEl, maxEl := 90.0, -90.0
	maxIdx := 0
	for i := range samples {
		t := from.Add(time.Duration(i) * step)
		h, err := e.SunAt(latDeg, lonDeg, t)
		if err != nil {
			return DaylightWindow{}, err
		}
		samples[i] = elSample{t: t, elDeg: h.ElDeg}
		minEl = math.Min(minEl, h.ElDeg)
		if h.ElDeg > maxEl {
			maxEl = h.ElDeg
			maxIdx = i
		}
	}

	if maxEl < SunriseElevationDeg {
		return DaylightWindow{PolarNight: true, SolarNoon: samples[maxIdx].t, MaxElevation: maxEl}, nil
	}
	noon, noonEl := refineMaxElevation(samples, maxIdx)
	if minEl > SunriseElevationDeg {
		return DaylightWindow{PolarDay: true, SolarNoon: noon, MaxElevation: noonEl}, nil
	}

	w := DaylightWindow{SolarNoon: noon, MaxElevation: noonEl}

	// First rise
	startIdx := 0
	for i := 1; i < n; i++ {
		prev, curr := samples[i-1], samples[i]
		if prev.elDeg <= SunriseElevationDeg && curr.elDeg > SunriseElevationDeg {
			w.Sunrise = interpolateCrossing(prev.t, curr.t, prev.elDeg, curr.elDeg, SunriseElevationDeg)
			startIdx = i
			break
		}
	}

	// First set after the rise
	for i := startIdx + 1; i < n; i++ {
		prev, curr := samples[i-1], samples[i]
		if prev.elDeg > SunriseElevationDeg && curr.elDeg <= SunriseElevationDeg {
			w.Sunset = interpolateCrossing(prev.t, curr.t, prev.elDeg, curr.elDeg, SunriseElevationDeg)
			break
		}
	}
	return w, nil
}

// refineMaxElevation fits a parabola through the samples around idx and
// returns its vertex.
func refineMaxElevation(samples []elSample, idx int) (time.Time, float64) {
	if idx == 0 || idx == len(samples)-1 {
		return samples[idx].t, samples[idx].elDeg
	}

	// Normalized time: -1 (prev), 0 (max), +1 (next)
	y0 := samples[idx-1].elDeg
	y1 := samples[idx].elDeg
	y2 := samples[idx+1].elDeg

	c := y1
	a := (y0+y2)/2 - c
	b := (y2 - y0) / 2
	if a >= 0 {
		return samples[idx].t, y1
	}

	tMax := math.Max(-1, math.Min(1, -b/(2*a)))
	dt := samples[idx].t.Sub(samples[idx-1].t)
	return samples[idx].t.Add(time.Duration(float64(dt) * tMax)), a*tMax*tMax + b*tMax + c
}

// interpolateCrossing finds the time when elevation crosses a threshold.
func interpolateCrossing(t1, t2 time.Time, el1, el2, threshold float64) time.Time {
	if math.Abs(el2-el1) < 0.0001 {
		return t1
	}

	fraction := (threshold - el1) / (el2 - el1)
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}

	dt := t2.Sub(t1)
	return t1.Add(time.Duration(float64(dt) * fraction))
}

// ElevationTier categorizes solar elevation for display.
type ElevationTier int

const (
	ElevationNight    ElevationTier = iota // below -18°
	ElevationTwilight                      // -18° to sunrise elevation
	ElevationLow                           // up to 15°
	ElevationMedium                        // 15-45°
	ElevationHigh                          // 45° and above
)

func (t ElevationTier) String() string {
	switch t {
	case ElevationNight:
		return "night"
	case ElevationTwilight:
		return "twilight"
	case ElevationLow:
		return "low"
	case ElevationMedium:
		return "medium"
	default:
		return "high"
	}
}

// GetElevationTier returns the tier for a given elevation.
func GetElevationTier(elDeg float64) ElevationTier {
	switch {
	case elDeg < -18:
		return ElevationNight
	case elDeg <= SunriseElevationDeg:
		return ElevationTwilight
	case elDeg < 15:
		return ElevationLow
	case elDeg < 45:
		return ElevationMedium
	default:
		return ElevationHigh
	}
}
