package astro

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultTZOffsetHours is the reference zone the solar-time arithmetic is
// carried out in (UTC-7).
const DefaultTZOffsetHours = -7.0

// degenerateAzimuth is the |cos(lat)*sin(zenith)| below which the azimuth
// has no defined direction (sun at the zenith/nadir, or observer at a pole).
const degenerateAzimuth = 1e-12

// Errors returned by the ephemeris.
var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidTimestamp  = errors.New("invalid timestamp")
)

// Horizontal is the sun's apparent direction as seen by an observer.
type Horizontal struct {
	AzDeg float64 // Azimuth in degrees (0=N, 90=E, 180=S, 270=W), [0,360)
	ElDeg float64 // Geometric elevation in degrees, [-90,90]

	// AzimuthUndefined is set when the azimuth had no defined direction and
	// AzDeg holds the fallback value 0.
	AzimuthUndefined bool
}

// Ephemeris computes the solar direction for an observer. The zero value is
// usable and works in UTC; NewEphemeris uses DefaultTZOffsetHours.
type Ephemeris struct {
	TZOffsetHours float64
}

// NewEphemeris returns an Ephemeris in the default reference zone.
func NewEphemeris() Ephemeris {
	return Ephemeris{TZOffsetHours: DefaultTZOffsetHours}
}

// SunAt returns the sun's azimuth and elevation at (latDeg, lonDeg) at
// instant t. Refraction is not applied.
func (e Ephemeris) SunAt(latDeg, lonDeg float64, t time.Time) (Horizontal, error) {
	if err := ValidateCoordinate(latDeg, lonDeg); err != nil {
		return Horizontal{}, err
	}
	if t.IsZero() {
		return Horizontal{}, ErrInvalidTimestamp
	}
	return e.sunAt(latDeg, lonDeg, t, SolarElementsAt(t)), nil
}

// SunFunc returns a closure over instant t that evaluates the sun's position
// for any observer. The date-dependent series is computed once, which is what
// grid searches want.
func (e Ephemeris) SunFunc(t time.Time) (func(latDeg, lonDeg float64) (Horizontal, error), error) {
	if t.IsZero() {
		return nil, ErrInvalidTimestamp
	}
	el := SolarElementsAt(t)
	return func(latDeg, lonDeg float64) (Horizontal, error) {
		if err := ValidateCoordinate(latDeg, lonDeg); err != nil {
			return Horizontal{}, err
		}
		return e.sunAt(latDeg, lonDeg, t, el), nil
	}, nil
}

func (e Ephemeris) sunAt(latDeg, lonDeg float64, t time.Time, el SolarElements) Horizontal {
	local := t.UTC().Add(time.Duration(e.TZOffsetHours * float64(time.Hour)))
	fractionOfDay := minuteOfDay(local) / 1440

	tst := trueSolarTime(fractionOfDay, el.EquationOfTime, lonDeg, e.TZOffsetHours)
	ha := hourAngle(tst)
	zenith := zenithAngle(latDeg, el.DeclinationDeg, ha)
	az, ok := azimuthAngle(latDeg, el.DeclinationDeg, zenith, ha)

	return Horizontal{
		AzDeg:            az,
		ElDeg:            90 - zenith,
		AzimuthUndefined: !ok,
	}
}

// ValidateCoordinate reports ErrInvalidCoordinate for NaN, infinite or
// out-of-range latitude/longitude.
func ValidateCoordinate(latDeg, lonDeg float64) error {
	if math.IsNaN(latDeg) || math.IsInf(latDeg, 0) || latDeg < -90 || latDeg > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, latDeg)
	}
	if math.IsNaN(lonDeg) || math.IsInf(lonDeg, 0) || lonDeg < -180 || lonDeg > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, lonDeg)
	}
	return nil
}

// trueSolarTime returns the true solar time in minutes, reduced with
// truncating remainder so the sign of the input is kept.
func trueSolarTime(fractionOfDay, eotMinutes, lonDeg, tzHours float64) float64 {
	v := fractionOfDay*1440 + eotMinutes + 4*lonDeg - 60*tzHours
	return math.Mod(v, 1440)
}

// hourAngle converts true solar time (minutes) into the hour angle (degrees).
func hourAngle(tstMinutes float64) float64 {
	ha := tstMinutes / 4
	if ha < 0 {
		return ha + 180
	}
	return ha - 180
}

// zenithAngle applies the spherical law of cosines. All arguments in degrees.
func zenithAngle(latDeg, declDeg, haDeg float64) float64 {
	lat := degToRad(latDeg)
	dec := degToRad(declDeg)
	ha := degToRad(haDeg)

	cosZenith := math.Sin(lat)*math.Sin(dec) + math.Cos(lat)*math.Cos(dec)*math.Cos(ha)
	return radToDeg(math.Acos(clampUnit(cosZenith)))
}

// azimuthAngle returns the solar azimuth in [0,360). ok is false when the
// direction is undefined; the azimuth is then 0.
func azimuthAngle(latDeg, declDeg, zenithDeg, haDeg float64) (az float64, ok bool) {
	lat := degToRad(latDeg)
	dec := degToRad(declDeg)
	zen := degToRad(zenithDeg)

	den := math.Cos(lat) * math.Sin(zen)
	if math.Abs(den) < degenerateAzimuth {
		return 0, false
	}
	num := math.Sin(lat)*math.Cos(zen) - math.Sin(dec)

	az = radToDeg(math.Acos(clampUnit(num / den)))
	if haDeg > 0 {
		az = math.Mod(az+180, 360)
	} else {
		az = math.Mod(540-az, 360)
	}
	return az, true
}

func clampUnit(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
