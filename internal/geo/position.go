// Package geo holds geographic positions and the small-angle distance math
// used to lay search grids over the Earth's surface.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// ErrOutOfRange is returned for latitudes/longitudes outside the valid range.
var ErrOutOfRange = errors.New("position out of range")

// GeoPosition is a point on the Earth's surface in degrees.
type GeoPosition struct {
	LatDeg float64 `json:"latitude"`  // -90..90, north positive
	LonDeg float64 `json:"longitude"` // -180..180, east positive
}

// String formats the position with 4 decimals.
func (p GeoPosition) String() string {
	return fmt.Sprintf("%.4f, %.4f", p.LatDeg, p.LonDeg)
}

// InRange reports whether the position lies in [-90,90]x[-180,180].
// NaN never does.
func (p GeoPosition) InRange() bool {
	return p.LatDeg >= -90 && p.LatDeg <= 90 && p.LonDeg >= -180 && p.LonDeg <= 180
}

// Validate returns ErrOutOfRange (wrapped) when the position is not InRange.
func (p GeoPosition) Validate() error {
	if !p.InRange() {
		return fmt.Errorf("%w: (%v, %v)", ErrOutOfRange, p.LatDeg, p.LonDeg)
	}
	return nil
}

// Round rounds both coordinates to the given number of decimals.
func (p GeoPosition) Round(decimals int) GeoPosition {
	return GeoPosition{
		LatDeg: RoundTo(p.LatDeg, decimals),
		LonDeg: RoundTo(p.LonDeg, decimals),
	}
}

// RoundTo rounds v half away from zero to the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}

// DistanceKm returns the great-circle distance between a and b (haversine).
func DistanceKm(a, b GeoPosition) float64 {
	dLat := toRad(b.LatDeg - a.LatDeg)
	dLon := toRad(b.LonDeg - a.LonDeg)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.LatDeg))*math.Cos(toRad(b.LatDeg))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}

	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
