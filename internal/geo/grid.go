package geo

import "math"

// Default kilometre-per-degree factors of the local equirectangular
// approximation.
const (
	DefaultKmPerDegLat = 111.0
	DefaultKmPerDegLon = 111.320
)

// minCosLat keeps the longitude degree size finite at the poles.
const minCosLat = 1e-9

// Projection converts kilometre offsets around a center into degree offsets.
type Projection struct {
	KmPerDegLat float64
	KmPerDegLon float64 // at the equator; scaled by cos(lat)
}

// DefaultProjection returns the standard factors.
func DefaultProjection() Projection {
	return Projection{KmPerDegLat: DefaultKmPerDegLat, KmPerDegLon: DefaultKmPerDegLon}
}

// DegPerKmLat returns degrees of latitude per kilometre.
func (p Projection) DegPerKmLat() float64 {
	return 1 / p.KmPerDegLat
}

// DegPerKmLon returns degrees of longitude per kilometre at latDeg. Near the
// poles the cosine is floored so the result stays finite.
func (p Projection) DegPerKmLon(latDeg float64) float64 {
	c := math.Cos(toRad(latDeg))
	if math.Abs(c) < minCosLat {
		c = minCosLat
	}
	return 1 / (p.KmPerDegLon * c)
}

// Window is a square, row-major grid of candidate positions around Center.
type Window struct {
	Center   GeoPosition
	LatStep  float64 // degrees
	LonStep  float64 // degrees
	HalfRows int     // cells on each side of the center, latitude
	HalfCols int     // cells on each side of the center, longitude
}

// NewWindow lays a grid of half-width radiusKm and spacing stepKm around
// center. Offsets are generated by index so the far edge is reached exactly.
// Near the poles the columns on each side are bounded by ceil(360/lonStep):
// any column further out lies beyond ±180° whatever the center longitude,
// so every cell that could be in range is still laid out.
func (p Projection) NewWindow(center GeoPosition, radiusKm, stepKm float64) Window {
	half := int(math.Floor(radiusKm/stepKm + 1e-9))

	latStep := stepKm * p.DegPerKmLat()
	lonStep := stepKm * p.DegPerKmLon(center.LatDeg)

	halfCols := half
	if maxCols := math.Ceil(360 / lonStep); float64(half) > maxCols {
		halfCols = int(maxCols)
	}

	return Window{
		Center:   center,
		LatStep:  latStep,
		LonStep:  lonStep,
		HalfRows: half,
		HalfCols: halfCols,
	}
}

// Size returns the number of grid cells, including out-of-range ones.
func (w Window) Size() int {
	return (2*w.HalfRows + 1) * (2*w.HalfCols + 1)
}

// Each visits every cell in row-major order (latitude outer, longitude
// inner, both ascending). Cells outside the valid coordinate range are
// passed with inRange=false and are never clamped. Iteration stops when
// visit returns false.
func (w Window) Each(visit func(p GeoPosition, inRange bool) bool) {
	for i := -w.HalfRows; i <= w.HalfRows; i++ {
		lat := w.Center.LatDeg + float64(i)*w.LatStep
		for j := -w.HalfCols; j <= w.HalfCols; j++ {
			p := GeoPosition{LatDeg: lat, LonDeg: w.Center.LonDeg + float64(j)*w.LonStep}
			if !visit(p, p.InRange()) {
				return
			}
		}
	}
}
