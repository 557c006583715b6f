package astro

import (
	"math"
	"time"
)

// EquatorialToHorizontal converts equatorial coordinates (RA/Dec, degrees)
// to horizontal coordinates for an observer at (latDeg, lonDeg) at time t,
// going through local sidereal time rather than the equation of time.
//
// Conventions:
//   - Azimuth: 0° = North, 90° = East, 180° = South, 270° = West
//   - Elevation: 0° = horizon, 90° = zenith
func EquatorialToHorizontal(raDeg, decDeg, latDeg, lonDeg float64, t time.Time) Horizontal {
	lat := degToRad(latDeg)
	ra := degToRad(raDeg)
	dec := degToRad(decDeg)

	lstRad := degToRad(localSiderealTime(t, lonDeg))

	// Hour Angle = LST - RA
	ha := lstRad - ra

	sinAlt := math.Sin(dec)*math.Sin(lat) + math.Cos(dec)*math.Cos(lat)*math.Cos(ha)
	alt := math.Asin(clampUnit(sinAlt))

	den := math.Cos(alt) * math.Cos(lat)
	if math.Abs(den) < degenerateAzimuth {
		return Horizontal{ElDeg: radToDeg(alt), AzimuthUndefined: true}
	}
	cosAz := clampUnit((math.Sin(dec) - math.Sin(alt)*math.Sin(lat)) / den)

	az := math.Acos(cosAz)

	// Positive hour angle: west of the meridian
	if math.Sin(ha) > 0 {
		az = 2*math.Pi - az
	}

	return Horizontal{
		AzDeg: normalizeAngle360(radToDeg(az)),
		ElDeg: radToDeg(alt),
	}
}

// localSiderealTime calculates the Local Sidereal Time in degrees
// for a given UTC time and observer longitude.
func localSiderealTime(t time.Time, lonDeg float64) float64 {
	return normalizeAngle360(greenwichMeanSiderealTime(t) + lonDeg)
}

// greenwichMeanSiderealTime calculates GMST in degrees for a given UTC time
// (IAU 1982).
func greenwichMeanSiderealTime(t time.Time) float64 {
	jd := julianDate(t)
	T := (jd - 2451545.0) / 36525.0

	gmst := 280.46061837 +
		360.98564736629*(jd-2451545.0) +
		0.000387933*T*T -
		T*T*T/38710000.0

	return normalizeAngle360(gmst)
}

// julianDate calculates the Julian Date for a given time (Gregorian, UTC).
func julianDate(t time.Time) float64 {
	t = t.UTC()

	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())

	h := float64(t.Hour())
	min := float64(t.Minute())
	sec := float64(t.Second())
	ns := float64(t.Nanosecond())

	dayFrac := (h + min/60 + sec/3600 + ns/3600e9) / 24.0

	// January/February count as months 13/14 of the previous year
	if m <= 2 {
		y--
		m += 12
	}

	A := math.Floor(y / 100)
	B := 2 - A + math.Floor(A/4)

	jd := math.Floor(365.25*(y+4716)) +
		math.Floor(30.6001*(m+1)) +
		d + dayFrac + B - 1524.5

	return jd
}

// degToRad converts degrees to radians.
func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// radToDeg converts radians to degrees.
func radToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
