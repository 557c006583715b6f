// Package astro provides the solar ephemeris and the sky math around it.
package astro

import (
	"math"
	"time"
)

// SolarElements holds the date-dependent quantities of the NOAA solar
// position algorithm. They depend only on the instant, not on the observer.
type SolarElements struct {
	JulianDate     float64
	JulianCentury  float64 // centuries since J2000.0
	MeanLongitude  float64 // geometric mean longitude, degrees (0-360)
	MeanAnomaly    float64 // geometric mean anomaly, degrees
	Eccentricity   float64 // Earth orbit eccentricity
	EquationOfCtr  float64 // degrees
	TrueLongitude  float64 // degrees
	ApparentLon    float64 // apparent longitude, degrees
	MeanObliquity  float64 // degrees
	ObliquityCorr  float64 // corrected obliquity, degrees
	DeclinationDeg float64 // solar declination, degrees
	EquationOfTime float64 // minutes
	RightAscension float64 // degrees (0-360)
}

// SolarElementsAt evaluates the NOAA solar position series for instant t.
func SolarElementsAt(t time.Time) SolarElements {
	jd := julianDate(t)
	T := (jd - 2451545.0) / 36525.0

	L0 := math.Mod(280.46646+T*(36000.76983+T*0.0003032), 360)
	M := 357.52911 + T*(35999.05029-0.0001537*T)
	e := 0.016708634 - T*(0.000042037+0.0000001267*T)

	C := sinDeg(M)*(1.914602-T*(0.004817+0.000014*T)) +
		sinDeg(2*M)*(0.019993-0.000101*T) +
		sinDeg(3*M)*0.000289

	trueLon := L0 + C

	// Apparent longitude (aberration and nutation)
	omega := 125.04 - 1934.136*T
	appLon := trueLon - 0.00569 - 0.00478*sinDeg(omega)

	eps0 := 23.0 + (26.0+(21.448-T*(46.815+T*(0.00059-T*0.001813)))/60.0)/60.0
	eps := eps0 + 0.00256*cosDeg(omega)

	decl := radToDeg(math.Asin(sinDeg(eps) * sinDeg(appLon)))

	ra := radToDeg(math.Atan2(cosDeg(eps)*sinDeg(appLon), cosDeg(appLon)))
	ra = normalizeAngle360(ra)

	y := math.Tan(degToRad(eps / 2))
	y *= y
	eot := 4 * radToDeg(y*sinDeg(2*L0)-
		2*e*sinDeg(M)+
		4*e*y*sinDeg(M)*cosDeg(2*L0)-
		0.5*y*y*sinDeg(4*L0)-
		1.25*e*e*sinDeg(2*M))

	return SolarElements{
		JulianDate:     jd,
		JulianCentury:  T,
		MeanLongitude:  L0,
		MeanAnomaly:    M,
		Eccentricity:   e,
		EquationOfCtr:  C,
		TrueLongitude:  trueLon,
		ApparentLon:    appLon,
		MeanObliquity:  eps0,
		ObliquityCorr:  eps,
		DeclinationDeg: decl,
		EquationOfTime: eot,
		RightAscension: ra,
	}
}

// SunPosition calculates the apparent equatorial coordinates of the Sun.
func SunPosition(t time.Time) (raDeg, decDeg float64) {
	el := SolarElementsAt(t)
	return el.RightAscension, el.DeclinationDeg
}

// SiderealSunAt returns the sun's direction at (latDeg, lonDeg) computed
// from its RA/Dec and local sidereal time. It is independent of the
// equation-of-time route taken by Ephemeris.SunAt.
func SiderealSunAt(latDeg, lonDeg float64, t time.Time) (Horizontal, error) {
	if err := ValidateCoordinate(latDeg, lonDeg); err != nil {
		return Horizontal{}, err
	}
	if t.IsZero() {
		return Horizontal{}, ErrInvalidTimestamp
	}
	ra, dec := SunPosition(t)
	return EquatorialToHorizontal(ra, dec, latDeg, lonDeg, t), nil
}

// SubsolarPoint returns the geographic point where the sun is at the zenith
// at instant t.
func SubsolarPoint(t time.Time) (latDeg, lonDeg float64) {
	utc := t.UTC()
	el := SolarElementsAt(utc)
	minutes := minuteOfDay(utc)
	lonDeg = (720 - (minutes + el.EquationOfTime)) / 4
	return el.DeclinationDeg, wrapLongitude(lonDeg)
}

// AngularSeparation calculates the angular separation between two points on
// a sphere given as (longitude-like, latitude-like) pairs in degrees. Works
// for RA/Dec and for Az/El alike.
func AngularSeparation(ra1, dec1, ra2, dec2 float64) float64 {
	ra1Rad := degToRad(ra1)
	dec1Rad := degToRad(dec1)
	ra2Rad := degToRad(ra2)
	dec2Rad := degToRad(dec2)

	// Haversine
	dRA := ra2Rad - ra1Rad
	dDec := dec2Rad - dec1Rad

	a := math.Sin(dDec/2)*math.Sin(dDec/2) +
		math.Cos(dec1Rad)*math.Cos(dec2Rad)*math.Sin(dRA/2)*math.Sin(dRA/2)

	if a > 1 {
		a = 1
	}

	c := 2 * math.Asin(math.Sqrt(a))

	return radToDeg(c)
}

// normalizeAngle360 normalizes an angle to 0-360 degrees.
func normalizeAngle360(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

func wrapLongitude(lonDeg float64) float64 {
	lon := math.Mod(lonDeg+180.0, 360.0)
	if lon < 0 {
		lon += 360.0
	}
	return lon - 180.0
}

func minuteOfDay(t time.Time) float64 {
	return float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60 + float64(t.Nanosecond())/6e10
}

func sinDeg(d float64) float64 { return math.Sin(degToRad(d)) }
func cosDeg(d float64) float64 { return math.Cos(degToRad(d)) }
