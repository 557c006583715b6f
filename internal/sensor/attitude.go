package sensor

import "math"

// PitchFromAttitude converts an attitude pitch in radians to degrees.
func PitchFromAttitude(pitchRad float64) float64 {
	return pitchRad * 180 / math.Pi
}

// PitchFromAccel derives pitch in degrees from a gravity/accelerometer
// vector (any unit):
//
//	pitch = atan2(-ax, sqrt(ay² + az²))
func PitchFromAccel(ax, ay, az float64) float64 {
	return math.Atan2(-ax, math.Sqrt(ay*ay+az*az)) * 180 / math.Pi
}
