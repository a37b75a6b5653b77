// Package units holds the speed conversions used by the display and share
// paths.
//
// Both conversions truncate toward zero so a reading never rounds up to a
// speed the user has not actually reached.
package units

import "math"

const (
	kmhPerMps  = 3.6
	mphPerKmh  = 0.621371
	mpsPerKnot = 0.514444
)

// KmhFromMps converts a ground speed in meters/second to whole km/h.
// Values below 1 km/h (including negative or NaN input) come back as 0.
func KmhFromMps(mps float64) int {
	if math.IsNaN(mps) || mps <= 0 {
		return 0
	}
	kmh := mps * kmhPerMps
	if kmh < 1 {
		return 0
	}
	return int(math.Floor(kmh))
}

// MphFromKmh converts a whole km/h value to whole mph, truncated.
func MphFromKmh(kmh int) int {
	if kmh <= 0 {
		return 0
	}
	return int(math.Floor(float64(kmh) * mphPerKmh))
}

// MpsFromKnots converts knots (NMEA RMC ground speed) to meters/second.
func MpsFromKnots(kt float64) float64 {
	return kt * mpsPerKnot
}
