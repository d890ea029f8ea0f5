package ushow

import (
	"math"
)

// EARTH_RADIUS_METRES is the mean spherical radius used for converting
// ground distances to unit-sphere chords.
const EARTH_RADIUS_METRES float64 = 6_371_000.0

// WrapLongitude maps an arbitrary degree longitude into (-180, 180].
// Source files frequently carry 0..360 axes, so every coordinate that
// enters a Mesh passes through here first.
func WrapLongitude(lon float64) float64 {
	wrapped := math.Mod(lon, 360.0)
	if wrapped > 180.0 {
		wrapped -= 360.0
	} else if wrapped <= -180.0 {
		wrapped += 360.0
	}
	return wrapped
}

// ToCartesian converts a lon/lat pair in degrees to a point on the unit
// sphere. The z axis runs through the poles, x through (0E, 0N).
func ToCartesian(lon_deg, lat_deg float64) (x, y, z float64) {
	deg2rad := math.Pi / 180.0

	lambda := lon_deg * deg2rad
	phi := lat_deg * deg2rad

	cos_phi := math.Cos(phi)

	x = cos_phi * math.Cos(lambda)
	y = cos_phi * math.Sin(lambda)
	z = math.Sin(phi)

	return x, y, z
}

// ToCartesianBatch converts parallel lon/lat arrays into a flat xyz
// array of length 3*n. Each triple is computed with ToCartesian so the
// batch output is bit-identical to per-point conversion.
func ToCartesianBatch(lon, lat []float64) []float64 {
	n := len(lon)
	xyz := make([]float64, 3*n)

	for i := 0; i < n; i++ {
		x, y, z := ToCartesian(lon[i], lat[i])
		xyz[3*i] = x
		xyz[3*i+1] = y
		xyz[3*i+2] = z
	}

	return xyz
}

// MetresToChord converts a ground distance in metres to the equivalent
// straight-line chord length on the unit sphere.
// chord = 2 * sin(theta / 2) where theta is the subtended angle.
func MetresToChord(metres float64) float64 {
	theta := metres / EARTH_RADIUS_METRES
	return 2.0 * math.Sin(theta/2.0)
}
