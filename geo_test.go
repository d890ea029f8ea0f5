package ushow

import (
	"math"
	"testing"
)

func TestToCartesianUnitNorm(t *testing.T) {
	for lat := -90.0; lat <= 90.0; lat += 7.5 {
		for lon := -180.0; lon <= 180.0; lon += 7.5 {
			x, y, z := ToCartesian(lon, lat)
			norm := x*x + y*y + z*z
			if math.Abs(norm-1.0) > 1.0e-10 {
				t.Fatalf("ToCartesian(%v, %v) norm = %v", lon, lat, norm)
			}
		}
	}
}

func TestToCartesianKnownPoints(t *testing.T) {
	tests := []struct {
		name          string
		lon, lat      float64
		wx, wy, wz    float64
	}{
		{"origin", 0, 0, 1, 0, 0},
		{"north pole", 0, 90, 0, 0, 1},
		{"south pole", 0, -90, 0, 0, -1},
		{"east", 90, 0, 0, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, z := ToCartesian(tt.lon, tt.lat)
			if math.Abs(x-tt.wx) > 1e-12 || math.Abs(y-tt.wy) > 1e-12 || math.Abs(z-tt.wz) > 1e-12 {
				t.Errorf("ToCartesian(%v, %v) = (%v, %v, %v), want (%v, %v, %v)",
					tt.lon, tt.lat, x, y, z, tt.wx, tt.wy, tt.wz)
			}
		})
	}
}

func TestToCartesianBatchBitIdentical(t *testing.T) {
	lon := []float64{-179.5, -30.25, 0.0, 12.75, 179.0}
	lat := []float64{-89.0, -45.5, 0.0, 33.33, 88.8}

	xyz := ToCartesianBatch(lon, lat)

	for i := range lon {
		x, y, z := ToCartesian(lon[i], lat[i])
		if xyz[3*i] != x || xyz[3*i+1] != y || xyz[3*i+2] != z {
			t.Fatalf("batch point %d differs from scalar conversion", i)
		}
	}
}

func TestWrapLongitude(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{180, 180},
		{-180, 180},
		{190, -170},
		{360, 0},
		{540, 180},
		{-190, 170},
		{725, 5},
	}
	for _, tt := range tests {
		if got := WrapLongitude(tt.in); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("WrapLongitude(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMetresToChord(t *testing.T) {
	// half the circumference subtends pi; the chord is the diameter
	half := math.Pi * EARTH_RADIUS_METRES
	if got := MetresToChord(half); math.Abs(got-2.0) > 1e-12 {
		t.Errorf("MetresToChord(half circumference) = %v, want 2", got)
	}

	// small distances are close to the arc itself
	chord := MetresToChord(1000.0)
	arc := 1000.0 / EARTH_RADIUS_METRES
	if math.Abs(chord-arc) > 1e-9 {
		t.Errorf("MetresToChord(1km) = %v, arc = %v", chord, arc)
	}
}
