package ushow

import (
	"math"
	"testing"
)

func TestCivilToDays(t *testing.T) {
	tests := []struct {
		name    string
		y, m, d int
		want    int64
	}{
		{"unix epoch", 1970, 1, 1, 0},
		{"next day", 1970, 1, 2, 1},
		{"before epoch", 1969, 12, 31, -1},
		{"1950", 1950, 1, 1, -7305},
		{"1960", 1960, 1, 1, -3653},
		{"2000 leap year", 2000, 3, 1, 11017},
		{"2025", 2025, 1, 1, 20089},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CivilToDays(tt.y, tt.m, tt.d); got != tt.want {
				t.Errorf("CivilToDays(%d, %d, %d) = %d, want %d", tt.y, tt.m, tt.d, got, tt.want)
			}
		})
	}
}

func TestEpochGap1950To1960(t *testing.T) {
	// ten years with leap days in 1952 and 1956 (and 1960 itself not
	// yet reached): 3652 days
	gap := CivilToDays(1960, 1, 1) - CivilToDays(1950, 1, 1)
	if gap != 3652 {
		t.Errorf("1950 -> 1960 gap = %d days, want 3652", gap)
	}
}

func TestParseTimeUnits(t *testing.T) {
	tests := []struct {
		in           string
		unit_seconds float64
		epoch_days   int64
		epoch_secs   float64
	}{
		{"days since 1950-01-01", 86400, -7305, 0},
		{"hours since 1970-01-01 06:00:00", 3600, 0, 21600},
		{"seconds since 2000-01-01", 1, 10957, 0},
		{"Minutes since 1970-01-02 00:30:00", 60, 1, 1800},
		{"days since 1970-01-01T12:00:00", 86400, 0, 43200},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			tu, err := ParseTimeUnits(tt.in)
			if err != nil {
				t.Fatalf("ParseTimeUnits(%q): %v", tt.in, err)
			}
			if tu.Unit_seconds != tt.unit_seconds {
				t.Errorf("unit seconds %v, want %v", tu.Unit_seconds, tt.unit_seconds)
			}
			if tu.Epoch_days != tt.epoch_days {
				t.Errorf("epoch days %v, want %v", tu.Epoch_days, tt.epoch_days)
			}
			if tu.Epoch_seconds != tt.epoch_secs {
				t.Errorf("epoch seconds %v, want %v", tu.Epoch_seconds, tt.epoch_secs)
			}
		})
	}
}

func TestParseTimeUnitsRejects(t *testing.T) {
	for _, in := range []string{"", "days", "fortnights since 1970-01-01", "days since yesterday"} {
		if _, err := ParseTimeUnits(in); err == nil {
			t.Errorf("ParseTimeUnits(%q) did not fail", in)
		}
	}
}

func TestConvertTimeUnits(t *testing.T) {
	// value 0 in 1960 days equals 3652 days after the 1950 epoch
	got := ConvertTimeUnits(0, "days since 1960-01-01", "days since 1950-01-01")
	if got != 3652 {
		t.Errorf("1960 epoch as 1950 days = %v, want 3652", got)
	}

	// unit rescale: one day is 24 hours
	got = ConvertTimeUnits(1, "days since 1970-01-01", "hours since 1970-01-01")
	if got != 24 {
		t.Errorf("1 day = %v hours, want 24", got)
	}
}

func TestConvertTimeUnitsRoundTrip(t *testing.T) {
	units := []string{
		"days since 1950-01-01",
		"hours since 1960-01-01 06:00:00",
		"seconds since 2000-02-29",
		"minutes since 1970-01-01",
	}
	values := []float64{-10.5, 0, 1, 365.25, 123456}

	for _, a := range units {
		for _, b := range units {
			for _, v := range values {
				back := ConvertTimeUnits(ConvertTimeUnits(v, a, b), b, a)
				if math.Abs(back-v) > 1e-6 {
					t.Fatalf("round trip %v via (%q, %q) = %v", v, a, b, back)
				}
			}
		}
	}
}

func TestConvertTimeUnitsBestEffort(t *testing.T) {
	// unparseable units leave the value untouched
	if got := ConvertTimeUnits(42, "bogus", "days since 1970-01-01"); got != 42 {
		t.Errorf("best effort src = %v, want 42", got)
	}
	if got := ConvertTimeUnits(42, "days since 1970-01-01", "bogus"); got != 42 {
		t.Errorf("best effort dst = %v, want 42", got)
	}
}

func TestFormatAbsoluteDays(t *testing.T) {
	tests := []struct {
		days float64
		want string
	}{
		{0, "1970-01-01 00:00:00"},
		{3652, "1980-01-01 00:00:00"},
		{0.25, "1970-01-01 06:00:00"},
		{20089.5, "2025-01-01 12:00:00"},
	}
	for _, tt := range tests {
		if got := FormatAbsoluteDays(tt.days); got != tt.want {
			t.Errorf("FormatAbsoluteDays(%v) = %q, want %q", tt.days, got, tt.want)
		}
	}
}
