package ushow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/soniakeys/meeus/v3/julian"
)

var ErrTimeUnits = errors.New("Error Parsing CF Time Units")

// unit name -> scale in seconds. CF writers are loose with spellings,
// so the common abbreviations are all accepted.
var cfUnitScales = map[string]float64{
	"seconds": 1.0,
	"second":  1.0,
	"secs":    1.0,
	"sec":     1.0,
	"s":       1.0,
	"minutes": 60.0,
	"minute":  60.0,
	"mins":    60.0,
	"min":     60.0,
	"hours":   3600.0,
	"hour":    3600.0,
	"hrs":     3600.0,
	"hr":      3600.0,
	"h":       3600.0,
	"days":    86400.0,
	"day":     86400.0,
	"d":       86400.0,
}

// TimeUnits is a parsed CF "<unit> since <epoch>" string.
type TimeUnits struct {
	Unit_seconds  float64 // scale of one unit in seconds
	Epoch_days    int64   // civil days from 1970-01-01 to the epoch date
	Epoch_seconds float64 // seconds past midnight of the epoch date
}

// CivilToDays converts a proleptic Gregorian calendar date to the
// number of days since 1970-01-01. Negative results are dates before
// the epoch. This is the standard zero-dependence civil calendar
// conversion.
func CivilToDays(year, month, day int) int64 {
	y := int64(year)
	m := int64(month)
	d := int64(day)

	if m <= 2 {
		y -= 1
	}

	var era int64
	if y >= 0 {
		era = y / 400
	} else {
		era = (y - 399) / 400
	}

	yoe := y - era*400

	var mp int64
	if m > 2 {
		mp = m - 3
	} else {
		mp = m + 9
	}

	doy := (153*mp+2)/5 + d - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy

	return era*146097 + doe - 719468
}

// ParseTimeUnits parses a CF time units string of the form
// "<unit> since <YYYY-MM-DD[ HH:MM:SS]>".
func ParseTimeUnits(units string) (TimeUnits, error) {
	var tu TimeUnits

	lowered := strings.ToLower(strings.TrimSpace(units))
	parts := strings.SplitN(lowered, " since ", 2)
	if len(parts) != 2 {
		return tu, errors.Join(ErrTimeUnits, fmt.Errorf("no ' since ' in %q", units))
	}

	scale, ok := cfUnitScales[strings.TrimSpace(parts[0])]
	if !ok {
		return tu, errors.Join(ErrTimeUnits, fmt.Errorf("unknown unit %q", parts[0]))
	}
	tu.Unit_seconds = scale

	// epoch: date part, optional time part, optional trailing zone.
	// An ISO "T" separator is treated the same as a space.
	epoch := strings.ReplaceAll(parts[1], "t", " ")
	fields := strings.Fields(epoch)
	if len(fields) == 0 {
		return tu, errors.Join(ErrTimeUnits, fmt.Errorf("no epoch in %q", units))
	}

	date := strings.Split(fields[0], "-")
	if len(date) != 3 {
		return tu, errors.Join(ErrTimeUnits, fmt.Errorf("bad epoch date in %q", units))
	}

	year, err1 := strconv.Atoi(date[0])
	month, err2 := strconv.Atoi(date[1])
	day, err3 := strconv.Atoi(date[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return tu, errors.Join(ErrTimeUnits, fmt.Errorf("bad epoch date in %q", units))
	}

	tu.Epoch_days = CivilToDays(year, month, day)

	if len(fields) > 1 {
		hms := strings.Split(fields[1], ":")
		mult := []float64{3600.0, 60.0, 1.0}
		for i, v := range hms {
			if i > 2 {
				break
			}
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				break
			}
			tu.Epoch_seconds += parsed * mult[i]
		}
	}

	return tu, nil
}

// EpochAbsoluteSeconds gives the epoch position in seconds relative to
// 1970-01-01T00:00:00.
func (tu TimeUnits) EpochAbsoluteSeconds() float64 {
	return float64(tu.Epoch_days)*86400.0 + tu.Epoch_seconds
}

// AbsoluteSeconds converts a coordinate value expressed in these units
// to seconds relative to 1970-01-01T00:00:00.
func (tu TimeUnits) AbsoluteSeconds(value float64) float64 {
	return tu.EpochAbsoluteSeconds() + value*tu.Unit_seconds
}

// ConvertTimeUnits re-expresses value from src units in dst units.
// The conversion is best effort: if either string fails to parse the
// input value is returned unchanged.
func ConvertTimeUnits(value float64, src_units, dst_units string) float64 {
	src, err := ParseTimeUnits(src_units)
	if err != nil {
		return value
	}
	dst, err := ParseTimeUnits(dst_units)
	if err != nil {
		return value
	}

	abs := src.AbsoluteSeconds(value)

	return (abs - dst.EpochAbsoluteSeconds()) / dst.Unit_seconds
}

// FormatAbsoluteDays renders days-since-1970 as a civil calendar
// timestamp, eg 3652.25 -> "1980-01-01 06:00:00".
func FormatAbsoluteDays(days float64) string {
	// julian day of the unix epoch is 2440587.5
	year, month, day := julian.JDToCalendar(days + 2440587.5)

	day_int := int(day)
	frac := day - float64(day_int)
	seconds := int(frac*86400.0 + 0.5)

	hh := seconds / 3600
	mm := (seconds % 3600) / 60
	ss := seconds % 60

	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", year, month, day_int, hh, mm, ss)
}
