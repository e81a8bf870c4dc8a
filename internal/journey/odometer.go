package journey

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseOdometer reads an odometer value typed into a form field. Blank,
// non-numeric, non-finite and negative input is treated as no value entered
// and yields ErrInvalidOdometer rather than zero. Fractional kilometres are
// truncated.
func ParseOdometer(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ErrInvalidOdometer
	}
	if km, err := strconv.ParseInt(s, 10, 64); err == nil {
		if km < 0 {
			return 0, fmt.Errorf("%w: %q is negative", ErrInvalidOdometer, raw)
		}
		return km, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOdometer, raw)
	}
	if f < 0 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidOdometer, raw)
	}
	return int64(f), nil
}

// Distance returns the kilometres driven between two odometer readings,
// clamped at zero when the end reading is below the start reading.
func Distance(startKm, endKm int64) int64 {
	if endKm < startKm {
		return 0
	}
	return endKm - startKm
}
