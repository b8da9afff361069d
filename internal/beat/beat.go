// Package beat implements the fixed-precision beat-time value used
// throughout the mtxt engine (spec §3: "non-negative rational-valued beat...
// at most 5 fractional digits").
package beat

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unit is the number of fixed-point subdivisions per beat: 1e-5 beats, the
// finest resolution spec §3 requires ("≈5µs at 120 BPM").
const Unit = 100000

// Beat is a non-negative beat-time, stored as an integer count of 1/100000
// beats so that parsing, arithmetic, and equality are exact instead of
// float-rounding-dependent.
type Beat int64

// Zero is beat 0.
const Zero Beat = 0

// FromFloat64 rounds a float64 beat value to the nearest 1e-5-beat unit.
func FromFloat64(f float64) Beat {
	return Beat(math.Round(f * Unit))
}

// Float64 returns the beat as a float64.
func (b Beat) Float64() float64 {
	return float64(b) / Unit
}

// Parse parses a canonical or loosely-formatted decimal beat string, e.g.
// "4", "4.0", "2.5", "0.00001".
func Parse(s string) (Beat, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty beat value")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid beat value %q: %w", s, err)
	}
	if f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("beat value %q must be finite and non-negative", s)
	}
	return FromFloat64(f), nil
}

// Add returns b+other.
func (b Beat) Add(other Beat) Beat { return b + other }

// Sub returns b-other.
func (b Beat) Sub(other Beat) Beat { return b - other }

// Scale multiplies a beat by a plain float factor (used by quantize/swing),
// rounding back to the nearest fixed-point unit.
func (b Beat) Scale(factor float64) Beat {
	return FromFloat64(b.Float64() * factor)
}

// Cmp returns -1, 0, or 1 as b is less than, equal to, or greater than
// other. Equality uses the 1e-6-beat epsilon named in spec §3 — since both
// values are already quantized to 1e-5 beats, exact integer comparison
// already satisfies that epsilon.
func (b Beat) Cmp(other Beat) int {
	switch {
	case b < other:
		return -1
	case b > other:
		return 1
	default:
		return 0
	}
}

// String formats the beat canonically: trimmed trailing zeros, integers
// with no decimal point, never scientific notation (spec §4.E).
func (b Beat) String() string {
	if b < 0 {
		return "-" + Beat(-b).String()
	}
	whole := int64(b) / Unit
	frac := int64(b) % Unit
	if frac == 0 {
		return strconv.FormatInt(whole, 10)
	}
	fracStr := fmt.Sprintf("%05d", frac)
	fracStr = strings.TrimRight(fracStr, "0")
	return strconv.FormatInt(whole, 10) + "." + fracStr
}
