// Package stiffness encodes and decodes discrete bolt-stiffness levels and
// formats values in Nastran shorthand notation.
//
// A level L in [1, 11] maps to a rotational stiffness magnitude of 10^(L+3)
// N·m/rad, so level 1 is the loosest joint (1e4) and level 9 is the healthy
// baseline (1e12). Direct floating-point values bypass the encoding and are
// stored with a null level.
package stiffness

import (
	"errors"
	"fmt"
	"math"
)

// Level bounds for the discrete encoding.
const (
	MinLevel = 1
	MaxLevel = 11
)

// Well-known stiffness values (N·m/rad).
const (
	// Healthy is the rotational stiffness of a fully tight bolt (level 9).
	Healthy = 1e12
	// HealthyLevel is the encoded level of a healthy bolt.
	HealthyLevel = 9
	// DrivingK4 is the fixed K4 of the driving element.
	DrivingK4 = 1e8
	// Translational is the fixed translational stiffness (K1, K2, K3) of
	// every element; it is never varied.
	Translational = 1e6
	// Min and Max bound the continuous sampling range for DOE and Monte
	// Carlo designs.
	Min = 1e4
	Max = 1e14
)

// ErrInvalidLevel reports a level outside [MinLevel, MaxLevel] or a value
// that does not decode to an integral level.
var ErrInvalidLevel = errors.New("stiffness: invalid level")

// ErrNonPositive reports a direct stiffness value that is not positive.
var ErrNonPositive = errors.New("stiffness: value must be positive")

// Encode maps a discrete level to its stiffness value, 10^(level+3).
func Encode(level int) (float64, error) {
	if level < MinLevel || level > MaxLevel {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidLevel, level, MinLevel, MaxLevel)
	}
	return math.Pow(10, float64(level+3)), nil
}

// Decode inverts Encode. The value must be an exact power of ten whose
// exponent lands on an integral level in range.
func Decode(value float64) (int, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %g", ErrNonPositive, value)
	}
	exp := math.Log10(value)
	level := exp - 3
	rounded := math.Round(level)
	if math.Abs(level-rounded) > 1e-9 {
		return 0, fmt.Errorf("%w: %g is not a level-encoded value", ErrInvalidLevel, value)
	}
	l := int(rounded)
	if l < MinLevel || l > MaxLevel {
		return 0, fmt.Errorf("%w: %g decodes to level %d", ErrInvalidLevel, value, l)
	}
	return l, nil
}

// Validate checks a direct stiffness override.
func Validate(value float64) error {
	if value <= 0 {
		return fmt.Errorf("%w: %g", ErrNonPositive, value)
	}
	return nil
}

// Triple is the rotational stiffness triple (K4, K5, K6) of one element.
type Triple struct {
	K4 float64
	K5 float64
	K6 float64
}

// DrivingTriple returns the fixed triple of the driving element. It is
// identical for every case in every study.
func DrivingTriple() Triple {
	return Triple{K4: DrivingK4, K5: Healthy, K6: Healthy}
}

// HealthyTriple returns the triple of a fully tight bolt.
func HealthyTriple() Triple {
	return Triple{K4: Healthy, K5: Healthy, K6: Healthy}
}

// Uniform returns a triple with all three rotational values set to v.
func Uniform(v float64) Triple {
	return Triple{K4: v, K5: v, K6: v}
}
