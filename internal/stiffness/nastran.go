package stiffness

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// FormatNastran converts a float to Nastran shorthand notation. Whole
// mantissas keep the trailing dot before the sign (1e8 -> "1.+8"), which the
// solver front end requires; decimals keep their digits (5.5e7 -> "5.5+7").
func FormatNastran(value float64) string {
	return FormatNastranPrec(value, 6)
}

// FormatNastranPrec is FormatNastran with an explicit mantissa precision in
// significant digits, for callers that must fit a fixed-width card field.
func FormatNastranPrec(value float64, prec int) string {
	if value == 0 {
		return "0.0"
	}

	exp := 0
	v := math.Abs(value)
	if v >= 1 {
		for v >= 10 {
			v /= 10
			exp++
		}
	} else {
		for v < 1 {
			v *= 10
			exp--
		}
	}
	mantissa := value / math.Pow(10, float64(exp))

	if mantissa == math.Trunc(mantissa) {
		if exp >= 0 {
			return fmt.Sprintf("%d.+%d", int(mantissa), exp)
		}
		return fmt.Sprintf("%d.%d", int(mantissa), exp)
	}
	if exp >= 0 {
		return fmt.Sprintf("%s+%d", strconv.FormatFloat(mantissa, 'g', prec, 64), exp)
	}
	return fmt.Sprintf("%s%d", strconv.FormatFloat(mantissa, 'g', prec, 64), exp)
}

var (
	// 1.+8 -> 1.E+8
	shorthandDot = regexp.MustCompile(`(\d)\.([+-])(\d)`)
	// 1.5+6 -> 1.5E+6
	shorthandDecimal = regexp.MustCompile(`(\d\.\d+)([+-])(\d)`)
	// 1+8 -> 1E+8
	shorthandBare = regexp.MustCompile(`(\d)([+-])(\d)`)
)

// ParseNastran converts Nastran shorthand notation to a float. Standard
// scientific notation ("1.0E+8") passes through unchanged.
func ParseNastran(s string) (float64, error) {
	t := strings.TrimSpace(s)
	t = shorthandDot.ReplaceAllString(t, "${1}.E${2}${3}")
	t = shorthandDecimal.ReplaceAllString(t, "${1}E${2}${3}")
	t = shorthandBare.ReplaceAllString(t, "${1}E${2}${3}")
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, fmt.Errorf("stiffness: cannot parse %q as nastran float: %w", s, err)
	}
	return v, nil
}
