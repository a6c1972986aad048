package stiffness

import (
	"errors"
	"math"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for level := MinLevel; level <= MaxLevel; level++ {
		v, err := Encode(level)
		if err != nil {
			t.Fatalf("Encode(%d): %v", level, err)
		}
		want := math.Pow(10, float64(level+3))
		if v != want {
			t.Errorf("Encode(%d) = %g, want %g", level, v, want)
		}
		back, err := Decode(v)
		if err != nil {
			t.Fatalf("Decode(%g): %v", v, err)
		}
		if back != level {
			t.Errorf("Decode(Encode(%d)) = %d", level, back)
		}
	}
}

func TestEncodeRejectsOutOfRange(t *testing.T) {
	for _, level := range []int{0, -1, 12, 100} {
		if _, err := Encode(level); !errors.Is(err, ErrInvalidLevel) {
			t.Errorf("Encode(%d) err = %v, want ErrInvalidLevel", level, err)
		}
	}
}

func TestDecodeRejectsNonLevelValues(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  error
	}{
		{"zero", 0, ErrNonPositive},
		{"negative", -1e8, ErrNonPositive},
		{"non power of ten", 5.5e7, ErrInvalidLevel},
		{"below range", 1e3, ErrInvalidLevel},
		{"above range", 1e15, ErrInvalidLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.value); !errors.Is(err, tt.want) {
				t.Errorf("Decode(%g) err = %v, want %v", tt.value, err, tt.want)
			}
		})
	}
}

func TestValidateDirectValue(t *testing.T) {
	if err := Validate(5.5e7); err != nil {
		t.Errorf("Validate(5.5e7) = %v", err)
	}
	if err := Validate(0); !errors.Is(err, ErrNonPositive) {
		t.Errorf("Validate(0) = %v, want ErrNonPositive", err)
	}
	if err := Validate(-3); !errors.Is(err, ErrNonPositive) {
		t.Errorf("Validate(-3) = %v, want ErrNonPositive", err)
	}
}

func TestDrivingTripleIsFixed(t *testing.T) {
	tr := DrivingTriple()
	if tr.K4 != 1e8 || tr.K5 != 1e12 || tr.K6 != 1e12 {
		t.Errorf("DrivingTriple() = %+v", tr)
	}
}

func TestFormatNastran(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{1e8, "1.+8"},
		{1e12, "1.+12"},
		{1e4, "1.+4"},
		{1e-3, "1.-3"},
		{0, "0.0"},
	}
	for _, tt := range tests {
		if got := FormatNastran(tt.value); got != tt.want {
			t.Errorf("FormatNastran(%g) = %q, want %q", tt.value, got, tt.want)
		}
	}

	// Decimal mantissas keep their digits with the sign-form exponent.
	got := FormatNastran(5.5e7)
	if got != "5.5+7" {
		t.Errorf("FormatNastran(5.5e7) = %q, want %q", got, "5.5+7")
	}
}

func TestParseNastran(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1.+8", 1e8},
		{"1.-8", 1e-8},
		{"1.5+6", 1.5e6},
		{"1.0E+8", 1e8},
		{"1+8", 1e8},
		{"  1.+12 ", 1e12},
		{"100000000", 1e8},
	}
	for _, tt := range tests {
		got, err := ParseNastran(tt.in)
		if err != nil {
			t.Fatalf("ParseNastran(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseNastran(%q) = %g, want %g", tt.in, got, tt.want)
		}
	}

	if _, err := ParseNastran("not-a-number"); err == nil {
		t.Error("ParseNastran accepted garbage")
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for level := MinLevel; level <= MaxLevel; level++ {
		v, _ := Encode(level)
		got, err := ParseNastran(FormatNastran(v))
		if err != nil {
			t.Fatalf("round trip level %d: %v", level, err)
		}
		if got != v {
			t.Errorf("round trip level %d: %g != %g", level, got, v)
		}
	}
}
