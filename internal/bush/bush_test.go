package bush

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/structdyn/boltlab/internal/design"
	"github.com/structdyn/boltlab/internal/stiffness"
)

func TestWriteBaseline(t *testing.T) {
	var sb strings.Builder
	if err := Write(&sb, design.Baseline()); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	if len(lines) != design.NumElements {
		t.Fatalf("wrote %d cards, want %d", len(lines), design.NumElements)
	}

	// Driving element: K4=1e8, K5=K6=1e12.
	if !strings.Contains(lines[0], "1.+8") || !strings.Contains(lines[0], "1.+12") {
		t.Errorf("driving card = %q", lines[0])
	}
	// Healthy element: all rotational values 1e12.
	if strings.Count(lines[1], "1.+12") != 3 {
		t.Errorf("healthy card = %q", lines[1])
	}
}

func TestLayoutOffsets(t *testing.T) {
	// The writer must honor the declared layout: each field starts at its
	// declared offset.
	var sb strings.Builder
	if err := Write(&sb, design.Baseline()); err != nil {
		t.Fatal(err)
	}
	line := strings.SplitN(sb.String(), "\n", 2)[0]

	for _, f := range CardLayout {
		if f.Offset >= len(line) {
			continue
		}
		if line[f.Offset] == ' ' && f.Name != "k6" {
			t.Errorf("field %s does not start at offset %d in %q", f.Name, f.Offset, line)
		}
	}
	if !strings.HasPrefix(line, "PBUSH") {
		t.Errorf("card = %q", line)
	}
	if got := strings.TrimSpace(line[8:16]); got != "1" {
		t.Errorf("element id field = %q, want 1", got)
	}
	if got := strings.TrimSpace(line[16:24]); got != "K" {
		t.Errorf("flag field = %q, want K", got)
	}
}

func TestWriteParseRoundTrip(t *testing.T) {
	cases, err := design.Sweep()
	if err != nil {
		t.Fatal(err)
	}
	c := cases[46] // case 47: element 7, level 7

	path := filepath.Join(t.TempDir(), "Bush.blk")
	if err := WriteFile(path, c); err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != design.NumElements {
		t.Fatalf("parsed %d elements, want %d", len(parsed), design.NumElements)
	}
	for _, a := range c.Assignments {
		got, ok := parsed[a.ElementID]
		if !ok {
			t.Fatalf("element %d missing from parse", a.ElementID)
		}
		if got != a.Triple {
			t.Errorf("element %d: %+v, want %+v", a.ElementID, got, a.Triple)
		}
	}
}

func TestParseFreeFormCards(t *testing.T) {
	in := "$ comment line\n" +
		"PBUSH 3 K 1.+6 1.+6 1.+6 1.+9 1.+9 1.+9\n"
	parsed, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := stiffness.Uniform(1e9)
	if got := parsed[3]; got != want {
		t.Errorf("element 3 = %+v, want %+v", got, want)
	}
}

func TestParseRejectsMalformedCard(t *testing.T) {
	if _, err := Parse(strings.NewReader("PBUSH 3 K 1.+6\n")); err == nil {
		t.Error("Parse accepted a truncated card")
	}
}

func TestDirectValueSurvivesCardWidth(t *testing.T) {
	// A direct override with a long mantissa must still fit the 8-char
	// field and parse back close to the original.
	c := design.Baseline()
	c.Assignments[4].Triple = stiffness.Uniform(1.698243e7)

	var sb strings.Builder
	if err := Write(&sb, c); err != nil {
		t.Fatal(err)
	}
	parsed, err := Parse(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatal(err)
	}
	got := parsed[5].K4
	if got < 1.69e7 || got > 1.71e7 {
		t.Errorf("K4 round-tripped to %g", got)
	}
}
