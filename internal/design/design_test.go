package design

import (
	"math"
	"testing"

	"github.com/structdyn/boltlab/internal/stiffness"
)

func TestSweepProduces72OrderedCases(t *testing.T) {
	cases, err := Sweep()
	if err != nil {
		t.Fatal(err)
	}
	if len(cases) != 72 {
		t.Fatalf("Sweep() yielded %d cases, want 72", len(cases))
	}

	seen := make(map[int]bool)
	for _, c := range cases {
		if c.Number < 1 || c.Number > 72 {
			t.Errorf("case number %d out of range", c.Number)
		}
		if seen[c.Number] {
			t.Errorf("duplicate case number %d", c.Number)
		}
		seen[c.Number] = true
		if c.IsBaseline {
			t.Errorf("case %d flagged as baseline", c.Number)
		}
	}
	if len(seen) != 72 {
		t.Errorf("case numbers form a set of %d, want 72", len(seen))
	}
}

func TestSweepDrivingElementIsFixedEverywhere(t *testing.T) {
	cases, err := Sweep()
	if err != nil {
		t.Fatal(err)
	}
	want := stiffness.DrivingTriple()
	for _, c := range cases {
		a := c.Assignments[0]
		if a.ElementID != DrivingElement {
			t.Fatalf("case %d: first assignment is element %d", c.Number, a.ElementID)
		}
		if a.Triple != want {
			t.Errorf("case %d: driving triple = %+v, want %+v", c.Number, a.Triple, want)
		}
		if a.Varied {
			t.Errorf("case %d: driving element marked varied", c.Number)
		}
	}
}

func TestSweepCaseOrdering(t *testing.T) {
	// Element-major, level-minor: case 1 = elem 2 level 1, case 8 = elem 2
	// level 8, case 9 = elem 3 level 1, case 72 = elem 10 level 8.
	tests := []struct {
		number, element, level int
	}{
		{1, 2, 1},
		{8, 2, 8},
		{9, 3, 1},
		{47, 7, 7},
		{72, 10, 8},
	}
	for _, tt := range tests {
		if got := SweepCaseNumber(tt.element, tt.level); got != tt.number {
			t.Errorf("SweepCaseNumber(%d, %d) = %d, want %d", tt.element, tt.level, got, tt.number)
		}
		elem, level, err := SweepCaseElementLevel(tt.number)
		if err != nil {
			t.Fatal(err)
		}
		if elem != tt.element || level != tt.level {
			t.Errorf("SweepCaseElementLevel(%d) = (%d, %d), want (%d, %d)",
				tt.number, elem, level, tt.element, tt.level)
		}
	}

	for number := 1; number <= SweepCases; number++ {
		elem, level, err := SweepCaseElementLevel(number)
		if err != nil {
			t.Fatal(err)
		}
		if got := SweepCaseNumber(elem, level); got != number {
			t.Errorf("round trip case %d -> (%d, %d) -> %d", number, elem, level, got)
		}
	}

	if _, _, err := SweepCaseElementLevel(0); err == nil {
		t.Error("SweepCaseElementLevel(0) accepted the baseline number")
	}
	if _, _, err := SweepCaseElementLevel(73); err == nil {
		t.Error("SweepCaseElementLevel(73) accepted an out-of-range number")
	}
}

func TestSweepVariedAssignment(t *testing.T) {
	cases, err := Sweep()
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cases {
		elem, level, err := SweepCaseElementLevel(c.Number)
		if err != nil {
			t.Fatal(err)
		}
		var varied []Assignment
		for _, a := range c.Assignments {
			if a.Varied {
				varied = append(varied, a)
			}
		}
		if len(varied) != 1 {
			t.Fatalf("case %d: %d varied assignments, want 1", c.Number, len(varied))
		}
		a := varied[0]
		if a.ElementID != elem {
			t.Errorf("case %d: varied element %d, want %d", c.Number, a.ElementID, elem)
		}
		if a.Level == nil || *a.Level != level {
			t.Errorf("case %d: varied level %v, want %d", c.Number, a.Level, level)
		}
		want, _ := stiffness.Encode(level)
		if a.Triple.K4 != want {
			t.Errorf("case %d: K4 = %g, want %g", c.Number, a.Triple.K4, want)
		}
	}
}

func TestBaselineCase(t *testing.T) {
	b := Baseline()
	if b.Number != 0 || !b.IsBaseline {
		t.Fatalf("Baseline() = number %d, baseline %v", b.Number, b.IsBaseline)
	}
	if len(b.Assignments) != NumElements {
		t.Fatalf("baseline has %d assignments, want %d", len(b.Assignments), NumElements)
	}
	for _, a := range b.Assignments[1:] {
		if a.Triple != stiffness.HealthyTriple() {
			t.Errorf("element %d: triple %+v, want healthy", a.ElementID, a.Triple)
		}
		if a.Varied {
			t.Errorf("element %d marked varied in baseline", a.ElementID)
		}
	}
}

func TestLatinHypercubeStratification(t *testing.T) {
	const n = 40
	cases, err := LatinHypercube(n, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(cases) != n {
		t.Fatalf("LatinHypercube yielded %d cases, want %d", len(cases), n)
	}

	lo, hi := math.Log10(stiffness.Min), math.Log10(stiffness.Max)
	width := (hi - lo) / n

	// Every stratum of every varied dimension must be used exactly once.
	for elem := FirstVariable; elem <= LastVariable; elem++ {
		used := make([]int, n)
		for _, c := range cases {
			var a *Assignment
			for i := range c.Assignments {
				if c.Assignments[i].ElementID == elem {
					a = &c.Assignments[i]
				}
			}
			if a == nil {
				t.Fatalf("case %d missing element %d", c.Number, elem)
			}
			logv := math.Log10(a.Triple.K4)
			stratum := int((logv - lo) / width)
			if stratum == n {
				stratum = n - 1
			}
			if stratum < 0 || stratum >= n {
				t.Fatalf("case %d element %d: value %g outside range", c.Number, elem, a.Triple.K4)
			}
			used[stratum]++
			if a.Level != nil {
				t.Errorf("continuous sample carries an encoded level")
			}
		}
		for s, count := range used {
			if count != 1 {
				t.Errorf("element %d stratum %d used %d times, want 1", elem, s, count)
			}
		}
	}
}

func TestLatinHypercubeDeterministicUnderSeed(t *testing.T) {
	a, err := LatinHypercube(10, 42)
	if err != nil {
		t.Fatal(err)
	}
	b, err := LatinHypercube(10, 42)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		for j := range a[i].Assignments {
			if a[i].Assignments[j].Triple != b[i].Assignments[j].Triple {
				t.Fatalf("case %d element %d differs between runs with same seed", i, j)
			}
		}
	}
}

func TestMonteCarloRange(t *testing.T) {
	cases, err := MonteCarlo(50, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(cases) != 50 {
		t.Fatalf("MonteCarlo yielded %d cases, want 50", len(cases))
	}
	for _, c := range cases {
		for _, a := range c.Assignments {
			if !a.Varied {
				continue
			}
			if a.Triple.K4 < stiffness.Min || a.Triple.K4 > stiffness.Max {
				t.Errorf("case %d element %d: %g outside [%g, %g]",
					c.Number, a.ElementID, a.Triple.K4, stiffness.Min, stiffness.Max)
			}
		}
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	if _, err := LatinHypercube(0, 1); err == nil {
		t.Error("LatinHypercube(0) succeeded")
	}
	if _, err := MonteCarlo(-1, 1); err == nil {
		t.Error("MonteCarlo(-1) succeeded")
	}
	if _, err := ParseStudyType("full_factorial"); err == nil {
		t.Error("ParseStudyType accepted unknown type")
	}
	if _, err := ParseStudyType("doe"); err != nil {
		t.Errorf("ParseStudyType(doe): %v", err)
	}
}
