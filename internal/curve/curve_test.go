package curve

import (
	"math"
	"math/rand"
	"testing"
)

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestConstantCurve(t *testing.T) {
	// Constant magnitude v over [f0, f1]: area = v * (f1 - f0), exactly one
	// peak at magnitude v.
	const v = 2.5
	var samples []Sample
	for f := 10.0; f <= 100.0; f += 5.0 {
		samples = append(samples, Sample{Frequency: f, Magnitude: v})
	}
	f := Extract(samples)

	if !approx(f.Area, v*90.0, 1e-9) {
		t.Errorf("area = %g, want %g", f.Area, v*90.0)
	}
	if f.Peaks[0] == nil {
		t.Fatal("constant curve yielded no peak")
	}
	if f.Peaks[0].Magnitude != v {
		t.Errorf("peak magnitude = %g, want %g", f.Peaks[0].Magnitude, v)
	}
	if f.Peaks[1] != nil || f.Peaks[2] != nil {
		t.Error("constant curve yielded more than one peak")
	}
}

func TestMonotoneCurveYieldsHigherEndpoint(t *testing.T) {
	samples := []Sample{
		{10, 1}, {20, 2}, {30, 3}, {40, 4},
	}
	f := Extract(samples)
	if f.Peaks[0] == nil || f.Peaks[0].Frequency != 40 || f.Peaks[0].Magnitude != 4 {
		t.Errorf("increasing curve peak = %+v, want (40, 4)", f.Peaks[0])
	}
	if f.Peaks[1] != nil {
		t.Error("monotone curve yielded a second peak")
	}

	// Decreasing: the low-frequency endpoint is the peak.
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i].Magnitude, samples[j].Magnitude = samples[j].Magnitude, samples[i].Magnitude
	}
	f = Extract(samples)
	if f.Peaks[0] == nil || f.Peaks[0].Frequency != 10 || f.Peaks[0].Magnitude != 4 {
		t.Errorf("decreasing curve peak = %+v, want (10, 4)", f.Peaks[0])
	}
}

func TestRankedPeaks(t *testing.T) {
	samples := []Sample{
		{0, 0}, {1, 5}, {2, 0}, {3, 9}, {4, 0}, {5, 7}, {6, 0}, {7, 3}, {8, 0},
	}
	f := Extract(samples)

	want := []Peak{{3, 9}, {5, 7}, {1, 5}}
	for i, w := range want {
		if f.Peaks[i] == nil {
			t.Fatalf("peak %d missing", i+1)
		}
		if *f.Peaks[i] != w {
			t.Errorf("peak %d = %+v, want %+v", i+1, *f.Peaks[i], w)
		}
	}
}

func TestPeakTieBreaksTowardLowerFrequency(t *testing.T) {
	samples := []Sample{
		{0, 0}, {1, 8}, {2, 0}, {3, 8}, {4, 0}, {5, 8}, {6, 0}, {7, 2}, {8, 0},
	}
	f := Extract(samples)

	wantFreqs := []float64{1, 3, 5}
	for i, wf := range wantFreqs {
		if f.Peaks[i] == nil {
			t.Fatalf("peak %d missing", i+1)
		}
		if f.Peaks[i].Frequency != wf || f.Peaks[i].Magnitude != 8 {
			t.Errorf("peak %d = %+v, want (%g, 8)", i+1, *f.Peaks[i], wf)
		}
	}
}

func TestFewerThanThreePeaksLeavesNils(t *testing.T) {
	samples := []Sample{{0, 0}, {1, 4}, {2, 0}}
	f := Extract(samples)
	if f.Peaks[0] == nil || f.Peaks[0].Frequency != 1 {
		t.Fatalf("peak 1 = %+v", f.Peaks[0])
	}
	if f.Peaks[1] != nil || f.Peaks[2] != nil {
		t.Error("missing peak slots are not nil")
	}
}

func TestOrderIndependence(t *testing.T) {
	var ordered []Sample
	for i := 0; i < 100; i++ {
		fq := float64(i) * 2.0
		ordered = append(ordered, Sample{Frequency: fq, Magnitude: math.Sin(fq/17)*3 + 4})
	}
	shuffled := make([]Sample, len(ordered))
	copy(shuffled, ordered)
	rng := rand.New(rand.NewSource(1))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	a := Extract(ordered)
	b := Extract(shuffled)

	if !approx(a.Area, b.Area, 1e-12) {
		t.Errorf("area differs: %g vs %g", a.Area, b.Area)
	}
	for i := range a.Peaks {
		switch {
		case a.Peaks[i] == nil && b.Peaks[i] == nil:
		case a.Peaks[i] == nil || b.Peaks[i] == nil:
			t.Errorf("peak %d nil mismatch", i+1)
		case *a.Peaks[i] != *b.Peaks[i]:
			t.Errorf("peak %d differs: %+v vs %+v", i+1, *a.Peaks[i], *b.Peaks[i])
		}
	}
}

func TestDegenerateInputs(t *testing.T) {
	empty := Extract(nil)
	if empty.Area != 0 {
		t.Errorf("empty area = %g", empty.Area)
	}
	if empty.Peaks[0] != nil {
		t.Error("empty curve yielded a peak")
	}

	single := Extract([]Sample{{50, 3}})
	if single.Area != 0 {
		t.Errorf("single-sample area = %g", single.Area)
	}
	if single.Peaks[0] == nil || single.Peaks[0].Magnitude != 3 {
		t.Errorf("single-sample peak = %+v", single.Peaks[0])
	}
}
