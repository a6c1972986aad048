// Package curve converts raw frequency-response samples into the derived
// features stored per channel: integrated area and up to three ranked peaks.
package curve

import (
	"sort"
)

// Sample is one (frequency, magnitude) point of a response curve.
type Sample struct {
	Frequency float64
	Magnitude float64
}

// Peak is one ranked local maximum.
type Peak struct {
	Frequency float64
	Magnitude float64
}

// MaxPeaks is the number of peak slots per channel; missing slots stay nil.
const MaxPeaks = 3

// Features are the derived values of one channel's curve.
type Features struct {
	Area  float64
	Peaks [MaxPeaks]*Peak
}

// Extract computes area and ranked peaks for one channel. Samples are sorted
// ascending by frequency first, so a permuted curve yields identical results
// to a pre-sorted one.
func Extract(samples []Sample) Features {
	s := make([]Sample, len(samples))
	copy(s, samples)
	sort.Slice(s, func(i, j int) bool { return s[i].Frequency < s[j].Frequency })

	var f Features
	f.Area = area(s)
	for i, p := range peaks(s) {
		p := p
		f.Peaks[i] = &p
	}
	return f
}

// area integrates the curve over frequency with the trapezoidal rule.
func area(s []Sample) float64 {
	if len(s) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(s); i++ {
		df := s[i].Frequency - s[i-1].Frequency
		sum += df * (s[i].Magnitude + s[i-1].Magnitude) / 2
	}
	return sum
}

// peaks finds up to MaxPeaks local maxima, ranked descending by magnitude
// with ties broken toward lower frequency. A sample is a local maximum when
// its magnitude strictly exceeds both neighbors; boundary samples are
// compared only to their single neighbor. A curve with no such sample (flat,
// or flat-topped) falls back to its single global maximum, so every
// non-empty curve yields at least one peak.
func peaks(s []Sample) []Peak {
	if len(s) == 0 {
		return nil
	}

	var candidates []Peak
	if len(s) == 1 {
		candidates = []Peak{{s[0].Frequency, s[0].Magnitude}}
	} else {
		if s[0].Magnitude > s[1].Magnitude {
			candidates = append(candidates, Peak{s[0].Frequency, s[0].Magnitude})
		}
		for i := 1; i < len(s)-1; i++ {
			if s[i].Magnitude > s[i-1].Magnitude && s[i].Magnitude > s[i+1].Magnitude {
				candidates = append(candidates, Peak{s[i].Frequency, s[i].Magnitude})
			}
		}
		last := len(s) - 1
		if s[last].Magnitude > s[last-1].Magnitude {
			candidates = append(candidates, Peak{s[last].Frequency, s[last].Magnitude})
		}
	}

	if len(candidates) == 0 {
		// No strict local maximum anywhere. Use the global maximum; the
		// scan keeps the lowest-frequency sample on magnitude ties.
		best := 0
		for i := 1; i < len(s); i++ {
			if s[i].Magnitude > s[best].Magnitude {
				best = i
			}
		}
		candidates = []Peak{{s[best].Frequency, s[best].Magnitude}}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Magnitude != candidates[j].Magnitude {
			return candidates[i].Magnitude > candidates[j].Magnitude
		}
		return candidates[i].Frequency < candidates[j].Frequency
	})

	if len(candidates) > MaxPeaks {
		candidates = candidates[:MaxPeaks]
	}
	return candidates
}
