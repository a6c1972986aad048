// Package delta computes baseline-relative feature differences.
// For every response channel the engine subtracts the current case's
// features from the healthy baseline's, so a positive area delta means
// the current case lost response energy relative to healthy.
package delta

import (
	"fmt"
	"math"

	"github.com/structdyn/boltlab/internal/store"
)

// ZeroClamp is the magnitude below which a computed delta is stored as
// exactly zero. Differences smaller than this are solver noise, and the
// baseline compared against itself must produce exact zeros.
const ZeroClamp = 1e-6

type channelKey struct {
	nodeID int
	dof    string
	kind   string
}

// Compute returns one delta row per channel of current, as baseline
// minus current. Every channel of the current case must exist in the
// baseline; a missing channel is a contract violation and fails the
// whole computation.
func Compute(baseline, current []store.ChannelFeatures) ([]store.Delta, error) {
	base := make(map[channelKey]store.ChannelFeatures, len(baseline))
	for _, f := range baseline {
		base[channelKey{f.NodeID, f.DOF, f.Kind}] = f
	}

	deltas := make([]store.Delta, 0, len(current))
	for _, cur := range current {
		key := channelKey{cur.NodeID, cur.DOF, cur.Kind}
		b, ok := base[key]
		if !ok {
			return nil, fmt.Errorf("channel node %d %s %s missing from baseline", cur.NodeID, cur.DOF, cur.Kind)
		}

		bFreq, bMag := primaryPeak(b)
		cFreq, cMag := primaryPeak(cur)

		deltas = append(deltas, store.Delta{
			NodeID:   cur.NodeID,
			DOF:      cur.DOF,
			Kind:     cur.Kind,
			Area:     clamp(b.Area - cur.Area),
			PeakFreq: clamp(bFreq - cFreq),
			PeakMag:  clamp(bMag - cMag),
		})
	}
	return deltas, nil
}

// primaryPeak returns the rank-1 peak of a channel, or zeros when the
// channel has no peaks recorded.
func primaryPeak(f store.ChannelFeatures) (freq, mag float64) {
	if f.Peaks[0] == nil {
		return 0, 0
	}
	return f.Peaks[0].Frequency, f.Peaks[0].Magnitude
}

// clamp flushes near-zero differences to exact zero.
func clamp(v float64) float64 {
	if math.Abs(v) < ZeroClamp {
		return 0
	}
	return v
}

// Violation is one delta metric that failed a zero check.
type Violation struct {
	NodeID int
	DOF    string
	Kind   string
	Metric string
	Value  float64
}

func (v Violation) String() string {
	return fmt.Sprintf("node %d %s %s %s = %g", v.NodeID, v.DOF, v.Kind, v.Metric, v.Value)
}

// VerifyZero checks that every delta metric is within tolerance of zero.
// With tolerance 0 the check demands exact zeros, which holds for a
// baseline compared against itself because of the clamp.
func VerifyZero(deltas []store.Delta, tolerance float64) []Violation {
	var violations []Violation
	for _, d := range deltas {
		metrics := []struct {
			name  string
			value float64
		}{
			{"area", d.Area},
			{"peak1_freq", d.PeakFreq},
			{"peak1_mag", d.PeakMag},
		}
		for _, m := range metrics {
			if math.Abs(m.value) > tolerance {
				violations = append(violations, Violation{
					NodeID: d.NodeID,
					DOF:    d.DOF,
					Kind:   d.Kind,
					Metric: m.name,
					Value:  m.value,
				})
			}
		}
	}
	return violations
}
