// Package pch parses the solver's punch output: frequency-response curves
// grouped into $ACCE and $DISP blocks, one block per (node, dof) channel.
package pch

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/structdyn/boltlab/internal/curve"
)

// Kind is the response kind of a channel.
type Kind string

const (
	Acceleration Kind = "acceleration"
	Displacement Kind = "displacement"
)

// Kinds lists the response kinds in storage order.
var Kinds = []Kind{Acceleration, Displacement}

// DOFs lists the degree-of-freedom tags in solver numbering order.
var DOFs = []string{"T1", "T2", "T3", "R1", "R2", "R3"}

// dofNames maps the solver's numeric component ids to DOF tags.
var dofNames = map[int]string{
	3: "T1", 4: "T2", 5: "T3",
	6: "R1", 7: "R2", 8: "R3",
}

// Channel identifies one response curve.
type Channel struct {
	NodeID int
	DOF    string
	Kind   Kind
}

// Result holds every curve of one solver run keyed by channel.
type Result struct {
	Curves map[Channel][]curve.Sample
}

// Parse reads a punch stream. Block headers look like
//
//	$ACCE  0  <node_id>  <component>  ...
//
// followed by data rows of the form "index frequency magnitude ...".
// Unparseable data rows are skipped, matching the tolerant behavior expected
// of solver output; structural validation happens in Validate.
func Parse(r io.Reader) (*Result, error) {
	res := &Result{Curves: make(map[Channel][]curve.Sample)}

	var (
		current Channel
		active  bool
		samples []curve.Sample
	)
	flush := func() {
		if active && len(samples) > 0 {
			res.Curves[current] = samples
		}
		samples = nil
		active = false
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "$ACCE"), strings.HasPrefix(line, "$DISP"):
			flush()
			kind := Acceleration
			if strings.HasPrefix(line, "$DISP") {
				kind = Displacement
			}
			parts := strings.Fields(line)
			if len(parts) < 5 {
				continue
			}
			node, err := strconv.Atoi(parts[2])
			if err != nil {
				continue
			}
			comp, err := strconv.Atoi(parts[3])
			if err != nil {
				continue
			}
			dof, ok := dofNames[comp]
			if !ok {
				dof = fmt.Sprintf("DOF%d", comp)
			}
			current = Channel{NodeID: node, DOF: dof, Kind: kind}
			active = true
		case strings.HasPrefix(line, "$"):
			flush()
		case active && strings.TrimSpace(line) != "":
			parts := strings.Fields(line)
			if len(parts) < 3 {
				continue
			}
			freq, err1 := strconv.ParseFloat(parts[1], 64)
			mag, err2 := strconv.ParseFloat(parts[2], 64)
			if err1 != nil || err2 != nil {
				continue
			}
			samples = append(samples, curve.Sample{Frequency: freq, Magnitude: mag})
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("pch: read: %w", err)
	}
	return res, nil
}

// ParseFile parses the punch file at path.
func ParseFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pch: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Contract is the expected shape of a complete solver run: the monitored
// nodes, and the frequency-grid length every channel must carry. The channel
// set is nodes × DOFs × Kinds.
type Contract struct {
	Nodes      []int
	GridLength int
}

// ExpectedChannels is the channel count the contract implies.
func (c Contract) ExpectedChannels() int {
	return len(c.Nodes) * len(DOFs) * len(Kinds)
}

// ExpectedPoints is the total sample count of a complete run.
func (c Contract) ExpectedPoints() int {
	return c.ExpectedChannels() * c.GridLength
}

// Validate checks a parsed result against the contract. Any missing channel
// or short curve means the extraction failed; a partial result must never be
// ingested as a completed case.
func (r *Result) Validate(c Contract) error {
	for _, node := range c.Nodes {
		for _, dof := range DOFs {
			for _, kind := range Kinds {
				ch := Channel{NodeID: node, DOF: dof, Kind: kind}
				samples, ok := r.Curves[ch]
				if !ok {
					return fmt.Errorf("pch: missing channel node=%d dof=%s kind=%s", node, dof, kind)
				}
				if len(samples) != c.GridLength {
					return fmt.Errorf("pch: channel node=%d dof=%s kind=%s has %d points, want %d",
						node, dof, kind, len(samples), c.GridLength)
				}
			}
		}
	}
	if got, want := len(r.Curves), c.ExpectedChannels(); got != want {
		return fmt.Errorf("pch: %d channels present, want %d", got, want)
	}
	return nil
}
