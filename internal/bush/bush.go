// Package bush reads and writes the solver's bolt-property artifact
// (Bush.blk): one fixed-width PBUSH card per structural element.
//
// The card layout is declared once as a field-layout descriptor and shared
// by the writer and the parser, so the column offsets live in exactly one
// place.
package bush

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/structdyn/boltlab/internal/design"
	"github.com/structdyn/boltlab/internal/stiffness"
)

// Field is one fixed-width column of a PBUSH card.
type Field struct {
	Name   string
	Offset int // zero-based byte offset within the card
	Width  int
}

// CardLayout is the PBUSH card: 8-character fields in solver order.
var CardLayout = []Field{
	{Name: "card", Offset: 0, Width: 8},
	{Name: "element_id", Offset: 8, Width: 8},
	{Name: "flag", Offset: 16, Width: 8},
	{Name: "k1", Offset: 24, Width: 8},
	{Name: "k2", Offset: 32, Width: 8},
	{Name: "k3", Offset: 40, Width: 8},
	{Name: "k4", Offset: 48, Width: 8},
	{Name: "k5", Offset: 56, Width: 8},
	{Name: "k6", Offset: 64, Width: 8},
}

// cardWidth is the total card length implied by the layout.
var cardWidth = func() int {
	last := CardLayout[len(CardLayout)-1]
	return last.Offset + last.Width
}()

// Write emits one PBUSH card per assignment, in element order.
func Write(w io.Writer, c design.CaseDef) error {
	for _, a := range c.Assignments {
		card, err := formatCard(a)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, card); err != nil {
			return fmt.Errorf("bush: write card for element %d: %w", a.ElementID, err)
		}
	}
	return nil
}

// WriteFile writes the artifact for a case definition to path.
func WriteFile(path string, c design.CaseDef) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("bush: create %s: %w", path, err)
	}
	if err := Write(f, c); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("bush: close %s: %w", path, err)
	}
	return nil
}

func formatCard(a design.Assignment) (string, error) {
	values := map[string]string{
		"card":       "PBUSH",
		"element_id": strconv.Itoa(a.ElementID),
		"flag":       "K",
		"k1":         stiffness.FormatNastran(stiffness.Translational),
		"k2":         stiffness.FormatNastran(stiffness.Translational),
		"k3":         stiffness.FormatNastran(stiffness.Translational),
		"k4":         fitField(a.Triple.K4, 8),
		"k5":         fitField(a.Triple.K5, 8),
		"k6":         fitField(a.Triple.K6, 8),
	}

	card := make([]byte, cardWidth)
	for i := range card {
		card[i] = ' '
	}
	for _, f := range CardLayout {
		v := values[f.Name]
		if len(v) > f.Width {
			return "", fmt.Errorf("bush: value %q overflows field %s (width %d)", v, f.Name, f.Width)
		}
		copy(card[f.Offset:], v)
	}
	return strings.TrimRight(string(card), " "), nil
}

// fitField formats a stiffness value for an 8-character card field, shedding
// mantissa digits until it fits.
func fitField(v float64, width int) string {
	for prec := 6; prec >= 1; prec-- {
		s := stiffness.FormatNastranPrec(v, prec)
		if len(s) <= width {
			return s
		}
	}
	return stiffness.FormatNastranPrec(v, 1)
}

// Parse reads PBUSH cards and returns the rotational triple per element.
// Cards are located by keyword, then sliced by the declared layout; short
// or free-form lines fall back to whitespace splitting, since solver front
// ends reflow cards on occasion.
func Parse(r io.Reader) (map[int]stiffness.Triple, error) {
	out := make(map[int]stiffness.Triple)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "$") || !strings.HasPrefix(line, "PBUSH") {
			continue
		}
		id, triple, err := parseCard(line)
		if err != nil {
			return nil, err
		}
		out[id] = triple
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("bush: read: %w", err)
	}
	return out, nil
}

// ParseFile parses the artifact at path.
func ParseFile(path string) (map[int]stiffness.Triple, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bush: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

func parseCard(line string) (int, stiffness.Triple, error) {
	fields := make(map[string]string, len(CardLayout))
	if len(line) >= cardWidth-8 {
		for _, f := range CardLayout {
			if f.Offset >= len(line) {
				break
			}
			end := f.Offset + f.Width
			if end > len(line) {
				end = len(line)
			}
			fields[f.Name] = strings.TrimSpace(line[f.Offset:end])
		}
	}

	// Free-form fallback: PBUSH EID K K1 K2 K3 K4 K5 K6.
	if fields["element_id"] == "" || fields["k6"] == "" {
		parts := strings.Fields(line)
		if len(parts) != len(CardLayout) {
			return 0, stiffness.Triple{}, fmt.Errorf("bush: malformed card %q", line)
		}
		for i, f := range CardLayout {
			fields[f.Name] = parts[i]
		}
	}

	id, err := strconv.Atoi(fields["element_id"])
	if err != nil {
		return 0, stiffness.Triple{}, fmt.Errorf("bush: bad element id in %q: %w", line, err)
	}
	var ks [3]float64
	for i, name := range []string{"k4", "k5", "k6"} {
		v, err := stiffness.ParseNastran(fields[name])
		if err != nil {
			return 0, stiffness.Triple{}, fmt.Errorf("bush: element %d: %w", id, err)
		}
		ks[i] = v
	}
	return id, stiffness.Triple{K4: ks[0], K5: ks[1], K6: ks[2]}, nil
}
