// Package design generates the ordered case lists for parametric
// bolt-stiffness studies.
//
// A study varies the rotational stiffness of elements 2..10; element 1 is
// the driving element and always carries the same fixed triple. Three
// strategies are supported: an exhaustive single-element sweep, a Latin
// Hypercube DOE, and unstratified Monte Carlo sampling.
package design

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/structdyn/boltlab/internal/stiffness"
)

// StudyType identifies the sampling strategy of a study.
type StudyType string

const (
	TypeSweep      StudyType = "sweep"
	TypeDOE        StudyType = "doe"
	TypeMonteCarlo StudyType = "monte_carlo"
	TypeManual     StudyType = "manual"
)

// ParseStudyType validates a study type string.
func ParseStudyType(s string) (StudyType, error) {
	switch StudyType(s) {
	case TypeSweep, TypeDOE, TypeMonteCarlo, TypeManual:
		return StudyType(s), nil
	}
	return "", fmt.Errorf("design: unknown study type %q", s)
}

// Element layout of the model.
const (
	// NumElements is the total number of structural elements.
	NumElements = 10
	// DrivingElement is never varied; it provides the excitation input.
	DrivingElement = 1
	// FirstVariable and LastVariable bound the experimentally varied
	// elements.
	FirstVariable = 2
	LastVariable  = 10
	// NumVariable is the count of varied elements.
	NumVariable = LastVariable - FirstVariable + 1
	// SweepLevels is the number of loosened levels swept per element.
	SweepLevels = 8
	// SweepCases is the total sweep case count (NumVariable × SweepLevels).
	SweepCases = NumVariable * SweepLevels
)

// Assignment is one element's stiffness in a case definition. Level is nil
// when the value was given directly rather than through the level codec.
type Assignment struct {
	ElementID int              `json:"element_id"`
	Triple    stiffness.Triple `json:"stiffness"`
	Level     *int             `json:"level,omitempty"`
	Varied    bool             `json:"varied"`
}

// CaseDef is one case of a study: a case number, a name, and exactly one
// assignment per structural element, ordered by element id.
type CaseDef struct {
	Number      int          `json:"case_number"`
	Name        string       `json:"case_name"`
	IsBaseline  bool         `json:"is_baseline"`
	Assignments []Assignment `json:"assignments"`
}

// Baseline returns case 0: driving element fixed, every other element at the
// healthy triple.
func Baseline() CaseDef {
	return CaseDef{
		Number:      0,
		Name:        "baseline",
		IsBaseline:  true,
		Assignments: assignments(nil),
	}
}

// assignments builds the full 10-element assignment list. varied maps a
// variable element id to its assignment; unlisted elements are healthy.
func assignments(varied map[int]Assignment) []Assignment {
	out := make([]Assignment, 0, NumElements)
	for id := 1; id <= NumElements; id++ {
		if id == DrivingElement {
			out = append(out, Assignment{
				ElementID: id,
				Triple:    stiffness.DrivingTriple(),
			})
			continue
		}
		if a, ok := varied[id]; ok {
			a.ElementID = id
			a.Varied = true
			out = append(out, a)
			continue
		}
		healthyLevel := stiffness.HealthyLevel
		out = append(out, Assignment{
			ElementID: id,
			Triple:    stiffness.HealthyTriple(),
			Level:     &healthyLevel,
		})
	}
	return out
}

// Sweep generates the full 72-case single-element sweep: each variable
// element in turn is loosened through levels 1..8 while all others stay
// healthy. Case numbers are element-major, level-minor and never change
// between runs.
func Sweep() ([]CaseDef, error) {
	cases := make([]CaseDef, 0, SweepCases)
	for elem := FirstVariable; elem <= LastVariable; elem++ {
		for level := 1; level <= SweepLevels; level++ {
			value, err := stiffness.Encode(level)
			if err != nil {
				return nil, err
			}
			number := SweepCaseNumber(elem, level)
			lvl := level
			cases = append(cases, CaseDef{
				Number: number,
				Name:   fmt.Sprintf("case_%03d", number),
				Assignments: assignments(map[int]Assignment{
					elem: {Triple: stiffness.Uniform(value), Level: &lvl},
				}),
			})
		}
	}
	return cases, nil
}

// SweepCaseNumber maps (element, level) to its sweep case number.
// Case 1 is element 2 level 1; case 72 is element 10 level 8.
func SweepCaseNumber(element, level int) int {
	return (element-FirstVariable)*SweepLevels + level
}

// SweepCaseElementLevel inverts SweepCaseNumber. Case 0 is the baseline and
// has no element/level.
func SweepCaseElementLevel(number int) (element, level int, err error) {
	if number < 1 || number > SweepCases {
		return 0, 0, fmt.Errorf("design: sweep case number must be 1..%d, got %d", SweepCases, number)
	}
	zero := number - 1
	return zero/SweepLevels + FirstVariable, zero%SweepLevels + 1, nil
}

// logRange is the log10 sampling range for continuous designs.
var logMin, logMax = math.Log10(stiffness.Min), math.Log10(stiffness.Max)

// LatinHypercube generates an n-case DOE with the Latin Hypercube property:
// for every varied element the log-stiffness range is split into n
// equal-probability strata and each stratum is used by exactly one case.
// The stratum-to-case assignment is permuted independently per dimension.
func LatinHypercube(n int, seed int64) ([]CaseDef, error) {
	if n < 1 {
		return nil, fmt.Errorf("design: case count must be positive, got %d", n)
	}
	rng := rand.New(rand.NewSource(seed))

	// samples[d][i] is case i's log-stiffness for dimension d.
	samples := make([][]float64, NumVariable)
	width := (logMax - logMin) / float64(n)
	for d := range samples {
		col := make([]float64, n)
		for s := 0; s < n; s++ {
			lo := logMin + float64(s)*width
			col[s] = lo + rng.Float64()*width
		}
		rng.Shuffle(n, func(i, j int) { col[i], col[j] = col[j], col[i] })
		samples[d] = col
	}

	cases := make([]CaseDef, 0, n)
	for i := 0; i < n; i++ {
		varied := make(map[int]Assignment, NumVariable)
		for d := 0; d < NumVariable; d++ {
			value := math.Pow(10, samples[d][i])
			varied[FirstVariable+d] = Assignment{Triple: stiffness.Uniform(value)}
		}
		number := i + 1
		cases = append(cases, CaseDef{
			Number:      number,
			Name:        fmt.Sprintf("case_%03d", number),
			Assignments: assignments(varied),
		})
	}
	return cases, nil
}

// MonteCarlo generates n cases with every varied element drawn independently
// and uniformly over the log-stiffness range. No stratification guarantee.
func MonteCarlo(n int, seed int64) ([]CaseDef, error) {
	if n < 1 {
		return nil, fmt.Errorf("design: case count must be positive, got %d", n)
	}
	rng := rand.New(rand.NewSource(seed))

	cases := make([]CaseDef, 0, n)
	for i := 0; i < n; i++ {
		varied := make(map[int]Assignment, NumVariable)
		for d := 0; d < NumVariable; d++ {
			value := math.Pow(10, logMin+rng.Float64()*(logMax-logMin))
			varied[FirstVariable+d] = Assignment{Triple: stiffness.Uniform(value)}
		}
		number := i + 1
		cases = append(cases, CaseDef{
			Number:      number,
			Name:        fmt.Sprintf("case_%03d", number),
			Assignments: assignments(varied),
		})
	}
	return cases, nil
}

// Generate dispatches on the study type. Sweep ignores n; DOE and Monte
// Carlo require n >= 1. Manual studies have no generated cases.
func Generate(typ StudyType, n int, seed int64) ([]CaseDef, error) {
	switch typ {
	case TypeSweep:
		return Sweep()
	case TypeDOE:
		return LatinHypercube(n, seed)
	case TypeMonteCarlo:
		return MonteCarlo(n, seed)
	case TypeManual:
		return nil, nil
	}
	return nil, fmt.Errorf("design: unknown study type %q", typ)
}
