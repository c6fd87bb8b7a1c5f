package timeint

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Tableau is the Butcher tableau of an explicit Runge-Kutta method. A is
// strictly lower triangular.
type Tableau struct {
	Name string
	A    [][]float64
	B, C []float64
}

func (tb Tableau) Stages() int { return len(tb.B) }

// Validate checks the shape and the consistency conditions sum(B) = 1 and
// C[i] = sum(A[i]).
func (tb Tableau) Validate() error {
	s := tb.Stages()
	if s == 0 || len(tb.A) != s || len(tb.C) != s {
		return fmt.Errorf("tableau %q: inconsistent stage count", tb.Name)
	}
	var sumB float64
	for i, row := range tb.A {
		if len(row) != i {
			return fmt.Errorf("tableau %q: row %d of A must have %d entries", tb.Name, i, i)
		}
		var sumA float64
		for _, a := range row {
			sumA += a
		}
		if math.Abs(sumA-tb.C[i]) > 1e-14 {
			return fmt.Errorf("tableau %q: C[%d] = %g differs from the row sum %g", tb.Name, i, tb.C[i], sumA)
		}
		sumB += tb.B[i]
	}
	if math.Abs(sumB-1) > 1e-14 {
		return fmt.Errorf("tableau %q: weights sum to %g", tb.Name, sumB)
	}
	return nil
}

var (
	ForwardEuler = Tableau{
		Name: "ForwardEuler",
		A:    [][]float64{{}},
		B:    []float64{1},
		C:    []float64{0},
	}
	Heun2 = Tableau{
		Name: "Heun2",
		A:    [][]float64{{}, {1}},
		B:    []float64{0.5, 0.5},
		C:    []float64{0, 1},
	}
	SSPRK3 = Tableau{
		Name: "SSPRK3",
		A:    [][]float64{{}, {1}, {0.25, 0.25}},
		B:    []float64{1. / 6, 1. / 6, 2. / 3},
		C:    []float64{0, 1, 0.5},
	}
	RK4 = Tableau{
		Name: "RK4",
		A:    [][]float64{{}, {0.5}, {0, 0.5}, {0, 0, 1}},
		B:    []float64{1. / 6, 1. / 3, 1. / 3, 1. / 6},
		C:    []float64{0, 0.5, 0.5, 1},
	}
)

var tableauMap = map[string]Tableau{
	"forwardeuler": ForwardEuler,
	"heun2":        Heun2,
	"ssprk3":       SSPRK3,
	"rk4":          RK4,
}

// TableauByName looks up a tableau, ignoring case.
func TableauByName(name string) (Tableau, error) {
	tb, ok := tableauMap[strings.ToLower(name)]
	if !ok {
		var names []string
		for _, t := range tableauMap {
			names = append(names, t.Name)
		}
		sort.Strings(names)
		return Tableau{}, fmt.Errorf("unknown time integrator %q, choose one of %v", name, names)
	}
	return tb, nil
}
