package operators

import (
	"sort"

	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/types"
)

// VectorFunction writes the components of a function of space and time.
type VectorFunction func(x []float64, t float64, out []float64)

// BoundaryValues supplies prescribed boundary data at one lane of a face
// quadrature point.
type BoundaryValues interface {
	BoundaryValue(p *matrixfree.FacePoint, lane int, out []float64)
}

// FunctionValues adapts an analytic function to BoundaryValues.
type FunctionValues VectorFunction

func (fv FunctionValues) BoundaryValue(p *matrixfree.FacePoint, lane int, out []float64) {
	var buf [3]float64
	x := buf[:p.Dim]
	for d := range x {
		x[d] = p.X[d][lane]
	}
	fv(x, p.Time, out)
}

// BoundaryCondition pairs a kind with its data. Dirichlet and Coupled use
// values, Neumann uses them as the prescribed normal derivative; nil Values
// means zero data.
type BoundaryCondition struct {
	Kind   types.BCKind
	Values BoundaryValues
}

type BoundaryDescriptor map[types.BoundaryID]BoundaryCondition

// Validate requires a condition for every boundary id present in the
// context's boundary face batches.
func (bd BoundaryDescriptor) Validate(ctx *matrixfree.Context) error {
	var missing []int
	seen := make(map[types.BoundaryID]bool)
	for _, fb := range ctx.FaceBatches() {
		if fb.Interior || seen[fb.Boundary] {
			continue
		}
		seen[fb.Boundary] = true
		bc, ok := bd[fb.Boundary]
		if !ok || bc.Kind == types.BC_None || bc.Kind == types.BC_Periodic {
			missing = append(missing, int(fb.Boundary))
		}
	}
	if len(missing) > 0 {
		sort.Ints(missing)
		return types.NewConfigurationError("operators", "no boundary condition for boundary ids %v", missing)
	}
	return nil
}

func (bd BoundaryDescriptor) values(p *matrixfree.FacePoint, lane int, out []float64) (kind types.BCKind) {
	bc := bd[p.Boundary]
	for i := range out {
		out[i] = 0
	}
	if bc.Values != nil {
		bc.Values.BoundaryValue(p, lane, out)
	}
	return bc.Kind
}

func isDirichlet(kind types.BCKind) bool {
	return kind == types.BC_Dirichlet || kind == types.BC_Coupled
}
