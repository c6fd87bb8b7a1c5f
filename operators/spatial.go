package operators

import (
	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/types"
)

// NewCombinedOperator evaluates several kernels of one field in a single
// cell pass and a single face pass.
func NewCombinedOperator(ctx *matrixfree.Context, f matrixfree.FieldID, q matrixfree.QuadID,
	cell SumCellKernel, face SumFaceKernel) (Operator, error) {
	if ctx.Shape(f, q) == nil {
		return nil, types.NewConfigurationError("operators", "quadrature %d is not bound to field %d", q, f)
	}
	op := &formOperator{
		ctx:  ctx,
		spec: matrixfree.LoopSpec{Dst: f, Src: f, Quad: q},
	}
	if len(cell) > 0 {
		op.cell = cell
	}
	if len(face) > 0 {
		op.interior, op.boundary = face, face
	}
	return op, nil
}

// SpatialOperator is the explicit right-hand side du/dt = M^-1 sum(terms).
type SpatialOperator struct {
	terms   []Operator
	inverse *InverseMass
}

func NewSpatialOperator(inverse *InverseMass, terms ...Operator) *SpatialOperator {
	return &SpatialOperator{terms: terms, inverse: inverse}
}

// Evaluate overwrites dst with the time derivative at (src, t).
func (s *SpatialOperator) Evaluate(dst, src *matrixfree.Vector, t float64) (err error) {
	if err = s.EvaluateResidual(dst, src, t); err != nil {
		return
	}
	return s.inverse.Apply(dst, dst)
}

// EvaluateResidual overwrites dst with the sum of the terms, without the
// inverse mass.
func (s *SpatialOperator) EvaluateResidual(dst, src *matrixfree.Vector, t float64) (err error) {
	dst.Set(0)
	for _, op := range s.terms {
		if err = op.EvaluateAdd(dst, src, t); err != nil {
			return
		}
	}
	return
}
