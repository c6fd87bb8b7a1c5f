package operators

import (
	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/types"
)

// MassKernel integrates (u, v) for every component.
type MassKernel struct{}

func (MassKernel) CellFlags() (matrixfree.EvaluationFlags, matrixfree.EvaluationFlags) {
	return matrixfree.Values, matrixfree.Values
}

func (MassKernel) Cell(p *matrixfree.QuadPoint) {
	for c, sv := range p.SubmitValue {
		u := p.Value[c]
		for l := range sv {
			sv[l] += u[l]
		}
	}
}

func NewMassOperator(ctx *matrixfree.Context, f matrixfree.FieldID, q matrixfree.QuadID) (Operator, error) {
	if ctx.Shape(f, q) == nil {
		return nil, types.NewConfigurationError("operators", "mass quadrature %d is not bound to field %d", q, f)
	}
	return &formOperator{
		ctx:  ctx,
		spec: matrixfree.LoopSpec{Dst: f, Src: f, Quad: q},
		cell: MassKernel{},
	}, nil
}
