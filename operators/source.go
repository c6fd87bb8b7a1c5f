package operators

import (
	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/types"
)

// SourceKernel integrates (f(x,t), v).
type SourceKernel struct {
	Function VectorFunction
}

func (*SourceKernel) CellFlags() (matrixfree.EvaluationFlags, matrixfree.EvaluationFlags) {
	return 0, matrixfree.Values
}

func (k *SourceKernel) Cell(p *matrixfree.QuadPoint) {
	var xb, fb [3]float64
	x := xb[:p.Dim]
	f := fb[:0]
	if comps := len(p.SubmitValue); comps <= len(fb) {
		f = fb[:comps]
	} else {
		f = make([]float64, comps)
	}
	for l := 0; l < p.Lanes; l++ {
		for d := range x {
			x[d] = p.X[d][l]
		}
		k.Function(x, p.Time, f)
		for c, sv := range p.SubmitValue {
			sv[l] += f[c]
		}
	}
}

// NewRHSOperator integrates fn against the test functions of field f. It
// takes no source vector.
func NewRHSOperator(ctx *matrixfree.Context, f matrixfree.FieldID, q matrixfree.QuadID,
	fn VectorFunction) (Operator, error) {
	if ctx.Shape(f, q) == nil {
		return nil, types.NewConfigurationError("operators", "source quadrature %d is not bound to field %d", q, f)
	}
	return &formOperator{
		ctx:  ctx,
		spec: matrixfree.LoopSpec{Dst: f, Src: f, Quad: q},
		cell: &SourceKernel{Function: fn},
	}, nil
}

// NewBodyForceOperator is the right-hand side of a vector field with one
// component per direction.
func NewBodyForceOperator(ctx *matrixfree.Context, f matrixfree.FieldID, q matrixfree.QuadID,
	fn VectorFunction) (Operator, error) {
	if ctx.Field(f).Components != ctx.Dim() {
		return nil, types.NewConfigurationError("operators", "body force needs a %d component field", ctx.Dim())
	}
	return NewRHSOperator(ctx, f, q, fn)
}
