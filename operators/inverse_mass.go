package operators

import (
	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/types"
)

// InverseMass applies the exact inverse of the cell mass matrix. With S the
// square tensor interpolation from nodes to the p+1 Gauss points,
// M = S^T diag(JxW) S, hence M^-1 = S^-1 diag(1/JxW) S^-T, applied per
// direction with the 1D inverses.
type InverseMass struct {
	ctx  *matrixfree.Context
	spec matrixfree.LoopSpec
}

func NewInverseMass(ctx *matrixfree.Context, f matrixfree.FieldID, q matrixfree.QuadID) (im *InverseMass, err error) {
	s := ctx.Shape(f, q)
	if s == nil {
		err = types.NewConfigurationError("operators", "inverse mass quadrature %d is not bound to field %d", q, f)
		return
	}
	if s.NQ != s.N+1 {
		err = types.NewConfigurationError("operators",
			"inverse mass needs %d quadrature points per direction for degree %d, have %d", s.N+1, s.N, s.NQ)
		return
	}
	im = &InverseMass{ctx: ctx, spec: matrixfree.LoopSpec{Dst: f, Src: f, Quad: q}}
	return
}

// Apply computes dst = M^-1 src. dst and src may be the same vector.
func (im *InverseMass) Apply(dst, src *matrixfree.Vector) error {
	return im.ctx.ForEachCellBatchDoFs(im.spec, applyCellInverse, dst, src)
}

func applyCellInverse(b *matrixfree.DoFBatch) {
	var (
		s = b.Shape
		n = s.N + 1
	)
	for c, d := range b.DoFs {
		b.Contract(s.ValuesInverseT, n, false, c)
		for i := range d {
			d[i] /= b.JxW[i]
		}
		b.Contract(s.ValuesInverse, n, false, c)
	}
}
