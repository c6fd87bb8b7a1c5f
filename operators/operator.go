package operators

import (
	"github.com/notargets/mfdg/matrixfree"
)

// Operator is a discrete spatial operator. Evaluate overwrites dst,
// EvaluateAdd accumulates into it. src is nil for pure right-hand sides.
type Operator interface {
	Evaluate(dst, src *matrixfree.Vector, t float64) error
	EvaluateAdd(dst, src *matrixfree.Vector, t float64) error
}

// formOperator runs a cell kernel and face kernels over one context.
type formOperator struct {
	ctx                *matrixfree.Context
	spec               matrixfree.LoopSpec
	cell               matrixfree.CellKernel
	interior, boundary matrixfree.FaceKernel
}

func (o *formOperator) Evaluate(dst, src *matrixfree.Vector, t float64) error {
	dst.Set(0)
	return o.EvaluateAdd(dst, src, t)
}

func (o *formOperator) EvaluateAdd(dst, src *matrixfree.Vector, t float64) (err error) {
	spec := o.spec
	spec.Time = t
	if o.cell != nil {
		if err = o.ctx.ForEachCellBatch(spec, o.cell, dst, src); err != nil {
			return
		}
	}
	if o.interior == nil && o.boundary == nil {
		return
	}
	if src != nil {
		src.UpdateGhostValues()
	}
	dst.ZeroGhosts()
	if err = o.ctx.ForEachFaceBatch(spec, o.interior, o.boundary, dst, src); err != nil {
		return
	}
	dst.CompressAdd()
	return
}

// SumCellKernel evaluates several cell kernels in one pass.
type SumCellKernel []matrixfree.CellKernel

func (s SumCellKernel) CellFlags() (evaluate, integrate matrixfree.EvaluationFlags) {
	for _, k := range s {
		e, i := k.CellFlags()
		evaluate |= e
		integrate |= i
	}
	return
}

func (s SumCellKernel) Cell(p *matrixfree.QuadPoint) {
	for _, k := range s {
		k.Cell(p)
	}
}

// SumFaceKernel evaluates several face kernels in one pass.
type SumFaceKernel []matrixfree.FaceKernel

func (s SumFaceKernel) FaceFlags() (evaluate, integrate matrixfree.EvaluationFlags) {
	for _, k := range s {
		e, i := k.FaceFlags()
		evaluate |= e
		integrate |= i
	}
	return
}

func (s SumFaceKernel) Face(p *matrixfree.FacePoint) {
	for _, k := range s {
		k.Face(p)
	}
}
