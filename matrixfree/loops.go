package matrixfree

import (
	"errors"
	"fmt"

	"github.com/notargets/mfdg/DG1D"
	"github.com/notargets/mfdg/types"
	"github.com/notargets/mfdg/utils"
)

var ErrStaleGhosts = errors.New("matrixfree: face loop source ghost values are not up to date")

type EvaluationFlags uint8

const (
	Values EvaluationFlags = 1 << iota
	Gradients
)

// CellKernel is a pure per quadrature point function. CellFlags reports what
// the loop evaluates from the source and which submissions it integrates.
// Kernels add into the submission slices, which start at zero.
type CellKernel interface {
	CellFlags() (evaluate, integrate EvaluationFlags)
	Cell(p *QuadPoint)
}

// FaceKernel is the face counterpart of CellKernel. Integrating Values uses
// Flux, integrating Gradients uses NormalGrad.
type FaceKernel interface {
	FaceFlags() (evaluate, integrate EvaluationFlags)
	Face(p *FacePoint)
}

// QuadPoint exposes one quadrature point of a cell batch. Every slice is
// indexed by lane and has W entries; lanes at or beyond Lanes are padding.
type QuadPoint struct {
	Batch, Q, Lanes, Dim int
	Time                 float64
	Cells                []int
	X                    [][]float64   // [dim][lane]
	JxW                  []float64     // [lane]
	Value                [][]float64   // [component][lane]
	Grad                 [][][]float64 // [component][dim][lane]
	SubmitValue          [][]float64   // tested against v
	SubmitGrad           [][][]float64 // tested against grad v
}

// FacePoint exposes one quadrature point of a face batch. The normal points
// out of the minus cell. Flux is added to the minus side test functions and
// subtracted from the plus side ones; NormalGrad multiplies n.grad(v) on both
// sides. Boundary batches have no plus side: ValueP and GradP are nil.
type FacePoint struct {
	Batch, Q, Lanes, Dim int
	Time                 float64
	Interior             bool
	Boundary             types.BoundaryID
	Minus, Plus          []int
	X                    [][]float64
	JxW                  []float64
	Normal               [][]float64 // [dim][lane]
	PenaltyScale         []float64   // (p+1)^2 times the larger surface to volume ratio
	ValueM, ValueP       [][]float64
	GradM, GradP         [][][]float64
	Flux                 [][]float64 // [component][lane]
	NormalGrad           [][]float64
}

// LoopSpec selects the destination and source fields, the quadrature and
// the time passed to kernels.
type LoopSpec struct {
	Dst, Src FieldID
	Quad     QuadID
	Time     float64
}

func (ctx *Context) shapesFor(spec LoopSpec, src *Vector) (srcShape, dstShape *fieldShape, err error) {
	var s *DG1D.Shape1D
	if s, err = ctx.checkPair(spec.Dst, spec.Quad); err != nil {
		return
	}
	dstShape = newFieldShape(ctx, spec.Dst, s)
	if src == nil {
		return
	}
	if src.field != spec.Src {
		err = fmt.Errorf("matrixfree: source vector holds field %d, loop expects %d", src.field, spec.Src)
		return
	}
	if spec.Src == spec.Dst {
		srcShape = dstShape
		return
	}
	if s, err = ctx.checkPair(spec.Src, spec.Quad); err != nil {
		return
	}
	srcShape = newFieldShape(ctx, spec.Src, s)
	return
}

// runColors processes colors one after the other; the batches of a color
// are split among the workers, which all finish before the next color.
func (ctx *Context) runColors(colors [][]int, fn func(worker, batch int)) {
	for _, color := range colors {
		pm := utils.NewPartitionMap(min(ctx.opts.Threads, len(color)), len(color))
		pm.ParallelFor(func(worker, kMin, kMax int) {
			for i := kMin; i < kMax; i++ {
				fn(worker, color[i])
			}
		})
	}
}

// ForEachCellBatch runs kernel on every owned cell and adds the integrated
// result to dst. src may be nil for kernels that evaluate nothing.
func (ctx *Context) ForEachCellBatch(spec LoopSpec, kernel CellKernel, dst, src *Vector) (err error) {
	ctx.mustBeFinalized()
	var srcShape, dstShape *fieldShape
	if srcShape, dstShape, err = ctx.shapesFor(spec, src); err != nil {
		return
	}
	if dst.field != spec.Dst {
		return fmt.Errorf("matrixfree: destination vector holds field %d, loop expects %d", dst.field, spec.Dst)
	}
	evalF, intF := kernel.CellFlags()
	if evalF != 0 && src == nil {
		return fmt.Errorf("matrixfree: kernel evaluates a source but none was given")
	}
	workers := make([]*cellEvaluator, ctx.opts.Threads)
	for i := range workers {
		workers[i] = newCellEvaluator(ctx, srcShape, dstShape, evalF, intF, spec.Time)
	}
	ctx.runColors(ctx.cellColors, func(worker, b int) {
		workers[worker].process(ctx, b, kernel, dst, src)
	})
	dst.ghostsValid = false
	return
}

// ForEachFaceBatch visits every interior face once and every boundary face
// of the rank. A nil kernel skips its kind of face. The source ghosts must be
// current; contributions to ghost cells of dst need a CompressAdd afterwards.
func (ctx *Context) ForEachFaceBatch(spec LoopSpec, interior, boundary FaceKernel, dst, src *Vector) (err error) {
	ctx.mustBeFinalized()
	if src != nil && src == dst {
		panic("matrixfree: face loop source and destination must differ")
	}
	var srcShape, dstShape *fieldShape
	if srcShape, dstShape, err = ctx.shapesFor(spec, src); err != nil {
		return
	}
	if dst.field != spec.Dst {
		return fmt.Errorf("matrixfree: destination vector holds field %d, loop expects %d", dst.field, spec.Dst)
	}
	for _, k := range []FaceKernel{interior, boundary} {
		if k == nil {
			continue
		}
		if evalF, _ := k.FaceFlags(); evalF != 0 && src == nil {
			return fmt.Errorf("matrixfree: face kernel evaluates a source but none was given")
		}
	}
	if interior != nil && src != nil && !src.ghostsValid && ctx.comm.Size() > 1 {
		if ef, _ := interior.FaceFlags(); ef != 0 {
			return ErrStaleGhosts
		}
	}
	workers := make([]*faceEvaluator, ctx.opts.Threads)
	for i := range workers {
		workers[i] = newFaceEvaluator(ctx, srcShape, dstShape, spec.Time)
	}
	ctx.runColors(ctx.faceColors, func(worker, b int) {
		k := boundary
		if b < ctx.nInteriorBatches {
			k = interior
		}
		if k != nil {
			workers[worker].process(b, k, dst, src)
		}
	})
	dst.ghostsValid = false
	return
}

// DoFBatch gives cell-wise operators direct access to the nodal values of a
// cell batch, lane interleaved, together with JxW on the quadrature points.
type DoFBatch struct {
	Batch, Lanes, W, Dim int
	Cells                []int
	DoFs                 [][]float64 // [component][node*W + lane]
	JxW                  []float64   // [q*W + lane]
	Shape                *DG1D.Shape1D
	ev                   *cellEvaluator
}

// Contract applies the square 1D operator m along every direction of one
// component in place.
func (b *DoFBatch) Contract(m []float64, n int, transpose bool, comp int) {
	o := newOp(m, n, n)
	if transpose {
		o = o.T()
	}
	all := make([]op1D, b.Dim)
	for d := range all {
		all[d] = o
	}
	data := b.DoFs[comp]
	out := b.ev.out[:len(data)]
	b.ev.work.contract(all, data, out, false)
	copy(data, out)
}

// ForEachCellBatchDoFs gathers src cell by cell, lets fn transform the nodal
// values and stores them into dst. dst and src may be the same vector.
func (ctx *Context) ForEachCellBatchDoFs(spec LoopSpec, fn func(b *DoFBatch), dst, src *Vector) (err error) {
	ctx.mustBeFinalized()
	var s *DG1D.Shape1D
	if s, err = ctx.checkPair(spec.Dst, spec.Quad); err != nil {
		return
	}
	if dst.field != spec.Dst || src.field != spec.Dst {
		return fmt.Errorf("matrixfree: cell-wise loop needs vectors of field %d", spec.Dst)
	}
	fs := newFieldShape(ctx, spec.Dst, s)
	workers := make([]*cellEvaluator, ctx.opts.Threads)
	for i := range workers {
		workers[i] = newCellEvaluator(ctx, fs, fs, 0, 0, spec.Time)
	}
	W := ctx.opts.Lanes
	ctx.runColors(ctx.cellColors, func(worker, bi int) {
		ev := workers[worker]
		cb := &ctx.cellBatches[bi]
		ev.setGeometry(cb.Cells, cb.N)
		gather(src, fs, cb.Cells, cb.N, W, ev.dofs)
		fn(&DoFBatch{
			Batch: bi,
			Lanes: cb.N,
			W:     W,
			Dim:   ctx.dim,
			Cells: cb.Cells,
			DoFs:  ev.dofs,
			JxW:   ev.jxw,
			Shape: s,
			ev:    ev,
		})
		for l := 0; l < cb.N; l++ {
			block := dst.Block(cb.Cells[l])
			for c := 0; c < fs.comps; c++ {
				d := ev.dofs[c]
				for i := 0; i < fs.nodes; i++ {
					block[c*fs.nodes+i] = d[i*W+l]
				}
			}
		}
	})
	dst.ghostsValid = false
	return
}
