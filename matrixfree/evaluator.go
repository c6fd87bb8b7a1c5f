package matrixfree

import (
	"github.com/notargets/mfdg/DG1D"
)

// fieldShape caches the 1D operators of one field on one quadrature rule.
type fieldShape struct {
	s            *DG1D.Shape1D
	comps        int
	n, nq        int
	nodes, qpts  int // n^dim and nq^dim
	faceQpts     int // nq^(dim-1)
	blockSize    int
	valueOps     []op1D
	gradOps      [][]op1D   // [dir]
	faceValueOps [][]op1D   // [face]
	faceGradOps  [][][]op1D // [face][dir]

	valueOpsT               []op1D
	gradOpsT, faceValueOpsT [][]op1D
	faceGradOpsT            [][][]op1D
}

func transposed(ops []op1D) (t []op1D) {
	t = make([]op1D, len(ops))
	for i, o := range ops {
		t[i] = o.T()
	}
	return
}

func newFieldShape(ctx *Context, f FieldID, s *DG1D.Shape1D) (fs *fieldShape) {
	var (
		dim = ctx.dim
		fld = &ctx.fields[f]
		n   = s.N + 1
		nq  = s.NQ
		S   = newOp(s.Values, nq, n)
		D   = newOp(s.Gradients, nq, n)
	)
	fs = &fieldShape{
		s:         s,
		comps:     fld.layout.Components,
		n:         n,
		nq:        nq,
		nodes:     fld.nodes,
		qpts:      ipow(nq, dim),
		faceQpts:  ipow(nq, dim-1),
		blockSize: fld.blockSize,
	}
	fs.valueOps = make([]op1D, dim)
	fs.gradOps = make([][]op1D, dim)
	for d := 0; d < dim; d++ {
		fs.valueOps[d] = S
		fs.gradOps[d] = make([]op1D, dim)
		for k := 0; k < dim; k++ {
			if k == d {
				fs.gradOps[d][k] = D
			} else {
				fs.gradOps[d][k] = S
			}
		}
	}
	fs.faceValueOps = make([][]op1D, 2*dim)
	fs.faceGradOps = make([][][]op1D, 2*dim)
	for f := 0; f < 2*dim; f++ {
		dir, side := f/2, f%2
		F := newOp(s.FaceValues[side], 1, n)
		G := newOp(s.FaceGradients[side], 1, n)
		fs.faceValueOps[f] = make([]op1D, dim)
		fs.faceGradOps[f] = make([][]op1D, dim)
		for k := 0; k < dim; k++ {
			if k == dir {
				fs.faceValueOps[f][k] = F
			} else {
				fs.faceValueOps[f][k] = S
			}
		}
		for g := 0; g < dim; g++ {
			fs.faceGradOps[f][g] = make([]op1D, dim)
			for k := 0; k < dim; k++ {
				switch {
				case k == dir && g == dir:
					fs.faceGradOps[f][g][k] = G
				case k == dir:
					fs.faceGradOps[f][g][k] = F
				case k == g:
					fs.faceGradOps[f][g][k] = D
				default:
					fs.faceGradOps[f][g][k] = S
				}
			}
		}
	}
	fs.valueOpsT = transposed(fs.valueOps)
	fs.gradOpsT = make([][]op1D, dim)
	for d := range fs.gradOps {
		fs.gradOpsT[d] = transposed(fs.gradOps[d])
	}
	fs.faceValueOpsT = make([][]op1D, 2*dim)
	fs.faceGradOpsT = make([][][]op1D, 2*dim)
	for f := range fs.faceValueOps {
		fs.faceValueOpsT[f] = transposed(fs.faceValueOps[f])
		fs.faceGradOpsT[f] = make([][]op1D, dim)
		for g := range fs.faceGradOps[f] {
			fs.faceGradOpsT[f][g] = transposed(fs.faceGradOps[f][g])
		}
	}
	return
}

func alloc2(a, b int) (s [][]float64) {
	s = make([][]float64, a)
	for i := range s {
		s[i] = make([]float64, b)
	}
	return
}

func alloc3(a, b, c int) (s [][][]float64) {
	s = make([][][]float64, a)
	for i := range s {
		s[i] = alloc2(b, c)
	}
	return
}

func zero(s []float64) {
	for i := range s {
		s[i] = 0
	}
}

// gather copies the cell blocks of the batch lanes into lane interleaved
// storage, zero on padding lanes.
func gather(v *Vector, fs *fieldShape, cells []int, nValid, W int, dofs [][]float64) {
	for c := 0; c < fs.comps; c++ {
		zero(dofs[c])
	}
	for l := 0; l < nValid; l++ {
		block := v.Block(cells[l])
		for c := 0; c < fs.comps; c++ {
			d := dofs[c]
			src := block[c*fs.nodes : (c+1)*fs.nodes]
			for i, val := range src {
				d[i*W+l] = val
			}
		}
	}
}

// distribute adds one component of lane interleaved cell contributions into
// the cell blocks of dst.
func distribute(v *Vector, fs *fieldShape, cells []int, nValid, W, comp int, out []float64) {
	for l := 0; l < nValid; l++ {
		block := v.Block(cells[l])[comp*fs.nodes : (comp+1)*fs.nodes]
		for i := range block {
			block[i] += out[i*W+l]
		}
	}
}

func laneCell(cells []int, l, nValid int) int {
	if l < nValid {
		return cells[l]
	}
	return cells[0]
}

// cellEvaluator is the per worker scratch of a cell loop.
type cellEvaluator struct {
	ctx      *Context
	W, dim   int
	src, dst *fieldShape
	evalF    EvaluationFlags
	intF     EvaluationFlags
	work     *tensorWork
	dofs     [][]float64
	vals     [][]float64
	grads    [][][]float64
	subVal   [][]float64
	subGrad  [][][]float64
	tmp, out []float64
	x        [][]float64
	jxw      []float64
	invJ     [][]float64
	qp       QuadPoint
}

func newCellEvaluator(ctx *Context, src, dst *fieldShape, evalF, intF EvaluationFlags, t float64) (ev *cellEvaluator) {
	var (
		W   = ctx.opts.Lanes
		dim = ctx.dim
		nq  = dst.nq
		mx  = max(dst.n, nq)
	)
	ev = &cellEvaluator{
		ctx:     ctx,
		W:       W,
		dim:     dim,
		src:     src,
		dst:     dst,
		evalF:   evalF,
		intF:    intF,
		subVal:  alloc2(dst.comps, dst.qpts*W),
		subGrad: alloc3(dst.comps, dim, dst.qpts*W),
		tmp:     make([]float64, dst.qpts*W),
		x:       alloc2(dim, dst.qpts*W),
		jxw:     make([]float64, dst.qpts*W),
		invJ:    alloc2(dim, W),
	}
	if src != nil {
		mx = max(mx, src.n)
		ev.dofs = alloc2(src.comps, src.nodes*W)
		ev.vals = alloc2(src.comps, src.qpts*W)
		ev.grads = alloc3(src.comps, dim, src.qpts*W)
		ev.qp.Value = make([][]float64, src.comps)
		ev.qp.Grad = alloc3(src.comps, dim, 0)
	}
	ev.out = make([]float64, ipow(mx, dim)*W)
	ev.work = newTensorWork(dim, W, mx)
	ev.qp.Dim = dim
	ev.qp.Time = t
	ev.qp.X = make([][]float64, dim)
	ev.qp.SubmitValue = make([][]float64, dst.comps)
	ev.qp.SubmitGrad = alloc3(dst.comps, dim, 0)
	return
}

// setGeometry fills quadrature point positions, JxW and the inverse
// Jacobian per lane.
func (ev *cellEvaluator) setGeometry(cells []int, nValid int) {
	var (
		s   = ev.dst.s
		nq  = ev.dst.nq
		W   = ev.W
		idx [3]int
	)
	for l := 0; l < W; l++ {
		g := &ev.ctx.geom[laneCell(cells, l, nValid)]
		for d := 0; d < ev.dim; d++ {
			ev.invJ[d][l] = g.invJ[d]
		}
		for q := 0; q < ev.dst.qpts; q++ {
			rem := q
			w := g.detJ
			for d := 0; d < ev.dim; d++ {
				idx[d] = rem % nq
				rem /= nq
				w *= s.Weights[idx[d]]
				ev.x[d][q*W+l] = g.lo[d] + 0.5*(s.Points[idx[d]]+1)*g.h[d]
			}
			ev.jxw[q*W+l] = w
		}
	}
}

func (ev *cellEvaluator) process(ctx *Context, b int, kernel CellKernel, dst, src *Vector) {
	var (
		cb = &ctx.cellBatches[b]
		W  = ev.W
	)
	ev.setGeometry(cb.Cells, cb.N)
	if ev.src != nil && ev.evalF != 0 {
		gather(src, ev.src, cb.Cells, cb.N, W, ev.dofs)
		for c := 0; c < ev.src.comps; c++ {
			if ev.evalF&Values != 0 {
				ev.work.contract(ev.src.valueOps, ev.dofs[c], ev.vals[c], false)
			}
			if ev.evalF&Gradients != 0 {
				for d := 0; d < ev.dim; d++ {
					g := ev.grads[c][d]
					ev.work.contract(ev.src.gradOps[d], ev.dofs[c], g, false)
					for q := 0; q < ev.src.qpts; q++ {
						for l := 0; l < W; l++ {
							g[q*W+l] *= ev.invJ[d][l]
						}
					}
				}
			}
		}
	}
	for c := 0; c < ev.dst.comps; c++ {
		zero(ev.subVal[c])
		for d := 0; d < ev.dim; d++ {
			zero(ev.subGrad[c][d])
		}
	}
	qp := &ev.qp
	qp.Batch, qp.Cells, qp.Lanes = b, cb.Cells, cb.N
	for q := 0; q < ev.dst.qpts; q++ {
		lo, hi := q*W, (q+1)*W
		qp.Q = q
		qp.JxW = ev.jxw[lo:hi]
		for d := 0; d < ev.dim; d++ {
			qp.X[d] = ev.x[d][lo:hi]
		}
		if ev.src != nil {
			for c := 0; c < ev.src.comps; c++ {
				qp.Value[c] = ev.vals[c][lo:hi]
				for d := 0; d < ev.dim; d++ {
					qp.Grad[c][d] = ev.grads[c][d][lo:hi]
				}
			}
		}
		for c := 0; c < ev.dst.comps; c++ {
			qp.SubmitValue[c] = ev.subVal[c][lo:hi]
			for d := 0; d < ev.dim; d++ {
				qp.SubmitGrad[c][d] = ev.subGrad[c][d][lo:hi]
			}
		}
		kernel.Cell(qp)
	}
	out := ev.out[:ev.dst.nodes*W]
	for c := 0; c < ev.dst.comps; c++ {
		zero(out)
		if ev.intF&Values != 0 {
			for i, v := range ev.subVal[c] {
				ev.tmp[i] = v * ev.jxw[i]
			}
			ev.work.contract(ev.dst.valueOpsT, ev.tmp, out, true)
		}
		if ev.intF&Gradients != 0 {
			for d := 0; d < ev.dim; d++ {
				sg := ev.subGrad[c][d]
				for q := 0; q < ev.dst.qpts; q++ {
					for l := 0; l < W; l++ {
						i := q*W + l
						ev.tmp[i] = sg[i] * ev.jxw[i] * ev.invJ[d][l]
					}
				}
				ev.work.contract(ev.dst.gradOpsT[d], ev.tmp, out, true)
			}
		}
		distribute(dst, ev.dst, cb.Cells, cb.N, W, c, out)
	}
}
