package matrixfree

type faceEvaluator struct {
	ctx      *Context
	W, dim   int
	src, dst *fieldShape
	work     *tensorWork
	dofs     [2][][]float64
	vals     [2][][]float64
	grads    [2][][][]float64
	flux     [][]float64
	ngrad    [][]float64
	tmp, out []float64
	x        [][]float64
	jxw      []float64
	normal   [][]float64
	penalty  []float64
	invJ     [2][][]float64
	fp       FacePoint
}

func newFaceEvaluator(ctx *Context, src, dst *fieldShape, t float64) (ev *faceEvaluator) {
	var (
		W   = ctx.opts.Lanes
		dim = ctx.dim
		nqf = dst.faceQpts
		mx  = max(dst.n, dst.nq)
	)
	ev = &faceEvaluator{
		ctx:     ctx,
		W:       W,
		dim:     dim,
		src:     src,
		dst:     dst,
		flux:    alloc2(dst.comps, nqf*W),
		ngrad:   alloc2(dst.comps, nqf*W),
		tmp:     make([]float64, nqf*W),
		x:       alloc2(dim, nqf*W),
		jxw:     make([]float64, nqf*W),
		normal:  alloc2(dim, W),
		penalty: make([]float64, W),
		invJ:    [2][][]float64{alloc2(dim, W), alloc2(dim, W)},
	}
	if src != nil {
		mx = max(mx, src.n)
		for side := 0; side < 2; side++ {
			ev.dofs[side] = alloc2(src.comps, src.nodes*W)
			ev.vals[side] = alloc2(src.comps, nqf*W)
			ev.grads[side] = alloc3(src.comps, dim, nqf*W)
		}
		ev.fp.ValueM = make([][]float64, src.comps)
		ev.fp.ValueP = make([][]float64, src.comps)
		ev.fp.GradM = alloc3(src.comps, dim, 0)
		ev.fp.GradP = alloc3(src.comps, dim, 0)
	}
	ev.out = make([]float64, ipow(mx, dim)*W)
	ev.work = newTensorWork(dim, W, mx)
	ev.fp.Dim = dim
	ev.fp.Time = t
	ev.fp.X = make([][]float64, dim)
	ev.fp.Normal = ev.normal
	ev.fp.PenaltyScale = ev.penalty
	ev.fp.Flux = make([][]float64, dst.comps)
	ev.fp.NormalGrad = make([][]float64, dst.comps)
	return
}

func (ev *faceEvaluator) setGeometry(fb *FaceBatch) {
	var (
		s        = ev.dst.s
		nq       = ev.dst.nq
		W        = ev.W
		dir      = fb.Dir()
		side     = fb.Side()
		pp1      = float64(ev.dst.n)
		penScale = pp1 * pp1
	)
	for l := 0; l < W; l++ {
		gM := &ev.ctx.geom[laneCell(fb.Minus, l, fb.N)]
		pen := gM.penalty
		for d := 0; d < ev.dim; d++ {
			ev.invJ[0][d][l] = gM.invJ[d]
			ev.normal[d][l] = 0
		}
		ev.normal[dir][l] = float64(2*side - 1)
		if fb.Interior {
			gP := &ev.ctx.geom[laneCell(fb.Plus, l, fb.N)]
			pen = max(pen, gP.penalty)
			for d := 0; d < ev.dim; d++ {
				ev.invJ[1][d][l] = gP.invJ[d]
			}
		}
		ev.penalty[l] = penScale * pen
		for q := 0; q < ev.dst.faceQpts; q++ {
			rem := q
			w := 1.
			for d := 0; d < ev.dim; d++ {
				if d == dir {
					ev.x[d][q*W+l] = gM.lo[d] + float64(side)*gM.h[d]
					continue
				}
				i := rem % nq
				rem /= nq
				w *= 0.5 * gM.h[d] * s.Weights[i]
				ev.x[d][q*W+l] = gM.lo[d] + 0.5*(s.Points[i]+1)*gM.h[d]
			}
			ev.jxw[q*W+l] = w
		}
	}
}

func (ev *faceEvaluator) evaluateSide(side, face int, cells []int, nValid int, evalF EvaluationFlags, src *Vector) {
	var (
		W   = ev.W
		nqf = ev.src.faceQpts
	)
	gather(src, ev.src, cells, nValid, W, ev.dofs[side])
	for c := 0; c < ev.src.comps; c++ {
		if evalF&Values != 0 {
			ev.work.contract(ev.src.faceValueOps[face], ev.dofs[side][c], ev.vals[side][c], false)
		}
		if evalF&Gradients != 0 {
			for d := 0; d < ev.dim; d++ {
				g := ev.grads[side][c][d]
				ev.work.contract(ev.src.faceGradOps[face][d], ev.dofs[side][c], g, false)
				for q := 0; q < nqf; q++ {
					for l := 0; l < W; l++ {
						g[q*W+l] *= ev.invJ[side][d][l]
					}
				}
			}
		}
	}
}

func (ev *faceEvaluator) integrateSide(side, face int, cells []int, nValid int, sign float64, intF EvaluationFlags, dst *Vector) {
	var (
		W   = ev.W
		dir = face / 2
		nqf = ev.dst.faceQpts
		out = ev.out[:ev.dst.nodes*W]
	)
	for c := 0; c < ev.dst.comps; c++ {
		zero(out)
		if intF&Values != 0 {
			for i, f := range ev.flux[c] {
				ev.tmp[i] = sign * f * ev.jxw[i]
			}
			ev.work.contract(ev.dst.faceValueOpsT[face], ev.tmp, out, true)
		}
		if intF&Gradients != 0 {
			for q := 0; q < nqf; q++ {
				for l := 0; l < W; l++ {
					i := q*W + l
					ev.tmp[i] = ev.ngrad[c][i] * ev.jxw[i] * ev.normal[dir][l] * ev.invJ[side][dir][l]
				}
			}
			ev.work.contract(ev.dst.faceGradOpsT[face][dir], ev.tmp, out, true)
		}
		distribute(dst, ev.dst, cells, nValid, W, c, out)
	}
}

func (ev *faceEvaluator) process(b int, kernel FaceKernel, dst, src *Vector) {
	var (
		fb           = &ev.ctx.faceBatches[b]
		W            = ev.W
		faceM        = fb.Face
		faceP        = faceM ^ 1
		evalF, intF  = kernel.FaceFlags()
		fp           = &ev.fp
		srcEvaluated = ev.src != nil && evalF != 0
	)
	ev.setGeometry(fb)
	if srcEvaluated {
		ev.evaluateSide(0, faceM, fb.Minus, fb.N, evalF, src)
		if fb.Interior {
			ev.evaluateSide(1, faceP, fb.Plus, fb.N, evalF, src)
		}
	}
	for c := 0; c < ev.dst.comps; c++ {
		zero(ev.flux[c])
		zero(ev.ngrad[c])
	}
	fp.Batch, fp.Lanes = b, fb.N
	fp.Interior, fp.Boundary = fb.Interior, fb.Boundary
	fp.Minus = fb.Minus
	fp.Plus = fb.Plus
	for q := 0; q < ev.dst.faceQpts; q++ {
		lo, hi := q*W, (q+1)*W
		fp.Q = q
		fp.JxW = ev.jxw[lo:hi]
		for d := 0; d < ev.dim; d++ {
			fp.X[d] = ev.x[d][lo:hi]
		}
		if ev.src != nil {
			for c := 0; c < ev.src.comps; c++ {
				fp.ValueM[c] = ev.vals[0][c][lo:hi]
				fp.ValueP[c] = nil
				for d := 0; d < ev.dim; d++ {
					fp.GradM[c][d] = ev.grads[0][c][d][lo:hi]
					fp.GradP[c][d] = nil
				}
				if fb.Interior {
					fp.ValueP[c] = ev.vals[1][c][lo:hi]
					for d := 0; d < ev.dim; d++ {
						fp.GradP[c][d] = ev.grads[1][c][d][lo:hi]
					}
				}
			}
		}
		for c := 0; c < ev.dst.comps; c++ {
			fp.Flux[c] = ev.flux[c][lo:hi]
			fp.NormalGrad[c] = ev.ngrad[c][lo:hi]
		}
		kernel.Face(fp)
	}
	ev.integrateSide(0, faceM, fb.Minus, fb.N, 1, intF, dst)
	if fb.Interior {
		ev.integrateSide(1, faceP, fb.Plus, fb.N, -1, intF, dst)
	}
}
