package matrixfree

// op1D is a dense 1D operator applied along one tensor direction. m is
// stored row-major; a transposed op applies m^T.
type op1D struct {
	m          []float64
	rows, cols int // of the applied operator
	transpose  bool
}

func newOp(m []float64, rows, cols int) op1D { return op1D{m: m, rows: rows, cols: cols} }

func (o op1D) T() op1D {
	return op1D{m: o.m, rows: o.cols, cols: o.rows, transpose: !o.transpose}
}

func (o op1D) at(r, c int) float64 {
	if o.transpose {
		return o.m[c*o.rows+r]
	}
	return o.m[r*o.cols+c]
}

// tensorWork holds scratch for sum factorization over lane interleaved
// data: entry (i0, i1, i2, lane) lives at ((i2*e1 + i1)*e0 + i0)*lanes + lane.
type tensorWork struct {
	dim, lanes int
	ext        [3]int
	buf        [2][]float64
}

func newTensorWork(dim, lanes, maxPoints1D int) *tensorWork {
	size := ipow(maxPoints1D, dim) * lanes
	return &tensorWork{
		dim:   dim,
		lanes: lanes,
		buf:   [2][]float64{make([]float64, size), make([]float64, size)},
	}
}

// contract applies ops[d] along every direction d to in and writes, or adds
// when add is set, the result to out. in and out must not alias the scratch.
func (t *tensorWork) contract(ops []op1D, in, out []float64, add bool) {
	ext := t.ext[:t.dim]
	for d := range ext {
		ext[d] = ops[d].cols
	}
	cur := in
	for d := 0; d < t.dim; d++ {
		last := d == t.dim-1
		var dst []float64
		if last {
			dst = out
		} else {
			dst = t.buf[d%2]
		}
		size := t.lanes * ops[d].rows
		for k, e := range ext {
			if k != d {
				size *= e
			}
		}
		applyDir(ops[d], d, ext, t.lanes, cur, dst[:size], last && add)
		ext[d] = ops[d].rows
		cur = dst[:size]
	}
}

func applyDir(o op1D, dir int, ext []int, lanes int, in, out []float64, add bool) {
	stride := lanes
	for d := 0; d < dir; d++ {
		stride *= ext[d]
	}
	outer := 1
	for d := dir + 1; d < len(ext); d++ {
		outer *= ext[d]
	}
	if !add {
		for i := range out {
			out[i] = 0
		}
	}
	for k := 0; k < outer; k++ {
		inBase := k * o.cols * stride
		outBase := k * o.rows * stride
		for r := 0; r < o.rows; r++ {
			dst := out[outBase+r*stride : outBase+(r+1)*stride]
			for c := 0; c < o.cols; c++ {
				coef := o.at(r, c)
				if coef == 0 {
					continue
				}
				src := in[inBase+c*stride : inBase+(c+1)*stride]
				for s, val := range src {
					dst[s] += coef * val
				}
			}
		}
	}
}
