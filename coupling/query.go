package coupling

import (
	"math"

	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/types"
)

// QuerySet is a set of points where values of a source field are wanted.
// Store receives the values of point i and returns the largest absolute
// change against what was stored before.
type QuerySet interface {
	Dim() int
	Components() int
	Points() []float64 // Dim coordinates per point
	Store(i int, values []float64) (change float64)
}

// BoundaryPoints holds the face quadrature points of selected boundary ids.
// The stored values serve as boundary data of the matching face points.
type BoundaryPoints struct {
	dim, comps int
	offset     []int // first slot of a face batch, -1 when not selected
	lanes      []int
	points     []float64
	values     []float64
}

func NewBoundaryPoints(ctx *matrixfree.Context, f matrixfree.FieldID, q matrixfree.QuadID,
	comps int, ids ...types.BoundaryID) (bp *BoundaryPoints, err error) {
	if ctx.Shape(f, q) == nil {
		err = types.NewConfigurationError("coupling", "quadrature %d is not bound to field %d", q, f)
		return
	}
	var (
		nq    = ctx.Quadrature(q).Points1D
		nFace = 1
		sel   = make(map[types.BoundaryID]bool)
		slots int
	)
	for d := 1; d < ctx.Dim(); d++ {
		nFace *= nq
	}
	for _, id := range ids {
		sel[id] = true
	}
	bp = &BoundaryPoints{
		dim:    ctx.Dim(),
		comps:  comps,
		offset: make([]int, len(ctx.FaceBatches())),
		lanes:  make([]int, len(ctx.FaceBatches())),
	}
	for b, fb := range ctx.FaceBatches() {
		bp.offset[b] = -1
		if fb.Interior || !sel[fb.Boundary] {
			continue
		}
		bp.offset[b], bp.lanes[b] = slots, fb.N
		slots += nFace * fb.N
	}
	bp.points = make([]float64, slots*bp.dim)
	bp.values = make([]float64, slots*comps)
	err = ctx.ForEachFaceBatch(matrixfree.LoopSpec{Dst: f, Src: f, Quad: q}, nil, pointRecorder{bp}, ctx.NewVector(f), nil)
	return
}

func (bp *BoundaryPoints) slot(batch, q, lane int) int {
	return bp.offset[batch] + q*bp.lanes[batch] + lane
}

func (bp *BoundaryPoints) Dim() int { return bp.dim }

func (bp *BoundaryPoints) Components() int { return bp.comps }

func (bp *BoundaryPoints) Points() []float64 { return bp.points }

func (bp *BoundaryPoints) Len() int { return len(bp.points) / bp.dim }

func (bp *BoundaryPoints) Store(i int, values []float64) (change float64) {
	return store(bp.values[i*bp.comps:(i+1)*bp.comps], values)
}

// Values returns the stored values of point i.
func (bp *BoundaryPoints) Values(i int) []float64 {
	return bp.values[i*bp.comps : (i+1)*bp.comps]
}

// BoundaryValue reads the stored values of a face point, zero on faces that
// are not part of the set.
func (bp *BoundaryPoints) BoundaryValue(p *matrixfree.FacePoint, lane int, out []float64) {
	if bp.offset[p.Batch] < 0 {
		for c := range out {
			out[c] = 0
		}
		return
	}
	copy(out, bp.Values(bp.slot(p.Batch, p.Q, lane)))
}

type pointRecorder struct{ bp *BoundaryPoints }

func (pointRecorder) FaceFlags() (matrixfree.EvaluationFlags, matrixfree.EvaluationFlags) {
	return 0, 0
}

func (r pointRecorder) Face(p *matrixfree.FacePoint) {
	if r.bp.offset[p.Batch] < 0 {
		return
	}
	for l := 0; l < p.Lanes; l++ {
		i := r.bp.slot(p.Batch, p.Q, l)
		for d := 0; d < p.Dim; d++ {
			r.bp.points[i*r.bp.dim+d] = p.X[d][l]
		}
	}
}

// NodalPoints holds the support points of the owned cells of a vector's
// field; stored values go straight into the vector.
type NodalPoints struct {
	dst    *matrixfree.Vector
	nodes  int
	points []float64
	slots  [][2]int // local cell, node
}

// NewNodalPoints selects the support points for which include returns
// true, every point when include is nil.
func NewNodalPoints(dst *matrixfree.Vector, include func(x []float64) bool) *NodalPoints {
	var (
		ctx = dst.Context()
		dim = ctx.Dim()
		np  = &NodalPoints{
			dst:   dst,
			nodes: ctx.DoFsPerCell(dst.Field()) / ctx.Field(dst.Field()).Components,
		}
		x = make([]float64, dim)
	)
	for l := 0; l < ctx.Mesh().NumOwned(); l++ {
		for i := 0; i < np.nodes; i++ {
			ctx.NodalPoint(dst.Field(), l, i, x)
			if include != nil && !include(x) {
				continue
			}
			np.points = append(np.points, x...)
			np.slots = append(np.slots, [2]int{l, i})
		}
	}
	return np
}

func (np *NodalPoints) Dim() int { return np.dst.Context().Dim() }

func (np *NodalPoints) Components() int { return np.dst.Context().Field(np.dst.Field()).Components }

func (np *NodalPoints) Points() []float64 { return np.points }

func (np *NodalPoints) Store(i int, values []float64) (change float64) {
	block := np.dst.Block(np.slots[i][0])
	for c, v := range values {
		j := c*np.nodes + np.slots[i][1]
		change = math.Max(change, math.Abs(block[j]-v))
		block[j] = v
	}
	np.dst.InvalidateGhosts()
	return
}

func store(dst, values []float64) (change float64) {
	for c, v := range values {
		change = math.Max(change, math.Abs(dst[c]-v))
		dst[c] = v
	}
	return
}
