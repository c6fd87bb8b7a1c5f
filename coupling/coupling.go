// Package coupling transfers field values between two discretizations that
// overlap in space, such as the domains of an overset grid. Query points of
// the destination are located once in the cells of the source, after which
// every update is a point to point exchange of evaluated values.
package coupling

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom/index/rtree"
	"go.uber.org/zap"

	"github.com/notargets/mfdg/DG1D"
	"github.com/notargets/mfdg/comm"
	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/types"
	"github.com/notargets/mfdg/utils"
)

const (
	tagQuery = 200 + iota
	tagReply
	tagUpdate
)

const DefaultTolerance = 1e-8

type Options struct {
	// Tolerance widens cell bounds in the ownership test.
	Tolerance float64
	Logger    *zap.Logger
}

type evalPoint struct {
	local int
	ref   [3]float64
}

// Coupling moves values of a source field onto a query set.
type Coupling struct {
	comm      *comm.Comm
	dst       QuerySet
	src       *matrixfree.Context
	field     matrixfree.FieldID
	tol       float64
	log       *zap.Logger
	basis     *DG1D.Lagrange1D
	tree      *rtree.Rtree
	serve     [][]evalPoint // per requesting rank, in its query order
	receive   [][]int       // per owning rank, query indices in send order
	valid     bool
	maxChange float64
}

// Setup locates every query point of dst in exactly one owned cell of the
// source field. It is collective over the source context's ranks and fails
// on every rank when a point has no owner or more than one.
func Setup(dst QuerySet, src *matrixfree.Context, f matrixfree.FieldID, opts Options) (cp *Coupling, err error) {
	layout := src.Field(f)
	if dst.Components() != layout.Components {
		return nil, types.NewConfigurationError("coupling",
			"query set takes %d components, source field %q has %d", dst.Components(), layout.Name, layout.Components)
	}
	if dst.Dim() != src.Dim() {
		return nil, types.NewConfigurationError("coupling", "query points are %dD, source mesh is %dD", dst.Dim(), src.Dim())
	}
	cp = &Coupling{
		comm:  src.Comm(),
		dst:   dst,
		src:   src,
		field: f,
		tol:   opts.Tolerance,
		log:   utils.LoggerOrNop(opts.Logger).With(zap.Int("rank", src.Comm().Rank())),
	}
	if cp.tol <= 0 {
		cp.tol = DefaultTolerance
	}
	if cp.basis, err = DG1D.NewLagrange1D(layout.Degree); err != nil {
		return nil, err
	}
	if err = cp.search(); err != nil {
		return nil, err
	}
	return
}

// Invalidate drops the cached point map; the next UpdateData searches again.
func (cp *Coupling) Invalidate() { cp.valid = false }

// MaxChange is the largest change of a stored value over all ranks during
// the last UpdateData.
func (cp *Coupling) MaxChange() float64 { return cp.maxChange }

// rankBoxes gathers the bounding boxes of the owned source cells, nil for
// ranks that own none.
func (cp *Coupling) rankBoxes() (boxes [][]float64) {
	var (
		m   = cp.src.Mesh()
		dim = m.Dim
		box []float64
	)
	if m.NumOwned() > 0 {
		box = make([]float64, 2*dim)
		for d := 0; d < dim; d++ {
			box[d], box[dim+d] = math.Inf(1), math.Inf(-1)
		}
		for _, c := range m.Owned {
			for d := 0; d < dim; d++ {
				box[d] = math.Min(box[d], c.Lo[d])
				box[dim+d] = math.Max(box[dim+d], c.Hi[d])
			}
		}
	}
	return cp.comm.AllGatherFloats(box)
}

func inBox(box, x []float64, tol float64) bool {
	dim := len(x)
	for d := range x {
		if x[d] < box[d]-tol || x[d] > box[dim+d]+tol {
			return false
		}
	}
	return true
}

func (cp *Coupling) search() (err error) {
	var (
		c      = cp.comm
		size   = c.Size()
		m      = cp.src.Mesh()
		dim    = cp.dst.Dim()
		pts    = cp.dst.Points()
		nPts   = len(pts) / dim
		boxes  = cp.rankBoxes()
		asked  = make([][]int, size)
		totals = make([]int, nPts)
		owners = make([][]int, nPts)
	)
	cp.tree = newCellTree(m)
	for i := 0; i < nPts; i++ {
		x := pts[i*dim : (i+1)*dim]
		for r, box := range boxes {
			if box != nil && inBox(box, x, cp.tol) {
				asked[r] = append(asked[r], i)
			}
		}
	}
	for r := 0; r < size; r++ {
		query := make([]float64, 0, len(asked[r])*dim)
		for _, i := range asked[r] {
			query = append(query, pts[i*dim:(i+1)*dim]...)
		}
		c.Send(r, tagQuery, query)
	}
	cp.serve = make([][]evalPoint, size)
	for r := 0; r < size; r++ {
		query := c.RecvFloats(r, tagQuery)
		reply := make([]int, len(query)/dim)
		for k := range reply {
			x := query[k*dim : (k+1)*dim]
			found := findOwners(cp.tree, m, x, cp.tol)
			reply[k] = len(found)
			if len(found) == 1 {
				ep := evalPoint{local: found[0].local}
				referenceCoordinates(found[0].cell, x, ep.ref[:dim])
				cp.serve[r] = append(cp.serve[r], ep)
			}
		}
		c.Send(r, tagReply, reply)
	}
	cp.receive = make([][]int, size)
	for r := 0; r < size; r++ {
		reply := c.RecvInts(r, tagReply)
		for k, n := range reply {
			i := asked[r][k]
			totals[i] += n
			if n > 0 {
				owners[i] = append(owners[i], r)
			}
			if n == 1 {
				cp.receive[r] = append(cp.receive[r], i)
			}
		}
	}
	var local *types.GeometricSearchError
	for i, n := range totals {
		if n == 1 {
			continue
		}
		local = &types.GeometricSearchError{
			Rank:  c.Rank(),
			Point: append([]float64(nil), pts[i*dim:(i+1)*dim]...),
			Kind:  types.ErrNoOwner,
		}
		if n > 1 {
			local.Kind = types.ErrAmbiguousOwner
			local.Candidates = owners[i]
		} else {
			for r, box := range boxes {
				if box != nil && inBox(box, local.Point, cp.tol) {
					local.Candidates = append(local.Candidates, r)
				}
			}
		}
		break
	}
	if err = cp.agree(local); err != nil {
		return
	}
	cp.valid = true
	cp.log.Debug("coupling search finished", zap.Int("queryPoints", nPts),
		zap.Int("servedPoints", countPoints(cp.serve)))
	return
}

func countPoints(serve [][]evalPoint) (n int) {
	for _, s := range serve {
		n += len(s)
	}
	return
}

// agree makes every rank return the search error of the lowest failing rank.
func (cp *Coupling) agree(local *types.GeometricSearchError) error {
	var msg []float64
	if local != nil {
		kind := 1.
		if local.Kind == types.ErrAmbiguousOwner {
			kind = 2
		}
		msg = append(msg, kind)
		msg = append(msg, local.Point...)
		for _, r := range local.Candidates {
			msg = append(msg, float64(r))
		}
	}
	dim := cp.dst.Dim()
	for r, m := range cp.comm.AllGatherFloats(msg) {
		if len(m) == 0 {
			continue
		}
		e := &types.GeometricSearchError{
			Rank:  r,
			Point: m[1 : 1+dim],
			Kind:  types.ErrNoOwner,
		}
		if m[0] == 2 {
			e.Kind = types.ErrAmbiguousOwner
		}
		for _, v := range m[1+dim:] {
			e.Candidates = append(e.Candidates, int(v))
		}
		sort.Ints(e.Candidates)
		return e
	}
	return nil
}

// UpdateData evaluates src at every query point and stores the values in
// the query set. Collective.
func (cp *Coupling) UpdateData(src *matrixfree.Vector) (err error) {
	if src.Context() != cp.src || src.Field() != cp.field {
		return fmt.Errorf("coupling: source vector does not hold field %d of the source context", cp.field)
	}
	if !cp.valid {
		if err = cp.search(); err != nil {
			return
		}
	}
	var (
		c      = cp.comm
		comps  = cp.dst.Components()
		change float64
	)
	for r, pts := range cp.serve {
		vals := make([]float64, 0, len(pts)*comps)
		for _, ep := range pts {
			vals = cp.evaluate(src, ep, vals)
		}
		c.Send(r, tagUpdate, vals)
	}
	for r, idx := range cp.receive {
		vals := c.RecvFloats(r, tagUpdate)
		if len(vals) != len(idx)*comps {
			panic(fmt.Sprintf("coupling: rank %d sent %d values for %d points", r, len(vals), len(idx)))
		}
		for k, i := range idx {
			change = math.Max(change, cp.dst.Store(i, vals[k*comps:(k+1)*comps]))
		}
	}
	cp.maxChange = c.AllReduceMax(change)
	return
}

// evaluate appends the field components at ep, interpolated with the
// tensor Lagrange basis from the cell's nodal values.
func (cp *Coupling) evaluate(src *matrixfree.Vector, ep evalPoint, vals []float64) []float64 {
	var (
		dim   = cp.src.Dim()
		n     = cp.basis.N + 1
		phi   [3][]float64
		block = src.Block(ep.local)
		nodes = 1
	)
	for d := 0; d < dim; d++ {
		phi[d] = make([]float64, n)
		cp.basis.Values(ep.ref[d], phi[d])
		nodes *= n
	}
	for comp := 0; comp < cp.dst.Components(); comp++ {
		var sum float64
		u := block[comp*nodes : (comp+1)*nodes]
		for i := range u {
			w, k := 1., i
			for d := 0; d < dim; d++ {
				w *= phi[d][k%n]
				k /= n
			}
			sum += w * u[i]
		}
		vals = append(vals, sum)
	}
	return vals
}
