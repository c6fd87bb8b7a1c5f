// Package matrixfree evaluates discontinuous Galerkin operators without
// assembling matrices. Cells and faces are processed in batches of W lanes
// with sum factorization on tensor-product Lagrange bases.
package matrixfree

import (
	"fmt"
	"math"
	"runtime"

	"go.uber.org/zap"

	"github.com/notargets/mfdg/DG1D"
	"github.com/notargets/mfdg/comm"
	"github.com/notargets/mfdg/mesh"
	"github.com/notargets/mfdg/types"
	"github.com/notargets/mfdg/utils"
)

const (
	tagSchedule = 100 + iota
	tagImport
	tagCompress
	tagGather
)

const conformityTol = 1.e-10

type Options struct {
	Lanes   int // W, default 4
	Threads int // workers per rank, default NumCPU/ranks
	Logger  *zap.Logger
}

type field struct {
	layout      FieldLayout
	constraints Constraints
	nodes       int // (p+1)^dim
	blockSize   int // nodes * components
	support     []float64
}

type cellGeometry struct {
	lo, h, invJ []float64 // invJ = 2/h
	detJ        float64
	penalty     float64 // surface to volume ratio, interior faces weighted one half
}

// Context owns the batch decomposition, the coloring and the ghost exchange
// schedule of one mesh partition. Registration happens before Finalize,
// loops after it.
type Context struct {
	comm *comm.Comm
	mesh *mesh.Partition
	opts Options
	log  *zap.Logger
	dim  int

	fields []field
	quads  []QuadratureRule
	shapes map[[2]int]*DG1D.Shape1D

	finalized        bool
	geom             []cellGeometry
	cellBatches      []CellBatch
	faceBatches      []FaceBatch
	nInteriorBatches int
	cellColors       [][]int
	faceColors       [][]int
	exchange         *exchangeSchedule
}

func New(c *comm.Comm, m *mesh.Partition, opts Options) (ctx *Context) {
	if opts.Lanes == 0 {
		opts.Lanes = 4
	}
	if opts.Threads == 0 {
		opts.Threads = max(1, runtime.NumCPU()/max(1, c.Size()))
	}
	ctx = &Context{
		comm:   c,
		mesh:   m,
		opts:   opts,
		log:    utils.LoggerOrNop(opts.Logger).With(zap.Int("rank", c.Rank())),
		dim:    m.Dim,
		shapes: make(map[[2]int]*DG1D.Shape1D),
	}
	return
}

func (ctx *Context) RegisterField(layout FieldLayout, cons Constraints) (id FieldID, err error) {
	if ctx.finalized {
		err = types.NewConfigurationError("context", "field %q registered after finalize", layout.Name)
		return
	}
	if layout.Components < 1 {
		err = types.NewConfigurationError("context", "field %q needs at least one component", layout.Name)
		return
	}
	if layout.Degree < 1 {
		err = types.NewConfigurationError("context", "field %q has degree %d, need at least 1",
			layout.Name, layout.Degree)
		return
	}
	nodes := ipow(layout.Degree+1, ctx.dim)
	ctx.fields = append(ctx.fields, field{
		layout:      layout,
		constraints: cons,
		nodes:       nodes,
		blockSize:   nodes * layout.Components,
		support:     DG1D.JacobiGL(0, 0, layout.Degree),
	})
	id = FieldID(len(ctx.fields) - 1)
	return
}

func (ctx *Context) RegisterQuadrature(rule QuadratureRule) (id QuadID, err error) {
	if ctx.finalized {
		err = types.NewConfigurationError("context", "quadrature registered after finalize")
		return
	}
	if rule.Points1D < 1 {
		err = types.NewConfigurationError("context", "quadrature needs at least one point, have %d", rule.Points1D)
		return
	}
	if rule.IntegrandOrder == 0 {
		rule.IntegrandOrder = 2
	}
	for _, f := range rule.Fields {
		if int(f) < 0 || int(f) >= len(ctx.fields) {
			err = types.NewConfigurationError("context", "quadrature bound to unknown field %d", f)
			return
		}
	}
	ctx.quads = append(ctx.quads, rule)
	id = QuadID(len(ctx.quads) - 1)
	return
}

// Finalize validates the registered fields, quadratures and mesh partition,
// then builds batches, colorings and the exchange schedule. It is collective:
// when any rank fails, every rank returns an error.
func (ctx *Context) Finalize() (err error) {
	if ctx.finalized {
		return types.NewConfigurationError("context", "already finalized")
	}
	localErr := ctx.validate()
	if localErr == nil {
		localErr = ctx.buildGeometry()
	}
	var flag float64
	if localErr != nil {
		flag = 1
	}
	if ctx.comm.AllReduceMax(flag) > 0 {
		if localErr == nil {
			localErr = &types.PartitionError{Rank: ctx.comm.Rank(), CellID: -1,
				Reason: "setup failed on another rank"}
		}
		return localErr
	}
	ctx.buildBatches()
	ctx.cellColors = colorBatches(len(ctx.cellBatches), ctx.mesh.NumLocal(), func(b int, visit func(int)) {
		for _, c := range ctx.cellBatches[b].Cells[:ctx.cellBatches[b].N] {
			visit(c)
		}
	})
	ctx.faceColors = colorBatches(len(ctx.faceBatches), ctx.mesh.NumLocal(), func(b int, visit func(int)) {
		fb := &ctx.faceBatches[b]
		for l := 0; l < fb.N; l++ {
			visit(fb.Minus[l])
			if fb.Interior {
				visit(fb.Plus[l])
			}
		}
	})
	if ctx.exchange, err = buildSchedule(ctx.comm, ctx.mesh); err != nil {
		return
	}
	ctx.finalized = true
	ctx.log.Debug("matrix-free context finalized",
		zap.Int("ownedCells", ctx.mesh.NumOwned()),
		zap.Int("ghostCells", len(ctx.mesh.Ghosts)),
		zap.Int("cellBatches", len(ctx.cellBatches)),
		zap.Int("cellColors", len(ctx.cellColors)),
		zap.Int("faceBatches", len(ctx.faceBatches)),
		zap.Int("faceColors", len(ctx.faceColors)),
		zap.Int("lanes", ctx.opts.Lanes),
		zap.Int("threads", ctx.opts.Threads))
	return
}

func (ctx *Context) validate() (err error) {
	if ctx.opts.Lanes < 1 {
		return types.NewConfigurationError("context", "lane count must be positive, have %d", ctx.opts.Lanes)
	}
	if len(ctx.fields) == 0 {
		return types.NewConfigurationError("context", "no field registered")
	}
	if len(ctx.quads) == 0 {
		return types.NewConfigurationError("context", "no quadrature registered")
	}
	for _, f := range ctx.fields {
		if f.constraints.HangingNodes {
			return types.NewConfigurationError("context",
				"field %q requests hanging node constraints on a conforming mesh", f.layout.Name)
		}
		for _, d := range f.constraints.Dirichlet {
			for _, n := range f.constraints.Neumann {
				if d == n {
					return types.NewConfigurationError("context",
						"field %q has boundary %d both Dirichlet and Neumann", f.layout.Name, d)
				}
			}
		}
	}
	for qi, q := range ctx.quads {
		for fi := range ctx.fields {
			if !q.binds(FieldID(fi)) {
				continue
			}
			f := ctx.fields[fi].layout
			if f.Exact && 2*q.Points1D-1 < q.IntegrandOrder*f.Degree {
				return types.NewConfigurationError("context",
					"field %q of degree %d needs exact integration of order %d, quadrature %d with %d points reaches %d",
					f.Name, f.Degree, q.IntegrandOrder*f.Degree, qi, q.Points1D, 2*q.Points1D-1)
			}
			if ctx.shapes[[2]int{fi, qi}], err = DG1D.NewShape1D(f.Degree, q.Points1D); err != nil {
				return types.NewConfigurationError("context", "%v", err)
			}
		}
	}
	return
}

func (ctx *Context) buildGeometry() (err error) {
	var (
		m      = ctx.mesh
		rank   = ctx.comm.Rank()
		nLocal = m.NumLocal()
	)
	for i := range m.Owned {
		c := &m.Owned[i]
		for f, nb := range c.Neighbor {
			if nb < 0 {
				continue
			}
			l, ok := m.Local(nb)
			if !ok {
				reason := fmt.Sprintf("neighbor %d across face %d is neither owned nor ghost", nb, f)
				if m.GhostLayers < 1 {
					reason = fmt.Sprintf("neighbor %d across face %d is off rank and the partition has no ghost layer",
						nb, f)
				}
				return &types.PartitionError{Rank: rank, CellID: c.ID, Reason: reason}
			}
			if err = checkConforming(c, m.LocalCell(l), f, m.Periodic); err != nil {
				return
			}
		}
	}
	ctx.geom = make([]cellGeometry, nLocal)
	for l := 0; l < nLocal; l++ {
		c := m.LocalCell(l)
		g := cellGeometry{
			lo:   c.Lo,
			h:    make([]float64, ctx.dim),
			invJ: make([]float64, ctx.dim),
			detJ: 1,
		}
		for d := 0; d < ctx.dim; d++ {
			g.h[d] = c.Size(d)
			g.invJ[d] = 2 / g.h[d]
			g.detJ *= g.h[d] / 2
		}
		var surface float64
		for f, nb := range c.Neighbor {
			if nb < 0 {
				surface += c.FaceArea(f)
			} else {
				surface += 0.5 * c.FaceArea(f)
			}
		}
		g.penalty = surface / c.Volume()
		ctx.geom[l] = g
	}
	return
}

// checkConforming requires the two cells to share face f completely.
func checkConforming(c, nb *mesh.Cell, f int, periodic []bool) error {
	dir, side := f/2, f%2
	scale := c.Size(dir)
	for d := range c.Lo {
		if d == dir {
			continue
		}
		scale = max(scale, c.Size(d))
		if math.Abs(c.Lo[d]-nb.Lo[d]) > conformityTol*scale || math.Abs(c.Hi[d]-nb.Hi[d]) > conformityTol*scale {
			return types.NewConfigurationError("context",
				"face %d of cell %d is not conforming with cell %d", f, c.ID, nb.ID)
		}
	}
	wrap := periodic != nil && dir < len(periodic) && periodic[dir]
	var gap float64
	if side == 1 {
		gap = math.Abs(c.Hi[dir] - nb.Lo[dir])
	} else {
		gap = math.Abs(c.Lo[dir] - nb.Hi[dir])
	}
	if gap > conformityTol*scale && !wrap {
		return types.NewConfigurationError("context",
			"cells %d and %d do not touch across face %d", c.ID, nb.ID, f)
	}
	return nil
}

func (ctx *Context) mustBeFinalized() {
	if !ctx.finalized {
		panic("matrixfree: context used before Finalize")
	}
}

func (ctx *Context) Comm() *comm.Comm { return ctx.comm }

func (ctx *Context) Mesh() *mesh.Partition { return ctx.mesh }

func (ctx *Context) Logger() *zap.Logger { return ctx.log }

func (ctx *Context) Dim() int { return ctx.dim }

func (ctx *Context) Lanes() int { return ctx.opts.Lanes }

func (ctx *Context) Threads() int { return ctx.opts.Threads }

func (ctx *Context) Field(f FieldID) FieldLayout { return ctx.fields[f].layout }

func (ctx *Context) FieldConstraints(f FieldID) Constraints { return ctx.fields[f].constraints }

func (ctx *Context) Quadrature(q QuadID) QuadratureRule { return ctx.quads[q] }

// Shape returns the 1D shape data of field f on quadrature q, or nil when the
// rule is not bound to the field.
func (ctx *Context) Shape(f FieldID, q QuadID) *DG1D.Shape1D {
	return ctx.shapes[[2]int{int(f), int(q)}]
}

func (ctx *Context) CellBatches() []CellBatch { return ctx.cellBatches }

func (ctx *Context) FaceBatches() []FaceBatch { return ctx.faceBatches }

func (ctx *Context) CellColors() [][]int { return ctx.cellColors }

func (ctx *Context) FaceColors() [][]int { return ctx.faceColors }

// DoFsPerCell is the size of the per cell block of field f.
func (ctx *Context) DoFsPerCell(f FieldID) int { return ctx.fields[f].blockSize }

// NumberOfDoFs is the global number of unknowns of field f.
func (ctx *Context) NumberOfDoFs(f FieldID) int {
	return ctx.mesh.TotalCells * ctx.fields[f].blockSize
}

// LocalDoFs is the number of unknowns of field f owned by this rank.
func (ctx *Context) LocalDoFs(f FieldID) int {
	return ctx.mesh.NumOwned() * ctx.fields[f].blockSize
}

// CellCenterPoints returns the centers of the owned cells in local order.
func (ctx *Context) CellCenterPoints() (centers [][]float64) {
	ctx.mustBeFinalized()
	centers = make([][]float64, ctx.mesh.NumOwned())
	for l := range centers {
		g := &ctx.geom[l]
		centers[l] = make([]float64, ctx.dim)
		for d := range centers[l] {
			centers[l][d] = g.lo[d] + 0.5*g.h[d]
		}
	}
	return
}

// NodalPoints returns the support point coordinates of every owned node of
// field f, one row per cell and node in vector order.
func (ctx *Context) NodalPoints(f FieldID) (points [][]float64) {
	ctx.mustBeFinalized()
	var (
		nodes = ctx.fields[f].nodes
		nOwn  = ctx.mesh.NumOwned()
	)
	points = make([][]float64, nOwn*nodes)
	for l := 0; l < nOwn; l++ {
		for i := 0; i < nodes; i++ {
			x := make([]float64, ctx.dim)
			ctx.NodalPoint(f, l, i, x)
			points[l*nodes+i] = x
		}
	}
	return
}

// CellPenalty is the surface to volume metric of a local cell used by
// interior penalty terms.
func (ctx *Context) CellPenalty(local int) float64 { return ctx.geom[local].penalty }

// NodalPoint returns the coordinates of node i of local cell l for field f.
func (ctx *Context) NodalPoint(f FieldID, l, node int, x []float64) {
	var (
		g     = &ctx.geom[l]
		n     = ctx.fields[f].layout.Degree + 1
		nodes = ctx.fields[f].support
	)
	for d := 0; d < ctx.dim; d++ {
		i := node % n
		node /= n
		x[d] = g.lo[d] + 0.5*(nodes[i]+1)*g.h[d]
	}
}

// SupportPoints returns the Gauss-Lobatto support points of field f on the
// reference interval.
func (ctx *Context) SupportPoints(f FieldID) []float64 { return ctx.fields[f].support }

func (ctx *Context) checkPair(f FieldID, q QuadID) (s *DG1D.Shape1D, err error) {
	if int(f) < 0 || int(f) >= len(ctx.fields) || int(q) < 0 || int(q) >= len(ctx.quads) {
		err = types.NewConfigurationError("context", "unknown field %d or quadrature %d", f, q)
		return
	}
	if s = ctx.Shape(f, q); s == nil {
		err = types.NewConfigurationError("context", "quadrature %d is not bound to field %q",
			q, ctx.fields[f].layout.Name)
	}
	return
}
