package matrixfree

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/mfdg/comm"
	"github.com/notargets/mfdg/mesh"
	"github.com/notargets/mfdg/types"
)

func unitBox(cells int, dim int, periodic bool) mesh.BoxConfig {
	bc := mesh.BoxConfig{GhostLayers: 1}
	for d := 0; d < dim; d++ {
		bc.CellsPerDir = append(bc.CellsPerDir, cells)
		bc.Lo = append(bc.Lo, 0)
		bc.Hi = append(bc.Hi, 1)
		bc.Periodic = append(bc.Periodic, periodic)
	}
	return bc
}

func newScalarContext(c *comm.Comm, bc mesh.BoxConfig, degree, lanes, threads int) (ctx *Context, f FieldID, q QuadID, err error) {
	var m *mesh.Partition
	if m, err = mesh.NewBox(bc, c.Rank(), c.Size()); err != nil {
		return
	}
	ctx = New(c, m, Options{Lanes: lanes, Threads: threads})
	if f, err = ctx.RegisterField(FieldLayout{Name: "u", Components: 1, Degree: degree}, Constraints{}); err != nil {
		return
	}
	if q, err = ctx.RegisterQuadrature(LinearRule(degree)); err != nil {
		return
	}
	err = ctx.Finalize()
	return
}

type unitKernel struct{}

func (unitKernel) CellFlags() (EvaluationFlags, EvaluationFlags) { return 0, Values }
func (unitKernel) Cell(p *QuadPoint) {
	for l := range p.SubmitValue[0] {
		p.SubmitValue[0][l] += 1
	}
}

// gradXKernel submits d/dx of the source as a value.
type gradXKernel struct{}

func (gradXKernel) CellFlags() (EvaluationFlags, EvaluationFlags) { return Gradients, Values }
func (gradXKernel) Cell(p *QuadPoint) {
	for l := range p.SubmitValue[0] {
		p.SubmitValue[0][l] += p.Grad[0][0][l]
	}
}

// jumpKernel is the upwind-free central jump flux u- - u+.
type jumpKernel struct{}

func (jumpKernel) FaceFlags() (EvaluationFlags, EvaluationFlags) { return Values, Values }
func (jumpKernel) Face(p *FacePoint) {
	for l := range p.Flux[0] {
		p.Flux[0][l] += p.ValueM[0][l] - p.ValueP[0][l]
	}
}

type faceCounter struct {
	mu   sync.Mutex
	mesh *mesh.Partition
	keys []int
}

func (fc *faceCounter) FaceFlags() (EvaluationFlags, EvaluationFlags) { return 0, 0 }
func (fc *faceCounter) Face(p *FacePoint) {
	if p.Q != 0 {
		return
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for l := 0; l < p.Lanes; l++ {
		c := fc.mesh.LocalCell(p.Minus[l])
		face := 2*p.Dim + 1 // marks a boundary face
		for f := range c.Neighbor {
			if p.Normal[f/2][l] == float64(2*(f%2)-1) {
				face = f
			}
		}
		fc.keys = append(fc.keys, int(types.NewFaceKey(c.ID, face)))
	}
}

func TestContextSetup(t *testing.T) {
	{ // Insufficient quadrature for an exactly integrated field
		m, err := mesh.NewBox(unitBox(2, 2, false), 0, 1)
		require.NoError(t, err)
		ctx := New(comm.Serial(), m, Options{})
		_, err = ctx.RegisterField(FieldLayout{Name: "u", Components: 2, Degree: 3, Exact: true}, Constraints{})
		require.NoError(t, err)
		_, err = ctx.RegisterQuadrature(QuadratureRule{Points1D: 3})
		require.NoError(t, err)
		err = ctx.Finalize()
		var ce *types.ConfigurationError
		assert.True(t, errors.As(err, &ce))
	}
	{ // The nonlinear rule integrates cubic integrands exactly
		m, err := mesh.NewBox(unitBox(2, 2, false), 0, 1)
		require.NoError(t, err)
		ctx := New(comm.Serial(), m, Options{})
		for p := 1; p < 7; p++ {
			f, err := ctx.RegisterField(FieldLayout{Name: "u", Components: 1, Degree: p, Exact: true}, Constraints{})
			require.NoError(t, err)
			_, err = ctx.RegisterQuadrature(NonlinearRule(p, f))
			require.NoError(t, err)
			_, err = ctx.RegisterQuadrature(LinearRule(p, f))
			require.NoError(t, err)
		}
		require.NoError(t, ctx.Finalize())
		_, err = ctx.RegisterField(FieldLayout{Name: "late", Components: 1, Degree: 1}, Constraints{})
		assert.Error(t, err)
	}
	{ // Hanging nodes and conflicting constraints
		m, err := mesh.NewBox(unitBox(2, 2, false), 0, 1)
		require.NoError(t, err)
		ctx := New(comm.Serial(), m, Options{})
		_, err = ctx.RegisterField(FieldLayout{Name: "u", Components: 1, Degree: 1},
			Constraints{HangingNodes: true})
		require.NoError(t, err)
		_, err = ctx.RegisterQuadrature(LinearRule(1))
		require.NoError(t, err)
		var ce *types.ConfigurationError
		assert.True(t, errors.As(ctx.Finalize(), &ce))

		ctx = New(comm.Serial(), m, Options{})
		_, err = ctx.RegisterField(FieldLayout{Name: "u", Components: 1, Degree: 1},
			Constraints{Dirichlet: []types.BoundaryID{0, 1}, Neumann: []types.BoundaryID{1}})
		require.NoError(t, err)
		_, err = ctx.RegisterQuadrature(LinearRule(1))
		require.NoError(t, err)
		assert.True(t, errors.As(ctx.Finalize(), &ce))
	}
	{ // A distributed mesh without ghost layer is rejected on every rank
		bc := unitBox(4, 2, false)
		bc.GhostLayers = 0
		errs := make([]error, 2)
		_ = comm.NewWorld(2).Run(func(c *comm.Comm) error {
			_, _, _, errs[c.Rank()] = newScalarContext(c, bc, 1, 4, 1)
			return nil
		})
		for _, err := range errs {
			var pe *types.PartitionError
			assert.True(t, errors.As(err, &pe))
		}
	}
	{ // Non-conforming neighbors
		cells, err := mesh.BoxCells(unitBox(2, 2, false), 1)
		require.NoError(t, err)
		cells[1].Lo[1] = 0.1
		m, err := mesh.NewPartitionFromCells(2, 0, 1, cells, 1)
		require.NoError(t, err)
		ctx := New(comm.Serial(), m, Options{})
		_, err = ctx.RegisterField(FieldLayout{Name: "u", Components: 1, Degree: 1}, Constraints{})
		require.NoError(t, err)
		_, err = ctx.RegisterQuadrature(LinearRule(1))
		require.NoError(t, err)
		var ce *types.ConfigurationError
		assert.True(t, errors.As(ctx.Finalize(), &ce))
	}
}

func TestColoring(t *testing.T) {
	ctx, _, _, err := newScalarContext(comm.Serial(), unitBox(5, 2, true), 2, 3, 2)
	require.NoError(t, err)
	check := func(colors [][]int, cellsOf func(b int) []int, nBatches int) {
		var total int
		for _, color := range colors {
			// a batch may touch a cell more than once; batches of one color may not share one
			owner := make(map[int]int)
			for _, b := range color {
				total++
				for _, c := range cellsOf(b) {
					if ob, ok := owner[c]; ok {
						assert.Equal(t, ob, b, "cell %d is written by batches %d and %d of one color", c, ob, b)
					}
					owner[c] = b
				}
			}
		}
		assert.Equal(t, nBatches, total)
	}
	check(ctx.CellColors(), func(b int) []int {
		return ctx.CellBatches()[b].Cells[:ctx.CellBatches()[b].N]
	}, len(ctx.CellBatches()))
	check(ctx.FaceColors(), func(b int) (cells []int) {
		fb := ctx.FaceBatches()[b]
		for l := 0; l < fb.N; l++ {
			cells = append(cells, fb.Minus[l])
			if fb.Interior {
				cells = append(cells, fb.Plus[l])
			}
		}
		return
	}, len(ctx.FaceBatches()))
	assert.Len(t, ctx.CellColors(), 1)
	assert.Greater(t, len(ctx.FaceColors()), 1)
}

func TestFacesVisitedOnce(t *testing.T) {
	for _, periodic := range []bool{true, false} {
		bc := unitBox(4, 2, periodic)
		all := make([][]int, 3)
		err := comm.NewWorld(3).Run(func(c *comm.Comm) error {
			ctx, f, q, err := newScalarContext(c, bc, 1, 4, 2)
			if err != nil {
				return err
			}
			fc := &faceCounter{mesh: ctx.Mesh()}
			dst := ctx.NewVector(f)
			if err = ctx.ForEachFaceBatch(LoopSpec{Dst: f, Src: f, Quad: q}, fc, nil, dst, nil); err != nil {
				return err
			}
			all[c.Rank()] = fc.keys
			return nil
		})
		require.NoError(t, err)
		var keys []int
		for _, k := range all {
			keys = append(keys, k...)
		}
		sort.Ints(keys)
		for i := 1; i < len(keys); i++ {
			assert.NotEqual(t, keys[i-1], keys[i])
		}
		if periodic {
			assert.Len(t, keys, 2*16)
		} else {
			assert.Len(t, keys, 2*12)
		}
	}
}

func TestCellLoops(t *testing.T) {
	{ // Integrating one gives the volume, gradients of linear functions are exact
		for _, dim := range []int{1, 2, 3} {
			ctx, f, q, err := newScalarContext(comm.Serial(), unitBox(3, dim, false), 2, 4, 3)
			require.NoError(t, err)
			dst := ctx.NewVector(f)
			require.NoError(t, ctx.ForEachCellBatch(LoopSpec{Dst: f, Src: f, Quad: q}, unitKernel{}, dst, nil))
			assert.InDelta(t, 1., dst.ComponentSum(0), 1.e-13)

			src := ctx.NewVector(f).Interpolate(func(x []float64, _ int) float64 {
				var s float64
				for d := range x {
					s += float64(d+2) * x[d]
				}
				return s
			})
			dst.Set(0)
			require.NoError(t, ctx.ForEachCellBatch(LoopSpec{Dst: f, Src: f, Quad: q}, gradXKernel{}, dst, src))
			assert.InDelta(t, 2., dst.ComponentSum(0), 1.e-12)
		}
	}
	{ // The identity cell-wise transformation round trips, in place too
		ctx, f, q, err := newScalarContext(comm.Serial(), unitBox(3, 2, false), 3, 4, 2)
		require.NoError(t, err)
		src := ctx.NewVector(f).Interpolate(func(x []float64, _ int) float64 { return x[0] * x[1] })
		dst := ctx.NewVector(f)
		n := 4
		id := make([]float64, n*n)
		for i := 0; i < n; i++ {
			id[i*n+i] = 1
		}
		identity := func(b *DoFBatch) { b.Contract(id, n, true, 0) }
		require.NoError(t, ctx.ForEachCellBatchDoFs(LoopSpec{Dst: f, Quad: q}, identity, dst, src))
		assert.Equal(t, src.Owned(), dst.Owned())
		before := append([]float64(nil), src.Owned()...)
		require.NoError(t, ctx.ForEachCellBatchDoFs(LoopSpec{Dst: f, Quad: q}, identity, src, src))
		assert.Equal(t, before, src.Owned())
	}
}

func TestDistributedFaceLoop(t *testing.T) {
	bc := unitBox(5, 2, true)
	fn := func(x []float64, _ int) float64 { return x[0]*x[0] + 3*x[1] }
	var serial []float64
	{
		ctx, f, q, err := newScalarContext(comm.Serial(), bc, 2, 4, 1)
		require.NoError(t, err)
		src := ctx.NewVector(f).Interpolate(fn)
		dst := ctx.NewVector(f)
		src.UpdateGhostValues()
		require.NoError(t, ctx.ForEachFaceBatch(LoopSpec{Dst: f, Src: f, Quad: q}, jumpKernel{}, nil, dst, src))
		dst.CompressAdd()
		serial = dst.Gather()
		// The jump flux is conservative
		assert.InDelta(t, 0., dst.ComponentSum(0), 1.e-12)
	}
	results := make([][]float64, 3)
	staleErr := make([]error, 3)
	err := comm.NewWorld(3).Run(func(c *comm.Comm) error {
		ctx, f, q, err := newScalarContext(c, bc, 2, 3, 2)
		if err != nil {
			return err
		}
		src := ctx.NewVector(f).Interpolate(fn)
		dst := ctx.NewVector(f)
		spec := LoopSpec{Dst: f, Src: f, Quad: q}
		staleErr[c.Rank()] = ctx.ForEachFaceBatch(spec, jumpKernel{}, nil, dst, src)
		src.UpdateGhostValues()
		if err = ctx.ForEachFaceBatch(spec, jumpKernel{}, nil, dst, src); err != nil {
			return err
		}
		dst.CompressAdd()
		results[c.Rank()] = dst.Gather()
		return nil
	})
	require.NoError(t, err)
	for r := 0; r < 3; r++ {
		assert.ErrorIs(t, staleErr[r], ErrStaleGhosts)
		assert.InDeltaSlice(t, serial, results[r], 1.e-12)
	}
}

func TestPointsAndSizes(t *testing.T) {
	var (
		local  = make([]int, 3)
		global = make([]int, 3)
	)
	require.NoError(t, comm.NewWorld(3).Run(func(c *comm.Comm) error {
		ctx, f, _, err := newScalarContext(c, unitBox(4, 2, false), 2, 4, 1)
		if err != nil {
			return err
		}
		local[c.Rank()], global[c.Rank()] = ctx.LocalDoFs(f), ctx.NumberOfDoFs(f)
		return nil
	}))
	assert.Equal(t, 16*9, local[0]+local[1]+local[2])
	assert.Equal(t, []int{16 * 9, 16 * 9, 16 * 9}, global)

	ctx, f, _, err := newScalarContext(comm.Serial(), unitBox(2, 2, false), 1, 4, 1)
	require.NoError(t, err)
	centers := ctx.CellCenterPoints()
	require.Len(t, centers, 4)
	for l, x := range centers {
		c := ctx.Mesh().LocalCell(l)
		for d := range x {
			assert.InDelta(t, 0.5*(c.Lo[d]+c.Hi[d]), x[d], 1e-15)
		}
	}
	points := ctx.NodalPoints(f)
	require.Len(t, points, 16)
	// Degree one nodes are the cell corners, x fastest
	c := ctx.Mesh().LocalCell(0)
	assert.Equal(t, []float64{c.Lo[0], c.Lo[1]}, points[0])
	assert.Equal(t, []float64{c.Hi[0], c.Lo[1]}, points[1])
	assert.Equal(t, []float64{c.Lo[0], c.Hi[1]}, points[2])
	assert.Equal(t, []float64{c.Hi[0], c.Hi[1]}, points[3])
}
