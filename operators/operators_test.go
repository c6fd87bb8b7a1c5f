package operators

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/mfdg/comm"
	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/mesh"
	"github.com/notargets/mfdg/types"
)

func box(cells, dim int, periodic bool) mesh.BoxConfig {
	bc := mesh.BoxConfig{GhostLayers: 1}
	for d := 0; d < dim; d++ {
		bc.CellsPerDir = append(bc.CellsPerDir, cells)
		bc.Lo = append(bc.Lo, 0)
		bc.Hi = append(bc.Hi, 1)
		bc.Periodic = append(bc.Periodic, periodic)
	}
	return bc
}

type setup struct {
	ctx               *matrixfree.Context
	fields            []matrixfree.FieldID
	linear, nonlinear matrixfree.QuadID
}

func newSetup(t *testing.T, c *comm.Comm, bc mesh.BoxConfig, degree int, comps ...int) (s setup) {
	m, err := mesh.NewBox(bc, c.Rank(), c.Size())
	require.NoError(t, err)
	s.ctx = matrixfree.New(c, m, matrixfree.Options{Lanes: 4, Threads: 2})
	for i, nc := range comps {
		f, err := s.ctx.RegisterField(matrixfree.FieldLayout{Name: string(rune('a' + i)), Components: nc, Degree: degree},
			matrixfree.Constraints{})
		require.NoError(t, err)
		s.fields = append(s.fields, f)
	}
	s.linear, err = s.ctx.RegisterQuadrature(matrixfree.LinearRule(degree))
	require.NoError(t, err)
	s.nonlinear, err = s.ctx.RegisterQuadrature(matrixfree.NonlinearRule(degree))
	require.NoError(t, err)
	require.NoError(t, s.ctx.Finalize())
	return
}

func allBoundaries(dim int, kind types.BCKind, values BoundaryValues) BoundaryDescriptor {
	bd := make(BoundaryDescriptor)
	for f := 0; f < 2*dim; f++ {
		bd[types.BoundaryID(f)] = BoundaryCondition{Kind: kind, Values: values}
	}
	return bd
}

func wavy(x []float64, comp int) (v float64) {
	v = float64(comp + 1)
	for d, xd := range x {
		v += math.Sin(float64(d+2)*xd + 0.3*float64(comp))
	}
	return
}

func TestInverseMass(t *testing.T) {
	for _, dim := range []int{2, 3} {
		s := newSetup(t, comm.Serial(), box(3, dim, false), 3, 1, dim)
		for _, f := range s.fields {
			mass, err := NewMassOperator(s.ctx, f, s.linear)
			require.NoError(t, err)
			im, err := NewInverseMass(s.ctx, f, s.linear)
			require.NoError(t, err)

			u := s.ctx.NewVector(f).Interpolate(wavy)
			mu := s.ctx.NewVector(f)
			require.NoError(t, mass.Evaluate(mu, u, 0))

			back := s.ctx.NewVector(f)
			require.NoError(t, im.Apply(back, mu))
			for i, v := range u.Owned() {
				assert.InDelta(t, v, back.Owned()[i], 1e-11)
			}
			inPlace := mu.Clone()
			require.NoError(t, im.Apply(inPlace, inPlace))
			assert.Equal(t, back.Owned(), inPlace.Owned())
		}
		_, err := NewInverseMass(s.ctx, s.fields[0], s.nonlinear)
		var ce *types.ConfigurationError
		assert.True(t, errors.As(err, &ce))
	}
}

func TestConvective(t *testing.T) {
	{ // Linear transport on a periodic square conserves the total and repeats bit for bit
		s := newSetup(t, comm.Serial(), box(4, 2, true), 2, 1)
		f := s.fields[0]
		unit := func(x []float64, t float64, b []float64) { b[0], b[1] = 1, 1 }
		op, err := NewConvectiveOperator(s.ctx, f, s.nonlinear, &ConvectiveKernel{Velocity: unit})
		require.NoError(t, err)
		u := s.ctx.NewVector(f).Interpolate(wavy)
		r1, r2 := s.ctx.NewVector(f), s.ctx.NewVector(f)
		require.NoError(t, op.Evaluate(r1, u, 0))
		require.NoError(t, op.Evaluate(r2, u, 0))
		assert.Equal(t, r1.Owned(), r2.Owned())
		assert.InDelta(t, 0, r1.ComponentSum(0), 1e-12)
		assert.Greater(t, r1.NormInf(), 1e-3)
	}
	{ // Repeated evaluations into a dirty destination overwrite it identically
		s := newSetup(t, comm.Serial(), box(4, 2, true), 2, 1)
		f := s.fields[0]
		unit := func(x []float64, t float64, b []float64) { b[0], b[1] = 1, 0 }
		op, err := NewConvectiveOperator(s.ctx, f, s.nonlinear, &ConvectiveKernel{Velocity: unit})
		require.NoError(t, err)
		for _, u := range []*matrixfree.Vector{s.ctx.NewVector(f).Set(1), s.ctx.NewVector(f).Interpolate(wavy)} {
			dst := s.ctx.NewVector(f).Set(1)
			require.NoError(t, op.Evaluate(dst, u, 0))
			first := dst.Clone()
			for n := 0; n < 5; n++ {
				dst.Set(1)
				require.NoError(t, op.Evaluate(dst, u, 0))
				assert.Equal(t, first.Owned(), dst.Owned(), "evaluation %d", n+2)
				require.NoError(t, op.Evaluate(dst, u, 0))
				assert.Equal(t, first.Owned(), dst.Owned(), "evaluation %d over the previous result", n+2)
			}
		}
		dst := s.ctx.NewVector(f).Set(1)
		require.NoError(t, op.Evaluate(dst, s.ctx.NewVector(f).Set(1), 0))
		assert.InDelta(t, 0, dst.NormInf(), 1e-12)
	}
	{ // A constant state is a steady state of the nonlinear flux
		s := newSetup(t, comm.Serial(), box(3, 2, true), 2, 2)
		f := s.fields[0]
		op, err := NewConvectiveOperator(s.ctx, f, s.nonlinear, &ConvectiveKernel{})
		require.NoError(t, err)
		u := s.ctx.NewVector(f).Interpolate(func(x []float64, comp int) float64 { return float64(comp) + 0.5 })
		r := s.ctx.NewVector(f)
		require.NoError(t, op.Evaluate(r, u, 0))
		assert.InDelta(t, 0, r.NormInf(), 1e-12)

		u.Interpolate(wavy)
		require.NoError(t, op.Evaluate(r, u, 0))
		assert.InDelta(t, 0, r.ComponentSum(0), 1e-12)
		assert.InDelta(t, 0, r.ComponentSum(1), 1e-12)
	}
	{ // Boundaries need a condition and the nonlinear flux a vector field
		s := newSetup(t, comm.Serial(), box(2, 2, false), 2, 1)
		_, err := NewConvectiveOperator(s.ctx, s.fields[0], s.nonlinear, &ConvectiveKernel{})
		var ce *types.ConfigurationError
		assert.True(t, errors.As(err, &ce))
		unit := func(x []float64, t float64, b []float64) { b[0], b[1] = 1, 0 }
		_, err = NewConvectiveOperator(s.ctx, s.fields[0], s.nonlinear, &ConvectiveKernel{Velocity: unit})
		assert.True(t, errors.As(err, &ce))
	}
}

func TestConvectiveDistributed(t *testing.T) {
	unit := func(x []float64, t float64, b []float64) { b[0], b[1] = 1, 0.5 }
	run := func(size int) (global []float64) {
		w := comm.NewWorld(size)
		require.NoError(t, w.Run(func(c *comm.Comm) error {
			s := newSetup(t, c, box(5, 2, true), 2, 1)
			f := s.fields[0]
			op, err := NewConvectiveOperator(s.ctx, f, s.nonlinear, &ConvectiveKernel{Velocity: unit})
			if err != nil {
				return err
			}
			u := s.ctx.NewVector(f).Interpolate(wavy)
			r := s.ctx.NewVector(f)
			if err = op.Evaluate(r, u, 0); err != nil {
				return err
			}
			g := r.Gather()
			if c.Rank() == 0 {
				global = g
			}
			return nil
		}))
		return
	}
	serial, parallel := run(1), run(3)
	require.Equal(t, len(serial), len(parallel))
	for i := range serial {
		assert.InDelta(t, serial[i], parallel[i], 1e-13)
	}
}

func TestViscous(t *testing.T) {
	linear := func(x []float64, comp int) float64 { return 1 + x[0] + 2*x[1] }
	exact := FunctionValues(func(x []float64, t float64, out []float64) { out[0] = 1 + x[0] + 2*x[1] })
	s := newSetup(t, comm.Serial(), box(3, 2, false), 2, 1)
	f := s.fields[0]
	bd := allBoundaries(2, types.BC_Dirichlet, exact)
	newOp := func(mode BoundaryMode) Operator {
		op, err := NewViscousOperator(s.ctx, f, s.linear, &ViscousKernel{Coefficient: 1, IPFactor: 1, Boundary: bd, Mode: mode})
		require.NoError(t, err)
		return op
	}
	{ // A harmonic function with its own Dirichlet data has zero residual
		u := s.ctx.NewVector(f).Interpolate(linear)
		r := s.ctx.NewVector(f)
		require.NoError(t, newOp(BoundaryFull).Evaluate(r, u, 0))
		assert.InDelta(t, 0, r.NormInf(), 1e-10)
	}
	{ // The homogeneous operator is symmetric and full = homogeneous + data
		a := s.ctx.NewVector(f).Interpolate(wavy)
		b := s.ctx.NewVector(f).Interpolate(func(x []float64, comp int) float64 { return x[0] * x[1] * x[1] })
		ab, ba := s.ctx.NewVector(f), s.ctx.NewVector(f)
		hom := newOp(BoundaryHomogeneous)
		require.NoError(t, hom.Evaluate(ab, b, 0))
		require.NoError(t, hom.Evaluate(ba, a, 0))
		assert.InDelta(t, a.Dot(ab), b.Dot(ba), 1e-11)
		assert.Greater(t, a.Dot(ba), 0.)

		full := s.ctx.NewVector(f)
		require.NoError(t, newOp(BoundaryFull).Evaluate(full, a, 0))
		require.NoError(t, newOp(BoundaryDataOnly).EvaluateAdd(ba, a, 0))
		for i, v := range full.Owned() {
			assert.InDelta(t, v, ba.Owned()[i], 1e-11)
		}
	}
	{ // Variable coefficients of one reproduce the constant operator
		vc, err := NewVariableCoefficients(s.ctx, f, s.linear, func(x []float64) float64 { return 1 })
		require.NoError(t, err)
		op, err := NewViscousOperator(s.ctx, f, s.linear, &ViscousKernel{Coefficient: 1, IPFactor: 1, Boundary: bd, Variable: vc})
		require.NoError(t, err)
		u := s.ctx.NewVector(f).Interpolate(wavy)
		r1, r2 := s.ctx.NewVector(f), s.ctx.NewVector(f)
		require.NoError(t, op.Evaluate(r1, u, 0))
		require.NoError(t, newOp(BoundaryFull).Evaluate(r2, u, 0))
		for i, v := range r1.Owned() {
			assert.InDelta(t, v, r2.Owned()[i], 1e-12)
		}
		_, err = NewViscousOperator(s.ctx, f, s.nonlinear, &ViscousKernel{Coefficient: 1, IPFactor: 1, Boundary: bd, Variable: vc})
		assert.Error(t, err)
		_, err = NewViscousOperator(s.ctx, f, s.linear, &ViscousKernel{Coefficient: 1, Boundary: bd})
		assert.Error(t, err)
	}
	{ // No net diffusive flux on the periodic box
		p := newSetup(t, comm.Serial(), box(4, 2, true), 3, 1)
		op, err := NewViscousOperator(p.ctx, p.fields[0], p.linear, &ViscousKernel{Coefficient: 0.5, IPFactor: 2})
		require.NoError(t, err)
		u := p.ctx.NewVector(p.fields[0]).Interpolate(wavy)
		r := p.ctx.NewVector(p.fields[0])
		require.NoError(t, op.Evaluate(r, u, 0))
		assert.InDelta(t, 0, r.ComponentSum(0), 1e-11)
		assert.Greater(t, r.NormInf(), 1e-3)
	}
}

func TestGradientDivergence(t *testing.T) {
	s := newSetup(t, comm.Serial(), box(3, 2, false), 2, 1, 2)
	p, u := s.fields[0], s.fields[1]
	bd := allBoundaries(2, types.BC_Neumann, nil)
	{ // The weak divergence of (x, 2y) sums to its integral over the unit square
		div, err := NewDivergenceOperator(s.ctx, p, u, s.linear, bd)
		require.NoError(t, err)
		uv := s.ctx.NewVector(u).Interpolate(func(x []float64, comp int) float64 { return float64(comp+1) * x[comp] })
		r := s.ctx.NewVector(p)
		require.NoError(t, div.Evaluate(r, uv, 0))
		assert.InDelta(t, 3, r.ComponentSum(0), 1e-12)
	}
	{ // M^-1 of the weak gradient of a linear field is its exact gradient
		grad, err := NewGradientOperator(s.ctx, u, p, s.linear, bd)
		require.NoError(t, err)
		pv := s.ctx.NewVector(p).Interpolate(func(x []float64, comp int) float64 { return x[0] - 3*x[1] })
		r := s.ctx.NewVector(u)
		require.NoError(t, grad.Evaluate(r, pv, 0))
		im, err := NewInverseMass(s.ctx, u, s.linear)
		require.NoError(t, err)
		require.NoError(t, im.Apply(r, r))
		nodes := s.ctx.DoFsPerCell(u) / 2
		for l := 0; l < s.ctx.Mesh().NumOwned(); l++ {
			block := r.Block(l)
			for i := 0; i < nodes; i++ {
				assert.InDelta(t, 1, block[i], 1e-10)
				assert.InDelta(t, -3, block[nodes+i], 1e-10)
			}
		}
	}
	{
		_, err := NewGradientOperator(s.ctx, p, u, s.linear, bd)
		var ce *types.ConfigurationError
		assert.True(t, errors.As(err, &ce))
	}
}

func TestSpatialOperator(t *testing.T) {
	s := newSetup(t, comm.Serial(), box(3, 2, true), 2, 1)
	f := s.fields[0]
	unit := func(x []float64, t float64, b []float64) { b[0], b[1] = 1, 1 }
	conv, err := NewConvectiveOperator(s.ctx, f, s.nonlinear, &ConvectiveKernel{Velocity: unit})
	require.NoError(t, err)
	visc, err := NewViscousOperator(s.ctx, f, s.linear, &ViscousKernel{Coefficient: -0.01, IPFactor: 1})
	require.NoError(t, err)
	src, err := NewRHSOperator(s.ctx, f, s.linear, func(x []float64, t float64, out []float64) { out[0] = 2 })
	require.NoError(t, err)
	im, err := NewInverseMass(s.ctx, f, s.linear)
	require.NoError(t, err)

	u := s.ctx.NewVector(f).Set(3)
	dudt := s.ctx.NewVector(f)
	require.NoError(t, NewSpatialOperator(im, conv, visc, src).Evaluate(dudt, u, 0))
	for _, v := range dudt.Owned() {
		assert.InDelta(t, 2, v, 1e-11)
	}

	combined, err := NewCombinedOperator(s.ctx, f, s.nonlinear,
		SumCellKernel{&ConvectiveKernel{Velocity: unit}, &ViscousKernel{Coefficient: -0.01, IPFactor: 1}},
		SumFaceKernel{&ConvectiveKernel{Velocity: unit}, &ViscousKernel{Coefficient: -0.01, IPFactor: 1}})
	require.NoError(t, err)
	u.Interpolate(wavy)
	r1 := s.ctx.NewVector(f)
	require.NoError(t, combined.Evaluate(r1, u, 0))
	r2 := s.ctx.NewVector(f)
	require.NoError(t, NewSpatialOperator(im, conv).EvaluateResidual(r2, u, 0))
	require.NoError(t, visc.EvaluateAdd(r2, u, 0))
	assert.InDelta(t, 0, r1.ComponentSum(0), 1e-12)
	assert.InDelta(t, r2.Norm2(), r1.Norm2(), 1e-6*r2.Norm2())
}
