package timeint

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/mfdg/comm"
	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/mesh"
	"github.com/notargets/mfdg/solvers"
	"github.com/notargets/mfdg/types"
)

func newVector(t *testing.T) *matrixfree.Vector {
	bc := mesh.BoxConfig{
		CellsPerDir: []int{2, 1},
		Lo:          []float64{0, 0},
		Hi:          []float64{1, 1},
		Periodic:    []bool{false, false},
		GhostLayers: 1,
	}
	m, err := mesh.NewBox(bc, 0, 1)
	require.NoError(t, err)
	ctx := matrixfree.New(comm.Serial(), m, matrixfree.Options{Lanes: 2, Threads: 1})
	f, err := ctx.RegisterField(matrixfree.FieldLayout{Name: "u", Components: 1, Degree: 1}, matrixfree.Constraints{})
	require.NoError(t, err)
	_, err = ctx.RegisterQuadrature(matrixfree.LinearRule(1))
	require.NoError(t, err)
	require.NoError(t, ctx.Finalize())
	return ctx.NewVector(f)
}

// pointwise applies an ODE right-hand side to every entry.
type pointwise func(u, t float64) float64

func (p pointwise) Evaluate(dst, src *matrixfree.Vector, t float64) error {
	for i, v := range src.Owned() {
		dst.Owned()[i] = p(v, t)
	}
	return nil
}

var failing = errors.New("evaluation failed")

type failAfter struct{ n int }

func (f *failAfter) Evaluate(dst, src *matrixfree.Vector, t float64) error {
	if f.n == 0 {
		return failing
	}
	f.n--
	dst.Set(0)
	return nil
}

// flakySolver fails the next solve after scribbling over u.
type flakySolver struct {
	solvers.DenseNewton
	fail bool
}

func (fs *flakySolver) Solve(u *matrixfree.Vector, residual func(r, u *matrixfree.Vector) error) error {
	if fs.fail {
		fs.fail = false
		u.Set(42)
		return failing
	}
	return fs.DenseNewton.Solve(u, residual)
}

func TestTableaus(t *testing.T) {
	for _, name := range []string{"ForwardEuler", "heun2", "SSPRK3", "rk4"} {
		tb, err := TableauByName(name)
		require.NoError(t, err)
		assert.NoError(t, tb.Validate())
	}
	_, err := TableauByName("leapfrog")
	assert.Error(t, err)
	assert.Error(t, Tableau{Name: "bad", A: [][]float64{{}, {0.5}}, B: []float64{0.5, 0.5}, C: []float64{0, 1}}.Validate())
}

func TestExplicitRKOrder(t *testing.T) {
	// u' = -u + cos(t) + sin(t) has the solution u = sin(t) + exp(-t) from u(0) = 1
	rhs := pointwise(func(u, t float64) float64 { return -u + math.Cos(t) + math.Sin(t) })
	exact := math.Sin(1) + math.Exp(-1)
	orders := map[string]float64{"ForwardEuler": 1, "Heun2": 2, "SSPRK3": 3, "RK4": 4}
	for name, order := range orders {
		tb, err := TableauByName(name)
		require.NoError(t, err)
		var errs []float64
		for _, n := range []int{20, 40} {
			u := newVector(t).Set(1)
			rk, err := NewExplicitRK(tb, rhs, u, Options{})
			require.NoError(t, err)
			require.NoError(t, rk.Integrate(u, 1, 1/float64(n), nil))
			assert.Equal(t, n, rk.Step)
			assert.InDelta(t, 1, rk.Time, 1e-12)
			errs = append(errs, math.Abs(u.Owned()[0]-exact))
		}
		rate := math.Log2(errs[0] / errs[1])
		assert.InDelta(t, order, rate, 0.25, name)
	}
}

func TestExplicitRKStates(t *testing.T) {
	u := newVector(t).Set(1)
	var transitions []string
	rk, err := NewExplicitRK(Heun2, pointwise(func(u, t float64) float64 { return 0 }), u,
		Options{Hook: func(from, to State) { transitions = append(transitions, from.String()+">"+to.String()) }})
	require.NoError(t, err)
	require.NoError(t, rk.Advance(u, 0.1))
	assert.Equal(t, []string{"Idle>StageEvaluation", "StageEvaluation>Advancing", "Advancing>Idle"}, transitions)
	assert.Equal(t, Idle, rk.State())

	before := append([]float64(nil), u.Owned()...)
	rk, err = NewExplicitRK(RK4, &failAfter{n: 2}, u, Options{})
	require.NoError(t, err)
	err = rk.Advance(u, 0.1)
	assert.True(t, errors.Is(err, failing))
	assert.Equal(t, Idle, rk.State())
	assert.Equal(t, before, u.Owned())
	assert.Equal(t, 0, rk.Step)
}

func TestBDF(t *testing.T) {
	// u' = -u^2 has the solution 1/(1+t)
	rhs := pointwise(func(u, t float64) float64 { return -u * u })
	newton := &solvers.DenseNewton{Tolerance: 1e-11}
	exact := func(t float64) float64 { return 1 / (1 + t) }
	for order := 1; order <= 3; order++ {
		var errs []float64
		for _, n := range []int{40, 80} {
			dt := 1 / float64(n)
			u := newVector(t)
			b, err := NewBDF(order, rhs, newton, u, Options{})
			require.NoError(t, err)
			assert.Equal(t, 1, b.CurrentOrder())
			// Seed the history with the exact solution so that every step runs at full order
			start := order - 1
			snap := Restart{Time: float64(start) * dt, TimeStep: dt, Step: start}
			for i := start; i >= 0; i-- {
				v := make([]float64, len(u.Owned()))
				for j := range v {
					v[j] = exact(float64(i) * dt)
				}
				snap.Vectors = append(snap.Vectors, v)
			}
			require.NoError(t, b.Resume(snap, u))
			assert.Equal(t, order, b.CurrentOrder())
			for i := start; i < n; i++ {
				require.NoError(t, b.Advance(u, dt))
			}
			assert.InDelta(t, 1, b.Time, 1e-12)
			errs = append(errs, math.Abs(u.Owned()[0]-exact(1)))
		}
		assert.InDelta(t, float64(order), math.Log2(errs[0]/errs[1]), 0.3)
	}
	{ // A restart continues bit for bit
		u := newVector(t).Set(1)
		b, err := NewBDF(2, rhs, newton, u, Options{})
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			require.NoError(t, b.Advance(u, 0.1))
		}
		snap := b.Snapshot(u)
		require.NoError(t, b.Advance(u, 0.1))

		v := newVector(t)
		c, err := NewBDF(2, rhs, newton, v, Options{})
		require.NoError(t, err)
		require.NoError(t, c.Resume(snap, v))
		require.NoError(t, c.Advance(v, 0.1))
		assert.Equal(t, u.Owned(), v.Owned())
		assert.Equal(t, b.Step, c.Step)
		assert.Error(t, c.Advance(v, 0.2))
	}
	{ // A failed solve leaves the solution and the history untouched
		decay := pointwise(func(u, t float64) float64 { return -u })
		run := func(failSecond bool) (u *matrixfree.Vector, b *BDF) {
			fs := &flakySolver{DenseNewton: solvers.DenseNewton{Tolerance: 1e-11}}
			u = newVector(t).Set(1)
			b, err := NewBDF(2, decay, fs, u, Options{})
			require.NoError(t, err)
			require.NoError(t, b.Advance(u, 0.1))
			if failSecond {
				before := append([]float64(nil), u.Owned()...)
				fs.fail = true
				assert.ErrorIs(t, b.Advance(u, 0.1), failing)
				assert.Equal(t, before, u.Owned())
				assert.Equal(t, 1, b.Step)
				assert.Equal(t, 2, b.CurrentOrder())
			}
			require.NoError(t, b.Advance(u, 0.1))
			return
		}
		clean, _ := run(false)
		retried, b := run(true)
		// BDF1 then BDF2: u1 = 1/1.1, 1.6 u2 = 2 u1 - 0.5
		assert.InDelta(t, (2/1.1-0.5)/1.6, clean.Owned()[0], 1e-10)
		assert.Equal(t, clean.Owned(), retried.Owned())
		assert.Equal(t, 2, b.Step)
		assert.InDelta(t, 0.2, b.Time, 1e-15)
	}
	_, err := NewBDF(4, rhs, newton, newVector(t), Options{})
	var ce *types.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}
