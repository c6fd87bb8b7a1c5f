package postprocess

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/mfdg/comm"
	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/mesh"
)

func TestErrorCalculator(t *testing.T) {
	w := comm.NewWorld(2)
	require.NoError(t, w.Run(func(c *comm.Comm) error {
		bc := mesh.BoxConfig{
			CellsPerDir: []int{4, 3},
			Lo:          []float64{0, 0},
			Hi:          []float64{2, 1},
			Periodic:    []bool{false, false},
			GhostLayers: 1,
		}
		m, err := mesh.NewBox(bc, c.Rank(), c.Size())
		if err != nil {
			return err
		}
		ctx := matrixfree.New(c, m, matrixfree.Options{Lanes: 4, Threads: 2})
		f, err := ctx.RegisterField(matrixfree.FieldLayout{Name: "u", Components: 1, Degree: 2}, matrixfree.Constraints{})
		if err != nil {
			return err
		}
		q, err := ctx.RegisterQuadrature(matrixfree.NonlinearRule(2))
		if err != nil {
			return err
		}
		if err = ctx.Finalize(); err != nil {
			return err
		}
		exact := func(x []float64, t float64, comp int) float64 { return x[0]*x[1] + t }
		ec := NewErrorCalculator(ctx, f, q, exact, nil)
		ec.Interval = 0.5

		u := ctx.NewVector(f).Interpolate(func(x []float64, comp int) float64 { return x[0] * x[1] })
		require.NoError(t, ec.Process(u, 0))
		assert.InDelta(t, 0, ec.Samples[0].L2, 1e-13)

		u.Set(0)
		require.NoError(t, ec.Process(u, 0.25))
		assert.Len(t, ec.Samples, 1)
		require.NoError(t, ec.Process(u, 1))
		require.Len(t, ec.Samples, 2)
		// int over [0,2]x[0,1] of (xy+1)^2 = 8/9 + 2 + 2
		assert.InDelta(t, math.Sqrt(8./9+4), ec.Samples[1].L2, 1e-12)
		assert.InDelta(t, 1, ec.Samples[1].RelativeL2, 1e-14)
		return nil
	}))
}
