package InputParameters

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/notargets/mfdg/bench"
	"github.com/notargets/mfdg/types"
)

func TestParameters(t *testing.T) {
	{ // Defaults are valid
		ip := Defaults()
		assert.NoError(t, ip.Validate())
		assert.InDelta(t, 0.3, ip.Overset.Shift, 1e-15)
	}
	{ // Keys absent from the file keep their defaults
		ip := Defaults()
		input := `
########################################
Title: "Sweep"
Ranks: 4
Bench:
  Operator: InverseMassMatrix
  MinDegree: 2
  MaxDegree: 4
  MinimumWallTime: 0.5
Advect:
  Dim: 3
  Velocity: [1, 0, -1]
  Integrator: ssprk3
########################################
`
		require.NoError(t, ip.Parse([]byte(input)))
		assert.Equal(t, "Sweep", ip.Title)
		assert.Equal(t, 4, ip.Ranks)
		assert.Equal(t, "InverseMassMatrix", ip.Bench.Operator)
		assert.Equal(t, 3, ip.Bench.Dim)
		assert.Equal(t, 100, ip.Bench.InnerRepetitions)
		assert.Equal(t, []float64{1, 0, -1}, ip.Advect.Velocity)
		assert.Equal(t, 3, ip.Overset.Degree)
		require.NoError(t, ip.Validate())

		cfg, cells, err := ip.BenchConfig()
		require.NoError(t, err)
		assert.Equal(t, bench.InverseMassMatrix, cfg.Operator)
		assert.Equal(t, 4, cfg.Ranks)
		assert.Equal(t, 500*time.Millisecond, cfg.MinimumWallTime)
		// 800000 DoFs over 3 components of 27 nodes per cell
		assert.Equal(t, 21, cells(2))
		assert.True(t, cells(4) < cells(2))

		ac := ip.AdvectConfig()
		assert.Equal(t, 3, ac.Dim)
		assert.Equal(t, "ssprk3", ac.Integrator)
	}
	{ // Every problem is reported, each as a configuration error
		ip := Defaults()
		ip.Ranks = 0
		ip.Bench.Operator = "Laplace"
		ip.Overset.Shift = 1.5
		ip.Advect.Velocity = []float64{1}
		err := ip.Validate()
		require.Error(t, err)
		errs := multierr.Errors(err)
		assert.Len(t, errs, 4)
		for _, e := range errs {
			var ce *types.ConfigurationError
			assert.True(t, errors.As(e, &ce))
		}
	}
	{
		ip := Defaults()
		ip.Overset.Shift = 0.25
		oc := ip.OversetConfig()
		assert.Equal(t, []float64{0.25, 0}, oc.Domains[1].Lo)
		assert.Equal(t, []float64{1.25, 1}, oc.Domains[1].Hi)
		// Defaults are not shared between calls
		assert.Equal(t, 0.3, Defaults().OversetConfig().Domains[1].Lo[0])
	}
	{
		var buf bytes.Buffer
		Defaults().Fprint(&buf)
		assert.Contains(t, buf.String(), "= Bench Operator")
		assert.Contains(t, buf.String(), "[1,0.5]")
	}
}
