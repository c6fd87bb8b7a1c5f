package Advection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/mfdg/comm"
)

func TestAdvection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FinalTime, cfg.OutputInterval = 0.1, 0.05
	a, err := New(comm.Serial(), cfg)
	require.NoError(t, err)
	res, err := a.Run()
	require.NoError(t, err)
	assert.Equal(t, 200, res.Steps)
	assert.Less(t, res.L2Error, 5e-3)
	assert.Len(t, res.Samples, 3)

	cfg.Velocity = []float64{1}
	_, err = New(comm.Serial(), cfg)
	assert.Error(t, err)
}

func TestAdvectionDistributed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CellsPerDir, cfg.FinalTime, cfg.Degree = 4, 0.05, 2
	a, err := New(comm.Serial(), cfg)
	require.NoError(t, err)
	serial, err := a.Run()
	require.NoError(t, err)
	w := comm.NewWorld(4)
	require.NoError(t, w.Run(func(c *comm.Comm) error {
		a, err := New(c, cfg)
		if err != nil {
			return err
		}
		res, err := a.Run()
		if err != nil {
			return err
		}
		assert.Equal(t, serial.Steps, res.Steps)
		assert.InDelta(t, serial.L2Error, res.L2Error, 1e-12)
		return nil
	}))
}
