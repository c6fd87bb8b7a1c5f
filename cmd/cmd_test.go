package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommands(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "mfdg.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
Title: "small overset"
Overset:
  Degree: 2
  CellsPerDir: 4
  MaxCouplingIterations: 2
`), 0644))
	{ // File values are kept, flags override them
		rootCmd.SetArgs([]string{"overset", "--config", cfg, "--tolerance", "0", "--cells", "3"})
		require.NoError(t, rootCmd.Execute())
		ip, err := loadParameters()
		require.NoError(t, err)
		assert.Equal(t, "small overset", ip.Title)
		assert.Equal(t, 2, ip.Overset.Degree)
		assert.Equal(t, 3, ip.Overset.CellsPerDir)
		assert.Equal(t, 0., ip.Overset.CouplingTolerance)
		assert.Equal(t, 2, ip.Overset.MaxCouplingIterations)
	}
	{ // Invalid settings fail before anything runs
		rootCmd.SetArgs([]string{"advect", "--config", cfg, "--integrator", "RK9"})
		assert.Error(t, rootCmd.Execute())
	}
	{
		rootCmd.SetArgs([]string{"bench", "--config", cfg, "--profile", "gpu"})
		assert.Error(t, rootCmd.Execute())
	}
}
