package mesh

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/mfdg/types"
)

func TestBoxMesh(t *testing.T) {
	{ // Connectivity and boundary ids of a 3x2 box
		cells, err := BoxCells(BoxConfig{
			CellsPerDir: []int{3, 2},
			Lo:          []float64{0, 0},
			Hi:          []float64{3, 1},
		}, 1)
		require.NoError(t, err)
		require.Len(t, cells, 6)
		c := cells[4] // ix=1, iy=1
		assert.Equal(t, []float64{1, 0.5}, c.Lo)
		assert.Equal(t, []float64{2, 1}, c.Hi)
		assert.Equal(t, []int{3, 5, 1, -1}, c.Neighbor)
		assert.Equal(t, types.BoundaryID(3), c.Boundary[3])
		assert.Equal(t, types.NoBoundary, c.Boundary[0])
		assert.Equal(t, types.BoundaryID(0), cells[0].Boundary[0])
		assert.InDelta(t, 0.5, c.Volume(), 1.e-15)
		assert.InDelta(t, 0.5, c.FaceArea(0), 1.e-15)
		assert.InDelta(t, 1.0, c.FaceArea(2), 1.e-15)
	}
	{ // Periodic wrap
		cells, err := BoxCells(BoxConfig{
			CellsPerDir: []int{4, 1},
			Lo:          []float64{0, 0},
			Hi:          []float64{1, 1},
			Periodic:    []bool{true, true},
		}, 1)
		require.NoError(t, err)
		assert.Equal(t, []int{3, 1, 0, 0}, cells[0].Neighbor)
		assert.Equal(t, 0, cells[3].Neighbor[1])
		for f := 0; f < 4; f++ {
			assert.Equal(t, types.NoBoundary, cells[2].Boundary[f])
		}
	}
	{ // Partitioning with one ghost layer
		bc := BoxConfig{
			CellsPerDir: []int{4, 4},
			Lo:          []float64{0, 0},
			Hi:          []float64{1, 1},
			GhostLayers: 1,
		}
		var owned int
		for rank := 0; rank < 3; rank++ {
			p, err := NewBox(bc, rank, 3)
			require.NoError(t, err)
			owned += p.NumOwned()
			for i, c := range p.Owned {
				assert.Equal(t, rank, c.Owner)
				l, ok := p.Local(c.ID)
				assert.True(t, ok)
				assert.Equal(t, i, l)
				for _, nb := range c.Neighbor {
					if nb < 0 {
						continue
					}
					l, ok = p.Local(nb)
					assert.True(t, ok)
					assert.Equal(t, nb, p.LocalCell(l).ID)
				}
			}
			for _, g := range p.Ghosts {
				assert.NotEqual(t, rank, g.Owner)
			}
		}
		assert.Equal(t, 16, owned)
		p, err := NewBox(bc, 0, 3)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 0}, []int{int(p.DomainLo[0]), int(p.DomainLo[1])})
		assert.Equal(t, 6, p.NumOwned())
		assert.Equal(t, 4, len(p.Ghosts)) // ids 6, 7, 8, 9
	}
	{ // Invalid configurations
		_, err := NewBox(BoxConfig{CellsPerDir: []int{0, 2}, Lo: []float64{0, 0}, Hi: []float64{1, 1}}, 0, 1)
		var ce *types.ConfigurationError
		assert.True(t, errors.As(err, &ce))
		_, err = NewBox(BoxConfig{CellsPerDir: []int{2, 2}, Lo: []float64{0, 0}, Hi: []float64{1, 1}}, 3, 2)
		assert.True(t, errors.As(err, &ce))
	}
}
