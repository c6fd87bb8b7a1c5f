package coupling

import (
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/notargets/mfdg/mesh"
)

// indexedCell is an owned source cell in the search tree. The tree indexes
// the first two coordinates; the third is checked by the exact test.
type indexedCell struct {
	geom.Polygonal
	local int
	cell  *mesh.Cell
}

func planar(x []float64, i int) float64 {
	if i < len(x) {
		return x[i]
	}
	return 0
}

func newCellTree(m *mesh.Partition) (tree *rtree.Rtree) {
	tree = rtree.NewTree(25, 50)
	for l := range m.Owned {
		c := &m.Owned[l]
		x0, y0 := planar(c.Lo, 0), planar(c.Lo, 1)
		x1, y1 := planar(c.Hi, 0), planar(c.Hi, 1)
		tree.Insert(&indexedCell{
			Polygonal: geom.Polygon{{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}},
			local:     l,
			cell:      c,
		})
	}
	return
}

func pointBounds(x []float64, tol float64) *geom.Bounds {
	px, py := planar(x, 0), planar(x, 1)
	return &geom.Bounds{
		Min: geom.Point{X: px - tol, Y: py - tol},
		Max: geom.Point{X: px + tol, Y: py + tol},
	}
}

// ownsPoint is the half-open containment test lo-tol <= x < hi-tol, closed
// at the high side of the domain so that boundary points have an owner.
func ownsPoint(m *mesh.Partition, c *mesh.Cell, x []float64, tol float64) bool {
	for d := range x {
		if x[d] < c.Lo[d]-tol {
			return false
		}
		if x[d] >= c.Hi[d]-tol {
			if !m.IsDomainBoundary(d, c.Hi[d], tol) || x[d] > c.Hi[d]+tol {
				return false
			}
		}
	}
	return true
}

// findOwners returns the owned cells of m that contain x.
func findOwners(tree *rtree.Rtree, m *mesh.Partition, x []float64, tol float64) (owners []*indexedCell) {
	for _, g := range tree.SearchIntersect(pointBounds(x, tol)) {
		ic := g.(*indexedCell)
		if ownsPoint(m, ic.cell, x, tol) {
			owners = append(owners, ic)
		}
	}
	return
}

// referenceCoordinates maps x into [-1,1]^dim of cell c.
func referenceCoordinates(c *mesh.Cell, x []float64, r []float64) {
	for d := range x {
		r[d] = min(1, max(-1, 2*(x[d]-c.Lo[d])/c.Size(d)-1))
	}
}
