package matrixfree

import (
	"github.com/james-bowman/sparse"
)

// colorBatches assigns colors so that no two batches of a color touch the
// same cell. The conflict graph is the off-diagonal pattern of B*B^T with B
// the batch to cell incidence matrix. Colors come from a greedy pass in
// batch order, so the result is deterministic.
func colorBatches(nBatches, nCells int, touches func(b int, visit func(cell int))) (colors [][]int) {
	if nBatches == 0 || nCells == 0 {
		return
	}
	incidence := sparse.NewDOK(nBatches, nCells)
	for b := 0; b < nBatches; b++ {
		touches(b, func(cell int) {
			incidence.Set(b, cell, 1)
		})
	}
	B := incidence.ToCSR()
	conflicts := sparse.NewCSR(nBatches, nBatches, nil, nil, nil)
	conflicts.Mul(B, B.T())
	adjacent := make([][]int, nBatches)
	conflicts.DoNonZero(func(i, j int, v float64) {
		if i != j && v != 0 {
			adjacent[i] = append(adjacent[i], j)
		}
	})
	color := make([]int, nBatches)
	for b := range color {
		color[b] = -1
	}
	var used []bool
	for b := 0; b < nBatches; b++ {
		used = used[:0]
		for _, nb := range adjacent[b] {
			if c := color[nb]; c >= 0 {
				for len(used) <= c {
					used = append(used, false)
				}
				used[c] = true
			}
		}
		c := 0
		for c < len(used) && used[c] {
			c++
		}
		color[b] = c
		for len(colors) <= c {
			colors = append(colors, nil)
		}
		colors[c] = append(colors[c], b)
	}
	return
}
