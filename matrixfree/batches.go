package matrixfree

import (
	"sort"

	"github.com/notargets/mfdg/types"
)

// CellBatch groups up to W owned cells processed together, one per lane.
// Lanes at or beyond N are padding: Cells holds -1 there and nothing is
// written back for them.
type CellBatch struct {
	Cells []int // local cell index per lane
	N     int
}

// FaceBatch groups faces that share an orientation. Interior batches hold
// the minus cell, whose high face in direction Dir is the shared face, and
// the plus cell across it. Boundary batches share face number and boundary
// id and have no plus side.
type FaceBatch struct {
	Interior bool
	Face     int // face number on the minus cell
	Boundary types.BoundaryID
	Minus    []int
	Plus     []int
	N        int
}

func (fb *FaceBatch) Dir() int { return fb.Face / 2 }

// Side is 1 when the outward normal of the minus cell points along +Dir.
func (fb *FaceBatch) Side() int { return fb.Face % 2 }

func (ctx *Context) buildBatches() {
	var (
		W      = ctx.opts.Lanes
		m      = ctx.mesh
		nOwned = m.NumOwned()
	)
	ctx.cellBatches = nil
	for start := 0; start < nOwned; start += W {
		cb := CellBatch{Cells: make([]int, W)}
		for l := 0; l < W; l++ {
			if start+l < nOwned {
				cb.Cells[l] = start + l
				cb.N++
			} else {
				cb.Cells[l] = -1
			}
		}
		ctx.cellBatches = append(ctx.cellBatches, cb)
	}

	// Interior faces are visited from their minus cell, so the rank owning
	// that cell is the only one processing the face.
	interior := make([][][2]int, ctx.dim)
	type bkey struct {
		face int
		id   types.BoundaryID
	}
	boundary := make(map[bkey][]int)
	for l := 0; l < nOwned; l++ {
		c := &m.Owned[l]
		for f, nb := range c.Neighbor {
			if nb < 0 {
				k := bkey{f, c.Boundary[f]}
				boundary[k] = append(boundary[k], l)
				continue
			}
			if f%2 == 1 {
				p, _ := m.Local(nb)
				interior[f/2] = append(interior[f/2], [2]int{l, p})
			}
		}
	}
	ctx.faceBatches = nil
	for d := 0; d < ctx.dim; d++ {
		faces := interior[d]
		for start := 0; start < len(faces); start += W {
			fb := FaceBatch{
				Interior: true,
				Face:     2*d + 1,
				Boundary: types.NoBoundary,
				Minus:    make([]int, W),
				Plus:     make([]int, W),
			}
			for l := 0; l < W; l++ {
				if start+l < len(faces) {
					fb.Minus[l], fb.Plus[l] = faces[start+l][0], faces[start+l][1]
					fb.N++
				} else {
					fb.Minus[l], fb.Plus[l] = -1, -1
				}
			}
			ctx.faceBatches = append(ctx.faceBatches, fb)
		}
	}
	ctx.nInteriorBatches = len(ctx.faceBatches)
	keys := make([]bkey, 0, len(boundary))
	for k := range boundary {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].face != keys[j].face {
			return keys[i].face < keys[j].face
		}
		return keys[i].id < keys[j].id
	})
	for _, k := range keys {
		cells := boundary[k]
		for start := 0; start < len(cells); start += W {
			fb := FaceBatch{
				Face:     k.face,
				Boundary: k.id,
				Minus:    make([]int, W),
			}
			for l := 0; l < W; l++ {
				if start+l < len(cells) {
					fb.Minus[l] = cells[start+l]
					fb.N++
				} else {
					fb.Minus[l] = -1
				}
			}
			ctx.faceBatches = append(ctx.faceBatches, fb)
		}
	}
}
