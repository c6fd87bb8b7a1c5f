package mesh

import (
	"fmt"
	"sort"

	"github.com/notargets/mfdg/types"
	"github.com/notargets/mfdg/utils"
)

// Cell is an axis aligned box cell. Face f = 2*dir + side has neighbor
// Neighbor[f] (global id, -1 on a boundary) and boundary id Boundary[f]
// (types.NoBoundary on interior and periodic faces).
type Cell struct {
	ID       int
	Owner    int
	Lo, Hi   []float64
	Neighbor []int
	Boundary []types.BoundaryID
}

func (c *Cell) Dim() int { return len(c.Lo) }

func (c *Cell) Size(dir int) float64 { return c.Hi[dir] - c.Lo[dir] }

func (c *Cell) Volume() (v float64) {
	v = 1
	for d := range c.Lo {
		v *= c.Size(d)
	}
	return
}

// FaceArea is the measure of face f; 1 in one dimension.
func (c *Cell) FaceArea(f int) (a float64) {
	a = 1
	for d := range c.Lo {
		if d != f/2 {
			a *= c.Size(d)
		}
	}
	return
}

func (c *Cell) Center() (x []float64) {
	x = make([]float64, len(c.Lo))
	for d := range x {
		x[d] = 0.5 * (c.Lo[d] + c.Hi[d])
	}
	return
}

// Partition is the view of a distributed mesh held by one rank: the cells it
// owns and a ghost layer of off-rank cells. It is immutable once built.
type Partition struct {
	Dim, Rank, Size int
	Owned, Ghosts   []Cell // both sorted by ID
	GhostLayers     int
	Periodic        []bool
	TotalCells      int
	DomainLo        []float64
	DomainHi        []float64
	local           map[int]int
}

func (p *Partition) NumOwned() int { return len(p.Owned) }

func (p *Partition) NumLocal() int { return len(p.Owned) + len(p.Ghosts) }

// Local returns the local index of a global cell: owned cells first, then
// ghosts.
func (p *Partition) Local(id int) (local int, ok bool) {
	local, ok = p.local[id]
	return
}

// LocalCell returns the cell at a local index.
func (p *Partition) LocalCell(local int) *Cell {
	if local < len(p.Owned) {
		return &p.Owned[local]
	}
	return &p.Ghosts[local-len(p.Owned)]
}

// IsDomainBoundary reports whether x lies on the high side of the global
// bounding box in direction dir, within tol.
func (p *Partition) IsDomainBoundary(dir int, x, tol float64) bool {
	return x >= p.DomainHi[dir]-tol
}

// NewPartitionFromCells builds the view of rank from the full list of global
// cells. Ghost cells are the off-rank cells within ghostLayers face hops of an
// owned cell.
func NewPartitionFromCells(dim, rank, size int, cells []Cell, ghostLayers int) (p *Partition, err error) {
	if dim < 1 || dim > 3 {
		err = types.NewConfigurationError("mesh", "dimension must be 1, 2 or 3, have %d", dim)
		return
	}
	if size < 1 || rank < 0 || rank >= size {
		err = types.NewConfigurationError("mesh", "rank %d outside of %d ranks", rank, size)
		return
	}
	byID := make(map[int]*Cell, len(cells))
	for i := range cells {
		c := &cells[i]
		if len(c.Lo) != dim || len(c.Hi) != dim || len(c.Neighbor) != 2*dim || len(c.Boundary) != 2*dim {
			err = types.NewConfigurationError("mesh", "cell %d does not have dimension %d", c.ID, dim)
			return
		}
		for d := 0; d < dim; d++ {
			if !(c.Hi[d] > c.Lo[d]) {
				err = types.NewConfigurationError("mesh", "cell %d has an empty extent in direction %d", c.ID, d)
				return
			}
		}
		if _, dup := byID[c.ID]; dup {
			err = types.NewConfigurationError("mesh", "duplicate cell id %d", c.ID)
			return
		}
		byID[c.ID] = c
	}
	p = &Partition{
		Dim:         dim,
		Rank:        rank,
		Size:        size,
		GhostLayers: ghostLayers,
		Periodic:    make([]bool, dim),
		TotalCells:  len(cells),
		DomainLo:    make([]float64, dim),
		DomainHi:    make([]float64, dim),
		local:       make(map[int]int),
	}
	for d := 0; d < dim; d++ {
		p.DomainLo[d], p.DomainHi[d] = cells[0].Lo[d], cells[0].Hi[d]
	}
	var front []int
	for i := range cells {
		c := &cells[i]
		for d := 0; d < dim; d++ {
			p.DomainLo[d] = min(p.DomainLo[d], c.Lo[d])
			p.DomainHi[d] = max(p.DomainHi[d], c.Hi[d])
		}
		if c.Owner == rank {
			p.Owned = append(p.Owned, *c)
			front = append(front, c.ID)
		}
	}
	ghosts := make(map[int]bool)
	for layer := 0; layer < ghostLayers; layer++ {
		var next []int
		for _, id := range front {
			for _, nb := range byID[id].Neighbor {
				if nb < 0 {
					continue
				}
				nc, ok := byID[nb]
				if !ok {
					err = types.NewConfigurationError("mesh", "cell %d references missing neighbor %d", id, nb)
					return
				}
				if nc.Owner != rank && !ghosts[nb] {
					ghosts[nb] = true
					next = append(next, nb)
				}
			}
		}
		front = next
	}
	for id := range ghosts {
		p.Ghosts = append(p.Ghosts, *byID[id])
	}
	sort.Slice(p.Owned, func(i, j int) bool { return p.Owned[i].ID < p.Owned[j].ID })
	sort.Slice(p.Ghosts, func(i, j int) bool { return p.Ghosts[i].ID < p.Ghosts[j].ID })
	for i := range p.Owned {
		p.local[p.Owned[i].ID] = i
	}
	for i := range p.Ghosts {
		p.local[p.Ghosts[i].ID] = len(p.Owned) + i
	}
	return
}

// BoxConfig describes a structured hyper-rectangle mesh.
type BoxConfig struct {
	CellsPerDir []int
	Lo, Hi      []float64
	Periodic    []bool
	GhostLayers int
}

func (bc BoxConfig) Validate() error {
	dim := len(bc.CellsPerDir)
	if dim < 1 || dim > 3 {
		return types.NewConfigurationError("mesh", "box mesh dimension must be 1, 2 or 3, have %d", dim)
	}
	if len(bc.Lo) != dim || len(bc.Hi) != dim {
		return types.NewConfigurationError("mesh", "box bounds must have %d coordinates", dim)
	}
	if bc.Periodic != nil && len(bc.Periodic) != dim {
		return types.NewConfigurationError("mesh", "periodicity must be given for %d directions", dim)
	}
	for d := 0; d < dim; d++ {
		if bc.CellsPerDir[d] < 1 {
			return types.NewConfigurationError("mesh", "need at least one cell in direction %d", d)
		}
		if !(bc.Hi[d] > bc.Lo[d]) {
			return types.NewConfigurationError("mesh", "empty box extent in direction %d", d)
		}
	}
	return nil
}

// BoxCells generates every cell of the box mesh, ids lexicographic with x
// fastest, distributed over size ranks in contiguous chunks.
func BoxCells(bc BoxConfig, size int) (cells []Cell, err error) {
	if err = bc.Validate(); err != nil {
		return
	}
	var (
		dim   = len(bc.CellsPerDir)
		total = 1
	)
	for _, n := range bc.CellsPerDir {
		total *= n
	}
	pm := utils.NewPartitionMap(size, total)
	cells = make([]Cell, total)
	idx := make([]int, dim)
	for id := 0; id < total; id++ {
		rem := id
		for d := 0; d < dim; d++ {
			idx[d] = rem % bc.CellsPerDir[d]
			rem /= bc.CellsPerDir[d]
		}
		owner, _, _ := pm.GetBucket(id)
		c := Cell{
			ID:       id,
			Owner:    owner,
			Lo:       make([]float64, dim),
			Hi:       make([]float64, dim),
			Neighbor: make([]int, 2*dim),
			Boundary: make([]types.BoundaryID, 2*dim),
		}
		stride := 1
		for d := 0; d < dim; d++ {
			n := bc.CellsPerDir[d]
			h := (bc.Hi[d] - bc.Lo[d]) / float64(n)
			c.Lo[d] = bc.Lo[d] + float64(idx[d])*h
			c.Hi[d] = bc.Lo[d] + float64(idx[d]+1)*h
			if idx[d] == n-1 {
				c.Hi[d] = bc.Hi[d]
			}
			periodic := bc.Periodic != nil && bc.Periodic[d]
			for side := 0; side < 2; side++ {
				f := 2*d + side
				j := idx[d] + 2*side - 1
				switch {
				case j >= 0 && j < n:
					c.Neighbor[f] = id + (j-idx[d])*stride
					c.Boundary[f] = types.NoBoundary
				case periodic:
					j = (j + n) % n
					c.Neighbor[f] = id + (j-idx[d])*stride
					c.Boundary[f] = types.NoBoundary
				default:
					c.Neighbor[f] = -1
					c.Boundary[f] = types.BoundaryID(f)
				}
			}
			stride *= n
		}
		cells[id] = c
	}
	return
}

// NewBox builds the partition of a structured box mesh held by rank.
func NewBox(bc BoxConfig, rank, size int) (p *Partition, err error) {
	var cells []Cell
	if cells, err = BoxCells(bc, size); err != nil {
		return
	}
	if p, err = NewPartitionFromCells(len(bc.CellsPerDir), rank, size, cells, bc.GhostLayers); err != nil {
		return
	}
	if bc.Periodic != nil {
		copy(p.Periodic, bc.Periodic)
	}
	return
}

func (p *Partition) String() string {
	return fmt.Sprintf("rank %d/%d: %d owned, %d ghost cells of %d", p.Rank, p.Size,
		len(p.Owned), len(p.Ghosts), p.TotalCells)
}
