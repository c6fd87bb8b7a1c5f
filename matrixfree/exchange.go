package matrixfree

import (
	"fmt"

	"github.com/notargets/mfdg/comm"
	"github.com/notargets/mfdg/mesh"
	"github.com/notargets/mfdg/types"
)

// peerCells lists local cells exchanged with one remote rank, in the order
// both sides agree on (ascending global id).
type peerCells struct {
	rank  int
	cells []int
}

// exchangeSchedule is cell based; a field scales it by its block size.
type exchangeSchedule struct {
	sends []peerCells // owned cells held as ghosts elsewhere
	recvs []peerCells // ghost cells and their owners
}

func buildSchedule(c *comm.Comm, m *mesh.Partition) (s *exchangeSchedule, err error) {
	s = &exchangeSchedule{}
	needs := make(map[int][]int)
	needLocal := make(map[int][]int)
	for i, g := range m.Ghosts {
		needs[g.Owner] = append(needs[g.Owner], g.ID)
		needLocal[g.Owner] = append(needLocal[g.Owner], m.NumOwned()+i)
	}
	for r := 0; r < c.Size(); r++ {
		if r != c.Rank() {
			c.Send(r, tagSchedule, needs[r])
		}
	}
	var bad error
	for r := 0; r < c.Size(); r++ {
		if r == c.Rank() {
			if len(needs[r]) != 0 {
				bad = &types.PartitionError{Rank: r, CellID: needs[r][0], Reason: "ghost cell owned by this rank"}
			}
			continue
		}
		ids := c.RecvInts(r, tagSchedule)
		if len(ids) > 0 {
			p := peerCells{rank: r, cells: make([]int, len(ids))}
			for i, id := range ids {
				l, ok := m.Local(id)
				if !ok || l >= m.NumOwned() {
					bad = &types.PartitionError{Rank: c.Rank(), CellID: id,
						Reason: fmt.Sprintf("rank %d expects this rank to own the cell", r)}
					continue
				}
				p.cells[i] = l
			}
			s.sends = append(s.sends, p)
		}
		if len(needs[r]) > 0 {
			s.recvs = append(s.recvs, peerCells{rank: r, cells: needLocal[r]})
		}
	}
	var flag float64
	if bad != nil {
		flag = 1
	}
	if c.AllReduceMax(flag) > 0 {
		if bad == nil {
			bad = &types.PartitionError{Rank: c.Rank(), CellID: -1, Reason: "ghost schedule failed on another rank"}
		}
		err = bad
	}
	return
}

// importGhosts copies owned blocks into the ghost blocks of other ranks.
func (s *exchangeSchedule) importGhosts(c *comm.Comm, data []float64, bs int) {
	for _, p := range s.sends {
		buf := make([]float64, len(p.cells)*bs)
		for i, l := range p.cells {
			copy(buf[i*bs:(i+1)*bs], data[l*bs:(l+1)*bs])
		}
		c.Send(p.rank, tagImport, buf)
	}
	for _, p := range s.recvs {
		buf := c.RecvFloats(p.rank, tagImport)
		for i, l := range p.cells {
			copy(data[l*bs:(l+1)*bs], buf[i*bs:(i+1)*bs])
		}
	}
}

// compressAdd adds ghost blocks into their owners and clears them.
func (s *exchangeSchedule) compressAdd(c *comm.Comm, data []float64, bs int) {
	for _, p := range s.recvs {
		buf := make([]float64, len(p.cells)*bs)
		for i, l := range p.cells {
			block := data[l*bs : (l+1)*bs]
			copy(buf[i*bs:(i+1)*bs], block)
			for j := range block {
				block[j] = 0
			}
		}
		c.Send(p.rank, tagCompress, buf)
	}
	for _, p := range s.sends {
		buf := c.RecvFloats(p.rank, tagCompress)
		for i, l := range p.cells {
			block := data[l*bs : (l+1)*bs]
			for j := range block {
				block[j] += buf[i*bs+j]
			}
		}
	}
}
