package matrixfree

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Vector is a distributed field vector. Data holds one block per local cell,
// owned cells first and ghost cells after them; inside a block the layout is
// component major, then lexicographic node index with x fastest.
//
// Ghost blocks are valid only between UpdateGhostValues and the next write to
// owned entries. Loops accumulate into ghost blocks of dst, which CompressAdd
// sends back to their owners.
type Vector struct {
	ctx         *Context
	field       FieldID
	Data        []float64
	blockSize   int
	nOwned      int // owned entries
	ghostsValid bool
}

func (ctx *Context) NewVector(f FieldID) *Vector {
	ctx.mustBeFinalized()
	bs := ctx.fields[f].blockSize
	return &Vector{
		ctx:       ctx,
		field:     f,
		Data:      make([]float64, ctx.mesh.NumLocal()*bs),
		blockSize: bs,
		nOwned:    ctx.mesh.NumOwned() * bs,
	}
}

func (v *Vector) Field() FieldID { return v.field }

func (v *Vector) Context() *Context { return v.ctx }

// Owned returns the owned entries. Writing through it invalidates ghosts the
// same way the vector operations do; call InvalidateGhosts after doing so.
func (v *Vector) Owned() []float64 { return v.Data[:v.nOwned] }

func (v *Vector) Block(local int) []float64 {
	return v.Data[local*v.blockSize : (local+1)*v.blockSize]
}

func (v *Vector) GhostsValid() bool { return v.ghostsValid }

func (v *Vector) InvalidateGhosts() { v.ghostsValid = false }

// UpdateGhostValues imports owned values of other ranks into the ghost
// blocks. Collective.
func (v *Vector) UpdateGhostValues() {
	v.ctx.exchange.importGhosts(v.ctx.comm, v.Data, v.blockSize)
	v.ghostsValid = true
}

// CompressAdd adds ghost contributions into their owners and zeroes the
// ghost blocks. Collective.
func (v *Vector) CompressAdd() {
	v.ctx.exchange.compressAdd(v.ctx.comm, v.Data, v.blockSize)
	v.ghostsValid = false
}

func (v *Vector) ZeroGhosts() {
	for i := v.nOwned; i < len(v.Data); i++ {
		v.Data[i] = 0
	}
	v.ghostsValid = false
}

func (v *Vector) checkCompatible(w *Vector) {
	if v.ctx != w.ctx || v.field != w.field {
		panic(fmt.Sprintf("matrixfree: vectors of field %d and %d are not compatible", v.field, w.field))
	}
}

// Set assigns a to every entry, ghosts included.
func (v *Vector) Set(a float64) *Vector {
	for i := range v.Data {
		v.Data[i] = a
	}
	v.ghostsValid = false
	return v
}

func (v *Vector) Copy(w *Vector) *Vector {
	v.checkCompatible(w)
	copy(v.Data[:v.nOwned], w.Data[:w.nOwned])
	v.ghostsValid = false
	return v
}

func (v *Vector) Clone() (w *Vector) {
	w = v.ctx.NewVector(v.field)
	copy(w.Data, v.Data)
	w.ghostsValid = v.ghostsValid
	return
}

func (v *Vector) Scale(a float64) *Vector {
	floats.Scale(a, v.Data[:v.nOwned])
	v.ghostsValid = false
	return v
}

// Axpy computes v += a*w on owned entries.
func (v *Vector) Axpy(a float64, w *Vector) *Vector {
	v.checkCompatible(w)
	floats.AddScaled(v.Data[:v.nOwned], a, w.Data[:w.nOwned])
	v.ghostsValid = false
	return v
}

// Sadd computes v = s*v + a*w on owned entries.
func (v *Vector) Sadd(s, a float64, w *Vector) *Vector {
	v.checkCompatible(w)
	for i, val := range w.Data[:w.nOwned] {
		v.Data[i] = s*v.Data[i] + a*val
	}
	v.ghostsValid = false
	return v
}

// Dot is the global inner product. Collective.
func (v *Vector) Dot(w *Vector) float64 {
	v.checkCompatible(w)
	return v.ctx.comm.AllReduceSum(floats.Dot(v.Data[:v.nOwned], w.Data[:w.nOwned]))
}

func (v *Vector) Norm2() float64 {
	return math.Sqrt(v.Dot(v))
}

func (v *Vector) NormInf() float64 {
	var mx float64
	for _, val := range v.Data[:v.nOwned] {
		mx = max(mx, math.Abs(val))
	}
	return v.ctx.comm.AllReduceMax(mx)
}

// ComponentSum adds all owned entries of one component over every rank.
func (v *Vector) ComponentSum(comp int) float64 {
	var (
		nodes = v.ctx.fields[v.field].nodes
		sum   float64
	)
	for l := 0; l < v.ctx.mesh.NumOwned(); l++ {
		sum += floats.Sum(v.Block(l)[comp*nodes : (comp+1)*nodes])
	}
	return v.ctx.comm.AllReduceSum(sum)
}

// Interpolate sets every owned entry to fn evaluated at its support point.
func (v *Vector) Interpolate(fn func(x []float64, comp int) float64) *Vector {
	var (
		fld = &v.ctx.fields[v.field]
		x   = make([]float64, v.ctx.dim)
	)
	for l := 0; l < v.ctx.mesh.NumOwned(); l++ {
		block := v.Block(l)
		for i := 0; i < fld.nodes; i++ {
			v.ctx.NodalPoint(v.field, l, i, x)
			for c := 0; c < fld.layout.Components; c++ {
				block[c*fld.nodes+i] = fn(x, c)
			}
		}
	}
	v.ghostsValid = false
	return v
}

// Gather assembles the global vector on every rank, blocks ordered by global
// cell id. Collective.
func (v *Vector) Gather() (global []float64) {
	var (
		c      = v.ctx.comm
		m      = v.ctx.mesh
		ids    = make([]int, m.NumOwned())
		parts  = c.AllGatherFloats(v.Data[:v.nOwned])
		bs     = v.blockSize
		idSets [][]int
	)
	for i := range m.Owned {
		ids[i] = m.Owned[i].ID
	}
	idSets = c.AllGatherInts(ids)
	global = make([]float64, m.TotalCells*bs)
	for r, set := range idSets {
		for i, id := range set {
			copy(global[id*bs:(id+1)*bs], parts[r][i*bs:(i+1)*bs])
		}
	}
	return
}
