package timeint

import (
	"fmt"

	"github.com/notargets/mfdg/matrixfree"
)

// Restart holds what a time integrator needs to continue a run: the clock
// and opaque copies of the owned entries of its vectors, solution first.
// Writing it to storage is left to the caller.
type Restart struct {
	Time     float64
	TimeStep float64
	Step     int
	Vectors  [][]float64
}

func (r Restart) restore(v *matrixfree.Vector, i int) error {
	if i >= len(r.Vectors) {
		return fmt.Errorf("restart: vector %d missing, snapshot has %d", i, len(r.Vectors))
	}
	if len(r.Vectors[i]) != len(v.Owned()) {
		return fmt.Errorf("restart: vector %d has %d entries, expected %d", i, len(r.Vectors[i]), len(v.Owned()))
	}
	copy(v.Owned(), r.Vectors[i])
	v.InvalidateGhosts()
	return nil
}
