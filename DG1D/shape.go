package DG1D

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Shape1D collects the 1D matrices of the tensor product evaluation of a
// degree N nodal basis against an NQ point Gauss rule. Dense matrices are
// stored row-major, rows index quadrature points.
type Shape1D struct {
	N, NQ           int // NQ quadrature points, N+1 basis functions
	Points, Weights []float64
	Values          []float64    // NQ x (N+1)
	Gradients       []float64    // NQ x (N+1)
	FaceValues      [2][]float64 // basis at r=-1 and r=+1
	FaceGradients   [2][]float64
	ValuesInverse   []float64 // (N+1) x (N+1), only when NQ == N+1
	ValuesInverseT  []float64
	Basis           *Lagrange1D
}

func NewShape1D(N, NQ int) (s *Shape1D, err error) {
	if NQ < 1 {
		err = fmt.Errorf("quadrature needs at least one point, have %d", NQ)
		return
	}
	s = &Shape1D{N: N, NQ: NQ}
	if s.Basis, err = NewLagrange1D(N); err != nil {
		return
	}
	s.Points, s.Weights = JacobiGQ(0, 0, NQ-1)
	s.Values = rawRows(s.Basis.Interpolation(s.Points))
	s.Gradients = rawRows(s.Basis.Differentiation(s.Points))
	ends := []float64{-1, 1}
	ev := rawRows(s.Basis.Interpolation(ends))
	eg := rawRows(s.Basis.Differentiation(ends))
	for side := 0; side < 2; side++ {
		s.FaceValues[side] = ev[side*(N+1) : (side+1)*(N+1)]
		s.FaceGradients[side] = eg[side*(N+1) : (side+1)*(N+1)]
	}
	if NQ == N+1 {
		var inv mat.Dense
		if err = inv.Inverse(mat.NewDense(NQ, NQ, s.Values)); err != nil {
			err = fmt.Errorf("shape value matrix of degree %d is singular: %w", N, err)
			return
		}
		s.ValuesInverse = rawRows(&inv)
		s.ValuesInverseT = rawRows(mat.DenseCopyOf(inv.T()))
	}
	return
}

func rawRows(m *mat.Dense) (data []float64) {
	r, c := m.Dims()
	data = make([]float64, r*c)
	for i := 0; i < r; i++ {
		copy(data[i*c:(i+1)*c], m.RawRowView(i))
	}
	return
}
