package DG1D

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/integrate/quad"
)

func TestJacobi(t *testing.T) {
	{ // Gauss-Lobatto nodes of degree 3
		x := JacobiGL(0, 0, 3)
		assert.InDeltaSlice(t, []float64{-1, -0.4472135955, 0.4472135955, 1}, x, 1.e-9)
	}
	{ // Gauss points and weights agree with gonum's Legendre rule
		for n := 1; n < 9; n++ {
			x, w := JacobiGQ(0, 0, n-1)
			xg := make([]float64, n)
			wg := make([]float64, n)
			quad.Legendre{}.FixedLocations(xg, wg, -1, 1)
			sort.Sort(byNode{xg, wg})
			assert.InDeltaSlice(t, xg, x, 1.e-12)
			assert.InDeltaSlice(t, wg, w, 1.e-12)
		}
	}
	{ // Orthonormality of the Legendre basis under the Gauss rule
		x, w := JacobiGQ(0, 0, 6)
		for i := 0; i < 5; i++ {
			pi := JacobiP(x, 0, 0, i)
			for j := 0; j < 5; j++ {
				pj := JacobiP(x, 0, 0, j)
				var sum float64
				for q := range x {
					sum += w[q] * pi[q] * pj[q]
				}
				if i == j {
					assert.InDelta(t, 1., sum, 1.e-12)
				} else {
					assert.InDelta(t, 0., sum, 1.e-12)
				}
			}
		}
	}
}

func TestShape1D(t *testing.T) {
	{ // Lagrange basis is a partition of unity and exact for polynomials
		N := 4
		s, err := NewShape1D(N, 6)
		require.NoError(t, err)
		nodal := make([]float64, N+1)
		for i, r := range s.Basis.Nodes {
			nodal[i] = r*r*r - 2*r
		}
		for q, r := range s.Points {
			var one, val, der float64
			for i := 0; i <= N; i++ {
				one += s.Values[q*(N+1)+i]
				val += s.Values[q*(N+1)+i] * nodal[i]
				der += s.Gradients[q*(N+1)+i] * nodal[i]
			}
			assert.InDelta(t, 1., one, 1.e-12)
			assert.InDelta(t, r*r*r-2*r, val, 1.e-12)
			assert.InDelta(t, 3*r*r-2, der, 1.e-11)
		}
		// Face values are the unit vectors on Gauss-Lobatto nodes
		assert.InDelta(t, 1., s.FaceValues[0][0], 1.e-12)
		assert.InDelta(t, 1., s.FaceValues[1][N], 1.e-12)
		assert.InDelta(t, 0., s.FaceValues[1][0], 1.e-12)
		assert.Nil(t, s.ValuesInverse)
	}
	{ // Square shape matrices are invertible
		N := 3
		s, err := NewShape1D(N, N+1)
		require.NoError(t, err)
		n := N + 1
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				var sum, sumT float64
				for k := 0; k < n; k++ {
					sum += s.ValuesInverse[i*n+k] * s.Values[k*n+j]
					sumT += s.ValuesInverseT[i*n+k] * s.Values[j*n+k]
				}
				if i == j {
					assert.InDelta(t, 1., sum, 1.e-12)
					assert.InDelta(t, 1., sumT, 1.e-12)
				} else {
					assert.InDelta(t, 0., sum, 1.e-12)
					assert.InDelta(t, 0., sumT, 1.e-12)
				}
			}
		}
	}
	{ // Point evaluation matches the interpolation matrix
		l, err := NewLagrange1D(5)
		require.NoError(t, err)
		vals := make([]float64, 6)
		l.Values(0.3, vals)
		I := l.Interpolation([]float64{0.3})
		for i := range vals {
			assert.InDelta(t, I.At(0, i), vals[i], 1.e-13)
		}
		var sum float64
		for i := range vals {
			sum += vals[i] * math.Sin(l.Nodes[i])
		}
		assert.InDelta(t, math.Sin(0.3), sum, 1.e-4)
	}
	{
		_, err := NewLagrange1D(0)
		assert.Error(t, err)
	}
}

type byNode struct{ x, w []float64 }

func (b byNode) Len() int           { return len(b.x) }
func (b byNode) Less(i, j int) bool { return b.x[i] < b.x[j] }
func (b byNode) Swap(i, j int) {
	b.x[i], b.x[j] = b.x[j], b.x[i]
	b.w[i], b.w[j] = b.w[j], b.w[i]
}
