package DG1D

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// JacobiGL returns the N+1 Gauss-Lobatto nodes of the Jacobi polynomial
// P_N^(alpha,beta) on [-1,1], in ascending order.
func JacobiGL(alpha, beta float64, N int) (x []float64) {
	x = make([]float64, N+1)
	if N == 0 {
		return
	}
	x[0] = -1
	x[N] = 1
	if N == 1 {
		return
	}
	xint, _ := JacobiGQ(alpha+1, beta+1, N-2)
	copy(x[1:N], xint)
	return
}

// JacobiGQ returns the N+1 Gauss quadrature nodes and weights of the Jacobi
// weight (1-r)^alpha (1+r)^beta on [-1,1] from the eigen decomposition of
// the symmetric tridiagonal Jacobi matrix.
func JacobiGQ(alpha, beta float64, N int) (x, w []float64) {
	if N == 0 {
		x = []float64{-(alpha - beta) / (alpha + beta + 2.)}
		w = []float64{2.}
		return
	}
	h1 := make([]float64, N+1)
	for i := 0; i < N+1; i++ {
		h1[i] = 2*float64(i) + alpha + beta
	}
	// main diagonal: -1/2*(alpha^2-beta^2)./(h1+2)./h1
	JJ := mat.NewSymDense(N+1, nil)
	fac := -.5 * (alpha*alpha - beta*beta)
	for i := 0; i < N+1; i++ {
		val := h1[i]
		JJ.SetSym(i, i, fac/(val*(val+2.)))
	}
	// Handle division by zero
	if alpha+beta < 10*1.e-16 {
		JJ.SetSym(0, 0, 0.)
	}
	for i := 0; i < N; i++ {
		ip1 := float64(i + 1)
		val := h1[i]
		d1 := 2. / (val + 2.)
		d1 *= math.Sqrt(ip1 * (ip1 + alpha + beta) * (ip1 + alpha) * (ip1 + beta) / ((val + 1.) * (val + 3.)))
		JJ.SetSym(i, i+1, d1)
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(JJ, true); !ok {
		panic("eigenvalue decomposition failed")
	}
	x = eig.Values(nil)
	var VVr mat.Dense
	eig.VectorsTo(&VVr)
	w = make([]float64, N+1)
	g0 := gamma0(alpha, beta)
	for i := range w {
		v := VVr.At(0, i)
		w[i] = v * v * g0
	}
	return
}

// JacobiP evaluates the orthonormal Jacobi polynomial of order N at points r.
func JacobiP(r []float64, alpha, beta float64, N int) (p []float64) {
	var (
		Nc = len(r)
	)
	rg := 1. / math.Sqrt(gamma0(alpha, beta))
	pm1 := make([]float64, Nc)
	for i := range pm1 {
		pm1[i] = rg
	}
	if N == 0 {
		return pm1
	}
	ab := alpha + beta
	rg1 := 1. / math.Sqrt(gamma1(alpha, beta))
	pc := make([]float64, Nc)
	for i := range pc {
		pc[i] = rg1 * ((ab+2.0)*r[i]/2.0 + (alpha-beta)/2.0)
	}
	if N == 1 {
		return pc
	}
	a1 := alpha + 1.
	b1 := beta + 1.
	ab1 := ab + 1.
	aold := 2.0 * math.Sqrt(a1*b1/(ab+3.0)) / (ab + 2.0)
	for i := 0; i < N-1; i++ {
		ip1 := float64(i + 1)
		ip2 := ip1 + 1
		h1 := 2.0*ip1 + ab
		anew := 2.0 / (h1 + 2.0) * math.Sqrt(ip2*(ip1+ab1)*(ip1+a1)*(ip1+b1)/(h1+1.0)/(h1+3.0))
		bnew := -(alpha*alpha - beta*beta) / h1 / (h1 + 2.0)
		next := make([]float64, Nc)
		for j := range next {
			next[j] = (-aold*pm1[j] + (r[j]-bnew)*pc[j]) / anew
		}
		pm1, pc = pc, next
		aold = anew
	}
	return pc
}

func GradJacobiP(r []float64, alpha, beta float64, N int) (p []float64) {
	if N == 0 {
		p = make([]float64, len(r))
		return
	}
	p = JacobiP(r, alpha+1, beta+1, N-1)
	fN := float64(N)
	fac := math.Sqrt(fN * (fN + alpha + beta + 1))
	for i, val := range p {
		p[i] = val * fac
	}
	return
}

// Vandermonde1D returns V[i][j] = P_j(r_i) for the orthonormal Legendre basis.
func Vandermonde1D(N int, r []float64) (V *mat.Dense) {
	V = mat.NewDense(len(r), N+1, nil)
	for j := 0; j < N+1; j++ {
		V.SetCol(j, JacobiP(r, 0, 0, j))
	}
	return
}

func GradVandermonde1D(r []float64, N int) (Vr *mat.Dense) {
	Vr = mat.NewDense(len(r), N+1, nil)
	for j := 0; j < N+1; j++ {
		Vr.SetCol(j, GradJacobiP(r, 0, 0, j))
	}
	return
}

// Lagrange1D is the nodal basis of degree N on the Gauss-Lobatto nodes.
type Lagrange1D struct {
	N     int
	Nodes []float64
	Vinv  *mat.Dense
}

func NewLagrange1D(N int) (l *Lagrange1D, err error) {
	if N < 1 {
		err = fmt.Errorf("polynomial degree must be at least 1, have %d", N)
		return
	}
	l = &Lagrange1D{
		N:     N,
		Nodes: JacobiGL(0, 0, N),
		Vinv:  mat.NewDense(N+1, N+1, nil),
	}
	if err = l.Vinv.Inverse(Vandermonde1D(N, l.Nodes)); err != nil {
		err = fmt.Errorf("nodal Vandermonde matrix of degree %d: %w", N, err)
	}
	return
}

// Interpolation returns the len(r) x (N+1) matrix of basis values at r.
func (l *Lagrange1D) Interpolation(r []float64) (I *mat.Dense) {
	I = mat.NewDense(len(r), l.N+1, nil)
	I.Mul(Vandermonde1D(l.N, r), l.Vinv)
	return
}

// Differentiation returns the len(r) x (N+1) matrix of basis derivatives at r.
func (l *Lagrange1D) Differentiation(r []float64) (D *mat.Dense) {
	D = mat.NewDense(len(r), l.N+1, nil)
	D.Mul(GradVandermonde1D(r, l.N), l.Vinv)
	return
}

// Values writes the N+1 basis values at the single point x into vals.
func (l *Lagrange1D) Values(x float64, vals []float64) {
	r := []float64{x}
	for i := range vals {
		vals[i] = 0
	}
	for j := 0; j <= l.N; j++ {
		pj := JacobiP(r, 0, 0, j)[0]
		for i := range vals {
			vals[i] += pj * l.Vinv.At(j, i)
		}
	}
}
