package solvers

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/utils"
)

// DenseNewton is Newton's method with a finite difference Jacobian solved by
// dense LU. It is meant for small single rank problems.
type DenseNewton struct {
	MaxIterations int
	Tolerance     float64 // on the max norm of the residual
	Epsilon       float64 // relative finite difference step
	Logger        *zap.Logger
}

func (dn *DenseNewton) Solve(u *matrixfree.Vector, residual func(r, u *matrixfree.Vector) error) (err error) {
	if size := u.Context().Comm().Size(); size != 1 {
		return fmt.Errorf("dense Newton runs on one rank, have %d", size)
	}
	var (
		log   = utils.LoggerOrNop(dn.Logger)
		maxIt = dn.MaxIterations
		tol   = dn.Tolerance
		eps   = dn.Epsilon
		n     = len(u.Owned())
		r     = u.Context().NewVector(u.Field())
		rp    = u.Context().NewVector(u.Field())
		J     = mat.NewDense(n, n, nil)
		dx    = mat.NewVecDense(n, nil)
		lu    mat.LU
	)
	if maxIt <= 0 {
		maxIt = 20
	}
	if tol <= 0 {
		tol = 1e-12
	}
	if eps <= 0 {
		eps = 1e-7
	}
	for it := 0; ; it++ {
		if err = residual(r, u); err != nil {
			return
		}
		rNorm := floats.Norm(r.Owned(), math.Inf(1))
		log.Debug("newton iteration", zap.Int("iteration", it), zap.Float64("residual", rNorm))
		if rNorm <= tol {
			return
		}
		if it == maxIt {
			return fmt.Errorf("newton after %d iterations, residual %g > %g: %w", it, rNorm, tol, ErrNotConverged)
		}
		x := u.Owned()
		for j := 0; j < n; j++ {
			h := eps * math.Max(1, math.Abs(x[j]))
			save := x[j]
			x[j] += h
			u.InvalidateGhosts()
			if err = residual(rp, u); err != nil {
				return
			}
			x[j] = save
			for i, v := range rp.Owned() {
				J.Set(i, j, (v-r.Owned()[i])/h)
			}
		}
		u.InvalidateGhosts()
		lu.Factorize(J)
		if err = lu.SolveVecTo(dx, false, mat.NewVecDense(n, r.Owned())); err != nil {
			return fmt.Errorf("newton jacobian solve: %w", err)
		}
		floats.Sub(x, dx.RawVector().Data)
	}
}
