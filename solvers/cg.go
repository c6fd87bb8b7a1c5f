package solvers

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/utils"
)

var ErrNotConverged = errors.New("solver did not converge")

// LinearOperator computes dst = A src.
type LinearOperator interface {
	Apply(dst, src *matrixfree.Vector) error
}

// OperatorFunc adapts a function to LinearOperator and Preconditioner.
type OperatorFunc func(dst, src *matrixfree.Vector) error

func (f OperatorFunc) Apply(dst, src *matrixfree.Vector) error { return f(dst, src) }

type Preconditioner interface {
	Apply(dst, src *matrixfree.Vector) error
}

// CG is a preconditioned conjugate gradient solver for symmetric positive
// definite operators. Iteration stops when the residual norm falls below
// max(AbsTol, RelTol*|b|).
type CG struct {
	MaxIterations  int
	RelTol, AbsTol float64
	Logger         *zap.Logger
}

type Result struct {
	Iterations int
	Residual   float64
	Converged  bool
}

// Solve overwrites x, whose value on entry is the initial guess. A nil
// preconditioner is the identity.
func (cg *CG) Solve(A LinearOperator, x, b *matrixfree.Vector, P Preconditioner) (res Result, err error) {
	var (
		log   = utils.LoggerOrNop(cg.Logger)
		r     = b.Clone()
		z     = x.Context().NewVector(x.Field())
		p     = x.Context().NewVector(x.Field())
		Ap    = x.Context().NewVector(x.Field())
		maxIt = cg.MaxIterations
	)
	if maxIt <= 0 {
		maxIt = 1000
	}
	if err = A.Apply(Ap, x); err != nil {
		return
	}
	r.Axpy(-1, Ap)
	tol := math.Max(cg.AbsTol, cg.RelTol*b.Norm2())
	precondition := func() error {
		if P == nil {
			z.Copy(r)
			return nil
		}
		return P.Apply(z, r)
	}
	if err = precondition(); err != nil {
		return
	}
	p.Copy(z)
	rz := r.Dot(z)
	res.Residual = r.Norm2()
	for res.Residual > tol && res.Iterations < maxIt {
		if err = A.Apply(Ap, p); err != nil {
			return
		}
		pAp := p.Dot(Ap)
		if pAp <= 0 {
			err = fmt.Errorf("CG: operator is not positive definite, p.Ap = %g", pAp)
			return
		}
		alpha := rz / pAp
		x.Axpy(alpha, p)
		r.Axpy(-alpha, Ap)
		if err = precondition(); err != nil {
			return
		}
		rzNew := r.Dot(z)
		p.Sadd(rzNew/rz, 1, z)
		rz = rzNew
		res.Iterations++
		res.Residual = r.Norm2()
	}
	res.Converged = res.Residual <= tol
	log.Debug("CG finished", zap.Int("iterations", res.Iterations),
		zap.Float64("residual", res.Residual), zap.Bool("converged", res.Converged))
	if !res.Converged {
		err = fmt.Errorf("CG after %d iterations, residual %g > %g: %w", res.Iterations, res.Residual, tol, ErrNotConverged)
	}
	return
}
