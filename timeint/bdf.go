package timeint

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/types"
	"github.com/notargets/mfdg/utils"
)

// NonlinearSolver finds u with residual(r, u) = 0, starting from the value
// of u on entry.
type NonlinearSolver interface {
	Solve(u *matrixfree.Vector, residual func(r, u *matrixfree.Vector) error) error
}

// bdfCoefficients[k-1] holds gamma0 and alpha of the order k formula
// gamma0 u(n+1) - sum(alpha[i] u(n-i)) = dt f(u(n+1)).
var bdfCoefficients = []struct {
	gamma0 float64
	alpha  []float64
}{
	{1, []float64{1}},
	{1.5, []float64{2, -0.5}},
	{11. / 6, []float64{3, -1.5, 1. / 3}},
}

// BDF advances u' = f(u, t) implicitly with a backward differentiation
// formula of fixed step size. The first steps use the lower orders the
// available history allows.
type BDF struct {
	order    int
	op       Evaluator
	solver   NonlinearSolver
	history  []*matrixfree.Vector // u(n-1), u(n-2), ...
	filled   int
	current  *matrixfree.Vector // u(n) while a step is solved
	sum      *matrixfree.Vector
	log      *zap.Logger
	Time     float64
	TimeStep float64
	Step     int
}

func NewBDF(order int, op Evaluator, solver NonlinearSolver, proto *matrixfree.Vector, opts Options) (b *BDF, err error) {
	if order < 1 || order > len(bdfCoefficients) {
		err = types.NewConfigurationError("timeint", "BDF order %d not in [1, %d]", order, len(bdfCoefficients))
		return
	}
	b = &BDF{
		order:   order,
		op:      op,
		solver:  solver,
		history: make([]*matrixfree.Vector, order),
		current: proto.Context().NewVector(proto.Field()),
		sum:     proto.Context().NewVector(proto.Field()),
		log:     utils.LoggerOrNop(opts.Logger),
	}
	for i := range b.history {
		b.history[i] = proto.Context().NewVector(proto.Field())
	}
	return
}

// CurrentOrder is the order the next step will use.
func (b *BDF) CurrentOrder() int { return min(b.order, b.filled+1) }

// Advance solves for u at Time+dt; u holds the current solution on entry.
// A failed solve leaves u and the history as they were.
func (b *BDF) Advance(u *matrixfree.Vector, dt float64) (err error) {
	if b.filled > 0 && math.Abs(dt-b.TimeStep) > 1e-14*math.Abs(dt) {
		return fmt.Errorf("BDF: step size changed from %g to %g", b.TimeStep, dt)
	}
	b.current.Copy(u)
	var (
		k    = min(b.filled+1, b.order)
		co   = bdfCoefficients[k-1]
		tNew = b.Time + dt
	)
	b.sum.Set(0)
	b.sum.Axpy(co.alpha[0], b.current)
	for i, a := range co.alpha[1:] {
		b.sum.Axpy(a, b.history[i])
	}
	residual := func(r, v *matrixfree.Vector) (err error) {
		if err = b.op.Evaluate(r, v, tNew); err != nil {
			return
		}
		r.Sadd(-1, co.gamma0/dt, v)
		r.Axpy(-1/dt, b.sum)
		return
	}
	if err = b.solver.Solve(u, residual); err != nil {
		u.Copy(b.current)
		return fmt.Errorf("BDF%d: step %d at t = %g: %w", k, b.Step, tNew, err)
	}
	last := b.history[len(b.history)-1]
	copy(b.history[1:], b.history[:len(b.history)-1])
	b.history[0], b.current = b.current, last
	b.filled = min(b.filled+1, b.order)
	b.Time = tNew
	b.TimeStep = dt
	b.Step++
	b.log.Debug("BDF step", zap.Int("order", k), zap.Int("step", b.Step), zap.Float64("time", b.Time))
	return
}

// Snapshot stores the solution followed by the history in use.
func (b *BDF) Snapshot(u *matrixfree.Vector) (r Restart) {
	r = Restart{Time: b.Time, TimeStep: b.TimeStep, Step: b.Step}
	r.Vectors = append(r.Vectors, append([]float64(nil), u.Owned()...))
	for i := 0; i < b.filled; i++ {
		r.Vectors = append(r.Vectors, append([]float64(nil), b.history[i].Owned()...))
	}
	return
}

func (b *BDF) Resume(r Restart, u *matrixfree.Vector) (err error) {
	if len(r.Vectors)-1 > b.order {
		return fmt.Errorf("BDF%d: snapshot holds %d history vectors", b.order, len(r.Vectors)-1)
	}
	if err = r.restore(u, 0); err != nil {
		return
	}
	for i := 1; i < len(r.Vectors); i++ {
		if err = r.restore(b.history[i-1], i); err != nil {
			return
		}
	}
	b.filled = len(r.Vectors) - 1
	b.Time, b.TimeStep, b.Step = r.Time, r.TimeStep, r.Step
	return
}
