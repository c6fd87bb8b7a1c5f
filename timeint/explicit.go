package timeint

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/utils"
)

// Evaluator computes the time derivative dst = f(src, t). dst is overwritten.
type Evaluator interface {
	Evaluate(dst, src *matrixfree.Vector, t float64) error
}

type State uint8

const (
	Idle State = iota
	StageEvaluation
	Advancing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case StageEvaluation:
		return "StageEvaluation"
	case Advancing:
		return "Advancing"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

type Options struct {
	Logger *zap.Logger
	// Hook, when set, observes every state transition.
	Hook func(from, to State)
}

// ExplicitRK advances u' = f(u, t) with an explicit Runge-Kutta method. It
// owns its stage buffers; the solution vector belongs to the caller.
type ExplicitRK struct {
	tab      Tableau
	op       Evaluator
	k        []*matrixfree.Vector
	stage    *matrixfree.Vector
	state    State
	hook     func(from, to State)
	log      *zap.Logger
	Time     float64
	TimeStep float64
	Step     int
}

// NewExplicitRK allocates stage vectors shaped like proto.
func NewExplicitRK(tab Tableau, op Evaluator, proto *matrixfree.Vector, opts Options) (rk *ExplicitRK, err error) {
	if err = tab.Validate(); err != nil {
		return
	}
	rk = &ExplicitRK{
		tab:   tab,
		op:    op,
		k:     make([]*matrixfree.Vector, tab.Stages()),
		stage: proto.Context().NewVector(proto.Field()),
		hook:  opts.Hook,
		log:   utils.LoggerOrNop(opts.Logger),
	}
	for i := range rk.k {
		rk.k[i] = proto.Context().NewVector(proto.Field())
	}
	return
}

func (rk *ExplicitRK) State() State { return rk.state }

func (rk *ExplicitRK) Tableau() Tableau { return rk.tab }

func (rk *ExplicitRK) transition(to State) {
	if rk.hook != nil {
		rk.hook(rk.state, to)
	}
	rk.state = to
}

// Advance moves u from Time to Time+dt. A failed stage evaluation leaves u
// untouched and the integrator Idle.
func (rk *ExplicitRK) Advance(u *matrixfree.Vector, dt float64) (err error) {
	if rk.state != Idle {
		return fmt.Errorf("explicit RK: advance called in state %s", rk.state)
	}
	rk.transition(StageEvaluation)
	for s := range rk.k {
		src := u
		if s > 0 {
			rk.stage.Copy(u)
			for j, a := range rk.tab.A[s] {
				if a != 0 {
					rk.stage.Axpy(dt*a, rk.k[j])
				}
			}
			src = rk.stage
		}
		if err = rk.op.Evaluate(rk.k[s], src, rk.Time+rk.tab.C[s]*dt); err != nil {
			rk.transition(Idle)
			return fmt.Errorf("explicit RK %s: stage %d at step %d: %w", rk.tab.Name, s, rk.Step, err)
		}
	}
	rk.transition(Advancing)
	for s, b := range rk.tab.B {
		if b != 0 {
			u.Axpy(dt*b, rk.k[s])
		}
	}
	rk.Time += dt
	rk.TimeStep = dt
	rk.Step++
	rk.transition(Idle)
	return
}

// Observer is called after every completed step.
type Observer func(step int, t float64, u *matrixfree.Vector) error

// Integrate advances u to tEnd with steps of at most dt; the last step is
// shortened to land on tEnd.
func (rk *ExplicitRK) Integrate(u *matrixfree.Vector, tEnd, dt float64, obs Observer) (err error) {
	if dt <= 0 {
		return fmt.Errorf("explicit RK: time step must be positive, got %g", dt)
	}
	eps := 1e-12 * math.Max(1, math.Abs(tEnd))
	for rk.Time < tEnd-eps {
		h := math.Min(dt, tEnd-rk.Time)
		if err = rk.Advance(u, h); err != nil {
			return
		}
		if obs != nil {
			if err = obs(rk.Step, rk.Time, u); err != nil {
				return
			}
		}
	}
	rk.log.Debug("time integration finished",
		zap.String("method", rk.tab.Name), zap.Int("steps", rk.Step), zap.Float64("time", rk.Time))
	return
}

// Snapshot records the integrator state together with the solution.
func (rk *ExplicitRK) Snapshot(u *matrixfree.Vector) Restart {
	return Restart{
		Time:     rk.Time,
		TimeStep: rk.TimeStep,
		Step:     rk.Step,
		Vectors:  [][]float64{append([]float64(nil), u.Owned()...)},
	}
}

// Resume restores a snapshot taken by Snapshot into the integrator and u.
func (rk *ExplicitRK) Resume(r Restart, u *matrixfree.Vector) (err error) {
	if err = r.restore(u, 0); err != nil {
		return
	}
	rk.Time, rk.TimeStep, rk.Step = r.Time, r.TimeStep, r.Step
	return
}
