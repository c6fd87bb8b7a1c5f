package postprocess

import (
	"math"

	"go.uber.org/zap"

	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/utils"
)

// Postprocessor is pulled by a driver with the current solution.
type Postprocessor interface {
	Process(v *matrixfree.Vector, t float64) error
}

// Solution is an analytic field of space and time.
type Solution func(x []float64, t float64, comp int) float64

type ErrorSample struct {
	Time, L2, RelativeL2 float64
}

// ErrorCalculator measures the L2 error of a field against an analytic
// solution on the quadrature points of one rule. Collective.
type ErrorCalculator struct {
	ctx      *matrixfree.Context
	spec     matrixfree.LoopSpec
	exact    Solution
	log      *zap.Logger
	Interval float64 // minimum time between samples, 0 samples every call
	Samples  []ErrorSample
	next     float64
}

func NewErrorCalculator(ctx *matrixfree.Context, f matrixfree.FieldID, q matrixfree.QuadID,
	exact Solution, logger *zap.Logger) *ErrorCalculator {
	return &ErrorCalculator{
		ctx:   ctx,
		spec:  matrixfree.LoopSpec{Dst: f, Src: f, Quad: q},
		exact: exact,
		log:   utils.LoggerOrNop(logger),
		next:  math.Inf(-1),
	}
}

func (ec *ErrorCalculator) Process(v *matrixfree.Vector, t float64) (err error) {
	if t < ec.next-1e-12*math.Max(1, math.Abs(t)) {
		return
	}
	ec.next = t + ec.Interval
	var s ErrorSample
	if s, err = ec.Compute(v, t); err != nil {
		return
	}
	ec.Samples = append(ec.Samples, s)
	ec.log.Info("error", zap.Float64("time", t), zap.Float64("L2", s.L2), zap.Float64("relativeL2", s.RelativeL2))
	return
}

// Compute returns the absolute and relative L2 errors of v at time t.
func (ec *ErrorCalculator) Compute(v *matrixfree.Vector, t float64) (s ErrorSample, err error) {
	k := &errorKernel{
		exact: ec.exact,
		time:  t,
		err:   make([]float64, len(ec.ctx.CellBatches())),
		norm:  make([]float64, len(ec.ctx.CellBatches())),
	}
	spec := ec.spec
	spec.Time = t
	if err = ec.ctx.ForEachCellBatch(spec, k, ec.ctx.NewVector(spec.Dst), v); err != nil {
		return
	}
	var sums [2]float64
	for b := range k.err {
		sums[0] += k.err[b]
		sums[1] += k.norm[b]
	}
	global := ec.ctx.Comm().AllReduceSumSlice(sums[:])
	s = ErrorSample{Time: t, L2: math.Sqrt(global[0])}
	if global[1] > 0 {
		s.RelativeL2 = s.L2 / math.Sqrt(global[1])
	}
	return
}

// errorKernel sums per batch, so workers never share an accumulator.
type errorKernel struct {
	exact     Solution
	time      float64
	err, norm []float64
}

func (*errorKernel) CellFlags() (matrixfree.EvaluationFlags, matrixfree.EvaluationFlags) {
	return matrixfree.Values, 0
}

func (k *errorKernel) Cell(p *matrixfree.QuadPoint) {
	var xb [3]float64
	x := xb[:p.Dim]
	for l := 0; l < p.Lanes; l++ {
		for d := range x {
			x[d] = p.X[d][l]
		}
		for c, u := range p.Value {
			ex := k.exact(x, k.time, c)
			diff := u[l] - ex
			k.err[p.Batch] += diff * diff * p.JxW[l]
			k.norm[p.Batch] += ex * ex * p.JxW[l]
		}
	}
}
