// Package bench measures the throughput of the matrix-free operators in
// degrees of freedom per second.
package bench

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notargets/mfdg/comm"
	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/mesh"
	"github.com/notargets/mfdg/operators"
	"github.com/notargets/mfdg/utils"
)

type Config struct {
	Operator          Operator
	Dim               int
	Degree            int
	CellsPerDir       int
	Ranks             int
	Lanes, Threads    int
	InnerRepetitions  int // averaged
	OuterRepetitions  int // minimum taken
	MinimumWallTime   time.Duration
	CountInstructions bool
	Logger            *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		Operator:         ConvectiveTerm,
		Dim:              3,
		Degree:           3,
		CellsPerDir:      8,
		Ranks:            1,
		InnerRepetitions: 100,
		OuterRepetitions: 1,
		MinimumWallTime:  time.Second,
	}
}

type Result struct {
	Operator             Operator
	Dim, Degree, Ranks   int
	DoFs                 int
	WallTime             time.Duration // per application
	DoFsPerSecond        float64
	DoFsPerSecondPerRank float64
	Instructions         uint64 // rank 0, all repetitions, when counted
	ShortRun             bool   // total wall time below MinimumWallTime
}

func (r Result) String() string {
	return fmt.Sprintf("%-26s dim=%d degree=%2d dofs=%10d  %.4e DoFs/s  %.4e DoFs/(s*rank)",
		r.Operator, r.Dim, r.Degree, r.DoFs, r.DoFsPerSecond, r.DoFsPerSecondPerRank)
}

// problem holds the fields and operators of a benchmark on one rank. The
// field is a velocity with one component per direction, so that the
// nonlinear convective term applies.
type problem struct {
	ctx        *matrixfree.Context
	field      matrixfree.FieldID
	convective operators.Operator
	viscous    operators.Operator
	combined   operators.Operator
	inverse    *operators.InverseMass
	spatial    *operators.SpatialOperator
	src, dst   *matrixfree.Vector
}

func newProblem(c *comm.Comm, cfg Config) (p *problem, err error) {
	bc := mesh.BoxConfig{GhostLayers: 1}
	for d := 0; d < cfg.Dim; d++ {
		bc.CellsPerDir = append(bc.CellsPerDir, cfg.CellsPerDir)
		bc.Lo = append(bc.Lo, 0)
		bc.Hi = append(bc.Hi, 1)
		bc.Periodic = append(bc.Periodic, true)
	}
	var m *mesh.Partition
	if m, err = mesh.NewBox(bc, c.Rank(), c.Size()); err != nil {
		return
	}
	p = &problem{ctx: matrixfree.New(c, m, matrixfree.Options{Lanes: cfg.Lanes, Threads: cfg.Threads, Logger: cfg.Logger})}
	if p.field, err = p.ctx.RegisterField(matrixfree.FieldLayout{Name: "velocity", Components: cfg.Dim, Degree: cfg.Degree},
		matrixfree.Constraints{}); err != nil {
		return
	}
	var linear, nonlinear matrixfree.QuadID
	if linear, err = p.ctx.RegisterQuadrature(matrixfree.LinearRule(cfg.Degree)); err != nil {
		return
	}
	if nonlinear, err = p.ctx.RegisterQuadrature(matrixfree.NonlinearRule(cfg.Degree)); err != nil {
		return
	}
	if err = p.ctx.Finalize(); err != nil {
		return
	}
	convKernel := &operators.ConvectiveKernel{}
	viscKernel := &operators.ViscousKernel{Coefficient: 1e-3, IPFactor: 1}
	if p.convective, err = operators.NewConvectiveOperator(p.ctx, p.field, nonlinear, convKernel); err != nil {
		return
	}
	if p.viscous, err = operators.NewViscousOperator(p.ctx, p.field, nonlinear, viscKernel); err != nil {
		return
	}
	if p.combined, err = operators.NewCombinedOperator(p.ctx, p.field, nonlinear,
		operators.SumCellKernel{convKernel, viscKernel}, operators.SumFaceKernel{convKernel, viscKernel}); err != nil {
		return
	}
	if p.inverse, err = operators.NewInverseMass(p.ctx, p.field, linear); err != nil {
		return
	}
	p.spatial = operators.NewSpatialOperator(p.inverse, p.combined)
	p.src = p.ctx.NewVector(p.field).Set(1)
	p.dst = p.ctx.NewVector(p.field).Set(1)
	return
}

func (p *problem) apply(op Operator) error {
	switch op {
	case ConvectiveTerm:
		return p.convective.Evaluate(p.dst, p.src, 0)
	case ViscousTerm:
		return p.viscous.Evaluate(p.dst, p.src, 0)
	case ViscousAndConvectiveTerms:
		return p.combined.Evaluate(p.dst, p.src, 0)
	case InverseMassMatrix:
		return p.inverse.Apply(p.dst, p.src)
	case InverseMassMatrixDstDst:
		return p.inverse.Apply(p.dst, p.dst)
	case VectorUpdate:
		p.dst.Sadd(2, 1, p.src)
		return nil
	case EvaluateOperatorExplicit:
		return p.spatial.Evaluate(p.dst, p.src, 0)
	}
	return fmt.Errorf("operator %s not implemented", op)
}

// Run sets up the benchmark problem on cfg.Ranks ranks and times the
// selected operator. Each application is timed on every rank and averaged
// over ranks; the result is the mean over the inner repetitions, minimized
// over the outer repetitions.
func Run(cfg Config) (res Result, err error) {
	if cfg.Dim < 2 || cfg.Dim > 3 {
		return res, fmt.Errorf("benchmark dimension must be 2 or 3, have %d", cfg.Dim)
	}
	if cfg.InnerRepetitions < 1 || cfg.OuterRepetitions < 1 {
		return res, fmt.Errorf("repetition counts must be positive, have %d and %d",
			cfg.InnerRepetitions, cfg.OuterRepetitions)
	}
	var (
		log   = utils.LoggerOrNop(cfg.Logger)
		world = comm.NewWorld(cfg.Ranks)
	)
	err = world.Run(func(c *comm.Comm) (err error) {
		var p *problem
		if p, err = newProblem(c, cfg); err != nil {
			return
		}
		var (
			best  = time.Duration(1<<63 - 1)
			total time.Duration
			count uint64
		)
		for outer := 0; outer < cfg.OuterRepetitions; outer++ {
			var sum float64
			for inner := 0; inner < cfg.InnerRepetitions; inner++ {
				var elapsed time.Duration
				if elapsed, count, err = p.timed(cfg, c.Rank() == 0, count); err != nil {
					return
				}
				sum += c.AllReduceSum(elapsed.Seconds()) / float64(c.Size())
			}
			total += time.Duration(sum * float64(time.Second))
			best = min(best, time.Duration(sum/float64(cfg.InnerRepetitions)*float64(time.Second)))
		}
		if c.Rank() != 0 {
			return
		}
		dofs := p.ctx.NumberOfDoFs(p.field)
		res = Result{
			Operator:     cfg.Operator,
			Dim:          cfg.Dim,
			Degree:       cfg.Degree,
			Ranks:        c.Size(),
			DoFs:         dofs,
			WallTime:     best,
			Instructions: count,
			ShortRun:     total < cfg.MinimumWallTime,
		}
		if best > 0 {
			res.DoFsPerSecond = float64(dofs) / best.Seconds()
			res.DoFsPerSecondPerRank = res.DoFsPerSecond / float64(c.Size())
		}
		return
	})
	if err != nil {
		return
	}
	if res.ShortRun {
		log.Warn("benchmark ran for less than the minimum wall time, increase the repetitions for reproducible results",
			zap.Stringer("operator", res.Operator), zap.Int("degree", res.Degree),
			zap.Duration("minimum", cfg.MinimumWallTime))
	}
	log.Info("benchmark finished", zap.Stringer("operator", res.Operator), zap.Int("degree", res.Degree),
		zap.Int("dofs", res.DoFs), zap.Float64("dofsPerSecond", res.DoFsPerSecond))
	return
}

// timed applies the operator once and adds the instructions of rank 0 to
// count when requested.
func (p *problem) timed(cfg Config, counter bool, count uint64) (elapsed time.Duration, total uint64, err error) {
	total = count
	start := time.Now()
	if cfg.CountInstructions && counter {
		var n uint64
		n, err = countInstructions(func() error { return p.apply(cfg.Operator) })
		total += n
	} else {
		err = p.apply(cfg.Operator)
	}
	elapsed = time.Since(start)
	return
}

// Sweep runs the benchmark for every degree in [minDegree, maxDegree] and
// returns the results in degree order. cellsPerDir, when not nil, gives the
// mesh size per degree and replaces cfg.CellsPerDir.
func Sweep(cfg Config, minDegree, maxDegree int, cellsPerDir func(degree int) int) (results []Result, err error) {
	for degree := minDegree; degree <= maxDegree; degree++ {
		c := cfg
		c.Degree = degree
		if cellsPerDir != nil {
			c.CellsPerDir = cellsPerDir(degree)
		}
		var r Result
		if r, err = Run(c); err != nil {
			return results, fmt.Errorf("degree %d: %w", degree, err)
		}
		results = append(results, r)
	}
	return
}
