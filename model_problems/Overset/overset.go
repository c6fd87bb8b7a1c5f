// Package Overset couples two overlapping Poisson problems through their
// boundaries: each domain takes the Dirichlet data of one boundary from the
// current solution of the other, and the two solves alternate until the
// exchanged interface values stop changing.
package Overset

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/notargets/mfdg/comm"
	"github.com/notargets/mfdg/coupling"
	"github.com/notargets/mfdg/mesh"
	"github.com/notargets/mfdg/model_problems/Poisson"
	"github.com/notargets/mfdg/operators"
	"github.com/notargets/mfdg/postprocess"
	"github.com/notargets/mfdg/types"
	"github.com/notargets/mfdg/utils"
)

type Domain struct {
	Lo, Hi []float64
	// Coupled is the boundary id whose data comes from the other domain.
	Coupled types.BoundaryID
}

type Config struct {
	Domains               [2]Domain
	Degree                int
	CellsPerDir           int
	IPFactor              float64
	SolverTolerance       float64
	CouplingTolerance     float64 // 0 runs MaxCouplingIterations iterations
	MaxCouplingIterations int
	Lanes, Threads        int
	Logger                *zap.Logger
}

// DefaultConfig is the unit square overlapped by its copy shifted by 0.3.
func DefaultConfig() Config {
	return Config{
		Domains: [2]Domain{
			{Lo: []float64{0, 0}, Hi: []float64{1, 1}, Coupled: 1},
			{Lo: []float64{0.3, 0}, Hi: []float64{1.3, 1}, Coupled: 0},
		},
		Degree:                3,
		CellsPerDir:           8,
		IPFactor:              1,
		SolverTolerance:       1e-12,
		CouplingTolerance:     1e-10,
		MaxCouplingIterations: 50,
	}
}

// Exact is the manufactured solution u = sin(x) cos(y), so f = 2u.
func Exact(x []float64) float64 { return math.Sin(x[0]) * math.Cos(x[1]) }

type Result struct {
	Iterations int
	Change     float64
	Converged  bool
	L2Errors   [2]float64
}

type Overset struct {
	cfg       Config
	comm      *comm.Comm
	log       *zap.Logger
	domains   [2]*Poisson.Poisson
	points    [2]*coupling.BoundaryPoints
	couplings [2]*coupling.Coupling // couplings[i] fills the points of domain i
}

func New(c *comm.Comm, cfg Config) (o *Overset, err error) {
	if cfg.MaxCouplingIterations < 1 {
		return nil, types.NewConfigurationError("overset", "at least one coupling iteration is needed, have %d",
			cfg.MaxCouplingIterations)
	}
	if cfg.CouplingTolerance < 0 {
		return nil, types.NewConfigurationError("overset", "coupling tolerance must not be negative")
	}
	o = &Overset{cfg: cfg, comm: c, log: utils.LoggerOrNop(cfg.Logger).With(zap.Int("rank", c.Rank()))}
	exact := operators.FunctionValues(func(x []float64, t float64, out []float64) { out[0] = Exact(x) })
	for i, d := range cfg.Domains {
		var m *mesh.Partition
		bc := mesh.BoxConfig{
			CellsPerDir: []int{cfg.CellsPerDir, cfg.CellsPerDir},
			Lo:          d.Lo,
			Hi:          d.Hi,
			Periodic:    []bool{false, false},
			GhostLayers: 1,
		}
		if m, err = mesh.NewBox(bc, c.Rank(), c.Size()); err != nil {
			return nil, fmt.Errorf("domain %d: %w", i, err)
		}
		var p *Poisson.Poisson
		if p, err = Poisson.New(c, m, Poisson.Config{
			Degree:   cfg.Degree,
			IPFactor: cfg.IPFactor,
			RelTol:   cfg.SolverTolerance,
			Source:   func(x []float64, t float64, out []float64) { out[0] = 2 * Exact(x) },
			Lanes:    cfg.Lanes,
			Threads:  cfg.Threads,
			Logger:   cfg.Logger,
		}); err != nil {
			return nil, fmt.Errorf("domain %d: %w", i, err)
		}
		if o.points[i], err = coupling.NewBoundaryPoints(p.Context(), p.Field(), p.Quadrature(), 1, d.Coupled); err != nil {
			return
		}
		bd := make(operators.BoundaryDescriptor)
		for f := 0; f < 4; f++ {
			bd[types.BoundaryID(f)] = operators.BoundaryCondition{Kind: types.BC_Dirichlet, Values: exact}
		}
		bd[d.Coupled] = operators.BoundaryCondition{Kind: types.BC_Coupled, Values: o.points[i]}
		if err = p.SetBoundary(bd); err != nil {
			return
		}
		o.domains[i] = p
	}
	for i := range o.couplings {
		src := o.domains[1-i]
		if o.couplings[i], err = coupling.Setup(o.points[i], src.Context(), src.Field(),
			coupling.Options{Logger: cfg.Logger}); err != nil {
			return nil, fmt.Errorf("coupling into domain %d: %w", i, err)
		}
	}
	return
}

func (o *Overset) Domain(i int) *Poisson.Poisson { return o.domains[i] }

// Run alternates solve 1, transfer into 2, solve 2, transfer into 1. It
// stops once the largest interface value change of an iteration is below
// CouplingTolerance, or after MaxCouplingIterations; reaching the cap is
// logged, not an error.
func (o *Overset) Run() (res Result, err error) {
	for res.Iterations < o.cfg.MaxCouplingIterations {
		res.Iterations++
		res.Change = 0
		for i, p := range o.domains {
			if _, err = p.Solve(); err != nil {
				return res, fmt.Errorf("iteration %d, domain %d: %w", res.Iterations, i, err)
			}
			next := o.couplings[1-i]
			if err = next.UpdateData(p.Solution); err != nil {
				return
			}
			res.Change = math.Max(res.Change, next.MaxChange())
		}
		o.log.Debug("coupling iteration", zap.Int("iteration", res.Iterations), zap.Float64("change", res.Change))
		if o.cfg.CouplingTolerance > 0 && res.Change < o.cfg.CouplingTolerance {
			res.Converged = true
			break
		}
	}
	if !res.Converged && o.cfg.CouplingTolerance > 0 {
		o.log.Warn("coupling iteration cap reached",
			zap.Int("iterations", res.Iterations), zap.Float64("change", res.Change),
			zap.Float64("tolerance", o.cfg.CouplingTolerance))
	}
	for i, p := range o.domains {
		ec := postprocess.NewErrorCalculator(p.Context(), p.Field(), p.Quadrature(),
			func(x []float64, t float64, comp int) float64 { return Exact(x) }, o.cfg.Logger)
		var s postprocess.ErrorSample
		if s, err = ec.Compute(p.Solution, 0); err != nil {
			return
		}
		res.L2Errors[i] = s.L2
	}
	o.log.Info("overset run finished", zap.Int("iterations", res.Iterations), zap.Bool("converged", res.Converged),
		zap.Float64("change", res.Change), zap.Float64s("L2Errors", res.L2Errors[:]))
	return
}
