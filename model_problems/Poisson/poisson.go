package Poisson

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/notargets/mfdg/comm"
	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/mesh"
	"github.com/notargets/mfdg/operators"
	"github.com/notargets/mfdg/solvers"
	"github.com/notargets/mfdg/utils"
)

type Config struct {
	Degree        int
	IPFactor      float64
	RelTol        float64 // CG tolerance relative to the right-hand side
	MaxIterations int
	Source        operators.VectorFunction
	Lanes         int
	Threads       int
	Logger        *zap.Logger
}

// Poisson solves -div(grad u) = f with the symmetric interior penalty
// method. The boundary data, coupled boundaries included, is read on every
// Solve, so changing it between solves needs no new setup.
type Poisson struct {
	cfg      Config
	ctx      *matrixfree.Context
	field    matrixfree.FieldID
	quad     matrixfree.QuadID
	operator operators.Operator // homogeneous boundary terms
	data     operators.Operator // boundary data alone
	source   operators.Operator
	inverse  *operators.InverseMass
	cg       *solvers.CG
	b, tmp   *matrixfree.Vector
	log      *zap.Logger
	Solution *matrixfree.Vector
}

// New builds the discretization on the mesh partition. SetBoundary must be
// called before Solve.
func New(c *comm.Comm, m *mesh.Partition, cfg Config) (p *Poisson, err error) {
	if cfg.IPFactor == 0 {
		cfg.IPFactor = 1
	}
	if cfg.RelTol == 0 {
		cfg.RelTol = 1e-12
	}
	p = &Poisson{
		cfg: cfg,
		ctx: matrixfree.New(c, m, matrixfree.Options{Lanes: cfg.Lanes, Threads: cfg.Threads, Logger: cfg.Logger}),
		log: utils.LoggerOrNop(cfg.Logger).With(zap.Int("rank", c.Rank())),
	}
	if p.field, err = p.ctx.RegisterField(matrixfree.FieldLayout{Name: "u", Components: 1, Degree: cfg.Degree, Exact: true},
		matrixfree.Constraints{}); err != nil {
		return
	}
	if p.quad, err = p.ctx.RegisterQuadrature(matrixfree.LinearRule(cfg.Degree)); err != nil {
		return
	}
	if err = p.ctx.Finalize(); err != nil {
		return
	}
	if p.inverse, err = operators.NewInverseMass(p.ctx, p.field, p.quad); err != nil {
		return
	}
	if cfg.Source != nil {
		if p.source, err = operators.NewRHSOperator(p.ctx, p.field, p.quad, cfg.Source); err != nil {
			return
		}
	}
	p.cg = &solvers.CG{RelTol: cfg.RelTol, MaxIterations: cfg.MaxIterations, Logger: cfg.Logger}
	p.Solution = p.ctx.NewVector(p.field)
	p.b = p.ctx.NewVector(p.field)
	p.tmp = p.ctx.NewVector(p.field)
	return
}

func (p *Poisson) Context() *matrixfree.Context { return p.ctx }

func (p *Poisson) Field() matrixfree.FieldID { return p.field }

func (p *Poisson) Quadrature() matrixfree.QuadID { return p.quad }

// SetBoundary installs the boundary conditions, one per boundary id of the
// mesh.
func (p *Poisson) SetBoundary(bd operators.BoundaryDescriptor) (err error) {
	kernel := func(mode operators.BoundaryMode) *operators.ViscousKernel {
		return &operators.ViscousKernel{Coefficient: 1, IPFactor: p.cfg.IPFactor, Boundary: bd, Mode: mode}
	}
	if p.operator, err = operators.NewViscousOperator(p.ctx, p.field, p.quad, kernel(operators.BoundaryHomogeneous)); err != nil {
		return
	}
	p.data, err = operators.NewViscousOperator(p.ctx, p.field, p.quad, kernel(operators.BoundaryDataOnly))
	return
}

// Solve updates Solution, starting from its current value.
func (p *Poisson) Solve() (res solvers.Result, err error) {
	if p.operator == nil {
		return res, fmt.Errorf("poisson: no boundary conditions set")
	}
	p.b.Set(0)
	if p.source != nil {
		if err = p.source.EvaluateAdd(p.b, nil, 0); err != nil {
			return
		}
	}
	if err = p.data.Evaluate(p.tmp, nil, 0); err != nil {
		return
	}
	p.b.Axpy(-1, p.tmp)
	A := solvers.OperatorFunc(func(dst, src *matrixfree.Vector) error {
		return p.operator.Evaluate(dst, src, 0)
	})
	if res, err = p.cg.Solve(A, p.Solution, p.b, p.inverse); err != nil {
		return res, fmt.Errorf("poisson: %w", err)
	}
	p.log.Debug("poisson solved", zap.Int("iterations", res.Iterations), zap.Float64("residual", res.Residual))
	return
}
