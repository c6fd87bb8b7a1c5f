package Advection

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/notargets/mfdg/comm"
	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/mesh"
	"github.com/notargets/mfdg/operators"
	"github.com/notargets/mfdg/postprocess"
	"github.com/notargets/mfdg/timeint"
	"github.com/notargets/mfdg/utils"
)

// Config describes convection-diffusion of a sine wave on the periodic unit
// box, u(x,0) = prod sin(2 pi x_d).
type Config struct {
	Dim            int
	Degree         int
	CellsPerDir    int
	Velocity       []float64
	Viscosity      float64
	IPFactor       float64
	TimeStep       float64
	FinalTime      float64
	Integrator     string
	OutputInterval float64
	Lanes, Threads int
	Logger         *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		Dim:         2,
		Degree:      3,
		CellsPerDir: 8,
		Velocity:    []float64{1, 0.5},
		Viscosity:   0.01,
		IPFactor:    1,
		TimeStep:    5e-4,
		FinalTime:   0.5,
		Integrator:  "RK4",
	}
}

// Exact is the translated and decayed initial wave.
func (cfg Config) Exact(x []float64, t float64) (u float64) {
	k := 2 * math.Pi
	u = math.Exp(-cfg.Viscosity * float64(cfg.Dim) * k * k * t)
	for d, xd := range x {
		u *= math.Sin(k * (xd - cfg.Velocity[d]*t))
	}
	return
}

type Result struct {
	Steps   int
	L2Error float64
	Samples []postprocess.ErrorSample
}

type Advection struct {
	cfg     Config
	ctx     *matrixfree.Context
	field   matrixfree.FieldID
	rk      *timeint.ExplicitRK
	errors  *postprocess.ErrorCalculator
	log     *zap.Logger
	U       *matrixfree.Vector
	Spatial *operators.SpatialOperator
}

func New(c *comm.Comm, cfg Config) (a *Advection, err error) {
	if len(cfg.Velocity) != cfg.Dim {
		return nil, fmt.Errorf("advection: velocity has %d components for dimension %d", len(cfg.Velocity), cfg.Dim)
	}
	a = &Advection{cfg: cfg, log: utils.LoggerOrNop(cfg.Logger).With(zap.Int("rank", c.Rank()))}
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
	a.ctx = matrixfree.New(c, m, matrixfree.Options{Lanes: cfg.Lanes, Threads: cfg.Threads, Logger: cfg.Logger})
	if a.field, err = a.ctx.RegisterField(matrixfree.FieldLayout{Name: "u", Components: 1, Degree: cfg.Degree},
		matrixfree.Constraints{}); err != nil {
		return
	}
	var linear, nonlinear matrixfree.QuadID
	if linear, err = a.ctx.RegisterQuadrature(matrixfree.LinearRule(cfg.Degree)); err != nil {
		return
	}
	if nonlinear, err = a.ctx.RegisterQuadrature(matrixfree.NonlinearRule(cfg.Degree)); err != nil {
		return
	}
	if err = a.ctx.Finalize(); err != nil {
		return
	}
	velocity := func(x []float64, t float64, b []float64) { copy(b, cfg.Velocity) }
	terms := make([]operators.Operator, 0, 2)
	var op operators.Operator
	if op, err = operators.NewConvectiveOperator(a.ctx, a.field, nonlinear,
		&operators.ConvectiveKernel{Velocity: velocity}); err != nil {
		return
	}
	terms = append(terms, op)
	if cfg.Viscosity > 0 {
		if op, err = operators.NewViscousOperator(a.ctx, a.field, linear,
			&operators.ViscousKernel{Coefficient: -cfg.Viscosity, IPFactor: cfg.IPFactor}); err != nil {
			return
		}
		terms = append(terms, op)
	}
	var im *operators.InverseMass
	if im, err = operators.NewInverseMass(a.ctx, a.field, linear); err != nil {
		return
	}
	a.Spatial = operators.NewSpatialOperator(im, terms...)
	a.U = a.ctx.NewVector(a.field).Interpolate(func(x []float64, comp int) float64 { return cfg.Exact(x, 0) })

	var tab timeint.Tableau
	if tab, err = timeint.TableauByName(cfg.Integrator); err != nil {
		return
	}
	if a.rk, err = timeint.NewExplicitRK(tab, a.Spatial, a.U, timeint.Options{Logger: cfg.Logger}); err != nil {
		return
	}
	a.errors = postprocess.NewErrorCalculator(a.ctx, a.field, nonlinear,
		func(x []float64, t float64, comp int) float64 { return cfg.Exact(x, t) }, cfg.Logger)
	a.errors.Interval = cfg.OutputInterval
	return
}

func (a *Advection) Context() *matrixfree.Context { return a.ctx }

// Run integrates to FinalTime, sampling the error every OutputInterval.
func (a *Advection) Run() (res Result, err error) {
	if err = a.errors.Process(a.U, a.rk.Time); err != nil {
		return
	}
	observe := func(step int, t float64, u *matrixfree.Vector) error {
		return a.errors.Process(u, t)
	}
	if err = a.rk.Integrate(a.U, a.cfg.FinalTime, a.cfg.TimeStep, observe); err != nil {
		return
	}
	var final postprocess.ErrorSample
	if final, err = a.errors.Compute(a.U, a.rk.Time); err != nil {
		return
	}
	res = Result{Steps: a.rk.Step, L2Error: final.L2, Samples: a.errors.Samples}
	a.log.Info("advection run finished", zap.Int("steps", res.Steps), zap.Float64("time", a.rk.Time),
		zap.Float64("L2Error", res.L2Error))
	return
}
