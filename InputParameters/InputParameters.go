package InputParameters

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"go.uber.org/multierr"

	"github.com/notargets/mfdg/bench"
	"github.com/notargets/mfdg/model_problems/Advection"
	"github.com/notargets/mfdg/model_problems/Overset"
	"github.com/notargets/mfdg/timeint"
	"github.com/notargets/mfdg/types"
)

// Parameters obtained from the YAML input file
type Parameters struct {
	Title   string            `json:"Title"`
	Ranks   int               `json:"Ranks"`
	Lanes   int               `json:"Lanes"`
	Threads int               `json:"Threads"`
	Bench   BenchParameters   `json:"Bench"`
	Overset OversetParameters `json:"Overset"`
	Advect  AdvectParameters  `json:"Advect"`
}

type BenchParameters struct {
	Operator          string  `json:"Operator"`
	Dim               int     `json:"Dim"`
	MinDegree         int     `json:"MinDegree"`
	MaxDegree         int     `json:"MaxDegree"`
	DoFsPerRank       int     `json:"DoFsPerRank"` // mesh size target, per degree
	InnerRepetitions  int     `json:"InnerRepetitions"`
	OuterRepetitions  int     `json:"OuterRepetitions"`
	MinimumWallTime   float64 `json:"MinimumWallTime"` // seconds
	CountInstructions bool    `json:"CountInstructions"`
}

type OversetParameters struct {
	Degree                int     `json:"Degree"`
	CellsPerDir           int     `json:"CellsPerDir"`
	Shift                 float64 `json:"Shift"` // x offset of the second domain
	IPFactor              float64 `json:"IPFactor"`
	SolverTolerance       float64 `json:"SolverTolerance"`
	CouplingTolerance     float64 `json:"CouplingTolerance"`
	MaxCouplingIterations int     `json:"MaxCouplingIterations"`
}

type AdvectParameters struct {
	Dim            int       `json:"Dim"`
	Degree         int       `json:"Degree"`
	CellsPerDir    int       `json:"CellsPerDir"`
	Velocity       []float64 `json:"Velocity"`
	Viscosity      float64   `json:"Viscosity"`
	IPFactor       float64   `json:"IPFactor"`
	TimeStep       float64   `json:"TimeStep"`
	FinalTime      float64   `json:"FinalTime"`
	Integrator     string    `json:"Integrator"`
	OutputInterval float64   `json:"OutputInterval"`
}

// Defaults mirrors the package defaults of bench, Overset and Advection.
func Defaults() *Parameters {
	bc, oc, ac := bench.DefaultConfig(), Overset.DefaultConfig(), Advection.DefaultConfig()
	return &Parameters{
		Title: "mfdg",
		Ranks: 1,
		Bench: BenchParameters{
			Operator:         bc.Operator.String(),
			Dim:              bc.Dim,
			MinDegree:        1,
			MaxDegree:        6,
			DoFsPerRank:      200000,
			InnerRepetitions: bc.InnerRepetitions,
			OuterRepetitions: bc.OuterRepetitions,
			MinimumWallTime:  bc.MinimumWallTime.Seconds(),
		},
		Overset: OversetParameters{
			Degree:                oc.Degree,
			CellsPerDir:           oc.CellsPerDir,
			Shift:                 oc.Domains[1].Lo[0] - oc.Domains[0].Lo[0],
			IPFactor:              oc.IPFactor,
			SolverTolerance:       oc.SolverTolerance,
			CouplingTolerance:     oc.CouplingTolerance,
			MaxCouplingIterations: oc.MaxCouplingIterations,
		},
		Advect: AdvectParameters{
			Dim:            ac.Dim,
			Degree:         ac.Degree,
			CellsPerDir:    ac.CellsPerDir,
			Velocity:       ac.Velocity,
			Viscosity:      ac.Viscosity,
			IPFactor:       ac.IPFactor,
			TimeStep:       ac.TimeStep,
			FinalTime:      ac.FinalTime,
			Integrator:     ac.Integrator,
			OutputInterval: 0.1,
		},
	}
}

// Parse overlays the YAML document on the current values, so keys absent
// from data keep their defaults.
func (ip *Parameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

func (ip *Parameters) ReadFile(name string) (err error) {
	var data []byte
	if data, err = os.ReadFile(name); err != nil {
		return
	}
	if err = ip.Parse(data); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return
}

func (ip *Parameters) Validate() (err error) {
	bad := func(format string, args ...interface{}) {
		err = multierr.Append(err, types.NewConfigurationError("parameters", format, args...))
	}
	if ip.Ranks < 1 {
		bad("Ranks must be at least 1, have %d", ip.Ranks)
	}
	if ip.Lanes < 0 || ip.Threads < 0 {
		bad("Lanes and Threads must not be negative")
	}
	b := ip.Bench
	if _, e := bench.ParseOperator(b.Operator); e != nil {
		bad("Bench.Operator: %v", e)
	}
	if b.Dim != 2 && b.Dim != 3 {
		bad("Bench.Dim must be 2 or 3, have %d", b.Dim)
	}
	if b.MinDegree < 1 || b.MaxDegree < b.MinDegree {
		bad("Bench degree range [%d,%d] is empty", b.MinDegree, b.MaxDegree)
	}
	if b.DoFsPerRank < 1 || b.InnerRepetitions < 1 || b.OuterRepetitions < 1 {
		bad("Bench sizes and repetitions must be positive")
	}
	o := ip.Overset
	if o.Degree < 1 || o.CellsPerDir < 1 {
		bad("Overset needs Degree and CellsPerDir of at least 1")
	}
	if o.Shift <= 0 || o.Shift >= 1 {
		bad("Overset.Shift must lie in (0,1) for the domains to overlap, have %g", o.Shift)
	}
	if o.MaxCouplingIterations < 1 || o.CouplingTolerance < 0 {
		bad("Overset coupling iterations must be positive and the tolerance not negative")
	}
	a := ip.Advect
	if a.Dim != 2 && a.Dim != 3 {
		bad("Advect.Dim must be 2 or 3, have %d", a.Dim)
	} else if len(a.Velocity) != a.Dim {
		bad("Advect.Velocity has %d components, want %d", len(a.Velocity), a.Dim)
	}
	if a.TimeStep <= 0 || a.FinalTime <= 0 {
		bad("Advect.TimeStep and Advect.FinalTime must be positive")
	}
	if a.Viscosity < 0 {
		bad("Advect.Viscosity must not be negative")
	}
	if _, e := timeint.TableauByName(a.Integrator); e != nil {
		bad("Advect.Integrator: %v", e)
	}
	return
}

// BenchConfig returns the sweep configuration and the mesh size for each
// degree, chosen so a rank holds about DoFsPerRank unknowns.
func (ip *Parameters) BenchConfig() (cfg bench.Config, cellsPerDir func(degree int) int, err error) {
	cfg = bench.DefaultConfig()
	if cfg.Operator, err = bench.ParseOperator(ip.Bench.Operator); err != nil {
		return
	}
	cfg.Dim = ip.Bench.Dim
	cfg.Ranks, cfg.Lanes, cfg.Threads = ip.Ranks, ip.Lanes, ip.Threads
	cfg.InnerRepetitions, cfg.OuterRepetitions = ip.Bench.InnerRepetitions, ip.Bench.OuterRepetitions
	cfg.MinimumWallTime = time.Duration(ip.Bench.MinimumWallTime * float64(time.Second))
	cfg.CountInstructions = ip.Bench.CountInstructions
	var (
		dim   = float64(ip.Bench.Dim)
		total = float64(ip.Bench.DoFsPerRank * ip.Ranks)
		comps = ip.Bench.Dim // velocity field
	)
	cellsPerDir = func(degree int) int {
		perCell := math.Pow(float64(degree+1), dim) * float64(comps)
		n := int(math.Round(math.Pow(total/perCell, 1/dim)))
		if n < 2 {
			n = 2
		}
		return n
	}
	return
}

func (ip *Parameters) OversetConfig() Overset.Config {
	cfg := Overset.DefaultConfig()
	o := ip.Overset
	cfg.Domains[1].Lo[0] = cfg.Domains[0].Lo[0] + o.Shift
	cfg.Domains[1].Hi[0] = cfg.Domains[0].Hi[0] + o.Shift
	cfg.Degree, cfg.CellsPerDir = o.Degree, o.CellsPerDir
	cfg.IPFactor = o.IPFactor
	cfg.SolverTolerance, cfg.CouplingTolerance = o.SolverTolerance, o.CouplingTolerance
	cfg.MaxCouplingIterations = o.MaxCouplingIterations
	cfg.Lanes, cfg.Threads = ip.Lanes, ip.Threads
	return cfg
}

func (ip *Parameters) AdvectConfig() Advection.Config {
	a := ip.Advect
	return Advection.Config{
		Dim:            a.Dim,
		Degree:         a.Degree,
		CellsPerDir:    a.CellsPerDir,
		Velocity:       append([]float64(nil), a.Velocity...),
		Viscosity:      a.Viscosity,
		IPFactor:       a.IPFactor,
		TimeStep:       a.TimeStep,
		FinalTime:      a.FinalTime,
		Integrator:     a.Integrator,
		OutputInterval: a.OutputInterval,
		Lanes:          ip.Lanes,
		Threads:        ip.Threads,
	}
}

func (ip *Parameters) Print() { ip.Fprint(os.Stdout) }

func (ip *Parameters) Fprint(w io.Writer) {
	fmt.Fprintf(w, "\"%s\"\t\t= Title\n", ip.Title)
	fmt.Fprintf(w, "[%d]\t\t\t\t= Ranks\n", ip.Ranks)
	fmt.Fprintf(w, "[%d,%d]\t\t\t\t= Lanes, Threads (0 = auto)\n", ip.Lanes, ip.Threads)
	b := ip.Bench
	fmt.Fprintf(w, "[%s]\t\t= Bench Operator\n", b.Operator)
	fmt.Fprintf(w, "[%d]\t\t\t\t= Bench Dimension\n", b.Dim)
	fmt.Fprintf(w, "[%d-%d]\t\t\t\t= Bench Polynomial Degrees\n", b.MinDegree, b.MaxDegree)
	fmt.Fprintf(w, "[%d]\t\t\t= Bench DoFs per Rank\n", b.DoFsPerRank)
	fmt.Fprintf(w, "[%d,%d]\t\t\t= Bench Repetitions (inner, outer)\n", b.InnerRepetitions, b.OuterRepetitions)
	o := ip.Overset
	fmt.Fprintf(w, "[%d]\t\t\t\t= Overset Polynomial Degree\n", o.Degree)
	fmt.Fprintf(w, "[%d]\t\t\t\t= Overset Cells per Direction\n", o.CellsPerDir)
	fmt.Fprintf(w, "%8.5f\t\t= Overset Shift\n", o.Shift)
	fmt.Fprintf(w, "%8.2e\t\t= Overset Coupling Tolerance\n", o.CouplingTolerance)
	a := ip.Advect
	fmt.Fprintf(w, "[%d]\t\t\t\t= Advect Dimension\n", a.Dim)
	fmt.Fprintf(w, "[%d]\t\t\t\t= Advect Polynomial Degree\n", a.Degree)
	vel := make([]string, len(a.Velocity))
	for i, v := range a.Velocity {
		vel[i] = fmt.Sprintf("%g", v)
	}
	fmt.Fprintf(w, "[%s]\t\t\t= Advect Velocity\n", strings.Join(vel, ","))
	fmt.Fprintf(w, "%8.5f\t\t= Advect Viscosity\n", a.Viscosity)
	fmt.Fprintf(w, "%8.5f\t\t= Advect FinalTime\n", a.FinalTime)
	fmt.Fprintf(w, "[%s]\t\t\t\t= Advect Integrator\n", a.Integrator)
}
