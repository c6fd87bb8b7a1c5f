package operators

import (
	"math"

	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/types"
)

// ConvectiveKernel discretizes -div(F(u)) in weak form with a local
// Lax-Friedrichs flux. With a nil Velocity the flux is the nonlinear
// F(u) = u (x) u and the field has Dim components; otherwise it is the
// linear transport F(u) = u (x) beta(x, t) of every component.
// Dirichlet boundaries mirror the state, u+ = 2g - u-, everything else
// takes u+ = u-.
type ConvectiveKernel struct {
	Velocity VectorFunction
	Boundary BoundaryDescriptor
}

func (k *ConvectiveKernel) CellFlags() (matrixfree.EvaluationFlags, matrixfree.EvaluationFlags) {
	return matrixfree.Values, matrixfree.Gradients
}

func (k *ConvectiveKernel) Cell(p *matrixfree.QuadPoint) {
	var (
		xb, bb [3]float64
		x, b   = xb[:p.Dim], bb[:p.Dim]
	)
	for l := 0; l < p.Lanes; l++ {
		k.velocity(p.X, p.Value, p.Time, l, x, b)
		for c, sg := range p.SubmitGrad {
			u := p.Value[c][l]
			for d := 0; d < p.Dim; d++ {
				sg[d][l] += u * b[d]
			}
		}
	}
}

func (k *ConvectiveKernel) velocity(X, value [][]float64, t float64, l int, x, b []float64) {
	if k.Velocity == nil {
		for d := range b {
			b[d] = value[d][l]
		}
		return
	}
	for d := range x {
		x[d] = X[d][l]
	}
	k.Velocity(x, t, b)
}

func (k *ConvectiveKernel) FaceFlags() (matrixfree.EvaluationFlags, matrixfree.EvaluationFlags) {
	return matrixfree.Values, matrixfree.Values
}

func (k *ConvectiveKernel) Face(p *matrixfree.FacePoint) {
	var (
		xb, bmb, bpb, gb [3]float64
		x, bm, bp        = xb[:p.Dim], bmb[:p.Dim], bpb[:p.Dim]
		comps            = len(p.Flux)
		uP               [][]float64
	)
	if p.Interior {
		uP = p.ValueP
	}
	for l := 0; l < p.Lanes; l++ {
		var g []float64
		kind := types.BC_None
		if !p.Interior {
			g = gb[:comps]
			if comps > len(gb) {
				g = make([]float64, comps)
			}
			kind = k.Boundary.values(p, l, g)
		}
		plus := func(c int) float64 {
			switch {
			case p.Interior:
				return uP[c][l]
			case isDirichlet(kind):
				return 2*g[c] - p.ValueM[c][l]
			default:
				return p.ValueM[c][l]
			}
		}
		k.velocity(p.X, p.ValueM, p.Time, l, x, bm)
		if k.Velocity == nil {
			for d := range bp {
				bp[d] = plus(d)
			}
		} else {
			copy(bp, bm)
		}
		var bnM, bnP float64
		for d := 0; d < p.Dim; d++ {
			bnM += bm[d] * p.Normal[d][l]
			bnP += bp[d] * p.Normal[d][l]
		}
		lambda := math.Max(math.Abs(bnM), math.Abs(bnP))
		if k.Velocity == nil {
			lambda *= 2
		}
		for c := 0; c < comps; c++ {
			um, up := p.ValueM[c][l], plus(c)
			flux := 0.5*(um*bnM+up*bnP) + 0.5*lambda*(um-up)
			p.Flux[c][l] -= flux
		}
	}
}

// NewConvectiveOperator returns the operator form of k over field f.
func NewConvectiveOperator(ctx *matrixfree.Context, f matrixfree.FieldID, q matrixfree.QuadID,
	k *ConvectiveKernel) (Operator, error) {
	if err := checkConvective(ctx, f, q, k); err != nil {
		return nil, err
	}
	return &formOperator{
		ctx:      ctx,
		spec:     matrixfree.LoopSpec{Dst: f, Src: f, Quad: q},
		cell:     k,
		interior: k,
		boundary: k,
	}, nil
}

func checkConvective(ctx *matrixfree.Context, f matrixfree.FieldID, q matrixfree.QuadID, k *ConvectiveKernel) error {
	if ctx.Shape(f, q) == nil {
		return types.NewConfigurationError("operators", "convective quadrature %d is not bound to field %d", q, f)
	}
	if k.Velocity == nil && ctx.Field(f).Components != ctx.Dim() {
		return types.NewConfigurationError("operators",
			"nonlinear convection needs a %d component field, %q has %d", ctx.Dim(), ctx.Field(f).Name, ctx.Field(f).Components)
	}
	return k.Boundary.Validate(ctx)
}
