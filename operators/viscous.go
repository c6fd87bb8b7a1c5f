package operators

import (
	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/types"
)

// BoundaryMode selects how boundary data enters the viscous boundary term.
type BoundaryMode uint8

const (
	// BoundaryFull evaluates the affine operator including boundary data.
	BoundaryFull BoundaryMode = iota
	// BoundaryHomogeneous evaluates the linear part with zero data.
	BoundaryHomogeneous
	// BoundaryDataOnly evaluates the data part alone, u is ignored.
	BoundaryDataOnly
)

// ViscousKernel is the symmetric interior penalty discretization of the
// bilinear form
//
//	a(u,v) = (grad u, grad v) - <{grad u}.n, [v]> - <[u], {grad v}.n> + <tau [u], [v]>
//
// scaled by Coefficient and, when set, by the spatially varying factor
// Variable. A positive Coefficient gives the weak form of -div(grad u);
// right-hand sides of the diffusion equation use minus the viscosity.
// tau is IPFactor times the penalty scale of the face.
type ViscousKernel struct {
	Coefficient float64
	IPFactor    float64
	Boundary    BoundaryDescriptor
	Mode        BoundaryMode
	Variable    *VariableCoefficients
}

func (k *ViscousKernel) CellFlags() (matrixfree.EvaluationFlags, matrixfree.EvaluationFlags) {
	if k.Mode == BoundaryDataOnly {
		return 0, 0
	}
	return matrixfree.Gradients, matrixfree.Gradients
}

func (k *ViscousKernel) Cell(p *matrixfree.QuadPoint) {
	if k.Mode == BoundaryDataOnly {
		return
	}
	for l := 0; l < p.Lanes; l++ {
		nu := k.Coefficient
		if k.Variable != nil {
			nu *= k.Variable.Cell(p, l)
		}
		for c, sg := range p.SubmitGrad {
			for d := 0; d < p.Dim; d++ {
				sg[d][l] += nu * p.Grad[c][d][l]
			}
		}
	}
}

func (k *ViscousKernel) FaceFlags() (matrixfree.EvaluationFlags, matrixfree.EvaluationFlags) {
	if k.Mode == BoundaryDataOnly {
		return 0, matrixfree.Values | matrixfree.Gradients
	}
	return matrixfree.Values | matrixfree.Gradients, matrixfree.Values | matrixfree.Gradients
}

func (k *ViscousKernel) Face(p *matrixfree.FacePoint) {
	if p.Interior {
		k.interiorFace(p)
		return
	}
	k.boundaryFace(p)
}

func (k *ViscousKernel) faceCoefficient(p *matrixfree.FacePoint, l int) float64 {
	nu := k.Coefficient
	if k.Variable != nil {
		nu *= k.Variable.Face(p, l)
	}
	return nu
}

func normalGradient(grad [][]float64, normal [][]float64, l int) (gn float64) {
	for d := range normal {
		gn += grad[d][l] * normal[d][l]
	}
	return
}

func (k *ViscousKernel) interiorFace(p *matrixfree.FacePoint) {
	if k.Mode == BoundaryDataOnly {
		return
	}
	for l := 0; l < p.Lanes; l++ {
		var (
			nu  = k.faceCoefficient(p, l)
			tau = k.IPFactor * p.PenaltyScale[l]
		)
		for c := range p.Flux {
			jump := p.ValueM[c][l] - p.ValueP[c][l]
			avg := 0.5 * (normalGradient(p.GradM[c], p.Normal, l) + normalGradient(p.GradP[c], p.Normal, l))
			p.Flux[c][l] += nu * (tau*jump - avg)
			p.NormalGrad[c][l] -= nu * 0.5 * jump
		}
	}
}

func (k *ViscousKernel) boundaryFace(p *matrixfree.FacePoint) {
	var gb [3]float64
	comps := len(p.Flux)
	g := gb[:0]
	if comps <= len(gb) {
		g = gb[:comps]
	} else {
		g = make([]float64, comps)
	}
	for l := 0; l < p.Lanes; l++ {
		var (
			nu   = k.faceCoefficient(p, l)
			tau  = k.IPFactor * p.PenaltyScale[l]
			kind = k.Boundary.values(p, l, g)
		)
		if k.Mode == BoundaryHomogeneous {
			for c := range g {
				g[c] = 0
			}
		}
		for c := range p.Flux {
			var u, gn float64
			if k.Mode != BoundaryDataOnly {
				u = p.ValueM[c][l]
				gn = normalGradient(p.GradM[c], p.Normal, l)
			}
			switch {
			case isDirichlet(kind):
				p.Flux[c][l] += nu * (tau*(u-g[c]) - gn)
				p.NormalGrad[c][l] -= nu * (u - g[c])
			case kind == types.BC_Neumann:
				p.Flux[c][l] -= nu * g[c]
			}
		}
	}
}

// NewViscousOperator returns the operator form of k over field f.
func NewViscousOperator(ctx *matrixfree.Context, f matrixfree.FieldID, q matrixfree.QuadID,
	k *ViscousKernel) (Operator, error) {
	if err := checkViscous(ctx, f, q, k); err != nil {
		return nil, err
	}
	op := &formOperator{
		ctx:      ctx,
		spec:     matrixfree.LoopSpec{Dst: f, Src: f, Quad: q},
		cell:     k,
		interior: k,
		boundary: k,
	}
	if k.Mode == BoundaryDataOnly {
		op.cell, op.interior = nil, nil
	}
	return op, nil
}

func checkViscous(ctx *matrixfree.Context, f matrixfree.FieldID, q matrixfree.QuadID, k *ViscousKernel) error {
	if ctx.Shape(f, q) == nil {
		return types.NewConfigurationError("operators", "viscous quadrature %d is not bound to field %d", q, f)
	}
	if k.IPFactor <= 0 {
		return types.NewConfigurationError("operators", "interior penalty factor must be positive, got %g", k.IPFactor)
	}
	if k.Variable != nil && k.Variable.quad != q {
		return types.NewConfigurationError("operators", "variable coefficients sampled on quadrature %d, operator uses %d",
			k.Variable.quad, q)
	}
	return k.Boundary.Validate(ctx)
}
