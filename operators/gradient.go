package operators

import (
	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/types"
)

// GradientKernel maps a scalar field p to the weak gradient tested with a
// vector field: (grad p, v) = -(p, div v) + <p* n, v>, p* the central value
// inside and the boundary value on Dirichlet boundaries.
type GradientKernel struct {
	Boundary BoundaryDescriptor
}

func (*GradientKernel) CellFlags() (matrixfree.EvaluationFlags, matrixfree.EvaluationFlags) {
	return matrixfree.Values, matrixfree.Gradients
}

func (*GradientKernel) Cell(p *matrixfree.QuadPoint) {
	pv := p.Value[0]
	for d, sg := range p.SubmitGrad {
		for l := 0; l < p.Lanes; l++ {
			sg[d][l] -= pv[l]
		}
	}
}

func (*GradientKernel) FaceFlags() (matrixfree.EvaluationFlags, matrixfree.EvaluationFlags) {
	return matrixfree.Values, matrixfree.Values
}

func (k *GradientKernel) Face(p *matrixfree.FacePoint) {
	var g [1]float64
	for l := 0; l < p.Lanes; l++ {
		ps := p.ValueM[0][l]
		if p.Interior {
			ps = 0.5 * (ps + p.ValueP[0][l])
		} else if isDirichlet(k.Boundary.values(p, l, g[:])) {
			ps = g[0]
		}
		for d, fl := range p.Flux {
			fl[l] += ps * p.Normal[d][l]
		}
	}
}

// DivergenceKernel maps a vector field u to the weak divergence tested with
// a scalar field: (div u, q) = -(u, grad q) + <u*.n, q>.
type DivergenceKernel struct {
	Boundary BoundaryDescriptor
}

func (*DivergenceKernel) CellFlags() (matrixfree.EvaluationFlags, matrixfree.EvaluationFlags) {
	return matrixfree.Values, matrixfree.Gradients
}

func (*DivergenceKernel) Cell(p *matrixfree.QuadPoint) {
	sg := p.SubmitGrad[0]
	for d := 0; d < p.Dim; d++ {
		for l := 0; l < p.Lanes; l++ {
			sg[d][l] -= p.Value[d][l]
		}
	}
}

func (*DivergenceKernel) FaceFlags() (matrixfree.EvaluationFlags, matrixfree.EvaluationFlags) {
	return matrixfree.Values, matrixfree.Values
}

func (k *DivergenceKernel) Face(p *matrixfree.FacePoint) {
	var gb [3]float64
	g := gb[:p.Dim]
	for l := 0; l < p.Lanes; l++ {
		dirichlet := !p.Interior && isDirichlet(k.Boundary.values(p, l, g))
		var un float64
		for d := 0; d < p.Dim; d++ {
			u := p.ValueM[d][l]
			switch {
			case p.Interior:
				u = 0.5 * (u + p.ValueP[d][l])
			case dirichlet:
				u = g[d]
			}
			un += u * p.Normal[d][l]
		}
		p.Flux[0][l] += un
	}
}

// NewGradientOperator maps scalar field src to vector field dst.
func NewGradientOperator(ctx *matrixfree.Context, dst, src matrixfree.FieldID, q matrixfree.QuadID,
	bd BoundaryDescriptor) (Operator, error) {
	if err := checkMixed(ctx, dst, src, q, ctx.Dim(), 1); err != nil {
		return nil, err
	}
	if err := bd.Validate(ctx); err != nil {
		return nil, err
	}
	k := &GradientKernel{Boundary: bd}
	return &formOperator{
		ctx:      ctx,
		spec:     matrixfree.LoopSpec{Dst: dst, Src: src, Quad: q},
		cell:     k,
		interior: k,
		boundary: k,
	}, nil
}

// NewDivergenceOperator maps vector field src to scalar field dst.
func NewDivergenceOperator(ctx *matrixfree.Context, dst, src matrixfree.FieldID, q matrixfree.QuadID,
	bd BoundaryDescriptor) (Operator, error) {
	if err := checkMixed(ctx, dst, src, q, 1, ctx.Dim()); err != nil {
		return nil, err
	}
	if err := bd.Validate(ctx); err != nil {
		return nil, err
	}
	k := &DivergenceKernel{Boundary: bd}
	return &formOperator{
		ctx:      ctx,
		spec:     matrixfree.LoopSpec{Dst: dst, Src: src, Quad: q},
		cell:     k,
		interior: k,
		boundary: k,
	}, nil
}

func checkMixed(ctx *matrixfree.Context, dst, src matrixfree.FieldID, q matrixfree.QuadID, dstComps, srcComps int) error {
	if ctx.Shape(dst, q) == nil || ctx.Shape(src, q) == nil {
		return types.NewConfigurationError("operators", "quadrature %d must be bound to fields %d and %d", q, dst, src)
	}
	if ctx.Field(dst).Components != dstComps || ctx.Field(src).Components != srcComps {
		return types.NewConfigurationError("operators", "field pair (%q, %q) needs %d and %d components",
			ctx.Field(dst).Name, ctx.Field(src).Name, dstComps, srcComps)
	}
	return nil
}
