package operators

import (
	"github.com/notargets/mfdg/matrixfree"
	"github.com/notargets/mfdg/types"
)

// ScalarFunction is a scalar function of space.
type ScalarFunction func(x []float64) float64

// VariableCoefficients stores a spatially varying coefficient on the
// quadrature points of one rule, batch by batch, lane interleaved.
type VariableCoefficients struct {
	quad  matrixfree.QuadID
	cells [][]float64 // [batch][q*W + lane]
	faces [][]float64
	w     int
}

// NewVariableCoefficients samples fn on every cell and face quadrature
// point of rule q as seen by field f.
func NewVariableCoefficients(ctx *matrixfree.Context, f matrixfree.FieldID, q matrixfree.QuadID,
	fn ScalarFunction) (vc *VariableCoefficients, err error) {
	if ctx.Shape(f, q) == nil {
		err = types.NewConfigurationError("operators", "coefficient quadrature %d is not bound to field %d", q, f)
		return
	}
	var (
		nq    = ctx.Quadrature(q).Points1D
		W     = ctx.Lanes()
		nCell = W
		nFace = W
	)
	for d := 0; d < ctx.Dim(); d++ {
		nCell *= nq
		if d > 0 {
			nFace *= nq
		}
	}
	vc = &VariableCoefficients{
		quad:  q,
		cells: make([][]float64, len(ctx.CellBatches())),
		faces: make([][]float64, len(ctx.FaceBatches())),
		w:     W,
	}
	for i := range vc.cells {
		vc.cells[i] = make([]float64, nCell)
	}
	for i := range vc.faces {
		vc.faces[i] = make([]float64, nFace)
	}
	rec := &coefficientSampler{vc: vc, fn: fn}
	spec := matrixfree.LoopSpec{Dst: f, Src: f, Quad: q}
	scratch := ctx.NewVector(f)
	if err = ctx.ForEachCellBatch(spec, rec, scratch, nil); err != nil {
		return
	}
	err = ctx.ForEachFaceBatch(spec, rec, rec, scratch, nil)
	return
}

// Cell returns the coefficient at a cell quadrature point.
func (vc *VariableCoefficients) Cell(p *matrixfree.QuadPoint, lane int) float64 {
	return vc.cells[p.Batch][p.Q*vc.w+lane]
}

// Face returns the coefficient at a face quadrature point.
func (vc *VariableCoefficients) Face(p *matrixfree.FacePoint, lane int) float64 {
	return vc.faces[p.Batch][p.Q*vc.w+lane]
}

type coefficientSampler struct {
	vc *VariableCoefficients
	fn ScalarFunction
}

func (*coefficientSampler) CellFlags() (matrixfree.EvaluationFlags, matrixfree.EvaluationFlags) {
	return 0, 0
}

func (s *coefficientSampler) Cell(p *matrixfree.QuadPoint) {
	s.sample(s.vc.cells[p.Batch][p.Q*s.vc.w:], p.X, p.Dim)
}

func (*coefficientSampler) FaceFlags() (matrixfree.EvaluationFlags, matrixfree.EvaluationFlags) {
	return 0, 0
}

func (s *coefficientSampler) Face(p *matrixfree.FacePoint) {
	s.sample(s.vc.faces[p.Batch][p.Q*s.vc.w:], p.X, p.Dim)
}

func (s *coefficientSampler) sample(out []float64, X [][]float64, dim int) {
	var xb [3]float64
	x := xb[:dim]
	for l := 0; l < s.vc.w; l++ {
		for d := range x {
			x[d] = X[d][l]
		}
		out[l] = s.fn(x)
	}
}
