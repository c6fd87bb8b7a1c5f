package matrixfree

import (
	"github.com/notargets/mfdg/types"
)

type FieldID int

type QuadID int

// FieldLayout describes a discontinuous tensor-product Lagrange field.
type FieldLayout struct {
	Name       string
	Components int
	Degree     int
	// Exact fields refuse quadrature rules that do not integrate
	// IntegrandOrder*Degree polynomials exactly.
	Exact bool
}

// Constraints selects how the field is tied at the boundary. Hanging node
// constraints need non-conforming meshes, which this engine does not build.
type Constraints struct {
	Dirichlet    []types.BoundaryID
	Neumann      []types.BoundaryID
	HangingNodes bool
}

// QuadratureRule is a tensor Gauss rule with Points1D points per direction.
// IntegrandOrder is the multiple of the field degree the rule is meant to
// integrate exactly: 2 for linear terms, 3 for quadratic fluxes. An empty
// Fields list binds the rule to every field.
type QuadratureRule struct {
	Points1D       int
	IntegrandOrder int
	Fields         []FieldID
}

// LinearRule is the p+1 point rule of mass and Laplace terms.
func LinearRule(degree int, fields ...FieldID) QuadratureRule {
	return QuadratureRule{Points1D: degree + 1, IntegrandOrder: 2, Fields: fields}
}

// NonlinearRule integrates the quadratic convective flux of a degree p field
// exactly with p + (p+2)/2 points.
func NonlinearRule(degree int, fields ...FieldID) QuadratureRule {
	return QuadratureRule{Points1D: degree + (degree+2)/2, IntegrandOrder: 3, Fields: fields}
}

func (r QuadratureRule) binds(f FieldID) bool {
	if len(r.Fields) == 0 {
		return true
	}
	for _, id := range r.Fields {
		if id == f {
			return true
		}
	}
	return false
}

func ipow(b, e int) (p int) {
	p = 1
	for i := 0; i < e; i++ {
		p *= b
	}
	return
}
