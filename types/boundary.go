package types

import (
	"fmt"
	"strings"
)

// BoundaryID is the mesh indicator attached to a boundary face. The box mesh
// generator uses the face number 2*dir+side.
type BoundaryID int

// NoBoundary marks an interior face.
const NoBoundary BoundaryID = -1

type BCKind uint8

const (
	BC_None BCKind = iota
	BC_Dirichlet
	BC_Neumann
	BC_Periodic
	// BC_Coupled is a Dirichlet condition whose values come from another
	// domain through an interface coupling.
	BC_Coupled
)

func (bc BCKind) String() string {
	switch bc {
	case BC_None:
		return "None"
	case BC_Dirichlet:
		return "Dirichlet"
	case BC_Neumann:
		return "Neumann"
	case BC_Periodic:
		return "Periodic"
	case BC_Coupled:
		return "Coupled"
	}
	return fmt.Sprintf("BCKind(%d)", uint8(bc))
}

var BCNameMap = map[string]BCKind{
	"dirichlet": BC_Dirichlet,
	"wall":      BC_Dirichlet,
	"neumann":   BC_Neumann,
	"neuman":    BC_Neumann,
	"outflow":   BC_Neumann,
	"periodic":  BC_Periodic,
	"coupled":   BC_Coupled,
	"interface": BC_Coupled,
	"overset":   BC_Coupled,
}

// ParseBCName converts a case insensitive boundary condition name.
func ParseBCName(name string) (BCKind, error) {
	if bc, ok := BCNameMap[strings.ToLower(strings.TrimSpace(name))]; ok {
		return bc, nil
	}
	return BC_None, fmt.Errorf("unknown boundary condition type %q", name)
}
