package bench

import (
	"fmt"
	"strings"
)

// Operator selects what a benchmark applies repeatedly.
type Operator uint8

const (
	ConvectiveTerm Operator = iota
	ViscousTerm
	ViscousAndConvectiveTerms
	InverseMassMatrix
	InverseMassMatrixDstDst
	VectorUpdate
	EvaluateOperatorExplicit
)

var operatorNames = []string{
	"ConvectiveTerm",
	"ViscousTerm",
	"ViscousAndConvectiveTerms",
	"InverseMassMatrix",
	"InverseMassMatrixDstDst",
	"VectorUpdate",
	"EvaluateOperatorExplicit",
}

func (op Operator) String() string {
	if int(op) < len(operatorNames) {
		return operatorNames[op]
	}
	return fmt.Sprintf("Operator(%d)", uint8(op))
}

func ParseOperator(name string) (Operator, error) {
	for i, n := range operatorNames {
		if strings.EqualFold(n, name) {
			return Operator(i), nil
		}
	}
	return 0, fmt.Errorf("unknown benchmark operator %q, choose one of %v", name, operatorNames)
}
