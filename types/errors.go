package types

import (
	"errors"
	"fmt"
)

// ConfigurationError reports an inconsistent field, quadrature, constraint
// or mesh setup. It is detected during setup and is fatal to the caller.
type ConfigurationError struct {
	Component string
	Reason    string
}

func NewConfigurationError(component, format string, args ...interface{}) error {
	return &ConfigurationError{Component: component, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: configuration error: %s", e.Component, e.Reason)
}

// PartitionError reports a mesh partition the engine can not run on, such as
// a missing ghost layer.
type PartitionError struct {
	Rank   int
	CellID int
	Reason string
}

func (e *PartitionError) Error() string {
	if e.CellID < 0 {
		return fmt.Sprintf("rank %d: partition error: %s", e.Rank, e.Reason)
	}
	return fmt.Sprintf("rank %d: partition error at cell %d: %s", e.Rank, e.CellID, e.Reason)
}

var (
	ErrNoOwner        = errors.New("no owning cell found")
	ErrAmbiguousOwner = errors.New("more than one owning cell found")
)

// GeometricSearchError reports a query point that does not map to exactly
// one source cell. Candidates holds the owning ranks found for the point.
type GeometricSearchError struct {
	Rank       int
	Point      []float64
	Candidates []int
	Kind       error // ErrNoOwner or ErrAmbiguousOwner
}

func (e *GeometricSearchError) Error() string {
	return fmt.Sprintf("rank %d: geometric search for point %v: %v (candidate ranks %v)",
		e.Rank, e.Point, e.Kind, e.Candidates)
}

func (e *GeometricSearchError) Unwrap() error { return e.Kind }
