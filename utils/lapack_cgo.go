//go:build cgo && netlib

package utils

/*
#cgo LDFLAGS: -lopenblas -lgfortran -lm -lpthread
#include <cblas.h>
*/
import "C"

import (
	"gonum.org/v1/gonum/blas/blas64"
	netblas "gonum.org/v1/netlib/blas/netlib"
)

// Dense 1D element operators are small, so netlib only pays off for the
// Vandermonde factorizations at high degree. Enabled with -tags netlib.
func init() {
	blas64.Use(netblas.Implementation{})
}
