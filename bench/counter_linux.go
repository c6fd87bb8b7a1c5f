//go:build linux

package bench

import (
	perf "github.com/hodgesds/perf-utils"
)

// countInstructions runs fn and reports the instructions retired by the
// calling thread.
func countInstructions(fn func() error) (uint64, error) {
	pv, err := perf.CPUInstructions(fn)
	if err != nil {
		return 0, err
	}
	return pv.Value, nil
}
