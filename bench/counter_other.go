//go:build !linux

package bench

import "errors"

func countInstructions(fn func() error) (uint64, error) {
	return 0, errors.New("instruction counting needs linux perf events")
}
