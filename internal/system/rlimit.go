//go:build !windows

// Package system adjusts process resource limits. Wide sweeps hold one socket
// per in-flight probe, which can exceed conservative default NOFILE limits
package system

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// RaiseFDLimit lifts the soft open-file limit to at least want, capped by the
// hard limit. Returns the resulting soft limit
func RaiseFDLimit(want uint64) (uint64, error) {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return 0, fmt.Errorf("reading NOFILE limit: %w", err)
	}

	if limit.Cur >= want {
		return limit.Cur, nil
	}

	target := want
	if target > limit.Max {
		target = limit.Max
	}

	limit.Cur = target
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return 0, fmt.Errorf("raising NOFILE limit to %d: %w", target, err)
	}
	return target, nil
}
