//go:build linux || darwin

package sandbox

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// rlimInfinity is RLIM_INFINITY as stored in a 64-bit rlimit.
const rlimInfinity = ^uint64(0)

// lowerOwnLimits lowers the calling process's rlimits. The address space
// ceiling is applied last so nothing after it needs fresh mappings.
func lowerOwnLimits(l ResourceLimits) error {
	var errs []error
	for _, lim := range []struct {
		name     string
		resource int
		value    uint64
	}{
		{"RLIMIT_NOFILE", unix.RLIMIT_NOFILE, l.MaxFileDescriptors},
		{"RLIMIT_NPROC", unix.RLIMIT_NPROC, l.MaxProcesses},
		{"RLIMIT_AS", unix.RLIMIT_AS, l.MaxMemoryBytes},
	} {
		if lim.value == 0 {
			continue
		}
		if err := lowerLimit(lim.resource, lim.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", lim.name, err))
		}
	}
	return errors.Join(errs...)
}

// lowerLimit sets both soft and hard limit to value unless the hard limit
// is already at or below it.
func lowerLimit(resource int, value uint64) error {
	var cur unix.Rlimit
	if err := unix.Getrlimit(resource, &cur); err != nil {
		return err
	}
	if cur.Max != rlimInfinity && cur.Max <= value {
		return nil
	}
	return unix.Setrlimit(resource, &unix.Rlimit{Cur: value, Max: value})
}
