package sandbox

import (
	"fmt"
	"strconv"
	"strings"
)

// ResourceLimits are the ceilings applied to every sandboxed child.
// Limits are only ever lowered, never raised above the inherited hard limit.
type ResourceLimits struct {
	// MaxMemoryBytes bounds the address space (RLIMIT_AS).
	MaxMemoryBytes uint64 `json:"max_memory_bytes"`

	// MaxFileDescriptors bounds open files (RLIMIT_NOFILE).
	MaxFileDescriptors uint64 `json:"max_file_descriptors"`

	// MaxProcesses bounds processes for the user (RLIMIT_NPROC).
	MaxProcesses uint64 `json:"max_processes"`
}

// DefaultLimits returns 500 MB of address space, 1024 descriptors and 100 processes.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxMemoryBytes:     500 * 1024 * 1024,
		MaxFileDescriptors: 1024,
		MaxProcesses:       100,
	}
}

// encode renders the limits as "as:nofile:nproc" for the trampoline.
func (l ResourceLimits) encode() string {
	return fmt.Sprintf("%d:%d:%d", l.MaxMemoryBytes, l.MaxFileDescriptors, l.MaxProcesses)
}

func decodeLimits(s string) (ResourceLimits, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return ResourceLimits{}, fmt.Errorf("malformed limits %q", s)
	}
	var vals [3]uint64
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return ResourceLimits{}, fmt.Errorf("malformed limits %q: %w", s, err)
		}
		vals[i] = v
	}
	return ResourceLimits{MaxMemoryBytes: vals[0], MaxFileDescriptors: vals[1], MaxProcesses: vals[2]}, nil
}
