//go:build !linux && !darwin

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// MaybeTrampoline is a no-op where resource limits are unsupported.
func MaybeTrampoline() {}

func wrapCommand(*exec.Cmd, ResourceLimits) (*os.File, error) {
	return nil, fmt.Errorf("resource limits are not supported on %s", runtime.GOOS)
}
