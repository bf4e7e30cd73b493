//go:build !linux && !darwin

package sandbox

import (
	"fmt"
	"runtime"
)

func lowerOwnLimits(ResourceLimits) error {
	return fmt.Errorf("resource limits are not supported on %s", runtime.GOOS)
}
