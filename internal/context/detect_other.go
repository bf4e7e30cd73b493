//go:build !linux && !darwin

package context

import (
	"os"
	"runtime"

	"github.com/ancients-collective/cliprobe/internal/types"
)

// GenericDetector reports what the Go runtime knows.
type GenericDetector struct{}

// NewOSDetector returns a GenericDetector.
func NewOSDetector() OSDetector {
	return &GenericDetector{}
}

func (d *GenericDetector) DetectOS() (OSInfo, error) {
	return OSInfo{Name: runtime.GOOS, Arch: runtime.GOARCH}, nil
}

func (d *GenericDetector) DetectEnvironment() (EnvInfo, error) {
	env := EnvInfo{Type: types.EnvBareMetal}
	if h, err := os.Hostname(); err == nil {
		env.Hostname = h
	}
	return env, nil
}
