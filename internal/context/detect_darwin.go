//go:build darwin

package context

import (
	"os"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/ancients-collective/cliprobe/internal/types"
)

// DarwinDetector implements OSDetector for macOS.
type DarwinDetector struct{}

// NewOSDetector returns a DarwinDetector.
func NewOSDetector() OSDetector {
	return &DarwinDetector{}
}

// DetectOS returns macOS information. gopsutil failures degrade to
// runtime values.
func (d *DarwinDetector) DetectOS() (OSInfo, error) {
	info, err := host.Info()
	if err != nil {
		return OSInfo{Name: runtime.GOOS, Arch: runtime.GOARCH}, nil
	}
	return OSInfo{
		Name:     runtime.GOOS,
		Version:  info.KernelVersion,
		Arch:     runtime.GOARCH,
		Platform: strings.TrimSpace(info.Platform + " " + info.PlatformVersion),
	}, nil
}

// DetectEnvironment reports bare-metal with the hostname.
func (d *DarwinDetector) DetectEnvironment() (EnvInfo, error) {
	env := EnvInfo{Type: types.EnvBareMetal}
	if h, err := os.Hostname(); err == nil {
		env.Hostname = h
	}
	return env, nil
}
