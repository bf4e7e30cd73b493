// Package context snapshots the host a run executes on. The snapshot is
// copied into every test report so results can be compared across machines.
package context

import (
	"fmt"
	"os"
	"time"

	"github.com/ancients-collective/cliprobe/internal/types"
)

// OSInfo identifies the operating system.
type OSInfo struct {
	Name     string
	Version  string
	Arch     string
	Platform string
}

// EnvInfo describes where the process runs.
type EnvInfo struct {
	// Type is types.EnvContainer, types.EnvVM or types.EnvBareMetal.
	Type     string
	Runtime  string
	Hostname string
}

// OSDetector abstracts platform-specific detection. Each supported OS
// provides an implementation via build tags.
type OSDetector interface {
	DetectOS() (OSInfo, error)
	DetectEnvironment() (EnvInfo, error)
}

// Snapshot runs layered detection:
//   - Layer 1: OS detection (must succeed)
//   - Layer 2: environment detection (warning on failure, continues)
//
// The shell comes from $SHELL. BatsVersion is left for the runner to fill.
func Snapshot(detector OSDetector, now time.Time) (types.Environment, []string, error) {
	var env types.Environment
	var warnings []string

	osInfo, err := detector.DetectOS()
	if err != nil {
		return env, nil, fmt.Errorf("OS detection failed: %w", err)
	}
	env.OS = osInfo.Name
	env.OSVersion = osInfo.Version
	env.Arch = osInfo.Arch
	env.Platform = osInfo.Platform

	info, err := detector.DetectEnvironment()
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("environment detection failed: %v", err))
		info = EnvInfo{Type: types.EnvBareMetal}
	}
	env.EnvType = info.Type
	env.EnvRuntime = info.Runtime
	env.Hostname = info.Hostname

	env.Shell = os.Getenv("SHELL")
	env.Timestamp = now.UTC()
	return env, warnings, nil
}
