package context

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ancients-collective/cliprobe/internal/types"
)

// mockDetector is a configurable OSDetector for testing the coordinator logic.
type mockDetector struct {
	osInfo OSInfo
	osErr  error
	env    EnvInfo
	envErr error
}

func (m *mockDetector) DetectOS() (OSInfo, error)           { return m.osInfo, m.osErr }
func (m *mockDetector) DetectEnvironment() (EnvInfo, error) { return m.env, m.envErr }

var snapshotTime = time.Date(2026, 1, 15, 10, 30, 0, 0, time.FixedZone("CET", 3600))

func TestSnapshot_AllSuccess(t *testing.T) {
	t.Setenv("SHELL", "/bin/zsh")
	detector := &mockDetector{
		osInfo: OSInfo{Name: "linux", Version: "6.1.0", Arch: "amd64", Platform: "ubuntu 22.04"},
		env:    EnvInfo{Type: types.EnvContainer, Runtime: "docker", Hostname: "ci-runner"},
	}

	env, warnings, err := Snapshot(detector, snapshotTime)

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, types.Environment{
		OS:         "linux",
		OSVersion:  "6.1.0",
		Arch:       "amd64",
		Platform:   "ubuntu 22.04",
		Shell:      "/bin/zsh",
		Hostname:   "ci-runner",
		EnvType:    types.EnvContainer,
		EnvRuntime: "docker",
		Timestamp:  snapshotTime.UTC(),
	}, env)
}

func TestSnapshot_OSFailure(t *testing.T) {
	_, _, err := Snapshot(&mockDetector{osErr: errors.New("no uname")}, snapshotTime)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "OS detection failed")
}

func TestSnapshot_EnvironmentFailureNonFatal(t *testing.T) {
	detector := &mockDetector{
		osInfo: OSInfo{Name: "linux", Arch: "arm64"},
		envErr: errors.New("cgroup unreadable"),
	}

	env, warnings, err := Snapshot(detector, snapshotTime)

	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "environment detection failed")
	assert.Equal(t, types.EnvBareMetal, env.EnvType)
	assert.Equal(t, "arm64", env.Arch)
}

func TestSnapshot_NoShell(t *testing.T) {
	t.Setenv("SHELL", "")

	env, _, err := Snapshot(&mockDetector{osInfo: OSInfo{Name: "linux"}, env: EnvInfo{Type: types.EnvVM, Runtime: "kvm"}}, snapshotTime)

	require.NoError(t, err)
	assert.Empty(t, env.Shell)
	assert.Equal(t, types.EnvVM, env.EnvType)
	assert.Empty(t, env.BatsVersion)
}

func TestNewOSDetector_RealHost(t *testing.T) {
	env, _, err := Snapshot(NewOSDetector(), time.Now())

	require.NoError(t, err)
	assert.NotEmpty(t, env.OS)
	assert.NotEmpty(t, env.Arch)
	assert.Contains(t, []string{types.EnvContainer, types.EnvVM, types.EnvBareMetal}, env.EnvType)
}
