package types

import "time"

// Valid environment types.
const (
	EnvContainer = "container"
	EnvVM        = "vm"
	EnvBareMetal = "bare-metal"
)

// Environment is a snapshot of the host a run executed on.
type Environment struct {
	// OS is the operating system identifier (e.g., "linux", "darwin").
	OS string `json:"os"`

	// OSVersion is the kernel version string.
	OSVersion string `json:"os_version,omitempty"`

	// Arch is the CPU architecture (e.g., "amd64", "arm64").
	Arch string `json:"arch"`

	// Platform is the distribution or product name (e.g., "ubuntu 22.04").
	Platform string `json:"platform,omitempty"`

	// Shell is the user's login shell from $SHELL.
	Shell string `json:"shell,omitempty"`

	// Hostname is the system hostname.
	Hostname string `json:"hostname,omitempty"`

	// EnvType is "container", "vm", or "bare-metal".
	EnvType string `json:"env_type"`

	// EnvRuntime is the specific runtime (e.g., "docker", "kvm").
	EnvRuntime string `json:"env_runtime,omitempty"`

	// BatsVersion is the test runner's self-reported version.
	BatsVersion string `json:"bats_version,omitempty"`

	// Timestamp is when the snapshot was taken.
	Timestamp time.Time `json:"timestamp"`
}
