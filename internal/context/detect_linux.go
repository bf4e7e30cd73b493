//go:build linux

package context

import (
	"bytes"
	"os"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/ancients-collective/cliprobe/internal/types"
)

// virtualizationFunc matches host.Virtualization: it returns the system
// and the role ("guest" or "host").
type virtualizationFunc func() (system, role string, err error)

// linuxPaths are the files consulted when gopsutil is inconclusive.
type linuxPaths struct {
	dockerenv    string
	containerenv string
	cgroup       string
	sysVendor    string
	productName  string
	cpuinfo      string
	deviceTree   string
}

func defaultLinuxPaths() linuxPaths {
	return linuxPaths{
		dockerenv:    "/.dockerenv",
		containerenv: "/run/.containerenv",
		cgroup:       "/proc/self/cgroup",
		sysVendor:    "/sys/class/dmi/id/sys_vendor",
		productName:  "/sys/class/dmi/id/product_name",
		cpuinfo:      "/proc/cpuinfo",
		deviceTree:   "/proc/device-tree/hypervisor/compatible",
	}
}

// LinuxDetector implements OSDetector using gopsutil with filesystem fallbacks.
type LinuxDetector struct {
	info  func() (*host.InfoStat, error)
	virt  virtualizationFunc
	paths linuxPaths
}

// NewOSDetector returns a LinuxDetector for the running host.
func NewOSDetector() OSDetector {
	return &LinuxDetector{info: host.Info, virt: host.Virtualization, paths: defaultLinuxPaths()}
}

// DetectOS returns kernel and distribution information. gopsutil failures
// degrade to runtime values.
func (d *LinuxDetector) DetectOS() (OSInfo, error) {
	info, err := d.info()
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

// DetectEnvironment classifies the host as container, VM or bare-metal, in
// that priority order.
func (d *LinuxDetector) DetectEnvironment() (EnvInfo, error) {
	env := EnvInfo{Type: types.EnvBareMetal}
	if h, err := os.Hostname(); err == nil {
		env.Hostname = h
	}

	if ok, rt := detectContainer(d.virt, d.paths); ok {
		env.Type, env.Runtime = types.EnvContainer, rt
	} else if ok, hv := detectVM(d.virt, d.paths); ok {
		env.Type, env.Runtime = types.EnvVM, hv
	}
	return env, nil
}

func isContainerRuntime(system string) bool {
	switch system {
	case "docker", "lxc", "podman", "systemd-nspawn":
		return true
	}
	return false
}

// detectContainer tries gopsutil first, then marker files and cgroup contents.
func detectContainer(virt virtualizationFunc, p linuxPaths) (bool, string) {
	if system, role, err := virt(); err == nil && role == "guest" && isContainerRuntime(system) {
		return true, system
	}

	if _, err := os.Lstat(p.dockerenv); err == nil {
		return true, "docker"
	}
	if _, err := os.Lstat(p.containerenv); err == nil {
		return true, "podman"
	}

	if data, err := os.ReadFile(p.cgroup); err == nil {
		switch {
		case bytes.Contains(data, []byte("docker")):
			return true, "docker"
		case bytes.Contains(data, []byte("kubepods")):
			return true, "kubernetes"
		case bytes.Contains(data, []byte("lxc")):
			return true, "lxc"
		}
	}
	return false, ""
}

var vendorHypervisors = []struct{ substr, hv string }{
	{"qemu", "kvm"},
	{"bochs", "kvm"},
	{"innotek gmbh", "virtualbox"},
	{"vmware, inc.", "vmware"},
	{"microsoft corporation", "hyper-v"},
	{"xen", "xen"},
	{"amazon ec2", "aws-nitro"},
	{"google", "gce"},
	{"digitalocean", "digitalocean"},
	{"hetzner", "hetzner"},
}

var productHypervisors = []struct{ substr, hv string }{
	{"kvm", "kvm"},
	{"virtualbox", "virtualbox"},
	{"vmware", "vmware"},
	{"standard pc", "kvm"},
	{"bhyve", "bhyve"},
	{"virtual machine", "hyper-v"},
}

// detectVM tries gopsutil first, then DMI, cpuinfo and device-tree.
func detectVM(virt virtualizationFunc, p linuxPaths) (bool, string) {
	if system, role, err := virt(); err == nil && role == "guest" && system != "" && !isContainerRuntime(system) {
		return true, system
	}

	if data, err := os.ReadFile(p.sysVendor); err == nil {
		v := strings.ToLower(strings.TrimSpace(string(data)))
		for _, m := range vendorHypervisors {
			if strings.Contains(v, m.substr) {
				return true, m.hv
			}
		}
	}

	if data, err := os.ReadFile(p.productName); err == nil {
		name := strings.ToLower(strings.TrimSpace(string(data)))
		for _, m := range productHypervisors {
			if strings.Contains(name, m.substr) {
				return true, m.hv
			}
		}
	}

	// x86 exposes a hypervisor CPU flag.
	if data, err := os.ReadFile(p.cpuinfo); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "flags") && strings.Contains(line, " hypervisor") {
				return true, "unknown"
			}
		}
	}

	// arm64 and other non-DMI hosts.
	if data, err := os.ReadFile(p.deviceTree); err == nil {
		dt := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(string(data))), "\x00", "")
		switch {
		case strings.Contains(dt, "kvm"):
			return true, "kvm"
		case strings.Contains(dt, "xen"):
			return true, "xen"
		default:
			return true, dt
		}
	}
	return false, ""
}
