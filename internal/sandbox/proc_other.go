//go:build !unix

package sandbox

import (
	"os"
	"os/exec"
	"syscall"
)

func newProcAttr() *syscall.SysProcAttr {
	return nil
}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func exitStatus(ps *os.ProcessState) int {
	return ps.ExitCode()
}
