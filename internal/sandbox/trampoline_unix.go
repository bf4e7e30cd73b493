//go:build linux || darwin

package sandbox

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// statusFD is the trampoline's end of the status pipe (the first ExtraFile).
const statusFD = 3

// MaybeTrampoline turns the current process into the sandbox trampoline when
// it was started as one: it lowers its own rlimits and execs the program
// named in os.Args[1], so the ceilings are in place before the untrusted
// image runs. In a normal process it returns immediately.
//
// Call it first in main, and in TestMain of any package whose tests start
// children through a limited Sandbox.
func MaybeTrampoline() {
	encoded, ok := os.LookupEnv(trampolineEnv)
	if !ok {
		return
	}
	os.Exit(trampoline(encoded, os.Args[1:]))
}

func trampoline(encoded string, argv []string) int {
	status := os.NewFile(statusFD, "sandbox-status")
	if len(argv) == 0 {
		fmt.Fprintf(status, "exec %d\n", int(unix.ENOENT))
		return 127
	}

	env := make([]string, 0, len(os.Environ()))
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, trampolineEnv+"=") {
			env = append(env, kv)
		}
	}
	// Reserved up front: after RLIMIT_AS is lowered the failure path must not allocate.
	failure := make([]byte, 0, 32)

	if limits, err := decodeLimits(encoded); err != nil {
		fmt.Fprintf(status, "warn %s\n", err)
	} else if err := lowerOwnLimits(limits); err != nil {
		fmt.Fprintf(status, "warn %s\n", strings.ReplaceAll(err.Error(), "\n", "; "))
	}

	unix.CloseOnExec(statusFD)
	err := unix.Exec(argv[0], argv, env)

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		errno = unix.ENOEXEC
	}
	failure = append(failure, "exec "...)
	failure = strconv.AppendInt(failure, int64(errno), 10)
	failure = append(failure, '\n')
	_, _ = status.Write(failure)
	return 127
}

// wrapCommand rewrites cmd to start through the trampoline and returns the
// read end of the status pipe. The write end is cmd.ExtraFiles[0]; the caller
// closes it once the child has started.
func wrapCommand(cmd *exec.Cmd, limits ResourceLimits) (*os.File, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate trampoline: %w", err)
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("status pipe: %w", err)
	}
	cmd.Args = append([]string{self, cmd.Path}, cmd.Args[1:]...)
	cmd.Path = self
	cmd.Env = append(cmd.Env, trampolineEnv+"="+limits.encode())
	cmd.ExtraFiles = []*os.File{w}
	return r, nil
}
