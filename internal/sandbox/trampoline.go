package sandbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// trampolineEnv marks a process started as the limit-setting trampoline and
// carries the encoded limits.
const trampolineEnv = "CLIPROBE_SANDBOX_LIMITS"

// ErrStart reports that the program could not be started at all, e.g. a
// missing interpreter or a file that is not a valid executable.
var ErrStart = errors.New("cannot start program")

// awaitExec blocks until the trampoline has either replaced itself with the
// target (the status pipe closes empty) or reported why it could not.
// Warnings about limits that could not be lowered are returned separately.
func awaitExec(r *os.File) (warnings []string, err error) {
	defer r.Close()
	data, readErr := io.ReadAll(r)
	if readErr != nil {
		return nil, fmt.Errorf("read trampoline status: %w", readErr)
	}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		kind, rest, _ := strings.Cut(line, " ")
		switch kind {
		case "warn":
			warnings = append(warnings, rest)
		case "exec":
			n, convErr := strconv.Atoi(rest)
			if convErr != nil {
				return warnings, fmt.Errorf("malformed trampoline status %q", line)
			}
			err = syscall.Errno(n)
		}
	}
	return warnings, err
}
