package introspect

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ancients-collective/cliprobe/internal/clierr"
	"github.com/ancients-collective/cliprobe/internal/sandbox"
)

// Default probe timeouts.
const (
	DefaultHelpTimeout    = 5 * time.Second
	DefaultVersionTimeout = 2 * time.Second
	DefaultProbeTimeout   = 1 * time.Second
)

// rootHelpAttempts are tried in order against the binary itself.
var rootHelpAttempts = [][]string{{"--help"}, {"-h"}, {"help"}}

// nodeHelpAttempts are appended to a subcommand path.
var nodeHelpAttempts = [][]string{{"--help"}, {"-h"}}

// fetchHelp runs each attempt under the sandbox and returns the first
// non-empty output. A binary that cannot be started by any attempt is
// NotExecutable. Otherwise all attempts failing is HelpUnavailable; every
// attempt timing out is reported as such in the message.
func fetchHelp(ctx context.Context, exec sandbox.Executor, binary string, prefix []string, attempts [][]string, timeout time.Duration) (string, error) {
	timeouts, startFailures := 0, 0
	var lastErr error
	for _, suffix := range attempts {
		args := append(append([]string(nil), prefix...), suffix...)
		res, err := exec.Run(ctx, sandbox.Spec{Path: binary, Args: args, Timeout: timeout})
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if errors.Is(err, sandbox.ErrStart) {
				startFailures++
			}
			lastErr = err
			continue
		}
		if res.TimedOut {
			timeouts++
			continue
		}
		if out := res.Output(); strings.TrimSpace(out) != "" {
			return out, nil
		}
	}

	subject := strings.TrimSpace(binary + " " + strings.Join(prefix, " "))
	if startFailures == len(attempts) {
		return "", clierr.Wrap(clierr.NotExecutable, binary, "cannot be executed", lastErr)
	}
	if timeouts == len(attempts) {
		return "", clierr.New(clierr.HelpUnavailable, subject, "every help invocation timed out")
	}
	if lastErr != nil {
		return "", clierr.Wrap(clierr.HelpUnavailable, subject, "no help output", lastErr)
	}
	return "", clierr.New(clierr.HelpUnavailable, subject, "help invocations produced no output")
}
