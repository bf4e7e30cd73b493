package introspect

import (
	"context"
	"regexp"
	"time"

	"github.com/ancients-collective/cliprobe/internal/sandbox"
)

var versionPattern = regexp.MustCompile(`\b\d+\.\d+(?:\.\d+)?(?:-[a-z0-9.]+)?\b`)

var versionAttempts = [][]string{{"--version"}, {"-v"}, {"version"}}

// detectVersion returns the first version-looking token printed by the
// version attempts, or nil.
func detectVersion(ctx context.Context, exec sandbox.Executor, binary string, timeout time.Duration) *string {
	for _, args := range versionAttempts {
		res, err := exec.Run(ctx, sandbox.Spec{Path: binary, Args: args, Timeout: timeout})
		if err != nil || res.TimedOut {
			continue
		}
		if v := ExtractVersion(res.Combined()); v != "" {
			return &v
		}
	}
	return nil
}

// ExtractVersion returns the first semantic-version-like token in text.
func ExtractVersion(text string) string {
	return versionPattern.FindString(text)
}
