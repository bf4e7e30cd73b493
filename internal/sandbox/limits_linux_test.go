//go:build linux

package sandbox

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSandbox_LimitsInPlaceAtFirstInstruction(t *testing.T) {
	sb := New(WithLimits(ResourceLimits{
		MaxMemoryBytes:     256 * 1024 * 1024,
		MaxFileDescriptors: 64,
		MaxProcesses:       50,
	}))

	// No delay: the limits must already hold when the shell first reads them.
	res, err := sb.Run(context.Background(), Spec{
		Path:    "/bin/sh",
		Args:    []string{"-c", "ulimit -n; ulimit -H -n; ulimit -v"},
		Timeout: 5 * time.Second,
	})

	require.NoError(t, err)
	lines := strings.Fields(res.Stdout)
	require.Len(t, lines, 3, "stdout: %q stderr: %q", res.Stdout, res.Stderr)
	for _, l := range lines[:2] {
		n, err := strconv.Atoi(l)
		require.NoError(t, err)
		assert.LessOrEqual(t, n, 64)
	}
	kb, err := strconv.Atoi(lines[2])
	require.NoError(t, err)
	assert.LessOrEqual(t, kb, 256*1024)
}

func TestSandbox_TrampolineEnvNotLeaked(t *testing.T) {
	res, err := New().Run(context.Background(), shSpec("env"))

	require.NoError(t, err)
	assert.NotContains(t, res.Stdout, trampolineEnv)
}

func TestSandbox_InvalidExecutableIsStartError(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad")
	require.NoError(t, os.WriteFile(bad, []byte("\x7fELF\x00\x01\x02\x03"), 0o755))
	noInterp := filepath.Join(dir, "nointerp")
	require.NoError(t, os.WriteFile(noInterp, []byte("#!/nonexistent/interpreter\n"), 0o755))

	for name, sb := range map[string]*Sandbox{"limited": New(), "unlimited": New(WithoutLimits())} {
		for _, path := range []string{bad, noInterp} {
			t.Run(name+"/"+filepath.Base(path), func(t *testing.T) {
				_, err := sb.Run(context.Background(), Spec{Path: path, Timeout: 5 * time.Second})
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrStart)
			})
		}
	}
}

func TestSandbox_LoweringLimitsLogsNoWarning(t *testing.T) {
	var logs bytes.Buffer
	sb := New(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))), WithLimits(ResourceLimits{MaxFileDescriptors: 32}))
	_, err := sb.Run(context.Background(), shSpec("true"))

	require.NoError(t, err)
	// Lowering is always permitted, so nothing is reported.
	assert.NotContains(t, logs.String(), "not applied")
}

func TestLowerLimit_NeverRaises(t *testing.T) {
	var cur unix.Rlimit
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_NOFILE, &cur))
	if cur.Max == rlimInfinity {
		t.Skip("hard limit is unlimited")
	}

	// Asking for more than the hard limit is a no-op.
	require.NoError(t, lowerLimit(unix.RLIMIT_NOFILE, cur.Max+1))

	var after unix.Rlimit
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_NOFILE, &after))
	assert.Equal(t, cur, after)
}

func TestLowerOwnLimits_ZeroValuesSkipped(t *testing.T) {
	assert.NoError(t, lowerOwnLimits(ResourceLimits{}))
}

func TestAwaitExec(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		warnings []string
		errno    unix.Errno
	}{
		{"exec succeeded", "", nil, 0},
		{"warning only", "warn RLIMIT_NPROC: operation not permitted\n", []string{"RLIMIT_NPROC: operation not permitted"}, 0},
		{"exec failed", "exec " + strconv.Itoa(int(unix.ENOEXEC)) + "\n", nil, unix.ENOEXEC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, w, err := os.Pipe()
			require.NoError(t, err)
			_, err = w.WriteString(tt.status)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			warnings, err := awaitExec(r)

			assert.Equal(t, tt.warnings, warnings)
			if tt.errno == 0 {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.errno)
			}
		})
	}
}
