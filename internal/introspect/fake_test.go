package introspect

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ancients-collective/cliprobe/internal/sandbox"
)

// scriptedExec answers sandbox runs from a table keyed by the joined args.
// Unknown invocations exit 1 with no output.
type scriptedExec struct {
	mu        sync.Mutex
	calls     []string
	responses map[string]sandbox.Result
	respond   func(args []string) sandbox.Result
}

func (s *scriptedExec) Run(_ context.Context, spec sandbox.Spec) (sandbox.Result, error) {
	key := strings.Join(spec.Args, " ")
	s.mu.Lock()
	s.calls = append(s.calls, key)
	s.mu.Unlock()

	if s.respond != nil {
		return s.respond(spec.Args), nil
	}
	if res, ok := s.responses[key]; ok {
		return res, nil
	}
	return sandbox.Result{ExitCode: 1}, nil
}

func (s *scriptedExec) called(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c == key {
			return true
		}
	}
	return false
}

func okResult(stdout string) sandbox.Result {
	return sandbox.Result{Stdout: stdout}
}

// writeBinary creates an executable shell script and returns its path.
func writeBinary(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}
