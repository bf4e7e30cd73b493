package sandbox

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ancients-collective/cliprobe/internal/clierr"
)

// ResolveBinary validates that path names an existing, executable regular
// file and returns its canonical absolute path. A bare name without a path
// separator is looked up on PATH first.
func ResolveBinary(path string) (string, error) {
	if path == "" {
		return "", clierr.New(clierr.BinaryNotFound, path, "empty binary path")
	}

	candidate := path
	if !strings.ContainsRune(path, filepath.Separator) {
		if _, err := os.Stat(path); err != nil {
			found, lookErr := exec.LookPath(path)
			if lookErr != nil {
				return "", clierr.Wrap(clierr.BinaryNotFound, path, "not found on PATH", lookErr)
			}
			candidate = found
		}
	}

	info, err := os.Stat(candidate)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", clierr.New(clierr.BinaryNotFound, path, "binary does not exist")
		}
		return "", clierr.Wrap(clierr.BinaryNotFound, path, "cannot stat binary", err)
	}
	if !info.Mode().IsRegular() {
		return "", clierr.New(clierr.BinaryNotFound, path, "not a regular file")
	}
	if info.Mode().Perm()&0o111 == 0 {
		return "", clierr.New(clierr.NotExecutable, path, "no execute permission bits set")
	}

	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return "", clierr.Wrap(clierr.BinaryNotFound, path, "cannot resolve symlinks", err)
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", clierr.Wrap(clierr.BinaryNotFound, path, "cannot resolve absolute path", err)
	}
	return abs, nil
}
