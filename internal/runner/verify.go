package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ancients-collective/cliprobe/internal/synth"
)

// VerifySuiteDirectory checks that a suite directory cannot have been
// tampered with by other users. It returns one warning per problem; an empty
// result means the directory is safe to execute from.
func VerifySuiteDirectory(dir string) []string {
	warnings, info := verifyDirEntry(dir)
	if info == nil {
		return warnings
	}
	warnings = append(warnings, checkDirPermissions(dir, info.Mode().Perm())...)

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return append(warnings, fmt.Sprintf("cannot resolve absolute path for %q: %v", dir, err))
	}

	walkErr := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("error accessing %q during walk: %v", path, err))
			return nil
		}
		warnings = append(warnings, verifyWalkEntry(path, d, absDir)...)
		return nil
	})
	if walkErr != nil {
		warnings = append(warnings, fmt.Sprintf("walk error in suite directory: %v", walkErr))
	}
	return warnings
}

func verifyDirEntry(dir string) ([]string, os.FileInfo) {
	info, err := os.Lstat(dir)
	if err != nil {
		return []string{fmt.Sprintf("cannot stat suite directory %q: %v", dir, err)}, nil
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return []string{fmt.Sprintf("suite directory %q is a symlink", dir)}, nil
	}
	if !info.IsDir() {
		return []string{fmt.Sprintf("suite path %q is not a directory", dir)}, nil
	}
	return nil, info
}

func checkDirPermissions(dir string, perm os.FileMode) []string {
	var warnings []string
	if perm&0o002 != 0 {
		warnings = append(warnings, fmt.Sprintf("suite directory %q is world-writable (%04o)", dir, perm))
	}
	if perm&0o020 != 0 {
		warnings = append(warnings, fmt.Sprintf("suite directory %q is group-writable (%04o)", dir, perm))
	}
	return warnings
}

// verifyWalkEntry flags symlinks leaving the directory and writable suites.
func verifyWalkEntry(path string, d os.DirEntry, absDir string) []string {
	if d.Type()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(path)
		if err != nil {
			return []string{fmt.Sprintf("symlink %q cannot be resolved: %v", path, err)}
		}
		absTarget, _ := filepath.Abs(target)
		if !strings.HasPrefix(absTarget, absDir+string(filepath.Separator)) && absTarget != absDir {
			return []string{fmt.Sprintf("symlink %q points outside suite directory (-> %s)", path, absTarget)}
		}
		return nil
	}

	if d.IsDir() || (filepath.Ext(path) != ".bats" && d.Name() != synth.ManifestFile) {
		return nil
	}
	fi, err := d.Info()
	if err != nil {
		return nil
	}
	if fi.Mode().Perm()&0o022 != 0 {
		return []string{fmt.Sprintf("suite file %q is writable by others (%04o)", path, fi.Mode().Perm())}
	}
	return nil
}
