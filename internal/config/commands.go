package config

import (
	"fmt"
	"path"
	"slices"
	"strings"
)

// MaxCommandLength bounds a setup or teardown command.
const MaxCommandLength = 200

// forbiddenOperators may not appear anywhere in a setup command.
var forbiddenOperators = []string{"||", "&&", "|", ";", "`", "$(", ">>", ">"}

// forbiddenWords may not appear as a word of a setup command.
var forbiddenWords = []string{"sudo", "su", "curl", "wget", "nc", "mkfs", "dd"}

// dangerousDeletes are refused even though rm is allowed.
var dangerousDeletes = []string{"rm -rf /", "rm -rf /*", "rm -rf ~", "rm -rf $HOME"}

// fixtureRoots are the only absolute locations rm may target.
var fixtureRoots = []string{"/tmp/", "/var/tmp/", "$FIXTURES/", "$BATS_FILE_TMPDIR/", "$BATS_TEST_TMPDIR/", "$TMPDIR/"}

// AllowedCommands lists the programs a setup command may start with.
var AllowedCommands = []string{
	"mkdir", "touch", "rm", "cp", "mv", "echo", "cat", "ls", "pwd", "cd", "chmod", "chown",
}

// ValidateSetupCommand checks one directory-traversal setup or teardown
// command. Empty commands are allowed and skipped by the generator.
func ValidateSetupCommand(cmd string) error {
	if len(cmd) > MaxCommandLength {
		return fmt.Errorf("command too long (%d chars, max %d)", len(cmd), MaxCommandLength)
	}
	for _, op := range forbiddenOperators {
		if strings.Contains(cmd, op) {
			return fmt.Errorf("command contains forbidden pattern %q", op)
		}
	}

	words := strings.Fields(cmd)
	for _, w := range words {
		if slices.Contains(forbiddenWords, w) {
			return fmt.Errorf("command contains forbidden pattern %q", w)
		}
	}

	normalized := strings.Join(words, " ")
	for _, p := range dangerousDeletes {
		if normalized == p || strings.HasPrefix(normalized, p+" ") {
			return fmt.Errorf("command contains dangerous deletion pattern %q", p)
		}
	}

	if len(words) > 0 && !slices.Contains(AllowedCommands, words[0]) {
		return fmt.Errorf("command %q not in allowlist (allowed: %s)", words[0], strings.Join(AllowedCommands, ", "))
	}
	if len(words) > 0 && words[0] == "rm" {
		for _, arg := range words[1:] {
			if strings.HasPrefix(arg, "-") {
				continue
			}
			if err := checkRemoveTarget(arg); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkRemoveTarget accepts relative paths that stay below the working
// directory and absolute paths inside a fixture root.
func checkRemoveTarget(arg string) error {
	target := strings.Trim(arg, `"'`)
	if target == "" {
		return fmt.Errorf("rm target %q is empty", arg)
	}
	switch {
	case strings.HasPrefix(target, "/"), strings.HasPrefix(target, "$"), strings.HasPrefix(target, "~"):
		cleaned := target
		if strings.HasPrefix(target, "/") {
			cleaned = path.Clean(target)
		}
		for _, root := range fixtureRoots {
			if strings.HasPrefix(cleaned, root) && !slices.Contains(strings.Split(target, "/"), "..") {
				return nil
			}
		}
		return fmt.Errorf("rm target %q is outside the fixture roots", arg)
	default:
		for _, part := range strings.Split(target, "/") {
			if part == ".." {
				return fmt.Errorf("rm target %q escapes the working directory", arg)
			}
		}
		if target == "." || target == "*" {
			return fmt.Errorf("rm target %q removes the working directory", arg)
		}
		return nil
	}
}
