package sandbox

import (
	"os"
	"sort"
	"strings"
)

// DefaultEnv returns the overrides that keep probed programs non-interactive
// and their output stable: no colors, no pagers, no credential prompts, C locale.
func DefaultEnv() map[string]string {
	return map[string]string{
		"NO_COLOR":            "1",
		"CLICOLOR":            "0",
		"TERM":                "dumb",
		"PAGER":               "cat",
		"GIT_PAGER":           "cat",
		"MANPAGER":            "cat",
		"GIT_TERMINAL_PROMPT": "0",
		"LC_ALL":              "C",
	}
}

// environ merges the process environment with sandbox and per-call overrides.
// Later layers win; override keys are appended in sorted order.
func (s *Sandbox) environ(extra map[string]string) []string {
	overrides := make(map[string]string, len(s.env)+len(extra))
	for k, v := range s.env {
		overrides[k] = v
	}
	for k, v := range extra {
		overrides[k] = v
	}
	return mergeEnv(os.Environ(), overrides)
}

func mergeEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
