package synth

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/ancients-collective/cliprobe/internal/types"
)

const indent = "    "

var testHeader = regexp.MustCompile(`(?m)^@test\s+"(?:[^"\\]|\\.)*"\s*\{[ \t]*$`)

// RenderScript writes the bats source for one suite.
func RenderScript(s Suite, binaryName, binaryPath string) (string, error) {
	bin, err := quoteWord(binaryPath)
	if err != nil {
		return "", fmt.Errorf("quote binary path: %w", err)
	}

	var b strings.Builder
	b.WriteString("#!/usr/bin/env bats\n")
	fmt.Fprintf(&b, "# cliprobe %s suite for %s. Generated file; edits are overwritten.\n\n", s.Category, oneLine(binaryName))
	fmt.Fprintf(&b, "export BINARY=%s\n\n", bin)

	writeFunc(&b, "setup", s.Setup)
	writeFunc(&b, "teardown", s.Teardown)

	for _, tc := range s.Cases {
		if err := writeCase(&b, tc); err != nil {
			return "", fmt.Errorf("case %s: %w", tc.ID, err)
		}
	}
	return b.String(), nil
}

func writeFunc(b *strings.Builder, name string, lines []string) {
	fmt.Fprintf(b, "%s() {\n", name)
	if len(lines) == 0 {
		b.WriteString(indent + ":\n")
	}
	for _, l := range lines {
		b.WriteString(indent + l + "\n")
	}
	b.WriteString("}\n\n")
}

func writeCase(b *strings.Builder, tc types.TestCase) error {
	fmt.Fprintf(b, "@test \"%s\" {\n", escapeDoubleQuoted(oneLine(tc.Title())))

	for _, r := range tc.Requires {
		q, err := quoteWord(r)
		if err != nil {
			return err
		}
		msg, err := quoteWord(r + " not available")
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "%scommand -v %s >/dev/null 2>&1 || skip %s\n", indent, q, msg)
	}

	keys := make([]string, 0, len(tc.Env))
	for k := range tc.Env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v, err := quoteWord(tc.Env[k])
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "%sexport %s=%s\n", indent, k, v)
	}

	for _, l := range tc.Prepare {
		b.WriteString(indent + l + "\n")
	}
	fmt.Fprintf(b, "%srun %s </dev/null\n", indent, tc.Command)
	b.WriteString(indent + statusAssertion(tc.Expect) + "\n")

	if tc.OutputPattern != "" {
		p, err := quoteWord(tc.OutputPattern)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "%spattern=%s\n", indent, p)
		b.WriteString(indent + `[[ "$output" =~ $pattern ]] || { echo "output does not match $pattern"; false; }` + "\n")
	}
	for _, l := range tc.Verify {
		b.WriteString(indent + l + "\n")
	}
	b.WriteString("}\n\n")
	return nil
}

// statusAssertion renders the exit-code check for an expectation.
func statusAssertion(e types.Expectation) string {
	switch e.Kind {
	case types.ExpectExact:
		code := 0
		if len(e.Codes) > 0 {
			code = e.Codes[0]
		}
		return fmt.Sprintf(`[ "$status" -eq %d ] || { echo "expected exit %d, got $status"; false; }`, code, code)
	case types.ExpectNonZero:
		return `[ "$status" -ne 0 ] || { echo "expected a non-zero exit, got 0"; false; }`
	default:
		alts := make([]string, len(e.Codes))
		for i, c := range e.Codes {
			alts[i] = fmt.Sprint(c)
		}
		return fmt.Sprintf(`case "$status" in %s) ;; *) echo "expected exit in {%s}, got $status"; false ;; esac`,
			strings.Join(alts, "|"), strings.Join(alts, ","))
	}
}

func escapeDoubleQuoted(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")
	return r.Replace(s)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ValidateScript parses a bats file as bash. @test headers are rewritten to
// function declarations first, the same transformation bats applies.
func ValidateScript(name, src string) error {
	n := 0
	rewritten := testHeader.ReplaceAllStringFunc(src, func(string) string {
		n++
		return fmt.Sprintf("cliprobe_case_%d() {", n)
	})
	for _, line := range strings.Split(rewritten, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "@test") {
			return fmt.Errorf("%s: malformed @test header: %s", name, line)
		}
	}

	p := syntax.NewParser(syntax.Variant(syntax.LangBash))
	if _, err := p.Parse(strings.NewReader(rewritten), name); err != nil {
		return fmt.Errorf("%s: generated script does not parse: %w", name, err)
	}
	return nil
}
