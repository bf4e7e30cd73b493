package synth

import (
	"fmt"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Named command templates. Tokens are separated by single spaces; a token
// that is exactly one placeholder disappears when its value is empty.
var templates = map[string]string{
	"invoke":  "${BINARY} ${ARGS}",
	"inject":  "${BINARY} ${ARGS} ${OPTION} ${PAYLOAD} ${POSITIONAL}",
	"shell":   "${SHELL} -c ${ARGS}",
	"timed":   "/usr/bin/time -v ${BINARY} ${ARGS}",
	"bounded": "timeout 30 ${BINARY} ${ARGS} ${OPTION} ${PAYLOAD} ${POSITIONAL}",
}

var knownPlaceholders = map[string]bool{
	"BINARY": true, "ARGS": true, "PAYLOAD": true, "OPTION": true, "SHELL": true, "POSITIONAL": true,
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var safeWord = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// Value is what a placeholder expands to: either literal words, each
// shell-quoted on expansion, or raw shell text inserted verbatim.
type Value struct {
	words []string
	raw   string
	isRaw bool
}

// Words returns a value of literal words.
func Words(w ...string) Value { return Value{words: w} }

// Raw returns a value inserted without quoting. It is used for payloads
// that rely on shell syntax such as $'..' strings or variable expansion.
func Raw(text string) Value { return Value{raw: text, isRaw: true} }

func (v Value) empty() bool {
	if v.isRaw {
		return v.raw == ""
	}
	return len(v.words) == 0
}

func (v Value) expand() (string, error) {
	if v.isRaw {
		return v.raw, nil
	}
	quoted := make([]string, len(v.words))
	for i, w := range v.words {
		q, err := quoteWord(w)
		if err != nil {
			return "", err
		}
		quoted[i] = q
	}
	return strings.Join(quoted, " "), nil
}

// Vars binds placeholder names to values.
type Vars map[string]Value

// Render expands the named template.
func Render(name string, vars Vars) (string, error) {
	tmpl, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}
	return renderTemplate(tmpl, vars)
}

func renderTemplate(tmpl string, vars Vars) (string, error) {
	var out []string
	for _, token := range strings.Split(tmpl, " ") {
		if token == "" {
			continue
		}
		if m := placeholderPattern.FindStringSubmatch(token); m != nil && m[0] == token {
			if !knownPlaceholders[m[1]] {
				return "", fmt.Errorf("unknown placeholder ${%s}", m[1])
			}
			if vars[m[1]].empty() {
				continue
			}
		}

		var renderErr error
		expanded := placeholderPattern.ReplaceAllStringFunc(token, func(ph string) string {
			name := ph[2 : len(ph)-1]
			if !knownPlaceholders[name] {
				renderErr = fmt.Errorf("unknown placeholder ${%s}", name)
				return ph
			}
			s, err := vars[name].expand()
			if err != nil && renderErr == nil {
				renderErr = fmt.Errorf("placeholder ${%s}: %w", name, err)
			}
			return s
		})
		if renderErr != nil {
			return "", renderErr
		}
		out = append(out, expanded)
	}
	return strings.Join(out, " "), nil
}

// quoteWord returns w as a single bash word.
func quoteWord(w string) (string, error) {
	if safeWord.MatchString(w) {
		return w, nil
	}
	return syntax.Quote(w, syntax.LangBash)
}
