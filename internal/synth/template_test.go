package synth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mvdan.cc/sh/v3/syntax"
)

// words parses a rendered command and returns the number of words of its
// single simple command.
func words(t *testing.T, cmd string) int {
	t.Helper()
	f, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(cmd), "")
	require.NoError(t, err)
	require.Len(t, f.Stmts, 1)
	call, ok := f.Stmts[0].Cmd.(*syntax.CallExpr)
	require.True(t, ok, "not a simple command: %s", cmd)
	return len(call.Args)
}

func TestRender_DropsEmptyPlaceholders(t *testing.T) {
	got, err := Render("inject", Vars{"BINARY": Raw(`"$BINARY"`), "OPTION": Words("--name"), "PAYLOAD": Words("x")})

	require.NoError(t, err)
	assert.Equal(t, `"$BINARY" --name x`, got)
}

func TestRender_PositionalsFollowPayload(t *testing.T) {
	got, err := Render("inject", Vars{
		"BINARY":     Raw(`"$BINARY"`),
		"ARGS":       Words("add"),
		"OPTION":     Words("--name"),
		"PAYLOAD":    Words("x y"),
		"POSITIONAL": Words("/tmp/cliprobe-test-file"),
	})

	require.NoError(t, err)
	assert.Equal(t, `"$BINARY" add --name 'x y' /tmp/cliprobe-test-file`, got)
}

func TestRender_QuotesEachWord(t *testing.T) {
	got, err := Render("invoke", Vars{"BINARY": Raw(`"$BINARY"`), "ARGS": Words("sub", "a b", "it's", "$HOME")})

	require.NoError(t, err)
	assert.Equal(t, 5, words(t, got))
	assert.NotContains(t, got, " a b ")
}

func TestRender_RawIsVerbatim(t *testing.T) {
	got, err := Render("inject", Vars{
		"BINARY":  Raw(`"$BINARY"`),
		"OPTION":  Words("--file"),
		"PAYLOAD": Raw(`$'/tmp/test\x00malicious'`),
	})

	require.NoError(t, err)
	assert.Equal(t, `"$BINARY" --file $'/tmp/test\x00malicious'`, got)
}

func TestRender_Errors(t *testing.T) {
	_, err := Render("missing", Vars{})
	assert.ErrorContains(t, err, "unknown template")

	_, err = renderTemplate("${BINARY} ${NOPE}", Vars{"BINARY": Words("x")})
	assert.ErrorContains(t, err, "unknown placeholder ${NOPE}")

	_, err = renderTemplate("--opt=${WHAT}", Vars{})
	assert.ErrorContains(t, err, "unknown placeholder ${WHAT}")
}

func TestRender_InlinePlaceholder(t *testing.T) {
	got, err := renderTemplate("${BINARY} --opt=${PAYLOAD}", Vars{"BINARY": Words("tool"), "PAYLOAD": Words("v")})

	require.NoError(t, err)
	assert.Equal(t, "tool --opt=v", got)
}

func FuzzRender(f *testing.F) {
	f.Add("plain")
	f.Add("test; rm -rf /")
	f.Add("it's a \"quote\"")
	f.Add("$(id)")
	f.Add("\n\t")

	f.Fuzz(func(t *testing.T, payload string) {
		got, err := Render("inject", Vars{"BINARY": Raw(`"$BINARY"`), "OPTION": Words("--x"), "PAYLOAD": Words(payload)})
		if err != nil {
			// Strings bash cannot represent, such as NUL bytes, are refused.
			return
		}
		parsed, perr := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(got), "")
		if perr != nil {
			t.Fatalf("rendered command does not parse: %q: %v", got, perr)
		}
		if len(parsed.Stmts) != 1 {
			t.Fatalf("payload %q split the command into %d statements", payload, len(parsed.Stmts))
		}
		call, ok := parsed.Stmts[0].Cmd.(*syntax.CallExpr)
		if !ok || len(call.Args) != 3 {
			t.Fatalf("payload %q did not stay a single word: %q", payload, got)
		}
	})
}
