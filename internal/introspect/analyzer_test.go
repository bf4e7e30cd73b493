package introspect

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ancients-collective/cliprobe/internal/clierr"
	"github.com/ancients-collective/cliprobe/internal/sandbox"
	"github.com/ancients-collective/cliprobe/internal/types"
)

var fixedNow = time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

const mytoolScript = `case "$*" in
  --help|-h|help)
    cat <<'HELP'
mytool manages things

Usage:
  mytool [command]

Available Commands:
  serve       Start the server
  delete      Delete a resource

Flags:
  -c, --config string   config file
  -v, --verbose         verbose output
  -h, --help            help for mytool
HELP
    exit 0 ;;
  --version)
    echo "mytool version 1.4.2"
    exit 0 ;;
  "serve --help")
    cat <<'HELP'
Usage:
  mytool serve <address> [flags]

Flags:
  -p, --port int   port to listen on
HELP
    exit 0 ;;
  "delete --help")
    printf 'Usage:\n  mytool delete <name> [flags]\n\nFlags:\n  -f, --force   skip confirmation\n'
    exit 0 ;;
  "")
    echo "a command is required" >&2
    exit 1 ;;
esac
exit 2
`

func TestAnalyze_SubcommandTool(t *testing.T) {
	bin := writeBinary(t, "mytool", mytoolScript)
	a := New(WithClock(fixedClock))

	model, err := a.Analyze(context.Background(), bin)
	require.NoError(t, err)

	assert.Equal(t, "mytool", model.BinaryName)
	require.NotNil(t, model.Version)
	assert.Equal(t, "1.4.2", *model.Version)
	assert.Equal(t, types.BehaviorRequiresSubcommand, model.Behavior)

	require.Len(t, model.GlobalOptions, 3)
	assert.Equal(t, "--config", model.GlobalOptions[0].Long)

	require.Len(t, model.Subcommands, 2)
	serve := model.Subcommands[0]
	assert.Equal(t, "serve", serve.Name)
	assert.Equal(t, "Start the server", serve.Description)
	assert.Equal(t, []string{"address"}, serve.RequiredArgs)
	require.Len(t, serve.Options, 1)
	assert.Equal(t, types.KindNumeric, serve.Options[0].ValueKind)

	del := model.Subcommands[1]
	assert.Equal(t, []string{"name"}, del.RequiredArgs)
	assert.Equal(t, "--force", del.Options[0].Long)

	assert.Equal(t, 5, model.Metadata.TotalOptions)
	assert.Equal(t, 2, model.Metadata.TotalSubcommands)
	assert.Equal(t, 1, model.Metadata.DepthReached)
	assert.Equal(t, fixedNow, model.Metadata.AnalyzedAt)
	assert.True(t, strings.HasPrefix(model.Metadata.Fingerprint, "sha256:"))
}

func TestAnalyze_ShowsHelpWithNoArgs(t *testing.T) {
	bin := writeBinary(t, "hello", `echo "Usage: hello [OPTIONS]"
echo
echo "Options:"
echo "  -n, --name <NAME>   who to greet"
exit 0
`)

	model, err := New().Analyze(context.Background(), bin)
	require.NoError(t, err)

	assert.Equal(t, types.BehaviorShowsHelp, model.Behavior)
	require.Len(t, model.GlobalOptions, 1)
	assert.Equal(t, types.KindString, model.GlobalOptions[0].ValueKind)
	assert.Empty(t, model.Subcommands)
	assert.Nil(t, model.Version)
}

func TestAnalyze_SilentExitTwo(t *testing.T) {
	bin := writeBinary(t, "strict", `case "$1" in
  --help) echo "Usage: strict <command>"; exit 0 ;;
esac
exit 2
`)

	model, err := New().Analyze(context.Background(), bin)
	require.NoError(t, err)
	assert.Equal(t, types.BehaviorRequiresSubcommand, model.Behavior)
}

func TestAnalyze_SelfListingSubcommandStopsAtDepth(t *testing.T) {
	// Every "foo" level prints a distinct help that lists foo again.
	bin := writeBinary(t, "selfref", `if [ "$1" = "foo" ]; then
  printf 'Usage: selfref %s\n\nCommands:\n  foo   recurse again\n' "$*"
  exit 0
fi
case "$1" in
  --help|-h|help) printf 'Usage: selfref <command>\n\nCommands:\n  foo   recurse\n'; exit 0 ;;
esac
exit 1
`)

	for _, depth := range []int{1, 2, 3} {
		model, err := New(WithMaxDepth(depth)).Analyze(context.Background(), bin)
		require.NoError(t, err)

		assert.Equal(t, depth, treeDepth(model.Subcommands), "depth ceiling %d", depth)
		assert.Equal(t, depth, model.Metadata.DepthReached)
		assert.Equal(t, depth, model.Metadata.TotalSubcommands)
	}
}

func TestAnalyze_RepeatedHelpStopsDescent(t *testing.T) {
	const rootHelp = "Usage: echoer <command>\n\nCommands:\n  foo   again\n"
	const fooHelp = "Usage: echoer foo\n\nCommands:\n  foo   again\n"
	exec := &scriptedExec{respond: func(args []string) sandbox.Result {
		switch {
		case len(args) == 1 && args[0] == "--help":
			return okResult(rootHelp)
		case len(args) > 1 && args[0] == "foo" && args[len(args)-1] == "--help":
			return okResult(fooHelp)
		}
		return sandbox.Result{ExitCode: 1}
	}}
	bin := writeBinary(t, "echoer", "exit 0\n")

	model, err := New(WithExecutor(exec), WithMaxDepth(5)).Analyze(context.Background(), bin)
	require.NoError(t, err)

	// foo lists foo; foo foo prints the same help as foo and is not expanded.
	assert.Equal(t, 2, treeDepth(model.Subcommands))
	assert.False(t, exec.called("foo foo foo --help"))
}

func TestAnalyze_SubcommandHelpFailureIsLocal(t *testing.T) {
	exec := &scriptedExec{responses: map[string]sandbox.Result{
		"--help":      okResult("Usage: multi <command>\n\nCommands:\n  good   works\n  bad    broken\n"),
		"good --help": okResult("Usage: multi good <item>\n"),
		"bad --help":  {ExitCode: -1, TimedOut: true},
		"bad -h":      {ExitCode: -1, TimedOut: true},
		"":            {ExitCode: 2},
		"--version":   okResult("multi 0.9.0-rc.1\n"),
	}}
	bin := writeBinary(t, "multi", "exit 0\n")

	model, err := New(WithExecutor(exec)).Analyze(context.Background(), bin)
	require.NoError(t, err)

	require.Len(t, model.Subcommands, 2)
	assert.Equal(t, []string{"item"}, model.Subcommands[0].RequiredArgs)
	assert.Equal(t, "bad", model.Subcommands[1].Name)
	assert.Empty(t, model.Subcommands[1].Options)
	require.NotNil(t, model.Version)
	assert.Equal(t, "0.9.0-rc.1", *model.Version)
}

func TestAnalyze_HelpUnavailable(t *testing.T) {
	exec := &scriptedExec{responses: map[string]sandbox.Result{}}
	bin := writeBinary(t, "mute", "exit 0\n")

	_, err := New(WithExecutor(exec)).Analyze(context.Background(), bin)

	require.Error(t, err)
	assert.Equal(t, clierr.HelpUnavailable, clierr.KindOf(err))
	assert.True(t, exec.called("--help"))
	assert.True(t, exec.called("-h"))
	assert.True(t, exec.called("help"))
}

func TestAnalyze_HelpTimeoutsReported(t *testing.T) {
	exec := &scriptedExec{respond: func([]string) sandbox.Result {
		return sandbox.Result{ExitCode: -1, TimedOut: true}
	}}
	bin := writeBinary(t, "hang", "exit 0\n")

	_, err := New(WithExecutor(exec)).Analyze(context.Background(), bin)

	require.Error(t, err)
	assert.Equal(t, clierr.HelpUnavailable, clierr.KindOf(err))
	assert.Contains(t, err.Error(), "timed out")
}

func TestAnalyze_BinaryErrors(t *testing.T) {
	_, err := New().Analyze(context.Background(), "/nonexistent/cliprobe-test-binary")
	assert.Equal(t, clierr.BinaryNotFound, clierr.KindOf(err))

	notExec := writeBinary(t, "plain", "exit 0\n")
	require.NoError(t, os.Chmod(notExec, 0o644))
	_, err = New().Analyze(context.Background(), notExec)
	assert.Equal(t, clierr.NotExecutable, clierr.KindOf(err))
}

func TestAnalyze_UnstartableBinaryIsNotExecutable(t *testing.T) {
	dir := t.TempDir()
	badFormat := filepath.Join(dir, "badformat")
	require.NoError(t, os.WriteFile(badFormat, []byte("\x7fELF\x00\x01\x02\x03"), 0o755))
	noInterp := filepath.Join(dir, "nointerp")
	require.NoError(t, os.WriteFile(noInterp, []byte("#!/nonexistent/interpreter\necho hi\n"), 0o755))

	for _, bin := range []string{badFormat, noInterp} {
		t.Run(filepath.Base(bin), func(t *testing.T) {
			_, err := New().Analyze(context.Background(), bin)

			require.Error(t, err)
			assert.Equal(t, clierr.NotExecutable, clierr.KindOf(err))
			assert.ErrorIs(t, err, sandbox.ErrStart)
		})
	}
}

func TestAnalyze_DeadlineIsAnalysisTimeout(t *testing.T) {
	bin := writeBinary(t, "slow", "sleep 10\n")
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New().Analyze(ctx, bin)

	require.Error(t, err)
	assert.Equal(t, clierr.AnalysisTimeout, clierr.KindOf(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAnalyze_CancellationIsNotTimeout(t *testing.T) {
	bin := writeBinary(t, "slow", "sleep 10\n")
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(300*time.Millisecond, cancel)

	_, err := New().Analyze(ctx, bin)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, clierr.AnalysisTimeout, clierr.KindOf(err))
}

func TestAnalyze_Deterministic(t *testing.T) {
	bin := writeBinary(t, "mytool", mytoolScript)

	first, err := New().Analyze(context.Background(), bin)
	require.NoError(t, err)
	second, err := New().Analyze(context.Background(), bin)
	require.NoError(t, err)

	assert.Equal(t, first.GlobalOptions, second.GlobalOptions)
	assert.Equal(t, first.Subcommands, second.Subcommands)
	assert.Equal(t, first.Metadata.Fingerprint, second.Metadata.Fingerprint)
}

// Discovery terminates within the ceiling for any self-similar tree, including
// trees where nodes list themselves.
func TestAnalyze_DepthTerminationProperty(t *testing.T) {
	bin := writeBinary(t, "fractal", "exit 0\n")

	rapid.Check(t, func(rt *rapid.T) {
		maxDepth := rapid.IntRange(1, 4).Draw(rt, "maxDepth")
		names := rapid.SliceOfNDistinct(rapid.SampledFrom([]string{"a", "b", "c"}), 1, 3, rapid.ID[string]).Draw(rt, "names")
		distinct := rapid.Bool().Draw(rt, "distinctHelp")

		var listing strings.Builder
		listing.WriteString("\nCommands:\n")
		for _, n := range names {
			listing.WriteString("  " + n + "   child\n")
		}
		exec := &scriptedExec{respond: func(args []string) sandbox.Result {
			if len(args) == 0 || args[len(args)-1] != "--help" {
				return sandbox.Result{ExitCode: 1}
			}
			usage := "Usage: fractal <command>\n"
			if distinct {
				usage = "Usage: fractal " + strings.Join(args, " ") + "\n"
			}
			return okResult(usage + listing.String())
		}}

		model, err := New(WithExecutor(exec), WithMaxDepth(maxDepth)).Analyze(context.Background(), bin)
		if err != nil {
			rt.Fatalf("analyze: %v", err)
		}
		if d := treeDepth(model.Subcommands); d > maxDepth {
			rt.Fatalf("tree depth %d exceeds ceiling %d", d, maxDepth)
		}
		if model.Metadata.DepthReached > maxDepth {
			rt.Fatalf("depth reached %d exceeds ceiling %d", model.Metadata.DepthReached, maxDepth)
		}
		seen := make(map[string]bool)
		types.WalkSubcommands(model.Subcommands, func(path []string, _ *types.Subcommand) {
			key := strings.Join(path, " ")
			if seen[key] {
				rt.Fatalf("path %q visited twice", key)
			}
			seen[key] = true
		})
	})
}

func treeDepth(subs []types.Subcommand) int {
	deepest := 0
	types.WalkSubcommands(subs, func(path []string, _ *types.Subcommand) {
		if len(path) > deepest {
			deepest = len(path)
		}
	})
	return deepest
}
