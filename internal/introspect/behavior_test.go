package introspect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/ancients-collective/cliprobe/internal/sandbox"
	"github.com/ancients-collective/cliprobe/internal/types"
)

func TestClassifyExitCode(t *testing.T) {
	tests := []struct {
		code int
		want types.Behavior
	}{
		{0, types.BehaviorShowsHelp},
		{1, types.BehaviorRequiresSubcommand},
		{2, types.BehaviorRequiresSubcommand},
		{3, types.BehaviorExecutesDefaultAction},
		{127, types.BehaviorExecutesDefaultAction},
		{137, types.BehaviorExecutesDefaultAction},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyExitCode(tt.code), "exit %d", tt.code)
	}
}

func TestClassifyExitCode_Stable(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		code := rapid.IntRange(0, 255).Draw(t, "code")
		first := ClassifyExitCode(code)
		if first != ClassifyExitCode(code) {
			t.Fatalf("classification of %d changed between runs", code)
		}
		switch code {
		case 0:
			if first != types.BehaviorShowsHelp {
				t.Fatalf("exit 0 classified as %s", first)
			}
		case 1, 2:
			if first != types.BehaviorRequiresSubcommand {
				t.Fatalf("exit %d classified as %s", code, first)
			}
		}
	})
}

func TestIsInteractive(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"python3", true},
		{"python3.12", true},
		{"node", true},
		{"node18", true},
		{"psql", true},
		{"R", true},
		{"nodemon", false},
		{"Rscript", false},
		{"ls", false},
		{"mysqldump", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsInteractive(tt.name, DefaultInteractiveDenylist), tt.name)
	}
}

func TestUsageBehavior(t *testing.T) {
	tests := []struct {
		usage string
		want  types.Behavior
	}{
		{"tool <command> [args]", types.BehaviorRequiresSubcommand},
		{"tool <SUBCOMMAND>", types.BehaviorRequiresSubcommand},
		{"pytool [-h] {init,run} ...", types.BehaviorRequiresSubcommand},
		{"git COMMAND [ARGS]", types.BehaviorRequiresSubcommand},
		{"tool [command]", types.BehaviorShowsHelp},
		{"tool [OPTIONS] <FILE>", types.BehaviorShowsHelp},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, usageBehavior(tt.usage), tt.usage)
	}
}

func TestInferBehavior_DenylistRunsBeforeExecution(t *testing.T) {
	exec := &scriptedExec{responses: map[string]sandbox.Result{}}
	model := &types.InterfaceModel{BinaryName: "python3.11", BinaryPath: "/usr/bin/python3.11"}

	got, strategy := InferBehavior(context.Background(), DefaultStrategies(), BehaviorInput{
		Model:    model,
		Exec:     exec,
		Timeout:  time.Second,
		Denylist: DefaultInteractiveDenylist,
	})

	assert.Equal(t, types.BehaviorInteractive, got)
	assert.Equal(t, "interactive-denylist", strategy)
	assert.Empty(t, exec.calls, "denylisted binaries must never be executed")
}

func TestInferBehavior_ExecutionExitCodes(t *testing.T) {
	for code, want := range map[int]types.Behavior{
		0: types.BehaviorShowsHelp,
		2: types.BehaviorRequiresSubcommand,
		5: types.BehaviorExecutesDefaultAction,
	} {
		exec := &scriptedExec{responses: map[string]sandbox.Result{"": {ExitCode: code}}}
		got, strategy := InferBehavior(context.Background(), DefaultStrategies(), BehaviorInput{
			Model: &types.InterfaceModel{BinaryName: "tool", BinaryPath: "/bin/tool"},
			Exec:  exec,
		})
		assert.Equal(t, want, got, "exit %d", code)
		assert.Equal(t, "execute-no-args", strategy)
	}
}

func TestInferBehavior_TimeoutFallsBackToUsage(t *testing.T) {
	exec := &scriptedExec{responses: map[string]sandbox.Result{"": {ExitCode: -1, TimedOut: true}}}

	got, strategy := InferBehavior(context.Background(), DefaultStrategies(), BehaviorInput{
		Model:    &types.InterfaceModel{BinaryName: "tool", BinaryPath: "/bin/tool"},
		HelpText: "Usage: tool <command>\n",
		Exec:     exec,
	})

	assert.Equal(t, types.BehaviorRequiresSubcommand, got)
	assert.Equal(t, "usage-line", strategy)
}

func TestInferBehavior_NoUsageFallsBackToSubcommands(t *testing.T) {
	exec := &scriptedExec{responses: map[string]sandbox.Result{"": {ExitCode: -1, TimedOut: true}}}
	model := &types.InterfaceModel{
		BinaryName:  "tool",
		BinaryPath:  "/bin/tool",
		Subcommands: []types.Subcommand{{Name: "run"}},
	}

	got, strategy := InferBehavior(context.Background(), DefaultStrategies(), BehaviorInput{Model: model, Exec: exec})

	assert.Equal(t, types.BehaviorRequiresSubcommand, got)
	assert.Equal(t, "subcommand-presence", strategy)
}

func TestInferBehavior_EmptyChainDefaultsToShowsHelp(t *testing.T) {
	got, strategy := InferBehavior(context.Background(), nil, BehaviorInput{Model: &types.InterfaceModel{}})

	assert.Equal(t, types.BehaviorShowsHelp, got)
	assert.Equal(t, "default", strategy)
}
