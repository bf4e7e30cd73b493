package introspect

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ancients-collective/cliprobe/internal/sandbox"
	"github.com/ancients-collective/cliprobe/internal/types"
)

// DefaultInteractiveDenylist names interpreters and REPLs that must never be
// executed without arguments.
var DefaultInteractiveDenylist = []string{
	"psql", "mysql", "redis-cli", "mongo", "mongosh", "sqlite3",
	"python", "python3", "node", "irb", "php", "R", "julia",
	"gdb", "lldb", "ghci", "erl", "iex",
}

// BehaviorInput is what every behavior strategy may look at.
type BehaviorInput struct {
	Model    *types.InterfaceModel
	HelpText string
	Exec     sandbox.Executor
	Timeout  time.Duration
	Denylist []string
}

// Strategy is one step of behavior inference. Infer returns ok=false to
// defer to the next strategy.
type Strategy struct {
	Name  string
	Infer func(ctx context.Context, in BehaviorInput) (types.Behavior, bool)
}

// DefaultStrategies returns the inference chain in priority order. The
// denylist check must stay ahead of execution.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "interactive-denylist", Infer: inferFromDenylist},
		{Name: "execute-no-args", Infer: inferFromExecution},
		{Name: "usage-line", Infer: inferFromUsage},
		{Name: "subcommand-presence", Infer: inferFromSubcommands},
	}
}

// InferBehavior runs strategies in order; the first answer wins. With no
// answer at all the result is ShowsHelp.
func InferBehavior(ctx context.Context, strategies []Strategy, in BehaviorInput) (types.Behavior, string) {
	for _, s := range strategies {
		if b, ok := s.Infer(ctx, in); ok {
			return b, s.Name
		}
	}
	return types.BehaviorShowsHelp, "default"
}

var versionSuffix = regexp.MustCompile(`^[0-9][0-9.\-]*$`)

// IsInteractive reports whether name is a denylisted program or a versioned
// spelling of one (python3.12, node18).
func IsInteractive(name string, denylist []string) bool {
	for _, d := range denylist {
		if name == d {
			return true
		}
		if rest, ok := strings.CutPrefix(name, d); ok && versionSuffix.MatchString(rest) {
			return true
		}
	}
	return false
}

func inferFromDenylist(_ context.Context, in BehaviorInput) (types.Behavior, bool) {
	name := in.Model.BinaryName
	if name == "" {
		name = filepath.Base(in.Model.BinaryPath)
	}
	if IsInteractive(name, in.Denylist) {
		return types.BehaviorInteractive, true
	}
	return "", false
}

func inferFromExecution(ctx context.Context, in BehaviorInput) (types.Behavior, bool) {
	if in.Exec == nil {
		return "", false
	}
	res, err := in.Exec.Run(ctx, sandbox.Spec{
		Path:          in.Model.BinaryPath,
		Timeout:       in.Timeout,
		DiscardOutput: true,
	})
	if err != nil || res.TimedOut || res.ExitCode < 0 {
		return "", false
	}
	return ClassifyExitCode(res.ExitCode), true
}

// ClassifyExitCode maps a no-argument exit code to a behavior.
func ClassifyExitCode(code int) types.Behavior {
	switch code {
	case 0:
		return types.BehaviorShowsHelp
	case 1, 2:
		return types.BehaviorRequiresSubcommand
	default:
		return types.BehaviorExecutesDefaultAction
	}
}

var mandatoryCommandToken = regexp.MustCompile(`(?i)<(sub)?command>|\{[a-z0-9_,|-]+\}`)

func inferFromUsage(_ context.Context, in BehaviorInput) (types.Behavior, bool) {
	doc := ParseHelp(in.HelpText)
	if len(doc.Usage) == 0 {
		return "", false
	}
	return usageBehavior(doc.Usage[0]), true
}

// usageBehavior decides from a usage line whether a subcommand is mandatory.
func usageBehavior(usage string) types.Behavior {
	if mandatoryCommandToken.MatchString(usage) {
		return types.BehaviorRequiresSubcommand
	}
	lower := strings.ToLower(usage)
	if !strings.Contains(lower, "[command") && !strings.Contains(lower, "[subcommand") {
		for _, word := range strings.Fields(lower) {
			if word == "command" || word == "subcommand" || word == "command..." {
				return types.BehaviorRequiresSubcommand
			}
		}
	}
	return types.BehaviorShowsHelp
}

func inferFromSubcommands(_ context.Context, in BehaviorInput) (types.Behavior, bool) {
	if len(in.Model.Subcommands) > 0 {
		return types.BehaviorRequiresSubcommand, true
	}
	return types.BehaviorShowsHelp, true
}
