// Package introspect builds an InterfaceModel from a binary's help output.
//
// The engine fetches help text under the sandbox, classifies it line by line,
// walks the subcommand tree to a bounded depth and infers what the binary does
// when run with no arguments.
package introspect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ancients-collective/cliprobe/internal/clierr"
	"github.com/ancients-collective/cliprobe/internal/sandbox"
	"github.com/ancients-collective/cliprobe/internal/types"
)

// DefaultMaxDepth is the subcommand depth ceiling.
const DefaultMaxDepth = 3

// Analyzer runs introspection. It holds only immutable configuration and is
// safe for concurrent use when its executor is.
type Analyzer struct {
	exec           sandbox.Executor
	logger         *slog.Logger
	maxDepth       int
	denylist       []string
	strategies     []Strategy
	now            func() time.Time
	helpTimeout    time.Duration
	versionTimeout time.Duration
	probeTimeout   time.Duration
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithExecutor replaces the default sandbox.
func WithExecutor(e sandbox.Executor) Option {
	return func(a *Analyzer) { a.exec = e }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMaxDepth sets the subcommand depth ceiling. Values below 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(a *Analyzer) {
		if n >= 1 {
			a.maxDepth = n
		}
	}
}

// WithDenylist replaces the interactive-program denylist.
func WithDenylist(names []string) Option {
	return func(a *Analyzer) { a.denylist = append([]string(nil), names...) }
}

// WithStrategies replaces the behavior inference chain.
func WithStrategies(s []Strategy) Option {
	return func(a *Analyzer) { a.strategies = append([]Strategy(nil), s...) }
}

// WithClock sets the time source used for analyzed_at and durations.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithTimeouts overrides the help, version and no-argument probe timeouts.
// Zero values keep the defaults.
func WithTimeouts(help, version, probe time.Duration) Option {
	return func(a *Analyzer) {
		if help > 0 {
			a.helpTimeout = help
		}
		if version > 0 {
			a.versionTimeout = version
		}
		if probe > 0 {
			a.probeTimeout = probe
		}
	}
}

// New creates an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxDepth:       DefaultMaxDepth,
		denylist:       append([]string(nil), DefaultInteractiveDenylist...),
		strategies:     DefaultStrategies(),
		now:            time.Now,
		helpTimeout:    DefaultHelpTimeout,
		versionTimeout: DefaultVersionTimeout,
		probeTimeout:   DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.exec == nil {
		a.exec = sandbox.New(sandbox.WithLogger(a.logger))
	}
	return a
}

// MaxDepth returns the configured depth ceiling.
func (a *Analyzer) MaxDepth() int { return a.maxDepth }

// Analyze builds the interface model for the binary at path.
//
// Errors: BinaryNotFound and NotExecutable from path validation,
// NotExecutable also when the root binary cannot be started at all,
// HelpUnavailable when the root help cannot be fetched, and AnalysisTimeout
// when ctx's deadline passes mid-analysis. Cancellation returns ctx.Err(). Failures on individual subcommands are
// logged and leave that node empty.
func (a *Analyzer) Analyze(ctx context.Context, path string) (*types.InterfaceModel, error) {
	start := a.now()

	resolved, err := sandbox.ResolveBinary(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(resolved)
	a.logger.InfoContext(ctx, "analyzing binary", "binary", resolved, "max_depth", a.maxDepth)

	help, err := fetchHelp(ctx, a.exec, resolved, nil, rootHelpAttempts, a.helpTimeout)
	if err != nil {
		return nil, a.timeoutOr(ctx, resolved, err)
	}
	doc := ParseHelp(help)

	model := &types.InterfaceModel{
		BinaryName:    name,
		BinaryPath:    resolved,
		GlobalOptions: doc.Options,
		Subcommands:   []types.Subcommand{},
	}
	if model.GlobalOptions == nil {
		model.GlobalOptions = []types.Option{}
	}

	model.Version = detectVersion(ctx, a.exec, resolved, a.versionTimeout)
	if ctx.Err() != nil {
		return nil, a.timeoutOr(ctx, resolved, ctx.Err())
	}

	d := newDiscovery(a, resolved)
	subs, err := d.expand(ctx, nil, doc.Subcommands, []string{help}, 1)
	if err != nil {
		return nil, a.timeoutOr(ctx, resolved, err)
	}
	model.Subcommands = subs
	logNodes(ctx, a.logger, subs)

	behavior, strategy := InferBehavior(ctx, a.strategies, BehaviorInput{
		Model:    model,
		HelpText: help,
		Exec:     a.exec,
		Timeout:  a.probeTimeout,
		Denylist: a.denylist,
	})
	if ctx.Err() != nil {
		return nil, a.timeoutOr(ctx, resolved, ctx.Err())
	}
	model.Behavior = behavior

	total := 0
	types.WalkSubcommands(model.Subcommands, func([]string, *types.Subcommand) { total++ })
	elapsed := a.now().Sub(start)
	model.Metadata = types.AnalysisMetadata{
		TotalOptions:       len(model.AllOptions()),
		TotalSubcommands:   total,
		AnalysisDurationMS: elapsed.Milliseconds(),
		DepthReached:       d.deepest,
		AnalyzedAt:         start.UTC(),
	}
	fp, err := Fingerprint(model)
	if err != nil {
		return nil, err
	}
	model.Metadata.Fingerprint = fp

	a.logger.InfoContext(ctx, "analysis complete",
		"binary", name,
		"options", model.Metadata.TotalOptions,
		"subcommands", total,
		"behavior", behavior,
		"behavior_strategy", strategy,
		"duration_ms", elapsed.Milliseconds())
	return model, nil
}

// timeoutOr maps an expired run deadline to AnalysisTimeout and passes
// other errors, cancellation included, through.
func (a *Analyzer) timeoutOr(ctx context.Context, binary string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return clierr.Wrap(clierr.AnalysisTimeout, binary, "analysis did not finish before the run deadline", err)
	}
	return err
}
