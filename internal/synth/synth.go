// Package synth expands an interface model into categorized bats suites.
package synth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ancients-collective/cliprobe/internal/clierr"
	"github.com/ancients-collective/cliprobe/internal/types"
)

// Strategy selects how categories are generated.
type Strategy int

const (
	// Parallel generates every category concurrently.
	Parallel Strategy = iota
	// Sequential generates categories one after another.
	Sequential
)

func (s Strategy) String() string {
	if s == Sequential {
		return "sequential"
	}
	return "parallel"
}

// Suite is the generated content of one category.
type Suite struct {
	Category types.Category   `json:"category"`
	File     string           `json:"file"`
	Cases    []types.TestCase `json:"cases"`
	Setup    []string         `json:"setup,omitempty"`
	Teardown []string         `json:"teardown,omitempty"`

	// Script is the rendered and validated bats source.
	Script string `json:"-"`
}

// Failure records a category whose generation failed. Other categories are
// unaffected.
type Failure struct {
	Category types.Category
	Err      error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Category, f.Err)
}

// Result is the outcome of one generation run.
type Result struct {
	BinaryName  string
	BinaryPath  string
	Fingerprint string
	Policy      Policy
	Suites      []Suite
	Failures    []Failure
}

// Cases returns every case in canonical category order.
func (r *Result) Cases() []types.TestCase {
	var out []types.TestCase
	for _, s := range r.Suites {
		out = append(out, s.Cases...)
	}
	return out
}

// Request selects the categories to generate.
type Request struct {
	// Categories to generate; empty means all.
	Categories []types.Category
	// Exclude removes categories after selection.
	Exclude []types.Category
	// IncludeIntensive opts in to categories that build large fixtures.
	IncludeIntensive bool
}

// Resolve returns the selected categories in canonical order.
func (r Request) Resolve() []types.Category {
	var out []types.Category
	for _, c := range types.CanonicalCategories {
		if len(r.Categories) > 0 && !slices.Contains(r.Categories, c) {
			continue
		}
		if slices.Contains(r.Exclude, c) {
			continue
		}
		if c.Intensive() && !r.IncludeIntensive {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Generator builds suites from an interface model. Its configuration is
// fixed at construction.
type Generator struct {
	logger   *slog.Logger
	cfg      *types.ToolConfig
	policy   Policy
	strategy Strategy
	payloads []Payload
	now      func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithConfig supplies the tool configuration.
func WithConfig(cfg *types.ToolConfig) Option {
	return func(g *Generator) {
		if cfg != nil {
			g.cfg = cfg
		}
	}
}

// WithPolicy replaces the base policy. Config overrides still apply on top.
func WithPolicy(p Policy) Option {
	return func(g *Generator) { g.policy = p }
}

// WithStrategy selects parallel or sequential generation.
func WithStrategy(s Strategy) Option {
	return func(g *Generator) { g.strategy = s }
}

// WithPayloads replaces the security payload table.
func WithPayloads(p []Payload) Option {
	return func(g *Generator) { g.payloads = slices.Clone(p) }
}

// WithClock sets the time source for the manifest timestamp.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg:      &types.ToolConfig{Version: "1.0"},
		policy:   DefaultPolicy(),
		strategy: Parallel,
		payloads: slices.Clone(DefaultPayloads),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces the suites for the requested categories. A failing
// category is recorded in Result.Failures; an error is returned only for an
// invalid policy or a cancelled context.
func (g *Generator) Generate(ctx context.Context, model *types.InterfaceModel, req Request) (*Result, error) {
	if model == nil {
		return nil, clierr.New(clierr.InvalidConfiguration, "model", "no interface model")
	}
	policy, err := g.policy.WithOverrides(g.cfg.Policy)
	if err != nil {
		return nil, err
	}

	cats := req.Resolve()
	in := ruleInput{model: model, cfg: g.cfg, payloads: g.payloads}
	outcomes := make([]outcome, len(cats))

	g.logger.InfoContext(ctx, "generating suites",
		"binary", model.BinaryName, "categories", len(cats), "strategy", g.strategy.String())

	switch g.strategy {
	case Sequential:
		for i, c := range cats {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			outcomes[i] = generateCategory(in, c, policy)
		}
	default:
		eg, egCtx := errgroup.WithContext(ctx)
		for i, c := range cats {
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				outcomes[i] = generateCategory(in, c, policy)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	res := &Result{
		BinaryName:  model.BinaryName,
		BinaryPath:  model.BinaryPath,
		Fingerprint: model.Metadata.Fingerprint,
		Policy:      policy,
	}
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			g.logger.WarnContext(ctx, "category generation failed", "category", o.suite.Category, "error", o.err)
			res.Failures = append(res.Failures, Failure{Category: o.suite.Category, Err: o.err})
		case len(o.suite.Cases) == 0:
			g.logger.DebugContext(ctx, "category produced no cases", "category", o.suite.Category)
		default:
			res.Suites = append(res.Suites, o.suite)
		}
	}
	slices.SortStableFunc(res.Suites, func(a, b Suite) int { return a.Category.Index() - b.Category.Index() })

	g.logger.InfoContext(ctx, "generation complete",
		"suites", len(res.Suites), "cases", len(res.Cases()), "failures", len(res.Failures))
	return res, nil
}

type outcome struct {
	suite Suite
	err   error
}

func generateCategory(in ruleInput, c types.Category, policy Policy) outcome {
	out := outcome{suite: Suite{Category: c, File: string(c) + ".bats"}}

	r, ok := rules[c]
	if !ok {
		out.err = clierr.New(clierr.TestGenerationFailure, string(c), "no rule for category")
		return out
	}
	d, err := r(in)
	if err != nil {
		out.err = clierr.Wrap(clierr.TestGenerationFailure, string(c), "rule failed", err)
		return out
	}

	tag := policy.Tag(c)
	for i := range d.cases {
		d.cases[i].ID = fmt.Sprintf("%s-%03d", c, i+1)
		d.cases[i].Category = c
		d.cases[i].Tags = finalizeTags(d.cases[i].Tags, tag)
	}
	out.suite.Cases = d.cases
	out.suite.Setup = d.setup
	out.suite.Teardown = d.teardown
	if len(d.cases) == 0 {
		return out
	}

	script, err := RenderScript(out.suite, in.model.BinaryName, in.model.BinaryPath)
	if err == nil {
		err = ValidateScript(out.suite.File, script)
	}
	if err != nil {
		out.err = clierr.Wrap(clierr.TestGenerationFailure, string(c), "invalid script", err)
		return out
	}
	out.suite.Script = script
	return out
}

// finalizeTags puts the severity tag first. A case pre-tagged informational
// stays informational under a critical policy.
func finalizeTags(tags []string, policyTag string) []string {
	severity := policyTag
	var rest []string
	for _, t := range tags {
		switch t {
		case types.TagInformational:
			severity = types.TagInformational
		case types.TagCritical:
		default:
			rest = append(rest, t)
		}
	}
	return append([]string{severity}, rest...)
}

// Write stores every suite script and the manifest under dir.
func (g *Generator) Write(dir string, res *Result) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	var errs []error
	for _, s := range res.Suites {
		path := filepath.Join(dir, s.File)
		if err := os.WriteFile(path, []byte(s.Script), 0o644); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", path, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	m := newManifest(res, g.now())
	if err := writeManifest(dir, m); err != nil {
		return nil, err
	}
	g.logger.Info("suites written", "dir", dir, "suites", len(res.Suites))
	return m, nil
}
