package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ancients-collective/cliprobe/internal/clierr"
	sysdetect "github.com/ancients-collective/cliprobe/internal/context"
	"github.com/ancients-collective/cliprobe/internal/introspect"
	"github.com/ancients-collective/cliprobe/internal/output"
	"github.com/ancients-collective/cliprobe/internal/runner"
	"github.com/ancients-collective/cliprobe/internal/synth"
	"github.com/ancients-collective/cliprobe/internal/types"
)

// Default output locations.
const (
	defaultSuiteDir = "cliprobe-tests"
	modelFileName   = "model.json"
	reportFileName  = "report.json"
	maxDepthLimit   = 10

	// defaultRunDeadline bounds analyze, run and test as a whole.
	defaultRunDeadline = time.Hour
)

func registerDeadline(fs *flag.FlagSet, secs *int) {
	fs.IntVar(secs, "deadline", 0, "Deadline for the whole command in seconds (default: config or 3600)")
}

// withDeadline bounds ctx by the flag, then the config, then the default.
func withDeadline(ctx context.Context, flagSecs int, cfg *types.ToolConfig) (context.Context, context.CancelFunc, error) {
	if flagSecs < 0 {
		return ctx, func() {}, clierr.New(clierr.InvalidConfiguration, "--deadline",
			fmt.Sprintf("must not be negative, got %d", flagSecs))
	}
	d := defaultRunDeadline
	switch {
	case flagSecs > 0:
		d = time.Duration(flagSecs) * time.Second
	case cfg.Global.RunTimeout > 0:
		d = time.Duration(cfg.Global.RunTimeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, cancel, nil
}

// genFlags select what generate produces.
type genFlags struct {
	Categories       string
	IncludeIntensive bool
	Sequential       bool
}

func (g *genFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.Categories, "categories", "", "Generate only these categories (comma-separated)")
	fs.BoolVar(&g.IncludeIntensive, "include-intensive", false, "Include categories that build large fixtures")
	fs.BoolVar(&g.Sequential, "sequential", false, "Generate categories one after another")
}

func (g genFlags) request() (synth.Request, error) {
	cats, err := parseCategoryList(g.Categories)
	if err != nil {
		return synth.Request{}, err
	}
	req := synth.Request{Categories: cats, IncludeIntensive: g.IncludeIntensive}
	// Naming an intensive category explicitly opts in to it; "all" does not.
	for _, name := range strings.Split(g.Categories, ",") {
		if c, ok := types.ParseCategory(name); ok && c.Intensive() {
			req.IncludeIntensive = true
		}
	}
	return req, nil
}

func (g genFlags) strategy() synth.Strategy {
	if g.Sequential {
		return synth.Sequential
	}
	return synth.Parallel
}

// runFlags control suite execution.
type runFlags struct {
	Timeout     int
	Skip        string
	Concurrency int
	Bats        string
	Verify      bool
}

func (r *runFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&r.Timeout, "timeout", 0, "Per-suite timeout in seconds (default: config or 300)")
	fs.StringVar(&r.Skip, "skip", "", "Skip suites by category (comma-separated)")
	fs.IntVar(&r.Concurrency, "concurrency", 0, "Suites to run at once (default: config or 1)")
	fs.StringVar(&r.Bats, "bats", runner.DefaultBats, "Path to the bats executable")
	fs.BoolVar(&r.Verify, "verify", false, "Verify suite directory integrity before running")
}

// reportFlags control how a report is rendered.
type reportFlags struct {
	Format string
	Output string
	Show   string
}

func (r *reportFlags) register(fs *flag.FlagSet, withOutput bool) {
	fs.StringVar(&r.Format, "format", "text", "Output format: text, json, jsonl")
	fs.StringVar(&r.Format, "f", "text", "Output format (shorthand)")
	fs.StringVar(&r.Show, "show", output.ShowFailures, "Which results the text format lists: failures, all")
	if withOutput {
		fs.StringVar(&r.Output, "output", "", "Write the report to file (default: stdout)")
		fs.StringVar(&r.Output, "o", "", "Write the report to file (shorthand)")
	}
}

func (r reportFlags) validate() error {
	if !slices.Contains(output.Formats, r.Format) {
		return clierr.New(clierr.InvalidConfiguration, "--format",
			fmt.Sprintf("invalid value %q (must be text, json, or jsonl)", r.Format))
	}
	switch r.Show {
	case output.ShowFailures, output.ShowAll:
	default:
		return clierr.New(clierr.InvalidConfiguration, "--show",
			fmt.Sprintf("invalid value %q (must be failures or all)", r.Show))
	}
	return nil
}

// ─── analyze ─────────────────────────────────────────────────────────

func (a *app) cmdAnalyze(ctx context.Context, args []string) int {
	var (
		common   commonFlags
		out      string
		depth    int
		deadline int
	)
	fs := a.newFlagSet("analyze", "<binary> [options]")
	common.register(fs)
	registerDeadline(fs, &deadline)
	fs.StringVar(&out, "output", "", "Write the interface model to file (default: stdout)")
	fs.StringVar(&out, "o", "", "Write the interface model to file (shorthand)")
	fs.IntVar(&depth, "depth", 0, "Maximum subcommand depth, 1-10 (default: config or 3)")

	pos, err := parseArgs(fs, args)
	if err != nil {
		return flagExitCode(err)
	}
	if len(pos) != 1 {
		return a.fail(common, clierr.New(clierr.InvalidConfiguration, "analyze", "expected exactly one binary"))
	}
	logger := a.setup(common, false)

	cfg, err := a.loadConfig(common)
	if err != nil {
		return a.fail(common, err)
	}
	ctx, cancel, err := withDeadline(ctx, deadline, cfg)
	if err != nil {
		return a.fail(common, err)
	}
	defer cancel()
	model, err := a.analyze(ctx, logger, common, pos[0], depth, cfg)
	if err != nil {
		return a.fail(common, err)
	}
	if err := a.writeModel(out, model); err != nil {
		return a.fail(common, err)
	}
	return 0
}

// resolveDepth picks the flag, then the config, then the default.
func resolveDepth(flagDepth int, cfg *types.ToolConfig) (int, error) {
	if flagDepth < 0 || flagDepth > maxDepthLimit {
		return 0, clierr.New(clierr.InvalidConfiguration, "--depth",
			fmt.Sprintf("must be between 1 and %d, got %d", maxDepthLimit, flagDepth))
	}
	switch {
	case flagDepth > 0:
		return flagDepth, nil
	case cfg.Global.MaxDepth > 0:
		return cfg.Global.MaxDepth, nil
	default:
		return introspect.DefaultMaxDepth, nil
	}
}

func (a *app) analyze(ctx context.Context, logger *slog.Logger, common commonFlags, binary string, flagDepth int, cfg *types.ToolConfig) (*types.InterfaceModel, error) {
	depth, err := resolveDepth(flagDepth, cfg)
	if err != nil {
		return nil, err
	}
	if !common.Quiet {
		fmt.Fprintf(a.stderr, "  ▸ Analyzing %s (depth %d) ...\n", binary, depth)
	}
	analyzer := introspect.New(
		introspect.WithLogger(logger),
		introspect.WithMaxDepth(depth),
	)
	model, err := analyzer.Analyze(ctx, binary)
	if err != nil {
		return nil, err
	}
	if !common.Quiet {
		fmt.Fprintf(a.stderr, "  ✓ %s: %d options · %d subcommands · behavior %s (%dms)\n",
			model.BinaryName, model.Metadata.TotalOptions, model.Metadata.TotalSubcommands,
			model.Behavior, model.Metadata.AnalysisDurationMS)
	}
	return model, nil
}

func (a *app) writeModel(path string, model *types.InterfaceModel) error {
	if path == "" {
		return output.WriteModel(a.stdout, model)
	}
	f, err := createOutput(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := output.WriteModel(f, model); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return f.Close()
}

// ─── generate ────────────────────────────────────────────────────────

func (a *app) cmdGenerate(ctx context.Context, args []string) int {
	var (
		common commonFlags
		gen    genFlags
		dir    string
	)
	fs := a.newFlagSet("generate", "<model.json> [options]")
	common.register(fs)
	gen.register(fs)
	fs.StringVar(&dir, "output", defaultSuiteDir, "Directory for the generated suites")
	fs.StringVar(&dir, "o", defaultSuiteDir, "Directory for the generated suites (shorthand)")

	pos, err := parseArgs(fs, args)
	if err != nil {
		return flagExitCode(err)
	}
	if len(pos) != 1 {
		return a.fail(common, clierr.New(clierr.InvalidConfiguration, "generate", "expected exactly one model file"))
	}
	logger := a.setup(common, false)

	req, err := gen.request()
	if err != nil {
		return a.fail(common, err)
	}
	cfg, err := a.loadConfig(common)
	if err != nil {
		return a.fail(common, err)
	}
	model, err := readModelFile(pos[0])
	if err != nil {
		return a.fail(common, err)
	}
	if _, err := a.generate(ctx, logger, common, cfg, model, req, gen.strategy(), dir); err != nil {
		return a.fail(common, err)
	}
	return 0
}

func readModelFile(path string) (*types.InterfaceModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, clierr.Wrap(clierr.InvalidConfiguration, path, "cannot open interface model", err)
	}
	defer f.Close()
	model, err := output.ReadModel(f)
	if err != nil {
		return nil, clierr.Wrap(clierr.InvalidConfiguration, path, "invalid interface model", err)
	}
	return model, nil
}

func (a *app) generate(ctx context.Context, logger *slog.Logger, common commonFlags, cfg *types.ToolConfig,
	model *types.InterfaceModel, req synth.Request, strategy synth.Strategy, dir string,
) (*synth.Result, error) {
	if err := validateOutputPath(dir); err != nil {
		return nil, fmt.Errorf("unsafe output path: %w", err)
	}
	g := synth.New(
		synth.WithLogger(logger),
		synth.WithConfig(cfg),
		synth.WithStrategy(strategy),
		synth.WithClock(a.now),
	)
	res, err := g.Generate(ctx, model, req)
	if err != nil {
		return nil, err
	}
	if !common.Quiet {
		for _, f := range res.Failures {
			fmt.Fprintf(a.stderr, "  ⚠ Generation failed for %s\n", f.Error())
		}
	}
	if len(res.Suites) == 0 {
		return nil, clierr.New(clierr.TestGenerationFailure, model.BinaryName, "no suites were generated")
	}
	if _, err := g.Write(dir, res); err != nil {
		return nil, err
	}
	if !common.Quiet {
		fmt.Fprintf(a.stderr, "  ✓ Generated %d cases in %d suites → %s\n", len(res.Cases()), len(res.Suites), dir)
	}
	return res, nil
}

// ─── run ─────────────────────────────────────────────────────────────

func (a *app) cmdRun(ctx context.Context, args []string) int {
	var (
		common   commonFlags
		run      runFlags
		rep      reportFlags
		deadline int
	)
	fs := a.newFlagSet("run", "<dir> [options]")
	common.register(fs)
	registerDeadline(fs, &deadline)
	run.register(fs)
	rep.register(fs, true)

	pos, err := parseArgs(fs, args)
	if err != nil {
		return flagExitCode(err)
	}
	if len(pos) != 1 {
		return a.fail(common, clierr.New(clierr.InvalidConfiguration, "run", "expected exactly one suite directory"))
	}
	if err := rep.validate(); err != nil {
		return a.fail(common, err)
	}
	logger := a.setup(common, rep.Format == "text" && rep.Output == "")

	cfg, err := a.loadConfig(common)
	if err != nil {
		return a.fail(common, err)
	}
	ctx, cancel, err := withDeadline(ctx, deadline, cfg)
	if err != nil {
		return a.fail(common, err)
	}
	defer cancel()
	report, err := a.execute(ctx, logger, common, cfg, run, pos[0])
	if err != nil {
		return a.fail(common, err)
	}
	if err := a.writeReport(common, rep, report); err != nil {
		return a.fail(common, err)
	}
	return 0
}

// execute runs the suites in dir under the detected environment.
func (a *app) execute(ctx context.Context, logger *slog.Logger, common commonFlags, cfg *types.ToolConfig,
	run runFlags, dir string,
) (*types.TestReport, error) {
	skip, err := parseCategoryList(run.Skip)
	if err != nil {
		return nil, err
	}
	if run.Timeout < 0 || run.Concurrency < 0 {
		return nil, clierr.New(clierr.InvalidConfiguration, "run", "--timeout and --concurrency must not be negative")
	}

	env, warnings, err := sysdetect.Snapshot(sysdetect.NewOSDetector(), a.now())
	if err != nil {
		return nil, fmt.Errorf("detect environment: %w", err)
	}
	if !common.Quiet {
		for _, w := range warnings {
			fmt.Fprintf(a.stderr, "  ⚠ %s\n", w)
		}
	}

	timeout := runner.DefaultSuiteTimeout
	switch {
	case run.Timeout > 0:
		timeout = time.Duration(run.Timeout) * time.Second
	case cfg.Global.Timeout > 0:
		timeout = time.Duration(cfg.Global.Timeout) * time.Second
	}
	concurrency := 1
	switch {
	case run.Concurrency > 0:
		concurrency = run.Concurrency
	case cfg.Global.Concurrency > 0:
		concurrency = cfg.Global.Concurrency
	}

	r := runner.New(
		runner.WithBats(run.Bats),
		runner.WithTimeout(timeout),
		runner.WithConcurrency(concurrency),
		runner.WithSkip(skip...),
		runner.WithVerify(run.Verify),
		runner.WithEnvironment(env),
		runner.WithLogger(logger),
		runner.WithHeartbeat(runner.DefaultHeartbeat, func(hb runner.Heartbeat) {
			if !common.Quiet {
				fmt.Fprintf(a.stderr, "  ▸ %s still running (%s elapsed, %d cases reported)\n",
					hb.File, hb.Elapsed.Round(time.Second), hb.Reported)
			}
		}),
	)
	if !common.Quiet {
		fmt.Fprintf(a.stderr, "  ▸ Running suites in %s ...\n", dir)
	}
	report, err := r.Run(ctx, dir)
	if err != nil {
		return nil, err
	}
	report.Version = version
	return report, nil
}

// writeReport renders the report to stdout or the --output file.
func (a *app) writeReport(common commonFlags, rep reportFlags, report *types.TestReport) error {
	if rep.Output == "" && common.Quiet {
		return nil
	}
	width := 0
	if rep.Output == "" && rep.Format == "text" {
		width = terminalWidth(a.stdout)
	}
	formatter, err := output.ForName(rep.Format, output.TextFormatter{
		Show:  rep.Show,
		Width: width,
		Dumb:  output.IsDumbTerm(),
	})
	if err != nil {
		return clierr.Wrap(clierr.InvalidConfiguration, "--format", "unsupported format", err)
	}

	w := a.stdout
	if rep.Output != "" {
		f, err := createOutput(rep.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := formatter.Write(w, report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if rep.Output != "" && !common.Quiet {
		s := report.Summary
		fmt.Fprintf(a.stderr, "  ✓ Run complete: %d passed · %d failed · %d skipped, written to %s\n",
			s.Passed, s.Failed, s.Skipped, rep.Output)
	}
	return nil
}

// ─── test ────────────────────────────────────────────────────────────

func (a *app) cmdTest(ctx context.Context, args []string) int {
	var (
		common   commonFlags
		gen      genFlags
		run      runFlags
		rep      reportFlags
		dir      string
		depth    int
		deadline int
	)
	fs := a.newFlagSet("test", "<binary> [options]")
	common.register(fs)
	registerDeadline(fs, &deadline)
	gen.register(fs)
	run.register(fs)
	rep.register(fs, false)
	fs.StringVar(&dir, "output", "", "Directory for the model, suites and report (default: cliprobe-<binary>)")
	fs.StringVar(&dir, "o", "", "Directory for the model, suites and report (shorthand)")
	fs.IntVar(&depth, "depth", 0, "Maximum subcommand depth, 1-10 (default: config or 3)")

	pos, err := parseArgs(fs, args)
	if err != nil {
		return flagExitCode(err)
	}
	if len(pos) != 1 {
		return a.fail(common, clierr.New(clierr.InvalidConfiguration, "test", "expected exactly one binary"))
	}
	if err := rep.validate(); err != nil {
		return a.fail(common, err)
	}
	req, err := gen.request()
	if err != nil {
		return a.fail(common, err)
	}
	if dir == "" {
		dir = "cliprobe-" + filepath.Base(pos[0])
	}
	if err := validateOutputPath(dir); err != nil {
		return a.fail(common, fmt.Errorf("unsafe output path: %w", err))
	}
	logger := a.setup(common, rep.Format == "text")

	cfg, err := a.loadConfig(common)
	if err != nil {
		return a.fail(common, err)
	}
	ctx, cancel, err := withDeadline(ctx, deadline, cfg)
	if err != nil {
		return a.fail(common, err)
	}
	defer cancel()
	model, err := a.analyze(ctx, logger, common, pos[0], depth, cfg)
	if err != nil {
		return a.fail(common, err)
	}
	if err := a.writeModel(filepath.Join(dir, modelFileName), model); err != nil {
		return a.fail(common, err)
	}
	if _, err := a.generate(ctx, logger, common, cfg, model, req, gen.strategy(), dir); err != nil {
		return a.fail(common, err)
	}
	report, err := a.execute(ctx, logger, common, cfg, run, dir)
	if err != nil {
		return a.fail(common, err)
	}

	if err := a.writeReport(common, reportFlags{Format: "json", Output: filepath.Join(dir, reportFileName)}, report); err != nil {
		return a.fail(common, err)
	}
	if err := a.writeReport(common, rep, report); err != nil {
		return a.fail(common, err)
	}
	return 0
}

// ─── categories ──────────────────────────────────────────────────────

func (a *app) cmdCategories(args []string) int {
	var common commonFlags
	fs := a.newFlagSet("categories", "[options]")
	common.register(fs)
	if _, err := parseArgs(fs, args); err != nil {
		return flagExitCode(err)
	}
	a.setup(common, true)

	cfg, err := a.loadConfig(common)
	if err != nil {
		return a.fail(common, err)
	}
	policy, err := synth.DefaultPolicy().WithOverrides(cfg.Policy)
	if err != nil {
		return a.fail(common, err)
	}
	printCategoryList(a.stdout, policy)
	return 0
}

func printCategoryList(w io.Writer, policy synth.Policy) {
	maxName := 0
	for _, c := range types.CanonicalCategories {
		maxName = max(maxName, len(c))
	}
	fmt.Fprintf(w, "\n  Categories (%d):\n\n", len(types.CanonicalCategories))
	for _, c := range types.CanonicalCategories {
		note := ""
		if c.Intensive() {
			note = "  opt-in: --include-intensive"
		}
		fmt.Fprintf(w, "    %-*s  %-13s%s\n", maxName, c, policy.Tag(c), note)
	}
	fmt.Fprintln(w)
}
