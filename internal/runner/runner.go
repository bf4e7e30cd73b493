// Package runner executes generated bats suites and turns their TAP output
// into a report.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ancients-collective/cliprobe/internal/clierr"
	"github.com/ancients-collective/cliprobe/internal/sandbox"
	"github.com/ancients-collective/cliprobe/internal/synth"
	"github.com/ancients-collective/cliprobe/internal/types"
)

// Execution defaults.
const (
	DefaultBats         = "bats"
	DefaultSuiteTimeout = 300 * time.Second
	DefaultHeartbeat    = 30 * time.Second

	versionTimeout = 10 * time.Second
	maxTAPBytes    = 16 << 20
)

// Heartbeat reports a suite that is still running.
type Heartbeat struct {
	Category types.Category
	File     string
	Elapsed  time.Duration
	Reported int
}

// Runner executes suites through bats. Its configuration is fixed at
// construction; Run may be called repeatedly.
type Runner struct {
	exec        sandbox.Executor
	bats        string
	timeout     time.Duration
	heartbeat   time.Duration
	onHeartbeat func(Heartbeat)
	concurrency int
	skip        []types.Category
	verify      bool
	env         types.Environment
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithExecutor replaces the process sandbox.
func WithExecutor(e sandbox.Executor) Option {
	return func(r *Runner) { r.exec = e }
}

// WithBats sets the bats command. Empty keeps the default.
func WithBats(path string) Option {
	return func(r *Runner) {
		if path != "" {
			r.bats = path
		}
	}
}

// WithTimeout sets the per-suite deadline. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithHeartbeat sets the heartbeat interval and an optional callback.
func WithHeartbeat(every time.Duration, fn func(Heartbeat)) Option {
	return func(r *Runner) {
		if every > 0 {
			r.heartbeat = every
		}
		r.onHeartbeat = fn
	}
}

// WithConcurrency sets how many suites run at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithSkip excludes categories from execution.
func WithSkip(cats ...types.Category) Option {
	return func(r *Runner) { r.skip = append(r.skip, cats...) }
}

// WithVerify refuses to run suites from a directory other users can modify.
func WithVerify(v bool) Option {
	return func(r *Runner) { r.verify = v }
}

// WithEnvironment sets the host snapshot copied into every report.
func WithEnvironment(env types.Environment) Option {
	return func(r *Runner) { r.env = env }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock sets the time source for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a Runner. bats itself runs without resource ceilings.
func New(opts ...Option) *Runner {
	r := &Runner{
		bats:        DefaultBats,
		timeout:     DefaultSuiteTimeout,
		heartbeat:   DefaultHeartbeat,
		concurrency: 1,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.exec == nil {
		r.exec = sandbox.New(
			sandbox.WithoutLimits(),
			sandbox.WithSampleInterval(0),
			sandbox.WithMaxOutputBytes(maxTAPBytes),
			sandbox.WithLogger(r.logger),
		)
	}
	return r
}

// CheckBats confirms the runner is installed and returns its version line.
func (r *Runner) CheckBats(ctx context.Context) (string, error) {
	res, err := r.exec.Run(ctx, sandbox.Spec{Path: r.bats, Args: []string{"--version"}, Timeout: versionTimeout})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", clierr.Wrap(clierr.ExternalRunnerMissing, r.bats, "bats is not installed", err)
	}
	if res.TimedOut || res.ExitCode != 0 {
		return "", clierr.New(clierr.ExternalRunnerMissing, r.bats,
			fmt.Sprintf("bats --version failed (exit %d)", res.ExitCode))
	}
	version := strings.TrimSpace(firstLine(res.Combined()))
	r.logger.DebugContext(ctx, "bats available", "path", r.bats, "version", version)
	return version, nil
}

// suitePlan is one script scheduled for execution.
type suitePlan struct {
	category types.Category
	file     string
	cases    []synth.ManifestCase
	// informational applies when the manifest has no per-case tags.
	informational bool
}

// Run executes every suite in dir and returns the aggregated report. Suite
// failures and timeouts are recorded in the report, and so are suites cut
// short or never started once ctx's deadline passes. An error is returned
// only when bats is missing, the directory cannot be used, or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, dir string) (*types.TestReport, error) {
	if r.verify {
		if warnings := VerifySuiteDirectory(dir); len(warnings) > 0 {
			return nil, clierr.New(clierr.InvalidConfiguration, dir,
				"suite directory failed verification: "+strings.Join(warnings, "; "))
		}
	}

	version, err := r.CheckBats(ctx)
	if err != nil {
		return nil, err
	}

	binary, plans, err := r.plan(dir)
	if err != nil {
		return nil, err
	}

	started := r.now()
	report := &types.TestReport{
		BinaryName:  binary,
		StartedAt:   started.UTC(),
		Environment: r.env,
	}
	report.Environment.BatsVersion = version

	r.logger.InfoContext(ctx, "running suites", "dir", dir, "suites", len(plans),
		"concurrency", r.concurrency, "timeout", r.timeout)

	var (
		mu     sync.Mutex
		suites []types.TestSuite
	)
	collect := func(s types.TestSuite) {
		mu.Lock()
		defer mu.Unlock()
		suites = append(suites, s)
	}

	if r.concurrency <= 1 {
		for _, p := range plans {
			s, err := r.runSuite(ctx, dir, p)
			if err != nil {
				return nil, err
			}
			collect(s)
		}
	} else {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(r.concurrency)
		for _, p := range plans {
			eg.Go(func() error {
				s, err := r.runSuite(egCtx, dir, p)
				if err != nil {
					return err
				}
				collect(s)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	slices.SortStableFunc(suites, func(a, b types.TestSuite) int { return a.Category.Index() - b.Category.Index() })
	report.Suites = suites
	report.Summary = types.Summarize(suites, r.now().Sub(started))

	r.logger.InfoContext(ctx, "run complete", "total", report.Summary.Total, "passed", report.Summary.Passed,
		"failed", report.Summary.Failed, "skipped", report.Summary.Skipped,
		"critical_failures", report.Summary.CriticalFailures)
	return report, nil
}

// plan lists the suites to run. The manifest is authoritative; without one,
// every <category>.bats file in dir is run under the default policy.
func (r *Runner) plan(dir string) (string, []suitePlan, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", nil, clierr.New(clierr.InvalidConfiguration, dir, "suite directory does not exist")
	}

	var plans []suitePlan
	binary := ""
	m, err := synth.LoadManifest(dir)
	switch {
	case err == nil:
		binary = m.BinaryName
		for _, ms := range m.Suites {
			plans = append(plans, suitePlan{category: ms.Category, file: ms.File, cases: ms.Cases})
		}
	case errors.Is(err, os.ErrNotExist):
		r.logger.Warn("no manifest, discovering suites by file name", "dir", dir)
		policy := synth.DefaultPolicy()
		for _, c := range types.CanonicalCategories {
			file := string(c) + ".bats"
			if _, statErr := os.Stat(filepath.Join(dir, file)); statErr == nil {
				plans = append(plans, suitePlan{
					category:      c,
					file:          file,
					informational: policy.Tag(c) == types.TagInformational,
				})
			}
		}
	default:
		return "", nil, clierr.Wrap(clierr.InvalidConfiguration, dir, "unreadable manifest", err)
	}

	kept := plans[:0]
	for _, p := range plans {
		if slices.Contains(r.skip, p.category) {
			r.logger.Info("skipping suite", "category", p.category)
			continue
		}
		kept = append(kept, p)
	}
	slices.SortStableFunc(kept, func(a, b suitePlan) int { return a.category.Index() - b.category.Index() })

	if len(kept) == 0 {
		return "", nil, clierr.New(clierr.InvalidConfiguration, dir, "no suites to run")
	}
	return binary, kept, nil
}

func (r *Runner) runSuite(ctx context.Context, dir string, p suitePlan) (types.TestSuite, error) {
	suite := types.TestSuite{Category: p.category, File: p.file}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return r.deadlineSuite(ctx, suite, p, TAPStream{}), nil
		}
		return suite, err
	}
	path := filepath.Join(dir, p.file)
	if _, err := os.Stat(path); err != nil {
		suite.Error = fmt.Sprintf("suite file missing: %v", err)
		suite.Results = unreported(p, "suite file missing")
		return suite, nil
	}

	parser := &tapParser{}
	stop := r.startHeartbeat(ctx, p, parser)
	res, err := r.exec.Run(ctx, sandbox.Spec{
		Path:    r.bats,
		Args:    []string{"--formatter", "tap", "--timing", p.file},
		Dir:     dir,
		Timeout: r.timeout,
		Stream:  parser,
	})
	stop()
	parser.Flush()

	suite.Duration = res.Duration
	suite.DurationMS = res.Duration.Milliseconds()

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return r.deadlineSuite(ctx, suite, p, parser.Snapshot()), nil
		}
		if ctx.Err() != nil {
			return suite, ctx.Err()
		}
		suite.Error = err.Error()
		suite.Results = unreported(p, "runner failed to start")
		return suite, nil
	}

	stream := parser.Snapshot()
	note := "not reported by the runner"
	switch {
	case res.TimedOut:
		suite.TimedOut = true
		note = fmt.Sprintf("timed out after %s", r.timeout)
		suite.Error = clierr.New(clierr.ExecutionTimeout, p.file, note).Error()
		r.logger.WarnContext(ctx, "suite timed out", "category", p.category, "timeout", r.timeout,
			"reported", len(stream.Results))
	case len(stream.Results) == 0 && res.ExitCode != 0:
		suite.Error = fmt.Sprintf("bats exited %d: %s", res.ExitCode, strings.TrimSpace(firstLine(res.Combined())))
	}

	suite.Results = merge(p, stream, note)
	r.logger.InfoContext(ctx, "suite finished", "category", p.category,
		"passed", suite.Count(types.StatusPassed), "failed", suite.Count(types.StatusFailed),
		"skipped", suite.Count(types.StatusSkipped), "duration_ms", suite.DurationMS)
	return suite, nil
}

// deadlineSuite records a suite cut short, or never started, because the
// run deadline passed. Cases the stream did not report fail as timed out.
func (r *Runner) deadlineSuite(ctx context.Context, suite types.TestSuite, p suitePlan, stream TAPStream) types.TestSuite {
	note := "run deadline exceeded"
	suite.TimedOut = true
	suite.Error = clierr.New(clierr.ExecutionTimeout, p.file, note).Error()
	suite.Results = merge(p, stream, note)
	r.logger.WarnContext(ctx, "suite stopped by run deadline", "category", p.category,
		"reported", len(stream.Results))
	return suite
}

// startHeartbeat logs progress every interval until the returned func is called.
func (r *Runner) startHeartbeat(ctx context.Context, p suitePlan, parser *tapParser) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		start := time.Now()
		t := time.NewTicker(r.heartbeat)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				hb := Heartbeat{Category: p.category, File: p.file, Elapsed: time.Since(start), Reported: parser.Reported()}
				r.logger.InfoContext(ctx, "suite still running", "category", hb.Category,
					"elapsed", hb.Elapsed.Round(time.Second), "reported", hb.Reported)
				if r.onHeartbeat != nil {
					r.onHeartbeat(hb)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// merge lines up TAP results with the planned cases. Planned cases keep
// their written order; results the plan does not know are appended.
func merge(p suitePlan, stream TAPStream, note string) []types.TestResult {
	byID := make(map[string]TAPResult, len(stream.Results))
	var extra []TAPResult
	for _, tr := range stream.Results {
		id := caseID(tr.Title)
		if id == "" || !p.known(id) {
			extra = append(extra, tr)
			continue
		}
		byID[id] = tr
	}

	var out []types.TestResult
	if len(p.cases) > 0 {
		for _, mc := range p.cases {
			if tr, ok := byID[mc.ID]; ok {
				out = append(out, toResult(mc.ID, tr, mc.Informational()))
				continue
			}
			out = append(out, types.TestResult{
				ID: mc.ID, Name: mc.Title, Status: types.StatusFailed,
				Diagnostic: note, Informational: mc.Informational(),
			})
		}
	}
	for _, tr := range extra {
		out = append(out, toResult(caseID(tr.Title), tr, p.informational))
	}

	if len(p.cases) == 0 && stream.Plan > 0 {
		seen := make(map[int]bool, len(extra))
		for _, tr := range extra {
			seen[tr.Number] = true
		}
		for n := 1; n <= stream.Plan; n++ {
			if !seen[n] {
				out = append(out, types.TestResult{
					ID: fmt.Sprintf("%s-%03d", p.category, n), Status: types.StatusFailed,
					Diagnostic: note, Informational: p.informational,
				})
			}
		}
	}
	return out
}

func (p suitePlan) known(id string) bool {
	if len(p.cases) == 0 {
		return false
	}
	return slices.ContainsFunc(p.cases, func(mc synth.ManifestCase) bool { return mc.ID == id })
}

func toResult(id string, tr TAPResult, informational bool) types.TestResult {
	return types.TestResult{
		ID:            id,
		Name:          tr.Title,
		Number:        tr.Number,
		Status:        tr.Status,
		Diagnostic:    tr.Diagnostic,
		Informational: informational,
		Duration:      tr.Duration,
		DurationMS:    tr.Duration.Milliseconds(),
	}
}

// unreported marks every planned case failed with the same diagnostic.
func unreported(p suitePlan, note string) []types.TestResult {
	return merge(p, TAPStream{}, note)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
