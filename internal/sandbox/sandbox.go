// Package sandbox runs untrusted external programs with an enforced deadline,
// captured output, non-interactive stdin, a sanitized environment and
// resource ceilings. The child's whole process group is killed and reaped on
// every exit path.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Execution defaults.
const (
	// DefaultTimeout applies when a Spec has no timeout of its own.
	DefaultTimeout = 5 * time.Second

	// DefaultMaxOutputBytes caps each captured stream.
	DefaultMaxOutputBytes = 1 << 20

	// killGrace is how long Wait keeps draining pipes after the child was killed.
	killGrace = 2 * time.Second

	// defaultSampleInterval is the usage sampler's polling period.
	defaultSampleInterval = 10 * time.Millisecond
)

// Spec describes one invocation.
type Spec struct {
	// Path is the executable to run.
	Path string

	// Args are passed verbatim; no shell is involved.
	Args []string

	// Timeout is the wall-clock deadline. Zero means DefaultTimeout.
	Timeout time.Duration

	// Stdin feeds the child. Nil connects it to the null device.
	Stdin io.Reader

	// Env adds per-call overrides on top of the sandbox environment.
	Env map[string]string

	// Dir is the working directory. Empty inherits the caller's.
	Dir string

	// DiscardOutput drops stdout and stderr instead of capturing them.
	DiscardOutput bool

	// Stream, when set, also receives stdout as it is produced.
	Stream io.Writer
}

// Result is the outcome of one invocation.
type Result struct {
	Stdout string
	Stderr string

	// ExitCode is the child's exit status. A child killed by a signal
	// reports 128+signal; -1 means no status was collected.
	ExitCode int

	// TimedOut is set when the deadline expired and the child was killed.
	TimedOut bool

	// Truncated is set when either stream exceeded the capture cap.
	Truncated bool

	Duration time.Duration
	Usage    Usage
}

// Output returns stdout, or stderr when stdout is blank. Many tools print
// help to stderr.
func (r Result) Output() string {
	if strings.TrimSpace(r.Stdout) != "" {
		return r.Stdout
	}
	return r.Stderr
}

// Combined returns stdout followed by stderr.
func (r Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Executor is the behavior callers depend on; *Sandbox implements it.
type Executor interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// Sandbox runs processes under a fixed policy.
type Sandbox struct {
	limits         *ResourceLimits
	env            map[string]string
	maxOutput      int
	sampleInterval time.Duration
	logger         *slog.Logger
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithLimits sets the resource ceilings applied to every child.
func WithLimits(l ResourceLimits) Option {
	return func(s *Sandbox) { s.limits = &l }
}

// WithoutLimits disables resource ceilings, e.g. for the trusted test runner.
func WithoutLimits() Option {
	return func(s *Sandbox) { s.limits = nil }
}

// WithEnv adds an environment override for every child.
func WithEnv(key, value string) Option {
	return func(s *Sandbox) { s.env[key] = value }
}

// WithMaxOutputBytes changes the per-stream capture cap.
func WithMaxOutputBytes(n int) Option {
	return func(s *Sandbox) { s.maxOutput = n }
}

// WithSampleInterval changes how often child usage is polled. Zero disables sampling.
func WithSampleInterval(d time.Duration) Option {
	return func(s *Sandbox) { s.sampleInterval = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sandbox) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Sandbox with default limits and the non-interactive environment.
func New(opts ...Option) *Sandbox {
	limits := DefaultLimits()
	s := &Sandbox{
		limits:         &limits,
		env:            DefaultEnv(),
		maxOutput:      DefaultMaxOutputBytes,
		sampleInterval: defaultSampleInterval,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Limits returns the configured ceilings, or nil when disabled.
func (s *Sandbox) Limits() *ResourceLimits {
	return s.limits
}

// Run executes spec and blocks until the child exits or its deadline expires.
// A deadline expiry is not an error: it is reported through Result.TimedOut.
// Errors are returned only when the child could not be started (wrapping
// ErrStart) or the parent context was cancelled.
//
// With limits configured the child is launched through the trampoline (see
// MaybeTrampoline), which lowers its rlimits before exec'ing spec.Path.
func (s *Sandbox) Run(ctx context.Context, spec Spec) (Result, error) {
	res := Result{ExitCode: -1}
	if spec.Path == "" {
		return res, errors.New("sandbox: empty executable path")
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, spec.Path, spec.Args...)
	cmd.Stdin = spec.Stdin
	cmd.Dir = spec.Dir
	cmd.Env = s.environ(spec.Env)
	cmd.SysProcAttr = newProcAttr()
	cmd.Cancel = func() error { return killGroup(cmd) }
	cmd.WaitDelay = killGrace

	stdout := newCappedBuffer(s.maxOutput)
	stderr := newCappedBuffer(s.maxOutput)
	if spec.DiscardOutput {
		cmd.Stdout, cmd.Stderr = io.Discard, io.Discard
	} else {
		cmd.Stdout, cmd.Stderr = stdout, stderr
	}
	if spec.Stream != nil {
		cmd.Stdout = io.MultiWriter(cmd.Stdout, spec.Stream)
	}

	var status *os.File
	if s.limits != nil && cmd.Err == nil {
		r, err := wrapCommand(cmd, *s.limits)
		if err != nil {
			s.logger.WarnContext(ctx, "resource limits not applied", "path", spec.Path, "error", err)
		} else {
			status = r
		}
	}

	s.logger.DebugContext(ctx, "exec", "path", spec.Path, "args", spec.Args, "timeout", timeout)

	start := time.Now()
	startErr := cmd.Start()
	if status != nil {
		cmd.ExtraFiles[0].Close()
	}
	if startErr != nil {
		if status != nil {
			status.Close()
		}
		return res, fmt.Errorf("%w: %s: %w", ErrStart, spec.Path, startErr)
	}

	if status != nil {
		warnings, err := awaitExec(status)
		for _, w := range warnings {
			s.logger.WarnContext(ctx, "resource limit not applied", "path", spec.Path, "detail", w)
		}
		if err != nil {
			_ = cmd.Wait()
			return res, fmt.Errorf("%w: %s: %w", ErrStart, spec.Path, err)
		}
	}

	var sampler *usageSampler
	if s.sampleInterval > 0 {
		sampler = startSampler(cmd.Process.Pid, s.sampleInterval)
	}

	waitErr := cmd.Wait()
	res.Duration = time.Since(start)
	if sampler != nil {
		res.Usage = sampler.stop()
	}

	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Truncated = stdout.truncated || stderr.truncated
	if cmd.ProcessState != nil {
		res.ExitCode = exitStatus(cmd.ProcessState)
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.TimedOut = true
		s.logger.DebugContext(ctx, "exec timed out", "path", spec.Path, "timeout", timeout)
		return res, nil
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		return res, fmt.Errorf("wait %s: %w", spec.Path, waitErr)
	}

	s.logger.DebugContext(ctx, "exec done", "path", spec.Path, "exit_code", res.ExitCode,
		"duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// cappedBuffer keeps at most max bytes and remembers whether more arrived.
type cappedBuffer struct {
	buf       strings.Builder
	max       int
	truncated bool
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

// String returns the captured bytes as valid UTF-8, replacing invalid sequences.
func (b *cappedBuffer) String() string {
	return strings.ToValidUTF8(b.buf.String(), "\uFFFD")
}
