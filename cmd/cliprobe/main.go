// Package main is the entry point for cliprobe, a black-box tester for command-line tools.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/ancients-collective/cliprobe/internal/clierr"
	"github.com/ancients-collective/cliprobe/internal/config"
	"github.com/ancients-collective/cliprobe/internal/output"
	"github.com/ancients-collective/cliprobe/internal/sandbox"
	"github.com/ancients-collective/cliprobe/internal/types"
)

// version is set at build time via -ldflags. The default is a dev fallback
// for plain `go install` or `go run` usage.
var version = "0.4.0"

// errUsage is returned by flag parsing after usage has been printed.
var errUsage = errors.New("usage")

// app carries the process streams so commands can be driven from tests.
type app struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
	// getwd locates the auto-detected config file.
	getwd func() (string, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr, now: time.Now, getwd: os.Getwd}
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	Debug   bool
	Quiet   bool
	NoColor bool
	Config  string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&c.Debug, "debug", false, "Enable debug diagnostic output")
	fs.BoolVar(&c.Quiet, "quiet", false, "Suppress progress output")
	fs.BoolVar(&c.Quiet, "q", false, "Suppress progress output (shorthand)")
	fs.BoolVar(&c.NoColor, "no-color", false, "Disable colored output")
	fs.StringVar(&c.Config, "config", "", "Tool configuration file (default: ./"+config.DefaultFileName+" if present)")
}

func main() {
	sandbox.MaybeTrampoline()
	os.Exit(newApp(os.Stdout, os.Stderr).run(os.Args[1:]))
}

// run dispatches to a subcommand and returns the process exit code.
func (a *app) run(args []string) int {
	if len(args) == 0 {
		a.usage()
		return 1
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "analyze":
		return a.cmdAnalyze(ctx, args[1:])
	case "generate":
		return a.cmdGenerate(ctx, args[1:])
	case "run":
		return a.cmdRun(ctx, args[1:])
	case "test":
		return a.cmdTest(ctx, args[1:])
	case "categories":
		return a.cmdCategories(args[1:])
	case "version", "--version", "-V":
		fmt.Fprintf(a.stdout, "cliprobe %s\n", version)
		return 0
	case "help", "--help", "-h":
		a.usage()
		return 0
	default:
		fmt.Fprintf(a.stderr, "  ✗ Unknown command %q\n", args[0])
		if s := suggest(args[0], commandNames); len(s) > 0 {
			fmt.Fprintf(a.stderr, "\n  Did you mean:\n")
			for _, c := range s {
				fmt.Fprintf(a.stderr, "    • %s\n", c)
			}
		}
		fmt.Fprintln(a.stderr)
		return 1
	}
}

var commandNames = []string{"analyze", "generate", "run", "test", "categories", "version", "help"}

func (a *app) usage() {
	w := a.stderr
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  cliprobe %s\n", version)
	fmt.Fprintf(w, "  Black-box tests for command-line tools\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Usage: cliprobe <command> [options]\n\n")
	fmt.Fprintf(w, "  Commands:\n")
	fmt.Fprintf(w, "    analyze <binary>       Discover options and subcommands, write the interface model\n")
	fmt.Fprintf(w, "    generate <model.json>  Synthesize bats suites from an interface model\n")
	fmt.Fprintf(w, "    run <dir>              Execute generated suites and write a report\n")
	fmt.Fprintf(w, "    test <binary>          Analyze, generate and run in one go\n")
	fmt.Fprintf(w, "    categories             List test categories and their policy\n")
	fmt.Fprintf(w, "\n  Common options:\n")
	fmt.Fprintf(w, "         --config <file>       Tool configuration (default: ./%s)\n", config.DefaultFileName)
	fmt.Fprintf(w, "         --debug               Enable debug diagnostic output\n")
	fmt.Fprintf(w, "    -q,  --quiet               Suppress progress output\n")
	fmt.Fprintf(w, "         --no-color            Disable colored output\n")
	fmt.Fprintf(w, "\n  Examples:\n")
	fmt.Fprintf(w, "    cliprobe analyze ./mytool -o model.json        Write the interface model\n")
	fmt.Fprintf(w, "    cliprobe generate model.json -o tests          Write suites to ./tests\n")
	fmt.Fprintf(w, "    cliprobe generate model.json --categories basic,help\n")
	fmt.Fprintf(w, "    cliprobe run tests --format json -o report.json\n")
	fmt.Fprintf(w, "    cliprobe run tests --skip security --concurrency 4\n")
	fmt.Fprintf(w, "    cliprobe test ./mytool -o out                  Full pipeline into ./out\n")
	fmt.Fprintf(w, "    cliprobe test ./mytool --deadline 600          Stop everything after ten minutes\n")
	fmt.Fprintf(w, "\n  Exit codes:\n")
	fmt.Fprintf(w, "    0 run completed   2 invalid configuration   3 binary not found\n")
	fmt.Fprintf(w, "    4 analysis failed 5 bats missing            1 other errors\n")
	fmt.Fprintf(w, "\n")
}

// newFlagSet creates a FlagSet that reports errors on the app's stderr.
func (a *app) newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "\n  Usage: cliprobe %s %s\n\n  Options:\n", name, synopsis)
		fs.PrintDefaults()
		fmt.Fprintln(a.stderr)
	}
	return fs
}

// parseArgs parses flags that may appear before or after positional
// arguments and returns the positionals in order.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return nil, errUsage
			}
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

// flagExitCode maps a flag parsing error to an exit code: 0 for -h.
func flagExitCode(err error) int {
	if errors.Is(err, errUsage) {
		return 0
	}
	return clierr.InvalidConfiguration.ExitCode()
}

// setup applies color settings and builds the logger.
func (a *app) setup(c commonFlags, textOutput bool) *slog.Logger {
	if c.NoColor || !textOutput || output.IsDumbTerm() {
		color.NoColor = true
	}
	return newLogger(a.stderr, c.Debug, c.Quiet)
}

// newLogger builds the stderr logger: warnings by default, debug with
// --debug, errors only with --quiet.
func newLogger(w io.Writer, debug, quiet bool) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case debug:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig resolves the tool configuration from --config or the working
// directory.
func (a *app) loadConfig(c commonFlags) (*types.ToolConfig, error) {
	dir, err := a.getwd()
	if err != nil {
		dir = "."
	}
	cfg, path, err := config.New().Resolve(c.Config, dir)
	if err != nil {
		return nil, err
	}
	if path != "" && !c.Quiet {
		fmt.Fprintf(a.stderr, "  ▸ Using config %s\n", path)
	}
	return cfg, nil
}

// fail prints err and returns its exit code.
func (a *app) fail(c commonFlags, err error) int {
	if !c.Quiet {
		fmt.Fprintf(a.stderr, "  ✗ %v\n", err)
	}
	return clierr.ExitCode(err)
}

// parseCategoryList turns a comma-separated --categories or --skip value
// into categories, suggesting close names for typos. "all" expands to every
// category.
func parseCategoryList(raw string) ([]types.Category, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []types.Category
	var invalid []string
	seen := make(map[types.Category]bool)
	add := func(c types.Category) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(strings.ToLower(s))
		if s == "" {
			continue
		}
		if s == "all" {
			for _, c := range types.CanonicalCategories {
				add(c)
			}
			continue
		}
		c, ok := types.ParseCategory(s)
		if !ok {
			invalid = append(invalid, s)
			continue
		}
		add(c)
	}
	if len(invalid) > 0 {
		msg := fmt.Sprintf("unknown categories: %s", strings.Join(invalid, ", "))
		if s := suggest(invalid[0], categoryNames()); len(s) > 0 {
			msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(s, ", "))
		}
		return nil, clierr.New(clierr.InvalidConfiguration, "categories", msg)
	}
	return out, nil
}

func categoryNames() []string {
	names := make([]string, len(types.CanonicalCategories))
	for i, c := range types.CanonicalCategories {
		names[i] = string(c)
	}
	return names
}

// unsafeOutputPrefixes are path prefixes where writing output files is rejected.
// Prevents accidental overwrite of system files when running as root.
var unsafeOutputPrefixes = []string{"/etc/", "/proc/", "/sys/", "/dev/", "/boot/", "/sbin/", "/bin/", "/usr/"}

// validateOutputPath checks that the output file path is safe to write to.
func validateOutputPath(path string) error {
	cleaned := filepath.Clean(path)
	if filepath.IsAbs(cleaned) {
		for _, prefix := range unsafeOutputPrefixes {
			if strings.HasPrefix(cleaned+"/", prefix) {
				return fmt.Errorf("refusing to write to system path %q", cleaned)
			}
		}
	}
	return nil
}

// createOutput opens path for writing after the system-path check.
func createOutput(path string) (*os.File, error) {
	if err := validateOutputPath(path); err != nil {
		return nil, fmt.Errorf("unsafe output path: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}

// terminalWidth returns the width of stdout when it is a terminal.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	if tw, _, err := term.GetSize(fd); err == nil && tw > 0 {
		return tw
	}
	return 0
}
