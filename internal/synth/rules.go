package synth

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ancients-collective/cliprobe/internal/config"
	"github.com/ancients-collective/cliprobe/internal/types"
)

// Fixed inputs used by the rules.
const (
	invalidOption   = "--cliprobe-invalid-option-xyz"
	invalidNumber   = "not-a-number"
	invalidEnum     = "invalid-value-xyz"
	longInputLength = 10000

	defaultMaxStartupMS = 1000
	defaultMaxMemoryMB  = 100
)

// Payload is one hostile input injected into string and path options.
type Payload struct {
	Name  string
	Value Value
}

// DefaultPayloads are injected into every string and path option.
var DefaultPayloads = []Payload{
	{Name: "command injection", Value: Words("test; rm -rf /")},
	{Name: "null byte", Value: Raw(`$'/tmp/test\x00malicious'`)},
	{Name: "path traversal", Value: Words("../../etc/passwd")},
}

// DefaultShells are exercised by the multi-shell category.
var DefaultShells = []string{"bash", "zsh", "sh"}

// DestructiveKeywords mark subcommands as destructive. Keywords of three or
// more letters match anywhere in a name segment; shorter ones must equal it.
var DestructiveKeywords = []string{"delete", "remove", "clean", "destroy", "purge", "drop", "rm", "uninstall"}

// ConfirmationFlags skip an interactive confirmation.
var ConfirmationFlags = []string{"--yes", "-y", "--force", "-f", "--assume-yes", "--no-confirm"}

// ruleInput is everything a category rule may read.
type ruleInput struct {
	model    *types.InterfaceModel
	cfg      *types.ToolConfig
	payloads []Payload
}

// draft is a category's cases before IDs and policy tags are assigned.
type draft struct {
	cases    []types.TestCase
	setup    []string
	teardown []string
}

func (d *draft) add(tc types.TestCase) {
	d.cases = append(d.cases, tc)
}

// rule produces the draft for one category.
type rule func(in ruleInput) (draft, error)

var rules = map[types.Category]rule{
	types.CategoryBasic:              basicRule,
	types.CategoryHelp:               helpRule,
	types.CategorySecurity:           securityRule,
	types.CategoryPath:               pathRule,
	types.CategoryMultiShell:         multiShellRule,
	types.CategoryInputValidation:    inputValidationRule,
	types.CategoryDestructiveOps:     destructiveRule,
	types.CategoryPerformance:        performanceRule,
	types.CategoryDirectoryTraversal: directoryTraversalRule,
}

// scopedOption is an option together with the subcommand path it belongs to
// and dummy values for that subcommand's required positional arguments.
type scopedOption struct {
	path        []string
	positionals []string
	opt         types.Option
}

func (s scopedOption) where() string {
	if len(s.path) == 0 {
		return ""
	}
	return " (" + strings.Join(s.path, " ") + ")"
}

func scopedOptions(m *types.InterfaceModel) []scopedOption {
	var out []scopedOption
	for _, o := range m.GlobalOptions {
		out = append(out, scopedOption{opt: o})
	}
	types.WalkSubcommands(m.Subcommands, func(path []string, sc *types.Subcommand) {
		dummies := dummyArgs(sc.RequiredArgs)
		for _, o := range sc.Options {
			out = append(out, scopedOption{path: path, positionals: dummies, opt: o})
		}
	})
	return out
}

func optionsOfKind(m *types.InterfaceModel, kinds ...types.ValueKind) []scopedOption {
	var out []scopedOption
	for _, so := range scopedOptions(m) {
		if slices.Contains(kinds, so.opt.ValueKind) {
			out = append(out, so)
		}
	}
	return out
}

func invoke(args ...string) (string, error) {
	return Render("invoke", Vars{"BINARY": Raw(`"$BINARY"`), "ARGS": Words(args...)})
}

// inject renders "<bin> <subcommand path> <option> <payload> <positionals>".
func inject(so scopedOption, option string, payload Value) (string, error) {
	return Render("inject", Vars{
		"BINARY":     Raw(`"$BINARY"`),
		"ARGS":       Words(so.path...),
		"OPTION":     Words(option),
		"PAYLOAD":    payload,
		"POSITIONAL": Words(so.positionals...),
	})
}

func basicRule(in ruleInput) (draft, error) {
	var d draft
	m := in.model

	help, err := invoke("--help")
	if err != nil {
		return d, err
	}
	d.add(types.TestCase{
		Description:   "--help exits 0 and prints usage",
		Command:       help,
		Expect:        types.ExitCode(0),
		OutputPattern: "[Uu]sage",
	})

	if shortHelpAvailable(m) {
		cmd, err := invoke("-h")
		if err != nil {
			return d, err
		}
		d.add(types.TestCase{Description: "-h exits 0", Command: cmd, Expect: types.ExitCode(0)})
	}

	if m.Version != nil {
		cmd, err := invoke("--version")
		if err != nil {
			return d, err
		}
		d.add(types.TestCase{
			Description:   "--version exits 0",
			Command:       cmd,
			Expect:        types.ExitCode(0),
			OutputPattern: regexpQuote(*m.Version),
		})
	}

	cmd, err := invoke(invalidOption)
	if err != nil {
		return d, err
	}
	d.add(types.TestCase{Description: "unknown option is rejected", Command: cmd, Expect: types.NonZero()})

	noArgs, err := noArgsCase(m)
	if err != nil {
		return d, err
	}
	d.add(noArgs)
	return d, nil
}

// shortHelpAvailable reports whether -h is either listed as help or unused.
func shortHelpAvailable(m *types.InterfaceModel) bool {
	for _, o := range m.GlobalOptions {
		if o.Short == "-h" {
			return o.Long == "" || o.Long == "--help"
		}
	}
	return true
}

func noArgsCase(m *types.InterfaceModel) (types.TestCase, error) {
	switch m.Behavior {
	case types.BehaviorInteractive:
		cmd, err := Render("shell", Vars{"SHELL": Words("bash"), "ARGS": Words(`echo '' | "$BINARY"`)})
		if err != nil {
			return types.TestCase{}, err
		}
		return types.TestCase{
			Description: "empty input to the interactive prompt exits 0",
			Command:     cmd,
			Expect:      types.ExitCode(0),
			Tags:        []string{types.TagInteractive},
		}, nil
	case types.BehaviorRequiresSubcommand:
		cmd, err := invoke()
		if err != nil {
			return types.TestCase{}, err
		}
		return types.TestCase{Description: "no arguments exits non-zero", Command: cmd, Expect: types.NonZero()}, nil
	case types.BehaviorExecutesDefaultAction:
		cmd, err := invoke()
		if err != nil {
			return types.TestCase{}, err
		}
		return types.TestCase{
			Description: "no arguments runs the default action",
			Command:     cmd,
			Expect:      types.OneOf(0, 1, 2),
			Tags:        []string{types.TagInformational},
		}, nil
	default:
		cmd, err := invoke()
		if err != nil {
			return types.TestCase{}, err
		}
		return types.TestCase{Description: "no arguments exits 0", Command: cmd, Expect: types.ExitCode(0)}, nil
	}
}

func helpRule(in ruleInput) (draft, error) {
	var d draft
	var err error
	types.WalkSubcommands(in.model.Subcommands, func(path []string, _ *types.Subcommand) {
		if err != nil || path[len(path)-1] == "help" {
			return
		}
		var cmd string
		cmd, err = invoke(append(slices.Clone(path), "--help")...)
		if err != nil {
			return
		}
		d.add(types.TestCase{
			Description: strings.Join(path, " ") + " --help exits 0",
			Command:     cmd,
			Expect:      types.ExitCode(0),
		})
	})
	return d, err
}

func securityRule(in ruleInput) (draft, error) {
	var d draft
	var skip []string
	var custom []types.CustomTest
	if sec := in.cfg.TestAdjustments.Security; sec != nil {
		skip, custom = sec.SkipOptions, sec.CustomTests
	}
	skipped := func(o types.Option) bool {
		return slices.Contains(skip, o.Long) || (o.Short != "" && slices.Contains(skip, o.Short))
	}

	targets := optionsOfKind(in.model, types.KindString, types.KindPath)
	for _, so := range targets {
		if skipped(so.opt) {
			continue
		}
		for _, p := range in.payloads {
			cmd, err := inject(so, so.opt.Name(), p.Value)
			if err != nil {
				return d, err
			}
			d.add(types.TestCase{
				Description: fmt.Sprintf("%s rejects %s payload%s", so.opt.Name(), p.Name, so.where()),
				Command:     cmd,
				Expect:      types.NonZero(),
			})
		}
	}

	long := strings.Repeat("A", longInputLength)
	option, scope := "--help", scopedOption{}
	for _, so := range targets {
		if so.opt.ValueKind == types.KindString && !skipped(so.opt) {
			option, scope = so.opt.Name(), so
			break
		}
	}
	cmd, err := inject(scope, option, Words(long))
	if err != nil {
		return d, err
	}
	d.add(types.TestCase{
		Description: fmt.Sprintf("%s survives a %d character argument", option, longInputLength),
		Command:     cmd,
		Expect:      types.OneOf(0, 1, 2),
		Tags:        []string{types.TagInformational},
	})

	for _, ct := range custom {
		desc := ct.Name
		if ct.Description != "" {
			desc = ct.Name + " - " + ct.Description
		}
		d.add(types.TestCase{
			Description: desc,
			Command:     ct.Command,
			Expect:      types.ExitCode(ct.ExpectedExitCode),
		})
	}
	return d, nil
}

// pathVariant is one awkward path shape exercised by the path category.
type pathVariant struct {
	name    string
	prepare []string
	arg     Value
	unicode bool
}

var pathVariants = []pathVariant{
	{
		name:    "path with spaces",
		prepare: []string{`mkdir -p "$BATS_TEST_TMPDIR/dir with spaces"`, `touch "$BATS_TEST_TMPDIR/dir with spaces/file.txt"`},
		arg:     Raw(`"$BATS_TEST_TMPDIR/dir with spaces/file.txt"`),
	},
	{
		name:    "unicode path",
		prepare: []string{`mkdir -p "$BATS_TEST_TMPDIR/ünïcødé"`, `touch "$BATS_TEST_TMPDIR/ünïcødé/файл.txt"`},
		arg:     Raw(`"$BATS_TEST_TMPDIR/ünïcødé/файл.txt"`),
		unicode: true,
	},
	{
		name:    "symlinked path",
		prepare: []string{`touch "$BATS_TEST_TMPDIR/target.txt"`, `ln -s "$BATS_TEST_TMPDIR/target.txt" "$BATS_TEST_TMPDIR/link.txt"`},
		arg:     Raw(`"$BATS_TEST_TMPDIR/link.txt"`),
	},
	{
		name:    "relative path",
		prepare: []string{`cd "$BATS_TEST_TMPDIR"`, `touch rel.txt`},
		arg:     Words("./rel.txt"),
	},
}

func pathRule(in ruleInput) (draft, error) {
	var d draft
	skipUnicode := in.cfg.TestAdjustments.Path != nil && in.cfg.TestAdjustments.Path.SkipUnicode

	targets := optionsOfKind(in.model, types.KindPath)
	if len(targets) == 0 {
		targets = []scopedOption{{opt: types.Option{Long: "--help"}}}
	}
	for _, so := range targets {
		for _, v := range pathVariants {
			if v.unicode && skipUnicode {
				continue
			}
			cmd, err := inject(so, so.opt.Name(), v.arg)
			if err != nil {
				return d, err
			}
			d.add(types.TestCase{
				Description: fmt.Sprintf("%s accepts a %s%s", so.opt.Name(), v.name, so.where()),
				Command:     cmd,
				Expect:      types.OneOf(0, 1, 2),
				Prepare:     slices.Clone(v.prepare),
			})
		}
	}
	return d, nil
}

func multiShellRule(in ruleInput) (draft, error) {
	var d draft
	shells := DefaultShells
	if ms := in.cfg.TestAdjustments.MultiShell; ms != nil && len(ms.Shells) > 0 {
		shells = ms.Shells
	}
	for _, sh := range shells {
		cmd, err := Render("shell", Vars{"SHELL": Words(sh), "ARGS": Words(`"$BINARY" --help`)})
		if err != nil {
			return d, err
		}
		d.add(types.TestCase{
			Description: "--help under " + sh,
			Command:     cmd,
			Expect:      types.ExitCode(0),
			Requires:    []string{sh},
		})
	}
	return d, nil
}

// probe is one value fed to a typed option.
type probe struct {
	what   string
	value  string
	expect types.Expectation
}

func probesFor(o types.Option) []probe {
	switch o.ValueKind {
	case types.KindNumeric:
		return []probe{
			{"accepts a valid number", "10", types.OneOf(0, 1, 2)},
			{"rejects a non-number", invalidNumber, types.NonZero()},
			{"handles a negative number", "-1", types.OneOf(0, 1, 2)},
		}
	case types.KindEnum:
		var out []probe
		if len(o.EnumValues) > 0 {
			out = append(out, probe{"accepts variant " + o.EnumValues[0], o.EnumValues[0], types.OneOf(0, 1, 2)})
		}
		return append(out, probe{"rejects an unknown variant", invalidEnum, types.NonZero()})
	default:
		return nil
	}
}

func inputValidationRule(in ruleInput) (draft, error) {
	var d draft
	for _, so := range scopedOptions(in.model) {
		name := so.opt.Name()
		for _, p := range probesFor(so.opt) {
			cmd, err := inject(so, name, Words(p.value))
			if err != nil {
				return d, err
			}
			d.add(types.TestCase{
				Description: fmt.Sprintf("%s %s%s", name, p.what, so.where()),
				Command:     cmd,
				Expect:      p.expect,
			})
		}
	}
	return d, nil
}

// IsDestructive reports whether a subcommand name looks destructive.
func IsDestructive(name string) bool {
	segments := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool { return r == '-' || r == '_' })
	for _, seg := range segments {
		for _, kw := range DestructiveKeywords {
			if seg == kw || (len(kw) >= 3 && strings.Contains(seg, kw)) {
				return true
			}
		}
	}
	return false
}

// DummyArg returns a harmless stand-in for a required positional argument.
func DummyArg(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "dir"):
		return "/tmp/cliprobe-test-dir"
	case strings.Contains(n, "file"), strings.Contains(n, "path"):
		return "/tmp/cliprobe-test-file"
	case strings.Contains(n, "id"), strings.Contains(n, "name"):
		return "test-id"
	default:
		return "test-value"
	}
}

func dummyArgs(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, len(names))
	for i, a := range names {
		out[i] = DummyArg(a)
	}
	return out
}

func confirmationFlag(opts ...[]types.Option) string {
	for _, flag := range ConfirmationFlags {
		for _, list := range opts {
			for _, o := range list {
				if o.Long == flag || o.Short == flag {
					return flag
				}
			}
		}
	}
	return ""
}

func destructiveRule(in ruleInput) (draft, error) {
	var d draft
	expectDecline := types.NonZero()
	var env map[string]string
	if do := in.cfg.TestAdjustments.DestructiveOps; do != nil {
		if do.CancelExitCode != nil {
			expectDecline = types.ExitCode(*do.CancelExitCode)
		}
		env = do.EnvVars
	}

	var err error
	types.WalkSubcommands(in.model.Subcommands, func(path []string, sc *types.Subcommand) {
		if err != nil || !IsDestructive(sc.Name) {
			return
		}
		dummies := dummyArgs(sc.RequiredArgs)
		label := strings.Join(path, " ")

		var cmd string
		cmd, err = invoke(append(slices.Clone(path), dummies...)...)
		if err != nil {
			return
		}
		d.add(types.TestCase{
			Description: label + " does not proceed without confirmation",
			Command:     cmd,
			Expect:      expectDecline,
			Env:         cloneEnv(env),
		})

		if flag := confirmationFlag(sc.Options, in.model.GlobalOptions); flag != "" {
			args := append(append(slices.Clone(path), flag), dummies...)
			cmd, err = invoke(args...)
			if err != nil {
				return
			}
			d.add(types.TestCase{
				Description: fmt.Sprintf("%s %s proceeds without prompting", label, flag),
				Command:     cmd,
				Expect:      types.OneOf(0, 1, 2),
				Env:         cloneEnv(env),
			})
		}
	})
	return d, err
}

func cloneEnv(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

func performanceRule(in ruleInput) (draft, error) {
	var d draft
	maxStartup, maxMemory := defaultMaxStartupMS, defaultMaxMemoryMB
	if p := in.cfg.TestAdjustments.Performance; p != nil {
		if p.MaxStartupMS > 0 {
			maxStartup = p.MaxStartupMS
		}
		if p.MaxMemoryMB > 0 {
			maxMemory = p.MaxMemoryMB
		}
	}

	cmd, err := invoke("--help")
	if err != nil {
		return d, err
	}
	d.add(types.TestCase{
		Description: fmt.Sprintf("--help starts in under %dms", maxStartup),
		Command:     cmd,
		Expect:      types.ExitCode(0),
		Prepare:     []string{`start="$EPOCHREALTIME"`},
		Verify: []string{
			`end="$EPOCHREALTIME"`,
			`elapsed_ms=$(( (${end/./} - ${start/./}) / 1000 ))`,
			fmt.Sprintf(`[ "$elapsed_ms" -lt %d ] || { echo "startup took ${elapsed_ms}ms"; false; }`, maxStartup),
		},
	})

	cmd, err = Render("timed", Vars{"BINARY": Raw(`"$BINARY"`), "ARGS": Words("--help")})
	if err != nil {
		return d, err
	}
	d.add(types.TestCase{
		Description: fmt.Sprintf("--help peak memory under %dMB", maxMemory),
		Command:     cmd,
		Expect:      types.ExitCode(0),
		Requires:    []string{"/usr/bin/time"},
		Verify: []string{
			`rss_kb=$(printf '%s\n' "$output" | awk -F': *' '/Maximum resident set size/ {print $2}')`,
			`[ -n "$rss_kb" ] || skip "time -v reported no memory usage"`,
			fmt.Sprintf(`[ "$rss_kb" -lt %d ] || { echo "peak rss ${rss_kb}KB"; false; }`, maxMemory*1024),
		},
	})
	return d, nil
}

// fixture is one directory-traversal target created in setup().
type fixture struct {
	name     string
	path     string
	setup    []string
	teardown []string
}

func defaultFixtures() []fixture {
	return []fixture{
		{
			name:  "a directory with 1000 files",
			path:  `"$FIXTURES/many_files"`,
			setup: []string{`mkdir -p "$FIXTURES/many_files"`, `for i in $(seq 1 1000); do : > "$FIXTURES/many_files/file_$i"; done`},
		},
		{
			name:  "50 levels of nesting",
			path:  `"$FIXTURES/deep"`,
			setup: []string{`d="$FIXTURES/deep"`, `for i in $(seq 1 50); do d="$d/level_$i"; done`, `mkdir -p "$d"`},
		},
		{
			name:  "a symlink loop",
			path:  `"$FIXTURES/loop"`,
			setup: []string{`mkdir -p "$FIXTURES/loop"`, `ln -sfn "$FIXTURES/loop" "$FIXTURES/loop/self"`},
		},
	}
}

func configuredFixture(td types.TestDirectory) (fixture, error) {
	q, err := quoteWord(td.Path)
	if err != nil {
		return fixture{}, err
	}
	f := fixture{name: td.Path, path: q}
	if td.Create {
		f.setup = append(f.setup, "mkdir -p "+q)
		if td.FileCount > 0 {
			f.setup = append(f.setup, fmt.Sprintf(`for i in $(seq 1 %d); do : > %s/file_$i; done`, td.FileCount, q))
		}
		if td.Depth > 0 {
			f.setup = append(f.setup,
				"d="+q,
				fmt.Sprintf(`for i in $(seq 1 %d); do d="$d/level_$i"; done`, td.Depth),
				`mkdir -p "$d"`)
		}
	}
	if td.Cleanup {
		f.teardown = append(f.teardown, "rm -rf "+q)
	}
	return f, nil
}

func directoryTraversalRule(in ruleInput) (draft, error) {
	var d draft
	fixtures := defaultFixtures()
	d.setup = []string{`FIXTURES="${BATS_FILE_TMPDIR:-${TMPDIR:-/tmp}}/cliprobe-fixtures"`}
	d.teardown = []string{`rm -rf "$FIXTURES"`}

	if dt := in.cfg.TestAdjustments.DirectoryTraversal; dt != nil {
		if len(dt.TestDirectories) > 0 {
			fixtures = fixtures[:0]
			for _, td := range dt.TestDirectories {
				f, err := configuredFixture(td)
				if err != nil {
					return d, err
				}
				fixtures = append(fixtures, f)
			}
		}
		for _, cmd := range dt.SetupCommands {
			if strings.TrimSpace(cmd) == "" {
				continue
			}
			if err := config.ValidateSetupCommand(cmd); err != nil {
				return d, fmt.Errorf("setup command %q: %w", cmd, err)
			}
			d.setup = append(d.setup, cmd)
		}
		for _, cmd := range dt.TeardownCommands {
			if strings.TrimSpace(cmd) == "" {
				continue
			}
			if err := config.ValidateSetupCommand(cmd); err != nil {
				return d, fmt.Errorf("teardown command %q: %w", cmd, err)
			}
			d.teardown = append(d.teardown, cmd)
		}
	}

	var option scopedOption
	if paths := optionsOfKind(in.model, types.KindPath); len(paths) > 0 {
		option = paths[0]
	}
	for _, f := range fixtures {
		d.setup = append(d.setup, f.setup...)
		d.teardown = append(d.teardown, f.teardown...)

		vars := Vars{
			"BINARY":     Raw(`"$BINARY"`),
			"ARGS":       Words(option.path...),
			"PAYLOAD":    Raw(f.path),
			"POSITIONAL": Words(option.positionals...),
		}
		if name := option.opt.Name(); name != "" {
			vars["OPTION"] = Words(name)
		}
		cmd, err := Render("bounded", vars)
		if err != nil {
			return d, err
		}
		d.add(types.TestCase{
			Description: "traverses " + f.name,
			Command:     cmd,
			Expect:      types.OneOf(0, 1, 2, 124),
			Requires:    []string{"timeout"},
		})
	}
	return d, nil
}

// regexpQuote escapes s for use inside a bash [[ =~ ]] pattern.
func regexpQuote(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
