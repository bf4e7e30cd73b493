// Package types defines shared type definitions used across all cliprobe packages.
package types

import "time"

// ValueKind is the inferred kind of value an option accepts.
type ValueKind string

const (
	// KindFlag is a boolean switch that takes no value.
	KindFlag ValueKind = "flag"
	// KindString accepts free-form text.
	KindString ValueKind = "string"
	// KindNumeric accepts a number.
	KindNumeric ValueKind = "numeric"
	// KindPath accepts a file or directory path.
	KindPath ValueKind = "path"
	// KindEnum accepts one of a fixed set of variants (see Option.EnumValues).
	KindEnum ValueKind = "enum"
)

// TakesValue reports whether options of this kind consume an argument.
func (k ValueKind) TakesValue() bool {
	return k != KindFlag && k != ""
}

// Behavior is the inferred result of invoking a binary with no arguments.
type Behavior string

const (
	// BehaviorShowsHelp means the binary prints help and exits successfully.
	BehaviorShowsHelp Behavior = "shows_help"
	// BehaviorRequiresSubcommand means the binary refuses to run without a subcommand.
	BehaviorRequiresSubcommand Behavior = "requires_subcommand"
	// BehaviorExecutesDefaultAction means the binary does real work with no arguments.
	BehaviorExecutesDefaultAction Behavior = "executes_default_action"
	// BehaviorInteractive means the binary is a known REPL or interactive shell.
	BehaviorInteractive Behavior = "interactive_prompt_detected"
)

// InterfaceModel is the root of one analysis: everything discovered about a binary.
// It is built once by the introspection engine and treated as read-only afterwards.
type InterfaceModel struct {
	// BinaryName is the base name of the analyzed executable.
	BinaryName string `json:"binary_name"`

	// BinaryPath is the resolved absolute path.
	BinaryPath string `json:"binary_path"`

	// Version is the detected version string, nil when none was found.
	Version *string `json:"version"`

	// GlobalOptions are the options listed in the root help text.
	GlobalOptions []Option `json:"global_options"`

	// Subcommands is the discovered subcommand tree.
	Subcommands []Subcommand `json:"subcommands"`

	// Behavior is the no-argument classification.
	Behavior Behavior `json:"behavior"`

	// Metadata holds counts and timing for the analysis.
	Metadata AnalysisMetadata `json:"metadata"`
}

// VersionString returns the detected version or "unknown".
func (m *InterfaceModel) VersionString() string {
	if m.Version == nil || *m.Version == "" {
		return "unknown"
	}
	return *m.Version
}

// AllOptions returns global options followed by every subcommand option, depth-first.
func (m *InterfaceModel) AllOptions() []Option {
	opts := append([]Option(nil), m.GlobalOptions...)
	WalkSubcommands(m.Subcommands, func(_ []string, sc *Subcommand) {
		opts = append(opts, sc.Options...)
	})
	return opts
}

// AnalysisMetadata records counts and timing for one analysis.
type AnalysisMetadata struct {
	TotalOptions       int       `json:"total_options"`
	TotalSubcommands   int       `json:"total_subcommands"`
	AnalysisDurationMS int64     `json:"analysis_duration_ms"`
	DepthReached       int       `json:"depth_reached"`
	AnalyzedAt         time.Time `json:"analyzed_at"`

	// Fingerprint is a hash of the canonical model with timing fields removed.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Option is a single command-line option discovered in help text.
type Option struct {
	// Short is the single-dash form, e.g. "-v". Optional.
	Short string `json:"short,omitempty"`

	// Long is the double-dash form, e.g. "--verbose". Optional.
	Long string `json:"long,omitempty"`

	// Description is the help text following the option syntax.
	Description string `json:"description,omitempty"`

	// ValueKind is the inferred kind of value.
	ValueKind ValueKind `json:"value_kind"`

	// EnumValues lists the variants when ValueKind is KindEnum.
	EnumValues []string `json:"enum_values,omitempty"`

	// Required is set when the help text marks the option as mandatory.
	Required bool `json:"required"`
}

// Name returns the preferred spelling of the option: long form first.
func (o Option) Name() string {
	if o.Long != "" {
		return o.Long
	}
	return o.Short
}

// Key identifies the option within its scope.
func (o Option) Key() string {
	return o.Short + "|" + o.Long
}

// Subcommand is a node in the discovered subcommand tree.
type Subcommand struct {
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Options      []Option     `json:"options"`
	Subcommands  []Subcommand `json:"subcommands"`
	RequiredArgs []string     `json:"required_args"`
}

// WalkSubcommands visits every node depth-first, passing the full command path
// (excluding the binary itself).
func WalkSubcommands(subs []Subcommand, fn func(path []string, sc *Subcommand)) {
	walkSubcommands(nil, subs, fn)
}

func walkSubcommands(prefix []string, subs []Subcommand, fn func([]string, *Subcommand)) {
	for i := range subs {
		path := append(append([]string(nil), prefix...), subs[i].Name)
		fn(path, &subs[i])
		walkSubcommands(path, subs[i].Subcommands, fn)
	}
}
