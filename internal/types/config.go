package types

// ToolConfig is the per-tool configuration file (.cli-test-config.yml) that
// adjusts test generation and execution for one target binary.
type ToolConfig struct {
	// Version is the config schema version; only "1.0" is understood.
	Version string `yaml:"version" validate:"required,eq=1.0"`

	// ToolName is the binary the config was written for.
	ToolName string `yaml:"tool_name,omitempty" validate:"omitempty,max=100"`

	// ToolVersion optionally pins the binary version the config was written for.
	ToolVersion string `yaml:"tool_version,omitempty"`

	// Global holds run-wide settings.
	Global GlobalSettings `yaml:"global,omitempty"`

	// TestAdjustments tunes individual categories.
	TestAdjustments TestAdjustments `yaml:"test_adjustments,omitempty"`

	// Policy overrides the default critical/informational policy per category.
	Policy map[string]string `yaml:"policy,omitempty" validate:"omitempty,dive,keys,cliprobe_category,endkeys,oneof=critical informational"`
}

// GlobalSettings holds run-wide settings. Zero values mean "use the default".
type GlobalSettings struct {
	// Timeout is the per-suite timeout in seconds.
	Timeout int `yaml:"timeout,omitempty" validate:"omitempty,min=1,max=86400"`

	// MaxDepth bounds subcommand discovery.
	MaxDepth int `yaml:"max_depth,omitempty" validate:"omitempty,min=1,max=10"`

	// Concurrency is the number of suites executed at once.
	Concurrency int `yaml:"concurrency,omitempty" validate:"omitempty,min=1,max=64"`

	// RunTimeout is the deadline for one whole command in seconds.
	RunTimeout int `yaml:"run_timeout,omitempty" validate:"omitempty,min=1,max=86400"`
}

// TestAdjustments groups per-category settings.
type TestAdjustments struct {
	Security           *SecurityConfig           `yaml:"security,omitempty"`
	DestructiveOps     *DestructiveOpsConfig     `yaml:"destructive_ops,omitempty"`
	DirectoryTraversal *DirectoryTraversalConfig `yaml:"directory_traversal,omitempty"`
	Path               *PathConfig               `yaml:"path,omitempty"`
	MultiShell         *MultiShellConfig         `yaml:"multi_shell,omitempty"`
	Performance        *PerformanceConfig        `yaml:"performance,omitempty"`
}

// SecurityConfig adjusts the security category.
type SecurityConfig struct {
	// SkipOptions lists option names (e.g. "--lang") excluded from payload injection.
	SkipOptions []string `yaml:"skip_options,omitempty" validate:"omitempty,dive,startswith=-"`

	// CustomTests are appended verbatim to the security suite.
	CustomTests []CustomTest `yaml:"custom_tests,omitempty" validate:"omitempty,dive"`
}

// CustomTest is a user-supplied case with an exact expected exit code.
type CustomTest struct {
	Name             string `yaml:"name" validate:"required,max=100"`
	Command          string `yaml:"command" validate:"required"`
	ExpectedExitCode int    `yaml:"expected_exit_code" validate:"min=0,max=255"`
	Description      string `yaml:"description,omitempty"`
}

// DestructiveOpsConfig adjusts the destructive-ops category.
type DestructiveOpsConfig struct {
	// EnvVars are exported before every destructive-ops case.
	EnvVars map[string]string `yaml:"env_vars,omitempty" validate:"omitempty,dive,keys,cliprobe_envname,endkeys"`

	// CancelExitCode is the exit code the tool uses when a confirmation is declined.
	CancelExitCode *int `yaml:"cancel_exit_code,omitempty" validate:"omitempty,min=0,max=255"`
}

// DirectoryTraversalConfig adjusts the directory-traversal category.
type DirectoryTraversalConfig struct {
	TestDirectories  []TestDirectory `yaml:"test_directories,omitempty" validate:"omitempty,dive"`
	SetupCommands    []string        `yaml:"setup_commands,omitempty"`
	TeardownCommands []string        `yaml:"teardown_commands,omitempty"`
}

// TestDirectory is one fixture directory for the directory-traversal category.
type TestDirectory struct {
	Path      string `yaml:"path" validate:"required"`
	Create    bool   `yaml:"create,omitempty"`
	Cleanup   bool   `yaml:"cleanup,omitempty"`
	FileCount int    `yaml:"file_count,omitempty" validate:"omitempty,min=0,max=100000"`
	Depth     int    `yaml:"depth,omitempty" validate:"omitempty,min=0,max=500"`
}

// PathConfig adjusts the path category.
type PathConfig struct {
	SkipUnicode bool `yaml:"skip_unicode,omitempty"`
}

// MultiShellConfig adjusts the multi-shell category.
type MultiShellConfig struct {
	Shells []string `yaml:"shells,omitempty" validate:"omitempty,dive,oneof=bash zsh sh fish dash ksh"`
}

// PerformanceConfig adjusts the performance category.
type PerformanceConfig struct {
	MaxStartupMS int `yaml:"max_startup_ms,omitempty" validate:"omitempty,min=1"`
	MaxMemoryMB  int `yaml:"max_memory_mb,omitempty" validate:"omitempty,min=1"`
}
