// Package config reads and validates the per-tool configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ancients-collective/cliprobe/internal/clierr"
	"github.com/ancients-collective/cliprobe/internal/types"
)

// DefaultFileName is the config file auto-detected in the working directory.
const DefaultFileName = ".cli-test-config.yml"

// SchemaVersion is the only config schema version understood.
const SchemaVersion = "1.0"

// maxConfigBytes bounds the size of a config file.
const maxConfigBytes = 1 << 20

var envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Loader reads tool configuration files and validates them against the
// schema and the setup-command safety rules.
type Loader struct {
	validate  *validator.Validate
	lookupEnv func(string) (string, bool)
}

// New creates a Loader that reads overrides from the process environment.
func New() *Loader {
	return NewWithEnv(os.LookupEnv)
}

// NewWithEnv creates a Loader with a custom environment lookup.
func NewWithEnv(lookup func(string) (string, bool)) *Loader {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("cliprobe_category", func(fl validator.FieldLevel) bool {
		_, ok := types.ParseCategory(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("cliprobe_envname", func(fl validator.FieldLevel) bool {
		return envNamePattern.MatchString(fl.Field().String())
	})

	return &Loader{validate: v, lookupEnv: lookup}
}

// Default returns the configuration used when no file is present.
func Default() *types.ToolConfig {
	return &types.ToolConfig{Version: SchemaVersion}
}

// Detect returns the path of the config file in dir, if one exists.
func Detect(dir string) (string, bool) {
	path := filepath.Join(dir, DefaultFileName)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

// Resolve loads the explicit path when given, else the auto-detected file in
// dir, else the defaults. Environment overrides apply in every case. The
// returned path is empty when no file was read.
func (l *Loader) Resolve(explicit, dir string) (*types.ToolConfig, string, error) {
	path := explicit
	if path == "" {
		if found, ok := Detect(dir); ok {
			path = found
		}
	}
	if path == "" {
		cfg := Default()
		if err := l.finish(cfg); err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	}
	cfg, err := l.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Load reads a YAML config file and returns a validated ToolConfig.
func (l *Loader) Load(path string) (*types.ToolConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, clierr.New(clierr.InvalidConfiguration, path, "config file does not exist")
		}
		return nil, clierr.Wrap(clierr.InvalidConfiguration, path, "failed to read config", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxConfigBytes+1))
	if err != nil {
		return nil, clierr.Wrap(clierr.InvalidConfiguration, path, "failed to read config", err)
	}
	if len(data) > maxConfigBytes {
		return nil, clierr.New(clierr.InvalidConfiguration, path, fmt.Sprintf("config exceeds %d bytes", maxConfigBytes))
	}

	cfg, err := l.Parse(data)
	if err != nil {
		return nil, clierr.Wrap(clierr.InvalidConfiguration, path, "invalid config", err)
	}
	return cfg, nil
}

// Parse decodes and validates config bytes. Unknown keys are rejected.
func (l *Loader) Parse(data []byte) (*types.ToolConfig, error) {
	var cfg types.ToolConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config is empty")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := l.finish(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) finish(cfg *types.ToolConfig) error {
	if err := l.applyEnvOverrides(cfg); err != nil {
		return err
	}
	return l.validateConfig(cfg)
}

func (l *Loader) applyEnvOverrides(cfg *types.ToolConfig) error {
	overrides := []struct {
		name string
		dst  *int
	}{
		{"CLIPROBE_TIMEOUT", &cfg.Global.Timeout},
		{"CLIPROBE_MAX_DEPTH", &cfg.Global.MaxDepth},
		{"CLIPROBE_CONCURRENCY", &cfg.Global.Concurrency},
		{"CLIPROBE_RUN_TIMEOUT", &cfg.Global.RunTimeout},
	}
	for _, o := range overrides {
		v, ok := l.lookupEnv(o.name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return clierr.Wrap(clierr.InvalidConfiguration, o.name, "parse environment override", err)
		}
		*o.dst = n
	}
	return nil
}

// validateConfig runs schema validation (struct tags) and the setup-command rules.
func (l *Loader) validateConfig(cfg *types.ToolConfig) error {
	if err := l.validate.Struct(cfg); err != nil {
		return clierr.Wrap(clierr.InvalidConfiguration, "", "validation failed", formatValidationErrors(err))
	}

	if dt := cfg.TestAdjustments.DirectoryTraversal; dt != nil {
		for i, cmd := range dt.SetupCommands {
			if err := ValidateSetupCommand(cmd); err != nil {
				return clierr.Wrap(clierr.InvalidConfiguration, fmt.Sprintf("setup_commands[%d]", i), "unsafe command", err)
			}
		}
		for i, cmd := range dt.TeardownCommands {
			if err := ValidateSetupCommand(cmd); err != nil {
				return clierr.Wrap(clierr.InvalidConfiguration, fmt.Sprintf("teardown_commands[%d]", i), "unsafe command", err)
			}
		}
	}
	return nil
}

// formatValidationErrors converts validator errors into user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		messages = append(messages, formatFieldError(fe))
	}
	return errors.New(strings.Join(messages, "; "))
}

// formatFieldError converts a single field validation error to a human-readable message.
func formatFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "eq":
		return fmt.Sprintf("%s must be %q", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, fe.Param())
	case "cliprobe_category":
		return fmt.Sprintf("%s: unknown category %q", field, fe.Value())
	case "cliprobe_envname":
		return fmt.Sprintf("%s: %q is not a valid environment variable name", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
