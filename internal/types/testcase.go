package types

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Category is one of the fixed test groupings.
type Category string

const (
	CategoryBasic              Category = "basic"
	CategoryHelp               Category = "help"
	CategorySecurity           Category = "security"
	CategoryPath               Category = "path"
	CategoryMultiShell         Category = "multi-shell"
	CategoryInputValidation    Category = "input-validation"
	CategoryDestructiveOps     Category = "destructive-ops"
	CategoryPerformance        Category = "performance"
	CategoryDirectoryTraversal Category = "directory-traversal"
)

// CanonicalCategories lists every category in the order used for generation
// output, suite execution and reports.
var CanonicalCategories = []Category{
	CategoryBasic,
	CategoryHelp,
	CategorySecurity,
	CategoryPath,
	CategoryMultiShell,
	CategoryInputValidation,
	CategoryDestructiveOps,
	CategoryPerformance,
	CategoryDirectoryTraversal,
}

// Index returns the category's position in CanonicalCategories, or -1.
func (c Category) Index() int {
	return slices.Index(CanonicalCategories, c)
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c.Index() >= 0
}

// Intensive reports whether the category creates large filesystem fixtures
// and therefore needs explicit opt-in.
func (c Category) Intensive() bool {
	return c == CategoryDirectoryTraversal
}

// ParseCategory normalizes a user-supplied category name. Underscore
// spellings are accepted as aliases.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	return c, c.Valid()
}

// Tag values attached to generated cases.
const (
	TagCritical      = "critical"
	TagInformational = "informational"
	TagInteractive   = "interactive"
)

// ExpectKind describes how an exit code is judged.
type ExpectKind string

const (
	ExpectExact   ExpectKind = "exact"
	ExpectNonZero ExpectKind = "nonzero"
	ExpectOneOf   ExpectKind = "one_of"
)

// Expectation is the expected-outcome policy of a test case.
type Expectation struct {
	Kind  ExpectKind `json:"kind"`
	Codes []int      `json:"codes,omitempty"`
}

// ExitCode expects exactly code.
func ExitCode(code int) Expectation {
	return Expectation{Kind: ExpectExact, Codes: []int{code}}
}

// NonZero expects any failing exit code.
func NonZero() Expectation {
	return Expectation{Kind: ExpectNonZero}
}

// OneOf expects an exit code in the given set.
func OneOf(codes ...int) Expectation {
	return Expectation{Kind: ExpectOneOf, Codes: codes}
}

// Matches reports whether code satisfies the expectation.
func (e Expectation) Matches(code int) bool {
	switch e.Kind {
	case ExpectExact:
		return len(e.Codes) == 1 && e.Codes[0] == code
	case ExpectNonZero:
		return code != 0
	case ExpectOneOf:
		return slices.Contains(e.Codes, code)
	default:
		return false
	}
}

func (e Expectation) String() string {
	switch e.Kind {
	case ExpectExact:
		if len(e.Codes) == 1 {
			return fmt.Sprintf("exit %d", e.Codes[0])
		}
	case ExpectNonZero:
		return "exit != 0"
	case ExpectOneOf:
		parts := make([]string, len(e.Codes))
		for i, c := range e.Codes {
			parts[i] = strconv.Itoa(c)
		}
		return "exit in {" + strings.Join(parts, ",") + "}"
	}
	return "invalid expectation"
}

// TestCase is one generated test. Cases are written to a script artifact
// and never modified afterwards.
type TestCase struct {
	// ID is unique across a generation run, e.g. "security-004".
	ID string `json:"id"`

	Category    Category `json:"category"`
	Description string   `json:"description"`

	// Command is the fully rendered shell command passed to `run`.
	Command string `json:"command"`

	Expect Expectation `json:"expect"`

	// OutputPattern is an optional bash regex the combined output must match.
	OutputPattern string `json:"output_pattern,omitempty"`

	// Requires lists commands that must exist on PATH; the case is skipped otherwise.
	Requires []string `json:"requires,omitempty"`

	// Env is exported inside the test body before the command runs.
	Env map[string]string `json:"env,omitempty"`

	// Prepare holds shell lines run before the command, e.g. fixture creation.
	Prepare []string `json:"prepare,omitempty"`

	// Verify holds shell lines run after the exit-code assertion.
	Verify []string `json:"verify,omitempty"`

	Tags []string `json:"tags,omitempty"`
}

// HasTag reports whether the case carries tag.
func (tc TestCase) HasTag(tag string) bool {
	return slices.Contains(tc.Tags, tag)
}

// Title is the name written into the `@test` header and echoed back by the runner.
func (tc TestCase) Title() string {
	return tc.ID + ": " + tc.Description
}
