package types

import "time"

// ResultStatus represents the outcome of one executed test case.
type ResultStatus string

const (
	// StatusPassed means the runner reported "ok".
	StatusPassed ResultStatus = "passed"
	// StatusFailed means the runner reported "not ok", or the case never reported before a timeout.
	StatusFailed ResultStatus = "failed"
	// StatusSkipped means the runner reported a skip directive.
	StatusSkipped ResultStatus = "skipped"
)

// TestResult holds the outcome of a single test case.
type TestResult struct {
	// ID is the generated case identifier, e.g. "basic-001".
	ID string `json:"id"`

	// Name is the full test title as reported by the runner.
	Name string `json:"name"`

	// Number is the runner's sequence number, 0 when the case never reported.
	Number int `json:"number"`

	Status ResultStatus `json:"status"`

	// Diagnostic carries the failure description, skip reason or timeout note.
	Diagnostic string `json:"diagnostic,omitempty"`

	// Informational is set when the case's category policy is informational.
	Informational bool `json:"informational,omitempty"`

	// Duration is how long the case took (not serialized to JSON).
	Duration time.Duration `json:"-"`

	// DurationMS is the duration in milliseconds for JSON serialization.
	DurationMS int64 `json:"duration_ms"`
}
