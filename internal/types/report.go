package types

import "time"

// TestSuite is the result of running one category's script artifact.
type TestSuite struct {
	Category Category `json:"category"`

	// File is the script artifact that was executed.
	File string `json:"file"`

	// Results are ordered as the cases were written to the artifact.
	Results []TestResult `json:"results"`

	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`

	// TimedOut is set when the suite exceeded its deadline.
	TimedOut bool `json:"timed_out"`

	// Error describes a suite-level failure (runner crash, timeout).
	Error string `json:"error,omitempty"`
}

// Count returns the number of results with the given status.
func (s *TestSuite) Count(status ResultStatus) int {
	n := 0
	for _, r := range s.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// TestReport is the top-level structure handed to report writers.
// It is serialized directly to JSON for the --format=json output.
type TestReport struct {
	// Version is the cliprobe version that produced this report.
	Version string `json:"version"`

	// BinaryName is the binary the suites were generated for.
	BinaryName string `json:"binary_name"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// Suites are ordered canonically by category.
	Suites []TestSuite `json:"suites"`

	// Summary provides aggregate statistics.
	Summary ReportSummary `json:"summary"`

	// Environment describes the host the suites ran on.
	Environment Environment `json:"environment"`
}

// ReportSummary provides aggregate statistics for a run.
type ReportSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`

	// CriticalFailures counts failed cases whose category policy is critical.
	CriticalFailures int `json:"critical_failures"`

	// InformationalFailures counts failed cases whose category policy is informational.
	InformationalFailures int `json:"informational_failures"`

	// TimedOutSuites counts suites that hit their deadline.
	TimedOutSuites int `json:"timed_out_suites"`

	DurationMS int64 `json:"duration_ms"`
}

// Summarize recomputes aggregate counts from the given suites.
func Summarize(suites []TestSuite, duration time.Duration) ReportSummary {
	sum := ReportSummary{DurationMS: duration.Milliseconds()}
	for _, s := range suites {
		if s.TimedOut {
			sum.TimedOutSuites++
		}
		for _, r := range s.Results {
			sum.Total++
			switch r.Status {
			case StatusPassed:
				sum.Passed++
			case StatusFailed:
				sum.Failed++
				if r.Informational {
					sum.InformationalFailures++
				} else {
					sum.CriticalFailures++
				}
			case StatusSkipped:
				sum.Skipped++
			}
		}
	}
	return sum
}
