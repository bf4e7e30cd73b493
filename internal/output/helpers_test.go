package output

import (
	"time"

	"github.com/ancients-collective/cliprobe/internal/types"
)

// testTimestamp is a fixed time for deterministic test output.
var testTimestamp = time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

func testEnvironment() types.Environment {
	return types.Environment{
		OS:          "linux",
		OSVersion:   "6.1.0",
		Arch:        "amd64",
		Platform:    "ubuntu 22.04",
		Shell:       "/bin/bash",
		Hostname:    "test-host",
		EnvType:     types.EnvContainer,
		EnvRuntime:  "docker",
		BatsVersion: "Bats 1.11.0",
		Timestamp:   testTimestamp,
	}
}

// newTestReport builds a representative report: one suite with a critical
// failure and one timed-out informational suite.
func newTestReport() *types.TestReport {
	suites := []types.TestSuite{
		{
			Category:   types.CategoryBasic,
			File:       "basic.bats",
			DurationMS: 42,
			Results: []types.TestResult{
				{
					ID:         "basic-001",
					Name:       "basic-001: --help exits 0 and prints usage",
					Number:     1,
					Status:     types.StatusPassed,
					DurationMS: 5,
				},
				{
					ID:         "basic-002",
					Name:       "basic-002: --version exits 0",
					Number:     2,
					Status:     types.StatusFailed,
					Diagnostic: "basic-002: --version exits 0\n(in test file basic.bats, line 22)\nexpected exit 0, got 2",
					DurationMS: 4,
				},
				{
					ID:         "basic-003",
					Name:       "basic-003: -h exits 0",
					Number:     3,
					Status:     types.StatusSkipped,
					Diagnostic: "bash not available",
				},
			},
		},
		{
			Category:   types.CategorySecurity,
			File:       "security.bats",
			DurationMS: 1500,
			TimedOut:   true,
			Error:      "EXECUTION_TIMEOUT (security.bats): timed out after 1s",
			Results: []types.TestResult{
				{
					ID:            "security-001",
					Name:          "security-001: --path rejects command injection payload",
					Number:        1,
					Status:        types.StatusFailed,
					Diagnostic:    "security-001: --path rejects command injection payload",
					Informational: true,
					DurationMS:    12,
				},
				{
					ID:            "security-002",
					Name:          "security-002: --path rejects null byte payload",
					Status:        types.StatusFailed,
					Diagnostic:    "timed out after 1s",
					Informational: true,
				},
			},
		},
	}
	return &types.TestReport{
		Version:     "1.0.0",
		BinaryName:  "mytool",
		StartedAt:   testTimestamp,
		Suites:      suites,
		Summary:     types.Summarize(suites, 1542*time.Millisecond),
		Environment: testEnvironment(),
	}
}

// newCleanReport builds a report where every case passed.
func newCleanReport() *types.TestReport {
	suites := []types.TestSuite{{
		Category:   types.CategoryHelp,
		File:       "help.bats",
		DurationMS: 10,
		Results: []types.TestResult{
			{ID: "help-001", Name: "help-001: serve --help exits 0", Number: 1, Status: types.StatusPassed, DurationMS: 3},
			{ID: "help-002", Name: "help-002: delete --help exits 0", Number: 2, Status: types.StatusPassed, DurationMS: 2},
		},
	}}
	return &types.TestReport{
		Version:     "1.0.0",
		BinaryName:  "mytool",
		StartedAt:   testTimestamp,
		Suites:      suites,
		Summary:     types.Summarize(suites, 10*time.Millisecond),
		Environment: testEnvironment(),
	}
}

// newEmptyReport builds a report with no suites.
func newEmptyReport() *types.TestReport {
	return &types.TestReport{
		Version:     "1.0.0",
		StartedAt:   testTimestamp,
		Environment: testEnvironment(),
	}
}
