package output

import (
	"encoding/json"
	"io"
	"time"

	"github.com/ancients-collective/cliprobe/internal/types"
)

// JSONLFormatter writes a report as newline-delimited JSON (one object per line).
// The first line is a header with environment and summary information.
// Subsequent lines are individual case results.
type JSONLFormatter struct{}

// Write renders the report as JSONL: header line + one line per result.
func (f *JSONLFormatter) Write(w io.Writer, report *types.TestReport) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	header := struct {
		Type        string              `json:"type"`
		Version     string              `json:"version"`
		BinaryName  string              `json:"binary_name"`
		StartedAt   string              `json:"started_at"`
		Environment types.Environment   `json:"environment"`
		Summary     types.ReportSummary `json:"summary"`
	}{
		Type:        "header",
		Version:     report.Version,
		BinaryName:  report.BinaryName,
		StartedAt:   report.StartedAt.Format(time.RFC3339),
		Environment: report.Environment,
		Summary:     report.Summary,
	}
	if err := enc.Encode(header); err != nil {
		return err
	}

	for _, s := range report.Suites {
		for _, r := range s.Results {
			line := struct {
				Type     string           `json:"type"`
				Category types.Category   `json:"category"`
				TimedOut bool             `json:"suite_timed_out,omitempty"`
				Result   types.TestResult `json:"result"`
			}{
				Type:     "result",
				Category: s.Category,
				TimedOut: s.TimedOut,
				Result:   r,
			}
			if err := enc.Encode(line); err != nil {
				return err
			}
		}
	}
	return nil
}
