package output

import (
	"encoding/json"
	"io"

	"github.com/ancients-collective/cliprobe/internal/types"
)

// JSONFormatter writes a test report as a single JSON object.
type JSONFormatter struct{}

// Write renders the full report as pretty-printed JSON.
func (f *JSONFormatter) Write(w io.Writer, report *types.TestReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(report)
}
