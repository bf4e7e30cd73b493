// Package output provides formatters that render test reports in different formats.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ancients-collective/cliprobe/internal/types"
)

// Formatter writes a test report to the given writer.
type Formatter interface {
	Write(w io.Writer, report *types.TestReport) error
}

// Formats lists the names accepted by ForName.
var Formats = []string{"json", "jsonl", "text"}

// ForName returns the formatter registered under name. text uses the
// supplied options; the JSON formatters ignore them.
func ForName(name string, text TextFormatter) (Formatter, error) {
	switch name {
	case "json":
		return &JSONFormatter{}, nil
	case "jsonl":
		return &JSONLFormatter{}, nil
	case "text", "":
		return &text, nil
	default:
		return nil, fmt.Errorf("unknown format %q (valid: json, jsonl, text)", name)
	}
}

// WriteModel renders an interface model as pretty-printed JSON.
func WriteModel(w io.Writer, model *types.InterfaceModel) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(model)
}

// ReadModel decodes an interface model written by WriteModel.
func ReadModel(r io.Reader) (*types.InterfaceModel, error) {
	var m types.InterfaceModel
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode interface model: %w", err)
	}
	if m.BinaryName == "" {
		return nil, fmt.Errorf("decode interface model: missing binary_name")
	}
	return &m, nil
}
