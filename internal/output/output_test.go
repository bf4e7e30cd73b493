package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ancients-collective/cliprobe/internal/types"
)

func TestForName(t *testing.T) {
	tests := []struct {
		name    string
		want    Formatter
		wantErr bool
	}{
		{"json", &JSONFormatter{}, false},
		{"jsonl", &JSONLFormatter{}, false},
		{"text", &TextFormatter{Show: ShowAll}, false},
		{"", &TextFormatter{Show: ShowAll}, false},
		{"yaml", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ForName(tt.name, TextFormatter{Show: ShowAll})
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown format")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f)
		})
	}
}

func TestForName_CoversFormats(t *testing.T) {
	for _, name := range Formats {
		_, err := ForName(name, TextFormatter{})
		assert.NoError(t, err, name)
	}
}

func testInterfaceModel() *types.InterfaceModel {
	version := "1.2.3"
	return &types.InterfaceModel{
		BinaryName: "mytool",
		BinaryPath: "/usr/local/bin/mytool",
		Version:    &version,
		GlobalOptions: []types.Option{
			{Short: "-h", Long: "--help", Description: "show help", ValueKind: types.KindFlag},
			{Long: "--format", ValueKind: types.KindEnum, EnumValues: []string{"json", "text"}},
		},
		Subcommands: []types.Subcommand{
			{Name: "serve", Options: []types.Option{}, Subcommands: []types.Subcommand{}, RequiredArgs: []string{}},
		},
		Behavior: types.BehaviorShowsHelp,
		Metadata: types.AnalysisMetadata{
			TotalOptions:     2,
			TotalSubcommands: 1,
			DepthReached:     1,
			AnalyzedAt:       time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
			Fingerprint:      "sha256:abc",
		},
	}
}

func TestWriteModel_ReadModel(t *testing.T) {
	model := testInterfaceModel()
	var buf bytes.Buffer
	require.NoError(t, WriteModel(&buf, model))
	assert.Contains(t, buf.String(), `"binary_name": "mytool"`)

	got, err := ReadModel(&buf)
	require.NoError(t, err)
	assert.Equal(t, model.BinaryName, got.BinaryName)
	require.NotNil(t, got.Version)
	assert.Equal(t, "1.2.3", *got.Version)
	assert.Equal(t, model.GlobalOptions, got.GlobalOptions)
	assert.Equal(t, model.Subcommands, got.Subcommands)
	assert.Equal(t, model.Behavior, got.Behavior)
	assert.True(t, model.Metadata.AnalyzedAt.Equal(got.Metadata.AnalyzedAt))
}

func TestReadModel_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"not json", "nope", "decode interface model"},
		{"unknown field", `{"binary_name":"x","extra":1}`, "unknown field"},
		{"missing binary", `{"binary_path":"/bin/x"}`, "missing binary_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadModel(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
