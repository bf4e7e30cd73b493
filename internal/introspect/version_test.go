package introspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"tool 1.2.3", "1.2.3"},
		{"tool version 2.10", "2.10"},
		{"ripgrep 14.1.0-beta.2 (rev abc)", "14.1.0-beta.2"},
		{"Python 3.12.1\n", "3.12.1"},
		{"no version here", ""},
		{"build 42", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractVersion(tt.text), tt.text)
	}
}
