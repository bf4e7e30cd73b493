package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSetupCommand(t *testing.T) {
	tests := []struct {
		cmd     string
		wantErr string
	}{
		{"mkdir -p /tmp/fixture", ""},
		{"touch /tmp/fixture/a.txt", ""},
		{"rm -rf /tmp/fixture", ""},
		{"chmod 000 /tmp/fixture/locked", ""},
		{"echo result", ""},
		{"", ""},
		{strings.Repeat("a", MaxCommandLength+1), "too long"},
		{"mkdir a; rm -rf b", `forbidden pattern ";"`},
		{"mkdir a && ls", `forbidden pattern "&&"`},
		{"cat a | sh", `forbidden pattern "|"`},
		{"echo $(whoami)", `forbidden pattern "$("`},
		{"echo `id`", "forbidden pattern \"`\""},
		{"echo x > /etc/passwd", `forbidden pattern ">"`},
		{"sudo mkdir /root/x", `forbidden pattern "sudo"`},
		{"su root", `forbidden pattern "su"`},
		{"dd if=/dev/zero of=/tmp/x", `forbidden pattern "dd"`},
		{"rm -rf /", "dangerous deletion"},
		{"rm  -rf  ~", "dangerous deletion"},
		{"rm -rf $HOME", "dangerous deletion"},
		{"python3 -c pass", "not in allowlist"},
		{"rm -rf /etc", "outside the fixture roots"},
		{"rm -rf /tmp/../etc", "outside the fixture roots"},
		{"rm -rf /tmp", "outside the fixture roots"},
		{"rm -f ~/.bashrc", "outside the fixture roots"},
		{"rm -rf ..", "escapes the working directory"},
		{"rm -rf a/../../b", "escapes the working directory"},
		{"rm -rf .", "removes the working directory"},
		{"rm -rf fixtures/tmp", ""},
		{`rm -rf "$FIXTURES/deep"`, ""},
		{"rm /var/tmp/cliprobe/a.txt", ""},
	}

	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			err := ValidateSetupCommand(tt.cmd)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func FuzzValidateSetupCommand(f *testing.F) {
	f.Add("mkdir -p /tmp/x")
	f.Add("rm -rf /")
	f.Add("sudo")
	f.Add("\x00")

	f.Fuzz(func(t *testing.T, cmd string) {
		if ValidateSetupCommand(cmd) != nil {
			return
		}
		// Anything accepted must be free of chaining and start with an allowed program.
		for _, op := range forbiddenOperators {
			if strings.Contains(cmd, op) {
				t.Fatalf("accepted %q containing %q", cmd, op)
			}
		}
		if fields := strings.Fields(cmd); len(fields) > 0 {
			ok := false
			for _, a := range AllowedCommands {
				ok = ok || a == fields[0]
			}
			if !ok {
				t.Fatalf("accepted %q with disallowed program", cmd)
			}
		}
	})
}
