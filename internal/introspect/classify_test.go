package introspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ancients-collective/cliprobe/internal/types"
)

const cobraHelp = `mytool manages things

Usage:
  mytool [command]

Available Commands:
  serve       Start the server
  delete      Delete a resource

Flags:
  -c, --config string   config file (required)
  -v, --verbose         verbose output
  -h, --help            help for mytool
`

const clapHelp = `Usage: grepish [OPTIONS] <PATTERN> [PATH]...

Arguments:
  <PATTERN>  Pattern to search
  [PATH]...  Files to search

Options:
  -n, --max-count <NUM>      Stop after NUM matches
      --color <WHEN>         When to use color [possible values: auto, always, never]
  -o, --output <FILE>        Write to FILE
  -t, --type <a|b|c>         Type filter
  -j, --threads=N            Worker count
  -h, --help                 Print help
`

const manHelp = `NAME
       lsish - list directory contents

OPTIONS
       -a, --all
              do not ignore entries starting with .

       --block-size=SIZE
              scale sizes by SIZE
`

func TestParseHelp_CobraStyle(t *testing.T) {
	doc := ParseHelp(cobraHelp)

	assert.Equal(t, []string{"mytool [command]"}, doc.Usage)
	assert.Equal(t, []SubcommandEntry{
		{Name: "serve", Description: "Start the server"},
		{Name: "delete", Description: "Delete a resource"},
	}, doc.Subcommands)

	require.Len(t, doc.Options, 3)
	assert.Equal(t, types.Option{
		Short:       "-c",
		Long:        "--config",
		Description: "config file (required)",
		ValueKind:   types.KindString,
		Required:    true,
	}, doc.Options[0])
	assert.Equal(t, "--verbose", doc.Options[1].Long)
	assert.Equal(t, types.KindFlag, doc.Options[1].ValueKind)
	assert.Equal(t, "-h", doc.Options[2].Short)
	assert.Empty(t, doc.RequiredArgs())
}

const goToolHelp = "Go is a tool for managing Go source code.\n" +
	"\n" +
	"Usage:\n" +
	"\n" +
	"\tgo <command> [arguments]\n" +
	"\n" +
	"The commands are:\n" +
	"\n" +
	"\tbug         start a bug report\n" +
	"\tbuild       compile packages and dependencies\n" +
	"\n" +
	"Use \"go help <command>\" for more information about a command.\n"

func TestParseHelp_TabIndentedCommands(t *testing.T) {
	doc := ParseHelp(goToolHelp)

	assert.Equal(t, []string{"go <command> [arguments]"}, doc.Usage)
	assert.Equal(t, []SubcommandEntry{
		{Name: "bug", Description: "start a bug report"},
		{Name: "build", Description: "compile packages and dependencies"},
	}, doc.Subcommands)
}

func TestParseHelp_ClapStyle(t *testing.T) {
	doc := ParseHelp(clapHelp)

	assert.Equal(t, []string{"pattern"}, doc.RequiredArgs())
	assert.Empty(t, doc.Subcommands)

	byName := make(map[string]types.Option)
	for _, o := range doc.Options {
		byName[o.Name()] = o
	}
	require.Len(t, byName, 6)

	assert.Equal(t, types.KindNumeric, byName["--max-count"].ValueKind)
	assert.Equal(t, "-n", byName["--max-count"].Short)

	color := byName["--color"]
	assert.Empty(t, color.Short)
	assert.Equal(t, types.KindEnum, color.ValueKind)
	assert.Equal(t, []string{"auto", "always", "never"}, color.EnumValues)

	assert.Equal(t, types.KindPath, byName["--output"].ValueKind)

	typ := byName["--type"]
	assert.Equal(t, types.KindEnum, typ.ValueKind)
	assert.Equal(t, []string{"a", "b", "c"}, typ.EnumValues)

	assert.Equal(t, types.KindNumeric, byName["--threads"].ValueKind)
	assert.Equal(t, types.KindFlag, byName["--help"].ValueKind)
}

func TestParseHelp_ManStyleContinuations(t *testing.T) {
	doc := ParseHelp(manHelp)

	require.Len(t, doc.Options, 2)
	assert.Equal(t, "-a", doc.Options[0].Short)
	assert.Equal(t, "--all", doc.Options[0].Long)
	assert.Equal(t, "do not ignore entries starting with .", doc.Options[0].Description)
	assert.Equal(t, "--block-size", doc.Options[1].Long)
	assert.Equal(t, types.KindNumeric, doc.Options[1].ValueKind)
}

func TestParseHelp_NegatableFlag(t *testing.T) {
	doc := ParseHelp("Options:\n  --[no-]color   Toggle color\n")

	require.Len(t, doc.Options, 1)
	assert.Equal(t, "--color", doc.Options[0].Long)
	assert.Equal(t, types.KindFlag, doc.Options[0].ValueKind)
}

func TestParseHelp_DeduplicatesOptions(t *testing.T) {
	text := "Options:\n  -v, --verbose   Be loud\n\nAliases:\n  -v, --verbose   Be loud again\n"

	doc := ParseHelp(text)

	require.Len(t, doc.Options, 1)
	assert.Equal(t, "Be loud", doc.Options[0].Description)
}

func TestParseHelp_SubcommandsOnlyInsideCommandsSection(t *testing.T) {
	text := `Options:
  serve   not a command here

Commands:
  build   Build it
  test, t  Run tests

Run 'tool help' for more.
  stray   not a command either
`
	doc := ParseHelp(text)

	assert.Equal(t, []SubcommandEntry{
		{Name: "build", Description: "Build it"},
		{Name: "test", Description: "Run tests"},
	}, doc.Subcommands)
}

func TestParseHelp_EmptyAndGarbage(t *testing.T) {
	for _, text := range []string{"", "\n\n", "no structure at all", "\x00\x01\x02"} {
		doc := ParseHelp(text)
		assert.Empty(t, doc.Options, "text %q", text)
		assert.Empty(t, doc.Subcommands, "text %q", text)
	}
}

func TestParseHelpWith_CustomPipeline(t *testing.T) {
	// Without the option classifier, flag lines produce nothing.
	doc := parseHelpWith(cobraHelp, []classifier{classifySectionHeader, classifyUsage, classifySubcommand})

	assert.Empty(t, doc.Options)
	assert.Len(t, doc.Subcommands, 2)
}

func TestInferValueKind(t *testing.T) {
	tests := []struct {
		name      string
		flags     string
		desc      string
		wantKind  types.ValueKind
		wantEnums []string
	}{
		{"bare flag", "-v, --verbose", "", types.KindFlag, nil},
		{"angle number", "--count <N>", "", types.KindNumeric, nil},
		{"num suffix", "--retry-num <RETRYNUM>", "", types.KindNumeric, nil},
		{"pflag int", "-p, --port int", "", types.KindNumeric, nil},
		{"pflag string", "--name string", "", types.KindString, nil},
		{"angle path", "--config <PATH>", "", types.KindPath, nil},
		{"lowercase file", "--input <file>", "", types.KindPath, nil},
		{"path suffix", "--out <OUT_DIR>", "", types.KindPath, nil},
		{"trailing upper", "-o FILE", "", types.KindPath, nil},
		{"equals string", "--color[=WHEN]", "", types.KindString, nil},
		{"angle enum", "--mode <fast|slow>", "", types.KindEnum, []string{"fast", "slow"}},
		{"brace enum", "--format {json,yaml}", "", types.KindEnum, []string{"json", "yaml"}},
		{"possible values", "--level <LEVEL>", "[possible values: low, high]", types.KindEnum, []string{"low", "high"}},
		{"generic string", "--name <NAME>", "", types.KindString, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, enums := inferValueKind(placeholderOf(tt.flags), tt.desc)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantEnums, enums)
		})
	}
}

func TestRequiredArgs(t *testing.T) {
	tests := []struct {
		usage string
		want  []string
	}{
		{"tool <FILE>", []string{"file"}},
		{"tool [OPTIONS] <SRC> <DEST>", []string{"src", "dest"}},
		{"tool <command> [args]", nil},
		{"tool [-o <out>] <in>", []string{"in"}},
		{"tool [[nested] <opt>] <name> <name>", []string{"name"}},
		{"tool", nil},
	}
	for _, tt := range tests {
		t.Run(tt.usage, func(t *testing.T) {
			assert.Equal(t, tt.want, requiredArgs(tt.usage))
		})
	}
}
