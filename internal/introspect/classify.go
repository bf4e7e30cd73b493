package introspect

import (
	"regexp"
	"strings"

	"github.com/ancients-collective/cliprobe/internal/types"
)

// section is the help-text region a line belongs to.
type section int

const (
	sectionNone section = iota
	sectionUsage
	sectionOptions
	sectionCommands
	sectionOther
)

// lineContext is the read-only state a classifier sees for one line.
type lineContext struct {
	section section
}

// fragmentKind identifies what a classifier extracted.
type fragmentKind int

const (
	fragSection fragmentKind = iota + 1
	fragUsage
	fragOption
	fragSubcommand
)

// fragment is the structured result of classifying one line.
type fragment struct {
	kind       fragmentKind
	section    section
	usage      string
	option     types.Option
	subcommand SubcommandEntry
}

// classifier inspects one line and returns a fragment when it recognizes it.
// Classifiers are pure: they never see or mutate other classifiers' state.
type classifier func(line string, lc lineContext) (fragment, bool)

// defaultClassifiers run in order; the first match wins for a line.
var defaultClassifiers = []classifier{
	classifySectionHeader,
	classifyUsage,
	classifyOption,
	classifySubcommand,
	classifyParagraph,
}

// SubcommandEntry is a subcommand name listed in a help text.
type SubcommandEntry struct {
	Name        string
	Description string
}

// HelpDoc is the structured content extracted from one help text.
type HelpDoc struct {
	// Usage holds usage lines in order of appearance, without the "Usage:" prefix.
	Usage       []string
	Options     []types.Option
	Subcommands []SubcommandEntry
}

// RequiredArgs returns the mandatory positional argument names from the
// first usage line.
func (d HelpDoc) RequiredArgs() []string {
	if len(d.Usage) == 0 {
		return nil
	}
	return requiredArgs(d.Usage[0])
}

var (
	// headerPattern matches unindented section headers such as "Options:",
	// "Available Commands:" or an all-caps "COMMANDS".
	headerPattern = regexp.MustCompile(`^([A-Za-z][A-Za-z ]{0,40}):\s*$|^([A-Z][A-Z ]{2,40})$`)

	usagePattern = regexp.MustCompile(`(?i)^\s*usage:\s*(.*)$`)

	// optionLinePattern splits "  -x, --long <V>   description" into flags and description.
	optionLinePattern = regexp.MustCompile(`^\s{0,12}(-[^\t]*?)(?:\s{2,}|\t)(\S.*)$`)

	// optionOnlyPattern matches a flag line with no inline description.
	optionOnlyPattern = regexp.MustCompile(`^\s{0,12}(-[A-Za-z0-9?\-\[][A-Za-z0-9,\s\-\[\]<>=|{}_.:]*?)\s*$`)

	shortFlagPattern = regexp.MustCompile(`(?:^|[,\s])(-[A-Za-z0-9?])(?:[,\s=<\[]|$)`)
	longFlagPattern  = regexp.MustCompile(`--(\[no-\])?([A-Za-z0-9][A-Za-z0-9\-_.]*)`)

	// subcommandLinePattern matches "  name[, alias] [ARGS]   description",
	// indented by spaces or a single tab.
	subcommandLinePattern = regexp.MustCompile(`^(?:\t|\s{2,8})([a-z][a-z0-9_-]*)((?:,\s*[a-z][a-z0-9_-]*)*)(?:\s+[\[<][^\]>]+[\]>])*(?:\s{2,}(\S.*))?\s*$`)
)

// classifySectionHeader recognizes section headers and reports the section kind.
func classifySectionHeader(line string, _ lineContext) (fragment, bool) {
	if line == "" || line[0] == ' ' || line[0] == '\t' {
		return fragment{}, false
	}
	m := headerPattern.FindStringSubmatch(strings.TrimRight(line, " \t"))
	if m == nil {
		return fragment{}, false
	}
	name := strings.ToLower(m[1] + m[2])
	return fragment{kind: fragSection, section: sectionFor(name)}, true
}

func sectionFor(name string) section {
	switch {
	case strings.HasPrefix(name, "usage"):
		return sectionUsage
	case strings.Contains(name, "command"):
		return sectionCommands
	case strings.Contains(name, "option"), strings.Contains(name, "flag"):
		return sectionOptions
	default:
		return sectionOther
	}
}

// classifyUsage extracts "Usage: ..." lines and indented lines inside a usage section.
func classifyUsage(line string, lc lineContext) (fragment, bool) {
	if m := usagePattern.FindStringSubmatch(line); m != nil {
		return fragment{kind: fragUsage, usage: strings.TrimSpace(m[1])}, true
	}
	if lc.section == sectionUsage {
		if trimmed := strings.TrimSpace(line); trimmed != "" && !strings.HasPrefix(trimmed, "-") {
			return fragment{kind: fragUsage, usage: trimmed}, true
		}
	}
	return fragment{}, false
}

// classifyOption extracts one option from a flag line.
func classifyOption(line string, _ lineContext) (fragment, bool) {
	flagsPart, desc := "", ""
	if m := optionLinePattern.FindStringSubmatch(line); m != nil {
		flagsPart, desc = m[1], strings.TrimSpace(m[2])
	} else if m := optionOnlyPattern.FindStringSubmatch(line); m != nil {
		flagsPart = m[1]
	} else {
		return fragment{}, false
	}

	opt, ok := parseFlags(flagsPart)
	if !ok {
		return fragment{}, false
	}
	opt.Description = desc
	opt.ValueKind, opt.EnumValues = inferValueKind(placeholderOf(flagsPart), desc)
	opt.Required = requiredPattern.MatchString(desc)
	return fragment{kind: fragOption, option: opt}, true
}

// parseFlags pulls the first short and long spelling out of a flags column.
func parseFlags(flagsPart string) (types.Option, bool) {
	var opt types.Option
	if m := longFlagPattern.FindStringSubmatch(flagsPart); m != nil {
		opt.Long = "--" + m[2]
	}
	if m := shortFlagPattern.FindStringSubmatch(flagsPart); m != nil {
		opt.Short = m[1]
	}
	if opt.Short == "" && opt.Long == "" {
		return opt, false
	}
	return opt, true
}

// classifySubcommand extracts subcommand names inside a commands section.
func classifySubcommand(line string, lc lineContext) (fragment, bool) {
	if lc.section != sectionCommands {
		return fragment{}, false
	}
	m := subcommandLinePattern.FindStringSubmatch(line)
	if m == nil {
		return fragment{}, false
	}
	return fragment{kind: fragSubcommand, subcommand: SubcommandEntry{
		Name:        m[1],
		Description: strings.TrimSpace(m[3]),
	}}, true
}

// classifyParagraph ends the current section at unindented prose.
func classifyParagraph(line string, _ lineContext) (fragment, bool) {
	if line == "" || line[0] == ' ' || line[0] == '\t' {
		return fragment{}, false
	}
	return fragment{kind: fragSection, section: sectionNone}, true
}

// ParseHelp runs the classifier pipeline over a help text.
// Unrecognized lines are ignored; extraction never fails.
func ParseHelp(text string) HelpDoc {
	return parseHelpWith(text, defaultClassifiers)
}

func parseHelpWith(text string, classifiers []classifier) HelpDoc {
	var doc HelpDoc
	seenOpts := make(map[string]bool)
	seenSubs := make(map[string]bool)
	lc := lineContext{}

	for _, line := range joinContinuations(splitLines(text)) {
		for _, classify := range classifiers {
			frag, ok := classify(line, lc)
			if !ok {
				continue
			}
			switch frag.kind {
			case fragSection:
				lc.section = frag.section
			case fragUsage:
				if frag.usage != "" {
					doc.Usage = append(doc.Usage, frag.usage)
				}
			case fragOption:
				if key := frag.option.Key(); !seenOpts[key] {
					seenOpts[key] = true
					doc.Options = append(doc.Options, frag.option)
				}
			case fragSubcommand:
				if !seenSubs[frag.subcommand.Name] {
					seenSubs[frag.subcommand.Name] = true
					doc.Subcommands = append(doc.Subcommands, frag.subcommand)
				}
			}
			break
		}
	}
	return doc
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

// joinContinuations merges man-page style entries where a flag stands alone
// and its description follows on a more deeply indented line.
func joinContinuations(lines []string) []string {
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-") && optionLinePattern.FindStringSubmatch(line) == nil && i+1 < len(lines) {
			next := lines[i+1]
			nextTrimmed := strings.TrimSpace(next)
			if nextTrimmed != "" && !strings.HasPrefix(nextTrimmed, "-") && indentOf(next) > indentOf(line) {
				out = append(out, strings.TrimRight(line, " \t")+"    "+nextTrimmed)
				i++
				continue
			}
		}
		out = append(out, line)
	}
	return out
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}
