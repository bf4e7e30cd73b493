package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/ancients-collective/cliprobe/internal/types"
)

// ─── Layout constants ────────────────────────────────────────────────
//
// Every result line follows a strict column grid:
//
//     col 0    4   6       14      16                          maxLine
//     │margin│ I │ BADGE   │2sp│ CASE TITLE ...           DURATION │
//
// Detail blocks start at colDetail and use labelWidth-padded labels
// so every value begins at colValue.
//
const (
	colMargin  = 4
	badgeWidth = 8
	colDetail  = 16
	labelWidth = 9
	colValue   = 25
	maxLine    = 110
	ruleWidth  = 64
)

// Show modes for TextFormatter.
const (
	ShowFailures = "failures"
	ShowAll      = "all"
)

// TextFormatter writes a colored, human-readable report.
type TextFormatter struct {
	Show  string // "failures" (default) or "all"
	Width int    // terminal width for text wrapping; 0 = unknown
	Dumb  bool   // TERM=dumb: single-char ASCII icons
}

var (
	cBold  = color.New(color.Bold).SprintFunc()
	cGreen = color.New(color.FgGreen).SprintFunc()
	cRed   = color.New(color.FgRed).SprintFunc()
	cDim   = color.New(color.Faint).SprintFunc()

	cRedBold    = color.New(color.FgRed, color.Bold).SprintFunc()
	cYellowBold = color.New(color.FgYellow, color.Bold).SprintFunc()
	cGreenBold  = color.New(color.FgGreen, color.Bold).SprintFunc()
)

// IsDumbTerm returns true when the terminal doesn't support Unicode.
func IsDumbTerm() bool {
	t := os.Getenv("TERM")
	return t == "dumb" || t == ""
}

func (f *TextFormatter) wrapWidth() int {
	if f.Width > 0 && f.Width < maxLine {
		return f.Width
	}
	return maxLine
}

func (f *TextFormatter) show() string {
	if f.Show == "" {
		return ShowFailures
	}
	return f.Show
}

// ─── Public entry point ──────────────────────────────────────────────

// Write renders the full text report.
func (f *TextFormatter) Write(w io.Writer, report *types.TestReport) error {
	f.writeHeader(w, report)
	f.writeEnvironment(w, report)
	for _, s := range report.Suites {
		f.writeSuite(w, s)
	}
	f.writeSummary(w, report)
	f.writeHints(w, report)
	fmt.Fprintln(w)
	return nil
}

// ─── Header ──────────────────────────────────────────────────────────

func (f *TextFormatter) writeHeader(w io.Writer, r *types.TestReport) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", cBold("cliprobe"), cDim("v"+r.Version))
	if r.BinaryName != "" {
		fmt.Fprintf(w, "  %s %s\n", cDim("Target:"), r.BinaryName)
	}
	fmt.Fprintf(w, "  %s %s\n", cDim("Run started:"), r.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintln(w)
}

// ─── Environment ─────────────────────────────────────────────────────

func (f *TextFormatter) writeEnvironment(w io.Writer, r *types.TestReport) {
	env := r.Environment
	fmt.Fprintf(w, "  %s\n", cBold(f.icon("section")+" Environment"))
	fmt.Fprintf(w, "    OS:      %s %s (%s)\n", env.OS, env.OSVersion, env.Arch)
	if env.Platform != "" {
		fmt.Fprintf(w, "    Distro:  %s\n", env.Platform)
	}
	envStr := env.EnvType
	if env.EnvRuntime != "" {
		envStr += fmt.Sprintf(" (%s)", env.EnvRuntime)
	}
	fmt.Fprintf(w, "    Env:     %s\n", envStr)
	if env.Shell != "" {
		fmt.Fprintf(w, "    Shell:   %s\n", env.Shell)
	}
	if env.BatsVersion != "" {
		fmt.Fprintf(w, "    Runner:  %s\n", env.BatsVersion)
	}
}

// ─── Suites ──────────────────────────────────────────────────────────

func (f *TextFormatter) writeSuite(w io.Writer, s types.TestSuite) {
	counts := fmt.Sprintf("%d/%d passed", s.Count(types.StatusPassed), len(s.Results))
	f.writeCategoryHeader(w, string(s.Category), counts)

	if s.TimedOut || s.Error != "" {
		label, msg := "Error:", s.Error
		if s.TimedOut {
			label = "Timeout:"
		}
		f.writeLabel(w, colPad(colMargin), label, cRedBold, msg)
	}

	shown := 0
	for _, res := range s.Results {
		if f.show() == ShowFailures && res.Status != types.StatusFailed {
			continue
		}
		f.writeResultLine(w, res)
		f.writeDetailBlock(w, res)
		shown++
	}
	if shown == 0 {
		fmt.Fprintf(w, "%s%s %s\n", colPad(colMargin), cGreen(f.icon("pass")), cDim("no failures"))
	}
}

func (f *TextFormatter) writeCategoryHeader(w io.Writer, category, counts string) {
	label := strings.ToUpper(category)
	fill := ruleWidth - 6 - len(label) - len(counts)
	if fill < 1 {
		fill = 1
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s%s %s %s %s\n", colPad(colMargin), cDim("──"), cBold(label), cDim(strings.Repeat("─", fill)), cDim(counts))
	fmt.Fprintln(w)
}

// writeResultLine renders: margin icon badge  title ... duration
func (f *TextFormatter) writeResultLine(w io.Writer, res types.TestResult) {
	durRaw := f.durationRaw(res)
	name := res.Name
	if name == "" {
		name = res.ID
	}
	namePad := f.wrapWidth() - colDetail - 2 - len(durRaw) - len(name)
	if namePad < 2 {
		namePad = 2
	}
	fmt.Fprintf(w, "%s%s %s  %s%s%s\n",
		colPad(colMargin),
		f.statusIcon(res.Status),
		f.badge(res),
		name,
		strings.Repeat(" ", namePad),
		cDim(durRaw),
	)
}

func (f *TextFormatter) writeDetailBlock(w io.Writer, res types.TestResult) {
	if res.Diagnostic == "" {
		return
	}
	p := colPad(colDetail)
	switch res.Status {
	case types.StatusFailed:
		lines := strings.Split(res.Diagnostic, "\n")
		f.writeLabel(w, p, "Result:", cRed, lines[0])
		for _, l := range lines[1:] {
			if strings.TrimSpace(l) == "" {
				continue
			}
			fmt.Fprintf(w, "%s%s\n", colPad(colValue), cDim(strings.TrimRight(l, " ")))
		}
	case types.StatusSkipped:
		f.writeLabel(w, p, "Skipped:", cDim, res.Diagnostic)
	}
}

// writeLabel emits prefix + colored label (padded to labelWidth) + wrapped value.
func (f *TextFormatter) writeLabel(w io.Writer, prefix, label string, colorFn func(a ...interface{}) string, value string) {
	colored := colorFn(fmt.Sprintf("%-*s", labelWidth, label))
	fmt.Fprintf(w, "%s%s%s\n", prefix, colored, f.wrap(value, colValue, colValue))
}

// ─── Summary ─────────────────────────────────────────────────────────

func (f *TextFormatter) writeSummary(w io.Writer, r *types.TestReport) {
	rule := cDim(strings.Repeat("─", ruleWidth))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", rule)
	f.writeVerdict(w, r)

	s := r.Summary
	extra := ""
	if s.TimedOutSuites > 0 {
		extra = " · " + cRedBold(fmt.Sprintf("%d suite(s) timed out", s.TimedOutSuites))
	}
	fmt.Fprintf(w, "  %s  %s · %s · %s%s\n", cBold("Summary:"),
		cGreenBold(fmt.Sprintf("%d passed", s.Passed)),
		cRedBold(fmt.Sprintf("%d failed", s.Failed)),
		cDim(fmt.Sprintf("%d skipped", s.Skipped)),
		extra)
	fmt.Fprintf(w, "  %s  %s\n", cDim("Completed in"), cBold(fmt.Sprintf("%.1fs", float64(s.DurationMS)/1000.0)))
	fmt.Fprintf(w, "  %s\n", rule)
}

func (f *TextFormatter) writeVerdict(w io.Writer, r *types.TestReport) {
	s := r.Summary
	switch {
	case s.CriticalFailures > 0:
		detail := ""
		if s.InformationalFailures > 0 {
			detail = fmt.Sprintf(" (+%d informational)", s.InformationalFailures)
		}
		fmt.Fprintf(w, "  %s %s\n", cRedBold(f.icon("fail")),
			cRedBold(fmt.Sprintf("%d critical failure(s)%s", s.CriticalFailures, detail)))
	case s.InformationalFailures > 0:
		fmt.Fprintf(w, "  %s %s\n", cYellowBold(f.icon("warn")),
			cYellowBold(fmt.Sprintf("No critical failures, %d informational", s.InformationalFailures)))
	default:
		fmt.Fprintf(w, "  %s %s\n", cGreenBold(f.icon("pass")), cGreenBold("All cases passed"))
	}
}

// ─── Hints ───────────────────────────────────────────────────────────

func (f *TextFormatter) writeHints(w io.Writer, r *types.TestReport) {
	var hints []string
	if f.show() == ShowFailures && r.Summary.Passed+r.Summary.Skipped > 0 {
		hints = append(hints, "Use --show all to see every case result")
	}
	if r.Summary.TimedOutSuites > 0 {
		hints = append(hints, "Raise --timeout if slow suites are expected")
	}
	if len(hints) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, h := range hints {
		fmt.Fprintf(w, "  %s %s\n", cDim("›"), cDim(h))
	}
}

// ─── Text wrapping ───────────────────────────────────────────────────

func (f *TextFormatter) wrap(text string, startCol, wrapCol int) string {
	w := f.wrapWidth()
	if startCol+len(text) <= w {
		return text
	}
	avail := w - startCol
	if avail < 20 {
		return text
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	wrapPad := strings.Repeat(" ", wrapCol)
	var b strings.Builder
	lineLen := 0
	for i, word := range words {
		if i == 0 {
			b.WriteString(word)
			lineLen = len(word)
			continue
		}
		if lineLen+1+len(word) > avail {
			b.WriteByte('\n')
			b.WriteString(wrapPad)
			b.WriteString(word)
			lineLen = len(word)
			avail = w - wrapCol
		} else {
			b.WriteByte(' ')
			b.WriteString(word)
			lineLen += 1 + len(word)
		}
	}
	return b.String()
}

// ─── Icons ───────────────────────────────────────────────────────────

func (f *TextFormatter) icon(name string) string {
	if f.Dumb {
		switch name {
		case "pass":
			return "+"
		case "fail":
			return "x"
		case "skip":
			return "-"
		case "warn":
			return "!"
		case "section":
			return ">"
		default:
			return "?"
		}
	}
	switch name {
	case "pass":
		return "✓"
	case "fail":
		return "✗"
	case "skip":
		return "○"
	case "warn":
		return "⚠"
	case "section":
		return "▸"
	default:
		return "?"
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────

func (f *TextFormatter) statusIcon(s types.ResultStatus) string {
	switch s {
	case types.StatusPassed:
		return cGreen(f.icon("pass"))
	case types.StatusFailed:
		return cRed(f.icon("fail"))
	case types.StatusSkipped:
		return cDim(f.icon("skip"))
	default:
		return "?"
	}
}

// badge shows the policy of the case: critical or informational.
func (f *TextFormatter) badge(r types.TestResult) string {
	if r.Informational {
		return cDim(fmt.Sprintf("%-*s", badgeWidth, "[INFO]"))
	}
	padded := fmt.Sprintf("%-*s", badgeWidth, "[CRIT]")
	if r.Status == types.StatusFailed {
		return cRedBold(padded)
	}
	return padded
}

func (f *TextFormatter) durationRaw(r types.TestResult) string {
	ms := r.DurationMS
	if ms <= 0 {
		ms = r.Duration.Milliseconds()
	}
	if ms < 1 {
		return "(<1ms)"
	}
	return fmt.Sprintf("(%dms)", ms)
}

func colPad(n int) string {
	return strings.Repeat(" ", n)
}
