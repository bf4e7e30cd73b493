package runner

import (
	"bufio"
	"bytes"
	"io"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ancients-collective/cliprobe/internal/types"
)

// maxDiagnostic bounds the text accumulated for one failed case.
const maxDiagnostic = 4096

var (
	resultLine = regexp.MustCompile(`^(ok|not ok)\s+(\d+)\s+(.+)$`)
	planLine   = regexp.MustCompile(`^1\.\.(\d+)`)
	timingTail = regexp.MustCompile(`\s+in (\d+)ms$`)
	skipTail   = regexp.MustCompile(`(?i)\s*#\s*skip\b:?\s*(.*)$`)
)

// TAPResult is one "ok" or "not ok" line and its trailing diagnostics.
type TAPResult struct {
	Number     int
	Title      string
	Status     types.ResultStatus
	Diagnostic string
	Duration   time.Duration
}

// TAPStream is everything recognized in a runner's output.
type TAPStream struct {
	// Plan is the count announced by the "1..N" line, 0 when absent.
	Plan    int
	Results []TAPResult
}

// ParseTAP reads a complete TAP stream. Unrecognized lines are ignored.
func ParseTAP(r io.Reader) (TAPStream, error) {
	p := &tapParser{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		p.line(sc.Text())
	}
	return p.Snapshot(), sc.Err()
}

// tapParser consumes TAP incrementally. It is an io.Writer so it can be fed
// directly from a running process, and safe for concurrent Snapshot calls.
type tapParser struct {
	mu        sync.Mutex
	partial   []byte
	stream    TAPStream
	inFailure bool
}

func (p *tapParser) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.partial = append(p.partial, b...)
	for {
		i := bytes.IndexByte(p.partial, '\n')
		if i < 0 {
			break
		}
		p.lineLocked(string(p.partial[:i]))
		p.partial = p.partial[i+1:]
	}
	return len(b), nil
}

// Flush parses a trailing line that had no newline.
func (p *tapParser) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.partial) > 0 {
		p.lineLocked(string(p.partial))
		p.partial = nil
	}
}

// Reported returns how many results have been seen so far.
func (p *tapParser) Reported() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stream.Results)
}

// Snapshot returns a copy of the parsed stream.
func (p *tapParser) Snapshot() TAPStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return TAPStream{Plan: p.stream.Plan, Results: slices.Clone(p.stream.Results)}
}

func (p *tapParser) line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lineLocked(s)
}

func (p *tapParser) lineLocked(s string) {
	s = strings.TrimRight(s, "\r")

	if m := resultLine.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			p.inFailure = false
			return
		}
		p.stream.Results = append(p.stream.Results, parseResult(m[1] == "ok", n, m[3]))
		p.inFailure = m[1] == "not ok" && p.stream.Results[len(p.stream.Results)-1].Status == types.StatusFailed
		return
	}
	if m := planLine.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			p.stream.Plan = n
		}
		p.inFailure = false
		return
	}
	if p.inFailure && strings.HasPrefix(s, "#") {
		last := &p.stream.Results[len(p.stream.Results)-1]
		text := strings.TrimPrefix(strings.TrimPrefix(s, "#"), " ")
		if len(last.Diagnostic)+len(text)+1 <= maxDiagnostic {
			last.Diagnostic += "\n" + text
		}
	}
}

func parseResult(ok bool, n int, rest string) TAPResult {
	r := TAPResult{Number: n}
	if m := timingTail.FindStringSubmatchIndex(rest); m != nil {
		ms, _ := strconv.Atoi(rest[m[2]:m[3]])
		r.Duration = time.Duration(ms) * time.Millisecond
		rest = rest[:m[0]]
	}

	if m := skipTail.FindStringSubmatchIndex(rest); m != nil {
		r.Status = types.StatusSkipped
		r.Diagnostic = strings.TrimSpace(rest[m[2]:m[3]])
		r.Diagnostic = strings.TrimSuffix(strings.TrimPrefix(r.Diagnostic, "("), ")")
		r.Title = strings.TrimSpace(rest[:m[0]])
		return r
	}

	r.Title = strings.TrimSpace(rest)
	if ok {
		r.Status = types.StatusPassed
	} else {
		r.Status = types.StatusFailed
		r.Diagnostic = r.Title
	}
	return r
}

// caseID extracts the generated identifier from a "<id>: <description>" title.
func caseID(title string) string {
	id, _, found := strings.Cut(title, ": ")
	if !found || strings.ContainsAny(id, " \t") {
		return ""
	}
	return id
}
