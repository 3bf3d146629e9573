// Package report shapes the outcome of one analysis run for humans and
// machines. Text output follows terminal conventions (NO_COLOR, dumb
// terminals, pipes all disable ANSI codes); JSON output is stable and
// carries the same findings with explicit positions.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/funvibe/veq/internal/analyzer"
)

// Report is the outcome of one analysis run.
type Report struct {
	RunID      string
	CreatedAt  time.Time
	Source     string // snapshot path, proto file or Go package pattern
	Provider   string // "snapshot", "proto" or "go"
	Findings   []*analyzer.Finding
	Suppressed int // findings hidden by the accepted baseline
}

// New assembles a report with a fresh run identifier.
func New(source, provider string, findings []*analyzer.Finding, suppressed int) *Report {
	return &Report{
		RunID:      uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		Source:     source,
		Provider:   provider,
		Findings:   findings,
		Suppressed: suppressed,
	}
}

// Clean reports whether the run found nothing to flag.
func (r *Report) Clean() bool {
	return len(r.Findings) == 0
}

// =============================================================================
// Color support detection
// =============================================================================

var (
	colorOnce sync.Once
	colorOn   bool
)

// ColorEnabled reports whether stdout should carry ANSI colors. The result
// is detected once per process.
func ColorEnabled() bool {
	colorOnce.Do(func() {
		colorOn = detectColor()
	})
	return colorOn
}

func detectColor() bool {
	// NO_COLOR convention: https://no-color.org/
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}

	// Not a terminal
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return false
	}

	if os.Getenv("TERM") == "dumb" {
		return false
	}

	return true
}

// =============================================================================
// Text rendering
// =============================================================================

const (
	fgRed    = 31
	fgGreen  = 32
	fgYellow = 33
	fgGray   = 90
)

type textPrinter struct {
	color bool
}

func (t textPrinter) fg(code int, s string) string {
	if !t.color {
		return s
	}
	return fmt.Sprintf("\033[%dm%s\033[39m", code, s)
}

func (t textPrinter) bold(s string) string {
	if !t.color {
		return s
	}
	return "\033[1m" + s + "\033[22m"
}

// RenderText writes the human-readable report. Pass ColorEnabled() for
// terminal output or false for captured output.
func RenderText(w io.Writer, r *Report, color bool) {
	p := textPrinter{color: color}

	if r.Clean() {
		_, _ = fmt.Fprintf(w, "%s %s: derived equality is sound%s\n",
			p.fg(fgGreen, "ok"), r.Source, suppressedNote(p, r.Suppressed))
		return
	}

	for _, f := range r.Findings {
		d := f.Diagnostic()
		pos := ""
		if d.Pos.File != "" {
			pos = fmt.Sprintf("%s:%d:%d: ", d.Pos.File, d.Pos.Line, d.Pos.Column)
		} else if d.Pos.Line > 0 {
			pos = fmt.Sprintf("%d:%d: ", d.Pos.Line, d.Pos.Column)
		}
		_, _ = fmt.Fprintf(w, "%s%s %s\n",
			p.fg(fgGray, pos),
			p.fg(fgRed, fmt.Sprintf("[%s]", d.Code)),
			d.Message)
	}

	word := "problems"
	if len(r.Findings) == 1 {
		word = "problem"
	}
	_, _ = fmt.Fprintf(w, "%s%s\n",
		p.bold(p.fg(fgRed, fmt.Sprintf("%d %s", len(r.Findings), word))),
		suppressedNote(p, r.Suppressed))
}

func suppressedNote(p textPrinter, n int) string {
	if n == 0 {
		return ""
	}
	return p.fg(fgGray, fmt.Sprintf(" (%d suppressed by baseline)", n))
}

// =============================================================================
// JSON rendering
// =============================================================================

type jsonFinding struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Code    string `json:"code"`
	Unit    string `json:"unit"`
	Member  string `json:"member"`
	Type    string `json:"type"`
	Inner   string `json:"inner,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type jsonReport struct {
	RunID      string        `json:"run_id"`
	CreatedAt  time.Time     `json:"created_at"`
	Source     string        `json:"source"`
	Provider   string        `json:"provider"`
	Suppressed int           `json:"suppressed,omitempty"`
	Findings   []jsonFinding `json:"findings"`
}

// RenderJSON writes the machine-readable report. Findings is always an
// array, never null, so consumers can index it unconditionally.
func RenderJSON(w io.Writer, r *Report) error {
	out := jsonReport{
		RunID:      r.RunID,
		CreatedAt:  r.CreatedAt,
		Source:     r.Source,
		Provider:   r.Provider,
		Suppressed: r.Suppressed,
		Findings:   make([]jsonFinding, 0, len(r.Findings)),
	}
	for _, f := range r.Findings {
		d := f.Diagnostic()
		out.Findings = append(out.Findings, jsonFinding{
			File:    f.Pos.File,
			Line:    f.Pos.Line,
			Column:  f.Pos.Column,
			Code:    string(d.Code),
			Unit:    f.Unit,
			Member:  f.Member,
			Type:    f.Type,
			Inner:   f.Inner,
			Status:  f.Status.String(),
			Message: d.Message,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
