// Package veq embeds the equality checker in a host program. Results come
// back as plain structs so hosts never touch internal types.
//
// Baseline filtering is a workflow concern and stays with the CLI and the
// gRPC facade; embedded checks always report everything.
package veq

import (
	"fmt"
	"strings"

	"github.com/funvibe/veq/internal/analyzer"
	"github.com/funvibe/veq/internal/classify"
	"github.com/funvibe/veq/internal/gosrc"
	"github.com/funvibe/veq/internal/protosrc"
	"github.com/funvibe/veq/internal/report"
	"github.com/funvibe/veq/internal/snapshot"
	"github.com/funvibe/veq/internal/typeref"
)

// Finding is one reported member.
type Finding struct {
	Unit    string // composite whose derived equality is unsound
	Member  string
	Type    string
	Inner   string // immediate failing child type, for nested failures
	Status  string // "failed" or "nested_failed"
	Code    string
	Message string
	File    string
	Line    int
	Column  int
}

// Result is the outcome of one embedded check.
type Result struct {
	RunID    string
	Provider string
	Findings []Finding
}

// Clean reports whether the check found nothing to flag.
func (r *Result) Clean() bool {
	return len(r.Findings) == 0
}

// Checker runs equality checks for a host program.
type Checker struct {
	exclude []string
}

// New creates a Checker with no exclusions.
func New() *Checker {
	return &Checker{}
}

// Exclude adds glob patterns for unit names to skip. Patterns use
// path.Match syntax, so a plain name matches exactly.
func (c *Checker) Exclude(globs ...string) {
	c.exclude = append(c.exclude, globs...)
}

// CheckSnapshot analyzes an in-memory snapshot document.
func (c *Checker) CheckSnapshot(data []byte) (*Result, error) {
	u, diags := snapshot.Parse(data, "snapshot")
	if len(diags) > 0 {
		msgs := make([]string, len(diags))
		for i, d := range diags {
			msgs[i] = d.Error()
		}
		return nil, fmt.Errorf("invalid snapshot: %s", strings.Join(msgs, "; "))
	}
	return c.result("snapshot", u), nil
}

// CheckSnapshotFile analyzes a snapshot document on disk.
func (c *Checker) CheckSnapshotFile(path string) (*Result, error) {
	u, diags, err := snapshot.Load(path)
	if err != nil {
		return nil, err
	}
	if len(diags) > 0 {
		msgs := make([]string, len(diags))
		for i, d := range diags {
			msgs[i] = d.Error()
		}
		return nil, fmt.Errorf("invalid snapshot: %s", strings.Join(msgs, "; "))
	}
	return c.result("snapshot", u), nil
}

// CheckProtoFiles parses protobuf definitions and analyzes every message
// they declare. Files are resolved against importPaths; an empty list
// means the current directory.
func (c *Checker) CheckProtoFiles(importPaths []string, files ...string) (*Result, error) {
	u, err := protosrc.Load(importPaths, files...)
	if err != nil {
		return nil, err
	}
	return c.result("proto", u), nil
}

// CheckGoPackages loads Go packages by pattern, rooted at dir when dir is
// not empty, and analyzes the structs they declare.
func (c *Checker) CheckGoPackages(dir string, patterns ...string) (*Result, error) {
	ins := gosrc.NewInspector()
	if dir != "" {
		ins.SetDir(dir)
	}
	if err := ins.Load(patterns...); err != nil {
		return nil, err
	}
	return c.result("go", ins.Universe()), nil
}

// ClassifyType classifies one named type of a snapshot document. The
// returned status is "ok", "failed" or "nested_failed"; inner names the
// offending member type for nested failures.
func (c *Checker) ClassifyType(data []byte, name string) (status, inner string, err error) {
	u, diags := snapshot.Parse(data, "snapshot")
	if len(diags) > 0 {
		msgs := make([]string, len(diags))
		for i, d := range diags {
			msgs[i] = d.Error()
		}
		return "", "", fmt.Errorf("invalid snapshot: %s", strings.Join(msgs, "; "))
	}
	ref, ok := u.Lookup(name)
	if !ok {
		return "", "", fmt.Errorf("type %q is not declared in the snapshot", name)
	}
	v := classify.Classify(ref)
	return v.Status.String(), v.Inner, nil
}

func (c *Checker) result(provider string, u *typeref.Universe) *Result {
	a := analyzer.New()
	a.SetExclude(c.exclude)
	findings := a.Check(u)

	rep := report.New("embedded", provider, findings, 0)
	out := &Result{
		RunID:    rep.RunID,
		Provider: rep.Provider,
		Findings: make([]Finding, 0, len(findings)),
	}
	for _, f := range findings {
		d := f.Diagnostic()
		out.Findings = append(out.Findings, Finding{
			Unit:    f.Unit,
			Member:  f.Member,
			Type:    f.Type,
			Inner:   f.Inner,
			Status:  f.Status.String(),
			Code:    string(d.Code),
			Message: d.Message,
			File:    f.Pos.File,
			Line:    f.Pos.Line,
			Column:  f.Pos.Column,
		})
	}
	return out
}
