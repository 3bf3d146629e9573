package analyzer

import (
	"fmt"
	"path"
	"sort"

	"github.com/funvibe/veq/internal/classify"
	"github.com/funvibe/veq/internal/diagnostics"
	"github.com/funvibe/veq/internal/typeref"
)

// Analyzer walks a type universe and checks every derived-equality
// composite: a generated equality method is only sound when each declared
// member classifies as value-safe on its own.
type Analyzer struct {
	exclude []string
}

// New creates an Analyzer with no exclusions.
func New() *Analyzer {
	return &Analyzer{}
}

// SetExclude installs glob patterns for unit names to skip. Patterns use
// path.Match syntax, so a plain name matches exactly.
func (a *Analyzer) SetExclude(globs []string) {
	a.exclude = globs
}

// Finding is one offending member of one unit under test.
type Finding struct {
	Unit   string // composite whose derived equality is unsound
	Member string // declared member name
	Type   string // member type display name
	Inner  string // immediate failing child type, set for nested failures
	Status classify.Status
	Pos    diagnostics.Pos
}

// Diagnostic renders the finding as a positioned diagnostic.
func (f *Finding) Diagnostic() *diagnostics.DiagnosticError {
	if f.Status == classify.StatusNestedFailed && f.Inner != "" {
		return diagnostics.NewError(diagnostics.ErrV001, f.Pos,
			"%s.%s: member type %s relies on non-value type %s", f.Unit, f.Member, f.Type, f.Inner)
	}
	return diagnostics.NewError(diagnostics.ErrV001, f.Pos,
		"%s.%s: member type %s does not have value semantics", f.Unit, f.Member, f.Type)
}

type walker struct {
	exclude    []string
	findingSet map[string]*Finding // Key: "file:line:col:unit.member" for deduplication
}

// addFinding records a finding, deduplicating by position and member.
func (w *walker) addFinding(f *Finding) {
	key := fmt.Sprintf("%s:%d:%d:%s.%s", f.Pos.File, f.Pos.Line, f.Pos.Column, f.Unit, f.Member)
	if w.findingSet == nil {
		w.findingSet = make(map[string]*Finding)
	}
	w.findingSet[key] = f
}

// getFindings returns all unique findings as a slice, sorted by position
// for deterministic output.
func (w *walker) getFindings() []*Finding {
	result := make([]*Finding, 0, len(w.findingSet))
	for _, f := range w.findingSet {
		result = append(result, f)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Pos.File != result[j].Pos.File {
			return result[i].Pos.File < result[j].Pos.File
		}
		if result[i].Pos.Line != result[j].Pos.Line {
			return result[i].Pos.Line < result[j].Pos.Line
		}
		if result[i].Pos.Column != result[j].Pos.Column {
			return result[i].Pos.Column < result[j].Pos.Column
		}
		return result[i].Member < result[j].Member
	})

	return result
}

func (w *walker) excluded(name string) bool {
	for _, g := range w.exclude {
		if ok, err := path.Match(g, name); err == nil && ok {
			return true
		}
	}
	return false
}

// checkUnit classifies every member of one derived-equality composite.
// Each member gets its own fresh cycle guard; a back reference to the
// unit classifies on its own merits as a separately checked unit.
func (w *walker) checkUnit(unit *typeref.Ref) {
	for i := range unit.Members {
		m := &unit.Members[i]
		v := classify.Classify(m.Type)
		if v.Ok() {
			continue
		}
		w.addFinding(&Finding{
			Unit:   unit.Name,
			Member: m.Name,
			Type:   m.Type.DisplayName(),
			Inner:  v.Inner,
			Status: v.Status,
			Pos:    m.Pos,
		})
	}
}

// Check inspects every derived-equality composite in the universe and
// returns at most one finding per member, in position order.
func (a *Analyzer) Check(u *typeref.Universe) []*Finding {
	w := &walker{
		exclude:    a.exclude,
		findingSet: make(map[string]*Finding),
	}
	for _, t := range u.Types() {
		if t.Kind != typeref.KindDerived {
			continue
		}
		if w.excluded(t.Name) {
			continue
		}
		w.checkUnit(t)
	}
	return w.getFindings()
}
