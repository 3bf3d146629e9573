// Package classify decides whether a type has value semantics: whether
// equality derived from its members depends on content only, never on
// instance identity. The decision is total and deterministic, terminates on
// cyclic type graphs, and never panics.
package classify

import "github.com/funvibe/veq/internal/typeref"

// Status is the three-way classification outcome.
type Status int

const (
	// StatusOk means every reachable member has value semantics.
	StatusOk Status = iota
	// StatusFailed means the type itself lacks value semantics.
	StatusFailed
	// StatusNestedFailed means a member's classification failed; the
	// verdict names the immediate failing member type, not the deepest
	// cause.
	StatusNestedFailed
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusNestedFailed:
		return "nested_failed"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of one classification call.
type Verdict struct {
	Status Status

	// Inner is the display name of the immediate failing member type.
	// Set only when Status is StatusNestedFailed.
	Inner string
}

// Ok reports whether the verdict is clean.
func (v Verdict) Ok() bool {
	return v.Status == StatusOk
}

var (
	verdictOk     = Verdict{Status: StatusOk}
	verdictFailed = Verdict{Status: StatusFailed}
)

func nestedFailed(inner string) Verdict {
	return Verdict{Status: StatusNestedFailed, Inner: inner}
}

// Guard is the per-call visited-identity set bounding recursion over cyclic
// type graphs. It is call-scoped, not path-scoped: once a type has been
// expanded anywhere in one call tree, later occurrences count Ok without
// re-inspection. Never share a Guard across sibling top-level calls.
type Guard map[*typeref.Ref]bool

// NewGuard creates an empty guard for one top-level classification.
func NewGuard() Guard {
	return make(Guard)
}

// Add records a type identity, reporting whether it was newly added.
func (g Guard) Add(r *typeref.Ref) bool {
	if g[r] {
		return false
	}
	g[r] = true
	return true
}

// Classify runs one top-level classification with a fresh guard.
func Classify(t *typeref.Ref) Verdict {
	return ClassifyWithGuard(t, NewGuard())
}

// ClassifyWithGuard classifies t, recording visited identities in guard.
// The rules are ordered; the first match wins. Recursion is bounded by the
// number of distinct reachable type identities, not by call depth, so
// cyclic graphs terminate.
func ClassifyWithGuard(t *typeref.Ref, guard Guard) Verdict {
	// 1. Unwrap nullable wrappers. An absent unwrap target cannot itself
	// be a defect. Wrapper identities join the guard, so a wrapper chain
	// that cycles back on itself terminates like any other cycle.
	for t != nil && t.Nullable {
		if !guard.Add(t) {
			return verdictOk
		}
		t = t.Elem
	}
	if t == nil {
		return verdictOk
	}

	// 2. Cycle break: a type already expanded in this call tree counts Ok.
	if !guard.Add(t) {
		return verdictOk
	}

	// 3-6. Kinds decided without consulting members or equality methods.
	switch t.Kind {
	case typeref.KindUntyped:
		// Untyped or maximally generic members can never be proven safe.
		return verdictFailed
	case typeref.KindPrimitive, typeref.KindEnum:
		return verdictOk
	case typeref.KindBuffer:
		return verdictFailed
	case typeref.KindView:
		// Outranks the value-equals rule below even when such a wrapper
		// declares a same-type equality method.
		return verdictFailed
	}

	// 7. Capability rules. Tuples bypass them: only element types matter.
	if t.Kind != typeref.KindTuple {
		if t.Equality.HasValueEquals {
			return verdictOk
		}
		if t.Equality.HasIdentityOverride {
			return verdictOk
		}
		if t.Kind == typeref.KindDerived {
			// Trusted here; it is checked separately as its own unit.
			return verdictOk
		}
		if t.Kind == typeref.KindReference {
			return verdictFailed
		}
	}

	// 8. Member list: tuple elements, or declared fields for value
	// composites. A nil list means no enumeration exists.
	var members []typeref.Member
	switch t.Kind {
	case typeref.KindTuple:
		members = make([]typeref.Member, len(t.Elements))
		for i, e := range t.Elements {
			members[i] = typeref.Member{Type: e}
		}
	case typeref.KindValue:
		members = t.Members
	}

	if members == nil {
		// 10. No member list: absence of positive evidence is a failure,
		// never assumed correctness.
		return verdictFailed
	}

	// 9. In-order recursion with the same guard; first non-Ok member wins
	// and the verdict names that member's type.
	for _, m := range members {
		if v := ClassifyWithGuard(m.Type, guard); !v.Ok() {
			return nestedFailed(m.Type.DisplayName())
		}
	}
	return verdictOk
}
