// Package typeref is the descriptor model the classifier runs on: a graph
// of type references with a closed kind vocabulary and two equality
// capability flags per type.
//
// Providers (snapshot, gosrc, protosrc) translate their host type systems
// into this model; the engine in internal/classify consumes it and nothing
// else. Refs are linked by pointer, so cyclic type graphs are representable
// directly and pointer identity doubles as the cycle-guard identity.
package typeref

import (
	"strings"

	"github.com/funvibe/veq/internal/diagnostics"
)

// Kind categorizes a type for classification. The set is closed: every
// provider maps its host types onto exactly one of these.
type Kind string

const (
	KindPrimitive Kind = "primitive" // built-in scalar of any width, incl. strings
	KindEnum      Kind = "enum"      // named constant set over a scalar carrier
	KindUntyped   Kind = "untyped"   // universal base / untyped placeholder
	KindBuffer    Kind = "buffer"    // fixed-size inline buffer overlay
	KindView      Kind = "view"      // wrapper whose equality compares a backing buffer's identity
	KindTuple     Kind = "tuple"     // heterogeneous fixed tuple
	KindDerived   Kind = "derived"   // composite with member-derived equality, checked as its own unit
	KindReference Kind = "reference" // composite with default identity equality
	KindValue     Kind = "value"     // composite compared member-by-member
	KindParam     Kind = "param"     // type parameter or anything otherwise unresolved
)

var kindSet = map[Kind]bool{
	KindPrimitive: true,
	KindEnum:      true,
	KindUntyped:   true,
	KindBuffer:    true,
	KindView:      true,
	KindTuple:     true,
	KindDerived:   true,
	KindReference: true,
	KindValue:     true,
	KindParam:     true,
}

// ParseKind maps a kind name to its Kind, reporting whether it is known.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	return k, kindSet[k]
}

// Equality holds the two capability flags resolved per type (see resolve.go
// for the rules deciding which declared methods count).
type Equality struct {
	// HasValueEquals is true when the type directly declares a usable
	// same-type equality method.
	HasValueEquals bool

	// HasIdentityOverride is true when the type directly overrides the
	// universal-base equality slot.
	HasIdentityOverride bool
}

// Member is one declared field of a composite, in declaration order.
type Member struct {
	Name string
	Type *Ref
	Pos  diagnostics.Pos
}

// Ref describes one type in the graph.
type Ref struct {
	// Name is the declared type name; anonymous tuples and wrappers leave
	// it empty and synthesize a display name instead.
	Name string

	// Kind is the closed classification category.
	Kind Kind

	// Nullable marks a nullable value wrapper; the classifier unwraps it
	// via Elem before applying any kind rule.
	Nullable bool

	// Elem is the wrapped type when Nullable. nil means there is nothing
	// sensible to unwrap.
	Elem *Ref

	// Members are the declared fields, in declaration order. nil means the
	// enumeration is unavailable, which is different from an empty slice
	// (zero declared members).
	Members []Member

	// Elements are the tuple element types, in order. Only tuples set it.
	Elements []*Ref

	// Equality carries the resolved capability flags.
	Equality Equality

	// Pos is the declaration site, used for diagnostics only.
	Pos diagnostics.Pos
}

// DisplayName renders the name used in verdicts and diagnostics. Anonymous
// tuples render as "(A, B)" from their element names; anonymous wrappers as
// "T?". Anything else without a name renders "<unknown>".
func (r *Ref) DisplayName() string {
	if r == nil {
		return "<unknown>"
	}
	if r.Name != "" {
		return r.Name
	}
	if r.Kind == KindTuple {
		parts := make([]string, len(r.Elements))
		for i, e := range r.Elements {
			parts[i] = e.DisplayName()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	if r.Nullable && r.Elem != nil {
		return r.Elem.DisplayName() + "?"
	}
	return "<unknown>"
}
