package analyzer

import (
	"reflect"
	"strings"
	"testing"

	"github.com/funvibe/veq/internal/classify"
	"github.com/funvibe/veq/internal/diagnostics"
	"github.com/funvibe/veq/internal/typeref"
)

func addType(u *typeref.Universe, name string, kind typeref.Kind) *typeref.Ref {
	r := u.Intern(name)
	r.Kind = kind
	return r
}

func member(name string, t *typeref.Ref, line int) typeref.Member {
	return typeref.Member{
		Name: name,
		Type: t,
		Pos:  diagnostics.Pos{File: "types.yaml", Line: line, Column: 5},
	}
}

func TestCheckFindsOffendingMembers(t *testing.T) {
	u := typeref.NewUniverse()
	intT := addType(u, "Int", typeref.KindPrimitive)
	arr := addType(u, "IntArray", typeref.KindView)
	handle := addType(u, "Handle", typeref.KindReference)
	order := addType(u, "Order", typeref.KindDerived)
	order.Members = []typeref.Member{
		member("id", intT, 10),
		member("items", arr, 11),
		member("owner", handle, 12),
	}

	got := New().Check(u)
	if len(got) != 2 {
		t.Fatalf("got %d findings, want 2", len(got))
	}

	if got[0].Member != "items" || got[0].Type != "IntArray" || got[0].Status != classify.StatusFailed {
		t.Errorf("first finding = %+v, want items/IntArray/failed", got[0])
	}
	if got[1].Member != "owner" || got[1].Type != "Handle" {
		t.Errorf("second finding = %+v, want owner/Handle", got[1])
	}
	if got[0].Pos.Line != 11 || got[1].Pos.Line != 12 {
		t.Errorf("findings out of position order: %d, %d", got[0].Pos.Line, got[1].Pos.Line)
	}
}

func TestCheckNestedFailure(t *testing.T) {
	u := typeref.NewUniverse()
	arr := addType(u, "IntArray", typeref.KindView)
	seg := addType(u, "Segment", typeref.KindValue)
	seg.Members = []typeref.Member{member("data", arr, 3)}
	doc := addType(u, "Document", typeref.KindDerived)
	doc.Members = []typeref.Member{member("body", seg, 7)}

	got := New().Check(u)
	if len(got) != 1 {
		t.Fatalf("got %d findings, want 1", len(got))
	}
	f := got[0]
	if f.Status != classify.StatusNestedFailed {
		t.Errorf("got status %v, want %v", f.Status, classify.StatusNestedFailed)
	}
	if f.Type != "Segment" || f.Inner != "IntArray" {
		t.Errorf("got type %q inner %q, want Segment/IntArray", f.Type, f.Inner)
	}
}

func TestCheckOnlyDerivedUnits(t *testing.T) {
	u := typeref.NewUniverse()
	arr := addType(u, "IntArray", typeref.KindView)
	for _, kind := range []typeref.Kind{typeref.KindValue, typeref.KindReference, typeref.KindParam} {
		r := addType(u, "T"+string(kind), kind)
		r.Members = []typeref.Member{member("data", arr, 1)}
	}

	if got := New().Check(u); len(got) != 0 {
		t.Errorf("got %d findings from non-derived types, want 0", len(got))
	}
}

func TestCheckBackReference(t *testing.T) {
	// A member whose type points back at the unit under test is trusted:
	// the unit is classified separately on its own members.
	u := typeref.NewUniverse()
	intT := addType(u, "Int", typeref.KindPrimitive)
	node := addType(u, "TreeNode", typeref.KindDerived)
	node.Members = []typeref.Member{
		member("value", intT, 2),
		member("parent", node, 3),
	}

	if got := New().Check(u); len(got) != 0 {
		t.Errorf("got %d findings, want 0: %+v", len(got), got)
	}
}

func TestCheckExclude(t *testing.T) {
	u := typeref.NewUniverse()
	arr := addType(u, "IntArray", typeref.KindView)
	for _, name := range []string{"Order", "LegacyOrder", "LegacyInvoice"} {
		r := addType(u, name, typeref.KindDerived)
		r.Members = []typeref.Member{member("data", arr, 1)}
	}

	tests := []struct {
		name    string
		exclude []string
		want    int
	}{
		{"no exclusions", nil, 3},
		{"glob", []string{"Legacy*"}, 1},
		{"exact name", []string{"Order"}, 2},
		{"all", []string{"*"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New()
			a.SetExclude(tt.exclude)
			if got := a.Check(u); len(got) != tt.want {
				t.Errorf("got %d findings, want %d", len(got), tt.want)
			}
		})
	}
}

func TestCheckDeduplicatesByPosition(t *testing.T) {
	u := typeref.NewUniverse()
	arr := addType(u, "IntArray", typeref.KindView)
	unit := addType(u, "Order", typeref.KindDerived)
	dup := member("items", arr, 4)
	unit.Members = []typeref.Member{dup, dup}

	if got := New().Check(u); len(got) != 1 {
		t.Errorf("got %d findings for duplicated member, want 1", len(got))
	}
}

func TestCheckDeterministicOrder(t *testing.T) {
	u := typeref.NewUniverse()
	arr := addType(u, "IntArray", typeref.KindView)
	unit := addType(u, "Order", typeref.KindDerived)
	for i, name := range []string{"e", "d", "c", "b", "a"} {
		unit.Members = append(unit.Members, member(name, arr, 20-i))
	}

	first := New().Check(u)
	for i := 0; i < 10; i++ {
		again := New().Check(u)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d produced a different order", i)
		}
	}
	for i := 1; i < len(first); i++ {
		if first[i-1].Pos.Line > first[i].Pos.Line {
			t.Fatalf("findings not sorted by line: %+v", first)
		}
	}
}

func TestFindingDiagnostic(t *testing.T) {
	plain := &Finding{
		Unit: "Order", Member: "items", Type: "IntArray",
		Status: classify.StatusFailed,
		Pos:    diagnostics.Pos{File: "types.yaml", Line: 11, Column: 5},
	}
	d := plain.Diagnostic()
	if d.Code != diagnostics.ErrV001 {
		t.Errorf("got code %s, want %s", d.Code, diagnostics.ErrV001)
	}
	if !strings.Contains(d.Message, "Order.items") || !strings.Contains(d.Message, "does not have value semantics") {
		t.Errorf("unexpected message %q", d.Message)
	}
	if d.Pos.Line != 11 {
		t.Errorf("got line %d, want 11", d.Pos.Line)
	}

	nested := &Finding{
		Unit: "Document", Member: "body", Type: "Segment", Inner: "IntArray",
		Status: classify.StatusNestedFailed,
	}
	if msg := nested.Diagnostic().Message; !strings.Contains(msg, "relies on non-value type IntArray") {
		t.Errorf("unexpected nested message %q", msg)
	}
}
