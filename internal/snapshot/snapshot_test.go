package snapshot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/funvibe/veq/internal/classify"
	"github.com/funvibe/veq/internal/diagnostics"
	"github.com/funvibe/veq/internal/typeref"
)

const wellFormedDoc = `types:
  - name: Int
    kind: primitive
  - name: String
    kind: primitive
  - name: IntArray
    kind: view
  - name: Money
    kind: value
    members:
      - name: amount
        type: Int
      - name: currency
        type: String
    equals:
      - name: Equals
        params: [Money]
  - name: Legacy
    kind: reference
    equals:
      - name: Equals
        params: [any]
        override: true
  - name: Node
    kind: value
    members:
      - name: next
        type: {nullable: Node}
      - name: pair
        type: {tuple: [Int, String]}
`

func mustParse(t *testing.T, doc string) *typeref.Universe {
	t.Helper()
	u, diags := Parse([]byte(doc), "test.yaml")
	if len(diags) != 0 {
		for _, d := range diags {
			t.Logf("diagnostic: %s", d.Error())
		}
		t.Fatalf("got %d diagnostics, want 0", len(diags))
	}
	return u
}

func lookup(t *testing.T, u *typeref.Universe, name string) *typeref.Ref {
	t.Helper()
	r, ok := u.Lookup(name)
	if !ok {
		t.Fatalf("type %q not in universe", name)
	}
	return r
}

func TestParseWellFormed(t *testing.T) {
	u := mustParse(t, wellFormedDoc)

	if u.Len() != 6 {
		t.Fatalf("got %d types, want 6", u.Len())
	}

	var names []string
	for _, r := range u.Types() {
		names = append(names, r.Name)
	}
	want := []string{"Int", "String", "IntArray", "Money", "Legacy", "Node"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("got order %v, want %v", names, want)
	}

	intRef := lookup(t, u, "Int")
	money := lookup(t, u, "Money")
	if money.Kind != typeref.KindValue {
		t.Errorf("Money kind = %q, want %q", money.Kind, typeref.KindValue)
	}
	if len(money.Members) != 2 {
		t.Fatalf("Money has %d members, want 2", len(money.Members))
	}
	if money.Members[0].Name != "amount" || money.Members[0].Type != intRef {
		t.Errorf("Money.amount not linked to the declared Int")
	}
	if !money.Equality.HasValueEquals || money.Equality.HasIdentityOverride {
		t.Errorf("Money equality = %+v, want value-equals only", money.Equality)
	}

	legacy := lookup(t, u, "Legacy")
	if !legacy.Equality.HasIdentityOverride {
		t.Errorf("Legacy equality = %+v, want identity override", legacy.Equality)
	}

	node := lookup(t, u, "Node")
	next := node.Members[0].Type
	if next == nil || !next.Nullable || next.Elem != node {
		t.Errorf("Node.next does not wrap Node itself")
	}
	pair := node.Members[1].Type
	if pair == nil || pair.Kind != typeref.KindTuple {
		t.Fatalf("Node.pair is not a tuple")
	}
	if got := pair.DisplayName(); got != "(Int, String)" {
		t.Errorf("pair display name = %q, want %q", got, "(Int, String)")
	}
	if pair.Elements[0] != intRef {
		t.Errorf("tuple element not linked to the declared Int")
	}
}

func TestParseFeedsClassifier(t *testing.T) {
	u := mustParse(t, wellFormedDoc)

	tests := []struct {
		name string
		want classify.Status
	}{
		{"Int", classify.StatusOk},
		{"IntArray", classify.StatusFailed},
		{"Money", classify.StatusOk},
		{"Legacy", classify.StatusOk}, // identity override wins over reference kind
		{"Node", classify.StatusOk},   // self-cycle through the nullable wrapper
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := classify.Classify(lookup(t, u, tt.name))
			if v.Status != tt.want {
				t.Errorf("got %v, want %v", v.Status, tt.want)
			}
		})
	}
}

func TestParseNilVersusEmptyMembers(t *testing.T) {
	u := mustParse(t, `types:
  - name: Opaque
    kind: value
  - name: Hollow
    kind: value
    members: []
`)

	opaque := lookup(t, u, "Opaque")
	if opaque.Members != nil {
		t.Errorf("omitted members decoded as %v, want nil", opaque.Members)
	}
	hollow := lookup(t, u, "Hollow")
	if hollow.Members == nil || len(hollow.Members) != 0 {
		t.Errorf("explicit empty members decoded as %v, want empty non-nil", hollow.Members)
	}

	if v := classify.Classify(opaque); v.Status != classify.StatusFailed {
		t.Errorf("Opaque classified %v, want %v", v.Status, classify.StatusFailed)
	}
	if v := classify.Classify(hollow); v.Status != classify.StatusOk {
		t.Errorf("Hollow classified %v, want %v", v.Status, classify.StatusOk)
	}
}

func TestParsePositions(t *testing.T) {
	u, diags := Parse([]byte(`types:
  - name: Currency
    kind: primitive
  - name: Money
    kind: value
    members:
      - name: amount
        type: Missing
`), "money.yaml")

	cur := lookup(t, u, "Currency")
	if cur.Pos.File != "money.yaml" || cur.Pos.Line != 2 || cur.Pos.Column <= 0 {
		t.Errorf("Currency pos = %+v, want money.yaml:2", cur.Pos)
	}
	money := lookup(t, u, "Money")
	if money.Pos.Line != 4 {
		t.Errorf("Money pos line = %d, want 4", money.Pos.Line)
	}
	if len(money.Members) != 1 || money.Members[0].Pos.Line != 7 {
		t.Fatalf("Money.amount pos = %+v, want line 7", money.Members)
	}

	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	if diags[0].Code != diagnostics.ErrS002 {
		t.Errorf("got code %s, want %s", diags[0].Code, diagnostics.ErrS002)
	}
	if diags[0].Pos.Line != 8 {
		t.Errorf("diagnostic at line %d, want 8 (the type expression)", diags[0].Pos.Line)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		wantCode diagnostics.Code
		wantMsg  string
	}{
		{
			name:     "unknown kind",
			doc:      "types:\n  - name: T\n    kind: magic\n",
			wantCode: diagnostics.ErrS001,
			wantMsg:  `unknown kind "magic"`,
		},
		{
			name:     "missing kind",
			doc:      "types:\n  - name: T\n",
			wantCode: diagnostics.ErrS001,
			wantMsg:  "kind is required",
		},
		{
			name:     "missing name",
			doc:      "types:\n  - kind: primitive\n",
			wantCode: diagnostics.ErrS001,
			wantMsg:  "name is required",
		},
		{
			name:     "duplicate name",
			doc:      "types:\n  - name: T\n    kind: primitive\n  - name: T\n    kind: view\n",
			wantCode: diagnostics.ErrS001,
			wantMsg:  `already declared at line 2`,
		},
		{
			name:     "undeclared member type",
			doc:      "types:\n  - name: T\n    kind: value\n    members:\n      - name: x\n        type: Ghost\n",
			wantCode: diagnostics.ErrS002,
			wantMsg:  `references undeclared type "Ghost"`,
		},
		{
			name:     "nullable without of",
			doc:      "types:\n  - name: T\n    kind: nullable\n",
			wantCode: diagnostics.ErrS001,
			wantMsg:  "requires of",
		},
		{
			name:     "nullable of undeclared",
			doc:      "types:\n  - name: T\n    kind: nullable\n    of: Ghost\n",
			wantCode: diagnostics.ErrS002,
			wantMsg:  `references undeclared type "Ghost"`,
		},
		{
			name:     "nullable with members",
			doc:      "types:\n  - name: E\n    kind: primitive\n  - name: T\n    kind: nullable\n    of: E\n    members:\n      - name: x\n        type: E\n",
			wantCode: diagnostics.ErrS001,
			wantMsg:  "carry only of",
		},
		{
			name:     "of outside nullable",
			doc:      "types:\n  - name: E\n    kind: primitive\n  - name: T\n    kind: view\n    of: E\n",
			wantCode: diagnostics.ErrS001,
			wantMsg:  "only valid for kind nullable",
		},
		{
			name:     "tuple with members",
			doc:      "types:\n  - name: T\n    kind: tuple\n    members:\n      - name: x\n        type: T\n",
			wantCode: diagnostics.ErrS001,
			wantMsg:  "declare elements, not members",
		},
		{
			name:     "tuple with equality",
			doc:      "types:\n  - name: T\n    kind: tuple\n    equals:\n      - name: Equals\n        params: [T]\n",
			wantCode: diagnostics.ErrS001,
			wantMsg:  "do not declare equality",
		},
		{
			name:     "elements outside tuple",
			doc:      "types:\n  - name: E\n    kind: primitive\n  - name: T\n    kind: value\n    elements: [E]\n",
			wantCode: diagnostics.ErrS001,
			wantMsg:  "only valid for tuples",
		},
		{
			name:     "primitive with members",
			doc:      "types:\n  - name: T\n    kind: primitive\n    members:\n      - name: x\n        type: T\n",
			wantCode: diagnostics.ErrS001,
			wantMsg:  "does not declare members",
		},
		{
			name:     "member without name",
			doc:      "types:\n  - name: E\n    kind: primitive\n  - name: T\n    kind: value\n    members:\n      - type: E\n",
			wantCode: diagnostics.ErrS001,
			wantMsg:  "name is required",
		},
		{
			name:     "member without type",
			doc:      "types:\n  - name: T\n    kind: value\n    members:\n      - name: x\n",
			wantCode: diagnostics.ErrS001,
			wantMsg:  "type is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, diags := Parse([]byte(tt.doc), "test.yaml")
			if u == nil {
				t.Fatalf("universe is nil; validation failures must still return one")
			}
			for _, d := range diags {
				if d.Code == tt.wantCode && strings.Contains(d.Message, tt.wantMsg) {
					return
				}
			}
			t.Errorf("no diagnostic with code %s containing %q; got %v", tt.wantCode, tt.wantMsg, diags)
		})
	}
}

func TestParseInvalidYAML(t *testing.T) {
	u, diags := Parse([]byte("types: ["), "broken.yaml")
	if u != nil {
		t.Errorf("got a universe from unparseable input")
	}
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	if diags[0].Code != diagnostics.ErrS001 {
		t.Errorf("got code %s, want %s", diags[0].Code, diagnostics.ErrS001)
	}
	if !strings.Contains(diags[0].Message, "invalid snapshot document") {
		t.Errorf("unexpected message %q", diags[0].Message)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "types.yaml")
	if err := os.WriteFile(path, []byte("types:\n  - name: Int\n    kind: primitive\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	u, diags, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("got %d diagnostics, want 0", len(diags))
	}
	if u.Len() != 1 {
		t.Errorf("got %d types, want 1", u.Len())
	}

	if _, _, err := Load(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Errorf("Load of a missing file did not fail")
	}
}
