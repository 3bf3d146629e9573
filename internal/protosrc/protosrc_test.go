package protosrc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/funvibe/veq/internal/analyzer"
	"github.com/funvibe/veq/internal/classify"
	"github.com/funvibe/veq/internal/typeref"
)

const wrappersProto = `syntax = "proto3";
package google.protobuf;
message StringValue { string value = 1; }
message BytesValue { bytes value = 1; }
`

const anyProto = `syntax = "proto3";
package google.protobuf;
message Any {
  string type_url = 1;
  bytes value = 2;
}
`

const shopProto = `syntax = "proto3";
package shop;

import "google/protobuf/wrappers.proto";
import "google/protobuf/any.proto";

enum Status {
  STATUS_UNSPECIFIED = 0;
  STATUS_OPEN = 1;
}

message Order {
  int32 id = 1;
  string label = 2;
  Status status = 3;
  bytes payload = 4;
  repeated string tags = 5;
  map<string, int64> totals = 6;
  Customer customer = 7;
  google.protobuf.StringValue note = 8;
  google.protobuf.Any extra = 9;
  optional int32 priority = 10;
}

message Customer {
  string name = 1;
  message Address { string city = 1; }
  Address address = 2;
}
`

func shopSources() map[string]string {
	return map[string]string{
		"shop.proto":                     shopProto,
		"google/protobuf/wrappers.proto": wrappersProto,
		"google/protobuf/any.proto":      anyProto,
	}
}

func loadShop(t *testing.T) *typeref.Universe {
	t.Helper()
	u, err := LoadSources(shopSources(), "shop.proto")
	if err != nil {
		t.Fatalf("LoadSources() error: %v", err)
	}
	return u
}

func memberRef(t *testing.T, u *typeref.Universe, msg, field string) *typeref.Ref {
	t.Helper()
	m, ok := u.Lookup(msg)
	if !ok {
		t.Fatalf("message %q not in universe", msg)
	}
	for _, mem := range m.Members {
		if mem.Name == field {
			return mem.Type
		}
	}
	t.Fatalf("field %s.%s not found", msg, field)
	return nil
}

func TestLoadSourcesUniverse(t *testing.T) {
	u := loadShop(t)

	for _, name := range []string{"shop.Order", "shop.Customer", "shop.Customer.Address"} {
		r, ok := u.Lookup(name)
		if !ok {
			t.Fatalf("unit %q not in universe", name)
		}
		if r.Kind != typeref.KindDerived {
			t.Errorf("%s kind = %v, want %v", name, r.Kind, typeref.KindDerived)
		}
	}

	order, _ := u.Lookup("shop.Order")
	if len(order.Members) != 10 {
		t.Fatalf("Order members = %d, want 10", len(order.Members))
	}

	tests := []struct {
		field    string
		wantName string
		wantKind typeref.Kind
	}{
		{"id", "int32", typeref.KindPrimitive},
		{"label", "string", typeref.KindPrimitive},
		{"status", "shop.Status", typeref.KindEnum},
		{"payload", "bytes", typeref.KindBuffer},
		{"tags", "repeated string", typeref.KindView},
		{"totals", "map<string, int64>", typeref.KindView},
		{"customer", "shop.Customer", typeref.KindReference},
		{"extra", "google.protobuf.Any", typeref.KindUntyped},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			r := memberRef(t, u, "shop.Order", tt.field)
			if r.Name != tt.wantName {
				t.Errorf("name = %q, want %q", r.Name, tt.wantName)
			}
			if r.Kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", r.Kind, tt.wantKind)
			}
		})
	}

	note := memberRef(t, u, "shop.Order", "note")
	if !note.Nullable || note.Elem == nil || note.Elem.Kind != typeref.KindPrimitive {
		t.Errorf("note = %+v, want nullable wrapper of a primitive", note)
	}
	priority := memberRef(t, u, "shop.Order", "priority")
	if !priority.Nullable || priority.Elem == nil || priority.Elem.Name != "int32" {
		t.Errorf("priority = %+v, want nullable wrapper of int32", priority)
	}

	// The field ref and the message's own unit must stay distinct: one is
	// a pointer, the other the struct under test.
	customer := memberRef(t, u, "shop.Order", "customer")
	unit, _ := u.Lookup("shop.Customer")
	if customer == unit {
		t.Error("message field ref aliased to the unit ref")
	}
}

func TestLoadSourcesFindings(t *testing.T) {
	u := loadShop(t)

	findings := analyzer.New().Check(u)
	got := make(map[string]bool)
	for _, f := range findings {
		got[f.Unit+"."+f.Member] = true
	}

	want := []string{
		"shop.Order.payload",
		"shop.Order.tags",
		"shop.Order.totals",
		"shop.Order.customer",
		"shop.Order.extra",
		"shop.Customer.address",
	}
	if len(findings) != len(want) {
		t.Fatalf("findings = %d, want %d: %v", len(findings), len(want), got)
	}
	for _, key := range want {
		if !got[key] {
			t.Errorf("missing finding %s", key)
		}
	}
}

func TestLoadSourcesWrapperOfBytes(t *testing.T) {
	sources := map[string]string{
		"blob.proto": `syntax = "proto3";
package blob;
import "google/protobuf/wrappers.proto";
message Blob { google.protobuf.BytesValue data = 1; }
`,
		"google/protobuf/wrappers.proto": wrappersProto,
	}

	u, err := LoadSources(sources, "blob.proto")
	if err != nil {
		t.Fatalf("LoadSources() error: %v", err)
	}

	data := memberRef(t, u, "blob.Blob", "data")
	if !data.Nullable || data.Elem == nil || data.Elem.Kind != typeref.KindBuffer {
		t.Fatalf("data = %+v, want nullable wrapper of a buffer", data)
	}
	if v := classify.Classify(data); v.Status != classify.StatusFailed {
		t.Errorf("classified %v, want %v (unwraps to a buffer)", v.Status, classify.StatusFailed)
	}
}

func TestLoadSourcesPositions(t *testing.T) {
	u := loadShop(t)

	order, _ := u.Lookup("shop.Order")
	if order.Pos.File != "shop.proto" || order.Pos.Line == 0 {
		t.Errorf("Order pos = %+v, want a position in shop.proto", order.Pos)
	}
	if order.Members[0].Pos.Line <= order.Pos.Line {
		t.Errorf("first field at line %d, not after message at line %d",
			order.Members[0].Pos.Line, order.Pos.Line)
	}
	for i := 1; i < len(order.Members); i++ {
		if order.Members[i].Pos.Line <= order.Members[i-1].Pos.Line {
			t.Errorf("field %s at line %d, not after %s at line %d",
				order.Members[i].Name, order.Members[i].Pos.Line,
				order.Members[i-1].Name, order.Members[i-1].Pos.Line)
		}
	}
}

func TestLoadFilesystem(t *testing.T) {
	dir := t.TempDir()
	src := `syntax = "proto3";
package mini;
message Thing { repeated int32 values = 1; }
`
	if err := os.WriteFile(filepath.Join(dir, "mini.proto"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	u, err := Load([]string{dir}, "mini.proto")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if _, ok := u.Lookup("mini.Thing"); !ok {
		t.Error("mini.Thing not in universe")
	}
	if FindMessage("mini.Thing") == nil {
		t.Error("mini.Thing not in registry after Load")
	}

	findings := analyzer.New().Check(u)
	if len(findings) != 1 || findings[0].Member != "values" {
		t.Errorf("findings = %+v, want a single finding on values", findings)
	}
}

func TestLoadSourcesParseError(t *testing.T) {
	_, err := LoadSources(map[string]string{"bad.proto": "message {"}, "bad.proto")
	if err == nil {
		t.Fatal("expected a parse error")
	}
}
