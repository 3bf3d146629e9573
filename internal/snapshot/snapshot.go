// Package snapshot loads declarative type-graph documents: a YAML
// description of a type universe that can be checked without loading any
// compiler. Snapshots serve as test fixtures, as the wire payload of the
// gRPC facade, and as a way to review type contracts outside their source
// language.
//
// A document is a single `types:` list; declaration order is preserved and
// drives traversal order. Member types are referenced by name, or written
// inline as `{tuple: [...]}` / `{nullable: T}` mappings.
package snapshot

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/veq/internal/diagnostics"
	"github.com/funvibe/veq/internal/typeref"
)

// Document is the top-level snapshot structure.
type Document struct {
	// Types lists every named type in the universe, in declaration order.
	Types []TypeDecl `yaml:"types"`
}

// TypeDecl declares one named type.
type TypeDecl struct {
	// Name is the unique type name.
	Name string `yaml:"name"`

	// Kind is one of the classification kinds, or the loader-level marker
	// "nullable" (which requires Of and produces a nullable wrapper).
	Kind string `yaml:"kind"`

	// Of names the wrapped type for kind "nullable".
	Of string `yaml:"of,omitempty"`

	// Elements are the tuple element types. Only valid for kind "tuple".
	Elements []TypeExpr `yaml:"elements,omitempty"`

	// Members are the declared fields. Only valid for composite kinds
	// (value, derived, reference).
	Members []MemberDecl `yaml:"members,omitempty"`

	// Equals describes the equality methods declared directly on the type.
	Equals []EqualsDecl `yaml:"equals,omitempty"`

	// Line and Column locate the declaration in the document.
	Line   int `yaml:"-"`
	Column int `yaml:"-"`
}

// UnmarshalYAML decodes the declaration and records its position.
func (d *TypeDecl) UnmarshalYAML(node *yaml.Node) error {
	type plain TypeDecl
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*d = TypeDecl(p)
	d.Line = node.Line
	d.Column = node.Column
	return nil
}

// MemberDecl declares one field of a composite type.
type MemberDecl struct {
	// Name is the field name.
	Name string `yaml:"name"`

	// Type references the field's type by name or inline expression.
	Type TypeExpr `yaml:"type"`

	// Line and Column locate the member in the document.
	Line   int `yaml:"-"`
	Column int `yaml:"-"`
}

// UnmarshalYAML decodes the member and records its position.
func (m *MemberDecl) UnmarshalYAML(node *yaml.Node) error {
	type plain MemberDecl
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*m = MemberDecl(p)
	m.Line = node.Line
	m.Column = node.Column
	return nil
}

// EqualsDecl describes one declared equality method. The fields mirror
// typeref.EqualsDecl; resolution happens through the shared tie-break table.
type EqualsDecl struct {
	// Name is the method name (recorded for reporting only).
	Name string `yaml:"name,omitempty"`

	// Params are the parameter type names. The universal base is "any".
	Params []string `yaml:"params"`

	// Static marks a non-instance method.
	Static bool `yaml:"static,omitempty"`

	// Abstract marks a method without a body.
	Abstract bool `yaml:"abstract,omitempty"`

	// Inherited marks a method not declared directly on the type.
	Inherited bool `yaml:"inherited,omitempty"`

	// Override marks an explicit override of a base virtual slot.
	Override bool `yaml:"override,omitempty"`
}

// TypeExpr is a member or element type reference: a plain scalar naming a
// declared type, or an inline `{tuple: [...]}` / `{nullable: T}` mapping.
// Inline forms nest.
type TypeExpr struct {
	// Named is the referenced type name for the scalar form.
	Named string

	// Tuple holds the element expressions for the inline tuple form.
	Tuple []TypeExpr

	// Nullable holds the wrapped expression for the inline wrapper form.
	Nullable *TypeExpr

	// Line and Column locate the expression in the document.
	Line   int
	Column int
}

// UnmarshalYAML accepts either a scalar type name or a single-key mapping
// with key "tuple" or "nullable".
func (e *TypeExpr) UnmarshalYAML(node *yaml.Node) error {
	e.Line = node.Line
	e.Column = node.Column

	switch node.Kind {
	case yaml.ScalarNode:
		var name string
		if err := node.Decode(&name); err != nil {
			return err
		}
		e.Named = name
		return nil

	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: inline type must have exactly one key (tuple or nullable)", node.Line)
		}
		key := node.Content[0].Value
		val := node.Content[1]
		switch key {
		case "tuple":
			var elems []TypeExpr
			if err := val.Decode(&elems); err != nil {
				return err
			}
			e.Tuple = elems
			return nil
		case "nullable":
			var inner TypeExpr
			if err := val.Decode(&inner); err != nil {
				return err
			}
			e.Nullable = &inner
			return nil
		default:
			return fmt.Errorf("line %d: unknown inline type key %q (want tuple or nullable)", node.Line, key)
		}

	default:
		return fmt.Errorf("line %d: type must be a name or an inline tuple/nullable mapping", node.Line)
	}
}

// isZero reports whether the expression was left empty.
func (e TypeExpr) isZero() bool {
	return e.Named == "" && e.Tuple == nil && e.Nullable == nil
}

// Load reads and builds a snapshot file. The returned error covers I/O
// only; document problems come back as positioned diagnostics.
func Load(path string) (*typeref.Universe, []*diagnostics.DiagnosticError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	u, diags := Parse(data, path)
	return u, diags, nil
}

// Parse decodes a snapshot document and builds its type universe. The path
// argument is used for diagnostic positions only. A YAML-level failure
// yields a nil universe and a single document diagnostic; validation
// failures yield every finding at once.
func Parse(data []byte, path string) (*typeref.Universe, []*diagnostics.DiagnosticError) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		d := diagnostics.NewError(diagnostics.ErrS001, diagnostics.Pos{File: path}, "invalid snapshot document: %v", err)
		return nil, []*diagnostics.DiagnosticError{d}
	}
	return build(&doc, path)
}
