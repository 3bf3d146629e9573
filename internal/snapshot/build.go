package snapshot

import (
	"github.com/funvibe/veq/internal/diagnostics"
	"github.com/funvibe/veq/internal/typeref"
)

// builder carries the state of one document build.
type builder struct {
	path  string
	u     *typeref.Universe
	diags []*diagnostics.DiagnosticError
}

// build links a decoded document into a type universe in two passes:
// declare every name first, then fill shapes, so cyclic graphs need no
// forward-declaration syntax.
func build(doc *Document, path string) (*typeref.Universe, []*diagnostics.DiagnosticError) {
	b := &builder{path: path, u: typeref.NewUniverse()}

	firstAt := make(map[string]int)
	for i := range doc.Types {
		d := &doc.Types[i]
		if d.Name == "" {
			b.errorf(d.Line, d.Column, diagnostics.ErrS001, "types[%d]: name is required", i)
			continue
		}
		if j, dup := firstAt[d.Name]; dup {
			b.errorf(d.Line, d.Column, diagnostics.ErrS001, "type %q already declared at line %d", d.Name, doc.Types[j].Line)
			continue
		}
		firstAt[d.Name] = i
		ref := b.u.Intern(d.Name)
		ref.Pos = b.pos(d.Line, d.Column)
	}

	for i := range doc.Types {
		d := &doc.Types[i]
		if d.Name == "" || firstAt[d.Name] != i {
			continue // already reported in pass 1
		}
		b.buildType(d)
	}

	return b.u, b.diags
}

func (b *builder) buildType(d *TypeDecl) {
	ref, _ := b.u.Lookup(d.Name)

	if d.Kind == "nullable" {
		b.buildNullable(d, ref)
		return
	}

	kind, ok := typeref.ParseKind(d.Kind)
	if !ok {
		if d.Kind == "" {
			b.errorf(d.Line, d.Column, diagnostics.ErrS001, "type %q: kind is required", d.Name)
		} else {
			b.errorf(d.Line, d.Column, diagnostics.ErrS001, "type %q: unknown kind %q", d.Name, d.Kind)
		}
		return
	}
	ref.Kind = kind

	if d.Of != "" {
		b.errorf(d.Line, d.Column, diagnostics.ErrS001, "type %q: of is only valid for kind nullable", d.Name)
	}

	switch kind {
	case typeref.KindTuple:
		if d.Members != nil {
			b.errorf(d.Line, d.Column, diagnostics.ErrS001, "type %q: tuples declare elements, not members", d.Name)
		}
		elems := make([]*typeref.Ref, 0, len(d.Elements))
		for _, ex := range d.Elements {
			if r := b.resolveExpr(d.Name, ex); r != nil {
				elems = append(elems, r)
			}
		}
		ref.Elements = elems

	case typeref.KindValue, typeref.KindDerived, typeref.KindReference:
		if d.Elements != nil {
			b.errorf(d.Line, d.Column, diagnostics.ErrS001, "type %q: elements are only valid for tuples", d.Name)
		}
		// An omitted members key means the enumeration is unavailable;
		// an explicit empty list means zero declared members. Keep the
		// nil/empty distinction intact.
		if d.Members != nil {
			ms := make([]typeref.Member, 0, len(d.Members))
			for j, m := range d.Members {
				if m.Name == "" {
					b.errorf(m.Line, m.Column, diagnostics.ErrS001, "type %q: members[%d]: name is required", d.Name, j)
					continue
				}
				if m.Type.isZero() {
					b.errorf(m.Line, m.Column, diagnostics.ErrS001, "type %q: member %q: type is required", d.Name, m.Name)
					continue
				}
				ms = append(ms, typeref.Member{
					Name: m.Name,
					Type: b.resolveExpr(d.Name, m.Type),
					Pos:  b.pos(m.Line, m.Column),
				})
			}
			ref.Members = ms
		}

	default:
		if d.Members != nil || d.Elements != nil {
			b.errorf(d.Line, d.Column, diagnostics.ErrS001, "type %q: kind %q does not declare members or elements", d.Name, d.Kind)
		}
	}

	if len(d.Equals) > 0 {
		if kind == typeref.KindTuple {
			b.errorf(d.Line, d.Column, diagnostics.ErrS001, "type %q: tuples do not declare equality methods", d.Name)
			return
		}
		decls := make([]typeref.EqualsDecl, len(d.Equals))
		for i, e := range d.Equals {
			decls[i] = typeref.EqualsDecl{
				Name:      e.Name,
				Params:    e.Params,
				Static:    e.Static,
				Abstract:  e.Abstract,
				Inherited: e.Inherited,
				Override:  e.Override,
			}
		}
		ref.Equality = typeref.ResolveEquality(d.Name, kind, decls)
	}
}

func (b *builder) buildNullable(d *TypeDecl, ref *typeref.Ref) {
	if d.Of == "" {
		b.errorf(d.Line, d.Column, diagnostics.ErrS001, "type %q: kind nullable requires of", d.Name)
		return
	}
	if d.Elements != nil || d.Members != nil || len(d.Equals) > 0 {
		b.errorf(d.Line, d.Column, diagnostics.ErrS001, "type %q: nullable declarations carry only of", d.Name)
	}
	elem, ok := b.u.Lookup(d.Of)
	if !ok {
		b.errorf(d.Line, d.Column, diagnostics.ErrS002, "type %q references undeclared type %q", d.Name, d.Of)
		return
	}
	// The wrapper's own kind is never consulted: the classifier unwraps
	// nullable refs before any kind rule applies.
	ref.Kind = typeref.KindValue
	ref.Nullable = true
	ref.Elem = elem
}

// resolveExpr materializes a member or element type expression. Named
// expressions must resolve inside the universe; inline tuple and nullable
// forms produce anonymous refs.
func (b *builder) resolveExpr(owner string, e TypeExpr) *typeref.Ref {
	switch {
	case e.Named != "":
		r, ok := b.u.Lookup(e.Named)
		if !ok {
			b.errorf(e.Line, e.Column, diagnostics.ErrS002, "type %q references undeclared type %q", owner, e.Named)
			return nil
		}
		return r

	case e.Tuple != nil:
		elems := make([]*typeref.Ref, 0, len(e.Tuple))
		for _, sub := range e.Tuple {
			if r := b.resolveExpr(owner, sub); r != nil {
				elems = append(elems, r)
			}
		}
		return &typeref.Ref{Kind: typeref.KindTuple, Elements: elems}

	case e.Nullable != nil:
		return &typeref.Ref{
			Kind:     typeref.KindValue,
			Nullable: true,
			Elem:     b.resolveExpr(owner, *e.Nullable),
		}

	default:
		b.errorf(e.Line, e.Column, diagnostics.ErrS001, "type %q: member type is required", owner)
		return nil
	}
}

func (b *builder) errorf(line, col int, code diagnostics.Code, format string, args ...interface{}) {
	b.diags = append(b.diags, diagnostics.NewError(code, b.pos(line, col), format, args...))
}

func (b *builder) pos(line, col int) diagnostics.Pos {
	return diagnostics.Pos{File: b.path, Line: line, Column: col}
}
