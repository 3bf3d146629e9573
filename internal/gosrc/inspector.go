// Package gosrc derives a type universe from compiled Go packages. Struct
// types declared in the loaded packages become derived-equality units
// (Go's == compares them field by field); everything they reference is
// mapped onto the classification kinds.
package gosrc

import (
	"fmt"
	"go/token"
	"go/types"
	"os"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"

	"github.com/funvibe/veq/internal/diagnostics"
	"github.com/funvibe/veq/internal/typeref"
)

// Inspector loads Go packages and extracts their type graph.
type Inspector struct {
	// dir is the directory the load runs in ("" = current).
	dir string

	// fset provides positions for every loaded package.
	fset *token.FileSet

	// loadedPkgs caches loaded packages by import path.
	loadedPkgs map[string]*packages.Package
}

// NewInspector creates a new Inspector.
func NewInspector() *Inspector {
	return &Inspector{
		fset:       token.NewFileSet(),
		loadedPkgs: make(map[string]*packages.Package),
	}
}

// SetDir sets the working directory for package loading.
func (ins *Inspector) SetDir(dir string) {
	ins.dir = dir
}

// Load loads the Go packages matching the given patterns.
func (ins *Inspector) Load(patterns ...string) error {
	cfg := &packages.Config{
		Mode: packages.NeedName |
			packages.NeedTypes |
			packages.NeedTypesInfo |
			packages.NeedSyntax |
			packages.NeedImports |
			packages.NeedDeps,
		Dir:  ins.dir,
		Fset: ins.fset,
		Env:  append(os.Environ(), "GOWORK=off"),
	}

	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return fmt.Errorf("loading packages: %w", err)
	}
	if len(pkgs) == 0 {
		return fmt.Errorf("no packages matched %s", strings.Join(patterns, " "))
	}

	var errs []string
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			errs = append(errs, fmt.Sprintf("%s: %s", pkg.PkgPath, e.Msg))
		}
		ins.loadedPkgs[pkg.PkgPath] = pkg
	}
	if len(errs) > 0 {
		return fmt.Errorf("package errors:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Universe builds the type universe of every loaded package.
func (ins *Inspector) Universe() *typeref.Universe {
	paths := make([]string, 0, len(ins.loadedPkgs))
	for p := range ins.loadedPkgs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	tpkgs := make([]*types.Package, 0, len(paths))
	for _, p := range paths {
		if tp := ins.loadedPkgs[p].Types; tp != nil {
			tpkgs = append(tpkgs, tp)
		}
	}
	return FromPackages(ins.fset, tpkgs)
}

// FromPackages builds a type universe from already type-checked packages.
// The given packages are the ones under test: their struct declarations
// become derived-equality units, while structs they merely reference stay
// plain value composites.
func FromPackages(fset *token.FileSet, pkgs []*types.Package) *typeref.Universe {
	if fset == nil {
		fset = token.NewFileSet()
	}
	b := &refBuilder{
		fset:  fset,
		u:     typeref.NewUniverse(),
		local: make(map[*types.Package]bool),
		enums: make(map[string]bool),
		seen:  make(map[string]bool),
	}
	for _, pkg := range pkgs {
		b.local[pkg] = true
	}

	// Pass 1: find named basic types that carry package-level constants.
	// Those are flag or status enumerations, not plain primitives.
	for _, pkg := range pkgs {
		scope := pkg.Scope()
		for _, name := range scope.Names() {
			c, ok := scope.Lookup(name).(*types.Const)
			if !ok {
				continue
			}
			if named, ok := unalias(c.Type()).(*types.Named); ok {
				b.enums[canonical(named)] = true
			}
		}
	}

	// Pass 2: build every named type in declaration universe order.
	for _, pkg := range pkgs {
		scope := pkg.Scope()
		for _, name := range scope.Names() {
			tn, ok := scope.Lookup(name).(*types.TypeName)
			if !ok || tn.IsAlias() {
				continue
			}
			if named, ok := tn.Type().(*types.Named); ok {
				b.typeRef(named)
			}
		}
	}
	return b.u
}

type refBuilder struct {
	fset  *token.FileSet
	u     *typeref.Universe
	local map[*types.Package]bool
	enums map[string]bool // canonical names of const-carrying named types
	seen  map[string]bool // canonical names already being built (cycle brake)
}

// canonical is the interning key: the fully qualified type string.
func canonical(t types.Type) string {
	return types.TypeString(t, nil)
}

// display renders a type the way diagnostics should show it: bare names
// for the packages under test, package-qualified names elsewhere.
func (b *refBuilder) display(t types.Type) string {
	return types.TypeString(t, func(p *types.Package) string {
		if b.local[p] {
			return ""
		}
		return p.Name()
	})
}

func (b *refBuilder) pos(p token.Pos) diagnostics.Pos {
	if !p.IsValid() {
		return diagnostics.Pos{}
	}
	position := b.fset.Position(p)
	return diagnostics.Pos{File: position.Filename, Line: position.Line, Column: position.Column}
}

// typeRef maps a Go type onto a classification ref, interning by the
// canonical type string so cyclic graphs resolve to stable identities.
func (b *refBuilder) typeRef(t types.Type) *typeref.Ref {
	t = unalias(t)

	switch t := t.(type) {
	case *types.Basic:
		return b.basicRef(t)
	case *types.Named:
		return b.namedRef(t)
	case *types.TypeParam:
		return b.typeParamRef(t)
	}

	key := canonical(t)
	if b.seen[key] {
		r, _ := b.u.Lookup(key)
		return r
	}
	b.seen[key] = true
	r := b.u.Intern(key)
	r.Name = b.display(t)

	switch t := t.(type) {
	case *types.Pointer, *types.Chan:
		r.Kind = typeref.KindReference
	case *types.Slice, *types.Map:
		r.Kind = typeref.KindView
	case *types.Signature:
		r.Kind = typeref.KindParam
	case *types.Interface:
		if t.NumMethods() == 0 && t.NumEmbeddeds() == 0 {
			r.Kind = typeref.KindUntyped
		} else {
			r.Kind = typeref.KindParam
		}
	case *types.Array:
		// Array comparison is element-wise, so the array stands or falls
		// with its element type.
		r.Kind = typeref.KindValue
		r.Members = []typeref.Member{{Name: "elem", Type: b.typeRef(t.Elem())}}
	case *types.Struct:
		// Anonymous struct literal used as a field type.
		r.Kind = typeref.KindValue
		r.Members = b.structMembers(t)
	default:
		r.Kind = typeref.KindParam
	}
	return r
}

func (b *refBuilder) basicRef(t *types.Basic) *typeref.Ref {
	// TypeString spells the unsafe pointer as "unsafe.Pointer"; Name alone
	// would drop the package.
	key := canonical(t)
	if b.seen[key] {
		r, _ := b.u.Lookup(key)
		return r
	}
	b.seen[key] = true
	r := b.u.Intern(key)
	if t.Kind() == types.UnsafePointer {
		r.Kind = typeref.KindReference
	} else {
		r.Kind = typeref.KindPrimitive
	}
	return r
}

func (b *refBuilder) namedRef(t *types.Named) *typeref.Ref {
	key := canonical(t)
	if b.seen[key] {
		r, _ := b.u.Lookup(key)
		return r
	}
	b.seen[key] = true

	r := b.u.Intern(key)
	r.Name = b.display(t)
	r.Pos = b.pos(t.Obj().Pos())

	switch u := t.Underlying().(type) {
	case *types.Basic:
		if u.Kind() == types.UnsafePointer {
			r.Kind = typeref.KindReference
		} else if b.enums[key] {
			r.Kind = typeref.KindEnum
		} else {
			r.Kind = typeref.KindPrimitive
		}

	case *types.Struct:
		r.Equality = equalityOf(t)
		if b.isLocal(t) && !r.Equality.HasValueEquals {
			// Declared in a package under test and relying on Go's
			// field-by-field comparison: a unit to check.
			r.Kind = typeref.KindDerived
		} else {
			r.Kind = typeref.KindValue
		}
		r.Members = b.structMembers(u)

	case *types.Interface:
		if u.NumMethods() == 0 && u.NumEmbeddeds() == 0 {
			r.Kind = typeref.KindUntyped
		} else {
			r.Kind = typeref.KindParam
		}

	case *types.Slice, *types.Map:
		r.Kind = typeref.KindView

	case *types.Pointer, *types.Chan:
		r.Kind = typeref.KindReference

	case *types.Signature:
		r.Kind = typeref.KindParam

	case *types.Array:
		r.Kind = typeref.KindValue
		r.Equality = equalityOf(t)
		r.Members = []typeref.Member{{Name: "elem", Type: b.typeRef(u.Elem()), Pos: r.Pos}}

	default:
		r.Kind = typeref.KindParam
	}
	return r
}

// typeParamRef maps a generic type parameter. The parameter is provable
// only when its constraint promises a same-type equality method;
// comparable is not enough, it admits pointers.
func (b *refBuilder) typeParamRef(t *types.TypeParam) *typeref.Ref {
	key := fmt.Sprintf("%s#%d", t.Obj().Name(), t.Obj().Pos())
	if b.seen[key] {
		r, _ := b.u.Lookup(key)
		return r
	}
	b.seen[key] = true

	r := b.u.Intern(key)
	r.Name = t.Obj().Name()
	r.Kind = typeref.KindParam
	r.Pos = b.pos(t.Obj().Pos())

	if c := t.Constraint(); c != nil {
		if iface, ok := c.Underlying().(*types.Interface); ok {
			for i := 0; i < iface.NumMethods(); i++ {
				if isEqualMethod(iface.Method(i), t) {
					r.Equality = typeref.Equality{HasValueEquals: true}
					break
				}
			}
		}
	}
	return r
}

func (b *refBuilder) structMembers(s *types.Struct) []typeref.Member {
	ms := make([]typeref.Member, 0, s.NumFields())
	for i := 0; i < s.NumFields(); i++ {
		f := s.Field(i)
		ms = append(ms, typeref.Member{
			Name: f.Name(),
			Type: b.typeRef(f.Type()),
			Pos:  b.pos(f.Pos()),
		})
	}
	return ms
}

func (b *refBuilder) isLocal(t *types.Named) bool {
	return t.Obj().Pkg() != nil && b.local[t.Obj().Pkg()]
}

// equalityOf checks for an equality method declared directly on the type.
// Promoted methods from embedded fields do not count: they compare the
// embedded part, not the whole.
func equalityOf(t *types.Named) typeref.Equality {
	mset := types.NewMethodSet(types.NewPointer(t))
	for i := 0; i < mset.Len(); i++ {
		sel := mset.At(i)
		if len(sel.Index()) != 1 {
			continue
		}
		fn, ok := sel.Obj().(*types.Func)
		if !ok {
			continue
		}
		if isEqualMethod(fn, t) {
			return typeref.Equality{HasValueEquals: true}
		}
	}
	return typeref.Equality{}
}

// isEqualMethod reports whether fn is Equal/Equals taking exactly the
// narrow type (or a pointer to it) and returning bool.
func isEqualMethod(fn *types.Func, narrow types.Type) bool {
	if fn.Name() != "Equal" && fn.Name() != "Equals" {
		return false
	}
	sig, ok := fn.Type().(*types.Signature)
	if !ok || sig.Params().Len() != 1 || sig.Results().Len() != 1 {
		return false
	}
	res, ok := sig.Results().At(0).Type().(*types.Basic)
	if !ok || res.Kind() != types.Bool {
		return false
	}
	p := sig.Params().At(0).Type()
	return types.Identical(p, narrow) || types.Identical(p, types.NewPointer(narrow))
}
