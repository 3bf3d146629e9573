// Package protosrc derives a type universe from protobuf definitions. The
// question it models: if a message is generated as a plain Go struct and
// equality is derived field by field, which fields break value semantics?
// Message-typed fields are generated as pointers and therefore compare by
// identity; repeated and map fields share backing storage; bytes is a
// mutable buffer.
package protosrc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/funvibe/veq/internal/diagnostics"
	"github.com/funvibe/veq/internal/typeref"
)

// Global registry for loaded proto descriptors
var (
	registry   = make(map[string]*desc.FileDescriptor)
	registryMu sync.RWMutex
)

const anyFullName = "google.protobuf.Any"

// wrapperElem maps the well-known wrapper messages to the scalar they
// carry. A wrapper field is the proto idiom for a nullable scalar.
var wrapperElem = map[string]string{
	"google.protobuf.DoubleValue": "double",
	"google.protobuf.FloatValue":  "float",
	"google.protobuf.Int64Value":  "int64",
	"google.protobuf.UInt64Value": "uint64",
	"google.protobuf.Int32Value":  "int32",
	"google.protobuf.UInt32Value": "uint32",
	"google.protobuf.BoolValue":   "bool",
	"google.protobuf.StringValue": "string",
	"google.protobuf.BytesValue":  "bytes",
}

// Load parses the given proto files and builds a universe in which every
// message they declare is a derived-equality unit. Parsed descriptors are
// kept in the package registry for later lookup.
func Load(importPaths []string, files ...string) (*typeref.Universe, error) {
	parser := protoparse.Parser{
		ImportPaths:           importPaths,
		IncludeSourceCodeInfo: true,
		// Resolve google/protobuf/*.proto from the compiled-in
		// descriptors when they are not on disk.
		LookupImport: desc.LoadFileDescriptor,
	}
	if len(importPaths) == 0 {
		parser.ImportPaths = []string{"."}
	}
	return parse(parser, files...)
}

// LoadSources parses in-memory proto sources keyed by file name.
func LoadSources(sources map[string]string, files ...string) (*typeref.Universe, error) {
	parser := protoparse.Parser{
		Accessor:              protoparse.FileContentsFromMap(sources),
		IncludeSourceCodeInfo: true,
		LookupImport:          desc.LoadFileDescriptor,
	}
	return parse(parser, files...)
}

func parse(parser protoparse.Parser, files ...string) (*typeref.Universe, error) {
	fds, err := parser.ParseFiles(files...)
	if err != nil {
		return nil, fmt.Errorf("parsing proto: %w", err)
	}

	registryMu.Lock()
	for _, fd := range fds {
		registry[fd.GetName()] = fd
	}
	registryMu.Unlock()

	b := &refBuilder{u: typeref.NewUniverse()}
	for _, fd := range fds {
		for _, md := range fd.GetMessageTypes() {
			b.message(md)
		}
	}
	return b.u, nil
}

// FindMessage looks a message up by fully qualified name across every
// file loaded so far.
func FindMessage(name string) *desc.MessageDescriptor {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, fd := range registry {
		if md := fd.FindMessage(name); md != nil {
			return md
		}
	}
	return nil
}

type refBuilder struct {
	u *typeref.Universe
}

func (b *refBuilder) message(md *desc.MessageDescriptor) {
	if md.IsMapEntry() {
		return
	}

	r := b.u.Intern(md.GetFullyQualifiedName())
	r.Kind = typeref.KindDerived
	r.Pos = position(md.GetFile(), md.GetSourceInfo())

	ms := make([]typeref.Member, 0, len(md.GetFields()))
	for _, f := range md.GetFields() {
		ms = append(ms, typeref.Member{
			Name: f.GetName(),
			Type: b.fieldRef(f),
			Pos:  position(md.GetFile(), f.GetSourceInfo()),
		})
	}
	r.Members = ms

	for _, nested := range md.GetNestedMessageTypes() {
		b.message(nested)
	}
}

func (b *refBuilder) fieldRef(f *desc.FieldDescriptor) *typeref.Ref {
	if f.IsMap() {
		entry := f.GetMessageType()
		name := fmt.Sprintf("map<%s, %s>",
			plainName(entry.GetFields()[0]), plainName(entry.GetFields()[1]))
		r := b.u.Intern(name)
		r.Kind = typeref.KindView
		return r
	}
	if f.IsRepeated() {
		inner := b.singleRef(f)
		r := b.u.Intern("repeated " + inner.Name)
		r.Kind = typeref.KindView
		return r
	}

	inner := b.singleRef(f)
	if f.AsFieldDescriptorProto().GetProto3Optional() {
		r := b.u.Intern("optional " + inner.Name)
		r.Name = "optional " + inner.Name
		r.Kind = typeref.KindValue
		r.Nullable = true
		r.Elem = inner
		return r
	}
	return inner
}

// singleRef maps one non-repeated field occurrence.
func (b *refBuilder) singleRef(f *desc.FieldDescriptor) *typeref.Ref {
	switch f.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, descriptorpb.FieldDescriptorProto_TYPE_GROUP:
		mt := f.GetMessageType()
		fqn := mt.GetFullyQualifiedName()

		if fqn == anyFullName {
			r := b.u.Intern(fqn)
			r.Kind = typeref.KindUntyped
			return r
		}
		if elem, ok := wrapperElem[fqn]; ok {
			r := b.u.Intern(fqn)
			r.Kind = typeref.KindValue
			r.Nullable = true
			r.Elem = b.scalarRef(elem)
			return r
		}

		// The generated field is a pointer to the message struct, so it
		// compares by identity. Keyed apart from the message's own unit.
		r := b.u.Intern("*" + fqn)
		r.Name = fqn
		r.Kind = typeref.KindReference
		return r

	case descriptorpb.FieldDescriptorProto_TYPE_ENUM:
		r := b.u.Intern(f.GetEnumType().GetFullyQualifiedName())
		r.Kind = typeref.KindEnum
		return r

	default:
		return b.scalarRef(plainName(f))
	}
}

func (b *refBuilder) scalarRef(name string) *typeref.Ref {
	r := b.u.Intern(name)
	if name == "bytes" {
		r.Kind = typeref.KindBuffer
	} else {
		r.Kind = typeref.KindPrimitive
	}
	return r
}

// plainName spells a field's type the way the proto source does.
func plainName(f *desc.FieldDescriptor) string {
	switch f.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, descriptorpb.FieldDescriptorProto_TYPE_GROUP:
		return f.GetMessageType().GetFullyQualifiedName()
	case descriptorpb.FieldDescriptorProto_TYPE_ENUM:
		return f.GetEnumType().GetFullyQualifiedName()
	default:
		return strings.ToLower(strings.TrimPrefix(f.GetType().String(), "TYPE_"))
	}
}

// position converts SourceCodeInfo spans (0-based) to 1-based positions.
func position(fd *desc.FileDescriptor, loc *descriptorpb.SourceCodeInfo_Location) diagnostics.Pos {
	if loc == nil || len(loc.GetSpan()) < 2 {
		return diagnostics.Pos{File: fd.GetName()}
	}
	span := loc.GetSpan()
	return diagnostics.Pos{
		File:   fd.GetName(),
		Line:   int(span[0]) + 1,
		Column: int(span[1]) + 1,
	}
}
