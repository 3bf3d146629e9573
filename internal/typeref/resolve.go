package typeref

// UniversalBase is the parameter type name that marks an equality method as
// targeting the maximally general base type rather than the declaring type.
const UniversalBase = "any"

// EqualsDecl is the raw description of one equality method declared on a
// type, before the capability rules are applied. The method name is kept
// for reporting; resolution looks only at the parameter list and the
// declaration flags.
type EqualsDecl struct {
	// Name is the declared method name.
	Name string

	// Params are the parameter type names, in order.
	Params []string

	// Static marks a non-instance method.
	Static bool

	// Abstract marks a method without a body.
	Abstract bool

	// Inherited marks a method not declared directly on the type, including
	// one that merely re-exposes a base virtual slot.
	Inherited bool

	// Override marks a method explicitly overriding a base virtual slot.
	Override bool
}

// ResolveEquality computes the capability flags for a type from its
// declared equality methods. This is the one place the tie-breaks live:
//
//   - a value-equals method counts only when it takes exactly one parameter
//     of the declaring type itself (or, for value composites, its nullable
//     form "T?"), is an instance method, is declared directly on the type,
//     and is not abstract;
//   - an identity override counts only when its single parameter is the
//     universal base, it is explicitly marked override, and it is declared
//     directly on the type;
//   - tuples bypass both checks entirely, only their element types matter.
func ResolveEquality(typeName string, kind Kind, decls []EqualsDecl) Equality {
	if kind == KindTuple {
		return Equality{}
	}

	var eq Equality
	for _, d := range decls {
		if len(d.Params) != 1 || d.Inherited {
			continue
		}
		param := d.Params[0]

		if param == UniversalBase {
			if d.Override {
				eq.HasIdentityOverride = true
			}
			continue
		}

		if d.Static || d.Abstract {
			continue
		}
		if param == typeName || (kind == KindValue && param == typeName+"?") {
			eq.HasValueEquals = true
		}
	}
	return eq
}
