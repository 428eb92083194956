package typesystem

import "github.com/funvibe/sable/internal/config"

// NormalizeUnion builds the canonical union of types: nested unions are
// flattened, Never and duplicates dropped, literals absorbed by an instance
// of their class and pending placeholders dropped when anything else
// remains. Member order is first occurrence, so the result is deterministic
// for a deterministic input order.
func NormalizeUnion(types []Type) Type {
	flat := make([]Type, 0, len(types))
	var add func(t Type)
	add = func(t Type) {
		switch t := t.(type) {
		case nil, TNever:
		case TUnion:
			for _, m := range t.Types {
				add(m)
			}
		default:
			flat = append(flat, t)
		}
	}
	for _, t := range types {
		add(t)
	}

	hasConcrete := false
	for _, t := range flat {
		if u, ok := t.(TUnknown); !ok || !u.Pending {
			hasConcrete = true
			break
		}
	}

	unique := make([]Type, 0, len(flat))
	for _, t := range flat {
		if u, ok := t.(TUnknown); ok && u.Pending && hasConcrete {
			continue
		}
		if lit, ok := t.(TLiteral); ok && containsInstanceOf(flat, lit.Class) {
			continue
		}
		dup := false
		for _, u := range unique {
			if Equal(t, u) {
				dup = true
				break
			}
		}
		if !dup {
			unique = append(unique, t)
		}
	}

	switch {
	case len(unique) == 0:
		return TNever{}
	case len(unique) == 1:
		return unique[0]
	case len(unique) > config.MaxUnionSubtypes:
		return Unknown
	}
	return TUnion{Types: unique}
}

func containsInstanceOf(types []Type, c TClass) bool {
	for _, t := range types {
		if inst, ok := t.(TInstance); ok && inst.Class.Ref == c.Ref {
			return true
		}
	}
	return false
}

// Union is NormalizeUnion over its arguments.
func Union(types ...Type) Type { return NormalizeUnion(types) }

// Members returns the members of a union, or t itself.
func Members(t Type) []Type {
	if u, ok := t.(TUnion); ok {
		return u.Types
	}
	return []Type{t}
}

// Equal reports structural equality.
func Equal(a, b Type) bool {
	return equalDepth(a, b, 0)
}

func equalDepth(a, b Type, depth int) bool {
	if depth > config.MaxTypeRecursionDepth {
		return false
	}
	switch a := a.(type) {
	case nil:
		return b == nil
	case TUnknown:
		bb, ok := b.(TUnknown)
		return ok && a.Pending == bb.Pending
	case TAny:
		_, ok := b.(TAny)
		return ok
	case TNever:
		_, ok := b.(TNever)
		return ok
	case TModule:
		bb, ok := b.(TModule)
		return ok && a.URI == bb.URI && a.Name == bb.Name
	case TClass:
		bb, ok := b.(TClass)
		return ok && classEqual(a, bb, depth)
	case TInstance:
		bb, ok := b.(TInstance)
		return ok && classEqual(a.Class, bb.Class, depth)
	case TLiteral:
		bb, ok := b.(TLiteral)
		return ok && a.Class.Ref == bb.Class.Ref && a.Value == bb.Value
	case TFunc:
		bb, ok := b.(TFunc)
		if !ok || a.Name != bb.Name || len(a.Signatures) != len(bb.Signatures) {
			return false
		}
		for i := range a.Signatures {
			if !signatureEqual(a.Signatures[i], bb.Signatures[i], depth) {
				return false
			}
		}
		return true
	case TUnion:
		bb, ok := b.(TUnion)
		if !ok || len(a.Types) != len(bb.Types) {
			return false
		}
		for _, m := range a.Types {
			found := false
			for _, n := range bb.Types {
				if equalDepth(m, n, depth+1) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case TVar:
		bb, ok := b.(TVar)
		return ok && a.ID == bb.ID
	case TAliasRef:
		bb, ok := b.(TAliasRef)
		return ok && a.Ref == bb.Ref
	}
	return false
}

func classEqual(a, b TClass, depth int) bool {
	if a.Ref != b.Ref || a.Name != b.Name || len(a.TypeArgs) != len(b.TypeArgs) {
		return false
	}
	for i := range a.TypeArgs {
		if !equalDepth(a.TypeArgs[i], b.TypeArgs[i], depth+1) {
			return false
		}
	}
	return true
}

func signatureEqual(a, b Signature, depth int) bool {
	if a.Decl != b.Decl || len(a.Params) != len(b.Params) || a.Bound != b.Bound {
		return false
	}
	for i := range a.Params {
		pa, pb := a.Params[i], b.Params[i]
		if pa.Name != pb.Name || pa.Kind != pb.Kind || pa.HasDefault != pb.HasDefault {
			return false
		}
		if !equalDepth(pa.Type, pb.Type, depth+1) {
			return false
		}
	}
	if (a.Return == nil) != (b.Return == nil) {
		return false
	}
	return a.Return == nil || equalDepth(a.Return, b.Return, depth+1)
}
