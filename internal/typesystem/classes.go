package typesystem

import "github.com/funvibe/sable/internal/config"

// MRO returns c followed by its ancestors, depth-first and left to right,
// each ancestor specialized through the chain of type arguments. Classes
// appear once, at their first position.
func MRO(c TClass) []TClass {
	var out []TClass
	seen := map[DeclRef]bool{}
	var visit func(c TClass, depth int)
	visit = func(c TClass, depth int) {
		if depth > config.MaxTypeRecursionDepth || seen[c.Ref] {
			return
		}
		seen[c.Ref] = true
		out = append(out, c)
		s := ClassSubst(c)
		for _, b := range c.Bases {
			if len(s) > 0 {
				b = applyClass(b, s, depth)
			}
			visit(b, depth+1)
		}
	}
	visit(c, 0)
	return out
}

// FindBase returns the specialization of the ancestor identified by ref.
func FindBase(c TClass, ref DeclRef) (TClass, bool) {
	for _, b := range MRO(c) {
		if b.Ref == ref {
			return b, true
		}
	}
	return TClass{}, false
}

// IsSubclass reports whether c derives from (or is) the class ref.
func IsSubclass(c TClass, ref DeclRef) bool {
	_, ok := FindBase(c, ref)
	return ok
}
