package typesystem

import "github.com/funvibe/sable/internal/config"

// Relation decides assignability. Expand resolves alias placeholders; it
// may be nil, in which case placeholders are treated as Unknown.
type Relation struct {
	Expand func(TAliasRef) Type
}

// Assignable reports whether a value of type src may be stored where dst is
// expected. widenings counts implicit promotions (int to float) used on
// the way, which overload resolution ranks below exact matches.
func (r Relation) Assignable(dst, src Type) (ok bool, widenings int) {
	return r.assignable(dst, src, 0)
}

func (r Relation) expand(t TAliasRef, depth int) Type {
	if r.Expand == nil || depth > config.MaxTypeRecursionDepth {
		return Unknown
	}
	return r.Expand(t)
}

func (r Relation) assignable(dst, src Type, depth int) (bool, int) {
	if depth > config.MaxTypeRecursionDepth {
		return true, 0
	}
	if dst == nil || src == nil {
		return true, 0
	}
	if da, ok := dst.(TAliasRef); ok {
		if sa, ok := src.(TAliasRef); ok && da.Ref == sa.Ref {
			return true, 0
		}
	}

	switch s := src.(type) {
	case TAny, TUnknown, TNever:
		return true, 0
	case TAliasRef:
		return r.assignable(dst, r.expand(s, depth), depth+1)
	case TUnion:
		total := 0
		for _, m := range s.Types {
			ok, w := r.assignable(dst, m, depth+1)
			if !ok {
				return false, 0
			}
			total += w
		}
		return true, total
	}

	switch d := dst.(type) {
	case TAny, TUnknown:
		return true, 0
	case TNever:
		return false, 0
	case TAliasRef:
		return r.assignable(r.expand(d, depth), src, depth+1)
	case TUnion:
		best, found := 0, false
		for _, m := range d.Types {
			if ok, w := r.assignable(m, src, depth+1); ok && (!found || w < best) {
				best, found = w, true
			}
		}
		return found, best
	case TVar:
		if sv, ok := src.(TVar); ok && sv.ID == d.ID {
			return true, 0
		}
		if d.Bound != nil {
			return r.assignable(d.Bound, src, depth+1)
		}
		return true, 0
	case TModule:
		sm, ok := src.(TModule)
		return ok && sm.URI == d.URI, 0
	case TClass:
		sc, ok := src.(TClass)
		if !ok {
			return false, 0
		}
		return IsSubclass(sc, d.Ref), 0
	case TFunc:
		return r.callableAssignable(d, src, depth)
	case TLiteral:
		sl, ok := src.(TLiteral)
		return ok && sl.Class.Ref == d.Class.Ref && sl.Value == d.Value, 0
	case TInstance:
		return r.instanceAssignable(d, src, depth)
	}
	return false, 0
}

func (r Relation) instanceAssignable(d TInstance, src Type, depth int) (bool, int) {
	if IsBuiltin(d.Class, "object") {
		return true, 0
	}
	if sv, ok := src.(TVar); ok {
		if sv.Bound == nil {
			return false, 0
		}
		return r.assignable(d, sv.Bound, depth+1)
	}
	if IsBuiltin(d.Class, "type") {
		_, ok := src.(TClass)
		return ok, 0
	}
	sc, ok := ClassOf(src)
	if !ok {
		return false, 0
	}

	if base, ok := FindBase(sc, d.Class.Ref); ok {
		return r.typeArgsAssignable(d.Class, base, depth)
	}
	if IsBuiltin(d.Class, "float") && isIntClass(sc) {
		return true, 1
	}
	return false, 0
}

func isIntClass(c TClass) bool {
	for _, b := range MRO(c) {
		if IsBuiltin(b, "int") {
			return true
		}
	}
	return false
}

// typeArgsAssignable compares the arguments of dst with the arguments of
// src's matching base. Tuples are covariant and length-checked; everything
// else is invariant.
func (r Relation) typeArgsAssignable(dst, src TClass, depth int) (bool, int) {
	if len(dst.TypeArgs) == 0 || len(src.TypeArgs) == 0 {
		return true, 0
	}
	if IsBuiltin(dst, "tuple") {
		if len(dst.TypeArgs) != len(src.TypeArgs) {
			return false, 0
		}
		total := 0
		for i := range dst.TypeArgs {
			ok, w := r.assignable(dst.TypeArgs[i], src.TypeArgs[i], depth+1)
			if !ok {
				return false, 0
			}
			total += w
		}
		return true, total
	}
	for i := range dst.TypeArgs {
		if i >= len(src.TypeArgs) {
			break
		}
		da, sa := dst.TypeArgs[i], src.TypeArgs[i]
		if isGradual(da) || isGradual(sa) {
			continue
		}
		if ok, w := r.assignable(da, sa, depth+1); !ok || w > 0 {
			return false, 0
		}
		if ok, w := r.assignable(sa, da, depth+1); !ok || w > 0 {
			return false, 0
		}
	}
	return true, 0
}

func isGradual(t Type) bool {
	switch t.(type) {
	case TAny, TUnknown:
		return true
	}
	return false
}

func (r Relation) callableAssignable(d TFunc, src Type, depth int) (bool, int) {
	switch s := src.(type) {
	case TClass:
		return true, 0
	case TFunc:
		if len(d.Signatures) != 1 {
			return true, 0
		}
		want := d.Signatures[0]
		for _, sig := range s.Signatures {
			if r.signatureAssignable(want, sig, depth) {
				return true, 0
			}
		}
		return false, 0
	}
	return false, 0
}

func (r Relation) signatureAssignable(want, have Signature, depth int) bool {
	variadic := false
	var positional []Param
	for _, p := range have.Params {
		switch p.Kind {
		case ParamVarArgs, ParamKwArgs:
			variadic = true
		default:
			positional = append(positional, p)
		}
	}
	if !variadic && len(want.Params) > len(positional) {
		return false
	}
	for i, wp := range want.Params {
		if i >= len(positional) {
			break
		}
		if ok, _ := r.assignable(positional[i].Type, wp.Type, depth+1); !ok {
			return false
		}
	}
	for i := len(want.Params); i < len(positional); i++ {
		if !positional[i].HasDefault {
			return false
		}
	}
	if want.Return == nil || have.Return == nil {
		return true
	}
	ok, _ := r.assignable(want.Return, have.Return, depth+1)
	return ok
}
