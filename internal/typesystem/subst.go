package typesystem

import "github.com/funvibe/sable/internal/config"

// Subst maps type variable IDs to their replacements.
type Subst map[string]Type

// Compose returns a Subst applying s first, then other.
func (s Subst) Compose(other Subst) Subst {
	if len(s) == 0 {
		return other
	}
	if len(other) == 0 {
		return s
	}
	out := make(Subst, len(s)+len(other))
	for k, v := range s {
		out[k] = Apply(v, other)
	}
	for k, v := range other {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// Apply substitutes type variables in t.
func Apply(t Type, s Subst) Type {
	return applyDepth(t, s, 0)
}

func applyDepth(t Type, s Subst, depth int) Type {
	if len(s) == 0 || t == nil {
		return t
	}
	if depth > config.MaxTypeRecursionDepth {
		return Unknown
	}
	switch t := t.(type) {
	case TVar:
		if r, ok := s[t.ID]; ok {
			if rv, ok := r.(TVar); ok && rv.ID == t.ID {
				return t
			}
			return r
		}
		return t
	case TClass:
		return applyClass(t, s, depth)
	case TInstance:
		return TInstance{Class: applyClass(t.Class, s, depth)}
	case TFunc:
		sigs := make([]Signature, len(t.Signatures))
		for i, sig := range t.Signatures {
			sigs[i] = applySignature(sig, s, depth)
		}
		return TFunc{Name: t.Name, Signatures: sigs}
	case TUnion:
		members := make([]Type, len(t.Types))
		for i, m := range t.Types {
			members[i] = applyDepth(m, s, depth+1)
		}
		return NormalizeUnion(members)
	}
	return t
}

func applyClass(c TClass, s Subst, depth int) TClass {
	if len(c.TypeArgs) == 0 {
		return c
	}
	args := make([]Type, len(c.TypeArgs))
	for i, a := range c.TypeArgs {
		args[i] = applyDepth(a, s, depth+1)
	}
	c.TypeArgs = args
	return c
}

func applySignature(sig Signature, s Subst, depth int) Signature {
	// Type parameters of the signature itself are bound, not free.
	if len(sig.TypeParams) > 0 {
		filtered := make(Subst, len(s))
		for k, v := range s {
			filtered[k] = v
		}
		for _, tp := range sig.TypeParams {
			delete(filtered, tp.ID)
		}
		s = filtered
	}
	params := make([]Param, len(sig.Params))
	for i, p := range sig.Params {
		p.Type = applyDepth(p.Type, s, depth+1)
		params[i] = p
	}
	sig.Params = params
	if sig.Return != nil {
		sig.Return = applyDepth(sig.Return, s, depth+1)
	} else {
		sig.Subst = sig.Subst.Compose(s)
	}
	return sig
}

// ClassSubst maps c's type parameters to its type arguments; missing
// arguments map to Unknown.
func ClassSubst(c TClass) Subst {
	if len(c.Params) == 0 {
		return nil
	}
	s := make(Subst, len(c.Params))
	for i, p := range c.Params {
		if i < len(c.TypeArgs) {
			s[p.ID] = c.TypeArgs[i]
		} else {
			s[p.ID] = Unknown
		}
	}
	return s
}

func freeVars(t Type) []TVar {
	var out []TVar
	seen := map[string]bool{}
	var walk func(t Type, depth int)
	walk = func(t Type, depth int) {
		if t == nil || depth > config.MaxTypeRecursionDepth {
			return
		}
		switch t := t.(type) {
		case TVar:
			if !seen[t.ID] {
				seen[t.ID] = true
				out = append(out, t)
			}
		case TClass:
			for _, a := range t.TypeArgs {
				walk(a, depth+1)
			}
		case TInstance:
			walk(t.Class, depth+1)
		case TFunc:
			for _, sig := range t.Signatures {
				bound := map[string]bool{}
				for _, tp := range sig.TypeParams {
					bound[tp.ID] = true
				}
				for _, p := range sig.Params {
					if p.Type == nil {
						continue
					}
					for _, v := range p.Type.FreeTypeVariables() {
						if !bound[v.ID] && !seen[v.ID] {
							seen[v.ID] = true
							out = append(out, v)
						}
					}
				}
			}
		case TUnion:
			for _, m := range t.Types {
				walk(m, depth+1)
			}
		}
	}
	walk(t, 0)
	return out
}
