package evaluator

import (
	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/config"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/symbols"
	"github.com/funvibe/sable/internal/typesystem"
)

// memberType is the type of obj.name, reporting an unknown attribute at at.
func (e *Evaluator) memberType(v *UnitView, at *ast.Name, obj typesystem.Type, name string) typesystem.Type {
	t, ok := e.lookupMember(obj, name)
	if ok {
		return t
	}
	if m, isModule := obj.(typesystem.TModule); isModule {
		e.errorf(v.URI, diagnostics.ErrT006, at, "module %q has no attribute %q", m.Name, name)
	} else {
		e.errorf(v.URI, diagnostics.ErrT006, at, "%s has no attribute %q", obj, name)
	}
	return t
}

// lookupMember finds an attribute without reporting. For unions the
// result is the union of the members that have it, and ok is false when
// any member lacks it.
func (e *Evaluator) lookupMember(obj typesystem.Type, name string) (typesystem.Type, bool) {
	switch o := obj.(type) {
	case typesystem.TAny, typesystem.TUnknown, typesystem.TNever:
		return o, true
	case typesystem.TAliasRef:
		return e.lookupMember(e.resolveAlias(o), name)
	case typesystem.TModule:
		return e.moduleAttr(o, name)
	case typesystem.TInstance:
		return e.instanceAttr(o.Class, name)
	case typesystem.TLiteral:
		return e.instanceAttr(o.Class, name)
	case typesystem.TClass:
		return e.classAttr(o, name)
	case typesystem.TVar:
		if o.Bound != nil {
			return e.lookupMember(o.Bound, name)
		}
		return e.lookupMember(e.builtinInstance(config.ObjectTypeName), name)
	case typesystem.TFunc:
		return e.lookupMember(e.builtinInstance(config.ObjectTypeName), name)
	case typesystem.TUnion:
		var found []typesystem.Type
		all := true
		for _, m := range o.Types {
			t, ok := e.lookupMember(m, name)
			if !ok {
				all = false
				continue
			}
			found = append(found, t)
		}
		if len(found) == 0 {
			return typesystem.Unknown, false
		}
		return typesystem.NormalizeUnion(found), all
	}
	return typesystem.Unknown, false
}

func (e *Evaluator) moduleAttr(m typesystem.TModule, name string) (typesystem.Type, bool) {
	if r := e.moduleMember(m.URI, name); r.ok() {
		return e.symbolType(r), true
	}
	if config.TrimSourceExt(m.URI.Base()) != config.PackageInit {
		return typesystem.Unknown, false
	}
	res := e.host.ResolveImport(m.URI, name, 1)
	if !res.Resolved {
		return typesystem.Unknown, false
	}
	e.observe(res.URI)
	return typesystem.TModule{Name: m.Name + "." + name, URI: res.URI}, true
}

// classScope returns the body scope of the class c is an object of.
func (e *Evaluator) classScope(c typesystem.TClass) (*UnitView, *symbols.Scope) {
	v := e.view(c.Ref.Unit)
	if v == nil {
		return nil, nil
	}
	id, ok := v.Bind.NodeScope[c.Ref.Node]
	if !ok {
		return v, nil
	}
	return v, v.Bind.Scope(id)
}

// classAttr looks name up along the MRO of cls. Class-level bindings are
// preferred to instance attributes of the same class.
func (e *Evaluator) classAttr(cls typesystem.TClass, name string) (typesystem.Type, bool) {
	t, _, ok := e.findAttr(cls, name, false)
	return t, ok
}

func (e *Evaluator) instanceAttr(cls typesystem.TClass, name string) (typesystem.Type, bool) {
	t, classLevel, ok := e.findAttr(cls, name, true)
	if !ok {
		return t, false
	}
	if f, isFunc := t.(typesystem.TFunc); isFunc && classLevel {
		return e.bindMethod(f), true
	}
	return t, true
}

func (e *Evaluator) findAttr(cls typesystem.TClass, name string, instance bool) (t typesystem.Type, classLevel, ok bool) {
	for _, c := range typesystem.MRO(cls) {
		cv, scope := e.classScope(c)
		if scope == nil {
			continue
		}
		subst := typesystem.ClassSubst(c)
		if sym := scope.Lookup(name); sym != nil {
			return typesystem.Apply(e.symbolType(symbolRef{cv, scope, sym}), subst), true, true
		}
		if !instance {
			continue
		}
		if sym := scope.Member(name); sym != nil {
			return typesystem.Apply(e.symbolType(symbolRef{cv, scope, sym}), subst), false, true
		}
	}
	return typesystem.Unknown, false, false
}

// bindMethod drops the receiver parameter of every signature of f, except
// for static methods.
func (e *Evaluator) bindMethod(f typesystem.TFunc) typesystem.TFunc {
	out := typesystem.TFunc{Name: f.Name, Signatures: make([]typesystem.Signature, len(f.Signatures))}
	for i, sig := range f.Signatures {
		if !sig.Bound && len(sig.Params) > 0 && sig.Params[0].Kind == typesystem.ParamPositional && !e.isStatic(sig) {
			sig.Params = sig.Params[1:]
			sig.Bound = true
		}
		out.Signatures[i] = sig
	}
	return out
}

func (e *Evaluator) isStatic(sig typesystem.Signature) bool {
	v := e.view(sig.Decl.Unit)
	if v == nil {
		return false
	}
	fn, ok := v.Index.Node(sig.Decl.Node).(*ast.FunctionDef)
	return ok && hasDecorator(fn.Decorators, "staticmethod")
}
