package evaluator

import (
	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/config"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/symbols"
	"github.com/funvibe/sable/internal/typesystem"
	"github.com/funvibe/sable/internal/uri"
)

// Special forms of the builtins stub.
const (
	formAny      = "Any"
	formUnion    = "Union"
	formOptional = "Optional"
)

// typeExpr evaluates x as a type expression and returns the class form: a
// class object, a union of them, Any or a type variable. Names without a
// binder reference (inside string annotations) are resolved from scope.
// origin is the string literal x was parsed from, used to place
// diagnostics.
func (e *Evaluator) typeExpr(v *UnitView, x ast.Expression, scope symbols.ScopeID, origin *ast.StringLiteral) typesystem.Type {
	if x == nil {
		return typesystem.Unknown
	}
	e.typeContext++
	defer func() { e.typeContext-- }()

	k := key{v.URI, x.ID(), slotTypeExpr}
	return e.evaluate(k, func() typesystem.Type {
		return e.computeTypeExpr(v, x, scope, origin)
	}, nil)
}

func (e *Evaluator) computeTypeExpr(v *UnitView, x ast.Expression, scope symbols.ScopeID, origin *ast.StringLiteral) typesystem.Type {
	at := func(n ast.Node) ast.Node {
		if origin != nil {
			return origin
		}
		return n
	}

	switch x := x.(type) {
	case *ast.Name:
		r, ok := e.typeName(v, x, scope)
		if !ok {
			e.errorf(v.URI, diagnostics.ErrT010, at(x), "%q is not defined", x.Value)
			return typesystem.Unknown
		}
		if r.view.URI == uri.Builtins && x.Value == formAny {
			return typesystem.TAny{}
		}
		return classForm(e.symbolType(r))

	case *ast.NoneLiteral:
		if cls, ok := e.builtinClass(config.NoneTypeName); ok {
			return cls
		}
		return typesystem.Unknown

	case *ast.EllipsisLiteral:
		return typesystem.TAny{}

	case *ast.StringLiteral:
		inner := scope
		if ref, ok := v.Bind.Refs[x.ID()]; ok {
			inner = ref.Scope
		}
		parsed := e.forwardRef(v.URI, x)
		if parsed == nil {
			return typesystem.Unknown
		}
		return e.typeExpr(v, parsed, inner, x)

	case *ast.AttributeExpression:
		obj := e.typeExpr(v, x.X, scope, origin)
		if x.Attr == nil {
			return typesystem.Unknown
		}
		t, ok := e.lookupMember(obj, x.Attr.Value)
		if !ok {
			e.errorf(v.URI, diagnostics.ErrT006, at(x.Attr), "%s has no attribute %q", obj, x.Attr.Value)
			return typesystem.Unknown
		}
		return classForm(t)

	case *ast.SubscriptExpression:
		if form, ok := e.specialForm(v, x.X, scope); ok {
			var members []typesystem.Type
			for _, ix := range x.Index {
				members = append(members, e.typeExpr(v, ix, scope, origin))
			}
			switch form {
			case formAny:
				return typesystem.TAny{}
			case formOptional:
				if cls, ok := e.builtinClass(config.NoneTypeName); ok {
					members = append(members, cls)
				}
			}
			return typesystem.NormalizeUnion(members)
		}
		base := e.typeExpr(v, x.X, scope, origin)
		cls, ok := base.(typesystem.TClass)
		if !ok {
			for _, ix := range x.Index {
				e.typeExpr(v, ix, scope, origin)
			}
			return typesystem.Unknown
		}
		args := make([]typesystem.Type, 0, len(x.Index))
		for _, ix := range x.Index {
			args = append(args, typesystem.ToInstance(e.typeExpr(v, ix, scope, origin)))
		}
		if n := len(cls.Params); n > 0 {
			for len(args) < n {
				args = append(args, typesystem.Unknown)
			}
			args = args[:n]
		}
		return typesystem.Specialize(cls, args)
	}
	return typesystem.Unknown
}

// typeName resolves a name read in a type expression. It never follows
// the flow graph, so an alias under construction is seen as itself.
func (e *Evaluator) typeName(v *UnitView, n *ast.Name, scope symbols.ScopeID) (symbolRef, bool) {
	from := scope
	if ref, ok := v.Bind.Refs[n.ID()]; ok {
		from = ref.Scope
	}
	if from == symbols.NoScope {
		from = v.Bind.Module().ID
	}
	r := e.resolveName(v, from, n.Value)
	return r, r.ok()
}

// specialForm reports whether x names one of the builtins special forms.
func (e *Evaluator) specialForm(v *UnitView, x ast.Expression, scope symbols.ScopeID) (string, bool) {
	n, ok := x.(*ast.Name)
	if !ok {
		return "", false
	}
	switch n.Value {
	case formAny, formUnion, formOptional:
	default:
		return "", false
	}
	r, ok := e.typeName(v, n, scope)
	if !ok || r.view.URI != uri.Builtins {
		return "", false
	}
	return n.Value, true
}

// classForm keeps the values that can denote a type.
func classForm(t typesystem.Type) typesystem.Type {
	switch t := t.(type) {
	case typesystem.TClass, typesystem.TAny, typesystem.TVar, typesystem.TAliasRef, typesystem.TModule:
		return t
	case typesystem.TUnknown:
		return t
	case typesystem.TUnion:
		members := make([]typesystem.Type, len(t.Types))
		for i, m := range t.Types {
			members[i] = classForm(m)
		}
		return typesystem.NormalizeUnion(members)
	}
	return typesystem.Unknown
}
