package evaluator

import (
	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/config"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/symbols"
	"github.com/funvibe/sable/internal/token"
	"github.com/funvibe/sable/internal/typesystem"
)

var binaryDunders = map[token.TokenType]string{
	token.PLUS:     "__add__",
	token.MINUS:    "__sub__",
	token.ASTERISK: "__mul__",
	token.SLASH:    "__truediv__",
	token.PERCENT:  "__mod__",
	token.POWER:    "__pow__",
}

func augOp(op token.TokenType) token.TokenType {
	switch op {
	case token.PLUS_ASSIGN:
		return token.PLUS
	case token.MINUS_ASSIGN:
		return token.MINUS
	}
	return op
}

// isDisplay reports expressions whose type depends on the expected type of
// their context.
func isDisplay(x ast.Expression) bool {
	switch x.(type) {
	case *ast.ListExpression, *ast.DictExpression, *ast.ListComprehension:
		return true
	}
	return false
}

// exprType is the type of x. expected, when not nil, is the type the
// context wants; only displays use it.
func (e *Evaluator) exprType(v *UnitView, x ast.Expression, expected typesystem.Type) typesystem.Type {
	if x == nil || v == nil {
		return typesystem.Unknown
	}
	if expected != nil && isDisplay(x) {
		if ctx := e.contextExpected(v, x); ctx == nil || !typesystem.Equal(ctx, expected) {
			// A hypothesis about the context; not the node's own type.
			e.checkpoint()
			return e.computeExpr(v, x, expected)
		}
	}
	k := key{v.URI, x.ID(), slotExpr}
	return e.evaluate(k, func() typesystem.Type {
		if expected == nil && isDisplay(x) {
			expected = e.contextExpected(v, x)
		}
		return e.computeExpr(v, x, expected)
	}, nil)
}

// contextExpected is the declared type a display is written against: the
// annotation of the assignment or the return annotation of the def.
func (e *Evaluator) contextExpected(v *UnitView, x ast.Expression) typesystem.Type {
	switch p := v.Index.Parent(x.ID()).(type) {
	case *ast.AssignStatement:
		if p.Value == x && p.Annotation != nil {
			if _, ok := p.Target.(*ast.Name); ok {
				return e.annotationType(v, p.Annotation.ID())
			}
		}
	case *ast.ReturnStatement:
		for n := v.Index.Parent(p.ID()); n != nil; n = v.Index.Parent(n.ID()) {
			if fn, ok := n.(*ast.FunctionDef); ok {
				if fn.Returns != nil {
					return e.annotationType(v, fn.Returns.ID())
				}
				break
			}
		}
	}
	return nil
}

func (e *Evaluator) computeExpr(v *UnitView, x ast.Expression, expected typesystem.Type) typesystem.Type {
	switch x := x.(type) {
	case *ast.Name:
		return e.nameType(v, x)
	case *ast.IntLiteral:
		return e.literal(config.IntTypeName, x.Value)
	case *ast.FloatLiteral:
		return e.literal(config.FloatTypeName, x.Value)
	case *ast.StringLiteral:
		return e.literal(config.StrTypeName, x.Value)
	case *ast.BoolLiteral:
		return e.literal(config.BoolTypeName, x.Value)
	case *ast.NoneLiteral:
		return e.noneInstance()
	case *ast.EllipsisLiteral:
		return typesystem.TAny{}
	case *ast.AttributeExpression:
		obj := e.exprType(v, x.X, nil)
		if x.Attr == nil {
			return typesystem.Unknown
		}
		return e.memberType(v, x.Attr, obj, x.Attr.Value)
	case *ast.CallExpression:
		return e.callType(v, x, expected)
	case *ast.SubscriptExpression:
		return e.subscriptType(v, x)
	case *ast.BinaryExpression:
		return e.binaryType(v, x)
	case *ast.UnaryExpression:
		return e.unaryType(v, x)
	case *ast.ListExpression:
		return e.listType(v, x.Elements, expected)
	case *ast.TupleExpression:
		elems := make([]typesystem.Type, len(x.Elements))
		for i, el := range x.Elements {
			elems[i] = typesystem.StripLiteral(e.exprType(v, el, nil))
		}
		return e.generic(config.TupleTypeName, elems...)
	case *ast.DictExpression:
		return e.dictType(v, x, expected)
	case *ast.ListComprehension:
		e.exprType(v, x.Iter, nil)
		if x.Cond != nil {
			e.exprType(v, x.Cond, nil)
		}
		var want typesystem.Type
		if args, ok := e.expectedArgs(expected, config.ListTypeName, 1); ok {
			want = args[0]
		}
		el := typesystem.StripLiteral(e.exprType(v, x.Element, want))
		if want != nil {
			if ok, _ := e.relation().Assignable(want, el); ok {
				el = want
			}
		}
		return e.generic(config.ListTypeName, el)
	case *ast.ErrorExpression:
		if x.Child != nil {
			e.exprType(v, x.Child, nil)
		}
		return typesystem.Unknown
	}
	return typesystem.Unknown
}

func (e *Evaluator) literal(class string, value any) typesystem.Type {
	cls, ok := e.builtinClass(class)
	if !ok {
		return typesystem.Unknown
	}
	return typesystem.TLiteral{Class: cls, Value: value}
}

// generic is an instance of the builtin class name specialized with args.
func (e *Evaluator) generic(name string, args ...typesystem.Type) typesystem.Type {
	cls, ok := e.builtinClass(name)
	if !ok {
		return typesystem.Unknown
	}
	return typesystem.TInstance{Class: typesystem.Specialize(cls, args)}
}

// expectedArgs finds a member of expected that is the builtin generic name
// with n type arguments.
func (e *Evaluator) expectedArgs(expected typesystem.Type, name string, n int) ([]typesystem.Type, bool) {
	if expected == nil {
		return nil, false
	}
	for _, m := range typesystem.Members(e.resolveAlias(expected)) {
		inst, ok := m.(typesystem.TInstance)
		if ok && typesystem.IsBuiltin(inst.Class, name) && len(inst.Class.TypeArgs) == n {
			return inst.Class.TypeArgs, true
		}
	}
	return nil, false
}

func (e *Evaluator) listType(v *UnitView, elements []ast.Expression, expected typesystem.Type) typesystem.Type {
	if args, ok := e.expectedArgs(expected, config.ListTypeName, 1); ok {
		fits := true
		for _, el := range elements {
			t := e.exprType(v, el, args[0])
			if ok, _ := e.relation().Assignable(args[0], t); !ok {
				fits = false
			}
		}
		if fits {
			return e.generic(config.ListTypeName, args[0])
		}
	}
	return e.generic(config.ListTypeName, e.joinElements(v, elements))
}

func (e *Evaluator) dictType(v *UnitView, x *ast.DictExpression, expected typesystem.Type) typesystem.Type {
	if args, ok := e.expectedArgs(expected, config.DictTypeName, 2); ok {
		fits := true
		for i := range x.Keys {
			kt := e.exprType(v, x.Keys[i], args[0])
			vt := e.exprType(v, x.Values[i], args[1])
			if ok, _ := e.relation().Assignable(args[0], kt); !ok {
				fits = false
			}
			if ok, _ := e.relation().Assignable(args[1], vt); !ok {
				fits = false
			}
		}
		if fits {
			return e.generic(config.DictTypeName, args[0], args[1])
		}
	}
	return e.generic(config.DictTypeName, e.joinElements(v, x.Keys), e.joinElements(v, x.Values))
}

// joinElements is the widened union of the element types; Unknown for an
// empty display.
func (e *Evaluator) joinElements(v *UnitView, elements []ast.Expression) typesystem.Type {
	if len(elements) == 0 {
		return typesystem.Unknown
	}
	types := make([]typesystem.Type, len(elements))
	for i, el := range elements {
		types[i] = typesystem.StripLiteral(e.exprType(v, el, nil))
	}
	return typesystem.NormalizeUnion(types)
}

func (e *Evaluator) binaryType(v *UnitView, x *ast.BinaryExpression) typesystem.Type {
	l := e.exprType(v, x.Left, nil)
	r := e.exprType(v, x.Right, nil)
	switch x.Op {
	case token.AND, token.OR:
		return typesystem.Union(l, r)
	case token.EQ, token.NOT_EQ, token.LT, token.GT, token.LT_EQ, token.GT_EQ, token.IS, token.IN:
		return e.builtinInstance(config.BoolTypeName)
	}
	return e.binaryOp(v, x, x.Op, l, r)
}

// binaryOp applies an arithmetic operator through the dunder method of the
// left operand, member by member for unions.
func (e *Evaluator) binaryOp(v *UnitView, at ast.Node, op token.TokenType, l, r typesystem.Type) typesystem.Type {
	name, ok := binaryDunders[op]
	if !ok {
		return typesystem.Unknown
	}
	var out []typesystem.Type
	for _, m := range typesystem.Members(e.resolveAlias(l)) {
		switch m.(type) {
		case typesystem.TAny:
			out = append(out, m)
			continue
		case typesystem.TUnknown, typesystem.TNever:
			out = append(out, typesystem.Unknown)
			continue
		}
		method, found := e.lookupMember(m, name)
		if !found {
			e.errorf(v.URI, diagnostics.ErrT011, at, "operator %q not supported for %s", string(op), m)
			out = append(out, typesystem.Unknown)
			continue
		}
		out = append(out, e.callWithTypes(v, at, method, []typesystem.Type{r}))
	}
	return typesystem.NormalizeUnion(out)
}

func (e *Evaluator) unaryType(v *UnitView, x *ast.UnaryExpression) typesystem.Type {
	t := e.exprType(v, x.Operand, nil)
	switch x.Op {
	case token.NOT:
		return e.builtinInstance(config.BoolTypeName)
	case token.MINUS:
		if lit, ok := t.(typesystem.TLiteral); ok {
			switch n := lit.Value.(type) {
			case int64:
				return typesystem.TLiteral{Class: lit.Class, Value: -n}
			case float64:
				return typesystem.TLiteral{Class: lit.Class, Value: -n}
			}
		}
		var out []typesystem.Type
		for _, m := range typesystem.Members(t) {
			method, found := e.lookupMember(m, "__neg__")
			if !found {
				out = append(out, typesystem.Unknown)
				continue
			}
			out = append(out, e.callWithTypes(v, x, method, nil))
		}
		return typesystem.NormalizeUnion(out)
	}
	return typesystem.Unknown
}

// subscriptType handles both specialization of a generic class and item
// access through __getitem__.
func (e *Evaluator) subscriptType(v *UnitView, x *ast.SubscriptExpression) typesystem.Type {
	if _, ok := e.specialForm(v, x.X, symbols.NoScope); ok {
		return e.typeExpr(v, x, symbols.NoScope, nil)
	}
	obj := e.exprType(v, x.X, nil)
	if _, ok := obj.(typesystem.TClass); ok {
		return e.typeExpr(v, x, symbols.NoScope, nil)
	}
	var index typesystem.Type = typesystem.Unknown
	switch len(x.Index) {
	case 0:
	case 1:
		index = e.exprType(v, x.Index[0], nil)
	default:
		elems := make([]typesystem.Type, len(x.Index))
		for i, ix := range x.Index {
			elems[i] = typesystem.StripLiteral(e.exprType(v, ix, nil))
		}
		index = e.generic(config.TupleTypeName, elems...)
	}

	var out []typesystem.Type
	for _, m := range typesystem.Members(e.resolveAlias(obj)) {
		if inst, ok := m.(typesystem.TInstance); ok && typesystem.IsBuiltin(inst.Class, config.TupleTypeName) && len(inst.Class.TypeArgs) > 0 {
			if lit, ok := index.(typesystem.TLiteral); ok {
				if i, ok := lit.Value.(int64); ok && i >= 0 && int(i) < len(inst.Class.TypeArgs) {
					out = append(out, inst.Class.TypeArgs[i])
					continue
				}
			}
			out = append(out, typesystem.NormalizeUnion(inst.Class.TypeArgs))
			continue
		}
		switch m.(type) {
		case typesystem.TAny, typesystem.TUnknown:
			out = append(out, m)
			continue
		}
		method, found := e.lookupMember(m, config.GetItemMethodName)
		if !found {
			e.errorf(v.URI, diagnostics.ErrT011, x, "%s is not subscriptable", m)
			out = append(out, typesystem.Unknown)
			continue
		}
		out = append(out, e.callWithTypes(v, x, method, []typesystem.Type{index}))
	}
	return typesystem.NormalizeUnion(out)
}

// iterType is the element type produced by iterating over a value of t.
func (e *Evaluator) iterType(t typesystem.Type) typesystem.Type {
	var out []typesystem.Type
	for _, m := range typesystem.Members(e.resolveAlias(t)) {
		if inst, ok := m.(typesystem.TInstance); ok && typesystem.IsBuiltin(inst.Class, config.TupleTypeName) && len(inst.Class.TypeArgs) > 0 {
			out = append(out, typesystem.NormalizeUnion(inst.Class.TypeArgs))
			continue
		}
		method, found := e.lookupMember(m, config.IterMethodName)
		if !found {
			out = append(out, typesystem.Unknown)
			continue
		}
		f, ok := method.(typesystem.TFunc)
		if !ok || len(f.Signatures) == 0 {
			out = append(out, typesystem.Unknown)
			continue
		}
		out = append(out, e.returnType(f.Signatures[0]))
	}
	return typesystem.NormalizeUnion(out)
}

// resolveAlias expands a top-level alias placeholder.
func (e *Evaluator) resolveAlias(t typesystem.Type) typesystem.Type {
	for i := 0; i < config.MaxTypeRecursionDepth; i++ {
		a, ok := t.(typesystem.TAliasRef)
		if !ok {
			return t
		}
		t = e.expandAlias(a)
	}
	return typesystem.Unknown
}
