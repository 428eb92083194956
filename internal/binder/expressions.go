package binder

import (
	"github.com/funvibe/sable/internal/assert"
	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/symbols"
	"github.com/funvibe/sable/internal/token"
)

// target describes the value flowing into an assignment target.
type target struct {
	stmt       ast.NodeID
	annotation ast.NodeID
	value      ast.NodeID
	source     symbols.DeclSource
	unpack     []int
}

func (t target) index(i int) target {
	t.unpack = append(append([]int(nil), t.unpack...), i)
	t.annotation = 0
	return t
}

func (b *binder) bindTarget(e ast.Expression, t target) {
	switch e := e.(type) {
	case nil:
	case *ast.Name:
		b.declare(&symbols.Declaration{
			Kind:       symbols.DeclVariable,
			Name:       e.Value,
			Node:       e.ID(),
			Stmt:       t.stmt,
			Span:       e.Span(),
			Annotation: t.annotation,
			Value:      t.value,
			Source:     t.source,
			Unpack:     t.unpack,
		}, t.source != symbols.SourceNone)
	case *ast.TupleExpression:
		for i, el := range e.Elements {
			b.bindTarget(el, t.index(i))
		}
	case *ast.ListExpression:
		for i, el := range e.Elements {
			b.bindTarget(el, t.index(i))
		}
	case *ast.AttributeExpression:
		b.walk(e.X)
		b.bindMember(e, t)
	case *ast.SubscriptExpression:
		b.walk(e.X)
		for _, i := range e.Index {
			b.walk(i)
		}
	default:
		b.walk(e)
	}
}

// bindMember records `self.name = value` inside a method as an instance
// attribute of the enclosing class.
func (b *binder) bindMember(e *ast.AttributeExpression, t target) {
	if b.method == nil || b.fnInfo == nil || e.Attr == nil || len(b.method.Params) == 0 {
		return
	}
	self, ok := e.X.(*ast.Name)
	first := b.method.Params[0]
	if !ok || first.Name == nil || self.Value != first.Name.Value || first.Kind != ast.ParamPositional {
		return
	}
	cls := b.res.EnclosingClass(b.fnInfo.Scope)
	if cls == nil {
		return
	}
	decl := &symbols.Declaration{
		Kind:           symbols.DeclVariable,
		Name:           e.Attr.Value,
		Node:           e.Attr.ID(),
		Stmt:           t.stmt,
		Scope:          cls.ID,
		Span:           e.Attr.Span(),
		Annotation:     t.annotation,
		Value:          t.value,
		Source:         t.source,
		Unpack:         t.unpack,
		InstanceMember: true,
	}
	sym := cls.DefineMember(decl.Name)
	if symbols.IsPrivateName(decl.Name) {
		sym.Flags |= symbols.FlagPrivate
	}
	sym.Decls = append(sym.Decls, decl)
	b.res.Defs[decl.Node] = decl
}

func (b *binder) load(n *ast.Name) {
	b.res.Refs[n.ID()] = symbols.Ref{Scope: b.scope, Flow: b.flow}
	b.loads = append(b.loads, n)
}

// walk records every name read in e.
func (b *binder) walk(e ast.Expression) {
	switch e := e.(type) {
	case nil:
	case *ast.Name:
		b.load(e)
	case *ast.StringLiteral:
		// A string may be a forward reference in an annotation; remember
		// the scope it would be resolved in.
		b.res.Refs[e.ID()] = symbols.Ref{Scope: b.scope, Flow: b.flow}
	case *ast.IntLiteral, *ast.FloatLiteral, *ast.BoolLiteral, *ast.NoneLiteral, *ast.EllipsisLiteral:
	case *ast.AttributeExpression:
		b.walk(e.X)
	case *ast.CallExpression:
		b.walk(e.Func)
		for _, a := range e.Args {
			b.walk(a.Value)
		}
	case *ast.SubscriptExpression:
		b.walk(e.X)
		for _, i := range e.Index {
			b.walk(i)
		}
	case *ast.UnaryExpression:
		b.walk(e.Operand)
	case *ast.BinaryExpression:
		switch e.Op {
		case token.AND, token.OR:
			right, post := &label{}, &label{}
			if e.Op == token.AND {
				b.bindCondition(e.Left, right, post)
			} else {
				b.bindCondition(e.Left, post, right)
			}
			b.flow = b.finish(right)
			b.walk(e.Right)
			post.add(b.flow)
			b.flow = b.finish(post)
		default:
			b.walk(e.Left)
			b.walk(e.Right)
		}
	case *ast.ListExpression:
		for _, el := range e.Elements {
			b.walk(el)
		}
	case *ast.TupleExpression:
		for _, el := range e.Elements {
			b.walk(el)
		}
	case *ast.DictExpression:
		for i := range e.Keys {
			b.walk(e.Keys[i])
			b.walk(e.Values[i])
		}
	case *ast.ListComprehension:
		b.bindComprehension(e)
	case *ast.ErrorExpression:
		b.walk(e.Child)
	default:
		assert.Unreachable(e)
	}
}

// bindCondition walks a branch condition, routing the truthy outcome to t
// and the falsy one to f. `not`, `and` and `or` are split so each operand
// narrows on its own.
func (b *binder) bindCondition(e ast.Expression, t, f *label) {
	switch c := e.(type) {
	case *ast.UnaryExpression:
		if c.Op == token.NOT {
			b.bindCondition(c.Operand, f, t)
			return
		}
	case *ast.BinaryExpression:
		switch c.Op {
		case token.AND:
			mid := &label{}
			b.bindCondition(c.Left, mid, f)
			b.flow = b.finish(mid)
			b.bindCondition(c.Right, t, f)
			return
		case token.OR:
			mid := &label{}
			b.bindCondition(c.Left, t, mid)
			b.flow = b.finish(mid)
			b.bindCondition(c.Right, t, f)
			return
		}
	case *ast.BoolLiteral:
		if c.Value {
			t.add(b.flow)
		} else {
			f.add(b.flow)
		}
		return
	}

	b.walk(e)
	if e == nil || b.flow == symbols.FlowUnreachable {
		return
	}
	t.add(b.condFlow(symbols.FlowKindTrue, e))
	f.add(b.condFlow(symbols.FlowKindFalse, e))
}

// bindComprehension binds `[elt for target in iter if cond]`. The iterable
// is read in the enclosing scope; everything else in the comprehension's.
func (b *binder) bindComprehension(c *ast.ListComprehension) {
	b.walk(c.Iter)
	comp := b.res.AddScope(symbols.ScopeComprehension, b.scope, c.ID())
	savedScope, savedFlow := b.scope, b.flow
	b.scope = comp.ID
	if b.flow != symbols.FlowUnreachable {
		b.flow = b.startFlow(comp.ID, b.flow)
	}
	b.bindTarget(c.Target, target{stmt: c.ID(), value: nodeID(c.Iter), source: symbols.SourceIterate})
	if c.Cond != nil {
		t, f := &label{}, &label{}
		b.bindCondition(c.Cond, t, f)
		b.flow = b.finish(t)
	}
	b.walk(c.Element)
	b.scope, b.flow = savedScope, savedFlow
}
