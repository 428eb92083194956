// Package binder builds scopes, symbol tables and the control-flow graph
// for one parse tree.
package binder

import (
	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/symbols"
)

type loop struct {
	head   symbols.FlowID
	breaks *label
}

// label collects the antecedents of a join before its node is created.
type label struct {
	ants []symbols.FlowID
}

func (l *label) add(f symbols.FlowID) {
	if f == symbols.FlowUnreachable {
		return
	}
	for _, a := range l.ants {
		if a == f {
			return
		}
	}
	l.ants = append(l.ants, f)
}

type binder struct {
	res  *symbols.Results
	stub bool

	scope  symbols.ScopeID
	flow   symbols.FlowID
	fnInfo *symbols.FunctionInfo
	method *ast.FunctionDef // innermost def directly in a class body
	loop   *loop

	// Function bodies are bound after the enclosing scope is complete, so
	// nonlocal checks and forward references see every binding.
	deferred []func()
	loads    []*ast.Name
}

// Bind binds a module. It never fails on malformed trees: missing pieces
// produce partial scopes.
func Bind(uri string, module *ast.Module, stub bool) *symbols.Results {
	b := &binder{res: symbols.NewResults(uri), stub: stub}
	if module == nil {
		b.res.AddScope(symbols.ScopeModule, symbols.NoScope, 0)
		return b.res
	}
	m := b.res.AddScope(symbols.ScopeModule, symbols.NoScope, module.ID())
	b.scope = m.ID
	b.flow = b.res.AddFlow(symbols.FlowNode{Kind: symbols.FlowKindStart, Scope: m.ID})
	b.bindStatements(module.Body)

	for i := 0; i < len(b.deferred); i++ {
		b.deferred[i]()
	}
	if !stub {
		b.checkUnbound()
	}
	return b.res
}

type state struct {
	scope  symbols.ScopeID
	flow   symbols.FlowID
	fnInfo *symbols.FunctionInfo
	method *ast.FunctionDef
	loop   *loop
}

func (b *binder) save() state {
	return state{scope: b.scope, flow: b.flow, fnInfo: b.fnInfo, method: b.method, loop: b.loop}
}

func (b *binder) restore(s state) {
	b.scope, b.flow, b.fnInfo, b.method, b.loop = s.scope, s.flow, s.fnInfo, s.method, s.loop
}

func (b *binder) current() *symbols.Scope { return b.res.Scope(b.scope) }

func (b *binder) withScope(id symbols.ScopeID, f func()) {
	saved := b.scope
	b.scope = id
	f()
	b.scope = saved
}

func (b *binder) finish(l *label) symbols.FlowID {
	switch len(l.ants) {
	case 0:
		return symbols.FlowUnreachable
	case 1:
		return l.ants[0]
	}
	return b.res.AddFlow(symbols.FlowNode{Kind: symbols.FlowKindLabel, Scope: b.scope, Antecedents: l.ants})
}

func (b *binder) startFlow(scope symbols.ScopeID, from symbols.FlowID) symbols.FlowID {
	n := symbols.FlowNode{Kind: symbols.FlowKindStart, Scope: scope}
	if from != symbols.FlowUnreachable {
		n.Antecedents = []symbols.FlowID{from}
	}
	return b.res.AddFlow(n)
}

func (b *binder) loopHead() symbols.FlowID {
	if b.flow == symbols.FlowUnreachable {
		return symbols.FlowUnreachable
	}
	return b.res.AddFlow(symbols.FlowNode{
		Kind:        symbols.FlowKindLoopLabel,
		Scope:       b.scope,
		Antecedents: []symbols.FlowID{b.flow},
	})
}

func (b *binder) addBackEdge(head, from symbols.FlowID) {
	if head == symbols.FlowUnreachable || from == symbols.FlowUnreachable {
		return
	}
	n := b.res.Flow(head)
	for _, a := range n.Antecedents {
		if a == from {
			return
		}
	}
	n.Antecedents = append(n.Antecedents, from)
}

func (b *binder) condFlow(kind symbols.FlowKind, cond ast.Expression) symbols.FlowID {
	return b.res.AddFlow(symbols.FlowNode{
		Kind:        kind,
		Scope:       b.scope,
		Cond:        cond.ID(),
		Antecedents: []symbols.FlowID{b.flow},
	})
}

// targetScope is the scope a binding of name in the current scope lands in.
func (b *binder) targetScope(name string) *symbols.Scope {
	cur := b.current()
	if cur.IsGlobal(name) {
		return b.res.Module()
	}
	if cur.IsNonlocal(name) {
		if s := b.nonlocalOwner(cur, name); s != nil {
			return s
		}
	}
	return cur
}

// nonlocalOwner finds the nearest enclosing function scope binding name.
func (b *binder) nonlocalOwner(from *symbols.Scope, name string) *symbols.Scope {
	for s := b.res.Scope(from.Parent); s != nil; s = b.res.Scope(s.Parent) {
		switch s.Kind {
		case symbols.ScopeModule:
			return nil
		case symbols.ScopeFunction:
			if s.IsGlobal(name) {
				return nil
			}
			if s.Lookup(name) != nil {
				return s
			}
			if s.IsNonlocal(name) {
				return b.nonlocalOwner(s, name)
			}
		}
	}
	return nil
}

// declare records decl in its target scope. A flow event also creates the
// assignment flow node narrowing later reads of the name.
func (b *binder) declare(decl *symbols.Declaration, flowEvent bool) {
	scope := b.targetScope(decl.Name)
	decl.Scope = scope.ID
	decl.IsExported = scope.Kind == symbols.ScopeModule && !symbols.IsPrivateName(decl.Name)

	sym := scope.Define(decl.Name)
	if symbols.IsPrivateName(decl.Name) {
		sym.Flags |= symbols.FlagPrivate
	}
	if scope.Kind == symbols.ScopeClass {
		sym.Flags |= symbols.FlagClassMember
	}
	sym.Decls = append(sym.Decls, decl)
	b.res.Defs[decl.Node] = decl

	if !flowEvent || scope.ID != b.scope || b.flow == symbols.FlowUnreachable {
		return
	}
	decl.Flow = b.res.AddFlow(symbols.FlowNode{
		Kind:        symbols.FlowKindAssign,
		Scope:       scope.ID,
		Name:        decl.Name,
		Node:        decl.Node,
		Antecedents: []symbols.FlowID{b.flow},
	})
	b.flow = decl.Flow
}

func (b *binder) declareTypeParams(scope *symbols.Scope, params []*ast.TypeParam) {
	b.withScope(scope.ID, func() {
		for _, tp := range params {
			if tp.Bound != nil {
				b.walk(tp.Bound)
			}
			if tp.Name == nil {
				continue
			}
			b.declare(&symbols.Declaration{
				Kind:       symbols.DeclTypeParam,
				Name:       tp.Name.Value,
				Node:       tp.ID(),
				Stmt:       tp.ID(),
				Span:       tp.Name.Span(),
				Annotation: nodeID(tp.Bound),
			}, false)
		}
	})
}

func nodeID(e ast.Expression) ast.NodeID {
	if e == nil {
		return 0
	}
	return e.ID()
}
