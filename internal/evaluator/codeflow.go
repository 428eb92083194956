package evaluator

import (
	"github.com/funvibe/sable/internal/assert"
	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/config"
	"github.com/funvibe/sable/internal/symbols"
	"github.com/funvibe/sable/internal/token"
	"github.com/funvibe/sable/internal/typesystem"
	"github.com/funvibe/sable/internal/uri"
)

type flowResult struct {
	t       typesystem.Type
	unbound bool
}

type memoEntry struct {
	r     flowResult
	stamp int // -1 once no loop head is being iterated
}

// flowQuery answers "what is the type of name right after flow node id"
// for one read. Memo entries computed while a loop head is iterating are
// only valid until that head's approximation changes.
type flowQuery struct {
	e        *Evaluator
	v        *UnitView
	scope    symbols.ScopeID
	name     string
	declared typesystem.Type

	memo   map[symbols.FlowID]memoEntry
	loops  map[symbols.FlowID]*flowResult
	active int
	stamp  int
}

// flowType walks the flow graph backwards from start. unbound reports that
// some path reaches the start of the owning scope without an assignment.
func (e *Evaluator) flowType(v *UnitView, start symbols.FlowID, scope symbols.ScopeID, name string, declared typesystem.Type) (typesystem.Type, bool) {
	q := &flowQuery{
		e:        e,
		v:        v,
		scope:    scope,
		name:     name,
		declared: declared,
		memo:     make(map[symbols.FlowID]memoEntry),
		loops:    make(map[symbols.FlowID]*flowResult),
	}
	r := q.visit(start, 0)
	return r.t, r.unbound
}

func (q *flowQuery) fallback() typesystem.Type {
	if q.declared != nil {
		return q.declared
	}
	return typesystem.Unknown
}

func (q *flowQuery) visit(id symbols.FlowID, depth int) flowResult {
	if depth > config.MaxCodeFlowDepth {
		return flowResult{t: q.fallback()}
	}
	for {
		q.e.checkpoint()
		if m, ok := q.memo[id]; ok && (m.stamp < 0 || m.stamp == q.stamp) {
			return m.r
		}
		if cur, ok := q.loops[id]; ok {
			return *cur
		}
		n := q.v.Bind.Flow(id)
		if n == nil {
			return flowResult{t: typesystem.TNever{}}
		}

		switch n.Kind {
		case symbols.FlowKindUnreachable:
			return flowResult{t: typesystem.TNever{}}

		case symbols.FlowKindStart:
			if n.Scope == q.scope {
				return flowResult{t: typesystem.TNever{}, unbound: true}
			}
			if len(n.Antecedents) == 0 {
				return flowResult{t: typesystem.TNever{}}
			}
			id = n.Antecedents[0]

		case symbols.FlowKindAssign:
			if n.Scope == q.scope && n.Name == q.name {
				return q.remember(id, flowResult{t: q.assigned(n)})
			}
			id = n.Antecedents[0]

		case symbols.FlowKindTrue, symbols.FlowKindFalse:
			cond, _ := q.v.Index.Node(n.Cond).(ast.Expression)
			if cond == nil || !mentions(cond, q.name) {
				id = n.Antecedents[0]
				continue
			}
			r := q.visit(n.Antecedents[0], depth+1)
			if _, never := r.t.(typesystem.TNever); !never {
				r.t = q.e.narrow(q.v, cond, q.name, n.Kind == symbols.FlowKindTrue, r.t)
			}
			return q.remember(id, r)

		case symbols.FlowKindLabel:
			return q.remember(id, q.join(n.Antecedents, depth))

		case symbols.FlowKindLoopLabel:
			return q.loop(id, n, depth)

		default:
			assert.Unreachable(n.Kind)
		}
	}
}

func (q *flowQuery) remember(id symbols.FlowID, r flowResult) flowResult {
	stamp := -1
	if q.active > 0 {
		stamp = q.stamp
	}
	q.memo[id] = memoEntry{r: r, stamp: stamp}
	return r
}

func (q *flowQuery) join(ants []symbols.FlowID, depth int) flowResult {
	var out flowResult
	types := make([]typesystem.Type, 0, len(ants))
	for _, a := range ants {
		r := q.visit(a, depth+1)
		types = append(types, r.t)
		out.unbound = out.unbound || r.unbound
	}
	out.t = typesystem.NormalizeUnion(types)
	return out
}

// loop iterates a loop head to a fixed point. Back edges read the current
// approximation; giving up after MaxLoopIterations widens to the declared
// type.
func (q *flowQuery) loop(id symbols.FlowID, n *symbols.FlowNode, depth int) flowResult {
	cur := &flowResult{t: typesystem.TNever{}}
	q.loops[id] = cur
	q.active++
	converged := false
	for i := 0; i < config.MaxLoopIterations; i++ {
		next := q.join(n.Antecedents, depth)
		if typesystem.Equal(next.t, cur.t) && next.unbound == cur.unbound {
			converged = true
			break
		}
		*cur = next
		q.stamp++
	}
	if !converged {
		cur.t = q.fallback()
	}
	delete(q.loops, id)
	q.active--
	return q.remember(id, *cur)
}

// assigned is the narrowed type a name holds right after an assignment:
// the assigned value when it fits the declared type, else the declared
// type.
func (q *flowQuery) assigned(n *symbols.FlowNode) typesystem.Type {
	decl := q.v.Bind.Declaration(n.Node)
	if decl == nil {
		return typesystem.Unknown
	}
	t := q.e.assignedType(q.v, decl)
	if q.declared == nil || decl.Kind != symbols.DeclVariable {
		return t
	}
	if typesystem.IsUnknown(t) {
		return q.declared
	}
	if ok, _ := q.e.relation().Assignable(q.declared, t); ok {
		return t
	}
	return q.declared
}

// mentions reports whether cond reads name directly, which is the only
// shape narrowing understands.
func mentions(cond ast.Expression, name string) bool {
	switch c := cond.(type) {
	case *ast.Name:
		return c.Value == name
	case *ast.UnaryExpression:
		return mentions(c.Operand, name)
	case *ast.BinaryExpression:
		return mentions(c.Left, name) || mentions(c.Right, name)
	case *ast.CallExpression:
		for _, a := range c.Args {
			if mentions(a.Value, name) {
				return true
			}
		}
	}
	return false
}

// narrow refines t, the type of name, by the outcome of cond.
func (e *Evaluator) narrow(v *UnitView, cond ast.Expression, name string, positive bool, t typesystem.Type) typesystem.Type {
	switch c := cond.(type) {
	case *ast.Name:
		if c.Value != name {
			return t
		}
		if positive {
			return filter(t, func(m typesystem.Type) bool { return !typesystem.IsNone(m) && !falsyLiteral(m) })
		}
		return t

	case *ast.UnaryExpression:
		if c.Op == token.NOT {
			return e.narrow(v, c.Operand, name, !positive, t)
		}

	case *ast.BinaryExpression:
		subject, other := c.Left, c.Right
		if n, ok := other.(*ast.Name); ok && n.Value == name {
			subject, other = other, subject
		}
		sn, ok := subject.(*ast.Name)
		if !ok || sn.Value != name {
			return t
		}
		if _, isNone := other.(*ast.NoneLiteral); !isNone {
			return t
		}
		switch c.Op {
		case token.IS, token.EQ:
			if c.Negated {
				positive = !positive
			}
		case token.NOT_EQ:
			positive = !positive
		default:
			return t
		}
		if positive {
			if typesystem.IsUnknown(t) {
				return e.noneInstance()
			}
			return filter(t, typesystem.IsNone)
		}
		return filter(t, func(m typesystem.Type) bool { return !typesystem.IsNone(m) })

	case *ast.CallExpression:
		return e.narrowIsInstance(v, c, name, positive, t)
	}
	return t
}

func (e *Evaluator) narrowIsInstance(v *UnitView, c *ast.CallExpression, name string, positive bool, t typesystem.Type) typesystem.Type {
	fn, ok := c.Func.(*ast.Name)
	if !ok || fn.Value != config.IsInstanceFuncName || len(c.Args) != 2 {
		return t
	}
	if sn, ok := c.Args[0].Value.(*ast.Name); !ok || sn.Value != name {
		return t
	}
	if ref := e.resolveName(v, v.Bind.Refs[fn.ID()].Scope, fn.Value); !ref.ok() || ref.view.URI != uri.Builtins {
		return t
	}

	var classes []typesystem.TClass
	for _, m := range typesystem.Members(e.isinstanceFilter(v, c.Args[1].Value)) {
		if cls, ok := m.(typesystem.TClass); ok {
			classes = append(classes, cls)
		}
	}
	if len(classes) == 0 {
		return t
	}

	var out []typesystem.Type
	for _, m := range typesystem.Members(t) {
		mc, isInst := typesystem.ClassOf(m)
		switch {
		case !isInst:
			// Unknown, Any and type variables narrow to the filter itself.
			if positive {
				for _, cls := range classes {
					out = append(out, typesystem.TInstance{Class: cls})
				}
			} else {
				out = append(out, m)
			}
		case positive:
			for _, cls := range classes {
				if typesystem.IsSubclass(mc, cls.Ref) {
					out = append(out, m)
				} else if typesystem.IsSubclass(cls, mc.Ref) {
					out = append(out, typesystem.TInstance{Class: cls})
				}
			}
		default:
			matched := false
			for _, cls := range classes {
				if typesystem.IsSubclass(mc, cls.Ref) {
					matched = true
				}
			}
			if !matched {
				out = append(out, m)
			}
		}
	}
	return typesystem.NormalizeUnion(out)
}

// isinstanceFilter evaluates the second isinstance argument: a class or a
// tuple of classes.
func (e *Evaluator) isinstanceFilter(v *UnitView, x ast.Expression) typesystem.Type {
	if tup, ok := x.(*ast.TupleExpression); ok {
		var members []typesystem.Type
		for _, el := range tup.Elements {
			members = append(members, e.exprType(v, el, nil))
		}
		return typesystem.NormalizeUnion(members)
	}
	return e.exprType(v, x, nil)
}

func filter(t typesystem.Type, keep func(typesystem.Type) bool) typesystem.Type {
	var out []typesystem.Type
	for _, m := range typesystem.Members(t) {
		if keep(m) {
			out = append(out, m)
		}
	}
	return typesystem.NormalizeUnion(out)
}

func falsyLiteral(t typesystem.Type) bool {
	lit, ok := t.(typesystem.TLiteral)
	if !ok {
		return false
	}
	switch v := lit.Value.(type) {
	case bool:
		return !v
	case int64:
		return v == 0
	case string:
		return v == ""
	}
	return false
}
