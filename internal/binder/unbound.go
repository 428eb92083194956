package binder

import (
	"fmt"

	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/symbols"
)

// checkUnbound reports reads of module and function locals that no
// assignment reaches on some (B002) or every (B001) path. Reads inside a
// nested function are not checked: by the time the function runs the
// enclosing scope has finished binding.
func (b *binder) checkUnbound() {
	for _, n := range b.loads {
		ref := b.res.Refs[n.ID()]
		if ref.Flow == symbols.FlowUnreachable {
			continue
		}
		owner := b.flowOwner(ref.Scope, n.Value)
		if owner == nil {
			continue
		}
		unbound, bound := b.reaches(ref.Flow, owner.ID, n.Value)
		switch {
		case unbound && !bound:
			b.res.Diagnostics = append(b.res.Diagnostics,
				diagnostics.Errorf(diagnostics.ErrB001, n.Span(), "%q is unbound", n.Value))
		case unbound:
			b.res.Diagnostics = append(b.res.Diagnostics,
				diagnostics.NewWarning(diagnostics.ErrB002, n.Span(), fmt.Sprintf("%q is possibly unbound", n.Value)))
		}
	}
}

// flowOwner returns the module or function scope whose flow a read of
// name in scope is checked against, or nil when the read is not checked.
func (b *binder) flowOwner(scope symbols.ScopeID, name string) *symbols.Scope {
	s := b.res.Scope(scope)
	for s != nil && s.Kind == symbols.ScopeComprehension {
		if s.Lookup(name) != nil {
			return nil
		}
		s = b.res.Scope(s.Parent)
	}
	if s == nil || (s.Kind != symbols.ScopeFunction && s.Kind != symbols.ScopeModule) {
		return nil
	}
	if s.IsGlobal(name) || s.IsNonlocal(name) || s.Lookup(name) == nil {
		return nil
	}
	return s
}

// reaches walks the flow graph backwards from start and reports whether
// the entry of scope (unbound) and an assignment of name (bound) are
// reachable.
func (b *binder) reaches(start symbols.FlowID, scope symbols.ScopeID, name string) (unbound, bound bool) {
	visited := make(map[symbols.FlowID]bool)
	stack := []symbols.FlowID{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true

		n := b.res.Flow(id)
		switch n.Kind {
		case symbols.FlowKindUnreachable:
			continue
		case symbols.FlowKindAssign:
			if n.Scope == scope && n.Name == name {
				bound = true
				continue
			}
		case symbols.FlowKindStart:
			if n.Scope == scope {
				unbound = true
				continue
			}
		}
		stack = append(stack, n.Antecedents...)
	}
	return unbound, bound
}
