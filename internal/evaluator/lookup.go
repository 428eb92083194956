package evaluator

import (
	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/symbols"
	"github.com/funvibe/sable/internal/typesystem"
	"github.com/funvibe/sable/internal/uri"
)

// maxWildcardDepth bounds `from m import *` chains followed transitively.
const maxWildcardDepth = 8

// symbolRef is a symbol found by name lookup together with its home.
type symbolRef struct {
	view  *UnitView
	scope *symbols.Scope
	sym   *symbols.Symbol
}

func (r symbolRef) ok() bool { return r.sym != nil }

// resolveName finds name as seen from scope from of unit v. The search
// order is the lexical scopes of v (class scopes skipped for nested
// functions), then wildcard imports, then the chain of predecessor cells,
// then builtins.
func (e *Evaluator) resolveName(v *UnitView, from symbols.ScopeID, name string) symbolRef {
	if sym, s := v.Bind.Resolve(from, name); sym != nil {
		return symbolRef{v, s, sym}
	}
	return e.resolveGlobal(v, name)
}

// resolveGlobal continues the search past the module scope of v.
func (e *Evaluator) resolveGlobal(v *UnitView, name string) symbolRef {
	if r := e.fromWildcards(v, name, 0); r.ok() {
		return r
	}

	seen := map[uri.URI]bool{v.URI: true}
	for p := e.host.ChainedPredecessor(v.URI); p != "" && !seen[p]; p = e.host.ChainedPredecessor(p) {
		seen[p] = true
		pv := e.view(p)
		if pv == nil {
			break
		}
		m := pv.Bind.Module()
		if sym := m.Lookup(name); sym != nil {
			return symbolRef{pv, m, sym}
		}
		if r := e.fromWildcards(pv, name, 0); r.ok() {
			return r
		}
	}

	if v.URI != uri.Builtins {
		if bv := e.view(uri.Builtins); bv != nil {
			m := bv.Bind.Module()
			if sym := m.Lookup(name); sym != nil {
				return symbolRef{bv, m, sym}
			}
		}
	}
	return symbolRef{}
}

func (e *Evaluator) fromWildcards(v *UnitView, name string, depth int) symbolRef {
	if depth > maxWildcardDepth {
		return symbolRef{}
	}
	for _, imp := range v.Bind.Wildcards {
		res := e.host.ResolveImport(v.URI, imp.Module, imp.Level)
		if !res.Resolved {
			continue
		}
		mv := e.view(res.URI)
		if mv == nil {
			continue
		}
		m := mv.Bind.Module()
		if sym := m.Lookup(name); sym != nil && visibleThroughWildcard(mv, sym) {
			return symbolRef{mv, m, sym}
		}
		if r := e.fromWildcards(mv, name, depth+1); r.ok() {
			return r
		}
	}
	return symbolRef{}
}

func visibleThroughWildcard(v *UnitView, sym *symbols.Symbol) bool {
	if v.IsStub() {
		return sym.IsExported()
	}
	return !symbols.IsPrivateName(sym.Name)
}

// moduleMember finds name among the top-level bindings of the module unit
// u. Names imported into a stub without re-export are hidden.
func (e *Evaluator) moduleMember(u uri.URI, name string) symbolRef {
	mv := e.view(u)
	if mv == nil {
		return symbolRef{}
	}
	m := mv.Bind.Module()
	sym := m.Lookup(name)
	if sym == nil {
		return e.fromWildcards(mv, name, 0)
	}
	if mv.IsStub() && !sym.IsExported() {
		if k := sym.Last().Kind; k == symbols.DeclImport || k == symbols.DeclImportFrom {
			return symbolRef{}
		}
	}
	return symbolRef{mv, m, sym}
}

// flowScopes reports whether a read in scope from can follow the flow graph
// up to the owning scope: only comprehension and class scopes, which
// execute inline, may sit between them.
func flowScopes(r *symbols.Results, from symbols.ScopeID, owner *symbols.Scope) bool {
	switch owner.Kind {
	case symbols.ScopeModule, symbols.ScopeFunction, symbols.ScopeClass, symbols.ScopeComprehension:
	default:
		return false
	}
	for s := r.Scope(from); s != nil; s = r.Scope(s.Parent) {
		if s.ID == owner.ID {
			return true
		}
		if s.Kind != symbols.ScopeComprehension && s.Kind != symbols.ScopeClass {
			return false
		}
	}
	return false
}

// nameType is the type of a name read at n.
func (e *Evaluator) nameType(v *UnitView, n *ast.Name) typesystem.Type {
	ref, ok := v.Bind.Refs[n.ID()]
	if !ok {
		return typesystem.Unknown
	}
	sym, owner := v.Bind.Resolve(ref.Scope, n.Value)
	if sym != nil && flowScopes(v.Bind, ref.Scope, owner) {
		declared := e.declaredSymbolType(v, sym)
		t, unbound := e.flowType(v, ref.Flow, owner.ID, n.Value, declared)
		if !unbound {
			return t
		}
		// Module and class names may also come from further out.
		if owner.Kind == symbols.ScopeModule || owner.Kind == symbols.ScopeClass {
			var outer symbolRef
			if owner.Kind == symbols.ScopeModule {
				outer = e.resolveGlobal(v, n.Value)
			} else {
				outer = e.resolveName(v, owner.Parent, n.Value)
			}
			if outer.ok() {
				return typesystem.Union(t, e.symbolType(outer))
			}
		}
		if _, never := t.(typesystem.TNever); never {
			return typesystem.Unknown
		}
		return t
	}
	if sym != nil {
		return e.symbolType(symbolRef{v, owner, sym})
	}

	r := e.resolveGlobal(v, n.Value)
	if !r.ok() {
		e.errorf(v.URI, diagnostics.ErrT010, n, "%q is not defined", n.Value)
		return typesystem.Unknown
	}
	return e.symbolType(r)
}
