package symbols

import (
	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/diagnostics"
)

// Ref records where a loaded name was read: the scope it was read in and
// the flow node reached at that point.
type Ref struct {
	Scope ScopeID
	Flow  FlowID
}

// Import is one module reference discovered while binding.
type Import struct {
	Stmt     ast.NodeID
	Module   string
	Level    int
	Names    []string // imported symbol names for `from m import a, b`
	Wildcard bool
	// Implicit marks the parent packages of `import a.b.c`. They are
	// dependency edges but never reported as unresolved.
	Implicit bool
	Span     ast.Span
}

// FunctionInfo collects what return inference needs about one def.
type FunctionInfo struct {
	Scope        ScopeID
	Returns      []ast.NodeID // ReturnStatement nodes in source order
	EndReachable bool         // control can fall off the end (implicit None)
}

// Results is everything the binder produces for one parse. It is never
// modified once published.
type Results struct {
	URI    string
	Scopes []*Scope
	Flows  []FlowNode

	// NodeScope maps a scope-creating node (Module, FunctionDef, ClassDef,
	// ListComprehension) to the scope of its body.
	NodeScope map[ast.NodeID]ScopeID
	// TypeParamScope maps a generic def or class to its type-params scope.
	TypeParamScope map[ast.NodeID]ScopeID

	// Refs holds every Name read and every string literal, which may be
	// a forward reference.
	Refs map[ast.NodeID]Ref
	Defs map[ast.NodeID]*Declaration

	Functions   map[ast.NodeID]*FunctionInfo
	Imports     []Import
	Wildcards   []Import
	Unreachable map[ast.NodeID]bool

	Diagnostics []*diagnostics.DiagnosticError
}

// NewResults returns empty results holding the unreachable flow node.
func NewResults(uri string) *Results {
	return &Results{
		URI:            uri,
		Flows:          []FlowNode{{Kind: FlowKindUnreachable}},
		NodeScope:      make(map[ast.NodeID]ScopeID),
		TypeParamScope: make(map[ast.NodeID]ScopeID),
		Refs:           make(map[ast.NodeID]Ref),
		Defs:           make(map[ast.NodeID]*Declaration),
		Functions:      make(map[ast.NodeID]*FunctionInfo),
		Unreachable:    make(map[ast.NodeID]bool),
	}
}

// AddScope appends a new scope and returns it.
func (r *Results) AddScope(kind ScopeKind, parent ScopeID, node ast.NodeID) *Scope {
	s := newScope(ScopeID(len(r.Scopes)), kind, parent, node)
	r.Scopes = append(r.Scopes, s)
	if kind == ScopeTypeParams {
		r.TypeParamScope[node] = s.ID
	} else {
		r.NodeScope[node] = s.ID
	}
	return s
}

// AddFlow appends a flow node and returns its id.
func (r *Results) AddFlow(n FlowNode) FlowID {
	r.Flows = append(r.Flows, n)
	return FlowID(len(r.Flows) - 1)
}

func (r *Results) Scope(id ScopeID) *Scope {
	if r == nil || id < 0 || int(id) >= len(r.Scopes) {
		return nil
	}
	return r.Scopes[id]
}

func (r *Results) Flow(id FlowID) *FlowNode {
	if r == nil || id < 0 || int(id) >= len(r.Flows) {
		return nil
	}
	return &r.Flows[id]
}

// Module is the module scope.
func (r *Results) Module() *Scope { return r.Scope(0) }

// Declaration returns the declaration keyed by node, or nil.
func (r *Results) Declaration(node ast.NodeID) *Declaration {
	if r == nil {
		return nil
	}
	return r.Defs[node]
}

// Resolve finds the scope that owns name as seen from scope from, walking
// outward. Class scopes are visible only from their own body; global and
// nonlocal statements redirect the search. It returns nil when no scope in
// this unit declares the name.
func (r *Results) Resolve(from ScopeID, name string) (*Symbol, *Scope) {
	s := r.Scope(from)
	first := true
	for s != nil {
		switch {
		case s.IsGlobal(name):
			m := r.Module()
			return m.Lookup(name), m
		case s.Kind == ScopeClass && !first:
		default:
			if s.IsNonlocal(name) {
				break
			}
			if sym := s.Lookup(name); sym != nil {
				return sym, s
			}
		}
		first = false
		s = r.Scope(s.Parent)
	}
	return nil, nil
}

// EnclosingClass returns the class scope a method scope is defined in.
func (r *Results) EnclosingClass(fn ScopeID) *Scope {
	s := r.Scope(fn)
	if s == nil || s.Kind != ScopeFunction {
		return nil
	}
	p := r.Scope(s.Parent)
	if p != nil && p.Kind == ScopeTypeParams {
		p = r.Scope(p.Parent)
	}
	if p != nil && p.Kind == ScopeClass {
		return p
	}
	return nil
}
