package symbols

import "github.com/funvibe/sable/internal/ast"

// ScopeID indexes Results.Scopes. The module scope is always 0.
type ScopeID int32

// NoScope is the parent of the module scope.
const NoScope ScopeID = -1

type ScopeKind int

const (
	ScopeModule ScopeKind = iota
	ScopeClass
	ScopeFunction
	ScopeComprehension
	ScopeTypeParams // `[T]` list of a def or class
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeModule:
		return "module"
	case ScopeClass:
		return "class"
	case ScopeFunction:
		return "function"
	case ScopeComprehension:
		return "comprehension"
	case ScopeTypeParams:
		return "type-params"
	}
	return "unknown"
}

// Scope is one lexical region and its symbol table.
type Scope struct {
	ID     ScopeID
	Kind   ScopeKind
	Parent ScopeID
	Node   ast.NodeID // the node that created the scope

	Symbols map[string]*Symbol
	Order   []string // names in first-declaration order

	// Members holds attributes assigned through `self.name = ...` in methods
	// of a class scope. They are visible through instances only, never to
	// name lookups inside the class body.
	Members     map[string]*Symbol
	MemberOrder []string

	Globals   map[string]bool
	Nonlocals map[string]bool
}

func newScope(id ScopeID, kind ScopeKind, parent ScopeID, node ast.NodeID) *Scope {
	return &Scope{
		ID:      id,
		Kind:    kind,
		Parent:  parent,
		Node:    node,
		Symbols: make(map[string]*Symbol),
	}
}

// Lookup returns the symbol declared directly in s, or nil.
func (s *Scope) Lookup(name string) *Symbol {
	return s.Symbols[name]
}

// Member returns the instance attribute declared for a class scope, or nil.
func (s *Scope) Member(name string) *Symbol {
	if s.Members == nil {
		return nil
	}
	return s.Members[name]
}

// Define returns the symbol for name in s, creating it on first use.
func (s *Scope) Define(name string) *Symbol {
	if sym, ok := s.Symbols[name]; ok {
		return sym
	}
	sym := &Symbol{Name: name}
	s.Symbols[name] = sym
	s.Order = append(s.Order, name)
	return sym
}

// DefineMember is Define for instance attributes.
func (s *Scope) DefineMember(name string) *Symbol {
	if s.Members == nil {
		s.Members = make(map[string]*Symbol)
	}
	if sym, ok := s.Members[name]; ok {
		return sym
	}
	sym := &Symbol{Name: name, Flags: FlagInstanceMember}
	s.Members[name] = sym
	s.MemberOrder = append(s.MemberOrder, name)
	return sym
}

func (s *Scope) IsGlobal(name string) bool   { return s.Globals[name] }
func (s *Scope) IsNonlocal(name string) bool { return s.Nonlocals[name] }
