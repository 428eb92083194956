package symbols

import (
	"strings"

	"github.com/funvibe/sable/internal/ast"
)

type SymbolFlags uint8

const (
	FlagClassMember SymbolFlags = 1 << iota
	FlagInstanceMember
	FlagPrivate
)

// Symbol is one name in one scope. Decls are kept in source order; a name
// assigned in several branches, or an overload chain, has several.
type Symbol struct {
	Name  string
	Flags SymbolFlags
	Decls []*Declaration
}

func (s *Symbol) Has(f SymbolFlags) bool { return s.Flags&f != 0 }

// IsExported reports whether any declaration of s is externally visible.
func (s *Symbol) IsExported() bool {
	for _, d := range s.Decls {
		if d.IsExported {
			return true
		}
	}
	return false
}

// Last returns the last declaration in source order.
func (s *Symbol) Last() *Declaration {
	if len(s.Decls) == 0 {
		return nil
	}
	return s.Decls[len(s.Decls)-1]
}

type DeclKind int

const (
	DeclVariable DeclKind = iota
	DeclParam
	DeclFunction
	DeclClass
	DeclImport     // import a.b as c
	DeclImportFrom // from a import b
	DeclTypeParam
)

func (k DeclKind) String() string {
	switch k {
	case DeclVariable:
		return "variable"
	case DeclParam:
		return "parameter"
	case DeclFunction:
		return "function"
	case DeclClass:
		return "class"
	case DeclImport:
		return "import"
	case DeclImportFrom:
		return "import-from"
	case DeclTypeParam:
		return "type-parameter"
	}
	return "unknown"
}

// DeclSource says how a variable received its value.
type DeclSource int

const (
	SourceNone      DeclSource = iota // bare annotation `x: int`
	SourceAssign                      // x = value
	SourceIterate                     // for x in value, [... for x in value]
	SourceAugAssign                   // x += value
)

// Declaration is one binding site. Node is the key node of the binding:
// the target Name of an assignment, the Name of a Param, the FunctionDef or
// ClassDef, the ImportAlias, the TypeParam, or the Attr name of
// `self.attr = v`.
type Declaration struct {
	Kind  DeclKind
	Name  string
	Node  ast.NodeID
	Stmt  ast.NodeID // enclosing statement
	Scope ScopeID
	Span  ast.Span

	Annotation ast.NodeID
	Value      ast.NodeID
	Source     DeclSource
	// Unpack is the path of tuple indices from Value to the target, empty
	// for a plain target.
	Unpack []int

	// Imports.
	ModuleName string
	Level      int
	SymbolName string

	IsExported bool
	// InstanceMember is set for `self.attr = value` inside a method.
	InstanceMember bool
	// Flow is the assignment flow node created for this declaration, or
	// FlowUnreachable when the binding is not a flow event.
	Flow FlowID
}

// IsPrivateName reports a leading-underscore name that is not a dunder.
func IsPrivateName(name string) bool {
	return strings.HasPrefix(name, "_") && !(strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__"))
}
