package ast

import "github.com/funvibe/sable/internal/token"

// ExpressionStatement wraps an expression evaluated for effect.
type ExpressionStatement struct {
	base
	X Expression
}

// AssignStatement covers `target = value`, `target: T = value` and the bare
// declaration `target: T` (Value == nil).
type AssignStatement struct {
	base
	Target     Expression
	Annotation Expression
	Value      Expression
}

// AugAssignStatement is `target += value` / `target -= value`.
type AugAssignStatement struct {
	base
	Target Expression
	Op     token.TokenType
	Value  Expression
}

type ParamKind int

const (
	ParamPositional ParamKind = iota
	ParamVarArgs              // *args
	ParamKwArgs               // **kwargs
)

type Param struct {
	base
	Name       *Name
	Annotation Expression
	Default    Expression
	Kind       ParamKind
}

type TypeParam struct {
	base
	Name  *Name
	Bound Expression
}

// FunctionDef is `def name[T](params) -> returns: body`.
type FunctionDef struct {
	base
	Name       *Name
	TypeParams []*TypeParam
	Params     []*Param
	Returns    Expression
	Body       []Statement
	Decorators []Expression
	Doc        string
}

// ClassDef is `class Name[T](bases): body`.
type ClassDef struct {
	base
	Name       *Name
	TypeParams []*TypeParam
	Bases      []Expression
	Body       []Statement
	Decorators []Expression
	Doc        string
}

// IfStatement models `elif` chains as a nested IfStatement in Else.
type IfStatement struct {
	base
	Cond Expression
	Body []Statement
	Else []Statement
}

type WhileStatement struct {
	base
	Cond Expression
	Body []Statement
	Else []Statement
}

type ForStatement struct {
	base
	Target Expression
	Iter   Expression
	Body   []Statement
	Else   []Statement
}

type ReturnStatement struct {
	base
	Value Expression
}

type PassStatement struct{ base }

type BreakStatement struct{ base }

type ContinueStatement struct{ base }

// ImportAlias is one `a.b.c as d` clause.
type ImportAlias struct {
	base
	Name   string // dotted module or symbol name
	AsName *Name
}

// BoundName returns the name the alias introduces into scope.
func (ia *ImportAlias) BoundName() string {
	if ia.AsName != nil {
		return ia.AsName.Value
	}
	for i := 0; i < len(ia.Name); i++ {
		if ia.Name[i] == '.' {
			return ia.Name[:i]
		}
	}
	return ia.Name
}

// ImportStatement is `import a.b as c, d`.
type ImportStatement struct {
	base
	Names []*ImportAlias
}

// ImportFromStatement is `from ..a.b import x as y` or `from a import *`.
type ImportFromStatement struct {
	base
	Module   string
	Level    int // number of leading dots
	Names    []*ImportAlias
	Wildcard bool
}

type GlobalStatement struct {
	base
	Names []*Name
}

type NonlocalStatement struct {
	base
	Names []*Name
}

// ErrorStatement stands in for a statement the parser could not recover.
type ErrorStatement struct {
	base
	Partial []Expression
}

func (*ExpressionStatement) statementNode() {}
func (*AssignStatement) statementNode()     {}
func (*AugAssignStatement) statementNode()  {}
func (*FunctionDef) statementNode()         {}
func (*ClassDef) statementNode()            {}
func (*IfStatement) statementNode()         {}
func (*WhileStatement) statementNode()      {}
func (*ForStatement) statementNode()        {}
func (*ReturnStatement) statementNode()     {}
func (*PassStatement) statementNode()       {}
func (*BreakStatement) statementNode()      {}
func (*ContinueStatement) statementNode()   {}
func (*ImportStatement) statementNode()     {}
func (*ImportFromStatement) statementNode() {}
func (*GlobalStatement) statementNode()     {}
func (*NonlocalStatement) statementNode()   {}
func (*ErrorStatement) statementNode()      {}
