package ast

import "github.com/funvibe/sable/internal/token"

type Name struct {
	base
	Value string
}

type IntLiteral struct {
	base
	Value int64
}

type FloatLiteral struct {
	base
	Value float64
}

type StringLiteral struct {
	base
	Value string
}

type BoolLiteral struct {
	base
	Value bool
}

type NoneLiteral struct{ base }

type EllipsisLiteral struct{ base }

// BinaryExpression covers arithmetic, comparisons and `and`/`or`.
// For `is not` Op is token.IS and Negated is set; likewise `not in`.
type BinaryExpression struct {
	base
	Op      token.TokenType
	Negated bool
	Left    Expression
	Right   Expression
}

type UnaryExpression struct {
	base
	Op      token.TokenType
	Operand Expression
}

// Argument is one call argument; Name is set for keyword arguments.
type Argument struct {
	base
	Name  *Name
	Value Expression
	Star  bool
}

type CallExpression struct {
	base
	Func Expression
	Args []*Argument
}

type AttributeExpression struct {
	base
	X    Expression
	Attr *Name
}

type SubscriptExpression struct {
	base
	X     Expression
	Index []Expression
}

type ListExpression struct {
	base
	Elements []Expression
}

type TupleExpression struct {
	base
	Elements []Expression
}

type DictExpression struct {
	base
	Keys   []Expression
	Values []Expression
}

// ListComprehension is `[Element for Target in Iter if Cond]`.
type ListComprehension struct {
	base
	Element Expression
	Target  Expression
	Iter    Expression
	Cond    Expression
}

// ErrorExpression stands in for an expression the parser could not build.
type ErrorExpression struct {
	base
	Child Expression
}

func (*Name) expressionNode()                {}
func (*IntLiteral) expressionNode()          {}
func (*FloatLiteral) expressionNode()        {}
func (*StringLiteral) expressionNode()       {}
func (*BoolLiteral) expressionNode()         {}
func (*NoneLiteral) expressionNode()         {}
func (*EllipsisLiteral) expressionNode()     {}
func (*BinaryExpression) expressionNode()    {}
func (*UnaryExpression) expressionNode()     {}
func (*CallExpression) expressionNode()      {}
func (*AttributeExpression) expressionNode() {}
func (*SubscriptExpression) expressionNode() {}
func (*ListExpression) expressionNode()      {}
func (*TupleExpression) expressionNode()     {}
func (*DictExpression) expressionNode()      {}
func (*ListComprehension) expressionNode()   {}
func (*ErrorExpression) expressionNode()     {}
