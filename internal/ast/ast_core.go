package ast

import (
	"github.com/funvibe/sable/internal/token"
)

// NodeID identifies a node within one parse of one unit. IDs are assigned in
// parse order starting at 1; 0 means "no node".
type NodeID int32

// Span is the source range covered by a node.
type Span struct {
	Start token.Position
	End   token.Position
}

// Contains reports whether the 1-based line/column falls inside the span.
func (s Span) Contains(line, col int) bool {
	if line < s.Start.Line || line > s.End.Line {
		return false
	}
	if line == s.Start.Line && col < s.Start.Column {
		return false
	}
	if line == s.End.Line && col >= s.End.Column {
		return false
	}
	return true
}

// Node is the base interface for all AST nodes.
type Node interface {
	ID() NodeID
	Span() Span
}

// Statement is a Node that represents a statement.
type Statement interface {
	Node
	statementNode()
}

// Expression is a Node that represents an expression.
type Expression interface {
	Node
	expressionNode()
}

type base struct {
	NodeID   NodeID
	NodeSpan Span
}

func (b *base) ID() NodeID { return b.NodeID }
func (b *base) Span() Span { return b.NodeSpan }

// Init assigns identity and span; used by the parser.
func (b *base) Init(id NodeID, start token.Position) {
	b.NodeID = id
	b.NodeSpan.Start = start
	b.NodeSpan.End = start
}

// SetEnd closes the node's span.
func (b *base) SetEnd(p token.Position) { b.NodeSpan.End = p }

// Module is the root node of every tree the parser produces.
type Module struct {
	base
	File string
	Body []Statement
	Doc  string
}
