package ast

import "github.com/funvibe/sable/internal/assert"

// Children returns the direct children of n in source order.
func Children(n Node) []Node {
	var out []Node
	add := func(nodes ...Node) {
		for _, c := range nodes {
			if c != nil && !isNilNode(c) {
				out = append(out, c)
			}
		}
	}
	addExprs := func(xs []Expression) {
		for _, x := range xs {
			add(x)
		}
	}
	addStmts := func(ss []Statement) {
		for _, s := range ss {
			add(s)
		}
	}

	switch n := n.(type) {
	case *Module:
		addStmts(n.Body)
	case *ExpressionStatement:
		add(n.X)
	case *AssignStatement:
		add(n.Target, n.Annotation, n.Value)
	case *AugAssignStatement:
		add(n.Target, n.Value)
	case *Param:
		add(n.Name, n.Annotation, n.Default)
	case *TypeParam:
		add(n.Name, n.Bound)
	case *FunctionDef:
		addExprs(n.Decorators)
		add(n.Name)
		for _, tp := range n.TypeParams {
			add(tp)
		}
		for _, p := range n.Params {
			add(p)
		}
		add(n.Returns)
		addStmts(n.Body)
	case *ClassDef:
		addExprs(n.Decorators)
		add(n.Name)
		for _, tp := range n.TypeParams {
			add(tp)
		}
		addExprs(n.Bases)
		addStmts(n.Body)
	case *IfStatement:
		add(n.Cond)
		addStmts(n.Body)
		addStmts(n.Else)
	case *WhileStatement:
		add(n.Cond)
		addStmts(n.Body)
		addStmts(n.Else)
	case *ForStatement:
		add(n.Target, n.Iter)
		addStmts(n.Body)
		addStmts(n.Else)
	case *ReturnStatement:
		add(n.Value)
	case *ImportAlias:
		add(n.AsName)
	case *ImportStatement:
		for _, a := range n.Names {
			add(a)
		}
	case *ImportFromStatement:
		for _, a := range n.Names {
			add(a)
		}
	case *GlobalStatement:
		for _, nm := range n.Names {
			add(nm)
		}
	case *NonlocalStatement:
		for _, nm := range n.Names {
			add(nm)
		}
	case *ErrorStatement:
		addExprs(n.Partial)
	case *BinaryExpression:
		add(n.Left, n.Right)
	case *UnaryExpression:
		add(n.Operand)
	case *Argument:
		add(n.Name, n.Value)
	case *CallExpression:
		add(n.Func)
		for _, a := range n.Args {
			add(a)
		}
	case *AttributeExpression:
		add(n.X, n.Attr)
	case *SubscriptExpression:
		add(n.X)
		addExprs(n.Index)
	case *ListExpression:
		addExprs(n.Elements)
	case *TupleExpression:
		addExprs(n.Elements)
	case *DictExpression:
		for i := range n.Keys {
			add(n.Keys[i], n.Values[i])
		}
	case *ListComprehension:
		add(n.Iter, n.Target, n.Cond, n.Element)
	case *ErrorExpression:
		add(n.Child)
	case *Name, *IntLiteral, *FloatLiteral, *StringLiteral, *BoolLiteral,
		*NoneLiteral, *EllipsisLiteral, *PassStatement, *BreakStatement, *ContinueStatement:
	default:
		assert.Unreachable(n)
	}
	return out
}

func isNilNode(n Node) bool {
	if nm, ok := n.(*Name); ok {
		return nm == nil
	}
	return false
}

// Inspect traverses the tree in depth-first order. If f returns false the
// children of that node are skipped.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	for _, c := range Children(n) {
		Inspect(c, f)
	}
}

// FindNodeAt returns the innermost expression covering line/column, or nil.
func FindNodeAt(root Node, line, col int) Expression {
	var found Expression
	Inspect(root, func(n Node) bool {
		if !n.Span().Contains(line, col) {
			_, isModule := n.(*Module)
			return isModule
		}
		if e, ok := n.(Expression); ok {
			found = e
		}
		return true
	})
	return found
}

// Index maps node IDs to nodes for one tree.
type Index struct {
	nodes  []Node
	parent []NodeID
}

// BuildIndex records every node of the tree by ID together with its parent.
func BuildIndex(root *Module, count int) *Index {
	idx := &Index{nodes: make([]Node, count+1), parent: make([]NodeID, count+1)}
	var visit func(n Node, parent NodeID)
	visit = func(n Node, parent NodeID) {
		id := n.ID()
		if int(id) < len(idx.nodes) {
			idx.nodes[id] = n
			idx.parent[id] = parent
		}
		for _, c := range Children(n) {
			visit(c, id)
		}
	}
	visit(root, 0)
	return idx
}

// Node returns the node with the given id, or nil.
func (idx *Index) Node(id NodeID) Node {
	if idx == nil || id <= 0 || int(id) >= len(idx.nodes) {
		return nil
	}
	return idx.nodes[id]
}

// Parent returns the parent of the node with the given id, or nil.
func (idx *Index) Parent(id NodeID) Node {
	if idx == nil || id <= 0 || int(id) >= len(idx.parent) {
		return nil
	}
	return idx.Node(idx.parent[id])
}

// Len is the number of node slots (highest id + 1).
func (idx *Index) Len() int { return len(idx.nodes) }
