// Package analyzer reports the semantic problems of one unit. The checker
// itself only compares types; everything it knows about them comes from
// the evaluator, whose own diagnostics are collected along the way.
package analyzer

import (
	"context"

	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/evaluator"
	"github.com/funvibe/sable/internal/symbols"
	"github.com/funvibe/sable/internal/typesystem"
	"github.com/funvibe/sable/internal/uri"
)

type checker struct {
	ctx   context.Context
	eval  *evaluator.Evaluator
	u     uri.URI
	bind  *symbols.Results
	index *ast.Index

	diags []*diagnostics.DiagnosticError
	// err is the first evaluator error; once set the walk stops.
	err error
}

func (c *checker) check(m *ast.Module) {
	c.walk(m)
	c.declarations()
}

func (c *checker) failed(err error) bool {
	if err != nil && c.err == nil {
		c.err = err
	}
	return c.err != nil
}

func (c *checker) errorf(code diagnostics.ErrorCode, span ast.Span, format string, args ...any) {
	c.diags = append(c.diags, diagnostics.Errorf(code, span, format, args...))
}

// walk asks for the type of every expression outside type annotations.
// Annotations are evaluated as types, attribute and keyword names are
// left to their owners.
func (c *checker) walk(n ast.Node) {
	if n == nil || c.err != nil {
		return
	}
	if c.bind.Unreachable[n.ID()] {
		return
	}
	switch n := n.(type) {
	case *ast.AssignStatement:
		c.annotation(n.Annotation)
		c.walk(n.Target)
		c.walk(n.Value)
		return
	case *ast.Param:
		c.annotation(n.Annotation)
		c.walk(n.Name)
		c.walk(n.Default)
		c.paramDefault(n)
		return
	case *ast.TypeParam:
		c.annotation(n.Bound)
		c.walk(n.Name)
		return
	case *ast.FunctionDef:
		for _, d := range n.Decorators {
			c.walk(d)
		}
		c.walk(n.Name)
		for _, tp := range n.TypeParams {
			c.walk(tp)
		}
		for _, p := range n.Params {
			c.walk(p)
		}
		c.annotation(n.Returns)
		for _, s := range n.Body {
			c.walk(s)
		}
		c.returns(n)
		return
	case *ast.AttributeExpression:
		c.expr(n)
		c.walk(n.X)
		return
	case *ast.Argument:
		c.walk(n.Value)
		return
	case *ast.ImportStatement, *ast.ImportFromStatement, *ast.GlobalStatement, *ast.NonlocalStatement:
		return
	}
	if x, ok := n.(ast.Expression); ok {
		c.expr(x)
	}
	for _, child := range ast.Children(n) {
		c.walk(child)
	}
}

func (c *checker) expr(x ast.Expression) typesystem.Type {
	t, err := c.eval.GetType(c.ctx, c.u, x.ID())
	if c.failed(err) {
		return typesystem.Unknown
	}
	return t
}

func (c *checker) annotation(x ast.Expression) typesystem.Type {
	if x == nil || c.err != nil {
		return nil
	}
	t, err := c.eval.AnnotationType(c.ctx, c.u, x.ID())
	if c.failed(err) {
		return nil
	}
	return t
}

func (c *checker) assignable(dst, src typesystem.Type) bool {
	ok, err := c.eval.Assignable(c.ctx, dst, src)
	if c.failed(err) {
		return true
	}
	return ok
}

func (c *checker) paramDefault(p *ast.Param) {
	if p.Annotation == nil || p.Default == nil || c.err != nil {
		return
	}
	want := c.annotation(p.Annotation)
	got := c.expr(p.Default)
	if want != nil && !c.assignable(want, got) {
		c.errorf(diagnostics.ErrT008, p.Default.Span(), "cannot assign %s to parameter %q of type %s", got, p.Name.Value, want)
	}
}

// returns checks every reachable return value of an annotated def.
func (c *checker) returns(fn *ast.FunctionDef) {
	info := c.bind.Functions[fn.ID()]
	if fn.Returns == nil || info == nil || c.err != nil {
		return
	}
	want := c.annotation(fn.Returns)
	if want == nil {
		return
	}
	for _, id := range info.Returns {
		if c.bind.Unreachable[id] {
			continue
		}
		rs, ok := c.index.Node(id).(*ast.ReturnStatement)
		if !ok || rs.Value == nil {
			continue
		}
		got := c.expr(rs.Value)
		if c.err != nil {
			return
		}
		if !c.assignable(want, got) {
			c.errorf(diagnostics.ErrT009, rs.Value.Span(), "cannot return %s from %q declared to return %s", got, fn.Name.Value, want)
		}
	}
}

// declarations checks assignments against declared types and from-imports
// against the imported module, scope by scope in declaration order.
func (c *checker) declarations() {
	for _, scope := range c.bind.Scopes {
		for _, name := range scope.Order {
			c.symbol(scope.Symbols[name])
		}
		for _, name := range scope.MemberOrder {
			c.symbol(scope.Members[name])
		}
		if c.err != nil {
			return
		}
	}
}

func (c *checker) symbol(sym *symbols.Symbol) {
	if sym == nil {
		return
	}
	var declared *symbols.Declaration
	for _, d := range sym.Decls {
		if d.Kind == symbols.DeclVariable && d.Annotation != 0 {
			declared = d
			break
		}
	}
	var want typesystem.Type
	if declared != nil {
		t, err := c.eval.DeclaredType(c.ctx, c.u, declared)
		if c.failed(err) {
			return
		}
		want = t
	}

	for _, d := range sym.Decls {
		if c.err != nil {
			return
		}
		switch d.Kind {
		case symbols.DeclImportFrom:
			ok, err := c.eval.ImportedSymbolExists(c.ctx, c.u, d)
			if !c.failed(err) && !ok {
				c.errorf(diagnostics.ErrI002, d.Span, "%q is not a member of module %q", d.SymbolName, moduleLabel(d))
			}
		case symbols.DeclVariable:
			if want == nil || c.bind.Unreachable[d.Stmt] {
				continue
			}
			if d.Source != symbols.SourceAssign && d.Source != symbols.SourceAugAssign && d.Source != symbols.SourceIterate {
				continue
			}
			got, err := c.eval.AssignedType(c.ctx, c.u, d)
			if c.failed(err) {
				return
			}
			if !c.assignable(want, got) {
				c.errorf(diagnostics.ErrT008, d.Span, "cannot assign %s to %q of declared type %s", got, d.Name, want)
			}
		}
	}
}

func moduleLabel(d *symbols.Declaration) string {
	dots := ""
	for i := 0; i < d.Level; i++ {
		dots += "."
	}
	return dots + d.ModuleName
}
