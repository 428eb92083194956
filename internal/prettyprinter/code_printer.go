package prettyprinter

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/token"
)

// --- Code Printer (Output looks like source code) ---

// Operator precedence (higher = binds tighter)
var operatorPrecedence = map[token.TokenType]int{
	token.OR:       1,
	token.AND:      2,
	token.NOT:      3,
	token.EQ:       4,
	token.NOT_EQ:   4,
	token.LT:       4,
	token.GT:       4,
	token.LT_EQ:    4,
	token.GT_EQ:    4,
	token.IN:       4,
	token.IS:       4,
	token.PLUS:     5,
	token.MINUS:    5,
	token.ASTERISK: 6,
	token.SLASH:    6,
	token.PERCENT:  6,
	token.POWER:    8, // right-assoc
}

const unaryPrecedence = 7

func getPrecedence(op token.TokenType) int {
	if p, ok := operatorPrecedence[op]; ok {
		return p
	}
	return 10
}

var opText = map[token.TokenType]string{
	token.OR:  "or",
	token.AND: "and",
	token.NOT: "not",
	token.IN:  "in",
	token.IS:  "is",
}

func opString(op token.TokenType, negated bool) string {
	s, ok := opText[op]
	if !ok {
		s = string(op)
	}
	if negated {
		switch op {
		case token.IS:
			return "is not"
		case token.IN:
			return "not in"
		}
	}
	return s
}

type CodePrinter struct {
	buf    bytes.Buffer
	indent int
}

func NewCodePrinter() *CodePrinter {
	return &CodePrinter{}
}

func (p *CodePrinter) String() string { return p.buf.String() }

func (p *CodePrinter) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.buf.WriteString("    ")
	}
}

// Expr renders a single expression.
func Expr(e ast.Expression) string {
	p := NewCodePrinter()
	p.expr(e, 0)
	return p.String()
}

// Module renders a whole tree, one statement per line.
func Module(m *ast.Module) string {
	p := NewCodePrinter()
	p.block(m.Body)
	return p.String()
}

func (p *CodePrinter) block(body []ast.Statement) {
	if len(body) == 0 {
		p.writeIndent()
		p.buf.WriteString("pass\n")
		return
	}
	for _, s := range body {
		p.stmt(s)
	}
}

func (p *CodePrinter) nested(body []ast.Statement) {
	p.buf.WriteString(":\n")
	p.indent++
	p.block(body)
	p.indent--
}

func (p *CodePrinter) stmt(s ast.Statement) {
	switch s := s.(type) {
	case *ast.FunctionDef:
		for _, d := range s.Decorators {
			p.writeIndent()
			p.buf.WriteString("@")
			p.expr(d, 0)
			p.buf.WriteString("\n")
		}
		p.writeIndent()
		p.buf.WriteString("def " + s.Name.Value)
		p.typeParams(s.TypeParams)
		p.buf.WriteString("(")
		for i, prm := range s.Params {
			if i > 0 {
				p.buf.WriteString(", ")
			}
			switch prm.Kind {
			case ast.ParamVarArgs:
				p.buf.WriteString("*")
			case ast.ParamKwArgs:
				p.buf.WriteString("**")
			}
			p.buf.WriteString(prm.Name.Value)
			if prm.Annotation != nil {
				p.buf.WriteString(": ")
				p.expr(prm.Annotation, 0)
			}
			if prm.Default != nil {
				p.buf.WriteString(" = ")
				p.expr(prm.Default, 0)
			}
		}
		p.buf.WriteString(")")
		if s.Returns != nil {
			p.buf.WriteString(" -> ")
			p.expr(s.Returns, 0)
		}
		p.nested(s.Body)
		return
	case *ast.ClassDef:
		for _, d := range s.Decorators {
			p.writeIndent()
			p.buf.WriteString("@")
			p.expr(d, 0)
			p.buf.WriteString("\n")
		}
		p.writeIndent()
		p.buf.WriteString("class " + s.Name.Value)
		p.typeParams(s.TypeParams)
		if len(s.Bases) > 0 {
			p.buf.WriteString("(")
			p.exprList(s.Bases)
			p.buf.WriteString(")")
		}
		p.nested(s.Body)
		return
	case *ast.IfStatement:
		p.writeIndent()
		p.ifChain(s)
		return
	case *ast.WhileStatement:
		p.writeIndent()
		p.buf.WriteString("while ")
		p.expr(s.Cond, 0)
		p.nested(s.Body)
		p.elseBlock(s.Else)
		return
	case *ast.ForStatement:
		p.writeIndent()
		p.buf.WriteString("for ")
		p.expr(s.Target, 0)
		p.buf.WriteString(" in ")
		p.expr(s.Iter, 0)
		p.nested(s.Body)
		p.elseBlock(s.Else)
		return
	}

	p.writeIndent()
	switch s := s.(type) {
	case *ast.ExpressionStatement:
		p.expr(s.X, 0)
	case *ast.AssignStatement:
		p.expr(s.Target, 0)
		if s.Annotation != nil {
			p.buf.WriteString(": ")
			p.expr(s.Annotation, 0)
		}
		if s.Value != nil {
			p.buf.WriteString(" = ")
			p.expr(s.Value, 0)
		}
	case *ast.AugAssignStatement:
		p.expr(s.Target, 0)
		p.buf.WriteString(" " + string(s.Op) + " ")
		p.expr(s.Value, 0)
	case *ast.ReturnStatement:
		p.buf.WriteString("return")
		if s.Value != nil {
			p.buf.WriteString(" ")
			p.expr(s.Value, 0)
		}
	case *ast.PassStatement:
		p.buf.WriteString("pass")
	case *ast.BreakStatement:
		p.buf.WriteString("break")
	case *ast.ContinueStatement:
		p.buf.WriteString("continue")
	case *ast.ImportStatement:
		p.buf.WriteString("import ")
		p.aliases(s.Names)
	case *ast.ImportFromStatement:
		p.buf.WriteString("from " + strings.Repeat(".", s.Level) + s.Module + " import ")
		if s.Wildcard {
			p.buf.WriteString("*")
		} else {
			p.aliases(s.Names)
		}
	case *ast.GlobalStatement:
		p.buf.WriteString("global ")
		p.names(s.Names)
	case *ast.NonlocalStatement:
		p.buf.WriteString("nonlocal ")
		p.names(s.Names)
	case *ast.ErrorStatement:
		p.buf.WriteString("<error>")
	}
	p.buf.WriteString("\n")
}

func (p *CodePrinter) ifChain(s *ast.IfStatement) {
	p.buf.WriteString("if ")
	p.expr(s.Cond, 0)
	p.nested(s.Body)
	if len(s.Else) == 1 {
		if elif, ok := s.Else[0].(*ast.IfStatement); ok {
			p.writeIndent()
			p.buf.WriteString("el")
			p.ifChain(elif)
			return
		}
	}
	p.elseBlock(s.Else)
}

func (p *CodePrinter) elseBlock(body []ast.Statement) {
	if len(body) == 0 {
		return
	}
	p.writeIndent()
	p.buf.WriteString("else")
	p.nested(body)
}

func (p *CodePrinter) typeParams(tps []*ast.TypeParam) {
	if len(tps) == 0 {
		return
	}
	p.buf.WriteString("[")
	for i, tp := range tps {
		if i > 0 {
			p.buf.WriteString(", ")
		}
		p.buf.WriteString(tp.Name.Value)
		if tp.Bound != nil {
			p.buf.WriteString(": ")
			p.expr(tp.Bound, 0)
		}
	}
	p.buf.WriteString("]")
}

func (p *CodePrinter) aliases(as []*ast.ImportAlias) {
	for i, a := range as {
		if i > 0 {
			p.buf.WriteString(", ")
		}
		p.buf.WriteString(a.Name)
		if a.AsName != nil {
			p.buf.WriteString(" as " + a.AsName.Value)
		}
	}
}

func (p *CodePrinter) names(ns []*ast.Name) {
	for i, n := range ns {
		if i > 0 {
			p.buf.WriteString(", ")
		}
		p.buf.WriteString(n.Value)
	}
}

func (p *CodePrinter) exprList(xs []ast.Expression) {
	for i, x := range xs {
		if i > 0 {
			p.buf.WriteString(", ")
		}
		p.expr(x, 0)
	}
}

// expr writes e, parenthesizing when its precedence is below minPrec.
func (p *CodePrinter) expr(e ast.Expression, minPrec int) {
	switch e := e.(type) {
	case *ast.Name:
		p.buf.WriteString(e.Value)
	case *ast.IntLiteral:
		p.buf.WriteString(strconv.FormatInt(e.Value, 10))
	case *ast.FloatLiteral:
		p.buf.WriteString(strconv.FormatFloat(e.Value, 'g', -1, 64))
	case *ast.StringLiteral:
		p.buf.WriteString(strconv.Quote(e.Value))
	case *ast.BoolLiteral:
		if e.Value {
			p.buf.WriteString("True")
		} else {
			p.buf.WriteString("False")
		}
	case *ast.NoneLiteral:
		p.buf.WriteString("None")
	case *ast.EllipsisLiteral:
		p.buf.WriteString("...")
	case *ast.BinaryExpression:
		prec := getPrecedence(e.Op)
		if prec < minPrec {
			p.buf.WriteString("(")
		}
		leftPrec, rightPrec := prec, prec+1
		if e.Op == token.POWER {
			leftPrec, rightPrec = prec+1, prec
		}
		p.expr(e.Left, leftPrec)
		p.buf.WriteString(" " + opString(e.Op, e.Negated) + " ")
		p.expr(e.Right, rightPrec)
		if prec < minPrec {
			p.buf.WriteString(")")
		}
	case *ast.UnaryExpression:
		prec := unaryPrecedence
		if e.Op == token.NOT {
			prec = getPrecedence(token.NOT)
		}
		if prec < minPrec {
			p.buf.WriteString("(")
		}
		if e.Op == token.NOT {
			p.buf.WriteString("not ")
		} else {
			p.buf.WriteString(string(e.Op))
		}
		p.expr(e.Operand, prec)
		if prec < minPrec {
			p.buf.WriteString(")")
		}
	case *ast.CallExpression:
		p.expr(e.Func, 10)
		p.buf.WriteString("(")
		for i, a := range e.Args {
			if i > 0 {
				p.buf.WriteString(", ")
			}
			if a.Star {
				p.buf.WriteString("*")
			}
			if a.Name != nil {
				p.buf.WriteString(a.Name.Value + "=")
			}
			p.expr(a.Value, 0)
		}
		p.buf.WriteString(")")
	case *ast.AttributeExpression:
		p.expr(e.X, 10)
		p.buf.WriteString("." + e.Attr.Value)
	case *ast.SubscriptExpression:
		p.expr(e.X, 10)
		p.buf.WriteString("[")
		p.exprList(e.Index)
		p.buf.WriteString("]")
	case *ast.ListExpression:
		p.buf.WriteString("[")
		p.exprList(e.Elements)
		p.buf.WriteString("]")
	case *ast.TupleExpression:
		p.buf.WriteString("(")
		p.exprList(e.Elements)
		if len(e.Elements) == 1 {
			p.buf.WriteString(",")
		}
		p.buf.WriteString(")")
	case *ast.DictExpression:
		p.buf.WriteString("{")
		for i := range e.Keys {
			if i > 0 {
				p.buf.WriteString(", ")
			}
			p.expr(e.Keys[i], 0)
			p.buf.WriteString(": ")
			p.expr(e.Values[i], 0)
		}
		p.buf.WriteString("}")
	case *ast.ListComprehension:
		p.buf.WriteString("[")
		p.expr(e.Element, 0)
		p.buf.WriteString(" for ")
		p.expr(e.Target, 0)
		p.buf.WriteString(" in ")
		p.expr(e.Iter, 1)
		if e.Cond != nil {
			p.buf.WriteString(" if ")
			p.expr(e.Cond, 1)
		}
		p.buf.WriteString("]")
	case *ast.ErrorExpression:
		p.buf.WriteString("<error>")
	}
}
