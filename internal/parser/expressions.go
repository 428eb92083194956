package parser

import (
	"strconv"
	"strings"

	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/token"
)

// parseTestList parses `a, b, c` into a tuple, or a single expression.
func (p *Parser) parseTestList() ast.Expression {
	startPos := p.cur.Pos
	first := p.parseTest()
	if !p.at(token.COMMA) {
		return first
	}
	tup := &ast.TupleExpression{Elements: []ast.Expression{first}}
	p.start(tup, startPos)
	for p.accept(token.COMMA) {
		if p.atExpressionEnd() {
			break
		}
		tup.Elements = append(tup.Elements, p.parseTest())
	}
	p.finish(tup)
	return tup
}

// parseTargetList is parseTestList restricted to expressions that cannot
// contain a bare comparison, so `for x in xs` stops before `in`.
func (p *Parser) parseTargetList() ast.Expression {
	startPos := p.cur.Pos
	first := p.parseArith()
	if !p.at(token.COMMA) {
		return first
	}
	tup := &ast.TupleExpression{Elements: []ast.Expression{first}}
	p.start(tup, startPos)
	for p.accept(token.COMMA) {
		if p.at(token.IN) || p.atExpressionEnd() {
			break
		}
		tup.Elements = append(tup.Elements, p.parseArith())
	}
	p.finish(tup)
	return tup
}

func (p *Parser) atExpressionEnd() bool {
	switch p.cur.Type {
	case token.NEWLINE, token.SEMICOLON, token.EOF, token.DEDENT, token.INDENT,
		token.RPAREN, token.RBRACKET, token.RBRACE, token.ASSIGN, token.COLON,
		token.PLUS_ASSIGN, token.MINUS_ASSIGN:
		return true
	}
	return false
}

func (p *Parser) parseTest() ast.Expression {
	return p.parseOr()
}

func (p *Parser) parseOr() ast.Expression {
	left := p.parseAnd()
	for p.at(token.OR) {
		p.advance()
		left = p.binary(token.OR, false, left, p.parseAnd())
	}
	return left
}

func (p *Parser) parseAnd() ast.Expression {
	left := p.parseNot()
	for p.at(token.AND) {
		p.advance()
		left = p.binary(token.AND, false, left, p.parseNot())
	}
	return left
}

func (p *Parser) parseNot() ast.Expression {
	if p.at(token.NOT) {
		u := &ast.UnaryExpression{Op: token.NOT}
		p.start(u, p.cur.Pos)
		p.advance()
		u.Operand = p.parseNot()
		p.finish(u)
		return u
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() ast.Expression {
	left := p.parseArith()
	for {
		op, negated, ok := p.comparisonOp()
		if !ok {
			return left
		}
		left = p.binary(op, negated, left, p.parseArith())
	}
}

// comparisonOp consumes a comparison operator if one is next.
func (p *Parser) comparisonOp() (token.TokenType, bool, bool) {
	switch p.cur.Type {
	case token.EQ, token.NOT_EQ, token.LT, token.GT, token.LT_EQ, token.GT_EQ, token.IN:
		return p.advance().Type, false, true
	case token.IS:
		p.advance()
		return token.IS, p.accept(token.NOT), true
	case token.NOT:
		if p.peek().Type == token.IN {
			p.advance()
			p.advance()
			return token.IN, true, true
		}
	}
	return "", false, false
}

func (p *Parser) parseArith() ast.Expression {
	left := p.parseTerm()
	for p.at(token.PLUS) || p.at(token.MINUS) {
		op := p.advance().Type
		left = p.binary(op, false, left, p.parseTerm())
	}
	return left
}

func (p *Parser) parseTerm() ast.Expression {
	left := p.parseFactor()
	for p.at(token.ASTERISK) || p.at(token.SLASH) || p.at(token.PERCENT) {
		op := p.advance().Type
		left = p.binary(op, false, left, p.parseFactor())
	}
	return left
}

func (p *Parser) parseFactor() ast.Expression {
	if p.at(token.MINUS) || p.at(token.PLUS) {
		u := &ast.UnaryExpression{Op: p.cur.Type}
		p.start(u, p.cur.Pos)
		p.advance()
		u.Operand = p.parseFactor()
		p.finish(u)
		return u
	}
	return p.parsePower()
}

func (p *Parser) parsePower() ast.Expression {
	base := p.parsePrimary()
	if p.at(token.POWER) {
		p.advance()
		return p.binary(token.POWER, false, base, p.parseFactor())
	}
	return base
}

func (p *Parser) binary(op token.TokenType, negated bool, left, right ast.Expression) ast.Expression {
	b := &ast.BinaryExpression{Op: op, Negated: negated, Left: left, Right: right}
	p.start(b, left.Span().Start)
	p.finish(b)
	return b
}

func (p *Parser) parsePrimary() ast.Expression {
	x := p.parseAtom()
	for {
		switch p.cur.Type {
		case token.LPAREN:
			call := &ast.CallExpression{Func: x}
			p.start(call, x.Span().Start)
			p.advance()
			call.Args = p.parseArguments()
			p.expect(token.RPAREN, "')'")
			p.finish(call)
			x = call
		case token.DOT:
			attr := &ast.AttributeExpression{X: x}
			p.start(attr, x.Span().Start)
			p.advance()
			attr.Attr = p.parseName()
			p.finish(attr)
			x = attr
		case token.LBRACKET:
			sub := &ast.SubscriptExpression{X: x}
			p.start(sub, x.Span().Start)
			p.advance()
			for !p.at(token.RBRACKET) && !p.atStatementEnd() {
				sub.Index = append(sub.Index, p.parseTest())
				if !p.accept(token.COMMA) {
					break
				}
			}
			if len(sub.Index) == 0 {
				p.errorf(diagnostics.ErrP001, p.cur, "expected subscript, found %s", describe(p.cur))
			}
			p.expect(token.RBRACKET, "']'")
			p.finish(sub)
			x = sub
		default:
			return x
		}
	}
}

func (p *Parser) parseArguments() []*ast.Argument {
	var args []*ast.Argument
	for !p.at(token.RPAREN) && !p.atStatementEnd() {
		arg := &ast.Argument{}
		p.start(arg, p.cur.Pos)
		switch {
		case p.at(token.ASTERISK), p.at(token.POWER):
			p.advance()
			arg.Star = true
		case p.at(token.IDENT) && p.peek().Type == token.ASSIGN:
			arg.Name = p.parseName()
			p.advance() // =
		}
		arg.Value = p.parseTest()
		p.finish(arg)
		args = append(args, arg)
		if !p.accept(token.COMMA) {
			break
		}
	}
	return args
}

func (p *Parser) parseAtom() ast.Expression {
	tok := p.cur
	switch tok.Type {
	case token.IDENT:
		n := &ast.Name{Value: tok.Literal}
		p.start(n, tok.Pos)
		p.advance()
		p.finish(n)
		return n
	case token.INT:
		lit := &ast.IntLiteral{}
		p.start(lit, tok.Pos)
		p.advance()
		v, err := strconv.ParseInt(strings.ReplaceAll(tok.Lexeme, "_", ""), 0, 64)
		if err != nil {
			p.errorf(diagnostics.ErrP004, tok, "invalid integer literal %s", tok.Lexeme)
		}
		lit.Value = v
		p.finish(lit)
		return lit
	case token.FLOAT:
		lit := &ast.FloatLiteral{}
		p.start(lit, tok.Pos)
		p.advance()
		v, err := strconv.ParseFloat(strings.ReplaceAll(tok.Lexeme, "_", ""), 64)
		if err != nil {
			p.errorf(diagnostics.ErrP004, tok, "invalid float literal %s", tok.Lexeme)
		}
		lit.Value = v
		p.finish(lit)
		return lit
	case token.STRING:
		lit := &ast.StringLiteral{}
		p.start(lit, tok.Pos)
		var sb strings.Builder
		for p.at(token.STRING) {
			sb.WriteString(p.advance().Literal)
		}
		lit.Value = sb.String()
		p.finish(lit)
		return lit
	case token.TRUE, token.FALSE:
		lit := &ast.BoolLiteral{Value: tok.Type == token.TRUE}
		p.start(lit, tok.Pos)
		p.advance()
		p.finish(lit)
		return lit
	case token.NONE:
		lit := &ast.NoneLiteral{}
		p.start(lit, tok.Pos)
		p.advance()
		p.finish(lit)
		return lit
	case token.ELLIPSIS:
		lit := &ast.EllipsisLiteral{}
		p.start(lit, tok.Pos)
		p.advance()
		p.finish(lit)
		return lit
	case token.LPAREN:
		return p.parseParenthesized()
	case token.LBRACKET:
		return p.parseListDisplay()
	case token.LBRACE:
		return p.parseDictDisplay()
	}

	p.errorf(diagnostics.ErrP001, tok, "expected expression, found %s", describe(tok))
	bad := &ast.ErrorExpression{}
	p.start(bad, tok.Pos)
	switch tok.Type {
	case token.NEWLINE, token.EOF, token.INDENT, token.DEDENT,
		token.RPAREN, token.RBRACKET, token.RBRACE, token.COLON, token.COMMA:
		bad.SetEnd(tok.Pos)
	default:
		p.advance()
		p.finish(bad)
	}
	return bad
}

func (p *Parser) parseParenthesized() ast.Expression {
	startPos := p.cur.Pos
	p.advance() // (
	if p.at(token.RPAREN) {
		tup := &ast.TupleExpression{}
		p.start(tup, startPos)
		p.advance()
		p.finish(tup)
		return tup
	}
	first := p.parseTest()
	if !p.at(token.COMMA) {
		p.expect(token.RPAREN, "')'")
		return first
	}
	tup := &ast.TupleExpression{Elements: []ast.Expression{first}}
	p.start(tup, startPos)
	for p.accept(token.COMMA) {
		if p.at(token.RPAREN) {
			break
		}
		tup.Elements = append(tup.Elements, p.parseTest())
	}
	p.expect(token.RPAREN, "')'")
	p.finish(tup)
	return tup
}

func (p *Parser) parseListDisplay() ast.Expression {
	startPos := p.cur.Pos
	p.advance() // [
	if p.at(token.RBRACKET) {
		list := &ast.ListExpression{}
		p.start(list, startPos)
		p.advance()
		p.finish(list)
		return list
	}
	first := p.parseTest()
	if p.at(token.FOR) {
		comp := &ast.ListComprehension{Element: first}
		p.start(comp, startPos)
		p.advance()
		comp.Target = p.parseTargetList()
		p.checkTarget(comp.Target)
		p.expect(token.IN, "'in'")
		comp.Iter = p.parseOr()
		if p.accept(token.IF) {
			comp.Cond = p.parseOr()
		}
		p.expect(token.RBRACKET, "']'")
		p.finish(comp)
		return comp
	}
	list := &ast.ListExpression{Elements: []ast.Expression{first}}
	p.start(list, startPos)
	for p.accept(token.COMMA) {
		if p.at(token.RBRACKET) {
			break
		}
		list.Elements = append(list.Elements, p.parseTest())
	}
	p.expect(token.RBRACKET, "']'")
	p.finish(list)
	return list
}

func (p *Parser) parseDictDisplay() ast.Expression {
	dict := &ast.DictExpression{}
	p.start(dict, p.cur.Pos)
	p.advance() // {
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		key := p.parseTest()
		if _, ok := p.expect(token.COLON, "':'"); !ok {
			break
		}
		dict.Keys = append(dict.Keys, key)
		dict.Values = append(dict.Values, p.parseTest())
		if !p.accept(token.COMMA) {
			break
		}
	}
	p.expect(token.RBRACE, "'}'")
	p.finish(dict)
	return dict
}
