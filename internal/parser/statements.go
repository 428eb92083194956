package parser

import (
	"strings"

	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/token"
)

func (p *Parser) ParseModule() *ast.Module {
	mod := &ast.Module{}
	p.start(mod, p.cur.Pos)
	mod.Body = p.parseStatementsUntil(token.EOF)
	mod.Doc = docString(mod.Body)
	mod.SetEnd(p.cur.End)
	return mod
}

func (p *Parser) parseStatementsUntil(end token.TokenType) []ast.Statement {
	var stmts []ast.Statement
	for !p.at(end) && !p.at(token.EOF) {
		switch p.cur.Type {
		case token.NEWLINE, token.SEMICOLON:
			p.advance()
			continue
		case token.INDENT:
			p.errorf(diagnostics.ErrP005, p.cur, "unexpected indent")
			p.advance()
			stmts = append(stmts, p.parseStatementsUntil(token.DEDENT)...)
			p.accept(token.DEDENT)
			continue
		case token.DEDENT:
			p.advance()
			continue
		}
		before := p.pos
		stmts = append(stmts, p.parseStatement()...)
		if p.pos == before {
			p.advance()
		}
	}
	return stmts
}

func (p *Parser) parseStatement() []ast.Statement {
	switch p.cur.Type {
	case token.DEF:
		return []ast.Statement{p.parseFunctionDef(nil, p.cur.Pos)}
	case token.CLASS:
		return []ast.Statement{p.parseClassDef(nil, p.cur.Pos)}
	case token.AT:
		return []ast.Statement{p.parseDecorated()}
	case token.IF:
		return []ast.Statement{p.parseIf()}
	case token.WHILE:
		return []ast.Statement{p.parseWhile()}
	case token.FOR:
		return []ast.Statement{p.parseFor()}
	}
	return p.parseSimpleStatements()
}

func (p *Parser) parseSimpleStatements() []ast.Statement {
	var stmts []ast.Statement
	for {
		stmts = append(stmts, p.parseSimpleStatement())
		if p.accept(token.SEMICOLON) {
			if p.at(token.NEWLINE) || p.at(token.EOF) {
				break
			}
			continue
		}
		break
	}
	switch {
	case p.accept(token.NEWLINE), p.at(token.EOF), p.at(token.DEDENT):
	default:
		p.errorf(diagnostics.ErrP001, p.cur, "expected end of line, found %s", describe(p.cur))
		p.syncToLineEnd()
	}
	return stmts
}

func (p *Parser) parseSimpleStatement() ast.Statement {
	switch p.cur.Type {
	case token.PASS:
		s := &ast.PassStatement{}
		p.start(s, p.cur.Pos)
		p.advance()
		p.finish(s)
		return s
	case token.BREAK:
		s := &ast.BreakStatement{}
		p.start(s, p.cur.Pos)
		p.advance()
		p.finish(s)
		return s
	case token.CONTINUE:
		s := &ast.ContinueStatement{}
		p.start(s, p.cur.Pos)
		p.advance()
		p.finish(s)
		return s
	case token.RETURN:
		s := &ast.ReturnStatement{}
		p.start(s, p.cur.Pos)
		p.advance()
		if !p.atStatementEnd() {
			s.Value = p.parseTestList()
		}
		p.finish(s)
		return s
	case token.IMPORT:
		return p.parseImport()
	case token.FROM:
		return p.parseFromImport()
	case token.GLOBAL:
		s := &ast.GlobalStatement{}
		p.start(s, p.cur.Pos)
		p.advance()
		s.Names = p.parseNameList()
		p.finish(s)
		return s
	case token.NONLOCAL:
		s := &ast.NonlocalStatement{}
		p.start(s, p.cur.Pos)
		p.advance()
		s.Names = p.parseNameList()
		p.finish(s)
		return s
	}
	return p.parseExpressionStatement()
}

func (p *Parser) atStatementEnd() bool {
	switch p.cur.Type {
	case token.NEWLINE, token.SEMICOLON, token.EOF, token.DEDENT:
		return true
	}
	return false
}

func (p *Parser) parseExpressionStatement() ast.Statement {
	startPos := p.cur.Pos
	expr := p.parseTestList()

	switch p.cur.Type {
	case token.COLON:
		s := &ast.AssignStatement{Target: expr}
		p.start(s, startPos)
		p.advance()
		p.checkTarget(expr)
		s.Annotation = p.parseTest()
		if p.accept(token.ASSIGN) {
			s.Value = p.parseTestList()
		}
		p.finish(s)
		return s
	case token.ASSIGN:
		s := &ast.AssignStatement{Target: expr}
		p.start(s, startPos)
		p.advance()
		p.checkTarget(expr)
		s.Value = p.parseTestList()
		p.finish(s)
		return s
	case token.PLUS_ASSIGN, token.MINUS_ASSIGN:
		s := &ast.AugAssignStatement{Target: expr, Op: p.cur.Type}
		p.start(s, startPos)
		p.advance()
		p.checkTarget(expr)
		s.Value = p.parseTestList()
		p.finish(s)
		return s
	}

	s := &ast.ExpressionStatement{X: expr}
	p.start(s, startPos)
	p.finish(s)
	return s
}

func (p *Parser) checkTarget(expr ast.Expression) {
	switch t := expr.(type) {
	case *ast.Name, *ast.AttributeExpression, *ast.SubscriptExpression, *ast.ErrorExpression:
	case *ast.TupleExpression:
		for _, e := range t.Elements {
			p.checkTarget(e)
		}
	case *ast.ListExpression:
		for _, e := range t.Elements {
			p.checkTarget(e)
		}
	default:
		span := expr.Span()
		p.errors = append(p.errors, diagnostics.NewError(diagnostics.ErrP002, span, "cannot assign to expression"))
	}
}

func (p *Parser) parseNameList() []*ast.Name {
	var names []*ast.Name
	names = append(names, p.parseName())
	for p.accept(token.COMMA) {
		names = append(names, p.parseName())
	}
	return names
}

func (p *Parser) parseName() *ast.Name {
	n := &ast.Name{}
	p.start(n, p.cur.Pos)
	if p.at(token.IDENT) {
		n.Value = p.cur.Literal
		p.advance()
	} else {
		p.errorf(diagnostics.ErrP001, p.cur, "expected identifier, found %s", describe(p.cur))
	}
	p.finish(n)
	return n
}

func (p *Parser) parseDottedName() string {
	var parts []string
	if !p.at(token.IDENT) {
		p.errorf(diagnostics.ErrP001, p.cur, "expected module name, found %s", describe(p.cur))
		return ""
	}
	parts = append(parts, p.advance().Literal)
	for p.at(token.DOT) && p.peek().Type == token.IDENT {
		p.advance()
		parts = append(parts, p.advance().Literal)
	}
	return strings.Join(parts, ".")
}

func (p *Parser) parseImport() ast.Statement {
	s := &ast.ImportStatement{}
	p.start(s, p.cur.Pos)
	p.advance()
	for {
		alias := &ast.ImportAlias{}
		p.start(alias, p.cur.Pos)
		alias.Name = p.parseDottedName()
		if p.accept(token.AS) {
			alias.AsName = p.parseName()
		}
		p.finish(alias)
		s.Names = append(s.Names, alias)
		if !p.accept(token.COMMA) {
			break
		}
	}
	p.finish(s)
	return s
}

func (p *Parser) parseFromImport() ast.Statement {
	s := &ast.ImportFromStatement{}
	p.start(s, p.cur.Pos)
	p.advance()
	for {
		if p.accept(token.DOT) {
			s.Level++
			continue
		}
		if p.accept(token.ELLIPSIS) {
			s.Level += 3
			continue
		}
		break
	}
	if p.at(token.IDENT) {
		s.Module = p.parseDottedName()
	} else if s.Level == 0 {
		p.errorf(diagnostics.ErrP001, p.cur, "expected module name, found %s", describe(p.cur))
	}
	if _, ok := p.expect(token.IMPORT, "'import'"); !ok {
		p.finish(s)
		return s
	}
	if p.accept(token.ASTERISK) {
		s.Wildcard = true
		p.finish(s)
		return s
	}
	paren := p.accept(token.LPAREN)
	for {
		if paren && p.at(token.RPAREN) {
			break
		}
		alias := &ast.ImportAlias{}
		p.start(alias, p.cur.Pos)
		if p.at(token.IDENT) {
			alias.Name = p.advance().Literal
		} else {
			p.errorf(diagnostics.ErrP001, p.cur, "expected import symbol, found %s", describe(p.cur))
		}
		if p.accept(token.AS) {
			alias.AsName = p.parseName()
		}
		p.finish(alias)
		s.Names = append(s.Names, alias)
		if !p.accept(token.COMMA) {
			break
		}
	}
	if paren {
		p.expect(token.RPAREN, "')'")
	}
	p.finish(s)
	return s
}

func (p *Parser) parseDecorated() ast.Statement {
	startPos := p.cur.Pos
	var decorators []ast.Expression
	for p.accept(token.AT) {
		decorators = append(decorators, p.parseTest())
		if !p.accept(token.NEWLINE) {
			p.errorf(diagnostics.ErrP001, p.cur, "expected end of line after decorator, found %s", describe(p.cur))
			p.syncToLineEnd()
		}
	}
	switch p.cur.Type {
	case token.DEF:
		return p.parseFunctionDef(decorators, startPos)
	case token.CLASS:
		return p.parseClassDef(decorators, startPos)
	}
	p.errorf(diagnostics.ErrP001, p.cur, "expected function or class after decorator, found %s", describe(p.cur))
	s := &ast.ErrorStatement{Partial: decorators}
	p.start(s, startPos)
	p.finish(s)
	return s
}

func (p *Parser) parseTypeParams() []*ast.TypeParam {
	var params []*ast.TypeParam
	p.advance() // [
	for !p.at(token.RBRACKET) && !p.atStatementEnd() {
		tp := &ast.TypeParam{}
		p.start(tp, p.cur.Pos)
		tp.Name = p.parseName()
		if p.accept(token.COLON) {
			tp.Bound = p.parseTest()
		}
		p.finish(tp)
		params = append(params, tp)
		if !p.accept(token.COMMA) {
			break
		}
	}
	p.expect(token.RBRACKET, "']'")
	return params
}

func (p *Parser) parseFunctionDef(decorators []ast.Expression, startPos token.Position) *ast.FunctionDef {
	fn := &ast.FunctionDef{Decorators: decorators}
	p.start(fn, startPos)
	p.advance() // def
	fn.Name = p.parseName()
	if p.at(token.LBRACKET) {
		fn.TypeParams = p.parseTypeParams()
	}
	if _, ok := p.expect(token.LPAREN, "'('"); ok {
		fn.Params = p.parseParams()
		p.expect(token.RPAREN, "')'")
	}
	if p.accept(token.ARROW) {
		fn.Returns = p.parseTest()
	}
	fn.Body = p.parseBlock()
	fn.Doc = docString(fn.Body)
	p.finish(fn)
	return fn
}

func (p *Parser) parseParams() []*ast.Param {
	var params []*ast.Param
	for !p.at(token.RPAREN) && !p.atStatementEnd() {
		param := &ast.Param{}
		p.start(param, p.cur.Pos)
		switch {
		case p.accept(token.ASTERISK):
			param.Kind = ast.ParamVarArgs
		case p.accept(token.POWER):
			param.Kind = ast.ParamKwArgs
		}
		param.Name = p.parseName()
		if p.accept(token.COLON) {
			param.Annotation = p.parseTest()
		}
		if p.accept(token.ASSIGN) {
			param.Default = p.parseTest()
		}
		p.finish(param)
		params = append(params, param)
		if !p.accept(token.COMMA) {
			break
		}
	}
	return params
}

func (p *Parser) parseClassDef(decorators []ast.Expression, startPos token.Position) *ast.ClassDef {
	cls := &ast.ClassDef{Decorators: decorators}
	p.start(cls, startPos)
	p.advance() // class
	cls.Name = p.parseName()
	if p.at(token.LBRACKET) {
		cls.TypeParams = p.parseTypeParams()
	}
	if p.accept(token.LPAREN) {
		for !p.at(token.RPAREN) && !p.atStatementEnd() {
			if p.at(token.IDENT) && p.peek().Type == token.ASSIGN {
				// metaclass=... and other class keywords carry no type information here.
				p.advance()
				p.advance()
				p.parseTest()
			} else {
				cls.Bases = append(cls.Bases, p.parseTest())
			}
			if !p.accept(token.COMMA) {
				break
			}
		}
		p.expect(token.RPAREN, "')'")
	}
	cls.Body = p.parseBlock()
	cls.Doc = docString(cls.Body)
	p.finish(cls)
	return cls
}

func (p *Parser) parseIf() *ast.IfStatement {
	s := &ast.IfStatement{}
	p.start(s, p.cur.Pos)
	p.advance() // if / elif
	s.Cond = p.parseTest()
	s.Body = p.parseBlock()
	switch p.cur.Type {
	case token.ELIF:
		s.Else = []ast.Statement{p.parseIf()}
	case token.ELSE:
		p.advance()
		s.Else = p.parseBlock()
	}
	p.finish(s)
	return s
}

func (p *Parser) parseWhile() *ast.WhileStatement {
	s := &ast.WhileStatement{}
	p.start(s, p.cur.Pos)
	p.advance()
	s.Cond = p.parseTest()
	s.Body = p.parseBlock()
	if p.accept(token.ELSE) {
		s.Else = p.parseBlock()
	}
	p.finish(s)
	return s
}

func (p *Parser) parseFor() *ast.ForStatement {
	s := &ast.ForStatement{}
	p.start(s, p.cur.Pos)
	p.advance()
	s.Target = p.parseTargetList()
	p.checkTarget(s.Target)
	p.expect(token.IN, "'in'")
	s.Iter = p.parseTestList()
	s.Body = p.parseBlock()
	if p.accept(token.ELSE) {
		s.Else = p.parseBlock()
	}
	p.finish(s)
	return s
}

// parseBlock parses `: NEWLINE INDENT stmts DEDENT` or `: simple; simple`.
func (p *Parser) parseBlock() []ast.Statement {
	if _, ok := p.expect(token.COLON, "':'"); !ok {
		for !p.at(token.COLON) && !p.at(token.NEWLINE) && !p.at(token.EOF) && !p.at(token.INDENT) && !p.at(token.DEDENT) {
			p.advance()
		}
		p.accept(token.COLON)
	}
	if p.accept(token.NEWLINE) {
		if !p.at(token.INDENT) {
			p.errorf(diagnostics.ErrP003, p.cur, "expected an indented block")
			return nil
		}
		p.advance()
		body := p.parseStatementsUntil(token.DEDENT)
		p.accept(token.DEDENT)
		return body
	}
	if p.at(token.EOF) {
		p.errorf(diagnostics.ErrP003, p.cur, "expected an indented block")
		return nil
	}
	return p.parseSimpleStatements()
}

func docString(body []ast.Statement) string {
	if len(body) == 0 {
		return ""
	}
	if es, ok := body[0].(*ast.ExpressionStatement); ok {
		if lit, ok := es.X.(*ast.StringLiteral); ok {
			return strings.TrimSpace(lit.Value)
		}
	}
	return ""
}
