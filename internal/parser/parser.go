package parser

import (
	"fmt"

	"github.com/funvibe/sable/internal/ast"
	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/lexer"
	"github.com/funvibe/sable/internal/token"
)

// Results is the immutable outcome of parsing one unit.
type Results struct {
	Module    *ast.Module
	NodeCount int
	Index     *ast.Index
	Errors    []*diagnostics.DiagnosticError
	Lines     int
}

type node interface {
	ast.Node
	Init(id ast.NodeID, start token.Position)
	SetEnd(p token.Position)
}

type Parser struct {
	toks    []token.Token
	pos     int
	cur     token.Token
	prevEnd token.Position
	nextID  ast.NodeID
	errors  []*diagnostics.DiagnosticError
}

func New(input string) *Parser {
	return newWithTokens(lexer.Tokenize(input), 0)
}

func newWithTokens(toks []token.Token, firstID ast.NodeID) *Parser {
	p := &Parser{toks: toks, nextID: firstID}
	p.cur = toks[0]
	if p.cur.Type == token.ILLEGAL {
		p.errorf(diagnostics.ErrP004, p.cur, "%s", p.cur.Literal)
		p.advanceSkippingIllegal(p.cur)
	}
	return p
}

// Parse parses a whole unit. It never fails: syntax errors are recovered at
// statement granularity and reported in Results.Errors.
func Parse(file, input string) *Results {
	p := New(input)
	mod := p.ParseModule()
	mod.File = file
	lines := 1
	for i := 0; i < len(input); i++ {
		if input[i] == '\n' {
			lines++
		}
	}
	return &Results{
		Module:    mod,
		NodeCount: int(p.nextID),
		Index:     ast.BuildIndex(mod, int(p.nextID)),
		Errors:    p.errors,
		Lines:     lines,
	}
}

// ParseExpression parses a standalone expression (string annotations).
// Node ids start after firstID so they never collide with the host tree.
// It returns the expression, the last id used and any errors.
func ParseExpression(input string, firstID ast.NodeID) (ast.Expression, ast.NodeID, []*diagnostics.DiagnosticError) {
	p := newWithTokens(lexer.Tokenize(input), firstID)
	for p.cur.Type == token.INDENT || p.cur.Type == token.NEWLINE {
		p.advance()
	}
	expr := p.parseTestList()
	for p.cur.Type == token.NEWLINE || p.cur.Type == token.DEDENT {
		p.advance()
	}
	if p.cur.Type != token.EOF {
		p.errorf(diagnostics.ErrP001, p.cur, "unexpected %s in expression", describe(p.cur))
	}
	return expr, p.nextID, p.errors
}

func (p *Parser) advance() token.Token {
	prev := p.cur
	p.prevEnd = prev.End
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	p.cur = p.toks[p.pos]
	if p.cur.Type == token.ILLEGAL {
		p.errorf(diagnostics.ErrP004, p.cur, "%s", p.cur.Literal)
		return p.advanceSkippingIllegal(prev)
	}
	return prev
}

func (p *Parser) advanceSkippingIllegal(prev token.Token) token.Token {
	for p.cur.Type == token.ILLEGAL && p.pos < len(p.toks)-1 {
		p.pos++
		p.cur = p.toks[p.pos]
		if p.cur.Type == token.ILLEGAL {
			p.errorf(diagnostics.ErrP004, p.cur, "%s", p.cur.Literal)
		}
	}
	return prev
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.toks) {
		return p.toks[p.pos+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *Parser) at(t token.TokenType) bool { return p.cur.Type == t }

func (p *Parser) accept(t token.TokenType) bool {
	if p.cur.Type == t {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(t token.TokenType, what string) (token.Token, bool) {
	if p.cur.Type == t {
		return p.advance(), true
	}
	p.errorf(diagnostics.ErrP001, p.cur, "expected %s, found %s", what, describe(p.cur))
	return p.cur, false
}

func (p *Parser) start(n node, pos token.Position) {
	p.nextID++
	n.Init(p.nextID, pos)
}

func (p *Parser) finish(n node) {
	n.SetEnd(p.prevEnd)
}

func (p *Parser) errorf(code diagnostics.ErrorCode, tok token.Token, format string, args ...any) {
	span := ast.Span{Start: tok.Pos, End: tok.End}
	// One diagnostic per position keeps recovery from cascading.
	for _, e := range p.errors {
		if e.Span.Start.Offset == span.Start.Offset {
			return
		}
	}
	p.errors = append(p.errors, diagnostics.NewError(code, span, fmt.Sprintf(format, args...)))
}

func describe(tok token.Token) string {
	switch tok.Type {
	case token.EOF:
		return "end of file"
	case token.NEWLINE:
		return "end of line"
	case token.INDENT:
		return "indent"
	case token.DEDENT:
		return "dedent"
	}
	return fmt.Sprintf("%q", tok.Lexeme)
}

// syncToLineEnd skips to just past the next NEWLINE, keeping blocks balanced.
func (p *Parser) syncToLineEnd() {
	depth := 0
	for !p.at(token.EOF) {
		switch p.cur.Type {
		case token.INDENT:
			depth++
		case token.DEDENT:
			if depth == 0 {
				return
			}
			depth--
		case token.NEWLINE:
			if depth == 0 {
				p.advance()
				return
			}
		}
		p.advance()
	}
}
