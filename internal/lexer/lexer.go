package lexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/funvibe/sable/internal/token"
)

const tabWidth = 8

type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           rune // current char under examination
	line         int  // current line number
	column       int  // current column number

	indents     []int
	parenDepth  int
	atLineStart bool
	pending     []token.Token
	lastType    token.TokenType
	done        bool
}

func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1, column: 0, indents: []int{0}, atLineStart: true}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}

	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.position = len(l.input)
		l.readPosition = len(l.input) + 1
		l.column++
		return
	}

	r, w := utf8.DecodeRuneInString(l.input[l.readPosition:])
	l.ch = r
	l.position = l.readPosition
	l.readPosition += w
	l.column++
}

func (l *Lexer) peekChar() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return r
}

func (l *Lexer) pos() token.Position {
	return token.Position{Offset: l.position, Line: l.line, Column: l.column}
}

// Tokenize lexes the whole input. The result always ends with EOF.
func Tokenize(input string) []token.Token {
	l := New(input)
	var toks []token.Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

func (l *Lexer) NextToken() token.Token {
	tok := l.next()
	l.lastType = tok.Type
	return tok
}

func (l *Lexer) next() token.Token {
	if len(l.pending) > 0 {
		tok := l.pending[0]
		l.pending = l.pending[1:]
		return tok
	}
	if l.done {
		return token.Token{Type: token.EOF, Pos: l.pos(), End: l.pos()}
	}

	if l.atLineStart && l.parenDepth == 0 {
		if tok, ok := l.handleIndentation(); ok {
			return tok
		}
	}

	l.skipWhitespace()

	start := l.pos()
	switch l.ch {
	case 0:
		return l.finish()
	case '\n':
		l.readChar()
		if l.parenDepth > 0 {
			return l.next()
		}
		l.atLineStart = true
		if l.lastType == token.NEWLINE || l.lastType == "" || l.lastType == token.INDENT || l.lastType == token.DEDENT {
			return l.next()
		}
		return token.Token{Type: token.NEWLINE, Lexeme: "\n", Literal: "\n", Pos: start, End: l.pos()}
	case '#':
		for l.ch != '\n' && l.ch != 0 {
			l.readChar()
		}
		return l.next()
	case '\\':
		if l.peekChar() == '\n' {
			l.readChar()
			l.readChar()
			return l.next()
		}
	case '"', '\'':
		return l.readString(start)
	}

	if isLetter(l.ch) {
		ident := l.readIdentifier()
		return token.Token{Type: token.LookupIdent(ident), Lexeme: ident, Literal: ident, Pos: start, End: l.pos()}
	}
	if isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())) {
		return l.readNumber(start)
	}
	return l.readOperator(start)
}

func (l *Lexer) finish() token.Token {
	p := l.pos()
	if l.lastType != token.NEWLINE && l.lastType != "" && l.lastType != token.DEDENT && l.lastType != token.INDENT {
		l.pending = append(l.pending, token.Token{Type: token.NEWLINE, Lexeme: "", Pos: p, End: p})
	}
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.pending = append(l.pending, token.Token{Type: token.DEDENT, Pos: p, End: p})
	}
	l.pending = append(l.pending, token.Token{Type: token.EOF, Pos: p, End: p})
	l.done = true
	return l.next()
}

// handleIndentation measures the indentation of a new logical line and
// emits INDENT/DEDENT tokens. Blank and comment-only lines are skipped.
func (l *Lexer) handleIndentation() (token.Token, bool) {
	for {
		width := 0
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\f' {
			switch l.ch {
			case '\t':
				width = (width/tabWidth + 1) * tabWidth
			case ' ':
				width++
			}
			l.readChar()
		}
		if l.ch == '#' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		}
		if l.ch == '\n' {
			l.readChar()
			continue
		}
		l.atLineStart = false
		if l.ch == 0 {
			return token.Token{}, false
		}

		p := l.pos()
		current := l.indents[len(l.indents)-1]
		switch {
		case width > current:
			l.indents = append(l.indents, width)
			return token.Token{Type: token.INDENT, Pos: p, End: p}, true
		case width < current:
			for len(l.indents) > 1 && width < l.indents[len(l.indents)-1] {
				l.indents = l.indents[:len(l.indents)-1]
				l.pending = append(l.pending, token.Token{Type: token.DEDENT, Pos: p, End: p})
			}
			if width != l.indents[len(l.indents)-1] {
				l.pending = append(l.pending, token.Token{Type: token.ILLEGAL, Literal: "unindent does not match any outer indentation level", Pos: p, End: p})
			}
			tok := l.pending[0]
			l.pending = l.pending[1:]
			return tok, true
		}
		return token.Token{}, false
	}
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\f' {
		l.readChar()
	}
}

func (l *Lexer) readIdentifier() string {
	start := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[start:l.position]
}

func (l *Lexer) readNumber(start token.Position) token.Token {
	begin := l.position
	typ := token.INT
	for isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	if l.ch == '.' && l.peekChar() != '.' {
		typ = token.FLOAT
		l.readChar()
		for isDigit(l.ch) || l.ch == '_' {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		typ = token.FLOAT
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	lexeme := l.input[begin:l.position]
	return token.Token{Type: typ, Lexeme: lexeme, Literal: strings.ReplaceAll(lexeme, "_", ""), Pos: start, End: l.pos()}
}

func (l *Lexer) readString(start token.Position) token.Token {
	begin := l.position
	quote := l.ch
	triple := false
	if l.peekChar() == quote && l.readPosition+1 < len(l.input) && rune(l.input[l.readPosition+1]) == quote {
		triple = true
		l.readChar()
		l.readChar()
	}
	l.readChar()

	var sb strings.Builder
	for {
		if l.ch == 0 {
			return token.Token{Type: token.ILLEGAL, Lexeme: l.input[begin:l.position], Literal: "unterminated string literal", Pos: start, End: l.pos()}
		}
		if l.ch == '\n' && !triple {
			return token.Token{Type: token.ILLEGAL, Lexeme: l.input[begin:l.position], Literal: "unterminated string literal", Pos: start, End: l.pos()}
		}
		if l.ch == quote {
			if !triple {
				l.readChar()
				break
			}
			if l.peekChar() == quote && l.readPosition+1 < len(l.input) && rune(l.input[l.readPosition+1]) == quote {
				l.readChar()
				l.readChar()
				l.readChar()
				break
			}
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '\\', '\'', '"':
				sb.WriteRune(l.ch)
			case '\n':
			default:
				sb.WriteRune('\\')
				sb.WriteRune(l.ch)
			}
			l.readChar()
			continue
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
	return token.Token{Type: token.STRING, Lexeme: l.input[begin:l.position], Literal: sb.String(), Pos: start, End: l.pos()}
}

var twoCharOps = map[string]token.TokenType{
	"==": token.EQ,
	"!=": token.NOT_EQ,
	"<=": token.LT_EQ,
	">=": token.GT_EQ,
	"->": token.ARROW,
	"+=": token.PLUS_ASSIGN,
	"-=": token.MINUS_ASSIGN,
	"**": token.POWER,
}

var oneCharOps = map[rune]token.TokenType{
	'=': token.ASSIGN,
	'+': token.PLUS,
	'-': token.MINUS,
	'*': token.ASTERISK,
	'/': token.SLASH,
	'%': token.PERCENT,
	'<': token.LT,
	'>': token.GT,
	'@': token.AT,
	',': token.COMMA,
	':': token.COLON,
	';': token.SEMICOLON,
	'.': token.DOT,
	'(': token.LPAREN,
	')': token.RPAREN,
	'[': token.LBRACKET,
	']': token.RBRACKET,
	'{': token.LBRACE,
	'}': token.RBRACE,
}

func (l *Lexer) readOperator(start token.Position) token.Token {
	if l.ch == '.' && l.peekChar() == '.' && strings.HasPrefix(l.input[l.position:], "...") {
		l.readChar()
		l.readChar()
		l.readChar()
		return token.Token{Type: token.ELLIPSIS, Lexeme: "...", Literal: "...", Pos: start, End: l.pos()}
	}
	if l.peekChar() != 0 {
		two := string(l.ch) + string(l.peekChar())
		if typ, ok := twoCharOps[two]; ok {
			l.readChar()
			l.readChar()
			return token.Token{Type: typ, Lexeme: two, Literal: two, Pos: start, End: l.pos()}
		}
	}
	ch := l.ch
	l.readChar()
	typ, ok := oneCharOps[ch]
	if !ok {
		return token.Token{Type: token.ILLEGAL, Lexeme: string(ch), Literal: "invalid character " + string(ch), Pos: start, End: l.pos()}
	}
	switch typ {
	case token.LPAREN, token.LBRACKET, token.LBRACE:
		l.parenDepth++
	case token.RPAREN, token.RBRACKET, token.RBRACE:
		if l.parenDepth > 0 {
			l.parenDepth--
		}
	}
	return token.Token{Type: typ, Lexeme: string(ch), Literal: string(ch), Pos: start, End: l.pos()}
}

func isLetter(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}
