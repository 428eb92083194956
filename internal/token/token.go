package token

import "fmt"

type TokenType string

const (
	ILLEGAL TokenType = "ILLEGAL"
	EOF     TokenType = "EOF"

	NEWLINE TokenType = "NEWLINE"
	INDENT  TokenType = "INDENT"
	DEDENT  TokenType = "DEDENT"

	IDENT  TokenType = "IDENT"
	INT    TokenType = "INT"
	FLOAT  TokenType = "FLOAT"
	STRING TokenType = "STRING"

	// Operators
	ASSIGN       TokenType = "="
	PLUS_ASSIGN  TokenType = "+="
	MINUS_ASSIGN TokenType = "-="
	PLUS         TokenType = "+"
	MINUS        TokenType = "-"
	ASTERISK     TokenType = "*"
	POWER        TokenType = "**"
	SLASH        TokenType = "/"
	PERCENT      TokenType = "%"
	EQ           TokenType = "=="
	NOT_EQ       TokenType = "!="
	LT           TokenType = "<"
	GT           TokenType = ">"
	LT_EQ        TokenType = "<="
	GT_EQ        TokenType = ">="
	ARROW        TokenType = "->"
	AT           TokenType = "@"

	// Delimiters
	COMMA     TokenType = ","
	COLON     TokenType = ":"
	SEMICOLON TokenType = ";"
	DOT       TokenType = "."
	ELLIPSIS  TokenType = "..."
	LPAREN    TokenType = "("
	RPAREN    TokenType = ")"
	LBRACKET  TokenType = "["
	RBRACKET  TokenType = "]"
	LBRACE    TokenType = "{"
	RBRACE    TokenType = "}"

	// Keywords
	DEF      TokenType = "DEF"
	CLASS    TokenType = "CLASS"
	RETURN   TokenType = "RETURN"
	IF       TokenType = "IF"
	ELIF     TokenType = "ELIF"
	ELSE     TokenType = "ELSE"
	WHILE    TokenType = "WHILE"
	FOR      TokenType = "FOR"
	IN       TokenType = "IN"
	PASS     TokenType = "PASS"
	BREAK    TokenType = "BREAK"
	CONTINUE TokenType = "CONTINUE"
	IMPORT   TokenType = "IMPORT"
	FROM     TokenType = "FROM"
	AS       TokenType = "AS"
	TRUE     TokenType = "TRUE"
	FALSE    TokenType = "FALSE"
	NONE     TokenType = "NONE"
	AND      TokenType = "AND"
	OR       TokenType = "OR"
	NOT      TokenType = "NOT"
	IS       TokenType = "IS"
	GLOBAL   TokenType = "GLOBAL"
	NONLOCAL TokenType = "NONLOCAL"
)

var keywords = map[string]TokenType{
	"def":      DEF,
	"class":    CLASS,
	"return":   RETURN,
	"if":       IF,
	"elif":     ELIF,
	"else":     ELSE,
	"while":    WHILE,
	"for":      FOR,
	"in":       IN,
	"pass":     PASS,
	"break":    BREAK,
	"continue": CONTINUE,
	"import":   IMPORT,
	"from":     FROM,
	"as":       AS,
	"True":     TRUE,
	"False":    FALSE,
	"None":     NONE,
	"and":      AND,
	"or":       OR,
	"not":      NOT,
	"is":       IS,
	"global":   GLOBAL,
	"nonlocal": NONLOCAL,
}

// LookupIdent classifies an identifier as keyword or plain name.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

// Position is a location in source text. Line and Column are 1-based,
// Offset is a 0-based byte offset.
type Position struct {
	Offset int
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Before reports whether p is strictly before q.
func (p Position) Before(q Position) bool {
	return p.Offset < q.Offset
}

type Token struct {
	Type    TokenType
	Lexeme  string // raw source text
	Literal string // decoded value for strings, otherwise the lexeme
	Pos     Position
	End     Position
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q) at %s", t.Type, t.Lexeme, t.Pos)
}
