// Package lexer provides tokenization for the Fortran subset.
//
// The lexer converts preprocessed source into a sequence of tokens,
// handling:
// - Keywords (case-insensitive, folded to lower case)
// - Identifiers and numeric literals
// - Dot-delimited operators (.lt., .and., .true., ...)
// - Symbolic operators and punctuation
// - Newlines (statements are line-delimited)
package lexer

import "strings"

// ----------------------------------------------------------------------------
// Token Types
// ----------------------------------------------------------------------------

// TokenKind represents the type of a token.
type TokenKind uint8

const (
	TokError TokenKind = iota
	TokEOF
	TokNewline

	// Literals
	TokIntLiteral
	TokRealLiteral
	TokTrue
	TokFalse

	// Identifiers
	TokIdent

	// Keywords
	TokProgram
	TokSubroutine
	TokEnd
	TokEndDo
	TokEndIf
	TokDo
	TokIf
	TokThen
	TokElse
	TokCall
	TokInteger
	TokReal
	TokLogical
	TokDimension

	// Operators
	TokPlus     // +
	TokMinus    // -
	TokStar     // *
	TokStarStar // **
	TokSlash    // /
	TokEq       // = (assignment)
	TokLt       // < or .lt.
	TokLe       // <= or .le.
	TokGt       // > or .gt.
	TokGe       // >= or .ge.
	TokEqEq     // == or .eq.
	TokNe       // /= or .ne.
	TokAnd      // .and.
	TokOr       // .or.
	TokNot      // .not.

	// Delimiters
	TokLParen // (
	TokRParen // )
	TokComma  // ,
	TokColon  // :
)

// String returns the string representation of a token kind.
func (k TokenKind) String() string {
	if int(k) < len(tokenNames) {
		return tokenNames[k]
	}
	return "unknown"
}

var tokenNames = [...]string{
	TokError:       "error",
	TokEOF:         "EOF",
	TokNewline:     "newline",
	TokIntLiteral:  "int",
	TokRealLiteral: "real",
	TokTrue:        ".true.",
	TokFalse:       ".false.",
	TokIdent:       "identifier",
	TokProgram:     "program",
	TokSubroutine:  "subroutine",
	TokEnd:         "end",
	TokEndDo:       "enddo",
	TokEndIf:       "endif",
	TokDo:          "do",
	TokIf:          "if",
	TokThen:        "then",
	TokElse:        "else",
	TokCall:        "call",
	TokInteger:     "integer",
	TokReal:        "real",
	TokLogical:     "logical",
	TokDimension:   "dimension",
	TokPlus:        "+",
	TokMinus:       "-",
	TokStar:        "*",
	TokStarStar:    "**",
	TokSlash:       "/",
	TokEq:          "=",
	TokLt:          "<",
	TokLe:          "<=",
	TokGt:          ">",
	TokGe:          ">=",
	TokEqEq:        "==",
	TokNe:          "/=",
	TokAnd:         ".and.",
	TokOr:          ".or.",
	TokNot:         ".not.",
	TokLParen:      "(",
	TokRParen:      ")",
	TokComma:       ",",
	TokColon:       ":",
}

var keywords = map[string]TokenKind{
	"program":    TokProgram,
	"subroutine": TokSubroutine,
	"end":        TokEnd,
	"enddo":      TokEndDo,
	"endif":      TokEndIf,
	"do":         TokDo,
	"if":         TokIf,
	"then":       TokThen,
	"else":       TokElse,
	"call":       TokCall,
	"integer":    TokInteger,
	"real":       TokReal,
	"logical":    TokLogical,
	"dimension":  TokDimension,
}

// Dot-delimited operators: .lt. through .not. plus logical literals.
var dotOperators = map[string]TokenKind{
	"lt":    TokLt,
	"le":    TokLe,
	"gt":    TokGt,
	"ge":    TokGe,
	"eq":    TokEqEq,
	"ne":    TokNe,
	"and":   TokAnd,
	"or":    TokOr,
	"not":   TokNot,
	"true":  TokTrue,
	"false": TokFalse,
}

// Token is a single lexed token.
type Token struct {
	Kind TokenKind
	Text string
	Line int // 1-based
	Col  int // 1-based
}

// ----------------------------------------------------------------------------
// Lexer
// ----------------------------------------------------------------------------

// Lexer tokenizes a source string.
type Lexer struct {
	source string
	pos    int
	line   int
	col    int
}

// New creates a lexer for the given source.
func New(source string) *Lexer {
	return &Lexer{source: source, line: 1, col: 1}
}

// Tokenize lexes the entire source. The returned slice always ends with
// a TokEOF token.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.next()
		tokens = append(tokens, tok)
		if tok.Kind == TokEOF {
			return tokens
		}
	}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.source) {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.source) {
		return 0
	}
	return l.source[l.pos+offset]
}

func (l *Lexer) advance() byte {
	c := l.source[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *Lexer) make(kind TokenKind, text string, line, col int) Token {
	return Token{Kind: kind, Text: text, Line: line, Col: col}
}

func (l *Lexer) next() Token {
	// Skip horizontal whitespace; newlines are tokens.
	for l.pos < len(l.source) {
		c := l.peek()
		if c == ' ' || c == '\t' || c == '\r' {
			l.advance()
			continue
		}
		break
	}

	line, col := l.line, l.col
	if l.pos >= len(l.source) {
		return l.make(TokEOF, "", line, col)
	}

	c := l.peek()
	switch {
	case c == '\n':
		l.advance()
		return l.make(TokNewline, "\n", line, col)

	case isLetter(c):
		start := l.pos
		for l.pos < len(l.source) && isIdentChar(l.peek()) {
			l.advance()
		}
		word := strings.ToLower(l.source[start:l.pos])
		if kind, ok := keywords[word]; ok {
			return l.make(kind, word, line, col)
		}
		return l.make(TokIdent, word, line, col)

	case isDigit(c) || (c == '.' && isDigit(l.peekAt(1))):
		return l.lexNumber(line, col)

	case c == '.':
		return l.lexDotOperator(line, col)
	}

	l.advance()
	switch c {
	case '+':
		return l.make(TokPlus, "+", line, col)
	case '-':
		return l.make(TokMinus, "-", line, col)
	case '*':
		if l.peek() == '*' {
			l.advance()
			return l.make(TokStarStar, "**", line, col)
		}
		return l.make(TokStar, "*", line, col)
	case '/':
		if l.peek() == '=' {
			l.advance()
			return l.make(TokNe, "/=", line, col)
		}
		return l.make(TokSlash, "/", line, col)
	case '=':
		if l.peek() == '=' {
			l.advance()
			return l.make(TokEqEq, "==", line, col)
		}
		return l.make(TokEq, "=", line, col)
	case '<':
		if l.peek() == '=' {
			l.advance()
			return l.make(TokLe, "<=", line, col)
		}
		return l.make(TokLt, "<", line, col)
	case '>':
		if l.peek() == '=' {
			l.advance()
			return l.make(TokGe, ">=", line, col)
		}
		return l.make(TokGt, ">", line, col)
	case '(':
		return l.make(TokLParen, "(", line, col)
	case ')':
		return l.make(TokRParen, ")", line, col)
	case ',':
		return l.make(TokComma, ",", line, col)
	case ':':
		return l.make(TokColon, ":", line, col)
	}

	return l.make(TokError, string(c), line, col)
}

// lexNumber lexes an integer or real literal.
func (l *Lexer) lexNumber(line, col int) Token {
	start := l.pos
	isReal := false

	for l.pos < len(l.source) && isDigit(l.peek()) {
		l.advance()
	}

	// Fractional part. A dot followed by a letter starts a dot-operator
	// (1.le.n), not a real literal.
	if l.peek() == '.' && !isLetter(l.peekAt(1)) {
		isReal = true
		l.advance()
		for l.pos < len(l.source) && isDigit(l.peek()) {
			l.advance()
		}
	}

	// Exponent part.
	if c := l.peek(); c == 'e' || c == 'E' {
		next := l.peekAt(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(l.peekAt(2))) {
			isReal = true
			l.advance()
			if l.peek() == '+' || l.peek() == '-' {
				l.advance()
			}
			for l.pos < len(l.source) && isDigit(l.peek()) {
				l.advance()
			}
		}
	}

	text := l.source[start:l.pos]
	if isReal {
		return l.make(TokRealLiteral, text, line, col)
	}
	return l.make(TokIntLiteral, text, line, col)
}

// lexDotOperator lexes .word. forms.
func (l *Lexer) lexDotOperator(line, col int) Token {
	start := l.pos
	l.advance() // consume '.'
	wordStart := l.pos
	for l.pos < len(l.source) && isLetter(l.peek()) {
		l.advance()
	}
	word := strings.ToLower(l.source[wordStart:l.pos])
	if l.peek() == '.' {
		if kind, ok := dotOperators[word]; ok {
			l.advance() // consume closing '.'
			return l.make(kind, l.source[start:l.pos], line, col)
		}
	}
	return l.make(TokError, l.source[start:l.pos], line, col)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || isDigit(c) || c == '_'
}
