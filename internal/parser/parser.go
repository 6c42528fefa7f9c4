// Package parser provides parsing of the Fortran subset into an AST.
//
// The parser is line-oriented: the preprocessor has already joined
// continuations, so every statement ends at a newline. Statements the
// parser does not recognize become opaque leaves rather than errors,
// so analysis can proceed over the rest of the unit.
package parser

import (
	"fmt"
	"strings"

	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/ast"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/lexer"
)

// ParseError represents a parsing error.
type ParseError struct {
	Message string
	Line    int
	Column  int
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// Parser parses tokenized source into a Program.
type Parser struct {
	tokens []lexer.Token
	pos    int
	errors []ParseError
}

// New creates a new parser for the given preprocessed source.
func New(source string) *Parser {
	lex := lexer.New(source)
	return &Parser{tokens: lex.Tokenize()}
}

// Parse parses the source and returns the program and any errors.
func (p *Parser) Parse(path string) (*ast.Program, []ParseError) {
	prog := &ast.Program{SourcePath: path}

	p.skipNewlines()
	for !p.at(lexer.TokEOF) {
		switch p.current().Kind {
		case lexer.TokProgram, lexer.TokSubroutine:
			prog.Units = append(prog.Units, p.parseUnit())
		default:
			// A bare statement file is treated as one implicit program unit.
			prog.Units = append(prog.Units, p.parseImplicitUnit())
		}
		p.skipNewlines()
	}

	return prog, p.errors
}

// ----------------------------------------------------------------------------
// Token Helpers
// ----------------------------------------------------------------------------

func (p *Parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return lexer.Token{Kind: lexer.TokEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peek() lexer.Token {
	if p.pos+1 >= len(p.tokens) {
		return lexer.Token{Kind: lexer.TokEOF}
	}
	return p.tokens[p.pos+1]
}

func (p *Parser) at(kind lexer.TokenKind) bool {
	return p.current().Kind == kind
}

func (p *Parser) advance() lexer.Token {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(kind lexer.TokenKind) (lexer.Token, bool) {
	if p.at(kind) {
		return p.advance(), true
	}
	tok := p.current()
	p.errorAt(tok, "expected %s, found %s", kind, tok.Kind)
	return tok, false
}

func (p *Parser) errorAt(tok lexer.Token, format string, args ...interface{}) {
	p.errors = append(p.errors, ParseError{
		Message: fmt.Sprintf(format, args...),
		Line:    tok.Line,
		Column:  tok.Col,
	})
}

func (p *Parser) posOf(tok lexer.Token) ast.Pos {
	return ast.Pos{Line: tok.Line, Col: tok.Col}
}

func (p *Parser) skipNewlines() {
	for p.at(lexer.TokNewline) {
		p.advance()
	}
}

// skipToNewline consumes tokens up to and including the next newline.
func (p *Parser) skipToNewline() {
	for !p.at(lexer.TokNewline) && !p.at(lexer.TokEOF) {
		p.advance()
	}
	if p.at(lexer.TokNewline) {
		p.advance()
	}
}

// endStatement requires the statement to finish at a newline or EOF.
func (p *Parser) endStatement() {
	if p.at(lexer.TokNewline) {
		p.advance()
		return
	}
	if p.at(lexer.TokEOF) {
		return
	}
	p.errorAt(p.current(), "unexpected %s at end of statement", p.current().Kind)
	p.skipToNewline()
}

// ----------------------------------------------------------------------------
// Program Units
// ----------------------------------------------------------------------------

func (p *Parser) parseUnit() *ast.ProgramUnit {
	head := p.advance() // program or subroutine
	unit := &ast.ProgramUnit{Pos: p.posOf(head)}
	if head.Kind == lexer.TokSubroutine {
		unit.Kind = ast.UnitSubroutine
	}

	if name, ok := p.expect(lexer.TokIdent); ok {
		unit.Name = name.Text
	}

	if unit.Kind == ast.UnitSubroutine && p.at(lexer.TokLParen) {
		p.advance()
		for !p.at(lexer.TokRParen) && !p.at(lexer.TokEOF) {
			if param, ok := p.expect(lexer.TokIdent); ok {
				unit.Params = append(unit.Params, param.Text)
			} else {
				break
			}
			if p.at(lexer.TokComma) {
				p.advance()
			}
		}
		p.expect(lexer.TokRParen)
	}
	p.endStatement()

	unit.Body = p.parseBlock(func() bool { return p.at(lexer.TokEnd) })

	if endTok, ok := p.expect(lexer.TokEnd); ok {
		unit.EndLine = endTok.Line
		// Optional "end program name" / "end subroutine name".
		if p.at(lexer.TokProgram) || p.at(lexer.TokSubroutine) {
			p.advance()
			if p.at(lexer.TokIdent) {
				p.advance()
			}
		}
	}
	p.endStatement()

	return unit
}

// parseImplicitUnit wraps headerless statements into a program unit.
func (p *Parser) parseImplicitUnit() *ast.ProgramUnit {
	unit := &ast.ProgramUnit{
		Pos:  p.posOf(p.current()),
		Kind: ast.UnitProgram,
		Name: "main",
	}
	unit.Body = p.parseBlock(func() bool { return false })
	unit.EndLine = p.current().Line
	if unit.EndLine == 0 && len(p.tokens) > 0 {
		unit.EndLine = p.tokens[len(p.tokens)-1].Line
	}
	return unit
}

// ----------------------------------------------------------------------------
// Statements
// ----------------------------------------------------------------------------

// parseBlock parses statements until stop() holds or EOF.
func (p *Parser) parseBlock(stop func() bool) *ast.Block {
	block := &ast.Block{Pos: p.posOf(p.current())}
	p.skipNewlines()
	for !p.at(lexer.TokEOF) && !stop() {
		stmt := p.parseStatement()
		if stmt != nil {
			block.Stmts = append(block.Stmts, stmt)
		}
		p.skipNewlines()
	}
	return block
}

func (p *Parser) parseStatement() ast.Stmt {
	tok := p.current()
	switch tok.Kind {
	case lexer.TokDo:
		return p.parseDo()
	case lexer.TokIf:
		return p.parseIf()
	case lexer.TokCall:
		return p.parseCall()
	case lexer.TokInteger, lexer.TokReal, lexer.TokLogical, lexer.TokDimension:
		return p.parseDecl()
	case lexer.TokIdent:
		return p.parseAssignOrOpaque()
	default:
		return p.parseOpaque()
	}
}

// parseDo parses: do VAR = start, end[, step] ... end do
func (p *Parser) parseDo() ast.Stmt {
	doTok := p.advance()
	loop := &ast.ForStmt{Pos: p.posOf(doTok)}

	name, ok := p.expect(lexer.TokIdent)
	if !ok {
		p.skipToNewline()
		return &ast.OpaqueStmt{Pos: p.posOf(doTok), Text: "do"}
	}
	loop.Var = name.Text

	if _, ok := p.expect(lexer.TokEq); !ok {
		p.skipToNewline()
		return &ast.OpaqueStmt{Pos: p.posOf(doTok), Text: "do " + name.Text}
	}
	loop.Start = p.parseExpr()
	p.expect(lexer.TokComma)
	loop.End = p.parseExpr()
	if p.at(lexer.TokComma) {
		p.advance()
		loop.Step = p.parseExpr()
	}
	p.endStatement()

	loop.Body = p.parseBlock(func() bool { return p.atLoopEnd() })
	loop.EndLine = p.current().Line
	p.consumeLoopEnd()
	return loop
}

func (p *Parser) atLoopEnd() bool {
	if p.at(lexer.TokEndDo) {
		return true
	}
	return p.at(lexer.TokEnd) && p.peek().Kind == lexer.TokDo
}

func (p *Parser) consumeLoopEnd() {
	if p.at(lexer.TokEndDo) {
		p.advance()
	} else if p.at(lexer.TokEnd) && p.peek().Kind == lexer.TokDo {
		p.advance()
		p.advance()
	} else {
		p.errorAt(p.current(), "expected end do, found %s", p.current().Kind)
	}
	p.endStatement()
}

// parseIf parses block and one-line conditionals.
func (p *Parser) parseIf() ast.Stmt {
	ifTok := p.advance()
	stmt := &ast.IfStmt{Pos: p.posOf(ifTok)}

	p.expect(lexer.TokLParen)
	stmt.Cond = p.parseExpr()
	p.expect(lexer.TokRParen)

	if !p.at(lexer.TokThen) {
		// One-line form: if (cond) stmt
		inner := p.parseStatement()
		stmt.Body = &ast.Block{Pos: stmt.Pos}
		if inner != nil {
			stmt.Body.Stmts = []ast.Stmt{inner}
		}
		return stmt
	}
	p.advance() // then
	p.endStatement()

	stmt.Body = p.parseBlock(func() bool { return p.atIfEnd() || p.at(lexer.TokElse) })

	if p.at(lexer.TokElse) {
		elseTok := p.advance()
		if p.at(lexer.TokIf) {
			stmt.Else = p.parseIf()
			return stmt
		}
		p.endStatement()
		elseBlock := p.parseBlock(func() bool { return p.atIfEnd() })
		elseBlock.Pos = p.posOf(elseTok)
		stmt.Else = elseBlock
	}

	p.consumeIfEnd()
	return stmt
}

func (p *Parser) atIfEnd() bool {
	if p.at(lexer.TokEndIf) {
		return true
	}
	return p.at(lexer.TokEnd) && p.peek().Kind == lexer.TokIf
}

func (p *Parser) consumeIfEnd() {
	if p.at(lexer.TokEndIf) {
		p.advance()
	} else if p.at(lexer.TokEnd) && p.peek().Kind == lexer.TokIf {
		p.advance()
		p.advance()
	} else {
		p.errorAt(p.current(), "expected end if, found %s", p.current().Kind)
	}
	p.endStatement()
}

// parseCall parses: call name[(args)]
func (p *Parser) parseCall() ast.Stmt {
	callTok := p.advance()
	stmt := &ast.CallStmt{Pos: p.posOf(callTok)}
	if name, ok := p.expect(lexer.TokIdent); ok {
		stmt.Name = name.Text
	}
	if p.at(lexer.TokLParen) {
		p.advance()
		stmt.Args = p.parseExprList(lexer.TokRParen)
		p.expect(lexer.TokRParen)
	}
	p.endStatement()
	return stmt
}

// parseDecl parses type and dimension statements.
func (p *Parser) parseDecl() ast.Stmt {
	kindTok := p.advance()
	stmt := &ast.DeclStmt{Pos: p.posOf(kindTok), Kind: kindTok.Text}

	for {
		name, ok := p.expect(lexer.TokIdent)
		if !ok {
			p.skipToNewline()
			return stmt
		}
		entry := ast.DeclEntry{Name: name.Text}
		if p.at(lexer.TokLParen) {
			p.advance()
			entry.Dims = p.parseExprList(lexer.TokRParen)
			p.expect(lexer.TokRParen)
		}
		stmt.Entries = append(stmt.Entries, entry)
		if !p.at(lexer.TokComma) {
			break
		}
		p.advance()
	}
	p.endStatement()
	return stmt
}

// parseAssignOrOpaque parses "lhs = rhs"; anything else on the line
// becomes an opaque statement.
func (p *Parser) parseAssignOrOpaque() ast.Stmt {
	start := p.pos
	errStart := len(p.errors)
	startTok := p.current()

	lhs := p.parseVarExpr()
	if lhs == nil || !p.at(lexer.TokEq) {
		// Roll back errors recorded while speculating; the line is opaque.
		p.pos = start
		p.errors = p.errors[:errStart]
		return p.parseOpaque()
	}
	p.advance() // =

	stmt := &ast.AssignStmt{
		Pos:     p.posOf(startTok),
		Targets: []*ast.VarExpr{lhs},
		Rhs:     p.parseExpr(),
	}
	p.endStatement()
	return stmt
}

// parseOpaque swallows the rest of the line verbatim.
func (p *Parser) parseOpaque() ast.Stmt {
	tok := p.current()
	var words []string
	for !p.at(lexer.TokNewline) && !p.at(lexer.TokEOF) {
		words = append(words, p.advance().Text)
	}
	if p.at(lexer.TokNewline) {
		p.advance()
	}
	return &ast.OpaqueStmt{Pos: p.posOf(tok), Text: strings.Join(words, " ")}
}

// ----------------------------------------------------------------------------
// Expressions
// ----------------------------------------------------------------------------

func (p *Parser) parseExprList(closing lexer.TokenKind) []ast.Expr {
	var exprs []ast.Expr
	for !p.at(closing) && !p.at(lexer.TokNewline) && !p.at(lexer.TokEOF) {
		exprs = append(exprs, p.parseExpr())
		if !p.at(lexer.TokComma) {
			break
		}
		p.advance()
	}
	return exprs
}

func (p *Parser) parseExpr() ast.Expr {
	return p.parseOr()
}

func (p *Parser) parseOr() ast.Expr {
	left := p.parseAnd()
	for p.at(lexer.TokOr) {
		tok := p.advance()
		right := p.parseAnd()
		left = &ast.BinaryExpr{Pos: p.posOf(tok), Op: ast.OpOr, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAnd() ast.Expr {
	left := p.parseNot()
	for p.at(lexer.TokAnd) {
		tok := p.advance()
		right := p.parseNot()
		left = &ast.BinaryExpr{Pos: p.posOf(tok), Op: ast.OpAnd, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseNot() ast.Expr {
	if p.at(lexer.TokNot) {
		tok := p.advance()
		return &ast.UnaryExpr{Pos: p.posOf(tok), Op: ast.UnaryNot, Operand: p.parseNot()}
	}
	return p.parseRelational()
}

var relationalOps = map[lexer.TokenKind]ast.BinaryOp{
	lexer.TokLt:   ast.OpLt,
	lexer.TokLe:   ast.OpLe,
	lexer.TokGt:   ast.OpGt,
	lexer.TokGe:   ast.OpGe,
	lexer.TokEqEq: ast.OpEq,
	lexer.TokNe:   ast.OpNe,
}

func (p *Parser) parseRelational() ast.Expr {
	left := p.parseAdditive()
	if op, ok := relationalOps[p.current().Kind]; ok {
		tok := p.advance()
		right := p.parseAdditive()
		return &ast.BinaryExpr{Pos: p.posOf(tok), Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	for p.at(lexer.TokPlus) || p.at(lexer.TokMinus) {
		tok := p.advance()
		op := ast.OpAdd
		if tok.Kind == lexer.TokMinus {
			op = ast.OpSub
		}
		right := p.parseMultiplicative()
		left = &ast.BinaryExpr{Pos: p.posOf(tok), Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Expr {
	left := p.parseUnary()
	for p.at(lexer.TokStar) || p.at(lexer.TokSlash) {
		tok := p.advance()
		op := ast.OpMul
		if tok.Kind == lexer.TokSlash {
			op = ast.OpDiv
		}
		right := p.parseUnary()
		left = &ast.BinaryExpr{Pos: p.posOf(tok), Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	if p.at(lexer.TokMinus) {
		tok := p.advance()
		return &ast.UnaryExpr{Pos: p.posOf(tok), Op: ast.UnaryNeg, Operand: p.parseUnary()}
	}
	if p.at(lexer.TokPlus) {
		p.advance()
		return p.parseUnary()
	}
	return p.parsePower()
}

func (p *Parser) parsePower() ast.Expr {
	left := p.parsePrimary()
	if p.at(lexer.TokStarStar) {
		tok := p.advance()
		// Right associative.
		right := p.parseUnary()
		return &ast.BinaryExpr{Pos: p.posOf(tok), Op: ast.OpPow, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parsePrimary() ast.Expr {
	tok := p.current()
	switch tok.Kind {
	case lexer.TokIntLiteral:
		p.advance()
		var value int64
		fmt.Sscanf(tok.Text, "%d", &value)
		return &ast.IntLit{Pos: p.posOf(tok), Value: value}

	case lexer.TokRealLiteral:
		p.advance()
		var value float64
		fmt.Sscanf(tok.Text, "%g", &value)
		return &ast.RealLit{Pos: p.posOf(tok), Value: value, Text: tok.Text}

	case lexer.TokTrue:
		p.advance()
		return &ast.BoolLit{Pos: p.posOf(tok), Value: true}

	case lexer.TokFalse:
		p.advance()
		return &ast.BoolLit{Pos: p.posOf(tok), Value: false}

	case lexer.TokLParen:
		p.advance()
		inner := p.parseExpr()
		p.expect(lexer.TokRParen)
		return inner

	case lexer.TokIdent:
		return p.parseVarExpr()
	}

	p.errorAt(tok, "unexpected %s in expression", tok.Kind)
	p.advance()
	return &ast.IntLit{Pos: p.posOf(tok)}
}

// parseVarExpr parses IDENT[(args)]. Returns nil if not at an identifier.
func (p *Parser) parseVarExpr() *ast.VarExpr {
	if !p.at(lexer.TokIdent) {
		return nil
	}
	tok := p.advance()
	v := &ast.VarExpr{Pos: p.posOf(tok), Name: tok.Text}
	if p.at(lexer.TokLParen) {
		p.advance()
		v.Args = p.parseExprList(lexer.TokRParen)
		p.expect(lexer.TokRParen)
	}
	return v
}
