// Package parser implements a recursive-descent parser that turns a
// FasterBASIC token stream into an *ast.Program. The overall shape
// (collect ParseErrors, resync at statement boundaries, keep going) is
// kept from the teacher's internal/parser/parser.go; the grammar itself
// is rewritten for BASIC's block constructs (spec.md §4.2).
package parser

import (
	"fmt"
	"strconv"

	"fasterbasic/internal/ast"
	fberrors "fasterbasic/internal/errors"
	"fasterbasic/internal/lexer"
)

type Parser struct {
	file     string
	tokens   []lexer.Token
	pos      int
	errs     []*fberrors.CompileError
	warnings []*fberrors.CompileError
	sawNumberedLine bool
	sawUnnumberedLine bool
}

func NewParser(file string, tokens []lexer.Token) *Parser {
	return &Parser{file: file, tokens: tokens}
}

func (p *Parser) Errors() []*fberrors.CompileError   { return p.errs }
func (p *Parser) Warnings() []*fberrors.CompileError { return p.warnings }

// Parse consumes the whole token stream and returns the program. Errors
// are collected in p.Errors(); the caller should not trust the returned
// tree's completeness if errors were reported (spec.md §7: ParseError
// "report; attempt EOL resync; abort if too many").
func (p *Parser) Parse() *ast.Program {
	prog := &ast.Program{Node: ast.Node{Loc: p.loc()}}
	for !p.isAtEnd() {
		p.skipBlankLines()
		if p.isAtEnd() {
			break
		}
		p.maybeConsumeLeadingLabel(prog)
		if p.isAtEnd() || p.check(lexer.TokenEOF) {
			break
		}
		stmt := p.parseStatement()
		if stmt != nil {
			prog.Stmts = append(prog.Stmts, stmt)
		}
		p.consumeStatementSeparators()
	}
	if p.sawNumberedLine && p.sawUnnumberedLine {
		p.warnings = append(p.warnings, fberrors.New(fberrors.ParseError,
			"program mixes numbered and unnumbered lines", p.loc()))
	}
	return prog
}

// maybeConsumeLeadingLabel handles a classic line number ("10 PRINT ...")
// at the start of a logical line.
func (p *Parser) maybeConsumeLeadingLabel(prog *ast.Program) {
	if p.check(lexer.TokenInt32) && p.isLineStart() {
		tok := p.advance()
		p.sawNumberedLine = true
		prog.Stmts = append(prog.Stmts, &ast.LabelStmt{Node: ast.Node{Loc: p.tokLoc(tok)}, Name: tok.Lexeme})
	} else {
		p.sawUnnumberedLine = true
	}
}

// isLineStart reports whether the current position is the first token on
// a logical line: start-of-file, or the previous significant token was
// EOL/colon.
func (p *Parser) isLineStart() bool {
	if p.pos == 0 {
		return true
	}
	prev := p.tokens[p.pos-1]
	return prev.Type == lexer.TokenEOL || prev.Type == lexer.TokenColon
}

func (p *Parser) skipBlankLines() {
	for p.check(lexer.TokenEOL) {
		p.advance()
	}
}

func (p *Parser) consumeStatementSeparators() {
	for p.check(lexer.TokenEOL) || p.check(lexer.TokenColon) {
		p.advance()
	}
}

// ---- token primitives ----

func (p *Parser) peek() lexer.Token  { return p.tokens[p.pos] }
func (p *Parser) previous() lexer.Token { return p.tokens[p.pos-1] }
func (p *Parser) isAtEnd() bool      { return p.peek().Type == lexer.TokenEOF }

func (p *Parser) check(t lexer.TokenType) bool {
	if p.isAtEnd() && t != lexer.TokenEOF {
		return false
	}
	return p.peek().Type == t
}

func (p *Parser) advance() lexer.Token {
	if !p.isAtEnd() {
		p.pos++
	}
	return p.previous()
}

func (p *Parser) match(types ...lexer.TokenType) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) expect(t lexer.TokenType, what string) (lexer.Token, bool) {
	if p.check(t) {
		return p.advance(), true
	}
	p.errorf("expected %s, found %q", what, p.peek().Lexeme)
	return lexer.Token{}, false
}

func (p *Parser) errorf(format string, args ...interface{}) {
	tok := p.peek()
	p.errs = append(p.errs, fberrors.NewParse(fmt.Sprintf(format, args...), p.file, tok.Line, tok.Column))
}

func (p *Parser) loc() fberrors.Location {
	tok := p.peek()
	return fberrors.Location{File: p.file, Line: tok.Line, Column: tok.Column}
}

func (p *Parser) tokLoc(tok lexer.Token) fberrors.Location {
	return fberrors.Location{File: p.file, Line: tok.Line, Column: tok.Column}
}

// synchronize recovers from a parse error by skipping to the next
// statement boundary (EOL or colon), matching spec.md §4.2's "recovers at
// end-of-line boundaries" policy.
func (p *Parser) synchronize() {
	for !p.isAtEnd() && !p.check(lexer.TokenEOL) && !p.check(lexer.TokenColon) {
		p.advance()
	}
}

// ---- statements ----

func (p *Parser) parseStatement() ast.Stmt {
	loc := p.loc()
	var s ast.Stmt
	switch {
	case p.match(lexer.TokenDim):
		s = p.parseDim(loc, false)
	case p.match(lexer.TokenGlobal):
		p.expect(lexer.TokenDim, "DIM after GLOBAL")
		s = p.parseDim(loc, true)
	case p.match(lexer.TokenRedim):
		s = p.parseRedim(loc)
	case p.match(lexer.TokenIf):
		s = p.parseIf(loc)
	case p.match(lexer.TokenFor):
		s = p.parseFor(loc)
	case p.match(lexer.TokenWhile):
		s = p.parseWhile(loc)
	case p.match(lexer.TokenDo):
		s = p.parseDoLoop(loc)
	case p.match(lexer.TokenRepeat):
		s = p.parseRepeat(loc)
	case p.match(lexer.TokenSelect):
		s = p.parseSelectCase(loc)
	case p.match(lexer.TokenGoto):
		s = p.parseGoto(loc)
	case p.match(lexer.TokenGosub):
		s = p.parseGosub(loc)
	case p.match(lexer.TokenReturn):
		s = p.parseReturn(loc)
	case p.match(lexer.TokenExit):
		s = p.parseExit(loc)
	case p.match(lexer.TokenTry):
		s = p.parseTry(loc)
	case p.match(lexer.TokenThrow):
		s = p.parseThrow(loc)
	case p.match(lexer.TokenType_):
		s = p.parseTypeDecl(loc)
	case p.match(lexer.TokenFunction):
		s = p.parseFunction(loc)
	case p.match(lexer.TokenSub):
		s = p.parseSub(loc)
	case p.match(lexer.TokenData):
		s = p.parseData(loc)
	case p.match(lexer.TokenRead):
		s = p.parseRead(loc)
	case p.match(lexer.TokenRestore):
		s = p.parseRestore(loc)
	case p.match(lexer.TokenOpen):
		s = p.parseOpen(loc)
	case p.match(lexer.TokenClose):
		s = p.parseClose(loc)
	case p.check(lexer.TokenPrint) && p.peekAt(1).Type == lexer.TokenHash:
		p.advance()
		s = p.parsePrintChannel(loc)
	case p.match(lexer.TokenPrint):
		s = p.parsePrint(loc)
	case p.check(lexer.TokenInput) && p.peekAt(1).Type == lexer.TokenHash:
		p.advance()
		s = p.parseInputChannel(loc)
	case p.match(lexer.TokenInput):
		s = p.parseInput(loc)
	case p.match(lexer.TokenOption):
		s = p.parseOption(loc)
	case p.match(lexer.TokenEnd):
		s = p.parseEndOrBlockEnd(loc)
	default:
		s = p.parseAssignOrExprOrWholeArray(loc)
	}
	if s == nil {
		p.synchronize()
	}
	return s
}

func (p *Parser) parseBlockUntil(terminators ...lexer.TokenType) []ast.Stmt {
	var stmts []ast.Stmt
	for {
		p.consumeStatementSeparators()
		if p.isAtEnd() {
			break
		}
		stop := false
		for _, t := range terminators {
			if p.check(t) {
				stop = true
				break
			}
		}
		if stop {
			break
		}
		st := p.parseStatement()
		if st != nil {
			stmts = append(stmts, st)
		}
	}
	return stmts
}

func (p *Parser) parseDim(loc fberrors.Location, global bool) ast.Stmt {
	name, suf := p.expectIdent()
	d := &ast.DimStmt{Node: ast.Node{Loc: loc}, Name: name, Suffix: suf, Global: global}
	if p.match(lexer.TokenLParen) {
		d.IsArray = true
		for {
			lo := p.parseExpr()
			var hi ast.Expr
			if p.match(lexer.TokenTo) {
				hi = p.parseExpr()
			} else {
				hi = lo
				lo = &ast.Literal{Value: int32(0)}
			}
			d.Bounds = append(d.Bounds, ast.Bound{Lower: lo, Upper: hi})
			if !p.match(lexer.TokenComma) {
				break
			}
		}
		p.expect(lexer.TokenRParen, "')'")
	}
	if p.match(lexer.TokenAs) {
		tok := p.advance()
		d.AsType = tok.Lexeme
	}
	return d
}

func (p *Parser) parseRedim(loc fberrors.Location) ast.Stmt {
	preserve := p.match(lexer.TokenPreserve)
	name, _ := p.expectIdent()
	r := &ast.RedimStmt{Node: ast.Node{Loc: loc}, Name: name, Preserve: preserve}
	p.expect(lexer.TokenLParen, "'('")
	for {
		lo := p.parseExpr()
		var hi ast.Expr
		if p.match(lexer.TokenTo) {
			hi = p.parseExpr()
		} else {
			hi = lo
			lo = &ast.Literal{Value: int32(0)}
		}
		r.Bounds = append(r.Bounds, ast.Bound{Lower: lo, Upper: hi})
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.expect(lexer.TokenRParen, "')'")
	return r
}

func (p *Parser) parseIf(loc fberrors.Location) ast.Stmt {
	cond := p.parseExpr()
	p.expect(lexer.TokenThen, "THEN")
	stmt := &ast.IfStmt{Node: ast.Node{Loc: loc}, Cond: cond}

	// Single-line IF: THEN is followed on the same logical line by a
	// statement list, with no END IF.
	if !p.check(lexer.TokenEOL) {
		stmt.Then = p.parseSingleLineBody()
		if p.match(lexer.TokenElse) {
			stmt.Else = p.parseSingleLineBody()
		}
		return stmt
	}

	stmt.Then = p.parseBlockUntil(lexer.TokenElseIf, lexer.TokenElse, lexer.TokenEnd)
	for p.check(lexer.TokenElseIf) {
		p.advance()
		c := p.parseExpr()
		p.expect(lexer.TokenThen, "THEN")
		body := p.parseBlockUntil(lexer.TokenElseIf, lexer.TokenElse, lexer.TokenEnd)
		stmt.Elifs = append(stmt.Elifs, ast.ElseIf{Cond: c, Body: body})
	}
	if p.match(lexer.TokenElse) {
		stmt.Else = p.parseBlockUntil(lexer.TokenEnd)
	}
	p.expect(lexer.TokenEnd, "END")
	p.expect(lexer.TokenIf, "IF after END")
	return stmt
}

// parseSingleLineBody parses statements up to EOL/ELSE for a single-line
// IF, colon-separated.
func (p *Parser) parseSingleLineBody() []ast.Stmt {
	var stmts []ast.Stmt
	for !p.check(lexer.TokenEOL) && !p.check(lexer.TokenElse) && !p.isAtEnd() {
		st := p.parseStatement()
		if st != nil {
			stmts = append(stmts, st)
		}
		if !p.match(lexer.TokenColon) {
			break
		}
	}
	return stmts
}

func (p *Parser) parseFor(loc fberrors.Location) ast.Stmt {
	name, suf := p.expectIdent()
	p.expect(lexer.TokenEq, "'='")
	lo := p.parseExpr()
	p.expect(lexer.TokenTo, "TO")
	hi := p.parseExpr()
	var step ast.Expr
	if p.match(lexer.TokenStep) {
		step = p.parseExpr()
	}
	body := p.parseBlockUntil(lexer.TokenNext)
	p.expect(lexer.TokenNext, "NEXT")
	if p.check(lexer.TokenIdent) {
		p.advance() // optional loop variable after NEXT
	}
	return &ast.ForStmt{Node: ast.Node{Loc: loc}, Var: name, Suffix: suf, Lo: lo, Hi: hi, Step: step, Body: body}
}

func (p *Parser) parseWhile(loc fberrors.Location) ast.Stmt {
	cond := p.parseExpr()
	body := p.parseBlockUntil(lexer.TokenWend)
	p.expect(lexer.TokenWend, "WEND")
	return &ast.WhileStmt{Node: ast.Node{Loc: loc}, Cond: cond, Body: body}
}

func (p *Parser) parseDoLoop(loc fberrors.Location) ast.Stmt {
	d := &ast.DoLoopStmt{Node: ast.Node{Loc: loc}}
	if p.match(lexer.TokenWhile) {
		d.CondPos = ast.DoCondTop
		d.Kind = ast.DoLoopWhile
		d.Cond = p.parseExpr()
	} else if p.match(lexer.TokenUntil) {
		d.CondPos = ast.DoCondTop
		d.Kind = ast.DoLoopUntil
		d.Cond = p.parseExpr()
	}
	d.Body = p.parseBlockUntil(lexer.TokenLoop)
	p.expect(lexer.TokenLoop, "LOOP")
	if d.CondPos == ast.DoCondNone {
		if p.match(lexer.TokenWhile) {
			d.CondPos = ast.DoCondBottom
			d.Kind = ast.DoLoopWhile
			d.Cond = p.parseExpr()
		} else if p.match(lexer.TokenUntil) {
			d.CondPos = ast.DoCondBottom
			d.Kind = ast.DoLoopUntil
			d.Cond = p.parseExpr()
		}
	}
	return d
}

func (p *Parser) parseRepeat(loc fberrors.Location) ast.Stmt {
	body := p.parseBlockUntil(lexer.TokenUntil)
	p.expect(lexer.TokenUntil, "UNTIL")
	cond := p.parseExpr()
	return &ast.RepeatStmt{Node: ast.Node{Loc: loc}, Body: body, Cond: cond}
}

func (p *Parser) parseSelectCase(loc fberrors.Location) ast.Stmt {
	p.expect(lexer.TokenCase, "CASE after SELECT")
	sel := p.parseExpr()
	s := &ast.SelectCaseStmt{Node: ast.Node{Loc: loc}, Selector: sel}
	for p.check(lexer.TokenCase) {
		p.advance()
		arm := ast.CaseArm{}
		switch {
		case p.match(lexer.TokenElse):
			arm.Kind = ast.CaseElse
		case p.match(lexer.TokenIs):
			arm.Kind = ast.CaseRelational
			arm.RelOp = p.advance().Lexeme
			arm.RelValue = p.parseExpr()
		default:
			first := p.parseExpr()
			if p.match(lexer.TokenTo) {
				arm.Kind = ast.CaseRange
				arm.Lo = first
				arm.Hi = p.parseExpr()
			} else {
				arm.Kind = ast.CaseValues
				arm.Values = []ast.Expr{first}
				for p.match(lexer.TokenComma) {
					arm.Values = append(arm.Values, p.parseExpr())
				}
			}
		}
		arm.Body = p.parseBlockUntil(lexer.TokenCase, lexer.TokenEnd)
		s.Arms = append(s.Arms, arm)
	}
	p.expect(lexer.TokenEnd, "END")
	p.expect(lexer.TokenSelect, "SELECT after END")
	return s
}

func (p *Parser) parseGoto(loc fberrors.Location) ast.Stmt {
	tok := p.advance()
	return &ast.GotoStmt{Node: ast.Node{Loc: loc}, Target: tok.Lexeme}
}

func (p *Parser) parseGosub(loc fberrors.Location) ast.Stmt {
	tok := p.advance()
	return &ast.GosubStmt{Node: ast.Node{Loc: loc}, Target: tok.Lexeme}
}

func (p *Parser) parseReturn(loc fberrors.Location) ast.Stmt {
	r := &ast.ReturnStmt{Node: ast.Node{Loc: loc}}
	if !p.check(lexer.TokenEOL) && !p.check(lexer.TokenColon) && !p.isAtEnd() {
		r.Value = p.parseExpr()
	}
	return r
}

func (p *Parser) parseExit(loc fberrors.Location) ast.Stmt {
	e := &ast.ExitStmt{Node: ast.Node{Loc: loc}}
	switch {
	case p.match(lexer.TokenFor):
		e.Kind = ast.ExitForLoop
	case p.match(lexer.TokenWhile):
		e.Kind = ast.ExitWhileLoop
	case p.match(lexer.TokenDo):
		e.Kind = ast.ExitDoLoop
	case p.match(lexer.TokenSub):
		e.Kind = ast.ExitSubroutine
	case p.match(lexer.TokenFunction):
		e.Kind = ast.ExitFunc
	default:
		p.errorf("expected FOR, WHILE, DO, SUB or FUNCTION after EXIT")
	}
	return e
}

func (p *Parser) parseTry(loc fberrors.Location) ast.Stmt {
	t := &ast.TryStmt{Node: ast.Node{Loc: loc}}
	t.TryBody = p.parseBlockUntil(lexer.TokenCatch, lexer.TokenFinally, lexer.TokenEnd)
	for p.check(lexer.TokenCatch) {
		p.advance()
		arm := ast.CatchArm{}
		if !p.check(lexer.TokenEOL) {
			arm.Code = p.parseExpr()
		}
		arm.Body = p.parseBlockUntil(lexer.TokenCatch, lexer.TokenFinally, lexer.TokenEnd)
		t.Catches = append(t.Catches, arm)
	}
	if p.match(lexer.TokenFinally) {
		t.Finally = p.parseBlockUntil(lexer.TokenEnd)
	}
	p.expect(lexer.TokenEnd, "END")
	p.expect(lexer.TokenTry, "TRY after END")
	return t
}

func (p *Parser) parseThrow(loc fberrors.Location) ast.Stmt {
	code := p.parseExpr()
	var line ast.Expr
	if p.match(lexer.TokenComma) {
		line = p.parseExpr()
	} else {
		line = &ast.Literal{Value: int32(loc.Line)}
	}
	return &ast.ThrowStmt{Node: ast.Node{Loc: loc}, Code: code, Line: line}
}

func (p *Parser) parseTypeDecl(loc fberrors.Location) ast.Stmt {
	name := p.advance().Lexeme
	t := &ast.TypeDeclStmt{Node: ast.Node{Loc: loc}, Name: name}
	for !p.check(lexer.TokenEnd) && !p.isAtEnd() {
		p.consumeStatementSeparators()
		if p.check(lexer.TokenEnd) {
			break
		}
		fname, fsuf := p.expectIdent()
		fd := ast.FieldDecl{Name: fname, Suffix: fsuf}
		if p.match(lexer.TokenAs) {
			fd.AsType = p.advance().Lexeme
		}
		t.Fields = append(t.Fields, fd)
	}
	p.expect(lexer.TokenEnd, "END")
	p.expect(lexer.TokenType_, "TYPE after END")
	return t
}

func (p *Parser) parseParams() []ast.Param {
	var params []ast.Param
	p.expect(lexer.TokenLParen, "'('")
	if !p.check(lexer.TokenRParen) {
		for {
			name, suf := p.expectIdent()
			param := ast.Param{Name: name, Suffix: suf}
			if p.match(lexer.TokenLParen) {
				param.IsArray = true
				p.expect(lexer.TokenRParen, "')'")
			}
			if p.match(lexer.TokenAs) {
				param.AsType = p.advance().Lexeme
			}
			params = append(params, param)
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.expect(lexer.TokenRParen, "')'")
	return params
}

func (p *Parser) parseFunction(loc fberrors.Location) ast.Stmt {
	name, suf := p.expectIdent()
	f := &ast.FunctionStmt{Node: ast.Node{Loc: loc}, Name: name, Suffix: suf}
	f.Params = p.parseParams()
	if p.match(lexer.TokenAs) {
		f.AsType = p.advance().Lexeme
	}
	f.Body = p.parseBlockUntil(lexer.TokenEnd)
	p.expect(lexer.TokenEnd, "END")
	p.expect(lexer.TokenFunction, "FUNCTION after END")
	return f
}

func (p *Parser) parseSub(loc fberrors.Location) ast.Stmt {
	name, _ := p.expectIdent()
	s := &ast.SubStmt{Node: ast.Node{Loc: loc}, Name: name}
	s.Params = p.parseParams()
	s.Body = p.parseBlockUntil(lexer.TokenEnd)
	p.expect(lexer.TokenEnd, "END")
	p.expect(lexer.TokenSub, "SUB after END")
	return s
}

func (p *Parser) parseData(loc fberrors.Location) ast.Stmt {
	d := &ast.DataStmt{Node: ast.Node{Loc: loc}}
	for {
		d.Values = append(d.Values, p.parsePrimary())
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	return d
}

func (p *Parser) parseRead(loc fberrors.Location) ast.Stmt {
	r := &ast.ReadStmt{Node: ast.Node{Loc: loc}}
	for {
		r.Targets = append(r.Targets, p.parseLValue())
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	return r
}

func (p *Parser) parseRestore(loc fberrors.Location) ast.Stmt {
	r := &ast.RestoreStmt{Node: ast.Node{Loc: loc}}
	if p.check(lexer.TokenInt32) || p.check(lexer.TokenIdent) {
		r.Label = p.advance().Lexeme
	}
	return r
}

func (p *Parser) parseOpen(loc fberrors.Location) ast.Stmt {
	path := p.parseExpr()
	o := &ast.OpenStmt{Node: ast.Node{Loc: loc}, Path: path}
	if p.match(lexer.TokenFor) {
		mode := p.advance().Lexeme
		switch mode {
		case "OUTPUT":
			o.Mode = ast.OpenOutput
		case "APPEND":
			o.Mode = ast.OpenAppend
		case "HASHMAP":
			o.Mode = ast.OpenHashmap
		case "ARRAY":
			o.Mode = ast.OpenArray
		default:
			o.Mode = ast.OpenInput
		}
	}
	p.expect(lexer.TokenAs, "AS")
	o.Channel = p.parseChannelRef()
	return o
}

func (p *Parser) parseClose(loc fberrors.Location) ast.Stmt {
	ch := p.parseChannelRef()
	return &ast.CloseStmt{Node: ast.Node{Loc: loc}, Channel: ch}
}

func (p *Parser) parsePrintItems() []ast.PrintItem {
	var items []ast.PrintItem
	for !p.check(lexer.TokenEOL) && !p.check(lexer.TokenColon) && !p.isAtEnd() {
		v := p.parseExpr()
		sep := ""
		if p.match(lexer.TokenSemi) {
			sep = ";"
		} else if p.match(lexer.TokenComma) {
			sep = ","
		}
		items = append(items, ast.PrintItem{Value: v, Sep: sep})
		if sep == "" {
			break
		}
	}
	return items
}

func (p *Parser) parsePrint(loc fberrors.Location) ast.Stmt {
	return &ast.PrintStmt{Node: ast.Node{Loc: loc}, Items: p.parsePrintItems()}
}

func (p *Parser) parseChannelRef() ast.Expr {
	tok, _ := p.expect(lexer.TokenHash, "'#channel'")
	return &ast.Literal{Node: ast.Node{Loc: p.tokLoc(tok)}, Value: tok.Lexeme}
}

func (p *Parser) parsePrintChannel(loc fberrors.Location) ast.Stmt {
	ch := p.parseChannelRef()
	p.match(lexer.TokenComma)
	return &ast.PrintChannelStmt{Node: ast.Node{Loc: loc}, Channel: ch, Items: p.parsePrintItems()}
}

func (p *Parser) parseInputChannel(loc fberrors.Location) ast.Stmt {
	ch := p.parseChannelRef()
	p.match(lexer.TokenComma)
	in := &ast.InputChannelStmt{Node: ast.Node{Loc: loc}, Channel: ch}
	for {
		in.Targets = append(in.Targets, p.parseLValue())
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	return in
}

func (p *Parser) parseInput(loc fberrors.Location) ast.Stmt {
	in := &ast.InputStmt{Node: ast.Node{Loc: loc}}
	if p.check(lexer.TokenString) {
		in.Prompt = p.advance().Lexeme
		p.match(lexer.TokenSemi)
		p.match(lexer.TokenComma)
	}
	for {
		in.Targets = append(in.Targets, p.parseLValue())
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	return in
}

func (p *Parser) parseOption(loc fberrors.Location) ast.Stmt {
	name := p.advance().Lexeme
	value := p.advance().Lexeme
	return &ast.OptionStmt{Node: ast.Node{Loc: loc}, Name: name, Value: value}
}

// parseEndOrBlockEnd handles bare END distinct from the END IF/SELECT/
// TYPE/FUNCTION/SUB/TRY compound forms consumed by their own block
// parsers; reaching here means none of those matched, i.e. a true
// program-terminating END statement.
func (p *Parser) parseEndOrBlockEnd(loc fberrors.Location) ast.Stmt {
	return &ast.EndStmt{Node: ast.Node{Loc: loc}}
}

func (p *Parser) parseAssignOrExprOrWholeArray(loc fberrors.Location) ast.Stmt {
	lhs := p.parseLValueOrWholeArray()
	if wa, ok := lhs.(*ast.WholeArray); ok {
		p.expect(lexer.TokenEq, "'='")
		kind, a, b, c := p.parseWholeArrayRHS()
		return &ast.WholeArrayAssignStmt{Node: ast.Node{Loc: loc}, Dest: wa.Name, Kind: kind, A: a, B: b, C: c}
	}
	if p.match(lexer.TokenEq) {
		val := p.parseExpr()
		return &ast.AssignStmt{Node: ast.Node{Loc: loc}, Target: lhs, Value: val}
	}
	return &ast.ExprStmt{Node: ast.Node{Loc: loc}, Expr: lhs}
}

// parseWholeArrayRHS recognizes the canonical whole-array RHS shapes from
// spec.md §4.4: A()+B(), A()-B(), A()*B(), A()/B(), -A(), A(), A()*k,
// k*A(), and the FMA pattern A()+B()*C().
func (p *Parser) parseWholeArrayRHS() (ast.WholeArrayAssignKind, ast.Expr, ast.Expr, ast.Expr) {
	neg := p.match(lexer.TokenMinus)
	first := p.parseWholeArrayOperand()
	if neg {
		return ast.WAKindNeg, first, nil, nil
	}
	if p.isAtEnd() || p.check(lexer.TokenEOL) || p.check(lexer.TokenColon) {
		return ast.WAKindCopy, first, nil, nil
	}
	if p.match(lexer.TokenPlus) {
		b := p.parseWholeArrayOperand()
		if p.match(lexer.TokenStar) {
			c := p.parseWholeArrayOperand()
			return ast.WAKindFMA, first, b, c
		}
		return ast.WAKindAdd, first, b, nil
	}
	if p.match(lexer.TokenMinus) {
		b := p.parseWholeArrayOperand()
		return ast.WAKindSub, first, b, nil
	}
	if p.match(lexer.TokenStar) {
		b := p.parseWholeArrayOperand()
		if _, isArr := first.(*ast.WholeArray); !isArr {
			return ast.WAKindBroadcastLeft, first, b, nil
		}
		if _, isArr := b.(*ast.WholeArray); !isArr {
			return ast.WAKindBroadcastRight, first, b, nil
		}
		return ast.WAKindMul, first, b, nil
	}
	if p.match(lexer.TokenSlash) {
		b := p.parseWholeArrayOperand()
		return ast.WAKindDiv, first, b, nil
	}
	return ast.WAKindCopy, first, nil, nil
}

func (p *Parser) parseWholeArrayOperand() ast.Expr {
	if p.check(lexer.TokenIdent) && p.peekAt(1).Type == lexer.TokenLParen && p.peekAt(2).Type == lexer.TokenRParen {
		name, _ := p.expectIdent()
		p.advance() // (
		p.advance() // )
		return &ast.WholeArray{Name: name}
	}
	return p.parseUnary()
}

func (p *Parser) peekAt(n int) lexer.Token {
	idx := p.pos + n
	if idx >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[idx]
}

// parseLValueOrWholeArray distinguishes `A() = ...` (whole-array) from
// `A(i) = ...` (element) and `x = ...` (scalar) by lookahead.
func (p *Parser) parseLValueOrWholeArray() ast.Expr {
	if p.check(lexer.TokenIdent) && p.peekAt(1).Type == lexer.TokenLParen && p.peekAt(2).Type == lexer.TokenRParen {
		name, _ := p.expectIdent()
		p.advance()
		p.advance()
		return &ast.WholeArray{Name: name}
	}
	return p.parseLValue()
}

func (p *Parser) parseLValue() ast.Expr {
	name, suf := p.expectIdent()
	var e ast.Expr = &ast.Variable{Name: name, Suffix: suf}
	for {
		if p.match(lexer.TokenLParen) {
			var idx []ast.Expr
			if !p.check(lexer.TokenRParen) {
				for {
					idx = append(idx, p.parseExpr())
					if !p.match(lexer.TokenComma) {
						break
					}
				}
			}
			p.expect(lexer.TokenRParen, "')'")
			e = &ast.Index{Base: name, Indices: idx}
		} else if p.match(lexer.TokenDot) {
			field := p.advance().Lexeme
			e = &ast.FieldAccess{Object: e, Field: field}
		} else {
			break
		}
	}
	return e
}

func (p *Parser) expectIdent() (string, byte) {
	if p.check(lexer.TokenIdent) {
		tok := p.advance()
		return tok.Lexeme, tok.Suffix
	}
	p.errorf("expected identifier, found %q", p.peek().Lexeme)
	return "", 0
}

// ---- expressions: precedence climbing ----
// OR > AND > NOT > comparison > +- > */ MOD \ > unary > ^ > primary

func (p *Parser) parseExpr() ast.Expr { return p.parseOr() }

func (p *Parser) parseOr() ast.Expr {
	left := p.parseAnd()
	for p.check(lexer.TokenOr) || p.check(lexer.TokenXor) {
		op := p.advance().Lexeme
		right := p.parseAnd()
		left = &ast.Logical{Left: left, Operator: op, Right: right}
	}
	return left
}

func (p *Parser) parseAnd() ast.Expr {
	left := p.parseNot()
	for p.check(lexer.TokenAnd) {
		op := p.advance().Lexeme
		right := p.parseNot()
		left = &ast.Logical{Left: left, Operator: op, Right: right}
	}
	return left
}

func (p *Parser) parseNot() ast.Expr {
	if p.match(lexer.TokenNot) {
		operand := p.parseNot()
		return &ast.Unary{Operator: "NOT", Operand: operand}
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() ast.Expr {
	left := p.parseAdditive()
	for p.check(lexer.TokenEq) || p.check(lexer.TokenNe) || p.check(lexer.TokenLt) ||
		p.check(lexer.TokenGt) || p.check(lexer.TokenLe) || p.check(lexer.TokenGe) {
		op := p.advance().Lexeme
		right := p.parseAdditive()
		left = &ast.Binary{Left: left, Operator: op, Right: right}
	}
	return left
}

func (p *Parser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	for p.check(lexer.TokenPlus) || p.check(lexer.TokenMinus) {
		op := p.advance().Lexeme
		right := p.parseMultiplicative()
		left = &ast.Binary{Left: left, Operator: op, Right: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Expr {
	left := p.parseUnary()
	for p.check(lexer.TokenStar) || p.check(lexer.TokenSlash) || p.check(lexer.TokenBackslash) || p.check(lexer.TokenMod) {
		op := p.advance().Lexeme
		right := p.parseUnary()
		left = &ast.Binary{Left: left, Operator: op, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	if p.check(lexer.TokenMinus) || p.check(lexer.TokenPlus) {
		op := p.advance().Lexeme
		operand := p.parseUnary()
		return &ast.Unary{Operator: op, Operand: operand}
	}
	return p.parsePower()
}

func (p *Parser) parsePower() ast.Expr {
	left := p.parsePostfix()
	if p.match(lexer.TokenCaret) {
		right := p.parseUnary() // right-associative
		return &ast.Binary{Left: left, Operator: "^", Right: right}
	}
	return left
}

func (p *Parser) parsePostfix() ast.Expr {
	e := p.parsePrimary()
	for {
		if p.match(lexer.TokenDot) {
			field := p.advance().Lexeme
			e = &ast.FieldAccess{Object: e, Field: field}
			continue
		}
		break
	}
	return e
}

func (p *Parser) parsePrimary() ast.Expr {
	tok := p.peek()
	loc := p.tokLoc(tok)
	switch {
	case p.match(lexer.TokenInt32):
		v, _ := strconv.ParseInt(tok.Lexeme, 0, 32)
		return &ast.Literal{Node: ast.Node{Loc: loc}, Value: int32(v)}
	case p.match(lexer.TokenInt64):
		v, _ := strconv.ParseInt(tok.Lexeme, 0, 64)
		return &ast.Literal{Node: ast.Node{Loc: loc}, Value: v}
	case p.match(lexer.TokenSingle):
		v, _ := strconv.ParseFloat(tok.Lexeme, 32)
		return &ast.Literal{Node: ast.Node{Loc: loc}, Value: float32(v)}
	case p.match(lexer.TokenDouble):
		v, _ := strconv.ParseFloat(tok.Lexeme, 64)
		return &ast.Literal{Node: ast.Node{Loc: loc}, Value: v}
	case p.match(lexer.TokenString):
		return &ast.Literal{Node: ast.Node{Loc: loc}, Value: tok.Lexeme}
	case p.match(lexer.TokenLParen):
		e := p.parseExpr()
		p.expect(lexer.TokenRParen, "')'")
		return e
	case p.check(lexer.TokenIdent):
		return p.parseIdentExpr()
	default:
		p.errorf("unexpected token %q in expression", tok.Lexeme)
		p.advance()
		return &ast.Literal{Node: ast.Node{Loc: loc}, Value: int32(0)}
	}
}

func (p *Parser) parseIdentExpr() ast.Expr {
	name, suf := p.expectIdent()
	loc := p.tokLoc(p.previous())
	if p.match(lexer.TokenLParen) {
		var args []ast.Expr
		var toVal ast.Expr
		sliceLo := false
		if p.check(lexer.TokenTo) {
			p.advance()
			sliceLo = true
			toVal = p.parseExpr()
		}
		if !p.check(lexer.TokenRParen) && !sliceLo {
			for {
				args = append(args, p.parseExpr())
				if p.check(lexer.TokenTo) {
					p.advance()
					if p.check(lexer.TokenRParen) {
						p.expect(lexer.TokenRParen, "')'")
						return &ast.Slice{Object: &ast.Variable{Name: name, Suffix: suf}, Lo: args[0]}
					}
					hi := p.parseExpr()
					p.expect(lexer.TokenRParen, "')'")
					return &ast.Slice{Object: &ast.Variable{Name: name, Suffix: suf}, Lo: args[0], Hi: hi}
				}
				if !p.match(lexer.TokenComma) {
					break
				}
			}
		}
		p.expect(lexer.TokenRParen, "')'")
		if sliceLo {
			return &ast.Slice{Object: &ast.Variable{Name: name, Suffix: suf}, Hi: toVal}
		}
		if isBuiltinFunc(name) || p.isKnownFunction(name) {
			return &ast.Call{Node: ast.Node{Loc: loc}, Callee: name, Args: args}
		}
		return &ast.Index{Node: ast.Node{Loc: loc}, Base: name, Indices: args}
	}
	return &ast.Variable{Node: ast.Node{Loc: loc}, Name: name, Suffix: suf}
}

// isKnownFunction is a hook sema can replace by pre-seeding the parser
// with declared FUNCTION names; kept false here since the grammar does
// not require it to disambiguate (Index vs Call is resolved definitively
// by semantic analysis using the symbol table regardless).
func (p *Parser) isKnownFunction(name string) bool { return false }

var builtins = map[string]bool{
	"ABS": true, "SQR": true, "SIN": true, "COS": true, "TAN": true,
	"EXP": true, "LOG": true, "INT": true, "LEN": true, "MID": true,
	"LEFT": true, "RIGHT": true, "CHR": true, "ASC": true, "STR": true,
	"VAL": true, "SUM": true, "MAX": true, "MIN": true, "AVG": true,
	"DOT": true, "ERR": true, "ERL": true, "RND": true,
}

func isBuiltinFunc(name string) bool { return builtins[name] }
