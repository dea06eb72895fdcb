package parser

import (
	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/lexer"
)

// parseBlock parses `{ statements }`. A malformed statement becomes a
// BadStatement and parsing continues with the next one.
func (p *Parser) parseBlock() *ast.BlockStatement {
	start := p.current.Offset()

	if !p.expect(lexer.TokenLBrace, "'{'") {
		return nil
	}

	block := &ast.BlockStatement{Statements: p.parseStatementList()}

	if !p.expect(lexer.TokenRBrace, "'}'") {
		return nil
	}

	block.Span = p.spanFrom(start)

	return block
}

// parseStatementList parses statements up to a closing brace.
func (p *Parser) parseStatementList() []ast.Stmt {
	var stmts []ast.Stmt

	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		if p.curIs(lexer.TokenSemicolon) {
			p.nextToken()

			continue
		}

		start := p.current.Offset()

		s := p.parseStatement()
		if s == nil || p.panicking {
			if p.current.Offset() == start {
				p.nextToken()
			}

			p.synchronize(true)

			bad := &ast.BadStatement{}
			bad.Span = p.spanFrom(start)
			s = bad
		} else {
			p.endStatement(true)
		}

		stmts = append(stmts, s)
	}

	return stmts
}

func (p *Parser) parseStatement() ast.Stmt {
	switch p.current.Type {
	case lexer.TokenLet, lexer.TokenVar:
		if v := p.parseVariableDecl(false); v != nil {
			return v
		}

		return nil
	case lexer.TokenIf:
		return nilIfNilStmt(p.parseIf())
	case lexer.TokenWhile:
		return nilIfNilStmt(p.parseWhile())
	case lexer.TokenReturn:
		return p.parseReturn()
	case lexer.TokenBreak:
		s := &ast.BreakStatement{}
		s.Span = p.current.Span
		p.nextToken()

		return s
	case lexer.TokenContinue:
		s := &ast.ContinueStatement{}
		s.Span = p.current.Span
		p.nextToken()

		return s
	case lexer.TokenFunc, lexer.TokenPrivate:
		p.errorAt(p.current.Span, diagnostic.ParseNotTopLevel, "function declaration")

		return nil
	case lexer.TokenImport, lexer.TokenPrecedenceGroup, lexer.TokenInfix, lexer.TokenPrefix,
		lexer.TokenStruct, lexer.TokenProtocol, lexer.TokenMIR:
		p.notTopLevelOr("statement")

		return nil
	}

	return p.parseExpressionStatement()
}

func nilIfNilStmt[T interface {
	*E
	ast.Stmt
}, E any](s T) ast.Stmt {
	if s == nil {
		return nil
	}

	return s
}

// parseExpressionStatement parses an expression or an assignment.
func (p *Parser) parseExpressionStatement() ast.Stmt {
	start := p.current.Offset()

	expr := p.parseExpression()
	if expr == nil {
		return nil
	}

	if p.curIs(lexer.TokenAssign) {
		p.nextToken()

		value := p.parseExpression()
		if value == nil {
			return nil
		}

		s := &ast.AssignStatement{Target: expr, Value: value}
		s.Span = p.spanFrom(start)

		return s
	}

	s := &ast.ExpressionStatement{Expression: expr}
	s.Span = p.spanFrom(start)

	return s
}

func (p *Parser) parseIf() *ast.IfStatement {
	start := p.current.Offset()
	p.nextToken()

	cond := p.parseExpression()
	if cond == nil {
		return nil
	}

	then := p.parseBlock()
	if then == nil {
		return nil
	}

	s := &ast.IfStatement{Condition: cond, Then: then}

	if p.curIs(lexer.TokenElse) {
		p.nextToken()

		if p.curIs(lexer.TokenIf) {
			elseIf := p.parseIf()
			if elseIf == nil {
				return nil
			}

			s.Else = elseIf
		} else {
			block := p.parseBlock()
			if block == nil {
				return nil
			}

			s.Else = block
		}
	}

	s.Span = p.spanFrom(start)

	return s
}

func (p *Parser) parseWhile() *ast.WhileStatement {
	start := p.current.Offset()
	p.nextToken()

	cond := p.parseExpression()
	if cond == nil {
		return nil
	}

	body := p.parseBlock()
	if body == nil {
		return nil
	}

	s := &ast.WhileStatement{Condition: cond, Body: body}
	s.Span = p.spanFrom(start)

	return s
}

// parseReturn parses `return` with an optional value on the same line.
func (p *Parser) parseReturn() ast.Stmt {
	start := p.current.Offset()
	p.nextToken()

	s := &ast.ReturnStatement{}

	switch {
	case p.curIs(lexer.TokenSemicolon), p.curIs(lexer.TokenRBrace), p.curIs(lexer.TokenEOF), p.current.AtStartOfLine():
	default:
		s.Value = p.parseExpression()
		if s.Value == nil {
			return nil
		}
	}

	s.Span = p.spanFrom(start)

	return s
}
