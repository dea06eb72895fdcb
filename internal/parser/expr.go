package parser

import (
	"strconv"
	"strings"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/lexer"
)

// parseExpression parses a flat operator sequence `e0 op e1 op e2 ...`.
// Precedence is not known until operator declarations are bound, so the
// sequence is kept flat and folded by the binder. An operator starting a
// new line ends the expression.
func (p *Parser) parseExpression() ast.Expr {
	start := p.current.Offset()

	first := p.parseUnary()
	if first == nil {
		return nil
	}

	if !p.curIs(lexer.TokenOperator) || p.current.AtStartOfLine() {
		return first
	}

	seq := &ast.SequenceExpression{Operands: []ast.Expr{first}}

	for p.curIs(lexer.TokenOperator) && !p.current.AtStartOfLine() {
		op := &ast.Identifier{Name: p.intern(p.current.Literal)}
		op.Span = p.current.Span
		p.nextToken()

		operand := p.parseUnary()
		if operand == nil {
			return nil
		}

		seq.Operators = append(seq.Operators, op)
		seq.Operands = append(seq.Operands, operand)
	}

	seq.Span = p.spanFrom(start)

	return seq
}

// parseUnary parses prefix operator applications.
func (p *Parser) parseUnary() ast.Expr {
	if !p.curIs(lexer.TokenOperator) {
		return p.parsePostfix()
	}

	start := p.current.Offset()
	op := &ast.Identifier{Name: p.intern(p.current.Literal)}
	op.Span = p.current.Span
	p.nextToken()

	operand := p.parseUnary()
	if operand == nil {
		return nil
	}

	e := &ast.PrefixExpression{Operator: op, Operand: operand}
	e.Span = p.spanFrom(start)

	return e
}

// parsePostfix parses calls and member accesses. A call's parenthesis
// must be on the line of its callee.
func (p *Parser) parsePostfix() ast.Expr {
	start := p.current.Offset()

	e := p.parsePrimary()
	if e == nil {
		return nil
	}

	for {
		switch {
		case p.curIs(lexer.TokenLParen) && !p.current.AtStartOfLine():
			args, ok := p.parseArguments()
			if !ok {
				return nil
			}

			call := &ast.CallExpression{Callee: e, Arguments: args}
			call.Span = p.spanFrom(start)
			e = call
		case p.curIs(lexer.TokenDot):
			p.nextToken()

			if !p.curIs(lexer.TokenIdentifier) {
				p.errorExpected("member name")

				return nil
			}

			m := &ast.MemberExpression{Object: e, Member: p.intern(p.current.Literal), MemberSpan: p.current.Span}
			p.nextToken()
			m.Span = p.spanFrom(start)
			e = m
		default:
			return e
		}
	}
}

func (p *Parser) parseArguments() ([]ast.Expr, bool) {
	p.nextToken()

	var args []ast.Expr

	for !p.curIs(lexer.TokenRParen) {
		if len(args) > 0 && !p.expect(lexer.TokenComma, "',' or ')'") {
			return nil, false
		}

		a := p.parseExpression()
		if a == nil {
			return nil, false
		}

		args = append(args, a)
	}

	p.nextToken()

	return args, true
}

func (p *Parser) parsePrimary() ast.Expr {
	tok := p.current

	switch tok.Type {
	case lexer.TokenIdentifier:
		p.nextToken()

		id := &ast.Identifier{Name: p.intern(tok.Literal)}
		id.Span = tok.Span

		return id
	case lexer.TokenInteger:
		p.nextToken()

		return p.integerLiteral(tok)
	case lexer.TokenFloat:
		p.nextToken()

		v, err := strconv.ParseFloat(strings.ReplaceAll(tok.Literal, "_", ""), 64)
		if err != nil {
			p.errorAt(tok.Span, diagnostic.LexMalformedNumber, tok.Literal)

			return nil
		}

		lit := &ast.FloatLiteral{Raw: tok.Literal, Value: v}
		lit.Span = tok.Span

		return lit
	case lexer.TokenString:
		p.nextToken()

		lit := &ast.StringLiteral{Value: tok.Value}
		lit.Span = tok.Span

		return lit
	case lexer.TokenStringInterpolation:
		p.nextToken()

		return p.interpolation(tok)
	case lexer.TokenTrue, lexer.TokenFalse:
		p.nextToken()

		lit := &ast.BoolLiteral{Value: tok.Type == lexer.TokenTrue}
		lit.Span = tok.Span

		return lit
	case lexer.TokenLParen:
		p.nextToken()

		inner := p.parseExpression()
		if inner == nil {
			return nil
		}

		if !p.expect(lexer.TokenRParen, "')'") {
			return nil
		}

		return inner
	case lexer.TokenLBrace:
		return nilIfNilExpr(p.parseClosure())
	case lexer.TokenError:
		// reported when the token was read
		p.nextToken()

		bad := &ast.BadExpression{}
		bad.Span = tok.Span

		return bad
	}

	p.errorExpected("expression")

	return nil
}

func nilIfNilExpr[T interface {
	*E
	ast.Expr
}, E any](e T) ast.Expr {
	if e == nil {
		return nil
	}

	return e
}

func (p *Parser) integerLiteral(tok lexer.Token) ast.Expr {
	v, err := strconv.ParseInt(strings.ReplaceAll(tok.Literal, "_", ""), 0, 64)
	if err != nil {
		p.errorAt(tok.Span, diagnostic.LexMalformedNumber, tok.Literal)

		return nil
	}

	lit := &ast.IntegerLiteral{Raw: tok.Literal, Value: v}
	lit.Span = tok.Span

	return lit
}

// interpolation parses each embedded segment of an interpolated string
// with a parser over the segment's token run.
func (p *Parser) interpolation(tok lexer.Token) ast.Expr {
	e := &ast.InterpolatedString{}
	e.Span = tok.Span

	for _, seg := range tok.Segments {
		if !seg.IsExpr {
			if seg.Text == "" {
				continue
			}

			lit := &ast.StringLiteral{Value: seg.Text}
			lit.Span = seg.Span
			e.Parts = append(e.Parts, lit)

			continue
		}

		eof := lexer.Token{Type: lexer.TokenEOF, Span: p.file.SpanFromOffsets(seg.Span.End.Offset, seg.Span.End.Offset)}
		sub := newParser(p.sess, p.sink, p.file, &sliceSource{toks: seg.Tokens, eof: eof})
		sub.unit = p.unit
		sub.opts = p.opts
		sub.funcDepth = p.funcDepth

		part := sub.parseExpression()
		if part == nil {
			p.panicking = true

			return nil
		}

		if !sub.curIs(lexer.TokenEOF) {
			sub.errorExpected("')'")
			p.panicking = true

			return nil
		}

		e.Parts = append(e.Parts, part)
	}

	return e
}

// parseClosure parses `{ (a: T) -> R in body }`.
func (p *Parser) parseClosure() *ast.ClosureExpression {
	start := p.current.Offset()
	p.nextToken()

	params, ok := p.parseParameterList()
	if !ok {
		return nil
	}

	c := &ast.ClosureExpression{Parameters: params}

	if p.curIs(lexer.TokenArrow) {
		p.nextToken()

		c.ReturnType = p.parseType()
		if c.ReturnType == nil {
			return nil
		}
	}

	if !p.expect(lexer.TokenIn, "'in'") {
		return nil
	}

	bodyStart := p.lastEnd

	p.funcDepth++
	stmts := p.parseStatementList()
	p.funcDepth--

	if !p.curIs(lexer.TokenRBrace) {
		p.errorExpected("'}'")

		return nil
	}

	c.Body = &ast.BlockStatement{Statements: stmts}
	c.Body.Span = p.file.SpanFromOffsets(bodyStart, p.current.Offset())
	p.nextToken()

	if len(stmts) == 1 {
		_, c.SingleExpression = stmts[0].(*ast.ExpressionStatement)
	}

	c.Span = p.spanFrom(start)

	return c
}
