package parser

import (
	"fmt"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/lexer"
	"github.com/orizon-lang/ozc/internal/position"
)

// parseType parses a type expression:
//
//	Name | Name<T, ...> | (T, ...) -> R
func (p *Parser) parseType() ast.TypeExpr {
	start := p.current.Offset()

	switch p.current.Type {
	case lexer.TokenIdentifier:
		t := &ast.TypeName{Name: p.intern(p.current.Literal)}
		p.nextToken()

		if p.current.IsOperator("<") && !p.current.AtStartOfLine() {
			p.nextToken()

			for {
				arg := p.parseType()
				if arg == nil {
					return nil
				}

				t.Arguments = append(t.Arguments, arg)

				if !p.curIs(lexer.TokenComma) {
					break
				}

				p.nextToken()
			}

			if !p.expectCloseAngle() {
				return nil
			}
		}

		t.Span = p.spanFrom(start)

		return t
	case lexer.TokenLParen:
		p.nextToken()

		fn := &ast.FunctionTypeExpr{}

		for !p.curIs(lexer.TokenRParen) {
			if len(fn.Params) > 0 && !p.expect(lexer.TokenComma, "',' or ')'") {
				return nil
			}

			param := p.parseType()
			if param == nil {
				return nil
			}

			fn.Params = append(fn.Params, param)
		}

		p.nextToken()

		if !p.expect(lexer.TokenArrow, "'->'") {
			return nil
		}

		fn.Result = p.parseType()
		if fn.Result == nil {
			return nil
		}

		fn.Span = p.spanFrom(start)

		return fn
	}

	p.errorExpected("type")

	return nil
}

// typeErrors collects the diagnostics of a standalone type parse.
type typeErrors struct {
	diags []diagnostic.Diagnostic
}

func (e *typeErrors) Emit(d diagnostic.Diagnostic) { e.diags = append(e.diags, d) }

// ParseTypeExpr parses src as a single type expression. Nodes are not
// registered in any arena. The error describes the first syntax error.
func ParseTypeExpr(src string) (ast.TypeExpr, error) {
	file := position.NewSourceFile("<type>", src)
	sink := &typeErrors{}

	p := newParser(nil, sink, file, lexer.New(file, lexer.Options{}))

	t := p.parseType()
	if t != nil && !p.curIs(lexer.TokenEOF) {
		p.errorExpected("end of type")
	}

	if len(sink.diags) > 0 {
		d := sink.diags[0]

		return nil, fmt.Errorf("%s: %s", d.Span.Start, diagnostic.Format(d))
	}

	return t, nil
}
