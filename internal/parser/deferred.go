package parser

import (
	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/errors"
	"github.com/orizon-lang/ozc/internal/lexer"
	"github.com/orizon-lang/ozc/internal/session"
)

// ResolveDeferred parses every outstanding deferred body of state, in
// registration order. When a completion point was requested and lies in a
// body, completion is invoked once with the token found there. Bodies
// resolved earlier are skipped.
func ResolveDeferred(sess *session.Session, unit *ast.SourceUnit, state *State, completion CompletionFactory) error {
	if err := state.bind(unit); err != nil {
		return errors.Usage(err, "WRONG_UNIT", map[string]interface{}{"unit": unit.Name})
	}

	resolved := 0

	for _, d := range state.deferred {
		if d.resolved {
			continue
		}

		resolveBody(sess, unit, state, d, completion)
		resolved++
	}

	sess.Logger.Debug("resolved %d deferred bodies in %s", resolved, unit.Name)

	return nil
}

// ResolveBody parses the deferred body of one function. Resolving a body
// twice returns ErrAlreadyResolved.
func ResolveBody(sess *session.Session, unit *ast.SourceUnit, state *State, fn *ast.FunctionDeclaration, completion CompletionFactory) error {
	if err := state.bind(unit); err != nil {
		return errors.Usage(err, "WRONG_UNIT", map[string]interface{}{"unit": unit.Name})
	}

	d, ok := state.byDecl[fn]
	if !ok {
		return errors.Usage(ErrNotDeferred, "NOT_DEFERRED", map[string]interface{}{"function": fn.QualifiedName()})
	}

	if d.resolved {
		return errors.Usage(ErrAlreadyResolved, "ALREADY_RESOLVED", map[string]interface{}{"function": fn.QualifiedName()})
	}

	resolveBody(sess, unit, state, d, completion)

	return nil
}

func resolveBody(sess *session.Session, unit *ast.SourceUnit, state *State, d *DeferredBody, completion CompletionFactory) {
	d.resolved = true

	lex := lexer.New(unit.File, lexer.Options{Offset: d.Start, EndOffset: d.End, TokenizeInterpolatedString: true})

	p := &Parser{sess: sess, sink: sess, file: unit.File, src: lex, unit: unit, state: state, first: true}
	p.opts.InterfaceOnly = unit.InterfaceOnly

	p.nextToken()
	p.nextToken()
	p.first = true

	if completion != nil && state.completion >= d.Start && state.completion <= d.End && !state.completionDone {
		p.completion = completion
		p.completionDecl = d.Decl
		p.completionLo = d.Start
		p.completionHi = d.End
		p.checkCompletion()
	}

	p.funcDepth = 1
	body := p.parseBlock()

	if body == nil {
		body = &ast.BlockStatement{Statements: []ast.Stmt{&ast.BadStatement{}}}
		body.Span = unit.File.SpanFromOffsets(d.Start, d.End)
		body.Statements[0].Base().Span = body.Span
	}

	d.Decl.Body = body
	d.Decl.Deferred = false
	unit.Adopt(body, d.Decl.ID)
}

// checkCompletion fires the completion factory when the current token
// reaches the requested offset.
func (p *Parser) checkCompletion() {
	st := p.state
	if st == nil || st.completionDone {
		return
	}

	off := st.completion
	if off < p.completionLo || off > p.completionHi {
		return
	}

	tok := p.current
	if tok.Type != lexer.TokenEOF && tok.End() < off {
		return
	}

	st.completionDone = true
	p.completion.CompletionAt(CompletionContext{
		Unit:   p.unit,
		Decl:   p.completionDecl,
		Token:  tok,
		Offset: off,
		Span:   tok.Span,
	})
}
