// Package parser implements the ozc recursive descent parser.
//
// Parsing is resumable: ParseIntoUnit appends top-level elements to a
// SourceUnit and records where it stopped in a caller-owned State, so a
// later call continues from there. Function bodies can be deferred into
// the State's queue and parsed later by ResolveDeferred.
package parser

import (
	"cmp"
	"slices"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/errors"
	"github.com/orizon-lang/ozc/internal/lexer"
	"github.com/orizon-lang/ozc/internal/position"
	"github.com/orizon-lang/ozc/internal/session"
	"github.com/orizon-lang/ozc/internal/types"
)

// IRFunction is a function defined by a `mir { ... }` block.
type IRFunction struct {
	Name string
	Type *types.FunctionType
}

// IRContext parses textual MIR found in `mir { ... }` blocks.
type IRContext interface {
	// ParseIR parses text, which starts at byte offset in the unit buffer,
	// and returns the functions it defined.
	ParseIR(text string, offset int) ([]IRFunction, error)
}

// Options select the parsing mode of one ParseIntoUnit call.
type Options struct {
	// IsMainUnit marks the unit whose top-level statements are executed.
	IsMainUnit bool
	// Interactive stops parsing of the main unit right after the first
	// top-level statement with side effects.
	Interactive bool
	// DelayBodies records function bodies as deferred work.
	DelayBodies bool
	// InterfaceOnly accepts body-less function declarations.
	InterfaceOnly bool
	// IRContext enables `mir { ... }` blocks.
	IRContext IRContext
}

// ParseResult reports why ParseIntoUnit returned.
type ParseResult struct {
	// FoundSideEffects is set when interactive parsing stopped after a
	// side-effecting statement.
	FoundSideEffects bool
	// Done is set when the end of the buffer was reached.
	Done bool
	// Incomplete is set when interactive parsing found an element whose
	// brackets are not closed yet; nothing of it was consumed.
	Incomplete bool
	// Added is the number of elements appended by this call.
	Added int
}

type tokenSource interface {
	NextToken() lexer.Token
}

type sliceSource struct {
	toks []lexer.Token
	i    int
	eof  lexer.Token
}

func (s *sliceSource) NextToken() lexer.Token {
	if s.i >= len(s.toks) {
		return s.eof
	}

	tok := s.toks[s.i]
	s.i++

	return tok
}

// Parser represents the recursive descent parser over one token range.
type Parser struct {
	sess  *session.Session
	sink  diagnostic.Sink
	unit  *ast.SourceUnit
	file  *position.SourceFile
	src   tokenSource
	opts  Options
	state *State

	current lexer.Token
	peek    lexer.Token
	lastEnd int
	// first is set until the first token is consumed; the first token of
	// a resumed range counts as starting a line.
	first bool

	panicking bool
	skipping  bool
	funcDepth int

	completion     CompletionFactory
	completionDecl *ast.FunctionDeclaration
	completionLo   int
	completionHi   int
}

func newParser(sess *session.Session, sink diagnostic.Sink, file *position.SourceFile, src tokenSource) *Parser {
	p := &Parser{sess: sess, sink: sink, file: file, src: src, first: true}

	// Read two tokens, so current and peek are both set
	p.nextToken()
	p.nextToken()
	p.first = true

	return p
}

// ParseIntoUnit parses the unit's buffer from the state's cursor and
// appends the resulting top-level elements to unit. A nil state parses
// the whole buffer from the start.
func ParseIntoUnit(sess *session.Session, unit *ast.SourceUnit, state *State, opts Options) (ParseResult, error) {
	if state == nil {
		state = NewState()
	}

	if err := state.bind(unit); err != nil {
		return ParseResult{}, errors.Usage(err, "WRONG_UNIT", map[string]interface{}{"unit": unit.Name})
	}

	if opts.InterfaceOnly {
		unit.InterfaceOnly = true
	}

	lex := lexer.New(unit.File, lexer.Options{Offset: state.offset, TokenizeInterpolatedString: true})
	p := newParser(sess, sess, unit.File, lex)
	p.unit = unit
	p.opts = opts
	p.state = state

	before := len(unit.Elements)
	res := p.parseUnit()
	res.Added = len(unit.Elements) - before

	sess.Logger.Debug("parse %s: +%d elements, offset %d, done=%v side-effects=%v",
		unit.Name, res.Added, state.offset, res.Done, res.FoundSideEffects)

	return res, nil
}

func (p *Parser) interactive() bool {
	return p.opts.Interactive && p.opts.IsMainUnit
}

func (p *Parser) parseUnit() ParseResult {
	var pending []OpenScope
	if p.interactive() {
		pending = p.unclosedScopes()
	}

	for !p.curIs(lexer.TokenEOF) {
		if p.curIs(lexer.TokenSemicolon) {
			p.nextToken()

			continue
		}

		if p.interactive() {
			if open := scopesFrom(pending, p.current.Offset()); len(open) > 0 {
				p.state.scopes = open
				p.state.offset = p.current.Offset()

				return ParseResult{Incomplete: true}
			}
		}

		elem := p.parseTopLevel()
		p.unit.Append(elem)

		if p.interactive() && isSideEffecting(elem) {
			p.state.offset = p.current.Offset()
			p.state.scopes = nil

			return ParseResult{FoundSideEffects: true}
		}
	}

	p.state.offset = p.current.Offset()
	p.state.scopes = nil

	return ParseResult{Done: true}
}

// isSideEffecting reports whether executing a top-level element has
// observable effects: statements and initialized globals.
func isSideEffecting(n ast.Node) bool {
	switch n := n.(type) {
	case *ast.VariableDeclaration:
		return n.Value != nil
	case ast.Decl:
		return false
	case *ast.BadStatement:
		return false
	case ast.Stmt:
		return true
	}

	return false
}

// unclosedScopes scans the rest of the buffer and returns the brackets
// still open at its end.
func (p *Parser) unclosedScopes() []OpenScope {
	var open []OpenScope

	lex := lexer.New(p.file, lexer.Options{Offset: p.current.Offset()})
	for tok := range lex.All() {
		switch tok.Type {
		case lexer.TokenLParen, lexer.TokenLBrace, lexer.TokenLBracket:
			open = append(open, OpenScope{Kind: tok.Type, Offset: tok.Offset()})
		case lexer.TokenRParen, lexer.TokenRBrace, lexer.TokenRBracket:
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
		}
	}

	return open
}

// scopesFrom narrows the brackets left open by a scan to those at or
// after offset: a later scan starting there leaves exactly these open.
func scopesFrom(open []OpenScope, offset int) []OpenScope {
	i, _ := slices.BinarySearchFunc(open, offset, func(s OpenScope, off int) int {
		return cmp.Compare(s.Offset, off)
	})

	return open[i:]
}

// nextToken advances the parser to the next token
func (p *Parser) nextToken() {
	if !p.first || p.current.Type != lexer.TokenEOF {
		p.lastEnd = p.current.End()
	}

	p.first = false
	p.current = p.peek
	p.peek = p.src.NextToken()

	if p.current.Type == lexer.TokenError && !p.skipping {
		p.emit(diagnostic.NewDiagnostic(p.current.Reason).Error().
			Category(diagnostic.DiagnosticLexical).
			Args(p.current.Literal).
			Span(p.current.Span).Build())
	}

	if p.completion != nil {
		p.checkCompletion()
	}
}

func (p *Parser) curIs(tt lexer.TokenType) bool  { return p.current.Type == tt }
func (p *Parser) peekIs(tt lexer.TokenType) bool { return p.peek.Type == tt }

// atLineStart reports whether the current token begins a new line.
func (p *Parser) atLineStart() bool {
	return p.first || p.current.AtStartOfLine()
}

// expect consumes the current token if it has type tt and reports an
// error otherwise.
func (p *Parser) expect(tt lexer.TokenType, what string) bool {
	if p.curIs(tt) {
		p.nextToken()

		return true
	}

	p.errorExpected(what)

	return false
}

func (p *Parser) expectOperator(spelling string) bool {
	if p.current.IsOperator(spelling) {
		p.nextToken()

		return true
	}

	p.errorExpected("'" + spelling + "'")

	return false
}

// expectCloseAngle consumes one '>' and splits longer operator runs such
// as '>>' that close nested argument lists.
func (p *Parser) expectCloseAngle() bool {
	lit := p.current.Literal
	if p.curIs(lexer.TokenOperator) && len(lit) > 1 && lit[0] == '>' {
		start := p.current.Offset() + 1
		p.lastEnd = start
		p.current.Literal = lit[1:]
		p.current.Span = p.file.SpanFromOffsets(start, p.current.End())
		p.current.Leading = nil

		return true
	}

	return p.expectOperator(">")
}

func (p *Parser) spanFrom(start int) position.Span {
	end := p.lastEnd
	if end < start {
		end = start
	}

	return p.file.SpanFromOffsets(start, end)
}

func (p *Parser) intern(s string) string {
	if p.sess == nil {
		return s
	}

	return p.sess.Intern(s)
}

func (p *Parser) emit(d diagnostic.Diagnostic) {
	if p.sink != nil {
		p.sink.Emit(d)
	}
}

// errorAt reports a syntax error unless one was already reported for the
// construct being recovered.
func (p *Parser) errorAt(span position.Span, code string, args ...string) {
	if p.panicking || p.skipping {
		return
	}

	p.panicking = true
	p.emit(diagnostic.NewDiagnostic(code).Error().
		Category(diagnostic.DiagnosticSyntax).
		Args(args...).
		Span(span).Build())
}

func (p *Parser) errorExpected(what string) {
	if p.curIs(lexer.TokenError) {
		// already reported by the lexer
		p.panicking = true

		return
	}

	p.errorAt(p.current.Span, diagnostic.ParseExpected, what, p.current.Describe())
}

func isOpen(tt lexer.TokenType) bool {
	return tt == lexer.TokenLParen || tt == lexer.TokenLBrace || tt == lexer.TokenLBracket
}

func isClose(tt lexer.TokenType) bool {
	return tt == lexer.TokenRParen || tt == lexer.TokenRBrace || tt == lexer.TokenRBracket
}

// synchronize skips tokens after a syntax error up to the next element
// boundary: a line start or ';' outside brackets opened during the skip.
// Inside a block it also stops before the block's closing brace.
func (p *Parser) synchronize(inBlock bool) {
	depth := 0

	for !p.curIs(lexer.TokenEOF) {
		switch {
		case depth == 0 && p.curIs(lexer.TokenSemicolon):
			p.nextToken()
			p.panicking = false

			return
		case depth == 0 && inBlock && p.curIs(lexer.TokenRBrace):
			p.panicking = false

			return
		case depth == 0 && p.current.AtStartOfLine():
			p.panicking = false

			return
		}

		switch {
		case isOpen(p.current.Type):
			depth++
		case isClose(p.current.Type) && depth > 0:
			depth--
		}

		p.nextToken()
	}

	p.panicking = false
}

// endStatement accepts the separator after a statement: ';', a line
// break, a closing brace or the end of input.
func (p *Parser) endStatement(inBlock bool) {
	switch {
	case p.curIs(lexer.TokenSemicolon):
		p.nextToken()
	case p.curIs(lexer.TokenEOF), p.current.AtStartOfLine():
	case inBlock && p.curIs(lexer.TokenRBrace):
	default:
		p.errorExpected("newline or ';'")
		p.synchronize(inBlock)
	}
}

// parseTopLevel parses one top-level element. Failures become a
// BadDeclaration or BadStatement covering the skipped text.
func (p *Parser) parseTopLevel() ast.Node {
	p.panicking = false
	start := p.current.Offset()
	isDecl := p.startsDeclaration()

	n := p.parseElement()
	if n != nil && !p.panicking {
		p.endStatement(false)

		return n
	}

	if p.current.Offset() == start {
		p.nextToken()
	}

	p.synchronize(false)

	if isDecl {
		bad := &ast.BadDeclaration{Reason: "syntax"}
		bad.Span = p.spanFrom(start)

		return bad
	}

	bad := &ast.BadStatement{}
	bad.Span = p.spanFrom(start)

	return bad
}

func (p *Parser) startsDeclaration() bool {
	switch p.current.Type {
	case lexer.TokenImport, lexer.TokenPrecedenceGroup, lexer.TokenInfix, lexer.TokenPrefix,
		lexer.TokenFunc, lexer.TokenPrivate, lexer.TokenStruct, lexer.TokenProtocol,
		lexer.TokenMIR, lexer.TokenLet, lexer.TokenVar:
		return true
	}

	return false
}

func (p *Parser) parseElement() ast.Node {
	switch p.current.Type {
	case lexer.TokenImport:
		return nilIfNil(p.parseImport())
	case lexer.TokenPrecedenceGroup:
		return nilIfNil(p.parsePrecedenceGroup())
	case lexer.TokenInfix, lexer.TokenPrefix:
		return nilIfNil(p.parseOperatorDecl())
	case lexer.TokenFunc, lexer.TokenPrivate:
		private := false
		if p.curIs(lexer.TokenPrivate) {
			private = true
			p.nextToken()
		}

		switch p.current.Type {
		case lexer.TokenFunc:
			return nilIfNil(p.parseFunction(private, nil, nil))
		case lexer.TokenLet, lexer.TokenVar:
			v := p.parseVariableDecl(private)
			if v == nil {
				return nil
			}

			v.IsGlobal = true

			return v
		}

		p.errorExpected("declaration after 'private'")

		return nil
	case lexer.TokenStruct:
		return nilIfNil(p.parseStruct())
	case lexer.TokenProtocol:
		return nilIfNil(p.parseProtocol())
	case lexer.TokenMIR:
		return p.parseMIR()
	case lexer.TokenLet, lexer.TokenVar:
		v := p.parseVariableDecl(false)
		if v == nil {
			return nil
		}

		v.IsGlobal = true

		return v
	}

	start := p.current.Offset()

	s := p.parseStatement()
	if s == nil {
		return nil
	}

	if !p.opts.IsMainUnit {
		p.errorAt(p.spanFrom(start), diagnostic.ParseStatementInLib)

		return nil
	}

	return s
}

// nilIfNil converts a typed nil pointer into a nil interface.
func nilIfNil[T interface {
	*E
	ast.Node
}, E any](n T) ast.Node {
	if n == nil {
		return nil
	}

	return n
}
