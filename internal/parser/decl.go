package parser

import (
	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/lexer"
)

func (p *Parser) parseImport() *ast.ImportDeclaration {
	start := p.current.Offset()
	p.nextToken()

	if !p.curIs(lexer.TokenIdentifier) {
		p.errorExpected("module name")

		return nil
	}

	decl := &ast.ImportDeclaration{Module: p.intern(p.current.Literal), ModuleSpan: p.current.Span}
	p.nextToken()
	decl.Span = p.spanFrom(start)

	return decl
}

// parsePrecedenceGroup parses
//
//	precedencegroup Name { higherThan: A, B  lowerThan: C  associativity: left }
func (p *Parser) parsePrecedenceGroup() *ast.PrecedenceGroupDeclaration {
	start := p.current.Offset()
	p.nextToken()

	if !p.curIs(lexer.TokenIdentifier) {
		p.errorExpected("precedence group name")

		return nil
	}

	decl := &ast.PrecedenceGroupDeclaration{Name: p.intern(p.current.Literal)}
	p.nextToken()

	if !p.expect(lexer.TokenLBrace, "'{'") {
		return nil
	}

	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		if p.curIs(lexer.TokenSemicolon) || p.curIs(lexer.TokenComma) {
			p.nextToken()

			continue
		}

		if !p.curIs(lexer.TokenIdentifier) {
			p.errorExpected("'higherThan', 'lowerThan' or 'associativity'")

			return nil
		}

		key := p.current.Literal
		p.nextToken()

		if !p.expect(lexer.TokenColon, "':'") {
			return nil
		}

		switch key {
		case "higherThan", "lowerThan":
			names := p.parseNameList()
			if names == nil {
				return nil
			}

			if key == "higherThan" {
				decl.HigherThan = append(decl.HigherThan, names...)
			} else {
				decl.LowerThan = append(decl.LowerThan, names...)
			}
		case "associativity":
			switch {
			case p.curIs(lexer.TokenIdentifier) && p.current.Literal == "left":
				decl.Associativity = ast.AssocLeft
			case p.curIs(lexer.TokenIdentifier) && p.current.Literal == "right":
				decl.Associativity = ast.AssocRight
			case p.curIs(lexer.TokenIdentifier) && p.current.Literal == "none":
				decl.Associativity = ast.AssocNone
			default:
				p.errorExpected("'left', 'right' or 'none'")

				return nil
			}

			p.nextToken()
		default:
			p.errorAt(p.current.Span, diagnostic.ParseUnexpectedToken, "'"+key+"'", "precedence group")

			return nil
		}
	}

	if !p.expect(lexer.TokenRBrace, "'}'") {
		return nil
	}

	decl.Span = p.spanFrom(start)

	return decl
}

// parseNameList parses `A, B, C` where a comma continues the list only
// when an identifier follows it.
func (p *Parser) parseNameList() []string {
	var names []string

	for {
		if !p.curIs(lexer.TokenIdentifier) {
			p.errorExpected("precedence group name")

			return nil
		}

		names = append(names, p.intern(p.current.Literal))
		p.nextToken()

		if !p.curIs(lexer.TokenComma) || !p.peekIs(lexer.TokenIdentifier) {
			return names
		}

		// `higherThan: A, lowerThan: B` separates keys with commas too
		if p.peek.Literal == "higherThan" || p.peek.Literal == "lowerThan" || p.peek.Literal == "associativity" {
			return names
		}

		p.nextToken()
	}
}

// parseOperatorDecl parses `infix operator |> : Group` and
// `prefix operator !!`.
func (p *Parser) parseOperatorDecl() *ast.OperatorDeclaration {
	start := p.current.Offset()

	decl := &ast.OperatorDeclaration{Fixity: ast.FixityInfix}
	if p.curIs(lexer.TokenPrefix) {
		decl.Fixity = ast.FixityPrefix
	}

	p.nextToken()

	if !p.expect(lexer.TokenOperatorKw, "'operator'") {
		return nil
	}

	if !p.curIs(lexer.TokenOperator) || !lexer.IsOperatorSpelling(p.current.Literal) {
		p.errorExpected("operator spelling")

		return nil
	}

	decl.Operator = p.intern(p.current.Literal)
	p.nextToken()

	if decl.Fixity == ast.FixityInfix && p.curIs(lexer.TokenColon) && !p.current.AtStartOfLine() {
		p.nextToken()

		if !p.curIs(lexer.TokenIdentifier) {
			p.errorExpected("precedence group name")

			return nil
		}

		decl.Group = p.intern(p.current.Literal)
		p.nextToken()
	}

	decl.Span = p.spanFrom(start)

	return decl
}

// parseFunction parses a function, method, operator implementation or
// protocol requirement. The current token is 'func'.
func (p *Parser) parseFunction(private bool, owner *ast.StructDeclaration, proto *ast.ProtocolDeclaration) *ast.FunctionDeclaration {
	start := p.current.Offset()
	p.nextToken()

	fn := &ast.FunctionDeclaration{IsPrivate: private, Owner: owner, Protocol: proto}

	switch p.current.Type {
	case lexer.TokenIdentifier:
	case lexer.TokenOperator:
		fn.IsOperator = true
	default:
		p.errorExpected("function name")

		return nil
	}

	fn.Name = p.intern(p.current.Literal)
	fn.NameSpan = p.current.Span
	p.nextToken()

	if p.current.IsOperator("<") {
		generics, ok := p.parseGenericParams()
		if !ok {
			return nil
		}

		fn.Generics = generics
	}

	params, ok := p.parseParameterList()
	if !ok {
		return nil
	}

	fn.Parameters = params

	if p.curIs(lexer.TokenArrow) {
		p.nextToken()

		fn.ReturnType = p.parseType()
		if fn.ReturnType == nil {
			return nil
		}
	}

	if p.curIs(lexer.TokenLBrace) {
		if proto != nil {
			p.errorAt(p.current.Span, diagnostic.ParseUnexpectedToken, "'{'", "protocol requirement")

			return nil
		}

		if p.opts.DelayBodies && p.state != nil && p.funcDepth == 0 {
			if !p.deferBody(fn) {
				return nil
			}
		} else {
			p.funcDepth++
			fn.Body = p.parseBlock()
			p.funcDepth--

			if fn.Body == nil {
				return nil
			}
		}
	} else if proto == nil && !p.opts.InterfaceOnly && (p.unit == nil || !p.unit.InterfaceOnly) {
		p.errorAt(fn.NameSpan, diagnostic.ParseBodyRequired, fn.Name)

		return nil
	}

	fn.Span = p.spanFrom(start)

	return fn
}

// deferBody skips the braced body at the current token and queues it.
func (p *Parser) deferBody(fn *ast.FunctionDeclaration) bool {
	open, closeEnd, ok := p.skipBraces()
	if !ok {
		return false
	}

	fn.Deferred = true
	fn.BodyStart = open
	fn.BodyEnd = closeEnd
	p.state.enqueue(&DeferredBody{Decl: fn, Start: open, End: closeEnd})

	return true
}

// skipBraces consumes a balanced `{ ... }` by token matching and returns
// the offset of the opening brace and the offset just past the closing
// one. Tokens inside are not reported or parsed.
func (p *Parser) skipBraces() (open, closeEnd int, ok bool) {
	open = p.current.Offset()
	depth := 0

	p.skipping = true
	defer func() { p.skipping = false }()

	for !p.curIs(lexer.TokenEOF) {
		switch p.current.Type {
		case lexer.TokenLBrace:
			depth++
		case lexer.TokenRBrace:
			depth--
			if depth == 0 {
				closeEnd = p.current.End()
				p.skipping = false
				p.nextToken()

				return open, closeEnd, true
			}
		}

		p.nextToken()
	}

	p.skipping = false
	p.errorExpected("'}'")

	return 0, 0, false
}

// parseGenericParams parses `<T, U: Numeric & Comparable>`.
func (p *Parser) parseGenericParams() ([]*ast.GenericParameter, bool) {
	p.nextToken()

	var out []*ast.GenericParameter

	for {
		if !p.curIs(lexer.TokenIdentifier) {
			p.errorExpected("generic parameter name")

			return nil, false
		}

		start := p.current.Offset()
		g := &ast.GenericParameter{Name: p.intern(p.current.Literal)}
		p.nextToken()

		if p.curIs(lexer.TokenColon) {
			p.nextToken()

			for {
				c := p.parseType()
				if c == nil {
					return nil, false
				}

				g.Constraints = append(g.Constraints, c)

				if !p.current.IsOperator("&") {
					break
				}

				p.nextToken()
			}
		}

		g.Span = p.spanFrom(start)
		out = append(out, g)

		if p.curIs(lexer.TokenComma) {
			p.nextToken()

			continue
		}

		if !p.expectCloseAngle() {
			return nil, false
		}

		return out, true
	}
}

// parseParameterList parses `(a: T, b: U)`.
func (p *Parser) parseParameterList() ([]*ast.Parameter, bool) {
	if !p.expect(lexer.TokenLParen, "'('") {
		return nil, false
	}

	var params []*ast.Parameter

	for !p.curIs(lexer.TokenRParen) {
		if len(params) > 0 && !p.expect(lexer.TokenComma, "',' or ')'") {
			return nil, false
		}

		if !p.curIs(lexer.TokenIdentifier) {
			p.errorExpected("parameter name")

			return nil, false
		}

		start := p.current.Offset()
		param := &ast.Parameter{Name: p.intern(p.current.Literal)}
		p.nextToken()

		if !p.expect(lexer.TokenColon, "':'") {
			return nil, false
		}

		param.TypeAnnotation = p.parseType()
		if param.TypeAnnotation == nil {
			return nil, false
		}

		param.Span = p.spanFrom(start)
		params = append(params, param)
	}

	p.nextToken()

	return params, true
}

// parseStruct parses a struct with fields and methods.
func (p *Parser) parseStruct() *ast.StructDeclaration {
	start := p.current.Offset()
	p.nextToken()

	if !p.curIs(lexer.TokenIdentifier) {
		p.errorExpected("struct name")

		return nil
	}

	decl := &ast.StructDeclaration{Name: p.intern(p.current.Literal)}
	p.nextToken()

	if p.curIs(lexer.TokenColon) {
		p.nextToken()

		for {
			t := p.parseType()
			if t == nil {
				return nil
			}

			decl.Conformances = append(decl.Conformances, t)

			if !p.curIs(lexer.TokenComma) {
				break
			}

			p.nextToken()
		}
	}

	if !p.expect(lexer.TokenLBrace, "'{'") {
		return nil
	}

	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		if p.curIs(lexer.TokenSemicolon) {
			p.nextToken()

			continue
		}

		private := false
		if p.curIs(lexer.TokenPrivate) {
			private = true
			p.nextToken()
		}

		switch p.current.Type {
		case lexer.TokenVar, lexer.TokenLet:
			field := p.parseVariableDecl(private)
			if field == nil {
				return nil
			}

			if field.Value != nil {
				p.errorAt(field.Value.GetSpan(), diagnostic.ParseUnexpectedToken, "initializer", "stored property")

				return nil
			}

			field.Owner = decl
			decl.Fields = append(decl.Fields, field)
		case lexer.TokenFunc:
			m := p.parseFunction(private, decl, nil)
			if m == nil {
				return nil
			}

			decl.Methods = append(decl.Methods, m)
		default:
			p.notTopLevelOr("struct member")

			return nil
		}

		p.endStatement(true)
	}

	if !p.expect(lexer.TokenRBrace, "'}'") {
		return nil
	}

	decl.Span = p.spanFrom(start)

	return decl
}

// parseProtocol parses a protocol with body-less method requirements.
func (p *Parser) parseProtocol() *ast.ProtocolDeclaration {
	start := p.current.Offset()
	p.nextToken()

	if !p.curIs(lexer.TokenIdentifier) {
		p.errorExpected("protocol name")

		return nil
	}

	decl := &ast.ProtocolDeclaration{Name: p.intern(p.current.Literal)}
	p.nextToken()

	if !p.expect(lexer.TokenLBrace, "'{'") {
		return nil
	}

	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		if p.curIs(lexer.TokenSemicolon) {
			p.nextToken()

			continue
		}

		if !p.curIs(lexer.TokenFunc) {
			p.errorExpected("method requirement")

			return nil
		}

		req := p.parseFunction(false, nil, decl)
		if req == nil {
			return nil
		}

		decl.Requirements = append(decl.Requirements, req)

		p.endStatement(true)
	}

	if !p.expect(lexer.TokenRBrace, "'}'") {
		return nil
	}

	decl.Span = p.spanFrom(start)

	return decl
}

// parseVariableDecl parses `let x: T = v` or `var x = v`.
func (p *Parser) parseVariableDecl(private bool) *ast.VariableDeclaration {
	start := p.current.Offset()

	decl := &ast.VariableDeclaration{Kind: ast.VarKindLet, IsPrivate: private}
	if p.curIs(lexer.TokenVar) {
		decl.Kind = ast.VarKindVar
	}

	p.nextToken()

	if !p.curIs(lexer.TokenIdentifier) {
		p.errorExpected("variable name")

		return nil
	}

	decl.Name = p.intern(p.current.Literal)
	p.nextToken()

	if p.curIs(lexer.TokenColon) {
		p.nextToken()

		decl.TypeAnnotation = p.parseType()
		if decl.TypeAnnotation == nil {
			return nil
		}
	}

	if p.curIs(lexer.TokenAssign) {
		p.nextToken()

		decl.Value = p.parseExpression()
		if decl.Value == nil {
			return nil
		}
	}

	if decl.TypeAnnotation == nil && decl.Value == nil {
		p.errorExpected("type annotation or initializer")

		return nil
	}

	decl.Span = p.spanFrom(start)

	return decl
}

// parseMIR parses `mir { ... }`, handing the braced text to the IR
// context.
func (p *Parser) parseMIR() ast.Node {
	start := p.current.Offset()
	kwSpan := p.current.Span
	p.nextToken()

	if !p.curIs(lexer.TokenLBrace) {
		p.errorExpected("'{'")

		return nil
	}

	open, closeEnd, ok := p.skipBraces()
	if !ok {
		return nil
	}

	textStart := open + 1
	text := p.file.Content[textStart : closeEnd-1]

	if p.opts.IRContext == nil {
		p.errorAt(kwSpan, diagnostic.ParseIRWithoutContext)

		return nil
	}

	fns, err := p.opts.IRContext.ParseIR(text, textStart)
	if err != nil {
		p.errorAt(p.spanFrom(start), diagnostic.ParseIRInvalid, err.Error())

		return nil
	}

	decl := &ast.MIRDeclaration{Text: text, TextStart: textStart}
	decl.Span = p.spanFrom(start)

	for _, f := range fns {
		b := &ast.BuiltinDeclaration{Name: p.intern(f.Name), Kind: ast.BuiltinFunction, Func: f.Type}
		b.Span = decl.Span
		decl.Functions = append(decl.Functions, b)
	}

	return decl
}

// notTopLevelOr reports a top-level-only declaration used in a nested
// position, or a generic expectation otherwise.
func (p *Parser) notTopLevelOr(what string) {
	switch p.current.Type {
	case lexer.TokenImport, lexer.TokenPrecedenceGroup, lexer.TokenInfix, lexer.TokenPrefix,
		lexer.TokenStruct, lexer.TokenProtocol, lexer.TokenMIR:
		p.errorAt(p.current.Span, diagnostic.ParseNotTopLevel, p.current.Describe())
	default:
		p.errorExpected(what)
	}
}
