package mir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/orizon-lang/ozc/internal/types"
)

// ParseOptions configures ParseText.
type ParseOptions struct {
	// Name is used when the text has no module header.
	Name string
	// Resolve is consulted for type names that are neither builtin nor
	// declared by a type line of the text.
	Resolve func(name string) (types.Type, error)
}

// SyntaxError reports malformed MIR text.
type SyntaxError struct {
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("mir:%d:%d: %s", e.Line, e.Col, e.Msg)
}

// ParseText reads the textual form written by Print.
func ParseText(text string, opts ParseOptions) (*Module, error) {
	p := &textParser{src: text, line: 1, col: 1, opts: opts, structs: make(map[string]*types.StructType)}

	m, err := p.module()
	if err != nil {
		return nil, err
	}

	return m, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokKind
	text string
	line int
	col  int
}

type textParser struct {
	src       string
	off       int
	line, col int
	tok       token
	peeked    bool
	opts      ParseOptions
	structs   map[string]*types.StructType
	mod       *Module
	values    map[int]*Value
	forward   map[int]token
}

func (p *textParser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Line: t.line, Col: t.col, Msg: fmt.Sprintf(format, args...)}
}

func (p *textParser) advance() {
	if p.src[p.off] == '\n' {
		p.line++
		p.col = 1
	} else {
		p.col++
	}

	p.off++
}

func (p *textParser) skipSpace() {
	for p.off < len(p.src) {
		c := p.src[p.off]

		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			p.advance()
		case c == ';':
			for p.off < len(p.src) && p.src[p.off] != '\n' {
				p.advance()
			}
		default:
			return
		}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (p *textParser) lex() (token, error) {
	p.skipSpace()

	t := token{line: p.line, col: p.col}
	if p.off >= len(p.src) {
		t.kind = tokEOF

		return t, nil
	}

	start := p.off
	c := p.src[p.off]

	switch {
	case isIdentStart(c):
		for p.off < len(p.src) && (isIdentStart(p.src[p.off]) || isDigit(p.src[p.off]) || p.src[p.off] == '.') {
			p.advance()
		}

		t.kind = tokIdent
	case isDigit(c) || (c == '-' || c == '+') && p.off+1 < len(p.src) && (isDigit(p.src[p.off+1]) || p.src[p.off+1] == 'I'):
		p.advance()

		for p.off < len(p.src) {
			d := p.src[p.off]
			prev := p.src[p.off-1]

			if isDigit(d) || isIdentStart(d) || d == '.' || (d == '+' || d == '-') && (prev == 'e' || prev == 'E') {
				p.advance()

				continue
			}

			break
		}

		t.kind = tokNumber
	case c == '"':
		p.advance()

		for {
			if p.off >= len(p.src) || p.src[p.off] == '\n' {
				return t, p.errorf(t, "unterminated string")
			}

			if p.src[p.off] == '\\' && p.off+1 < len(p.src) {
				p.advance()
			} else if p.src[p.off] == '"' {
				p.advance()

				break
			}

			p.advance()
		}

		t.kind = tokString
	case c == '-' && p.off+1 < len(p.src) && p.src[p.off+1] == '>':
		p.advance()
		p.advance()

		t.kind = tokPunct
	default:
		p.advance()

		t.kind = tokPunct
	}

	t.text = p.src[start:p.off]

	return t, nil
}

func (p *textParser) peek() (token, error) {
	if !p.peeked {
		t, err := p.lex()
		if err != nil {
			return t, err
		}

		p.tok = t
		p.peeked = true
	}

	return p.tok, nil
}

func (p *textParser) next() (token, error) {
	t, err := p.peek()
	p.peeked = false

	return t, err
}

func (p *textParser) expect(text string) (token, error) {
	t, err := p.next()
	if err != nil {
		return t, err
	}

	if t.text != text || t.kind == tokString {
		return t, p.errorf(t, "expected %q, found %q", text, t.text)
	}

	return t, nil
}

// accept consumes the next token if it is text.
func (p *textParser) accept(text string) (bool, error) {
	t, err := p.peek()
	if err != nil {
		return false, err
	}

	if t.kind != tokString && t.text == text {
		p.peeked = false

		return true, nil
	}

	return false, nil
}

func (p *textParser) ident() (token, error) {
	t, err := p.next()
	if err != nil {
		return t, err
	}

	if t.kind != tokIdent {
		return t, p.errorf(t, "expected identifier, found %q", t.text)
	}

	return t, nil
}

func (p *textParser) integer() (int, error) {
	t, err := p.next()
	if err != nil {
		return 0, err
	}

	n, convErr := strconv.Atoi(t.text)
	if t.kind != tokNumber || convErr != nil {
		return 0, p.errorf(t, "expected integer, found %q", t.text)
	}

	return n, nil
}

// symbolName reads the name after '@': a quoted string or a run of symbol
// characters.
func (p *textParser) symbolName() (string, error) {
	if _, err := p.expect("@"); err != nil {
		return "", err
	}

	if p.off < len(p.src) && p.src[p.off] == '"' {
		t, err := p.next()
		if err != nil {
			return "", err
		}

		return strconv.Unquote(t.text)
	}

	t := token{line: p.line, col: p.col}
	start := p.off

	for p.off < len(p.src) && isSymbolChar(p.src[p.off]) {
		if p.src[p.off] == ',' && !p.insideAngles(start) {
			break
		}

		p.advance()
	}

	if p.off == start {
		return "", p.errorf(t, "expected symbol name")
	}

	return p.src[start:p.off], nil
}

// insideAngles reports whether an unclosed '<' precedes the cursor in the
// symbol starting at start.
func (p *textParser) insideAngles(start int) bool {
	depth := 0

	for _, c := range p.src[start:p.off] {
		switch c {
		case '<':
			depth++
		case '>':
			depth--
		}
	}

	return depth > 0
}

func (p *textParser) module() (*Module, error) {
	name := p.opts.Name

	if ok, err := p.accept("module"); err != nil {
		return nil, err
	} else if ok {
		t, err := p.ident()
		if err != nil {
			return nil, err
		}

		name = t.text
	}

	p.mod = NewModule(name)

	if err := p.declareStructs(); err != nil {
		return nil, err
	}

	for {
		t, err := p.peek()
		if err != nil {
			return nil, err
		}

		switch {
		case t.kind == tokEOF:
			return p.mod, nil
		case t.text == "type":
			err = p.structDef()
		case t.text == "global":
			err = p.global()
		case t.text == "func":
			err = p.function()
		case t.text == "init":
			p.next()

			var name string

			name, err = p.symbolName()
			p.mod.Init = append(p.mod.Init, name)
		default:
			err = p.errorf(t, "unexpected %q at module level", t.text)
		}

		if err != nil {
			return nil, err
		}
	}
}

// declareStructs pre-scans type lines so that struct names may be used
// before their definition.
func (p *textParser) declareStructs() error {
	for _, line := range strings.Split(p.src, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), "type ")
		if !ok {
			continue
		}

		name, _, ok := strings.Cut(rest, "=")
		if !ok {
			continue
		}

		name = strings.TrimSpace(name)
		if unq, err := strconv.Unquote(name); err == nil {
			name = unq
		}

		if _, dup := p.structs[name]; dup {
			return &SyntaxError{Line: 1, Col: 1, Msg: fmt.Sprintf("type %s defined twice", name)}
		}

		p.structs[name] = &types.StructType{Name: name, Module: p.opts.Name}
	}

	return nil
}

func (p *textParser) structDef() error {
	p.next()

	t, err := p.peek()
	if err != nil {
		return err
	}

	name := t.text
	if t.kind == tokString {
		name, _ = strconv.Unquote(t.text)
	} else if t.kind != tokIdent {
		return p.errorf(t, "expected type name")
	}

	p.next()

	st := p.structs[name]

	if _, err := p.expect("="); err != nil {
		return err
	}

	if _, err := p.expect("struct"); err != nil {
		return err
	}

	if _, err := p.expect("{"); err != nil {
		return err
	}

	for {
		if ok, err := p.accept("}"); err != nil || ok {
			break
		}

		if len(st.Fields) > 0 {
			if _, err := p.expect(","); err != nil {
				return err
			}
		}

		f, err := p.ident()
		if err != nil {
			return err
		}

		if _, err := p.expect(":"); err != nil {
			return err
		}

		ft, err := p.typ()
		if err != nil {
			return err
		}

		st.Fields = append(st.Fields, &types.Field{Name: f.text, Type: ft, Mutable: true})
	}

	p.mod.AddStruct(st)

	return nil
}

func (p *textParser) global() error {
	p.next()

	name, err := p.symbolName()
	if err != nil {
		return err
	}

	if _, err := p.expect(":"); err != nil {
		return err
	}

	t, err := p.typ()
	if err != nil {
		return err
	}

	if p.mod.Global(name) != nil {
		return &SyntaxError{Line: p.line, Col: p.col, Msg: fmt.Sprintf("global @%s defined twice", name)}
	}

	p.mod.Globals = append(p.mod.Globals, &Global{Name: name, Type: t})

	return nil
}

// typ parses `*T`, `(T, ...) -> T` or a type name.
func (p *textParser) typ() (types.Type, error) {
	t, err := p.next()
	if err != nil {
		return nil, err
	}

	switch {
	case t.text == "*":
		elem, err := p.typ()
		if err != nil {
			return nil, err
		}

		return &types.PointerType{Elem: elem}, nil
	case t.text == "(":
		var params []types.Type

		for {
			if ok, err := p.accept(")"); err != nil {
				return nil, err
			} else if ok {
				break
			}

			if len(params) > 0 {
				if _, err := p.expect(","); err != nil {
					return nil, err
				}
			}

			pt, err := p.typ()
			if err != nil {
				return nil, err
			}

			params = append(params, pt)
		}

		if _, err := p.expect("->"); err != nil {
			return nil, err
		}

		res, err := p.typ()
		if err != nil {
			return nil, err
		}

		return &types.FunctionType{Params: params, Result: res}, nil
	case t.kind == tokIdent:
		if b, ok := types.LookupBuiltin(t.text); ok {
			return b, nil
		}

		if st, ok := p.structs[t.text]; ok {
			return st, nil
		}

		if p.opts.Resolve != nil {
			rt, err := p.opts.Resolve(t.text)
			if err != nil {
				return nil, p.errorf(t, "type %s: %v", t.text, err)
			}

			return rt, nil
		}

		return nil, p.errorf(t, "unknown type %s", t.text)
	}

	return nil, p.errorf(t, "expected type, found %q", t.text)
}

func (p *textParser) valueRef() (*Value, error) {
	t, err := p.expect("%")
	if err != nil {
		return nil, err
	}

	id, err := p.integer()
	if err != nil {
		return nil, err
	}

	if v, ok := p.values[id]; ok {
		return v, nil
	}

	v := &Value{ID: id}
	p.values[id] = v
	p.forward[id] = t

	return v, nil
}

func (p *textParser) define(t token, id int, typ types.Type) (*Value, error) {
	if v, ok := p.values[id]; ok {
		if _, pending := p.forward[id]; !pending {
			return nil, p.errorf(t, "value %%%d defined twice", id)
		}

		delete(p.forward, id)
		v.Type = typ

		return v, nil
	}

	v := &Value{ID: id, Type: typ}
	p.values[id] = v

	return v, nil
}

func (p *textParser) valueList(open, close string) ([]*Value, error) {
	if _, err := p.expect(open); err != nil {
		return nil, err
	}

	var out []*Value

	for {
		if ok, err := p.accept(close); err != nil {
			return nil, err
		} else if ok {
			return out, nil
		}

		if len(out) > 0 {
			if _, err := p.expect(","); err != nil {
				return nil, err
			}
		}

		v, err := p.valueRef()
		if err != nil {
			return nil, err
		}

		out = append(out, v)
	}
}

func (p *textParser) function() error {
	p.next()

	name, err := p.symbolName()
	if err != nil {
		return err
	}

	f := &Function{Name: name}
	p.values = make(map[int]*Value)
	p.forward = make(map[int]token)

	if _, err := p.expect("("); err != nil {
		return err
	}

	for {
		if ok, err := p.accept(")"); err != nil {
			return err
		} else if ok {
			break
		}

		if len(f.Params) > 0 {
			if _, err := p.expect(","); err != nil {
				return err
			}
		}

		t, err := p.expect("%")
		if err != nil {
			return err
		}

		id, err := p.integer()
		if err != nil {
			return err
		}

		if _, err := p.expect(":"); err != nil {
			return err
		}

		pt, err := p.typ()
		if err != nil {
			return err
		}

		v, err := p.define(t, id, pt)
		if err != nil {
			return err
		}

		f.Params = append(f.Params, v)
	}

	if _, err := p.expect("->"); err != nil {
		return err
	}

	if f.Result, err = p.typ(); err != nil {
		return err
	}

	if ok, err := p.accept("{"); err != nil {
		return err
	} else if ok {
		if err := p.body(f); err != nil {
			return err
		}
	}

	if len(p.forward) > 0 {
		first := -1
		for id := range p.forward {
			if first < 0 || id < first {
				first = id
			}
		}

		return p.errorf(p.forward[first], "value %%%d used but never defined", first)
	}

	for id := range p.values {
		if id >= f.nextID {
			f.nextID = id + 1
		}
	}

	if err := p.mod.AddFunction(f); err != nil {
		return &SyntaxError{Line: p.line, Col: p.col, Msg: err.Error()}
	}

	return nil
}

func (p *textParser) body(f *Function) error {
	var bb *BasicBlock

	for {
		t, err := p.next()
		if err != nil {
			return err
		}

		switch {
		case t.kind == tokEOF:
			return p.errorf(t, "unterminated function @%s", f.Name)
		case t.text == "}":
			if len(f.Blocks) == 0 {
				return p.errorf(t, "function @%s has an empty body", f.Name)
			}

			return nil
		case t.kind == tokIdent && !isOpcode(t.text):
			if _, err := p.expect(":"); err != nil {
				return err
			}

			if f.Block(t.text) != nil {
				return p.errorf(t, "block %s defined twice", t.text)
			}

			bb = &BasicBlock{Name: t.text}
			f.Blocks = append(f.Blocks, bb)
		default:
			if bb == nil {
				return p.errorf(t, "instruction outside a block")
			}

			p.tok, p.peeked = t, true

			in, err := p.instr()
			if err != nil {
				return err
			}

			bb.Instrs = append(bb.Instrs, in)
		}
	}
}

var opcodes = map[string]bool{
	"const": true, "alloca": true, "load": true, "store": true, "global": true,
	"field": true, "extract": true, "struct": true, "convert": true,
	"intrinsic": true, "call": true, "closure": true, "callv": true,
	"br": true, "condbr": true, "ret": true, "unreachable": true,
}

func isOpcode(s string) bool { return opcodes[s] }

func (p *textParser) instr() (Instr, error) {
	t, err := p.peek()
	if err != nil {
		return nil, err
	}

	if t.text != "%" {
		return p.effect()
	}

	p.next()

	id, err := p.integer()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect("="); err != nil {
		return nil, err
	}

	op, err := p.ident()
	if err != nil {
		return nil, err
	}

	var (
		build   func(dst *Value) Instr
		literal token
	)

	switch op.text {
	case "const":
		if literal, err = p.next(); err != nil {
			return nil, err
		}
	case "alloca":
		build = func(dst *Value) Instr { return &Alloca{Dst: dst} }
	case "load":
		addr, err := p.valueRef()
		if err != nil {
			return nil, err
		}

		build = func(dst *Value) Instr { return &Load{Dst: dst, Addr: addr} }
	case "global":
		name, err := p.symbolName()
		if err != nil {
			return nil, err
		}

		build = func(dst *Value) Instr { return &GlobalAddr{Dst: dst, Global: name} }
	case "field", "extract":
		base, err := p.valueRef()
		if err != nil {
			return nil, err
		}

		if _, err := p.expect(","); err != nil {
			return nil, err
		}

		idx, err := p.integer()
		if err != nil {
			return nil, err
		}

		if op.text == "field" {
			build = func(dst *Value) Instr { return &FieldAddr{Dst: dst, Base: base, Index: idx} }
		} else {
			build = func(dst *Value) Instr { return &Extract{Dst: dst, Agg: base, Index: idx} }
		}
	case "struct":
		fields, err := p.valueList("(", ")")
		if err != nil {
			return nil, err
		}

		build = func(dst *Value) Instr { return &MakeStruct{Dst: dst, Fields: fields} }
	case "convert":
		v, err := p.valueRef()
		if err != nil {
			return nil, err
		}

		build = func(dst *Value) Instr { return &Convert{Dst: dst, Val: v} }
	case "intrinsic", "call", "closure", "callv":
		in, err := p.callLike(op.text)
		if err != nil {
			return nil, err
		}

		build = func(dst *Value) Instr { return withDst(in, dst) }
	default:
		return nil, p.errorf(op, "unknown value instruction %q", op.text)
	}

	if _, err := p.expect(":"); err != nil {
		return nil, err
	}

	typ, err := p.typ()
	if err != nil {
		return nil, err
	}

	dst, err := p.define(t, id, typ)
	if err != nil {
		return nil, err
	}

	if op.text == "const" {
		return p.constant(literal, dst)
	}

	return build(dst), nil
}

func (p *textParser) constant(lit token, dst *Value) (Instr, error) {
	c := &Const{Dst: dst}

	bt, _ := dst.Type.(*types.BasicType)
	if bt == nil {
		return nil, p.errorf(lit, "constant of non-basic type %s", dst.Type)
	}

	var err error

	switch bt.Kind {
	case types.KindInt:
		c.Int, err = strconv.ParseInt(lit.text, 10, 64)
	case types.KindFloat:
		c.Float, err = strconv.ParseFloat(lit.text, 64)
	case types.KindBool:
		c.Bool, err = strconv.ParseBool(lit.text)
	case types.KindString:
		if lit.kind != tokString {
			return nil, p.errorf(lit, "expected string literal")
		}

		c.Str, err = strconv.Unquote(lit.text)
	default:
		return nil, p.errorf(lit, "constant of type %s", bt)
	}

	if err != nil {
		return nil, p.errorf(lit, "bad %s constant %s", bt, lit.text)
	}

	return c, nil
}

// callLike parses the operand part of intrinsic, call, closure and callv.
func (p *textParser) callLike(op string) (Instr, error) {
	switch op {
	case "intrinsic":
		name, err := p.ident()
		if err != nil {
			return nil, err
		}

		args, err := p.valueList("(", ")")
		if err != nil {
			return nil, err
		}

		return &Intrinsic{Op: name.text, Args: args}, nil
	case "callv":
		callee, err := p.valueRef()
		if err != nil {
			return nil, err
		}

		args, err := p.valueList("(", ")")
		if err != nil {
			return nil, err
		}

		return &CallValue{Callee: callee, Args: args}, nil
	}

	name, err := p.symbolName()
	if err != nil {
		return nil, err
	}

	args, err := p.valueList("(", ")")
	if err != nil {
		return nil, err
	}

	if op == "closure" {
		return &MakeClosure{Func: name, Captures: args}, nil
	}

	return &Call{Callee: name, Args: args}, nil
}

func withDst(in Instr, dst *Value) Instr {
	switch x := in.(type) {
	case *Intrinsic:
		x.Dst = dst
	case *Call:
		x.Dst = dst
	case *MakeClosure:
		x.Dst = dst
	case *CallValue:
		x.Dst = dst
	}

	return in
}

// effect parses instructions without a result.
func (p *textParser) effect() (Instr, error) {
	op, err := p.ident()
	if err != nil {
		return nil, err
	}

	switch op.text {
	case "store":
		addr, err := p.valueRef()
		if err != nil {
			return nil, err
		}

		if _, err := p.expect(","); err != nil {
			return nil, err
		}

		val, err := p.valueRef()
		if err != nil {
			return nil, err
		}

		return &Store{Addr: addr, Val: val}, nil
	case "intrinsic", "call", "callv":
		return p.callLike(op.text)
	case "br":
		target, err := p.ident()
		if err != nil {
			return nil, err
		}

		return &Br{Target: target.text}, nil
	case "condbr":
		cond, err := p.valueRef()
		if err != nil {
			return nil, err
		}

		var labels [2]string

		for i := range labels {
			if _, err := p.expect(","); err != nil {
				return nil, err
			}

			l, err := p.ident()
			if err != nil {
				return nil, err
			}

			labels[i] = l.text
		}

		return &CondBr{Cond: cond, True: labels[0], False: labels[1]}, nil
	case "ret":
		if t, err := p.peek(); err != nil {
			return nil, err
		} else if t.text == "%" {
			v, err := p.valueRef()
			if err != nil {
				return nil, err
			}

			return &Ret{Val: v}, nil
		}

		return &Ret{}, nil
	case "unreachable":
		return &Unreachable{}, nil
	}

	return nil, p.errorf(op, "unknown instruction %q", op.text)
}
