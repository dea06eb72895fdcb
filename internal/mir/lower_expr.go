package mir

import (
	"fmt"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/types"
)

// expr lowers e and returns its value, or nil when e has type Void.
func (b *builder) expr(e ast.Expr) *Value {
	switch e := e.(type) {
	case *ast.IntegerLiteral:
		if b.typeOf(e) == types.Float {
			return b.constant(&Const{Dst: b.fn.NewValue(types.Float), Float: float64(e.Value)})
		}

		return b.constant(&Const{Dst: b.fn.NewValue(types.Int), Int: e.Value})
	case *ast.FloatLiteral:
		return b.constant(&Const{Dst: b.fn.NewValue(types.Float), Float: e.Value})
	case *ast.BoolLiteral:
		return b.constant(&Const{Dst: b.fn.NewValue(types.Bool), Bool: e.Value})
	case *ast.StringLiteral:
		return b.constant(&Const{Dst: b.fn.NewValue(types.String), Str: e.Value})
	case *ast.InterpolatedString:
		return b.interpolate(e)
	case *ast.SequenceExpression:
		if e.Folded == nil {
			b.fail("unfolded operator sequence %s", e)

			return b.zero(types.ErrorType)
		}

		return b.expr(e.Folded)
	case *ast.BinaryExpression:
		return b.apply(e.Operator, []ast.Expr{e.Left, e.Right})
	case *ast.PrefixExpression:
		return b.apply(e.Operator, []ast.Expr{e.Operand})
	case *ast.CallExpression:
		return b.call(e)
	case *ast.Identifier:
		return b.ident(e)
	case *ast.MemberExpression:
		return b.member(e)
	case *ast.ClosureExpression:
		return b.closure(e)
	}

	b.fail("cannot lower expression %s", e)

	return b.zero(types.ErrorType)
}

func (b *builder) interpolate(e *ast.InterpolatedString) *Value {
	var acc *Value

	for _, part := range e.Parts {
		v := b.expr(part)
		if v == nil {
			b.fail("Void segment in %s", e)

			continue
		}

		if v.Type != types.String {
			s := b.fn.NewValue(types.String)
			b.emit(&Intrinsic{Dst: s, Op: "str", Args: []*Value{v}})
			v = s
		}

		if acc == nil {
			acc = v

			continue
		}

		joined := b.fn.NewValue(types.String)
		b.emit(&Intrinsic{Dst: joined, Op: "concat", Args: []*Value{acc, v}})
		acc = joined
	}

	if acc == nil {
		return b.constant(&Const{Dst: b.fn.NewValue(types.String)})
	}

	return acc
}

func (b *builder) args(exprs []ast.Expr, params []types.Type) []*Value {
	out := make([]*Value, 0, len(exprs))

	for i, a := range exprs {
		v := b.expr(a)
		if i < len(params) {
			v = b.coerce(v, params[i])
		}

		out = append(out, v)
	}

	return out
}

func (b *builder) signature(d ast.Decl, subst types.Substitution) *types.FunctionType {
	var t types.Type

	switch d := d.(type) {
	case *ast.BuiltinDeclaration:
		t = d.Func
	case *ast.FunctionDeclaration:
		t = d.Type()
	}

	ft, ok := types.Substitute(t, subst).(*types.FunctionType)
	if !ok || t == nil {
		b.fail("%s has no function type", ast.DeclName(d))

		return &types.FunctionType{Result: types.ErrorType}
	}

	return types.Substitute(ft, b.subst).(*types.FunctionType)
}

// apply calls the declaration op refers to, as operators and direct calls
// do. Builtins with an intrinsic become intrinsic operations.
func (b *builder) apply(op *ast.Identifier, args []ast.Expr) *Value {
	subst := b.compose(op.Substitution)

	switch d := op.Ref.(type) {
	case *ast.BuiltinDeclaration:
		ft := b.signature(d, subst)
		vals := b.args(args, ft.Params)

		if d.Intrinsic == "" {
			return b.callDirect(d.Name, vals, ft.Result)
		}

		dst := b.result(ft.Result)
		b.emit(&Intrinsic{Dst: dst, Op: d.Intrinsic, Args: vals})

		return dst
	case *ast.FunctionDeclaration:
		ft := b.signature(d, subst)

		var vals []*Value
		if d.Owner != nil {
			vals = append(vals, b.self())
		}

		vals = append(vals, b.args(args, ft.Params)...)

		return b.callDirect(b.l.functionRef(d, subst), vals, ft.Result)
	}

	return b.callValue(b.ident(op), args)
}

func (b *builder) callDirect(name string, args []*Value, result types.Type) *Value {
	dst := b.result(result)
	b.emit(&Call{Dst: dst, Callee: name, Args: args})

	return dst
}

func (b *builder) callValue(callee *Value, args []ast.Expr) *Value {
	ft, ok := callee.Type.(*types.FunctionType)
	if !ok {
		b.fail("call of non-function value %s of type %s", callee, callee.Type)

		return b.zero(types.ErrorType)
	}

	vals := b.args(args, ft.Params)
	dst := b.result(ft.Result)
	b.emit(&CallValue{Dst: dst, Callee: callee, Args: vals})

	return dst
}

func (b *builder) call(e *ast.CallExpression) *Value {
	switch callee := ast.Unfold(e.Callee).(type) {
	case *ast.Identifier:
		switch d := callee.Ref.(type) {
		case *ast.StructDeclaration:
			return b.construct(d, e.Arguments)
		case *ast.FunctionDeclaration, *ast.BuiltinDeclaration:
			return b.apply(callee, e.Arguments)
		}
	case *ast.MemberExpression:
		if m, ok := callee.Ref.(*ast.FunctionDeclaration); ok {
			self := b.expr(callee.Object)
			subst := b.compose(callee.Substitution)

			if m.Protocol != nil {
				m = b.witness(m, self)
			}
			ft := b.signature(m, subst)
			vals := append([]*Value{self}, b.args(e.Arguments, ft.Params)...)

			return b.callDirect(b.l.functionRef(m, subst), vals, ft.Result)
		}
	}

	return b.callValue(b.expr(e.Callee), e.Arguments)
}

// witness finds the method of the receiver's struct satisfying the
// protocol requirement req.
func (b *builder) witness(req *ast.FunctionDeclaration, self *Value) *ast.FunctionDeclaration {
	if st, ok := self.Type.(*types.StructType); ok {
		if sd, ok := st.Node.(*ast.StructDeclaration); ok {
			for _, m := range sd.Methods {
				if m.Name == req.Name {
					return m
				}
			}
		}
	}

	b.fail("%s does not implement %s.%s", self.Type, req.Protocol.Name, req.Name)

	return req
}

func (b *builder) construct(sd *ast.StructDeclaration, args []ast.Expr) *Value {
	st, ok := sd.Type().(*types.StructType)
	if !ok {
		b.fail("struct %s has no type", sd.Name)

		return b.zero(types.ErrorType)
	}

	params := make([]types.Type, len(st.Fields))
	for i, f := range st.Fields {
		params[i] = f.Type
	}

	return b.callDirect(b.l.structInit(sd, st), b.args(args, params), st)
}

// self returns the receiver of the method being lowered, or the capture
// standing for it inside a closure.
func (b *builder) self() *Value {
	if b.selfDecl != nil {
		if v, ok := b.values[b.selfDecl]; ok {
			return v
		}
	}

	b.fail("implicit self outside of a method")

	return b.zero(types.ErrorType)
}

func (b *builder) ident(id *ast.Identifier) *Value {
	switch d := id.Ref.(type) {
	case *ast.Parameter:
		return b.local(d)
	case *ast.VariableDeclaration:
		switch {
		case d.Owner != nil:
			return b.field(b.self(), d.Name)
		case d.IsGlobal:
			if _, ok := b.slots[d]; !ok {
				return b.load(b.globalAddr(d))
			}
		}

		return b.local(d)
	case *ast.FunctionDeclaration:
		if d.Owner != nil {
			b.fail("method %s used as a value", d.QualifiedName())

			return b.zero(types.ErrorType)
		}

		name := b.l.functionRef(d, b.compose(id.Substitution))

		return b.makeClosure(name, b.typeOf(id), nil)
	case *ast.BuiltinDeclaration:
		if d.Kind == ast.BuiltinFunction {
			name := b.l.builtinWrapper(d, b.compose(id.Substitution))

			return b.makeClosure(name, b.typeOf(id), nil)
		}
	}

	b.fail("%s does not name a value", id.Name)

	return b.zero(types.ErrorType)
}

// local reads a parameter, capture or local variable.
func (b *builder) local(d ast.Decl) *Value {
	if v, ok := b.values[d]; ok {
		return v
	}

	if slot, ok := b.slots[d]; ok {
		return b.load(slot)
	}

	b.fail("%s is not visible in %s", ast.DeclName(d), b.fn.Name)

	return b.zero(types.ErrorType)
}

func (b *builder) member(e *ast.MemberExpression) *Value {
	return b.field(b.expr(e.Object), e.Member)
}

func (b *builder) field(obj *Value, name string) *Value {
	st, _ := obj.Type.(*types.StructType)
	if st == nil {
		b.fail("member %s of non-struct %s", name, obj.Type)

		return b.zero(types.ErrorType)
	}

	idx, f := st.Field(name)
	if f == nil {
		b.fail("%s has no field %s", st, name)

		return b.zero(types.ErrorType)
	}

	dst := b.fn.NewValue(f.Type)
	b.emit(&Extract{Dst: dst, Agg: obj, Index: idx})

	return dst
}

func (b *builder) makeClosure(name string, t types.Type, captures []*Value) *Value {
	dst := b.fn.NewValue(t)
	b.emit(&MakeClosure{Dst: dst, Func: name, Captures: captures})

	return dst
}

// closure emits the body of c as its own function whose leading
// parameters receive the captured values, then builds the closure value.
func (b *builder) closure(c *ast.ClosureExpression) *Value {
	ft, ok := b.typeOf(c).(*types.FunctionType)
	if !ok {
		b.fail("closure without function type")

		return b.zero(types.ErrorType)
	}

	name := fmt.Sprintf("%s.closure.%d", b.root, *b.closures)
	*b.closures++

	fn := &Function{Name: name, Result: ft.Result}
	cb := newBuilder(b.l, fn, b.subst, b.root)
	cb.closures = b.closures
	cb.selfDecl = b.selfDecl

	captured := make([]*Value, len(c.Captures))
	params := make([]*Value, len(c.Captures))

	for i, d := range c.Captures {
		captured[i] = b.local(d)
		params[i] = fn.NewValue(captured[i].Type)
	}

	fn.Params = append(fn.Params, params...)

	for i, p := range c.Parameters {
		v := fn.NewValue(ft.Params[i])
		fn.Params = append(fn.Params, v)
		cb.values[p] = v
	}

	cb.start()

	for i, d := range c.Captures {
		if vd, ok := d.(*ast.VariableDeclaration); ok && vd.Kind == ast.VarKindVar {
			slot := cb.alloca(params[i].Type)
			cb.emit(&Store{Addr: slot, Val: params[i]})
			cb.slots[d] = slot

			continue
		}

		cb.values[d] = params[i]
	}

	if es := singleExpression(c); es != nil {
		v := cb.expr(es.Expression)
		if ft.Result == types.Void {
			v = nil
		}

		cb.emit(&Ret{Val: cb.coerce(v, ft.Result)})
	} else {
		cb.block(c.Body)
		cb.finish()
	}

	if cb.err != nil {
		b.err = cb.err

		return b.zero(types.ErrorType)
	}

	if err := b.l.add(fn); err != nil && b.err == nil {
		b.err = err
	}

	return b.makeClosure(name, ft, captured)
}

func singleExpression(c *ast.ClosureExpression) *ast.ExpressionStatement {
	if !c.SingleExpression || len(c.Body.Statements) != 1 {
		return nil
	}

	es, _ := c.Body.Statements[0].(*ast.ExpressionStatement)

	return es
}
