package typechecker

import (
	stderrors "errors"
	"fmt"

	"github.com/orizon-lang/ozc/internal/errors"
	"github.com/orizon-lang/ozc/internal/mir"
	"github.com/orizon-lang/ozc/internal/session"
	"github.com/orizon-lang/ozc/internal/types"
)

// CheckModule re-checks the typing of lowered code: every call, store,
// load, return and intrinsic must agree with the types of its operands.
// All mismatches are returned joined; nil means the module is well typed.
func CheckModule(sess *session.Session, mod *mir.Module) error {
	mc := &moduleChecker{mod: mod}

	for _, fn := range mod.Functions {
		for _, bb := range fn.Blocks {
			for _, in := range bb.Instrs {
				mc.instr(fn, in)
			}
		}
	}

	for _, name := range mod.Init {
		if f := mod.Function(name); f == nil || len(f.Params) != 0 {
			mc.fail(nil, nil, "initializer @%s is missing or takes parameters", name)
		}
	}

	sess.Logger.Debug("check module %s: %d functions, %d mismatches", mod.Name, len(mod.Functions), len(mc.errs))

	return stderrors.Join(mc.errs...)
}

type moduleChecker struct {
	mod  *mir.Module
	errs []error
}

func (mc *moduleChecker) fail(fn *mir.Function, in mir.Instr, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if fn != nil {
		msg = fmt.Sprintf("@%s: %s: %s", fn.Name, in, msg)
	}

	mc.errs = append(mc.errs, errors.Invariant("MIR_TYPE_MISMATCH", "%s", msg))
}

// expect reports when a value's type is not want.
func (mc *moduleChecker) expect(fn *mir.Function, in mir.Instr, what string, v *mir.Value, want types.Type) {
	if v == nil {
		if want != types.Void {
			mc.fail(fn, in, "%s is missing, want %s", what, want)
		}

		return
	}

	if !types.Identical(v.Type, want) {
		mc.fail(fn, in, "%s has type %s, want %s", what, v.Type, want)
	}
}

func (mc *moduleChecker) args(fn *mir.Function, in mir.Instr, args []*mir.Value, params []types.Type) {
	if len(args) != len(params) {
		mc.fail(fn, in, "%d arguments for %d parameters", len(args), len(params))

		return
	}

	for i, a := range args {
		mc.expect(fn, in, fmt.Sprintf("argument %d", i+1), a, params[i])
	}
}

func (mc *moduleChecker) result(fn *mir.Function, in mir.Instr, dst *mir.Value, want types.Type) {
	if want == types.Void {
		if dst != nil {
			mc.fail(fn, in, "result of a Void operation is used")
		}

		return
	}

	mc.expect(fn, in, "result", dst, want)
}

func (mc *moduleChecker) instr(fn *mir.Function, in mir.Instr) {
	switch in := in.(type) {
	case *mir.Const:
		if _, ok := in.Dst.Type.(*types.BasicType); !ok {
			mc.fail(fn, in, "constant of non-basic type %s", in.Dst.Type)
		}
	case *mir.Alloca:
		if _, ok := in.Dst.Type.(*types.PointerType); !ok {
			mc.fail(fn, in, "alloca yields non-pointer %s", in.Dst.Type)
		}
	case *mir.Load:
		elem := mc.pointee(fn, in, in.Addr)
		if elem != nil {
			mc.expect(fn, in, "result", in.Dst, elem)
		}
	case *mir.Store:
		elem := mc.pointee(fn, in, in.Addr)
		if elem != nil {
			mc.expect(fn, in, "stored value", in.Val, elem)
		}
	case *mir.GlobalAddr:
		g := mc.mod.Global(in.Global)
		if g == nil {
			mc.fail(fn, in, "undefined global @%s", in.Global)

			return
		}

		mc.expect(fn, in, "result", in.Dst, &types.PointerType{Elem: g.Type})
	case *mir.FieldAddr:
		elem := mc.pointee(fn, in, in.Base)
		if f := mc.field(fn, in, elem, in.Index); f != nil {
			mc.expect(fn, in, "result", in.Dst, &types.PointerType{Elem: f.Type})
		}
	case *mir.Extract:
		if f := mc.field(fn, in, in.Agg.Type, in.Index); f != nil {
			mc.expect(fn, in, "result", in.Dst, f.Type)
		}
	case *mir.MakeStruct:
		st, ok := in.Dst.Type.(*types.StructType)
		if !ok {
			mc.fail(fn, in, "struct of non-struct type %s", in.Dst.Type)

			return
		}

		params := make([]types.Type, len(st.Fields))
		for i, f := range st.Fields {
			params[i] = f.Type
		}

		mc.args(fn, in, in.Fields, params)
	case *mir.Convert:
		if in.Val.Type != types.Int || in.Dst.Type != types.Float {
			mc.fail(fn, in, "unsupported conversion from %s to %s", in.Val.Type, in.Dst.Type)
		}
	case *mir.Intrinsic:
		mc.intrinsic(fn, in)
	case *mir.Call:
		callee := mc.mod.Function(in.Callee)
		if callee == nil {
			mc.fail(fn, in, "call of undefined function @%s", in.Callee)

			return
		}

		ft := callee.Type()
		mc.args(fn, in, in.Args, ft.Params)
		mc.result(fn, in, in.Dst, ft.Result)
	case *mir.MakeClosure:
		mc.closure(fn, in)
	case *mir.CallValue:
		ft, ok := in.Callee.Type.(*types.FunctionType)
		if !ok {
			mc.fail(fn, in, "call of non-function %s", in.Callee.Type)

			return
		}

		mc.args(fn, in, in.Args, ft.Params)
		mc.result(fn, in, in.Dst, ft.Result)
	case *mir.CondBr:
		mc.expect(fn, in, "condition", in.Cond, types.Bool)
	case *mir.Ret:
		if fn.Result == types.Void {
			if in.Val != nil {
				mc.fail(fn, in, "Void function returns a value")
			}

			return
		}

		mc.expect(fn, in, "returned value", in.Val, fn.Result)
	}
}

func (mc *moduleChecker) pointee(fn *mir.Function, in mir.Instr, addr *mir.Value) types.Type {
	pt, ok := addr.Type.(*types.PointerType)
	if !ok {
		mc.fail(fn, in, "address %s has non-pointer type %s", addr, addr.Type)

		return nil
	}

	return pt.Elem
}

func (mc *moduleChecker) field(fn *mir.Function, in mir.Instr, t types.Type, index int) *types.Field {
	if t == nil {
		return nil
	}

	st, ok := t.(*types.StructType)
	if !ok {
		mc.fail(fn, in, "field of non-struct type %s", t)

		return nil
	}

	if index < 0 || index >= len(st.Fields) {
		mc.fail(fn, in, "%s has no field %d", st, index)

		return nil
	}

	return st.Fields[index]
}

// closure checks that the captures fill the leading parameters of the
// function and the remaining ones form the closure type.
func (mc *moduleChecker) closure(fn *mir.Function, in *mir.MakeClosure) {
	target := mc.mod.Function(in.Func)
	if target == nil {
		mc.fail(fn, in, "closure of undefined function @%s", in.Func)

		return
	}

	ft := target.Type()
	if len(in.Captures) > len(ft.Params) {
		mc.fail(fn, in, "%d captures for %d parameters", len(in.Captures), len(ft.Params))

		return
	}

	mc.args(fn, in, in.Captures, ft.Params[:len(in.Captures)])

	want := &types.FunctionType{Params: ft.Params[len(in.Captures):], Result: ft.Result}
	mc.expect(fn, in, "result", in.Dst, want)
}

type intrinsicSig struct {
	arity  int
	accept func(types.Type) bool
	// result is nil when the operation yields its operand type
	result types.Type
}

func isNumeric(t types.Type) bool { return t == types.Int || t == types.Float }

func isEquatable(t types.Type) bool { return types.Conforms(t, types.Equatable) }

func isBool(t types.Type) bool { return t == types.Bool }

func isString(t types.Type) bool { return t == types.String }

func isBasic(t types.Type) bool { return interpolable(t) }

func isValue(t types.Type) bool { return t != types.Void && !types.IsError(t) }

var intrinsics = map[string]intrinsicSig{
	"add":    {2, isNumeric, nil},
	"sub":    {2, isNumeric, nil},
	"mul":    {2, isNumeric, nil},
	"div":    {2, isNumeric, nil},
	"rem":    {2, isNumeric, nil},
	"neg":    {1, isNumeric, nil},
	"eq":     {2, isEquatable, types.Bool},
	"ne":     {2, isEquatable, types.Bool},
	"lt":     {2, isNumeric, types.Bool},
	"le":     {2, isNumeric, types.Bool},
	"gt":     {2, isNumeric, types.Bool},
	"ge":     {2, isNumeric, types.Bool},
	"and":    {2, isBool, nil},
	"or":     {2, isBool, nil},
	"not":    {1, isBool, nil},
	"concat": {2, isString, nil},
	"str":    {1, isBasic, types.String},
	"print":  {1, isString, types.Void},
	"log":    {1, isValue, nil},
}

func (mc *moduleChecker) intrinsic(fn *mir.Function, in *mir.Intrinsic) {
	sig, ok := intrinsics[in.Op]
	if !ok {
		mc.fail(fn, in, "unknown intrinsic %s", in.Op)

		return
	}

	if len(in.Args) != sig.arity {
		mc.fail(fn, in, "%s takes %d operands, got %d", in.Op, sig.arity, len(in.Args))

		return
	}

	operand := in.Args[0].Type
	for i, a := range in.Args {
		if !sig.accept(a.Type) {
			mc.fail(fn, in, "operand %d of %s has unsupported type %s", i+1, in.Op, a.Type)

			return
		}

		if !types.Identical(a.Type, operand) {
			mc.fail(fn, in, "operands of %s differ: %s and %s", in.Op, operand, a.Type)

			return
		}
	}

	want := sig.result
	if want == nil {
		want = operand
	}

	mc.result(fn, in, in.Dst, want)
}
