package mir

import (
	"fmt"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/errors"
	"github.com/orizon-lang/ozc/internal/types"
)

type loopTargets struct {
	cont, exit string
}

// builder emits the body of one function. Mutable locals get an alloca
// slot in the entry block; parameters and captures are plain values.
type builder struct {
	l     *Lowerer
	fn    *Function
	subst types.Substitution
	root  string

	entry    *BasicBlock
	cur      *BasicBlock
	allocas  int
	blockSeq int
	closures *int

	values   map[ast.Decl]*Value
	slots    map[ast.Decl]*Value
	selfDecl *ast.Parameter
	loops    []loopTargets

	err error
}

func newBuilder(l *Lowerer, fn *Function, subst types.Substitution, root string) *builder {
	n := 0

	return &builder{
		l:        l,
		fn:       fn,
		subst:    subst,
		root:     root,
		closures: &n,
		values:   make(map[ast.Decl]*Value),
		slots:    make(map[ast.Decl]*Value),
	}
}

func (b *builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = errors.Invariant("MIR_LOWERING", "%s: %s", b.fn.Name, fmt.Sprintf(format, args...))
	}
}

func (b *builder) start() {
	b.entry = &BasicBlock{Name: "entry"}
	b.fn.Blocks = append(b.fn.Blocks, b.entry)
	b.cur = b.entry
}

func (b *builder) newBlock(prefix string) *BasicBlock {
	bb := &BasicBlock{Name: fmt.Sprintf("%s_%d", prefix, b.blockSeq)}
	b.blockSeq++
	b.fn.Blocks = append(b.fn.Blocks, bb)

	return bb
}

// emit appends in to the current block. Code following a terminator goes
// to a fresh block without predecessors.
func (b *builder) emit(in Instr) {
	if b.cur.Terminator() != nil {
		b.cur = b.newBlock("dead")
	}

	b.cur.Instrs = append(b.cur.Instrs, in)
}

// jump branches to target unless the current block already ended.
func (b *builder) jump(target *BasicBlock) {
	if b.cur.Terminator() == nil {
		b.emit(&Br{Target: target.Name})
	}
}

// finish terminates the last block: Void functions return, others cannot
// reach their end.
func (b *builder) finish() {
	if b.cur.Terminator() != nil {
		return
	}

	if b.fn.Result == types.Void {
		b.emit(&Ret{})
	} else {
		b.emit(&Unreachable{})
	}
}

func (b *builder) typeOf(n ast.Node) types.Type {
	t := n.Base().Type()
	if t == nil {
		b.fail("%s has no type", n)

		return types.ErrorType
	}

	return types.Substitute(t, b.subst)
}

func (b *builder) compose(s types.Substitution) types.Substitution {
	if len(s) == 0 {
		return nil
	}

	out := make(types.Substitution, len(s))
	for k, v := range s {
		out[k] = types.Substitute(v, b.subst)
	}

	return out
}

func (b *builder) alloca(t types.Type) *Value {
	slot := b.fn.NewValue(&types.PointerType{Elem: t})
	in := &Alloca{Dst: slot}

	instrs := b.entry.Instrs
	instrs = append(instrs, nil)
	copy(instrs[b.allocas+1:], instrs[b.allocas:])
	instrs[b.allocas] = in
	b.entry.Instrs = instrs
	b.allocas++

	return slot
}

func (b *builder) result(t types.Type) *Value {
	if t == types.Void {
		return nil
	}

	return b.fn.NewValue(t)
}

// coerce applies the implicit Int to Float conversion.
func (b *builder) coerce(v *Value, want types.Type) *Value {
	if v == nil || v.Type != types.Int || want != types.Float {
		return v
	}

	dst := b.fn.NewValue(types.Float)
	b.emit(&Convert{Dst: dst, Val: v})

	return dst
}

func (b *builder) constant(c *Const) *Value {
	b.emit(c)

	return c.Dst
}

func (b *builder) zero(t types.Type) *Value {
	return b.constant(&Const{Dst: b.fn.NewValue(t)})
}

func (b *builder) block(bs *ast.BlockStatement) {
	for _, s := range bs.Statements {
		b.stmt(s)
	}
}

func (b *builder) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.VariableDeclaration:
		t := b.typeOf(s)
		slot := b.alloca(t)
		b.slots[s] = slot

		if s.Value != nil {
			v := b.coerce(b.expr(s.Value), t)
			b.emit(&Store{Addr: slot, Val: v})
		}
	case *ast.ExpressionStatement:
		b.expr(s.Expression)
	case *ast.AssignStatement:
		v := b.expr(s.Value)
		addr := b.address(s.Target)

		if pt, ok := addr.Type.(*types.PointerType); ok {
			v = b.coerce(v, pt.Elem)
		}

		b.emit(&Store{Addr: addr, Val: v})
	case *ast.BlockStatement:
		b.block(s)
	case *ast.IfStatement:
		b.ifStmt(s)
	case *ast.WhileStatement:
		b.whileStmt(s)
	case *ast.ReturnStatement:
		if s.Value == nil {
			b.emit(&Ret{})

			return
		}

		v := b.coerce(b.expr(s.Value), b.fn.Result)
		b.emit(&Ret{Val: v})
	case *ast.BreakStatement, *ast.ContinueStatement:
		if len(b.loops) == 0 {
			b.fail("%s outside of a loop", s)

			return
		}

		loop := b.loops[len(b.loops)-1]
		if _, ok := s.(*ast.BreakStatement); ok {
			b.emit(&Br{Target: loop.exit})
		} else {
			b.emit(&Br{Target: loop.cont})
		}
	default:
		b.fail("cannot lower statement %s", s)
	}
}

func (b *builder) ifStmt(s *ast.IfStatement) {
	cond := b.expr(s.Condition)

	then := b.newBlock("if_then")

	var els *BasicBlock
	if s.Else != nil {
		els = b.newBlock("if_else")
	}

	merge := b.newBlock("if_merge")

	target := merge
	if els != nil {
		target = els
	}

	b.emit(&CondBr{Cond: cond, True: then.Name, False: target.Name})

	b.cur = then
	b.block(s.Then)
	b.jump(merge)

	if els != nil {
		b.cur = els
		b.stmt(s.Else)
		b.jump(merge)
	}

	b.cur = merge
}

func (b *builder) whileStmt(s *ast.WhileStatement) {
	cond := b.newBlock("while_cond")
	body := b.newBlock("while_body")
	exit := b.newBlock("while_exit")

	b.jump(cond)
	b.cur = cond

	c := b.expr(s.Condition)
	b.emit(&CondBr{Cond: c, True: body.Name, False: exit.Name})

	b.loops = append(b.loops, loopTargets{cont: cond.Name, exit: exit.Name})
	b.cur = body
	b.block(s.Body)
	b.jump(cond)
	b.loops = b.loops[:len(b.loops)-1]

	b.cur = exit
}

// address returns a pointer to the storage an assignment target names.
func (b *builder) address(e ast.Expr) *Value {
	switch e := ast.Unfold(e).(type) {
	case *ast.Identifier:
		if vd, ok := e.Ref.(*ast.VariableDeclaration); ok {
			if slot, ok := b.slots[vd]; ok {
				return slot
			}

			if vd.IsGlobal {
				return b.globalAddr(vd)
			}
		}

		b.fail("%s is not assignable", e.Name)
	case *ast.MemberExpression:
		base := b.address(e.Object)

		pt, _ := base.Type.(*types.PointerType)
		if pt == nil {
			break
		}

		st, _ := pt.Elem.(*types.StructType)
		if st == nil {
			b.fail("member %s of non-struct %s", e.Member, pt.Elem)

			break
		}

		idx, f := st.Field(e.Member)
		if f == nil {
			b.fail("%s has no field %s", st, e.Member)

			break
		}

		dst := b.fn.NewValue(&types.PointerType{Elem: f.Type})
		b.emit(&FieldAddr{Dst: dst, Base: base, Index: idx})

		return dst
	default:
		b.fail("%s is not assignable", e)
	}

	return b.alloca(types.ErrorType)
}

func (b *builder) globalAddr(vd *ast.VariableDeclaration) *Value {
	dst := b.fn.NewValue(&types.PointerType{Elem: vd.Type()})
	b.emit(&GlobalAddr{Dst: dst, Global: vd.Name})

	return dst
}

func (b *builder) load(addr *Value) *Value {
	pt, _ := addr.Type.(*types.PointerType)
	if pt == nil {
		b.fail("load through non-pointer %s", addr)

		return addr
	}

	dst := b.fn.NewValue(pt.Elem)
	b.emit(&Load{Dst: dst, Addr: addr})

	return dst
}
