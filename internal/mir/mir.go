// Package mir defines the typed mid-level IR produced by lowering.
// Functions are lists of basic blocks in SSA form: every value has exactly
// one producer and a type, and every block ends with one terminator.
// Mutable locals live in alloca slots accessed through load and store.
package mir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/orizon-lang/ozc/internal/types"
)

// Module is a compilation unit of MIR.
type Module struct {
	Name      string
	Structs   []*types.StructType
	Globals   []*Global
	Functions []*Function
	// Init lists the functions holding top-level code, in execution order.
	Init []string

	index map[string]*Function
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name, index: make(map[string]*Function)}
}

// Function returns the named function or nil.
func (m *Module) Function(name string) *Function {
	if m.index == nil {
		m.reindex()
	}

	return m.index[name]
}

func (m *Module) reindex() {
	m.index = make(map[string]*Function, len(m.Functions))
	for _, f := range m.Functions {
		m.index[f.Name] = f
	}
}

// AddFunction appends f. A function name is defined at most once; an
// external declaration is replaced by a later definition.
func (m *Module) AddFunction(f *Function) error {
	if have := m.Function(f.Name); have != nil {
		if !have.External() || f.External() {
			return fmt.Errorf("function @%s defined twice", f.Name)
		}

		for i, g := range m.Functions {
			if g == have {
				m.Functions[i] = f
			}
		}

		m.index[f.Name] = f

		return nil
	}

	m.Functions = append(m.Functions, f)
	m.index[f.Name] = f

	return nil
}

// insertFunction adds f as AddFunction does, but places a new function at
// index at. It reports whether f took a new slot.
func (m *Module) insertFunction(at int, f *Function) (bool, error) {
	n := len(m.Functions)

	if err := m.AddFunction(f); err != nil {
		return false, err
	}

	if len(m.Functions) == n {
		return false, nil
	}

	copy(m.Functions[at+1:], m.Functions[at:n])
	m.Functions[at] = f

	return true, nil
}

// Global returns the named global or nil.
func (m *Module) Global(name string) *Global {
	for _, g := range m.Globals {
		if g.Name == name {
			return g
		}
	}

	return nil
}

// AddStruct records a struct type used by the module once.
func (m *Module) AddStruct(s *types.StructType) {
	for _, have := range m.Structs {
		if have == s {
			return
		}
	}

	m.Structs = append(m.Structs, s)
}

// Merge adds the contents of other to m. Specializations and external
// declarations present in both are kept once; two different definitions
// of one function are an error.
func (m *Module) Merge(other *Module) error {
	for _, s := range other.Structs {
		m.AddStruct(s)
	}

	for _, g := range other.Globals {
		if have := m.Global(g.Name); have != nil {
			if !types.Identical(have.Type, g.Type) {
				return fmt.Errorf("global @%s declared as %s and %s", g.Name, have.Type, g.Type)
			}

			continue
		}

		m.Globals = append(m.Globals, g)
	}

	for _, f := range other.Functions {
		have := m.Function(f.Name)

		switch {
		case have == nil || have.External() && !f.External():
			if err := m.AddFunction(f); err != nil {
				return err
			}
		case f.External() || have.String() == f.String():
		default:
			return fmt.Errorf("function @%s defined differently by two units", f.Name)
		}
	}

	m.Init = append(m.Init, other.Init...)

	return nil
}

// Global is a module-level storage slot.
type Global struct {
	Name string
	Type types.Type
}

// Function is a collection of basic blocks. A function without blocks is
// an external declaration.
type Function struct {
	Name   string
	Params []*Value
	Result types.Type
	Blocks []*BasicBlock

	nextID int
}

// External reports whether f is only declared.
func (f *Function) External() bool { return len(f.Blocks) == 0 }

// Type returns the function's signature.
func (f *Function) Type() *types.FunctionType {
	params := make([]types.Type, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Type
	}

	return &types.FunctionType{Params: params, Result: f.Result}
}

// NewValue allocates a fresh value numbered after every existing one.
func (f *Function) NewValue(t types.Type) *Value {
	v := &Value{ID: f.nextID, Type: t}
	f.nextID++

	return v
}

// Block returns the named block or nil.
func (f *Function) Block(name string) *BasicBlock {
	for _, b := range f.Blocks {
		if b.Name == name {
			return b
		}
	}

	return nil
}

// BasicBlock is a sequence of instructions ending with a terminator.
type BasicBlock struct {
	Name   string
	Instrs []Instr
}

// Terminator returns the last instruction if it is a terminator.
func (bb *BasicBlock) Terminator() Instr {
	if len(bb.Instrs) == 0 {
		return nil
	}

	if last := bb.Instrs[len(bb.Instrs)-1]; IsTerminator(last) {
		return last
	}

	return nil
}

// Value is an SSA value produced by a parameter or an instruction.
type Value struct {
	ID   int
	Type types.Type
}

func (v *Value) String() string { return "%" + strconv.Itoa(v.ID) }

// Instr is implemented by all MIR instructions.
type Instr interface {
	// Result returns the produced value, or nil.
	Result() *Value
	// Operands returns the values read by the instruction.
	Operands() []*Value
	String() string
	isInstr()
}

// Const produces a constant of a basic type.
type Const struct {
	Dst   *Value
	Int   int64
	Float float64
	Bool  bool
	Str   string
}

// Alloca reserves a local slot; Dst is a pointer to it.
type Alloca struct {
	Dst *Value
}

// Load reads the slot Addr points to.
type Load struct {
	Dst  *Value
	Addr *Value
}

// Store writes Val into the slot Addr points to.
type Store struct {
	Addr *Value
	Val  *Value
}

// GlobalAddr produces a pointer to a module global.
type GlobalAddr struct {
	Dst    *Value
	Global string
}

// FieldAddr produces a pointer to field Index of the struct Base points to.
type FieldAddr struct {
	Dst   *Value
	Base  *Value
	Index int
}

// Extract reads field Index of a struct value.
type Extract struct {
	Dst   *Value
	Agg   *Value
	Index int
}

// MakeStruct builds a struct value from its fields in order.
type MakeStruct struct {
	Dst    *Value
	Fields []*Value
}

// Convert widens an Int to a Float.
type Convert struct {
	Dst *Value
	Val *Value
}

// Intrinsic applies a builtin operation such as add or print. Dst is nil
// for operations returning Void.
type Intrinsic struct {
	Dst  *Value
	Op   string
	Args []*Value
}

// Call calls a module function by name. Dst is nil for Void results.
type Call struct {
	Dst    *Value
	Callee string
	Args   []*Value
}

// MakeClosure builds a function value from a module function whose
// leading parameters receive Captures.
type MakeClosure struct {
	Dst      *Value
	Func     string
	Captures []*Value
}

// CallValue calls a function value.
type CallValue struct {
	Dst    *Value
	Callee *Value
	Args   []*Value
}

// Br is an unconditional branch.
type Br struct{ Target string }

// CondBr branches on a Bool.
type CondBr struct {
	Cond  *Value
	True  string
	False string
}

// Ret returns from the function with an optional value.
type Ret struct{ Val *Value }

// Unreachable marks a block end control never reaches.
type Unreachable struct{}

func (*Const) isInstr()       {}
func (*Alloca) isInstr()      {}
func (*Load) isInstr()        {}
func (*Store) isInstr()       {}
func (*GlobalAddr) isInstr()  {}
func (*FieldAddr) isInstr()   {}
func (*Extract) isInstr()     {}
func (*MakeStruct) isInstr()  {}
func (*Convert) isInstr()     {}
func (*Intrinsic) isInstr()   {}
func (*Call) isInstr()        {}
func (*MakeClosure) isInstr() {}
func (*CallValue) isInstr()   {}
func (*Br) isInstr()          {}
func (*CondBr) isInstr()      {}
func (*Ret) isInstr()         {}
func (*Unreachable) isInstr() {}

func (i *Const) Result() *Value       { return i.Dst }
func (i *Alloca) Result() *Value      { return i.Dst }
func (i *Load) Result() *Value        { return i.Dst }
func (*Store) Result() *Value         { return nil }
func (i *GlobalAddr) Result() *Value  { return i.Dst }
func (i *FieldAddr) Result() *Value   { return i.Dst }
func (i *Extract) Result() *Value     { return i.Dst }
func (i *MakeStruct) Result() *Value  { return i.Dst }
func (i *Convert) Result() *Value     { return i.Dst }
func (i *Intrinsic) Result() *Value   { return i.Dst }
func (i *Call) Result() *Value        { return i.Dst }
func (i *MakeClosure) Result() *Value { return i.Dst }
func (i *CallValue) Result() *Value   { return i.Dst }
func (*Br) Result() *Value            { return nil }
func (*CondBr) Result() *Value        { return nil }
func (*Ret) Result() *Value           { return nil }
func (*Unreachable) Result() *Value   { return nil }

func (*Const) Operands() []*Value         { return nil }
func (*Alloca) Operands() []*Value        { return nil }
func (i *Load) Operands() []*Value        { return []*Value{i.Addr} }
func (i *Store) Operands() []*Value       { return []*Value{i.Addr, i.Val} }
func (*GlobalAddr) Operands() []*Value    { return nil }
func (i *FieldAddr) Operands() []*Value   { return []*Value{i.Base} }
func (i *Extract) Operands() []*Value     { return []*Value{i.Agg} }
func (i *MakeStruct) Operands() []*Value  { return i.Fields }
func (i *Convert) Operands() []*Value     { return []*Value{i.Val} }
func (i *Intrinsic) Operands() []*Value   { return i.Args }
func (i *Call) Operands() []*Value        { return i.Args }
func (i *MakeClosure) Operands() []*Value { return i.Captures }
func (*Br) Operands() []*Value            { return nil }
func (*Unreachable) Operands() []*Value   { return nil }

func (i *CallValue) Operands() []*Value {
	return append([]*Value{i.Callee}, i.Args...)
}

func (i *CondBr) Operands() []*Value { return []*Value{i.Cond} }

func (i *Ret) Operands() []*Value {
	if i.Val == nil {
		return nil
	}

	return []*Value{i.Val}
}

// IsTerminator reports whether in ends a basic block.
func IsTerminator(in Instr) bool {
	switch in.(type) {
	case *Br, *CondBr, *Ret, *Unreachable:
		return true
	}

	return false
}

// Successors returns the block names a terminator may transfer to.
func Successors(in Instr) []string {
	switch t := in.(type) {
	case *Br:
		return []string{t.Target}
	case *CondBr:
		return []string{t.True, t.False}
	}

	return nil
}

func (m *Module) String() string {
	if m == nil {
		return "<nil-mir-module>"
	}

	var b strings.Builder

	fmt.Fprintf(&b, "module %s\n", m.Name)

	for _, s := range m.Structs {
		b.WriteByte('\n')
		writeStruct(&b, s)
	}

	if len(m.Globals) > 0 {
		b.WriteByte('\n')
	}

	for _, g := range m.Globals {
		fmt.Fprintf(&b, "global @%s : %s\n", symbol(g.Name), g.Type)
	}

	for _, f := range m.Functions {
		b.WriteByte('\n')
		b.WriteString(f.String())
	}

	if len(m.Init) > 0 {
		b.WriteByte('\n')
	}

	for _, name := range m.Init {
		fmt.Fprintf(&b, "init @%s\n", symbol(name))
	}

	return b.String()
}

func writeStruct(b *strings.Builder, s *types.StructType) {
	fmt.Fprintf(b, "type %s = struct {", symbol(s.Name))

	for i, f := range s.Fields {
		if i > 0 {
			b.WriteByte(',')
		}

		fmt.Fprintf(b, " %s: %s", f.Name, f.Type)
	}

	b.WriteString(" }\n")
}

func (f *Function) String() string {
	if f == nil {
		return "<nil-func>"
	}

	var b strings.Builder

	fmt.Fprintf(&b, "func @%s(", symbol(f.Name))

	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}

		fmt.Fprintf(&b, "%s: %s", p, p.Type)
	}

	fmt.Fprintf(&b, ") -> %s", f.Result)

	if f.External() {
		b.WriteByte('\n')

		return b.String()
	}

	b.WriteString(" {\n")

	for _, bb := range f.Blocks {
		b.WriteString(bb.String())
	}

	b.WriteString("}\n")

	return b.String()
}

func (bb *BasicBlock) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s:\n", bb.Name)

	for _, in := range bb.Instrs {
		b.WriteString("  ")
		b.WriteString(in.String())
		b.WriteByte('\n')
	}

	return b.String()
}

// symbol quotes names that are not plain dotted identifiers with simple
// generic arguments.
func symbol(name string) string {
	if name == "" {
		return strconv.Quote(name)
	}

	for i := 0; i < len(name); i++ {
		if !isSymbolChar(name[i]) {
			return strconv.Quote(name)
		}
	}

	return name
}

func isSymbolChar(c byte) bool {
	return c == '_' || c == '.' || c == '<' || c == '>' || c == ',' ||
		c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func def(v *Value, rhs string) string {
	if v == nil {
		return rhs
	}

	return fmt.Sprintf("%s = %s : %s", v, rhs, v.Type)
}

func joinValues(vs []*Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}

	return strings.Join(parts, ", ")
}

func (i *Const) String() string {
	var lit string

	switch t, _ := i.Dst.Type.(*types.BasicType); {
	case t == nil:
		lit = "?"
	case t.Kind == types.KindInt:
		lit = strconv.FormatInt(i.Int, 10)
	case t.Kind == types.KindFloat:
		lit = strconv.FormatFloat(i.Float, 'g', -1, 64)
		if !strings.ContainsAny(lit, ".eEnI") {
			lit += ".0"
		}
	case t.Kind == types.KindBool:
		lit = strconv.FormatBool(i.Bool)
	default:
		lit = strconv.Quote(i.Str)
	}

	return def(i.Dst, "const "+lit)
}

func (i *Alloca) String() string     { return def(i.Dst, "alloca") }
func (i *Load) String() string       { return def(i.Dst, "load "+i.Addr.String()) }
func (i *Store) String() string      { return fmt.Sprintf("store %s, %s", i.Addr, i.Val) }
func (i *GlobalAddr) String() string { return def(i.Dst, "global @"+symbol(i.Global)) }

func (i *FieldAddr) String() string {
	return def(i.Dst, fmt.Sprintf("field %s, %d", i.Base, i.Index))
}

func (i *Extract) String() string {
	return def(i.Dst, fmt.Sprintf("extract %s, %d", i.Agg, i.Index))
}

func (i *MakeStruct) String() string { return def(i.Dst, "struct("+joinValues(i.Fields)+")") }
func (i *Convert) String() string    { return def(i.Dst, "convert "+i.Val.String()) }

func (i *Intrinsic) String() string {
	return def(i.Dst, fmt.Sprintf("intrinsic %s(%s)", i.Op, joinValues(i.Args)))
}

func (i *Call) String() string {
	return def(i.Dst, fmt.Sprintf("call @%s(%s)", symbol(i.Callee), joinValues(i.Args)))
}

func (i *MakeClosure) String() string {
	return def(i.Dst, fmt.Sprintf("closure @%s(%s)", symbol(i.Func), joinValues(i.Captures)))
}

func (i *CallValue) String() string {
	return def(i.Dst, fmt.Sprintf("callv %s(%s)", i.Callee, joinValues(i.Args)))
}

func (i *Br) String() string { return "br " + i.Target }

func (i *CondBr) String() string {
	return fmt.Sprintf("condbr %s, %s, %s", i.Cond, i.True, i.False)
}

func (i *Ret) String() string {
	if i.Val == nil {
		return "ret"
	}

	return "ret " + i.Val.String()
}

func (*Unreachable) String() string { return "unreachable" }

// Print renders m in the textual form ParseText reads.
func Print(m *Module) string { return m.String() }
