package mir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/errors"
	"github.com/orizon-lang/ozc/internal/session"
	"github.com/orizon-lang/ozc/internal/types"
)

// LowerResult summarizes one Lower call.
type LowerResult struct {
	From, To int
	// Functions names the functions added by this call in emission order.
	Functions []string
	// Skipped counts declarations and statements left out for type errors.
	Skipped int
}

// Lowerer translates checked units into one module. Generic functions are
// monomorphized: each distinct substitution is emitted once, when first
// requested, and every call site with that substitution shares it. A
// Lowerer is not safe for concurrent use.
//
// The module's functions form two sections. Functions of the lowered
// elements come first, in element order. Specializations, external
// declarations and builtin wrappers follow, ordered by name. The printed
// module therefore does not depend on how the elements were split across
// Lower calls.
type Lowerer struct {
	sess *session.Session
	mod  *Module

	queue     []specialization
	requested map[string]bool
	skipped   map[ast.Node]bool
	added     []string

	// split is the length of the element section of mod.Functions.
	split    int
	draining bool
}

type specialization struct {
	decl  *ast.FunctionDeclaration
	subst types.Substitution
	name  string
}

// NewLowerer creates a lowerer emitting into a new module.
func NewLowerer(sess *session.Session, module string) *Lowerer {
	return &Lowerer{
		sess:      sess,
		mod:       NewModule(module),
		requested: make(map[string]bool),
		skipped:   make(map[ast.Node]bool),
	}
}

// Module returns the module built so far.
func (l *Lowerer) Module() *Module { return l.mod }

// Lower lowers the elements of unit from start up to the last checked
// element. Elements already lowered are skipped, so calls are idempotent
// and a REPL can lower each newly appended range.
func (l *Lowerer) Lower(unit *ast.SourceUnit, start int) (*LowerResult, error) {
	from, to, err := unit.BeginPhase(ast.PhaseLower, start)
	if err != nil {
		return nil, err
	}

	if checked := unit.Progress.Done(ast.PhaseCheck); to > checked {
		to = checked
	}

	if to < from {
		to = from
	}

	res := &LowerResult{From: from, To: to}
	l.added = nil

	for i := from; i < to; i++ {
		if err := l.lowerElement(unit, i, res); err != nil {
			return res, fmt.Errorf("lowering %s element %d: %w", unit.Name, i, err)
		}
	}

	if err := l.drain(res); err != nil {
		return res, err
	}

	res.Functions = l.added
	l.added = nil

	unit.EndPhase(ast.PhaseLower, to)
	l.sess.Logger.Debug("lower %s: elements [%d, %d), %d functions, %d skipped",
		unit.Name, from, to, len(res.Functions), res.Skipped)

	return res, nil
}

// LowerModule lowers every source unit into one module named name.
// Interface units only contribute declarations.
func LowerModule(sess *session.Session, name string, units []*ast.SourceUnit) (*Module, error) {
	l := NewLowerer(sess, name)

	for _, u := range units {
		if u.InterfaceOnly {
			continue
		}

		if _, err := l.Lower(u, 0); err != nil {
			return nil, err
		}
	}

	return l.Module(), nil
}

// ToplevelName names the function holding top-level element index of unit.
func ToplevelName(unit string, index int) string {
	return fmt.Sprintf("%s.toplevel.%d", unit, index)
}

func (l *Lowerer) lowerElement(unit *ast.SourceUnit, i int, res *LowerResult) error {
	switch d := unit.Elements[i].(type) {
	case *ast.FunctionDeclaration:
		if d.IsGeneric() {
			return nil
		}

		return l.lowerFunction(d, nil, d.QualifiedName(), res)
	case *ast.StructDeclaration:
		return l.lowerStruct(d, res)
	case *ast.VariableDeclaration:
		return l.lowerGlobal(unit, i, d, res)
	case *ast.MIRDeclaration:
		return l.lowerMIR(d)
	case *ast.ImportDeclaration, *ast.PrecedenceGroupDeclaration, *ast.OperatorDeclaration,
		*ast.ProtocolDeclaration, *ast.BadDeclaration:
		return nil
	case ast.Stmt:
		return l.lowerToplevel(unit, i, d, res)
	}

	return nil
}

func (l *Lowerer) drain(res *LowerResult) error {
	l.draining = true
	defer func() { l.draining = false }()

	for len(l.queue) > 0 {
		req := l.queue[0]
		l.queue = l.queue[1:]

		if err := l.lowerFunction(req.decl, req.subst, req.name, res); err != nil {
			return fmt.Errorf("specializing %s: %w", req.name, err)
		}
	}

	return nil
}

// add places f at the end of the element section. Everything emitted
// while specializations are drained belongs to the shared section.
func (l *Lowerer) add(f *Function) error {
	if l.draining {
		return l.addShared(f)
	}

	inserted, err := l.mod.insertFunction(l.split, f)
	if err != nil {
		return errors.Invariant("MIR_DUPLICATE_FUNCTION", "%v", err)
	}

	if inserted {
		l.split++
	}

	l.added = append(l.added, f.Name)

	return nil
}

// addShared places f in the shared section, ordered by name.
func (l *Lowerer) addShared(f *Function) error {
	at, _ := slices.BinarySearchFunc(l.mod.Functions[l.split:], f.Name, func(g *Function, name string) int {
		return strings.Compare(g.Name, name)
	})

	if _, err := l.mod.insertFunction(l.split+at, f); err != nil {
		return errors.Invariant("MIR_DUPLICATE_FUNCTION", "%v", err)
	}

	l.added = append(l.added, f.Name)

	return nil
}

// skip reports whether n carries type errors, noting it once.
func (l *Lowerer) skip(n ast.Node, kind, name string, res *LowerResult) bool {
	if !hasErrors(n) {
		return false
	}

	if !l.skipped[n] {
		l.skipped[n] = true
		res.Skipped++

		l.sess.Emit(diagnostic.NewDiagnostic(diagnostic.LowerSkipped).
			Note().
			Category(diagnostic.DiagnosticLowering).
			Args(kind, name).
			Span(n.GetSpan()).
			Build())
	}

	return true
}

// hasErrors reports whether the subtree rooted at n failed an earlier
// phase.
func hasErrors(n ast.Node) bool {
	bad := false

	ast.Inspect(n, func(c ast.Node) bool {
		if bad {
			return false
		}

		if c.Base().HasType() && types.IsError(c.Base().Type()) {
			bad = true

			return false
		}

		switch c := c.(type) {
		case *ast.BadExpression, *ast.BadStatement, *ast.BadTypeExpr, *ast.BadDeclaration:
			bad = true
		case *ast.Identifier:
			bad = c.Ref == nil || c.Ref == ast.Decl(ast.ErrorDecl)
		case *ast.SequenceExpression:
			bad = c.Folded == nil
		case *ast.MemberExpression:
			bad = c.Ref == nil
		}

		return !bad
	})

	return bad
}

func (l *Lowerer) lowerFunction(fd *ast.FunctionDeclaration, subst types.Substitution, name string, res *LowerResult) error {
	if l.skip(fd, "function", fd.QualifiedName(), res) {
		// callers still reference it
		l.declareExternal(fd, name, subst)

		return nil
	}

	ft, ok := fd.Type().(*types.FunctionType)
	if !ok {
		return errors.Invariant("MIR_UNTYPED_FUNCTION", "function %s has no function type", fd.QualifiedName())
	}

	ft = types.Substitute(ft, subst).(*types.FunctionType)

	fn := &Function{Name: name, Result: ft.Result}
	b := newBuilder(l, fn, subst, name)

	if fd.Owner != nil && fd.Self != nil {
		self := fn.NewValue(fd.Owner.Type())
		fn.Params = append(fn.Params, self)
		b.values[fd.Self] = self
		b.selfDecl = fd.Self
	}

	for i, p := range fd.Parameters {
		v := fn.NewValue(ft.Params[i])
		fn.Params = append(fn.Params, v)
		b.values[p] = v
	}

	if fd.Body != nil && !fd.Deferred {
		b.start()
		b.block(fd.Body)
		b.finish()
	}

	if b.err != nil {
		return b.err
	}

	return l.add(fn)
}

func (l *Lowerer) lowerStruct(sd *ast.StructDeclaration, res *LowerResult) error {
	st, ok := sd.Type().(*types.StructType)
	if !ok {
		l.skip(sd, "struct", sd.Name, res)

		return nil
	}

	for _, f := range sd.Fields {
		if l.skip(f, "struct", sd.Name, res) {
			return nil
		}
	}

	l.mod.AddStruct(st)

	if err := l.add(initFunction(st, sd.Module != "")); err != nil {
		return err
	}

	for _, m := range sd.Methods {
		if m.IsGeneric() {
			continue
		}

		if err := l.lowerFunction(m, nil, m.QualifiedName(), res); err != nil {
			return err
		}
	}

	return nil
}

// InitName names the memberwise initializer of st.
func InitName(st *types.StructType) string { return st.Name + ".init" }

func initFunction(st *types.StructType, external bool) *Function {
	fn := &Function{Name: InitName(st), Result: st}

	for _, f := range st.Fields {
		fn.Params = append(fn.Params, fn.NewValue(f.Type))
	}

	if external {
		return fn
	}

	dst := fn.NewValue(st)
	fn.Blocks = []*BasicBlock{{
		Name: "entry",
		Instrs: []Instr{
			&MakeStruct{Dst: dst, Fields: append([]*Value(nil), fn.Params...)},
			&Ret{Val: dst},
		},
	}}

	return fn
}

func (l *Lowerer) lowerGlobal(unit *ast.SourceUnit, i int, vd *ast.VariableDeclaration, res *LowerResult) error {
	if l.skip(vd, "variable", vd.Name, res) {
		return nil
	}

	if l.mod.Global(vd.Name) == nil {
		l.mod.Globals = append(l.mod.Globals, &Global{Name: vd.Name, Type: vd.Type()})
	}

	if vd.Value == nil {
		return nil
	}

	fn := &Function{Name: ToplevelName(unit.Name, i), Result: types.Void}
	b := newBuilder(l, fn, nil, fn.Name)
	b.start()

	v := b.coerce(b.expr(vd.Value), vd.Type())
	addr := b.globalAddr(vd)
	b.emit(&Store{Addr: addr, Val: v})
	b.finish()

	return l.addToplevel(b)
}

func (l *Lowerer) lowerToplevel(unit *ast.SourceUnit, i int, s ast.Stmt, res *LowerResult) error {
	name := ToplevelName(unit.Name, i)
	if l.skip(s, "statement", name, res) {
		return nil
	}

	fn := &Function{Name: name, Result: types.Void}
	b := newBuilder(l, fn, nil, name)
	b.start()
	b.stmt(s)
	b.finish()

	return l.addToplevel(b)
}

func (l *Lowerer) addToplevel(b *builder) error {
	if b.err != nil {
		return b.err
	}

	if err := l.add(b.fn); err != nil {
		return err
	}

	l.mod.Init = append(l.mod.Init, b.fn.Name)

	return nil
}

// lowerMIR copies the functions of a textual MIR block into the module.
func (l *Lowerer) lowerMIR(d *ast.MIRDeclaration) error {
	m, err := ParseText(d.Text, ParseOptions{Name: l.mod.Name, Resolve: l.resolveType})
	if err != nil {
		return errors.Invariant("MIR_BLOCK_REPARSE", "mir block accepted by the parser no longer parses: %v", err)
	}

	for _, st := range m.Structs {
		l.mod.AddStruct(st)
	}

	for _, f := range m.Functions {
		if err := l.add(f); err != nil {
			return err
		}
	}

	return nil
}

// resolveType finds source structs named in textual MIR.
func (l *Lowerer) resolveType(name string) (types.Type, error) {
	for _, s := range l.sess.Scope.Lookup(session.NamespaceValue, name) {
		if sd, ok := s.Decl.(*ast.StructDeclaration); ok {
			if st, ok := sd.Type().(*types.StructType); ok {
				return st, nil
			}
		}
	}

	return nil, fmt.Errorf("no struct named %s", name)
}

// functionRef returns the MIR name of fd under subst, requesting the
// specialization or external declaration it needs.
func (l *Lowerer) functionRef(fd *ast.FunctionDeclaration, subst types.Substitution) string {
	name := fd.QualifiedName()
	if fd.IsGeneric() {
		name = fmt.Sprintf("%s<%s>", name, subst.Key(fd.Signature))
	}

	if l.requested[name] {
		return name
	}

	l.requested[name] = true

	switch {
	case fd.Body == nil || fd.Deferred:
		l.declareExternal(fd, name, subst)
	case fd.IsGeneric():
		l.queue = append(l.queue, specialization{decl: fd, subst: subst, name: name})
	}

	return name
}

func (l *Lowerer) declareExternal(fd *ast.FunctionDeclaration, name string, subst types.Substitution) {
	if l.mod.Function(name) != nil {
		return
	}

	ft, ok := fd.Type().(*types.FunctionType)
	if !ok {
		return
	}

	ft = types.Substitute(ft, subst).(*types.FunctionType)
	fn := &Function{Name: name, Result: ft.Result}

	if fd.Owner != nil {
		fn.Params = append(fn.Params, fn.NewValue(fd.Owner.Type()))
	}

	for _, p := range ft.Params {
		fn.Params = append(fn.Params, fn.NewValue(p))
	}

	_ = l.addShared(fn)
}

// structInit returns the initializer name of st, declaring it when the
// struct comes from a module interface.
func (l *Lowerer) structInit(sd *ast.StructDeclaration, st *types.StructType) string {
	name := InitName(st)
	if sd.Module != "" && l.mod.Function(name) == nil {
		l.mod.AddStruct(st)
		_ = l.addShared(initFunction(st, true))
	}

	return name
}

// builtinWrapper returns a function performing the intrinsic of d, used
// when a builtin is taken as a value.
func (l *Lowerer) builtinWrapper(d *ast.BuiltinDeclaration, subst types.Substitution) string {
	if d.Intrinsic == "" {
		return d.Name
	}

	name := "builtin." + d.Intrinsic
	if d.Signature != nil {
		name = fmt.Sprintf("%s<%s>", name, subst.Key(d.Signature))
	}

	if l.mod.Function(name) != nil {
		return name
	}

	ft := types.Substitute(d.Func, subst).(*types.FunctionType)
	fn := &Function{Name: name, Result: ft.Result}

	for _, p := range ft.Params {
		fn.Params = append(fn.Params, fn.NewValue(p))
	}

	var dst *Value
	if ft.Result != types.Void {
		dst = fn.NewValue(ft.Result)
	}

	fn.Blocks = []*BasicBlock{{
		Name: "entry",
		Instrs: []Instr{
			&Intrinsic{Dst: dst, Op: d.Intrinsic, Args: append([]*Value(nil), fn.Params...)},
			&Ret{Val: dst},
		},
	}}

	_ = l.addShared(fn)

	return name
}
