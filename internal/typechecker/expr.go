package typechecker

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/position"
	"github.com/orizon-lang/ozc/internal/types"
)

type typed struct {
	node ast.Node
	t    types.Type
}

// instantiation records where the solved archetype bindings of one
// generic reference are stored.
type instantiation struct {
	dst  *types.Substitution
	vars map[*types.Archetype]*types.TypeVar
}

type pendingClosure struct {
	e *ast.ClosureExpression
	t *types.FunctionType
}

// exprChecker generates the constraints of one expression root.
type exprChecker struct {
	c    *checker
	cs   *types.ConstraintSystem
	span position.Span

	nodes    []typed
	params   map[*ast.Parameter]types.Type
	insts    []instantiation
	segments []typed
	closures []pendingClosure
	solved   []func(*types.Solution)

	// set when a node of the root is already erroneous
	failed bool
}

// root checks the expression root e. build generates its constraints;
// the system is then solved and the results written to the nodes. root
// reports whether every node of e got a valid type.
func (c *checker) root(e ast.Expr, build func(*exprChecker)) bool {
	x := &exprChecker{
		c:      c,
		cs:     types.NewConstraintSystem(),
		span:   e.GetSpan(),
		params: make(map[*ast.Parameter]types.Type),
	}

	build(x)

	return x.solve()
}

func (x *exprChecker) onSolved(f func(*types.Solution)) { x.solved = append(x.solved, f) }

func (x *exprChecker) convert(from, to types.Type, origin string, anchor ast.Node) {
	x.cs.Convertible(from, to, origin, anchor)
}

func (x *exprChecker) solve() bool {
	sol, err := x.cs.Solve()
	if err != nil {
		x.report(err)

		for _, n := range x.nodes {
			n.node.Base().SetType(types.ErrorType)
		}

		for p := range x.params {
			p.SetType(types.ErrorType)
		}

		return false
	}

	for _, n := range x.nodes {
		n.node.Base().SetType(sol.Resolve(n.t))
	}

	for p, t := range x.params {
		p.SetType(sol.Resolve(t))
	}

	for _, in := range x.insts {
		subst := make(types.Substitution, len(in.vars))
		for a, v := range in.vars {
			subst[a] = sol.Resolve(v)
		}

		*in.dst = subst
	}

	for _, f := range x.solved {
		f(sol)
	}

	for _, s := range x.segments {
		if t := sol.Resolve(s.t); !interpolable(t) {
			x.c.errorAt(s.node.GetSpan(), diagnostic.TypeInterpolationSegment, t.String())
			s.node.Base().SetType(types.ErrorType)
			x.failed = true
		}
	}

	for _, pc := range x.closures {
		ft, _ := sol.Resolve(pc.t).(*types.FunctionType)
		x.c.closureBody(pc.e, ft)
	}

	return !x.failed
}

func interpolable(t types.Type) bool {
	if types.IsError(t) {
		return true
	}

	b, ok := t.(*types.BasicType)

	return ok && b.Kind != types.KindVoid
}

// report emits the single diagnostic of a failed root.
func (x *exprChecker) report(err error) {
	var se *types.SolveError
	if !errors.As(err, &se) {
		x.c.errorAt(x.span, diagnostic.TypeCannotInfer, err.Error())

		return
	}

	if se.Kind == types.SolveUnsolved {
		// variables left open by an erroneous operand are not a new cause
		if x.failed {
			return
		}

		v := se.Vars[0]
		x.c.errorAt(x.anchorSpan(v.Anchor), diagnostic.TypeCannotInfer, v.Origin)

		return
	}

	first, second := describe(se.First), describe(se.Second)
	if se.First == se.Second {
		first = se.First.Left.String()
		second = fmt.Sprintf("%s expecting %s", describe(se.Second), se.Second.Right)
	}

	d := diagnostic.NewDiagnostic(diagnostic.TypeConflict).Error().
		Category(diagnostic.DiagnosticType).
		Args(first, second).
		Span(x.anchorSpan(se.Second.Anchor))

	if se.First != se.Second {
		d = d.Related(x.anchorSpan(se.First.Anchor), diagnostic.TypeConflict)
	}

	x.c.errors++
	x.c.emit(d.Build())
}

func describe(c *types.Constraint) string {
	if c.Origin != "" {
		return c.Origin
	}

	return c.String()
}

func (x *exprChecker) anchorSpan(a any) position.Span {
	if n, ok := a.(ast.Node); ok && n.GetSpan().IsValid() {
		return n.GetSpan()
	}

	return x.span
}

func (x *exprChecker) record(n ast.Node, t types.Type) types.Type {
	if types.IsError(t) {
		x.failed = true
	}

	x.nodes = append(x.nodes, typed{node: n, t: t})

	return t
}

// gen generates the constraints of e and returns its type.
func (x *exprChecker) gen(e ast.Expr) types.Type {
	return x.record(e, x.expr(e))
}

func (x *exprChecker) expr(e ast.Expr) types.Type {
	switch e := e.(type) {
	case *ast.IntegerLiteral:
		origin := "integer literal " + e.Raw
		v := x.cs.NewTypeVar(origin, e)
		x.cs.Literal(v, []types.Type{types.Int, types.Float}, origin, e)

		return v
	case *ast.FloatLiteral:
		return types.Float
	case *ast.BoolLiteral:
		return types.Bool
	case *ast.StringLiteral:
		return types.String
	case *ast.InterpolatedString:
		for _, p := range e.Parts {
			x.segments = append(x.segments, typed{node: p, t: x.gen(p)})
		}

		return types.String
	case *ast.SequenceExpression:
		if e.Folded == nil {
			return types.ErrorType
		}

		return x.gen(e.Folded)
	case *ast.BinaryExpression:
		return x.apply(x.callee(e.Operator), e.Operator.Name, []ast.Expr{e.Left, e.Right}, e)
	case *ast.PrefixExpression:
		return x.apply(x.callee(e.Operator), e.Operator.Name, []ast.Expr{e.Operand}, e)
	case *ast.CallExpression:
		return x.call(e)
	case *ast.Identifier:
		return x.ident(e)
	case *ast.MemberExpression:
		obj := x.gen(e.Object)

		return x.memberValue(e, obj)
	case *ast.ClosureExpression:
		return x.closure(e)
	}

	return types.ErrorType
}

func (x *exprChecker) call(e *ast.CallExpression) types.Type {
	var (
		ft   types.Type
		name = "closure"
	)

	switch callee := ast.Unfold(e.Callee).(type) {
	case *ast.Identifier:
		name = callee.Name
		ft = x.callee(callee)
	case *ast.MemberExpression:
		name = callee.Member
		ft = x.methodCallee(callee)
	default:
		ft = x.gen(e.Callee)
	}

	if ast.Unfold(e.Callee) != e.Callee {
		x.record(e.Callee, ft)
	}

	return x.apply(ft, name, e.Arguments, e)
}

// callee types an identifier in call position, where struct names stand
// for their memberwise initializer and methods are reachable through
// implicit self.
func (x *exprChecker) callee(id *ast.Identifier) types.Type {
	switch d := id.Ref.(type) {
	case *ast.StructDeclaration:
		st, ok := x.c.structType(d)
		if !ok {
			return x.record(id, types.ErrorType)
		}

		init := &types.FunctionType{Result: st}
		for _, f := range st.Fields {
			init.Params = append(init.Params, f.Type)
		}

		return x.record(id, init)
	case *ast.FunctionDeclaration:
		if d.Owner != nil {
			return x.record(id, x.function(d, &id.Substitution, id.Name, id))
		}
	}

	return x.gen(id)
}

// methodCallee types obj.name in call position.
func (x *exprChecker) methodCallee(m *ast.MemberExpression) types.Type {
	obj := x.gen(m.Object)
	t, _ := x.concrete(obj)

	var fd *ast.FunctionDeclaration

	switch t := t.(type) {
	case *types.StructType:
		if sd, ok := t.Node.(*ast.StructDeclaration); ok {
			if fd = method(sd, m.Member); fd != nil && fd.IsPrivate && !x.c.inside(sd) {
				x.c.errorAt(m.MemberSpan, diagnostic.TypePrivateMember, m.Member, t.Name)

				return x.record(m, types.ErrorType)
			}
		}
	case *types.Archetype:
		fd = x.c.requirement(t, m.Member)
	}

	if fd == nil {
		return x.record(m, x.memberValue(m, obj))
	}

	m.Ref = fd

	return x.record(m, x.function(fd, &m.Substitution, m.Member, m))
}

// apply checks a call of a value of type callee with args.
func (x *exprChecker) apply(callee types.Type, name string, args []ast.Expr, anchor ast.Node) types.Type {
	fail := func() types.Type {
		for _, a := range args {
			x.gen(a)
		}

		return types.ErrorType
	}

	if types.IsError(callee) {
		return fail()
	}

	ft, ok := callee.(*types.FunctionType)
	if !ok {
		t, report := x.concrete(callee)
		if ft, ok = t.(*types.FunctionType); !ok {
			if t != nil && !types.IsError(t) {
				x.c.errorAt(anchor.GetSpan(), diagnostic.TypeNotCallable, t.String())
			} else if report {
				x.c.errorAt(anchor.GetSpan(), diagnostic.TypeCannotInfer, name)
			}

			return fail()
		}
	}

	if len(args) != len(ft.Params) {
		x.c.errorAt(anchor.GetSpan(), diagnostic.TypeArgCount,
			strconv.Itoa(len(ft.Params)), strconv.Itoa(len(args)))

		return fail()
	}

	for i, a := range args {
		x.convert(x.gen(a), ft.Params[i], fmt.Sprintf("argument %d of %s", i+1, name), a)
	}

	return ft.Result
}

func (x *exprChecker) ident(id *ast.Identifier) types.Type {
	switch d := id.Ref.(type) {
	case nil:
		return types.ErrorType
	case *ast.FunctionDeclaration:
		if d.Owner == nil {
			return x.function(d, &id.Substitution, id.Name, id)
		}
	case *ast.BuiltinDeclaration:
		if d.Kind == ast.BuiltinFunction && d.Func != nil {
			if d.Signature == nil {
				return d.Func
			}

			return x.instantiate(d.Signature, d.Func, &id.Substitution, id.Name, id)
		}
	case *ast.Parameter:
		if t, ok := x.params[d]; ok {
			return t
		}
	}

	if t, ok := x.c.valueType(id.Ref); ok {
		return t
	}

	x.c.errorAt(id.Span, diagnostic.TypeNotAValue, id.Name)

	return types.ErrorType
}

// function returns the type of a reference to fd, opening its generic
// signature when it has one.
func (x *exprChecker) function(fd *ast.FunctionDeclaration, dst *types.Substitution, origin string, anchor ast.Node) types.Type {
	ft, ok := x.c.typeOfFunction(fd)
	if !ok {
		return types.ErrorType
	}

	if fd.Signature == nil {
		return ft
	}

	return x.instantiate(fd.Signature, ft, dst, origin, anchor)
}

func (x *exprChecker) instantiate(sig *types.GenericSignature, ft *types.FunctionType, dst *types.Substitution, origin string, anchor ast.Node) types.Type {
	vars := sig.Instantiate(x.cs, origin, anchor)

	subst := make(types.Substitution, len(vars))
	for a, v := range vars {
		subst[a] = v
	}

	x.insts = append(x.insts, instantiation{dst: dst, vars: vars})

	return types.Substitute(ft, subst)
}

// memberValue types a field access on a value of type obj.
func (x *exprChecker) memberValue(m *ast.MemberExpression, obj types.Type) types.Type {
	t, report := x.concrete(obj)

	switch {
	case t == nil:
		if report {
			x.c.errorAt(m.Object.GetSpan(), diagnostic.TypeCannotInfer, m.Object.String())
		}

		return types.ErrorType
	case types.IsError(t):
		return types.ErrorType
	}

	st, ok := t.(*types.StructType)
	if !ok {
		x.c.errorAt(m.MemberSpan, diagnostic.TypeNoMember, t.String(), m.Member)

		return types.ErrorType
	}

	idx, f := st.Field(m.Member)
	if f == nil {
		if st.Method(m.Member) != nil {
			x.c.errorAt(m.MemberSpan, diagnostic.TypeNotAValue, m.Member)
		} else {
			x.c.errorAt(m.MemberSpan, diagnostic.TypeNoMember, st.Name, m.Member)
		}

		return types.ErrorType
	}

	sd, _ := st.Node.(*ast.StructDeclaration)
	if sd != nil {
		m.Ref = sd.Fields[idx]
	}

	if f.Private && sd != nil && !x.c.inside(sd) {
		x.c.errorAt(m.MemberSpan, diagnostic.TypePrivateMember, m.Member, st.Name)

		return types.ErrorType
	}

	return f.Type
}

// concrete returns t with its outermost type variable resolved by
// solving the constraints gathered so far. On failure it returns nil and
// whether the failure still needs a report: conflicts are reported when
// the root is solved.
func (x *exprChecker) concrete(t types.Type) (types.Type, bool) {
	if _, ok := t.(*types.TypeVar); !ok {
		return t, false
	}

	sol, err := x.cs.Solve()
	if err != nil {
		var se *types.SolveError

		return nil, errors.As(err, &se) && se.Kind == types.SolveUnsolved
	}

	return sol.Resolve(t), false
}

// closure types c. A single-expression body is checked in the current
// system so that its result type is inferred; other bodies are checked
// once the parameter types are known.
func (x *exprChecker) closure(c *ast.ClosureExpression) types.Type {
	ft := &types.FunctionType{}

	for _, p := range c.Parameters {
		var t types.Type
		if p.TypeAnnotation != nil {
			t = x.c.resolveType(p.TypeAnnotation, nil)
		} else {
			t = x.cs.NewTypeVar("parameter "+p.Name, p)
		}

		x.params[p] = t
		ft.Params = append(ft.Params, t)
	}

	if c.ReturnType != nil {
		ft.Result = x.c.resolveType(c.ReturnType, nil)
	}

	if es := singleExpression(c); es != nil {
		bt := x.gen(es.Expression)

		switch {
		case ft.Result == nil:
			ft.Result = bt
		case ft.Result != types.Void:
			x.convert(bt, ft.Result, "result of closure", es.Expression)
		}

		return ft
	}

	if ft.Result == nil {
		ft.Result = types.Void
	}

	x.closures = append(x.closures, pendingClosure{e: c, t: ft})

	return ft
}

func singleExpression(c *ast.ClosureExpression) *ast.ExpressionStatement {
	if !c.SingleExpression || len(c.Body.Statements) != 1 {
		return nil
	}

	es, _ := c.Body.Statements[0].(*ast.ExpressionStatement)

	return es
}

// closureBody checks a statement body once its signature is solved.
func (c *checker) closureBody(e *ast.ClosureExpression, ft *types.FunctionType) {
	if ft == nil {
		return
	}

	c.push(&funcContext{name: "closure", result: ft.Result, owner: c.ctx().owner})
	c.block(e.Body)
	c.pop()

	if ft.Result != types.Void && !types.IsError(ft.Result) && !definitelyReturns(e.Body.Statements) {
		c.errorAt(e.Span, diagnostic.TypeMissingReturn, "closure", ft.Result.String())
	}
}

// inside reports whether the code being checked belongs to sd.
func (c *checker) inside(sd *ast.StructDeclaration) bool {
	return c.ctx().owner == sd
}
