// Package typechecker assigns types to bound source units.
//
// Every expression root (an initializer, a condition, an expression
// statement, a returned value, an assignment) is checked as one local
// constraint system. A root whose system has no solution is reported once
// and its nodes are marked with types.ErrorType, which keeps dependents
// silent.
package typechecker

import (
	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/position"
	"github.com/orizon-lang/ozc/internal/session"
	"github.com/orizon-lang/ozc/internal/types"
)

// CheckResult summarizes one Check call.
type CheckResult struct {
	From, To int
	// Errors counts the type diagnostics emitted by this call.
	Errors int
}

// funcContext describes the function body being checked. The bottom of
// the stack stands for the top level of the unit.
type funcContext struct {
	name     string
	result   types.Type // nil outside functions
	owner    *ast.StructDeclaration
	loops    int
	toplevel bool
}

type checker struct {
	sess  *session.Session
	scope *session.ScopeTable
	emit  func(diagnostic.Diagnostic)

	errors int
	stack  []*funcContext
	// globals under inference, for cycle detection
	inProgress map[*ast.VariableDeclaration]bool
}

func newChecker(sess *session.Session) *checker {
	return &checker{
		sess:       sess,
		scope:      sess.Scope,
		emit:       sess.Emit,
		inProgress: make(map[*ast.VariableDeclaration]bool),
		stack:      []*funcContext{{toplevel: true}},
	}
}

// Check type checks the elements of unit from start up to the last bound
// element. Elements checked by an earlier call are skipped.
func Check(sess *session.Session, unit *ast.SourceUnit, start int) (*CheckResult, error) {
	from, to, err := unit.BeginPhase(ast.PhaseCheck, start)
	if err != nil {
		return nil, err
	}

	if bound := unit.Progress.Done(ast.PhaseBind); to > bound {
		to = bound
	}

	if to < from {
		to = from
	}

	c := newChecker(sess)

	for _, e := range unit.Elements[from:to] {
		before := c.errors
		c.element(e)

		if c.errors > before || failed(e) {
			markUnchecked(e)
		}
	}

	unit.EndPhase(ast.PhaseCheck, to)
	sess.Logger.Debug("check %s: elements [%d, %d), %d errors", unit.Name, from, to, c.errors)

	return &CheckResult{From: from, To: to, Errors: c.errors}, nil
}

func (c *checker) errorAt(span position.Span, code string, args ...string) {
	c.errors++
	c.emit(diagnostic.NewDiagnostic(code).Error().
		Category(diagnostic.DiagnosticType).
		Args(args...).
		Span(span).Build())
}

// failed reports whether n holds syntax errors or nodes of error type.
func failed(n ast.Node) bool {
	bad := false

	ast.Inspect(n, func(c ast.Node) bool {
		switch c.(type) {
		case *ast.BadDeclaration, *ast.BadStatement, *ast.BadExpression, *ast.BadTypeExpr:
			bad = true
		default:
			bad = c.Base().HasType() && types.IsError(c.Base().Type())
		}

		return !bad
	})

	return bad
}

// markUnchecked gives the error type to every value of a failed element
// that checking did not reach, such as the body of a closure whose
// signature could not be solved.
func markUnchecked(n ast.Node) {
	ast.Inspect(n, func(c ast.Node) bool {
		switch c := c.(type) {
		case *ast.ProtocolDeclaration:
			return false
		case *ast.FunctionDeclaration:
			if c.Protocol == nil && !c.HasType() {
				c.SetType(types.ErrorType)
			}

			return !c.Deferred
		case ast.Expr, *ast.VariableDeclaration, *ast.StructDeclaration, *ast.Parameter:
			if !c.Base().HasType() {
				c.Base().SetType(types.ErrorType)
			}
		}

		return true
	})
}

func (c *checker) ctx() *funcContext { return c.stack[len(c.stack)-1] }

func (c *checker) push(fc *funcContext) { c.stack = append(c.stack, fc) }

func (c *checker) pop() { c.stack = c.stack[:len(c.stack)-1] }

func (c *checker) element(n ast.Node) {
	switch d := n.(type) {
	case *ast.FunctionDeclaration:
		c.checkFunction(d)
	case *ast.StructDeclaration:
		c.checkStruct(d)
	case *ast.ProtocolDeclaration:
		c.protocolType(d)
	case *ast.VariableDeclaration:
		c.globalType(d)
	case *ast.ImportDeclaration, *ast.PrecedenceGroupDeclaration, *ast.OperatorDeclaration,
		*ast.MIRDeclaration, *ast.BadDeclaration:
	case ast.Stmt:
		c.stmt(d)
	}
}

func (c *checker) checkFunction(fd *ast.FunctionDeclaration) {
	ft, ok := c.typeOfFunction(fd)
	if !ok || fd.Body == nil || fd.Deferred {
		return
	}

	c.push(&funcContext{name: fd.QualifiedName(), result: ft.Result, owner: fd.Owner})
	c.block(fd.Body)
	c.pop()

	if ft.Result != types.Void && !types.IsError(ft.Result) && !definitelyReturns(fd.Body.Statements) {
		c.errorAt(fd.NameSpan, diagnostic.TypeMissingReturn, fd.QualifiedName(), ft.Result.String())
	}
}

func (c *checker) checkStruct(sd *ast.StructDeclaration) {
	st, ok := c.structType(sd)
	if !ok {
		return
	}

	c.checkConformances(sd, st)

	for _, f := range sd.Fields {
		if f.Value == nil || f.TypeAnnotation == nil {
			continue
		}

		ft := f.TypeAnnotation.Base().Type()
		c.root(f.Value, func(x *exprChecker) {
			x.convert(x.gen(f.Value), ft, "default value of "+f.Name, f.Value)
		})
	}

	for _, m := range sd.Methods {
		c.checkFunction(m)
	}
}

func (c *checker) block(b *ast.BlockStatement) {
	for _, s := range b.Statements {
		c.stmt(s)
	}
}

func (c *checker) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.VariableDeclaration:
		if s.IsGlobal {
			c.globalType(s)

			return
		}

		c.localVariable(s)
	case *ast.ExpressionStatement:
		c.root(s.Expression, func(x *exprChecker) { x.gen(s.Expression) })
	case *ast.AssignStatement:
		c.assign(s)
	case *ast.BlockStatement:
		c.block(s)
	case *ast.IfStatement:
		c.condition(s.Condition, "condition of if")
		c.block(s.Then)

		if s.Else != nil {
			c.stmt(s.Else)
		}
	case *ast.WhileStatement:
		c.condition(s.Condition, "condition of while")
		c.ctx().loops++
		c.block(s.Body)
		c.ctx().loops--
	case *ast.ReturnStatement:
		c.returnStmt(s)
	case *ast.BreakStatement:
		if c.ctx().loops == 0 {
			c.errorAt(s.Span, diagnostic.TypeBreakOutsideLoop, "break")
		}
	case *ast.ContinueStatement:
		if c.ctx().loops == 0 {
			c.errorAt(s.Span, diagnostic.TypeBreakOutsideLoop, "continue")
		}
	case *ast.BadStatement:
	}
}

func (c *checker) condition(e ast.Expr, origin string) {
	c.root(e, func(x *exprChecker) {
		x.cs.Equal(x.gen(e), types.Bool, origin, e)
	})
}

// localVariable types a local declaration from its annotation, its
// initializer, or both.
func (c *checker) localVariable(vd *ast.VariableDeclaration) {
	t := c.declaredVariableType(vd)
	if t == nil {
		vd.SetType(types.ErrorType)

		return
	}

	vd.SetType(t)
}

// declaredVariableType checks the initializer of vd and returns the type
// of the variable, or nil when it cannot be determined.
func (c *checker) declaredVariableType(vd *ast.VariableDeclaration) types.Type {
	var annotated types.Type
	if vd.TypeAnnotation != nil {
		annotated = c.resolveType(vd.TypeAnnotation, nil)
	}

	if vd.Value == nil {
		if annotated == nil {
			c.errorAt(vd.Span, diagnostic.TypeCannotInfer, vd.Name)
		}

		return annotated
	}

	var inferred types.Type

	ok := c.root(vd.Value, func(x *exprChecker) {
		vt := x.gen(vd.Value)
		if annotated != nil {
			x.convert(vt, annotated, "initializer of "+vd.Name, vd.Value)
		}

		x.onSolved(func(sol *types.Solution) { inferred = sol.Resolve(vt) })
	})

	switch {
	case annotated != nil:
		return annotated
	case !ok || inferred == nil:
		return types.ErrorType
	case inferred == types.Void:
		c.errorAt(vd.Value.GetSpan(), diagnostic.TypeNotAValue, vd.Value.String())

		return types.ErrorType
	}

	return inferred
}

// globalType returns the type of a global, inferring it from the
// initializer on first use.
func (c *checker) globalType(vd *ast.VariableDeclaration) types.Type {
	if vd.HasType() {
		return vd.Type()
	}

	if c.inProgress[vd] {
		c.errorAt(vd.Span, diagnostic.TypeCannotInfer, vd.Name)
		vd.SetType(types.ErrorType)

		return types.ErrorType
	}

	c.inProgress[vd] = true
	defer delete(c.inProgress, vd)

	// initializers run outside any function
	saved := c.stack
	c.stack = []*funcContext{{toplevel: true}}
	t := c.declaredVariableType(vd)
	c.stack = saved

	if t == nil {
		t = types.ErrorType
	}

	vd.SetType(t)

	return vd.Type()
}

func (c *checker) assign(s *ast.AssignStatement) {
	c.root(s.Value, func(x *exprChecker) {
		target := x.gen(s.Target)
		x.convert(x.gen(s.Value), target, "assignment to "+s.Target.String(), s.Value)
	})

	// member references are only known once the target is checked
	c.checkMutable(s.Target)
}

// checkMutable reports assignments to storage that cannot change: let
// bindings, parameters, let fields and the fields of self.
func (c *checker) checkMutable(target ast.Expr) {
	switch e := ast.Unfold(target).(type) {
	case *ast.Identifier:
		switch d := e.Ref.(type) {
		case *ast.VariableDeclaration:
			if d.Kind == ast.VarKindLet || d.Owner != nil {
				c.errorAt(e.Span, diagnostic.TypeImmutableAssign, e.Name)
			}
		case *ast.Parameter:
			c.errorAt(e.Span, diagnostic.TypeImmutableAssign, e.Name)
		}
	case *ast.MemberExpression:
		if f, ok := e.Ref.(*ast.VariableDeclaration); ok && f.Kind == ast.VarKindLet {
			c.errorAt(e.MemberSpan, diagnostic.TypeImmutableAssign, e.Member)

			return
		}

		c.checkMutable(e.Object)
	}
}

func (c *checker) returnStmt(s *ast.ReturnStatement) {
	fc := c.ctx()
	if fc.toplevel {
		c.errorAt(s.Span, diagnostic.TypeReturnOutsideFunc)

		return
	}

	if s.Value == nil {
		if fc.result != types.Void && !types.IsError(fc.result) {
			c.errorAt(s.Span, diagnostic.TypeMissingReturn, fc.name, fc.result.String())
		}

		return
	}

	c.root(s.Value, func(x *exprChecker) {
		x.convert(x.gen(s.Value), fc.result, "return value of "+fc.name, s.Value)
	})
}

// definitelyReturns reports whether every path through stmts ends in a
// return statement.
func definitelyReturns(stmts []ast.Stmt) bool {
	for _, s := range stmts {
		switch s := s.(type) {
		case *ast.ReturnStatement:
			return true
		case *ast.BlockStatement:
			if definitelyReturns(s.Statements) {
				return true
			}
		case *ast.IfStatement:
			if s.Else != nil && definitelyReturns(s.Then.Statements) &&
				definitelyReturns([]ast.Stmt{s.Else}) {
				return true
			}
		}
	}

	return false
}
