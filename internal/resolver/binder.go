// Package resolver implements name binding for ozc source units.
//
// Binding runs over the top-level elements of a unit from a start index.
// It publishes top-level names into the session's module-wide scope
// table, resolves imports against the module registry, binds every name
// reference to its declaration, and folds flat operator sequences into
// binary trees once the operators' precedence groups are known.
package resolver

import (
	"errors"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/modules"
	"github.com/orizon-lang/ozc/internal/position"
	"github.com/orizon-lang/ozc/internal/session"
)

// BindResult summarizes one Bind call.
type BindResult struct {
	// Imports lists the modules the unit imports, including those of
	// elements bound by earlier calls.
	Imports []*session.Module
	// From and To delimit the elements bound by this call.
	From       int
	To         int
	Unresolved int
	Ambiguous  int
}

type binder struct {
	sess   *session.Session
	unit   *ast.SourceUnit
	table  *session.ScopeTable
	result *BindResult

	imports []*session.Module
	locals  scopeStack
	method  *ast.FunctionDeclaration

	groupEdges map[*ast.PrecedenceGroupDeclaration][]*ast.PrecedenceGroupDeclaration
}

// Bind binds the elements of unit from start on. start must not precede
// the start of an earlier call for the same unit; elements bound before
// are skipped.
func Bind(sess *session.Session, unit *ast.SourceUnit, start int) (*BindResult, error) {
	from, to, err := unit.BeginPhase(ast.PhaseBind, start)
	if err != nil {
		return nil, err
	}

	b := newBinder(sess, unit, from, to)

	// elements published by Declare keep their imports and names;
	// interface units publish into a private table on every call
	declared := max(from, unit.Progress.Done(ast.PhaseDeclare))
	if unit.InterfaceOnly {
		declared = 0
	}

	b.restoreImports(declared)

	for _, e := range unit.Elements[declared:to] {
		b.declareTopLevel(e)
	}

	unit.EndPhase(ast.PhaseDeclare, to)

	for _, e := range unit.Elements[from:to] {
		b.bindTopLevel(e)
	}

	unit.EndPhase(ast.PhaseBind, to)
	b.result.Imports = b.imports

	sess.Logger.Debug("bind %s: elements [%d, %d), %d unresolved, %d ambiguous",
		unit.Name, from, to, b.result.Unresolved, b.result.Ambiguous)

	return b.result, nil
}

// Declare resolves the imports of unit and publishes its top-level names
// without binding any reference. Declaring every unit of a module before
// binding any of them makes names visible across units.
func Declare(sess *session.Session, unit *ast.SourceUnit, start int) (*BindResult, error) {
	from, to, err := unit.BeginPhase(ast.PhaseDeclare, start)
	if err != nil {
		return nil, err
	}

	b := newBinder(sess, unit, from, to)
	b.restoreImports(from)

	for _, e := range unit.Elements[from:to] {
		b.declareTopLevel(e)
	}

	unit.EndPhase(ast.PhaseDeclare, to)
	b.result.Imports = b.imports

	return b.result, nil
}

func newBinder(sess *session.Session, unit *ast.SourceUnit, from, to int) *binder {
	b := &binder{
		sess:   sess,
		unit:   unit,
		table:  sess.Scope,
		result: &BindResult{From: from, To: to},
	}

	// interface units resolve their own names only
	if unit.InterfaceOnly {
		b.table = session.NewScopeTable()
	}

	return b
}

func (b *binder) errorAt(span position.Span, code string, args ...string) {
	b.sess.Emit(diagnostic.NewDiagnostic(code).Error().
		Category(diagnostic.DiagnosticBinding).
		Args(args...).
		Span(span).Build())
}

// restoreImports reloads the modules imported by already bound elements.
func (b *binder) restoreImports(before int) {
	for _, e := range b.unit.Elements[:before] {
		imp, ok := e.(*ast.ImportDeclaration)
		if !ok || imp.Version == "" {
			continue
		}

		if m, ok := b.sess.Module(imp.Module); ok {
			b.addImport(m)
		}
	}
}

func (b *binder) addImport(m *session.Module) {
	for _, have := range b.imports {
		if have == m {
			return
		}
	}

	b.imports = append(b.imports, m)
}

func (b *binder) importModule(d *ast.ImportDeclaration) {
	m, err := b.sess.ImportModule(d.Module)
	if err != nil {
		b.sess.Logger.Debug("import %s: %v", d.Module, err)

		if errors.Is(err, modules.ErrNoMatchingVersion) {
			b.errorAt(d.ModuleSpan, diagnostic.BindNoMatchingVersion, d.Module, b.sess.Config.Constraint(d.Module))
		} else {
			b.errorAt(d.ModuleSpan, diagnostic.BindUnknownModule, d.Module)
		}

		return
	}

	d.Version = m.Descriptor.Version.String()
	b.addImport(m)
}

// publish adds a top-level declaration to the module scope. A second
// declaration of the name in the same unit is a redeclaration; one from
// another unit makes later references ambiguous.
func (b *binder) publish(ns session.Namespace, name string, d ast.Decl, span position.Span) {
	for _, s := range b.table.Lookup(ns, name) {
		if s.Decl == d {
			return
		}

		if s.Unit == b.unit.Name {
			b.errorAt(span, diagnostic.BindRedeclared, name)

			return
		}
	}

	b.table.Publish(ns, name, d, b.unit.Name)

	if ns == session.NamespacePrecedence {
		b.groupEdges = nil
	}
}

func (b *binder) declareTopLevel(n ast.Node) {
	module := ""
	if b.unit.InterfaceOnly {
		module = b.unit.Module
	}

	switch d := n.(type) {
	case *ast.ImportDeclaration:
		b.importModule(d)
	case *ast.PrecedenceGroupDeclaration:
		b.publish(session.NamespacePrecedence, d.Name, d, d.Span)
	case *ast.OperatorDeclaration:
		ns := session.NamespaceInfix
		if d.Fixity == ast.FixityPrefix {
			ns = session.NamespacePrefix
		}

		b.publish(ns, d.Operator, d, d.Span)
	case *ast.FunctionDeclaration:
		d.Module = module
		b.publish(session.NamespaceValue, d.Name, d, d.NameSpan)
	case *ast.StructDeclaration:
		d.Module = module
		b.publish(session.NamespaceValue, d.Name, d, d.Span)
	case *ast.ProtocolDeclaration:
		d.Module = module
		b.publish(session.NamespaceValue, d.Name, d, d.Span)
	case *ast.VariableDeclaration:
		b.publish(session.NamespaceValue, d.Name, d, d.Span)
	case *ast.MIRDeclaration:
		for _, f := range d.Functions {
			b.publish(session.NamespaceValue, f.Name, f, d.Span)
		}
	}
}

func (b *binder) bindTopLevel(n ast.Node) {
	switch d := n.(type) {
	case *ast.ImportDeclaration, *ast.MIRDeclaration, *ast.BadDeclaration:
	case *ast.PrecedenceGroupDeclaration:
		for _, name := range append(append([]string(nil), d.HigherThan...), d.LowerThan...) {
			if b.group(name) == nil {
				b.errorAt(d.Span, diagnostic.BindUnknownPrecedence, name)
			}
		}
	case *ast.OperatorDeclaration:
		if d.Group != "" && b.group(d.Group) == nil {
			b.errorAt(d.Span, diagnostic.BindUnknownPrecedence, d.Group)
		}
	case *ast.FunctionDeclaration:
		b.bindFunction(d)
	case *ast.StructDeclaration:
		b.bindStruct(d)
	case *ast.ProtocolDeclaration:
		for _, r := range d.Requirements {
			b.bindFunction(r)
		}
	case *ast.VariableDeclaration:
		if d.TypeAnnotation != nil {
			b.bindType(d.TypeAnnotation)
		}

		if d.Value != nil {
			b.bindExpr(d.Value)
		}
	case ast.Stmt:
		b.bindStmt(d)
	}
}

func (b *binder) bindFunction(fn *ast.FunctionDeclaration) {
	b.locals.push(newScope(ScopeKindGeneric))
	defer b.locals.pop()

	for _, g := range fn.Generics {
		for _, c := range g.Constraints {
			b.bindType(c)
		}

		if !b.locals.declare(g.Name, g) {
			b.errorAt(g.Span, diagnostic.BindRedeclared, g.Name)
		}
	}

	for _, p := range fn.Parameters {
		b.bindType(p.TypeAnnotation)
	}

	if fn.ReturnType != nil {
		b.bindType(fn.ReturnType)
	}

	b.locals.push(newScope(ScopeKindFunction))
	defer b.locals.pop()

	if fn.Self != nil {
		b.locals.declare(fn.Self.Name, fn.Self)
	}

	for _, p := range fn.Parameters {
		if !b.locals.declare(p.Name, p) {
			b.errorAt(p.Span, diagnostic.BindRedeclared, p.Name)
		}
	}

	// a body still awaiting deferred parsing is treated as absent
	if fn.Body != nil && !fn.Deferred {
		b.bindBlock(fn.Body)
	}
}

func (b *binder) bindStruct(s *ast.StructDeclaration) {
	for _, c := range s.Conformances {
		b.bindType(c)
	}

	for _, f := range s.Fields {
		if f.TypeAnnotation != nil {
			b.bindType(f.TypeAnnotation)
		}
	}

	members := newScope(ScopeKindStruct)

	for _, f := range s.Fields {
		if _, dup := members.Symbols[f.Name]; dup {
			b.errorAt(f.Span, diagnostic.BindRedeclared, f.Name)

			continue
		}

		members.Symbols[f.Name] = f
	}

	for _, m := range s.Methods {
		if _, dup := members.Symbols[m.Name]; dup {
			b.errorAt(m.NameSpan, diagnostic.BindRedeclared, m.Name)

			continue
		}

		members.Symbols[m.Name] = m
	}

	b.locals.push(members)
	defer b.locals.pop()

	for _, m := range s.Methods {
		if m.Self == nil {
			m.Self = &ast.Parameter{Name: "self"}
			m.Self.Span = m.NameSpan
		}

		b.method = m
		b.bindFunction(m)
		b.method = nil
	}
}

func (b *binder) bindBlock(block *ast.BlockStatement) {
	b.locals.push(newScope(ScopeKindBlock))
	defer b.locals.pop()

	for _, s := range block.Statements {
		b.bindStmt(s)
	}
}

func (b *binder) bindStmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.VariableDeclaration:
		if s.TypeAnnotation != nil {
			b.bindType(s.TypeAnnotation)
		}

		if s.Value != nil {
			b.bindExpr(s.Value)
		}

		if s.IsGlobal {
			return
		}

		if !b.locals.declare(s.Name, s) {
			b.errorAt(s.Span, diagnostic.BindRedeclared, s.Name)
		}
	case *ast.ExpressionStatement:
		b.bindExpr(s.Expression)
	case *ast.AssignStatement:
		b.bindExpr(s.Target)
		b.bindExpr(s.Value)
	case *ast.BlockStatement:
		b.bindBlock(s)
	case *ast.IfStatement:
		b.bindExpr(s.Condition)
		b.bindBlock(s.Then)

		if s.Else != nil {
			b.bindStmt(s.Else)
		}
	case *ast.WhileStatement:
		b.bindExpr(s.Condition)
		b.bindBlock(s.Body)
	case *ast.ReturnStatement:
		if s.Value != nil {
			b.bindExpr(s.Value)
		}
	case *ast.BreakStatement, *ast.ContinueStatement, *ast.BadStatement:
	}
}

func (b *binder) bindExpr(e ast.Expr) {
	switch e := e.(type) {
	case *ast.Identifier:
		b.resolveValue(e, nil)
	case *ast.IntegerLiteral, *ast.FloatLiteral, *ast.BoolLiteral, *ast.StringLiteral, *ast.BadExpression:
	case *ast.InterpolatedString:
		for _, p := range e.Parts {
			b.bindExpr(p)
		}
	case *ast.SequenceExpression:
		b.bindSequence(e)
	case *ast.BinaryExpression:
		b.bindExpr(e.Left)
		b.bindExpr(e.Right)

		if e.Operator.Ref == nil {
			b.resolveValue(e.Operator, operatorFunc(ast.FixityInfix))
		}
	case *ast.PrefixExpression:
		b.bindPrefix(e)
	case *ast.CallExpression:
		b.bindExpr(e.Callee)

		for _, a := range e.Arguments {
			b.bindExpr(a)
		}
	case *ast.MemberExpression:
		b.bindExpr(e.Object)
	case *ast.ClosureExpression:
		b.bindClosure(e)
	}
}

func (b *binder) bindClosure(c *ast.ClosureExpression) {
	for _, p := range c.Parameters {
		b.bindType(p.TypeAnnotation)
	}

	if c.ReturnType != nil {
		b.bindType(c.ReturnType)
	}

	sc := newScope(ScopeKindClosure)
	sc.Closure = c

	b.locals.push(sc)
	defer b.locals.pop()

	for _, p := range c.Parameters {
		if !b.locals.declare(p.Name, p) {
			b.errorAt(p.Span, diagnostic.BindRedeclared, p.Name)
		}
	}

	b.bindBlock(c.Body)
}

func (b *binder) bindPrefix(e *ast.PrefixExpression) {
	b.bindExpr(e.Operand)

	if len(b.lookupGlobal(session.NamespacePrefix, e.Operator.Name, nil)) == 0 {
		b.errorAt(e.Operator.Span, diagnostic.BindUnknownOperator, e.Operator.Name)
		e.Operator.Ref = ast.ErrorDecl
		b.result.Unresolved++

		return
	}

	b.resolveValue(e.Operator, operatorFunc(ast.FixityPrefix))
}

func (b *binder) bindType(t ast.TypeExpr) {
	switch t := t.(type) {
	case *ast.TypeName:
		for _, a := range t.Arguments {
			b.bindType(a)
		}

		t.Ref = b.resolveType(t.Name, t.Span)
	case *ast.FunctionTypeExpr:
		for _, p := range t.Params {
			b.bindType(p)
		}

		b.bindType(t.Result)
	case *ast.BadTypeExpr:
	}
}
