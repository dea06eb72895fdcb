// Package playground rewrites the top level of a main unit so that every
// value it computes passes through a log call. It runs between binding and
// type checking: the inserted calls are bound by construction and checked
// like any other call.
package playground

import (
	stderrors "errors"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/errors"
	"github.com/orizon-lang/ozc/internal/resolver"
	"github.com/orizon-lang/ozc/internal/session"
	"github.com/orizon-lang/ozc/internal/types"
)

// ErrAlreadyChecked is returned when the range to transform starts before
// the last type checked element.
var ErrAlreadyChecked = stderrors.New("playground transform over type checked elements")

// Result summarizes one Transform call.
type Result struct {
	From, To int
	// Wrapped counts the values wrapped in a log call.
	Wrapped int
}

// Transform wraps the initializers of top-level variables and the values
// of top-level expression statements of unit, from start up to the last
// bound element. Closures and calls known to return nothing are left
// alone. Values already wrapped are skipped, so repeated calls are
// harmless.
func Transform(sess *session.Session, unit *ast.SourceUnit, start int) (*Result, error) {
	if checked := unit.Progress.Done(ast.PhaseCheck); start < checked {
		return nil, errors.Usage(ErrAlreadyChecked, "PLAYGROUND_CHECKED", map[string]interface{}{
			"unit":    unit.Name,
			"start":   start,
			"checked": checked,
		})
	}

	res := &Result{From: start, To: unit.Progress.Done(ast.PhaseBind)}
	if res.To < res.From {
		res.To = res.From
	}

	decls := resolver.LookupBuiltin(resolver.LogBuiltin)
	if len(decls) != 1 {
		return nil, errors.Invariant("PLAYGROUND_NO_LOG", "prelude has %d %s builtins", len(decls), resolver.LogBuiltin)
	}

	log := decls[0]

	for _, e := range unit.Elements[res.From:res.To] {
		switch n := e.(type) {
		case *ast.VariableDeclaration:
			if _, fn := ast.Unfold(n.Value).(*ast.ClosureExpression); n.Value != nil && !fn && !logged(n.Value, log) {
				n.Value = wrap(unit, log, n.Value, n.ID)
				res.Wrapped++
			}
		case *ast.ExpressionStatement:
			if yieldsValue(n.Expression) && !logged(n.Expression, log) {
				n.Expression = wrap(unit, log, n.Expression, n.ID)
				res.Wrapped++
			}
		}
	}

	sess.Logger.Debug("playground %s: elements [%d, %d), %d values logged", unit.Name, res.From, res.To, res.Wrapped)

	return res, nil
}

func wrap(unit *ast.SourceUnit, log *ast.BuiltinDeclaration, e ast.Expr, parent ast.NodeID) ast.Expr {
	span := e.GetSpan()

	callee := &ast.Identifier{Name: log.Name, Ref: log}
	callee.Span = span

	call := &ast.CallExpression{Callee: callee, Arguments: []ast.Expr{e}}
	call.Span = span
	unit.Adopt(call, parent)

	return call
}

func logged(e ast.Expr, log *ast.BuiltinDeclaration) bool {
	call, ok := e.(*ast.CallExpression)
	if !ok {
		return false
	}

	id, ok := call.Callee.(*ast.Identifier)

	return ok && id.Ref == ast.Decl(log)
}

// yieldsValue reports whether e produces something worth logging. Calls
// count when their callee is bound to a declaration with a result.
func yieldsValue(e ast.Expr) bool {
	switch e := ast.Unfold(e).(type) {
	case *ast.ClosureExpression, *ast.BadExpression:
		return false
	case *ast.CallExpression:
		id, ok := ast.Unfold(e.Callee).(*ast.Identifier)
		if !ok {
			return false
		}

		switch d := id.Ref.(type) {
		case *ast.FunctionDeclaration:
			return d.ReturnType != nil
		case *ast.BuiltinDeclaration:
			return d.Func != nil && d.Func.Result != types.Void
		case *ast.StructDeclaration:
			return true
		}

		return false
	}

	return true
}
