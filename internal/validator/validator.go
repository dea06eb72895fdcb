// Package validator checks the structural invariants the phases rely on.
// It never modifies what it inspects. Problems are internal failures, not
// user diagnostics: they come back as an *errors.StandardError of category
// INVARIANT and the pipeline stops processing the unit.
package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/errors"
)

// report accumulates the problems of one validation run.
type report struct {
	code     string
	problems []string
}

func (r *report) fail(format string, args ...any) {
	r.problems = append(r.problems, fmt.Sprintf(format, args...))
}

func (r *report) err() error {
	if len(r.problems) == 0 {
		return nil
	}

	e := errors.Invariant(r.code, "%s", strings.Join(r.problems, "; "))
	e.Context = map[string]interface{}{"problems": len(r.problems)}

	return e
}

// ValidateUnit checks every element phase has completed: arena
// registration, parent links and non-nil children always, populated type
// slots once phase is ast.PhaseCheck or later.
func ValidateUnit(unit *ast.SourceUnit, phase ast.Phase) error {
	r := &report{code: "AST_INVALID"}

	done := unit.Progress.Done(phase)

	for i := 0; i < done && i < len(unit.Elements); i++ {
		validateElement(r, unit, unit.Elements[i], phase)
	}

	return r.err()
}

// ValidateDecl checks one top-level element of unit.
func ValidateDecl(unit *ast.SourceUnit, n ast.Node, phase ast.Phase) error {
	r := &report{code: "AST_INVALID"}

	if unit.IndexOf(n) < 0 {
		r.fail("%s is not an element of unit %s", n, unit.Name)

		return r.err()
	}

	validateElement(r, unit, n, phase)

	return r.err()
}

func validateElement(r *report, unit *ast.SourceUnit, n ast.Node, phase ast.Phase) {
	if n.Base().Parent != ast.NoNode {
		r.fail("top-level %T at %s has parent %d", n, n.GetSpan(), n.Base().Parent)
	}

	validateTree(r, unit, n)

	if phase >= ast.PhaseCheck {
		validateTypes(r, n)
	}
}

func validateTree(r *report, unit *ast.SourceUnit, n ast.Node) {
	id := n.Base().ID
	if id == ast.NoNode || unit.Node(id) != n {
		r.fail("%T at %s is not registered in the arena of %s", n, n.GetSpan(), unit.Name)
	}

	for i, c := range ast.Children(n) {
		if isNil(c) {
			r.fail("%T at %s has nil child %d", n, n.GetSpan(), i)

			continue
		}

		if c.Base().Parent != id {
			r.fail("%T at %s has parent %d, want %d", c, c.GetSpan(), c.Base().Parent, id)
		}

		validateTree(r, unit, c)
	}
}

// validateTypes requires a type on every expression and value
// declaration. Deferred bodies are not checked yet.
func validateTypes(r *report, n ast.Node) {
	ast.Inspect(n, func(c ast.Node) bool {
		if isNil(c) {
			return false
		}

		switch c := c.(type) {
		case *ast.FunctionDeclaration:
			if c.Protocol == nil && !c.Base().HasType() {
				r.fail("function %s has no type", c.QualifiedName())
			}

			if c.Deferred {
				return false
			}
		case *ast.VariableDeclaration:
			if !c.Base().HasType() {
				r.fail("variable %s at %s has no type", c.Name, c.GetSpan())
			}
		case *ast.StructDeclaration:
			if !c.Base().HasType() {
				r.fail("struct %s has no type", c.Name)
			}
		case *ast.ProtocolDeclaration:
			return false
		case ast.Expr:
			if !c.Base().HasType() {
				r.fail("expression %s at %s has no type", c, c.GetSpan())
			}
		}

		return true
	})
}

func isNil(n ast.Node) bool {
	if n == nil {
		return true
	}

	v := reflect.ValueOf(n)

	return v.Kind() == reflect.Ptr && v.IsNil()
}
