package typechecker

import (
	"fmt"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/session"
	"github.com/orizon-lang/ozc/internal/types"
)

// TypeExprOptions configure CheckTypeExpr.
type TypeExprOptions struct {
	// Diagnose emits problems to the session in addition to returning
	// them.
	Diagnose bool
	// Generics makes the archetypes of a signature visible by name.
	Generics *types.GenericSignature
}

// CheckTypeExpr resolves a type expression outside of any unit. Type names
// without a binding are looked up in scope (the session scope when nil),
// then among the builtin types. The error describes the first problem.
func CheckTypeExpr(sess *session.Session, scope *session.ScopeTable, expr ast.TypeExpr, opts TypeExprOptions) (types.Type, error) {
	c := newChecker(sess)
	if scope != nil {
		c.scope = scope
	}

	var first *diagnostic.Diagnostic

	c.emit = func(d diagnostic.Diagnostic) {
		if first == nil {
			first = &d
		}

		if opts.Diagnose {
			sess.Emit(d)
		}
	}

	t := c.resolveType(expr, opts.Generics)

	switch {
	case first != nil:
		return t, fmt.Errorf("%s", diagnostic.Format(*first))
	case types.ContainsError(t):
		return t, fmt.Errorf("invalid type %s", expr)
	}

	return t, nil
}

// resolveType resolves te in a position that needs a value type.
func (c *checker) resolveType(te ast.TypeExpr, sig *types.GenericSignature) types.Type {
	return c.typeExpr(te, sig, false)
}

func (c *checker) typeExpr(te ast.TypeExpr, sig *types.GenericSignature, protocols bool) types.Type {
	if te == nil {
		return types.ErrorType
	}

	if te.Base().HasType() {
		return te.Base().Type()
	}

	var t types.Type

	switch te := te.(type) {
	case *ast.TypeName:
		t = c.typeName(te, sig, protocols)
	case *ast.FunctionTypeExpr:
		ft := &types.FunctionType{}
		for _, p := range te.Params {
			ft.Params = append(ft.Params, c.resolveType(p, sig))
		}

		ft.Result = c.resolveType(te.Result, sig)
		t = ft
	default:
		t = types.ErrorType
	}

	te.Base().SetType(t)

	return t
}

func (c *checker) typeName(te *ast.TypeName, sig *types.GenericSignature, protocols bool) types.Type {
	if len(te.Arguments) > 0 {
		c.errorAt(te.Span, diagnostic.TypeGenericArity, te.Name)

		return types.ErrorType
	}

	d := te.Ref
	if d == nil {
		if sig != nil {
			if a := sig.Param(te.Name); a != nil {
				return a
			}
		}

		if d = c.lookupType(te.Name); d == nil {
			c.errorAt(te.Span, diagnostic.BindNotAType, te.Name)

			return types.ErrorType
		}
	}

	var t types.Type

	switch d := d.(type) {
	case *ast.GenericParameter:
		if d.Archetype == nil {
			return types.ErrorType
		}

		return d.Archetype
	case *ast.StructDeclaration:
		st, ok := c.structType(d)
		if !ok {
			return types.ErrorType
		}

		return st
	case *ast.ProtocolDeclaration:
		t = c.protocolType(d)
	case *ast.BuiltinDeclaration:
		if d.Kind != ast.BuiltinType || d.Value == nil {
			return types.ErrorType
		}

		t = d.Value
	default:
		return types.ErrorType
	}

	if _, ok := t.(*types.ProtocolType); ok && !protocols {
		c.errorAt(te.Span, diagnostic.TypeNotAValue, te.Name)

		return types.ErrorType
	}

	return t
}

// lookupType finds an unbound type name among the declarations of the
// scope table and the builtins.
func (c *checker) lookupType(name string) ast.Decl {
	for _, s := range c.scope.Lookup(session.NamespaceValue, name) {
		switch s.Decl.(type) {
		case *ast.StructDeclaration, *ast.ProtocolDeclaration:
			return s.Decl
		}
	}

	if t, ok := types.LookupBuiltin(name); ok {
		return &ast.BuiltinDeclaration{Name: name, Kind: ast.BuiltinType, Value: t}
	}

	return nil
}
