package resolver

import (
	"strconv"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/position"
	"github.com/orizon-lang/ozc/internal/session"
)

// resolveValue binds id. Local scopes shadow the module scope, which
// shadows imported modules, which shadow the prelude. Several matches at
// the first level that has any make the reference ambiguous.
func (b *binder) resolveValue(id *ast.Identifier, accept func(ast.Decl) bool) {
	if d, index := b.locals.lookup(id.Name, accept); d != nil {
		b.noteCapture(d, index)
		id.Ref = d

		return
	}

	cands := b.lookupGlobal(session.NamespaceValue, id.Name, accept)
	id.Ref = b.pick(id.Name, id.Span, cands)
}

// pick reports missing or ambiguous candidates and returns the binding.
func (b *binder) pick(name string, span position.Span, cands []ast.Decl) ast.Decl {
	switch len(cands) {
	case 0:
		b.errorAt(span, diagnostic.BindUnresolved, name)
		b.result.Unresolved++

		return ast.ErrorDecl
	case 1:
		return cands[0]
	}

	b.errorAt(span, diagnostic.BindAmbiguous, name, strconv.Itoa(len(cands)))
	b.result.Ambiguous++

	return ast.ErrorDecl
}

func isTypeDecl(d ast.Decl) bool {
	switch d := d.(type) {
	case *ast.GenericParameter, *ast.StructDeclaration, *ast.ProtocolDeclaration:
		return true
	case *ast.BuiltinDeclaration:
		return d.Kind == ast.BuiltinType
	}

	return false
}

func (b *binder) resolveType(name string, span position.Span) ast.Decl {
	if d, _ := b.locals.lookup(name, isTypeDecl); d != nil {
		return d
	}

	d := b.pick(name, span, b.lookupGlobal(session.NamespaceValue, name, nil))
	if d == ast.ErrorDecl || isTypeDecl(d) {
		return d
	}

	b.errorAt(span, diagnostic.BindNotAType, name)

	return ast.ErrorDecl
}

// noteCapture records d as captured by every closure between the scope it
// was found in and the current one. Members found through implicit self
// capture the method's receiver instead.
func (b *binder) noteCapture(d ast.Decl, index int) {
	var captured ast.Decl

	switch b.locals.scopes[index].Kind {
	case ScopeKindGeneric:
		return
	case ScopeKindStruct:
		if b.method == nil || b.method.Self == nil {
			return
		}

		captured = b.method.Self
	default:
		captured = d
	}

	for _, c := range b.locals.closuresAbove(index) {
		addCapture(c, captured)
	}
}

func addCapture(c *ast.ClosureExpression, d ast.Decl) {
	for _, have := range c.Captures {
		if have == d {
			return
		}
	}

	c.Captures = append(c.Captures, d)
}

// namespaceOf reports whether a module export belongs to ns.
func namespaceOf(ns session.Namespace, d ast.Decl) bool {
	switch d := d.(type) {
	case *ast.OperatorDeclaration:
		if d.Fixity == ast.FixityPrefix {
			return ns == session.NamespacePrefix
		}

		return ns == session.NamespaceInfix
	case *ast.PrecedenceGroupDeclaration:
		return ns == session.NamespacePrecedence
	}

	return ns == session.NamespaceValue
}

// lookupGlobal returns the candidates for name at the first of the module
// scope, the imported modules and the prelude that has any.
func (b *binder) lookupGlobal(ns session.Namespace, name string, accept func(ast.Decl) bool) []ast.Decl {
	ok := func(d ast.Decl) bool { return accept == nil || accept(d) }

	var out []ast.Decl

	for _, s := range b.table.Lookup(ns, name) {
		if ok(s.Decl) {
			out = append(out, s.Decl)
		}
	}

	if len(out) > 0 {
		return out
	}

	for _, m := range b.imports {
		for _, d := range m.Lookup(name) {
			if namespaceOf(ns, d) && ok(d) {
				out = append(out, d)
			}
		}
	}

	if len(out) > 0 {
		return out
	}

	switch ns {
	case session.NamespaceValue:
		for _, d := range builtins.values[name] {
			if ok(d) {
				out = append(out, d)
			}
		}
	case session.NamespaceInfix:
		if d, found := builtins.infix[name]; found {
			out = append(out, d)
		}
	case session.NamespacePrefix:
		if d, found := builtins.prefix[name]; found {
			out = append(out, d)
		}
	case session.NamespacePrecedence:
		if d, found := builtins.groups[name]; found {
			out = append(out, d)
		}
	}

	return out
}

// operatorFunc accepts the implementations of an operator with the given
// fixity: builtins of that fixity and functions of matching arity.
func operatorFunc(fixity ast.Fixity) func(ast.Decl) bool {
	arity := 2
	if fixity == ast.FixityPrefix {
		arity = 1
	}

	return func(d ast.Decl) bool {
		switch d := d.(type) {
		case *ast.BuiltinDeclaration:
			return d.Kind == ast.BuiltinFunction && d.Fixity == fixity
		case *ast.FunctionDeclaration:
			return len(d.Parameters) == arity
		}

		return true
	}
}

// group resolves a precedence group name, or returns nil.
func (b *binder) group(name string) *ast.PrecedenceGroupDeclaration {
	cands := b.lookupGlobal(session.NamespacePrecedence, name, nil)
	if len(cands) == 0 {
		return nil
	}

	g, _ := cands[0].(*ast.PrecedenceGroupDeclaration)

	return g
}
