package resolver

import (
	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/session"
)

// foldOp is one infix operator of a sequence with its precedence group.
type foldOp struct {
	id    *ast.Identifier
	group *ast.PrecedenceGroupDeclaration
	known bool
}

// bindSequence binds the operands and operators of a flat sequence and
// folds it into a tree of BinaryExpressions.
func (b *binder) bindSequence(seq *ast.SequenceExpression) {
	if seq.Folded != nil {
		return
	}

	for _, e := range seq.Operands {
		b.bindExpr(e)
	}

	ops := make([]foldOp, len(seq.Operators))
	for i, id := range seq.Operators {
		ops[i] = b.infixOperator(id)
	}

	seq.Folded = b.fold(seq.Operands, ops)
	b.unit.Adopt(seq.Folded, seq.ID)
}

// infixOperator resolves the declaration, group and implementation of an
// infix operator.
func (b *binder) infixOperator(id *ast.Identifier) foldOp {
	def := foldOp{id: id, group: builtins.groups[GroupDefault]}

	decls := b.lookupGlobal(session.NamespaceInfix, id.Name, nil)
	if len(decls) == 0 {
		b.errorAt(id.Span, diagnostic.BindUnknownOperator, id.Name)
		b.result.Unresolved++
		id.Ref = ast.ErrorDecl

		return def
	}

	decl, _ := decls[0].(*ast.OperatorDeclaration)
	if decl != nil && decl.Group != "" {
		if g := b.group(decl.Group); g != nil {
			def.group = g
		}
	}

	def.known = true

	b.resolveValue(id, operatorFunc(ast.FixityInfix))

	return def
}

// fold builds the operator tree of operands and ops with an operator
// precedence stack. Adjacent operators of one group associate by the
// group's associativity; operators of different groups need an ordering
// between the groups. Only the first problem of a sequence is reported.
func (b *binder) fold(operands []ast.Expr, ops []foldOp) ast.Expr {
	out := []ast.Expr{operands[0]}
	stack := make([]foldOp, 0, len(ops))
	reported := false

	reduce := func() {
		op := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		l, r := out[len(out)-2], out[len(out)-1]
		out = out[:len(out)-2]

		bin := &ast.BinaryExpression{Left: l, Operator: op.id, Right: r}
		bin.Span = l.GetSpan().Union(r.GetSpan())
		out = append(out, bin)
	}

	for i, op := range ops {
		for len(stack) > 0 && b.reducesFirst(stack[len(stack)-1], op, &reported) {
			reduce()
		}

		stack = append(stack, op)
		out = append(out, operands[i+1])
	}

	for len(stack) > 0 {
		reduce()
	}

	return out[0]
}

// reducesFirst reports whether the operator on the stack binds tighter
// than next.
func (b *binder) reducesFirst(top, next foldOp, reported *bool) bool {
	report := func(code string) {
		if !*reported && top.known && next.known {
			b.errorAt(next.id.Span, code, top.id.Name, next.id.Name)
		}

		*reported = true
	}

	if top.group == next.group {
		switch top.group.Associativity {
		case ast.AssocLeft:
			return true
		case ast.AssocRight:
			return false
		}

		report(diagnostic.BindNonAssociative)

		return true
	}

	if b.higher(top.group, next.group) {
		return true
	}

	if b.higher(next.group, top.group) {
		return false
	}

	report(diagnostic.BindUnorderedPrecedence)

	return true
}

// higher reports whether group a binds tighter than c through a chain of
// higherThan and lowerThan relations.
func (b *binder) higher(a, c *ast.PrecedenceGroupDeclaration) bool {
	edges := b.precedenceEdges()
	seen := map[*ast.PrecedenceGroupDeclaration]bool{a: true}
	work := []*ast.PrecedenceGroupDeclaration{a}

	for len(work) > 0 {
		g := work[len(work)-1]
		work = work[:len(work)-1]

		for _, h := range edges[g] {
			if h == c {
				return true
			}

			if !seen[h] {
				seen[h] = true
				work = append(work, h)
			}
		}
	}

	return false
}

// precedenceEdges maps each visible group to the groups it is declared
// directly higher than.
func (b *binder) precedenceEdges() map[*ast.PrecedenceGroupDeclaration][]*ast.PrecedenceGroupDeclaration {
	if b.groupEdges != nil {
		return b.groupEdges
	}

	groups := append([]*ast.PrecedenceGroupDeclaration(nil), builtins.order...)

	for _, name := range b.table.Names(session.NamespacePrecedence) {
		for _, s := range b.table.Lookup(session.NamespacePrecedence, name) {
			if g, ok := s.Decl.(*ast.PrecedenceGroupDeclaration); ok {
				groups = append(groups, g)
			}
		}
	}

	for _, m := range b.imports {
		for _, decls := range m.Exports() {
			for _, d := range decls {
				if g, ok := d.(*ast.PrecedenceGroupDeclaration); ok {
					groups = append(groups, g)
				}
			}
		}
	}

	edges := make(map[*ast.PrecedenceGroupDeclaration][]*ast.PrecedenceGroupDeclaration)

	for _, g := range groups {
		for _, name := range g.HigherThan {
			if h := b.group(name); h != nil {
				edges[g] = append(edges[g], h)
			}
		}

		for _, name := range g.LowerThan {
			if l := b.group(name); l != nil {
				edges[l] = append(edges[l], g)
			}
		}
	}

	b.groupEdges = edges

	return edges
}
