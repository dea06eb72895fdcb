package ast

// Children returns the direct children of n in source order. A folded
// sequence reports its folded tree instead of the flat operand list.
func Children(n Node) []Node {
	var out []Node

	add := func(c Node) {
		out = append(out, c)
	}

	switch n := n.(type) {
	// declarations
	case *ImportDeclaration, *PrecedenceGroupDeclaration, *OperatorDeclaration,
		*MIRDeclaration, *BadDeclaration, *BuiltinDeclaration:
	case *FunctionDeclaration:
		for _, g := range n.Generics {
			add(g)
		}

		for _, p := range n.Parameters {
			add(p)
		}

		if n.ReturnType != nil {
			add(n.ReturnType)
		}

		if n.Body != nil {
			add(n.Body)
		}
	case *Parameter:
		if n.TypeAnnotation != nil {
			add(n.TypeAnnotation)
		}
	case *GenericParameter:
		for _, c := range n.Constraints {
			add(c)
		}
	case *StructDeclaration:
		for _, c := range n.Conformances {
			add(c)
		}

		for _, f := range n.Fields {
			add(f)
		}

		for _, m := range n.Methods {
			add(m)
		}
	case *ProtocolDeclaration:
		for _, r := range n.Requirements {
			add(r)
		}

	// statements
	case *VariableDeclaration:
		if n.TypeAnnotation != nil {
			add(n.TypeAnnotation)
		}

		if n.Value != nil {
			add(n.Value)
		}
	case *ExpressionStatement:
		add(n.Expression)
	case *AssignStatement:
		add(n.Target)
		add(n.Value)
	case *BlockStatement:
		for _, s := range n.Statements {
			add(s)
		}
	case *IfStatement:
		add(n.Condition)
		add(n.Then)

		if n.Else != nil {
			add(n.Else)
		}
	case *WhileStatement:
		add(n.Condition)
		add(n.Body)
	case *ReturnStatement:
		if n.Value != nil {
			add(n.Value)
		}
	case *BreakStatement, *ContinueStatement, *BadStatement:

	// expressions
	case *Identifier, *IntegerLiteral, *FloatLiteral, *BoolLiteral, *StringLiteral, *BadExpression:
	case *InterpolatedString:
		for _, p := range n.Parts {
			add(p)
		}
	case *SequenceExpression:
		if n.Folded != nil {
			add(n.Folded)

			break
		}

		for i, e := range n.Operands {
			if i > 0 {
				add(n.Operators[i-1])
			}

			add(e)
		}
	case *BinaryExpression:
		add(n.Left)
		add(n.Operator)
		add(n.Right)
	case *PrefixExpression:
		add(n.Operator)
		add(n.Operand)
	case *CallExpression:
		add(n.Callee)

		for _, a := range n.Arguments {
			add(a)
		}
	case *MemberExpression:
		add(n.Object)
	case *ClosureExpression:
		for _, p := range n.Parameters {
			add(p)
		}

		if n.ReturnType != nil {
			add(n.ReturnType)
		}

		add(n.Body)

	// types
	case *TypeName:
		for _, a := range n.Arguments {
			add(a)
		}
	case *FunctionTypeExpr:
		for _, p := range n.Params {
			add(p)
		}

		add(n.Result)
	case *BadTypeExpr:
	}

	return out
}

// Inspect traverses the tree rooted at n in depth-first order, calling f
// for each node. When f returns false the node's children are skipped.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}

	for _, c := range Children(n) {
		Inspect(c, f)
	}
}
