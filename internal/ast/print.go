package ast

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Format renders n as compact source text. Function bodies that are still
// deferred print as `{ ... }`.
func Format(n Node) string {
	var b strings.Builder

	writeNode(&b, n)

	return b.String()
}

func joinNodes[T Node](nodes []T, sep string) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = Format(n)
	}

	return strings.Join(parts, sep)
}

func writeNode(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case *ImportDeclaration:
		fmt.Fprintf(b, "import %s", n.Module)
	case *PrecedenceGroupDeclaration:
		fmt.Fprintf(b, "precedencegroup %s {", n.Name)

		if len(n.HigherThan) > 0 {
			fmt.Fprintf(b, " higherThan: %s", strings.Join(n.HigherThan, ", "))
		}

		if len(n.LowerThan) > 0 {
			fmt.Fprintf(b, " lowerThan: %s", strings.Join(n.LowerThan, ", "))
		}

		fmt.Fprintf(b, " associativity: %s }", n.Associativity)
	case *OperatorDeclaration:
		fmt.Fprintf(b, "%s operator %s", n.Fixity, n.Operator)

		if n.Group != "" {
			fmt.Fprintf(b, " : %s", n.Group)
		}
	case *FunctionDeclaration:
		if n.IsPrivate {
			b.WriteString("private ")
		}

		fmt.Fprintf(b, "func %s", n.Name)

		if len(n.Generics) > 0 {
			fmt.Fprintf(b, "<%s>", joinNodes(n.Generics, ", "))
		}

		fmt.Fprintf(b, "(%s)", joinNodes(n.Parameters, ", "))

		if n.ReturnType != nil {
			fmt.Fprintf(b, " -> %s", Format(n.ReturnType))
		}

		switch {
		case n.Deferred:
			b.WriteString(" { ... }")
		case n.Body != nil:
			b.WriteString(" ")
			writeNode(b, n.Body)
		}
	case *Parameter:
		fmt.Fprintf(b, "%s: %s", n.Name, formatOpt(n.TypeAnnotation))
	case *GenericParameter:
		b.WriteString(n.Name)

		if len(n.Constraints) > 0 {
			fmt.Fprintf(b, ": %s", joinNodes(n.Constraints, " & "))
		}
	case *StructDeclaration:
		fmt.Fprintf(b, "struct %s", n.Name)

		if len(n.Conformances) > 0 {
			fmt.Fprintf(b, ": %s", joinNodes(n.Conformances, ", "))
		}

		b.WriteString(" {")

		for _, f := range n.Fields {
			fmt.Fprintf(b, " %s;", Format(f))
		}

		for _, m := range n.Methods {
			fmt.Fprintf(b, " %s;", Format(m))
		}

		b.WriteString(" }")
	case *ProtocolDeclaration:
		fmt.Fprintf(b, "protocol %s {", n.Name)

		for _, r := range n.Requirements {
			fmt.Fprintf(b, " %s;", Format(r))
		}

		b.WriteString(" }")
	case *MIRDeclaration:
		b.WriteString("mir { ... }")
	case *BadDeclaration:
		b.WriteString("<bad declaration>")
	case *BuiltinDeclaration:
		b.WriteString(n.Name)

	case *VariableDeclaration:
		if n.IsPrivate {
			b.WriteString("private ")
		}

		fmt.Fprintf(b, "%s %s", n.Kind, n.Name)

		if n.TypeAnnotation != nil {
			fmt.Fprintf(b, ": %s", Format(n.TypeAnnotation))
		}

		if n.Value != nil {
			fmt.Fprintf(b, " = %s", Format(n.Value))
		}
	case *ExpressionStatement:
		writeNode(b, n.Expression)
	case *AssignStatement:
		fmt.Fprintf(b, "%s = %s", Format(n.Target), Format(n.Value))
	case *BlockStatement:
		if len(n.Statements) == 0 {
			b.WriteString("{}")

			break
		}

		fmt.Fprintf(b, "{ %s }", joinNodes(n.Statements, "; "))
	case *IfStatement:
		fmt.Fprintf(b, "if %s %s", Format(n.Condition), Format(n.Then))

		if n.Else != nil {
			fmt.Fprintf(b, " else %s", Format(n.Else))
		}
	case *WhileStatement:
		fmt.Fprintf(b, "while %s %s", Format(n.Condition), Format(n.Body))
	case *ReturnStatement:
		b.WriteString("return")

		if n.Value != nil {
			fmt.Fprintf(b, " %s", Format(n.Value))
		}
	case *BreakStatement:
		b.WriteString("break")
	case *ContinueStatement:
		b.WriteString("continue")
	case *BadStatement:
		b.WriteString("<bad statement>")

	case *Identifier:
		b.WriteString(n.Name)
	case *IntegerLiteral:
		b.WriteString(n.Raw)
	case *FloatLiteral:
		b.WriteString(n.Raw)
	case *BoolLiteral:
		b.WriteString(strconv.FormatBool(n.Value))
	case *StringLiteral:
		b.WriteString(strconv.Quote(n.Value))
	case *InterpolatedString:
		b.WriteByte('"')

		for _, p := range n.Parts {
			if s, ok := p.(*StringLiteral); ok {
				q := strconv.Quote(s.Value)
				b.WriteString(q[1 : len(q)-1])

				continue
			}

			fmt.Fprintf(b, `\(%s)`, Format(p))
		}

		b.WriteByte('"')
	case *SequenceExpression:
		if n.Folded != nil {
			writeNode(b, n.Folded)

			break
		}

		for i, e := range n.Operands {
			if i > 0 {
				fmt.Fprintf(b, " %s ", n.Operators[i-1].Name)
			}

			writeNode(b, e)
		}
	case *BinaryExpression:
		fmt.Fprintf(b, "(%s %s %s)", Format(n.Left), n.Operator.Name, Format(n.Right))
	case *PrefixExpression:
		fmt.Fprintf(b, "%s%s", n.Operator.Name, Format(n.Operand))
	case *CallExpression:
		fmt.Fprintf(b, "%s(%s)", Format(n.Callee), joinNodes(n.Arguments, ", "))
	case *MemberExpression:
		fmt.Fprintf(b, "%s.%s", Format(n.Object), n.Member)
	case *ClosureExpression:
		fmt.Fprintf(b, "{ (%s)", joinNodes(n.Parameters, ", "))

		if n.ReturnType != nil {
			fmt.Fprintf(b, " -> %s", Format(n.ReturnType))
		}

		b.WriteString(" in")

		for _, s := range n.Body.Statements {
			fmt.Fprintf(b, " %s;", Format(s))
		}

		b.WriteString(" }")
	case *BadExpression:
		b.WriteString("<bad expression>")

	case *TypeName:
		b.WriteString(n.Name)

		if len(n.Arguments) > 0 {
			fmt.Fprintf(b, "<%s>", joinNodes(n.Arguments, ", "))
		}
	case *FunctionTypeExpr:
		fmt.Fprintf(b, "(%s) -> %s", joinNodes(n.Params, ", "), Format(n.Result))
	case *BadTypeExpr:
		b.WriteString("<bad type>")
	default:
		fmt.Fprintf(b, "<%T>", n)
	}
}

func formatOpt(n Node) string {
	if n == nil {
		return "_"
	}

	return Format(n)
}

// Dump writes an indented tree of n with node kinds and resolved types.
func Dump(w io.Writer, n Node) {
	dump(w, n, 0)
}

func dump(w io.Writer, n Node, depth int) {
	kind := strings.TrimPrefix(fmt.Sprintf("%T", n), "*ast.")
	line := kind

	switch n := n.(type) {
	case *Identifier:
		line += " " + n.Name
	case *FunctionDeclaration:
		line += " " + n.Name
	case *StructDeclaration:
		line += " " + n.Name
	case *ProtocolDeclaration:
		line += " " + n.Name
	case *VariableDeclaration:
		line += " " + n.Name
	case *Parameter:
		line += " " + n.Name
	case *TypeName:
		line += " " + n.Name
	case *MemberExpression:
		line += " ." + n.Member
	case *IntegerLiteral, *FloatLiteral, *BoolLiteral, *StringLiteral:
		line += " " + Format(n)
	}

	if t := n.Base().Type(); t != nil {
		line += " : " + t.String()
	}

	fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), line)

	for _, c := range Children(n) {
		dump(w, c, depth+1)
	}
}
