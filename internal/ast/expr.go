package ast

import (
	"github.com/orizon-lang/ozc/internal/position"
	"github.com/orizon-lang/ozc/internal/types"
)

// Identifier is a name reference. Operators in sequences and prefix
// expressions are identifiers spelled with operator characters.
type Identifier struct {
	NodeBase
	Name string
	// Ref is the declaration the name binds to.
	Ref Decl
	// Substitution records the archetype bindings when Ref is generic.
	Substitution types.Substitution
}

// IntegerLiteral is an integer constant; its type is inferred.
type IntegerLiteral struct {
	NodeBase
	Raw   string
	Value int64
}

// FloatLiteral is a floating-point constant.
type FloatLiteral struct {
	NodeBase
	Raw   string
	Value float64
}

// BoolLiteral is true or false.
type BoolLiteral struct {
	NodeBase
	Value bool
}

// StringLiteral is a string constant with escapes decoded.
type StringLiteral struct {
	NodeBase
	Value string
}

// InterpolatedString alternates *StringLiteral text and embedded
// expressions.
type InterpolatedString struct {
	NodeBase
	Parts []Expr
}

// SequenceExpression is an unfolded run `e0 op1 e1 op2 e2 ...` as parsed.
// Binding folds it by operator precedence into Folded.
type SequenceExpression struct {
	NodeBase
	Operands  []Expr
	Operators []*Identifier
	Folded    Expr
}

// BinaryExpression is an infix operator application produced by folding.
type BinaryExpression struct {
	NodeBase
	Left     Expr
	Operator *Identifier
	Right    Expr
}

// PrefixExpression is a prefix operator application.
type PrefixExpression struct {
	NodeBase
	Operator *Identifier
	Operand  Expr
}

// CallExpression applies a callee to arguments. When the callee names a
// struct the call is its memberwise initializer.
type CallExpression struct {
	NodeBase
	Callee    Expr
	Arguments []Expr
}

// MemberExpression selects a field or method.
type MemberExpression struct {
	NodeBase
	Object     Expr
	Member     string
	MemberSpan position.Span
	// Ref is the field (*VariableDeclaration) or method
	// (*FunctionDeclaration) selected during checking.
	Ref Decl
	// Substitution records the archetype bindings of a generic method.
	Substitution types.Substitution
}

// ClosureExpression is `{ (params) -> Result in body }`.
type ClosureExpression struct {
	NodeBase
	Parameters []*Parameter
	ReturnType TypeExpr // nil: inferred for single expressions, Void otherwise
	Body       *BlockStatement
	// SingleExpression marks a body consisting of one expression whose
	// value is the closure result.
	SingleExpression bool
	// Captures lists enclosing locals referenced by the body, in first-use
	// order.
	Captures []Decl
}

// BadExpression is the placeholder for an expression that failed to parse.
type BadExpression struct{ NodeBase }

func (*Identifier) exprNode()         {}
func (*IntegerLiteral) exprNode()     {}
func (*FloatLiteral) exprNode()       {}
func (*BoolLiteral) exprNode()        {}
func (*StringLiteral) exprNode()      {}
func (*InterpolatedString) exprNode() {}
func (*SequenceExpression) exprNode() {}
func (*BinaryExpression) exprNode()   {}
func (*PrefixExpression) exprNode()   {}
func (*CallExpression) exprNode()     {}
func (*MemberExpression) exprNode()   {}
func (*ClosureExpression) exprNode()  {}
func (*BadExpression) exprNode()      {}

func (n *Identifier) String() string         { return n.Name }
func (n *IntegerLiteral) String() string     { return n.Raw }
func (n *FloatLiteral) String() string       { return n.Raw }
func (n *BoolLiteral) String() string        { return Format(n) }
func (n *StringLiteral) String() string      { return Format(n) }
func (n *InterpolatedString) String() string { return Format(n) }
func (n *SequenceExpression) String() string { return Format(n) }
func (n *BinaryExpression) String() string   { return Format(n) }
func (n *PrefixExpression) String() string   { return Format(n) }
func (n *CallExpression) String() string     { return Format(n) }
func (n *MemberExpression) String() string   { return Format(n) }
func (n *ClosureExpression) String() string  { return Format(n) }
func (n *BadExpression) String() string      { return "<bad expression>" }

// Unfold returns the folded tree of a sequence, or e itself.
func Unfold(e Expr) Expr {
	for {
		seq, ok := e.(*SequenceExpression)
		if !ok || seq.Folded == nil {
			return e
		}

		e = seq.Folded
	}
}

// TypeName is a named type reference such as Int or Rect.
type TypeName struct {
	NodeBase
	Name      string
	Arguments []TypeExpr
	Ref       Decl
}

// FunctionTypeExpr is `(T1, T2) -> R`.
type FunctionTypeExpr struct {
	NodeBase
	Params []TypeExpr
	Result TypeExpr
}

// BadTypeExpr is the placeholder for a type that failed to parse.
type BadTypeExpr struct{ NodeBase }

func (*TypeName) typeExprNode()         {}
func (*FunctionTypeExpr) typeExprNode() {}
func (*BadTypeExpr) typeExprNode()      {}

func (n *TypeName) String() string         { return Format(n) }
func (n *FunctionTypeExpr) String() string { return Format(n) }
func (n *BadTypeExpr) String() string      { return "<bad type>" }
