package ast

// VarKind represents the kind of variable declaration.
type VarKind int

const (
	VarKindLet VarKind = iota // immutable
	VarKindVar                // mutable
)

func (vk VarKind) String() string {
	if vk == VarKindVar {
		return "var"
	}

	return "let"
}

// VariableDeclaration represents let/var bindings: locals, globals and
// struct fields. It is both a declaration and a statement.
type VariableDeclaration struct {
	NodeBase
	Name           string
	TypeAnnotation TypeExpr // nil for inferred
	Value          Expr     // nil for uninitialized
	Kind           VarKind
	IsPrivate      bool
	IsGlobal       bool
	// Owner is the struct declaring a field, or nil.
	Owner *StructDeclaration
}

// ExpressionStatement evaluates an expression for its effect.
type ExpressionStatement struct {
	NodeBase
	Expression Expr
}

// AssignStatement stores a value into a variable or field.
type AssignStatement struct {
	NodeBase
	Target Expr
	Value  Expr
}

// BlockStatement is a braced statement list.
type BlockStatement struct {
	NodeBase
	Statements []Stmt
}

// IfStatement is a conditional. Else is nil, a *BlockStatement or an
// *IfStatement.
type IfStatement struct {
	NodeBase
	Condition Expr
	Then      *BlockStatement
	Else      Stmt
}

// WhileStatement is a pre-tested loop.
type WhileStatement struct {
	NodeBase
	Condition Expr
	Body      *BlockStatement
}

// ReturnStatement returns from the enclosing function or closure.
type ReturnStatement struct {
	NodeBase
	Value Expr // nil for a bare return
}

// BreakStatement exits the innermost loop.
type BreakStatement struct{ NodeBase }

// ContinueStatement restarts the innermost loop.
type ContinueStatement struct{ NodeBase }

// BadStatement is the placeholder for a statement that failed to parse.
type BadStatement struct{ NodeBase }

func (*VariableDeclaration) declNode() {}
func (*VariableDeclaration) stmtNode() {}
func (*ExpressionStatement) stmtNode() {}
func (*AssignStatement) stmtNode()     {}
func (*BlockStatement) stmtNode()      {}
func (*IfStatement) stmtNode()         {}
func (*WhileStatement) stmtNode()      {}
func (*ReturnStatement) stmtNode()     {}
func (*BreakStatement) stmtNode()      {}
func (*ContinueStatement) stmtNode()   {}
func (*BadStatement) stmtNode()        {}

func (n *VariableDeclaration) String() string { return Format(n) }
func (n *ExpressionStatement) String() string { return Format(n) }
func (n *AssignStatement) String() string     { return Format(n) }
func (n *BlockStatement) String() string      { return Format(n) }
func (n *IfStatement) String() string         { return Format(n) }
func (n *WhileStatement) String() string      { return Format(n) }
func (n *ReturnStatement) String() string     { return Format(n) }
func (n *BreakStatement) String() string      { return "break" }
func (n *ContinueStatement) String() string   { return "continue" }
func (n *BadStatement) String() string        { return "<bad statement>" }
