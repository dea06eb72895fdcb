package ast

import (
	"github.com/orizon-lang/ozc/internal/position"
	"github.com/orizon-lang/ozc/internal/types"
)

// ImportDeclaration imports an external module by name.
type ImportDeclaration struct {
	NodeBase
	Module     string
	ModuleSpan position.Span
	// Version is the module version selected during binding.
	Version string
}

// Associativity of a precedence group.
type Associativity int

const (
	AssocNone Associativity = iota
	AssocLeft
	AssocRight
)

func (a Associativity) String() string {
	switch a {
	case AssocLeft:
		return "left"
	case AssocRight:
		return "right"
	default:
		return "none"
	}
}

// PrecedenceGroupDeclaration declares an operator precedence group.
type PrecedenceGroupDeclaration struct {
	NodeBase
	Name          string
	HigherThan    []string
	LowerThan     []string
	Associativity Associativity
}

// Fixity of a custom operator.
type Fixity int

const (
	FixityInfix Fixity = iota
	FixityPrefix
)

func (f Fixity) String() string {
	if f == FixityPrefix {
		return "prefix"
	}

	return "infix"
}

// OperatorDeclaration introduces an operator spelling.
type OperatorDeclaration struct {
	NodeBase
	Operator string
	Group    string // infix only; empty means the default group
	Fixity   Fixity
}

// FunctionDeclaration represents a function, method, operator
// implementation or protocol requirement.
type FunctionDeclaration struct {
	NodeBase
	Name       string
	NameSpan   position.Span
	Generics   []*GenericParameter
	Parameters []*Parameter
	ReturnType TypeExpr // nil means Void
	Body       *BlockStatement

	// BodyStart and BodyEnd delimit the body braces in the unit buffer.
	BodyStart int
	BodyEnd   int
	// Deferred is set while the body awaits deferred parsing.
	Deferred bool

	IsOperator bool
	IsPrivate  bool
	// Owner is the struct declaring a method, or nil.
	Owner *StructDeclaration
	// Protocol is the protocol declaring a requirement, or nil.
	Protocol *ProtocolDeclaration
	// Module is the external module providing an interface-only function.
	Module string

	// Signature holds the generic parameters once checked.
	Signature *types.GenericSignature
	// Self is the implicit receiver of a method, created during binding.
	Self *Parameter
}

// Parameter is a function or closure parameter.
type Parameter struct {
	NodeBase
	Name           string
	TypeAnnotation TypeExpr
}

// GenericParameter declares one archetype of a generic function.
type GenericParameter struct {
	NodeBase
	Name        string
	Constraints []TypeExpr
	Archetype   *types.Archetype
}

// StructDeclaration declares a struct with fields and methods.
type StructDeclaration struct {
	NodeBase
	Name         string
	Conformances []TypeExpr
	Fields       []*VariableDeclaration
	Methods      []*FunctionDeclaration
	Module       string
}

// ProtocolDeclaration declares a set of method requirements.
type ProtocolDeclaration struct {
	NodeBase
	Name         string
	Requirements []*FunctionDeclaration
	Module       string
}

// MIRDeclaration is a top-level `mir { ... }` block of textual MIR.
type MIRDeclaration struct {
	NodeBase
	Text      string
	TextStart int
	// Functions declares the functions the block defined. They are
	// callable from source like builtins.
	Functions []*BuiltinDeclaration
}

// BadDeclaration is the placeholder for a declaration that failed to
// parse, and the target of unresolved references.
type BadDeclaration struct {
	NodeBase
	Reason string
}

// BuiltinKind classifies builtin declarations.
type BuiltinKind int

const (
	BuiltinType BuiltinKind = iota
	BuiltinFunction
)

// BuiltinDeclaration is a prelude entity: a builtin type or protocol, or
// a builtin function such as an operator or print. Functions defined in
// textual MIR are builtins without an intrinsic. Builtins live outside
// every arena and are shared read-only.
type BuiltinDeclaration struct {
	NodeBase
	Name      string
	Kind      BuiltinKind
	Fixity    Fixity
	Value     types.Type // BuiltinType
	Signature *types.GenericSignature
	Func      *types.FunctionType
	Intrinsic string
}

// ErrorDecl is the shared declaration unresolved or ambiguous references
// bind to. Its type is the error sentinel.
var ErrorDecl = newErrorDecl()

func newErrorDecl() *BadDeclaration {
	d := &BadDeclaration{Reason: "unresolved"}
	d.SetType(types.ErrorType)

	return d
}

func (*ImportDeclaration) declNode()          {}
func (*PrecedenceGroupDeclaration) declNode() {}
func (*OperatorDeclaration) declNode()        {}
func (*FunctionDeclaration) declNode()        {}
func (*Parameter) declNode()                  {}
func (*GenericParameter) declNode()           {}
func (*StructDeclaration) declNode()          {}
func (*ProtocolDeclaration) declNode()        {}
func (*MIRDeclaration) declNode()             {}
func (*BadDeclaration) declNode()             {}
func (*BuiltinDeclaration) declNode()         {}

func (n *ImportDeclaration) String() string          { return Format(n) }
func (n *PrecedenceGroupDeclaration) String() string { return Format(n) }
func (n *OperatorDeclaration) String() string        { return Format(n) }
func (n *FunctionDeclaration) String() string        { return Format(n) }
func (n *Parameter) String() string                  { return Format(n) }
func (n *GenericParameter) String() string           { return Format(n) }
func (n *StructDeclaration) String() string          { return Format(n) }
func (n *ProtocolDeclaration) String() string        { return Format(n) }
func (n *MIRDeclaration) String() string             { return Format(n) }
func (n *BadDeclaration) String() string             { return Format(n) }
func (n *BuiltinDeclaration) String() string         { return n.Name }

// DeclName returns the name a declaration introduces, or "".
func DeclName(d Decl) string {
	switch d := d.(type) {
	case *FunctionDeclaration:
		return d.Name
	case *Parameter:
		return d.Name
	case *GenericParameter:
		return d.Name
	case *StructDeclaration:
		return d.Name
	case *ProtocolDeclaration:
		return d.Name
	case *VariableDeclaration:
		return d.Name
	case *PrecedenceGroupDeclaration:
		return d.Name
	case *OperatorDeclaration:
		return d.Operator
	case *BuiltinDeclaration:
		return d.Name
	case *ImportDeclaration:
		return d.Module
	}

	return ""
}

// IsGeneric reports whether f declares generic parameters.
func (f *FunctionDeclaration) IsGeneric() bool { return len(f.Generics) > 0 }

// QualifiedName returns "Owner.name" for methods and the plain name
// otherwise.
func (f *FunctionDeclaration) QualifiedName() string {
	if f.Owner != nil {
		return f.Owner.Name + "." + f.Name
	}

	if f.Module != "" {
		return f.Module + "." + f.Name
	}

	return f.Name
}
