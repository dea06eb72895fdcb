package resolver

import (
	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/types"
)

// Names of the builtin precedence groups.
const (
	GroupMultiplication     = "Multiplication"
	GroupAddition           = "Addition"
	GroupComparison         = "Comparison"
	GroupLogicalConjunction = "LogicalConjunction"
	GroupLogicalDisjunction = "LogicalDisjunction"
	GroupDefault            = "DefaultPrecedence"
)

// prelude holds the builtin declarations visible in every unit. It is
// built once and only read afterwards.
type prelude struct {
	values map[string][]*ast.BuiltinDeclaration
	groups map[string]*ast.PrecedenceGroupDeclaration
	infix  map[string]*ast.OperatorDeclaration
	prefix map[string]*ast.OperatorDeclaration
	order  []*ast.PrecedenceGroupDeclaration
}

var builtins = newPrelude()

func newPrelude() *prelude {
	p := &prelude{
		values: make(map[string][]*ast.BuiltinDeclaration),
		groups: make(map[string]*ast.PrecedenceGroupDeclaration),
		infix:  make(map[string]*ast.OperatorDeclaration),
		prefix: make(map[string]*ast.OperatorDeclaration),
	}

	for _, t := range types.Builtins() {
		p.add(&ast.BuiltinDeclaration{Name: t.String(), Kind: ast.BuiltinType, Value: t})
	}

	p.group(GroupMultiplication, ast.AssocLeft, GroupAddition)
	p.group(GroupAddition, ast.AssocLeft, GroupComparison)
	p.group(GroupComparison, ast.AssocNone, GroupLogicalConjunction)
	p.group(GroupLogicalConjunction, ast.AssocLeft, GroupLogicalDisjunction)
	p.group(GroupLogicalDisjunction, ast.AssocLeft)
	p.group(GroupDefault, ast.AssocNone, GroupComparison)

	arith := map[string]string{"+": "add", "-": "sub", "*": "mul", "/": "div", "%": "rem"}
	for _, op := range []string{"+", "-", "*", "/", "%"} {
		group := GroupAddition
		if op != "+" && op != "-" {
			group = GroupMultiplication
		}

		p.operator(op, ast.FixityInfix, group)
		p.add(genericOperator(op, arith[op], ast.FixityInfix, types.Numeric, 2, false))
	}

	for op, name := range map[string]string{"==": "eq", "!=": "ne"} {
		p.operator(op, ast.FixityInfix, GroupComparison)
		p.add(genericOperator(op, name, ast.FixityInfix, types.Equatable, 2, true))
	}

	for op, name := range map[string]string{"<": "lt", "<=": "le", ">": "gt", ">=": "ge"} {
		p.operator(op, ast.FixityInfix, GroupComparison)
		p.add(genericOperator(op, name, ast.FixityInfix, types.Comparable, 2, true))
	}

	p.operator("&&", ast.FixityInfix, GroupLogicalConjunction)
	p.add(function("&&", "and", ast.FixityInfix, types.Bool, types.Bool, types.Bool))
	p.operator("||", ast.FixityInfix, GroupLogicalDisjunction)
	p.add(function("||", "or", ast.FixityInfix, types.Bool, types.Bool, types.Bool))

	p.operator("-", ast.FixityPrefix, "")
	p.add(genericOperator("-", "neg", ast.FixityPrefix, types.Numeric, 1, false))
	p.operator("!", ast.FixityPrefix, "")
	p.add(function("!", "not", ast.FixityPrefix, types.Bool, types.Bool))

	p.add(function("print", "print", ast.FixityInfix, types.Void, types.String))
	p.add(logFunction())

	return p
}

// LogBuiltin names the identity function the playground transform wraps
// values in. The name cannot be written in source.
const LogBuiltin = "$log"

// logFunction builds `<T>(T) -> T`, lowered to the log intrinsic.
func logFunction() *ast.BuiltinDeclaration {
	b := types.NewArchetypeBuilder(LogBuiltin)
	t := b.AddParam("T")

	sig, err := b.Build()
	if err != nil {
		panic(err)
	}

	return &ast.BuiltinDeclaration{
		Name:      LogBuiltin,
		Kind:      ast.BuiltinFunction,
		Signature: sig,
		Func:      &types.FunctionType{Params: []types.Type{t}, Result: t},
		Intrinsic: "log",
	}
}

func (p *prelude) add(d *ast.BuiltinDeclaration) {
	p.values[d.Name] = append(p.values[d.Name], d)
}

func (p *prelude) group(name string, assoc ast.Associativity, higherThan ...string) {
	g := &ast.PrecedenceGroupDeclaration{Name: name, HigherThan: higherThan, Associativity: assoc}
	p.groups[name] = g
	p.order = append(p.order, g)
}

func (p *prelude) operator(op string, fixity ast.Fixity, group string) {
	d := &ast.OperatorDeclaration{Operator: op, Fixity: fixity, Group: group}
	if fixity == ast.FixityPrefix {
		p.prefix[op] = d
	} else {
		p.infix[op] = d
	}
}

// genericOperator builds `<T: proto>(T, ...) -> T` or `-> Bool`.
func genericOperator(op, intrinsic string, fixity ast.Fixity, proto *types.ProtocolType, arity int, boolResult bool) *ast.BuiltinDeclaration {
	b := types.NewArchetypeBuilder(op)
	t := b.AddParam("T")
	b.AddConformance(t, proto)

	sig, err := b.Build()
	if err != nil {
		panic(err)
	}

	params := make([]types.Type, arity)
	for i := range params {
		params[i] = t
	}

	var result types.Type = t
	if boolResult {
		result = types.Bool
	}

	return &ast.BuiltinDeclaration{
		Name:      op,
		Kind:      ast.BuiltinFunction,
		Fixity:    fixity,
		Signature: sig,
		Func:      &types.FunctionType{Params: params, Result: result},
		Intrinsic: intrinsic,
	}
}

func function(name, intrinsic string, fixity ast.Fixity, result types.Type, params ...types.Type) *ast.BuiltinDeclaration {
	return &ast.BuiltinDeclaration{
		Name:      name,
		Kind:      ast.BuiltinFunction,
		Fixity:    fixity,
		Func:      &types.FunctionType{Params: params, Result: result},
		Intrinsic: intrinsic,
	}
}

// LookupBuiltin returns the builtin declarations named name.
func LookupBuiltin(name string) []*ast.BuiltinDeclaration {
	return builtins.values[name]
}

// BuiltinGroup returns a builtin precedence group.
func BuiltinGroup(name string) *ast.PrecedenceGroupDeclaration {
	return builtins.groups[name]
}
