package resolver

import (
	"errors"
	"testing"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/config"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/modules"
	"github.com/orizon-lang/ozc/internal/parser"
	"github.com/orizon-lang/ozc/internal/position"
	"github.com/orizon-lang/ozc/internal/session"
)

func parseUnit(t *testing.T, sess *session.Session, name, src string, opts parser.Options) *ast.SourceUnit {
	t.Helper()

	unit := ast.NewSourceUnit(name, position.NewSourceFile(name+".oz", src))

	if _, err := parser.ParseIntoUnit(sess, unit, parser.NewState(), opts); err != nil {
		t.Fatalf("ParseIntoUnit(%s) error = %v", name, err)
	}

	return unit
}

func bindMain(t *testing.T, sess *session.Session, src string) (*ast.SourceUnit, *BindResult) {
	t.Helper()

	unit := parseUnit(t, sess, "main", src, parser.Options{IsMainUnit: true})
	if sess.Diags.HasErrors() {
		t.Fatalf("parse diagnostics: %v", codes(sess))
	}

	res, err := Bind(sess, unit, 0)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	return unit, res
}

func codes(sess *session.Session) []string {
	var out []string
	for _, d := range sess.Diags.Diagnostics() {
		out = append(out, d.Code)
	}

	return out
}

// variable returns the last top-level variable named name.
func variable(t *testing.T, unit *ast.SourceUnit, name string) *ast.VariableDeclaration {
	t.Helper()

	for i := len(unit.Elements) - 1; i >= 0; i-- {
		if v, ok := unit.Elements[i].(*ast.VariableDeclaration); ok && v.Name == name {
			return v
		}
	}

	t.Fatalf("no variable %q", name)

	return nil
}

func TestFoldByPrecedence(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"mul over add", "let v = 1 + 2 * 3", "(1 + (2 * 3))"},
		{"left assoc", "let v = 1 - 2 - 3", "((1 - 2) - 3)"},
		{"chain", "let v = 1 * 2 + 3 < 4 && true || false", "(((((1 * 2) + 3) < 4) && true) || false)"},
		{
			"right assoc custom group",
			"precedencegroup Pipe { higherThan: Multiplication associativity: right }\n" +
				"infix operator |> : Pipe\n" +
				"func |>(a: Int, b: Int) -> Int { return a }\n" +
				"let v = 2 |> 3 |> 4 * 5",
			"((2 |> (3 |> 4)) * 5)",
		},
		{
			"lowerThan is transitive",
			"precedencegroup Low { lowerThan: LogicalDisjunction associativity: left }\n" +
				"infix operator ~> : Low\n" +
				"func ~>(a: Int, b: Int) -> Int { return b }\n" +
				"let v = 1 + 2 ~> 3 * 4",
			"((1 + 2) ~> (3 * 4))",
		},
		{
			"default group above comparison",
			"infix operator ~~\n" +
				"func ~~(a: Int, b: Int) -> Bool { return true }\n" +
				"let v = 1 ~~ 2 == true",
			"((1 ~~ 2) == true)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := session.New(nil)
			unit, _ := bindMain(t, sess, tt.src)

			if sess.Diags.Len() != 0 {
				t.Fatalf("unexpected diagnostics %v", codes(sess))
			}

			v := variable(t, unit, "v")

			seq, ok := v.Value.(*ast.SequenceExpression)
			if !ok || seq.Folded == nil {
				t.Fatalf("value %T was not folded", v.Value)
			}

			if got := ast.Format(seq.Folded); got != tt.want {
				t.Errorf("folded = %s, want %s", got, tt.want)
			}

			if !unit.Arena.Owns(seq.Folded) || unit.ParentOf(seq.Folded) != seq {
				t.Errorf("folded tree not adopted under its sequence")
			}

			bin := seq.Folded.(*ast.BinaryExpression)
			if bin.Operator.Ref == nil || bin.Operator.Ref == ast.Decl(ast.ErrorDecl) {
				t.Errorf("operator %s bound to %v", bin.Operator.Name, bin.Operator.Ref)
			}
		})
	}
}

func TestFoldDiagnostics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"non associative", "let v = 1 < 2 < 3", []string{diagnostic.BindNonAssociative}},
		{
			"unordered groups",
			"precedencegroup Lone { associativity: left }\n" +
				"infix operator |> : Lone\n" +
				"func |>(a: Int, b: Int) -> Int { return a }\n" +
				"let v = 1 |> 2 + 3 |> 4 * 5",
			[]string{diagnostic.BindUnorderedPrecedence},
		},
		{"unknown operator only", "let v = 1 +++ 2 * 3 < 4", []string{diagnostic.BindUnknownOperator}},
		{
			"declared without implementation",
			"infix operator <~> : Addition\nlet v = 1 <~> 2",
			[]string{diagnostic.BindUnresolved},
		},
		{
			"unknown group",
			"infix operator ~> : Nowhere\nfunc ~>(a: Int, b: Int) -> Int { return a }\nlet v = 1 ~> 2",
			[]string{diagnostic.BindUnknownPrecedence},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := session.New(nil)
			unit, _ := bindMain(t, sess, tt.src)

			got := codes(sess)
			if len(got) != len(tt.want) {
				t.Fatalf("diagnostics = %v, want %v", got, tt.want)
			}

			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("diagnostics = %v, want %v", got, tt.want)
				}
			}

			seq := variable(t, unit, "v").Value.(*ast.SequenceExpression)
			if seq.Folded == nil {
				t.Errorf("sequence left unfolded after a diagnostic")
			}
		})
	}
}

func TestUnresolvedIdentifierReportedOnce(t *testing.T) {
	sess := session.New(nil)
	unit, res := bindMain(t, sess, "let v = missing\nlet w = v + 1\nprint(\"\\(w)\")")

	got := codes(sess)
	if len(got) != 1 || got[0] != diagnostic.BindUnresolved {
		t.Fatalf("diagnostics = %v, want one %s", got, diagnostic.BindUnresolved)
	}

	if res.Unresolved != 1 || res.Ambiguous != 0 {
		t.Errorf("result = %+v", res)
	}

	id := variable(t, unit, "v").Value.(*ast.Identifier)
	if id.Ref != ast.Decl(ast.ErrorDecl) {
		t.Errorf("missing bound to %v, want the error declaration", id.Ref)
	}

	w := variable(t, unit, "w").Value.(*ast.SequenceExpression)
	if left := w.Folded.(*ast.BinaryExpression).Left.(*ast.Identifier); left.Ref != ast.Decl(variable(t, unit, "v")) {
		t.Errorf("v bound to %v", left.Ref)
	}
}

func TestAmbiguousAcrossUnits(t *testing.T) {
	sess := session.New(nil)

	for _, name := range []string{"a", "b"} {
		unit := parseUnit(t, sess, name, "func f() -> Int { return 1 }", parser.Options{})
		if _, err := Bind(sess, unit, 0); err != nil {
			t.Fatalf("Bind(%s) error = %v", name, err)
		}
	}

	if sess.Diags.Len() != 0 {
		t.Fatalf("publishing in two units reported %v", codes(sess))
	}

	unit, res := bindMain(t, sess, "let v = f()")

	got := codes(sess)
	if len(got) != 1 || got[0] != diagnostic.BindAmbiguous {
		t.Fatalf("diagnostics = %v, want one %s", got, diagnostic.BindAmbiguous)
	}

	if d := sess.Diags.Diagnostics()[0]; len(d.Args) != 2 || d.Args[1] != "2" {
		t.Errorf("args = %v, want a candidate count of 2", d.Args)
	}

	if res.Ambiguous != 1 {
		t.Errorf("result = %+v", res)
	}

	callee := variable(t, unit, "v").Value.(*ast.CallExpression).Callee.(*ast.Identifier)
	if callee.Ref != ast.Decl(ast.ErrorDecl) {
		t.Errorf("f bound to %v", callee.Ref)
	}
}

func TestLocalsShadowGlobals(t *testing.T) {
	sess := session.New(nil)
	unit, _ := bindMain(t, sess, "let x = 1\nfunc f(x: Int) -> Int {\n  let y = x\n  return y\n}")

	if sess.Diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics %v", codes(sess))
	}

	fn := unit.Elements[1].(*ast.FunctionDeclaration)
	y := fn.Body.Statements[0].(*ast.VariableDeclaration)

	if ref := y.Value.(*ast.Identifier).Ref; ref != ast.Decl(fn.Parameters[0]) {
		t.Errorf("x bound to %v, want the parameter", ref)
	}

	ret := fn.Body.Statements[1].(*ast.ReturnStatement)
	if ref := ret.Value.(*ast.Identifier).Ref; ref != ast.Decl(y) {
		t.Errorf("y bound to %v", ref)
	}

	if ref := fn.Parameters[0].TypeAnnotation.(*ast.TypeName).Ref; ref == nil || ast.DeclName(ref) != "Int" {
		t.Errorf("Int bound to %v", ref)
	}
}

func TestRedeclaration(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"top level", "func f() {}\nfunc f() {}"},
		{"local", "func f() {\n  let a = 1\n  let a = 2\n}"},
		{"parameter", "func f(a: Int, a: Int) {}"},
		{"member", "struct S {\n  var w: Int\n  func w() -> Int { return 1 }\n}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := session.New(nil)
			bindMain(t, sess, tt.src)

			got := codes(sess)
			if len(got) != 1 || got[0] != diagnostic.BindRedeclared {
				t.Errorf("diagnostics = %v, want one %s", got, diagnostic.BindRedeclared)
			}
		})
	}
}

func TestNotAType(t *testing.T) {
	sess := session.New(nil)
	bindMain(t, sess, "func g() {}\nfunc f(a: g) {}")

	got := codes(sess)
	if len(got) != 1 || got[0] != diagnostic.BindNotAType {
		t.Errorf("diagnostics = %v, want one %s", got, diagnostic.BindNotAType)
	}
}

func TestClosureCaptures(t *testing.T) {
	sess := session.New(nil)
	unit, _ := bindMain(t, sess, `func f(a: Int) -> Int {
  let b = 2
  let c = { (x: Int) -> Int in
    let d = { (y: Int) -> Int in y + a }
    return x + b + a + d(b)
  }
  return c(1)
}
struct S {
  var w: Int
  func g() -> Int {
    let c = { () -> Int in w + w }
    return c()
  }
}`)

	if sess.Diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics %v", codes(sess))
	}

	fn := unit.Elements[0].(*ast.FunctionDeclaration)
	a := fn.Parameters[0]
	b := fn.Body.Statements[0].(*ast.VariableDeclaration)
	outer := fn.Body.Statements[1].(*ast.VariableDeclaration).Value.(*ast.ClosureExpression)
	inner := outer.Body.Statements[0].(*ast.VariableDeclaration).Value.(*ast.ClosureExpression)

	want := []ast.Decl{a, b}
	if len(outer.Captures) != len(want) {
		t.Fatalf("outer captures %v, want %v", outer.Captures, want)
	}

	for i := range want {
		if outer.Captures[i] != want[i] {
			t.Errorf("outer capture %d = %v, want %v", i, outer.Captures[i], want[i])
		}
	}

	if len(inner.Captures) != 1 || inner.Captures[0] != ast.Decl(a) {
		t.Errorf("inner captures %v, want [a]", inner.Captures)
	}

	g := unit.Elements[1].(*ast.StructDeclaration).Methods[0]
	if g.Self == nil {
		t.Fatalf("method receiver not created")
	}

	c := g.Body.Statements[0].(*ast.VariableDeclaration).Value.(*ast.ClosureExpression)
	if len(c.Captures) != 1 || c.Captures[0] != ast.Decl(g.Self) {
		t.Errorf("method closure captures %v, want [self]", c.Captures)
	}
}

func newModuleSession(t *testing.T, constraint string) *session.Session {
	t.Helper()

	cfg := config.Default()
	if constraint != "" {
		cfg.Modules["Math"] = constraint
	}

	reg := modules.NewRegistry()
	if _, err := reg.Add("Math", "1.2.0", "func square(x: Int) -> Int\nfunc cube(x: Int) -> Int"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	loader := func(s *session.Session, d *modules.Descriptor) (*ast.SourceUnit, error) {
		unit := ast.NewSourceUnit(d.Name, position.NewSourceFile(d.Filename(), d.Interface))
		unit.Module = d.Name

		if _, err := parser.ParseIntoUnit(s, unit, parser.NewState(), parser.Options{InterfaceOnly: true}); err != nil {
			return nil, err
		}

		if _, err := Bind(s, unit, 0); err != nil {
			return nil, err
		}

		return unit, nil
	}

	return session.New(cfg, session.WithRegistry(reg), session.WithLoader(loader))
}

func TestImports(t *testing.T) {
	sess := newModuleSession(t, "^1")
	unit, res := bindMain(t, sess, "import Math\nlet v = square(2)")

	if sess.Diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics %v", codes(sess))
	}

	if len(res.Imports) != 1 || res.Imports[0].Name() != "Math" {
		t.Fatalf("imports = %v", res.Imports)
	}

	if imp := unit.Elements[0].(*ast.ImportDeclaration); imp.Version != "1.2.0" {
		t.Errorf("selected version %q", imp.Version)
	}

	callee := variable(t, unit, "v").Value.(*ast.CallExpression).Callee.(*ast.Identifier)

	fn, ok := callee.Ref.(*ast.FunctionDeclaration)
	if !ok || fn.Module != "Math" || fn.QualifiedName() != "Math.square" {
		t.Errorf("square bound to %v", callee.Ref)
	}

	// module names never leak into the main unit's scope
	if syms := sess.Scope.Lookup(session.NamespaceValue, "square"); len(syms) != 0 {
		t.Errorf("interface published %v into the module scope", syms)
	}
}

func TestImportFailures(t *testing.T) {
	tests := []struct {
		name       string
		constraint string
		src        string
		want       string
	}{
		{"no matching version", "^2", "import Math", diagnostic.BindNoMatchingVersion},
		{"unknown module", "", "import Geo", diagnostic.BindUnknownModule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newModuleSession(t, tt.constraint)
			unit, res := bindMain(t, sess, tt.src)

			got := codes(sess)
			if len(got) != 1 || got[0] != tt.want {
				t.Fatalf("diagnostics = %v, want %s", got, tt.want)
			}

			if len(res.Imports) != 0 || unit.Elements[0].(*ast.ImportDeclaration).Version != "" {
				t.Errorf("failed import recorded: %+v", res)
			}
		})
	}
}

func TestIncrementalBinding(t *testing.T) {
	sess := newModuleSession(t, "")
	unit := ast.NewSourceUnit("main", position.NewSourceFile("main.oz", "import Math\nlet a = 1\n"))
	state := parser.NewState()
	opts := parser.Options{IsMainUnit: true}

	if _, err := parser.ParseIntoUnit(sess, unit, state, opts); err != nil {
		t.Fatalf("ParseIntoUnit() error = %v", err)
	}

	res, err := Bind(sess, unit, 0)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	if res.From != 0 || res.To != 2 {
		t.Errorf("first range = [%d, %d)", res.From, res.To)
	}

	res, err = Bind(sess, unit, 0)
	if err != nil {
		t.Fatalf("repeated Bind() error = %v", err)
	}

	if res.From != 2 || res.To != 2 || len(res.Imports) != 1 {
		t.Errorf("repeated bind = %+v, want an empty range with the import restored", res)
	}

	unit.File.Extend("let b = a + cube(a)\n")

	if _, err := parser.ParseIntoUnit(sess, unit, state, opts); err != nil {
		t.Fatalf("ParseIntoUnit() after Extend error = %v", err)
	}

	res, err = Bind(sess, unit, 2)
	if err != nil {
		t.Fatalf("Bind(2) error = %v", err)
	}

	if res.From != 2 || res.To != 3 {
		t.Errorf("appended range = [%d, %d)", res.From, res.To)
	}

	if sess.Diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics %v", codes(sess))
	}

	call := variable(t, unit, "b").Value.(*ast.SequenceExpression).Folded.(*ast.BinaryExpression).Right.(*ast.CallExpression)
	if fn, ok := call.Callee.(*ast.Identifier).Ref.(*ast.FunctionDeclaration); !ok || fn.Module != "Math" {
		t.Errorf("cube bound to %v", call.Callee.(*ast.Identifier).Ref)
	}

	if _, err := Bind(sess, unit, 1); !errors.Is(err, ast.ErrNonMonotonicStart) {
		t.Errorf("Bind(1) after Bind(2) error = %v, want ErrNonMonotonicStart", err)
	}
}

func TestBuiltinPrelude(t *testing.T) {
	if g := BuiltinGroup(GroupMultiplication); g == nil || g.HigherThan[0] != GroupAddition {
		t.Errorf("Multiplication group = %+v", g)
	}

	plus := LookupBuiltin("+")
	if len(plus) != 1 || plus[0].Signature == nil || plus[0].Intrinsic != "add" {
		t.Fatalf("+ = %+v", plus)
	}

	if got := plus[0].Signature.String(); got != "<T: Numeric>" {
		t.Errorf("+ signature = %s", got)
	}

	minus := LookupBuiltin("-")
	if len(minus) != 2 {
		t.Fatalf("- has %d builtins, want infix and prefix", len(minus))
	}

	if f := operatorFunc(ast.FixityPrefix); f(minus[0]) == f(minus[1]) {
		t.Errorf("prefix filter does not separate the two -")
	}
}

func TestDeclareBeforeBind(t *testing.T) {
	sess := session.New(nil)
	main := parseUnit(t, sess, "main", "let v = helper()", parser.Options{IsMainUnit: true})
	lib := parseUnit(t, sess, "lib", "func helper() -> Int { return 1 }\nfunc helper() -> Int { return 2 }", parser.Options{})

	for _, u := range []*ast.SourceUnit{main, lib} {
		if _, err := Declare(sess, u, 0); err != nil {
			t.Fatalf("Declare(%s) error = %v", u.Name, err)
		}
	}

	for _, u := range []*ast.SourceUnit{main, lib} {
		if _, err := Bind(sess, u, 0); err != nil {
			t.Fatalf("Bind(%s) error = %v", u.Name, err)
		}
	}

	got := codes(sess)
	if len(got) != 1 || got[0] != diagnostic.BindRedeclared {
		t.Fatalf("diagnostics = %v, want the redeclaration reported once", got)
	}

	callee := variable(t, main, "v").Value.(*ast.CallExpression).Callee.(*ast.Identifier)
	if callee.Ref != ast.Decl(lib.Elements[0].(*ast.FunctionDeclaration)) {
		t.Errorf("helper bound to %v", callee.Ref)
	}
}
