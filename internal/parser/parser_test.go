package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/lexer"
	"github.com/orizon-lang/ozc/internal/position"
	"github.com/orizon-lang/ozc/internal/session"
	"github.com/orizon-lang/ozc/internal/types"
)

func newUnit(src string) *ast.SourceUnit {
	return ast.NewSourceUnit("main", position.NewSourceFile("main.oz", src))
}

func parseAll(t *testing.T, src string, opts Options) (*session.Session, *ast.SourceUnit, *State) {
	t.Helper()

	sess := session.New(nil)
	unit := newUnit(src)
	state := NewState()

	res, err := ParseIntoUnit(sess, unit, state, opts)
	if err != nil {
		t.Fatalf("ParseIntoUnit() error = %v", err)
	}

	if !res.Done {
		t.Fatalf("ParseIntoUnit() = %+v, want Done", res)
	}

	return sess, unit, state
}

func codes(sess *session.Session) []string {
	var out []string
	for _, d := range sess.Diags.Diagnostics() {
		out = append(out, d.Code)
	}

	return out
}

func TestInteractiveStopsAfterSideEffect(t *testing.T) {
	sess := session.New(nil)
	unit := newUnit("import Mod; 1 + 1")
	state := NewState()
	opts := Options{IsMainUnit: true, Interactive: true}

	res, err := ParseIntoUnit(sess, unit, state, opts)
	if err != nil {
		t.Fatalf("ParseIntoUnit() error = %v", err)
	}

	if !res.FoundSideEffects || res.Done {
		t.Fatalf("first call = %+v, want side effects and not done", res)
	}

	if len(unit.Elements) != 2 {
		t.Fatalf("got %d elements, want 2", len(unit.Elements))
	}

	if _, ok := unit.Elements[0].(*ast.ImportDeclaration); !ok {
		t.Errorf("element 0 is %T", unit.Elements[0])
	}

	stmt, ok := unit.Elements[1].(*ast.ExpressionStatement)
	if !ok {
		t.Fatalf("element 1 is %T", unit.Elements[1])
	}

	if seq, ok := stmt.Expression.(*ast.SequenceExpression); !ok || len(seq.Operands) != 2 {
		t.Errorf("expression = %s", stmt.Expression)
	}

	res, err = ParseIntoUnit(sess, unit, state, opts)
	if err != nil {
		t.Fatalf("second ParseIntoUnit() error = %v", err)
	}

	if !res.Done || res.FoundSideEffects || res.Added != 0 {
		t.Errorf("second call = %+v, want done with nothing added", res)
	}

	if sess.Diags.Len() != 0 {
		t.Errorf("unexpected diagnostics %v", codes(sess))
	}
}

func TestInteractiveResumesLineByLine(t *testing.T) {
	sess := session.New(nil)
	unit := newUnit("func f() -> Int { return 1 }\nprint(\"a\")\nlet x = 2\nprint(\"b\")\n")
	state := NewState()
	opts := Options{IsMainUnit: true, Interactive: true}

	var added []int

	for i := 0; i < 10; i++ {
		res, err := ParseIntoUnit(sess, unit, state, opts)
		if err != nil {
			t.Fatalf("ParseIntoUnit() error = %v", err)
		}

		added = append(added, res.Added)

		if res.Done {
			break
		}
	}

	want := []int{2, 1, 1, 0}
	if len(added) != len(want) {
		t.Fatalf("added per call = %v, want %v", added, want)
	}

	for i := range want {
		if added[i] != want[i] {
			t.Errorf("added per call = %v, want %v", added, want)

			break
		}
	}
}

func TestInteractiveIncompleteInput(t *testing.T) {
	sess := session.New(nil)
	unit := newUnit("func f() -> Int {\n  return 1\n")
	state := NewState()
	opts := Options{IsMainUnit: true, Interactive: true}

	res, err := ParseIntoUnit(sess, unit, state, opts)
	if err != nil {
		t.Fatalf("ParseIntoUnit() error = %v", err)
	}

	if !res.Incomplete || res.Added != 0 {
		t.Fatalf("result = %+v, want incomplete", res)
	}

	scopes := state.OpenScopes()
	if len(scopes) != 1 || scopes[0].Kind != lexer.TokenLBrace || scopes[0].Offset != 16 {
		t.Fatalf("open scopes = %+v", scopes)
	}

	if state.Offset() != 0 {
		t.Errorf("offset advanced to %d", state.Offset())
	}

	unit.File.Extend("}\n")

	res, err = ParseIntoUnit(sess, unit, state, opts)
	if err != nil {
		t.Fatalf("ParseIntoUnit() error = %v", err)
	}

	if !res.Done || res.Added != 1 || len(state.OpenScopes()) != 0 {
		t.Errorf("after completing input: %+v, scopes %v", res, state.OpenScopes())
	}

	if sess.Diags.Len() != 0 {
		t.Errorf("unexpected diagnostics %v", codes(sess))
	}
}

func TestInteractiveIncompleteAfterSeveralElements(t *testing.T) {
	sess := session.New(nil)
	unit := newUnit("func g() -> Int { return 2 }\nprint(\"a\")\nfunc f() -> Int {\n")
	state := NewState()
	opts := Options{IsMainUnit: true, Interactive: true}

	res, err := ParseIntoUnit(sess, unit, state, opts)
	if err != nil {
		t.Fatalf("ParseIntoUnit() error = %v", err)
	}

	if !res.Incomplete || res.Added != 0 {
		t.Fatalf("result = %+v, want incomplete", res)
	}

	if scopes := state.OpenScopes(); len(scopes) != 1 || scopes[0].Offset != 56 {
		t.Fatalf("open scopes = %+v", scopes)
	}

	unit.File.Extend("  return (g() + 1)\n}\n")

	var added []int

	for i := 0; i < 5; i++ {
		res, err := ParseIntoUnit(sess, unit, state, opts)
		if err != nil {
			t.Fatalf("ParseIntoUnit() error = %v", err)
		}

		if res.Incomplete {
			t.Fatalf("call %d still incomplete, scopes %+v", i, state.OpenScopes())
		}

		added = append(added, res.Added)

		if res.Done {
			break
		}
	}

	if len(added) != 2 || added[0] != 2 || added[1] != 1 {
		t.Errorf("added per call = %v, want [2 1]", added)
	}

	if _, ok := unit.Elements[2].(*ast.FunctionDeclaration); !ok || len(unit.Elements) != 3 {
		t.Errorf("elements = %d, last is %T", len(unit.Elements), unit.Elements[len(unit.Elements)-1])
	}

	if sess.Diags.Len() != 0 {
		t.Errorf("unexpected diagnostics %v", codes(sess))
	}
}

func TestScopesFrom(t *testing.T) {
	open := []OpenScope{
		{Kind: lexer.TokenLBrace, Offset: 4},
		{Kind: lexer.TokenLParen, Offset: 10},
		{Kind: lexer.TokenLBracket, Offset: 17},
	}

	tests := []struct {
		offset int
		want   int
	}{
		{0, 3},
		{4, 3},
		{5, 2},
		{17, 1},
		{18, 0},
	}

	for _, tt := range tests {
		if got := scopesFrom(open, tt.offset); len(got) != tt.want {
			t.Errorf("scopesFrom(%d) = %+v, want %d scopes", tt.offset, got, tt.want)
		}
	}
}

func TestStateBoundToOneUnit(t *testing.T) {
	sess := session.New(nil)
	state := NewState()

	if _, err := ParseIntoUnit(sess, newUnit("let a = 1"), state, Options{IsMainUnit: true}); err != nil {
		t.Fatalf("ParseIntoUnit() error = %v", err)
	}

	_, err := ParseIntoUnit(sess, newUnit("let b = 2"), state, Options{IsMainUnit: true})
	if !errors.Is(err, ErrWrongUnit) {
		t.Fatalf("error = %v, want ErrWrongUnit", err)
	}
}

func TestDeferredBodies(t *testing.T) {
	src := "func a() -> Int { return 1 }\nfunc b() -> Int {\n  let y = 2\n  return y\n}\n"
	sess, unit, state := parseAll(t, src, Options{DelayBodies: true})

	if state.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", state.Pending())
	}

	a := unit.Elements[0].(*ast.FunctionDeclaration)
	b := unit.Elements[1].(*ast.FunctionDeclaration)

	if !a.Deferred || a.Body != nil {
		t.Fatalf("a was not deferred")
	}

	if !strings.Contains(a.String(), "{ ... }") {
		t.Errorf("deferred function prints as %q", a.String())
	}

	if err := ResolveBody(sess, unit, state, b, nil); err != nil {
		t.Fatalf("ResolveBody(b) error = %v", err)
	}

	if err := ResolveBody(sess, unit, state, b, nil); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("second ResolveBody(b) error = %v, want ErrAlreadyResolved", err)
	}

	if err := ResolveDeferred(sess, unit, state, nil); err != nil {
		t.Fatalf("ResolveDeferred() error = %v", err)
	}

	if state.Pending() != 0 {
		t.Errorf("Pending() = %d after resolving", state.Pending())
	}

	for _, fn := range []*ast.FunctionDeclaration{a, b} {
		if fn.Deferred || fn.Body == nil {
			t.Fatalf("%s body not resolved", fn.Name)
		}

		if fn.Body.Base().Parent != fn.ID || !unit.Arena.Owns(fn.Body) {
			t.Errorf("%s body not adopted", fn.Name)
		}
	}

	if len(b.Body.Statements) != 2 {
		t.Errorf("b has %d statements", len(b.Body.Statements))
	}

	order := state.Deferred()
	if order[0].Decl != a || order[1].Decl != b {
		t.Errorf("deferred queue not in registration order")
	}

	if err := ResolveBody(sess, unit, state, &ast.FunctionDeclaration{Name: "x"}, nil); !errors.Is(err, ErrNotDeferred) {
		t.Errorf("ResolveBody(unknown) error = %v", err)
	}

	if sess.Diags.Len() != 0 {
		t.Errorf("unexpected diagnostics %v", codes(sess))
	}
}

func TestDeferredBodyWithSyntaxError(t *testing.T) {
	sess, unit, state := parseAll(t, "func a() -> Int { return ) }\n", Options{DelayBodies: true})

	if sess.Diags.Len() != 0 {
		t.Fatalf("skipped body reported %v", codes(sess))
	}

	if err := ResolveDeferred(sess, unit, state, nil); err != nil {
		t.Fatalf("ResolveDeferred() error = %v", err)
	}

	if got := codes(sess); len(got) != 1 || got[0] != diagnostic.ParseExpected {
		t.Fatalf("diagnostics = %v", got)
	}

	fn := unit.Elements[0].(*ast.FunctionDeclaration)
	if fn.Body == nil || len(fn.Body.Statements) != 1 {
		t.Fatalf("body = %v", fn.Body)
	}

	if _, ok := fn.Body.Statements[0].(*ast.BadStatement); !ok {
		t.Errorf("statement is %T, want BadStatement", fn.Body.Statements[0])
	}
}

func TestCompletionInDeferredBody(t *testing.T) {
	src := "func f() -> Int {\n  let abc = 1\n  return abc\n}\nfunc g() -> Int { return 2 }\n"
	sess, unit, state := parseAll(t, src, Options{DelayBodies: true})

	state.RequestCompletion(strings.LastIndex(src, "abc"))

	var calls []CompletionContext

	err := ResolveDeferred(sess, unit, state, CompletionFunc(func(ctx CompletionContext) {
		calls = append(calls, ctx)
	}))
	if err != nil {
		t.Fatalf("ResolveDeferred() error = %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("completion called %d times", len(calls))
	}

	ctx := calls[0]
	if ctx.Decl == nil || ctx.Decl.Name != "f" {
		t.Errorf("completion decl = %v", ctx.Decl)
	}

	if ctx.Token.Literal != "abc" || ctx.Unit != unit {
		t.Errorf("completion token = %v", ctx.Token)
	}
}

func TestOneMalformedDeclarationAmongTen(t *testing.T) {
	var b strings.Builder

	for i := 0; i < 10; i++ {
		if i == 4 {
			b.WriteString("func bad( -> Int { return 1 }\n")

			continue
		}

		b.WriteString("func f" + string(rune('a'+i)) + "(x: Int) -> Int { return x }\n")
	}

	sess, unit, _ := parseAll(t, b.String(), Options{})

	if len(unit.Elements) != 10 {
		t.Fatalf("got %d elements, want 10", len(unit.Elements))
	}

	if got := codes(sess); len(got) != 1 || got[0] != diagnostic.ParseExpected {
		t.Fatalf("diagnostics = %v, want one parse.expected", got)
	}

	for i, e := range unit.Elements {
		_, bad := e.(*ast.BadDeclaration)
		if bad != (i == 4) {
			t.Errorf("element %d is %T", i, e)
		}
	}
}

func TestStatementOutsideMainUnit(t *testing.T) {
	sess, unit, _ := parseAll(t, "func f() {}\nprint(\"x\")\n", Options{})

	if got := codes(sess); len(got) != 1 || got[0] != diagnostic.ParseStatementInLib {
		t.Fatalf("diagnostics = %v", got)
	}

	if _, ok := unit.Elements[1].(*ast.BadStatement); !ok {
		t.Errorf("element 1 is %T", unit.Elements[1])
	}
}

func TestBodyRequired(t *testing.T) {
	sess, _, _ := parseAll(t, "func f() -> Int\n", Options{})
	if got := codes(sess); len(got) != 1 || got[0] != diagnostic.ParseBodyRequired {
		t.Fatalf("diagnostics = %v", got)
	}

	sess, unit, _ := parseAll(t, "func f() -> Int\nfunc g(x: Int)\n", Options{InterfaceOnly: true})
	if sess.Diags.Len() != 0 || len(unit.Elements) != 2 || !unit.InterfaceOnly {
		t.Errorf("interface-only parse: %v", codes(sess))
	}
}

func TestLineSensitiveExpressions(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		types []string
	}{
		{"operator on next line", "let a = 1\n-2\n", []string{"*ast.VariableDeclaration", "*ast.ExpressionStatement"}},
		{"call on next line", "f\n(1)\n", []string{"*ast.ExpressionStatement", "*ast.ExpressionStatement"}},
		{"semicolons", "f(); g(); h()", []string{"*ast.ExpressionStatement", "*ast.ExpressionStatement", "*ast.ExpressionStatement"}},
		{"continued operator", "let a = 1 +\n  2\n", []string{"*ast.VariableDeclaration"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, unit, _ := parseAll(t, tt.src, Options{IsMainUnit: true})

			if sess.Diags.Len() != 0 {
				t.Fatalf("diagnostics = %v", codes(sess))
			}

			if len(unit.Elements) != len(tt.types) {
				t.Fatalf("got %d elements, want %d", len(unit.Elements), len(tt.types))
			}

			for i, e := range unit.Elements {
				if got := typeName(e); got != tt.types[i] {
					t.Errorf("element %d = %s, want %s", i, got, tt.types[i])
				}
			}
		})
	}
}

func typeName(n ast.Node) string {
	switch n.(type) {
	case *ast.VariableDeclaration:
		return "*ast.VariableDeclaration"
	case *ast.ExpressionStatement:
		return "*ast.ExpressionStatement"
	case *ast.FunctionDeclaration:
		return "*ast.FunctionDeclaration"
	}

	return "other"
}

func TestDeclarations(t *testing.T) {
	src := `import Math
precedencegroup Pipe { higherThan: Addition, Comparison associativity: left }
infix operator |> : Pipe
prefix operator !!
protocol Shape { func area() -> Int }
struct Rect: Shape, Equatable {
    var w: Int
    private var h: Int
    func area() -> Int { return w * h }
}
func sum<T: Numeric & Comparable, U>(a: T, b: T) -> T { return a + b }
func |>(x: Int, f: (Int) -> Int) -> Int { return f(x) }
private let secret = 1
`
	sess, unit, _ := parseAll(t, src, Options{})

	if sess.Diags.Len() != 0 {
		t.Fatalf("diagnostics = %v", codes(sess))
	}

	if len(unit.Elements) != 9 {
		t.Fatalf("got %d elements", len(unit.Elements))
	}

	pg := unit.Elements[1].(*ast.PrecedenceGroupDeclaration)
	if len(pg.HigherThan) != 2 || pg.Associativity != ast.AssocLeft {
		t.Errorf("precedence group = %s", pg)
	}

	op := unit.Elements[2].(*ast.OperatorDeclaration)
	if op.Operator != "|>" || op.Group != "Pipe" || op.Fixity != ast.FixityInfix {
		t.Errorf("operator = %s", op)
	}

	if pre := unit.Elements[3].(*ast.OperatorDeclaration); pre.Fixity != ast.FixityPrefix {
		t.Errorf("prefix operator = %s", pre)
	}

	proto := unit.Elements[4].(*ast.ProtocolDeclaration)
	if len(proto.Requirements) != 1 || proto.Requirements[0].Protocol != proto {
		t.Errorf("protocol = %s", proto)
	}

	st := unit.Elements[5].(*ast.StructDeclaration)
	if len(st.Fields) != 2 || len(st.Methods) != 1 || len(st.Conformances) != 2 {
		t.Fatalf("struct = %s", st)
	}

	if !st.Fields[1].IsPrivate || st.Fields[0].Owner != st || st.Methods[0].Owner != st {
		t.Errorf("struct members not linked")
	}

	sum := unit.Elements[6].(*ast.FunctionDeclaration)
	if len(sum.Generics) != 2 || len(sum.Generics[0].Constraints) != 2 {
		t.Errorf("generics = %v", sum.Generics)
	}

	if impl := unit.Elements[7].(*ast.FunctionDeclaration); !impl.IsOperator || impl.Name != "|>" {
		t.Errorf("operator implementation = %s", impl)
	}

	if g := unit.Elements[8].(*ast.VariableDeclaration); !g.IsPrivate || !g.IsGlobal {
		t.Errorf("global = %s", g)
	}
}

func TestClosureAndInterpolation(t *testing.T) {
	src := "let g = { (v: Int) -> Int in v * 2 }\nprint(\"x = \\(g(1) + 1)!\")\n"
	sess, unit, _ := parseAll(t, src, Options{IsMainUnit: true})

	if sess.Diags.Len() != 0 {
		t.Fatalf("diagnostics = %v", codes(sess))
	}

	c, ok := unit.Elements[0].(*ast.VariableDeclaration).Value.(*ast.ClosureExpression)
	if !ok {
		t.Fatalf("initializer is not a closure")
	}

	if !c.SingleExpression || len(c.Parameters) != 1 || c.ReturnType == nil {
		t.Errorf("closure = %s", c)
	}

	call := unit.Elements[1].(*ast.ExpressionStatement).Expression.(*ast.CallExpression)

	interp, ok := call.Arguments[0].(*ast.InterpolatedString)
	if !ok {
		t.Fatalf("argument is %T", call.Arguments[0])
	}

	if len(interp.Parts) != 3 {
		t.Fatalf("got %d parts", len(interp.Parts))
	}

	if s, ok := interp.Parts[0].(*ast.StringLiteral); !ok || s.Value != "x = " {
		t.Errorf("part 0 = %v", interp.Parts[0])
	}

	if _, ok := interp.Parts[1].(*ast.SequenceExpression); !ok {
		t.Errorf("part 1 is %T", interp.Parts[1])
	}
}

type recordingIR struct {
	texts []string
	err   error
}

func (r *recordingIR) ParseIR(text string, offset int) ([]IRFunction, error) {
	r.texts = append(r.texts, text)

	return []IRFunction{{Name: "f", Type: &types.FunctionType{Result: types.Int}}}, r.err
}

func TestMIRBlocks(t *testing.T) {
	src := "mir {\n  func @f() -> Int {\n  bb0:\n    ret 1 : Int\n  }\n}\n"

	sess, unit, _ := parseAll(t, src, Options{})
	if got := codes(sess); len(got) != 1 || got[0] != diagnostic.ParseIRWithoutContext {
		t.Fatalf("without context: %v", got)
	}

	if _, ok := unit.Elements[0].(*ast.BadDeclaration); !ok {
		t.Errorf("element is %T", unit.Elements[0])
	}

	ir := &recordingIR{}

	sess, unit, _ = parseAll(t, src, Options{IRContext: ir})
	if sess.Diags.Len() != 0 {
		t.Fatalf("diagnostics = %v", codes(sess))
	}

	decl := unit.Elements[0].(*ast.MIRDeclaration)
	if len(ir.texts) != 1 || ir.texts[0] != decl.Text || !strings.HasPrefix(decl.Text, "\n  func @f") {
		t.Errorf("IR text = %q", ir.texts)
	}

	if len(decl.Functions) != 1 || decl.Functions[0].Name != "f" || decl.Functions[0].Func.Result != types.Int {
		t.Errorf("functions = %v", decl.Functions)
	}

	if src[decl.TextStart:decl.TextStart+len(decl.Text)] != decl.Text {
		t.Errorf("TextStart %d does not locate the text", decl.TextStart)
	}

	ir = &recordingIR{err: errors.New("bad instruction")}

	sess, _, _ = parseAll(t, src, Options{IRContext: ir})
	if got := codes(sess); len(got) != 1 || got[0] != diagnostic.ParseIRInvalid {
		t.Errorf("invalid IR: %v", got)
	}
}

func TestParseTypeExpr(t *testing.T) {
	tests := []struct {
		src     string
		want    string
		wantErr bool
	}{
		{src: "Int", want: "Int"},
		{src: "(Int, Float) -> Bool", want: "(Int, Float) -> Bool"},
		{src: "Pair<Int, Pair<Int, Int>>", want: "Pair<Int, Pair<Int, Int>>"},
		{src: "() -> Void", want: "() -> Void"},
		{src: "(Int", wantErr: true},
		{src: "Int Int", wantErr: true},
		{src: "->", wantErr: true},
		{src: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := ParseTypeExpr(tt.src)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTypeExpr(%q) = %s, want error", tt.src, got)
				}

				return
			}

			if err != nil {
				t.Fatalf("ParseTypeExpr(%q) error = %v", tt.src, err)
			}

			if got.String() != tt.want {
				t.Errorf("ParseTypeExpr(%q) = %s, want %s", tt.src, got, tt.want)
			}
		})
	}
}

func TestLexErrorsReportedOnce(t *testing.T) {
	sess, unit, _ := parseAll(t, "let s = \"open\nlet t = 1\n", Options{IsMainUnit: true})

	if got := codes(sess); len(got) != 1 || got[0] != diagnostic.LexUnterminatedString {
		t.Fatalf("diagnostics = %v", got)
	}

	if len(unit.Elements) != 2 {
		t.Errorf("got %d elements", len(unit.Elements))
	}
}
