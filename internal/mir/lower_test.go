package mir_test

import (
	"strings"
	"testing"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/mir"
	"github.com/orizon-lang/ozc/internal/parser"
	"github.com/orizon-lang/ozc/internal/position"
	"github.com/orizon-lang/ozc/internal/resolver"
	"github.com/orizon-lang/ozc/internal/session"
	"github.com/orizon-lang/ozc/internal/typechecker"
)

func lowerMain(t *testing.T, sess *session.Session, src string) (*mir.Module, *mir.LowerResult) {
	t.Helper()

	unit := ast.NewSourceUnit("main", position.NewSourceFile("main.oz", src))
	opts := parser.Options{IsMainUnit: true, IRContext: typechecker.NewIRContext(sess)}

	if _, err := parser.ParseIntoUnit(sess, unit, parser.NewState(), opts); err != nil {
		t.Fatalf("ParseIntoUnit() error = %v", err)
	}

	if _, err := resolver.Bind(sess, unit, 0); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	if _, err := typechecker.Check(sess, unit, 0); err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	l := mir.NewLowerer(sess, "main")

	res, err := l.Lower(unit, 0)
	if err != nil {
		t.Fatalf("Lower() error = %v", err)
	}

	if err := typechecker.CheckModule(sess, l.Module()); err != nil {
		t.Errorf("CheckModule() error = %v\n%s", err, mir.Print(l.Module()))
	}

	return l.Module(), res
}

func codes(sess *session.Session) []string {
	var out []string
	for _, d := range sess.Diags.Diagnostics() {
		out = append(out, d.Code)
	}

	return out
}

func functionNames(m *mir.Module) []string {
	out := make([]string, len(m.Functions))
	for i, f := range m.Functions {
		out[i] = f.Name
	}

	return out
}

func calls(f *mir.Function) []string {
	var out []string

	for _, bb := range f.Blocks {
		for _, in := range bb.Instrs {
			if c, ok := in.(*mir.Call); ok {
				out = append(out, c.Callee)
			}
		}
	}

	return out
}

func TestLowerSimpleFunction(t *testing.T) {
	sess := session.New(nil)
	m, _ := lowerMain(t, sess, "func add(a: Int, b: Int) -> Int { return a + b }")

	want := "func @add(%0: Int, %1: Int) -> Int {\n" +
		"entry:\n" +
		"  %2 = intrinsic add(%0, %1) : Int\n" +
		"  ret %2\n" +
		"}\n"

	if got := m.Function("add").String(); got != want {
		t.Errorf("add =\n%s\nwant\n%s", got, want)
	}

	if len(m.Init) != 0 {
		t.Errorf("Init = %v, want none", m.Init)
	}
}

func TestLowerSpecializationsAreShared(t *testing.T) {
	sess := session.New(nil)
	m, res := lowerMain(t, sess, "func id<T>(x: T) -> T { return x }\nlet a = id(1)\nlet b = id(\"s\")\nlet c = id(2)")

	count := map[string]int{}
	for _, name := range functionNames(m) {
		count[name]++
	}

	for _, name := range []string{"id<Int>", "id<String>"} {
		if count[name] != 1 {
			t.Errorf("%s emitted %d times, want once", name, count[name])
		}
	}

	if m.Function("id") != nil {
		t.Errorf("unspecialized generic function was emitted")
	}

	wantInit := []string{"main.toplevel.1", "main.toplevel.2", "main.toplevel.3"}
	if strings.Join(m.Init, ",") != strings.Join(wantInit, ",") {
		t.Errorf("Init = %v, want %v", m.Init, wantInit)
	}

	for _, name := range []string{"main.toplevel.1", "main.toplevel.3"} {
		if got := calls(m.Function(name)); len(got) != 1 || got[0] != "id<Int>" {
			t.Errorf("%s calls %v, want [id<Int>]", name, got)
		}
	}

	if res.Skipped != 0 {
		t.Errorf("Skipped = %d", res.Skipped)
	}
}

func TestLowerClosures(t *testing.T) {
	sess := session.New(nil)
	m, _ := lowerMain(t, sess, "func make(k: Int) -> (Int) -> Int { return { (x: Int) -> Int in x + k } }\nlet f = make(3)\nlet g = { (x: Int) -> Int in x * 2 }\nlet v = f(4) + g(1)")

	inner := m.Function("make.closure.0")
	if inner == nil {
		t.Fatalf("functions = %v, want make.closure.0", functionNames(m))
	}

	if len(inner.Params) != 2 {
		t.Errorf("make.closure.0 has %d params, want the capture and x", len(inner.Params))
	}

	var mk *mir.MakeClosure
	for _, in := range m.Function("make").Blocks[0].Instrs {
		if c, ok := in.(*mir.MakeClosure); ok {
			mk = c
		}
	}

	if mk == nil || mk.Func != "make.closure.0" || len(mk.Captures) != 1 {
		t.Errorf("make does not build its closure with one capture:\n%s", m.Function("make"))
	}

	if m.Function("main.toplevel.2.closure.0") == nil {
		t.Errorf("functions = %v, want main.toplevel.2.closure.0", functionNames(m))
	}
}

func TestLowerProtocolWitness(t *testing.T) {
	sess := session.New(nil)
	m, _ := lowerMain(t, sess, "protocol Shape { func area() -> Float }\nstruct Sq: Shape { let s: Float\n func area() -> Float { return s * s } }\nfunc total<T: Shape>(x: T) -> Float { return x.area() }\nlet v = total(Sq(2.0))")

	total := m.Function("total<Sq>")
	if total == nil {
		t.Fatalf("functions = %v, want total<Sq>", functionNames(m))
	}

	if got := calls(total); len(got) != 1 || got[0] != "Sq.area" {
		t.Errorf("total<Sq> calls %v, want [Sq.area]", got)
	}

	area := m.Function("Sq.area")
	if area == nil || len(area.Params) != 1 {
		t.Errorf("Sq.area = %v, want one receiver parameter", area)
	}

	if m.Function("Sq.init") == nil || len(m.Structs) != 1 {
		t.Errorf("struct Sq was not lowered: %v", functionNames(m))
	}
}

func TestLowerSkipsErroneousElements(t *testing.T) {
	sess := session.New(nil)
	m, res := lowerMain(t, sess, "let a: String = 1\nfunc bad() -> Int { return \"s\" }\nlet v = bad()\nprint(\"ok\")")

	if res.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", res.Skipped)
	}

	notes := sess.Diags.Filter(diagnostic.LowerSkipped)
	if len(notes) != 2 {
		t.Errorf("diagnostics = %v, want two skip notes", codes(sess))
	}

	if m.Global("a") != nil {
		t.Errorf("erroneous global a was emitted")
	}

	bad := m.Function("bad")
	if bad == nil || !bad.External() {
		t.Errorf("bad = %v, want an external declaration", bad)
	}

	wantInit := []string{"main.toplevel.2", "main.toplevel.3"}
	if strings.Join(m.Init, ",") != strings.Join(wantInit, ",") {
		t.Errorf("Init = %v, want %v", m.Init, wantInit)
	}
}

func TestLowerIncrementally(t *testing.T) {
	sess := session.New(nil)
	unit := ast.NewSourceUnit("main", position.NewSourceFile("main.oz", "func sq(x: Int) -> Int { return x * x }\n"))
	state := parser.NewState()
	opts := parser.Options{IsMainUnit: true, Interactive: true}
	l := mir.NewLowerer(sess, "main")

	step := func(more string) *mir.LowerResult {
		t.Helper()

		if more != "" {
			unit.File.Extend(more)
		}

		start := len(unit.Elements)
		if _, err := parser.ParseIntoUnit(sess, unit, state, opts); err != nil {
			t.Fatalf("ParseIntoUnit() error = %v", err)
		}

		if _, err := resolver.Bind(sess, unit, start); err != nil {
			t.Fatalf("Bind() error = %v", err)
		}

		if _, err := typechecker.Check(sess, unit, start); err != nil {
			t.Fatalf("Check() error = %v", err)
		}

		res, err := l.Lower(unit, start)
		if err != nil {
			t.Fatalf("Lower() error = %v", err)
		}

		return res
	}

	if res := step(""); strings.Join(res.Functions, ",") != "sq" {
		t.Fatalf("first Lower() added %v", res.Functions)
	}

	res := step("print(\"\\(sq(3))\")\n")
	if res.From != 1 || res.To != 2 || strings.Join(res.Functions, ",") != "main.toplevel.1" {
		t.Fatalf("second Lower() = %+v", res)
	}

	if got := calls(l.Module().Function("main.toplevel.1")); len(got) != 1 || got[0] != "sq" {
		t.Errorf("main.toplevel.1 calls %v", got)
	}

	if _, err := l.Lower(unit, 0); err == nil {
		t.Errorf("Lower() accepted a start before the previous one")
	}

	if err := typechecker.CheckModule(sess, l.Module()); err != nil {
		t.Errorf("CheckModule() error = %v", err)
	}
}

func TestLoweredModuleRoundTrips(t *testing.T) {
	sess := session.New(nil)
	src := `struct Counter { var n: Int }
var c = Counter(0)
func count(limit: Int) -> Int {
  var i = 0
  while i < limit {
    if i == 3 { break }
    i = i + 1
  }
  return i
}
c.n = count(10)
print("\(c.n)")
`
	m, _ := lowerMain(t, sess, src)

	text := mir.Print(m)
	for _, want := range []string{"while_cond_0:", "field ", "global @c : *Counter", "intrinsic eq("} {
		if !strings.Contains(text, want) {
			t.Errorf("printed module lacks %q:\n%s", want, text)
		}
	}

	again, err := mir.ParseText(text, mir.ParseOptions{})
	if err != nil {
		t.Fatalf("ParseText() error = %v\n%s", err, text)
	}

	if got := mir.Print(again); got != text {
		t.Errorf("round trip differs:\n%s\nwant\n%s", got, text)
	}

	if err := typechecker.CheckModule(sess, again); err != nil {
		t.Errorf("CheckModule() of the reparsed module error = %v", err)
	}
}

func TestLowerMIRBlock(t *testing.T) {
	sess := session.New(nil)
	m, _ := lowerMain(t, sess, "mir {\n  func @twice(%0: Int) -> Int {\n  entry:\n    %1 = intrinsic add(%0, %0) : Int\n    ret %1\n  }\n}\nlet v = twice(4)\n")

	tw := m.Function("twice")
	if tw == nil || tw.External() {
		t.Fatalf("twice = %v, want the block's definition", tw)
	}

	if got := calls(m.Function("main.toplevel.1")); len(got) != 1 || got[0] != "twice" {
		t.Errorf("main.toplevel.1 calls %v", got)
	}
}
