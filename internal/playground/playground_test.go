package playground_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/mir"
	"github.com/orizon-lang/ozc/internal/parser"
	"github.com/orizon-lang/ozc/internal/playground"
	"github.com/orizon-lang/ozc/internal/position"
	"github.com/orizon-lang/ozc/internal/resolver"
	"github.com/orizon-lang/ozc/internal/session"
	"github.com/orizon-lang/ozc/internal/typechecker"
	"github.com/orizon-lang/ozc/internal/validator"
)

const src = `func half(x: Float) -> Float { return x / 2.0 }
let a = 1
print("\(a)")
a + 2
half(3.0)
let g = { (n: Int) -> Int in n }
`

func bound(t *testing.T, sess *session.Session, text string) *ast.SourceUnit {
	t.Helper()

	unit := ast.NewSourceUnit("main", position.NewSourceFile("main.oz", text))
	if _, err := parser.ParseIntoUnit(sess, unit, parser.NewState(), parser.Options{IsMainUnit: true}); err != nil {
		t.Fatalf("ParseIntoUnit() error = %v", err)
	}

	if _, err := resolver.Bind(sess, unit, 0); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	return unit
}

func TestTransformWrapsTopLevelValues(t *testing.T) {
	sess := session.New(nil)
	unit := bound(t, sess, src)

	res, err := playground.Transform(sess, unit, 0)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	if res.From != 0 || res.To != len(unit.Elements) || res.Wrapped != 3 {
		t.Errorf("Transform() = %+v, want 3 values wrapped", res)
	}

	want := []string{
		"func half(x: Float) -> Float { return (x / 2.0) }",
		"let a = $log(1)",
		`print("\(a)")`,
		"$log((a + 2))",
		"$log(half(3.0))",
		"let g = { (n: Int) -> Int in n; }",
	}

	for i, w := range want {
		if got := ast.Format(unit.Elements[i]); got != w {
			t.Errorf("element %d = %q, want %q", i, got, w)
		}
	}

	if res, err := playground.Transform(sess, unit, 0); err != nil || res.Wrapped != 0 {
		t.Errorf("second Transform() = %+v, %v, want nothing wrapped", res, err)
	}

	if err := validator.ValidateUnit(unit, ast.PhaseBind); err != nil {
		t.Errorf("ValidateUnit() error = %v", err)
	}
}

func TestTransformedUnitLowersToLogIntrinsics(t *testing.T) {
	sess := session.New(nil)
	unit := bound(t, sess, src)

	if _, err := playground.Transform(sess, unit, 0); err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	if _, err := typechecker.Check(sess, unit, 0); err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if sess.Diags.Len() != 0 {
		t.Fatalf("diagnostics = %v", sess.Diags.Diagnostics())
	}

	if err := validator.ValidateUnit(unit, ast.PhaseCheck); err != nil {
		t.Errorf("ValidateUnit() error = %v", err)
	}

	mod, err := mir.LowerModule(sess, "main", []*ast.SourceUnit{unit})
	if err != nil {
		t.Fatalf("LowerModule() error = %v", err)
	}

	if err := typechecker.CheckModule(sess, mod); err != nil {
		t.Errorf("CheckModule() error = %v\n%s", err, mir.Print(mod))
	}

	for _, name := range []string{"main.toplevel.1", "main.toplevel.3", "main.toplevel.4"} {
		f := mod.Function(name)
		if f == nil {
			t.Errorf("%s missing", name)

			continue
		}

		if !strings.Contains(f.String(), "intrinsic log(") {
			t.Errorf("%s does not log:\n%s", name, f)
		}
	}

	for _, name := range []string{"main.toplevel.2", "main.toplevel.5"} {
		if f := mod.Function(name); f == nil || strings.Contains(f.String(), "intrinsic log(") {
			t.Errorf("%s was wrapped:\n%v", name, f)
		}
	}
}

func TestTransformAfterCheck(t *testing.T) {
	sess := session.New(nil)
	unit := bound(t, sess, "let a = 1\n")

	if _, err := typechecker.Check(sess, unit, 0); err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if _, err := playground.Transform(sess, unit, 0); !errors.Is(err, playground.ErrAlreadyChecked) {
		t.Errorf("Transform() error = %v, want %v", err, playground.ErrAlreadyChecked)
	}
}
