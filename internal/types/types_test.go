package types

import (
	"errors"
	"testing"
)

func TestConformsBuiltins(t *testing.T) {
	tests := []struct {
		typ   Type
		proto *ProtocolType
		want  bool
	}{
		{Int, Numeric, true},
		{Float, Comparable, true},
		{String, Equatable, true},
		{String, Numeric, false},
		{Bool, Comparable, false},
		{Void, Equatable, false},
		{ErrorType, Numeric, true},
	}

	for _, tt := range tests {
		if got := Conforms(tt.typ, tt.proto); got != tt.want {
			t.Errorf("Conforms(%s, %s) = %v, want %v", tt.typ, tt.proto, got, tt.want)
		}
	}
}

func TestConvertible(t *testing.T) {
	if !Convertible(Int, Float) {
		t.Errorf("Int should convert to Float")
	}

	if Convertible(Float, Int) {
		t.Errorf("Float should not convert to Int")
	}

	fn := &FunctionType{Params: []Type{Int}, Result: Bool}
	if !Convertible(fn, &FunctionType{Params: []Type{Int}, Result: Bool}) {
		t.Errorf("identical function types should convert")
	}
}

func TestArchetypeBuilder(t *testing.T) {
	b := NewArchetypeBuilder("sum")
	tp := b.AddParam("T")
	b.AddConformance(tp, Numeric)

	sig, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if got := sig.String(); got != "<T: Numeric>" {
		t.Errorf("String() = %q", got)
	}

	if !tp.ConformsTo(Numeric) || tp.ConformsTo(Equatable) {
		t.Errorf("unexpected conformances for %s", tp)
	}

	if _, err := b.Build(); err == nil {
		t.Errorf("second Build() should fail")
	}

	// archetypes of the same name in another signature are distinct
	other := NewArchetypeBuilder("id")
	tp2 := other.AddParam("T")

	if tp2 == tp || tp2.ID == tp.ID {
		t.Fatalf("archetype identity reused across signatures")
	}

	other.AddConformance(tp, Equatable)

	if _, err := other.Build(); err == nil {
		t.Errorf("requirement on a foreign archetype should be rejected")
	}
}

func TestArchetypeBuilderSuperclass(t *testing.T) {
	b := NewArchetypeBuilder("f")
	tp := b.AddParam("T")
	b.AddSuperclass(tp, &StructType{Name: "Base"})

	sig, err := b.Build()

	var unsupported *UnsupportedRequirementError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedRequirementError, got %v", err)
	}

	if sig == nil || len(sig.Requirements) != 0 {
		t.Errorf("signature should be usable without the unsupported requirement")
	}
}

func TestSolveEqualChain(t *testing.T) {
	cs := NewConstraintSystem()
	a := cs.NewTypeVar("a", nil)
	b := cs.NewTypeVar("b", nil)
	cs.Equal(a, b, "", nil)
	cs.Equal(b, Int, "", nil)

	sol, err := cs.Solve()
	if err != nil {
		t.Fatalf("Solve() error: %v", err)
	}

	if sol.Resolve(a) != Int {
		t.Errorf("a = %s, want Int", sol.Resolve(a))
	}
}

func TestSolveConflictNamesBothConstraints(t *testing.T) {
	cs := NewConstraintSystem()
	x := cs.NewTypeVar("x", nil)
	c1 := cs.Equal(x, Int, "first", nil)
	c2 := cs.Equal(x, Bool, "second", nil)

	_, err := cs.Solve()

	var se *SolveError
	if !errors.As(err, &se) {
		t.Fatalf("expected SolveError, got %v", err)
	}

	if se.Kind != SolveConflict {
		t.Fatalf("Kind = %v, want conflict", se.Kind)
	}

	if se.First != c1 || se.Second != c2 {
		t.Errorf("conflict named %v and %v", se.First, se.Second)
	}
}

func TestSolveLiteralConflict(t *testing.T) {
	cs := NewConstraintSystem()
	v := cs.NewTypeVar("literal", nil)
	lit := cs.Literal(v, []Type{Int, Float}, "1", nil)
	conv := cs.Convertible(v, String, "let s: String", nil)

	_, err := cs.Solve()

	var se *SolveError
	if !errors.As(err, &se) || se.Kind != SolveConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	named := map[*Constraint]bool{se.First: true, se.Second: true}
	if !named[lit] || !named[conv] {
		t.Errorf("conflict should name both the literal and the conversion: %v", err)
	}
}

func TestSolveUnsolved(t *testing.T) {
	cs := NewConstraintSystem()
	v := cs.NewTypeVar("result of id", nil)
	cs.Conforms(v, Equatable, "", nil)

	_, err := cs.Solve()

	var se *SolveError
	if !errors.As(err, &se) || se.Kind != SolveUnsolved {
		t.Fatalf("expected unsolved, got %v", err)
	}

	if len(se.Vars) != 1 || se.Vars[0] != v {
		t.Errorf("unsolved vars = %v", se.Vars)
	}
}

func TestSolveLiteralDefaultsToFirstCandidate(t *testing.T) {
	cs := NewConstraintSystem()
	v := cs.NewTypeVar("1", nil)
	cs.Literal(v, []Type{Int, Float}, "", nil)

	sol, err := cs.Solve()
	if err != nil {
		t.Fatalf("Solve() error: %v", err)
	}

	if sol.Resolve(v) != Int {
		t.Errorf("literal = %s, want Int", sol.Resolve(v))
	}
}

func TestSolvePrefersTypeBoundElsewhere(t *testing.T) {
	// a + 1 where a: Float
	cs := NewConstraintSystem()
	lit := cs.NewTypeVar("1", nil)
	cs.Literal(lit, []Type{Int, Float}, "", nil)

	sig := builtinNumericSignature(t)
	vars := sig.Instantiate(cs, "+", nil)
	operand := vars[sig.Params[0]]

	cs.Convertible(Float, operand, "lhs", nil)
	cs.Convertible(lit, operand, "rhs", nil)

	sol, err := cs.Solve()
	if err != nil {
		t.Fatalf("Solve() error: %v", err)
	}

	if sol.Resolve(operand) != Float || sol.Resolve(lit) != Float {
		t.Errorf("operand = %s, literal = %s, want Float for both", sol.Resolve(operand), sol.Resolve(lit))
	}
}

func TestSolveJoinOfLowerBounds(t *testing.T) {
	cs := NewConstraintSystem()
	v := cs.NewTypeVar("T", nil)
	cs.Convertible(Int, v, "", nil)
	cs.Convertible(Float, v, "", nil)

	sol, err := cs.Solve()
	if err != nil {
		t.Fatalf("Solve() error: %v", err)
	}

	if sol.Resolve(v) != Float {
		t.Errorf("T = %s, want Float", sol.Resolve(v))
	}
}

func TestSolveErrorTypeAbsorbs(t *testing.T) {
	cs := NewConstraintSystem()
	v := cs.NewTypeVar("T", nil)
	cs.Convertible(ErrorType, v, "", nil)
	cs.Conforms(v, Numeric, "", nil)

	sol, err := cs.Solve()
	if err != nil {
		t.Fatalf("Solve() error: %v", err)
	}

	if !IsError(sol.Resolve(v)) {
		t.Errorf("T = %s, want error sentinel", sol.Resolve(v))
	}
}

func TestSolveErrorTypeBindsEitherSide(t *testing.T) {
	cs := NewConstraintSystem()
	from := cs.NewTypeVar("from", nil)
	to := cs.NewTypeVar("to", nil)
	cs.Convertible(from, ErrorType, "", nil)
	cs.Convertible(ErrorType, to, "", nil)
	cs.Literal(from, []Type{Int, Float}, "", nil)
	cs.Conforms(to, Equatable, "", nil)

	sol, err := cs.Solve()
	if err != nil {
		t.Fatalf("Solve() error: %v", err)
	}

	for _, v := range []*TypeVar{from, to} {
		if got := sol.Resolve(v); !IsError(got) {
			t.Errorf("%s = %s, want error sentinel", v.Origin, got)
		}
	}
}

func TestSolveFunctionTypes(t *testing.T) {
	cs := NewConstraintSystem()
	p := cs.NewTypeVar("p", nil)
	r := cs.NewTypeVar("r", nil)
	cs.Convertible(&FunctionType{Params: []Type{Int}, Result: Bool}, &FunctionType{Params: []Type{p}, Result: r}, "", nil)

	sol, err := cs.Solve()
	if err != nil {
		t.Fatalf("Solve() error: %v", err)
	}

	if sol.Resolve(p) != Int || sol.Resolve(r) != Bool {
		t.Errorf("p = %s, r = %s", sol.Resolve(p), sol.Resolve(r))
	}
}

func TestSolveDeterministic(t *testing.T) {
	build := func() (*ConstraintSystem, []*TypeVar) {
		cs := NewConstraintSystem()
		a := cs.NewTypeVar("a", nil)
		b := cs.NewTypeVar("b", nil)
		c := cs.NewTypeVar("c", nil)
		cs.Literal(a, []Type{Int, Float}, "", nil)
		cs.Literal(b, []Type{Int, Float}, "", nil)
		cs.Convertible(a, c, "", nil)
		cs.Convertible(b, c, "", nil)
		cs.Conforms(c, Comparable, "", nil)

		return cs, []*TypeVar{a, b, c}
	}

	var first []string

	for run := 0; run < 5; run++ {
		cs, vars := build()

		sol, err := cs.Solve()
		if err != nil {
			t.Fatalf("Solve() error: %v", err)
		}

		var got []string
		for _, v := range vars {
			got = append(got, sol.Resolve(v).String())
		}

		if run == 0 {
			first = got

			continue
		}

		for i := range got {
			if got[i] != first[i] {
				t.Fatalf("run %d differs: %v vs %v", run, got, first)
			}
		}
	}
}

func TestSubstitutionKey(t *testing.T) {
	b := NewArchetypeBuilder("pair")
	tp := b.AddParam("T")
	up := b.AddParam("U")

	sig, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	subst := Substitution{tp: Int, up: Float}
	if got := subst.Key(sig); got != "Int,Float" {
		t.Errorf("Key() = %q", got)
	}

	fn := Substitute(&FunctionType{Params: []Type{tp, up}, Result: tp}, subst)
	if got := fn.String(); got != "(Int, Float) -> Int" {
		t.Errorf("Substitute() = %s", got)
	}
}

func builtinNumericSignature(t *testing.T) *GenericSignature {
	t.Helper()

	b := NewArchetypeBuilder("+")
	tp := b.AddParam("T")
	b.AddConformance(tp, Numeric)

	sig, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	return sig
}
