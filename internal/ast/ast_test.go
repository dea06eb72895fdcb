package ast

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/orizon-lang/ozc/internal/position"
	"github.com/orizon-lang/ozc/internal/types"
)

func sampleFunction() *FunctionDeclaration {
	ret := &ReturnStatement{Value: &SequenceExpression{
		Operands:  []Expr{&Identifier{Name: "x"}, &IntegerLiteral{Raw: "1", Value: 1}},
		Operators: []*Identifier{{Name: "+"}},
	}}

	return &FunctionDeclaration{
		Name:       "inc",
		Parameters: []*Parameter{{Name: "x", TypeAnnotation: &TypeName{Name: "Int"}}},
		ReturnType: &TypeName{Name: "Int"},
		Body:       &BlockStatement{Statements: []Stmt{ret}},
	}
}

func TestAppendAssignsIDsAndParents(t *testing.T) {
	unit := NewSourceUnit("main", position.NewSourceFile("main.oz", ""))
	fn := sampleFunction()

	if idx := unit.Append(fn); idx != 0 {
		t.Fatalf("Append() = %d, want 0", idx)
	}

	count := 0

	Inspect(fn, func(n Node) bool {
		count++

		if n.Base().ID == NoNode {
			t.Errorf("%T has no ID", n)
		}

		if unit.Node(n.Base().ID) != n {
			t.Errorf("arena lookup mismatch for %T", n)
		}

		for _, c := range Children(n) {
			if c.Base().Parent != n.Base().ID {
				t.Errorf("%T parent = %d, want %d", c, c.Base().Parent, n.Base().ID)
			}
		}

		return true
	})

	if unit.Arena.Len() != count {
		t.Errorf("arena has %d nodes, tree has %d", unit.Arena.Len(), count)
	}

	ret := fn.Body.Statements[0]
	if unit.TopLevelOf(ret) != fn {
		t.Errorf("TopLevelOf() did not reach the function")
	}
}

func TestFoldedSequenceChildren(t *testing.T) {
	unit := NewSourceUnit("main", position.NewSourceFile("main.oz", ""))
	fn := sampleFunction()
	unit.Append(fn)

	seq := fn.Body.Statements[0].(*ReturnStatement).Value.(*SequenceExpression)
	bin := &BinaryExpression{Left: seq.Operands[0], Operator: seq.Operators[0], Right: seq.Operands[1]}
	seq.Folded = bin
	unit.Adopt(bin, seq.ID)

	if got := Children(seq); len(got) != 1 || got[0] != bin {
		t.Fatalf("folded sequence children = %v", got)
	}

	if seq.Operands[0].Base().Parent != bin.ID {
		t.Errorf("operand not re-parented to the folded node")
	}

	if Unfold(seq) != bin {
		t.Errorf("Unfold() did not return the folded tree")
	}

	if got := Format(fn); got != "func inc(x: Int) -> Int { return (x + 1) }" {
		t.Errorf("Format() = %q", got)
	}
}

func TestSetTypeWriteOnce(t *testing.T) {
	id := &Identifier{Name: "a"}
	id.SetType(types.Int)
	id.SetType(types.Float)

	if id.Type() != types.Int {
		t.Errorf("type overwritten: %s", id.Type())
	}

	id.SetType(types.ErrorType)

	if !types.IsError(id.Type()) {
		t.Errorf("error sentinel should override")
	}
}

func TestAnnotationIsSeparateFromCheckedType(t *testing.T) {
	vd := &VariableDeclaration{Kind: VarKindVar, Name: "n", TypeAnnotation: &TypeName{Name: "Float"}}
	param := &Parameter{Name: "x", TypeAnnotation: &TypeName{Name: "Int"}}

	for _, d := range []Node{vd, param} {
		if d.Base().HasType() {
			t.Errorf("%T has a type before checking", d)
		}
	}

	vd.SetType(types.Float)
	param.SetType(types.Int)

	if vd.Type() != types.Float || param.Type() != types.Int {
		t.Errorf("checked types = %v, %v", vd.Type(), param.Type())
	}

	if got := Format(vd); got != "var n: Float" {
		t.Errorf("Format(vd) = %q", got)
	}

	if got := Format(param); got != "x: Int" {
		t.Errorf("Format(param) = %q", got)
	}
}

func TestBeginPhaseMonotonic(t *testing.T) {
	unit := NewSourceUnit("main", position.NewSourceFile("main.oz", ""))
	for i := 0; i < 3; i++ {
		unit.Append(&ExpressionStatement{Expression: &IntegerLiteral{Raw: "1", Value: 1}})
	}

	from, to, err := unit.BeginPhase(PhaseBind, 1)
	if err != nil || from != 1 || to != 3 {
		t.Fatalf("BeginPhase(1) = %d, %d, %v", from, to, err)
	}

	unit.EndPhase(PhaseBind, to)

	// same start again: nothing left to do
	from, to, err = unit.BeginPhase(PhaseBind, 1)
	if err != nil || from != to {
		t.Fatalf("repeat BeginPhase(1) = %d, %d, %v", from, to, err)
	}

	if _, _, err := unit.BeginPhase(PhaseBind, 0); !errors.Is(err, ErrNonMonotonicStart) {
		t.Errorf("expected ErrNonMonotonicStart, got %v", err)
	}

	if _, _, err := unit.BeginPhase(PhaseCheck, 4); !errors.Is(err, ErrStartOutOfRange) {
		t.Errorf("expected ErrStartOutOfRange, got %v", err)
	}

	// phases are tracked independently
	if _, _, err := unit.BeginPhase(PhaseCheck, 0); err != nil {
		t.Errorf("check phase should accept start 0: %v", err)
	}
}

func TestDump(t *testing.T) {
	fn := sampleFunction()
	fn.Parameters[0].SetType(types.Int)

	var buf bytes.Buffer
	Dump(&buf, fn)

	out := buf.String()
	if !strings.Contains(out, "FunctionDeclaration inc") || !strings.Contains(out, "  Parameter x : Int") {
		t.Errorf("unexpected dump:\n%s", out)
	}
}
