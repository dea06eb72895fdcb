package diagnostic

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/orizon-lang/ozc/internal/position"
)

func spanAt(file string, off int) position.Span {
	p := position.Position{Filename: file, Line: 1, Column: off + 1, Offset: off}
	return position.Span{Start: p, End: p}
}

func TestBuilderAndFormat(t *testing.T) {
	d := NewDiagnostic(BindUnresolved).
		Error().
		Category(DiagnosticBinding).
		Args("foo").
		Span(spanAt("a.oz", 3)).
		Suggest("declare it").
		Build()

	if d.Level != DiagnosticError || d.Category != DiagnosticBinding {
		t.Fatalf("unexpected level/category: %v/%v", d.Level, d.Category)
	}
	if got := Format(d); got != `cannot find "foo" in scope` {
		t.Errorf("Format() = %q", got)
	}
	if len(d.Suggestions) != 1 {
		t.Errorf("expected one suggestion, got %d", len(d.Suggestions))
	}
}

func TestFormatUnknownKey(t *testing.T) {
	d := Diagnostic{Code: "x.custom", Args: []string{"a", "b"}}
	if got := Format(d); got != "x.custom a b" {
		t.Errorf("Format() = %q", got)
	}
}

func TestBagConcurrentEmitAndSorted(t *testing.T) {
	var forwarded int
	var mu sync.Mutex
	bag := NewBag(SinkFunc(func(Diagnostic) {
		mu.Lock()
		forwarded++
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := NewDiagnostic(TypeConflict).Span(spanAt("b.oz", 20-i))
			if i%2 == 0 {
				b.Warning()
			}
			bag.Emit(b.Build())
		}(i)
	}
	wg.Wait()

	if bag.Len() != 20 || forwarded != 20 {
		t.Fatalf("Len() = %d, forwarded = %d", bag.Len(), forwarded)
	}
	if bag.ErrorCount() != 10 || bag.WarningCount() != 10 {
		t.Errorf("counts = %d errors, %d warnings", bag.ErrorCount(), bag.WarningCount())
	}

	sorted := bag.Sorted()
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Span.Start.Offset > sorted[i].Span.Start.Offset {
			t.Fatalf("Sorted() not ordered at %d", i)
		}
	}
	if got := bag.Since(18); len(got) != 2 {
		t.Errorf("Since(18) returned %d diagnostics", len(got))
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, []Diagnostic{
		NewDiagnostic(ParseExpected).Args("')'", "'}'").Span(spanAt("c.oz", 0)).Build(),
	}, false)

	if !strings.Contains(buf.String(), "c.oz:1:1: error: expected ')', found '}' [parse.expected]") {
		t.Errorf("unexpected render %q", buf.String())
	}
}
