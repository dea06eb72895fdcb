// Structured diagnostic records for the ozc pipeline.
// The core only emits records (level, message key, arguments, span);
// turning them into human-readable text is the job of a renderer.

package diagnostic

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/orizon-lang/ozc/internal/position"
)

// DiagnosticLevel represents the severity level of a diagnostic message.
type DiagnosticLevel int

const (
	DiagnosticError DiagnosticLevel = iota
	DiagnosticWarning
	DiagnosticNote
)

func (dl DiagnosticLevel) String() string {
	switch dl {
	case DiagnosticError:
		return "error"
	case DiagnosticWarning:
		return "warning"
	case DiagnosticNote:
		return "note"
	default:
		return "unknown"
	}
}

// DiagnosticCategory represents the pipeline phase that produced a diagnostic.
type DiagnosticCategory int

const (
	DiagnosticLexical DiagnosticCategory = iota
	DiagnosticSyntax
	DiagnosticBinding
	DiagnosticType
	DiagnosticLowering
)

func (dc DiagnosticCategory) String() string {
	switch dc {
	case DiagnosticLexical:
		return "lexical"
	case DiagnosticSyntax:
		return "syntax"
	case DiagnosticBinding:
		return "binding"
	case DiagnosticType:
		return "type"
	case DiagnosticLowering:
		return "lowering"
	default:
		return "unknown"
	}
}

// Diagnostic represents a single diagnostic message. Code is the message
// key (for example "bind.unresolved"); Args fill the key's template.
type Diagnostic struct {
	Code        string
	Args        []string
	Suggestions []Suggestion
	RelatedInfo []RelatedInformation
	Span        position.Span
	Level       DiagnosticLevel
	Category    DiagnosticCategory
}

// Suggestion represents a suggested fix for a diagnostic.
type Suggestion struct {
	Title string
	Edits []TextEdit
}

// TextEdit represents a text replacement.
type TextEdit struct {
	NewText string
	Span    position.Span
}

// RelatedInformation provides additional context for a diagnostic.
type RelatedInformation struct {
	Code string
	Span position.Span
}

// Key returns a compact identity used by tests and deduplication.
func (d Diagnostic) Key() string {
	return fmt.Sprintf("%s@%d:%s", d.Code, d.Span.Start.Offset, strings.Join(d.Args, ","))
}

// DiagnosticBuilder helps construct diagnostic messages with fluent API.
type DiagnosticBuilder struct {
	diagnostic *Diagnostic
}

// NewDiagnostic creates a new diagnostic builder for the given message key.
func NewDiagnostic(code string) *DiagnosticBuilder {
	return &DiagnosticBuilder{diagnostic: &Diagnostic{Code: code}}
}

func (db *DiagnosticBuilder) Error() *DiagnosticBuilder {
	db.diagnostic.Level = DiagnosticError

	return db
}

func (db *DiagnosticBuilder) Warning() *DiagnosticBuilder {
	db.diagnostic.Level = DiagnosticWarning

	return db
}

func (db *DiagnosticBuilder) Note() *DiagnosticBuilder {
	db.diagnostic.Level = DiagnosticNote

	return db
}

func (db *DiagnosticBuilder) Category(c DiagnosticCategory) *DiagnosticBuilder {
	db.diagnostic.Category = c

	return db
}

func (db *DiagnosticBuilder) Args(args ...string) *DiagnosticBuilder {
	db.diagnostic.Args = append(db.diagnostic.Args, args...)

	return db
}

func (db *DiagnosticBuilder) Span(span position.Span) *DiagnosticBuilder {
	db.diagnostic.Span = span

	return db
}

func (db *DiagnosticBuilder) Suggest(title string, edits ...TextEdit) *DiagnosticBuilder {
	db.diagnostic.Suggestions = append(db.diagnostic.Suggestions, Suggestion{Title: title, Edits: edits})

	return db
}

func (db *DiagnosticBuilder) Related(span position.Span, code string) *DiagnosticBuilder {
	db.diagnostic.RelatedInfo = append(db.diagnostic.RelatedInfo, RelatedInformation{Span: span, Code: code})

	return db
}

func (db *DiagnosticBuilder) Build() Diagnostic {
	return *db.diagnostic
}

// Sink receives the diagnostic stream of a compilation session.
type Sink interface {
	Emit(d Diagnostic)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Diagnostic)

// Emit calls f(d).
func (f SinkFunc) Emit(d Diagnostic) { f(d) }

// Bag collects diagnostics. It is safe for concurrent emitters.
type Bag struct {
	mu          sync.Mutex
	diagnostics []Diagnostic
	errorCount  int
	warnCount   int
	forward     Sink
}

// NewBag creates an empty bag. When forward is non-nil every diagnostic is
// also passed on to it.
func NewBag(forward Sink) *Bag {
	return &Bag{forward: forward}
}

// Emit adds a diagnostic to the bag.
func (b *Bag) Emit(d Diagnostic) {
	b.mu.Lock()
	b.diagnostics = append(b.diagnostics, d)
	switch d.Level {
	case DiagnosticError:
		b.errorCount++
	case DiagnosticWarning:
		b.warnCount++
	}
	fwd := b.forward
	b.mu.Unlock()

	if fwd != nil {
		fwd.Emit(d)
	}
}

// HasErrors returns true if there are any errors
func (b *Bag) HasErrors() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errorCount > 0
}

// ErrorCount returns the number of errors
func (b *Bag) ErrorCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errorCount
}

// WarningCount returns the number of warnings
func (b *Bag) WarningCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.warnCount
}

// Len returns the number of collected diagnostics.
func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.diagnostics)
}

// Diagnostics returns a copy of all diagnostics in emission order.
func (b *Bag) Diagnostics() []Diagnostic {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Diagnostic, len(b.diagnostics))
	copy(out, b.diagnostics)
	return out
}

// Since returns the diagnostics emitted after the first n.
func (b *Bag) Since(n int) []Diagnostic {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n >= len(b.diagnostics) {
		return nil
	}
	out := make([]Diagnostic, len(b.diagnostics)-n)
	copy(out, b.diagnostics[n:])
	return out
}

// Sorted returns the diagnostics ordered by file, offset, then code. Units
// compiled in parallel emit in nondeterministic order; callers that print or
// compare diagnostics use this ordering.
func (b *Bag) Sorted() []Diagnostic {
	out := b.Diagnostics()
	sort.SliceStable(out, func(i, j int) bool {
		a, c := out[i].Span.Start, out[j].Span.Start
		if a.Filename != c.Filename {
			return a.Filename < c.Filename
		}
		if a.Offset != c.Offset {
			return a.Offset < c.Offset
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Filter returns the diagnostics matching code.
func (b *Bag) Filter(code string) []Diagnostic {
	var out []Diagnostic
	for _, d := range b.Diagnostics() {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}
