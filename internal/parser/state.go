package parser

import (
	"errors"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/lexer"
	"github.com/orizon-lang/ozc/internal/position"
)

var (
	// ErrWrongUnit is returned when a State is used with a unit other than
	// the one it was first used with.
	ErrWrongUnit = errors.New("parser state belongs to another source unit")
	// ErrAlreadyResolved is returned when a deferred body is resolved twice.
	ErrAlreadyResolved = errors.New("deferred body already resolved")
	// ErrNotDeferred is returned when a function has no deferred body in
	// the state's queue.
	ErrNotDeferred = errors.New("function body is not deferred")
)

// DeferredBody is a function body skipped during parsing. Start is the
// offset of its opening brace and End the offset just past the closing
// brace.
type DeferredBody struct {
	Decl     *ast.FunctionDeclaration
	Start    int
	End      int
	resolved bool
}

// Resolved reports whether the body has been parsed.
func (d *DeferredBody) Resolved() bool { return d.resolved }

// OpenScope is a bracket left open when interactive parsing ran out of
// input in the middle of an element.
type OpenScope struct {
	Kind   lexer.TokenType
	Offset int
}

// State is the caller-owned cursor of one source unit across successive
// ParseIntoUnit and ResolveDeferred calls.
type State struct {
	unit   *ast.SourceUnit
	offset int

	scopes   []OpenScope
	deferred []*DeferredBody
	byDecl   map[*ast.FunctionDeclaration]*DeferredBody

	completion     int
	completionDone bool
}

// NewState creates a state positioned at the start of its unit.
func NewState() *State {
	return &State{completion: -1, byDecl: make(map[*ast.FunctionDeclaration]*DeferredBody)}
}

func (s *State) bind(unit *ast.SourceUnit) error {
	if s.unit == nil {
		s.unit = unit

		return nil
	}

	if s.unit != unit {
		return ErrWrongUnit
	}

	return nil
}

// Unit returns the unit the state is bound to, or nil before first use.
func (s *State) Unit() *ast.SourceUnit { return s.unit }

// Offset returns the byte offset parsing resumes from.
func (s *State) Offset() int { return s.offset }

// OpenScopes returns the brackets left open by the last interactive call
// that reported incomplete input.
func (s *State) OpenScopes() []OpenScope { return s.scopes }

// Deferred returns the deferred bodies in registration order.
func (s *State) Deferred() []*DeferredBody { return s.deferred }

// Pending returns the number of deferred bodies not yet resolved.
func (s *State) Pending() int {
	n := 0

	for _, d := range s.deferred {
		if !d.Resolved() {
			n++
		}
	}

	return n
}

// RequestCompletion records a completion point. ResolveDeferred invokes its
// completion factory when it parses the token at offset.
func (s *State) RequestCompletion(offset int) {
	s.completion = offset
	s.completionDone = false
}

func (s *State) enqueue(d *DeferredBody) {
	s.deferred = append(s.deferred, d)
	s.byDecl[d.Decl] = d
}

// CompletionContext describes the point where completion was requested.
type CompletionContext struct {
	Unit   *ast.SourceUnit
	Decl   *ast.FunctionDeclaration
	Token  lexer.Token
	Offset int
	Span   position.Span
}

// CompletionFactory receives the completion point reached while deferred
// bodies are parsed.
type CompletionFactory interface {
	CompletionAt(ctx CompletionContext)
}

// CompletionFunc adapts a function to CompletionFactory.
type CompletionFunc func(CompletionContext)

// CompletionAt calls f(ctx).
func (f CompletionFunc) CompletionAt(ctx CompletionContext) { f(ctx) }
