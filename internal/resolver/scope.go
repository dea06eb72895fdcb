package resolver

import (
	"github.com/orizon-lang/ozc/internal/ast"
)

// ScopeKind represents the kind of a local scope.
type ScopeKind int

const (
	ScopeKindGeneric ScopeKind = iota
	ScopeKindStruct
	ScopeKindFunction
	ScopeKindClosure
	ScopeKindBlock
)

// String returns the string representation of ScopeKind.
func (sk ScopeKind) String() string {
	switch sk {
	case ScopeKindGeneric:
		return "generic"
	case ScopeKindStruct:
		return "struct"
	case ScopeKindFunction:
		return "function"
	case ScopeKindClosure:
		return "closure"
	case ScopeKindBlock:
		return "block"
	default:
		return "unknown"
	}
}

// Scope is one lexical scope below the module level.
type Scope struct {
	Symbols map[string]ast.Decl
	// Closure is set for closure scopes.
	Closure *ast.ClosureExpression
	Kind    ScopeKind
}

func newScope(kind ScopeKind) *Scope {
	return &Scope{Kind: kind, Symbols: make(map[string]ast.Decl)}
}

// scopeStack is the chain of local scopes, innermost last.
type scopeStack struct {
	scopes []*Scope
}

func (s *scopeStack) push(sc *Scope) { s.scopes = append(s.scopes, sc) }

func (s *scopeStack) pop() { s.scopes = s.scopes[:len(s.scopes)-1] }

func (s *scopeStack) top() *Scope { return s.scopes[len(s.scopes)-1] }

// declare adds d to the innermost scope. It reports false when the name
// is already declared there.
func (s *scopeStack) declare(name string, d ast.Decl) bool {
	sc := s.top()
	if _, dup := sc.Symbols[name]; dup {
		return false
	}

	sc.Symbols[name] = d

	return true
}

// lookup finds name in the local scopes. accept filters candidates; a
// rejected symbol does not stop the search. It returns the declaration and
// the index of the scope it was found in.
func (s *scopeStack) lookup(name string, accept func(ast.Decl) bool) (ast.Decl, int) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if d, ok := s.scopes[i].Symbols[name]; ok && (accept == nil || accept(d)) {
			return d, i
		}
	}

	return nil, -1
}

// closuresAbove returns the closures whose scopes are nested deeper than
// index, outermost first.
func (s *scopeStack) closuresAbove(index int) []*ast.ClosureExpression {
	var out []*ast.ClosureExpression

	for _, sc := range s.scopes[index+1:] {
		if sc.Kind == ScopeKindClosure {
			out = append(out, sc.Closure)
		}
	}

	return out
}
