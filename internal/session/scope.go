package session

import (
	"sort"
	"sync"

	"github.com/orizon-lang/ozc/internal/ast"
)

// Namespace separates the kinds of module-level names.
type Namespace int

const (
	// NamespaceValue holds functions, globals, structs and protocols.
	NamespaceValue Namespace = iota
	// NamespaceInfix holds infix operator declarations.
	NamespaceInfix
	// NamespacePrefix holds prefix operator declarations.
	NamespacePrefix
	// NamespacePrecedence holds precedence groups.
	NamespacePrecedence
)

func (ns Namespace) String() string {
	switch ns {
	case NamespaceInfix:
		return "infix"
	case NamespacePrefix:
		return "prefix"
	case NamespacePrecedence:
		return "precedencegroup"
	default:
		return "value"
	}
}

// Symbol is one published top-level declaration.
type Symbol struct {
	Name string
	Decl ast.Decl
	// Unit is the name of the source unit that published the symbol.
	Unit string
}

type symbolKey struct {
	ns   Namespace
	name string
}

// ScopeTable is the module-wide table of top-level names. It is
// append-only: a published symbol is never removed or replaced, so a
// lookup result stays valid for every later caller. Publishing is
// serialized; lookups may run concurrently with it.
type ScopeTable struct {
	mu      sync.RWMutex
	symbols map[symbolKey][]Symbol
	count   int
}

// NewScopeTable creates an empty table.
func NewScopeTable() *ScopeTable {
	return &ScopeTable{symbols: make(map[symbolKey][]Symbol)}
}

// Publish appends a symbol. It returns the symbols that were already
// published under the same name before this one; a non-empty result from
// another unit means the name is now ambiguous.
func (t *ScopeTable) Publish(ns Namespace, name string, decl ast.Decl, unit string) []Symbol {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := symbolKey{ns, name}

	prior := t.symbols[key]
	for _, s := range prior {
		if s.Decl == decl {
			return nil
		}
	}

	out := make([]Symbol, len(prior))
	copy(out, prior)

	t.symbols[key] = append(t.symbols[key], Symbol{Name: name, Decl: decl, Unit: unit})
	t.count++

	return out
}

// Lookup returns the symbols published under name, in publication order.
func (t *ScopeTable) Lookup(ns Namespace, name string) []Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()

	syms := t.symbols[symbolKey{ns, name}]
	out := make([]Symbol, len(syms))
	copy(out, syms)

	return out
}

// Names returns every published name in ns, sorted.
func (t *ScopeTable) Names(ns Namespace) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var names []string

	for k := range t.symbols {
		if k.ns == ns {
			names = append(names, k.name)
		}
	}

	sort.Strings(names)

	return names
}

// Len returns the number of published symbols.
func (t *ScopeTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.count
}
