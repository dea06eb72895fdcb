// Package session holds the state shared by every phase of one
// compilation: configuration, logger, diagnostics, identifier interner,
// external modules, and the module-wide scope table. A Session is created
// once, passed explicitly to every phase, and discarded with the
// compilation.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/cli"
	"github.com/orizon-lang/ozc/internal/config"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/modules"
)

// ErrFrozen is returned when an external module is first requested after
// the session was frozen.
var ErrFrozen = errors.New("session is frozen")

// Module is an external module whose interface has been loaded.
type Module struct {
	Descriptor *modules.Descriptor
	Unit       *ast.SourceUnit
	exports    map[string][]ast.Decl
}

// Name returns the module name.
func (m *Module) Name() string { return m.Descriptor.Name }

// Lookup returns the exported declarations named name.
func (m *Module) Lookup(name string) []ast.Decl { return m.exports[name] }

// Exports returns every exported name.
func (m *Module) Exports() map[string][]ast.Decl { return m.exports }

// NewModule indexes the public top-level declarations of an interface unit.
func NewModule(d *modules.Descriptor, unit *ast.SourceUnit) *Module {
	m := &Module{Descriptor: d, Unit: unit, exports: make(map[string][]ast.Decl)}

	for _, e := range unit.Elements {
		decl, ok := e.(ast.Decl)
		if !ok || isPrivate(decl) {
			continue
		}

		switch decl.(type) {
		case *ast.ImportDeclaration, *ast.BadDeclaration:
			continue
		}

		if name := ast.DeclName(decl); name != "" {
			m.exports[name] = append(m.exports[name], decl)
		}
	}

	return m
}

func isPrivate(d ast.Decl) bool {
	switch d := d.(type) {
	case *ast.FunctionDeclaration:
		return d.IsPrivate
	case *ast.VariableDeclaration:
		return d.IsPrivate
	}

	return false
}

// Loader turns a module descriptor into a bound and checked interface
// unit. The pipeline installs one; it runs with the session unfrozen.
type Loader func(s *Session, d *modules.Descriptor) (*ast.SourceUnit, error)

// Session is the explicit compilation context.
type Session struct {
	Config   *config.Config
	Logger   *cli.Logger
	Diags    *diagnostic.Bag
	Registry *modules.Registry
	Names    *Interner
	Scope    *ScopeTable
	Loader   Loader

	mu      sync.Mutex
	loaded  map[string]*Module
	loading map[string]bool
	frozen  bool
}

// Option configures a new session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *cli.Logger) Option { return func(s *Session) { s.Logger = l } }

// WithSink forwards every diagnostic to sink.
func WithSink(sink diagnostic.Sink) Option {
	return func(s *Session) { s.Diags = diagnostic.NewBag(sink) }
}

// WithRegistry sets the external module registry.
func WithRegistry(r *modules.Registry) Option { return func(s *Session) { s.Registry = r } }

// WithLoader sets the external module loader.
func WithLoader(l Loader) Option { return func(s *Session) { s.Loader = l } }

// New creates a session. A nil cfg uses config.Default.
func New(cfg *config.Config, opts ...Option) *Session {
	if cfg == nil {
		cfg = config.Default()
	}

	s := &Session{
		Config:   cfg,
		Logger:   cli.Discard(),
		Diags:    diagnostic.NewBag(nil),
		Registry: modules.NewRegistry(),
		Names:    NewInterner(),
		Scope:    NewScopeTable(),
		loaded:   make(map[string]*Module),
		loading:  make(map[string]bool),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Emit records a diagnostic.
func (s *Session) Emit(d diagnostic.Diagnostic) { s.Diags.Emit(d) }

// Intern returns the canonical copy of name.
func (s *Session) Intern(name string) string { return s.Names.Intern(name) }

// Freeze publishes the interner, the module registry and the loaded
// module set as immutable. Call before compiling units in parallel.
func (s *Session) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()

	s.Names.Freeze()
	s.Registry.Freeze()
	s.Logger.Debug("session frozen: %d modules loaded, %d names interned", len(s.loaded), s.Names.Len())
}

// Frozen reports whether Freeze was called.
func (s *Session) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.frozen
}

// Module returns an already loaded external module.
func (s *Session) Module(name string) (*Module, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.loaded[name]

	return m, ok
}

// LoadedModules returns the loaded modules in no particular order.
func (s *Session) LoadedModules() []*Module {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Module, 0, len(s.loaded))
	for _, m := range s.loaded {
		out = append(out, m)
	}

	return out
}

// ImportModule returns the external module name, loading its interface
// on first use. The version is the highest registered one satisfying the
// configured constraint.
func (s *Session) ImportModule(name string) (*Module, error) {
	s.mu.Lock()

	if m, ok := s.loaded[name]; ok {
		s.mu.Unlock()

		return m, nil
	}

	if s.frozen {
		s.mu.Unlock()

		return nil, fmt.Errorf("%w: module %s was not loaded before parallel compilation", ErrFrozen, name)
	}

	if s.loading[name] {
		s.mu.Unlock()

		return nil, fmt.Errorf("module %s imports itself", name)
	}

	s.loading[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.loading, name)
		s.mu.Unlock()
	}()

	constraint, err := modules.ParseConstraint(s.Config.Constraint(name))
	if err != nil {
		return nil, fmt.Errorf("module %s: bad version constraint: %w", name, err)
	}

	d, err := s.Registry.Find(name, constraint)
	if err != nil {
		return nil, err
	}

	if s.Loader == nil {
		return nil, fmt.Errorf("module %s: no interface loader configured", name)
	}

	unit, err := s.Loader(s, d)
	if err != nil {
		return nil, fmt.Errorf("module %s@%s: %w", name, d.Version, err)
	}

	m := NewModule(d, unit)

	s.mu.Lock()
	s.loaded[name] = m
	s.mu.Unlock()

	s.Logger.Debug("loaded module %s@%s (%d exports)", name, d.Version, len(m.exports))

	return m, nil
}
