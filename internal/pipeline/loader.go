package pipeline

import (
	"fmt"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/cli"
	"github.com/orizon-lang/ozc/internal/config"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/modules"
	"github.com/orizon-lang/ozc/internal/parser"
	"github.com/orizon-lang/ozc/internal/position"
	"github.com/orizon-lang/ozc/internal/resolver"
	"github.com/orizon-lang/ozc/internal/session"
	"github.com/orizon-lang/ozc/internal/typechecker"
)

// NewSession creates a session for cfg whose registry holds the module
// manifests found in cfg.ModulePaths and whose loader is LoadInterface.
// A nil sink keeps diagnostics in the session only.
func NewSession(cfg *config.Config, logger *cli.Logger, sink diagnostic.Sink) (*session.Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	reg := modules.NewRegistry()
	for _, dir := range cfg.ModulePaths {
		if err := reg.LoadDir(dir); err != nil {
			return nil, err
		}
	}

	opts := []session.Option{session.WithRegistry(reg), session.WithLoader(LoadInterface)}
	if logger != nil {
		opts = append(opts, session.WithLogger(logger))
	}

	if sink != nil {
		opts = append(opts, session.WithSink(sink))
	}

	sess := session.New(cfg, opts...)
	sess.Logger.Debug("registry: %d modules from %d paths", len(reg.Names()), len(cfg.ModulePaths))

	return sess, nil
}

// LoadInterface parses, binds and checks the interface of d. Its
// declarations are typed eagerly so units compiled in parallel only read
// them.
func LoadInterface(s *session.Session, d *modules.Descriptor) (*ast.SourceUnit, error) {
	unit := ast.NewSourceUnit(d.Name, position.NewSourceFile(d.Filename(), d.Interface))
	unit.Module = d.Name

	before := s.Diags.ErrorCount()

	if _, err := parser.ParseIntoUnit(s, unit, parser.NewState(), parser.Options{InterfaceOnly: true}); err != nil {
		return nil, err
	}

	if _, err := resolver.Bind(s, unit, 0); err != nil {
		return nil, err
	}

	if _, err := typechecker.Check(s, unit, 0); err != nil {
		return nil, err
	}

	if n := s.Diags.ErrorCount() - before; n > 0 {
		return nil, fmt.Errorf("interface has %d errors", n)
	}

	return unit, nil
}
