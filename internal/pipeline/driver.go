package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/errors"
	"github.com/orizon-lang/ozc/internal/mir"
	"github.com/orizon-lang/ozc/internal/parser"
	"github.com/orizon-lang/ozc/internal/playground"
	"github.com/orizon-lang/ozc/internal/position"
	"github.com/orizon-lang/ozc/internal/resolver"
	"github.com/orizon-lang/ozc/internal/session"
	"github.com/orizon-lang/ozc/internal/typechecker"
	"github.com/orizon-lang/ozc/internal/validator"
)

// Driver compiles a set of units sharing one session into one module.
// Backend and Serializer are optional.
type Driver struct {
	Sess       *session.Session
	Backend    Backend
	Serializer Serializer
	// SerializeOptions are passed to Serializer.
	SerializeOptions SerializeOptions
	// StopAfter ends compilation after binding or checking. The zero
	// value, ast.PhaseDeclare, runs every phase.
	StopAfter ast.Phase
}

// Result is the outcome of CompileUnits. Module is nil when compilation
// stopped before lowering.
type Result struct {
	Units    []*ast.SourceUnit
	Module   *mir.Module
	Artifact *Artifact
	// Halted maps units dropped for internal failures to the failure.
	Halted map[string]error
	// Skipped counts declarations and statements lowering left out.
	Skipped int
}

type unitState struct {
	unit   *ast.SourceUnit
	state  *parser.State
	main   bool
	halted error
}

// CompileUnits runs every phase over srcs. User errors are reported to
// the session's diagnostics and do not fail the call; internal failures
// halt the affected unit. The returned error is for failures that leave
// no usable result, such as a backend error or an inconsistent merge.
func (d *Driver) CompileUnits(ctx context.Context, srcs []Source) (*Result, error) {
	sess := d.Sess
	units := make([]*unitState, len(srcs))
	ir := typechecker.NewIRContext(sess)

	if err := d.parseAll(ctx, srcs, units, ir); err != nil {
		return nil, err
	}

	res := &Result{Halted: make(map[string]error)}
	for _, u := range units {
		res.Units = append(res.Units, u.unit)
	}

	phases := []struct {
		phase ast.Phase
		run   func(*session.Session, *ast.SourceUnit, int) error
	}{
		{ast.PhaseDeclare, func(s *session.Session, u *ast.SourceUnit, i int) error {
			_, err := resolver.Declare(s, u, i)
			return err
		}},
		{ast.PhaseBind, func(s *session.Session, u *ast.SourceUnit, i int) error {
			_, err := resolver.Bind(s, u, i)
			return err
		}},
		{ast.PhaseCheck, func(s *session.Session, u *ast.SourceUnit, i int) error {
			_, err := typechecker.Check(s, u, i)
			return err
		}},
	}

	for _, p := range phases {
		for _, u := range units {
			if u.halted != nil {
				continue
			}

			if err := p.run(sess, u.unit, 0); err != nil {
				return nil, fmt.Errorf("%s %s: %w", p.phase, u.unit.Name, err)
			}

			if p.phase == ast.PhaseBind && u.main && sess.Config.Playground {
				if _, err := playground.Transform(sess, u.unit, 0); err != nil {
					return nil, fmt.Errorf("playground %s: %w", u.unit.Name, err)
				}
			}

			d.validateUnit(u, p.phase)
		}

		if p.phase == d.StopAfter && p.phase != ast.PhaseDeclare {
			d.collectHalted(units, res)

			return res, nil
		}
	}

	sess.Freeze()

	mod, skipped, err := d.lowerAll(ctx, units)
	d.collectHalted(units, res)

	if err != nil {
		return res, err
	}

	res.Module = mod
	res.Skipped = skipped

	if err := typechecker.CheckModule(sess, mod); err != nil {
		return res, fmt.Errorf("module %s: %w", mod.Name, err)
	}

	if err := validator.ValidateModule(mod); err != nil {
		return res, fmt.Errorf("module %s: %w", mod.Name, err)
	}

	return res, d.emit(ctx, res)
}

func (d *Driver) parseAll(ctx context.Context, srcs []Source, units []*unitState, ir parser.IRContext) error {
	cfg := d.Sess.Config
	g, gctx := errgroup.WithContext(ctx)

	sem := make(chan struct{}, max(cfg.Jobs, 1))

	for i, src := range srcs {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}

			defer func() { <-sem }()

			path := src.Path
			if path == "" {
				path = src.Name
			}

			u := &unitState{
				unit:  ast.NewSourceUnit(src.Name, position.NewSourceFile(path, src.Text)),
				state: parser.NewState(),
				main:  src.Main,
			}

			opts := parser.Options{IsMainUnit: src.Main, DelayBodies: cfg.DelayBodies, IRContext: ir}
			if _, err := parser.ParseIntoUnit(d.Sess, u.unit, u.state, opts); err != nil {
				return fmt.Errorf("parse %s: %w", src.Name, err)
			}

			if cfg.DelayBodies {
				if err := parser.ResolveDeferred(d.Sess, u.unit, u.state, nil); err != nil {
					return fmt.Errorf("parse %s: %w", src.Name, err)
				}
			}

			units[i] = u

			return nil
		})
	}

	return g.Wait()
}

// lowerAll lowers the units in parallel, one lowerer each, and merges the
// per-unit modules in unit order so the result does not depend on
// scheduling.
func (d *Driver) lowerAll(ctx context.Context, units []*unitState) (*mir.Module, int, error) {
	sess := d.Sess
	parts := make([]*mir.Module, len(units))
	skipped := make([]int, len(units))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, max(sess.Config.Jobs, 1))

	for i, u := range units {
		if u.halted != nil || u.unit.InterfaceOnly {
			continue
		}

		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}

			defer func() { <-sem }()

			l := mir.NewLowerer(sess, sess.Config.Name)

			res, err := l.Lower(u.unit, 0)
			if err == nil {
				err = validateFunctions(l.Module())
			}

			if err != nil {
				if !errors.IsInvariant(err) {
					return fmt.Errorf("lower %s: %w", u.unit.Name, err)
				}

				u.halted = err

				return nil
			}

			parts[i] = l.Module()
			skipped[i] = res.Skipped

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	mod := mir.NewModule(sess.Config.Name)
	total := 0

	for i, part := range parts {
		if part == nil {
			continue
		}

		if err := mod.Merge(part); err != nil {
			return nil, 0, fmt.Errorf("merge %s: %w", units[i].unit.Name, err)
		}

		total += skipped[i]
	}

	sess.Logger.Debug("module %s: %d functions from %d units", mod.Name, len(mod.Functions), len(units))

	return mod, total, nil
}

func validateFunctions(m *mir.Module) error {
	var errs []error

	for _, f := range m.Functions {
		if err := validator.ValidateFunction(f); err != nil {
			errs = append(errs, err)
		}
	}

	return stderrors.Join(errs...)
}

// validateUnit halts u when the tree is inconsistent after phase.
func (d *Driver) validateUnit(u *unitState, phase ast.Phase) {
	if !d.Sess.Config.ValidatePhases {
		return
	}

	if err := validator.ValidateUnit(u.unit, phase); err != nil {
		d.Sess.Logger.Error("unit %s halted after %s: %v", u.unit.Name, phase, err)
		u.halted = err
	}
}

func (d *Driver) collectHalted(units []*unitState, res *Result) {
	for _, u := range units {
		if u.halted != nil {
			res.Halted[u.unit.Name] = u.halted
		}
	}
}

func (d *Driver) emit(ctx context.Context, res *Result) error {
	if d.Backend != nil {
		art, err := d.Backend.Generate(ctx, res.Module, res.Module.Name)
		if err != nil {
			return fmt.Errorf("backend: %w", err)
		}

		res.Artifact = art
	}

	if d.Serializer != nil {
		if err := d.Serializer.Serialize(ctx, res.Module, d.SerializeOptions); err != nil {
			return fmt.Errorf("serializer: %w", err)
		}
	}

	return nil
}
