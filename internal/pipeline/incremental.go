package pipeline

import (
	"context"
	"fmt"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/mir"
	"github.com/orizon-lang/ozc/internal/parser"
	"github.com/orizon-lang/ozc/internal/playground"
	"github.com/orizon-lang/ozc/internal/position"
	"github.com/orizon-lang/ozc/internal/resolver"
	"github.com/orizon-lang/ozc/internal/session"
	"github.com/orizon-lang/ozc/internal/typechecker"
	"github.com/orizon-lang/ozc/internal/validator"
)

// Incremental compiles one main unit whose buffer only grows. Each Step
// runs the phases over the elements appended since the previous one; the
// REPL and watch mode are built on it.
type Incremental struct {
	sess    *session.Session
	unit    *ast.SourceUnit
	state   *parser.State
	opts    parser.Options
	lowerer *mir.Lowerer
}

// StepResult describes what one Step added.
type StepResult struct {
	From, To int
	// Functions are the MIR functions emitted for the new elements.
	Functions []*mir.Function
	// Diagnostics were emitted while processing the new elements.
	Diagnostics []diagnostic.Diagnostic
	// Incomplete is set when the buffer ends inside an unclosed element.
	Incomplete bool
	// SideEffects counts the side-effecting statements parsed.
	SideEffects int
}

// NewIncremental starts compiling file as the main unit name. Interactive
// parsing stops after each side-effecting statement and leaves unclosed
// elements for a later step.
func NewIncremental(sess *session.Session, name string, file *position.SourceFile, interactive bool) *Incremental {
	c := &Incremental{
		sess:    sess,
		unit:    ast.NewSourceUnit(name, file),
		state:   parser.NewState(),
		lowerer: mir.NewLowerer(sess, sess.Config.Name),
	}

	c.opts = parser.Options{
		IsMainUnit:  true,
		Interactive: interactive,
		IRContext:   typechecker.NewIRContext(sess),
	}

	return c
}

// Unit returns the unit being compiled.
func (c *Incremental) Unit() *ast.SourceUnit { return c.unit }

// Module returns everything lowered so far.
func (c *Incremental) Module() *mir.Module { return c.lowerer.Module() }

// Step processes whatever the buffer gained since the last call.
func (c *Incremental) Step(ctx context.Context) (*StepResult, error) {
	res := &StepResult{From: len(c.unit.Elements)}
	mark := c.sess.Diags.Len()

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		start := len(c.unit.Elements)

		pr, err := parser.ParseIntoUnit(c.sess, c.unit, c.state, c.opts)
		if err != nil {
			return res, err
		}

		if pr.FoundSideEffects {
			res.SideEffects++
		}

		if pr.Added > 0 {
			if err := c.run(start, res); err != nil {
				return res, err
			}
		}

		if pr.Incomplete {
			res.Incomplete = true

			break
		}

		if pr.Done || pr.Added == 0 {
			break
		}
	}

	res.To = len(c.unit.Elements)
	res.Diagnostics = c.sess.Diags.Since(mark)

	return res, nil
}

func (c *Incremental) run(start int, res *StepResult) error {
	if _, err := resolver.Bind(c.sess, c.unit, start); err != nil {
		return err
	}

	if c.sess.Config.Playground {
		if _, err := playground.Transform(c.sess, c.unit, start); err != nil {
			return err
		}
	}

	if _, err := typechecker.Check(c.sess, c.unit, start); err != nil {
		return err
	}

	if c.sess.Config.ValidatePhases {
		if err := validator.ValidateUnit(c.unit, ast.PhaseCheck); err != nil {
			return fmt.Errorf("unit %s: %w", c.unit.Name, err)
		}
	}

	lr, err := c.lowerer.Lower(c.unit, start)
	if err != nil {
		return err
	}

	mod := c.lowerer.Module()

	for _, name := range lr.Functions {
		f := mod.Function(name)
		if f == nil {
			continue
		}

		if err := validator.ValidateFunction(f); err != nil {
			return fmt.Errorf("unit %s: %w", c.unit.Name, err)
		}

		res.Functions = append(res.Functions, f)
	}

	return nil
}
