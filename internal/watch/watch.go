// Package watch recompiles a source file as it changes on disk. Appends
// resume the existing compilation; any other edit starts a fresh session.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/orizon-lang/ozc/internal/cli"
	"github.com/orizon-lang/ozc/internal/config"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/pipeline"
	"github.com/orizon-lang/ozc/internal/position"
)

// Update reports one recompilation.
type Update struct {
	Step *pipeline.StepResult
	// Restarted is set when the edit was not an append and the file was
	// compiled from scratch.
	Restarted bool
}

// Compiler tracks the compiled contents of one file.
type Compiler struct {
	Path   string
	Config *config.Config
	Logger *cli.Logger
	Sink   diagnostic.Sink

	text string
	file *position.SourceFile
	inc  *pipeline.Incremental
}

// NewCompiler returns a compiler for path. Nothing is read until Apply.
func NewCompiler(path string, cfg *config.Config, logger *cli.Logger, sink diagnostic.Sink) *Compiler {
	if cfg == nil {
		cfg = config.Default()
	}

	if logger == nil {
		logger = cli.Discard()
	}

	return &Compiler{Path: path, Config: cfg, Logger: logger, Sink: sink}
}

// Incremental returns the current compilation, or nil before the first Apply.
func (c *Compiler) Incremental() *pipeline.Incremental { return c.inc }

// Apply compiles text as the new contents of the file.
func (c *Compiler) Apply(ctx context.Context, text string) (*Update, error) {
	up := &Update{}

	switch {
	case c.inc != nil && text == c.text:
		return nil, nil
	case c.inc != nil && strings.HasPrefix(text, c.text):
		c.file.Extend(text[len(c.text):])
	default:
		if err := c.restart(text); err != nil {
			return nil, err
		}

		up.Restarted = true
	}

	c.text = text

	step, err := c.inc.Step(ctx)
	if err != nil {
		return nil, err
	}

	up.Step = step

	return up, nil
}

func (c *Compiler) restart(text string) error {
	sess, err := pipeline.NewSession(c.Config, c.Logger, c.Sink)
	if err != nil {
		return err
	}

	c.file = position.NewSourceFile(c.Path, text)
	c.inc = pipeline.NewIncremental(sess, c.Config.Name, c.file, true)

	if c.text != "" {
		c.Logger.Info("%s changed before its end, recompiling", c.Path)
	}

	return nil
}

// Watch compiles path once and again after every write until ctx is
// done. Writes arriving within settle of each other are handled together.
func (c *Compiler) Watch(ctx context.Context, settle time.Duration, onUpdate func(*Update)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()

	// Editors often replace the file, so the directory is watched.
	if err := w.Add(filepath.Dir(c.Path)); err != nil {
		return fmt.Errorf("watch %s: %w", c.Path, err)
	}

	if err := c.reload(ctx, onUpdate); err != nil {
		return err
	}

	target := filepath.Clean(c.Path)

	var timer <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}

			timer = time.After(settle)
		case <-timer:
			timer = nil

			if err := c.reload(ctx, onUpdate); err != nil {
				return err
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}

			c.Logger.Warn("watch %s: %v", c.Path, err)
		}
	}
}

func (c *Compiler) reload(ctx context.Context, onUpdate func(*Update)) error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	up, err := c.Apply(ctx, string(data))
	if err != nil {
		return err
	}

	if up != nil && onUpdate != nil {
		onUpdate(up)
	}

	return nil
}
