// Command ozc-repl compiles a main unit line by line and prints the MIR of
// each new element.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"github.com/orizon-lang/ozc/internal/cli"
	"github.com/orizon-lang/ozc/internal/config"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/mir"
	"github.com/orizon-lang/ozc/internal/pipeline"
	"github.com/orizon-lang/ozc/internal/position"
)

const (
	historyFile = ".ozc_history"
	promptMain  = "ozc> "
	promptCont  = "...  "
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version information")
		configPath  = flag.String("config", "", "configuration file (default: nearest "+config.FileName+")")
		loadFile    = flag.String("load", "", "compile file before reading input")
		logLevel    = flag.String("log-level", "", "debug, info, warn, error or silent")
		logValues   = flag.Bool("playground", false, "log the value of every top-level expression")
	)

	flag.Parse()

	if *showVersion {
		cli.PrintVersion(os.Stdout, "ozc-repl", false)

		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		cli.ExitWithError("%v", err)
	}

	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if *logValues {
		cfg.Playground = true
	}

	r, err := newREPL(cfg, cli.NewLogger(os.Stderr, cli.ParseLogLevel(cfg.LogLevel)), os.Stdout)
	if err != nil {
		cli.ExitWithError("%v", err)
	}

	if *loadFile != "" {
		data, err := os.ReadFile(*loadFile)
		if err != nil {
			cli.ExitWithError("failed to load file %s: %v", *loadFile, err)
		}

		r.feed(context.Background(), string(data))
	}

	os.Exit(r.run())
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	return config.Discover(".")
}

type repl struct {
	cfg    *config.Config
	logger *cli.Logger
	out    io.Writer
	color  bool

	file *position.SourceFile
	inc  *pipeline.Incremental
}

func newREPL(cfg *config.Config, logger *cli.Logger, out io.Writer) (*repl, error) {
	r := &repl{cfg: cfg, logger: logger, out: out, color: cli.IsTerminal(os.Stderr)}

	return r, r.reset()
}

func (r *repl) reset() error {
	sess, err := pipeline.NewSession(r.cfg, r.logger, nil)
	if err != nil {
		return err
	}

	r.file = position.NewSourceFile("<repl>", "")
	r.inc = pipeline.NewIncremental(sess, r.cfg.Name, r.file, true)

	return nil
}

// feed appends text to the buffer and compiles what it completes. It
// reports whether the buffer ends inside an unfinished element.
func (r *repl) feed(ctx context.Context, text string) bool {
	r.file.Extend(text)

	res, err := r.inc.Step(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return false
	}

	diagnostic.Render(os.Stderr, res.Diagnostics, r.color)

	for _, f := range res.Functions {
		fmt.Fprint(r.out, f.String())
	}

	return res.Incomplete
}

func (r *repl) command(line string) (quit bool) {
	switch fields := strings.Fields(line); fields[0] {
	case ":quit", ":q", ":exit":
		return true
	case ":mir":
		fmt.Fprint(r.out, mir.Print(r.inc.Module()))
	case ":source":
		fmt.Fprint(r.out, r.file.Content)
	case ":reset":
		if err := r.reset(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	default:
		fmt.Fprintln(r.out, "commands: :mir, :source, :reset, :quit")
	}

	return false
}

func (r *repl) run() int {
	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(r.out, "ozc %s. Type :quit to exit.\n", cli.Version)

	prompt := promptMain

	for {
		line, err := ln.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			prompt = promptMain

			continue
		}

		if err != nil {
			fmt.Fprintln(r.out)

			return 0
		}

		if prompt == promptMain && strings.HasPrefix(strings.TrimSpace(line), ":") {
			if r.command(strings.TrimSpace(line)) {
				return 0
			}

			continue
		}

		if strings.TrimSpace(line) != "" {
			ln.AppendHistory(line)
		}

		prompt = promptMain
		if r.feed(ctx, line+"\n") {
			prompt = promptCont
		}

		if ctx.Err() != nil {
			return 1
		}
	}
}
