// Command ozc is the compiler front end. It parses, binds, checks and
// lowers source files to MIR and writes the module as text or JSON.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/cli"
	"github.com/orizon-lang/ozc/internal/config"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/lexer"
	"github.com/orizon-lang/ozc/internal/parser"
	"github.com/orizon-lang/ozc/internal/pipeline"
	"github.com/orizon-lang/ozc/internal/position"
	"github.com/orizon-lang/ozc/internal/session"
	"github.com/orizon-lang/ozc/internal/watch"
)

const tool = "ozc"

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, args := os.Args[1], os.Args[2:]

	var code int

	switch sub {
	case "help", "-h", "--help":
		usage(os.Stdout)
	case "version", "-v", "--version":
		fs := flag.NewFlagSet("version", flag.ExitOnError)
		jsonOut := fs.Bool("json", false, "print version information as JSON")
		_ = fs.Parse(args)
		cli.PrintVersion(os.Stdout, tool, *jsonOut)
	case "build":
		code = build(ctx, args, 0)
	case "check":
		code = build(ctx, args, ast.PhaseCheck)
	case "parse":
		code = parse(args)
	case "tokens":
		code = tokens(args)
	case "watch":
		code = watchFile(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", sub)
		usage(os.Stderr)

		code = 2
	}

	os.Exit(code)
}

func usage(w io.Writer) {
	cli.PrintUsage(w, tool, []cli.CommandInfo{
		{Name: "build", Description: "Compile sources to MIR"},
		{Name: "check", Description: "Parse, bind and type check without lowering"},
		{Name: "parse", Description: "Print the syntax tree of a file"},
		{Name: "tokens", Description: "Print the token stream of a file"},
		{Name: "watch", Description: "Recompile a file whenever it changes"},
		{Name: "version", Description: "Show version information"},
	})
}

// options are the flags shared by the compiling subcommands.
type options struct {
	configPath string
	mainFile   string
	name       string
	jobs       int
	delay      bool
	validate   bool
	playground bool
	logLevel   string
	output     string
	format     string
	docPath    string
}

func (o *options) register(fs *flag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "configuration file (default: nearest "+config.FileName+")")
	fs.StringVar(&o.mainFile, "main", "", "file whose top-level statements are executed (default: first file)")
	fs.StringVar(&o.name, "name", "", "module name")
	fs.IntVar(&o.jobs, "jobs", 0, "units compiled in parallel")
	fs.BoolVar(&o.delay, "delay-bodies", false, "parse function bodies after their enclosing unit")
	fs.BoolVar(&o.validate, "validate", false, "validate the syntax trees after each phase")
	fs.BoolVar(&o.playground, "playground", false, "log the value of every top-level expression of the main file")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn, error or silent")
	fs.StringVar(&o.output, "o", "", "output file (default: stdout)")
	fs.StringVar(&o.format, "format", "text", "output format: text or json")
	fs.StringVar(&o.docPath, "doc", "", "with -format json, also write a declaration summary to this file")
}

// loadConfig reads the configuration and applies the flags set on fs.
func (o *options) loadConfig(fs *flag.FlagSet, near string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)

	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, err = config.Discover(near)
	}

	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			cfg.Name = o.name
		case "jobs":
			cfg.Jobs = o.jobs
		case "delay-bodies":
			cfg.DelayBodies = o.delay
		case "validate":
			cfg.ValidatePhases = o.validate
		case "playground":
			cfg.Playground = o.playground
		case "log-level":
			cfg.LogLevel = o.logLevel
		case "o":
			cfg.Output = o.output
		}
	})

	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) *cli.Logger {
	return cli.NewLogger(os.Stderr, cli.ParseLogLevel(cfg.LogLevel))
}

func printDiagnostics(diags []diagnostic.Diagnostic) {
	diagnostic.Render(os.Stderr, diags, cli.IsTerminal(os.Stderr))
}

func unitName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func build(ctx context.Context, args []string, stopAfter ast.Phase) int {
	fs := flag.NewFlagSet("build", flag.ExitOnError)

	var o options
	o.register(fs)
	_ = fs.Parse(args)

	files := fs.Args()
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s build [options] <file>...\n", tool)

		return 2
	}

	cfg, err := o.loadConfig(fs, files[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return 1
	}

	mainFile := o.mainFile
	if mainFile == "" {
		mainFile = files[0]
	}

	srcs := make([]pipeline.Source, 0, len(files))

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)

			return 1
		}

		srcs = append(srcs, pipeline.Source{
			Name: unitName(path),
			Path: path,
			Text: string(data),
			Main: filepath.Clean(path) == filepath.Clean(mainFile),
		})
	}

	logger := newLogger(cfg)

	sess, err := pipeline.NewSession(cfg, logger, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return 1
	}

	d := &pipeline.Driver{Sess: sess, StopAfter: stopAfter}

	var out *os.File

	if stopAfter == 0 {
		out = os.Stdout

		if cfg.Output != "" {
			out, err = os.Create(cfg.Output)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)

				return 1
			}
			defer out.Close()
		}

		switch o.format {
		case "text":
			d.Backend = pipeline.TextBackend{}
		case "json":
			d.Serializer = pipeline.JSONSerializer{}
			d.SerializeOptions = pipeline.SerializeOptions{Writer: out, DocPath: o.docPath, Indent: true}
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown format %q\n", o.format)

			return 2
		}
	}

	start := time.Now()
	res, err := d.CompileUnits(ctx, srcs)

	printDiagnostics(sess.Diags.Sorted())

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return 1
	}

	for name, herr := range res.Halted {
		fmt.Fprintf(os.Stderr, "Error: unit %s halted: %v\n", name, herr)
	}

	if res.Artifact != nil {
		if _, err := out.Write(res.Artifact.Data); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)

			return 1
		}
	}

	logger.Info("%d units in %s, %d skipped", len(res.Units), time.Since(start).Round(time.Millisecond), res.Skipped)

	if sess.Diags.HasErrors() || len(res.Halted) > 0 {
		return 1
	}

	return 0
}

func readSource(fs *flag.FlagSet, what string) (*position.SourceFile, bool) {
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s %s [options] <file>\n", tool, what)

		return nil, false
	}

	path := fs.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return nil, false
	}

	return position.NewSourceFile(path, string(data)), true
}

func parse(args []string) int {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	lib := fs.Bool("lib", false, "parse as a library unit")
	iface := fs.Bool("interface", false, "parse as a module interface")
	_ = fs.Parse(args)

	file, ok := readSource(fs, "parse")
	if !ok {
		return 2
	}

	sess := session.New(config.Default())
	unit := ast.NewSourceUnit(unitName(file.Filename), file)

	opts := parser.Options{IsMainUnit: !*lib && !*iface, InterfaceOnly: *iface}
	if _, err := parser.ParseIntoUnit(sess, unit, nil, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return 1
	}

	for i, n := range unit.Elements {
		fmt.Printf("%d: %s\n", i, ast.Format(n))
	}

	printDiagnostics(sess.Diags.Sorted())

	if sess.Diags.HasErrors() {
		return 1
	}

	return 0
}

func tokens(args []string) int {
	fs := flag.NewFlagSet("tokens", flag.ExitOnError)
	comments := fs.Bool("comments", false, "emit comments as tokens")
	_ = fs.Parse(args)

	file, ok := readSource(fs, "tokens")
	if !ok {
		return 2
	}

	code := 0
	lex := lexer.New(file, lexer.Options{KeepComments: *comments, TokenizeInterpolatedString: true})

	for tok := range lex.All() {
		fmt.Printf("%-8s %-16s %q\n", tok.Span.Start, tok.Type, tok.Literal)

		if tok.Type == lexer.TokenError {
			code = 1
		}
	}

	return code
}

func watchFile(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)

	var o options
	o.register(fs)
	settle := fs.Duration("settle", 100*time.Millisecond, "wait this long after a write before recompiling")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s watch [options] <file>\n", tool)

		return 2
	}

	path := fs.Arg(0)

	cfg, err := o.loadConfig(fs, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return 1
	}

	logger := newLogger(cfg)
	c := watch.NewCompiler(path, cfg, logger, nil)

	err = c.Watch(ctx, *settle, func(up *watch.Update) {
		if up.Restarted {
			fmt.Printf("// %s: recompiled\n", path)
		}

		printDiagnostics(up.Step.Diagnostics)

		for _, f := range up.Step.Functions {
			fmt.Print(f.String())
		}

		if up.Step.Incomplete {
			logger.Info("%s ends inside an unfinished element", path)
		}
	})

	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return 1
	}

	return 0
}
