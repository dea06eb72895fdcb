package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/config"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/mir"
	"github.com/orizon-lang/ozc/internal/pipeline"
	"github.com/orizon-lang/ozc/internal/pipeline/mocks"
	"github.com/orizon-lang/ozc/internal/position"
)

var sources = []pipeline.Source{
	{Name: "lib", Text: "func double(x: Int) -> Int { return x * 2 }\nfunc id<T>(x: T) -> T { return x }\nlet seed = id(1)\n"},
	{Name: "main", Main: true, Text: "print(\"\\(double(id(seed)))\")\nlet name = id(\"ozc\")\n"},
}

func newDriver(t *testing.T, cfg *config.Config, sink diagnostic.Sink) *pipeline.Driver {
	t.Helper()

	sess, err := pipeline.NewSession(cfg, nil, sink)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	return &pipeline.Driver{Sess: sess}
}

func TestCompileUnits(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	serializer := mocks.NewMockSerializer(ctrl)

	d := newDriver(t, nil, nil)
	d.Backend = backend
	d.Serializer = serializer

	backend.EXPECT().
		Generate(gomock.Any(), gomock.Any(), "main").
		DoAndReturn(func(_ context.Context, m *mir.Module, name string) (*pipeline.Artifact, error) {
			return &pipeline.Artifact{Name: name, Data: []byte(mir.Print(m))}, nil
		})
	serializer.EXPECT().Serialize(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	res, err := d.CompileUnits(context.Background(), sources)
	if err != nil {
		t.Fatalf("CompileUnits() error = %v", err)
	}

	if n := d.Sess.Diags.Len(); n != 0 {
		t.Fatalf("%d diagnostics: %v", n, d.Sess.Diags.Diagnostics())
	}

	m := res.Module
	count := map[string]int{}
	for _, f := range m.Functions {
		count[f.Name]++
	}

	for _, name := range []string{"double", "id<Int>", "id<String>"} {
		if count[name] != 1 {
			t.Errorf("%s appears %d times in the merged module", name, count[name])
		}
	}

	if f := m.Function("id<Int>"); f == nil || f.External() {
		t.Errorf("id<Int> = %v, want a definition", f)
	}

	wantInit := "lib.toplevel.2,main.toplevel.0,main.toplevel.1"
	if got := strings.Join(m.Init, ","); got != wantInit {
		t.Errorf("Init = %s, want %s", got, wantInit)
	}

	if res.Artifact == nil || res.Artifact.Name != "main" {
		t.Errorf("Artifact = %+v", res.Artifact)
	}

	if !d.Sess.Frozen() {
		t.Errorf("session was not frozen before lowering")
	}
}

func TestCompileUnitsIsDeterministic(t *testing.T) {
	var first string

	for i := 0; i < 5; i++ {
		cfg := config.Default()
		cfg.Jobs = 4

		res, err := newDriver(t, cfg, nil).CompileUnits(context.Background(), sources)
		if err != nil {
			t.Fatalf("CompileUnits() error = %v", err)
		}

		text := mir.Print(res.Module)
		if i == 0 {
			first = text

			continue
		}

		if text != first {
			t.Fatalf("run %d printed a different module:\n%s\nwant\n%s", i, text, first)
		}
	}
}

func TestDiagnosticsReachTheSink(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)

	var got []string
	sink.EXPECT().Emit(gomock.Any()).Do(func(d diagnostic.Diagnostic) {
		got = append(got, d.Code)
	}).MinTimes(1)

	src := []pipeline.Source{{Name: "main", Main: true, Text: "let a = missing + 1\nprint(\"ok\")\n"}}

	res, err := newDriver(t, nil, sink).CompileUnits(context.Background(), src)
	if err != nil {
		t.Fatalf("CompileUnits() error = %v", err)
	}

	if len(got) == 0 || got[0] != diagnostic.BindUnresolved {
		t.Errorf("sink received %v, want %s first", got, diagnostic.BindUnresolved)
	}

	if res.Skipped != 1 || res.Module.Function("main.toplevel.1") == nil {
		t.Errorf("Skipped = %d, functions %d", res.Skipped, len(res.Module.Functions))
	}
}

func TestBackendFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	boom := errors.New("disk full")

	backend.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, boom)

	d := newDriver(t, nil, nil)
	d.Backend = backend

	if _, err := d.CompileUnits(context.Background(), sources); !errors.Is(err, boom) {
		t.Errorf("CompileUnits() error = %v, want %v", err, boom)
	}
}

func TestStopAfterCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)

	d := newDriver(t, nil, nil)
	d.Backend = backend
	d.StopAfter = ast.PhaseCheck

	res, err := d.CompileUnits(context.Background(), sources)
	if err != nil {
		t.Fatalf("CompileUnits() error = %v", err)
	}

	if res.Module != nil {
		t.Errorf("module was lowered")
	}

	for _, u := range res.Units {
		if got := u.Progress.Done(ast.PhaseCheck); got != len(u.Elements) {
			t.Errorf("%s: checked %d of %d elements", u.Name, got, len(u.Elements))
		}
	}
}

func TestValidatedPhases(t *testing.T) {
	cfg := config.Default()
	cfg.ValidatePhases = true

	res, err := newDriver(t, cfg, nil).CompileUnits(context.Background(), sources)
	if err != nil {
		t.Fatalf("CompileUnits() error = %v", err)
	}

	if len(res.Halted) != 0 {
		t.Errorf("Halted = %v", res.Halted)
	}
}

func TestImportFromManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := "name: Geo\nversion: 1.2.0\ninterface: |\n  func area(side: Int) -> Int\n"

	if err := os.WriteFile(filepath.Join(dir, "geo.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.ModulePaths = []string{dir}
	cfg.Modules["Geo"] = "^1.0.0"

	src := []pipeline.Source{{Name: "main", Main: true, Text: "import Geo\nprint(\"\\(area(3))\")\n"}}

	d := newDriver(t, cfg, nil)

	res, err := d.CompileUnits(context.Background(), src)
	if err != nil {
		t.Fatalf("CompileUnits() error = %v", err)
	}

	if n := d.Sess.Diags.Len(); n != 0 {
		t.Fatalf("%d diagnostics: %v", n, d.Sess.Diags.Diagnostics())
	}

	if loaded := d.Sess.LoadedModules(); len(loaded) != 1 || loaded[0].Descriptor.Version.String() != "1.2.0" {
		t.Errorf("loaded modules = %v", loaded)
	}

	area := res.Module.Function("Geo.area")
	if area == nil || !area.External() {
		t.Errorf("Geo.area = %v, want an external declaration", area)
	}
}

func TestTextBackendAndJSONSerializer(t *testing.T) {
	res, err := newDriver(t, nil, nil).CompileUnits(context.Background(), sources)
	if err != nil {
		t.Fatalf("CompileUnits() error = %v", err)
	}

	art, err := pipeline.TextBackend{}.Generate(context.Background(), res.Module, "out")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if art.Name != "out.mir" || string(art.Data) != mir.Print(res.Module) {
		t.Errorf("artifact %s does not hold the printed module", art.Name)
	}

	var buf bytes.Buffer
	if err := (pipeline.JSONSerializer{}).Serialize(context.Background(), res.Module, pipeline.SerializeOptions{Writer: &buf}); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	var doc struct {
		Name      string `json:"name"`
		Functions []struct {
			Name string `json:"name"`
		} `json:"functions"`
		Init []string `json:"init"`
	}

	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}

	if doc.Name != "main" || len(doc.Functions) != len(res.Module.Functions) || len(doc.Init) != len(res.Module.Init) {
		t.Errorf("document = %+v", doc)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := (pipeline.TextBackend{}).Generate(ctx, res.Module, "out"); !errors.Is(err, context.Canceled) {
		t.Errorf("Generate() on a canceled context error = %v", err)
	}
}

func TestIncrementalSteps(t *testing.T) {
	sess, err := pipeline.NewSession(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	file := position.NewSourceFile("<repl>", "let a = 1\nprint(\"\\(a)\")\n")
	c := pipeline.NewIncremental(sess, "repl", file, true)

	res, err := c.Step(context.Background())
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	if res.From != 0 || res.To != 2 || res.SideEffects == 0 {
		t.Fatalf("first step = %+v", res)
	}

	file.Extend("func f() -> Int {\n")

	res, err = c.Step(context.Background())
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	if !res.Incomplete || res.To != 2 {
		t.Fatalf("step over an open brace = %+v", res)
	}

	file.Extend("  return a + 1\n}\n")

	res, err = c.Step(context.Background())
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	if res.Incomplete || len(res.Functions) != 1 || res.Functions[0].Name != "f" {
		t.Fatalf("third step = %+v", res)
	}

	if len(res.Diagnostics) != 0 {
		t.Errorf("diagnostics = %v", res.Diagnostics)
	}

	if c.Module().Function("repl.toplevel.1") == nil {
		t.Errorf("earlier functions were lost")
	}
}

func TestStepwiseMatchesBatch(t *testing.T) {
	lines := []string{
		"func id<T>(x: T) -> T { return x }\n",
		"let a = id(1)\n",
		"print(\"\\(id(2.5))\")\n",
		"let b = id(a) + 1\n",
		"let c = id(1.5) * 2.0\n",
	}

	sess, err := pipeline.NewSession(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	file := position.NewSourceFile("main.oz", "")
	c := pipeline.NewIncremental(sess, "main", file, true)

	for i, line := range lines {
		file.Extend(line)

		res, err := c.Step(context.Background())
		if err != nil {
			t.Fatalf("Step(%d) error = %v", i, err)
		}

		if len(res.Diagnostics) != 0 {
			t.Fatalf("Step(%d) diagnostics = %v", i, res.Diagnostics)
		}
	}

	src := []pipeline.Source{{Name: "main", Main: true, Text: strings.Join(lines, "")}}

	res, err := newDriver(t, nil, nil).CompileUnits(context.Background(), src)
	if err != nil {
		t.Fatalf("CompileUnits() error = %v", err)
	}

	stepwise, batch := mir.Print(c.Module()), mir.Print(res.Module)
	if stepwise != batch {
		t.Errorf("stepwise module:\n%s\nbatch module:\n%s", stepwise, batch)
	}

	for _, name := range []string{"id<Int>", "id<Float>"} {
		if c.Module().Function(name) == nil {
			t.Errorf("%s was not specialized", name)
		}
	}
}

func TestIncrementalPlayground(t *testing.T) {
	cfg := config.Default()
	cfg.Playground = true

	sess, err := pipeline.NewSession(cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	file := position.NewSourceFile("<repl>", "let a = 20\n")
	c := pipeline.NewIncremental(sess, "repl", file, true)

	if _, err := c.Step(context.Background()); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	file.Extend("a * 2\nprint(\"done\")\n")

	res, err := c.Step(context.Background())
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	if len(res.Diagnostics) != 0 {
		t.Fatalf("diagnostics = %v", res.Diagnostics)
	}

	logs := map[string]bool{}
	for _, name := range []string{"repl.toplevel.0", "repl.toplevel.1", "repl.toplevel.2"} {
		f := c.Module().Function(name)
		if f == nil {
			t.Fatalf("%s missing", name)
		}

		logs[name] = strings.Contains(f.String(), "intrinsic log(")
	}

	if !logs["repl.toplevel.0"] || !logs["repl.toplevel.1"] || logs["repl.toplevel.2"] {
		t.Errorf("logged top-level functions = %v", logs)
	}
}

func TestSerializeToFiles(t *testing.T) {
	res, err := newDriver(t, nil, nil).CompileUnits(context.Background(), sources)
	if err != nil {
		t.Fatalf("CompileUnits() error = %v", err)
	}

	dir := t.TempDir()
	opts := pipeline.SerializeOptions{
		Path:    filepath.Join(dir, "main.json"),
		DocPath: filepath.Join(dir, "main.doc.yaml"),
	}

	if err := (pipeline.JSONSerializer{}).Serialize(context.Background(), res.Module, opts); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	if data, err := os.ReadFile(opts.Path); err != nil || !json.Valid(data) {
		t.Fatalf("primary image: %v", err)
	}

	doc, err := os.ReadFile(opts.DocPath)
	if err != nil {
		t.Fatal(err)
	}

	text := string(doc)
	if !strings.Contains(text, "module: main") || !strings.Contains(text, "double(Int) -> Int") {
		t.Errorf("companion =\n%s", text)
	}

	if strings.Contains(text, "toplevel") {
		t.Errorf("companion lists initializers:\n%s", text)
	}

	if err := (pipeline.JSONSerializer{}).Serialize(context.Background(), res.Module, pipeline.SerializeOptions{}); err == nil {
		t.Errorf("Serialize() without a destination succeeded")
	}
}
