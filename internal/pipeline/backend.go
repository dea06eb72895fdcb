package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/orizon-lang/ozc/internal/mir"
)

// TextBackend renders the module as textual MIR.
type TextBackend struct{}

// Generate implements Backend.
func (TextBackend) Generate(ctx context.Context, mod *mir.Module, name string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Artifact{Name: name + ".mir", MediaType: "text/x-ozc-mir", Data: []byte(mir.Print(mod))}, nil
}

// JSONSerializer writes the module as a JSON document.
type JSONSerializer struct{}

type jsonModule struct {
	Name      string         `json:"name"`
	Structs   []jsonStruct   `json:"structs,omitempty"`
	Globals   []jsonField    `json:"globals,omitempty"`
	Functions []jsonFunction `json:"functions"`
	Init      []string       `json:"init,omitempty"`
}

type jsonStruct struct {
	Name   string      `json:"name"`
	Module string      `json:"module,omitempty"`
	Fields []jsonField `json:"fields"`
}

type jsonField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type jsonFunction struct {
	Name     string      `json:"name"`
	Params   []string    `json:"params"`
	Result   string      `json:"result"`
	External bool        `json:"external,omitempty"`
	Blocks   []jsonBlock `json:"blocks,omitempty"`
}

type jsonBlock struct {
	Name   string   `json:"name"`
	Instrs []string `json:"instrs"`
}

// Serialize implements Serializer.
func (JSONSerializer) Serialize(ctx context.Context, mod *mir.Module, opts SerializeOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w := opts.Writer
	if w == nil {
		if opts.Path == "" {
			return fmt.Errorf("serialize %s: no writer or path", mod.Name)
		}

		f, err := os.Create(opts.Path)
		if err != nil {
			return fmt.Errorf("serialize %s: %w", mod.Name, err)
		}
		defer f.Close()

		w = f
	}

	enc := json.NewEncoder(w)
	if opts.Indent {
		enc.SetIndent("", "  ")
	}

	if err := enc.Encode(toJSON(mod)); err != nil {
		return fmt.Errorf("serialize %s: %w", mod.Name, err)
	}

	if opts.DocPath != "" {
		if err := writeDoc(opts.DocPath, mod); err != nil {
			return fmt.Errorf("serialize %s: %w", mod.Name, err)
		}
	}

	return nil
}

type docModule struct {
	Module    string      `yaml:"module"`
	Structs   []docStruct `yaml:"structs,omitempty"`
	Functions []string    `yaml:"functions"`
}

type docStruct struct {
	Name   string   `yaml:"name"`
	Fields []string `yaml:"fields"`
}

// writeDoc writes the declarations a user of the module sees: structs and
// the named functions, without initializers and closures.
func writeDoc(path string, mod *mir.Module) error {
	doc := docModule{Module: mod.Name, Functions: []string{}}

	for _, s := range mod.Structs {
		ds := docStruct{Name: s.Name, Fields: []string{}}
		for _, f := range s.Fields {
			ds.Fields = append(ds.Fields, f.Name+": "+f.Type.String())
		}

		doc.Structs = append(doc.Structs, ds)
	}

	for _, f := range mod.Functions {
		if strings.Contains(f.Name, ".toplevel.") || strings.Contains(f.Name, ".closure.") {
			continue
		}

		params := make([]string, len(f.Params))
		for i, p := range f.Params {
			params[i] = p.Type.String()
		}

		doc.Functions = append(doc.Functions, fmt.Sprintf("%s(%s) -> %s", f.Name, strings.Join(params, ", "), f.Result))
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func toJSON(mod *mir.Module) jsonModule {
	out := jsonModule{Name: mod.Name, Functions: []jsonFunction{}, Init: mod.Init}

	for _, s := range mod.Structs {
		js := jsonStruct{Name: s.Name, Module: s.Module, Fields: []jsonField{}}
		for _, f := range s.Fields {
			js.Fields = append(js.Fields, jsonField{Name: f.Name, Type: f.Type.String()})
		}

		out.Structs = append(out.Structs, js)
	}

	for _, g := range mod.Globals {
		out.Globals = append(out.Globals, jsonField{Name: g.Name, Type: g.Type.String()})
	}

	for _, f := range mod.Functions {
		jf := jsonFunction{Name: f.Name, Params: []string{}, Result: f.Result.String(), External: f.External()}
		for _, p := range f.Params {
			jf.Params = append(jf.Params, p.Type.String())
		}

		for _, bb := range f.Blocks {
			jb := jsonBlock{Name: bb.Name, Instrs: make([]string, len(bb.Instrs))}
			for i, in := range bb.Instrs {
				jb.Instrs[i] = in.String()
			}

			jf.Blocks = append(jf.Blocks, jb)
		}

		out.Functions = append(out.Functions, jf)
	}

	return out
}
