package validator

import (
	"github.com/orizon-lang/ozc/internal/mir"
)

// ValidateModule checks every function of mod plus the module-level
// references: called and closed-over functions, addressed globals and
// initializers must exist, and function names must be unique.
func ValidateModule(mod *mir.Module) error {
	r := &report{code: "MIR_INVALID"}

	names := make(map[string]bool, len(mod.Functions))
	globals := make(map[string]bool, len(mod.Globals))

	for _, g := range mod.Globals {
		if globals[g.Name] {
			r.fail("global @%s is defined twice", g.Name)
		}

		globals[g.Name] = true
	}

	for _, f := range mod.Functions {
		if names[f.Name] {
			r.fail("function @%s is defined twice", f.Name)
		}

		names[f.Name] = true
	}

	for _, f := range mod.Functions {
		validateFunction(r, f)

		for _, bb := range f.Blocks {
			for _, in := range bb.Instrs {
				validateReferences(r, f, in, names, globals)
			}
		}
	}

	for _, name := range mod.Init {
		if !names[name] {
			r.fail("initializer @%s is not defined", name)
		}
	}

	return r.err()
}

// ValidateFunction checks the SSA shape of f: each block ends with exactly
// one terminator, each value has one producer, operands are produced in f
// and branch targets name blocks of f.
func ValidateFunction(f *mir.Function) error {
	r := &report{code: "MIR_INVALID"}
	validateFunction(r, f)

	return r.err()
}

func validateFunction(r *report, f *mir.Function) {
	if f.External() {
		return
	}

	defined := make(map[*mir.Value]bool)
	ids := make(map[int]bool)

	define := func(v *mir.Value, where string) {
		if defined[v] || ids[v.ID] {
			r.fail("@%s: %s defines %s again", f.Name, where, v)
		}

		defined[v] = true
		ids[v.ID] = true
	}

	for _, p := range f.Params {
		define(p, "parameter")
	}

	blocks := make(map[string]bool, len(f.Blocks))

	for _, bb := range f.Blocks {
		if blocks[bb.Name] {
			r.fail("@%s: block %s appears twice", f.Name, bb.Name)
		}

		blocks[bb.Name] = true

		for _, in := range bb.Instrs {
			if v := in.Result(); v != nil {
				define(v, in.String())
			}
		}
	}

	if f.Blocks[0].Name != "entry" {
		r.fail("@%s: first block is %s, want entry", f.Name, f.Blocks[0].Name)
	}

	for _, bb := range f.Blocks {
		validateBlock(r, f, bb, defined, blocks)
	}
}

func validateBlock(r *report, f *mir.Function, bb *mir.BasicBlock, defined map[*mir.Value]bool, blocks map[string]bool) {
	if bb.Terminator() == nil {
		r.fail("@%s: block %s does not end with a terminator", f.Name, bb.Name)
	}

	for i, in := range bb.Instrs {
		if mir.IsTerminator(in) && i != len(bb.Instrs)-1 {
			r.fail("@%s: %s: terminator in the middle of block %s", f.Name, in, bb.Name)
		}

		for _, op := range in.Operands() {
			switch {
			case op == nil:
				r.fail("@%s: %s: missing operand", f.Name, in)
			case !defined[op]:
				r.fail("@%s: %s: operand %s is not produced in this function", f.Name, in, op)
			}
		}

		for _, target := range mir.Successors(in) {
			if !blocks[target] {
				r.fail("@%s: %s: no block named %s", f.Name, in, target)
			}
		}
	}
}

func validateReferences(r *report, f *mir.Function, in mir.Instr, names, globals map[string]bool) {
	switch in := in.(type) {
	case *mir.Call:
		if !names[in.Callee] {
			r.fail("@%s: %s: undefined function @%s", f.Name, in, in.Callee)
		}
	case *mir.MakeClosure:
		if !names[in.Func] {
			r.fail("@%s: %s: undefined function @%s", f.Name, in, in.Func)
		}
	case *mir.GlobalAddr:
		if !globals[in.Global] {
			r.fail("@%s: %s: undefined global @%s", f.Name, in, in.Global)
		}
	}
}
