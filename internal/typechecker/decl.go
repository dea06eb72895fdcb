package typechecker

import (
	"errors"

	"github.com/orizon-lang/ozc/internal/ast"
	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/types"
)

// typeOfFunction computes the signature of fd on first use. Methods get a
// type without their receiver; self is typed as the owning struct.
func (c *checker) typeOfFunction(fd *ast.FunctionDeclaration) (*types.FunctionType, bool) {
	if fd.HasType() {
		ft, ok := fd.Type().(*types.FunctionType)

		return ft, ok
	}

	if fd.IsGeneric() && fd.Signature == nil {
		if fd.Signature = c.genericSignature(fd); fd.Signature == nil {
			fd.SetType(types.ErrorType)

			return nil, false
		}
	}

	ft := &types.FunctionType{Result: types.Void}

	for _, p := range fd.Parameters {
		t := c.resolveType(p.TypeAnnotation, fd.Signature)
		p.SetType(t)
		ft.Params = append(ft.Params, t)
	}

	if fd.ReturnType != nil {
		ft.Result = c.resolveType(fd.ReturnType, fd.Signature)
	}

	if fd.Owner != nil && fd.Self != nil {
		if st, ok := c.structType(fd.Owner); ok {
			fd.Self.SetType(st)
		} else {
			fd.Self.SetType(types.ErrorType)
		}
	}

	fd.SetType(ft)

	return ft, true
}

// genericSignature builds the signature of fd's generic parameters and
// stores each archetype on its parameter node.
func (c *checker) genericSignature(fd *ast.FunctionDeclaration) *types.GenericSignature {
	b := types.NewArchetypeBuilder(fd.QualifiedName())

	for _, g := range fd.Generics {
		g.Archetype = b.AddParam(g.Name)
		g.SetType(g.Archetype)
	}

	for _, g := range fd.Generics {
		for _, te := range g.Constraints {
			switch t := c.resolveConstraint(te).(type) {
			case *types.ProtocolType:
				b.AddConformance(g.Archetype, t)
			case *types.StructType:
				b.AddSuperclass(g.Archetype, t)
			case *types.Archetype, *types.BasicType, *types.FunctionType:
				b.AddSameType(g.Archetype, t)
			}
		}
	}

	sig, err := b.Build()

	var unsupported *types.UnsupportedRequirementError

	switch {
	case errors.As(err, &unsupported):
		for _, r := range unsupported.Requirements {
			c.errorAt(fd.NameSpan, diagnostic.TypeUnsupportedRequire, r.String())
		}
	case err != nil:
		c.sess.Logger.Warn("generic signature of %s: %v", fd.QualifiedName(), err)
	}

	return sig
}

// resolveConstraint resolves a generic constraint, where protocols are
// allowed.
func (c *checker) resolveConstraint(te ast.TypeExpr) types.Type {
	return c.typeExpr(te, nil, true)
}

// structType builds the nominal type of sd on first use. The type is
// stored before its fields are resolved so that fields and methods may
// refer to the struct itself.
func (c *checker) structType(sd *ast.StructDeclaration) (*types.StructType, bool) {
	if sd.HasType() {
		st, ok := sd.Type().(*types.StructType)

		return st, ok
	}

	st := &types.StructType{Name: sd.Name, Module: sd.Module, Node: sd}
	sd.SetType(st)

	for _, f := range sd.Fields {
		var ft types.Type

		switch {
		case f.TypeAnnotation != nil:
			ft = c.resolveType(f.TypeAnnotation, nil)
		case f.Value != nil:
			ft = c.declaredVariableType(f)
		default:
			c.errorAt(f.Span, diagnostic.TypeCannotInfer, f.Name)

			ft = types.ErrorType
		}

		f.SetType(ft)
		st.Fields = append(st.Fields, &types.Field{
			Name:    f.Name,
			Type:    f.Type(),
			Mutable: f.Kind == ast.VarKindVar,
			Private: f.IsPrivate,
		})
	}

	for _, m := range sd.Methods {
		ft, ok := c.typeOfFunction(m)
		if !ok {
			continue
		}

		st.Methods = append(st.Methods, &types.Method{Name: m.Name, Signature: ft, Private: m.IsPrivate})
	}

	for _, te := range sd.Conformances {
		if p, ok := c.resolveConstraint(te).(*types.ProtocolType); ok {
			st.Conformances = append(st.Conformances, p)
		}
	}

	return st, true
}

// checkConformances verifies the protocols sd declares. Declared
// conformances stay on the type even when they fail so that uses of the
// struct do not report again.
func (c *checker) checkConformances(sd *ast.StructDeclaration, st *types.StructType) {
	for _, te := range sd.Conformances {
		t := te.Base().Type()

		p, ok := t.(*types.ProtocolType)
		if !ok {
			if t != nil && !types.IsError(t) {
				c.errorAt(te.GetSpan(), diagnostic.TypeNotConforming, st.Name, t.String())
			}

			continue
		}

		switch {
		case p == types.Equatable:
			for _, f := range st.Fields {
				if !types.Conforms(f.Type, types.Equatable) {
					c.errorAt(te.GetSpan(), diagnostic.TypeInvalidEquatable, st.Name, f.Name, f.Type.String())
				}
			}
		case p.Builtin:
			c.errorAt(te.GetSpan(), diagnostic.TypeNotConforming, st.Name, p.Name)
		default:
			for _, r := range p.Requirements {
				m := st.Method(r.Name)
				if m == nil || !types.Identical(m.Signature, r.Signature) {
					c.errorAt(te.GetSpan(), diagnostic.TypeMissingRequirement, st.Name, r.Name, p.Name)
				}
			}
		}
	}
}

func (c *checker) protocolType(pd *ast.ProtocolDeclaration) *types.ProtocolType {
	if pt, ok := pd.Type().(*types.ProtocolType); ok {
		return pt
	}

	pt := &types.ProtocolType{Name: pd.Name, Node: pd}
	pd.SetType(pt)

	for _, r := range pd.Requirements {
		ft, ok := c.typeOfFunction(r)
		if !ok {
			continue
		}

		pt.Requirements = append(pt.Requirements, &types.Method{Name: r.Name, Signature: ft})
	}

	return pt
}

// requirement finds the requirement of an archetype's protocols named
// name.
func (c *checker) requirement(a *types.Archetype, name string) *ast.FunctionDeclaration {
	if a.Signature == nil {
		return nil
	}

	for _, r := range a.Signature.Requirements {
		if r.Kind != types.RequirementConformance || r.Subject != a {
			continue
		}

		pd, ok := r.Protocol.Node.(*ast.ProtocolDeclaration)
		if !ok {
			continue
		}

		for _, fd := range pd.Requirements {
			if fd.Name == name {
				return fd
			}
		}
	}

	return nil
}

// method finds the method of sd named name.
func method(sd *ast.StructDeclaration, name string) *ast.FunctionDeclaration {
	for _, m := range sd.Methods {
		if m.Name == name {
			return m
		}
	}

	return nil
}

// valueType returns the type of a value declaration referenced by name.
// ok is false when d does not denote a value.
func (c *checker) valueType(d ast.Decl) (types.Type, bool) {
	switch d := d.(type) {
	case *ast.VariableDeclaration:
		switch {
		case d.Owner != nil:
			if _, ok := c.structType(d.Owner); !ok {
				return types.ErrorType, true
			}

			return d.Type(), true
		case d.IsGlobal:
			return c.globalType(d), true
		}

		if !d.HasType() {
			return types.ErrorType, true
		}

		return d.Type(), true
	case *ast.Parameter:
		if !d.HasType() {
			return types.ErrorType, true
		}

		return d.Type(), true
	case *ast.BadDeclaration:
		return types.ErrorType, true
	}

	return nil, false
}
