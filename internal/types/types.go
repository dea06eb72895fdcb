// Package types defines the semantic types of ozc programs, generic
// signatures with their archetypes, and the constraint solver used by the
// type checker for local inference.
package types

import (
	"fmt"
	"strings"
)

// Type is implemented by every semantic type.
type Type interface {
	String() string
	typeNode()
}

// BasicKind enumerates the builtin scalar types.
type BasicKind int

const (
	KindInt BasicKind = iota
	KindFloat
	KindBool
	KindString
	KindVoid
)

// BasicType is one of the builtin scalar types.
type BasicType struct {
	Name string
	Kind BasicKind
}

// Builtin types.
var (
	Int    = &BasicType{Kind: KindInt, Name: "Int"}
	Float  = &BasicType{Kind: KindFloat, Name: "Float"}
	Bool   = &BasicType{Kind: KindBool, Name: "Bool"}
	String = &BasicType{Kind: KindString, Name: "String"}
	Void   = &BasicType{Kind: KindVoid, Name: "Void"}
)

type errorType struct{}

// ErrorType is the sentinel written into the type slot of nodes whose
// checking failed. It is compatible with every type so that dependents of a
// failed node produce no further diagnostics.
var ErrorType Type = &errorType{}

// IsError reports whether t is the error sentinel.
func IsError(t Type) bool { return t == ErrorType }

// Field is a stored property of a struct.
type Field struct {
	Name    string
	Type    Type
	Mutable bool
	Private bool
}

// Method is a function member of a struct or a protocol requirement.
type Method struct {
	Name      string
	Signature *FunctionType
	Private   bool
}

// StructType is a nominal product type.
type StructType struct {
	Name         string
	Module       string
	Fields       []*Field
	Methods      []*Method
	Conformances []*ProtocolType
	// Node is the declaring syntax node, if any.
	Node any
}

// Field returns the index and descriptor of the named field, or -1.
func (s *StructType) Field(name string) (int, *Field) {
	for i, f := range s.Fields {
		if f.Name == name {
			return i, f
		}
	}

	return -1, nil
}

// Method returns the named method or nil.
func (s *StructType) Method(name string) *Method {
	for _, m := range s.Methods {
		if m.Name == name {
			return m
		}
	}

	return nil
}

// ProtocolType is a named set of method requirements.
type ProtocolType struct {
	Name         string
	Requirements []*Method
	Builtin      bool
	// Node is the declaring syntax node of a source protocol.
	Node any
}

// Builtin protocols.
var (
	Equatable  = &ProtocolType{Name: "Equatable", Builtin: true}
	Comparable = &ProtocolType{Name: "Comparable", Builtin: true}
	Numeric    = &ProtocolType{Name: "Numeric", Builtin: true}
)

// FunctionType is the type of functions and closures.
type FunctionType struct {
	Params []Type
	Result Type
}

// PointerType is the address of a storage slot. It only appears in MIR.
type PointerType struct {
	Elem Type
}

func (*BasicType) typeNode()    {}
func (*errorType) typeNode()    {}
func (*StructType) typeNode()   {}
func (*ProtocolType) typeNode() {}
func (*FunctionType) typeNode() {}
func (*PointerType) typeNode()  {}

func (t *BasicType) String() string    { return t.Name }
func (*errorType) String() string      { return "<error>" }
func (t *StructType) String() string   { return t.Name }
func (t *ProtocolType) String() string { return t.Name }
func (t *PointerType) String() string  { return "*" + t.Elem.String() }

func (t *FunctionType) String() string {
	parts := make([]string, len(t.Params))
	for i, p := range t.Params {
		parts[i] = p.String()
	}

	return fmt.Sprintf("(%s) -> %s", strings.Join(parts, ", "), t.Result)
}

// builtinTypes lists the types and protocols visible in every scope, in
// declaration order.
var builtinTypes = []Type{Int, Float, Bool, String, Void, Equatable, Comparable, Numeric}

// Builtins returns the builtin types and protocols in declaration order.
func Builtins() []Type {
	out := make([]Type, len(builtinTypes))
	copy(out, builtinTypes)

	return out
}

// LookupBuiltin finds a builtin type or protocol by name.
func LookupBuiltin(name string) (Type, bool) {
	for _, t := range builtinTypes {
		if t.String() == name {
			return t, true
		}
	}

	return nil, false
}

// Identical reports whether two types are the same type.
func Identical(a, b Type) bool {
	if a == b {
		return true
	}

	switch x := a.(type) {
	case *FunctionType:
		y, ok := b.(*FunctionType)
		if !ok || len(x.Params) != len(y.Params) {
			return false
		}

		for i := range x.Params {
			if !Identical(x.Params[i], y.Params[i]) {
				return false
			}
		}

		return Identical(x.Result, y.Result)
	case *PointerType:
		y, ok := b.(*PointerType)

		return ok && Identical(x.Elem, y.Elem)
	}

	return false
}

// Convertible reports whether a value of type from may be used where to is
// expected. Int converts implicitly to Float.
func Convertible(from, to Type) bool {
	if IsError(from) || IsError(to) {
		return true
	}

	if Identical(from, to) {
		return true
	}

	return from == Int && to == Float
}

// Conforms reports whether t satisfies protocol p.
func Conforms(t Type, p *ProtocolType) bool {
	switch x := t.(type) {
	case *errorType:
		return true
	case *BasicType:
		switch p {
		case Equatable:
			return x.Kind != KindVoid
		case Comparable, Numeric:
			return x.Kind == KindInt || x.Kind == KindFloat
		}

		return false
	case *StructType:
		for _, c := range x.Conformances {
			if c == p {
				return true
			}
		}

		return false
	case *Archetype:
		return x.ConformsTo(p)
	}

	return false
}

// IsConcrete reports whether t contains no type variables or archetypes.
func IsConcrete(t Type) bool {
	switch x := t.(type) {
	case *TypeVar, *Archetype:
		return false
	case *FunctionType:
		for _, p := range x.Params {
			if !IsConcrete(p) {
				return false
			}
		}

		return IsConcrete(x.Result)
	case *PointerType:
		return IsConcrete(x.Elem)
	}

	return true
}

// ContainsError reports whether the error sentinel occurs anywhere in t.
func ContainsError(t Type) bool {
	switch x := t.(type) {
	case nil:
		return false
	case *errorType:
		return true
	case *FunctionType:
		for _, p := range x.Params {
			if ContainsError(p) {
				return true
			}
		}

		return ContainsError(x.Result)
	case *PointerType:
		return ContainsError(x.Elem)
	}

	return false
}

// Substitution maps archetypes to their replacement types.
type Substitution map[*Archetype]Type

// Substitute replaces archetypes in t according to subst.
func Substitute(t Type, subst Substitution) Type {
	if len(subst) == 0 {
		return t
	}

	switch x := t.(type) {
	case *Archetype:
		if r, ok := subst[x]; ok {
			return r
		}

		return x
	case *FunctionType:
		params := make([]Type, len(x.Params))
		for i, p := range x.Params {
			params[i] = Substitute(p, subst)
		}

		return &FunctionType{Params: params, Result: Substitute(x.Result, subst)}
	case *PointerType:
		return &PointerType{Elem: Substitute(x.Elem, subst)}
	}

	return t
}

// Key renders a substitution deterministically in the order of the
// signature's parameters, e.g. "Int,Float". It names specializations.
func (s Substitution) Key(sig *GenericSignature) string {
	if sig == nil {
		return ""
	}

	parts := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		if t, ok := s[p]; ok {
			parts[i] = t.String()
		} else {
			parts[i] = p.Name
		}
	}

	return strings.Join(parts, ",")
}
