package types

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// archetypeIDs hands out process-unique archetype and signature identities.
var archetypeIDs atomic.Int64

// Archetype is an abstract generic parameter. It belongs to exactly one
// GenericSignature.
type Archetype struct {
	ID        int64
	Name      string
	Signature *GenericSignature
}

func (*Archetype) typeNode() {}

func (a *Archetype) String() string { return a.Name }

// ConformsTo reports whether a conformance requirement on a names p.
func (a *Archetype) ConformsTo(p *ProtocolType) bool {
	if a.Signature == nil {
		return false
	}

	for _, r := range a.Signature.Requirements {
		if r.Kind == RequirementConformance && r.Subject == a && r.Protocol == p {
			return true
		}
	}

	return false
}

// RequirementKind classifies generic requirements.
type RequirementKind int

const (
	RequirementConformance RequirementKind = iota
	RequirementSameType
	RequirementSuperclass
)

func (k RequirementKind) String() string {
	switch k {
	case RequirementConformance:
		return "conformance"
	case RequirementSameType:
		return "same-type"
	case RequirementSuperclass:
		return "superclass"
	default:
		return "unknown"
	}
}

// Requirement constrains one archetype of a signature.
type Requirement struct {
	Kind     RequirementKind
	Subject  *Archetype
	Protocol *ProtocolType // conformance
	Type     Type          // same-type and superclass
}

func (r Requirement) String() string {
	switch r.Kind {
	case RequirementConformance:
		return fmt.Sprintf("%s: %s", r.Subject.Name, r.Protocol.Name)
	case RequirementSameType:
		return fmt.Sprintf("%s == %s", r.Subject.Name, r.Type)
	default:
		return fmt.Sprintf("%s: %s (superclass)", r.Subject.Name, r.Type)
	}
}

// GenericSignature is the generic parameter list of one declaration.
type GenericSignature struct {
	ID           int64
	Owner        string
	Params       []*Archetype
	Requirements []Requirement
}

// Param returns the named parameter or nil.
func (g *GenericSignature) Param(name string) *Archetype {
	for _, p := range g.Params {
		if p.Name == name {
			return p
		}
	}

	return nil
}

func (g *GenericSignature) String() string {
	parts := make([]string, len(g.Params))
	for i, p := range g.Params {
		var protos []string

		for _, r := range g.Requirements {
			if r.Subject == p && r.Kind == RequirementConformance {
				protos = append(protos, r.Protocol.Name)
			}
		}

		parts[i] = p.Name
		if len(protos) > 0 {
			parts[i] += ": " + strings.Join(protos, " & ")
		}
	}

	return "<" + strings.Join(parts, ", ") + ">"
}

// UnsupportedRequirementError reports requirements the language cannot
// satisfy. The signature is still built without them.
type UnsupportedRequirementError struct {
	Owner        string
	Requirements []Requirement
}

func (e *UnsupportedRequirementError) Error() string {
	parts := make([]string, len(e.Requirements))
	for i, r := range e.Requirements {
		parts[i] = r.String()
	}

	return fmt.Sprintf("%s: unsupported requirement %s", e.Owner, strings.Join(parts, ", "))
}

// ArchetypeBuilder assembles a GenericSignature.
type ArchetypeBuilder struct {
	sig         *GenericSignature
	unsupported []Requirement
	errs        []string
	built       bool
}

// NewArchetypeBuilder starts a signature for the named declaration.
func NewArchetypeBuilder(owner string) *ArchetypeBuilder {
	return &ArchetypeBuilder{
		sig: &GenericSignature{ID: archetypeIDs.Add(1), Owner: owner},
	}
}

// AddParam declares a new archetype.
func (b *ArchetypeBuilder) AddParam(name string) *Archetype {
	if b.sig.Param(name) != nil {
		b.errs = append(b.errs, fmt.Sprintf("duplicate generic parameter %q", name))
	}

	a := &Archetype{ID: archetypeIDs.Add(1), Name: name, Signature: b.sig}
	b.sig.Params = append(b.sig.Params, a)

	return a
}

// AddConformance requires a to conform to p.
func (b *ArchetypeBuilder) AddConformance(a *Archetype, p *ProtocolType) {
	b.add(Requirement{Kind: RequirementConformance, Subject: a, Protocol: p})
}

// AddSameType requires a to be t.
func (b *ArchetypeBuilder) AddSameType(a *Archetype, t Type) {
	b.add(Requirement{Kind: RequirementSameType, Subject: a, Type: t})
}

// AddSuperclass requires a to inherit from t. The language has no classes,
// so this requirement is always reported as unsupported.
func (b *ArchetypeBuilder) AddSuperclass(a *Archetype, t Type) {
	b.unsupported = append(b.unsupported, Requirement{Kind: RequirementSuperclass, Subject: a, Type: t})
}

func (b *ArchetypeBuilder) add(r Requirement) {
	if r.Subject == nil || r.Subject.Signature != b.sig {
		b.errs = append(b.errs, fmt.Sprintf("requirement %s names an archetype of another signature", r))

		return
	}

	b.sig.Requirements = append(b.sig.Requirements, r)
}

// Build finalizes the signature. A builder can only be built once.
// Unsupported requirements yield a usable signature plus an
// *UnsupportedRequirementError.
func (b *ArchetypeBuilder) Build() (*GenericSignature, error) {
	if b.built {
		return nil, fmt.Errorf("generic signature of %s already built", b.sig.Owner)
	}

	b.built = true

	if len(b.errs) > 0 {
		return nil, fmt.Errorf("%s: %s", b.sig.Owner, strings.Join(b.errs, "; "))
	}

	if len(b.unsupported) > 0 {
		return b.sig, &UnsupportedRequirementError{Owner: b.sig.Owner, Requirements: b.unsupported}
	}

	return b.sig, nil
}

// Instantiate opens the signature at one use site: every archetype is
// replaced by a fresh type variable and its requirements become
// constraints. The returned map records the substitution once solved.
func (g *GenericSignature) Instantiate(cs *ConstraintSystem, origin string, anchor any) map[*Archetype]*TypeVar {
	vars := make(map[*Archetype]*TypeVar, len(g.Params))
	subst := make(Substitution, len(g.Params))

	for _, p := range g.Params {
		v := cs.NewTypeVar(fmt.Sprintf("%s in %s", p.Name, origin), anchor)
		vars[p] = v
		subst[p] = v
	}

	for _, r := range g.Requirements {
		switch r.Kind {
		case RequirementConformance:
			cs.Conforms(vars[r.Subject], r.Protocol, fmt.Sprintf("%s requirement %s", origin, r), anchor)
		case RequirementSameType:
			cs.Equal(vars[r.Subject], Substitute(r.Type, subst), fmt.Sprintf("%s requirement %s", origin, r), anchor)
		}
	}

	return vars
}
