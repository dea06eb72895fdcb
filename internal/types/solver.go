package types

import (
	"fmt"
	"strings"
)

// TypeVar is an unknown type of one constraint system.
type TypeVar struct {
	ID     int
	Origin string
	Anchor any
}

func (*TypeVar) typeNode() {}

func (v *TypeVar) String() string { return fmt.Sprintf("$T%d", v.ID) }

// ConstraintKind represents the relation a constraint imposes.
type ConstraintKind int

const (
	// ConstraintEqual requires Left and Right to be the same type.
	ConstraintEqual ConstraintKind = iota

	// ConstraintConforms requires Left to conform to Protocol.
	ConstraintConforms

	// ConstraintConvertible requires Left to be implicitly convertible to Right.
	ConstraintConvertible

	// ConstraintLiteral requires Left to be one of Candidates.
	ConstraintLiteral
)

// String returns a string representation of the constraint kind.
func (k ConstraintKind) String() string {
	switch k {
	case ConstraintEqual:
		return "equal"
	case ConstraintConforms:
		return "conforms"
	case ConstraintConvertible:
		return "convertible"
	case ConstraintLiteral:
		return "literal"
	default:
		return "unknown"
	}
}

// Constraint relates type variables and concrete types.
type Constraint struct {
	Left       Type
	Right      Type
	Protocol   *ProtocolType
	Candidates []Type
	Origin     string
	Anchor     any
	Kind       ConstraintKind
}

// String returns a string representation of the constraint.
func (c *Constraint) String() string {
	var rel string

	switch c.Kind {
	case ConstraintEqual:
		rel = fmt.Sprintf("%s == %s", c.Left, c.Right)
	case ConstraintConforms:
		rel = fmt.Sprintf("%s: %s", c.Left, c.Protocol.Name)
	case ConstraintConvertible:
		rel = fmt.Sprintf("%s -> %s", c.Left, c.Right)
	case ConstraintLiteral:
		names := make([]string, len(c.Candidates))
		for i, t := range c.Candidates {
			names[i] = t.String()
		}

		rel = fmt.Sprintf("%s in [%s]", c.Left, strings.Join(names, ", "))
	}

	if c.Origin == "" {
		return rel
	}

	return fmt.Sprintf("%s (%s)", rel, c.Origin)
}

// SolveErrorKind distinguishes failed solving attempts.
type SolveErrorKind int

const (
	// SolveUnsolved means propagation stalled with unbound variables.
	SolveUnsolved SolveErrorKind = iota

	// SolveConflict means two constraints contradict each other.
	SolveConflict
)

// SolveError is returned when a constraint system has no solution.
type SolveError struct {
	Vars   []*TypeVar
	First  *Constraint
	Second *Constraint
	Kind   SolveErrorKind
}

func (e *SolveError) Error() string {
	if e.Kind == SolveConflict {
		return fmt.Sprintf("conflicting constraints: %s and %s", e.First, e.Second)
	}

	names := make([]string, len(e.Vars))
	for i, v := range e.Vars {
		names[i] = v.String()
		if v.Origin != "" {
			names[i] += " (" + v.Origin + ")"
		}
	}

	return "cannot infer " + strings.Join(names, ", ")
}

// ConstraintSystem collects the constraints of one local inference problem.
// A system is solved at most once per Solve call; solving resets bindings.
type ConstraintSystem struct {
	vars        []*TypeVar
	constraints []*Constraint

	parent   map[*TypeVar]*TypeVar
	bindings map[*TypeVar]Type
	cause    map[*TypeVar]*Constraint
}

// NewConstraintSystem creates an empty system.
func NewConstraintSystem() *ConstraintSystem {
	return &ConstraintSystem{}
}

// NewTypeVar introduces a fresh type variable.
func (cs *ConstraintSystem) NewTypeVar(origin string, anchor any) *TypeVar {
	v := &TypeVar{ID: len(cs.vars), Origin: origin, Anchor: anchor}
	cs.vars = append(cs.vars, v)

	return v
}

// Vars returns the system's variables in creation order.
func (cs *ConstraintSystem) Vars() []*TypeVar { return cs.vars }

// Constraints returns the system's constraints in insertion order.
func (cs *ConstraintSystem) Constraints() []*Constraint { return cs.constraints }

func (cs *ConstraintSystem) add(c *Constraint) *Constraint {
	cs.constraints = append(cs.constraints, c)

	return c
}

// Equal adds a same-type constraint.
func (cs *ConstraintSystem) Equal(a, b Type, origin string, anchor any) *Constraint {
	return cs.add(&Constraint{Kind: ConstraintEqual, Left: a, Right: b, Origin: origin, Anchor: anchor})
}

// Conforms adds a conformance constraint.
func (cs *ConstraintSystem) Conforms(t Type, p *ProtocolType, origin string, anchor any) *Constraint {
	return cs.add(&Constraint{Kind: ConstraintConforms, Left: t, Protocol: p, Origin: origin, Anchor: anchor})
}

// Convertible adds an implicit conversion constraint.
func (cs *ConstraintSystem) Convertible(from, to Type, origin string, anchor any) *Constraint {
	return cs.add(&Constraint{Kind: ConstraintConvertible, Left: from, Right: to, Origin: origin, Anchor: anchor})
}

// Literal restricts t to one of candidates; the first candidate is the
// default.
func (cs *ConstraintSystem) Literal(t Type, candidates []Type, origin string, anchor any) *Constraint {
	return cs.add(&Constraint{Kind: ConstraintLiteral, Left: t, Candidates: candidates, Origin: origin, Anchor: anchor})
}

// Solution maps every variable of a solved system to a concrete type.
type Solution struct {
	bindings map[*TypeVar]Type
}

// Resolve replaces all type variables in t by their solutions.
func (s *Solution) Resolve(t Type) Type {
	switch x := t.(type) {
	case *TypeVar:
		if b, ok := s.bindings[x]; ok {
			return b
		}

		return x
	case *FunctionType:
		params := make([]Type, len(x.Params))
		for i, p := range x.Params {
			params[i] = s.Resolve(p)
		}

		return &FunctionType{Params: params, Result: s.Resolve(x.Result)}
	case *PointerType:
		return &PointerType{Elem: s.Resolve(x.Elem)}
	}

	return t
}

// Solve runs propagation over a worklist until a fixpoint. When
// propagation stalls, one variable is decided by the tie-break policy and
// propagation resumes. The result is either a complete solution or a
// *SolveError; partial bindings are never returned.
func (cs *ConstraintSystem) Solve() (*Solution, error) {
	cs.parent = make(map[*TypeVar]*TypeVar)
	cs.bindings = make(map[*TypeVar]Type)
	cs.cause = make(map[*TypeVar]*Constraint)

	pending := make([]*Constraint, len(cs.constraints))
	copy(pending, cs.constraints)

	for {
		for progress := true; progress; {
			progress = false
			next := pending[:0:0]

			for _, c := range pending {
				done, err := cs.step(c)
				if err != nil {
					return nil, err
				}

				if done {
					progress = true
				} else {
					next = append(next, c)
				}
			}

			pending = next
		}

		if !cs.decide(pending) {
			break
		}
	}

	var unsolved []*TypeVar

	for _, v := range cs.vars {
		if containsVar(cs.resolve(v)) {
			unsolved = append(unsolved, v)
		}
	}

	if len(unsolved) > 0 || len(pending) > 0 {
		if len(unsolved) == 0 {
			unsolved = cs.varsOf(pending)
		}

		return nil, &SolveError{Kind: SolveUnsolved, Vars: unsolved}
	}

	sol := &Solution{bindings: make(map[*TypeVar]Type, len(cs.vars))}
	for _, v := range cs.vars {
		sol.bindings[v] = cs.resolve(v)
	}

	return sol, nil
}

func (cs *ConstraintSystem) find(v *TypeVar) *TypeVar {
	for {
		p, ok := cs.parent[v]
		if !ok {
			return v
		}

		v = p
	}
}

// shallow follows variable links and bindings at the top level of t.
func (cs *ConstraintSystem) shallow(t Type) Type {
	for {
		v, ok := t.(*TypeVar)
		if !ok {
			return t
		}

		root := cs.find(v)

		b, bound := cs.bindings[root]
		if !bound {
			return root
		}

		t = b
	}
}

func (cs *ConstraintSystem) resolve(t Type) Type {
	t = cs.shallow(t)

	switch x := t.(type) {
	case *FunctionType:
		params := make([]Type, len(x.Params))
		for i, p := range x.Params {
			params[i] = cs.resolve(p)
		}

		return &FunctionType{Params: params, Result: cs.resolve(x.Result)}
	case *PointerType:
		return &PointerType{Elem: cs.resolve(x.Elem)}
	}

	return t
}

func containsVar(t Type) bool {
	switch x := t.(type) {
	case *TypeVar:
		return true
	case *FunctionType:
		for _, p := range x.Params {
			if containsVar(p) {
				return true
			}
		}

		return containsVar(x.Result)
	case *PointerType:
		return containsVar(x.Elem)
	}

	return false
}

func (cs *ConstraintSystem) occurs(v *TypeVar, t Type) bool {
	switch x := cs.shallow(t).(type) {
	case *TypeVar:
		return cs.find(x) == v
	case *FunctionType:
		for _, p := range x.Params {
			if cs.occurs(v, p) {
				return true
			}
		}

		return cs.occurs(v, x.Result)
	case *PointerType:
		return cs.occurs(v, x.Elem)
	}

	return false
}

func (cs *ConstraintSystem) bind(v *TypeVar, t Type, c *Constraint) {
	root := cs.find(v)
	cs.bindings[root] = t
	cs.cause[root] = c
}

// causeOf returns the constraint that determined the variable at the top
// of t, if any.
func (cs *ConstraintSystem) causeOf(t Type) *Constraint {
	v, ok := t.(*TypeVar)
	if !ok {
		return nil
	}

	return cs.cause[cs.find(v)]
}

func (cs *ConstraintSystem) conflict(c *Constraint, sides ...Type) *SolveError {
	other := c

	for _, s := range sides {
		if cause := cs.causeOf(s); cause != nil && cause != c {
			other = cause

			break
		}
	}

	return &SolveError{Kind: SolveConflict, First: other, Second: c}
}

// step tries to discharge c. It reports whether c is done.
func (cs *ConstraintSystem) step(c *Constraint) (bool, error) {
	switch c.Kind {
	case ConstraintEqual:
		if err := cs.unify(c.Left, c.Right, c); err != nil {
			return false, err
		}

		return true, nil
	case ConstraintConforms:
		t := cs.resolve(c.Left)
		if containsVar(t) {
			return false, nil
		}

		if !Conforms(t, c.Protocol) {
			return false, cs.conflict(c, c.Left)
		}

		return true, nil
	case ConstraintConvertible:
		return cs.stepConvertible(c)
	case ConstraintLiteral:
		t := cs.resolve(c.Left)
		if containsVar(t) {
			return false, nil
		}

		if IsError(t) {
			return true, nil
		}

		for _, cand := range c.Candidates {
			if Identical(t, cand) {
				return true, nil
			}
		}

		return false, cs.conflict(c, c.Left)
	}

	return false, fmt.Errorf("unknown constraint kind %s", c.Kind)
}

func (cs *ConstraintSystem) stepConvertible(c *Constraint) (bool, error) {
	from, to := cs.shallow(c.Left), cs.shallow(c.Right)

	// An unbound variable on the other side of the sentinel becomes the
	// sentinel too.
	if IsError(from) || IsError(to) {
		return true, cs.unify(from, to, c)
	}

	_, fromFn := from.(*FunctionType)
	_, toFn := to.(*FunctionType)

	// Function types only convert to themselves.
	if fromFn || toFn {
		if err := cs.unify(from, to, c); err != nil {
			return false, err
		}

		return true, nil
	}

	rf, rt := cs.resolve(from), cs.resolve(to)
	if containsVar(rf) || containsVar(rt) {
		return false, nil
	}

	if !Convertible(rf, rt) {
		return false, cs.conflict(c, c.Left, c.Right)
	}

	return true, nil
}

func (cs *ConstraintSystem) unify(a, b Type, c *Constraint) error {
	x, y := cs.shallow(a), cs.shallow(b)

	if vx, ok := x.(*TypeVar); ok {
		if vy, ok := y.(*TypeVar); ok {
			if vx != vy {
				cs.parent[vx] = vy
			}

			return nil
		}

		if cs.occurs(vx, y) {
			return cs.conflict(c, a, b)
		}

		cs.bind(vx, y, c)

		return nil
	}

	if vy, ok := y.(*TypeVar); ok {
		if cs.occurs(vy, x) {
			return cs.conflict(c, a, b)
		}

		cs.bind(vy, x, c)

		return nil
	}

	if IsError(x) || IsError(y) {
		return nil
	}

	fx, okx := x.(*FunctionType)
	fy, oky := y.(*FunctionType)

	if okx && oky {
		if len(fx.Params) != len(fy.Params) {
			return cs.conflict(c, a, b)
		}

		for i := range fx.Params {
			if err := cs.unify(fx.Params[i], fy.Params[i], c); err != nil {
				return err
			}
		}

		return cs.unify(fx.Result, fy.Result, c)
	}

	if !Identical(x, y) {
		return cs.conflict(c, a, b)
	}

	return nil
}

// varInfo gathers what the pending constraints say about one variable.
type varInfo struct {
	lower     []Type
	lowerBy   []*Constraint
	upper     []Type
	upperBy   []*Constraint
	literals  []*Constraint
	protocols []*ProtocolType
}

// decide binds one stalled variable. The policy, applied to unbound
// variables in creation order:
//
//  1. a variable with concrete lower bounds takes their join;
//  2. a literal variable takes, among its candidates that satisfy its
//     conformance and upper bounds, the most specific type already bound
//     to some other variable, otherwise the first candidate;
//  3. a variable with concrete upper bounds takes the first one.
func (cs *ConstraintSystem) decide(pending []*Constraint) bool {
	info := make(map[*TypeVar]*varInfo)
	get := func(v *TypeVar) *varInfo {
		root := cs.find(v)
		if info[root] == nil {
			info[root] = &varInfo{}
		}

		return info[root]
	}

	for _, c := range pending {
		switch c.Kind {
		case ConstraintConvertible:
			from, to := cs.resolve(c.Left), cs.resolve(c.Right)
			if v, ok := to.(*TypeVar); ok && !containsVar(from) {
				vi := get(v)
				vi.lower = append(vi.lower, from)
				vi.lowerBy = append(vi.lowerBy, c)
			}

			if v, ok := from.(*TypeVar); ok && !containsVar(to) {
				vi := get(v)
				vi.upper = append(vi.upper, to)
				vi.upperBy = append(vi.upperBy, c)
			}
		case ConstraintLiteral:
			if v, ok := cs.resolve(c.Left).(*TypeVar); ok {
				vi := get(v)
				vi.literals = append(vi.literals, c)
			}
		case ConstraintConforms:
			if v, ok := cs.resolve(c.Left).(*TypeVar); ok {
				vi := get(v)
				vi.protocols = append(vi.protocols, c.Protocol)
			}
		}
	}

	roots := cs.unboundRoots()

	for _, v := range roots {
		vi := info[v]
		if vi == nil || len(vi.lower) == 0 {
			continue
		}

		t, by := join(vi.lower, vi.lowerBy)
		cs.bind(v, t, by)

		return true
	}

	for _, v := range roots {
		vi := info[v]
		if vi == nil || len(vi.literals) == 0 {
			continue
		}

		cs.bind(v, cs.pickLiteral(vi), vi.literals[0])

		return true
	}

	for _, v := range roots {
		vi := info[v]
		if vi == nil || len(vi.upper) == 0 {
			continue
		}

		cs.bind(v, vi.upper[0], vi.upperBy[0])

		return true
	}

	return false
}

func (cs *ConstraintSystem) unboundRoots() []*TypeVar {
	var out []*TypeVar

	seen := make(map[*TypeVar]bool)

	for _, v := range cs.vars {
		root := cs.find(v)
		if seen[root] {
			continue
		}

		seen[root] = true

		if _, bound := cs.bindings[root]; !bound {
			out = append(out, root)
		}
	}

	return out
}

// join returns the bound every other bound converts to; the error
// sentinel wins so that failures propagate.
func join(bounds []Type, by []*Constraint) (Type, *Constraint) {
	for i, b := range bounds {
		if IsError(b) {
			return b, by[i]
		}
	}

	for i, b := range bounds {
		all := true

		for _, o := range bounds {
			if !Convertible(o, b) {
				all = false

				break
			}
		}

		if all {
			return b, by[i]
		}
	}

	return bounds[0], by[0]
}

func (cs *ConstraintSystem) pickLiteral(vi *varInfo) Type {
	cands := vi.literals[0].Candidates

	for _, lc := range vi.literals[1:] {
		var keep []Type

		for _, t := range cands {
			for _, u := range lc.Candidates {
				if Identical(t, u) {
					keep = append(keep, t)

					break
				}
			}
		}

		cands = keep
	}

	if len(cands) == 0 {
		return vi.literals[0].Candidates[0]
	}

	var viable []Type

	for _, t := range cands {
		ok := true

		for _, p := range vi.protocols {
			if !Conforms(t, p) {
				ok = false
			}
		}

		for _, u := range vi.upper {
			if !Convertible(t, u) {
				ok = false
			}
		}

		if ok {
			viable = append(viable, t)
		}
	}

	if len(viable) == 0 {
		viable = cands
	}

	var bound []Type

	for _, t := range viable {
		for _, b := range cs.bindings {
			if Identical(cs.resolve(b), t) {
				bound = append(bound, t)

				break
			}
		}
	}

	if len(bound) > 0 {
		return mostSpecific(bound)
	}

	return viable[0]
}

// mostSpecific returns the type that converts to all others.
func mostSpecific(ts []Type) Type {
	for _, t := range ts {
		all := true

		for _, u := range ts {
			if !Convertible(t, u) {
				all = false

				break
			}
		}

		if all {
			return t
		}
	}

	return ts[0]
}

func (cs *ConstraintSystem) varsOf(pending []*Constraint) []*TypeVar {
	var out []*TypeVar

	seen := make(map[*TypeVar]bool)

	for _, c := range pending {
		for _, t := range []Type{c.Left, c.Right} {
			if v, ok := t.(*TypeVar); ok && !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}

	return out
}
