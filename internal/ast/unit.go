package ast

import (
	stderrors "errors"
	"fmt"

	"github.com/orizon-lang/ozc/internal/errors"
	"github.com/orizon-lang/ozc/internal/position"
)

// Errors returned when a phase is entered with an invalid start element.
var (
	ErrNonMonotonicStart = stderrors.New("start element precedes an earlier start for this phase")
	ErrStartOutOfRange   = stderrors.New("start element is past the end of the unit")
)

// Phase names an incremental pipeline phase.
type Phase int

const (
	// PhaseDeclare publishes top-level names; binding completes it for
	// elements it reaches first.
	PhaseDeclare Phase = iota
	PhaseBind
	PhaseCheck
	PhaseLower
	numPhases
)

func (p Phase) String() string {
	switch p {
	case PhaseDeclare:
		return "declare"
	case PhaseBind:
		return "bind"
	case PhaseCheck:
		return "check"
	case PhaseLower:
		return "lower"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Progress records, per phase, the last accepted start element and how
// many elements the phase has completed.
type Progress struct {
	started [numPhases]bool
	start   [numPhases]int
	done    [numPhases]int
}

// Done returns the number of elements phase p has processed.
func (p *Progress) Done(phase Phase) int { return p.done[phase] }

// SourceUnit is the ordered top-level elements of one input buffer. New
// elements are only ever appended.
type SourceUnit struct {
	Name     string
	File     *position.SourceFile
	Elements []Node
	Arena    *Arena
	Progress Progress

	// InterfaceOnly marks a unit parsed from an external module interface.
	InterfaceOnly bool
	// Module is the external module an interface unit describes.
	Module string
}

// NewSourceUnit creates an empty unit over file.
func NewSourceUnit(name string, file *position.SourceFile) *SourceUnit {
	return &SourceUnit{Name: name, File: file, Arena: NewArena()}
}

// Append adopts n as the next top-level element and returns its index.
func (u *SourceUnit) Append(n Node) int {
	u.Adopt(n, NoNode)
	u.Elements = append(u.Elements, n)

	return len(u.Elements) - 1
}

// Adopt registers every node of the subtree rooted at n in the arena and
// sets parent links, n's parent being parent. Already registered nodes
// keep their IDs; parents are always rewritten.
func (u *SourceUnit) Adopt(n Node, parent NodeID) {
	u.Arena.Add(n)
	n.Base().Parent = parent

	for _, c := range Children(n) {
		u.Adopt(c, n.Base().ID)
	}
}

// Node looks up a node by ID.
func (u *SourceUnit) Node(id NodeID) Node { return u.Arena.Node(id) }

// ParentOf returns the parent of n, or nil for top-level elements.
func (u *SourceUnit) ParentOf(n Node) Node { return u.Arena.Node(n.Base().Parent) }

// IndexOf returns the element index of a top-level node, or -1.
func (u *SourceUnit) IndexOf(n Node) int {
	for i, e := range u.Elements {
		if e == n {
			return i
		}
	}

	return -1
}

// TopLevelOf walks parent links up to the top-level element containing n.
func (u *SourceUnit) TopLevelOf(n Node) Node {
	for {
		p := u.ParentOf(n)
		if p == nil {
			return n
		}

		n = p
	}
}

// BeginPhase validates start for phase and returns the element range
// [from, to) still to process. start must not precede the previously
// accepted start of the same phase; elements the phase already completed
// are skipped, which makes repeated calls at one start idempotent.
func (u *SourceUnit) BeginPhase(phase Phase, start int) (from, to int, err error) {
	if start < 0 || start > len(u.Elements) {
		return 0, 0, errors.Usage(ErrStartOutOfRange, "START_OUT_OF_RANGE", map[string]interface{}{
			"unit": u.Name, "phase": phase.String(), "start": start, "elements": len(u.Elements),
		})
	}

	p := &u.Progress
	if p.started[phase] && start < p.start[phase] {
		return 0, 0, errors.Usage(ErrNonMonotonicStart, "NON_MONOTONIC_START", map[string]interface{}{
			"unit": u.Name, "phase": phase.String(), "start": start, "previous": p.start[phase],
		})
	}

	p.started[phase] = true
	p.start[phase] = start

	from = start
	if p.done[phase] > from {
		from = p.done[phase]
	}

	return from, len(u.Elements), nil
}

// EndPhase records that phase completed every element before through.
func (u *SourceUnit) EndPhase(phase Phase, through int) {
	if through > u.Progress.done[phase] {
		u.Progress.done[phase] = through
	}
}
