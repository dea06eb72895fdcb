// Package ast defines the syntax tree of ozc source units.
//
// Nodes are grouped into closed categories (Decl, Stmt, Expr, TypeExpr)
// distinguished by marker methods; consumers switch exhaustively over the
// concrete node types. Children are owned through ordinary fields. Parent
// links are NodeIDs into the owning SourceUnit's Arena, never pointers, so
// the arena alone controls node lifetime.
package ast

import (
	"github.com/orizon-lang/ozc/internal/position"
	"github.com/orizon-lang/ozc/internal/types"
)

// NodeID indexes a node in its unit's Arena. The zero ID means "none".
type NodeID uint32

// NoNode is the absent node ID.
const NoNode NodeID = 0

// Node is the base interface for all AST nodes.
type Node interface {
	// GetSpan returns the source span covered by this node
	GetSpan() position.Span
	// Base exposes identity, parent link and type slot
	Base() *NodeBase
	// String returns a source-like representation of the node
	String() string
}

// Decl represents all declaration nodes.
type Decl interface {
	Node
	declNode()
}

// Stmt represents all statement nodes.
type Stmt interface {
	Node
	stmtNode()
}

// Expr represents all expression nodes.
type Expr interface {
	Node
	exprNode()
}

// TypeExpr represents written types.
type TypeExpr interface {
	Node
	typeExprNode()
}

// NodeBase is embedded in every node.
type NodeBase struct {
	Span   position.Span
	ID     NodeID
	Parent NodeID
	typ    types.Type
}

// GetSpan returns the node's source span.
func (b *NodeBase) GetSpan() position.Span { return b.Span }

// Base returns b.
func (b *NodeBase) Base() *NodeBase { return b }

// Type returns the resolved type, or nil before checking.
func (b *NodeBase) Type() types.Type { return b.typ }

// HasType reports whether the type slot is populated.
func (b *NodeBase) HasType() bool { return b.typ != nil }

// SetType writes the type slot. The slot is written once; later writes
// are ignored unless they mark the node as failed with types.ErrorType.
func (b *NodeBase) SetType(t types.Type) {
	if t == nil {
		return
	}

	if b.typ == nil || types.IsError(t) {
		b.typ = t
	}
}

// Arena owns the node numbering of one SourceUnit.
type Arena struct {
	nodes []Node
}

// NewArena creates an empty arena. ID 0 is reserved.
func NewArena() *Arena {
	return &Arena{nodes: []Node{nil}}
}

// Add registers n and returns its ID. Nodes already registered keep theirs.
func (a *Arena) Add(n Node) NodeID {
	b := n.Base()
	if b.ID != NoNode {
		return b.ID
	}

	b.ID = NodeID(len(a.nodes))
	a.nodes = append(a.nodes, n)

	return b.ID
}

// Node returns the node with the given ID, or nil.
func (a *Arena) Node(id NodeID) Node {
	if id == NoNode || int(id) >= len(a.nodes) {
		return nil
	}

	return a.nodes[id]
}

// Len returns the number of registered nodes.
func (a *Arena) Len() int { return len(a.nodes) - 1 }

// Owns reports whether n was registered in this arena.
func (a *Arena) Owns(n Node) bool {
	id := n.Base().ID

	return id != NoNode && int(id) < len(a.nodes) && a.nodes[id] == n
}
