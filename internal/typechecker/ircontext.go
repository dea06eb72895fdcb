package typechecker

import (
	"fmt"
	"sync"

	"github.com/orizon-lang/ozc/internal/mir"
	"github.com/orizon-lang/ozc/internal/parser"
	"github.com/orizon-lang/ozc/internal/session"
	"github.com/orizon-lang/ozc/internal/types"
)

// IRContext parses the textual MIR of `mir { ... }` blocks for the parser.
// Type names in the text resolve like source type annotations.
type IRContext struct {
	sess *session.Session

	// parsing units run concurrently
	mu   sync.Mutex
	seen map[string]bool
}

var _ parser.IRContext = (*IRContext)(nil)

// NewIRContext creates an IR context resolving names in sess.
func NewIRContext(sess *session.Session) *IRContext {
	return &IRContext{sess: sess, seen: make(map[string]bool)}
}

// ParseIR parses text and returns the signatures of the functions it
// defines. A function may only be defined by one block of the session.
func (c *IRContext) ParseIR(text string, offset int) ([]parser.IRFunction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := mir.ParseText(text, mir.ParseOptions{Resolve: c.resolve})
	if err != nil {
		return nil, fmt.Errorf("block at offset %d: %w", offset, err)
	}

	out := make([]parser.IRFunction, 0, len(m.Functions))

	for _, f := range m.Functions {
		if c.seen[f.Name] {
			return nil, fmt.Errorf("block at offset %d: function @%s already defined by another mir block", offset, f.Name)
		}

		out = append(out, parser.IRFunction{Name: f.Name, Type: f.Type()})
	}

	for _, f := range out {
		c.seen[f.Name] = true
	}

	return out, nil
}

func (c *IRContext) resolve(name string) (types.Type, error) {
	te, err := parser.ParseTypeExpr(name)
	if err != nil {
		return nil, err
	}

	return CheckTypeExpr(c.sess, nil, te, TypeExprOptions{})
}
