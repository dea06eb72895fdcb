// Package pipeline drives the phases over the units of a compilation and
// hands the resulting module to a backend or serializer.
package pipeline

//go:generate mockgen -destination=mocks/pipeline.go -package=mocks github.com/orizon-lang/ozc/internal/pipeline Backend,Serializer
//go:generate mockgen -destination=mocks/sink.go -package=mocks github.com/orizon-lang/ozc/internal/diagnostic Sink

import (
	"context"
	"io"

	"github.com/orizon-lang/ozc/internal/mir"
)

// Artifact is the output of a backend.
type Artifact struct {
	Name      string
	MediaType string
	Data      []byte
}

// Backend turns a validated module into an artifact.
type Backend interface {
	Generate(ctx context.Context, mod *mir.Module, name string) (*Artifact, error)
}

// SerializeOptions configure a Serializer. The primary image goes to
// Writer, or to the file Path when Writer is nil.
type SerializeOptions struct {
	Writer io.Writer
	Path   string
	// DocPath, when set, receives a documentation companion listing the
	// module's declarations.
	DocPath string
	// Indent pretty-prints structured formats.
	Indent bool
}

// Serializer writes a module in an interchange format.
type Serializer interface {
	Serialize(ctx context.Context, mod *mir.Module, opts SerializeOptions) error
}

// Source is one input buffer of a compilation.
type Source struct {
	// Name names the unit; top-level functions are named after it.
	Name string
	Path string
	Text string
	// Main marks the unit whose top-level statements run.
	Main bool
}
