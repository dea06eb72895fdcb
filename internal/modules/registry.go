// Package modules holds the descriptions of external modules a compilation
// may import. Each description carries the module's interface source:
// body-less declarations the binder and checker treat as already checked.
package modules

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	semver "github.com/Masterminds/semver/v3"
)

var (
	// ErrNotFound is returned when no module with the requested name exists.
	ErrNotFound = errors.New("module not found")
	// ErrNoMatchingVersion is returned when a module exists but no version
	// satisfies the constraint.
	ErrNoMatchingVersion = errors.New("no matching module version")
	// ErrFrozen is returned when a frozen registry is modified.
	ErrFrozen = errors.New("module registry is frozen")
	// ErrDuplicate is returned when the same name and version is added twice.
	ErrDuplicate = errors.New("duplicate module version")
)

// Digest identifies an interface source by content.
type Digest string

// ComputeDigest hashes an interface source.
func ComputeDigest(source string) Digest {
	sum := sha256.Sum256([]byte(source))

	return Digest("oz1-" + hex.EncodeToString(sum[:]))
}

// Descriptor is one version of an external module.
type Descriptor struct {
	Name      string
	Version   *semver.Version
	Interface string
	// Path is the manifest the descriptor was loaded from, if any.
	Path   string
	Digest Digest
}

// Filename returns the pseudo file name used for the interface source.
func (d *Descriptor) Filename() string {
	if d.Path != "" {
		return d.Path
	}

	return fmt.Sprintf("<module %s@%s>", d.Name, d.Version)
}

// Registry indexes module descriptors by name. It is filled before
// compilation starts and frozen before units are processed in parallel;
// lookups are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	index  map[string][]*Descriptor
	frozen bool
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string][]*Descriptor)}
}

// Add registers a module version.
func (r *Registry) Add(name, version, iface string) (*Descriptor, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return nil, fmt.Errorf("module %s: invalid version %q: %w", name, version, err)
	}

	d := &Descriptor{Name: name, Version: v, Interface: iface, Digest: ComputeDigest(iface)}

	return d, r.AddDescriptor(d)
}

// AddDescriptor registers a prepared descriptor.
func (r *Registry) AddDescriptor(d *Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}

	for _, have := range r.index[d.Name] {
		if have.Version.Equal(d.Version) {
			return fmt.Errorf("%w: %s@%s", ErrDuplicate, d.Name, d.Version)
		}
	}

	if d.Digest == "" {
		d.Digest = ComputeDigest(d.Interface)
	}

	r.index[d.Name] = append(r.index[d.Name], d)
	sort.Slice(r.index[d.Name], func(i, j int) bool {
		return r.index[d.Name][i].Version.LessThan(r.index[d.Name][j].Version)
	})

	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.frozen
}

// Find returns the highest version of name satisfying constraint. A nil
// constraint accepts any version.
func (r *Registry) Find(name string, constraint *semver.Constraints) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.index[name]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	// versions are kept ascending
	for i := len(versions) - 1; i >= 0; i-- {
		if constraint == nil || constraint.Check(versions[i].Version) {
			return versions[i], nil
		}
	}

	return nil, fmt.Errorf("%w: %s %s", ErrNoMatchingVersion, name, constraint)
}

// List returns every registered version of name in ascending order.
func (r *Registry) List(name string) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, len(r.index[name]))
	copy(out, r.index[name])

	return out
}

// Names returns the registered module names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.index))
	for n := range r.index {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// ParseConstraint parses a semver constraint; empty means any version.
func ParseConstraint(expr string) (*semver.Constraints, error) {
	if strings.TrimSpace(expr) == "" {
		return semver.NewConstraint(">=0.0.0")
	}

	return semver.NewConstraint(expr)
}
