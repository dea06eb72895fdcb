package session

import "sync"

// Interner canonicalizes identifier spellings. Once frozen it is
// read-only: unknown spellings are returned as given.
type Interner struct {
	mu     sync.RWMutex
	names  map[string]string
	frozen bool
}

// NewInterner creates an empty interner.
func NewInterner() *Interner {
	return &Interner{names: make(map[string]string)}
}

// Intern returns the canonical copy of s.
func (in *Interner) Intern(s string) string {
	in.mu.RLock()
	c, ok := in.names[s]
	frozen := in.frozen
	in.mu.RUnlock()

	if ok || frozen {
		if ok {
			return c
		}

		return s
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if c, ok := in.names[s]; ok {
		return c
	}

	if in.frozen {
		return s
	}

	in.names[s] = s

	return s
}

// Known reports whether s has been interned.
func (in *Interner) Known(s string) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()

	_, ok := in.names[s]

	return ok
}

// Len returns the number of interned spellings.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()

	return len(in.names)
}

// Freeze stops the interner from growing.
func (in *Interner) Freeze() {
	in.mu.Lock()
	in.frozen = true
	in.mu.Unlock()
}
