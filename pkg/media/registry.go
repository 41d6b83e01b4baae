package media

import (
	"sync"

	"github.com/google/uuid"
)

// Ref is a revocable, process-local reference to a Handle.
type Ref string

// Registry issues and revokes references. Each reference is revoked at
// most once.
type Registry struct {
	mu      sync.Mutex
	handles map[Ref]*Handle
	issued  int64
	revoked int64
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[Ref]*Handle)}
}

// Issue returns a new reference to h.
func (r *Registry) Issue(h *Handle) Ref {
	ref := Ref(uuid.NewString())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[ref] = h
	r.issued++
	return ref
}

// Resolve returns the handle behind a live reference.
func (r *Registry) Resolve(ref Ref) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[ref]
	return h, ok
}

// Revoke invalidates ref. It reports false if ref was unknown or already
// revoked.
func (r *Registry) Revoke(ref Ref) bool {
	if ref == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[ref]; !ok {
		return false
	}
	delete(r.handles, ref)
	r.revoked++
	return true
}

// live returns the number of unrevoked references.
func (r *Registry) live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Stats returns the lifetime issued and revoked counts.
func (r *Registry) Stats() (issued, revoked int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.issued, r.revoked
}
