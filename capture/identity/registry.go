// Package identity assigns stable integer identifiers to DOM nodes for the
// lifetime of one recording session.
package identity

import (
	"runtime"
	"sync"
	"weak"

	"github.com/uxtrace/uxtrace/capture/dom"
)

// Registry maps node identity to a session-scoped integer. The association
// is weak: entries are reclaimed automatically once the node is unreachable
// elsewhere, so the registry never keeps a detached node alive. Identifiers
// are never reused within a session.
type Registry struct {
	mu   sync.Mutex
	next int
	ids  map[weak.Pointer[dom.Node]]int
}

// NewRegistry creates an empty registry. One registry serves one session; a
// full page reload starts a fresh registry and therefore a fresh numbering.
func NewRegistry() *Registry {
	return &Registry{ids: map[weak.Pointer[dom.Node]]int{}}
}

// IDOf returns the node's identifier, allocating the next unused integer on
// first observation. Later calls for the same node return the same value.
func (r *Registry) IDOf(n *dom.Node) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	wp := weak.Make(n)
	if id, ok := r.ids[wp]; ok {
		return id
	}
	r.next++
	id := r.next
	r.ids[wp] = id
	runtime.AddCleanup(n, func(p weak.Pointer[dom.Node]) {
		r.mu.Lock()
		delete(r.ids, p)
		r.mu.Unlock()
	}, wp)
	return id
}

// Lookup returns the identifier already assigned to the node without
// allocating one. Removal records resolve ids for nodes that may already be
// detached.
func (r *Registry) Lookup(n *dom.Node) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ids[weak.Make(n)]
	return id, ok
}

// Size returns the number of live associations.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}
