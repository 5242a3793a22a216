// Package subscription tracks which customers are committed to which
// tariff, and hands storage engines an opaque handle to read a
// subscription's population rather than a shared owned pointer (spec.md
// §9's back-reference re-architecture note).
package subscription

import (
	"sync"

	"github.com/google/uuid"
)

// ID is an opaque subscription handle. Storage engines hold an ID plus a
// reference to the owning Registry, not a pointer into the registry's
// internals.
type ID uuid.UUID

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// Registry holds every subscription's committed customer count, keyed by
// its opaque ID. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	tariff  map[ID]string
	count   map[ID]float64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		tariff: make(map[ID]string),
		count:  make(map[ID]float64),
	}
}

// Create registers a new subscription for the given tariff name with an
// initial committed customer count, returning its opaque ID.
func (r *Registry) Create(tariffName string, initialCount float64) ID {
	id := ID(uuid.New())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tariff[id] = tariffName
	r.count[id] = initialCount
	return id
}

// CustomersCommitted returns the current committed customer count for id.
// This is the accessor a storage.State binds to as its storage.Accessor —
// it never reaches back into the Registry beyond this one read.
func (r *Registry) CustomersCommitted(id ID) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count[id]
}

// Accessor returns a closure suitable as the population accessor passed to
// storage.New, bound to one subscription ID.
func (r *Registry) Accessor(id ID) func() float64 {
	return func() float64 {
		return r.CustomersCommitted(id)
	}
}

// Tariff returns the tariff name a subscription is enrolled in.
func (r *Registry) Tariff(id ID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.tariff[id]
	return name, ok
}

// Move transfers count customers from src to dst, adjusting both
// subscriptions' committed counts. It does not touch either subscription's
// storage.State — callers must call the destination engine's
// MoveSubscribers with the same count and timeslot before this call, not
// after: MoveSubscribers derives its migration fraction from the source
// engine's population accessor read live at call time, and this method
// mutates the very count that accessor reads (see internal/api's
// handleMoveSubscription). Per spec.md §4.5's ordering note, migration
// completes before any per-timeslot phase runs on either engine.
func (r *Registry) Move(src, dst ID, count float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count[src] -= count
	r.count[dst] += count
}

// Remove deletes a subscription entirely (its population has fully
// migrated away or the customer has left the simulation).
func (r *Registry) Remove(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tariff, id)
	delete(r.count, id)
}

// All returns every currently registered subscription ID.
func (r *Registry) All() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ID, 0, len(r.tariff))
	for id := range r.tariff {
		out = append(out, id)
	}
	return out
}
