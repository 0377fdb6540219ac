package scope

import (
	"sync"

	"github.com/zjrosen/depscope/internal/component"
	"github.com/zjrosen/depscope/internal/dependency"
)

// Dependent is a component that declares dependency slots.
// Embedding *dependency.Manager satisfies it.
type Dependent interface {
	component.Component
	Dependencies() *dependency.Manager
}

// Observer is notified of membership changes involving other components of
// its scope. Components without it are passive.
type Observer interface {
	OnScopeEvent(e dependency.Event)
}

// entry is a live member. Its lock orders slot fills against removal: a fill
// pins the entry with a read lock for the duration of its compare-and-swap,
// and removal holds the write lock across the strict-occupancy check and the
// set mutation.
type entry struct {
	c        component.Component
	key      any
	deps     *dependency.Manager
	observer Observer

	mu      sync.RWMutex
	removed bool
}

func newEntry(c component.Component) *entry {
	e := &entry{c: c, key: c.Key()}
	if d, ok := c.(Dependent); ok {
		e.deps = d.Dependencies()
	}
	if o, ok := c.(Observer); ok {
		e.observer = o
	}
	return e
}

// Pin implements dependency.Guard.
func (e *entry) Pin() (func(), bool) {
	e.mu.RLock()
	if e.removed {
		e.mu.RUnlock()
		return nil, false
	}
	return e.mu.RUnlock, true
}

func (e *entry) live() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.removed
}

func (e *entry) markRemoved() {
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
}
