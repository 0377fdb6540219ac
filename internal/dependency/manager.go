package dependency

import (
	"errors"
	"slices"
	"sync"

	"github.com/zjrosen/depscope/internal/component"
	"github.com/zjrosen/depscope/internal/log"
)

// Manager owns a dependent's slots and applies scope events to them.
//
// Embed *Manager in a component to make it a dependent:
//
//	type Driver struct {
//		component.Unique
//		*dependency.Manager
//		motor *dependency.Strict[*Motor]
//	}
type Manager struct {
	mu    sync.RWMutex
	slots []slot
}

// NewManager returns a manager with no declared slots.
func NewManager() *Manager {
	return &Manager{}
}

// Dependencies returns m. It lets a struct embedding *Manager satisfy the
// scope's dependent capability.
func (m *Manager) Dependencies() *Manager { return m }

func (m *Manager) declare(s slot) {
	m.mu.Lock()
	m.slots = append(m.slots, s)
	m.mu.Unlock()
}

func (m *Manager) snapshot() []slot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.slots)
}

// HandleScopeEvent applies e to every slot. An arrival is offered to each
// slot in declaration order. A departure clears weak slots holding the
// component and yields a StructuralRemovalError if a strict slot holds it.
func (m *Manager) HandleScopeEvent(e Event) error {
	if m == nil || e.Component == nil {
		return nil
	}

	switch e.Kind {
	case Arrived:
		for _, s := range m.snapshot() {
			s.offer(e.Component, e.guard)
		}
		return nil

	case Left:
		var errs []error
		for _, s := range m.snapshot() {
			if s.strict() {
				if s.holds(e.Component) {
					errs = append(errs, &StructuralRemovalError{Component: e.Component, Slot: s.descriptor()})
				}
				continue
			}
			s.release(e.Component)
		}
		if len(errs) > 0 {
			log.Warn(log.CatManager, "departure of strictly held component", "component", component.KeyString(e.Component))
		}
		return errors.Join(errs...)
	}
	return nil
}

// VetRemoval reports whether c may leave without breaking a strict slot of
// this manager. It does not modify any slot.
func (m *Manager) VetRemoval(c component.Component) error {
	if m == nil {
		return nil
	}
	for _, s := range m.snapshot() {
		if s.strict() && s.holds(c) {
			return &StructuralRemovalError{Component: c, Slot: s.descriptor()}
		}
	}
	return nil
}

// Satisfied reports whether every strict slot is filled. Weak slots never
// block satisfaction.
func (m *Manager) Satisfied() bool {
	for _, s := range m.snapshot() {
		if s.strict() && s.occupant() == nil {
			return false
		}
	}
	return true
}

// Pending returns the descriptors of strict slots that are still empty.
func (m *Manager) Pending() []component.Descriptor {
	var pending []component.Descriptor
	for _, s := range m.snapshot() {
		if s.strict() && s.occupant() == nil {
			pending = append(pending, s.descriptor())
		}
	}
	return pending
}

// SlotInfo describes a declared slot for reporting.
type SlotInfo struct {
	Descriptor component.Descriptor
	Strict     bool
	// Occupant is nil while the slot is empty.
	Occupant component.Component
}

// Slots lists declared slots in declaration order.
func (m *Manager) Slots() []SlotInfo {
	slots := m.snapshot()
	infos := make([]SlotInfo, 0, len(slots))
	for _, s := range slots {
		infos = append(infos, SlotInfo{
			Descriptor: s.descriptor(),
			Strict:     s.strict(),
			Occupant:   s.occupant(),
		})
	}
	return infos
}
