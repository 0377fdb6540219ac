// Package dependency implements dependency slots and the manager that routes
// scope events into them.
//
// A slot is a single-value cell that a dependent declares for a category of
// component. Strict slots, once filled, hold their occupant for as long as the
// dependent is registered; a scope refuses to remove a component that any
// live strict slot holds. Weak slots are cleared when their occupant leaves
// and can be refilled by a later arrival.
package dependency

import (
	"fmt"

	"github.com/zjrosen/depscope/internal/component"
)

// EventKind distinguishes arrivals from departures.
type EventKind int

const (
	Arrived EventKind = iota + 1
	Left
)

func (k EventKind) String() string {
	switch k {
	case Arrived:
		return "arrived"
	case Left:
		return "left"
	default:
		return "unknown"
	}
}

// Guard pins a component as live while a slot commits it. Pin returns a
// release func and true, or false when the component has already been
// removed from its scope. A scope attaches a guard to every arrival it
// broadcasts so a fill cannot race with the component's removal.
type Guard interface {
	Pin() (release func(), ok bool)
}

// Event is a membership change broadcast by a scope.
type Event struct {
	Kind      EventKind
	Component component.Component
	guard     Guard
}

// ArrivedEvent reports that c joined the scope.
func ArrivedEvent(c component.Component) Event {
	return Event{Kind: Arrived, Component: c}
}

// GuardedArrival is ArrivedEvent with a guard that fills must pin.
func GuardedArrival(c component.Component, g Guard) Event {
	return Event{Kind: Arrived, Component: c, guard: g}
}

// LeftEvent reports that c left the scope.
func LeftEvent(c component.Component) Event {
	return Event{Kind: Left, Component: c}
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%s)", e.Kind, component.KeyString(e.Component))
}
