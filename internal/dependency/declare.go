package dependency

import (
	"github.com/zjrosen/depscope/internal/component"
)

// StrictOf declares a strict slot on m for components of category desc that
// are also of Go type T and satisfy pred. A nil pred accepts every match.
func StrictOf[T component.Component](m *Manager, desc component.Descriptor, pred func(T) bool, opts ...Option[T]) *Strict[T] {
	s := NewStrict(desc, pred, opts...)
	m.declare(s)
	return s
}

// WeakOf declares a weak slot on m.
func WeakOf[T component.Component](m *Manager, desc component.Descriptor, pred func(T) bool, opts ...Option[T]) *Weak[T] {
	w := NewWeak(desc, pred, opts...)
	m.declare(w)
	return w
}

// DeclareStrict declares an untyped strict slot. Use it when the category is
// only known at runtime, for example from a manifest.
func DeclareStrict(m *Manager, desc component.Descriptor, pred func(component.Component) bool) *Strict[component.Component] {
	return StrictOf(m, desc, pred)
}

// DeclareWeak declares an untyped weak slot.
func DeclareWeak(m *Manager, desc component.Descriptor, pred func(component.Component) bool) *Weak[component.Component] {
	return WeakOf(m, desc, pred)
}

// StrictAny declares a strict slot for any component of type T.
func StrictAny[T component.Component](m *Manager, opts ...Option[T]) *Strict[T] {
	return StrictOf(m, component.TypeOf[T](), nil, opts...)
}

// WeakAny declares a weak slot for any component of type T.
func WeakAny[T component.Component](m *Manager, opts ...Option[T]) *Weak[T] {
	return WeakOf(m, component.TypeOf[T](), nil, opts...)
}

// StrictNamed declares a strict slot for the component of type T called name.
func StrictNamed[T component.Component](m *Manager, name string, opts ...Option[T]) *Strict[T] {
	return StrictOf(m, component.TypeOf[T](), NameIs[T](name), opts...)
}

// WeakNamed declares a weak slot for the component of type T called name.
func WeakNamed[T component.Component](m *Manager, name string, opts ...Option[T]) *Weak[T] {
	return WeakOf(m, component.TypeOf[T](), NameIs[T](name), opts...)
}

// NameIs is a predicate matching components whose Name is name. Components
// without a name never match.
func NameIs[T component.Component](name string) func(T) bool {
	return func(v T) bool {
		named, ok := any(v).(component.HasName)
		return ok && named.Name() == name
	}
}
