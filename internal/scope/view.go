package scope

import (
	"slices"

	"github.com/zjrosen/depscope/internal/component"
	"github.com/zjrosen/depscope/internal/dependency"
)

// View is an immutable snapshot of a scope's members in registration order.
type View struct {
	members []component.Component
}

// Len returns the number of members.
func (v View) Len() int { return len(v.members) }

// Components returns the members.
func (v View) Components() []component.Component { return slices.Clone(v.members) }

// Contains reports whether a member has c's key.
func (v View) Contains(c component.Component) bool {
	return slices.ContainsFunc(v.members, func(m component.Component) bool {
		return component.SameKey(m, c)
	})
}

// Find returns the members accepted by desc.
func (v View) Find(desc component.Descriptor) []component.Component {
	return filter(v.members, desc)
}

// Finder looks components up by descriptor. Scope and View implement it.
type Finder interface {
	Find(desc component.Descriptor) []component.Component
}

var (
	_ Finder = (*Scope)(nil)
	_ Finder = View{}
)

// All returns every component of type T.
func All[T any](f Finder) []T {
	found := f.Find(component.TypeOf[T]())
	out := make([]T, 0, len(found))
	for _, c := range found {
		if v, ok := c.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// Maybe returns the component of type T when exactly one is present.
func Maybe[T any](f Finder) (T, bool) {
	return single(All[T](f))
}

// Must returns the component of type T, or a MissingDependencyError when
// none or several are present.
func Must[T any](f Finder) (T, error) {
	return mustSingle(All[T](f), component.TypeOf[T](), "")
}

// MaybeNamed returns the component of type T called name when exactly one is
// present.
func MaybeNamed[T any](f Finder, name string) (T, bool) {
	return single(named(All[T](f), name))
}

// MustNamed is MaybeNamed returning a MissingDependencyError.
func MustNamed[T any](f Finder, name string) (T, error) {
	return mustSingle(named(All[T](f), name), component.TypeOf[T](), "name "+name)
}

func named[T any](found []T, name string) []T {
	return slices.DeleteFunc(found, func(v T) bool {
		n, ok := any(v).(component.HasName)
		return !ok || n.Name() != name
	})
}

func single[T any](found []T) (T, bool) {
	if len(found) != 1 {
		var zero T
		return zero, false
	}
	return found[0], true
}

func mustSingle[T any](found []T, desc component.Descriptor, detail string) (T, error) {
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		var zero T
		return zero, &dependency.MissingDependencyError{Descriptor: desc, Detail: join(detail, "none present")}
	default:
		var zero T
		return zero, &dependency.MissingDependencyError{Descriptor: desc, Detail: join(detail, "ambiguous")}
	}
}

func join(detail, reason string) string {
	if detail == "" {
		return reason
	}
	return detail + ", " + reason
}
