// Package component defines the identity contracts for values that live in a
// scope. A component's identity is its Key; two components with equal keys are
// the same component as far as a scope is concerned.
package component

import (
	"fmt"
	"reflect"
)

// Component is anything that can be registered into a scope.
//
// Key must return a comparable value. Keys are compared with ==, so a key
// holding a slice, map or func will panic when a scope compares it.
type Component interface {
	Key() any
}

// Described is implemented by components that report an explicit descriptor.
// Category descriptors match only components that implement it.
type Described interface {
	Descriptor() Descriptor
}

// Descriptor is an opaque, comparable token naming a category of component.
// The zero Descriptor is unresolved and matches nothing.
type Descriptor struct {
	typ      reflect.Type
	category string
}

// TypeOf returns the descriptor for the Go type T. It matches any component
// whose dynamic type is assignable to T, so an interface descriptor matches
// every implementer.
func TypeOf[T any]() Descriptor {
	return Descriptor{typ: reflect.TypeFor[T]()}
}

// Category returns a descriptor for a named category. An empty name yields
// the zero descriptor.
func Category(name string) Descriptor {
	return Descriptor{category: name}
}

// IsZero reports whether d is the unresolved descriptor.
func (d Descriptor) IsZero() bool {
	return d.typ == nil && d.category == ""
}

// Accepts reports whether c belongs to the category named by d.
func (d Descriptor) Accepts(c Component) bool {
	if c == nil || d.IsZero() {
		return false
	}
	if d.typ != nil {
		return reflect.TypeOf(c).AssignableTo(d.typ)
	}
	described, ok := c.(Described)
	return ok && described.Descriptor() == d
}

// ID returns a string unique to d within the process, for use as a cache
// key. Unlike String it never conflates distinct types that print alike.
func (d Descriptor) ID() string {
	if d.typ != nil {
		return fmt.Sprintf("type:%p:%s", d.typ, d.typ)
	}
	return "category:" + d.category
}

func (d Descriptor) String() string {
	switch {
	case d.typ != nil:
		return d.typ.String()
	case d.category != "":
		return d.category
	default:
		return "<unresolved>"
	}
}

// KeyString renders a component key for logs and reports.
func KeyString(c Component) string {
	if c == nil {
		return "<nil>"
	}
	if s, ok := c.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", c.Key())
}

// SameKey reports whether a and b share an identity.
func SameKey(a, b Component) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Key() == b.Key()
}
