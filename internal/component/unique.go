package component

type uniqueKey struct {
	desc Descriptor
}

type namedKey struct {
	desc Descriptor
	name string
}

// Unique is an identity under which at most one component per descriptor can
// be present in a scope. Embed it in a struct to make that struct a
// Component:
//
//	type Clock struct {
//		component.Unique
//	}
//
//	func NewClock() *Clock { return &Clock{Unique: component.UniqueFor[*Clock]()} }
type Unique struct {
	desc Descriptor
}

// UniqueFor derives the descriptor from T.
func UniqueFor[T any]() Unique {
	return Unique{desc: TypeOf[T]()}
}

// NewUnique builds a Unique identity from an explicit descriptor.
func NewUnique(desc Descriptor) (Unique, error) {
	if desc.IsZero() {
		return Unique{}, &DescriptorResolutionError{Contract: "unique", Reason: "zero descriptor"}
	}
	return Unique{desc: desc}, nil
}

// Key implements Component.
func (u Unique) Key() any { return uniqueKey{desc: u.desc} }

// Descriptor implements Described.
func (u Unique) Descriptor() Descriptor { return u.desc }

// Named is an identity keyed by descriptor and name, so several components of
// one category can coexist as long as their names differ.
type Named struct {
	desc Descriptor
	name string
}

// NamedFor derives the descriptor from T.
func NamedFor[T any](name string) Named {
	return Named{desc: TypeOf[T](), name: name}
}

// NewNamed builds a Named identity from an explicit descriptor.
func NewNamed(desc Descriptor, name string) (Named, error) {
	if desc.IsZero() {
		return Named{}, &DescriptorResolutionError{Contract: "named", Reason: "zero descriptor"}
	}
	return Named{desc: desc, name: name}, nil
}

// Key implements Component.
func (n Named) Key() any { return namedKey{desc: n.desc, name: n.name} }

// Descriptor implements Described.
func (n Named) Descriptor() Descriptor { return n.desc }

// Name returns the component's name within its category.
func (n Named) Name() string { return n.name }

func (n Named) String() string { return n.desc.String() + "/" + n.name }

// HasName is implemented by components that carry a name, such as Named and
// Tree.
type HasName interface {
	Name() string
}
