package component

import (
	"fmt"
	"reflect"
)

type wrapperKey struct {
	typ reflect.Type
}

// Wrapper adapts a value that cannot implement Component itself. Its identity
// is the wrapped value's runtime type, so a scope holds at most one wrapper
// per wrapped type and a second registration is a no-op.
type Wrapper[T any] struct {
	typ   reflect.Type
	value T
}

// Wrap adapts v. It fails when v's runtime type cannot be determined, which
// happens for a nil interface value.
func Wrap[T any](v T) (*Wrapper[T], error) {
	typ := reflect.TypeOf(any(v))
	if typ == nil {
		return nil, &DescriptorResolutionError{
			Contract: "wrapper",
			Reason:   fmt.Sprintf("nil %s has no runtime type", reflect.TypeFor[T]()),
		}
	}
	return &Wrapper[T]{typ: typ, value: v}, nil
}

// MustWrap is Wrap that panics on failure.
func MustWrap[T any](v T) *Wrapper[T] {
	w, err := Wrap(v)
	if err != nil {
		panic(err)
	}
	return w
}

// Key implements Component.
func (w *Wrapper[T]) Key() any { return wrapperKey{typ: w.typ} }

// Unwrap returns the wrapped value.
func (w *Wrapper[T]) Unwrap() T { return w.value }

// WrappedType returns the runtime type the identity is derived from.
func (w *Wrapper[T]) WrappedType() reflect.Type { return w.typ }

func (w *Wrapper[T]) String() string { return "wrapper(" + w.typ.String() + ")" }
