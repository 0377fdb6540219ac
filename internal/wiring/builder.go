// Package wiring declares a dependent's slots from setter functions.
//
// A component builds its dependencies once, at construction:
//
//	type Driver struct {
//		component.Unique
//		*dependency.Manager
//		motor *Motor
//	}
//
//	func NewDriver() *Driver {
//		d := &Driver{Unique: component.UniqueFor[*Driver](), Manager: dependency.NewManager()}
//		b := wiring.New(d.Manager)
//		wiring.Require(b, func(m *Motor) { d.motor = m }, wiring.Named("left"))
//		return d
//	}
package wiring

import (
	"sync"

	"github.com/zjrosen/depscope/internal/component"
	"github.com/zjrosen/depscope/internal/dependency"
	"github.com/zjrosen/depscope/internal/log"
)

// Declaration describes one slot declared through a Builder.
type Declaration struct {
	Descriptor component.Descriptor
	Name       string
	Strict     bool

	filled func() bool
}

// Filled reports whether the slot currently holds a component.
func (d Declaration) Filled() bool { return d.filled != nil && d.filled() }

func (d Declaration) String() string {
	s := d.Descriptor.String()
	if d.Name != "" {
		s += "/" + d.Name
	}
	if d.Strict {
		return "must " + s
	}
	return "maybe " + s
}

// Builder declares slots on a dependency manager.
type Builder struct {
	m *dependency.Manager

	mu    sync.Mutex
	decls []Declaration
}

// New returns a builder declaring slots on m.
func New(m *dependency.Manager) *Builder {
	return &Builder{m: m}
}

// Manager returns the manager slots are declared on.
func (b *Builder) Manager() *dependency.Manager { return b.m }

// Declarations returns every declaration in order.
func (b *Builder) Declarations() []Declaration {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Declaration, len(b.decls))
	copy(out, b.decls)
	return out
}

// Pending returns the strict declarations that are still unfilled.
func (b *Builder) Pending() []Declaration {
	var pending []Declaration
	for _, d := range b.Declarations() {
		if d.Strict && !d.Filled() {
			pending = append(pending, d)
		}
	}
	return pending
}

func (b *Builder) record(d Declaration) {
	b.mu.Lock()
	b.decls = append(b.decls, d)
	b.mu.Unlock()
	log.Debug(log.CatWiring, "declared", "slot", d.String())
}

// Option narrows which components a declaration accepts.
type Option func(*options)

type options struct {
	name  string
	where func(component.Component) bool
}

// Named accepts only components whose Name is name.
func Named(name string) Option {
	return func(o *options) { o.name = name }
}

// Where accepts only components for which pred returns true.
func Where(pred func(component.Component) bool) Option {
	return func(o *options) { o.where = pred }
}

func resolve(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func predicate[T component.Component](o options) func(T) bool {
	if o.name == "" && o.where == nil {
		return nil
	}
	var byName func(T) bool
	if o.name != "" {
		byName = dependency.NameIs[T](o.name)
	}
	return func(v T) bool {
		if byName != nil && !byName(v) {
			return false
		}
		return o.where == nil || o.where(v)
	}
}

// Require declares a strict slot for a component of type T. set runs once,
// when the slot is filled.
func Require[T component.Component](b *Builder, set func(T), opts ...Option) *dependency.Strict[T] {
	o := resolve(opts)
	var slotOpts []dependency.Option[T]
	if set != nil {
		slotOpts = append(slotOpts, dependency.OnFilled(set))
	}
	s := dependency.StrictOf(b.m, component.TypeOf[T](), predicate[T](o), slotOpts...)
	b.record(Declaration{Descriptor: s.Descriptor(), Name: o.name, Strict: true, filled: s.Filled})
	return s
}

// Optional declares a weak slot for a component of type T. set runs when the
// slot is filled and unset when it is cleared; either may be nil.
func Optional[T component.Component](b *Builder, set func(T), unset func(), opts ...Option) *dependency.Weak[T] {
	o := resolve(opts)
	var slotOpts []dependency.Option[T]
	if set != nil {
		slotOpts = append(slotOpts, dependency.OnFilled(set))
	}
	if unset != nil {
		slotOpts = append(slotOpts, dependency.OnCleared[T](unset))
	}
	w := dependency.WeakOf(b.m, component.TypeOf[T](), predicate[T](o), slotOpts...)
	b.record(Declaration{Descriptor: w.Descriptor(), Name: o.name, filled: w.Filled})
	return w
}

// RequireOf declares a strict slot for any component matching desc, for
// categories only known at runtime.
func RequireOf(b *Builder, desc component.Descriptor, set func(component.Component), opts ...Option) *dependency.Strict[component.Component] {
	o := resolve(opts)
	var slotOpts []dependency.Option[component.Component]
	if set != nil {
		slotOpts = append(slotOpts, dependency.OnFilled(set))
	}
	s := dependency.StrictOf(b.m, desc, predicate[component.Component](o), slotOpts...)
	b.record(Declaration{Descriptor: desc, Name: o.name, Strict: true, filled: s.Filled})
	return s
}

// OptionalOf is RequireOf for a weak slot.
func OptionalOf(b *Builder, desc component.Descriptor, set func(component.Component), unset func(), opts ...Option) *dependency.Weak[component.Component] {
	o := resolve(opts)
	var slotOpts []dependency.Option[component.Component]
	if set != nil {
		slotOpts = append(slotOpts, dependency.OnFilled(set))
	}
	if unset != nil {
		slotOpts = append(slotOpts, dependency.OnCleared[component.Component](unset))
	}
	w := dependency.WeakOf(b.m, desc, predicate[component.Component](o), slotOpts...)
	b.record(Declaration{Descriptor: desc, Name: o.name, filled: w.Filled})
	return w
}

// RequireWrapped declares a strict slot for the wrapper of a T and passes the
// unwrapped value to set.
func RequireWrapped[T any](b *Builder, set func(T), opts ...Option) *dependency.Strict[*component.Wrapper[T]] {
	var unwrap func(*component.Wrapper[T])
	if set != nil {
		unwrap = func(w *component.Wrapper[T]) { set(w.Unwrap()) }
	}
	return Require(b, unwrap, opts...)
}

// OptionalWrapped is RequireWrapped for a weak slot.
func OptionalWrapped[T any](b *Builder, set func(T), unset func(), opts ...Option) *dependency.Weak[*component.Wrapper[T]] {
	var unwrap func(*component.Wrapper[T])
	if set != nil {
		unwrap = func(w *component.Wrapper[T]) { set(w.Unwrap()) }
	}
	return Optional(b, unwrap, unset, opts...)
}

// Must returns an accessor mapping the strict slot's occupant through fn. The
// accessor fails with a MissingDependencyError until the slot is filled and
// caches the mapped value afterwards.
func Must[C component.Component, V any](s *dependency.Strict[C], fn func(C) V) func() (V, error) {
	var (
		mu    sync.Mutex
		done  bool
		value V
	)
	return func() (V, error) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return value, nil
		}
		c, err := s.Get()
		if err != nil {
			var zero V
			return zero, err
		}
		value, done = fn(c), true
		return value, nil
	}
}

// Maybe returns an accessor mapping the weak slot's occupant through fn, or
// def while the slot is empty. It is evaluated on every call because a weak
// slot may be cleared.
func Maybe[C component.Component, V any](w *dependency.Weak[C], def V, fn func(C) V) func() V {
	return func() V {
		c, ok := w.Get()
		if !ok {
			return def
		}
		return fn(c)
	}
}
