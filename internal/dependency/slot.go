package dependency

import (
	"sync/atomic"

	"github.com/zjrosen/depscope/internal/component"
	"github.com/zjrosen/depscope/internal/log"
)

// Option configures a slot at declaration time.
type Option[T component.Component] func(*cell[T])

// OnFilled registers fn to run synchronously after the slot is filled. It
// runs on the goroutine that delivered the winning candidate, outside any
// scope lock.
func OnFilled[T component.Component](fn func(T)) Option[T] {
	return func(c *cell[T]) { c.onFilled = fn }
}

// OnCleared registers fn to run after a weak slot is cleared. Strict slots
// never clear.
func OnCleared[T component.Component](fn func()) Option[T] {
	return func(c *cell[T]) { c.onCleared = fn }
}

// slot is the manager's view of a declared slot.
type slot interface {
	descriptor() component.Descriptor
	strict() bool
	offer(c component.Component, g Guard) bool
	holds(c component.Component) bool
	release(c component.Component) bool
	occupant() component.Component
}

type cell[T component.Component] struct {
	desc      component.Descriptor
	pred      func(T) bool
	value     atomic.Pointer[T]
	onFilled  func(T)
	onCleared func()
}

func (c *cell[T]) init(desc component.Descriptor, pred func(T) bool, opts []Option[T]) {
	c.desc = desc
	c.pred = pred
	for _, opt := range opts {
		opt(c)
	}
}

// submit tries to fill the cell with candidate. It returns the occupant after
// the attempt and whether this call filled it.
func (c *cell[T]) submit(candidate component.Component, g Guard) (T, bool) {
	var zero T
	if cur := c.value.Load(); cur != nil {
		return *cur, false
	}
	if !c.desc.Accepts(candidate) {
		return zero, false
	}
	v, ok := candidate.(T)
	if !ok {
		return zero, false
	}
	if c.pred != nil && !c.pred(v) {
		return zero, false
	}

	release := func() {}
	if g != nil {
		r, live := g.Pin()
		if !live {
			log.Debug(log.CatSlot, "candidate left before fill", "descriptor", c.desc, "candidate", component.KeyString(candidate))
			return zero, false
		}
		release = r
	}
	won := c.value.CompareAndSwap(nil, &v)
	release()

	if !won {
		if cur := c.value.Load(); cur != nil {
			return *cur, false
		}
		return zero, false
	}

	log.Debug(log.CatSlot, "slot filled", "descriptor", c.desc, "occupant", component.KeyString(candidate))
	if c.onFilled != nil {
		c.onFilled(v)
	}
	return v, true
}

func (c *cell[T]) current() (T, bool) {
	if cur := c.value.Load(); cur != nil {
		return *cur, true
	}
	var zero T
	return zero, false
}

func (c *cell[T]) descriptor() component.Descriptor { return c.desc }

func (c *cell[T]) holds(candidate component.Component) bool {
	cur := c.value.Load()
	return cur != nil && component.SameKey(*cur, candidate)
}

func (c *cell[T]) occupant() component.Component {
	if cur := c.value.Load(); cur != nil {
		return *cur
	}
	return nil
}

func (c *cell[T]) offer(candidate component.Component, g Guard) bool {
	_, filled := c.submit(candidate, g)
	return filled
}

// Strict is a slot that, once filled, keeps its occupant while the owning
// dependent is registered.
type Strict[T component.Component] struct {
	cell[T]
}

// NewStrict creates a standalone strict slot. Slots declared through a
// Manager receive scope events automatically.
func NewStrict[T component.Component](desc component.Descriptor, pred func(T) bool, opts ...Option[T]) *Strict[T] {
	s := &Strict[T]{}
	s.init(desc, pred, opts)
	return s
}

// Submit offers candidate to the slot. A filled slot ignores the offer and
// returns its occupant; a mismatching candidate is ignored. The bool reports
// whether this call filled the slot.
func (s *Strict[T]) Submit(candidate component.Component) (T, bool) {
	return s.submit(candidate, nil)
}

// Get returns the occupant, or a MissingDependencyError while empty.
func (s *Strict[T]) Get() (T, error) {
	v, ok := s.current()
	if !ok {
		return v, &MissingDependencyError{Descriptor: s.desc}
	}
	return v, nil
}

// MustGet returns the occupant and panics while empty.
func (s *Strict[T]) MustGet() T {
	v, err := s.Get()
	if err != nil {
		panic(err)
	}
	return v
}

// Filled reports whether the slot has an occupant.
func (s *Strict[T]) Filled() bool { return s.value.Load() != nil }

// Descriptor returns the category the slot accepts.
func (s *Strict[T]) Descriptor() component.Descriptor { return s.desc }

func (s *Strict[T]) strict() bool { return true }

func (s *Strict[T]) release(component.Component) bool { return false }

// Weak is a slot that empties when its occupant leaves and may be refilled by
// a later arrival.
type Weak[T component.Component] struct {
	cell[T]
}

// NewWeak creates a standalone weak slot.
func NewWeak[T component.Component](desc component.Descriptor, pred func(T) bool, opts ...Option[T]) *Weak[T] {
	w := &Weak[T]{}
	w.init(desc, pred, opts)
	return w
}

// Submit offers candidate to the slot with the same rules as Strict.Submit.
// Only an empty weak slot can be filled.
func (w *Weak[T]) Submit(candidate component.Component) (T, bool) {
	return w.submit(candidate, nil)
}

// Get returns the occupant, if any.
func (w *Weak[T]) Get() (T, bool) { return w.current() }

// GetOr returns the occupant or def while empty.
func (w *Weak[T]) GetOr(def T) T {
	if v, ok := w.current(); ok {
		return v
	}
	return def
}

// Filled reports whether the slot has an occupant.
func (w *Weak[T]) Filled() bool { return w.value.Load() != nil }

// Descriptor returns the category the slot accepts.
func (w *Weak[T]) Descriptor() component.Descriptor { return w.desc }

// Clear empties the slot. It reports whether there was an occupant; the
// on-cleared callback runs only in that case.
func (w *Weak[T]) Clear() bool {
	if w.value.Swap(nil) == nil {
		return false
	}
	w.cleared()
	return true
}

func (w *Weak[T]) strict() bool { return false }

// release clears the slot only if it still holds c, so a refill that raced
// ahead of the departure is left alone.
func (w *Weak[T]) release(c component.Component) bool {
	for {
		cur := w.value.Load()
		if cur == nil || !component.SameKey(*cur, c) {
			return false
		}
		if w.value.CompareAndSwap(cur, nil) {
			w.cleared()
			return true
		}
	}
}

func (w *Weak[T]) cleared() {
	log.Debug(log.CatSlot, "slot cleared", "descriptor", w.desc)
	if w.onCleared != nil {
		w.onCleared()
	}
}
