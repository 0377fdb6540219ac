// Package scope implements the registry components are wired through.
//
// Registering a component broadcasts its arrival to every present component
// and offers every present component to the newcomer, so after Register
// returns each pair of live components has met exactly once. Unregistering a
// component that a live strict slot holds is refused and leaves the scope
// unchanged.
//
// Keys returned by Component.Key must be comparable; a scope stores them in a
// map.
package scope

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/depscope/internal/cachemanager"
	"github.com/zjrosen/depscope/internal/component"
	"github.com/zjrosen/depscope/internal/dependency"
	"github.com/zjrosen/depscope/internal/log"
	"github.com/zjrosen/depscope/internal/pubsub"
	"github.com/zjrosen/depscope/internal/tracing"
)

// Change is published after a membership change takes effect.
type Change struct {
	Scope string
	// Component is nil for a clear.
	Component component.Component
	// Err is set for a refused removal.
	Err error
}

// Scope is a concurrent registry of components.
type Scope struct {
	name       string
	tracer     trace.Tracer
	publisher  pubsub.Publisher[Change]
	cache      cachemanager.CacheManager[string, []component.Component]
	cacheTTL   time.Duration
	vetLogging bool
	finder     *cachemanager.ReadThrough[string, []component.Component, query]

	pairs *pairs

	mu      sync.RWMutex
	entries map[any]*entry
	order   []*entry
	// gen advances on every membership change and keys cached lookups.
	gen uint64
}

type query struct {
	desc component.Descriptor
	gen  uint64
}

var errStaleQuery = errors.New("membership changed during lookup")

// New creates an empty scope.
func New(opts ...Option) *Scope {
	s := &Scope{
		name:     "default",
		tracer:   tracing.NoopTracer(),
		cacheTTL: cachemanager.DefaultExpiration,
		entries:  make(map[any]*entry),
		pairs:    newPairs(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.finder = cachemanager.NewReadThrough(s.cache, s.scan)
	return s
}

// Build creates a scope and hands it to setup, for assembling a scope in one
// expression.
func Build(setup func(s *Scope), opts ...Option) *Scope {
	s := New(opts...)
	setup(s)
	return s
}

// Name returns the scope's label.
func (s *Scope) Name() string { return s.name }

// Register adds c and wires it with every present component. It returns false
// without any effect when a component with an equal key is already present.
func (s *Scope) Register(c component.Component) bool {
	return s.RegisterContext(context.Background(), c)
}

// RegisterContext is Register with a context for tracing.
func (s *Scope) RegisterContext(ctx context.Context, c component.Component) bool {
	if c == nil {
		return false
	}

	ctx, span := s.startSpan(ctx, tracing.SpanScopeRegister, c)
	defer span.End()

	e := newEntry(c)

	s.mu.Lock()
	if _, exists := s.entries[e.key]; exists {
		s.mu.Unlock()
		log.Debug(log.CatScope, "duplicate registration ignored", "scope", s.name, "component", component.KeyString(c))
		tracing.RecordOutcome(span, "duplicate", nil)
		return false
	}
	s.gen++
	peers := slices.Clone(s.order)
	s.entries[e.key] = e
	s.order = append(s.order, e)
	size := len(s.order)
	s.mu.Unlock()

	s.invalidate(ctx)
	log.Debug(log.CatScope, "component registered", "scope", s.name, "component", component.KeyString(c), "peers", len(peers))
	s.warnStale(e)

	s.wire(e, peers)

	span.SetAttributes(
		attribute.Int(tracing.AttrPeers, len(peers)),
		attribute.Int(tracing.AttrScopeSize, size),
	)
	tracing.RecordOutcome(span, "registered", nil)
	s.publish(pubsub.RegisteredEvent, Change{Component: c})
	return true
}

// wire introduces e to each peer present when e was inserted. Peers inserted
// later are introduced by their own registration. No lock is held, so slot
// callbacks may register or unregister components. Wiring stops once e has
// left, and a departure of either side during an introduction is delivered
// after its arrivals.
func (s *Scope) wire(e *entry, peers []*entry) {
	for _, p := range peers {
		k := pairKey{newer: e, older: p}
		s.pairs.begin(k)
		if !e.live() {
			s.pairs.abandon(k)
			return
		}
		if !p.live() {
			s.pairs.abandon(k)
			continue
		}

		if e.deps != nil {
			_ = e.deps.HandleScopeEvent(dependency.GuardedArrival(p.c, p))
		}
		if p.deps != nil {
			_ = p.deps.HandleScopeEvent(dependency.GuardedArrival(e.c, e))
		}
		if e.observer != nil {
			e.observer.OnScopeEvent(dependency.ArrivedEvent(p.c))
		}
		if p.observer != nil {
			p.observer.OnScopeEvent(dependency.ArrivedEvent(e.c))
		}

		newerLeft, olderLeft := s.pairs.finish(k)
		if newerLeft && p.live() {
			s.depart(e, p)
		}
		if olderLeft && e.live() {
			s.depart(p, e)
		}
	}
}

// warnStale logs strict slots of e that hold a component missing from the
// scope. Strict slots never release, so a dependent registered again keeps
// occupants that left while it was away.
func (s *Scope) warnStale(e *entry) {
	if e.deps == nil {
		return
	}
	for _, slot := range e.deps.Slots() {
		if !slot.Strict || slot.Occupant == nil || s.Contains(slot.Occupant) {
			continue
		}
		log.Warn(log.CatScope, "strict slot holds an absent component",
			"scope", s.name,
			"dependent", component.KeyString(e.c),
			"occupant", component.KeyString(slot.Occupant),
			"descriptor", slot.Descriptor)
	}
}

// depart tells to that gone has left.
func (s *Scope) depart(gone, to *entry) {
	left := dependency.LeftEvent(gone.c)
	if to.deps != nil {
		if err := to.deps.HandleScopeEvent(left); err != nil {
			log.ErrorErr(log.CatScope, "departure reached a strict slot", err, "scope", s.name, "dependent", component.KeyString(to.c))
		}
	}
	if to.observer != nil {
		to.observer.OnScopeEvent(left)
	}
}

// Unregister removes c. It returns (false, nil) when c is not present, and a
// *dependency.StructuralRemovalError, with the scope unchanged, when a live
// strict slot holds c. On success the departure is broadcast and weak slots
// holding c are cleared.
func (s *Scope) Unregister(c component.Component) (bool, error) {
	return s.UnregisterContext(context.Background(), c)
}

// UnregisterContext is Unregister with a context for tracing.
func (s *Scope) UnregisterContext(ctx context.Context, c component.Component) (bool, error) {
	if c == nil {
		return false, nil
	}

	ctx, span := s.startSpan(ctx, tracing.SpanScopeUnregister, c)
	defer span.End()

	key := c.Key()
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		tracing.RecordOutcome(span, "absent", nil)
		return false, nil
	}

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		tracing.RecordOutcome(span, "absent", nil)
		return false, nil
	}
	if err := s.vet(e); err != nil {
		e.mu.Unlock()
		log.Warn(log.CatScope, "removal refused", "scope", s.name, "component", component.KeyString(e.c), "reason", err)
		tracing.RecordOutcome(span, "refused", err)
		s.publish(pubsub.RefusedEvent, Change{Component: e.c, Err: err})
		return false, err
	}

	s.mu.Lock()
	if s.entries[key] == e {
		delete(s.entries, key)
	}
	s.order = slices.DeleteFunc(s.order, func(x *entry) bool { return x == e })
	s.gen++
	rest := slices.Clone(s.order)
	s.mu.Unlock()

	e.removed = true
	e.mu.Unlock()

	s.invalidate(ctx)
	log.Debug(log.CatScope, "component unregistered", "scope", s.name, "component", component.KeyString(e.c))

	for _, p := range s.pairs.leave(e, rest) {
		s.depart(e, p)
	}

	span.SetAttributes(attribute.Int(tracing.AttrScopeSize, len(rest)))
	tracing.RecordOutcome(span, "removed", nil)
	s.publish(pubsub.UnregisteredEvent, Change{Component: e.c})
	return true, nil
}

// vet checks every other member's strict slots for e. The caller holds e's
// write lock, so no fill of e can land while the check runs.
func (s *Scope) vet(e *entry) error {
	s.mu.RLock()
	members := slices.Clone(s.order)
	s.mu.RUnlock()

	for _, p := range members {
		if p == e || p.deps == nil {
			continue
		}
		err := p.deps.VetRemoval(e.c)
		if s.vetLogging {
			log.Debug(log.CatScope, "strict occupancy checked", "component", component.KeyString(e.c), "dependent", component.KeyString(p.c), "held", err != nil)
		}
		if err != nil {
			var removal *dependency.StructuralRemovalError
			if errors.As(err, &removal) {
				removal.Holder = p.c
			}
			return err
		}
	}
	return nil
}

// Clear drops every component without broadcasting departures. Slots keep
// whatever they hold. It returns how many components were dropped.
func (s *Scope) Clear() int {
	return s.ClearContext(context.Background())
}

// ClearContext is Clear with a context for tracing.
func (s *Scope) ClearContext(ctx context.Context) int {
	ctx, span := s.tracer.Start(ctx, tracing.SpanScopeClear, trace.WithAttributes(
		attribute.String(tracing.AttrScopeName, s.name),
	))
	defer span.End()

	s.mu.Lock()
	dropped := s.order
	s.order = nil
	s.entries = make(map[any]*entry)
	s.gen++
	s.mu.Unlock()

	for _, e := range dropped {
		e.markRemoved()
	}
	s.pairs.reset()

	s.invalidate(ctx)
	log.Debug(log.CatScope, "scope cleared", "scope", s.name, "dropped", len(dropped))
	span.SetAttributes(attribute.Int(tracing.AttrScopeSize, len(dropped)))
	tracing.RecordOutcome(span, "cleared", nil)
	s.publish(pubsub.ClearedEvent, Change{})
	return len(dropped)
}

// RegisterTree registers n and then, depth first, every attached descendant.
// It returns how many nodes were newly added.
func (s *Scope) RegisterTree(n component.Node) int {
	added := 0
	if s.Register(n) {
		added++
	}
	for _, child := range n.TreeNode().Children() {
		added += s.RegisterTree(child)
	}
	return added
}

// Len returns the number of live components.
func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Contains reports whether a component with c's key is present.
func (s *Scope) Contains(c component.Component) bool {
	if c == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[c.Key()]
	return ok
}

// Components returns the live components in registration order.
func (s *Scope) Components() []component.Component {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]component.Component, len(s.order))
	for i, e := range s.order {
		out[i] = e.c
	}
	return out
}

// View returns an immutable snapshot of the scope.
func (s *Scope) View() View {
	return View{members: s.Components()}
}

// Find returns the live components accepted by desc, in registration order.
// Results are memoized when the scope has a query cache.
func (s *Scope) Find(desc component.Descriptor) []component.Component {
	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()

	key := fmt.Sprintf("%d|%s", gen, desc.ID())
	found, err := s.finder.Get(context.Background(), key, query{desc: desc, gen: gen}, s.cacheTTL)
	if err != nil && !errors.Is(err, errStaleQuery) {
		log.ErrorErr(log.CatScope, "lookup failed", err, "scope", s.name, "descriptor", desc)
	}
	return slices.Clone(found)
}

// scan filters a snapshot outside the lock, since Accepts may call into
// component code. A result computed after membership moved on is returned
// with errStaleQuery so the read-through cache does not store it.
func (s *Scope) scan(_ context.Context, q query) ([]component.Component, error) {
	s.mu.RLock()
	gen := s.gen
	members := make([]component.Component, len(s.order))
	for i, e := range s.order {
		members[i] = e.c
	}
	s.mu.RUnlock()

	found := filter(members, q.desc)
	if gen != q.gen {
		return found, errStaleQuery
	}
	return found, nil
}

func filter(members []component.Component, desc component.Descriptor) []component.Component {
	var found []component.Component
	for _, c := range members {
		if desc.Accepts(c) {
			found = append(found, c)
		}
	}
	return found
}

func (s *Scope) invalidate(ctx context.Context) {
	if err := s.finder.Invalidate(ctx); err != nil {
		log.ErrorErr(log.CatCache, "failed to invalidate scope lookups", err, "scope", s.name)
	}
}

func (s *Scope) publish(t pubsub.EventType, ch Change) {
	if s.publisher == nil {
		return
	}
	ch.Scope = s.name
	s.publisher.Publish(t, ch)
}

func (s *Scope) startSpan(ctx context.Context, name string, c component.Component) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String(tracing.AttrScopeName, s.name),
		attribute.String(tracing.AttrComponentKey, component.KeyString(c)),
	}
	if runID := tracing.RunIDFromContext(ctx); runID != "" {
		attrs = append(attrs, attribute.String(tracing.AttrRunID, runID))
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
