package scope

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/depscope/internal/cachemanager"
	"github.com/zjrosen/depscope/internal/component"
	"github.com/zjrosen/depscope/internal/dependency"
	"github.com/zjrosen/depscope/internal/log"
	"github.com/zjrosen/depscope/internal/pubsub"
	"github.com/zjrosen/depscope/internal/tracing"
)

// === Helper Types ===

type member struct {
	component.Named
}

func newMember(t testing.TB, category, name string) *member {
	t.Helper()
	n, err := component.NewNamed(component.Category(category), name)
	if err != nil {
		t.Fatal(err)
	}
	return &member{Named: n}
}

// consumer depends strictly on one "x" and weakly on one "y".
type consumer struct {
	component.Named
	*dependency.Manager
	x *dependency.Strict[component.Component]
	y *dependency.Weak[component.Component]
}

func newConsumer(t testing.TB, name string) *consumer {
	t.Helper()
	n, err := component.NewNamed(component.Category("consumer"), name)
	if err != nil {
		t.Fatal(err)
	}
	m := dependency.NewManager()
	return &consumer{
		Named:   n,
		Manager: m,
		x:       dependency.DeclareStrict(m, component.Category("x"), nil),
		y:       dependency.DeclareWeak(m, component.Category("y"), nil),
	}
}

type recorder struct {
	component.Named
	events []string
}

func (r *recorder) OnScopeEvent(e dependency.Event) {
	r.events = append(r.events, e.String())
}

func occupant(t *testing.T, s *dependency.Strict[component.Component]) component.Component {
	t.Helper()
	v, err := s.Get()
	require.NoError(t, err)
	return v
}

// === Registration ===

func TestScope_RegisterIsIdempotent(t *testing.T) {
	s := New()
	a1 := newMember(t, "x", "a1")
	b := newConsumer(t, "b")

	require.True(t, s.Register(a1))
	require.True(t, s.Register(b))
	require.False(t, s.Register(a1))
	require.False(t, s.Register(newMember(t, "x", "a1")), "equal key counts as present")
	require.False(t, s.Register(nil))

	require.Equal(t, 2, s.Len())
	require.Same(t, a1, occupant(t, b.x))
}

func TestScope_ConcreteScenario(t *testing.T) {
	a1 := newMember(t, "x", "a1")
	a2 := newMember(t, "x", "a2")
	b := newConsumer(t, "b")
	s := Build(func(s *Scope) {
		s.Register(a1)
		s.Register(a2)
		s.Register(b)
	})

	require.Same(t, a1, occupant(t, b.x), "first match wins")
	_, ok := b.y.Get()
	require.False(t, ok)

	y1 := newMember(t, "y", "y1")
	require.True(t, s.Register(y1))
	got, ok := b.y.Get()
	require.True(t, ok)
	require.Same(t, y1, got)

	removed, err := s.Unregister(y1)
	require.NoError(t, err)
	require.True(t, removed)
	_, ok = b.y.Get()
	require.False(t, ok, "weak slot clears when its occupant leaves")

	removed, err = s.Unregister(a1)
	require.False(t, removed)
	require.ErrorIs(t, err, dependency.ErrStructuralRemoval)

	var removal *dependency.StructuralRemovalError
	require.ErrorAs(t, err, &removal)
	require.Same(t, b, removal.Holder)
	require.Equal(t, component.Category("x"), removal.Slot)

	require.Equal(t, []component.Component{a1, a2, b}, s.Components(), "refused removal leaves the scope unchanged")
	require.Same(t, a1, occupant(t, b.x))

	// Once the dependent is gone its strict slots no longer pin anything.
	removed, err = s.Unregister(b)
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = s.Unregister(a1)
	require.NoError(t, err)
	require.True(t, removed)
}

func TestScope_WiringIsSymmetric(t *testing.T) {
	t.Run("dependent first", func(t *testing.T) {
		s := New()
		b := newConsumer(t, "b")
		a1 := newMember(t, "x", "a1")
		s.Register(b)
		require.False(t, b.Satisfied())
		s.Register(a1)
		require.True(t, b.Satisfied())
		require.Same(t, a1, occupant(t, b.x))
	})

	t.Run("dependency first", func(t *testing.T) {
		s := New()
		b := newConsumer(t, "b")
		a1 := newMember(t, "x", "a1")
		s.Register(a1)
		s.Register(b)
		require.Same(t, a1, occupant(t, b.x))
	})
}

func TestScope_WeakSlotRefillsOnLaterArrival(t *testing.T) {
	s := New()
	b := newConsumer(t, "b")
	y1 := newMember(t, "y", "y1")
	y2 := newMember(t, "y", "y2")
	s.Register(b)
	s.Register(y1)
	s.Register(y2)

	got, _ := b.y.Get()
	require.Same(t, y1, got)

	_, err := s.Unregister(y1)
	require.NoError(t, err)
	_, ok := b.y.Get()
	require.False(t, ok, "present peers are not re-offered after a clear")

	y3 := newMember(t, "y", "y3")
	s.Register(y3)
	got, _ = b.y.Get()
	require.Same(t, y3, got)
}

func TestScope_NamedDependency(t *testing.T) {
	type driver struct {
		component.Unique
		*dependency.Manager
		left *dependency.Strict[*member]
	}
	m := dependency.NewManager()
	d := &driver{
		Unique:  component.UniqueFor[*driver](),
		Manager: m,
		left:    dependency.StrictNamed[*member](m, "left"),
	}

	s := New()
	s.Register(d)
	s.Register(newMember(t, "motor", "right"))
	require.False(t, d.left.Filled())

	left := newMember(t, "motor", "left")
	s.Register(left)
	require.Same(t, left, d.left.MustGet())
}

func TestScope_SameComponentFillsSeveralSlots(t *testing.T) {
	type multi struct {
		component.Unique
		*dependency.Manager
		slots []*dependency.Strict[*member]
	}
	m := dependency.NewManager()
	d := &multi{Unique: component.UniqueFor[*multi](), Manager: m}
	for range 4 {
		d.slots = append(d.slots, dependency.StrictAny[*member](m))
	}

	q := newMember(t, "q", "q")
	Build(func(s *Scope) {
		s.Register(q)
		s.Register(d)
	})
	for _, slot := range d.slots {
		require.Same(t, q, slot.MustGet())
	}
}

func TestScope_WrapperCollision(t *testing.T) {
	s := New()
	first := component.MustWrap(bytes.NewBufferString("first"))
	second := component.MustWrap(bytes.NewBufferString("second"))

	require.True(t, s.Register(first))
	require.False(t, s.Register(second))

	got, err := Must[*component.Wrapper[*bytes.Buffer]](s)
	require.NoError(t, err)
	require.Equal(t, "first", got.Unwrap().String())
}

func TestScope_UnregisterAbsent(t *testing.T) {
	s := New()
	removed, err := s.Unregister(newMember(t, "x", "ghost"))
	require.NoError(t, err)
	require.False(t, removed)

	removed, err = s.Unregister(nil)
	require.NoError(t, err)
	require.False(t, removed)
}

func TestScope_UnregisterByEqualKey(t *testing.T) {
	s := New()
	s.Register(newMember(t, "x", "a1"))

	removed, err := s.Unregister(newMember(t, "x", "a1"))
	require.NoError(t, err)
	require.True(t, removed)
	require.Equal(t, 0, s.Len())
}

// === Observers and Clear ===

func TestScope_ObserverSeesPeersOnly(t *testing.T) {
	s := New()
	a1 := newMember(t, "x", "a1")
	obs := &recorder{Named: component.NamedFor[*recorder]("obs")}

	s.Register(a1)
	s.Register(obs)
	a2 := newMember(t, "x", "a2")
	s.Register(a2)
	_, err := s.Unregister(a1)
	require.NoError(t, err)

	require.Equal(t, []string{"arrived(x/a1)", "arrived(x/a2)", "left(x/a1)"}, obs.events)
}

func TestScope_ClearEmitsNoDepartures(t *testing.T) {
	s := New()
	b := newConsumer(t, "b")
	obs := &recorder{Named: component.NamedFor[*recorder]("obs")}
	y1 := newMember(t, "y", "y1")
	s.Register(b)
	s.Register(obs)
	s.Register(y1)
	before := len(obs.events)

	require.Equal(t, 3, s.Clear())
	require.Equal(t, 0, s.Len())
	require.Len(t, obs.events, before)
	_, ok := b.y.Get()
	require.True(t, ok, "slots keep their occupants across a clear")

	// A cleared scope accepts the same components again.
	require.True(t, s.Register(y1))
}

// === Re-entrancy ===

func TestScope_RegisterFromFillCallback(t *testing.T) {
	s := New()
	y1 := newMember(t, "y", "y1")

	m := dependency.NewManager()
	type trigger struct {
		component.Unique
		*dependency.Manager
	}
	tr := &trigger{Unique: component.UniqueFor[*trigger](), Manager: m}
	dependency.StrictOf(m, component.Category("x"), nil, dependency.OnFilled(func(component.Component) {
		s.Register(y1)
	}))

	b := newConsumer(t, "b")
	s.Register(tr)
	s.Register(b)

	done := make(chan struct{})
	go func() {
		s.Register(newMember(t, "x", "a1"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("register from a fill callback deadlocked")
	}

	require.True(t, s.Contains(y1))
	got, ok := b.y.Get()
	require.True(t, ok, "component registered inside a callback is wired")
	require.Same(t, y1, got)
}

func TestScope_UnregisterFromFillCallback(t *testing.T) {
	s := New()
	a1 := newMember(t, "x", "a1")
	var refused error

	m := dependency.NewManager()
	type greedy struct {
		component.Unique
		*dependency.Manager
	}
	g := &greedy{Unique: component.UniqueFor[*greedy](), Manager: m}
	dependency.StrictOf(m, component.Category("x"), nil, dependency.OnFilled(func(c component.Component) {
		_, refused = s.Unregister(c)
	}))

	s.Register(g)
	s.Register(a1)

	require.ErrorIs(t, refused, dependency.ErrStructuralRemoval)
	require.True(t, s.Contains(a1))
}

func named(t *testing.T, category, name string) component.Named {
	t.Helper()
	n, err := component.NewNamed(component.Category(category), name)
	require.NoError(t, err)
	return n
}

// quitter unregisters itself as soon as its weak "x" slot fills.
type quitter struct {
	component.Named
	*dependency.Manager
}

func newQuitter(t *testing.T, s *Scope) *quitter {
	t.Helper()
	q := &quitter{Named: named(t, "e", "e"), Manager: dependency.NewManager()}
	dependency.WeakOf(q.Manager, component.Category("x"), nil, dependency.OnFilled(func(component.Component) {
		_, err := s.Unregister(q)
		require.NoError(t, err)
	}))
	return q
}

func TestScope_UnregisterSelfDuringRegistration(t *testing.T) {
	s := New()
	p1 := &recorder{Named: named(t, "x", "p1")}
	p2 := &recorder{Named: named(t, "obs", "p2")}
	s.Register(p1)
	s.Register(p2)

	e := newQuitter(t, s)
	require.True(t, s.Register(e))
	require.False(t, s.Contains(e))

	// p1 was being introduced when e left: arrival first, then departure.
	require.Equal(t, []string{"arrived(obs/p2)", "arrived(e/e)", "left(e/e)"}, p1.events)
	// p2 was never introduced, so it hears nothing about e.
	require.Equal(t, []string{"arrived(x/p1)"}, p2.events)
}

// leaver unregisters itself when a "watcher" category component arrives.
type leaver struct {
	recorder
	*dependency.Manager
}

func TestScope_PeerLeavesDuringIntroduction(t *testing.T) {
	s := New()
	p := &leaver{recorder: recorder{Named: named(t, "x", "p")}, Manager: dependency.NewManager()}
	dependency.WeakOf(p.Manager, component.Category("watcher"), nil, dependency.OnFilled(func(component.Component) {
		_, err := s.Unregister(p)
		require.NoError(t, err)
	}))
	s.Register(p)

	w := &recorder{Named: named(t, "watcher", "w")}
	require.True(t, s.Register(w))

	require.False(t, s.Contains(p))
	require.Equal(t, []string{"arrived(x/p)", "left(x/p)"}, w.events)
}

func TestScope_ReRegisteredDependentKeepsStrictOccupant(t *testing.T) {
	var buf bytes.Buffer
	t.Cleanup(log.InitWriter(&buf))

	s := New()
	a1 := newMember(t, "x", "a1")
	b := newConsumer(t, "b")
	s.Register(a1)
	s.Register(b)

	_, err := s.Unregister(b)
	require.NoError(t, err)
	_, err = s.Unregister(a1)
	require.NoError(t, err, "nothing live holds a1 once b is gone")

	require.True(t, s.Register(b))
	require.Same(t, a1, occupant(t, b.x), "strict slots never release")
	require.True(t, b.Satisfied())
	require.Contains(t, buf.String(), "strict slot holds an absent component")
	require.Contains(t, buf.String(), "occupant=x/a1")
}

// === Lookups ===

func TestFinders(t *testing.T) {
	a1 := newMember(t, "x", "a1")
	a2 := newMember(t, "x", "a2")
	b := newConsumer(t, "b")
	s := Build(func(s *Scope) {
		s.Register(a1)
		s.Register(a2)
		s.Register(b)
	})

	require.Equal(t, []*member{a1, a2}, All[*member](s))
	require.Equal(t, []*consumer{b}, All[*consumer](s.View()))

	_, ok := Maybe[*member](s)
	require.False(t, ok, "ambiguous")
	got, ok := Maybe[*consumer](s)
	require.True(t, ok)
	require.Same(t, b, got)

	_, err := Must[*member](s)
	require.ErrorIs(t, err, dependency.ErrMissingDependency)
	require.ErrorContains(t, err, "ambiguous")
	_, err = Must[*recorder](s)
	require.ErrorContains(t, err, "none present")

	named, err := MustNamed[*member](s, "a2")
	require.NoError(t, err)
	require.Same(t, a2, named)
	_, ok = MaybeNamed[*member](s, "a3")
	require.False(t, ok)

	require.Len(t, s.Find(component.Category("x")), 2)
	require.Len(t, s.Find(component.TypeOf[dependency.Event]()), 0)
}

func TestView_IsSnapshot(t *testing.T) {
	s := New()
	a1 := newMember(t, "x", "a1")
	s.Register(a1)
	v := s.View()

	s.Register(newMember(t, "x", "a2"))
	require.Equal(t, 1, v.Len())
	require.True(t, v.Contains(newMember(t, "x", "a1")))
	require.False(t, v.Contains(newMember(t, "x", "a2")))
	require.Equal(t, 2, s.Len())
}

func TestScope_QueryCacheInvalidatesOnChange(t *testing.T) {
	cache := cachemanager.NewInMemoryCacheManager[string, []component.Component]("scope-find", time.Minute, time.Minute)
	s := New(WithQueryCache(cache, time.Minute))

	s.Register(newMember(t, "x", "a1"))
	require.Len(t, s.Find(component.Category("x")), 1)
	require.Equal(t, 1, cache.Len())
	require.Len(t, s.Find(component.Category("x")), 1)

	s.Register(newMember(t, "x", "a2"))
	require.Equal(t, 0, cache.Len(), "membership change flushes cached lookups")
	require.Len(t, s.Find(component.Category("x")), 2)

	// Callers cannot corrupt cached results.
	found := s.Find(component.Category("x"))
	found[0] = nil
	require.NotNil(t, s.Find(component.Category("x"))[0])
}

// === Publishing and Tracing ===

func TestScope_PublishesChanges(t *testing.T) {
	broker := pubsub.NewBroker[Change]()
	defer broker.Close()
	events := broker.Subscribe(context.Background())

	s := New(WithName("main"), WithPublisher(broker))
	a1 := newMember(t, "x", "a1")
	b := newConsumer(t, "b")
	s.Register(a1)
	s.Register(a1)
	s.Register(b)
	_, _ = s.Unregister(a1)
	_, _ = s.Unregister(b)
	s.Clear()

	got := pubsub.Drain(events)
	types := make([]pubsub.EventType, len(got))
	for i, ev := range got {
		types[i] = ev.Type
		require.Equal(t, "main", ev.Payload.Scope)
	}
	require.Equal(t, []pubsub.EventType{
		pubsub.RegisteredEvent,
		pubsub.RegisteredEvent,
		pubsub.RefusedEvent,
		pubsub.UnregisteredEvent,
		pubsub.ClearedEvent,
	}, types)
	require.ErrorIs(t, got[2].Payload.Err, dependency.ErrStructuralRemoval)
}

func TestScope_RecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	s := New(WithTracer(tp.Tracer("test")))

	a1 := newMember(t, "x", "a1")
	ctx := tracing.ContextWithRunID(context.Background(), "run-7")
	s.RegisterContext(ctx, a1)
	s.RegisterContext(ctx, a1)
	s.RegisterContext(ctx, newConsumer(t, "b"))
	_, _ = s.UnregisterContext(ctx, a1)

	spans := rec.Ended()
	require.Len(t, spans, 4)

	outcomes := make([]string, len(spans))
	for i, span := range spans {
		for _, kv := range span.Attributes() {
			switch string(kv.Key) {
			case tracing.AttrOutcome:
				outcomes[i] = kv.Value.AsString()
			case tracing.AttrRunID:
				require.Equal(t, "run-7", kv.Value.AsString())
			}
		}
	}
	require.Equal(t, []string{"registered", "duplicate", "registered", "refused"}, outcomes)
	require.Equal(t, tracing.SpanScopeUnregister, spans[3].Name())
}

// === Trees ===

type limb struct {
	*component.Tree
}

func TestScope_RegisterTree(t *testing.T) {
	root := &limb{Tree: component.NewTree("robot", nil)}
	arm := &limb{Tree: component.NewTree("arm", root.Tree)}
	hand := &limb{Tree: component.NewTree("hand", arm.Tree)}
	require.NoError(t, root.Attach(arm))
	require.NoError(t, arm.Attach(hand))

	s := New()
	require.Equal(t, 3, s.RegisterTree(root))
	require.Equal(t, 0, s.RegisterTree(root))
	require.True(t, s.Contains(component.NewTree("hand", component.NewTree("arm", component.NewTree("robot", nil)))))
}
