package manifest

import (
	"fmt"
	"sync"

	"github.com/zjrosen/depscope/internal/component"
	"github.com/zjrosen/depscope/internal/dependency"
	"github.com/zjrosen/depscope/internal/wiring"
)

// Instance is a component built from a ComponentSpec.
type Instance interface {
	component.Component
	Handle() string
	Spec() ComponentSpec
	Dependencies() *dependency.Manager
	Wiring() []SlotState
	Seen() []string
}

// SlotState is the current state of one declared dependency.
type SlotState struct {
	Descriptor string `json:"descriptor"`
	Named      string `json:"named,omitempty"`
	Strict     bool   `json:"strict"`
	// Occupant is the key of the filling component, empty while unfilled.
	Occupant string `json:"occupant,omitempty"`
}

type slotRef struct {
	decl     wiring.Declaration
	occupant func() component.Component
}

// base carries everything an instance has besides its identity.
type base struct {
	*dependency.Manager
	spec  ComponentSpec
	desc  component.Descriptor
	slots []slotRef

	mu   sync.Mutex
	seen []string
}

func newBase(spec ComponentSpec) *base {
	b := &base{
		Manager: dependency.NewManager(),
		spec:    spec,
		desc:    component.Category(spec.Category),
	}
	builder := wiring.New(b.Manager)
	for _, d := range spec.Depends {
		var opts []wiring.Option
		if d.Named != "" {
			opts = append(opts, wiring.Named(d.Named))
		}
		desc := component.Category(d.Category)
		if d.Strict {
			s := wiring.RequireOf(builder, desc, nil, opts...)
			b.slots = append(b.slots, slotRef{occupant: func() component.Component {
				c, err := s.Get()
				if err != nil {
					return nil
				}
				return c
			}})
		} else {
			w := wiring.OptionalOf(builder, desc, nil, nil, opts...)
			b.slots = append(b.slots, slotRef{occupant: func() component.Component {
				c, _ := w.Get()
				return c
			}})
		}
	}
	for i, decl := range builder.Declarations() {
		b.slots[i].decl = decl
	}
	return b
}

func (b *base) Handle() string      { return b.spec.Name }
func (b *base) Spec() ComponentSpec { return b.spec }

// Wiring reports every declared slot in declaration order.
func (b *base) Wiring() []SlotState {
	states := make([]SlotState, 0, len(b.slots))
	for _, s := range b.slots {
		st := SlotState{
			Descriptor: s.decl.Descriptor.String(),
			Named:      s.decl.Name,
			Strict:     s.decl.Strict,
		}
		if c := s.occupant(); c != nil {
			st.Occupant = component.KeyString(c)
		}
		states = append(states, st)
	}
	return states
}

// OnScopeEvent implements scope.Observer.
func (b *base) OnScopeEvent(e dependency.Event) {
	if !b.spec.Observe {
		return
	}
	b.mu.Lock()
	b.seen = append(b.seen, e.String())
	b.mu.Unlock()
}

// Seen returns the events observed so far, or nil if none.
func (b *base) Seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.seen) == 0 {
		return nil
	}
	out := make([]string, len(b.seen))
	copy(out, b.seen)
	return out
}

type uniqueInstance struct {
	component.Unique
	*base
}

func (u *uniqueInstance) String() string { return u.desc.String() }

type namedInstance struct {
	component.Named
	*base
}

type treeInstance struct {
	*component.Tree
	*base
}

// Descriptor implements component.Described.
func (t *treeInstance) Descriptor() component.Descriptor { return t.desc }

// plainInstance is keyed by its own address.
type plainInstance struct {
	*base
}

func (p *plainInstance) Key() any { return p }

// Descriptor implements component.Described.
func (p *plainInstance) Descriptor() component.Descriptor { return p.desc }

// Name returns the component's label.
func (p *plainInstance) Name() string { return p.spec.Label }

func (p *plainInstance) String() string { return p.desc.String() + "#" + p.spec.Label }

// Build constructs one instance per component spec, attaching tree
// components to their parents. Instances are returned by handle.
func Build(m *Manifest) (map[string]Instance, error) {
	instances := make(map[string]Instance, len(m.Components))
	for _, spec := range m.Components {
		inst, err := build(spec, instances)
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", spec.Name, err)
		}
		instances[spec.Name] = inst
	}
	return instances, nil
}

func build(spec ComponentSpec, built map[string]Instance) (Instance, error) {
	desc := component.Category(spec.Category)
	b := newBase(spec)

	switch spec.Identity {
	case IdentityUnique:
		u, err := component.NewUnique(desc)
		if err != nil {
			return nil, err
		}
		return &uniqueInstance{Unique: u, base: b}, nil

	case IdentityTree:
		var parent *treeInstance
		if spec.Parent != "" {
			p, ok := built[spec.Parent].(*treeInstance)
			if !ok {
				return nil, fmt.Errorf("parent %q is not a tree component", spec.Parent)
			}
			parent = p
		}
		var parentTree *component.Tree
		if parent != nil {
			parentTree = parent.Tree
		}
		t := &treeInstance{Tree: component.NewTree(spec.Label, parentTree), base: b}
		if parent != nil {
			if err := parent.Attach(t); err != nil {
				return nil, err
			}
		}
		return t, nil

	case IdentityNone:
		return &plainInstance{base: b}, nil

	default:
		n, err := component.NewNamed(desc, spec.Label)
		if err != nil {
			return nil, err
		}
		return &namedInstance{Named: n, base: b}, nil
	}
}
