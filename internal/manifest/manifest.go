// Package manifest loads YAML descriptions of components and the scope
// operations to apply to them, and runs them against a fresh scope.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/depscope/internal/log"
)

// ErrInvalidManifest is wrapped by every validation failure.
var ErrInvalidManifest = errors.New("invalid manifest")

// Identity selects how a manifest component is keyed.
type Identity string

const (
	// IdentityNamed keys by category and label. It is the default.
	IdentityNamed Identity = "named"
	// IdentityUnique allows one component per category.
	IdentityUnique Identity = "unique"
	// IdentityTree keys by label under a parent tree component.
	IdentityTree Identity = "tree"
	// IdentityNone makes every component distinct.
	IdentityNone Identity = "none"
)

// Manifest is a set of component definitions plus a script of steps.
type Manifest struct {
	Name       string          `yaml:"name"`
	Components []ComponentSpec `yaml:"components"`
	Steps      []Step          `yaml:"steps"`
}

// ComponentSpec defines one component.
type ComponentSpec struct {
	// Name is the handle steps refer to.
	Name     string   `yaml:"name"`
	Category string   `yaml:"category"`
	Identity Identity `yaml:"identity,omitempty"`
	// Label is the component's own name for named and tree identities.
	// Defaults to Name.
	Label string `yaml:"label,omitempty"`
	// Parent is the handle of the tree component this one hangs under.
	Parent  string           `yaml:"parent,omitempty"`
	Depends []DependencySpec `yaml:"depends,omitempty"`
	// Observe records the membership events the component sees.
	Observe bool `yaml:"observe,omitempty"`
}

// DependencySpec declares one slot.
type DependencySpec struct {
	Category string `yaml:"category"`
	Strict   bool   `yaml:"strict"`
	// Named restricts the slot to components with this name.
	Named string `yaml:"named,omitempty"`
}

// Action is a step kind.
type Action string

const (
	ActionRegister     Action = "register"
	ActionRegisterTree Action = "register_tree"
	ActionUnregister   Action = "unregister"
	ActionClear        Action = "clear"
)

// Step is one scope operation. Exactly one field is set.
type Step struct {
	Register     string `yaml:"register,omitempty"`
	RegisterTree string `yaml:"register_tree,omitempty"`
	Unregister   string `yaml:"unregister,omitempty"`
	Clear        bool   `yaml:"clear,omitempty"`
}

// Action returns the step kind and its target handle.
func (s Step) Action() (Action, string) {
	switch {
	case s.Register != "":
		return ActionRegister, s.Register
	case s.RegisterTree != "":
		return ActionRegisterTree, s.RegisterTree
	case s.Unregister != "":
		return ActionUnregister, s.Unregister
	case s.Clear:
		return ActionClear, ""
	default:
		return "", ""
	}
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{s.Register != "", s.RegisterTree != "", s.Unregister != "", s.Clear} {
		if set {
			n++
		}
	}
	return n
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if m.Name == "" {
		m.Name = path
	}
	log.Debug(log.CatManifest, "manifest loaded", "path", path, "components", len(m.Components), "steps", len(m.Steps))
	return m, nil
}

// Parse decodes and validates a manifest. Unknown fields are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, invalid("empty document")
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	for i := range m.Components {
		if m.Components[i].Identity == "" {
			m.Components[i].Identity = IdentityNamed
		}
		if m.Components[i].Label == "" {
			m.Components[i].Label = m.Components[i].Name
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks handles, identities, tree parents and step targets.
func (m *Manifest) Validate() error {
	specs := make(map[string]ComponentSpec, len(m.Components))
	for i, c := range m.Components {
		if c.Name == "" {
			return invalid("components[%d]: name is required", i)
		}
		if _, dup := specs[c.Name]; dup {
			return invalid("components[%d]: duplicate name %q", i, c.Name)
		}
		if c.Category == "" {
			return invalid("component %q: category is required", c.Name)
		}
		switch c.Identity {
		case IdentityNamed, IdentityUnique, IdentityNone, "":
			if c.Parent != "" {
				return invalid("component %q: parent requires tree identity", c.Name)
			}
		case IdentityTree:
			if c.Parent != "" {
				p, ok := specs[c.Parent]
				if !ok {
					return invalid("component %q: parent %q must be defined earlier", c.Name, c.Parent)
				}
				if p.Identity != IdentityTree {
					return invalid("component %q: parent %q is not a tree component", c.Name, c.Parent)
				}
			}
		default:
			return invalid("component %q: unknown identity %q", c.Name, c.Identity)
		}
		for j, d := range c.Depends {
			if d.Category == "" {
				return invalid("component %q: depends[%d]: category is required", c.Name, j)
			}
		}
		specs[c.Name] = c
	}

	for i, s := range m.Steps {
		if s.actions() != 1 {
			return invalid("steps[%d]: exactly one of register, register_tree, unregister, clear is required", i)
		}
		action, target := s.Action()
		if action == ActionClear {
			continue
		}
		spec, ok := specs[target]
		if !ok {
			return invalid("steps[%d]: unknown component %q", i, target)
		}
		if action == ActionRegisterTree && spec.Identity != IdentityTree {
			return invalid("steps[%d]: %q is not a tree component", i, target)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidManifest, fmt.Sprintf(format, args...))
}
