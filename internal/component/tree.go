package component

import (
	"errors"
	"slices"
	"strings"
	"sync"
)

// ErrForeignChild is returned by Tree.Attach when the child was built under a
// different parent.
var ErrForeignChild = errors.New("child does not belong to this tree node")

type treeKey struct {
	parent any
	name   string
}

// Node is a component positioned in a tree. Embedding *Tree satisfies it.
type Node interface {
	Component
	TreeNode() *Tree
}

// Tree is a structural identity: two tree nodes are the same component when
// they have the same name under the same parent, recursively up to the root.
type Tree struct {
	name   string
	parent *Tree

	mu       sync.RWMutex
	children []Node
}

// NewTree creates a node called name under parent. A nil parent makes a root.
func NewTree(name string, parent *Tree) *Tree {
	return &Tree{name: name, parent: parent}
}

// Key implements Component.
func (t *Tree) Key() any {
	var parent any
	if t.parent != nil {
		parent = t.parent.Key()
	}
	return treeKey{parent: parent, name: t.name}
}

// TreeNode implements Node.
func (t *Tree) TreeNode() *Tree { return t }

// Name returns the node's own name.
func (t *Tree) Name() string { return t.name }

// Parent returns the parent node, or nil for a root.
func (t *Tree) Parent() *Tree { return t.parent }

// Attach records child as a child of t. The child must have been created with
// t as its parent. Attaching a node whose identity is already attached is a
// no-op.
func (t *Tree) Attach(child Node) error {
	if child.TreeNode().parent != t {
		return ErrForeignChild
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := child.Key()
	for _, c := range t.children {
		if c.Key() == key {
			return nil
		}
	}
	t.children = append(t.children, child)
	return nil
}

// Children returns the attached children in attach order.
func (t *Tree) Children() []Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.children)
}

// Ancestors returns the chain from the root down to t's parent.
func (t *Tree) Ancestors() []*Tree {
	var chain []*Tree
	for p := t.parent; p != nil; p = p.parent {
		chain = append(chain, p)
	}
	slices.Reverse(chain)
	return chain
}

// Path renders the node's position as slash-separated names.
func (t *Tree) Path() string {
	names := make([]string, 0, 4)
	for _, a := range t.Ancestors() {
		names = append(names, a.name)
	}
	names = append(names, t.name)
	return strings.Join(names, "/")
}

func (t *Tree) String() string { return t.Path() }
