// Package gateway exposes a narrow, capability-gated view of kernel state to
// frontends.
//
// Components declare the attributes they are willing to expose in a Table at
// startup. Each attribute has a getter and, when remotely writable, a setter
// and an optional validator. Nothing outside the table is reachable: there is
// no reflection over live objects.
package gateway

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Getter reads the current value of an attribute.
type Getter func() any

// Setter stores a validated value.
type Setter func(value any) error

// Validator rejects values a setter must never see.
type Validator func(value any) error

// Attribute is one capability entry. A nil Get makes the attribute
// write-only and a nil Set makes it read-only.
type Attribute struct {
	Get      Getter
	Set      Setter
	Validate Validator
}

type node struct {
	attr     *Attribute
	children map[string]*node
}

// Table maps dotted names to declared attributes.
type Table struct {
	root *node
	mu   sync.RWMutex
}

// New creates an empty table.
func New() *Table {
	return &Table{root: &node{children: make(map[string]*node)}}
}

// Declare registers an attribute under a dotted name. Intermediate segments
// become owners. A name cannot be both an owner and an attribute.
func (t *Table) Declare(name string, attr Attribute) error {
	segments, err := split(name)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.root
	for i, seg := range segments {
		child, ok := n.children[seg]
		last := i == len(segments)-1
		switch {
		case !ok:
			child = &node{}
			if !last {
				child.children = make(map[string]*node)
			}
			n.children[seg] = child
		case last:
			return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
		case child.attr != nil:
			return fmt.Errorf("%w: %s is an attribute", ErrAlreadyExists, strings.Join(segments[:i+1], "."))
		}
		n = child
	}

	a := attr
	n.attr = &a
	return nil
}

// Owner returns a handle that declares attributes under prefix.
func (t *Table) Owner(prefix string) *Owner {
	return &Owner{table: t, prefix: prefix}
}

// Get reads an attribute. Reading an owner returns a snapshot of its readable
// children as a nested map.
func (t *Table) Get(name string) (any, error) {
	n, attr, err := t.resolve(name)
	if err != nil {
		return nil, err
	}

	if attr == nil {
		return t.snapshot(n), nil
	}
	if attr.Get == nil {
		return nil, fmt.Errorf("%w: %s is write-only", ErrAccessDenied, name)
	}
	return attr.Get(), nil
}

// Set validates and stores a value.
func (t *Table) Set(name string, value any) error {
	_, attr, err := t.resolve(name)
	if err != nil {
		return err
	}

	if attr == nil || attr.Set == nil {
		return fmt.Errorf("%w: %s is read-only", ErrAccessDenied, name)
	}
	if attr.Validate != nil {
		if err := attr.Validate(value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
		}
	}
	if err := attr.Set(value); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
	}
	return nil
}

// Names returns every declared attribute name in sorted order.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var names []string
	var walk func(prefix string, n *node)
	walk = func(prefix string, n *node) {
		if n.attr != nil {
			names = append(names, prefix)
			return
		}
		for seg, child := range n.children {
			walk(join(prefix, seg), child)
		}
	}
	walk("", t.root)

	slices.Sort(names)
	return names
}

// resolve walks a dotted name. A segment starting with "_" is never exposed.
// Getters and setters run outside the lock so they may use the table.
func (t *Table) resolve(name string) (*node, *Attribute, error) {
	segments, err := split(name)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	for _, seg := range segments {
		if strings.HasPrefix(seg, "_") {
			return nil, nil, fmt.Errorf("%w: %s is not exposed", ErrAccessDenied, name)
		}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.root
	for _, seg := range segments {
		child, ok := n.children[seg]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		n = child
	}
	return n, n.attr, nil
}

func (t *Table) snapshot(n *node) map[string]any {
	type child struct {
		node *node
		attr *Attribute
	}

	t.mu.RLock()
	children := make(map[string]child, len(n.children))
	for seg, c := range n.children {
		children[seg] = child{node: c, attr: c.attr}
	}
	t.mu.RUnlock()

	out := make(map[string]any, len(children))
	for seg, c := range children {
		switch {
		case c.attr == nil:
			out[seg] = t.snapshot(c.node)
		case c.attr.Get != nil:
			out[seg] = c.attr.Get()
		}
	}
	return out
}

// Owner declares attributes relative to a prefix so components do not need
// to know where they are mounted.
type Owner struct {
	table  *Table
	prefix string
}

// Declare registers an attribute under the owner's prefix.
func (o *Owner) Declare(name string, attr Attribute) error {
	return o.table.Declare(join(o.prefix, name), attr)
}

// ReadOnly declares an attribute with only a getter.
func (o *Owner) ReadOnly(name string, get Getter) error {
	return o.Declare(name, Attribute{Get: get})
}

// Owner returns a nested owner.
func (o *Owner) Owner(name string) *Owner {
	return &Owner{table: o.table, prefix: join(o.prefix, name)}
}

func split(name string) ([]string, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	segments := strings.Split(name, ".")
	if slices.Contains(segments, "") {
		return nil, fmt.Errorf("%w: empty segment in %q", ErrEmptyName, name)
	}
	return segments, nil
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
