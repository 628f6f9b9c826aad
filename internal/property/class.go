package property

import (
	"fmt"

	"github.com/nerrad567/propcore/internal/coretype"
)

// maxClassDepth bounds inheritance chains so a parent cycle in a type
// manager cannot recurse forever.
const maxClassDepth = 64

// Class is a named, ordered, inheritable set of property definitions.
// Classes are published through a coretype.Manager and are immutable
// once created.
type Class struct {
	name   string
	parent string
	props  []*Property
}

// NewClass creates a class. parent names the class to inherit from and
// may be empty.
// Returns ErrInvalidParameter for an empty name or invalid property, and
// ErrAlreadyExists for duplicate property names.
func NewClass(name, parent string, props ...*Property) (*Class, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty class name", ErrInvalidParameter)
	}
	c := &Class{name: name, parent: parent}
	seen := make(map[string]bool, len(props))
	for _, p := range props {
		if p == nil {
			return nil, fmt.Errorf("%w: nil property in class %s", ErrInvalidParameter, name)
		}
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("class %s: %w", name, err)
		}
		if seen[p.name] {
			return nil, fmt.Errorf("%w: property %s in class %s", ErrAlreadyExists, p.name, name)
		}
		seen[p.name] = true
		c.props = append(c.props, p)
	}
	return c, nil
}

// TypeName implements coretype.Type.
func (c *Class) TypeName() string { return c.name }

// Parent returns the parent class name, or "".
func (c *Class) Parent() string { return c.parent }

// LocalProperties returns the properties declared on c itself.
func (c *Class) LocalProperties() []*Property {
	out := make([]*Property, len(c.props))
	copy(out, c.props)
	return out
}

// chain returns c and its ancestors, root first.
func (c *Class) chain(mgr *coretype.Manager) ([]*Class, error) {
	chain := []*Class{c}
	for cur := c; cur.parent != ""; {
		if len(chain) > maxClassDepth {
			return nil, fmt.Errorf("%w: class %s inherits too deeply", ErrInvalidState, c.name)
		}
		if mgr == nil {
			return nil, fmt.Errorf("%w: class %s has a parent but no type manager", ErrInvalidState, c.name)
		}
		t, err := mgr.GetType(cur.parent)
		if err != nil {
			return nil, fmt.Errorf("%w: parent class %s", ErrNotFound, cur.parent)
		}
		parent, ok := t.(*Class)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a class", ErrInvalidType, cur.parent)
		}
		chain = append(chain, parent)
		cur = parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Properties returns every property of c including inherited ones,
// parent properties first. A property redeclared by a subclass keeps the
// parent's position.
func (c *Class) Properties(mgr *coretype.Manager) ([]*Property, error) {
	chain, err := c.chain(mgr)
	if err != nil {
		return nil, err
	}
	var out []*Property
	index := make(map[string]int)
	for _, cls := range chain {
		for _, p := range cls.props {
			if i, ok := index[p.name]; ok {
				out[i] = p
				continue
			}
			index[p.name] = len(out)
			out = append(out, p)
		}
	}
	return out, nil
}

// Property resolves name on c or its ancestors, nearest first.
// Returns ErrNotFound if no class in the chain declares it.
func (c *Class) Property(name string, mgr *coretype.Manager) (*Property, error) {
	chain, err := c.chain(mgr)
	if err != nil {
		return nil, err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, p := range chain[i].props {
			if p.name == name {
				return p, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: property %s in class %s", ErrNotFound, name, c.name)
}

// HasProperty reports whether c or an ancestor declares name.
func (c *Class) HasProperty(name string, mgr *coretype.Manager) bool {
	_, err := c.Property(name, mgr)
	return err == nil
}
