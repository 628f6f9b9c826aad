package coretype

import (
	"fmt"
	"sort"
	"sync"
)

// Manager is the registry of named types (struct types, enumeration types
// and property classes).
//
// All methods are safe for concurrent use.
type Manager struct {
	mu    sync.RWMutex
	types map[string]Type
}

// NewManager creates an empty type manager.
func NewManager() *Manager {
	return &Manager{types: make(map[string]Type)}
}

// AddType registers a named type.
// Returns ErrTypeExists if the name is already taken.
func (m *Manager) AddType(t Type) error {
	if t == nil || t.TypeName() == "" {
		return ErrInvalidTypeName
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.types[t.TypeName()]; exists {
		return fmt.Errorf("%w: %s", ErrTypeExists, t.TypeName())
	}
	m.types[t.TypeName()] = t
	return nil
}

// RemoveType unregisters a named type.
// Returns ErrTypeNotFound if no such type exists.
func (m *Manager) RemoveType(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.types[name]; !exists {
		return fmt.Errorf("%w: %s", ErrTypeNotFound, name)
	}
	delete(m.types, name)
	return nil
}

// GetType returns the type registered under name.
func (m *Manager) GetType(name string) (Type, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, name)
	}
	return t, nil
}

// HasType reports whether a type is registered under name.
func (m *Manager) HasType(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.types[name]
	return ok
}

// TypeNames returns all registered names, sorted.
func (m *Manager) TypeNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.types))
	for name := range m.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StructType returns the struct type registered under name.
func (m *Manager) StructType(name string) (*StructType, error) {
	t, err := m.GetType(name)
	if err != nil {
		return nil, err
	}
	st, ok := t.(*StructType)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a struct type", ErrTypeNotFound, name)
	}
	return st, nil
}

// EnumerationType returns the enumeration type registered under name.
func (m *Manager) EnumerationType(name string) (*EnumerationType, error) {
	t, err := m.GetType(name)
	if err != nil {
		return nil, err
	}
	et, ok := t.(*EnumerationType)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an enumeration type", ErrTypeNotFound, name)
	}
	return et, nil
}
