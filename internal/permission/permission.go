package permission

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Permission is a bit set of access rights.
type Permission uint8

// Permission bits.
const (
	Read Permission = 1 << iota
	Write
	Execute

	None Permission = 0
	All             = Read | Write | Execute
)

// Built-in groups.
const (
	// GroupEveryone implicitly contains every user.
	GroupEveryone = "everyone"

	// GroupAdmin members bypass all rules.
	GroupAdmin = "admin"
)

var (
	// ErrCycle is returned when SetParent would create a parent loop.
	ErrCycle = errors.New("permission: parent cycle")

	// ErrInvalidPermission is returned when a permission name is not recognised.
	ErrInvalidPermission = errors.New("permission: invalid permission")
)

// String returns the permission bits as a comma-separated list.
func (p Permission) String() string {
	if p == None {
		return "none"
	}
	var parts []string
	if p&Read != 0 {
		parts = append(parts, "read")
	}
	if p&Write != 0 {
		parts = append(parts, "write")
	}
	if p&Execute != 0 {
		parts = append(parts, "execute")
	}
	return strings.Join(parts, ",")
}

// Parse parses a comma-separated permission list such as "read,write".
func Parse(s string) (Permission, error) {
	var p Permission
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "read":
			p |= Read
		case "write":
			p |= Write
		case "execute":
			p |= Execute
		case "all":
			p |= All
		case "", "none":
		default:
			return None, fmt.Errorf("%w: %q", ErrInvalidPermission, part)
		}
	}
	return p, nil
}

// User is the identity an authorization question is asked for.
// The zero User belongs to GroupEveryone only.
type User struct {
	ID     string
	Groups []string
}

// Anonymous is the user context used when no identity is available.
var Anonymous = User{}

// IsAdmin reports whether u belongs to GroupAdmin.
func (u User) IsAdmin() bool {
	return slices.Contains(u.Groups, GroupAdmin)
}

func (u User) groups() []string {
	if slices.Contains(u.Groups, GroupEveryone) {
		return u.Groups
	}
	return append(slices.Clone(u.Groups), GroupEveryone)
}

type rule struct {
	allow Permission
	deny  Permission
}

// Manager holds allow/deny rules per group.
//
// All methods are safe for concurrent use.
type Manager struct {
	mu     sync.RWMutex
	rules  map[string]rule
	parent *Manager
}

// NewManager creates a manager with no rules.
func NewManager() *Manager {
	return &Manager{rules: make(map[string]rule)}
}

// Allow grants perms to group. A previous deny of the same bits is lifted.
func (m *Manager) Allow(group string, perms Permission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rules[group]
	r.allow |= perms
	r.deny &^= perms
	m.rules[group] = r
}

// Deny refuses perms to group. A deny wins over an allow from another group.
func (m *Manager) Deny(group string, perms Permission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rules[group]
	r.deny |= perms
	r.allow &^= perms
	m.rules[group] = r
}

// Reset removes the local rule for group so it inherits from the parent again.
func (m *Manager) Reset(group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, group)
}

// SetParent chains m to parent. Passing nil detaches m.
// Returns ErrCycle if parent is m or already descends from m.
func (m *Manager) SetParent(parent *Manager) error {
	for p := parent; p != nil; p = p.Parent() {
		if p == m {
			return ErrCycle
		}
	}
	m.mu.Lock()
	m.parent = parent
	m.mu.Unlock()
	return nil
}

// Parent returns the manager m inherits from, or nil.
func (m *Manager) Parent() *Manager {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.parent
}

// lookup resolves the effective rule for group along the parent chain.
// The second result reports whether any manager in the chain has rules.
func (m *Manager) lookup(group string) (rule, bool, bool) {
	anyRules := false
	for cur := m; cur != nil; {
		cur.mu.RLock()
		r, ok := cur.rules[group]
		if len(cur.rules) > 0 {
			anyRules = true
		}
		next := cur.parent
		cur.mu.RUnlock()
		if ok {
			return r, true, true
		}
		cur = next
	}
	return rule{}, false, anyRules
}

// IsAuthorized reports whether user holds every bit of perm.
//
// Parameters:
//   - user: the identity asking; always treated as a member of GroupEveryone
//   - perm: the permission bits required
//
// Returns:
//   - bool: true when some group of the user allows each bit and none denies it
func (m *Manager) IsAuthorized(user User, perm Permission) bool {
	if m == nil || slices.Contains(user.Groups, GroupAdmin) {
		return true
	}

	var allowed, denied Permission
	anyRules := false
	for _, g := range user.groups() {
		r, found, chainHasRules := m.lookup(g)
		anyRules = anyRules || chainHasRules
		if found {
			allowed |= r.allow
			denied |= r.deny
		}
	}
	if !anyRules {
		return true
	}
	return allowed&perm == perm && denied&perm == 0
}

// Clone copies the local rules and the parent link.
func (m *Manager) Clone() *Manager {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := &Manager{rules: make(map[string]rule, len(m.rules)), parent: m.parent}
	for g, r := range m.rules {
		c.rules[g] = r
	}
	return c
}
