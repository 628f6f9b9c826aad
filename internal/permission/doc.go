// Package permission answers the yes/no authorization questions the
// property engine asks before exposing or mutating values.
//
// A Manager holds per-group allow/deny rules. Managers chain to a parent:
// a group with no local rule inherits the parent's rule, which gives
// policy inheritance down an object tree. A chain with no rules at all
// authorizes everyone, and members of GroupAdmin are always authorized.
//
//	pm := permission.NewManager()
//	pm.Allow(permission.GroupEveryone, permission.Read)
//	pm.Allow("operators", permission.Read|permission.Write)
//
//	pm.IsAuthorized(permission.User{ID: "u1", Groups: []string{"operators"}}, permission.Write) // true
package permission
