// Package auth issues and validates the JWT bearer tokens of the propcore API.
//
// A token names a user and the permission groups that user belongs to.
// The API turns verified claims into a permission.User, and every object's
// permission manager decides what that user may read, write or execute.
// There is no user database: tokens are minted by operators with
// `propcore token` and the shared HS256 secret.
package auth
