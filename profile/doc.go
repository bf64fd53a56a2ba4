// Package profile holds the per-user authorization record (role, display name,
// points) and the stores that serve it: a Redis hash store and a relational
// table store on SQLite.
//
// Profiles are provisioned by the backend shortly after a user's first
// sign-in, so a lookup right after sign-in can miss. Stores report that as
// [ErrNotFound]; retry policy belongs to the caller.
package profile
