// Package guard decides whether a protected view renders, waits or
// redirects, based on the state held by an authsync.Reconciler.
//
// # Architecture boundaries
//
// [Evaluate] is a pure function of a State, a [Requirement] and the current
// location. [Guard] adds the side effects around it: a one-time profile
// refresh per user, metrics, and notices. [Guard.Middleware] adapts the
// decision to net/http.
//
// # What this package must NOT do
//
//   - Redirect before the reconciler has settled.
//   - Mutate reconciler state other than through RefreshProfile.
package guard
