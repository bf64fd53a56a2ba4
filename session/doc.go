// Package session models the hosted auth service's sessions and their change
// events, and provides the Redis-backed pieces the client talks to.
//
// # Components
//
//   - [Store]: session blobs (compact binary encoding, TTL-bound) and the
//     per-device pub/sub channel that carries [Event]s.
//   - [Client]: the client-side Session Source. It holds the device's current
//     token, answers "what is the current session", relays change events and
//     performs sign-out.
//   - [Backend]: an embedded stand-in for the hosted service's sign-in side
//     (issue, refresh, revoke). Used by tests and the CLI.
//
// # Architecture boundaries
//
// This package does NOT know about profiles, roles, or the reconciled auth
// state; it only reports sessions and events.
package session
