// Package authsync keeps a client's view of "who is signed in and what may
// they see" in agreement with an external session provider and a profile
// table.
//
// A single [Reconciler], built with [New], owns the process-wide [State]. Views
// attach through [Reconciler.Mount], which subscribes to session change
// events and runs the initial reconciliation; the guard package turns a
// State into render, wait or redirect decisions.
//
// # Consistency model
//
// Every mutation goes through one serialized reducer. A profile lookup
// result is written only while the user it was issued for is still the
// signed-in user, so a slow lookup can never attach one user's role to
// another. Backend failures are absorbed: callers observe them as an absent
// user or profile, and through logs, metrics and audit events.
//
// # What this package must NOT do
//
//   - Create or modify profile rows. Provisioning belongs to the backend.
//   - Hold a lock across I/O.
//   - Import the guard or exporter packages (no import cycles).
package authsync
