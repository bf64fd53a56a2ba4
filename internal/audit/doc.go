// Package audit relays reconciliation audit events to a caller-supplied sink
// without blocking the state machine.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines writer, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: one audit record: what happened to whose session, and whether it succeeded.
//
// The dispatcher does not decide which events exist; the reconciler does.
package audit
