// Package rate provides a Redis-backed fixed-window limiter. The demo
// server uses it to cap how often the emulated auth service issues
// sessions for one user.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// "<prefix>:rl:<key>".
//
// # What this package must NOT do
//
//   - Decide what is being limited (callers pick the key).
//   - Be imported outside the authsync module.
package rate
