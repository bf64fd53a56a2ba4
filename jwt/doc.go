// Package jwt verifies (and, for the embedded backend, issues) the signed session
// access tokens handed to the client by the hosted auth service.
//
// # Architecture boundaries
//
// This package only understands token bytes and keys. It does NOT look up
// sessions or decide whether a user is authorized. session.Client combines a
// parsed token with the session store to answer "is there a current session".
package jwt
