package authsync

import "errors"

var (
	// ErrProfileNotProvisioned classifies a profile lookup that found no row
	// for the current user.
	ErrProfileNotProvisioned = errors.New("profile not provisioned")
	// ErrTransport wraps a network or backend failure from a collaborator.
	ErrTransport = errors.New("backend transport failure")
	// ErrSignOutFailed is returned by SignOut when the Session Source could
	// not end the session. Local state is cleared regardless.
	ErrSignOutFailed = errors.New("external sign-out failed")
	// ErrProfileMismatch is returned by SetProfile when the profile does not
	// belong to the current user.
	ErrProfileMismatch = errors.New("profile does not belong to current user")
	// ErrReconcilerClosed is returned by Mount after Close.
	ErrReconcilerClosed = errors.New("reconciler closed")
	// ErrMissingSessionSource is returned by Build without a SessionSource.
	ErrMissingSessionSource = errors.New("session source is required")
	// ErrMissingProfileStore is returned by Build without a ProfileStore.
	ErrMissingProfileStore = errors.New("profile store is required")
)
