package authsync

import (
	"context"

	"github.com/MrEthical07/authsync/profile"
	"github.com/MrEthical07/authsync/session"
)

// Phase is the lifecycle position derived from a State.
type Phase uint8

const (
	// PhaseUninitialized: no reconciliation has completed yet.
	PhaseUninitialized Phase = iota
	// PhaseReconciling: an Initialize pass is in flight.
	PhaseReconciling
	// PhaseAuthenticated: initialized with a session present.
	PhaseAuthenticated
	// PhaseUnauthenticated: initialized with no session.
	PhaseUnauthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseReconciling:
		return "reconciling"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// State is the reconciled view of who is signed in and what role they hold.
//
// User == nil implies Profile == nil. A non-nil Profile always belongs to
// User. States handed out by the Reconciler are copies; mutating them has no
// effect on the Reconciler.
type State struct {
	User        *session.Session
	Profile     *profile.Profile
	Initialized bool
	Loading     bool
}

// Phase derives the lifecycle position of s.
func (s State) Phase() Phase {
	switch {
	case s.Loading:
		return PhaseReconciling
	case !s.Initialized:
		return PhaseUninitialized
	case s.User != nil:
		return PhaseAuthenticated
	default:
		return PhaseUnauthenticated
	}
}

// Settled reports whether views may act on s: initialized and not loading.
func (s State) Settled() bool {
	return s.Initialized && !s.Loading
}

// UserID returns the signed-in user's ID, or "".
func (s State) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.UserID
}

// Role returns the cached profile's role, or "".
func (s State) Role() profile.Role {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.Role
}

func (s State) clone() State {
	out := s
	out.User = s.User.Clone()
	out.Profile = s.Profile.Clone()
	return out
}

// SessionSource is the external identity provider: it answers who is signed
// in, announces changes, and ends sessions.
type SessionSource interface {
	CurrentSession(ctx context.Context) (*session.Session, error)
	Subscribe(ctx context.Context, handler func(session.Event)) (session.Subscription, error)
	SignOut(ctx context.Context) error
}

// ProfileStore is the point lookup of profile rows by user ID. A miss is
// reported as profile.ErrNotFound or a nil profile with a nil error.
type ProfileStore interface {
	Get(ctx context.Context, id string) (*profile.Profile, error)
}

var (
	_ SessionSource = (*session.Client)(nil)
	_ ProfileStore  = (profile.Store)(nil)
)
