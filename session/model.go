package session

import (
	"fmt"
	"time"
)

// Session is the client's read-only copy of a session issued by the hosted
// auth service.
type Session struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`

	CreatedAt int64 `json:"created_at"`
	ExpiresAt int64 `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || (s.ExpiresAt > 0 && s.ExpiresAt <= now.Unix())
}

// Clone returns a copy that can be handed to consumers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

// EventKind names a session change notification.
type EventKind uint8

const (
	// EventSignedIn is published when a new session is issued for the device.
	EventSignedIn EventKind = iota + 1
	// EventSignedOut is published when the device's session ends.
	EventSignedOut
	// EventTokenRefreshed is published when the session token is rotated.
	EventTokenRefreshed
)

func (k EventKind) String() string {
	switch k {
	case EventSignedIn:
		return "signed_in"
	case EventSignedOut:
		return "signed_out"
	case EventTokenRefreshed:
		return "token_refreshed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	if k < EventSignedIn || k > EventTokenRefreshed {
		return nil, fmt.Errorf("invalid event kind %d", k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *EventKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "signed_in":
		*k = EventSignedIn
	case "signed_out":
		*k = EventSignedOut
	case "token_refreshed":
		*k = EventTokenRefreshed
	default:
		return fmt.Errorf("invalid event kind %q", text)
	}
	return nil
}

// CarriesSession reports whether events of this kind come with a session.
func (k EventKind) CarriesSession() bool {
	return k == EventSignedIn || k == EventTokenRefreshed
}

// Event is a session change notification. Session and Token are set for
// sign-in and refresh events and empty for sign-out.
type Event struct {
	Kind    EventKind `json:"kind"`
	Session *Session  `json:"session,omitempty"`
	Token   string    `json:"token,omitempty"`
	At      int64     `json:"at"`
}

// Subscription is a live change-event registration. Unsubscribe releases it;
// calling it more than once is a no-op.
type Subscription interface {
	Unsubscribe() error
}
