package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrEthical07/authsync/jwt"
)

// ErrInvalidToken is returned by Verify for tokens that fail signature or
// claim checks.
var ErrInvalidToken = errors.New("invalid session token")

// Client is the device-side view of the hosted auth service. It keeps the
// device's current token (the equivalent of browser storage) and answers
// point-in-time session queries against the Store.
//
// Client is safe for concurrent use.
type Client struct {
	store  *Store
	tokens *jwt.Manager
	device string

	mu    sync.RWMutex
	token string
}

// NewClient returns a Client for device. tokens only needs a verify key.
func NewClient(store *Store, tokens *jwt.Manager, device string) *Client {
	return &Client{store: store, tokens: tokens, device: device}
}

// Device returns the channel name the client listens on.
func (c *Client) Device() string {
	return c.device
}

// SetToken replaces the held token, e.g. after restoring it from disk.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the held token, or "" when signed out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Verify parses token without consulting the store.
func (c *Client) Verify(token string) (*jwt.SessionClaims, error) {
	claims, err := c.tokens.ParseSession(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// CurrentSession returns the session behind the held token. It returns
// (nil, nil) when there is no token, the token is invalid or expired, or the
// session is gone or belongs to someone else. Only transport failures are
// returned as errors.
func (c *Client) CurrentSession(ctx context.Context) (*Session, error) {
	token := c.Token()
	if token == "" {
		return nil, nil
	}
	claims, err := c.Verify(token)
	if err != nil {
		return nil, nil
	}

	sess, err := c.store.Get(ctx, claims.SID)
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired), errors.Is(err, ErrSessionCorrupt):
		return nil, nil
	case err != nil:
		return nil, err
	}
	if sess.UserID != claims.UID {
		return nil, nil
	}
	return sess, nil
}

// Subscribe relays the device's change events to handler. The held token is
// updated before handler runs, so CurrentSession inside handler already
// reflects the event.
func (c *Client) Subscribe(ctx context.Context, handler func(Event)) (Subscription, error) {
	if handler == nil {
		return nil, errors.New("nil event handler")
	}
	return c.store.Subscribe(ctx, c.device, func(ev Event) {
		switch {
		case ev.Kind == EventSignedOut:
			c.SetToken("")
		case ev.Kind.CarriesSession() && ev.Token != "":
			c.SetToken(ev.Token)
		}
		handler(ev)
	})
}

// SignOut ends the held session: the stored session is deleted and
// EventSignedOut is published. The local token is dropped even when the
// store call fails.
func (c *Client) SignOut(ctx context.Context) error {
	token := c.Token()
	c.SetToken("")
	if token == "" {
		return nil
	}
	claims, err := c.Verify(token)
	if err != nil {
		return nil
	}
	if err := c.store.Delete(ctx, claims.SID); err != nil {
		return err
	}
	return c.store.Publish(ctx, c.device, Event{Kind: EventSignedOut})
}
