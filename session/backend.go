package session

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authsync/jwt"
	"github.com/google/uuid"
)

// Backend plays the hosted auth service's issuing side against a Store: it
// mints sessions and tokens and publishes the matching change events.
type Backend struct {
	store  *Store
	tokens *jwt.Manager
	now    func() time.Time
}

// NewBackend returns a Backend signing with tokens, which must hold a
// private key.
func NewBackend(store *Store, tokens *jwt.Manager) *Backend {
	return &Backend{store: store, tokens: tokens, now: time.Now}
}

// Issue creates a session for userID, signs its token and publishes
// EventSignedIn on device's channel.
func (b *Backend) Issue(ctx context.Context, device, userID, email string) (*Session, string, error) {
	if userID == "" {
		return nil, "", errors.New("user id required")
	}
	now := b.now()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(b.tokens.TTL()).Unix(),
	}
	if err := b.store.Save(ctx, sess); err != nil {
		return nil, "", err
	}

	token, err := b.tokens.CreateSession(sess.UserID, sess.ID, sess.Email, time.Unix(sess.ExpiresAt, 0))
	if err != nil {
		_ = b.store.Delete(ctx, sess.ID)
		return nil, "", err
	}

	ev := Event{Kind: EventSignedIn, Session: sess.Clone(), Token: token, At: now.Unix()}
	if err := b.store.Publish(ctx, device, ev); err != nil {
		return nil, "", err
	}
	return sess, token, nil
}

// Refresh extends sessionID by the token TTL, re-signs it and publishes
// EventTokenRefreshed.
func (b *Backend) Refresh(ctx context.Context, device, sessionID string) (*Session, string, error) {
	sess, err := b.store.Get(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	now := b.now()
	sess.ExpiresAt = now.Add(b.tokens.TTL()).Unix()
	if err := b.store.Save(ctx, sess); err != nil {
		return nil, "", err
	}

	token, err := b.tokens.CreateSession(sess.UserID, sess.ID, sess.Email, time.Unix(sess.ExpiresAt, 0))
	if err != nil {
		return nil, "", err
	}

	ev := Event{Kind: EventTokenRefreshed, Session: sess.Clone(), Token: token, At: now.Unix()}
	if err := b.store.Publish(ctx, device, ev); err != nil {
		return nil, "", err
	}
	return sess, token, nil
}

// Revoke deletes sessionID and publishes EventSignedOut.
func (b *Backend) Revoke(ctx context.Context, device, sessionID string) error {
	if err := b.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	return b.store.Publish(ctx, device, Event{Kind: EventSignedOut, At: b.now().Unix()})
}
