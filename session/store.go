package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures talking to Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when no session exists for an ID.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExpired is returned when a stored session is past its expiry.
var ErrSessionExpired = errors.New("session expired")

// Store persists session blobs in Redis and carries change events over
// per-device pub/sub channels.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewStore returns a Store using keys under prefix. A nil logger discards.
func NewStore(client redis.UniversalClient, prefix string, logger *slog.Logger) *Store {
	if prefix == "" {
		prefix = "qa"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		redis:  client,
		prefix: prefix,
		logger: logger.With("component", "session_store"),
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *Store) channel(device string) string {
	return s.prefix + ":ev:" + device
}

// Save persists sess until its ExpiresAt.
//
//	Performance: 1 MULTI/EXEC (SET + SADD).
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" || sess.UserID == "" {
		return errors.New("session requires id and user id")
	}
	ttl := time.Until(time.Unix(sess.ExpiresAt, 0))
	if ttl <= 0 {
		return ErrSessionExpired
	}

	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads the session with sessionID. A missing key returns
// ErrSessionNotFound; a blob past its expiry is deleted and returns
// ErrSessionExpired.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = sessionID

	if sess.Expired(time.Now()) {
		if err := s.Delete(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		if sess, decodeErr := Decode(data); decodeErr == nil {
			pipe.SRem(ctx, s.userKey(sess.UserID), sessionID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ActiveSessionIDs returns the session IDs indexed for userID. Entries may
// outlive their sessions until the next Delete.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Publish sends ev on device's change channel.
func (s *Store) Publish(ctx context.Context, device string, ev Event) error {
	if ev.At == 0 {
		ev.At = time.Now().Unix()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := s.redis.Publish(ctx, s.channel(device), payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Subscribe delivers device's change events to handler, one at a time and in
// publish order, until the returned Subscription is released. Undecodable
// payloads are logged and skipped.
func (s *Store) Subscribe(ctx context.Context, device string, handler func(Event)) (Subscription, error) {
	if handler == nil {
		return nil, errors.New("nil event handler")
	}
	ps := s.redis.Subscribe(ctx, s.channel(device))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sub := &redisSubscription{ps: ps, done: make(chan struct{})}
	go sub.run(handler, s.logger)
	return sub, nil
}

type redisSubscription struct {
	ps       *redis.PubSub
	done     chan struct{}
	released atomic.Bool
	once     sync.Once
	err      error
}

func (r *redisSubscription) run(handler func(Event), logger *slog.Logger) {
	defer close(r.done)
	for msg := range r.ps.Channel() {
		if r.released.Load() {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger.Warn("dropping undecodable session event", "channel", msg.Channel, "error", err)
			continue
		}
		handler(ev)
	}
}

// Unsubscribe closes the pub/sub connection. It does not wait for an
// in-flight handler call, so it is safe to call from inside the handler.
func (r *redisSubscription) Unsubscribe() error {
	r.once.Do(func() {
		r.released.Store(true)
		r.err = r.ps.Close()
	})
	return r.err
}
