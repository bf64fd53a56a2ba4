package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/MrEthical07/authsync"
	"github.com/MrEthical07/authsync/internal/rate"
	"github.com/MrEthical07/authsync/jwt"
	"github.com/MrEthical07/authsync/profile"
	"github.com/MrEthical07/authsync/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// devSigningSecret is used when no secret is configured. Tokens signed with
// it are only good for local experiments.
const devSigningSecret = "authsync-development-secret-change-me"

// backend bundles the stores every command talks to.
type backend struct {
	rdb      redis.UniversalClient
	sessions *session.Store
	tokens   *jwt.Manager
	profiles profile.Store

	closers []func() error
}

func openBackend(ctx context.Context, c authsync.Config) (*backend, error) {
	b := &backend{}

	addr := c.Session.RedisAddr
	if flagEmbedded {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start embedded redis: %w", err)
		}
		addr = mr.Addr()
		b.closers = append(b.closers, func() error { mr.Close(); return nil })
		logger.Info("using embedded redis", "addr", addr)
	}

	b.rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	b.closers = append(b.closers, b.rdb.Close)
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	b.sessions = session.NewStore(b.rdb, c.Session.RedisPrefix, logger)

	secret := c.Session.SigningSecret
	if secret == "" {
		logger.Warn("no signing secret configured, using the development secret")
		secret = devSigningSecret
	}
	tokens, err := jwt.NewManager(jwt.Config{
		SessionTTL:    c.Session.TokenTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(secret),
		Issuer:        c.Session.Issuer,
		Audience:      c.Session.Audience,
	})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("token manager: %w", err)
	}
	b.tokens = tokens

	if c.Session.ProfileDB != "" {
		st, err := profile.NewSQLStore(c.Session.ProfileDB, logger)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.closers = append(b.closers, st.Close)
		if err := st.Migrate(ctx); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("migrate profiles: %w", err)
		}
		b.profiles = st
	} else {
		b.profiles = profile.NewRedisStore(b.rdb, c.Session.RedisPrefix)
	}

	return b, nil
}

// issuer returns the emulated auth service.
func (b *backend) issuer() *session.Backend {
	return session.NewBackend(b.sessions, b.tokens)
}

// signInLimiter caps sessions issued per user by the demo server.
func (b *backend) signInLimiter(c authsync.Config) *rate.Limiter {
	return rate.New(b.rdb, rate.Config{
		Prefix: c.Session.RedisPrefix,
		Limit:  c.Session.SignInLimit,
		Window: c.Session.SignInWindow,
	})
}

// client returns a session client for the configured device holding token.
func (b *backend) client(device, token string) *session.Client {
	c := session.NewClient(b.sessions, b.tokens, device)
	if token != "" {
		c.SetToken(token)
	}
	return c
}

// reconciler builds a Reconciler over src and the profile store.
func (b *backend) reconciler(c authsync.Config, src authsync.SessionSource) (*authsync.Reconciler, error) {
	builder := authsync.New().
		WithConfig(c).
		WithSessionSource(src).
		WithProfileStore(b.profiles).
		WithLogger(logger)
	if c.Audit.Enabled {
		builder = builder.WithAuditSink(authsync.NewJSONWriterSink(os.Stderr))
	}
	return builder.Build()
}

// Close releases resources in reverse order of acquisition.
func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
