package profile

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no profile row exists for an ID.
var ErrNotFound = errors.New("profile not found")

// ErrUnavailable wraps backend transport failures.
var ErrUnavailable = errors.New("profile store unavailable")

// Store is a point-lookup profile table.
type Store interface {
	Get(ctx context.Context, id string) (*Profile, error)
	Put(ctx context.Context, p *Profile) error
	AddPoints(ctx context.Context, id string, delta int64) (int64, error)
	Delete(ctx context.Context, id string) error
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*SQLStore)(nil)
)
