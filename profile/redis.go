package profile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const addPointsScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {0, 0}
end
local total = redis.call("HINCRBY", KEYS[1], "points", ARGV[1])
redis.call("HSET", KEYS[1], "updated_at", ARGV[2])
return {1, total}
`

var addPointsLua = redis.NewScript(addPointsScript)

// RedisStore keeps each profile in a Redis hash.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore returns a store with keys under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "qa"
	}
	return &RedisStore{redis: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":p:" + id
}

// Get loads the profile for id.
//
//	Performance: 1 Redis HGETALL.
func (s *RedisStore) Get(ctx context.Context, id string) (*Profile, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	role, err := ParseRole(fields["role"])
	if err != nil {
		return nil, err
	}
	points, err := strconv.ParseInt(fields["points"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("profile %s: invalid points: %w", id, err)
	}

	return &Profile{
		ID:          id,
		Role:        role,
		DisplayName: fields["display_name"],
		Points:      points,
		CreatedAt:   parseUnixNano(fields["created_at"]),
		UpdatedAt:   parseUnixNano(fields["updated_at"]),
	}, nil
}

// Put writes p, stamping UpdatedAt and, when zero, CreatedAt.
func (s *RedisStore) Put(ctx context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	now := s.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	err := s.redis.HSet(ctx, s.key(p.ID),
		"role", string(p.Role),
		"display_name", p.DisplayName,
		"points", p.Points,
		"created_at", p.CreatedAt.UnixNano(),
		"updated_at", p.UpdatedAt.UnixNano(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// AddPoints adds delta to the balance of an existing profile and returns the
// new total.
func (s *RedisStore) AddPoints(ctx context.Context, id string, delta int64) (int64, error) {
	res, err := addPointsLua.Run(ctx, s.redis, []string{s.key(id)}, delta, s.now().UTC().UnixNano()).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(res) != 2 {
		return 0, errors.New("unexpected add points reply")
	}
	if res[0] == 0 {
		return 0, ErrNotFound
	}
	return res[1], nil
}

// Delete removes the profile for id. Missing profiles are not an error.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func parseUnixNano(v string) time.Time {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
