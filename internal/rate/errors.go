package rate

import "errors"

var (
	// ErrRateLimited is returned once a key has spent its window's budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
