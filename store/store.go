// Package store defines the session store contract the coordinators share:
// ephemeral game/room/queue/presence state keyed by string, safe under
// concurrent access. Redis backs production; an in-memory implementation
// serves tests and single-node deployments.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key or field is absent.
var ErrNotFound = errors.New("store: not found")

// ZMember pairs a sorted-set member with its score.
type ZMember struct {
	Member string
	Score  float64
}

// SessionStore is the shared mutable substrate for all coordinators. All
// operations must be safe for concurrent use.
type SessionStore interface {
	// Strings with optional expiry. ttl of 0 means no expiry.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error

	// Field-keyed hashes.
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	HExists(ctx context.Context, key, field string) (bool, error)

	// Score-ordered sorted sets, used for rating-ordered queues.
	ZAdd(ctx context.Context, key string, members ...ZMember) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	ZCard(ctx context.Context, key string) (int64, error)

	// Unordered sets, used for presence tracking.
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)

	// Keys returns every key matching the prefix, for recovery and sweeps.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
