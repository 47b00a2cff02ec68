// Package storage defines the pluggable backend contract shared by the
// memory, durable (on-disk) and remote (object store) implementations,
// plus the factory that builds one from configuration.
package storage

import (
	"context"
	"time"
)

// Backend is the storage contract every concrete backend satisfies.
// All operations are safe for concurrent use; each implementation owns
// its own internal synchronization.
type Backend interface {
	Set(ctx context.Context, key, value string) error
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	DeleteMany(ctx context.Context, keys []string) (int, error)
	Exists(ctx context.Context, key string) (bool, error)
	KeysCount(ctx context.Context) (int64, error)
	Flush(ctx context.Context) error
	Close() error
}

// Record is the serialized shape persisted by the durable and remote
// backends: a payload plus an optional absolute expiry so TTLs survive
// a restart or a transfer between machines.
type Record struct {
	Data         string `json:"data"`
	ExpiresAtUTC int64  `json:"expires_at_unix_ms,omitempty"`
}

// Expired reports whether the record has an expiry set in the past
// relative to now.
func (r Record) Expired(now time.Time) bool {
	if r.ExpiresAtUTC == 0 {
		return false
	}
	return now.UnixMilli() >= r.ExpiresAtUTC
}

// DeleteManyLoop is a default DeleteMany implementation backends can
// call when they have no more efficient batch primitive.
func DeleteManyLoop(ctx context.Context, b Backend, keys []string) (int, error) {
	count := 0
	for _, k := range keys {
		ok, err := b.Delete(ctx, k)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}
