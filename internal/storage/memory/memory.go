// Package memory implements the in-memory storage backend: a mutex
// guarded map with lazy expiry on read and a background sweep goroutine
// for keys nobody touches again.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rkvd/rkvd/internal/metrics"
	"github.com/rkvd/rkvd/internal/storage"
)

const backendName = "memory"

// defaultSweepSample bounds how many entries a single sweep tick
// examines, so one tick never holds the write lock for an unbounded scan.
const defaultSweepSample = 200

type record struct {
	data      string
	expiresAt *time.Time
}

func (r record) expired(now time.Time) bool {
	return r.expiresAt != nil && now.After(*r.expiresAt)
}

// Backend is the in-memory storage.Backend implementation.
type Backend struct {
	mu   sync.RWMutex
	data map[string]record

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// New constructs a memory backend and starts its background expiry
// sweep at the given interval. interval <= 0 disables the sweep.
func New(interval time.Duration) *Backend {
	b := &Backend{
		data:      make(map[string]record),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	if interval > 0 {
		go b.sweepLoop(interval)
	} else {
		close(b.sweepDone)
	}
	return b
}

func (b *Backend) sweepLoop(interval time.Duration) {
	defer close(b.sweepDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopSweep:
			return
		case <-ticker.C:
			b.sweepOnce()
		}
	}
}

func (b *Backend) sweepOnce() {
	now := time.Now()
	b.mu.Lock()
	removed := 0
	examined := 0
	for k, v := range b.data {
		if examined >= defaultSweepSample {
			break
		}
		examined++
		if v.expired(now) {
			delete(b.data, k)
			removed++
		}
	}
	b.mu.Unlock()
	metrics.RecordExpiredKeys(removed)
}

func (b *Backend) Set(_ context.Context, key, value string) error {
	var err error
	defer metrics.TimeStorageOp("set", backendName, &err)()
	b.mu.Lock()
	b.data[key] = record{data: value}
	b.mu.Unlock()
	metrics.RecordKeyOperation("set", 1)
	return nil
}

func (b *Backend) SetWithExpiry(_ context.Context, key, value string, ttl time.Duration) error {
	var err error
	defer metrics.TimeStorageOp("set", backendName, &err)()
	exp := time.Now().Add(ttl)
	b.mu.Lock()
	b.data[key] = record{data: value, expiresAt: &exp}
	b.mu.Unlock()
	metrics.RecordKeyOperation("set", 1)
	return nil
}

func (b *Backend) Get(_ context.Context, key string) (string, bool, error) {
	var err error
	defer metrics.TimeStorageOp("get", backendName, &err)()

	b.mu.RLock()
	rec, ok := b.data[key]
	b.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if rec.expired(time.Now()) {
		b.expireKey(key)
		return "", false, nil
	}
	return rec.data, true, nil
}

// expireKey re-checks and removes an expired key under a fresh write
// lock; the read that discovered the expiry never holds the lock it
// needs to delete, so there is no read-to-write lock upgrade.
func (b *Backend) expireKey(key string) {
	b.mu.Lock()
	if rec, ok := b.data[key]; ok && rec.expired(time.Now()) {
		delete(b.data, key)
		metrics.RecordExpiredKeys(1)
	}
	b.mu.Unlock()
}

func (b *Backend) Delete(_ context.Context, key string) (bool, error) {
	var err error
	defer metrics.TimeStorageOp("delete", backendName, &err)()
	b.mu.Lock()
	_, ok := b.data[key]
	delete(b.data, key)
	b.mu.Unlock()
	if ok {
		metrics.RecordKeyOperation("delete", 1)
	}
	return ok, nil
}

func (b *Backend) DeleteMany(ctx context.Context, keys []string) (int, error) {
	return storage.DeleteManyLoop(ctx, b, keys)
}

func (b *Backend) Exists(_ context.Context, key string) (bool, error) {
	var err error
	defer metrics.TimeStorageOp("exists", backendName, &err)()

	b.mu.RLock()
	rec, ok := b.data[key]
	b.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if rec.expired(time.Now()) {
		b.expireKey(key)
		return false, nil
	}
	return true, nil
}

func (b *Backend) KeysCount(_ context.Context) (int64, error) {
	var err error
	defer metrics.TimeStorageOp("keys_count", backendName, &err)()

	now := time.Now()
	var expired []string
	b.mu.RLock()
	count := int64(0)
	for k, v := range b.data {
		if v.expired(now) {
			expired = append(expired, k)
			continue
		}
		count++
	}
	b.mu.RUnlock()

	if len(expired) > 0 {
		b.mu.Lock()
		for _, k := range expired {
			if rec, ok := b.data[k]; ok && rec.expired(now) {
				delete(b.data, k)
			}
		}
		b.mu.Unlock()
		metrics.RecordExpiredKeys(len(expired))
	}
	return count, nil
}

func (b *Backend) Flush(_ context.Context) error {
	var err error
	defer metrics.TimeStorageOp("flush", backendName, &err)()
	b.mu.Lock()
	b.data = make(map[string]record)
	b.mu.Unlock()
	return nil
}

func (b *Backend) Close() error {
	if b.stopSweep != nil {
		select {
		case <-b.stopSweep:
		default:
			close(b.stopSweep)
		}
	}
	<-b.sweepDone
	return nil
}
