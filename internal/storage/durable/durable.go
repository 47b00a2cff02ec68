// Package durable implements the on-disk storage backend on top of
// bbolt, a transactional single-file B-tree store. Every operation runs
// in its own transaction; expiry found during a read is removed in a
// separate write transaction, since bbolt (like most embedded B-tree
// stores) cannot upgrade a read transaction to a write transaction in
// place.
package durable

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/rkvd/rkvd/internal/metrics"
	"github.com/rkvd/rkvd/internal/storage"
)

const backendName = "durable"

var bucketName = []byte("rkvd")

// Backend is the bbolt-backed storage.Backend implementation.
type Backend struct {
	db *bolt.DB
}

// Open opens (creating if needed) the bbolt file at path and ensures
// the data bucket exists.
func Open(path string) (*Backend, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open bbolt database")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create bucket")
	}
	return &Backend{db: db}, nil
}

func encode(rec storage.Record) ([]byte, error) {
	return json.Marshal(rec)
}

func decode(b []byte) (storage.Record, error) {
	var rec storage.Record
	err := json.Unmarshal(b, &rec)
	return rec, err
}

func (b *Backend) Set(ctx context.Context, key, value string) error {
	return b.SetWithExpiry(ctx, key, value, 0)
}

func (b *Backend) SetWithExpiry(_ context.Context, key, value string, ttl time.Duration) error {
	var err error
	defer metrics.TimeStorageOp("set", backendName, &err)()

	rec := storage.Record{Data: value}
	if ttl > 0 {
		rec.ExpiresAtUTC = time.Now().Add(ttl).UnixMilli()
	}
	body, encErr := encode(rec)
	if encErr != nil {
		err = errors.Wrap(encErr, "encode record")
		return err
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), body)
	})
	if err == nil {
		metrics.RecordKeyOperation("set", 1)
	}
	return err
}

// Get reads key in one read-only transaction. If the stored record is
// expired, the read transaction is closed first and the removal is
// issued as its own write transaction via Delete.
func (b *Backend) Get(ctx context.Context, key string) (string, bool, error) {
	var err error
	defer metrics.TimeStorageOp("get", backendName, &err)()

	var rec storage.Record
	var found bool
	err = b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		decoded, decErr := decode(v)
		if decErr != nil {
			return errors.Wrap(decErr, "decode record")
		}
		rec = decoded
		return nil
	})
	if err != nil || !found {
		return "", false, err
	}

	if rec.Expired(time.Now()) {
		if _, delErr := b.Delete(ctx, key); delErr != nil {
			err = delErr
			return "", false, err
		}
		return "", false, nil
	}
	return rec.Data, true, nil
}

func (b *Backend) Delete(_ context.Context, key string) (bool, error) {
	var err error
	defer metrics.TimeStorageOp("delete", backendName, &err)()

	existed := false
	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket.Get([]byte(key)) != nil {
			existed = true
		}
		return bucket.Delete([]byte(key))
	})
	if err == nil && existed {
		metrics.RecordKeyOperation("delete", 1)
	}
	return existed, err
}

func (b *Backend) DeleteMany(ctx context.Context, keys []string) (int, error) {
	var err error
	defer metrics.TimeStorageOp("delete_many", backendName, &err)()

	count := 0
	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		for _, key := range keys {
			if bucket.Get([]byte(key)) != nil {
				count++
			}
			if delErr := bucket.Delete([]byte(key)); delErr != nil {
				return delErr
			}
		}
		return nil
	})
	return count, err
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := b.Get(ctx, key)
	return ok, err
}

// KeysCount walks the bucket and reports the count of non-expired
// entries, unlike a raw bucket-size read which would include entries
// that have expired but not yet been swept.
func (b *Backend) KeysCount(_ context.Context) (int64, error) {
	var err error
	defer metrics.TimeStorageOp("keys_count", backendName, &err)()

	now := time.Now()
	var count int64
	var expiredKeys [][]byte
	err = b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, v []byte) error {
			rec, decErr := decode(v)
			if decErr != nil {
				return errors.Wrap(decErr, "decode record")
			}
			if rec.Expired(now) {
				expiredKeys = append(expiredKeys, append([]byte(nil), k...))
				return nil
			}
			count++
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	if len(expiredKeys) > 0 {
		_ = b.db.Update(func(tx *bolt.Tx) error {
			bucket := tx.Bucket(bucketName)
			for _, k := range expiredKeys {
				if delErr := bucket.Delete(k); delErr != nil {
					return delErr
				}
			}
			return nil
		})
		metrics.RecordExpiredKeys(len(expiredKeys))
	}
	return count, nil
}

func (b *Backend) Flush(_ context.Context) error {
	var err error
	defer metrics.TimeStorageOp("flush", backendName, &err)()

	err = b.db.Update(func(tx *bolt.Tx) error {
		if delErr := tx.DeleteBucket(bucketName); delErr != nil {
			return delErr
		}
		_, createErr := tx.CreateBucket(bucketName)
		return createErr
	})
	return err
}

func (b *Backend) Close() error {
	return b.db.Close()
}

var _ storage.Backend = (*Backend)(nil)
