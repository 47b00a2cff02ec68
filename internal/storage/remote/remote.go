// Package remote implements the storage backend on top of an S3-style
// object store: one object per key under a prefix, expiry co-stored in
// the object body so a listing alone is never enough to know a key's
// TTL.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/rkvd/rkvd/internal/metrics"
	"github.com/rkvd/rkvd/internal/storage"
)

const (
	backendName      = "remote"
	defaultPrefix    = "redis/"
	deleteBatchLimit = 1000
)

// Client is the subset of the S3 API the backend needs, so tests can
// substitute a fake.
type Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Backend is the S3-backed storage.Backend implementation.
type Backend struct {
	client Client
	bucket string
	prefix string
}

// New builds a remote backend. prefix defaults to "redis/" when empty.
func New(client Client, bucket, prefix string) *Backend {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Backend{client: client, bucket: bucket, prefix: prefix}
}

func (b *Backend) keyPath(key string) string {
	return b.prefix + key
}

func (b *Backend) Set(ctx context.Context, key, value string) error {
	return b.SetWithExpiry(ctx, key, value, 0)
}

func (b *Backend) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	var err error
	defer metrics.TimeStorageOp("set", backendName, &err)()

	rec := storage.Record{Data: value}
	if ttl > 0 {
		rec.ExpiresAtUTC = time.Now().Add(ttl).UnixMilli()
	}
	body, encErr := json.Marshal(rec)
	if encErr != nil {
		err = errors.Wrap(encErr, "encode record")
		return err
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.keyPath(key)),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		err = errors.Wrap(err, "s3 put object")
		return err
	}
	metrics.RecordKeyOperation("set", 1)
	return nil
}

func (b *Backend) Get(ctx context.Context, key string) (string, bool, error) {
	var err error
	defer metrics.TimeStorageOp("get", backendName, &err)()

	out, getErr := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.keyPath(key)),
	})
	if getErr != nil {
		if isNotFound(getErr) {
			return "", false, nil
		}
		err = errors.Wrap(getErr, "s3 get object")
		return "", false, err
	}
	defer out.Body.Close()

	body, readErr := io.ReadAll(out.Body)
	if readErr != nil {
		err = errors.Wrap(readErr, "read s3 body")
		return "", false, err
	}

	var rec storage.Record
	if decErr := json.Unmarshal(body, &rec); decErr != nil {
		err = errors.Wrap(decErr, "decode record")
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

func (b *Backend) Delete(ctx context.Context, key string) (bool, error) {
	var err error
	defer metrics.TimeStorageOp("delete", backendName, &err)()

	existed, existsErr := b.Exists(ctx, key)
	if existsErr != nil {
		err = existsErr
		return false, err
	}

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.keyPath(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		err = errors.Wrap(err, "s3 delete object")
		return false, err
	}
	if existed {
		metrics.RecordKeyOperation("delete", 1)
	}
	return existed, nil
}

func (b *Backend) DeleteMany(ctx context.Context, keys []string) (int, error) {
	return storage.DeleteManyLoop(ctx, b, keys)
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	var err error
	defer metrics.TimeStorageOp("exists", backendName, &err)()

	_, headErr := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.keyPath(key)),
	})
	if headErr != nil {
		if isNotFound(headErr) {
			return false, nil
		}
		err = errors.Wrap(headErr, "s3 head object")
		return false, err
	}
	return true, nil
}

// KeysCount paginates the whole prefix via ListObjectsV2's continuation
// token, counting every listed object. Expiry is only known from an
// object's body, not its listing metadata, so this reports the raw
// object count for the prefix; callers that need exactness should rely
// on Get's lazy expiry instead for this backend.
func (b *Backend) KeysCount(ctx context.Context) (int64, error) {
	var err error
	defer metrics.TimeStorageOp("keys_count", backendName, &err)()

	var count int64
	var token *string
	for {
		out, listErr := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(b.prefix),
			ContinuationToken: token,
		})
		if listErr != nil {
			err = errors.Wrap(listErr, "s3 list objects")
			return 0, err
		}
		count += int64(len(out.Contents))
		if aws.ToBool(out.IsTruncated) {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	return count, nil
}

func (b *Backend) Flush(ctx context.Context) error {
	var err error
	defer metrics.TimeStorageOp("flush", backendName, &err)()

	var keys []string
	var token *string
	for {
		out, listErr := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(b.prefix),
			ContinuationToken: token,
		})
		if listErr != nil {
			err = errors.Wrap(listErr, "s3 list objects")
			return err
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if aws.ToBool(out.IsTruncated) {
			token = out.NextContinuationToken
			continue
		}
		break
	}

	for start := 0; start < len(keys); start += deleteBatchLimit {
		end := start + deleteBatchLimit
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]
		ids := make([]types.ObjectIdentifier, len(chunk))
		for i, k := range chunk {
			ids[i] = types.ObjectIdentifier{Key: aws.String(k)}
		}
		_, delErr := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.bucket),
			Delete: &types.Delete{Objects: ids},
		})
		if delErr != nil {
			err = errors.Wrap(delErr, "s3 batch delete")
			return err
		}
	}
	return nil
}

func (b *Backend) Close() error { return nil }

func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "NotFound") || strings.Contains(msg, "404")
}

var _ storage.Backend = (*Backend)(nil)
