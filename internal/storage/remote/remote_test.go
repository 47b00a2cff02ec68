package remote

import (
	"bytes"
	"context"
	"io"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory stand-in for the S3 API, enough to
// exercise pagination and batch-delete behavior without a network.
type fakeClient struct {
	objects map[string][]byte
	pageSz  int
}

func newFakeClient(pageSize int) *fakeClient {
	return &fakeClient{objects: make(map[string][]byte), pageSz: pageSize}
}

func (f *fakeClient) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeClient) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &notFoundErr{"NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeClient) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeClient) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &notFoundErr{"NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeClient) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == aws.ToString(in.ContinuationToken) {
				start = i
				break
			}
		}
	}
	pageSz := f.pageSz
	if pageSz <= 0 || pageSz > len(keys)-start {
		pageSz = len(keys) - start
	}
	page := keys[start : start+pageSz]

	out := &s3.ListObjectsV2Output{}
	for _, k := range page {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	truncated := start+pageSz < len(keys)
	out.IsTruncated = aws.Bool(truncated)
	if truncated {
		out.NextContinuationToken = aws.String(keys[start+pageSz])
	}
	return out, nil
}

func (f *fakeClient) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	for _, obj := range in.Delete.Objects {
		delete(f.objects, aws.ToString(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

type notFoundErr struct{ msg string }

func (e *notFoundErr) Error() string { return e.msg }

func TestRemoteSetGetDelete(t *testing.T) {
	c := newFakeClient(0)
	b := New(c, "bucket", "")
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k1", "v1"))
	v, ok, err := b.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", v)

	ok, err = b.Delete(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.Get(ctx, "k1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemoteKeysCountPaginates(t *testing.T) {
	c := newFakeClient(2)
	b := New(c, "bucket", "")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Set(ctx, string(rune('a'+i)), "v"))
	}

	count, err := b.KeysCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), count)
}

func TestRemoteFlushBatchDeletes(t *testing.T) {
	c := newFakeClient(2)
	b := New(c, "bucket", "")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Set(ctx, string(rune('a'+i)), "v"))
	}
	require.NoError(t, b.Flush(ctx))

	count, err := b.KeysCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}
