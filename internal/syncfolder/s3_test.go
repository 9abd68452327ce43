package syncfolder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory s3API. Listing returns pageSize keys per page to
// exercise pagination.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
	failAll  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, pageSize: 2}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("not found")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
				break
			}
		}
	}
	end := min(start+f.pageSize, len(keys))

	out := &s3.ListObjectsV2Output{}
	modified := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(f.objects[k]))),
			LastModified: aws.Time(modified),
		})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func TestS3Backend_PutGetDelete(t *testing.T) {
	fake := newFakeS3()
	b := newS3Backend(fake, "marks", "/team/")
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "a.json", []byte("hello")))
	assert.Contains(t, fake.objects, "team/a.json", "prefix is applied to keys")

	got, err := b.Get(ctx, "a.json")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, b.Delete(ctx, "a.json"))
	_, err = b.Get(ctx, "a.json")
	require.ErrorIs(t, err, ErrNotExist)
}

func TestS3Backend_ListPaginatesAndFilters(t *testing.T) {
	fake := newFakeS3()
	fake.objects["team/c.json"] = []byte("ccc")
	fake.objects["team/a.json"] = []byte("a")
	fake.objects["team/b.json"] = []byte("bb")
	fake.objects["team/nested/d.json"] = []byte("d")
	fake.objects["other/e.json"] = []byte("e")

	b := newS3Backend(fake, "marks", "team")
	entries, err := b.List(context.Background())
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a.json", "b.json", "c.json"}, names)
	assert.Equal(t, int64(3), entries[2].Size)
}

func TestS3Backend_Errors(t *testing.T) {
	fake := newFakeS3()
	fake.failAll = errors.New("connection refused")
	b := newS3Backend(fake, "marks", "")
	ctx := context.Background()

	require.ErrorContains(t, b.Put(ctx, "a.json", nil), "connection refused")
	_, err := b.Get(ctx, "a.json")
	require.ErrorContains(t, err, "connection refused")
	assert.NotErrorIs(t, err, ErrNotExist)
	_, err = b.List(ctx)
	require.ErrorContains(t, err, "connection refused")
}

func TestS3Backend_Location(t *testing.T) {
	assert.Equal(t, "s3://marks/team", newS3Backend(newFakeS3(), "marks", "team/").Location())
	assert.Equal(t, "s3://marks", newS3Backend(newFakeS3(), "marks", "").Location())
}

func TestNewS3Backend_RequiresBucket(t *testing.T) {
	_, err := NewS3Backend(context.Background(), S3Config{})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestNewS3Backend_StaticCredentials(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "none"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "none"))

	b, err := NewS3Backend(context.Background(), S3Config{
		Bucket:          "marks",
		Endpoint:        "http://127.0.0.1:9000",
		PathStyle:       true,
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://marks", b.Location())
}
