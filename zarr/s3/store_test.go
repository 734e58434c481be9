package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3sdk "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/openmicrodata/ngff/zarr"
)

// mockAPI is an in-memory S3 API double with configurable list page size.
type mockAPI struct {
	objects  map[string][]byte
	pageSize int
}

func newMockAPI() *mockAPI {
	return &mockAPI{objects: map[string][]byte{}, pageSize: 1000}
}

func (m *mockAPI) PutObject(_ context.Context, params *s3sdk.PutObjectInput, _ ...func(*s3sdk.Options)) (*s3sdk.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(params.Key)] = data
	return &s3sdk.PutObjectOutput{}, nil
}

func (m *mockAPI) GetObject(_ context.Context, params *s3sdk.GetObjectInput, _ ...func(*s3sdk.Options)) (*s3sdk.GetObjectOutput, error) {
	data, ok := m.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "key not found"}
	}
	return &s3sdk.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockAPI) HeadObject(_ context.Context, params *s3sdk.HeadObjectInput, _ ...func(*s3sdk.Options)) (*s3sdk.HeadObjectOutput, error) {
	if _, ok := m.objects[aws.ToString(params.Key)]; !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "key not found"}
	}
	return &s3sdk.HeadObjectOutput{}, nil
}

func (m *mockAPI) DeleteObject(_ context.Context, params *s3sdk.DeleteObjectInput, _ ...func(*s3sdk.Options)) (*s3sdk.DeleteObjectOutput, error) {
	delete(m.objects, aws.ToString(params.Key))
	return &s3sdk.DeleteObjectOutput{}, nil
}

func (m *mockAPI) ListObjectsV2(_ context.Context, params *s3sdk.ListObjectsV2Input, _ ...func(*s3sdk.Options)) (*s3sdk.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := 0
	if params.ContinuationToken != nil {
		for i, key := range keys {
			if key > aws.ToString(params.ContinuationToken) {
				start = i
				break
			}
		}
	}
	end := start + m.pageSize
	truncated := end < len(keys)
	if !truncated {
		end = len(keys)
	}

	out := &s3sdk.ListObjectsV2Output{IsTruncated: aws.Bool(truncated)}
	for _, key := range keys[start:end] {
		out.Contents = append(out.Contents, s3Object(key))
	}
	if truncated {
		out.NextContinuationToken = aws.String(keys[end-1])
	}
	return out, nil
}

func s3Object(key string) types.Object {
	return types.Object{Key: aws.String(key)}
}

func newTestStore(t *testing.T, api API) *Store {
	t.Helper()
	store, err := New(api, Config{Bucket: "bucket", Prefix: "data"})
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	api := newMockAPI()
	store := newTestStore(t, api)

	content := []byte(`{"zarr_format": 2}`)
	if err := store.Put(ctx, ".zgroup", bytes.NewReader(content)); err != nil {
		t.Fatal(err)
	}
	// prefix is applied to the stored key
	if _, ok := api.objects["data/.zgroup"]; !ok {
		t.Fatalf("stored keys: %v", api.objects)
	}

	rc, err := store.Get(ctx, ".zgroup")
	if err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !bytes.Equal(got, content) {
		t.Errorf("got %q, want %q", got, content)
	}
}

func TestStore_MissingObjectIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, newMockAPI())

	_, err := store.Get(ctx, "absent")
	if !errors.Is(err, zarr.ErrNotFound) {
		t.Errorf("Get: expected zarr.ErrNotFound, got: %v", err)
	}
	ok, err := store.Exists(ctx, "absent")
	if err != nil || ok {
		t.Errorf("Exists = %v, %v; want false, nil", ok, err)
	}
}

func TestStore_ListPaginates(t *testing.T) {
	ctx := context.Background()
	api := newMockAPI()
	api.pageSize = 2
	store := newTestStore(t, api)

	want := []string{"g/a", "g/b", "g/c", "g/d", "g/e"}
	for _, key := range want {
		if err := store.Put(ctx, key, bytes.NewReader([]byte("v"))); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := store.List(ctx, "g")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != len(want) {
		t.Fatalf("List returned %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestStore_InvalidKeys(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, newMockAPI())

	for _, key := range []string{"", "a/../b"} {
		if err := store.Put(ctx, key, bytes.NewReader([]byte("v"))); !errors.Is(err, zarr.ErrInvalidKey) {
			t.Errorf("Put(%q) = %v, want zarr.ErrInvalidKey", key, err)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, Config{Bucket: "b"}); err == nil {
		t.Error("expected error for nil client")
	}
	if _, err := New(newMockAPI(), Config{}); err == nil {
		t.Error("expected error for missing bucket")
	}
}
