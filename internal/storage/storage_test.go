package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/fintrack/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBackend struct {
	bucket  string
	objects map[string][]byte
	ensured bool
	closed  bool
}

func (m *memoryBackend) EnsureBucket(context.Context) error {
	m.ensured = true
	return nil
}

func (m *memoryBackend) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memoryBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryBackend) Bucket() string { return m.bucket }

func (m *memoryBackend) Close() error {
	m.closed = true
	return nil
}

func TestStorageRoundTrip(t *testing.T) {
	backend := &memoryBackend{bucket: "statements", objects: map[string][]byte{}}
	store := NewStorage(backend)
	ctx := context.Background()

	require.NoError(t, store.EnsureBucket(ctx))
	assert.True(t, backend.ensured)
	assert.Equal(t, "statements", store.Bucket())

	require.NoError(t, store.Put(ctx, "a/b.csv", strings.NewReader("id\n1\n"), 5, "text/csv"))
	reader, err := store.Get(ctx, "a/b.csv")
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", string(data))

	_, err = store.Get(ctx, "missing.csv")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, store.Close())
	assert.True(t, backend.closed)
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()

	store, err := NewFromConfig(ctx, config.StorageConfig{})
	require.NoError(t, err)
	assert.Nil(t, store)
	assert.NoError(t, store.Close())

	_, err = NewFromConfig(ctx, config.StorageConfig{Backend: "s3"})
	assert.ErrorContains(t, err, "s3")

	_, err = NewFromConfig(ctx, config.StorageConfig{Backend: "MINIO"})
	assert.ErrorContains(t, err, "minio endpoint is required")

	_, err = NewFromConfig(ctx, config.StorageConfig{Backend: BackendMinio, Minio: config.MinioConfig{Endpoint: "localhost:9000"}})
	assert.ErrorContains(t, err, "access key")

	_, err = NewFromConfig(ctx, config.StorageConfig{Backend: BackendGCS})
	assert.ErrorContains(t, err, "gcs bucket is required")
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="3f2a.csv"`, contentDisposition("statements/1/2/3f2a.csv"))
	assert.Equal(t, `attachment; filename="plain.csv"`, contentDisposition("plain.csv"))
}
