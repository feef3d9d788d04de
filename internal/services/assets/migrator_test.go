package assets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/lukisan/renderwatch/internal/common"
)

// fakeObjectStore records uploads and removals in memory.
type fakeObjectStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	removed   []string
	uploadErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.objects[path] = data
	return nil
}

func (f *fakeObjectStore) PublicURL(path string) string {
	return "https://assets.example.com/" + path
}

func (f *fakeObjectStore) Remove(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	delete(f.objects, path)
	return nil
}

func newTestMigrator(store *fakeObjectStore) *Migrator {
	cfg := &common.UpstreamConfig{
		FetchTimeout: 5 * time.Second,
		MaxAssetSize: 1024 * 1024,
	}
	return NewMigrator(store, cfg, arbor.NewLogger()).(*Migrator)
}

func TestMigrate_Success(t *testing.T) {
	content := []byte("fake mp4 bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer server.Close()

	store := newFakeObjectStore()
	migrator := newTestMigrator(store)

	result, err := migrator.Migrate(context.Background(), server.URL+"/video.mp4", "owner-1", "job_abc")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, strings.HasPrefix(result.StoragePath, "videos/owner-1/job_abc_"),
		"storage path must be namespaced by owner and job: %s", result.StoragePath)
	assert.True(t, strings.HasSuffix(result.StoragePath, ".mp4"))
	assert.Equal(t, "https://assets.example.com/"+result.StoragePath, result.PublicURL)
	assert.Equal(t, content, store.objects[result.StoragePath])
}

func TestMigrate_FetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	store := newFakeObjectStore()
	migrator := newTestMigrator(store)

	_, err := migrator.Migrate(context.Background(), server.URL+"/expired.mp4", "owner-1", "job_abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailed))
	assert.Empty(t, store.objects, "nothing should be uploaded on fetch failure")
}

func TestMigrate_UploadFailureRollsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	store := newFakeObjectStore()
	store.uploadErr = fmt.Errorf("bucket unavailable")
	migrator := newTestMigrator(store)

	_, err := migrator.Migrate(context.Background(), server.URL+"/video.mp4", "owner-1", "job_abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUploadFailed))
	require.Len(t, store.removed, 1, "partial object must be cleaned up")
	assert.True(t, strings.HasPrefix(store.removed[0], "videos/owner-1/job_abc_"))
}

func TestMigrate_OversizeAssetRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2*1024*1024))
	}))
	defer server.Close()

	store := newFakeObjectStore()
	migrator := newTestMigrator(store)

	_, err := migrator.Migrate(context.Background(), server.URL+"/huge.mp4", "owner-1", "job_abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailed))
}

func TestMigrate_EmptySourceURL(t *testing.T) {
	migrator := newTestMigrator(newFakeObjectStore())

	_, err := migrator.Migrate(context.Background(), "", "owner-1", "job_abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailed))
}

func TestDeleteAsset(t *testing.T) {
	store := newFakeObjectStore()
	store.objects["videos/owner-1/job_abc_deadbeef.mp4"] = []byte("x")
	migrator := newTestMigrator(store)

	err := migrator.DeleteAsset(context.Background(), "videos/owner-1/job_abc_deadbeef.mp4")
	require.NoError(t, err)
	assert.Empty(t, store.objects)

	// Empty path is a no-op
	require.NoError(t, migrator.DeleteAsset(context.Background(), ""))
}
