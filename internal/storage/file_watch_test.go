package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appgallery-cms/internal/storage"
)

func waitKey(t *testing.T, keys <-chan string, want string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case k := <-keys:
			if k == want {
				return
			}
		case <-deadline:
			t.Fatalf("no change reported for %s", want)
		}
	}
}

func TestFileWatcher_ExternalEditRefreshesCache(t *testing.T) {
	ctx := context.Background()
	file, err := storage.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(file.Root(), "data"), 0o755))

	cache := storage.NewMemoryCache()
	st := storage.NewTiered(storage.TieredConfig{
		Backends: []storage.Backend{file},
		Cache:    cache,
		Retry:    quickRetry(),
	}, zerolog.Nop())
	st.Save(ctx, "data/featured", []byte(`["20001"]`))

	w, err := storage.NewFileWatcher(file.Root(), func(key string) {
		st.Refresh(ctx, key)
	}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	path := filepath.Join(file.Root(), "data", "featured.json")
	require.NoError(t, os.WriteFile(path, []byte(`["20001","20002"]`), 0o644))

	assert.Eventually(t, func() bool {
		data, ok := cache.Get(ctx, "data/featured")
		return ok && string(data) == `["20001","20002"]`
	}, 3*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	keys := make(chan string, 16)
	w, err := storage.NewFileWatcher(root, func(key string) {
		select {
		case keys <- key:
		default:
		}
	}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	dir := filepath.Join(root, "gallery", "events")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "gallery"), 0o755))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta.json"), []byte(`[]`), 0o644))

	waitKey(t, keys, "gallery/events/meta")
}

func TestFileWatcher_StartTwiceFails(t *testing.T) {
	w, err := storage.NewFileWatcher(t.TempDir(), func(string) {}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	assert.Error(t, w.Start())
	assert.NoError(t, w.Stop())
}
