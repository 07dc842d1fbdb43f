package storage_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appgallery-cms/internal/mocks"
	"github.com/appgallery-cms/internal/storage"
)

func quickRetry() storage.RetryPolicy {
	return storage.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
}

func newTiered(backends ...storage.Backend) *storage.Tiered {
	return storage.NewTiered(storage.TieredConfig{
		Backends: backends,
		Retry:    quickRetry(),
		Verify:   true,
	}, zerolog.Nop())
}

func decodeStrings(data []byte) error {
	var v []string
	return json.Unmarshal(data, &v)
}

func TestTiered_SaveThenLoad(t *testing.T) {
	payload := []byte(`["a","b"]`)

	tests := []struct {
		name        string
		file        *mocks.MockBackend
		blob        *mocks.MockBackend
		wantStorage string
		wantSource  string
	}{
		{
			name:        "file accepts",
			file:        mocks.NewMockBackend("file"),
			blob:        mocks.NewMockBackend("blob"),
			wantStorage: "file",
			wantSource:  "file",
		},
		{
			name:        "file down, blob accepts",
			file:        mocks.NewFailingBackend("file", mocks.ErrUnavailable),
			blob:        mocks.NewMockBackend("blob"),
			wantStorage: "blob",
			wantSource:  "blob",
		},
		{
			name:        "everything down",
			file:        mocks.NewFailingBackend("file", mocks.ErrUnavailable),
			blob:        mocks.NewFailingBackend("blob", mocks.ErrUnavailable),
			wantStorage: "memory",
			wantSource:  "memory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := newTiered(tt.file, tt.blob)

			status := st.Save(ctx, "data/featured", payload)
			assert.Equal(t, tt.wantStorage, status.Storage)
			if tt.wantStorage == "memory" {
				assert.NotEmpty(t, status.Warning)
				assert.False(t, status.Durable())
			} else {
				assert.True(t, status.Verified)
			}

			got, res := st.Load(ctx, "data/featured", decodeStrings)
			assert.Equal(t, tt.wantSource, res.Source)
			if diff := cmp.Diff(string(payload), string(got)); diff != "" {
				t.Errorf("Load mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTiered_LoadFallsThroughTiers(t *testing.T) {
	ctx := context.Background()
	file := mocks.NewMockBackend("file")
	blob := mocks.NewMockBackend("blob")
	file.Data["data/apps"] = []byte(`{not json`)
	blob.Data["data/apps"] = []byte(`["from-blob"]`)

	st := newTiered(file, blob)
	got, res := st.Load(ctx, "data/apps", decodeStrings)

	assert.Equal(t, "blob", res.Source)
	assert.Equal(t, `["from-blob"]`, string(got))
}

func TestTiered_LoadServesCacheWhenTiersFail(t *testing.T) {
	ctx := context.Background()
	file := mocks.NewMockBackend("file")
	file.Data["data/events"] = []byte(`["e1"]`)
	st := newTiered(file)

	_, res := st.Load(ctx, "data/events", decodeStrings)
	require.Equal(t, "file", res.Source)

	file.SetErrors(mocks.ErrUnavailable, mocks.ErrUnavailable)
	got, res := st.Load(ctx, "data/events", decodeStrings)
	assert.Equal(t, "memory", res.Source)
	assert.False(t, res.Dirty)
	assert.Equal(t, `["e1"]`, string(got))
}

func TestTiered_LoadEmpty(t *testing.T) {
	st := newTiered(
		mocks.NewFailingBackend("file", mocks.ErrUnavailable),
		mocks.NewFailingBackend("blob", mocks.ErrUnavailable),
	)
	got, res := st.Load(context.Background(), "data/apps", nil)
	assert.Nil(t, got)
	assert.Equal(t, storage.SourceEmpty, res.Source)
}

func TestTiered_DirtyEntryWinsOverStaleTier(t *testing.T) {
	ctx := context.Background()
	file := mocks.NewMockBackend("file")
	file.Data["data/featured"] = []byte(`["old"]`)
	st := newTiered(file)

	file.WriteError = mocks.ErrUnavailable
	status := st.Save(ctx, "data/featured", []byte(`["new"]`))
	require.Equal(t, "memory", status.Storage)
	assert.Equal(t, []string{"data/featured"}, st.Dirty())

	got, res := st.Load(ctx, "data/featured", decodeStrings)
	assert.True(t, res.Dirty)
	assert.Equal(t, `["new"]`, string(got))
}

func TestTiered_RetriesReuseIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	file := mocks.NewMockBackend("file")
	file.FailWrites = 2

	st := newTiered(file)
	status := st.Save(ctx, "data/apps", []byte(`[]`))

	assert.Equal(t, "file", status.Storage)
	require.Len(t, file.IdempotencyKeys, 3)
	assert.Equal(t, file.IdempotencyKeys[0], file.IdempotencyKeys[1])
	assert.Equal(t, file.IdempotencyKeys[0], file.IdempotencyKeys[2])
}

func TestTiered_FlushPersistsDirtyEntries(t *testing.T) {
	ctx := context.Background()
	file := mocks.NewFailingBackend("file", mocks.ErrUnavailable)
	st := newTiered(file)

	st.Save(ctx, "data/contents", []byte(`["c"]`))
	res := st.Flush(ctx)
	assert.Equal(t, 0, res.Flushed)
	assert.Equal(t, 1, res.Remaining)

	file.SetErrors(nil, nil)
	res = st.Flush(ctx)
	assert.Equal(t, 1, res.Flushed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, `["c"]`, string(file.Data["data/contents"]))
	assert.Empty(t, st.Dirty())
}

func TestTiered_LaggingTierIsSkippedUntilCaughtUp(t *testing.T) {
	ctx := context.Background()
	file := mocks.NewMockBackend("file")
	blob := mocks.NewMockBackend("blob")
	file.Data["data/apps"] = []byte(`["stale"]`)
	st := newTiered(file, blob)

	file.WriteError = mocks.ErrUnavailable
	status := st.Save(ctx, "data/apps", []byte(`["fresh"]`))
	require.Equal(t, "blob", status.Storage)

	// The file tier still holds the old copy and must not shadow the write
	got, res := st.Load(ctx, "data/apps", decodeStrings)
	assert.Equal(t, "blob", res.Source)
	assert.Equal(t, `["fresh"]`, string(got))

	file.WriteError = nil
	flushed := st.Flush(ctx)
	assert.Equal(t, 1, flushed.CaughtUp)
	assert.Equal(t, `["fresh"]`, string(file.Data["data/apps"]))

	_, res = st.Load(ctx, "data/apps", decodeStrings)
	assert.Equal(t, "file", res.Source)
}

func TestTiered_UnverifiedWriteWarns(t *testing.T) {
	ctx := context.Background()
	blob := mocks.NewMockBackend("blob")
	st := newTiered(blob)

	blob.ReadError = mocks.ErrUnavailable
	status := st.Save(ctx, "data/events", []byte(`[]`))
	assert.Equal(t, "blob", status.Storage)
	assert.False(t, status.Verified)
	assert.NotEmpty(t, status.Warning)
	assert.True(t, status.Durable())
}

func TestTiered_WithBlobBackend(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryBlobStore()
	st := newTiered(storage.NewBlobBackend(store, 3, zerolog.Nop()))

	for _, v := range []string{`["1"]`, `["2"]`, `["3"]`, `["4"]`} {
		status := st.Save(ctx, "data/featured", []byte(v))
		require.True(t, status.Verified)
	}
	got, res := st.Load(ctx, "data/featured", decodeStrings)
	assert.Equal(t, "blob", res.Source)
	assert.Equal(t, `["4"]`, string(got))
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, []string{"blob"}, st.Tiers())
}

func TestTiered_RetriesTimedOutWrite(t *testing.T) {
	ctx := context.Background()
	file := mocks.NewMockBackend("file")
	file.HangWrites = 1

	st := storage.NewTiered(storage.TieredConfig{
		Backends: []storage.Backend{file},
		Retry:    quickRetry(),
		Timeout:  20 * time.Millisecond,
	}, zerolog.Nop())
	status := st.Save(ctx, "data/events", []byte(`["1"]`))

	assert.Equal(t, "file", status.Storage)
	assert.Equal(t, 2, file.WriteCalls)
	assert.Empty(t, st.Dirty())
}

// overwritingBackend stores whatever another writer put last, not what it
// was given
type overwritingBackend struct {
	*mocks.MockBackend
	winner []byte
}

func (o *overwritingBackend) Write(ctx context.Context, key string, data []byte, opts storage.WriteOptions) error {
	return o.MockBackend.Write(ctx, key, o.winner, opts)
}

func TestTiered_VerifyMismatchReconcilesCache(t *testing.T) {
	ctx := context.Background()
	file := &overwritingBackend{MockBackend: mocks.NewMockBackend("file"), winner: []byte(`["other"]`)}
	st := newTiered(file)

	status := st.Save(ctx, "data/featured", []byte(`["mine"]`))
	assert.Equal(t, "file", status.Storage)
	assert.False(t, status.Verified)
	assert.NotEmpty(t, status.Warning)

	// with every tier down the cache answers, and it holds the tier's copy
	file.SetErrors(mocks.ErrUnavailable, mocks.ErrUnavailable)
	data, res := st.Load(ctx, "data/featured", decodeStrings)
	assert.Equal(t, storage.SourceMemory, res.Source)
	assert.JSONEq(t, `["other"]`, string(data))
}

func TestTiered_InvalidCacheEntryIsEvicted(t *testing.T) {
	ctx := context.Background()
	cache := storage.NewMemoryCache()
	cache.Set(ctx, "data/apps", []byte(`{not json`))
	st := storage.NewTiered(storage.TieredConfig{
		Backends: []storage.Backend{mocks.NewFailingBackend("file", mocks.ErrUnavailable)},
		Cache:    cache,
		Retry:    quickRetry(),
	}, zerolog.Nop())

	_, res := st.Load(ctx, "data/apps", decodeStrings)
	assert.Equal(t, storage.SourceEmpty, res.Source)
	_, ok := cache.Get(ctx, "data/apps")
	assert.False(t, ok)
}
