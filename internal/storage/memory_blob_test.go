package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBlobStore_UploadTimesIncrease(t *testing.T) {
	store := NewMemoryBlobStore()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	ctx := context.Background()

	a, err := store.Put(ctx, "k/a.json", []byte("1"), "application/json")
	require.NoError(t, err)
	b, err := store.Put(ctx, "k/b.json", []byte("2"), "application/json")
	require.NoError(t, err)

	assert.True(t, b.UploadedAt.After(a.UploadedAt))

	objects, err := store.List(ctx, "k/")
	require.NoError(t, err)
	latest, ok := Latest(objects)
	require.True(t, ok)
	assert.Equal(t, "k/b.json", latest.Key)
}

func TestMemoryBlobStore_GetDelete(t *testing.T) {
	store := NewMemoryBlobStore()
	ctx := context.Background()

	obj, err := store.Put(ctx, "icons/x.png", []byte{1, 2, 3}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "memory://icons/x.png", obj.URL)

	data, err := store.Get(ctx, obj.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	require.NoError(t, store.Delete(ctx, obj.URL))
	assert.ErrorIs(t, store.Delete(ctx, obj.URL), ErrNotFound)
	_, err = store.Get(ctx, obj.URL)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBlobStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryBlobStore().Put(ctx, "k", nil, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSortNewestFirst_TieBreaksByKey(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []Object{
		{Key: "a", UploadedAt: at},
		{Key: "c", UploadedAt: at},
		{Key: "b", UploadedAt: at.Add(time.Second)},
	}
	var got []string
	for _, o := range SortNewestFirst(in) {
		got = append(got, o.Key)
	}
	if diff := cmp.Diff([]string{"b", "c", "a"}, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	_, ok := Latest(nil)
	assert.False(t, ok)
}
