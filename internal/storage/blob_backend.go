package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BlobBackend is the hosted tier. Every save becomes a new object under
// "<key>/" and reads take the most recently uploaded one, so a slow listing
// can at worst serve the previous version.
type BlobBackend struct {
	store BlobStore
	keep  int
	log   zerolog.Logger
}

// NewBlobBackend wraps store. keep is the number of versions retained per
// key; values below 1 keep a single version.
func NewBlobBackend(store BlobStore, keep int, log zerolog.Logger) *BlobBackend {
	if keep < 1 {
		keep = 1
	}
	return &BlobBackend{
		store: store,
		keep:  keep,
		log:   log.With().Str("component", "blob_backend").Logger(),
	}
}

// Name implements Backend
func (b *BlobBackend) Name() string { return "blob" }

// Read fetches the newest version of key
func (b *BlobBackend) Read(ctx context.Context, key string) ([]byte, error) {
	versions, err := b.versions(ctx, key)
	if err != nil {
		return nil, err
	}
	latest, ok := Latest(versions)
	if !ok {
		return nil, ErrNotFound
	}

	data, err := b.store.Get(ctx, latest.URL)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}
	return data, nil
}

// Write puts a new version named after the idempotency key, then prunes old
// versions. Pruning failures are logged, never returned.
func (b *BlobBackend) Write(ctx context.Context, key string, data []byte, opts WriteOptions) error {
	name := opts.IdempotencyKey
	if name == "" {
		name = uuid.NewString()
	}

	obj, err := b.store.Put(ctx, versionKey(key, name), data, "application/json")
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	b.prune(ctx, key, obj.Key)
	return nil
}

func (b *BlobBackend) versions(ctx context.Context, key string) ([]Object, error) {
	objects, err := b.store.List(ctx, key+"/")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", key, err)
	}
	out := objects[:0]
	for _, obj := range objects {
		// Only direct children; "data/apps/" must not pick up nested prefixes
		rest := strings.TrimPrefix(obj.Key, key+"/")
		if strings.HasSuffix(rest, ".json") && !strings.Contains(rest, "/") {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (b *BlobBackend) prune(ctx context.Context, key, written string) {
	versions, err := b.versions(ctx, key)
	if err != nil {
		b.log.Warn().Err(err).Str("key", key).Msg("Failed to list versions for pruning")
		return
	}

	sorted := SortNewestFirst(versions)
	kept := 0
	for _, obj := range sorted {
		if obj.Key == written || kept < b.keep-1 {
			if obj.Key != written {
				kept++
			}
			continue
		}
		if err := b.store.Delete(ctx, obj.URL); err != nil {
			b.log.Warn().Err(err).Str("object", obj.Key).Msg("Failed to prune old version")
		}
	}
}

func versionKey(key, name string) string {
	return key + "/" + name + ".json"
}
