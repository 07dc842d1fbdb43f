package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/appgallery-cms/internal/config"
	"github.com/appgallery-cms/internal/database"
	"github.com/appgallery-cms/internal/storage"
)

// storageStack is the assembled tier layout with whatever needs closing
type storageStack struct {
	Tiered  *storage.Tiered
	Blobs   storage.BlobStore
	closers []func() error
	log     zerolog.Logger
}

// Close releases every opened resource in reverse order
func (s *storageStack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close storage resource")
		}
	}
}

// buildStorage wires the tiers in read order: the local disk tier (unless
// hosted), then the blob tier, then the cache.
func buildStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storageStack, error) {
	sc := cfg.Storage
	st := &storageStack{log: log}
	var (
		backends []storage.Backend
		disk     storage.Backend
	)

	if !sc.Hosted {
		var err error
		disk, err = diskBackend(sc)
		if err != nil {
			st.Close()
			return nil, err
		}
		if c, ok := disk.(interface{ Close() error }); ok {
			st.closers = append(st.closers, c.Close)
		}
		backends = append(backends, disk)
	}

	blobs, err := blobStore(ctx, cfg, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	if blobs != nil {
		backends = append(backends, storage.NewBlobBackend(blobs, sc.BlobKeepVersions, log))
		st.Blobs = blobs
	} else {
		log.Warn().Msg("No blob backend configured; uploads are kept in process memory")
		st.Blobs = storage.NewMemoryBlobStore()
	}

	var cache storage.Cache
	if sc.CacheBackend == "redis" {
		rc, err := storage.NewRedisCache(ctx, storage.RedisConfig{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
			TTL:      sc.CacheTTL,
		}, log)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		st.closers = append(st.closers, rc.Close)
		cache = rc
	}

	retry := storage.DefaultRetryPolicy()
	retry.MaxAttempts = sc.RetryAttempts
	retry.InitialBackoff = sc.RetryBackoff
	retry.MaxBackoff = sc.RetryMaxWait

	st.Tiered = storage.NewTiered(storage.TieredConfig{
		Backends: backends,
		Cache:    cache,
		Retry:    retry,
		Verify:   sc.VerifyWrites,
		Timeout:  sc.RequestTimeout,
	}, log)

	if fb, ok := disk.(*storage.FileBackend); ok && sc.WatchDataDir {
		if err := watchDataDir(ctx, fb, st); err != nil {
			log.Warn().Err(err).Msg("Data directory watch disabled")
		}
	}
	return st, nil
}

// watchDataDir refreshes a collection whenever its file changes on disk
func watchDataDir(ctx context.Context, fb *storage.FileBackend, st *storageStack) error {
	w, err := storage.NewFileWatcher(fb.Root(), func(key string) {
		res := st.Tiered.Refresh(ctx, key)
		st.log.Debug().Str("key", key).Str("source", res.Source).Msg("Collection refreshed from disk")
	}, st.log)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		w.Stop()
		return err
	}
	st.closers = append(st.closers, w.Stop)
	return nil
}

func diskBackend(sc config.StorageConfig) (storage.Backend, error) {
	switch sc.DiskBackend {
	case "bolt":
		b, err := storage.NewBoltBackend(sc.DataDir)
		if err != nil {
			return nil, fmt.Errorf("bolt backend: %w", err)
		}
		return b, nil
	default:
		b, err := storage.NewFileBackend(filepath.Join(sc.DataDir, "collections"))
		if err != nil {
			return nil, fmt.Errorf("file backend: %w", err)
		}
		return b, nil
	}
}

func blobStore(ctx context.Context, cfg *config.Config, st *storageStack) (storage.BlobStore, error) {
	sc := cfg.Storage
	switch sc.BlobBackend {
	case "http":
		return storage.NewHTTPBlobStore(storage.HTTPBlobConfig{BaseURL: sc.BlobURL, PublicURL: sc.BlobPublicURL, Token: sc.BlobToken})
	case "azure":
		return storage.NewAzureBlobStore(ctx, storage.AzureBlobConfig{
			AccountURL:       sc.AzureAccountURL,
			ConnectionString: sc.AzureConnectionString,
			Container:        sc.AzureContainer,
		})
	case "postgres":
		db, err := database.New(&cfg.Database, st.log)
		if err != nil {
			return nil, fmt.Errorf("postgres blob store: %w", err)
		}
		st.closers = append(st.closers, db.Close)
		if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
			return nil, fmt.Errorf("postgres blob store: %w", err)
		}
		return storage.NewPostgresBlobStore(db.DB), nil
	case "memory":
		return storage.NewMemoryBlobStore(), nil
	default:
		return nil, nil
	}
}
