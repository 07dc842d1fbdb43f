package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/appgallery-cms/internal/metrics"
	"github.com/appgallery-cms/internal/models"
)

// Load sources that are not backend names
const (
	SourceMemory = "memory"
	SourceEmpty  = "empty"
)

const memoryOnlyWarning = "persistent storage unavailable; changes are held in memory and may be lost on restart"

// LoadResult reports where a Load found its data
type LoadResult struct {
	Source string `json:"source"`
	// Dirty is set when the data has not reached a persistent tier yet
	Dirty bool `json:"dirty,omitempty"`
}

// FlushResult summarises a Flush run
type FlushResult struct {
	Flushed   int `json:"flushed"`
	Remaining int `json:"remaining"`
	CaughtUp  int `json:"caughtUp"`
}

// TieredConfig wires the tiers together
type TieredConfig struct {
	// Backends are tried in order for both reads and writes
	Backends []Backend
	Cache    Cache
	Retry    RetryPolicy
	// Verify re-reads the accepting tier after each write
	Verify bool
	// Timeout bounds a single tier call; zero means no extra bound
	Timeout time.Duration
}

// Tiered is the multi-tier document store behind every collection. Reads
// fall through the backends, then the cache, then an empty result. Writes
// stop at the first backend that accepts them; when none does the data is
// kept in the cache and marked dirty until Flush persists it.
//
// No tier failure is ever returned to the caller.
type Tiered struct {
	backends []Backend
	cache    Cache
	retry    RetryPolicy
	verify   bool
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu    sync.Mutex
	dirty map[string]struct{}
	// accepted holds the index of the backend that took the last write when
	// it was not the first; earlier tiers are skipped on read until caught up
	accepted map[string]int
}

// NewTiered creates a tiered store. A nil cache gets a process-local one.
func NewTiered(cfg TieredConfig, log zerolog.Logger) *Tiered {
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Tiered{
		backends: cfg.Backends,
		cache:    cache,
		retry:    cfg.Retry,
		verify:   cfg.Verify,
		timeout:  cfg.Timeout,
		log:      log.With().Str("component", "tiered_store").Logger(),
		now:      time.Now,
		dirty:    make(map[string]struct{}),
		accepted: make(map[string]int),
	}
}

// Tiers returns the backend names in read order
func (t *Tiered) Tiers() []string {
	names := make([]string, 0, len(t.backends))
	for _, b := range t.backends {
		names = append(names, b.Name())
	}
	return names
}

// Load returns the first usable copy of key. accept validates a candidate
// (typically by decoding it); a rejected candidate counts as a tier failure
// and the next tier is tried. A nil accept takes anything non-empty.
func (t *Tiered) Load(ctx context.Context, key string, accept func([]byte) error) ([]byte, LoadResult) {
	if accept == nil {
		accept = func([]byte) error { return nil }
	}

	if t.isDirty(key) {
		if data, ok := t.cache.Get(ctx, key); ok && accept(data) == nil {
			metrics.TierRead(SourceMemory, "hit")
			return data, LoadResult{Source: SourceMemory, Dirty: true}
		}
	}

	for _, b := range t.backends[t.firstTier(key):] {
		data, err := t.read(ctx, b, key)
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrEmpty):
			metrics.TierRead(b.Name(), "miss")
			t.log.Debug().Str("key", key).Str("tier", b.Name()).Msg("Tier miss")
			continue
		case err != nil:
			metrics.TierRead(b.Name(), "error")
			t.log.Warn().Err(err).Str("key", key).Str("tier", b.Name()).Msg("Tier read failed")
			continue
		}

		if err := accept(data); err != nil {
			metrics.TierRead(b.Name(), "invalid")
			t.log.Warn().Err(err).Str("key", key).Str("tier", b.Name()).Msg("Tier returned unusable data")
			continue
		}

		metrics.TierRead(b.Name(), "hit")
		t.cache.Set(ctx, key, data)
		return data, LoadResult{Source: b.Name()}
	}

	if data, ok := t.cache.Get(ctx, key); ok {
		if err := accept(data); err == nil {
			metrics.TierRead(SourceMemory, "hit")
			return data, LoadResult{Source: SourceMemory}
		}
		metrics.TierRead(SourceMemory, "invalid")
		if !t.isDirty(key) {
			t.cache.Delete(ctx, key)
		}
	} else {
		metrics.TierRead(SourceMemory, "miss")
	}

	return nil, LoadResult{Source: SourceEmpty}
}

// Save persists data under key. The returned status names the tier that
// accepted the write, or "memory" with a warning when none did.
func (t *Tiered) Save(ctx context.Context, key string, data []byte) models.StorageStatus {
	t.cache.Set(ctx, key, data)
	opts := WriteOptions{IdempotencyKey: t.idempotencyKey()}

	for i, b := range t.backends {
		if err := t.write(ctx, b, key, data, opts); err != nil {
			t.log.Warn().Err(err).Str("key", key).Str("tier", b.Name()).Msg("Tier write failed")
			continue
		}

		t.markPersisted(key, i)
		status := models.StorageStatus{Storage: b.Name()}
		if t.verify {
			t.verifyWrite(ctx, b, key, data, &status)
		}
		metrics.Saved(key, b.Name())
		t.log.Debug().Str("key", key).Str("tier", b.Name()).Bool("verified", status.Verified).Msg("Saved")
		return status
	}

	t.markDirty(key)
	metrics.Saved(key, SourceMemory)
	t.log.Error().Str("key", key).Msg("All persistent tiers failed; holding data in memory")
	return models.StorageStatus{Storage: SourceMemory, Warning: memoryOnlyWarning}
}

// Flush retries every dirty key and copies keys that were written past a
// failing tier back into the earlier tiers.
func (t *Tiered) Flush(ctx context.Context) FlushResult {
	var res FlushResult

	for _, key := range t.Dirty() {
		if ctx.Err() != nil {
			break
		}
		data, ok := t.cache.Get(ctx, key)
		if !ok {
			t.log.Error().Str("key", key).Msg("Dirty entry vanished from cache; data lost")
			t.clearDirty(key)
			continue
		}
		if t.Save(ctx, key, data).Durable() {
			res.Flushed++
		}
	}

	for key, idx := range t.lagging() {
		if ctx.Err() != nil {
			break
		}
		data, ok := t.cache.Get(ctx, key)
		if !ok {
			continue
		}
		opts := WriteOptions{IdempotencyKey: t.idempotencyKey()}
		for i := 0; i < idx; i++ {
			if err := t.write(ctx, t.backends[i], key, data, opts); err != nil {
				t.log.Debug().Err(err).Str("key", key).Str("tier", t.backends[i].Name()).Msg("Tier still lagging")
				continue
			}
			t.markPersisted(key, i)
			res.CaughtUp++
			break
		}
	}

	res.Remaining = len(t.Dirty())
	return res
}

// Refresh re-reads key through the tiers so the cache follows a change made
// outside the store. Keys held only in memory are left alone.
func (t *Tiered) Refresh(ctx context.Context, key string) LoadResult {
	if t.isDirty(key) {
		return LoadResult{Source: SourceMemory, Dirty: true}
	}
	_, res := t.Load(ctx, key, func(data []byte) error {
		if !json.Valid(data) {
			return fmt.Errorf("invalid JSON document")
		}
		return nil
	})
	return res
}

// Dirty returns the keys held only in memory, sorted
func (t *Tiered) Dirty() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.dirty))
	for k := range t.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t *Tiered) read(ctx context.Context, b Backend, key string) ([]byte, error) {
	ctx, cancel := t.tierContext(ctx)
	defer cancel()
	return b.Read(ctx, key)
}

func (t *Tiered) write(ctx context.Context, b Backend, key string, data []byte, opts WriteOptions) error {
	policy := t.retry
	policy.OnRetry = func(attempt int, err error) {
		metrics.Retried(b.Name())
		t.log.Debug().Err(err).Str("key", key).Str("tier", b.Name()).Int("attempt", attempt).Msg("Retrying write")
	}
	return policy.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := t.tierContext(ctx)
		defer cancel()
		return b.Write(ctx, key, data, opts)
	})
}

// verifyWrite reads key back from b. When b returns a different document
// (another writer got there last) the cache takes what b holds; when the
// read fails the cache keeps data and the status carries a warning.
func (t *Tiered) verifyWrite(ctx context.Context, b Backend, key string, data []byte, status *models.StorageStatus) {
	got, err := t.read(ctx, b, key)
	if err != nil {
		t.log.Warn().Err(err).Str("key", key).Str("tier", b.Name()).Msg("Read-back failed")
		status.Warning = fmt.Sprintf("write to %s could not be read back yet", b.Name())
		return
	}
	if bytes.Equal(bytes.TrimSpace(got), bytes.TrimSpace(data)) {
		status.Verified = true
		return
	}
	t.log.Warn().Str("key", key).Str("tier", b.Name()).Msg("Read-back differs from write; cache follows the tier")
	t.cache.Set(ctx, key, got)
	status.Warning = fmt.Sprintf("%s returned a different version than was written; reload before editing", b.Name())
}

func (t *Tiered) tierContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.timeout)
}

// idempotencyKey sorts by creation time, so blob version names stay ordered
// even when the store reports coarse upload times
func (t *Tiered) idempotencyKey() string {
	return fmt.Sprintf("%019d-%s", t.now().UnixNano(), uuid.NewString())
}

func (t *Tiered) isDirty(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.dirty[key]
	return ok
}

func (t *Tiered) markDirty(key string) {
	t.mu.Lock()
	t.dirty[key] = struct{}{}
	n := len(t.dirty)
	t.mu.Unlock()
	metrics.SetDirty(n)
}

func (t *Tiered) clearDirty(key string) {
	t.mu.Lock()
	delete(t.dirty, key)
	n := len(t.dirty)
	t.mu.Unlock()
	metrics.SetDirty(n)
}

func (t *Tiered) markPersisted(key string, idx int) {
	t.mu.Lock()
	delete(t.dirty, key)
	if idx == 0 {
		delete(t.accepted, key)
	} else {
		t.accepted[key] = idx
	}
	n := len(t.dirty)
	t.mu.Unlock()
	metrics.SetDirty(n)
}

func (t *Tiered) firstTier(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accepted[key]
}

func (t *Tiered) lagging() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.accepted))
	for k, v := range t.accepted {
		out[k] = v
	}
	return out
}
