// Package storage implements the tiered persistence layer: blob store
// adapters, disk and cache tiers, the retry policy and the tiered store that
// ties them together.
package storage

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	// ErrNotFound is returned by tiers and blob stores when a key or URL is absent
	ErrNotFound = errors.New("not found")
	// ErrEmpty is returned when a tier holds a key with no usable content
	ErrEmpty = errors.New("empty document")
)

// Object describes one stored blob
type Object struct {
	Key        string    `json:"pathname"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// BlobStore is a hosted key-addressed object store. It has no
// compare-and-swap: the last Put under a key wins.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (Object, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	Get(ctx context.Context, url string) ([]byte, error)
	Delete(ctx context.Context, url string) error
}

// Latest returns the most recently uploaded object, ties broken by key
func Latest(objects []Object) (Object, bool) {
	if len(objects) == 0 {
		return Object{}, false
	}
	sorted := SortNewestFirst(objects)
	return sorted[0], true
}

// SortNewestFirst returns a copy of objects ordered by upload time, newest first
func SortNewestFirst(objects []Object) []Object {
	sorted := make([]Object, len(objects))
	copy(sorted, objects)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].UploadedAt.Equal(sorted[j].UploadedAt) {
			return sorted[i].Key > sorted[j].Key
		}
		return sorted[i].UploadedAt.After(sorted[j].UploadedAt)
	})
	return sorted
}
