package storage

import (
	"context"
	"strings"
	"sync"
	"time"
)

const memoryScheme = "memory://"

// MemoryBlobStore keeps blobs in process memory. It backs development runs
// and tests.
type MemoryBlobStore struct {
	mu      sync.RWMutex
	objects map[string]memoryBlob
	now     func() time.Time
}

type memoryBlob struct {
	obj  Object
	data []byte
}

// NewMemoryBlobStore creates an empty in-memory blob store
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		objects: make(map[string]memoryBlob),
		now:     time.Now,
	}
}

// Put stores data under key, replacing any previous object
func (s *MemoryBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	uploadedAt := s.now()
	// Keep upload times strictly increasing so "latest" is well defined
	// even when the clock does not advance between puts.
	for _, b := range s.objects {
		if !uploadedAt.After(b.obj.UploadedAt) {
			uploadedAt = b.obj.UploadedAt.Add(time.Microsecond)
		}
	}

	obj := Object{
		Key:        key,
		URL:        memoryScheme + key,
		Size:       int64(len(buf)),
		UploadedAt: uploadedAt,
	}
	s.objects[key] = memoryBlob{obj: obj, data: buf}
	return obj, nil
}

// List returns every object whose key starts with prefix
func (s *MemoryBlobStore) List(ctx context.Context, prefix string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Object
	for key, b := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, b.obj)
		}
	}
	return out, nil
}

// Get returns the data stored at url
func (s *MemoryBlobStore) Get(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.objects[strings.TrimPrefix(url, memoryScheme)]
	if !ok {
		return nil, ErrNotFound
	}
	buf := make([]byte, len(b.data))
	copy(buf, b.data)
	return buf, nil
}

// Delete removes the object at url
func (s *MemoryBlobStore) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimPrefix(url, memoryScheme)
	if _, ok := s.objects[key]; !ok {
		return ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

// Len returns the number of stored objects
func (s *MemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
