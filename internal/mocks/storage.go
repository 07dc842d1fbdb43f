package mocks

import (
	"context"
	"sync"

	"github.com/appgallery-cms/internal/storage"
)

// MockBackend is an in-memory storage.Backend with injectable failures
type MockBackend struct {
	mu sync.Mutex

	TierName string
	Data     map[string][]byte

	// ReadError and WriteError fail every call while set
	ReadError  error
	WriteError error
	// FailWrites fails the next n writes with WriteError (or a generic error)
	FailWrites int
	// HangWrites blocks the next n writes until their context is done
	HangWrites int

	ReadCalls       int
	WriteCalls      int
	IdempotencyKeys []string
}

var _ storage.Backend = (*MockBackend)(nil)

// NewMockBackend creates an empty backend reporting name
func NewMockBackend(name string) *MockBackend {
	return &MockBackend{TierName: name, Data: make(map[string][]byte)}
}

// NewFailingBackend creates a backend whose reads and writes always fail
func NewFailingBackend(name string, err error) *MockBackend {
	b := NewMockBackend(name)
	b.ReadError = err
	b.WriteError = err
	return b
}

func (m *MockBackend) Name() string { return m.TierName }

func (m *MockBackend) Read(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadCalls++
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	data, ok := m.Data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MockBackend) Write(ctx context.Context, key string, data []byte, opts storage.WriteOptions) error {
	m.mu.Lock()
	m.WriteCalls++
	m.IdempotencyKeys = append(m.IdempotencyKeys, opts.IdempotencyKey)
	if m.HangWrites > 0 {
		m.HangWrites--
		m.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	defer m.mu.Unlock()
	if m.FailWrites > 0 {
		m.FailWrites--
		if m.WriteError != nil {
			return m.WriteError
		}
		return errTransient
	}
	if m.WriteError != nil {
		return m.WriteError
	}
	m.Data[key] = append([]byte(nil), data...)
	return nil
}

// SetErrors replaces both injected errors
func (m *MockBackend) SetErrors(readErr, writeErr error) {
	m.mu.Lock()
	m.ReadError = readErr
	m.WriteError = writeErr
	m.mu.Unlock()
}

// MockBlobStore wraps storage.MemoryBlobStore with per-operation failures
type MockBlobStore struct {
	*storage.MemoryBlobStore

	mu   sync.Mutex
	errs map[string]error

	Deleted []string
}

var _ storage.BlobStore = (*MockBlobStore)(nil)

// NewMockBlobStore creates an empty blob store
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{
		MemoryBlobStore: storage.NewMemoryBlobStore(),
		errs:            make(map[string]error),
	}
}

// SetErr makes every call of op ("Put", "List", "Get", "Delete") fail with
// err until cleared with a nil err
func (m *MockBlobStore) SetErr(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, op)
		return
	}
	m.errs[op] = err
}

func (m *MockBlobStore) err(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs[op]
}

func (m *MockBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (storage.Object, error) {
	if err := m.err("Put"); err != nil {
		return storage.Object{}, err
	}
	return m.MemoryBlobStore.Put(ctx, key, data, contentType)
}

func (m *MockBlobStore) List(ctx context.Context, prefix string) ([]storage.Object, error) {
	if err := m.err("List"); err != nil {
		return nil, err
	}
	return m.MemoryBlobStore.List(ctx, prefix)
}

func (m *MockBlobStore) Get(ctx context.Context, url string) ([]byte, error) {
	if err := m.err("Get"); err != nil {
		return nil, err
	}
	return m.MemoryBlobStore.Get(ctx, url)
}

func (m *MockBlobStore) Delete(ctx context.Context, url string) error {
	if err := m.err("Delete"); err != nil {
		return err
	}
	m.mu.Lock()
	m.Deleted = append(m.Deleted, url)
	m.mu.Unlock()
	return m.MemoryBlobStore.Delete(ctx, url)
}
