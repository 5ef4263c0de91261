package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
)

// MockBlobStore is an in-memory BlobStore for testing.
type MockBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	// DeleteErr, when set, is returned by Delete.
	DeleteErr error

	// PresignErr, when set, is returned by PresignedURL.
	PresignErr error

	// Deleted records every key passed to Delete, in order.
	Deleted []string
}

// NewMockBlobStore creates a new MockBlobStore.
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{blobs: make(map[string][]byte)}
}

func (m *MockBlobStore) Put(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.blobs[key] = cp
	return nil
}

func (m *MockBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, domain.ErrBlobMissing
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *MockBlobStore) Delete(ctx context.Context, key string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	m.Deleted = append(m.Deleted, key)
	return nil
}

func (m *MockBlobStore) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if m.PresignErr != nil {
		return "", m.PresignErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.blobs[key]; !ok {
		return "", domain.ErrBlobMissing
	}
	return fmt.Sprintf("https://blobs.test/%s", key), nil
}

// Has reports whether a key is currently stored (test helper).
func (m *MockBlobStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[key]
	return ok
}
