package mocks

import (
	"context"
	"sync"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
)

// MockMailbox is an in-memory Mailbox for testing.
type MockMailbox struct {
	mu        sync.Mutex
	messages  map[string][]domain.SourceDocument
	order     []string
	processed map[string]bool

	FetchErr error
}

// NewMockMailbox creates a new MockMailbox.
func NewMockMailbox() *MockMailbox {
	return &MockMailbox{
		messages:  make(map[string][]domain.SourceDocument),
		processed: make(map[string]bool),
	}
}

// Deliver adds a message under key (test helper).
func (m *MockMailbox) Deliver(key string, docs ...domain.SourceDocument) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[key] = docs
	m.order = append(m.order, key)
}

func (m *MockMailbox) ListNew(ctx context.Context, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, key := range m.order {
		if m.processed[key] {
			continue
		}
		out = append(out, key)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockMailbox) Fetch(ctx context.Context, key string) ([]domain.SourceDocument, error) {
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	docs, ok := m.messages[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return docs, nil
}

func (m *MockMailbox) MarkProcessed(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[key] = true
	return nil
}

// IsProcessed reports whether a key was marked processed (test helper).
func (m *MockMailbox) IsProcessed(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed[key]
}
