package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
)

// MockReviewQueueStore is an in-memory ReviewQueueStore for testing.
type MockReviewQueueStore struct {
	mu            sync.RWMutex
	items         map[string]*domain.QueueItem
	byFingerprint map[string]string // fingerprint -> item id

	// EnqueueErr, when set, is returned by Enqueue.
	EnqueueErr error
	// TransitionErr, when set, is returned by Transition.
	TransitionErr error
}

// NewMockReviewQueueStore creates a new MockReviewQueueStore.
func NewMockReviewQueueStore() *MockReviewQueueStore {
	return &MockReviewQueueStore{
		items:         make(map[string]*domain.QueueItem),
		byFingerprint: make(map[string]string),
	}
}

func (m *MockReviewQueueStore) Enqueue(ctx context.Context, item *domain.QueueItem) (string, error) {
	if m.EnqueueErr != nil {
		return "", m.EnqueueErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byFingerprint[item.Fingerprint]; ok {
		return existing, nil
	}

	cp := *item
	if cp.ID == "" {
		cp.ID = domain.GenerateID()
	}
	cp.Status = domain.StatusPendingReview
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now

	m.items[cp.ID] = &cp
	m.byFingerprint[cp.Fingerprint] = cp.ID
	return cp.ID, nil
}

func (m *MockReviewQueueStore) Get(ctx context.Context, id string) (*domain.QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (m *MockReviewQueueStore) ListPending(ctx context.Context) ([]*domain.QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.QueueItem
	for _, item := range m.items {
		if item.Status == domain.StatusPendingReview {
			cp := *item
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MockReviewQueueStore) List(ctx context.Context, status domain.ItemStatus, limit, offset int) ([]*domain.QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.QueueItem
	for _, item := range m.items {
		if status != "" && item.Status != status {
			continue
		}
		cp := *item
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []*domain.QueueItem{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (m *MockReviewQueueStore) Transition(ctx context.Context, id string, newStatus domain.ItemStatus, fields driven.TransitionFields) (*domain.QueueItem, error) {
	if m.TransitionErr != nil {
		return nil, m.TransitionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !domain.CanTransition(item.Status, newStatus) {
		return nil, domain.ErrInvalidTransition
	}

	now := time.Now()
	item.Status = newStatus
	item.UpdatedAt = now

	switch newStatus {
	case domain.StatusApproved, domain.StatusRejected:
		decidedAt := now
		if fields.DecidedAt != nil {
			decidedAt = *fields.DecidedAt
		}
		item.DecidedAt = &decidedAt
	case domain.StatusPublished:
		publishedAt := now
		if fields.PublishedAt != nil {
			publishedAt = *fields.PublishedAt
		}
		item.PublishedAt = &publishedAt
	}

	if fields.RejectionReason != "" {
		item.RejectionReason = fields.RejectionReason
	}
	if fields.ExternalDocumentID != "" {
		item.ExternalDocumentID = fields.ExternalDocumentID
	}
	if fields.PublishError != "" {
		item.PublishError = fields.PublishError
	}
	if fields.ClearPublishError {
		item.PublishError = ""
	}
	if fields.MatchedPatientID != "" {
		item.MatchedPatientID = fields.MatchedPatientID
	}

	cp := *item
	return &cp, nil
}

func (m *MockReviewQueueStore) UpdatePublishError(ctx context.Context, id string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	item.PublishError = message
	item.UpdatedAt = time.Now()
	return nil
}

func (m *MockReviewQueueStore) Ping(ctx context.Context) error {
	return nil
}

// Count returns the total number of stored items (test helper).
func (m *MockReviewQueueStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Seed inserts an item directly, bypassing idempotency (test helper).
// SetCreatedAt backdates a stored item (test helper).
func (m *MockReviewQueueStore) SetCreatedAt(id string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		item.CreatedAt = at
	}
}

func (m *MockReviewQueueStore) Seed(item *domain.QueueItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *item
	m.items[cp.ID] = &cp
	if cp.Fingerprint != "" {
		m.byFingerprint[cp.Fingerprint] = cp.ID
	}
}
