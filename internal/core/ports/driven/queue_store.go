package driven

import (
	"context"
	"time"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
)

// TransitionFields carries the status-specific fields applied atomically
// with a queue item transition. Zero values leave the column untouched.
type TransitionFields struct {
	// RejectionReason is persisted on a rejected transition.
	RejectionReason string

	// ExternalDocumentID is persisted on a published transition.
	ExternalDocumentID string

	// PublishError records the last upload failure on an approved item.
	PublishError string

	// ClearPublishError wipes a previously recorded upload failure.
	ClearPublishError bool

	// MatchedPatientID applies an operator identity override at decision time.
	MatchedPatientID string

	// DecidedAt / PublishedAt override the transition timestamp used for the
	// per-edge column; the store uses time.Now() when nil.
	DecidedAt   *time.Time
	PublishedAt *time.Time
}

// ReviewQueueStore is the durable work-item store at the centre of the
// pipeline. All state transitions pass through it; it guarantees at most
// one winning transition per (item, target state) pair under concurrency.
type ReviewQueueStore interface {
	// Enqueue persists a new item in pending_review. It is idempotent on
	// item.Fingerprint: if an item with the same fingerprint exists in any
	// state, the existing id is returned and nothing changes.
	Enqueue(ctx context.Context, item *domain.QueueItem) (id string, err error)

	// Get retrieves an item by id. Returns domain.ErrNotFound if unknown.
	Get(ctx context.Context, id string) (*domain.QueueItem, error)

	// ListPending returns all pending_review items, oldest first.
	ListPending(ctx context.Context) ([]*domain.QueueItem, error)

	// List returns items filtered by status (empty status means all),
	// newest first, for the operator dashboard.
	List(ctx context.Context, status domain.ItemStatus, limit, offset int) ([]*domain.QueueItem, error)

	// Transition atomically moves an item to newStatus, stamps the relevant
	// timestamp, and applies fields. Fails with domain.ErrInvalidTransition
	// when the edge is illegal, domain.ErrNotFound when id is unknown.
	// Concurrent transitions on the same item serialize; exactly one wins.
	Transition(ctx context.Context, id string, newStatus domain.ItemStatus, fields TransitionFields) (*domain.QueueItem, error)

	// UpdatePublishError records an upload failure on an approved item
	// without changing its status.
	UpdatePublishError(ctx context.Context, id string, message string) error

	// Ping checks if the store backend is healthy.
	Ping(ctx context.Context) error
}
