package driving

import (
	"context"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
)

// ApproveRequest carries an operator approval.
type ApproveRequest struct {
	ItemID string

	// PatientID overrides the matched identity when set. Required when the
	// item has no match.
	PatientID string
}

// RejectRequest carries an operator rejection.
type RejectRequest struct {
	ItemID string
	Reason string
}

// ReviewService handles the human decision side of the queue: listing,
// approval, rejection, and inbound notifier callbacks.
type ReviewService interface {
	// Get returns one queue item.
	Get(ctx context.Context, id string) (*domain.QueueItem, error)

	// List returns queue items filtered by status (empty means all),
	// newest first.
	List(ctx context.Context, status domain.ItemStatus, limit, offset int) ([]*domain.QueueItem, error)

	// ListPending returns the open review backlog, oldest first, so the
	// longest-waiting document is handled next.
	ListPending(ctx context.Context) ([]*domain.QueueItem, error)

	// Approve transitions pending_review -> approved and triggers
	// publication. Returns domain.ErrMissingIdentity, leaving the item
	// pending, when no patient identity is resolvable.
	Approve(ctx context.Context, req ApproveRequest) (*domain.QueueItem, error)

	// Reject transitions pending_review -> rejected and releases the blob.
	Reject(ctx context.Context, req RejectRequest) (*domain.QueueItem, error)

	// HandleCallback applies a parsed notifier action (approve, reject, or
	// alternate-identity selection) to its queue item.
	HandleCallback(ctx context.Context, cb driven.ReviewCallback) (*domain.QueueItem, error)

	// DocumentURL returns a time-limited link to the item's document for
	// reviewer inspection, or an empty string for terminal items whose
	// blob is gone.
	DocumentURL(ctx context.Context, id string) (string, error)
}

// PublishService moves approved items into the external record system.
type PublishService interface {
	// Publish uploads an approved item's document and transitions it to
	// published. A failed upload records the error on the item, leaves it
	// approved, and schedules a retry task.
	Publish(ctx context.Context, itemID string) (*domain.QueueItem, error)
}
