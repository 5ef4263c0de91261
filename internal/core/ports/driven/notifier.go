package driven

import (
	"context"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
)

// ReviewNotifier pushes a queue item to the human approval channel.
// Notification is fire-and-forget: a failed notify never blocks enqueue,
// and duplicate notifications are tolerable (the review service guards
// against them with a notify-once lock where one is available).
type ReviewNotifier interface {
	// NotifyForApproval announces a pending item to reviewers and returns
	// a channel-specific notification id.
	NotifyForApproval(ctx context.Context, item *domain.QueueItem) (notificationID string, err error)
}

// ReviewCallback is a parsed inbound reviewer action.
type ReviewCallback struct {
	ItemID   string
	Decision domain.Decision

	// SelectionIndex is the zero-based index into the item's TopMatches
	// when the reviewer picked an alternate identity; -1 otherwise.
	SelectionIndex int
}
