package driven

import (
	"context"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
)

// Mailbox is the inbound document source: raw email objects delivered into
// object storage by the mail/fax gateway. Marking a message processed is
// best effort; a crash between handling and marking only re-delivers the
// message, and the queue store's idempotent enqueue absorbs the duplicate.
type Mailbox interface {
	// ListNew returns the keys of messages not yet marked processed,
	// oldest first, up to limit.
	ListNew(ctx context.Context, limit int) ([]string, error)

	// Fetch downloads and parses one raw message into its sender metadata
	// and document attachments.
	Fetch(ctx context.Context, key string) ([]domain.SourceDocument, error)

	// MarkProcessed moves the message out of the new set.
	MarkProcessed(ctx context.Context, key string) error
}
