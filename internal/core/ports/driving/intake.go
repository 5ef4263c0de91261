package driving

import (
	"context"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
)

// IntakeResult summarizes one source document's trip through the pipeline.
type IntakeResult struct {
	// ItemIDs lists the queue items created or re-found for this document,
	// in segment order.
	ItemIDs []string

	// Enqueued counts items newly created (re-delivered duplicates excluded).
	Enqueued int

	// Segments is the number of patient slices produced after fallback.
	Segments int

	// ExtractionFailed is set when no text could be recovered and the
	// document went to review whole under the unknown-patient name.
	ExtractionFailed bool
}

// IntakeService ingests inbound documents: extract, segment, split, match,
// and enqueue for review.
type IntakeService interface {
	// IngestDocument runs the full pipeline for one source document.
	// It never drops a document: failures downstream of extraction degrade
	// to an unattributed whole-document queue item.
	IngestDocument(ctx context.Context, doc *domain.SourceDocument) (*IntakeResult, error)

	// PollMailbox drains unprocessed mailbox messages once, running
	// IngestDocument on every attachment. Returns the number of messages
	// handled.
	PollMailbox(ctx context.Context) (int, error)
}
