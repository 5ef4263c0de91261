package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.ReviewService = (*ReviewService)(nil)

// ReviewService applies operator decisions to queue items.
type ReviewService struct {
	queueStore driven.ReviewQueueStore
	blobStore  driven.BlobStore
	publisher  driving.PublishService
	logger     *slog.Logger
}

// ReviewServiceConfig holds dependencies for ReviewService.
type ReviewServiceConfig struct {
	QueueStore driven.ReviewQueueStore
	BlobStore  driven.BlobStore
	Publisher  driving.PublishService
	Logger     *slog.Logger
}

// NewReviewService creates a new review service.
func NewReviewService(cfg ReviewServiceConfig) *ReviewService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewService{
		queueStore: cfg.QueueStore,
		blobStore:  cfg.BlobStore,
		publisher:  cfg.Publisher,
		logger:     logger,
	}
}

// Get returns one queue item.
func (s *ReviewService) Get(ctx context.Context, id string) (*domain.QueueItem, error) {
	return s.queueStore.Get(ctx, id)
}

// List returns queue items filtered by status.
func (s *ReviewService) List(ctx context.Context, status domain.ItemStatus, limit, offset int) ([]*domain.QueueItem, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	return s.queueStore.List(ctx, status, limit, offset)
}

// ListPending returns the open review backlog, oldest first.
func (s *ReviewService) ListPending(ctx context.Context) ([]*domain.QueueItem, error) {
	return s.queueStore.ListPending(ctx)
}

// Approve transitions pending_review -> approved and triggers publication.
// The identity check happens before the transition so a missing identity
// leaves the item pending, not half-approved.
func (s *ReviewService) Approve(ctx context.Context, req driving.ApproveRequest) (*domain.QueueItem, error) {
	item, err := s.queueStore.Get(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}

	patientID := item.ResolvedPatientID(req.PatientID)
	if patientID == "" {
		return nil, fmt.Errorf("approve %s: %w", req.ItemID, domain.ErrMissingIdentity)
	}

	fields := driven.TransitionFields{}
	if req.PatientID != "" && req.PatientID != item.MatchedPatientID {
		fields.MatchedPatientID = req.PatientID
	}

	item, err = s.queueStore.Transition(ctx, req.ItemID, domain.StatusApproved, fields)
	if err != nil {
		return nil, err
	}

	s.logger.Info("item approved", "item_id", item.ID, "patient_id", patientID)

	// Publication happens inline; a failed upload is recorded on the item
	// and retried by the worker, so approval itself never rolls back.
	published, err := s.publisher.Publish(ctx, item.ID)
	if err != nil {
		s.logger.Warn("publish after approval failed, retry scheduled",
			"item_id", item.ID, "error", err)
		return item, nil
	}
	return published, nil
}

// Reject transitions pending_review -> rejected and releases the blob.
func (s *ReviewService) Reject(ctx context.Context, req driving.RejectRequest) (*domain.QueueItem, error) {
	item, err := s.queueStore.Transition(ctx, req.ItemID, domain.StatusRejected, driven.TransitionFields{
		RejectionReason: req.Reason,
	})
	if err != nil {
		return nil, err
	}

	// Transition first, blob second. If the delete fails the worst case is
	// an orphaned blob, never a dangling item.
	if err := s.blobStore.Delete(ctx, item.BlobKey); err != nil {
		s.logger.Warn("blob delete after rejection failed",
			"item_id", item.ID, "blob_key", item.BlobKey, "error", err)
	}

	s.logger.Info("item rejected", "item_id", item.ID, "reason", req.Reason)
	return item, nil
}

// HandleCallback applies a parsed notifier action to its queue item.
func (s *ReviewService) HandleCallback(ctx context.Context, cb driven.ReviewCallback) (*domain.QueueItem, error) {
	switch cb.Decision {
	case domain.DecisionApprove:
		req := driving.ApproveRequest{ItemID: cb.ItemID}
		if cb.SelectionIndex >= 0 {
			item, err := s.queueStore.Get(ctx, cb.ItemID)
			if err != nil {
				return nil, err
			}
			if cb.SelectionIndex >= len(item.TopMatches) {
				return nil, fmt.Errorf("callback for %s: %w", cb.ItemID, domain.ErrInvalidCallback)
			}
			req.PatientID = item.TopMatches[cb.SelectionIndex].PatientID
		}
		return s.Approve(ctx, req)
	case domain.DecisionReject:
		return s.Reject(ctx, driving.RejectRequest{ItemID: cb.ItemID, Reason: "rejected via review channel"})
	}
	return nil, fmt.Errorf("callback for %s: %w", cb.ItemID, domain.ErrInvalidCallback)
}

// DocumentURL returns a presigned link to the item's stored document.
func (s *ReviewService) DocumentURL(ctx context.Context, id string) (string, error) {
	item, err := s.queueStore.Get(ctx, id)
	if err != nil {
		return "", err
	}
	url, err := s.blobStore.PresignedURL(ctx, item.BlobKey, 15*time.Minute)
	if err != nil {
		// Terminal items released their blob; nothing to show. A backend
		// that cannot mint links at all reports that distinctly.
		if item.Status.IsTerminal() && !errors.Is(err, domain.ErrPresignUnsupported) {
			return "", nil
		}
		return "", fmt.Errorf("document url for %s: %w", id, err)
	}
	return url, nil
}
