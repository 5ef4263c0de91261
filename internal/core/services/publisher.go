package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.PublishService = (*Publisher)(nil)

// Publisher uploads approved documents into the external record system.
// Each item is published at most once: a recorded external document id
// blocks re-publication, and the status transition happens before the
// blob is released so a crash can orphan bytes but never lose a record.
type Publisher struct {
	queueStore   driven.ReviewQueueStore
	blobStore    driven.BlobStore
	recordSystem driven.RecordSystem
	taskQueue    driven.TaskQueue
	maxAttempts  int
	logger       *slog.Logger
}

// PublisherConfig holds dependencies for Publisher.
type PublisherConfig struct {
	QueueStore   driven.ReviewQueueStore
	BlobStore    driven.BlobStore
	RecordSystem driven.RecordSystem

	// TaskQueue is optional; without it a failed upload is only retried
	// when an operator re-approves through the API.
	TaskQueue driven.TaskQueue

	// MaxAttempts bounds publish retries per item (default 5).
	MaxAttempts int

	Logger *slog.Logger
}

// NewPublisher creates a new publisher.
func NewPublisher(cfg PublisherConfig) *Publisher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Publisher{
		queueStore:   cfg.QueueStore,
		blobStore:    cfg.BlobStore,
		recordSystem: cfg.RecordSystem,
		taskQueue:    cfg.TaskQueue,
		maxAttempts:  maxAttempts,
		logger:       logger,
	}
}

// Publish uploads an approved item's document and transitions it to
// published.
func (p *Publisher) Publish(ctx context.Context, itemID string) (*domain.QueueItem, error) {
	item, err := p.queueStore.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if item.ExternalDocumentID != "" {
		return nil, fmt.Errorf("publish %s: %w", itemID, domain.ErrAlreadyPublished)
	}
	if item.Status != domain.StatusApproved {
		return nil, fmt.Errorf("publish %s in status %s: %w", itemID, item.Status, domain.ErrInvalidTransition)
	}
	if item.MatchedPatientID == "" {
		return nil, fmt.Errorf("publish %s: %w", itemID, domain.ErrMissingIdentity)
	}

	docBytes, err := p.blobStore.Get(ctx, item.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", itemID, err)
	}

	filename := PublishFilename(item)

	externalID, err := p.recordSystem.PublishDocument(ctx, item.MatchedPatientID, docBytes, filename)
	if err != nil {
		p.recordFailure(ctx, item, err)
		return nil, fmt.Errorf("publish %s: %w: %v", itemID, domain.ErrPublishFailed, err)
	}

	item, err = p.queueStore.Transition(ctx, itemID, domain.StatusPublished, driven.TransitionFields{
		ExternalDocumentID: externalID,
		ClearPublishError:  true,
	})
	if err != nil {
		// The upload landed but the item is stuck approved. Leave the
		// publish error visible so an operator can reconcile manually
		// instead of a retry double-uploading.
		p.logger.Error("published transition failed after upload",
			"item_id", itemID, "external_id", externalID, "error", err)
		uerr := p.queueStore.UpdatePublishError(ctx, itemID,
			fmt.Sprintf("uploaded as %s but transition failed: %v", externalID, err))
		if uerr != nil {
			p.logger.Error("recording transition failure failed", "item_id", itemID, "error", uerr)
		}
		return nil, fmt.Errorf("publish %s: record transition: %w", itemID, err)
	}

	// Blob released only after the published state is durable.
	if err := p.blobStore.Delete(ctx, item.BlobKey); err != nil {
		p.logger.Warn("blob delete after publish failed",
			"item_id", itemID, "blob_key", item.BlobKey, "error", err)
	}

	p.logger.Info("item published",
		"item_id", itemID, "patient_id", item.MatchedPatientID, "external_id", externalID)
	return item, nil
}

// recordFailure stamps the upload error on the item and schedules a retry.
func (p *Publisher) recordFailure(ctx context.Context, item *domain.QueueItem, cause error) {
	if err := p.queueStore.UpdatePublishError(ctx, item.ID, cause.Error()); err != nil {
		p.logger.Error("recording publish error failed", "item_id", item.ID, "error", err)
	}

	if p.taskQueue == nil {
		return
	}
	task := domain.NewPublishTask(item.ID, p.maxAttempts)
	if err := p.taskQueue.Enqueue(ctx, task); err != nil {
		p.logger.Error("scheduling publish retry failed", "item_id", item.ID, "error", err)
		return
	}
	p.logger.Info("publish retry scheduled", "item_id", item.ID, "task_id", task.ID)
}

// MarkFailed moves an item to failed when no retry can help, such as a
// missing blob or lost identity. The blob, when still present, is kept so
// the document can be inspected and re-driven manually. Exhausted transient
// retries do not come through here; those items stay approved for an
// operator retry.
func (p *Publisher) MarkFailed(ctx context.Context, itemID string, reason string) error {
	_, err := p.queueStore.Transition(ctx, itemID, domain.StatusFailed, driven.TransitionFields{
		PublishError: reason,
	})
	if err != nil {
		return fmt.Errorf("mark %s failed: %w", itemID, err)
	}
	p.logger.Error("item moved to failed", "item_id", itemID, "reason", reason)
	return nil
}

// PublishFilename builds the record system filename for an item:
// Lab_Results_<name>_<collection date>.pdf with commas stripped and
// spaces underscored.
func PublishFilename(item *domain.QueueItem) string {
	name := item.MatchedName
	if name == "" {
		name = item.PatientName
	}
	name = strings.ReplaceAll(name, ",", "")
	name = strings.Join(strings.Fields(name), "_")

	date := item.CollectionDate
	if date == "" {
		date = item.CreatedAt.Format("2006-01-02")
	}
	date = strings.ReplaceAll(date, "/", "-")
	date = strings.Join(strings.Fields(date), "_")

	return fmt.Sprintf("Lab_Results_%s_%s.pdf", name, date)
}
