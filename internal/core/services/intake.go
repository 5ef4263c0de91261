package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.IntakeService = (*IntakeService)(nil)

// IntakeService runs the ingestion pipeline for inbound documents:
//  1. Extract text and page count
//  2. Segment the text into per-patient page ranges
//  3. Split the document into per-patient slices
//  4. Match each extracted name against the patient directory
//  5. Store each slice and enqueue a review item
//  6. Notify reviewers
//
// Failures degrade instead of dropping work: a document whose text cannot
// be extracted, or whose segmentation comes back empty, still produces one
// unattributed queue item for manual handling.
type IntakeService struct {
	extractor    driven.TextExtractor
	segmenter    driven.PatientSegmenter
	splitter     *Splitter
	matcher      *Matcher
	queueStore   driven.ReviewQueueStore
	blobStore    driven.BlobStore
	notifier     driven.ReviewNotifier
	notifyGuard  driven.DistributedLock
	mailbox      driven.Mailbox
	mailboxBatch int
	logger       *slog.Logger
}

// notifyGuardTTL bounds how long a sent notification suppresses repeats
// for the same item. Redelivered mailbox messages inside the window stay
// silent; after it, a still-pending item may ping reviewers again.
const notifyGuardTTL = 24 * time.Hour

// IntakeServiceConfig holds dependencies for IntakeService.
type IntakeServiceConfig struct {
	Extractor  driven.TextExtractor
	Segmenter  driven.PatientSegmenter
	Splitter   *Splitter
	Matcher    *Matcher
	QueueStore driven.ReviewQueueStore
	BlobStore  driven.BlobStore
	Notifier   driven.ReviewNotifier

	// NotifyGuard deduplicates reviewer notifications across instances
	// and redeliveries. Optional; without it only freshly created items
	// notify.
	NotifyGuard driven.DistributedLock

	// Mailbox is optional; PollMailbox fails without it.
	Mailbox driven.Mailbox

	// MailboxBatch caps messages handled per poll (default 10).
	MailboxBatch int

	Logger *slog.Logger
}

// NewIntakeService creates a new intake service.
func NewIntakeService(cfg IntakeServiceConfig) *IntakeService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batch := cfg.MailboxBatch
	if batch <= 0 {
		batch = 10
	}
	return &IntakeService{
		extractor:    cfg.Extractor,
		segmenter:    cfg.Segmenter,
		splitter:     cfg.Splitter,
		matcher:      cfg.Matcher,
		queueStore:   cfg.QueueStore,
		blobStore:    cfg.BlobStore,
		notifier:     cfg.Notifier,
		notifyGuard:  cfg.NotifyGuard,
		mailbox:      cfg.Mailbox,
		mailboxBatch: batch,
		logger:       logger,
	}
}

// IngestDocument runs the full pipeline for one source document.
func (s *IntakeService) IngestDocument(ctx context.Context, doc *domain.SourceDocument) (*driving.IntakeResult, error) {
	if len(doc.Bytes) == 0 {
		return nil, fmt.Errorf("ingest %s: empty document", doc.Filename)
	}

	result := &driving.IntakeResult{}

	text, pageCount, err := s.extractor.ExtractText(ctx, doc.Bytes)
	if err != nil {
		// The document exists but is unreadable. It still goes to a human.
		s.logger.Warn("text extraction failed, queueing whole document",
			"filename", doc.Filename, "error", err)
		result.ExtractionFailed = true
		text = ""
		pageCount = 1
	}

	var segments []domain.PatientSegment
	if text != "" {
		segments, err = s.segmenter.SegmentPatients(ctx, text)
		if err != nil {
			s.logger.Warn("segmentation failed, falling back to single segment",
				"filename", doc.Filename, "error", err)
			segments = nil
		}
	}

	patientDocs := s.splitter.Split(ctx, doc.Bytes, pageCount, segments)
	result.Segments = len(patientDocs)

	for i, pd := range patientDocs {
		id, created, err := s.enqueueSlice(ctx, doc, i, pd)
		if err != nil {
			return result, fmt.Errorf("enqueue segment %d of %s: %w", i, doc.Filename, err)
		}
		result.ItemIDs = append(result.ItemIDs, id)
		if created {
			result.Enqueued++
		}
	}

	s.logger.Info("document ingested",
		"filename", doc.Filename,
		"channel", doc.Channel,
		"segments", result.Segments,
		"enqueued", result.Enqueued,
		"extraction_failed", result.ExtractionFailed)

	return result, nil
}

// enqueueSlice stores one per-patient slice and creates its review item.
// Returns the item id and whether a new item was created.
func (s *IntakeService) enqueueSlice(ctx context.Context, doc *domain.SourceDocument, index int, pd domain.PatientDocument) (string, bool, error) {
	name := pd.Segment.Name
	if name == "" {
		name = domain.UnknownPatientName
	}

	fingerprint := domain.Fingerprint(doc.Bytes, index, name)

	item := &domain.QueueItem{
		ID:             domain.GenerateID(),
		SourceRef:      doc.Ref,
		Fingerprint:    fingerprint,
		PatientName:    name,
		BlobKey:        fmt.Sprintf("queue/%s/%d.pdf", fingerprint[:16], index),
		TestsFound:     pd.Segment.TestsFound,
		CollectionDate: pd.Segment.CollectionDate,
		DOB:            pd.Segment.DOB,
		Status:         domain.StatusPendingReview,
	}

	match, err := s.matcher.Match(ctx, name)
	if err != nil {
		// Matching is best effort; an unreachable directory leaves the
		// item unmatched for manual selection.
		s.logger.Warn("identity match failed", "patient", name, "error", err)
	} else {
		item.TopMatches = match.Candidates
		if match.Best != nil {
			item.MatchedPatientID = match.Best.PatientID
			item.MatchedName = match.Best.DisplayName
			item.MatchConfidence = match.Best.Score
		} else if len(match.Candidates) > 0 {
			item.MatchConfidence = match.Candidates[0].Score
		}
	}

	// Blob first, then metadata. An orphaned blob from a crash between the
	// two is re-overwritten on redelivery; a queue item without bytes is
	// unreviewable.
	if err := s.blobStore.Put(ctx, item.BlobKey, pd.Bytes); err != nil {
		return "", false, fmt.Errorf("store blob: %w", err)
	}

	id, err := s.queueStore.Enqueue(ctx, item)
	if err != nil {
		return "", false, fmt.Errorf("enqueue item: %w", err)
	}

	created := id == item.ID
	if !created {
		s.logger.Info("duplicate segment, reusing existing item",
			"item_id", id, "fingerprint", fingerprint)
		// A crash between enqueue and notify leaves the earlier item
		// silent; redelivery gives it another chance while pending.
		existing, gerr := s.queueStore.Get(ctx, id)
		if gerr != nil {
			s.logger.Warn("duplicate item lookup failed", "item_id", id, "error", gerr)
		} else if existing.Status == domain.StatusPendingReview {
			s.notifyForReview(ctx, existing)
		}
		return id, false, nil
	}

	item.ID = id
	s.notifyForReview(ctx, item)
	return id, true, nil
}

// notifyForReview pings reviewers about a pending item. The guard key
// makes repeat notifies for the same item no-ops within its TTL; the
// notification itself never blocks enqueue.
func (s *IntakeService) notifyForReview(ctx context.Context, item *domain.QueueItem) {
	if s.notifier == nil {
		return
	}
	if s.notifyGuard != nil {
		acquired, err := s.notifyGuard.Acquire(ctx, "notify:"+item.ID, notifyGuardTTL)
		if err != nil {
			// A duplicate ping beats a silent queue.
			s.logger.Warn("notify guard unavailable", "item_id", item.ID, "error", err)
		} else if !acquired {
			return
		}
	}
	if _, err := s.notifier.NotifyForApproval(ctx, item); err != nil {
		s.logger.Warn("review notification failed", "item_id", item.ID, "error", err)
	}
}

// PollMailbox drains unprocessed mailbox messages once. Attachments of a
// message are ingested concurrently; the message is marked processed only
// when every attachment was handled.
func (s *IntakeService) PollMailbox(ctx context.Context) (int, error) {
	if s.mailbox == nil {
		return 0, fmt.Errorf("no mailbox configured")
	}

	keys, err := s.mailbox.ListNew(ctx, s.mailboxBatch)
	if err != nil {
		return 0, fmt.Errorf("list mailbox: %w", err)
	}

	handled := 0
	for _, key := range keys {
		if err := s.handleMessage(ctx, key); err != nil {
			s.logger.Error("mailbox message failed", "key", key, "error", err)
			continue
		}
		handled++
	}
	return handled, nil
}

func (s *IntakeService) handleMessage(ctx context.Context, key string) error {
	start := time.Now()

	docs, err := s.mailbox.Fetch(ctx, key)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", key, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, doc := range docs {
		g.Go(func() error {
			_, err := s.IngestDocument(gctx, &doc)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := s.mailbox.MarkProcessed(ctx, key); err != nil {
		// Redelivery is safe; idempotent enqueue absorbs it.
		s.logger.Warn("mark processed failed", "key", key, "error", err)
	}

	s.logger.Info("mailbox message handled",
		"key", key, "attachments", len(docs), "took", time.Since(start))
	return nil
}
