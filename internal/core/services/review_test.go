package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven/mocks"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driving"
)

type reviewFixture struct {
	queueStore   *mocks.MockReviewQueueStore
	blobStore    *mocks.MockBlobStore
	recordSystem *mocks.MockRecordSystem
	taskQueue    *mocks.MockTaskQueue
	svc          *ReviewService
}

func newReviewFixture() *reviewFixture {
	f := &reviewFixture{
		queueStore:   mocks.NewMockReviewQueueStore(),
		blobStore:    mocks.NewMockBlobStore(),
		recordSystem: &mocks.MockRecordSystem{},
		taskQueue:    mocks.NewMockTaskQueue(),
	}
	publisher := NewPublisher(PublisherConfig{
		QueueStore:   f.queueStore,
		BlobStore:    f.blobStore,
		RecordSystem: f.recordSystem,
		TaskQueue:    f.taskQueue,
	})
	f.svc = NewReviewService(ReviewServiceConfig{
		QueueStore: f.queueStore,
		BlobStore:  f.blobStore,
		Publisher:  publisher,
	})
	return f
}

// seedItem stores a pending item with its blob and returns it.
func (f *reviewFixture) seedItem(t *testing.T, matched string) *domain.QueueItem {
	t.Helper()
	item := &domain.QueueItem{
		ID:               domain.GenerateID(),
		Fingerprint:      domain.GenerateID(),
		PatientName:      "John Smith",
		BlobKey:          "queue/test/" + domain.GenerateID() + ".pdf",
		MatchedPatientID: matched,
		MatchedName:      "John Smith",
		MatchConfidence:  0.97,
		CollectionDate:   "2026-08-20",
		Status:           domain.StatusPendingReview,
		TopMatches: []domain.MatchCandidate{
			{PatientID: "p1", DisplayName: "John Smith", Score: 0.97},
			{PatientID: "p2", DisplayName: "Jane Smith", Score: 0.80},
		},
	}
	if matched == "" {
		item.MatchConfidence = 0.5
	}
	f.queueStore.Seed(item)
	if err := f.blobStore.Put(context.Background(), item.BlobKey, []byte("pdf")); err != nil {
		t.Fatalf("seed blob: %v", err)
	}
	return item
}

func TestReviewService_Approve_PublishesInline(t *testing.T) {
	f := newReviewFixture()
	item := f.seedItem(t, "p1")

	got, err := f.svc.Approve(context.Background(), driving.ApproveRequest{ItemID: item.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.StatusPublished {
		t.Fatalf("expected published, got %s", got.Status)
	}
	if got.ExternalDocumentID == "" {
		t.Error("expected external document id recorded")
	}
	if f.blobStore.Has(item.BlobKey) {
		t.Error("expected blob released after publication")
	}
	if f.recordSystem.LastPatientID() != "p1" {
		t.Errorf("expected upload for p1, got %s", f.recordSystem.LastPatientID())
	}
}

func TestReviewService_Approve_MissingIdentity(t *testing.T) {
	f := newReviewFixture()
	item := f.seedItem(t, "")

	_, err := f.svc.Approve(context.Background(), driving.ApproveRequest{ItemID: item.ID})
	if !errors.Is(err, domain.ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}

	// The item must stay pending so the operator can pick an identity.
	got, _ := f.queueStore.Get(context.Background(), item.ID)
	if got.Status != domain.StatusPendingReview {
		t.Errorf("expected item left pending, got %s", got.Status)
	}
}

func TestReviewService_Approve_WithOverride(t *testing.T) {
	f := newReviewFixture()
	item := f.seedItem(t, "")

	got, err := f.svc.Approve(context.Background(), driving.ApproveRequest{ItemID: item.ID, PatientID: "p2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.MatchedPatientID != "p2" {
		t.Errorf("expected override persisted, got %q", got.MatchedPatientID)
	}
	if f.recordSystem.LastPatientID() != "p2" {
		t.Errorf("expected upload for p2, got %s", f.recordSystem.LastPatientID())
	}
}

func TestReviewService_Approve_PublishFailureLeavesApproved(t *testing.T) {
	f := newReviewFixture()
	f.recordSystem.Err = errors.New("record system down")
	item := f.seedItem(t, "p1")

	got, err := f.svc.Approve(context.Background(), driving.ApproveRequest{ItemID: item.ID})
	if err != nil {
		t.Fatalf("approval itself must not fail: %v", err)
	}
	if got.Status != domain.StatusApproved {
		t.Fatalf("expected approved, got %s", got.Status)
	}

	stored, _ := f.queueStore.Get(context.Background(), item.ID)
	if stored.PublishError == "" {
		t.Error("expected publish error recorded")
	}
	if !f.blobStore.Has(item.BlobKey) {
		t.Error("expected blob kept for retry")
	}
	if f.taskQueue.PendingCount() != 1 {
		t.Errorf("expected retry task scheduled, got %d", f.taskQueue.PendingCount())
	}
}

func TestReviewService_Reject_ReleasesBlob(t *testing.T) {
	f := newReviewFixture()
	item := f.seedItem(t, "p1")

	got, err := f.svc.Reject(context.Background(), driving.RejectRequest{ItemID: item.ID, Reason: "not our patient"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.StatusRejected {
		t.Fatalf("expected rejected, got %s", got.Status)
	}
	if got.RejectionReason != "not our patient" {
		t.Errorf("expected reason persisted, got %q", got.RejectionReason)
	}
	if f.blobStore.Has(item.BlobKey) {
		t.Error("expected blob released after rejection")
	}
	if f.recordSystem.PublishCount() != 0 {
		t.Error("rejection must not publish anything")
	}
}

func TestReviewService_Reject_TerminalItem(t *testing.T) {
	f := newReviewFixture()
	item := f.seedItem(t, "p1")

	if _, err := f.svc.Reject(context.Background(), driving.RejectRequest{ItemID: item.ID, Reason: "dup"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := f.svc.Reject(context.Background(), driving.RejectRequest{ItemID: item.ID, Reason: "again"})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestReviewService_HandleCallback_Approve(t *testing.T) {
	f := newReviewFixture()
	item := f.seedItem(t, "p1")

	got, err := f.svc.HandleCallback(context.Background(), driven.ReviewCallback{
		ItemID:         item.ID,
		Decision:       domain.DecisionApprove,
		SelectionIndex: -1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.StatusPublished {
		t.Errorf("expected published, got %s", got.Status)
	}
}

func TestReviewService_HandleCallback_Selection(t *testing.T) {
	f := newReviewFixture()
	item := f.seedItem(t, "")

	got, err := f.svc.HandleCallback(context.Background(), driven.ReviewCallback{
		ItemID:         item.ID,
		Decision:       domain.DecisionApprove,
		SelectionIndex: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.MatchedPatientID != "p2" {
		t.Errorf("expected candidate 1 (p2) selected, got %q", got.MatchedPatientID)
	}
}

func TestReviewService_HandleCallback_SelectionOutOfRange(t *testing.T) {
	f := newReviewFixture()
	item := f.seedItem(t, "")

	_, err := f.svc.HandleCallback(context.Background(), driven.ReviewCallback{
		ItemID:         item.ID,
		Decision:       domain.DecisionApprove,
		SelectionIndex: 7,
	})
	if !errors.Is(err, domain.ErrInvalidCallback) {
		t.Fatalf("expected ErrInvalidCallback, got %v", err)
	}
}

func TestReviewService_Get_NotFound(t *testing.T) {
	f := newReviewFixture()
	_, err := f.svc.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReviewService_ListPending_OldestFirst(t *testing.T) {
	f := newReviewFixture()
	older := f.seedItem(t, "p1")
	newer := f.seedItem(t, "p1")
	f.queueStore.SetCreatedAt(older.ID, time.Now().Add(-time.Hour))
	f.queueStore.SetCreatedAt(newer.ID, time.Now())

	items, err := f.svc.ListPending(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 pending items, got %d", len(items))
	}
	if items[0].ID != older.ID {
		t.Errorf("expected the longest-waiting item first, got %s", items[0].ID)
	}
}

func TestReviewService_DocumentURL(t *testing.T) {
	f := newReviewFixture()
	item := f.seedItem(t, "p1")

	url, err := f.svc.DocumentURL(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url == "" {
		t.Error("expected a presigned url for a pending item")
	}
}

func TestReviewService_DocumentURL_TerminalItemGone(t *testing.T) {
	f := newReviewFixture()
	item := f.seedItem(t, "p1")
	if _, err := f.svc.Reject(context.Background(), driving.RejectRequest{ItemID: item.ID, Reason: "dup"}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	url, err := f.svc.DocumentURL(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "" {
		t.Errorf("expected empty url for a rejected item, got %q", url)
	}
}

func TestReviewService_DocumentURL_PresignUnsupported(t *testing.T) {
	f := newReviewFixture()
	item := f.seedItem(t, "p1")
	f.blobStore.PresignErr = domain.ErrPresignUnsupported

	// A live item on a backend without links is an error, not a released
	// document.
	_, err := f.svc.DocumentURL(context.Background(), item.ID)
	if !errors.Is(err, domain.ErrPresignUnsupported) {
		t.Fatalf("expected ErrPresignUnsupported, got %v", err)
	}
}
