package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ItemStatus represents the review state of a queue item.
type ItemStatus string

const (
	StatusPendingReview ItemStatus = "pending_review"
	StatusApproved      ItemStatus = "approved"
	StatusRejected      ItemStatus = "rejected"
	StatusPublished     ItemStatus = "published"
	StatusFailed        ItemStatus = "failed"
)

// legalEdges enumerates every permitted status transition. Anything not
// listed here is rejected with ErrInvalidTransition.
var legalEdges = map[ItemStatus][]ItemStatus{
	StatusPendingReview: {StatusApproved, StatusRejected, StatusFailed},
	StatusApproved:      {StatusPublished, StatusFailed},
}

// CanTransition reports whether the edge from -> to is legal.
// Published and rejected are terminal; failed accepts no further edges.
func CanTransition(from, to ItemStatus) bool {
	for _, next := range legalEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are permitted from s.
func (s ItemStatus) IsTerminal() bool {
	return len(legalEdges[s]) == 0
}

// Valid reports whether s is one of the known statuses.
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusPendingReview, StatusApproved, StatusRejected, StatusPublished, StatusFailed:
		return true
	}
	return false
}

// QueueItem is one per-patient document awaiting provider review.
// It is the only persisted, mutable entity in the pipeline.
type QueueItem struct {
	ID string `json:"id"`

	// SourceRef points back at the originating mailbox object (audit only).
	SourceRef string `json:"source_ref"`

	// Fingerprint is a stable hash of (source document, segment) used for
	// idempotent enqueue. Re-delivered documents map to the same fingerprint.
	Fingerprint string `json:"fingerprint"`

	// PatientName is the raw extracted name, possibly UnknownPatientName.
	PatientName string `json:"patient_name"`

	// BlobKey locates the per-patient document bytes in the blob store.
	// Owned by this item until a published or rejected transition releases it.
	BlobKey string `json:"blob_key"`

	// Identity resolution (best effort; empty MatchedPatientID with zero
	// confidence forces a manual selection before approval can succeed).
	MatchedPatientID string           `json:"matched_patient_id,omitempty"`
	MatchedName      string           `json:"matched_name,omitempty"`
	MatchConfidence  float64          `json:"match_confidence"`
	TopMatches       []MatchCandidate `json:"top_matches,omitempty"`

	// Reviewer context carried from the segmenter.
	TestsFound     []string `json:"tests_found,omitempty"`
	CollectionDate string   `json:"collection_date,omitempty"`
	DOB            string   `json:"dob,omitempty"`

	Status ItemStatus `json:"status"`

	// RejectionReason is set only on rejected.
	RejectionReason string `json:"rejection_reason,omitempty"`

	// ExternalDocumentID is set only on published, exactly once.
	ExternalDocumentID string `json:"external_document_id,omitempty"`

	// PublishError is an operator-visible note on approved items whose
	// upload failed and is awaiting retry.
	PublishError string `json:"publish_error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// UnknownPatientName marks items the segmenter could not attribute.
const UnknownPatientName = "UNKNOWN — manual review required"

// ResolvedPatientID returns the patient id an approval would publish to,
// preferring the operator override when given.
func (q *QueueItem) ResolvedPatientID(override string) string {
	if override != "" {
		return override
	}
	return q.MatchedPatientID
}

// Fingerprint derives the idempotency key for one segment of a source
// document: same bytes and same segment always hash to the same value.
func Fingerprint(sourceBytes []byte, segmentIndex int, segmentName string) string {
	h := sha256.New()
	h.Write(sourceBytes)
	fmt.Fprintf(h, "|%d|%s", segmentIndex, strings.ToLower(strings.TrimSpace(segmentName)))
	return hex.EncodeToString(h.Sum(nil))
}
