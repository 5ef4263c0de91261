package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ReviewQueueStore = (*QueueStore)(nil)

// QueueStore implements driven.ReviewQueueStore using PostgreSQL.
// Transitions run under SELECT FOR UPDATE so concurrent decisions on the
// same item serialize and exactly one wins.
type QueueStore struct {
	db *DB
}

// NewQueueStore creates a new QueueStore
func NewQueueStore(db *DB) *QueueStore {
	return &QueueStore{db: db}
}

const itemColumns = `
	id, source_ref, fingerprint, patient_name, blob_key,
	matched_patient_id, matched_name, match_confidence, top_matches,
	tests_found, collection_date, dob, status, rejection_reason,
	external_document_id, publish_error,
	created_at, updated_at, decided_at, published_at
`

// Enqueue persists a new pending item, idempotent on fingerprint.
func (s *QueueStore) Enqueue(ctx context.Context, item *domain.QueueItem) (string, error) {
	topMatches, err := json.Marshal(item.TopMatches)
	if err != nil {
		return "", fmt.Errorf("marshal top matches: %w", err)
	}
	tests, err := json.Marshal(item.TestsFound)
	if err != nil {
		return "", fmt.Errorf("marshal tests: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO review_queue (
			id, source_ref, fingerprint, patient_name, blob_key,
			matched_patient_id, matched_name, match_confidence, top_matches,
			tests_found, collection_date, dob, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		ON CONFLICT (fingerprint) DO NOTHING
		RETURNING id
	`

	var id string
	err = s.db.QueryRowContext(ctx, query,
		item.ID,
		item.SourceRef,
		item.Fingerprint,
		item.PatientName,
		item.BlobKey,
		item.MatchedPatientID,
		item.MatchedName,
		item.MatchConfidence,
		topMatches,
		tests,
		item.CollectionDate,
		item.DOB,
		domain.StatusPendingReview,
		now,
	).Scan(&id)
	if err == sql.ErrNoRows {
		// Conflict: an item with this fingerprint already exists.
		err = s.db.QueryRowContext(ctx,
			`SELECT id FROM review_queue WHERE fingerprint = $1`, item.Fingerprint).Scan(&id)
		if err != nil {
			return "", fmt.Errorf("lookup existing fingerprint: %w", err)
		}
		return id, nil
	}
	if err != nil {
		return "", fmt.Errorf("insert queue item: %w", err)
	}
	return id, nil
}

// Get retrieves an item by id.
func (s *QueueStore) Get(ctx context.Context, id string) (*domain.QueueItem, error) {
	query := `SELECT ` + itemColumns + ` FROM review_queue WHERE id = $1`
	return scanItem(s.db.QueryRowContext(ctx, query, id))
}

// ListPending returns all pending_review items, oldest first.
func (s *QueueStore) ListPending(ctx context.Context) ([]*domain.QueueItem, error) {
	query := `SELECT ` + itemColumns + `
		FROM review_queue
		WHERE status = $1
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, domain.StatusPendingReview)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// List returns items filtered by status, newest first.
func (s *QueueStore) List(ctx context.Context, status domain.ItemStatus, limit, offset int) ([]*domain.QueueItem, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		query := `SELECT ` + itemColumns + `
			FROM review_queue
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2`
		rows, err = s.db.QueryContext(ctx, query, limit, offset)
	} else {
		query := `SELECT ` + itemColumns + `
			FROM review_queue
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`
		rows, err = s.db.QueryContext(ctx, query, status, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// Transition atomically moves an item to newStatus and applies fields.
func (s *QueueStore) Transition(ctx context.Context, id string, newStatus domain.ItemStatus, fields driven.TransitionFields) (*domain.QueueItem, error) {
	var item *domain.QueueItem
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var current domain.ItemStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM review_queue WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock item: %w", err)
		}

		if !domain.CanTransition(current, newStatus) {
			return fmt.Errorf("%s -> %s: %w", current, newStatus, domain.ErrInvalidTransition)
		}

		now := time.Now()
		var decided, published *time.Time
		switch newStatus {
		case domain.StatusApproved, domain.StatusRejected:
			decided = fields.DecidedAt
			if decided == nil {
				decided = &now
			}
		case domain.StatusPublished:
			published = fields.PublishedAt
			if published == nil {
				published = &now
			}
		}
		decidedAt := NullTime(decided)
		publishedAt := NullTime(published)

		query := `
			UPDATE review_queue SET
				status = $2,
				updated_at = $3,
				decided_at = COALESCE($4, decided_at),
				published_at = COALESCE($5, published_at),
				rejection_reason = CASE WHEN $6 <> '' THEN $6 ELSE rejection_reason END,
				external_document_id = CASE WHEN $7 <> '' THEN $7 ELSE external_document_id END,
				publish_error = CASE
					WHEN $8 THEN ''
					WHEN $9 <> '' THEN $9
					ELSE publish_error END,
				matched_patient_id = CASE WHEN $10 <> '' THEN $10 ELSE matched_patient_id END
			WHERE id = $1
		`
		_, err = tx.ExecContext(ctx, query,
			id,
			newStatus,
			now,
			decidedAt,
			publishedAt,
			fields.RejectionReason,
			fields.ExternalDocumentID,
			fields.ClearPublishError,
			fields.PublishError,
			fields.MatchedPatientID,
		)
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}

		item, err = scanItem(tx.QueryRowContext(ctx,
			`SELECT `+itemColumns+` FROM review_queue WHERE id = $1`, id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// UpdatePublishError records an upload failure without changing status.
func (s *QueueStore) UpdatePublishError(ctx context.Context, id string, message string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE review_queue SET publish_error = $2, updated_at = $3 WHERE id = $1`,
		id, message, time.Now())
	if err != nil {
		return fmt.Errorf("update publish error: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Ping checks if the database is reachable.
func (s *QueueStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.QueueItem, error) {
	var item domain.QueueItem
	var topMatches, tests []byte
	var decidedAt, publishedAt sql.NullTime

	err := row.Scan(
		&item.ID,
		&item.SourceRef,
		&item.Fingerprint,
		&item.PatientName,
		&item.BlobKey,
		&item.MatchedPatientID,
		&item.MatchedName,
		&item.MatchConfidence,
		&topMatches,
		&tests,
		&item.CollectionDate,
		&item.DOB,
		&item.Status,
		&item.RejectionReason,
		&item.ExternalDocumentID,
		&item.PublishError,
		&item.CreatedAt,
		&item.UpdatedAt,
		&decidedAt,
		&publishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan queue item: %w", err)
	}

	if len(topMatches) > 0 {
		if err := json.Unmarshal(topMatches, &item.TopMatches); err != nil {
			return nil, fmt.Errorf("unmarshal top matches: %w", err)
		}
	}
	if len(tests) > 0 {
		if err := json.Unmarshal(tests, &item.TestsFound); err != nil {
			return nil, fmt.Errorf("unmarshal tests: %w", err)
		}
	}
	item.DecidedAt = TimePtr(decidedAt)
	item.PublishedAt = TimePtr(publishedAt)
	return &item, nil
}

func scanItems(rows *sql.Rows) ([]*domain.QueueItem, error) {
	var items []*domain.QueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
