package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
)

// MockTextExtractor is a configurable TextExtractor for testing.
type MockTextExtractor struct {
	Text      string
	PageCount int
	Err       error
}

func (m *MockTextExtractor) ExtractText(ctx context.Context, docBytes []byte) (string, int, error) {
	if m.Err != nil {
		return "", 0, m.Err
	}
	return m.Text, m.PageCount, nil
}

// MockPatientSegmenter is a configurable PatientSegmenter for testing.
type MockPatientSegmenter struct {
	Segments []domain.PatientSegment
	Err      error

	// LastText records the text passed to the most recent call.
	LastText string
}

func (m *MockPatientSegmenter) SegmentPatients(ctx context.Context, text string) ([]domain.PatientSegment, error) {
	m.LastText = text
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Segments, nil
}

// MockDocumentCutter is a configurable DocumentCutter for testing.
// When Err is nil it returns a synthetic slice labelled with the range,
// so tests can tell slices apart without real documents.
type MockDocumentCutter struct {
	Err error

	mu    sync.Mutex
	Calls [][2]int
}

func (m *MockDocumentCutter) CutPages(ctx context.Context, docBytes []byte, start, end int) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, [2]int{start, end})
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return []byte(fmt.Sprintf("pages[%d:%d]", start, end)), nil
}

// MockPatientDirectory serves a fixed patient snapshot for testing.
type MockPatientDirectory struct {
	Patients []domain.Patient
	Err      error
}

func (m *MockPatientDirectory) Snapshot(ctx context.Context) ([]domain.Patient, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Patients, nil
}

// MockRecordSystem is a configurable RecordSystem for testing.
type MockRecordSystem struct {
	Err error

	mu        sync.Mutex
	published []publishedDoc
	nextID    int
}

type publishedDoc struct {
	PatientID string
	Filename  string
	Size      int
}

func (m *MockRecordSystem) PublishDocument(ctx context.Context, patientID string, docBytes []byte, filename string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedDoc{PatientID: patientID, Filename: filename, Size: len(docBytes)})
	m.nextID++
	return fmt.Sprintf("ext-doc-%d", m.nextID), nil
}

// PublishCount returns how many documents were uploaded (test helper).
func (m *MockRecordSystem) PublishCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

// LastFilename returns the filename of the most recent upload (test helper).
func (m *MockRecordSystem) LastFilename() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.published) == 0 {
		return ""
	}
	return m.published[len(m.published)-1].Filename
}

// LastPatientID returns the patient id of the most recent upload (test helper).
func (m *MockRecordSystem) LastPatientID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.published) == 0 {
		return ""
	}
	return m.published[len(m.published)-1].PatientID
}

// MockReviewNotifier records notifications for testing.
type MockReviewNotifier struct {
	Err error

	mu       sync.Mutex
	Notified []string // item ids in notification order
}

func (m *MockReviewNotifier) NotifyForApproval(ctx context.Context, item *domain.QueueItem) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notified = append(m.Notified, item.ID)
	return fmt.Sprintf("notif-%d", len(m.Notified)), nil
}

// NotifyCount returns how many notifications were sent (test helper).
func (m *MockReviewNotifier) NotifyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Notified)
}
