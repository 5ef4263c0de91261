package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driving"
)

// Mock services for testing

type mockAuthService struct {
	authenticateFn  func(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error)
	validateTokenFn func(ctx context.Context, token string) (*domain.TokenClaims, error)
}

func (m *mockAuthService) Authenticate(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) ValidateToken(ctx context.Context, token string) (*domain.TokenClaims, error) {
	if m.validateTokenFn != nil {
		return m.validateTokenFn(ctx, token)
	}
	return nil, errors.New("not implemented")
}

type mockReviewService struct {
	getFn            func(ctx context.Context, id string) (*domain.QueueItem, error)
	listFn           func(ctx context.Context, status domain.ItemStatus, limit, offset int) ([]*domain.QueueItem, error)
	listPendingFn    func(ctx context.Context) ([]*domain.QueueItem, error)
	approveFn        func(ctx context.Context, req driving.ApproveRequest) (*domain.QueueItem, error)
	rejectFn         func(ctx context.Context, req driving.RejectRequest) (*domain.QueueItem, error)
	handleCallbackFn func(ctx context.Context, cb driven.ReviewCallback) (*domain.QueueItem, error)
	documentURLFn    func(ctx context.Context, id string) (string, error)
}

func (m *mockReviewService) Get(ctx context.Context, id string) (*domain.QueueItem, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, errors.New("not implemented")
}

func (m *mockReviewService) List(ctx context.Context, status domain.ItemStatus, limit, offset int) ([]*domain.QueueItem, error) {
	if m.listFn != nil {
		return m.listFn(ctx, status, limit, offset)
	}
	return nil, errors.New("not implemented")
}

func (m *mockReviewService) ListPending(ctx context.Context) ([]*domain.QueueItem, error) {
	if m.listPendingFn != nil {
		return m.listPendingFn(ctx)
	}
	return nil, errors.New("not implemented")
}

func (m *mockReviewService) Approve(ctx context.Context, req driving.ApproveRequest) (*domain.QueueItem, error) {
	if m.approveFn != nil {
		return m.approveFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockReviewService) Reject(ctx context.Context, req driving.RejectRequest) (*domain.QueueItem, error) {
	if m.rejectFn != nil {
		return m.rejectFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockReviewService) HandleCallback(ctx context.Context, cb driven.ReviewCallback) (*domain.QueueItem, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, cb)
	}
	return nil, errors.New("not implemented")
}

func (m *mockReviewService) DocumentURL(ctx context.Context, id string) (string, error) {
	if m.documentURLFn != nil {
		return m.documentURLFn(ctx, id)
	}
	return "", errors.New("not implemented")
}

type mockPublishService struct {
	publishFn func(ctx context.Context, itemID string) (*domain.QueueItem, error)
}

func (m *mockPublishService) Publish(ctx context.Context, itemID string) (*domain.QueueItem, error) {
	if m.publishFn != nil {
		return m.publishFn(ctx, itemID)
	}
	return nil, errors.New("not implemented")
}

type mockIntakeService struct {
	ingestFn func(ctx context.Context, doc *domain.SourceDocument) (*driving.IntakeResult, error)
	pollFn   func(ctx context.Context) (int, error)
}

func (m *mockIntakeService) IngestDocument(ctx context.Context, doc *domain.SourceDocument) (*driving.IntakeResult, error) {
	if m.ingestFn != nil {
		return m.ingestFn(ctx, doc)
	}
	return nil, errors.New("not implemented")
}

func (m *mockIntakeService) PollMailbox(ctx context.Context) (int, error) {
	if m.pollFn != nil {
		return m.pollFn(ctx)
	}
	return 0, errors.New("not implemented")
}

func TestHealthHandler(t *testing.T) {
	server := &Server{version: "test"}

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()

	server.handleHealth(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
}

func TestVersionHandler(t *testing.T) {
	server := &Server{version: "1.2.3"}

	req := httptest.NewRequest("GET", "/version", nil)
	rr := httptest.NewRecorder()

	server.handleVersion(rr, req)

	var response map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["version"] != "1.2.3" {
		t.Errorf("expected version '1.2.3', got %s", response["version"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	mockAuth := &mockAuthService{
		authenticateFn: func(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
			if req.Email == "reviewer@clinic.example" && req.Password == "secret" {
				return &domain.LoginResponse{Token: "test-token"}, nil
			}
			return nil, domain.ErrInvalidCredentials
		},
	}

	server := &Server{authService: mockAuth}

	body, _ := json.Marshal(domain.LoginRequest{
		Email:    "reviewer@clinic.example",
		Password: "secret",
	})
	req := httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()

	server.handleLogin(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var response domain.LoginResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Token != "test-token" {
		t.Errorf("expected token 'test-token', got %s", response.Token)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	mockAuth := &mockAuthService{
		authenticateFn: func(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
			return nil, domain.ErrInvalidCredentials
		},
	}

	server := &Server{authService: mockAuth}

	body, _ := json.Marshal(domain.LoginRequest{Email: "x@y.z", Password: "bad"})
	req := httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()

	server.handleLogin(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rr.Code)
	}
}

func TestHandleLogin_InvalidJSON(t *testing.T) {
	server := &Server{}

	req := httptest.NewRequest("POST", "/api/v1/auth/login", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()

	server.handleLogin(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestHandleListQueue_StatusFilter(t *testing.T) {
	var gotStatus domain.ItemStatus
	mockReview := &mockReviewService{
		listFn: func(ctx context.Context, status domain.ItemStatus, limit, offset int) ([]*domain.QueueItem, error) {
			gotStatus = status
			return []*domain.QueueItem{{ID: "item-1", Status: status}}, nil
		},
	}

	server := &Server{reviewService: mockReview}

	req := httptest.NewRequest("GET", "/api/v1/queue?status=approved", nil)
	rr := httptest.NewRecorder()

	server.handleListQueue(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if gotStatus != domain.StatusApproved {
		t.Errorf("expected approved filter, got %q", gotStatus)
	}
}

func TestHandleListQueue_UnknownStatus(t *testing.T) {
	server := &Server{}

	req := httptest.NewRequest("GET", "/api/v1/queue?status=bogus", nil)
	rr := httptest.NewRecorder()

	server.handleListQueue(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestHandleListPending(t *testing.T) {
	mockReview := &mockReviewService{
		listPendingFn: func(ctx context.Context) ([]*domain.QueueItem, error) {
			return []*domain.QueueItem{
				{ID: "oldest", Status: domain.StatusPendingReview},
				{ID: "newest", Status: domain.StatusPendingReview},
			}, nil
		},
	}

	server := &Server{reviewService: mockReview}

	req := httptest.NewRequest("GET", "/api/v1/queue/pending", nil)
	rr := httptest.NewRecorder()

	server.handleListPending(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
		Count int `json:"count"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Count != 2 || len(body.Items) != 2 {
		t.Fatalf("expected 2 items, got %+v", body)
	}
	if body.Items[0].ID != "oldest" {
		t.Errorf("expected backlog order preserved, got %+v", body.Items)
	}
}

func TestHandleGetItem_NotFound(t *testing.T) {
	mockReview := &mockReviewService{
		getFn: func(ctx context.Context, id string) (*domain.QueueItem, error) {
			return nil, domain.ErrNotFound
		},
	}

	server := &Server{reviewService: mockReview}

	req := httptest.NewRequest("GET", "/api/v1/queue/missing", nil)
	req.SetPathValue("id", "missing")
	rr := httptest.NewRecorder()

	server.handleGetItem(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}

func TestHandleApprove_Success(t *testing.T) {
	var gotReq driving.ApproveRequest
	mockReview := &mockReviewService{
		approveFn: func(ctx context.Context, req driving.ApproveRequest) (*domain.QueueItem, error) {
			gotReq = req
			return &domain.QueueItem{ID: req.ItemID, Status: domain.StatusApproved}, nil
		},
	}

	server := &Server{reviewService: mockReview}

	body := strings.NewReader(`{"patient_id":"pat-42"}`)
	req := httptest.NewRequest("POST", "/api/v1/queue/item-1/approve", body)
	req.ContentLength = int64(body.Len())
	req.SetPathValue("id", "item-1")
	rr := httptest.NewRecorder()

	server.handleApprove(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotReq.ItemID != "item-1" || gotReq.PatientID != "pat-42" {
		t.Errorf("unexpected request %+v", gotReq)
	}
}

func TestHandleApprove_MissingIdentity(t *testing.T) {
	mockReview := &mockReviewService{
		approveFn: func(ctx context.Context, req driving.ApproveRequest) (*domain.QueueItem, error) {
			return nil, domain.ErrMissingIdentity
		},
	}

	server := &Server{reviewService: mockReview}

	req := httptest.NewRequest("POST", "/api/v1/queue/item-1/approve", nil)
	req.SetPathValue("id", "item-1")
	rr := httptest.NewRecorder()

	server.handleApprove(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", rr.Code)
	}
}

func TestHandleReject_Success(t *testing.T) {
	var gotReq driving.RejectRequest
	mockReview := &mockReviewService{
		rejectFn: func(ctx context.Context, req driving.RejectRequest) (*domain.QueueItem, error) {
			gotReq = req
			return &domain.QueueItem{ID: req.ItemID, Status: domain.StatusRejected}, nil
		},
	}

	server := &Server{reviewService: mockReview}

	body := strings.NewReader(`{"reason":"wrong patient"}`)
	req := httptest.NewRequest("POST", "/api/v1/queue/item-1/reject", body)
	req.ContentLength = int64(body.Len())
	req.SetPathValue("id", "item-1")
	rr := httptest.NewRecorder()

	server.handleReject(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotReq.Reason != "wrong patient" {
		t.Errorf("expected reason to pass through, got %q", gotReq.Reason)
	}
}

func TestHandleReject_AlreadyDecided(t *testing.T) {
	mockReview := &mockReviewService{
		rejectFn: func(ctx context.Context, req driving.RejectRequest) (*domain.QueueItem, error) {
			return nil, domain.ErrInvalidTransition
		},
	}

	server := &Server{reviewService: mockReview}

	req := httptest.NewRequest("POST", "/api/v1/queue/item-1/reject", nil)
	req.SetPathValue("id", "item-1")
	rr := httptest.NewRecorder()

	server.handleReject(rr, req)

	if rr.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", rr.Code)
	}
}

func TestHandleRetryPublish_AlreadyPublished(t *testing.T) {
	mockPublish := &mockPublishService{
		publishFn: func(ctx context.Context, itemID string) (*domain.QueueItem, error) {
			return nil, domain.ErrAlreadyPublished
		},
	}

	server := &Server{publishService: mockPublish}

	req := httptest.NewRequest("POST", "/api/v1/queue/item-1/retry", nil)
	req.SetPathValue("id", "item-1")
	rr := httptest.NewRecorder()

	server.handleRetryPublish(rr, req)

	if rr.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", rr.Code)
	}
}

func TestHandleGetDocumentURL_Gone(t *testing.T) {
	mockReview := &mockReviewService{
		documentURLFn: func(ctx context.Context, id string) (string, error) {
			return "", nil
		},
	}

	server := &Server{reviewService: mockReview}

	req := httptest.NewRequest("GET", "/api/v1/queue/item-1/document", nil)
	req.SetPathValue("id", "item-1")
	rr := httptest.NewRecorder()

	server.handleGetDocumentURL(rr, req)

	if rr.Code != http.StatusGone {
		t.Errorf("expected status 410, got %d", rr.Code)
	}
}

func TestHandleGetDocumentURL_Unsupported(t *testing.T) {
	mockReview := &mockReviewService{
		documentURLFn: func(ctx context.Context, id string) (string, error) {
			return "", fmt.Errorf("document url for %s: %w", id, domain.ErrPresignUnsupported)
		},
	}

	server := &Server{reviewService: mockReview}

	req := httptest.NewRequest("GET", "/api/v1/queue/item-1/document", nil)
	req.SetPathValue("id", "item-1")
	rr := httptest.NewRecorder()

	server.handleGetDocumentURL(rr, req)

	if rr.Code != http.StatusNotImplemented {
		t.Errorf("expected status 501, got %d", rr.Code)
	}
}

func TestHandleIngest_RawBody(t *testing.T) {
	var gotDoc *domain.SourceDocument
	mockIntake := &mockIntakeService{
		ingestFn: func(ctx context.Context, doc *domain.SourceDocument) (*driving.IntakeResult, error) {
			gotDoc = doc
			return &driving.IntakeResult{Enqueued: 2, Segments: 2}, nil
		},
	}

	server := &Server{intakeService: mockIntake}

	req := httptest.NewRequest("POST", "/api/v1/ingest?filename=labs.pdf", strings.NewReader("%PDF-1.4 fake"))
	req.Header.Set("Content-Type", "application/pdf")
	rr := httptest.NewRecorder()

	server.handleIngest(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotDoc == nil || gotDoc.Filename != "labs.pdf" {
		t.Fatalf("expected filename from query, got %+v", gotDoc)
	}
	if gotDoc.Channel != "manual" {
		t.Errorf("expected manual channel, got %q", gotDoc.Channel)
	}
}

func TestHandleIngest_EmptyBody(t *testing.T) {
	server := &Server{}

	req := httptest.NewRequest("POST", "/api/v1/ingest", strings.NewReader(""))
	rr := httptest.NewRecorder()

	server.handleIngest(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestHandleTelegramCallback_Approve(t *testing.T) {
	var gotCb driven.ReviewCallback
	mockReview := &mockReviewService{
		handleCallbackFn: func(ctx context.Context, cb driven.ReviewCallback) (*domain.QueueItem, error) {
			gotCb = cb
			return &domain.QueueItem{ID: cb.ItemID, Status: domain.StatusApproved}, nil
		},
	}

	server := &Server{reviewService: mockReview, webhookSecret: "hook-secret"}

	update := `{"callback_query":{"id":"1","data":"labs_approve_item-7"}}`
	req := httptest.NewRequest("POST", "/api/v1/callbacks/telegram", strings.NewReader(update))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "hook-secret")
	rr := httptest.NewRecorder()

	server.handleTelegramCallback(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCb.ItemID != "item-7" || gotCb.Decision != domain.DecisionApprove {
		t.Errorf("unexpected callback %+v", gotCb)
	}
}

func TestHandleTelegramCallback_BadSecret(t *testing.T) {
	server := &Server{webhookSecret: "hook-secret"}

	req := httptest.NewRequest("POST", "/api/v1/callbacks/telegram", strings.NewReader("{}"))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "wrong")
	rr := httptest.NewRecorder()

	server.handleTelegramCallback(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rr.Code)
	}
}

func TestHandleTelegramCallback_NoCallbackQuery(t *testing.T) {
	server := &Server{webhookSecret: "hook-secret"}

	req := httptest.NewRequest("POST", "/api/v1/callbacks/telegram", strings.NewReader(`{"message":{"text":"hi"}}`))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "hook-secret")
	rr := httptest.NewRecorder()

	server.handleTelegramCallback(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200 for non-callback update, got %d", rr.Code)
	}
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()

	writeError(rr, http.StatusTeapot, "short and stout")

	if rr.Code != http.StatusTeapot {
		t.Errorf("expected status 418, got %d", rr.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["error"] != "short and stout" {
		t.Errorf("unexpected error message %q", response["error"])
	}
}
