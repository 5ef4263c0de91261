package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/openclinic-labs/intake-core/internal/adapters/driven/telegram"
	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driving"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse represents a simple status response
type StatusResponse struct {
	Status string `json:"status"`
}

// maxIngestBytes bounds manual document uploads.
const maxIngestBytes = 32 << 20

// Health endpoints

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady checks the backing stores the API cannot run without.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "redis unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Auth endpoints

// handleLogin authenticates an operator and issues a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.authService.Authenticate(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Queue endpoints

// handleListQueue lists queue items, optionally filtered by status.
func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	status := domain.ItemStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	items, err := s.reviewService.List(r.Context(), status, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list queue")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

// handleListPending serves the default review dashboard view: the open
// backlog, oldest first.
func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	items, err := s.reviewService.ListPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list queue")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.reviewService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// handleGetDocumentURL returns a time-limited link to the item's document.
func (s *Server) handleGetDocumentURL(w http.ResponseWriter, r *http.Request) {
	url, err := s.reviewService.DocumentURL(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if url == "" {
		writeError(w, http.StatusGone, "document no longer available")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type approveBody struct {
	PatientID string `json:"patient_id"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var body approveBody
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	item, err := s.reviewService.Approve(r.Context(), driving.ApproveRequest{
		ItemID:    r.PathValue("id"),
		PatientID: body.PatientID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

type rejectBody struct {
	Reason string `json:"reason"`
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var body rejectBody
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	item, err := s.reviewService.Reject(r.Context(), driving.RejectRequest{
		ItemID: r.PathValue("id"),
		Reason: body.Reason,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// handleRetryPublish re-runs publication for an approved item whose
// earlier upload failed.
func (s *Server) handleRetryPublish(w http.ResponseWriter, r *http.Request) {
	item, err := s.publishService.Publish(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// Manual intake

// handleIngest accepts a document upload and runs it through the full
// intake pipeline. Accepts multipart form data with a "file" field, or a
// raw PDF body.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	doc, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.intakeService.IngestDocument(r.Context(), doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "intake failed")
		return
	}

	writeJSON(w, http.StatusAccepted, result)
}

func readUpload(r *http.Request) (*domain.SourceDocument, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxIngestBytes)

	doc := &domain.SourceDocument{
		Channel:    "manual",
		ReceivedAt: time.Now().UTC(),
	}

	if err := r.ParseMultipartForm(maxIngestBytes); err == nil {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, errors.New("missing file field")
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, errors.New("failed to read upload")
		}
		doc.Filename = header.Filename
		doc.Bytes = data
	} else {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, errors.New("failed to read upload")
		}
		doc.Filename = r.URL.Query().Get("filename")
		if doc.Filename == "" {
			doc.Filename = "upload.pdf"
		}
		doc.Bytes = data
	}

	if len(doc.Bytes) == 0 {
		return nil, errors.New("empty document")
	}
	doc.Ref = "manual/" + doc.Filename
	return doc, nil
}

// Patient directory

func (s *Server) handleListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := s.directory.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load patients")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patients": patients,
		"count":    len(patients),
	})
}

// Task queue stats

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.taskQueue.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// Webhook callbacks

// telegramUpdate is the subset of the bot platform's update payload the
// review flow needs.
type telegramUpdate struct {
	CallbackQuery *struct {
		ID   string `json:"id"`
		Data string `json:"data"`
	} `json:"callback_query"`
}

// handleTelegramCallback applies reviewer decisions arriving through the
// bot webhook. Responds 200 for updates that carry no callback so the
// platform does not redeliver them.
func (s *Server) handleTelegramCallback(w http.ResponseWriter, r *http.Request) {
	if s.webhookSecret == "" || r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != s.webhookSecret {
		writeError(w, http.StatusUnauthorized, "bad webhook token")
		return
	}

	var update telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update payload")
		return
	}
	if update.CallbackQuery == nil || update.CallbackQuery.Data == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	cb, err := telegram.ParseCallback(update.CallbackQuery.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid callback")
		return
	}

	item, err := s.reviewService.HandleCallback(r.Context(), cb)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// Helper functions

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "item is not in a reviewable state")
	case errors.Is(err, domain.ErrAlreadyPublished):
		writeError(w, http.StatusConflict, "item already published")
	case errors.Is(err, domain.ErrMissingIdentity):
		writeError(w, http.StatusUnprocessableEntity, "no patient identity resolved; supply patient_id")
	case errors.Is(err, domain.ErrBlobMissing):
		writeError(w, http.StatusGone, "document blob missing")
	case errors.Is(err, domain.ErrPresignUnsupported):
		writeError(w, http.StatusNotImplemented, "document links not supported by the storage backend")
	case errors.Is(err, domain.ErrInvalidCallback):
		writeError(w, http.StatusBadRequest, "invalid callback")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
