package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
)

func TestParseCallback(t *testing.T) {
	cases := []struct {
		data      string
		wantID    string
		wantDec   domain.Decision
		wantIndex int
	}{
		{"labs_approve_item-1", "item-1", domain.DecisionApprove, -1},
		{"labs_reject_item-2", "item-2", domain.DecisionReject, -1},
		{"labs_select_item-3_0", "item-3", domain.DecisionApprove, 0},
		{"labs_select_item-4_2", "item-4", domain.DecisionApprove, 2},
	}
	for _, c := range cases {
		cb, err := ParseCallback(c.data)
		if err != nil {
			t.Errorf("ParseCallback(%q): unexpected error %v", c.data, err)
			continue
		}
		if cb.ItemID != c.wantID || cb.Decision != c.wantDec || cb.SelectionIndex != c.wantIndex {
			t.Errorf("ParseCallback(%q) = %+v, want id=%s dec=%s idx=%d",
				c.data, cb, c.wantID, c.wantDec, c.wantIndex)
		}
	}
}

func TestParseCallback_ItemIDWithUnderscores(t *testing.T) {
	cb, err := ParseCallback("labs_select_item_with_underscores_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.ItemID != "item_with_underscores" || cb.SelectionIndex != 1 {
		t.Errorf("expected last underscore to split the index, got %+v", cb)
	}
}

func TestParseCallback_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"labs_approve_",
		"labs_reject_",
		"labs_select_item-1",
		"labs_select_item-1_x",
		"something_else_entirely",
	}
	for _, data := range invalid {
		if _, err := ParseCallback(data); !errors.Is(err, domain.ErrInvalidCallback) {
			t.Errorf("ParseCallback(%q): expected ErrInvalidCallback, got %v", data, err)
		}
	}
}

func TestNotifier_NotifyForApproval(t *testing.T) {
	var captured sendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/bottest-token/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		resp := sendMessageResponse{OK: true}
		resp.Result.MessageID = 42
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	notifier, err := NewNotifier(Config{Token: "test-token", ChatID: "chat-1", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	item := &domain.QueueItem{
		ID:               "item-1",
		PatientName:      "Smith, John",
		MatchedPatientID: "p1",
		MatchedName:      "John Smith",
		MatchConfidence:  0.95,
		TestsFound:       []string{"CBC"},
		CollectionDate:   "2026-08-20",
	}

	msgID, err := notifier.NotifyForApproval(context.Background(), item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgID != "42" {
		t.Errorf("expected message id 42, got %s", msgID)
	}
	if captured.ChatID != "chat-1" {
		t.Errorf("expected chat id, got %s", captured.ChatID)
	}
	if !strings.Contains(captured.Text, "Smith, John") {
		t.Errorf("expected patient name in message, got %q", captured.Text)
	}

	if len(captured.ReplyMarkup.InlineKeyboard) != 1 {
		t.Fatalf("expected only the decision row for a matched item, got %d rows",
			len(captured.ReplyMarkup.InlineKeyboard))
	}
	row := captured.ReplyMarkup.InlineKeyboard[0]
	if row[0].CallbackData != "labs_approve_item-1" || row[1].CallbackData != "labs_reject_item-1" {
		t.Errorf("unexpected decision callbacks %+v", row)
	}
}

func TestNotifier_NotifyForApproval_UnmatchedShowsCandidates(t *testing.T) {
	var captured sendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		resp := sendMessageResponse{OK: true}
		resp.Result.MessageID = 1
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	notifier, _ := NewNotifier(Config{Token: "t", ChatID: "c", BaseURL: server.URL})

	item := &domain.QueueItem{
		ID:          "item-9",
		PatientName: "Jon Smithe",
		TopMatches: []domain.MatchCandidate{
			{PatientID: "p1", DisplayName: "John Smith", Score: 0.85},
			{PatientID: "p2", DisplayName: "Jane Smith", Score: 0.70},
		},
	}

	if _, err := notifier.NotifyForApproval(context.Background(), item); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Decision row plus one row per candidate.
	if len(captured.ReplyMarkup.InlineKeyboard) != 3 {
		t.Fatalf("expected 3 keyboard rows, got %d", len(captured.ReplyMarkup.InlineKeyboard))
	}
	if captured.ReplyMarkup.InlineKeyboard[1][0].CallbackData != "labs_select_item-9_0" {
		t.Errorf("unexpected candidate callback %q",
			captured.ReplyMarkup.InlineKeyboard[1][0].CallbackData)
	}
}

func TestNotifier_NotifyForApproval_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sendMessageResponse{OK: false, Description: "chat not found"})
	}))
	defer server.Close()

	notifier, _ := NewNotifier(Config{Token: "t", ChatID: "c", BaseURL: server.URL})
	_, err := notifier.NotifyForApproval(context.Background(), &domain.QueueItem{ID: "x"})
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("expected telegram error surfaced, got %v", err)
	}
}
