package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewOpenAISegmenter_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAISegmenter("", "", "", nil)
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNewOpenAISegmenter_Defaults(t *testing.T) {
	seg, err := NewOpenAISegmenter("sk-test", "", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seg.model != "gpt-4o-mini" {
		t.Errorf("expected default model, got %s", seg.model)
	}
	if seg.baseURL != "https://api.openai.com/v1" {
		t.Errorf("expected default base URL, got %s", seg.baseURL)
	}
}

// chatServer returns an httptest server answering every chat completion
// request with the given content string.
func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAISegmenter_SegmentPatients(t *testing.T) {
	content := `[
		{"patient_name": "Smith, John", "page_start": 1, "page_end": 2, "tests_found": ["CBC", "CMP"], "collection_date": "2026-08-20", "dob": "1970-01-01"},
		{"patient_name": "Garcia, Maria", "page_start": 3, "page_end": 4, "tests_found": [], "collection_date": "", "dob": ""}
	]`
	server := chatServer(t, content)
	defer server.Close()

	seg, err := NewOpenAISegmenter("sk-test", "gpt-4o-mini", server.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	segments, err := seg.SegmentPatients(context.Background(), "page one\ftext page two")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Name != "Smith, John" {
		t.Errorf("expected name preserved as printed, got %q", segments[0].Name)
	}
	if segments[0].PageStart != 1 || segments[0].PageEnd != 2 {
		t.Errorf("expected pages 1-2, got %d-%d", segments[0].PageStart, segments[0].PageEnd)
	}
	if len(segments[0].TestsFound) != 2 {
		t.Errorf("expected 2 tests, got %v", segments[0].TestsFound)
	}
}

func TestOpenAISegmenter_SegmentPatients_FencedJSON(t *testing.T) {
	content := "```json\n[{\"patient_name\": \"John Smith\", \"page_start\": 1, \"page_end\": 1}]\n```"
	server := chatServer(t, content)
	defer server.Close()

	seg, _ := NewOpenAISegmenter("sk-test", "", server.URL, nil)
	segments, err := seg.SegmentPatients(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 1 || segments[0].Name != "John Smith" {
		t.Fatalf("expected fenced JSON parsed, got %+v", segments)
	}
}

func TestOpenAISegmenter_SegmentPatients_MalformedOutput(t *testing.T) {
	server := chatServer(t, "I could not find any patients in this document.")
	defer server.Close()

	seg, _ := NewOpenAISegmenter("sk-test", "", server.URL, nil)
	segments, err := seg.SegmentPatients(context.Background(), "text")
	if err != nil {
		t.Fatalf("malformed output must not be an error: %v", err)
	}
	if len(segments) != 0 {
		t.Errorf("expected no segments, got %d", len(segments))
	}
}

func TestOpenAISegmenter_SegmentPatients_SkipsNamelessEntries(t *testing.T) {
	server := chatServer(t, `[{"patient_name": "  ", "page_start": 1, "page_end": 2}]`)
	defer server.Close()

	seg, _ := NewOpenAISegmenter("sk-test", "", server.URL, nil)
	segments, err := seg.SegmentPatients(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 0 {
		t.Errorf("expected nameless entry skipped, got %+v", segments)
	}
}

func TestOpenAISegmenter_SegmentPatients_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limited", "type": "rate_limit", "code": "429"},
		})
	}))
	defer server.Close()

	seg, _ := NewOpenAISegmenter("sk-test", "", server.URL, nil)
	if _, err := seg.SegmentPatients(context.Background(), "text"); err == nil {
		t.Error("expected API error surfaced")
	}
}
