package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
)

// Ensure OpenAISegmenter implements PatientSegmenter
var _ driven.PatientSegmenter = (*OpenAISegmenter)(nil)

// OpenAISegmenter implements PatientSegmenter using an OpenAI-compatible
// chat completion API. Model output is treated as untrusted: malformed
// JSON degrades to an empty segment list rather than an error, so the
// pipeline falls back to whole-document review.
type OpenAISegmenter struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewOpenAISegmenter creates a new segmenter.
func NewOpenAISegmenter(apiKey, model, baseURL string, logger *slog.Logger) (*OpenAISegmenter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAISegmenter{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}, nil
}

const segmentPrompt = `You are analyzing a clinical lab report document that may contain results for multiple patients.

Identify each distinct patient and the 1-based inclusive page range their results occupy. Extract the patient name exactly as printed, the tests found on their pages, the collection date, and the date of birth if printed.

Respond with ONLY a JSON array, no prose:
[{"patient_name": "...", "page_start": 1, "page_end": 2, "tests_found": ["..."], "collection_date": "YYYY-MM-DD", "dob": "YYYY-MM-DD"}]

Use an empty string for fields not present in the document. Pages are separated by form feed characters.

Document text:
`

// chatRequest is the request body for the chat completion API
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the response from the chat completion API
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// segmentPayload mirrors the JSON shape the model is asked for.
type segmentPayload struct {
	PatientName    string   `json:"patient_name"`
	PageStart      int      `json:"page_start"`
	PageEnd        int      `json:"page_end"`
	TestsFound     []string `json:"tests_found"`
	CollectionDate string   `json:"collection_date"`
	DOB            string   `json:"dob"`
}

// SegmentPatients proposes per-patient page ranges for the document text.
func (s *OpenAISegmenter) SegmentPatients(ctx context.Context, text string) ([]domain.PatientSegment, error) {
	resp, err := s.doRequest(ctx, chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "user", Content: segmentPrompt + text},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		s.logger.Warn("segmenter returned no choices")
		return nil, nil
	}

	return s.parseSegments(resp.Choices[0].Message.Content), nil
}

// parseSegments decodes the model's answer. Anything unparseable yields an
// empty slice; the caller's fallback handles it.
func (s *OpenAISegmenter) parseSegments(content string) []domain.PatientSegment {
	content = stripFence(content)

	var payloads []segmentPayload
	if err := json.Unmarshal([]byte(content), &payloads); err != nil {
		s.logger.Warn("segmenter output not valid JSON", "error", err, "content_prefix", prefix(content, 120))
		return nil
	}

	segments := make([]domain.PatientSegment, 0, len(payloads))
	for _, p := range payloads {
		if strings.TrimSpace(p.PatientName) == "" {
			continue
		}
		segments = append(segments, domain.PatientSegment{
			Name:           strings.TrimSpace(p.PatientName),
			PageStart:      p.PageStart,
			PageEnd:        p.PageEnd,
			TestsFound:     p.TestsFound,
			CollectionDate: strings.TrimSpace(p.CollectionDate),
			DOB:            strings.TrimSpace(p.DOB),
		})
	}
	return segments
}

// stripFence removes a markdown code fence the model may wrap JSON in.
func stripFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// doRequest makes a request to the chat completion API
func (s *OpenAISegmenter) doRequest(ctx context.Context, reqBody chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if chatResp.Error != nil {
		return nil, fmt.Errorf("chat API error: %s (type: %s, code: %s)",
			chatResp.Error.Message, chatResp.Error.Type, chatResp.Error.Code)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat API returned status %d", resp.StatusCode)
	}

	return &chatResp, nil
}
