package chart

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.RecordSystem = (*Client)(nil)

// Client implements RecordSystem against a Healthie-style GraphQL chart
// API. Documents ride in the mutation as base64 data URLs.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// Config holds chart API settings.
type Config struct {
	APIKey string

	// BaseURL is the GraphQL endpoint, e.g. https://api.gethealthie.com/graphql.
	BaseURL string
}

// NewClient creates a new chart API client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("chart API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("chart API base URL is required")
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

const createDocumentMutation = `
mutation CreateDocument($input: createDocumentInput!) {
    createDocument(input: $input) {
        document {
            id
            display_name
        }
        messages {
            field
            message
        }
    }
}
`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type createDocumentResponse struct {
	Data struct {
		CreateDocument struct {
			Document *struct {
				ID          string `json:"id"`
				DisplayName string `json:"display_name"`
			} `json:"document"`
			Messages []struct {
				Field   string `json:"field"`
				Message string `json:"message"`
			} `json:"messages"`
		} `json:"createDocument"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// PublishDocument uploads the document into the patient's chart and
// returns the created document's id.
func (c *Client) PublishDocument(ctx context.Context, patientID string, docBytes []byte, filename string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(docBytes)

	req := graphqlRequest{
		Query: createDocumentMutation,
		Variables: map[string]any{
			"input": map[string]any{
				"rel_user_id":    patientID,
				"display_name":   filename,
				"file_string":    "data:application/pdf;base64," + encoded,
				"description":    "Lab results uploaded via automated intake",
				"share_with_rel": true,
			},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal mutation: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Basic "+c.apiKey)
	httpReq.Header.Set("AuthorizationSource", "API")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("upload document: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chart API returned status %d", resp.StatusCode)
	}

	var result createDocumentResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	if len(result.Errors) > 0 {
		return "", fmt.Errorf("chart API: %s", result.Errors[0].Message)
	}
	doc := result.Data.CreateDocument.Document
	if doc == nil || doc.ID == "" {
		if msgs := result.Data.CreateDocument.Messages; len(msgs) > 0 {
			return "", fmt.Errorf("chart API: %s: %s", msgs[0].Field, msgs[0].Message)
		}
		return "", fmt.Errorf("chart API returned no document")
	}

	return doc.ID, nil
}
