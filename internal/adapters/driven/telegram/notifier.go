package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ReviewNotifier = (*Notifier)(nil)

// Callback data prefixes. The item id rides in the callback payload so a
// reviewer tap maps straight back to its queue item.
const (
	callbackApprove = "labs_approve_"
	callbackReject  = "labs_reject_"
	callbackSelect  = "labs_select_"
)

// Notifier implements ReviewNotifier over the Telegram Bot API. Each
// pending item becomes one message with inline approve/reject buttons and
// one button per alternate identity candidate.
type Notifier struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// Config holds Telegram bot settings.
type Config struct {
	Token  string
	ChatID string

	// BaseURL overrides the Telegram API host (tests).
	BaseURL string
}

// NewNotifier creates a new Telegram notifier.
func NewNotifier(cfg Config) (*Notifier, error) {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram token and chat id are required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Notifier{
		token:   cfg.Token,
		chatID:  cfg.ChatID,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type sendMessageRequest struct {
	ChatID      string `json:"chat_id"`
	Text        string `json:"text"`
	ParseMode   string `json:"parse_mode,omitempty"`
	ReplyMarkup struct {
		InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
	} `json:"reply_markup"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// NotifyForApproval announces a pending item with decision buttons.
func (n *Notifier) NotifyForApproval(ctx context.Context, item *domain.QueueItem) (string, error) {
	req := sendMessageRequest{
		ChatID: n.chatID,
		Text:   formatItem(item),
	}

	decisionRow := []inlineButton{
		{Text: "✅ Approve", CallbackData: callbackApprove + item.ID},
		{Text: "❌ Reject", CallbackData: callbackReject + item.ID},
	}
	req.ReplyMarkup.InlineKeyboard = append(req.ReplyMarkup.InlineKeyboard, decisionRow)

	// One row per alternate candidate when the automatic match is absent
	// or uncertain.
	if item.MatchedPatientID == "" {
		for i, c := range item.TopMatches {
			req.ReplyMarkup.InlineKeyboard = append(req.ReplyMarkup.InlineKeyboard, []inlineButton{{
				Text:         fmt.Sprintf("Use: %s (%.0f%%)", c.DisplayName, c.Score*100),
				CallbackData: fmt.Sprintf("%s%s_%d", callbackSelect, item.ID, i),
			}})
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var sendResp sendMessageResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if !sendResp.OK {
		return "", fmt.Errorf("telegram API: %s", sendResp.Description)
	}

	return strconv.FormatInt(sendResp.Result.MessageID, 10), nil
}

// formatItem renders the reviewer-facing summary of a pending item.
func formatItem(item *domain.QueueItem) string {
	var b strings.Builder
	b.WriteString("🧪 Lab result awaiting review\n\n")
	fmt.Fprintf(&b, "Patient: %s\n", item.PatientName)

	if item.MatchedPatientID != "" {
		fmt.Fprintf(&b, "Matched: %s (%.0f%% confidence)\n", item.MatchedName, item.MatchConfidence*100)
	} else {
		b.WriteString("Matched: no confident match, pick a patient below\n")
	}
	if item.DOB != "" {
		fmt.Fprintf(&b, "DOB: %s\n", item.DOB)
	}
	if item.CollectionDate != "" {
		fmt.Fprintf(&b, "Collected: %s\n", item.CollectionDate)
	}
	if len(item.TestsFound) > 0 {
		fmt.Fprintf(&b, "Tests: %s\n", strings.Join(item.TestsFound, ", "))
	}
	fmt.Fprintf(&b, "\nItem: %s", item.ID)
	return b.String()
}

// ParseCallback decodes inbound callback data into a review action.
// Recognized forms:
//
//	labs_approve_<item id>
//	labs_reject_<item id>
//	labs_select_<item id>_<candidate index>
func ParseCallback(data string) (driven.ReviewCallback, error) {
	switch {
	case strings.HasPrefix(data, callbackApprove):
		id := strings.TrimPrefix(data, callbackApprove)
		if id == "" {
			return driven.ReviewCallback{}, fmt.Errorf("approve callback without item id: %w", domain.ErrInvalidCallback)
		}
		return driven.ReviewCallback{ItemID: id, Decision: domain.DecisionApprove, SelectionIndex: -1}, nil

	case strings.HasPrefix(data, callbackReject):
		id := strings.TrimPrefix(data, callbackReject)
		if id == "" {
			return driven.ReviewCallback{}, fmt.Errorf("reject callback without item id: %w", domain.ErrInvalidCallback)
		}
		return driven.ReviewCallback{ItemID: id, Decision: domain.DecisionReject, SelectionIndex: -1}, nil

	case strings.HasPrefix(data, callbackSelect):
		rest := strings.TrimPrefix(data, callbackSelect)
		sep := strings.LastIndex(rest, "_")
		if sep <= 0 {
			return driven.ReviewCallback{}, fmt.Errorf("malformed select callback %q: %w", data, domain.ErrInvalidCallback)
		}
		index, err := strconv.Atoi(rest[sep+1:])
		if err != nil || index < 0 {
			return driven.ReviewCallback{}, fmt.Errorf("bad candidate index in %q: %w", data, domain.ErrInvalidCallback)
		}
		return driven.ReviewCallback{ItemID: rest[:sep], Decision: domain.DecisionApprove, SelectionIndex: index}, nil
	}

	return driven.ReviewCallback{}, fmt.Errorf("unknown callback %q: %w", data, domain.ErrInvalidCallback)
}
