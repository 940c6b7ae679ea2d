package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gpt-queue/internal/domain/model"
	"gpt-queue/internal/domain/ports/adapter"
)

var _ adapter.WebhookSender = (*WebhookSender)(nil)

const maxCapturedBody = 2048

// WebhookSender posts Slack-style {"text": ...} bodies to incoming-webhook URLs.
type WebhookSender struct {
	client *http.Client
}

func NewWebhookSender(timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebhookSender{client: &http.Client{Timeout: timeout}}
}

type webhookBody struct {
	Text string `json:"text"`
}

// Post reports Delivered only for a 2xx answer. Non-2xx bodies are captured
// (truncated) for the caller's logs.
func (w *WebhookSender) Post(ctx context.Context, url string, p model.Payload) model.Outcome {
	out := model.Outcome{Via: model.DestWebhook}

	b, err := json.Marshal(webhookBody{Text: p.Text()})
	if err != nil {
		out.Err = fmt.Errorf("encode webhook body: %w", err)
		return out
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		out.Err = fmt.Errorf("build webhook request: %w", err)
		return out
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		out.Err = err
		return out
	}
	defer resp.Body.Close()

	out.StatusCode = resp.StatusCode
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxCapturedBody))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		out.Delivered = true
		return out
	}
	out.Body = strings.TrimSpace(string(body))
	out.Err = fmt.Errorf("webhook http %d", resp.StatusCode)
	return out
}
