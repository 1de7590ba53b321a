package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/perf-brain/internal/engine/face"
	"github.com/ignite/perf-brain/internal/pkg/httpretry"
)

// Webhook posts every cycle's actions to the executor in one request.
type Webhook struct {
	url    string
	client httpretry.HTTPDoer
}

func NewWebhook(url string, client httpretry.HTTPDoer) *Webhook {
	return &Webhook{url: url, client: client}
}

type webhookBody struct {
	Actions []face.ActionPayload `json:"actions"`
}

func (w *Webhook) Dispatch(ctx context.Context, payloads []face.ActionPayload) error {
	data, err := json.Marshal(webhookBody{Actions: payloads})
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(payloads) > 0 {
		// Lets the executor drop replays of the same state.
		req.Header.Set("Idempotency-Key", payloads[0].BrainStateID)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post actions: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
