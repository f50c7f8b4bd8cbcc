// Package notify hands alert decisions to downstream alerting over signed
// webhooks. Delivery is best-effort with bounded retries; the extraction run
// that produced the event never blocks on it.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/haunt/alert"
	"github.com/use-agent/haunt/config"
	"github.com/use-agent/haunt/models"
)

// Event is the payload sent to the webhook endpoint.
type Event struct {
	Type      string                `json:"type"` // "target.changed"
	TargetID  string                `json:"target_id"`
	RunID     string                `json:"run_id"`
	Timestamp int64                 `json:"timestamp"`
	ChangeSet models.ChangeSet      `json:"change_set"`
	NewState  models.ExtractedState `json:"new_state"`
	Decision  *alert.Decision       `json:"decision"`
}

// Webhook publishes alert events to one configured endpoint.
type Webhook struct {
	cfg        config.NotifyConfig
	httpClient *http.Client
}

// NewWebhook creates a Webhook publisher. Pass nil for a default client with
// a 10s timeout.
func NewWebhook(cfg config.NotifyConfig, httpClient *http.Client) *Webhook {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{cfg: cfg, httpClient: httpClient}
}

// Publish sends the run's alert decision asynchronously with bounded retries
// (1s, 5s, 30s). It returns immediately; delivery failures are logged, never
// propagated into the run.
func (w *Webhook) Publish(_ context.Context, res *models.RunResult, decision *alert.Decision) error {
	if w.cfg.WebhookURL == "" {
		return nil
	}
	event := &Event{
		Type:      "target.changed",
		TargetID:  res.TargetID,
		RunID:     res.RunID,
		Timestamp: time.Now().Unix(),
		ChangeSet: res.ChangeSet,
		NewState:  res.NewState,
		Decision:  decision,
	}

	go func() {
		delays := []time.Duration{0, time.Second, 5 * time.Second, 30 * time.Second}
		for attempt, delay := range delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := w.deliver(ctx, event)
			cancel()
			if err == nil {
				slog.Info("notify: webhook delivered",
					"target", event.TargetID, "run", event.RunID, "attempt", attempt+1)
				return
			}
			slog.Warn("notify: webhook delivery failed",
				"target", event.TargetID, "run", event.RunID,
				"attempt", attempt+1, "error", err)
		}
		slog.Error("notify: webhook delivery exhausted all retries",
			"target", event.TargetID, "run", event.RunID)
	}()
	return nil
}

// deliver sends one webhook attempt. The body is signed with HMAC-SHA256
// when a secret is configured. Header: X-Haunt-Signature: sha256=<hex>.
func (w *Webhook) deliver(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Haunt-Webhook/1.0")

	if w.cfg.Secret != "" {
		mac := hmac.New(sha256.New, []byte(w.cfg.Secret))
		mac.Write(body)
		req.Header.Set("X-Haunt-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
