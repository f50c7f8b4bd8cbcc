// Package alert decides whether a detected change set deserves a
// notification. The primary path is an AI evaluator behind an
// OpenAI-compatible API; when it is unconfigured or unavailable, the caller
// falls back to the mechanical alert-on-any-change decision.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/use-agent/haunt/config"
	"github.com/use-agent/haunt/models"
)

// Evaluation is the input handed to the evaluator for one run.
type Evaluation struct {
	Description string                `json:"description"`
	OldState    models.ExtractedState `json:"old_state"`
	NewState    models.ExtractedState `json:"new_state"`
	ChangeSet   models.ChangeSet      `json:"change_set"`

	// PageExcerpt is optional cleaned page content giving the model context
	// beyond the bare field values.
	PageExcerpt string `json:"page_excerpt,omitempty"`
}

// Decision is the evaluator's verdict.
type Decision struct {
	ShouldAlert bool    `json:"should_alert"`
	Reason      string  `json:"reason"`
	Confidence  float64 `json:"confidence"`
	Summary     string  `json:"summary"`
}

// Evaluator is implemented by anything that can judge a change set.
type Evaluator interface {
	Evaluate(ctx context.Context, ev *Evaluation) (*Decision, error)
}

// Client is a lightweight OpenAI-compatible chat-completions client used as
// the production Evaluator. It uses net/http directly, no SDK needed.
type Client struct {
	cfg        config.AlertConfig
	httpClient *http.Client
}

// NewClient creates a Client. Pass nil to use a default http.Client.
func NewClient(cfg config.AlertConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

const systemPrompt = `You monitor web pages for meaningful changes. You receive a monitored page's description, its previously extracted field values, the newly extracted values, and the exact change set. Decide whether the change is worth alerting a human about.

Return ONLY a JSON object with exactly these keys:
{"should_alert": bool, "reason": string, "confidence": number between 0 and 1, "summary": string}

Guidance:
- Alert on substantive changes the description cares about (availability, price, status, dates).
- Do not alert on cosmetic noise (whitespace, tracking tokens, rotating timestamps).
- The summary should be one human-readable sentence describing what changed.`

// Evaluate asks the model for a verdict on the change set.
func (c *Client) Evaluate(ctx context.Context, ev *Evaluation) (*Decision, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("alert: marshal evaluation: %w", err)
	}

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(payload)},
		},
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("alert: marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("alert: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.NewMonitorError(
			models.ErrCodeEvaluatorFailure, "evaluator request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewMonitorError(
			models.ErrCodeEvaluatorFailure, "failed to read evaluator response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, evaluatorAPIError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, models.NewMonitorError(
			models.ErrCodeEvaluatorFailure, "unparseable evaluator response", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, models.NewMonitorError(
			models.ErrCodeEvaluatorFailure, "evaluator returned no choices", nil)
	}

	var decision Decision
	if err := json.Unmarshal([]byte(chatResp.Choices[0].Message.Content), &decision); err != nil {
		return nil, models.NewMonitorError(
			models.ErrCodeEvaluatorFailure, "evaluator returned invalid decision JSON", err)
	}
	return &decision, nil
}

func evaluatorAPIError(statusCode int, body []byte) *models.MonitorError {
	var errResp chatErrorResponse
	msg := "evaluator API error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}
	return models.NewMonitorError(
		models.ErrCodeEvaluatorFailure,
		fmt.Sprintf("evaluator API returned %d: %s", statusCode, msg),
		nil,
	)
}
