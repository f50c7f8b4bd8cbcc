package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/use-agent/haunt/alert"
	"github.com/use-agent/haunt/config"
	"github.com/use-agent/haunt/models"
)

func testResult() *models.RunResult {
	return &models.RunResult{
		RunID:    "run-123",
		TargetID: "target-a",
		Status:   models.RunSuccess,
		NewState: models.ExtractedState{"price": float64(12)},
		ChangeSet: models.ChangeSet{
			"price": {Old: float64(10), New: float64(12)},
		},
		HasChanges: true,
	}
}

func testDecision() *alert.Decision {
	return &alert.Decision{ShouldAlert: true, Reason: "price moved", Confidence: 0.9}
}

func TestPublish_SignedDelivery(t *testing.T) {
	type received struct {
		body      []byte
		signature string
		userAgent string
	}
	got := make(chan received, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{
			body:      body,
			signature: r.Header.Get("X-Haunt-Signature"),
			userAgent: r.Header.Get("User-Agent"),
		}
	}))
	defer srv.Close()

	w := NewWebhook(config.NotifyConfig{WebhookURL: srv.URL, Secret: "s3cret"}, nil)
	if err := w.Publish(context.Background(), testResult(), testDecision()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	var rec received
	select {
	case rec = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered")
	}

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(rec.body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if rec.signature != want {
		t.Errorf("signature = %q, want %q", rec.signature, want)
	}
	if rec.userAgent != "Haunt-Webhook/1.0" {
		t.Errorf("user agent = %q", rec.userAgent)
	}

	var event Event
	if err := json.Unmarshal(rec.body, &event); err != nil {
		t.Fatalf("event body is not JSON: %v", err)
	}
	if event.Type != "target.changed" || event.TargetID != "target-a" || event.RunID != "run-123" {
		t.Errorf("event = %+v", event)
	}
	if event.Decision == nil || !event.Decision.ShouldAlert {
		t.Error("decision missing from event")
	}
	if _, ok := event.ChangeSet["price"]; !ok {
		t.Error("change set missing from event")
	}
}

func TestPublish_NoSecretMeansNoSignature(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("X-Haunt-Signature")
	}))
	defer srv.Close()

	w := NewWebhook(config.NotifyConfig{WebhookURL: srv.URL}, nil)
	if err := w.Publish(context.Background(), testResult(), testDecision()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case sig := <-got:
		if sig != "" {
			t.Errorf("unexpected signature %q without a secret", sig)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}

func TestPublish_EmptyURLIsANoOp(t *testing.T) {
	w := NewWebhook(config.NotifyConfig{}, nil)
	if err := w.Publish(context.Background(), testResult(), testDecision()); err != nil {
		t.Errorf("Publish with no URL should be a silent no-op, got %v", err)
	}
}

func TestPublish_RetriesAfterServerError(t *testing.T) {
	attempts := make(chan int, 4)
	count := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count++
		attempts <- count
		if count == 1 {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	w := NewWebhook(config.NotifyConfig{WebhookURL: srv.URL}, nil)
	if err := w.Publish(context.Background(), testResult(), testDecision()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// First attempt fails, the 1s-delayed retry must land.
	deadline := time.After(5 * time.Second)
	for want := 1; want <= 2; want++ {
		select {
		case got := <-attempts:
			if got != want {
				t.Fatalf("attempt %d, want %d", got, want)
			}
		case <-deadline:
			t.Fatalf("delivery attempt %d never arrived", want)
		}
	}
}
