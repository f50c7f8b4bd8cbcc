package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/use-agent/haunt/browser"
	"github.com/use-agent/haunt/loader"
	"github.com/use-agent/haunt/metrics"
	"github.com/use-agent/haunt/models"
	"github.com/use-agent/haunt/schedule"
	"github.com/use-agent/haunt/storage"
)

type staticLoader struct{ html string }

func (s staticLoader) Load(_ context.Context, _ *browser.Handle, url string) (*loader.Page, error) {
	return &loader.Page{URL: url, FinalURL: url, RenderedHTML: s.html, StatusCode: 200}, nil
}

func newTestRouter(t *testing.T) (*httptest.Server, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	store.Put(&models.Target{
		ID:                    "a",
		URL:                   "https://example.com",
		Config:                json.RawMessage(`{"selectors": {"price": "css:.price"}}`),
		ScrapeIntervalMinutes: 30,
		IsActive:              true,
	})

	pool := browser.NewPool(2, func() (*rod.Page, error) { return nil, nil })
	registry := metrics.NewRegistry()
	coord := schedule.New(schedule.Options{
		Pool:           pool,
		Loader:         staticLoader{html: `<span class="price">$5</span>`},
		Store:          store,
		Sink:           registry,
		Retry:          schedule.RetryPolicy{MaxAttempts: 1},
		ManualCooldown: time.Hour,
	})

	srv := httptest.NewServer(NewRouter(pool, coord, registry, time.Now()))
	t.Cleanup(srv.Close)
	return srv, store
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestRouter(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q, want healthy for an idle pool", body.Status)
	}
	if body.Pool.MaxSize != 2 {
		t.Errorf("pool max = %d, want 2", body.Pool.MaxSize)
	}
}

func TestManualRun(t *testing.T) {
	srv, store := newTestRouter(t)

	resp, err := http.Post(srv.URL+"/targets/a/run", "application/json", nil)
	if err != nil {
		t.Fatalf("POST run failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Result models.RunResult `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if body.Result.Status != models.RunSuccess {
		t.Errorf("run status = %q, want success", body.Result.Status)
	}

	stored, _ := store.Get(context.Background(), "a")
	if stored.LastKnownState["price"] != "$5" {
		t.Errorf("stored state = %v", stored.LastKnownState)
	}

	// An immediate second trigger hits the cooldown.
	resp2, err := http.Post(srv.URL+"/targets/a/run", "application/json", nil)
	if err != nil {
		t.Fatalf("second POST run failed: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second run status = %d, want 429", resp2.StatusCode)
	}
}

func TestManualRun_UnknownTarget(t *testing.T) {
	srv, _ := newTestRouter(t)

	resp, err := http.Post(srv.URL+"/targets/ghost/run", "application/json", nil)
	if err != nil {
		t.Fatalf("POST run failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStats(t *testing.T) {
	srv, _ := newTestRouter(t)

	// Produce one run so stats are non-empty.
	resp, err := http.Post(srv.URL+"/targets/a/run", "application/json", nil)
	if err != nil {
		t.Fatalf("POST run failed: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats failed: %v", err)
	}
	defer resp.Body.Close()

	var body StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if body.Targets["a"].Successes != 1 {
		t.Errorf("target stats = %+v, want one success", body.Targets["a"])
	}
	if _, ok := body.Health["a"]; !ok {
		t.Error("health snapshot missing the target")
	}
}
