package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/use-agent/haunt/models"
)

func newTarget(id string, active bool) *models.Target {
	return &models.Target{
		ID:                    id,
		URL:                   "https://example.com/" + id,
		Config:                json.RawMessage(`{"selectors":{"price":"css:.price"}}`),
		ScrapeIntervalMinutes: 30,
		IsActive:              active,
	}
}

func TestMemoryStore_GetUnknownID(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get unknown = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ListActiveFiltersInactive(t *testing.T) {
	s := NewMemoryStore()
	s.Put(newTarget("a", true))
	s.Put(newTarget("b", false))
	s.Put(newTarget("c", true))

	got, err := s.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListActive returned %d targets, want 2", len(got))
	}
	for _, tgt := range got {
		if !tgt.IsActive {
			t.Errorf("inactive target %q listed", tgt.ID)
		}
	}
}

func TestMemoryStore_UpdateStateResetsFailureBookkeeping(t *testing.T) {
	s := NewMemoryStore()
	s.Put(newTarget("a", true))
	ctx := context.Background()

	if err := s.RecordFailure(ctx, "a", "load timed out"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if err := s.RecordFailure(ctx, "a", "load timed out again"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	at := time.Now()
	state := models.ExtractedState{"price": int64(10)}
	if err := s.UpdateState(ctx, "a", state, at); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0 after success", got.ConsecutiveErrors)
	}
	if got.LastError != "" {
		t.Errorf("LastError = %q, want cleared", got.LastError)
	}
	if got.LastScrapedAt == nil || !got.LastScrapedAt.Equal(at) {
		t.Errorf("LastScrapedAt = %v, want %v", got.LastScrapedAt, at)
	}
	if got.LastKnownState["price"] != int64(10) {
		t.Errorf("LastKnownState = %v", got.LastKnownState)
	}
}

func TestMemoryStore_RecordFailurePreservesState(t *testing.T) {
	s := NewMemoryStore()
	s.Put(newTarget("a", true))
	ctx := context.Background()

	state := models.ExtractedState{"price": int64(10)}
	if err := s.UpdateState(ctx, "a", state, time.Now()); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if err := s.RecordFailure(ctx, "a", "navigation failed"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	got, _ := s.Get(ctx, "a")
	if got.ConsecutiveErrors != 1 || got.LastError != "navigation failed" {
		t.Errorf("failure bookkeeping = (%d, %q)", got.ConsecutiveErrors, got.LastError)
	}
	if got.LastKnownState["price"] != int64(10) {
		t.Error("failure must not touch the last known state")
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	s.Put(newTarget("a", true))
	ctx := context.Background()

	if err := s.UpdateState(ctx, "a", models.ExtractedState{"k": "v"}, time.Now()); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}

	first, _ := s.Get(ctx, "a")
	first.LastKnownState["k"] = "mutated"
	first.IsActive = false

	second, _ := s.Get(ctx, "a")
	if second.LastKnownState["k"] != "v" {
		t.Error("caller mutation leaked into stored state")
	}
	if !second.IsActive {
		t.Error("caller mutation leaked into stored target")
	}
}

func TestLoadTargetsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.json")
	data := `[
		{"id": "launch-page", "url": "https://example.com/launch",
		 "config": {"selectors": {"date": "css:.date"}},
		 "scrape_interval_minutes": 60, "is_active": true}
	]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	store, err := LoadTargetsFile(path)
	if err != nil {
		t.Fatalf("LoadTargetsFile failed: %v", err)
	}
	got, err := store.Get(context.Background(), "launch-page")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.URL != "https://example.com/launch" || got.ScrapeIntervalMinutes != 60 {
		t.Errorf("loaded target = %+v", got)
	}
}

func TestLoadTargetsFile_RejectsEntriesWithoutID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.json")
	if err := os.WriteFile(path, []byte(`[{"url": "https://example.com"}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTargetsFile(path); err == nil {
		t.Error("expected missing-id entry to be rejected")
	}
}
