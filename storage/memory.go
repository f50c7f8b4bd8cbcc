package storage

import (
	"context"
	"sync"
	"time"

	"github.com/use-agent/haunt/models"
)

// MemoryStore is an in-memory TargetStore.
// It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	targets map[string]*models.Target
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{targets: make(map[string]*models.Target)}
}

// Put inserts or replaces a target.
func (s *MemoryStore) Put(t *models.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[t.ID] = cloneTarget(t)
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTarget(t), nil
}

func (s *MemoryStore) ListActive(_ context.Context) ([]*models.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Target, 0, len(s.targets))
	for _, t := range s.targets {
		if t.IsActive {
			out = append(out, cloneTarget(t))
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateState(_ context.Context, id string, state models.ExtractedState, scrapedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return ErrNotFound
	}
	t.LastKnownState = cloneState(state)
	at := scrapedAt
	t.LastScrapedAt = &at
	t.ConsecutiveErrors = 0
	t.LastError = ""
	return nil
}

func (s *MemoryStore) RecordFailure(_ context.Context, id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return ErrNotFound
	}
	t.ConsecutiveErrors++
	t.LastError = message
	return nil
}

// cloneTarget copies a target deeply enough that callers can't mutate stored
// state through the returned pointer.
func cloneTarget(t *models.Target) *models.Target {
	c := *t
	c.LastKnownState = cloneState(t.LastKnownState)
	if t.LastScrapedAt != nil {
		at := *t.LastScrapedAt
		c.LastScrapedAt = &at
	}
	return &c
}

func cloneState(state models.ExtractedState) models.ExtractedState {
	if state == nil {
		return nil
	}
	c := make(models.ExtractedState, len(state))
	for k, v := range state {
		c[k] = v
	}
	return c
}
