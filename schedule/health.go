package schedule

import (
	"sync"
	"time"
)

// TargetHealth is the in-process view of one target's recent behaviour. The
// storage collaborator keeps the authoritative error counters; this tracker
// exists so the ops surface and the drift check work without a storage
// round-trip.
type TargetHealth struct {
	ConsecutiveErrors int       `json:"consecutive_errors"`
	LastError         string    `json:"last_error,omitempty"`
	LastSuccessAt     time.Time `json:"last_success_at,omitzero"`
	LastFingerprint   uint64    `json:"last_fingerprint,omitempty"`
}

// HealthTracker accumulates per-target health in memory.
// It is safe for concurrent use.
type HealthTracker struct {
	mu      sync.Mutex
	targets map[string]*TargetHealth
}

// NewHealthTracker creates an empty tracker.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{targets: make(map[string]*TargetHealth)}
}

// RecordSuccess resets the error streak, stores the new DOM fingerprint and
// returns the previous one (0 when this is the first recorded run).
func (t *HealthTracker) RecordSuccess(targetID string, fingerprint uint64) (previous uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.entryLocked(targetID)
	previous = h.LastFingerprint
	h.ConsecutiveErrors = 0
	h.LastError = ""
	h.LastSuccessAt = time.Now()
	h.LastFingerprint = fingerprint
	return previous
}

// RecordFailure increments the error streak and returns its new length.
func (t *HealthTracker) RecordFailure(targetID string, err error) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.entryLocked(targetID)
	h.ConsecutiveErrors++
	if err != nil {
		h.LastError = err.Error()
	}
	return h.ConsecutiveErrors
}

// Snapshot returns a copy of all tracked health entries.
func (t *HealthTracker) Snapshot() map[string]TargetHealth {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]TargetHealth, len(t.targets))
	for id, h := range t.targets {
		out[id] = *h
	}
	return out
}

func (t *HealthTracker) entryLocked(targetID string) *TargetHealth {
	h, ok := t.targets[targetID]
	if !ok {
		h = &TargetHealth{}
		t.targets[targetID] = h
	}
	return h
}
