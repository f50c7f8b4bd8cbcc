// Package metrics records per-target success/failure/duration for
// operational visibility.
package metrics

import (
	"log/slog"
	"sync"
	"time"
)

// Sink receives the outcome of every extraction run. Implementations must be
// safe for concurrent use.
type Sink interface {
	RecordSuccess(targetID string, duration time.Duration)
	RecordFailure(targetID string, errorKind string)
}

// TargetStats is the accumulated view of one target's runs.
type TargetStats struct {
	Successes           int64     `json:"successes"`
	Failures            int64     `json:"failures"`
	ConsecutiveFailures int64     `json:"consecutive_failures"`
	LastDurationMs      int64     `json:"last_duration_ms"`
	LastErrorKind       string    `json:"last_error_kind,omitempty"`
	LastSuccessAt       time.Time `json:"last_success_at,omitzero"`
	LastFailureAt       time.Time `json:"last_failure_at,omitzero"`
}

// Registry is the in-memory Sink used by the ops surface.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]*TargetStats
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{targets: make(map[string]*TargetStats)}
}

func (r *Registry) RecordSuccess(targetID string, duration time.Duration) {
	r.mu.Lock()
	st := r.statsLocked(targetID)
	st.Successes++
	st.ConsecutiveFailures = 0
	st.LastDurationMs = duration.Milliseconds()
	st.LastErrorKind = ""
	st.LastSuccessAt = time.Now()
	r.mu.Unlock()

	slog.Debug("metrics: run succeeded",
		"target", targetID, "durationMs", duration.Milliseconds())
}

func (r *Registry) RecordFailure(targetID string, errorKind string) {
	r.mu.Lock()
	st := r.statsLocked(targetID)
	st.Failures++
	st.ConsecutiveFailures++
	st.LastErrorKind = errorKind
	st.LastFailureAt = time.Now()
	consecutive := st.ConsecutiveFailures
	r.mu.Unlock()

	slog.Warn("metrics: run failed",
		"target", targetID, "kind", errorKind, "consecutive", consecutive)
}

// Snapshot returns a copy of all per-target stats.
func (r *Registry) Snapshot() map[string]TargetStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]TargetStats, len(r.targets))
	for id, st := range r.targets {
		out[id] = *st
	}
	return out
}

// statsLocked returns the stats entry for a target, creating it if needed.
// Caller must hold r.mu.
func (r *Registry) statsLocked(targetID string) *TargetStats {
	st, ok := r.targets[targetID]
	if !ok {
		st = &TargetStats{}
		r.targets[targetID] = st
	}
	return st
}

// Nop is a Sink that discards everything; handy in tests.
type Nop struct{}

func (Nop) RecordSuccess(string, time.Duration) {}
func (Nop) RecordFailure(string, string)        {}
