package models

import (
	"encoding/json"
	"time"
)

// ExtractedState maps configured field names to their normalized values.
// Values are nil, string, int64, float64 or bool; nothing else is ever
// produced by the extraction pipeline. States decoded from stored JSON carry
// float64 for all numbers.
type ExtractedState map[string]any

// ValueChange is one field's before/after pair in a change set.
type ValueChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// ChangeSet holds only the fields whose value differs between two successive
// extractions. A field present on one side only has nil on the other.
type ChangeSet map[string]ValueChange

// Fields returns the changed field names in no particular order.
func (cs ChangeSet) Fields() []string {
	names := make([]string, 0, len(cs))
	for name := range cs {
		names = append(names, name)
	}
	return names
}

// Target is a monitored URL plus its extraction configuration, as handed to
// the engine by the storage collaborator.
type Target struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`

	// Config is the raw extraction configuration JSON
	// ({"selectors": ..., "normalization": ...}); parsed per run.
	Config json.RawMessage `json:"config"`

	LastKnownState        ExtractedState `json:"last_known_state,omitempty"`
	ScrapeIntervalMinutes int            `json:"scrape_interval_minutes"`
	IsActive              bool           `json:"is_active"`

	LastScrapedAt     *time.Time `json:"last_scraped_at,omitempty"`
	ConsecutiveErrors int        `json:"consecutive_errors,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
}

// Interval returns the configured scrape interval as a duration.
func (t *Target) Interval() time.Duration {
	return time.Duration(t.ScrapeIntervalMinutes) * time.Minute
}

// RunStatus is the outcome category of one extraction run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunSkipped RunStatus = "skipped"
	RunError   RunStatus = "error"
)

// RunResult is what the engine hands back to its caller for one run.
type RunResult struct {
	RunID      string         `json:"run_id"`
	TargetID   string         `json:"target_id"`
	Status     RunStatus      `json:"status"`
	NewState   ExtractedState `json:"new_state,omitempty"`
	HasChanges bool           `json:"has_changes"`
	ChangeSet  ChangeSet      `json:"change_set,omitempty"`
	DurationMs int64          `json:"duration_ms"`

	// SkipReason is set when Status is "skipped".
	SkipReason string `json:"skip_reason,omitempty"`

	// ErrorCode and Error are set when Status is "error".
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}
