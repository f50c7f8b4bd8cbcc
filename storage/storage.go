// Package storage defines the boundary to the external persistence
// collaborator. The engine only ever talks to TargetStore; the real
// implementation (database, ORM, whatever the host application uses) lives
// outside this repo. MemoryStore backs tests and the demo binary.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/use-agent/haunt/models"
)

// ErrNotFound is returned when a target id is unknown.
var ErrNotFound = errors.New("storage: target not found")

// TargetStore is the persistence contract the engine consumes.
//
// UpdateState must be applied atomically per target (the real implementation
// is expected to hold a row-level lock): it stores the new last-known state,
// stamps the scrape time, and clears the error bookkeeping. RecordFailure
// increments the consecutive-error counter and leaves the last-known state
// untouched so the next run diffs against the last good state.
type TargetStore interface {
	Get(ctx context.Context, id string) (*models.Target, error)
	ListActive(ctx context.Context) ([]*models.Target, error)
	UpdateState(ctx context.Context, id string, state models.ExtractedState, scrapedAt time.Time) error
	RecordFailure(ctx context.Context, id string, message string) error
}
