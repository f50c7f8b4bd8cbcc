// Package schedule decides when each monitored target runs and orchestrates
// the retryable unit of work: acquire a rendering handle, load the page,
// extract and normalize fields, diff against the last good state, and hand
// the outcome to alerting, storage and metrics.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/haunt/alert"
	"github.com/use-agent/haunt/browser"
	"github.com/use-agent/haunt/detect"
	"github.com/use-agent/haunt/drift"
	"github.com/use-agent/haunt/extract"
	"github.com/use-agent/haunt/loader"
	"github.com/use-agent/haunt/metrics"
	"github.com/use-agent/haunt/models"
	"github.com/use-agent/haunt/storage"
)

// dueFraction guards against redundant work when the tick cadence and the
// configured interval drift: a target only runs once at least 90% of its
// interval has elapsed since the last successful run.
const dueFraction = 0.9

// driftWarnDistance is the DOM fingerprint Hamming distance above which a
// layout shift is reported when fields also extract to null.
const driftWarnDistance = 16

// PageLoader is the loading dependency; *loader.Loader satisfies it.
type PageLoader interface {
	Load(ctx context.Context, h *browser.Handle, url string) (*loader.Page, error)
}

// Publisher hands an alert-worthy run to downstream delivery.
type Publisher interface {
	Publish(ctx context.Context, res *models.RunResult, decision *alert.Decision) error
}

// Options configures a Coordinator. Pool, Loader and Store are required;
// Evaluator, Publisher and Sink are optional collaborators.
type Options struct {
	Pool      *browser.Pool
	Loader    PageLoader
	Store     storage.TargetStore
	Sink      metrics.Sink
	Evaluator alert.Evaluator
	Publisher Publisher

	Retry          RetryPolicy
	ManualCooldown time.Duration

	// ExcerptTokens caps the page excerpt passed to the evaluator;
	// 0 disables excerpts.
	ExcerptTokens int
}

// Coordinator runs extractions for monitored targets. Targets are
// independent units of work; the rendering pool is the only shared resource.
// At most one run per target is in flight at a time.
type Coordinator struct {
	pool      *browser.Pool
	loader    PageLoader
	store     storage.TargetStore
	sink      metrics.Sink
	evaluator alert.Evaluator
	publisher Publisher

	retry         RetryPolicy
	excerptTokens int

	health   *HealthTracker
	cooldown *Cooldown

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a Coordinator from options.
func New(opts Options) *Coordinator {
	sink := opts.Sink
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &Coordinator{
		pool:          opts.Pool,
		loader:        opts.Loader,
		store:         opts.Store,
		sink:          sink,
		evaluator:     opts.Evaluator,
		publisher:     opts.Publisher,
		retry:         opts.Retry,
		excerptTokens: opts.ExcerptTokens,
		health:        NewHealthTracker(),
		cooldown:      NewCooldown(opts.ManualCooldown),
		inflight:      make(map[string]struct{}),
	}
}

// Health exposes the in-process health tracker for the ops surface.
func (c *Coordinator) Health() *HealthTracker { return c.health }

// RunDue sweeps every active target and runs the due ones concurrently,
// returning when all dispatched runs have finished. One target's failure
// never affects another's run.
func (c *Coordinator) RunDue(ctx context.Context) {
	targets, err := c.store.ListActive(ctx)
	if err != nil {
		slog.Error("schedule: failed to list active targets", "error", err)
		return
	}

	now := time.Now()
	var wg sync.WaitGroup
	for _, t := range targets {
		if !due(t, now) {
			continue
		}
		wg.Add(1)
		go func(t *models.Target) {
			defer wg.Done()
			if _, err := c.run(ctx, t, false); err != nil {
				slog.Debug("schedule: scheduled run failed", "target", t.ID, "error", err)
			}
		}(t)
	}
	wg.Wait()
}

// RunExtraction runs one target through the full pipeline, honouring the
// skip-if-recent guard. The returned result always describes the outcome;
// err is non-nil only for error-status results.
func (c *Coordinator) RunExtraction(ctx context.Context, targetID string) (*models.RunResult, error) {
	t, err := c.store.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, t, false)
}

// RunManual is the user-triggered entry point: it bypasses the
// skip-if-recent guard but is rate-limited per target by the cooldown.
// A run that is skipped for any other reason does not consume the
// cooldown token.
func (c *Coordinator) RunManual(ctx context.Context, targetID string) (*models.RunResult, error) {
	t, err := c.store.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}

	res := newResult(targetID)
	if !t.IsActive {
		return skip(res, "target is inactive")
	}
	if !c.beginRun(t.ID) {
		return skip(res, "a run is already in flight")
	}
	defer c.endRun(t.ID)

	if !c.cooldown.Allow(targetID) {
		return skip(res, "manual run cooldown active")
	}
	return c.execute(ctx, t, res)
}

func newResult(targetID string) *models.RunResult {
	return &models.RunResult{RunID: uuid.NewString(), TargetID: targetID}
}

func skip(res *models.RunResult, reason string) (*models.RunResult, error) {
	res.Status = models.RunSkipped
	res.SkipReason = reason
	return res, nil
}

// due applies the skip-if-recent guard.
func due(t *models.Target, now time.Time) bool {
	if t.LastScrapedAt == nil {
		return true
	}
	interval := t.Interval()
	if interval <= 0 {
		return true
	}
	return now.Sub(*t.LastScrapedAt) >= time.Duration(dueFraction*float64(interval))
}

func (c *Coordinator) run(ctx context.Context, t *models.Target, force bool) (*models.RunResult, error) {
	res := newResult(t.ID)

	if !t.IsActive {
		return skip(res, "target is inactive")
	}
	if !force && !due(t, time.Now()) {
		return skip(res, "ran recently")
	}
	if !c.beginRun(t.ID) {
		return skip(res, "a run is already in flight")
	}
	defer c.endRun(t.ID)

	return c.execute(ctx, t, res)
}

// execute performs the load/extract/diff pipeline. The caller holds the
// per-target in-flight slot.
func (c *Coordinator) execute(ctx context.Context, t *models.Target, res *models.RunResult) (*models.RunResult, error) {
	// Config problems are operator errors: fail fast, never retry.
	cfg, err := extract.ParseConfig(t.Config)
	if err != nil {
		return c.fail(ctx, res, t, err)
	}

	start := time.Now()
	var page *loader.Page
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		return c.pool.With(func(h *browser.Handle) error {
			p, loadErr := c.loader.Load(ctx, h, t.URL)
			if loadErr != nil {
				return loadErr
			}
			page = p
			return nil
		})
	})
	if err != nil {
		return c.fail(ctx, res, t, err)
	}

	state := extract.Extract(page.RenderedHTML, cfg)
	hasChanges, changes := detect.Diff(t.LastKnownState, state)

	fingerprint := drift.FingerprintDOM(page.RenderedHTML)
	previous := c.health.RecordSuccess(t.ID, fingerprint)
	warnOnDrift(t.ID, state, fingerprint, previous)

	if err := c.store.UpdateState(ctx, t.ID, state, time.Now()); err != nil {
		return c.fail(ctx, res, t, err)
	}

	duration := time.Since(start)
	res.Status = models.RunSuccess
	res.NewState = state
	res.HasChanges = hasChanges
	res.ChangeSet = changes
	res.DurationMs = duration.Milliseconds()
	c.sink.RecordSuccess(t.ID, duration)

	if hasChanges {
		c.evaluateAndPublish(ctx, t, res, page)
	}

	slog.Info("extraction run complete",
		"target", t.ID, "run", res.RunID,
		"changes", len(changes), "durationMs", res.DurationMs)
	return res, nil
}

// evaluateAndPublish asks the alert evaluator for a verdict (falling back to
// alert-on-any-change) and hands alert-worthy results downstream.
func (c *Coordinator) evaluateAndPublish(ctx context.Context, t *models.Target, res *models.RunResult, page *loader.Page) {
	evaluation := &alert.Evaluation{
		Description: t.Description,
		OldState:    t.LastKnownState,
		NewState:    res.NewState,
		ChangeSet:   res.ChangeSet,
	}
	if c.evaluator != nil && c.excerptTokens > 0 {
		evaluation.PageExcerpt = alert.Excerpt(page.RenderedHTML, page.FinalURL, c.excerptTokens)
	}

	decision := alert.Decide(ctx, c.evaluator, evaluation)
	slog.Info("change evaluated",
		"target", t.ID, "run", res.RunID,
		"shouldAlert", decision.ShouldAlert,
		"confidence", decision.Confidence,
		"reason", decision.Reason)

	if decision.ShouldAlert && c.publisher != nil {
		if err := c.publisher.Publish(ctx, res, decision); err != nil {
			slog.Warn("schedule: publish failed", "target", t.ID, "error", err)
		}
	}
}

// fail records a run failure everywhere it needs recording. The target's
// last-known state stays untouched so the next run diffs against the last
// good state rather than a partial one.
func (c *Coordinator) fail(ctx context.Context, res *models.RunResult, t *models.Target, err error) (*models.RunResult, error) {
	kind := models.ErrorKind(err)
	res.Status = models.RunError
	res.ErrorCode = kind
	res.Error = err.Error()

	c.sink.RecordFailure(t.ID, kind)
	streak := c.health.RecordFailure(t.ID, err)
	if storeErr := c.store.RecordFailure(ctx, t.ID, err.Error()); storeErr != nil {
		slog.Warn("schedule: failed to persist failure bookkeeping",
			"target", t.ID, "error", storeErr)
	}

	slog.Warn("extraction run failed",
		"target", t.ID, "run", res.RunID,
		"kind", kind, "consecutive", streak, "error", err)
	return res, err
}

// warnOnDrift flags probable selector rot: the page structure moved a lot
// AND some fields stopped extracting.
func warnOnDrift(targetID string, state models.ExtractedState, fingerprint, previous uint64) {
	if fingerprint == 0 || previous == 0 {
		return
	}
	distance := drift.Distance(fingerprint, previous)
	if distance < driftWarnDistance {
		return
	}
	nulls := 0
	for _, v := range state {
		if v == nil {
			nulls++
		}
	}
	if nulls > 0 {
		slog.Warn("page structure drifted and fields extract to null; selectors may be stale",
			"target", targetID, "distance", distance, "nullFields", nulls)
	}
}

// beginRun enforces at-most-one-in-flight per target.
func (c *Coordinator) beginRun(targetID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[targetID]; busy {
		return false
	}
	c.inflight[targetID] = struct{}{}
	return true
}

func (c *Coordinator) endRun(targetID string) {
	c.mu.Lock()
	delete(c.inflight, targetID)
	c.mu.Unlock()
}
