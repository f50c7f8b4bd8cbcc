package browser

import (
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/use-agent/haunt/models"
)

// Handle health thresholds: a handle is retired after it has absorbed too
// many failures, served too many loads, or simply lived too long.
const (
	retireErrScore = 3.0
	retireUseCount = 50
	retireMaxAge   = 50 * time.Minute
)

// Handle is one pooled browser page with health tracking metadata.
// Handles are owned exclusively by the Pool; callers borrow them for the
// duration of a single load and never mutate them. All metadata mutation
// happens under the pool mutex.
type Handle struct {
	id       int64
	page     *rod.Page
	errScore float64
	useCount int
	created  time.Time

	// releasing marks a handle whose page is being parked; it stays in the
	// in-use set until the park finishes so it cannot be re-acquired early.
	releasing bool
}

// ID returns the handle's pool-assigned identifier.
func (h *Handle) ID() int64 { return h.id }

// Page returns the underlying browser page.
func (h *Handle) Page() *rod.Page { return h.page }

func (h *Handle) recordSuccess() {
	h.useCount++
	if h.errScore > 0.5 {
		h.errScore -= 0.5
	} else {
		h.errScore = 0
	}
}

func (h *Handle) recordFailure() {
	h.useCount++
	h.errScore += 1.0
}

func (h *Handle) shouldRetire() bool {
	return h.errScore >= retireErrScore ||
		h.useCount >= retireUseCount ||
		time.Since(h.created) >= retireMaxAge
}

// Stats is a snapshot of the pool's current state.
type Stats struct {
	MaxSize int `json:"max_size"`
	Live    int `json:"live"`
	Active  int `json:"active"`
}

// PageFactory creates a new page for the pool.
type PageFactory func() (*rod.Page, error)

// Pool is a bounded, fail-fast pool of rendering handles. Acquire never
// blocks: when every handle is busy and the pool is at capacity it returns a
// POOL_EXHAUSTED error so the scheduling layer can retry with backoff instead
// of starving other callers.
// It is safe for concurrent use; all state mutation is serialized by one
// mutex and scans are O(pool size), which stays tiny.
type Pool struct {
	maxSize int
	factory PageFactory

	// park returns a released page to a neutral state. Injectable so tests
	// can observe parking without a live browser.
	park func(*Handle)

	mu      sync.Mutex
	handles []*Handle
	inUse   map[*Handle]struct{}
	nextID  int64
	closed  bool
}

// NewPool creates a pool that lazily creates up to maxSize handles via
// factory. No handle is created until the first Acquire.
func NewPool(maxSize int, factory PageFactory) *Pool {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Pool{
		maxSize: maxSize,
		factory: factory,
		park:    parkPage,
		inUse:   make(map[*Handle]struct{}),
	}
}

// Acquire returns an idle handle, creating one if the pool is below capacity.
// When every handle is busy and the pool is full it fails immediately.
func (p *Pool) Acquire() (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, models.NewMonitorError(
			models.ErrCodePoolExhausted, "pool is shut down", nil)
	}

	for _, h := range p.handles {
		if _, busy := p.inUse[h]; !busy {
			p.inUse[h] = struct{}{}
			return h, nil
		}
	}

	if len(p.handles) < p.maxSize {
		page, err := p.factory()
		if err != nil {
			return nil, models.NewMonitorError(
				models.ErrCodeBrowserCrash, "failed to create rendering handle", err)
		}
		p.nextID++
		h := &Handle{id: p.nextID, page: page, created: time.Now()}
		p.handles = append(p.handles, h)
		p.inUse[h] = struct{}{}
		slog.Debug("pool: created handle", "id", h.id, "live", len(p.handles))
		return h, nil
	}

	return nil, models.NewMonitorError(
		models.ErrCodePoolExhausted,
		"all rendering handles are busy", nil)
}

// Release returns a handle to the idle set, applying health scoring and
// retiring it if unhealthy. Releasing a handle that is not tracked as in-use
// is a no-op. Released pages are parked on about:blank so a retained DOM
// cannot leak memory between borrows; the handle stays out of the idle set
// until the park completes, so a concurrent Acquire can never hand a
// mid-park page to a new borrower.
func (p *Pool) Release(h *Handle, success bool) {
	if h == nil {
		return
	}

	p.mu.Lock()
	if _, busy := p.inUse[h]; !busy || h.releasing {
		p.mu.Unlock()
		return
	}

	if success {
		h.recordSuccess()
	} else {
		h.recordFailure()
	}

	if h.shouldRetire() {
		delete(p.inUse, h)
		p.removeLocked(h)
		p.mu.Unlock()
		slog.Debug("pool: retiring handle",
			"id", h.id, "errScore", h.errScore, "useCount", h.useCount)
		closeHandle(h)
		return
	}

	h.releasing = true
	p.mu.Unlock()

	p.park(h)

	p.mu.Lock()
	h.releasing = false
	delete(p.inUse, h)
	p.mu.Unlock()
}

func parkPage(h *Handle) {
	if h.page == nil {
		return
	}
	if err := h.page.Navigate("about:blank"); err != nil {
		slog.Warn("pool: failed to park released page", "id", h.id, "error", err)
	}
}

// With acquires a handle, runs fn with it, and releases it on every exit
// path, including a panic inside fn.
func (p *Pool) With(fn func(*Handle) error) (err error) {
	h, acquireErr := p.Acquire()
	if acquireErr != nil {
		return acquireErr
	}
	defer func() {
		r := recover()
		p.Release(h, err == nil && r == nil)
		if r != nil {
			// A panicking borrower degrades to an error at the scheduling
			// layer instead of unwinding the worker.
			slog.Error("pool: borrower panicked", "id", h.id, "panic", r)
			err = models.NewMonitorError(
				models.ErrCodeFieldExtraction, "extraction panicked", nil)
		}
	}()
	return fn(h)
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{MaxSize: p.maxSize, Live: len(p.handles), Active: len(p.inUse)}
}

// Shutdown closes every tracked handle and clears pool state. Intended for
// process teardown, not per-request use.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	handles := p.handles
	p.handles = nil
	p.inUse = make(map[*Handle]struct{})
	p.closed = true
	p.mu.Unlock()

	for _, h := range handles {
		closeHandle(h)
	}
	slog.Info("pool shut down", "closed", len(handles))
}

// removeLocked drops h from the live list. Caller must hold p.mu.
func (p *Pool) removeLocked(h *Handle) {
	for i, other := range p.handles {
		if other == h {
			p.handles = append(p.handles[:i], p.handles[i+1:]...)
			return
		}
	}
}

func closeHandle(h *Handle) {
	if h.page == nil {
		return
	}
	if err := h.page.Close(); err != nil {
		slog.Warn("pool: failed to close page", "id", h.id, "error", err)
	}
}
