package schedule

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/use-agent/haunt/models"
)

// RetryPolicy retries an operation with exponential backoff and jitter,
// bounded by MaxAttempts. Only transient failures (per models.Transient) are
// retried; SSRF blocks and config errors surface immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Jitter is the random fraction (0.0-1.0) added to each delay so
	// colliding retries spread out.
	Jitter float64
}

// Do runs op until it succeeds, fails non-transiently, exhausts attempts, or
// the context is done. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if !models.Transient(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		delay := p.backoff(attempt)
		slog.Debug("retrying after transient failure",
			"attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
	return err
}

// backoff computes base*2^attempt capped at MaxDelay, plus jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	d := base << uint(attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Float64() * p.Jitter * float64(d))
	}
	return d
}
