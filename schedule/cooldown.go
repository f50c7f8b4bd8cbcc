package schedule

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Cooldown rate-limits manual (user-triggered) runs per target so a user
// cannot trigger unbounded concurrent work for one target. Manual runs
// bypass the skip-if-recent guard, so this is their only brake.
type Cooldown struct {
	every time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewCooldown creates a Cooldown allowing one manual run per target per
// `every`, with a burst of one.
func NewCooldown(every time.Duration) *Cooldown {
	return &Cooldown{
		every:    every,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a manual run of the target may proceed now.
func (c *Cooldown) Allow(targetID string) bool {
	if c.every <= 0 {
		return true
	}
	c.mu.Lock()
	lim, ok := c.limiters[targetID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(c.every), 1)
		c.limiters[targetID] = lim
	}
	c.mu.Unlock()
	return lim.Allow()
}
