package bucket

import (
	"math"
	"net/http"
)

// Controller mutates a bucket's capacity from observed API feedback.
// Each rate-limit response shrinks capacity multiplicatively; each full
// streak of successes grows it multiplicatively but more slowly, so
// overshoot is punished fast and recovery stays conservative.
type Controller struct {
	statuses map[int]struct{}
}

// NewController creates a controller treating the given status codes as
// rate-limit signals. With no arguments only 429 qualifies.
func NewController(rateLimitStatuses ...int) *Controller {
	if len(rateLimitStatuses) == 0 {
		rateLimitStatuses = []int{http.StatusTooManyRequests}
	}
	statuses := make(map[int]struct{}, len(rateLimitStatuses))
	for _, s := range rateLimitStatuses {
		statuses[s] = struct{}{}
	}
	return &Controller{statuses: statuses}
}

// IsRateLimit reports whether statusCode counts as a rate-limit rejection.
func (c *Controller) IsRateLimit(statusCode int) bool {
	_, ok := c.statuses[statusCode]
	return ok
}

// Outcome describes the effect of one observed response on a bucket.
type Outcome struct {
	RateLimited     bool
	CapacityChanged bool
	Capacity        int
	Recovered       bool
}

// Observe applies one response outcome to the bucket. A rate-limit status
// triggers one backoff step immediately and unconditionally; any other
// status advances the success streak. Non-adaptive buckets keep their
// capacity but the outcome still reports classification for stats.
func (c *Controller) Observe(b *Bucket, statusCode int) Outcome {
	if c.IsRateLimit(statusCode) {
		changed, capacity := b.backoff()
		return Outcome{RateLimited: true, CapacityChanged: changed, Capacity: capacity}
	}
	grew, capacity := b.success()
	return Outcome{CapacityChanged: grew, Capacity: capacity, Recovered: grew}
}

// backoff shrinks capacity by the backoff multiplier, floored at
// MinRequests, and resets the success streak.
func (b *Bucket) backoff() (changed bool, capacity int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.cfg.Adaptive {
		return false, b.capacity
	}

	// Accrue tokens at the old rate before the rate changes.
	b.refillLocked(b.clock.Now())

	next := int(math.Round(float64(b.capacity) * b.cfg.BackoffMultiplier))
	if next < b.cfg.MinRequests {
		next = b.cfg.MinRequests
	}

	changed = next != b.capacity
	b.capacity = next
	b.streak = 0
	b.tokens = clamp(b.tokens, 0, b.ceilingLocked())
	return changed, b.capacity
}

// success advances the streak; at the threshold it applies one recovery
// step, capped at MaxRequestsCap, and restarts the streak. Restarting
// after every step keeps one long streak from growing capacity unbounded.
func (b *Bucket) success() (grew bool, capacity int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.cfg.Adaptive {
		return false, b.capacity
	}

	b.streak++
	if b.streak < b.cfg.SuccessStreakThreshold {
		return false, b.capacity
	}

	b.refillLocked(b.clock.Now())

	next := int(math.Round(float64(b.capacity) * b.cfg.RecoveryMultiplier))
	if next > b.cfg.MaxRequestsCap {
		next = b.cfg.MaxRequestsCap
	}

	grew = next != b.capacity
	b.capacity = next
	b.streak = 0
	b.tokens = clamp(b.tokens, 0, b.ceilingLocked())
	return grew, b.capacity
}
