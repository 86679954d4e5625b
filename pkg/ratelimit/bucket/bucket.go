// Package bucket implements the token bucket admission primitive with
// adaptive capacity control driven by upstream feedback.
package bucket

import (
	"math"
	"sync"
	"time"

	"github.com/apiwarden/apiwarden/pkg/common/validation"
)

const module = "bucket"

// tokenEpsilon absorbs float error from lazy refill arithmetic, e.g. a 6s
// refill at 10/60s accumulating to 0.999999... instead of 1.
const tokenEpsilon = 1e-9

// DefaultSuccessStreakThreshold is the number of consecutive successful
// responses required before one capacity recovery step.
const DefaultSuccessStreakThreshold = 100

// Clock provides the current time. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Config holds the static and adaptive parameters of one bucket.
type Config struct {
	// Name is the unique API name this bucket governs.
	Name string

	// MaxRequests is the steady-state capacity per Window.
	MaxRequests int

	// Window is the time span over which MaxRequests tokens refill.
	Window time.Duration

	// Burst is the number of extra tokens available beyond capacity,
	// absorbed instantly rather than trickling in.
	Burst int

	// Adaptive enables capacity mutation from observed responses.
	Adaptive bool

	// MinRequests is the floor capacity may be backed off to.
	MinRequests int

	// MaxRequestsCap is the ceiling capacity may recover to.
	MaxRequestsCap int

	// BackoffMultiplier shrinks capacity on each rate-limit response (0 < x < 1).
	BackoffMultiplier float64

	// RecoveryMultiplier grows capacity after a full success streak (x > 1).
	RecoveryMultiplier float64

	// SuccessStreakThreshold gates recovery growth. Defaults to 100.
	SuccessStreakThreshold int

	// Clock provides the current time. If nil, SystemClock is used.
	Clock Clock
}

// withDefaults fills unset optional fields.
func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.SuccessStreakThreshold <= 0 {
		c.SuccessStreakThreshold = DefaultSuccessStreakThreshold
	}
	if c.Adaptive {
		if c.MinRequests <= 0 {
			c.MinRequests = 1
		}
		if c.MaxRequestsCap <= 0 {
			c.MaxRequestsCap = c.MaxRequests
		}
		if c.BackoffMultiplier == 0 {
			c.BackoffMultiplier = 0.5
		}
		if c.RecoveryMultiplier == 0 {
			c.RecoveryMultiplier = 1.1
		}
	}
	return c
}

// Validate checks the configuration, returning a ValidationError on the
// first invalid field. Invalid combinations are rejected here, at
// registration time, not at first use.
func (c Config) Validate() error {
	if err := validation.ValidateNotEmpty(module, "name", c.Name); err != nil {
		return err
	}
	if err := validation.ValidatePositive(module, "maxRequests", c.MaxRequests); err != nil {
		return err
	}
	if err := validation.ValidatePositiveDuration(module, "window", c.Window); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative(module, "burst", c.Burst); err != nil {
		return err
	}
	if !c.Adaptive {
		return nil
	}
	if err := validation.ValidatePositive(module, "minRequests", c.MinRequests); err != nil {
		return err
	}
	if err := validation.ValidateAtLeast(module, "maxRequestsCap", c.MaxRequestsCap, c.MinRequests); err != nil {
		return err
	}
	if err := validation.ValidateOpenUnitInterval(module, "backoffMultiplier", c.BackoffMultiplier); err != nil {
		return err
	}
	if err := validation.ValidateGreaterThan(module, "recoveryMultiplier", c.RecoveryMultiplier, 1); err != nil {
		return err
	}
	return nil
}

// Bucket is a per-(API, endpoint) token counter with lazy refill.
// All mutable state is guarded by the bucket's own mutex; buckets are
// mutually independent, so no cross-bucket lock ordering exists.
type Bucket struct {
	mu         sync.Mutex
	cfg        Config
	clock      Clock
	capacity   int
	tokens     float64
	lastRefill time.Time
	streak     int
}

// New creates a bucket from cfg, starting full (capacity plus burst).
// Returns a ValidationError if the configuration is invalid.
func New(cfg Config) (*Bucket, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	capacity := cfg.MaxRequests
	if cfg.Adaptive {
		// Keep the starting capacity inside the adaptive bounds.
		if capacity < cfg.MinRequests {
			capacity = cfg.MinRequests
		}
		if capacity > cfg.MaxRequestsCap {
			capacity = cfg.MaxRequestsCap
		}
	}

	return &Bucket{
		cfg:        cfg,
		clock:      cfg.Clock,
		capacity:   capacity,
		tokens:     float64(capacity + cfg.Burst),
		lastRefill: cfg.Clock.Now(),
	}, nil
}

// TryAcquire attempts to consume n tokens. It returns (true, 0) when the
// tokens were consumed, or (false, wait) with the time until n tokens will
// have refilled. Tokens are never consumed on denial. It does not block.
func (b *Bucket) TryAcquire(n int) (bool, time.Duration) {
	if n <= 0 {
		return true, 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(b.clock.Now())

	if b.tokens+tokenEpsilon >= float64(n) {
		b.tokens -= float64(n)
		if b.tokens < 0 {
			b.tokens = 0
		}
		return true, 0
	}

	deficit := float64(n) - b.tokens
	wait := time.Duration(deficit / b.refillRateLocked() * float64(time.Second))
	return false, wait
}

// Capacity returns the current effective capacity.
func (b *Bucket) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// Tokens returns the number of tokens currently available.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(b.clock.Now())
	return b.tokens
}

// SuccessStreak returns the count of consecutive non-rate-limited responses
// since the last capacity change.
func (b *Bucket) SuccessStreak() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streak
}

// Config returns the configuration the bucket was created with.
func (b *Bucket) Config() Config {
	return b.cfg
}

// Name returns the API name from the bucket's configuration.
func (b *Bucket) Name() string {
	return b.cfg.Name
}

// State copies the persistable fields under the bucket lock.
func (b *Bucket) State() (capacity int, tokens float64, lastRefill time.Time, streak int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity, b.tokens, b.lastRefill, b.streak
}

// Restore rehydrates the bucket from persisted values, clamping them into
// the configured bounds. Capacity is only restored for adaptive buckets;
// a non-adaptive bucket's capacity is immutable.
func (b *Bucket) Restore(capacity int, tokens float64, lastRefill time.Time, streak int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.Adaptive {
		if capacity < b.cfg.MinRequests {
			capacity = b.cfg.MinRequests
		}
		if capacity > b.cfg.MaxRequestsCap {
			capacity = b.cfg.MaxRequestsCap
		}
		b.capacity = capacity
	}

	b.tokens = clamp(tokens, 0, b.ceilingLocked())
	if streak >= 0 {
		b.streak = streak
	}
	if lastRefill.IsZero() {
		lastRefill = b.clock.Now()
	}
	b.lastRefill = lastRefill
}

// refillLocked adds tokens for the time elapsed since the last refill.
// Refill is lazy: a pure function of elapsed time, no background timer.
func (b *Bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.tokens+elapsed.Seconds()*b.refillRateLocked(), b.ceilingLocked())
	b.lastRefill = now
}

// refillRateLocked is tokens per second derived from the live capacity.
func (b *Bucket) refillRateLocked() float64 {
	return float64(b.capacity) / b.cfg.Window.Seconds()
}

// ceilingLocked is the maximum token count: capacity plus burst.
func (b *Bucket) ceilingLocked() float64 {
	return float64(b.capacity + b.cfg.Burst)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
