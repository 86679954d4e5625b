package priority

import (
	"time"

	"github.com/apiwarden/apiwarden/pkg/ratelimit/bucket"
)

// DefaultPollCeiling caps a single sleep interval for Critical and High
// priority callers. They re-poll after each capped sleep instead of
// sleeping the full deficit in one step, so they observe freshly refilled
// tokens sooner. Medium and Low accept one long sleep per round to reduce
// wakeups. This changes polling granularity only; it never bypasses token
// scarcity.
const DefaultPollCeiling = time.Second

// DefaultTimeout bounds a wait when the caller passes none.
const DefaultTimeout = 60 * time.Second

// Scheduler runs the wait loop for blocked callers. The zero value is not
// usable; construct with New.
type Scheduler struct {
	clock       bucket.Clock
	sleep       func(time.Duration)
	pollCeiling time.Duration
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock injects the time source used to measure elapsed wait.
func WithClock(clock bucket.Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithSleep injects the sleep function used between polls.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

// WithPollCeiling overrides the maximum single sleep for Critical/High.
func WithPollCeiling(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollCeiling = d
		}
	}
}

// New creates a Scheduler with the system clock and real sleeping.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:       bucket.SystemClock{},
		sleep:       time.Sleep,
		pollCeiling: DefaultPollCeiling,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until n tokens are acquired from b or timeout elapses.
// It returns true when the tokens were consumed and false when the caller
// timed out still rate limited; a false return is a normal outcome, not an
// error, and nothing is retried on the caller's behalf.
//
// The bucket lock is re-acquired on each poll, never held across a sleep.
// There is no separate admission queue: under contention, scheduler
// fairness decides who sees refilled tokens first.
func (s *Scheduler) Wait(b *bucket.Bucket, n int, p Priority, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if !p.Valid() {
		p = Medium
	}

	start := s.clock.Now()
	for {
		granted, wait := b.TryAcquire(n)
		if granted {
			return true
		}

		remaining := timeout - s.clock.Now().Sub(start)
		if remaining <= 0 {
			return false
		}

		step := wait
		if step > remaining {
			step = remaining
		}
		if p <= High && step > s.pollCeiling {
			step = s.pollCeiling
		}
		if step <= 0 {
			// Sub-nanosecond deficits round to zero; avoid a hot loop.
			step = time.Millisecond
		}
		s.sleep(step)
	}
}
