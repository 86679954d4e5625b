package bucket

import (
	"net/http"
	"testing"
	"time"

	"github.com/apiwarden/apiwarden/internal/testutil"
)

func adaptiveConfig(clock Clock) Config {
	return Config{
		Name:                   "x",
		MaxRequests:            10,
		Window:                 60 * time.Second,
		Adaptive:               true,
		MinRequests:            2,
		MaxRequestsCap:         50,
		BackoffMultiplier:      0.8,
		RecoveryMultiplier:     1.05,
		SuccessStreakThreshold: 100,
		Clock:                  clock,
	}
}

func TestController_IsRateLimit(t *testing.T) {
	c := NewController()
	if !c.IsRateLimit(http.StatusTooManyRequests) {
		t.Error("429 should classify as rate limit by default")
	}
	if c.IsRateLimit(http.StatusOK) || c.IsRateLimit(http.StatusServiceUnavailable) {
		t.Error("non-429 statuses should not classify by default")
	}

	custom := NewController(429, 418)
	if !custom.IsRateLimit(418) {
		t.Error("configured equivalent status should classify as rate limit")
	}
}

func TestBackoffLaw(t *testing.T) {
	clock := testutil.NewMockClock(time.Now())
	b, err := New(adaptiveConfig(clock))
	testutil.AssertNoError(t, err)
	c := NewController()

	// Each 429 applies one multiplicative step with rounding: 10, 8, 6, 5.
	want := []int{8, 6, 5}
	for i, w := range want {
		out := c.Observe(b, 429)
		if !out.RateLimited {
			t.Fatalf("step %d: outcome should be rate limited", i)
		}
		testutil.AssertEqual(t, b.Capacity(), w)
		testutil.AssertEqual(t, out.Capacity, w)
	}
	testutil.AssertEqual(t, b.SuccessStreak(), 0)
}

func TestBackoffFloor(t *testing.T) {
	clock := testutil.NewMockClock(time.Now())
	b, err := New(adaptiveConfig(clock))
	testutil.AssertNoError(t, err)
	c := NewController()

	for i := 0; i < 20; i++ {
		c.Observe(b, 429)
	}
	testutil.AssertEqual(t, b.Capacity(), 2)

	out := c.Observe(b, 429)
	if out.CapacityChanged {
		t.Error("capacity at the floor should not change further")
	}
	testutil.AssertEqual(t, b.Capacity(), 2)
}

func TestRecoveryLaw(t *testing.T) {
	clock := testutil.NewMockClock(time.Now())
	cfg := adaptiveConfig(clock)
	cfg.MaxRequests = 20
	cfg.RecoveryMultiplier = 1.5
	cfg.SuccessStreakThreshold = 10
	b, err := New(cfg)
	testutil.AssertNoError(t, err)
	c := NewController()

	// Drop to 16 with one 429.
	c.Observe(b, 429)
	testutil.AssertEqual(t, b.Capacity(), 16)

	// Nine successes: no growth yet, streak advancing.
	for i := 0; i < 9; i++ {
		out := c.Observe(b, 200)
		if out.CapacityChanged {
			t.Fatalf("success %d should not change capacity", i+1)
		}
	}
	testutil.AssertEqual(t, b.SuccessStreak(), 9)

	// Tenth success completes the streak: one growth step, streak restarts.
	out := c.Observe(b, 200)
	if !out.Recovered {
		t.Error("threshold success should apply a recovery step")
	}
	testutil.AssertEqual(t, b.Capacity(), 24)
	testutil.AssertEqual(t, b.SuccessStreak(), 0)
}

func TestRecoveryCappedAtMax(t *testing.T) {
	clock := testutil.NewMockClock(time.Now())
	cfg := adaptiveConfig(clock)
	cfg.MaxRequests = 48
	cfg.RecoveryMultiplier = 1.5
	cfg.SuccessStreakThreshold = 5
	b, err := New(cfg)
	testutil.AssertNoError(t, err)
	c := NewController()

	for i := 0; i < 5; i++ {
		c.Observe(b, 200)
	}
	// 48*1.5=72 clamps to the 50 cap.
	testutil.AssertEqual(t, b.Capacity(), 50)
}

func TestSmallCapacityRecoveryStall(t *testing.T) {
	clock := testutil.NewMockClock(time.Now())
	b, err := New(adaptiveConfig(clock))
	testutil.AssertNoError(t, err)
	c := NewController()

	// 10 -> 8 -> 6 -> 5 per the backoff law.
	for i := 0; i < 3; i++ {
		c.Observe(b, 429)
	}
	testutil.AssertEqual(t, b.Capacity(), 5)

	// 100 successes: 5*1.05 = 5.25 rounds back to 5. The recovery step
	// happens but capacity stalls; the streak still restarts.
	for i := 0; i < 100; i++ {
		c.Observe(b, 200)
	}
	testutil.AssertEqual(t, b.Capacity(), 5)
	testutil.AssertEqual(t, b.SuccessStreak(), 0)
}

func TestStreakResetOn429(t *testing.T) {
	clock := testutil.NewMockClock(time.Now())
	b, err := New(adaptiveConfig(clock))
	testutil.AssertNoError(t, err)
	c := NewController()

	for i := 0; i < 50; i++ {
		c.Observe(b, 200)
	}
	testutil.AssertEqual(t, b.SuccessStreak(), 50)

	c.Observe(b, 429)
	testutil.AssertEqual(t, b.SuccessStreak(), 0)
}

func TestNonAdaptiveCapacityImmutable(t *testing.T) {
	clock := testutil.NewMockClock(time.Now())
	b, err := New(testConfig(clock))
	testutil.AssertNoError(t, err)
	c := NewController()

	for i := 0; i < 10; i++ {
		out := c.Observe(b, 429)
		if out.CapacityChanged {
			t.Fatal("non-adaptive bucket capacity must not change")
		}
	}
	testutil.AssertEqual(t, b.Capacity(), 10)
}

func TestBackoffClampsAccumulatedTokens(t *testing.T) {
	clock := testutil.NewMockClock(time.Now())
	cfg := adaptiveConfig(clock)
	cfg.MaxRequests = 40
	b, err := New(cfg)
	testutil.AssertNoError(t, err)
	c := NewController()

	// Full bucket at 40; one 429 drops capacity to 32 and the
	// already-accumulated tokens are clamped to the new ceiling.
	c.Observe(b, 429)
	testutil.AssertEqual(t, b.Capacity(), 32)
	testutil.AssertEqual(t, b.Tokens(), 32.0)
}

func TestCapacityChangeAffectsRefillRate(t *testing.T) {
	clock := testutil.NewMockClock(time.Now())
	b, err := New(adaptiveConfig(clock))
	testutil.AssertNoError(t, err)
	c := NewController()

	// Drain, then halve capacity: 10 -> 8 -> 6 -> 5.
	for i := 0; i < 10; i++ {
		b.TryAcquire(1)
	}
	for i := 0; i < 3; i++ {
		c.Observe(b, 429)
	}

	// New rate is 5 per 60s; 12 seconds refills exactly one token.
	clock.Advance(12 * time.Second)
	testutil.AssertInDelta(t, b.Tokens(), 1.0, 0.001)
}
