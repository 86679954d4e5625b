package testutil

import (
	"sync"
	"time"
)

// MockClock implements the Clock interface for testing with controllable time.
// This is used across rate limiter tests to avoid actual time delays.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a new MockClock starting at the given time.
// If zero time is provided, uses current time.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now()
	}
	return &MockClock{now: start}
}

// Now returns the current mock time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock clock forward by the given duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock clock to a specific time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// MockSleeper records requested sleep intervals and advances a MockClock
// instead of blocking, keeping scheduler tests deterministic and fast.
type MockSleeper struct {
	mu     sync.Mutex
	clock  *MockClock
	slept  []time.Duration
	onWake func()
}

// NewMockSleeper creates a sleeper bound to the given clock.
func NewMockSleeper(clock *MockClock) *MockSleeper {
	return &MockSleeper{clock: clock}
}

// Sleep advances the bound clock by d and records the interval.
func (s *MockSleeper) Sleep(d time.Duration) {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	wake := s.onWake
	s.mu.Unlock()

	s.clock.Advance(d)
	if wake != nil {
		wake()
	}
}

// Slept returns a copy of all recorded sleep intervals.
func (s *MockSleeper) Slept() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.slept))
	copy(out, s.slept)
	return out
}

// TotalSlept returns the sum of all recorded sleep intervals.
func (s *MockSleeper) TotalSlept() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total time.Duration
	for _, d := range s.slept {
		total += d
	}
	return total
}

// OnWake registers a callback invoked after each simulated sleep,
// useful for injecting tokens between poll rounds.
func (s *MockSleeper) OnWake(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWake = fn
}
