package state

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/apiwarden/apiwarden/pkg/metrics"
)

// DefaultSchedule saves a snapshot every 30 seconds.
const DefaultSchedule = "@every 30s"

const defaultSaveTimeout = 5 * time.Second

// SourceFunc produces the snapshot to persist. Implementations copy bucket
// fields under each bucket's own lock and release it before returning, so
// I/O below never happens under a bucket lock.
type SourceFunc func() Snapshot

// Snapshotter saves snapshots on a cron schedule in a background
// goroutine. It never blocks the acquire or response paths.
type Snapshotter struct {
	store    Store
	source   SourceFunc
	schedule cron.Schedule
	timeout  time.Duration
	logger   zerolog.Logger
	registry *metrics.Registry

	mu      sync.Mutex
	done    chan struct{}
	stopped chan struct{}
	running bool
}

// SnapshotterOption customizes a Snapshotter.
type SnapshotterOption func(*Snapshotter)

// WithSnapshotLogger sets the logger for save outcomes.
func WithSnapshotLogger(logger zerolog.Logger) SnapshotterOption {
	return func(s *Snapshotter) { s.logger = logger }
}

// WithSnapshotMetrics counts saves in the given metrics registry.
func WithSnapshotMetrics(registry *metrics.Registry) SnapshotterOption {
	return func(s *Snapshotter) { s.registry = registry }
}

// WithSaveTimeout bounds each store write.
func WithSaveTimeout(d time.Duration) SnapshotterOption {
	return func(s *Snapshotter) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSnapshotter creates a snapshotter saving source() to store on the
// given cron schedule. Both standard five-field expressions and
// descriptors like "@every 30s" or "@hourly" are accepted.
func NewSnapshotter(store Store, source SourceFunc, cronExpr string, opts ...SnapshotterOption) (*Snapshotter, error) {
	if cronExpr == "" {
		cronExpr = DefaultSchedule
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, err
	}

	s := &Snapshotter{
		store:    store,
		source:   source,
		schedule: schedule,
		timeout:  defaultSaveTimeout,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the background save loop. Starting twice is a no-op.
func (s *Snapshotter) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})

	go s.run(s.done, s.stopped)
}

// Stop halts the loop and performs one final save, so shutdown state is
// never older than the last tick.
func (s *Snapshotter) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	stopped := s.stopped
	s.mu.Unlock()

	<-stopped
	s.SaveNow()
}

// SaveNow performs one synchronous save and reports the store error.
func (s *Snapshotter) SaveNow() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.store.Save(ctx, s.source())
	if err != nil {
		s.logger.Warn().Err(err).Str("store", s.store.Name()).
			Msg("state snapshot failed, continuing in memory")
		if s.registry != nil {
			s.registry.SnapshotsFailed.WithLabelValues(s.store.Name()).Inc()
		}
		return err
	}

	s.logger.Debug().Str("store", s.store.Name()).Msg("state snapshot saved")
	if s.registry != nil {
		s.registry.SnapshotsSaved.WithLabelValues(s.store.Name()).Inc()
	}
	return nil
}

func (s *Snapshotter) run(done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	timer := time.NewTimer(time.Until(s.schedule.Next(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-done:
			return
		case <-timer.C:
			s.SaveNow()
			timer.Reset(time.Until(s.schedule.Next(time.Now())))
		}
	}
}
