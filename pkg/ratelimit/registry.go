package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	awerrors "github.com/apiwarden/apiwarden/pkg/common/errors"
	"github.com/apiwarden/apiwarden/pkg/metrics"
	"github.com/apiwarden/apiwarden/pkg/ratelimit/bucket"
	"github.com/apiwarden/apiwarden/pkg/ratelimit/priority"
	"github.com/apiwarden/apiwarden/pkg/ratelimit/state"
	"github.com/apiwarden/apiwarden/pkg/ratelimit/stats"
)

const module = "registry"

// DefaultEndpoint names the API-level bucket used when no endpoint
// override matches.
const DefaultEndpoint = "default"

// Config holds construction options for a Registry.
type Config struct {
	// Clock provides the current time. If nil, the system clock is used.
	Clock bucket.Clock

	// Logger receives capacity changes and persistence warnings.
	// Defaults to a no-op logger.
	Logger zerolog.Logger

	// Store enables snapshot persistence when non-nil.
	Store state.Store

	// SnapshotSchedule is the cron schedule for background snapshots.
	// Defaults to state.DefaultSchedule. Ignored without a Store.
	SnapshotSchedule string

	// Metrics controls Prometheus instrumentation.
	Metrics metrics.Config

	// RateLimitStatuses are the status codes treated as rate-limit
	// rejections. Defaults to 429 only.
	RateLimitStatuses []int

	// PollCeiling caps single sleeps for Critical/High waits.
	// Defaults to priority.DefaultPollCeiling.
	PollCeiling time.Duration

	// Sleep overrides the wait-loop sleep function, for tests.
	Sleep func(time.Duration)
}

// api pairs the original registration config with the live buckets, so
// ResetAPI can rebuild them without the learned adjustments.
type api struct {
	mu           sync.RWMutex
	cfg          bucket.Config
	def          *bucket.Bucket
	endpoints    map[string]*bucket.Bucket
	endpointCfgs map[string]bucket.Config
}

// Registry owns the map of named buckets and routes admission, feedback
// and persistence through them. It is safe for concurrent use; each
// bucket is its own unit of mutual exclusion, so contention on one API
// never blocks unrelated ones.
type Registry struct {
	mu   sync.RWMutex
	apis map[string]*api

	clock       bucket.Clock
	scheduler   *priority.Scheduler
	controller  *bucket.Controller
	collector   *stats.Collector
	logger      zerolog.Logger
	registry    *metrics.Registry
	store       state.Store
	snapshotter *state.Snapshotter
}

// New creates a Registry with default configuration: system clock, no
// persistence, no metrics.
func New() *Registry {
	r, _ := NewWithConfig(Config{})
	return r
}

// NewWithConfig creates a Registry from cfg. The only failure mode is an
// unparsable snapshot schedule.
func NewWithConfig(cfg Config) (*Registry, error) {
	if cfg.Clock == nil {
		cfg.Clock = bucket.SystemClock{}
	}

	schedOpts := []priority.Option{priority.WithClock(cfg.Clock)}
	if cfg.PollCeiling > 0 {
		schedOpts = append(schedOpts, priority.WithPollCeiling(cfg.PollCeiling))
	}
	if cfg.Sleep != nil {
		schedOpts = append(schedOpts, priority.WithSleep(cfg.Sleep))
	}

	r := &Registry{
		apis:       make(map[string]*api),
		clock:      cfg.Clock,
		scheduler:  priority.New(schedOpts...),
		controller: bucket.NewController(cfg.RateLimitStatuses...),
		collector:  stats.NewCollector(),
		logger:     cfg.Logger,
		store:      cfg.Store,
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Registry != nil {
			r.registry = metrics.NewRegistry(cfg.Metrics.Registry)
		} else {
			r.registry = metrics.DefaultRegistry
		}
	}

	if cfg.Store != nil {
		snapOpts := []state.SnapshotterOption{state.WithSnapshotLogger(cfg.Logger)}
		if r.registry != nil {
			snapOpts = append(snapOpts, state.WithSnapshotMetrics(r.registry))
		}
		snapshotter, err := state.NewSnapshotter(cfg.Store, r.Snapshot, cfg.SnapshotSchedule, snapOpts...)
		if err != nil {
			return nil, err
		}
		r.snapshotter = snapshotter
		r.snapshotter.Start()
	}

	return r, nil
}

// RegisterAPI creates the API-level bucket for cfg.Name. It fails with
// ErrAlreadyRegistered for duplicate names and with a ValidationError for
// invalid parameters; nothing is validated lazily later.
func (r *Registry) RegisterAPI(cfg bucket.Config) error {
	if cfg.Clock == nil {
		cfg.Clock = r.clock
	}

	b, err := bucket.New(cfg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.apis[cfg.Name]; exists {
		return awerrors.NewOperationError(module, "RegisterAPI", awerrors.ErrAlreadyRegistered).
			WithContext(cfg.Name)
	}

	r.apis[cfg.Name] = &api{
		cfg:          b.Config(),
		def:          b,
		endpoints:    make(map[string]*bucket.Bucket),
		endpointCfgs: make(map[string]bucket.Config),
	}

	r.logger.Debug().Str("api", cfg.Name).Int("capacity", b.Capacity()).Msg("api registered")
	r.setCapacityMetric(cfg.Name, DefaultEndpoint, b)
	return nil
}

// SetEndpointLimit creates or overwrites an independent bucket scoped to
// one endpoint of a registered API. The override inherits the API's
// adaptive behavior but is governed by its own, typically stricter,
// capacity: it never recovers beyond its configured maxRequests.
func (r *Registry) SetEndpointLimit(apiName, endpoint string, maxRequests int, window time.Duration) error {
	a, err := r.lookup(apiName)
	if err != nil {
		return awerrors.NewOperationError(module, "SetEndpointLimit", err).WithContext(apiName)
	}
	if endpoint == "" || endpoint == DefaultEndpoint {
		return awerrors.NewValidationError(module, "endpoint", endpoint, "must name a specific endpoint").
			WithHint("the default bucket is configured via RegisterAPI")
	}

	cfg := a.cfg
	cfg.MaxRequests = maxRequests
	cfg.Window = window
	if cfg.Adaptive {
		cfg.MaxRequestsCap = maxRequests
		if cfg.MinRequests > maxRequests {
			cfg.MinRequests = maxRequests
		}
	}

	b, err := bucket.New(cfg)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.endpoints[endpoint] = b
	a.endpointCfgs[endpoint] = cfg
	a.mu.Unlock()

	r.logger.Debug().Str("api", apiName).Str("endpoint", endpoint).
		Int("capacity", b.Capacity()).Msg("endpoint limit set")
	r.setCapacityMetric(apiName, endpoint, b)
	return nil
}

// Acquire attempts to consume one token from the API's default bucket.
// A false result with a positive wait is a normal rate-limited outcome,
// not an error; the error reports only unknown API names.
func (r *Registry) Acquire(apiName string) (bool, time.Duration, error) {
	return r.AcquireN(apiName, DefaultEndpoint, 1)
}

// AcquireN attempts to consume tokens from the resolved bucket: the
// endpoint override when one exists, the API default otherwise.
func (r *Registry) AcquireN(apiName, endpoint string, tokens int) (bool, time.Duration, error) {
	b, label, err := r.resolve(apiName, endpoint)
	if err != nil {
		return false, 0, awerrors.NewOperationError(module, "Acquire", err).WithContext(apiName)
	}

	granted, wait := b.TryAcquire(tokens)
	r.collector.RecordAcquire(apiName, label, granted, 0)
	r.recordAcquireMetrics(apiName, label, b, granted, float64(tokens))
	return granted, wait, nil
}

// WaitIfNeeded blocks until one token is available on the API's default
// bucket, up to timeout. Zero timeout means priority.DefaultTimeout.
func (r *Registry) WaitIfNeeded(apiName string, p priority.Priority, timeout time.Duration) (bool, error) {
	return r.WaitIfNeededN(apiName, DefaultEndpoint, 1, p, timeout)
}

// WaitIfNeededN blocks until tokens are available on the resolved bucket,
// up to timeout. A false result means the caller timed out rate limited;
// nothing is retried on its behalf.
func (r *Registry) WaitIfNeededN(apiName, endpoint string, tokens int, p priority.Priority, timeout time.Duration) (bool, error) {
	b, label, err := r.resolve(apiName, endpoint)
	if err != nil {
		return false, awerrors.NewOperationError(module, "WaitIfNeeded", err).WithContext(apiName)
	}

	start := r.clock.Now()
	granted := r.scheduler.Wait(b, tokens, p, timeout)
	waited := r.clock.Now().Sub(start)

	r.collector.RecordAcquire(apiName, label, granted, waited)
	r.recordAcquireMetrics(apiName, label, b, granted, float64(tokens))
	if r.registry != nil {
		r.registry.WaitDuration.WithLabelValues(apiName, label, p.String()).Observe(waited.Seconds())
	}
	return granted, nil
}

// RecordResponse feeds one observed outcome on the API's default bucket
// back into the adaptive controller and the stats aggregates.
func (r *Registry) RecordResponse(apiName string, statusCode int, responseTime time.Duration) error {
	return r.RecordEndpointResponse(apiName, DefaultEndpoint, statusCode, responseTime)
}

// RecordEndpointResponse feeds one observed outcome back for a specific
// endpoint, so an override learns independently of its API default.
func (r *Registry) RecordEndpointResponse(apiName, endpoint string, statusCode int, responseTime time.Duration) error {
	b, label, err := r.resolve(apiName, endpoint)
	if err != nil {
		return awerrors.NewOperationError(module, "RecordResponse", err).WithContext(apiName)
	}

	out := r.controller.Observe(b, statusCode)
	r.collector.RecordResponse(apiName, label, out.RateLimited, responseTime)

	if out.CapacityChanged {
		r.logger.Debug().Str("api", apiName).Str("endpoint", label).
			Int("capacity", out.Capacity).Bool("backoff", out.RateLimited).
			Msg("adaptive capacity changed")
	}

	if r.registry != nil {
		r.registry.ResponseDuration.WithLabelValues(apiName, label).Observe(responseTime.Seconds())
		r.registry.Capacity.WithLabelValues(apiName, label).Set(float64(out.Capacity))
		if out.RateLimited {
			r.registry.RateLimitHits.WithLabelValues(apiName, label).Inc()
			r.registry.BackoffEvents.WithLabelValues(apiName, label).Inc()
		}
		if out.Recovered {
			r.registry.RecoveryEvents.WithLabelValues(apiName, label).Inc()
		}
	}
	return nil
}

// Stats returns aggregate snapshots per API. With no arguments every
// registered API that has recorded activity is included.
func (r *Registry) Stats(apis ...string) map[string]stats.APISnapshot {
	return r.collector.Snapshot(apis...)
}

// Capacity reports the current effective capacity of the resolved bucket.
func (r *Registry) Capacity(apiName, endpoint string) (int, error) {
	b, _, err := r.resolve(apiName, endpoint)
	if err != nil {
		return 0, awerrors.NewOperationError(module, "Capacity", err).WithContext(apiName)
	}
	return b.Capacity(), nil
}

// ResetAPI discards learned state and recreates the API's buckets from
// their original configuration, endpoint overrides included. Aggregated
// stats for the API are discarded with them.
func (r *Registry) ResetAPI(apiName string) error {
	a, err := r.lookup(apiName)
	if err != nil {
		return awerrors.NewOperationError(module, "ResetAPI", err).WithContext(apiName)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	def, err := bucket.New(a.cfg)
	if err != nil {
		return err
	}
	a.def = def
	r.setCapacityMetric(apiName, DefaultEndpoint, def)

	for endpoint, cfg := range a.endpointCfgs {
		b, err := bucket.New(cfg)
		if err != nil {
			return err
		}
		a.endpoints[endpoint] = b
		r.setCapacityMetric(apiName, endpoint, b)
	}

	r.collector.Reset(apiName)
	r.logger.Info().Str("api", apiName).Msg("api reset to configured defaults")
	return nil
}

// Snapshot copies every bucket's persistable state. Each bucket is read
// under its own lock, released immediately after the copy; no I/O happens
// here.
func (r *Registry) Snapshot() state.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(state.Snapshot, len(r.apis))
	for name, a := range r.apis {
		a.mu.RLock()
		entry := bucketState(a.def)
		if len(a.endpoints) > 0 {
			entry.Endpoints = make(map[string]state.BucketState, len(a.endpoints))
			for endpoint, b := range a.endpoints {
				entry.Endpoints[endpoint] = bucketState(b)
			}
		}
		a.mu.RUnlock()
		snap[name] = entry
	}
	return snap
}

// LoadState rehydrates buckets from the configured store. APIs absent
// from the snapshot keep their configured defaults; snapshot entries for
// APIs no longer configured are ignored. Load failures degrade to
// in-memory-only operation with a warning, never an error to the caller.
func (r *Registry) LoadState(ctx context.Context) {
	if r.store == nil {
		return
	}

	snap, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Str("store", r.store.Name()).
			Msg("state restore failed, starting with configured defaults")
		return
	}
	if snap == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, entry := range snap {
		a, ok := r.apis[name]
		if !ok {
			continue
		}

		a.mu.RLock()
		restoreBucket(a.def, entry)
		for endpoint, es := range entry.Endpoints {
			if b, ok := a.endpoints[endpoint]; ok {
				restoreBucket(b, es)
			}
		}
		a.mu.RUnlock()

		r.setCapacityMetric(name, DefaultEndpoint, a.def)
	}

	r.logger.Info().Str("store", r.store.Name()).Int("apis", len(snap)).
		Msg("state restored from snapshot")
}

// SaveState persists the current snapshot immediately.
func (r *Registry) SaveState() error {
	if r.snapshotter == nil {
		return nil
	}
	return r.snapshotter.SaveNow()
}

// Close stops the background snapshotter, saving one final snapshot.
func (r *Registry) Close() {
	if r.snapshotter != nil {
		r.snapshotter.Stop()
	}
}

func (r *Registry) lookup(apiName string) (*api, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.apis[apiName]
	if !ok {
		return nil, awerrors.ErrNotRegistered
	}
	return a, nil
}

// resolve maps (api, endpoint) to the governing bucket: the endpoint
// override when one exists, otherwise the API default. The returned label
// names the bucket actually used.
func (r *Registry) resolve(apiName, endpoint string) (*bucket.Bucket, string, error) {
	a, err := r.lookup(apiName)
	if err != nil {
		return nil, "", err
	}

	if endpoint != "" && endpoint != DefaultEndpoint {
		a.mu.RLock()
		b, ok := a.endpoints[endpoint]
		a.mu.RUnlock()
		if ok {
			return b, endpoint, nil
		}
	}

	a.mu.RLock()
	def := a.def
	a.mu.RUnlock()
	return def, DefaultEndpoint, nil
}

func (r *Registry) recordAcquireMetrics(apiName, label string, b *bucket.Bucket, granted bool, tokens float64) {
	if r.registry == nil {
		return
	}
	r.registry.AcquireRequests.WithLabelValues(apiName, label).Add(tokens)
	if granted {
		r.registry.AcquireAllowed.WithLabelValues(apiName, label).Add(tokens)
	} else {
		r.registry.AcquireDenied.WithLabelValues(apiName, label).Add(tokens)
	}
	r.registry.TokensAvailable.WithLabelValues(apiName, label).Set(b.Tokens())
}

func (r *Registry) setCapacityMetric(apiName, label string, b *bucket.Bucket) {
	if r.registry == nil {
		return
	}
	r.registry.Capacity.WithLabelValues(apiName, label).Set(float64(b.Capacity()))
	r.registry.TokensAvailable.WithLabelValues(apiName, label).Set(b.Tokens())
}

func bucketState(b *bucket.Bucket) state.BucketState {
	capacity, tokens, lastRefill, streak := b.State()
	return state.BucketState{
		Capacity:      capacity,
		Tokens:        tokens,
		LastRefill:    state.EpochSeconds(lastRefill),
		SuccessStreak: streak,
	}
}

func restoreBucket(b *bucket.Bucket, s state.BucketState) {
	b.Restore(s.Capacity, s.Tokens, state.FromEpochSeconds(s.LastRefill), s.SuccessStreak)
}
