// Package stats aggregates admission and response statistics per
// (API, endpoint) bucket. Individual response records are not retained;
// only rolling aggregates are kept.
package stats

import (
	"math"
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of one bucket's aggregates.
type Snapshot struct {
	Allowed       int64
	Blocked       int64
	RateLimitHits int64
	TotalWait     time.Duration

	// Response-time aggregates over all recorded responses.
	ResponseCount  int64
	ResponseMean   float64 // seconds
	ResponseStdDev float64 // seconds
}

// APISnapshot groups the default bucket and endpoint overrides of one API.
type APISnapshot struct {
	Total     Snapshot
	Endpoints map[string]Snapshot
}

// entry holds the mutable aggregates for one (api, endpoint) key.
// Response-time mean/variance use Welford's online algorithm.
type entry struct {
	allowed       int64
	blocked       int64
	rateLimitHits int64
	totalWait     time.Duration

	count int64
	mean  float64
	m2    float64
}

func (e *entry) recordResponse(seconds float64) {
	e.count++
	delta := seconds - e.mean
	e.mean += delta / float64(e.count)
	e.m2 += delta * (seconds - e.mean)
}

func (e *entry) snapshot() Snapshot {
	s := Snapshot{
		Allowed:       e.allowed,
		Blocked:       e.blocked,
		RateLimitHits: e.rateLimitHits,
		TotalWait:     e.totalWait,
		ResponseCount: e.count,
		ResponseMean:  e.mean,
	}
	if e.count > 1 {
		s.ResponseStdDev = math.Sqrt(e.m2 / float64(e.count-1))
	}
	return s
}

type key struct {
	api      string
	endpoint string
}

// Collector aggregates statistics for every bucket in a registry.
// It is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	entries map[key]*entry
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{entries: make(map[key]*entry)}
}

func (c *Collector) entryLocked(api, endpoint string) *entry {
	k := key{api: api, endpoint: endpoint}
	e, ok := c.entries[k]
	if !ok {
		e = &entry{}
		c.entries[k] = e
	}
	return e
}

// RecordAcquire counts one admission decision and any time the caller
// spent blocked before it.
func (c *Collector) RecordAcquire(api, endpoint string, granted bool, waited time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(api, endpoint)
	if granted {
		e.allowed++
	} else {
		e.blocked++
	}
	if waited > 0 {
		e.totalWait += waited
	}
}

// RecordResponse folds one observed response into the rolling aggregates.
func (c *Collector) RecordResponse(api, endpoint string, rateLimited bool, responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(api, endpoint)
	if rateLimited {
		e.rateLimitHits++
	}
	e.recordResponse(responseTime.Seconds())
}

// Reset discards all aggregates recorded for the given API.
func (c *Collector) Reset(api string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k := range c.entries {
		if k.api == api {
			delete(c.entries, k)
		}
	}
}

// Snapshot returns copies of the aggregates grouped per API. With no
// arguments every known API is included.
func (c *Collector) Snapshot(apis ...string) map[string]APISnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var filter map[string]struct{}
	if len(apis) > 0 {
		filter = make(map[string]struct{}, len(apis))
		for _, a := range apis {
			filter[a] = struct{}{}
		}
	}

	out := make(map[string]APISnapshot)
	for k, e := range c.entries {
		if filter != nil {
			if _, ok := filter[k.api]; !ok {
				continue
			}
		}

		api := out[k.api]
		if api.Endpoints == nil {
			api.Endpoints = make(map[string]Snapshot)
		}
		snap := e.snapshot()
		api.Endpoints[k.endpoint] = snap

		api.Total.Allowed += snap.Allowed
		api.Total.Blocked += snap.Blocked
		api.Total.RateLimitHits += snap.RateLimitHits
		api.Total.TotalWait += snap.TotalWait
		api.Total.ResponseCount += snap.ResponseCount
		out[k.api] = api
	}

	// Per-API mean is recomputed from endpoint means weighted by count;
	// a pooled standard deviation is deliberately not synthesized.
	for name, api := range out {
		if api.Total.ResponseCount == 0 {
			continue
		}
		var weighted float64
		for _, s := range api.Endpoints {
			weighted += s.ResponseMean * float64(s.ResponseCount)
		}
		api.Total.ResponseMean = weighted / float64(api.Total.ResponseCount)
		out[name] = api
	}

	return out
}
