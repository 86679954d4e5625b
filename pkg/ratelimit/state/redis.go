package state

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	awerrors "github.com/apiwarden/apiwarden/pkg/common/errors"
)

const defaultRedisKey = "apiwarden:state"

// RedisStore persists snapshots as a single JSON value in Redis, for
// deployments without a writable disk. The limiter remains the
// single-process authority; Redis only carries restart continuity.
type RedisStore struct {
	rdb    redis.UniversalClient
	key    string
	ttl    time.Duration
	logger zerolog.Logger
}

// RedisOption customizes a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisKey overrides the snapshot key.
func WithRedisKey(key string) RedisOption {
	return func(s *RedisStore) {
		if key != "" {
			s.key = key
		}
	}
}

// WithRedisTTL expires stale snapshots after d. Zero keeps them forever.
func WithRedisTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = d }
}

// WithRedisLogger sets the logger used for load warnings.
func WithRedisLogger(logger zerolog.Logger) RedisOption {
	return func(s *RedisStore) { s.logger = logger }
}

// NewRedisStore creates a store backed by the given client.
func NewRedisStore(rdb redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		key:    defaultRedisKey,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies the backend in logs and metrics.
func (s *RedisStore) Name() string { return "redis" }

// Save writes the snapshot under the configured key.
func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return awerrors.NewOperationError("state", "Save", awerrors.ErrPersistenceUnavailable).
			WithContext(err.Error())
	}
	if err := s.rdb.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return awerrors.NewOperationError("state", "Save", awerrors.ErrPersistenceUnavailable).
			WithContext(err.Error())
	}
	return nil
}

// Load reads the last snapshot. A missing key is a cold start; malformed
// data is discarded with a warning, also a cold start.
func (s *RedisStore) Load(ctx context.Context) (Snapshot, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, awerrors.NewOperationError("state", "Load", awerrors.ErrPersistenceUnavailable).
			WithContext(err.Error())
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).
			Msg("discarding malformed snapshot value, cold start")
		return nil, nil
	}
	return snap, nil
}
