package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	awerrors "github.com/apiwarden/apiwarden/pkg/common/errors"
)

// FileStore persists snapshots as a JSON file. Writes go through a
// temporary file and rename so a crash mid-write never corrupts the
// previous snapshot.
type FileStore struct {
	path   string
	logger zerolog.Logger
}

// FileOption customizes a FileStore.
type FileOption func(*FileStore)

// WithFileLogger sets the logger used for load warnings.
func WithFileLogger(logger zerolog.Logger) FileOption {
	return func(s *FileStore) { s.logger = logger }
}

// NewFileStore creates a store writing to path.
func NewFileStore(path string, opts ...FileOption) *FileStore {
	s := &FileStore{
		path:   path,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies the backend in logs and metrics.
func (s *FileStore) Name() string { return "file" }

// Save writes the snapshot atomically. Failures wrap
// ErrPersistenceUnavailable and are never fatal to the limiter.
func (s *FileStore) Save(_ context.Context, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return awerrors.NewOperationError("state", "Save", awerrors.ErrPersistenceUnavailable).
			WithContext(err.Error())
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return awerrors.NewOperationError("state", "Save", awerrors.ErrPersistenceUnavailable).
			WithContext(err.Error())
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return awerrors.NewOperationError("state", "Save", awerrors.ErrPersistenceUnavailable).
			WithContext(err.Error())
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return awerrors.NewOperationError("state", "Save", awerrors.ErrPersistenceUnavailable).
			WithContext(err.Error())
	}
	return nil
}

// Load reads the last snapshot. A missing file is a cold start; a
// malformed file is discarded with a warning, also a cold start.
func (s *FileStore) Load(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, awerrors.NewOperationError("state", "Load", awerrors.ErrPersistenceUnavailable).
			WithContext(err.Error())
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).
			Msg("discarding malformed snapshot file, cold start")
		return nil, nil
	}
	return snap, nil
}
