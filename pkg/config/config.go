// Package config loads declarative rate-limit configuration from YAML and
// builds a ready-to-use registry from it. Programmatic registration through
// ratelimit.Registry remains the primary API; this package is the bootstrap
// path for services that keep their API limits in a config file.
package config

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	awerrors "github.com/apiwarden/apiwarden/pkg/common/errors"
	"github.com/apiwarden/apiwarden/pkg/metrics"
	"github.com/apiwarden/apiwarden/pkg/ratelimit"
	"github.com/apiwarden/apiwarden/pkg/ratelimit/bucket"
	"github.com/apiwarden/apiwarden/pkg/ratelimit/state"
)

type State struct {
	File     string `yaml:"file"`     // snapshot path, empty disables persistence
	Schedule string `yaml:"schedule"` // cron expression, e.g. "@every 30s"
}

type Metrics struct {
	Enabled bool `yaml:"enabled"`
}

type Adaptive struct {
	Enabled            bool    `yaml:"enabled"`
	MinRequests        int     `yaml:"min_requests"`
	MaxRequests        int     `yaml:"max_requests"`
	BackoffMultiplier  float64 `yaml:"backoff_multiplier"`
	RecoveryMultiplier float64 `yaml:"recovery_multiplier"`
	SuccessStreak      int     `yaml:"success_streak"`
}

type Endpoint struct {
	Path        string `yaml:"path"`
	MaxRequests int    `yaml:"max_requests"`
	Window      string `yaml:"window"`
}

type API struct {
	Name        string     `yaml:"name"`
	MaxRequests int        `yaml:"max_requests"`
	Window      string     `yaml:"window"`
	Burst       int        `yaml:"burst"`
	Adaptive    Adaptive   `yaml:"adaptive"`
	Endpoints   []Endpoint `yaml:"endpoints"`
}

type Root struct {
	State   State   `yaml:"state"`
	Metrics Metrics `yaml:"metrics"`
	APIs    []API   `yaml:"apis"`
}

// BucketConfig converts one API entry into a bucket configuration. The
// window string uses time.ParseDuration syntax ("1m", "90s", "1h").
func (a API) BucketConfig() (bucket.Config, error) {
	window, err := parseWindow("apis", a.Window)
	if err != nil {
		return bucket.Config{}, err
	}
	return bucket.Config{
		Name:                   a.Name,
		MaxRequests:            a.MaxRequests,
		Window:                 window,
		Burst:                  a.Burst,
		Adaptive:               a.Adaptive.Enabled,
		MinRequests:            a.Adaptive.MinRequests,
		MaxRequestsCap:         a.Adaptive.MaxRequests,
		BackoffMultiplier:      a.Adaptive.BackoffMultiplier,
		RecoveryMultiplier:     a.Adaptive.RecoveryMultiplier,
		SuccessStreakThreshold: a.Adaptive.SuccessStreak,
	}, nil
}

func parseWindow(field, raw string) (time.Duration, error) {
	if raw == "" {
		return time.Minute, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, awerrors.NewValidationError("config", field, raw, "not a duration").
			WithHint("use time.ParseDuration syntax, e.g. \"1m\" or \"1h\"")
	}
	return d, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Root, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, awerrors.NewOperationError("config", "Load", err).WithContext(path)
	}
	var cfg Root
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, awerrors.NewOperationError("config", "Load", err).WithContext(path)
	}
	if cfg.State.Schedule == "" {
		cfg.State.Schedule = state.DefaultSchedule
	}
	return &cfg, nil
}

// Build constructs a registry from cfg: a file store when state.file is
// set, metrics when enabled, and one registered API per entry with its
// endpoint overrides. The returned registry has not loaded persisted
// state yet; call LoadState once registration is visible to callers.
func Build(cfg *Root, logger zerolog.Logger) (*ratelimit.Registry, error) {
	rc := ratelimit.Config{
		Logger:           logger,
		SnapshotSchedule: cfg.State.Schedule,
		Metrics:          metrics.Config{Enabled: cfg.Metrics.Enabled},
	}
	if cfg.State.File != "" {
		rc.Store = state.NewFileStore(cfg.State.File, state.WithFileLogger(logger))
	}

	r, err := ratelimit.NewWithConfig(rc)
	if err != nil {
		return nil, err
	}

	for _, a := range cfg.APIs {
		bc, err := a.BucketConfig()
		if err != nil {
			r.Close()
			return nil, err
		}
		if err := r.RegisterAPI(bc); err != nil {
			r.Close()
			return nil, err
		}
		for _, e := range a.Endpoints {
			window, err := parseWindow("endpoints", e.Window)
			if err != nil {
				r.Close()
				return nil, err
			}
			if err := r.SetEndpointLimit(a.Name, e.Path, e.MaxRequests, window); err != nil {
				r.Close()
				return nil, err
			}
		}
	}
	return r, nil
}
