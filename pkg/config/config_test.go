package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/apiwarden/apiwarden/internal/testutil"
	awerrors "github.com/apiwarden/apiwarden/pkg/common/errors"
	"github.com/apiwarden/apiwarden/pkg/ratelimit"
	"github.com/apiwarden/apiwarden/pkg/ratelimit/state"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apiwarden.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	path := writeConfig(t, sampleConfig(statePath))

	cfg, err := Load(path)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, len(cfg.APIs), 2)
	testutil.AssertEqual(t, cfg.State.Schedule, "@every 1m")
	testutil.AssertEqual(t, cfg.APIs[0].Name, "github")
	testutil.AssertEqual(t, cfg.APIs[0].Adaptive.Enabled, true)
	testutil.AssertEqual(t, len(cfg.APIs[0].Endpoints), 1)
	testutil.AssertEqual(t, cfg.APIs[1].Burst, 10)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "apis: [name: {")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error for malformed yaml")
	}
}

func TestLoadDefaultsSchedule(t *testing.T) {
	path := writeConfig(t, "apis: []\n")
	cfg, err := Load(path)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, cfg.State.Schedule, state.DefaultSchedule)
}

func TestBucketConfigWindowDefaults(t *testing.T) {
	a := API{Name: "github", MaxRequests: 10}
	bc, err := a.BucketConfig()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, bc.Window, time.Minute)
}

func TestBucketConfigBadWindow(t *testing.T) {
	a := API{Name: "github", MaxRequests: 10, Window: "soon"}
	_, err := a.BucketConfig()
	if !awerrors.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBuild(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	path := writeConfig(t, sampleConfig(statePath))

	cfg, err := Load(path)
	testutil.AssertNoError(t, err)

	r, err := Build(cfg, zerolog.Nop())
	testutil.AssertNoError(t, err)
	t.Cleanup(r.Close)

	// Both APIs answer, and the /search override limits independently.
	granted, _, err := r.Acquire("github")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, granted, true)

	granted, _, err = r.Acquire("stripe")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, granted, true)

	for i := 0; i < 2; i++ {
		granted, _, err = r.AcquireN("github", "/search", 1)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, granted, true)
	}
	granted, _, err = r.AcquireN("github", "/search", 1)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, granted, false)

	capacity, err := r.Capacity("github", ratelimit.DefaultEndpoint)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, capacity, 10)
}

func TestBuildRejectsInvalidAPI(t *testing.T) {
	cfg := &Root{APIs: []API{{Name: "bad", MaxRequests: 0, Window: "1m"}}}
	_, err := Build(cfg, zerolog.Nop())
	if !awerrors.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func sampleConfig(statePath string) string {
	return `
state:
  file: ` + statePath + `
  schedule: "@every 1m"
metrics:
  enabled: false
apis:
  - name: github
    max_requests: 10
    window: 1m
    adaptive:
      enabled: true
      min_requests: 5
      backoff_multiplier: 0.8
      recovery_multiplier: 1.05
    endpoints:
      - path: /search
        max_requests: 2
        window: 30s
  - name: stripe
    max_requests: 100
    window: 1h
    burst: 10
`
}
