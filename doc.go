/*
Package apiwarden provides adaptive, priority-aware rate limiting for
outbound API clients.

Rate Limiting (pkg/ratelimit):
  - ratelimit: Registry coordinating per-API and per-endpoint limits
  - bucket: Token bucket with 429-driven adaptive capacity
  - priority: Priority-aware blocking waits
  - stats: Request and response-time aggregates
  - state: Snapshot persistence to file or Redis

Supporting packages:
  - config: Declarative YAML bootstrap of a registry
  - metrics: Prometheus instrumentation

Example usage:

	import (
		"github.com/apiwarden/apiwarden/pkg/ratelimit"
		"github.com/apiwarden/apiwarden/pkg/ratelimit/bucket"
		"github.com/apiwarden/apiwarden/pkg/ratelimit/priority"
	)

	limiter := ratelimit.New()
	limiter.RegisterAPI(bucket.Config{
		Name:        "github",
		MaxRequests: 5000,
		Window:      time.Hour,
		Adaptive:    true,
		MinRequests: 100,
	})

	if ok, _ := limiter.WaitIfNeeded("github", priority.High, 30*time.Second); ok {
		resp, err := client.Do(req)
		if err == nil {
			limiter.RecordResponse("github", resp.StatusCode, time.Since(start))
		}
	}

The limiter learns each API's real capacity from its responses: 429s
shrink the limit immediately, sustained success grows it back toward the
configured maximum.
*/
package apiwarden
