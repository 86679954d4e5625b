/*
Package ratelimit provides an adaptive, priority-aware rate limiter for
outbound API traffic.

The Registry owns one token bucket per registered API plus independent
buckets for endpoint overrides. Callers ask for admission before a request
and report the outcome after it; the registry never performs network I/O
itself:

	reg := ratelimit.New()
	_ = reg.RegisterAPI(bucket.Config{
		Name:               "binance",
		MaxRequests:        1200,
		Window:             time.Minute,
		Adaptive:           true,
		MinRequests:        60,
		MaxRequestsCap:     2400,
		BackoffMultiplier:  0.8,
		RecoveryMultiplier: 1.05,
	})

	if ok, _ := reg.WaitIfNeeded("binance", priority.High, 10*time.Second); ok {
		status, elapsed := doRequest()
		_ = reg.RecordResponse("binance", status, elapsed)
	}

Rate-limit responses (429) shrink the learned capacity multiplicatively;
sustained success grows it back slowly, bounded by the configured floor and
ceiling. Denied admission is a normal outcome, not an error.

Sub-packages:

  - bucket: token bucket primitive and adaptive capacity controller
  - priority: blocking wait loop differentiated by admission urgency
  - stats: per-bucket admission and response-time aggregates
  - state: snapshot persistence (file or Redis) for restart continuity
*/
package ratelimit
