package engine

import (
	"context"
	"time"
)

// TaskLifecycle is the capability a caller supplies to drive load against.
// Init runs once before the first submission; Execute runs once per
// iteration, possibly concurrently from many workers, and must be
// re-entrant safe; Teardown runs once after the submission loop exits,
// including on shutdown.
type TaskLifecycle interface {
	Init(ctx context.Context) error
	Execute(ctx context.Context, iteration int64) TaskResult
	Teardown(ctx context.Context)
}

// TaskResult is the outcome of a single Execute call: either a Success
// carrying the observed latency, or a Failure carrying the latency and a
// cause string. Cause is empty on Success.
type TaskResult struct {
	Ok      bool
	Latency time.Duration
	Cause   string
}

// Success builds a successful TaskResult.
func Success(latency time.Duration) TaskResult {
	return TaskResult{Ok: true, Latency: latency}
}

// Failure builds a failed TaskResult. latency must be >= 0.
func Failure(latency time.Duration, cause string) TaskResult {
	return TaskResult{Ok: false, Latency: latency, Cause: cause}
}
