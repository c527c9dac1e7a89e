package schedule

import (
	"context"
	"time"
)

// Work tags registered with the platform.
const (
	PeriodicTag = "bodypress.capture.periodic"
	OneOffTag   = "bodypress.capture.oneoff"
)

// BackoffPolicy shapes retry delays after a Retry result.
type BackoffPolicy string

const (
	BackoffExponential BackoffPolicy = "exponential"
	BackoffLinear      BackoffPolicy = "linear"
)

// Constraints gate when the platform may start work.
type Constraints struct {
	Network       bool `json:"network"`
	BatteryNotLow bool `json:"battery_not_low"`
}

// Backoff configures retries.
type Backoff struct {
	Policy    BackoffPolicy `json:"policy"`
	BaseDelay time.Duration `json:"base_delay"`
}

// PeriodicRequest registers repeating work under Tag.
type PeriodicRequest struct {
	Tag         string
	Interval    time.Duration
	Constraints Constraints
	Backoff     Backoff
}

// OneOffRequest registers a single run under Tag.
type OneOffRequest struct {
	Tag         string
	Constraints Constraints
	Backoff     Backoff
}

// Platform is the host facility that wakes the process for background work.
// Registering a tag that already exists replaces it.
type Platform interface {
	RegisterPeriodic(ctx context.Context, req PeriodicRequest) error
	RegisterOneOff(ctx context.Context, req OneOffRequest) error
	// Cancel removes work under tag. Cancelling an unknown tag is not an error.
	Cancel(ctx context.Context, tag string) error
}

// Result is what a run reports back to the platform.
type Result string

const (
	ResultSuccess Result = "success"
	ResultRetry   Result = "retry"
)

// BackoffDelay returns the delay before retry attempt (1-based), capped at ceiling.
func BackoffDelay(policy BackoffPolicy, base time.Duration, attempt int, ceiling time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	switch policy {
	case BackoffLinear:
		d = base * time.Duration(attempt)
	default:
		d = base
		for i := 1; i < attempt; i++ {
			d *= 2
			if ceiling > 0 && d >= ceiling {
				break
			}
		}
	}
	if ceiling > 0 && d > ceiling {
		d = ceiling
	}
	return d
}
