package retry

import (
	"math"
	"math/rand"
	"time"
)

// Opts configures the backoff schedule and retry budget of §4.4.
type Opts struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultOpts matches §4.4's stated defaults.
var DefaultOpts = Opts{
	BaseDelay:   time.Second,
	MaxDelay:    300 * time.Second,
	MaxAttempts: 5,
}

// Delay computes `min(BASE*2^attempt, MAX_DELAY) ± 25% jitter` for the job
// that just failed at the given attempt number (0-indexed).
func Delay(attempt int, opts Opts) time.Duration {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultOpts.BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultOpts.MaxDelay
	}
	raw := float64(opts.BaseDelay) * math.Pow(2, float64(attempt))
	if raw > float64(opts.MaxDelay) {
		raw = float64(opts.MaxDelay)
	}
	jitterFactor := 0.75 + rand.Float64()*0.5 // [0.75, 1.25)
	return time.Duration(raw * jitterFactor)
}
