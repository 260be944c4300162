package notifier

import (
	"math/rand"
	"time"
)

// Retry delays between delivery attempts.
var retryDelays = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
}

const (
	// DefaultMaxAttempts is the default number of delivery attempts.
	DefaultMaxAttempts = 4

	// JitterFactor is the ±share of jitter applied to delays.
	JitterFactor = 0.2
)

// NextRetryDelay returns the delay before the next attempt with ±20% jitter.
// attempt is the number of failed attempts so far, starting at 1.
func NextRetryDelay(attempt int) time.Duration {
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(retryDelays) {
		i = len(retryDelays) - 1
	}

	base := retryDelays[i]
	jitter := (rand.Float64()*2 - 1) * float64(base) * JitterFactor
	return time.Duration(float64(base) + jitter)
}
