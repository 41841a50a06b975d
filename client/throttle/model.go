package throttle

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMustNotBeZero    = errors.New("must be greater than zero")
	ErrWaitingFailed    = errors.New("limiter waiting failed")
	ErrContextEnded     = errors.New("throttle context ended")
	ErrRateLimitReached = errors.New("rate limit reached")
)

// DefaultRetryAfterSeconds is the wait reported by a [RateLimitError]
// when the rejected response carries no usable retry hint.
const DefaultRetryAfterSeconds = 300

// Config defines the optional token bucket ceiling's
// Requests Per Second and Burst Rate
type Config struct {
	RPS   int
	Burst int
}

// RateLimitError is returned by [Throttle.RoundTrip] in place of a
// 429 Too Many Requests response.
type RateLimitError struct {
	WaitSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v: retry after %ds", ErrRateLimitReached, e.WaitSeconds)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimitReached
}

// RetryAfter returns the wait as a [time.Duration].
func (e *RateLimitError) RetryAfter() time.Duration {
	return time.Duration(e.WaitSeconds) * time.Second
}
