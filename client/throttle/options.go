package throttle

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Option is a functional option for configuring a [Throttle] via [New].
type Option func(*options) error

type options struct {
	delay      time.Duration
	notifier   Notifier
	recorder   Recorder
	limit      *Config
	retryAfter int
	tracer     trace.Tracer
	logFn      func() *slog.Logger
}

// WithInitialDelay sets the delay applied before the first request.
func WithInitialDelay(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return errors.New("initial delay must not be negative")
		}
		o.delay = d
		return nil
	}
}

// WithNotifier sets the observer of remaining-reads values.
func WithNotifier(n Notifier) Option {
	return func(o *options) error {
		if n == nil {
			return errors.New("notifier must not be nil")
		}
		o.notifier = n
		return nil
	}
}

// WithRecorder sets the observer of per-request throttle outcomes.
func WithRecorder(r Recorder) Option {
	return func(o *options) error {
		if r == nil {
			return errors.New("recorder must not be nil")
		}
		o.recorder = r
		return nil
	}
}

// WithRateLimit adds a token bucket ceiling on top of the delay.
func WithRateLimit(rps, burst int) Option {
	return func(o *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, ErrMustNotBeZero)
		}
		o.limit = &Config{RPS: rps, Burst: burst}
		return nil
	}
}

// WithDefaultRetryAfter overrides the wait reported when a 429 response
// carries no retry hint. It is truncated to whole seconds.
func WithDefaultRetryAfter(d time.Duration) Option {
	return func(o *options) error {
		secs := int(d / time.Second)
		if secs <= 0 {
			return fmt.Errorf("default retry after[%s] %w", d, ErrMustNotBeZero)
		}
		o.retryAfter = secs
		return nil
	}
}

// WithTracer injects the tracer used to span every round trip.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		o.tracer = tracer
		return nil
	}
}

// WithLogger sets a func resolving the logger at request time, making option
// ordering in callers irrelevant. A nil-returning func disables logging.
func WithLogger(logFn func() *slog.Logger) Option {
	return func(o *options) error {
		if logFn == nil {
			return errors.New("log func must not be nil")
		}
		o.logFn = logFn
		return nil
	}
}
