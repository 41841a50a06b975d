package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"
)

// Recorder observes per-request throttle outcomes, typically for metrics.
type Recorder interface {
	RecordRequest(statusCode int, waited time.Duration)
	RecordRateLimited(waitSeconds int)
}

// Throttle is an http.RoundTripper pacing outbound calls to a quota
// enforcing API. Every call sleeps for the current [Delay], reports the
// remaining quota found on the response, counts toward the caller's active
// sequence and turns a 429 into a [RateLimitError].
type Throttle struct {
	delay      *Delay
	limiter    *rate.Limiter
	limit      *Config
	notifier   Notifier
	recorder   Recorder
	retryAfter int
	tracer     trace.Tracer
	next       http.RoundTripper
	logFn      func() *slog.Logger
}

// New returns a Throttle forwarding to next. A nil next uses
// [http.DefaultTransport].
func New(next http.RoundTripper, optFns ...Option) (*Throttle, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying throttle option: %w", err)
		}
	}

	if next == nil {
		next = http.DefaultTransport
	}
	if opts.logFn == nil {
		opts.logFn = func() *slog.Logger { return nil }
	}
	if opts.tracer == nil {
		opts.tracer = noop.NewTracerProvider().Tracer("no-op tracer")
	}
	if opts.retryAfter == 0 {
		opts.retryAfter = DefaultRetryAfterSeconds
	}

	t := &Throttle{
		delay:      &Delay{logFn: opts.logFn},
		limit:      opts.limit,
		notifier:   opts.notifier,
		recorder:   opts.recorder,
		retryAfter: opts.retryAfter,
		tracer:     opts.tracer,
		next:       next,
		logFn:      opts.logFn,
	}
	t.delay.Set(opts.delay)

	if opts.limit != nil {
		t.limiter = rate.NewLimiter(rate.Limit(opts.limit.RPS), opts.limit.Burst)
	}

	return t, nil
}

// Delay returns the pause currently applied before each request.
func (t *Throttle) Delay() time.Duration {
	return t.delay.Get()
}

// SetDelay changes the pause for requests that have not yet read it and
// returns the previous value.
func (t *Throttle) SetDelay(d time.Duration) time.Duration {
	return t.delay.Set(d)
}

func (t *Throttle) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(r.Context(), "throttle.roundtrip")
	defer span.End()

	delay := t.delay.Get()
	span.SetAttributes(attribute.Int64("throttle.delay_ms", delay.Milliseconds()))

	logger := t.logFn()

	if err := t.pause(ctx, delay, logger, r); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Forwarded under the span's context so downstream instrumentation
	// nests below throttle.roundtrip.
	resp, err := t.next.RoundTrip(r.WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	quota := ReadQuota(resp.Header)
	reads, ok := quota.RemainingReads()
	if ok {
		span.SetAttributes(attribute.Int("throttle.remaining_reads", reads))
	}
	if t.notifier != nil {
		t.notifier.NotifyRemainingReads(reads, ok)
	}

	if n, ok := incrementSequence(r.Context()); ok {
		id, _ := SequenceID(r.Context())
		span.SetAttributes(attribute.String("throttle.sequence_id", id), attribute.Int("throttle.sequence_length", n))
	}

	if t.recorder != nil {
		t.recorder.RecordRequest(resp.StatusCode, delay)
	}

	if resp.StatusCode != http.StatusTooManyRequests {
		return resp, nil
	}

	secs, source, found := retryAfter(resp)
	if !found {
		secs, source = t.retryAfter, hintDefault
	}
	_ = resp.Body.Close()

	if t.recorder != nil {
		t.recorder.RecordRateLimited(secs)
	}
	if logger != nil {
		logger.Warn("throttle rate limit reached", "waitSeconds", secs, "source", string(source), "path", r.URL.Path)
	}

	rlErr := &RateLimitError{WaitSeconds: secs}
	span.RecordError(rlErr)
	span.SetStatus(codes.Error, rlErr.Error())

	return nil, rlErr
}

// pause blocks the calling goroutine for delay, then waits on the optional
// token bucket. Other requests are unaffected.
func (t *Throttle) pause(ctx context.Context, delay time.Duration, logger *slog.Logger, r *http.Request) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w early: %w", ErrContextEnded, err)
	}

	if delay > 0 {
		if logger != nil {
			logger.Debug("throttle delay applied", "delay", delay.String(), "path", r.URL.Path)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w during delay: %w", ErrContextEnded, ctx.Err())
		case <-timer.C:
		}
	}

	if t.limiter == nil {
		return nil
	}

	var waited time.Duration
	if logger != nil && t.limiter.Tokens() < 1 {
		logger.Info("throttle tokens exhausted", "rate", t.limit.RPS, "burst", t.limit.Burst, "path", r.URL.Path)

		defer func() {
			logger.Info("throttle wait complete", "waited", waited.String(), "rate", t.limit.RPS, "burst", t.limit.Burst)
		}()
	}

	start := time.Now()

	err := t.limiter.Wait(ctx)
	waited = time.Since(start)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWaitingFailed, err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w post-wait: %w", ErrContextEnded, err)
	}

	return nil
}
