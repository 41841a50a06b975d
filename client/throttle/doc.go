// Package throttle provides an [http.RoundTripper] that paces outbound
// calls to a quota enforcing management API and turns its rate-limit
// rejections into typed, retryable errors.
//
// # Usage
//
// Wrap an existing transport with [New]:
//
//	t, err := throttle.New(http.DefaultTransport,
//		throttle.WithNotifier(controller),
//		throttle.WithLogger(func() *slog.Logger { return slog.Default() }),
//	)
//	httpClient := &http.Client{Transport: t}
//
// Every request first sleeps for the current delay. An external controller
// reads and replaces it with [Throttle.Delay] and [Throttle.SetDelay],
// typically in response to the remaining-reads values reported to its
// [Notifier].
//
// # Sequences
//
// Requests belonging to one logical operation can be counted by bracketing
// them with [BeginSequence] and [EndSequence]:
//
//	ctx = throttle.BeginSequence(ctx)
//	defer throttle.EndSequence(ctx)
//	// ... requests built with ctx ...
//	n, _ := throttle.CurrentSequenceLength(ctx)
//
// A sequence begun on a context that already carries one shadows it, so
// goroutines fanned out from a sequenced operation keep separate counts.
//
// # Rate limit rejections
//
// A 429 response is never returned. The caller receives a [*RateLimitError]
// whose WaitSeconds comes from the Retry-After header, a "try again after"
// phrase in the body, or [DefaultRetryAfterSeconds].
package throttle
