// Package client provides the HTTP client used to talk to a quota
// enforcing resource management API, built on [net/http].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithTimeout(30 * time.Second),
//		client.WithUserAgent("quotaguard/1.0"),
//		client.WithQuotaThrottle(throttle.WithNotifier(controller)),
//	)
//
// # Making Requests
//
// Construct a [URL] and [Request], then execute with [Client.Do]:
//
//	u := client.URL("https", "management.azure.com", "/subscriptions/"+id+"/resourcegroups",
//		client.WithQueryStrings(map[string]string{"api-version": "2021-04-01"}),
//	)
//	req, err := client.Request(ctx, u, http.MethodGet, client.WithBearerToken(token))
//	err = c.Do(req, http.StatusOK, client.WithDestination(&result))
//
// # Rate limits
//
// With a throttle installed, a 429 response is returned as a wrapped
// [*throttle.RateLimitError]:
//
//	var rlErr *throttle.RateLimitError
//	if errors.As(err, &rlErr) {
//		time.Sleep(rlErr.RetryAfter())
//	}
//
// [RetryAfter] does the same lookup in one call. Other unexpected statuses
// return an [*UnexpectedStatusError] holding the API's error code and message.
//
// The delay applied before every request is read and changed through
// [Client.Throttle].
package client
