package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/adamwoolhether/quotaguard/client/throttle"
)

// Client sends requests to a resource management API. Every request
// passes through the transport chain assembled by [Build]: the optional
// throttle first, then the credential and User-Agent layers, then the base
// transport.
type Client struct {
	c              *http.Client
	throttle       *throttle.Throttle
	endpoint       *url.URL
	apiVersion     string
	tenantID       string
	subscriptionID string
	logger         *slog.Logger
}

// Build returns a Client configured by optFns. Without options it sends
// unthrottled requests through [http.DefaultTransport].
func Build(optFns ...Option) (*Client, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	c := Client{
		c:              &http.Client{},
		apiVersion:     DefaultAPIVersion,
		tenantID:       opts.tenantID,
		subscriptionID: opts.subscriptionID,
		logger:         slog.Default(),
	}
	if opts.httpClient != nil {
		c.c = opts.httpClient
	}
	if opts.logger != nil {
		c.logger = opts.logger
	}
	if opts.apiVersion != "" {
		c.apiVersion = opts.apiVersion
	}

	c.endpoint = opts.endpoint
	if c.endpoint == nil {
		c.endpoint, _ = url.Parse(DefaultEndpoint)
	}

	if opts.timeout != nil {
		c.c.Timeout = *opts.timeout
	}
	if opts.noRedirects {
		c.c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	transport, err := c.transport(opts)
	if err != nil {
		return nil, err
	}
	c.c.Transport = transport

	return &c, nil
}

// transport stacks the round trippers named by opts over the base
// transport. The throttle sits outermost so its delay precedes all work.
func (c *Client) transport(opts options) (http.RoundTripper, error) {
	var rt http.RoundTripper
	switch {
	case opts.transport != nil:
		rt = opts.transport
	case c.c.Transport != nil:
		rt = c.c.Transport
	default:
		rt = http.DefaultTransport
	}

	if opts.userAgent != "" {
		rt = userAgent{value: opts.userAgent, next: rt}
	}
	if opts.token != "" {
		rt = bearerAuth{token: opts.token, next: rt}
	}

	if opts.quota == nil && opts.bucket == nil {
		return rt, nil
	}

	throttleOpts := []throttle.Option{
		throttle.WithLogger(func() *slog.Logger { return c.logger }),
	}
	throttleOpts = append(throttleOpts, opts.quota...)
	if opts.bucket != nil {
		throttleOpts = append(throttleOpts, throttle.WithRateLimit(opts.bucket.RPS, opts.bucket.Burst))
	}

	t, err := throttle.New(rt, throttleOpts...)
	if err != nil {
		return nil, fmt.Errorf("configuring throttle: %w", err)
	}
	c.throttle = t

	return t, nil
}

// Throttle returns the client's throttle, or nil when neither
// [WithQuotaThrottle] nor [WithRateLimit] was applied.
func (c *Client) Throttle() *throttle.Throttle {
	return c.throttle
}

// Subscription returns the tenant and subscription ids set by
// [WithSubscription].
func (c *Client) Subscription() (tenantID, subscriptionID string) {
	return c.tenantID, c.subscriptionID
}

// ResourceURL resolves path below the endpoint and sets api-version
// alongside any query strings in opts. A port in opts replaces the
// endpoint's.
func (c *Client) ResourceURL(path string, opts ...URLOption) *url.URL {
	var settings urlOpts
	for _, opt := range opts {
		opt(&settings)
	}

	u := *c.endpoint
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	u.RawPath = ""

	if settings.port != 0 {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(settings.port))
	}

	query := url.Values{}
	for k, v := range settings.query {
		query[k] = v
	}
	query.Set("api-version", c.apiVersion)
	u.RawQuery = query.Encode()

	return &u
}

// SubscriptionURL is [Client.ResourceURL] for a path below the bound
// subscription, e.g. "/resourcegroups".
func (c *Client) SubscriptionURL(path string, opts ...URLOption) (*url.URL, error) {
	if c.subscriptionID == "" {
		return nil, ErrMissingSubscription
	}

	return c.ResourceURL("/subscriptions/"+c.subscriptionID+"/"+strings.TrimPrefix(path, "/"), opts...), nil
}

// Get reads u and decodes the 200 response into dest, when not nil.
func (c *Client) Get(ctx context.Context, u *url.URL, dest any) error {
	req, err := Request(ctx, u, http.MethodGet)
	if err != nil {
		return err
	}

	var opts []DoOption
	if dest != nil {
		opts = append(opts, func(o *doOpts) error {
			o.dest = dest
			return nil
		})
	}

	return c.Do(req, http.StatusOK, opts...)
}

// Do sends req and decodes the response into the destination set by
// [WithDestination], if any. A response other than expCode returns an
// [*UnexpectedStatusError]. With a throttle installed, a 429 returns a
// wrapped [*throttle.RateLimitError] instead.
func (c *Client) Do(req *http.Request, expCode int, opts ...DoOption) error {
	var settings doOpts
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return err
		}
	}

	return c.exec(req, expCode, func(resp *http.Response) error {
		if settings.dest == nil {
			return nil
		}

		d := json.NewDecoder(resp.Body)
		if settings.useJSONNum {
			d.UseNumber()
		}
		if err := d.Decode(settings.dest); err != nil {
			return fmt.Errorf("decoding body: %w", err)
		}

		return nil
	})
}

// Request is a method form of the package level [Request].
func (c *Client) Request(ctx context.Context, reqURL *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	return Request(ctx, reqURL, method, opts...)
}

// URL is a method form of the package level [URL].
func (c *Client) URL(scheme, host, path string, opts ...URLOption) *url.URL {
	return URL(scheme, host, path, opts...)
}

// exec sends req and hands a response matching expCode to fn. The body is
// drained and closed either way.
func (c *Client) exec(req *http.Request, expCode int, fn execFn) error {
	resp, err := c.c.Do(req)
	if err != nil {
		return fmt.Errorf("exec http do: %w", err)
	}

	defer func() {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			c.logger.Error("failed to discard unused body", "error", err)
		}
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != expCode {
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
		if err != nil {
			b = []byte("unable to read body")
		}

		return newStatusError(resp.StatusCode, b)
	}

	if err := fn(resp); err != nil {
		return fmt.Errorf("exec fn: %w", err)
	}

	return nil
}

// Request builds an *http.Request for reqURL. Content-Type defaults to
// "application/json" unless set by [WithContentType].
func Request(ctx context.Context, reqURL *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	var settings requestOpts
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return nil, err
		}
	}

	var body io.Reader = http.NoBody
	if settings.payload != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(settings.payload); err != nil {
			return nil, fmt.Errorf("encoding request payload: %w", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("instantiating request: %w", err)
	}

	for k, values := range settings.header {
		req.Header[k] = values
	}

	contentType := "application/json"
	if settings.contentType != "" {
		contentType = settings.contentType
	}
	req.Header.Set("Content-Type", contentType)
	if settings.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+settings.bearer)
	}

	return req, nil
}

// URL assembles a url.URL from its parts.
func URL(scheme, host, path string, opts ...URLOption) *url.URL {
	var settings urlOpts
	for _, opt := range opts {
		opt(&settings)
	}

	if settings.port != 0 {
		host = net.JoinHostPort(host, strconv.Itoa(settings.port))
	}

	u := url.URL{Scheme: scheme, Host: host, Path: path}
	if len(settings.query) > 0 {
		u.RawQuery = settings.query.Encode()
	}

	return &u
}
