package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/adamwoolhether/quotaguard/client/throttle"
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error

type options struct {
	httpClient     *http.Client
	transport      http.RoundTripper
	timeout        *time.Duration
	userAgent      string
	endpoint       *url.URL
	apiVersion     string
	tenantID       string
	subscriptionID string
	token          string
	bucket         *throttle.Config
	quota          []throttle.Option
	noRedirects    bool
	logger         *slog.Logger
}

// WithClient replaces the [http.Client] requests are sent with. Its
// Transport, when set, becomes the base of the transport chain.
func WithClient(hc *http.Client) Option {
	return func(o *options) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		o.httpClient = hc
		return nil
	}
}

// WithTransport sets the base [http.RoundTripper] beneath the throttle.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		o.transport = rt
		return nil
	}
}

// WithTimeout bounds each call, the throttle delay included.
func WithTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		o.timeout = &d
		return nil
	}
}

// WithUserAgent sets the User-Agent header on every outgoing request.
func WithUserAgent(header string) Option {
	return func(o *options) error {
		o.userAgent = header
		return nil
	}
}

// WithEndpoint sets the management API base URL used by
// [Client.ResourceURL]. It defaults to [DefaultEndpoint].
func WithEndpoint(raw string) Option {
	return func(o *options) error {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parsing endpoint: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("endpoint[%s] must be absolute", raw)
		}
		o.endpoint = u
		return nil
	}
}

// WithAPIVersion sets the api-version query parameter added by
// [Client.ResourceURL]. It defaults to [DefaultAPIVersion].
func WithAPIVersion(version string) Option {
	return func(o *options) error {
		if version == "" {
			return errors.New("api version must not be empty")
		}
		o.apiVersion = version
		return nil
	}
}

// WithSubscription binds the client to a tenant and subscription.
// Both ids are required.
func WithSubscription(tenantID, subscriptionID string) Option {
	return func(o *options) error {
		if tenantID == "" || subscriptionID == "" {
			return fmt.Errorf("%w: tenant[%q] subscription[%q]", ErrMissingSubscription, tenantID, subscriptionID)
		}
		o.tenantID = tenantID
		o.subscriptionID = subscriptionID
		return nil
	}
}

// WithToken sends token as a bearer credential on every request that does
// not already carry an Authorization header. Acquiring and refreshing the
// token is left to the caller.
func WithToken(token string) Option {
	return func(o *options) error {
		if token == "" {
			return errors.New("token must not be empty")
		}
		o.token = token
		return nil
	}
}

// WithRateLimit caps outgoing calls with a token bucket of rps and burst.
// It shares the throttle installed by [WithQuotaThrottle] when both are applied.
func WithRateLimit(rps, burst int) Option {
	return func(o *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		o.bucket = &throttle.Config{RPS: rps, Burst: burst}
		return nil
	}
}

// WithQuotaThrottle paces every request through a [throttle.Throttle]
// configured with opts. The throttle is reachable through [Client.Throttle].
func WithQuotaThrottle(opts ...throttle.Option) Option {
	return func(o *options) error {
		o.quota = append(o.quota, opts...)
		return nil
	}
}

// WithNoFollowRedirects returns redirect responses to the caller as is.
func WithNoFollowRedirects() Option {
	return func(o *options) error {
		o.noRedirects = true
		return nil
	}
}

// WithLogger sets the logger shared by the client and its throttle.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// DoOption is a functional option for [Client.Do].
type DoOption func(options *doOpts) error

type doOpts struct {
	dest       any
	useJSONNum bool
}

// WithDestination decodes the JSON response body into dest.
func WithDestination[T any](dest *T) DoOption {
	return func(o *doOpts) error {
		if dest == nil {
			return errors.New("destination must not be nil")
		}
		o.dest = dest
		return nil
	}
}

// WithJSONNumb decodes numbers as [json.Number] rather than float64.
func WithJSONNumb() DoOption {
	return func(o *doOpts) error {
		o.useJSONNum = true
		return nil
	}
}

// RequestOption is a functional option for [Request].
type RequestOption func(options *requestOpts) error

type requestOpts struct {
	payload     any
	contentType string
	header      http.Header
	bearer      string
}

// WithPayload encodes payload as the JSON request body, e.g. a resource
// definition for a PUT.
func WithPayload(payload any) RequestOption {
	return func(o *requestOpts) error {
		o.payload = payload
		return nil
	}
}

// WithContentType replaces the "application/json" Content-Type, e.g. with
// "application/merge-patch+json" for a PATCH.
func WithContentType(contentType string) RequestOption {
	return func(o *requestOpts) error {
		if contentType == "" {
			return errors.New("content type must not be empty")
		}
		o.contentType = contentType
		return nil
	}
}

// WithHeaders adds headers to the request. Repeated use accumulates.
func WithHeaders(headers map[string][]string) RequestOption {
	return func(o *requestOpts) error {
		if o.header == nil {
			o.header = make(http.Header, len(headers))
		}
		for k, values := range headers {
			for _, v := range values {
				o.header.Add(k, v)
			}
		}
		return nil
	}
}

// WithBearerToken sets the Authorization header of one request, taking
// precedence over [WithToken].
func WithBearerToken(token string) RequestOption {
	return func(o *requestOpts) error {
		if token == "" {
			return errors.New("bearer token must not be empty")
		}
		o.bearer = token
		return nil
	}
}

// URLOption is a functional option for [URL] and [Client.ResourceURL].
type URLOption func(*urlOpts)

type urlOpts struct {
	query url.Values
	port  int
}

// WithQueryStrings adds query parameters such as "$filter" or "$top".
// A key given twice keeps the last value.
func WithQueryStrings(kv map[string]string) URLOption {
	return func(o *urlOpts) {
		if o.query == nil {
			o.query = make(url.Values, len(kv))
		}
		for k, v := range kv {
			o.query.Set(k, v)
		}
	}
}

// WithPort overrides the port of the URL's host.
func WithPort(port int) URLOption {
	return func(o *urlOpts) {
		o.port = port
	}
}

// userAgent stamps a fixed User-Agent on every request.
type userAgent struct {
	value string
	next  http.RoundTripper
}

func (ua userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	out := r.Clone(r.Context())
	out.Header.Set("User-Agent", ua.value)
	return ua.next.RoundTrip(out)
}

// bearerAuth adds a bearer token to requests lacking an Authorization header.
type bearerAuth struct {
	token string
	next  http.RoundTripper
}

func (b bearerAuth) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("Authorization") != "" {
		return b.next.RoundTrip(r)
	}

	out := r.Clone(r.Context())
	out.Header.Set("Authorization", "Bearer "+b.token)
	return b.next.RoundTrip(out)
}
