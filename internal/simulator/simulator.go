// Package simulator serves a small part of the resource management API
// behind a read quota. It answers with the same remaining-quota headers and
// throttling responses as the real service, so the throttled client can be
// exercised locally.
package simulator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/quotaguard/client/throttle"
)

// Option is a functional option for configuring a [Simulator] via [New].
type Option func(*options)

type options struct {
	reads        int
	window       time.Duration
	subscription string
	token        string
	scopeHeader  string
	hint         HintStyle
	groups       []string
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// WithReads sets the reads allowed per window.
func WithReads(n int) Option {
	return func(o *options) {
		o.reads = n
	}
}

// WithWindow sets how often the read allowance refills.
func WithWindow(d time.Duration) Option {
	return func(o *options) {
		o.window = d
	}
}

// WithSubscription restricts routes to one subscription id.
func WithSubscription(id string) Option {
	return func(o *options) {
		o.subscription = id
	}
}

// WithToken requires every request to carry this bearer token.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithScopeHeader selects which remaining-quota header is reported.
func WithScopeHeader(header string) Option {
	return func(o *options) {
		o.scopeHeader = header
	}
}

// WithHint selects how throttled responses carry their wait.
func WithHint(style HintStyle) Option {
	return func(o *options) {
		o.hint = style
	}
}

// WithResourceGroups sets the resource groups listed by the subscription.
func WithResourceGroups(names ...string) Option {
	return func(o *options) {
		o.groups = names
	}
}

// WithLogger sets the request logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithTracer sets the tracer spanning every request.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// Simulator is an http.Handler answering management API reads.
type Simulator struct {
	app          *app
	budget       *budget
	subscription string
	token        string
	scopeHeader  string
	hint         HintStyle
	groups       []string
	served       atomic.Int64
	throttled    atomic.Int64
}

// New returns a Simulator allowing 12000 reads per hour on a single
// subscription, with throttled responses hinting their wait in minutes.
func New(optFns ...Option) *Simulator {
	opts := options{
		reads:       12000,
		window:      time.Hour,
		scopeHeader: throttle.HeaderSubscriptionReads,
		hint:        HintMinutes,
		groups:      []string{"rg-default"},
		now:         time.Now,
	}
	for _, opt := range optFns {
		opt(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.tracer == nil {
		opts.tracer = noop.NewTracerProvider().Tracer("no-op tracer")
	}

	s := &Simulator{
		budget:       newBudget(opts.reads, opts.window, opts.now),
		subscription: opts.subscription,
		token:        opts.token,
		scopeHeader:  opts.scopeHeader,
		hint:         opts.hint,
		groups:       opts.groups,
	}

	s.app = &app{
		mux:    http.NewServeMux(),
		tracer: opts.tracer,
		logger: opts.logger,
		mw: []Middleware{
			logRequests(opts.logger),
			answerErrors(opts.logger),
			recoverPanics(),
			s.authorize,
			s.meter,
		},
	}

	s.app.handle("GET /subscriptions/{subscriptionId}/resourcegroups", s.listGroups)
	s.app.handle("GET /subscriptions/{subscriptionId}/resourcegroups/{name}", s.getGroup)

	return s
}

func (s *Simulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

// Served returns how many requests were answered within quota.
func (s *Simulator) Served() int64 {
	return s.served.Load()
}

// Throttled returns how many requests were rejected with 429.
func (s *Simulator) Throttled() int64 {
	return s.throttled.Load()
}

// Remaining returns the reads left in the current window.
func (s *Simulator) Remaining() int {
	return s.budget.left()
}

// authorize rejects requests the real service would refuse before
// charging quota.
func (s *Simulator) authorize(handler Handler) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if r.URL.Query().Get("api-version") == "" {
			return NewError(http.StatusBadRequest, "MissingApiVersionParameter", "The api-version query parameter (?api-version=) is required for all requests.")
		}

		if s.token != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || got != s.token {
				return NewError(http.StatusUnauthorized, "AuthenticationFailed", "Authentication failed. The 'Authorization' header is missing or invalid.")
			}
		}

		if id := r.PathValue("subscriptionId"); s.subscription != "" && !strings.EqualFold(id, s.subscription) {
			return NewError(http.StatusNotFound, "SubscriptionNotFound", "The subscription '%s' could not be found.", id)
		}

		return handler(ctx, w, r)
	}
}

// meter charges one read and reports what is left, or rejects the request
// once the window is spent.
func (s *Simulator) meter(handler Handler) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		remaining, wait, ok := s.budget.take()
		w.Header().Set(s.scopeHeader, strconv.Itoa(remaining))

		if !ok {
			s.throttled.Add(1)
			return s.tooManyRequests(w, r.PathValue("subscriptionId"), wait)
		}

		s.served.Add(1)

		return handler(ctx, w, r)
	}
}

func (s *Simulator) tooManyRequests(w http.ResponseWriter, subscription string, wait time.Duration) *Error {
	msg := fmt.Sprintf("Number of read requests for subscription '%s' exceeded the limit of '%d' for time interval '%s'.",
		subscription, s.budget.limit, s.budget.window)

	switch s.hint {
	case HintHeader:
		w.Header().Set("Retry-After", strconv.Itoa(ceilUnits(wait, time.Second)))
	case HintMinutes:
		msg += fmt.Sprintf(" Please try again after '%d' minutes.", ceilUnits(wait, time.Minute))
	case HintSeconds:
		msg += fmt.Sprintf(" Please try again after '%d' seconds.", ceilUnits(wait, time.Second))
	}

	return NewError(http.StatusTooManyRequests, "SubscriptionRequestsThrottled", "%s", msg)
}

type resourceGroup struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Location string `json:"location"`
}

func (s *Simulator) group(subscription, name string) resourceGroup {
	return resourceGroup{
		ID:       fmt.Sprintf("/subscriptions/%s/resourceGroups/%s", subscription, name),
		Name:     name,
		Type:     "Microsoft.Resources/resourceGroups",
		Location: "westeurope",
	}
}

func (s *Simulator) listGroups(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	sub := r.PathValue("subscriptionId")

	list := struct {
		Value []resourceGroup `json:"value"`
	}{Value: make([]resourceGroup, 0, len(s.groups))}
	for _, name := range s.groups {
		list.Value = append(list.Value, s.group(sub, name))
	}

	return respondJSON(ctx, w, http.StatusOK, list)
}

func (s *Simulator) getGroup(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	sub, name := r.PathValue("subscriptionId"), r.PathValue("name")

	for _, g := range s.groups {
		if strings.EqualFold(g, name) {
			return respondJSON(ctx, w, http.StatusOK, s.group(sub, g))
		}
	}

	return NewError(http.StatusNotFound, "ResourceGroupNotFound", "Resource group '%s' could not be found.", name)
}

// ParseHintStyle validates a hint style name.
func ParseHintStyle(s string) (HintStyle, error) {
	switch h := HintStyle(strings.ToLower(s)); h {
	case HintHeader, HintMinutes, HintSeconds, HintNone:
		return h, nil
	default:
		return "", fmt.Errorf("unknown hint style[%s]", s)
	}
}

func withClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
