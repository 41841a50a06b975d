package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/adamwoolhether/quotaguard/client"
	"github.com/adamwoolhether/quotaguard/client/throttle"
	"github.com/adamwoolhether/quotaguard/client/throttle/adaptive"
	"github.com/adamwoolhether/quotaguard/config"
	"github.com/adamwoolhether/quotaguard/metrics"
)

var (
	probeRequests int
	probePath     string
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Issue a sequence of throttled reads and report quota per request",
	Long: `Issue --requests GET calls inside one request sequence. Each row of the
report shows the response status, the remaining reads the API reported, the
delay applied before the call and the sequence length after it.

A 429 stops the probe and reports how long the API asked to wait.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger := stderrLogger(cfg.Log.Level)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		p, err := newProber(cfg, logger, reg)
		if err != nil {
			return err
		}

		if cfg.Metrics.Addr != "" {
			shutdown := serveMetrics(cfg.Metrics.Addr, reg, logger)
			defer shutdown()
		}

		results, err := p.run(ctx, probeRequests, probePath)
		fmt.Fprint(cmd.OutOrStdout(), renderResults(cfg, results))

		var rlErr *throttle.RateLimitError
		if errors.As(err, &rlErr) {
			fmt.Fprintf(cmd.OutOrStdout(), "\nrate limited: retry after %s\n", rlErr.RetryAfter())
			return nil
		}

		return err
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVarP(&probeRequests, "requests", "n", 5, "number of requests to issue")
	probeCmd.Flags().StringVar(&probePath, "path", "", "request path (default /subscriptions/{subscription_id}/resourcegroups)")
}

// probeResult is one row of the report.
type probeResult struct {
	N          int
	Status     int
	Items      int
	Reads      int
	ReadsKnown bool
	Delay      time.Duration
	Sequence   int
	Err        error
}

// lastReads keeps the most recent remaining-reads value for the report.
type lastReads struct {
	mu    sync.Mutex
	reads int
	ok    bool
}

func (l *lastReads) NotifyRemainingReads(reads int, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads, l.ok = reads, ok
}

// reset forgets the previous reading, so a request that never got a
// response reports no remaining reads.
func (l *lastReads) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads, l.ok = 0, false
}

func (l *lastReads) get() (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads, l.ok
}

type prober struct {
	cfg        config.Config
	client     *client.Client
	controller *adaptive.Controller
	collector  *metrics.Collector
	last       *lastReads
	logger     *slog.Logger
}

// newProber wires the client, the adaptive controller and the metrics
// collector from cfg. Collectors are registered with reg.
func newProber(cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*prober, error) {
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("creating collector: %w", err)
	}

	p := prober{
		cfg:       cfg,
		collector: collector,
		last:      &lastReads{},
		logger:    logger,
	}

	notifiers := []throttle.Notifier{p.last}
	if cfg.Adaptive.Enabled {
		ctrlOpts := []adaptive.Option{
			adaptive.WithBaseDelay(cfg.Adaptive.BaseDelay),
			adaptive.WithLogger(func() *slog.Logger { return logger }),
		}
		if len(cfg.Adaptive.Steps) > 0 {
			steps := make([]adaptive.Step, len(cfg.Adaptive.Steps))
			for i, s := range cfg.Adaptive.Steps {
				steps[i] = adaptive.Step{Below: s.Below, Delay: s.Delay}
			}
			ctrlOpts = append(ctrlOpts, adaptive.WithSteps(steps...))
		}

		p.controller, err = adaptive.New(ctrlOpts...)
		if err != nil {
			return nil, fmt.Errorf("creating adaptive controller: %w", err)
		}
		notifiers = append(notifiers, p.controller)
	}

	opts := []client.Option{
		client.WithLogger(logger),
		client.WithTimeout(cfg.Timeout),
		client.WithEndpoint(cfg.Endpoint),
		client.WithAPIVersion(cfg.APIVersion),
		client.WithSubscription(cfg.TenantID, cfg.SubscriptionID),
		client.WithQuotaThrottle(
			throttle.WithInitialDelay(cfg.Throttle.InitialDelay),
			throttle.WithDefaultRetryAfter(cfg.Throttle.DefaultRetryAfter),
			throttle.WithNotifier(collector.Notifier(throttle.Notifiers(notifiers...))),
			throttle.WithRecorder(collector),
		),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, client.WithUserAgent(cfg.UserAgent))
	}
	if cfg.Token != "" {
		opts = append(opts, client.WithToken(cfg.Token))
	}
	if cfg.Throttle.RPS > 0 {
		opts = append(opts, client.WithRateLimit(cfg.Throttle.RPS, cfg.Throttle.Burst))
	}

	p.client, err = client.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("building client: %w", err)
	}

	if p.controller != nil {
		p.controller.Bind(p.client.Throttle())
	}

	return &p, nil
}

// run issues n requests in one sequence. It stops at the first error and
// returns the rows gathered so far alongside it.
func (p *prober) run(ctx context.Context, n int, path string) ([]probeResult, error) {
	if n <= 0 {
		return nil, fmt.Errorf("requests[%d] must be positive", n)
	}

	target, err := p.target(path)
	if err != nil {
		return nil, err
	}

	ctx = throttle.BeginSequence(ctx)
	defer throttle.EndSequence(ctx)

	seqID, _ := throttle.SequenceID(ctx)
	p.logger.Info("probe started",
		"sequence", seqID,
		"tenant", p.cfg.TenantID,
		"subscription", p.cfg.SubscriptionID,
		"url", target.String(),
		"requests", n)

	results := make([]probeResult, 0, n)
	for i := 1; i <= n; i++ {
		res := p.issue(ctx, i, target)
		results = append(results, res)

		if res.Err != nil {
			p.logger.Warn("probe stopped", "request", i, "error", res.Err)
			return results, res.Err
		}
	}

	p.logger.Info("probe finished", "sequence", seqID, "requests", len(results))

	return results, nil
}

func (p *prober) issue(ctx context.Context, i int, target *url.URL) probeResult {
	res := probeResult{N: i, Delay: p.client.Throttle().Delay()}

	var list struct {
		Value []struct {
			Name string `json:"name"`
		} `json:"value"`
	}

	p.last.reset()
	res.Err = p.client.Get(ctx, target, &list)
	res.Sequence, _ = throttle.CurrentSequenceLength(ctx)
	res.Reads, res.ReadsKnown = p.last.get()

	var statusErr *client.UnexpectedStatusError
	var rlErr *throttle.RateLimitError
	switch {
	case res.Err == nil:
		res.Status = http.StatusOK
		res.Items = len(list.Value)
	case errors.As(res.Err, &rlErr):
		res.Status = http.StatusTooManyRequests
	case errors.As(res.Err, &statusErr):
		res.Status = statusErr.StatusCode
	}

	return res
}

// target resolves path below the endpoint. An empty path lists the
// subscription's resource groups.
func (p *prober) target(path string) (*url.URL, error) {
	if path == "" {
		return p.client.SubscriptionURL("/resourcegroups")
	}

	return p.client.ResourceURL(path), nil
}

// serveMetrics exposes reg on addr until the returned func is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("metrics shutdown", "error", err)
		}
	}
}
