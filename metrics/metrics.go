// Package metrics exposes throttle activity as Prometheus collectors.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adamwoolhether/quotaguard/client/throttle"
)

// Collector implements [throttle.Recorder] and wraps a [throttle.Notifier]
// so remaining quota is tracked as well.
type Collector struct {
	RequestsTotal    *prometheus.CounterVec
	RateLimitedTotal prometheus.Counter
	RetryAfter       prometheus.Histogram
	Delay            prometheus.Histogram
	CurrentDelay     prometheus.Gauge
	RemainingReads   prometheus.Gauge
}

var _ throttle.Recorder = (*Collector)(nil)

// NewCollector builds the collectors and registers them with reg.
// A nil reg skips registration.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotaguard_requests_total",
				Help: "Total number of requests forwarded through the throttle",
			},
			[]string{"code"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quotaguard_rate_limited_total",
				Help: "Total number of 429 responses converted into rate limit errors",
			},
		),
		RetryAfter: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quotaguard_retry_after_seconds",
				Help:    "Wait reported by rate limit errors",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),
		Delay: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quotaguard_delay_seconds",
				Help:    "Delay applied before each forwarded request",
				Buckets: prometheus.DefBuckets,
			},
		),
		CurrentDelay: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quotaguard_current_delay_seconds",
				Help: "Delay applied before the most recent request",
			},
		),
		RemainingReads: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quotaguard_remaining_reads",
				Help: "Most recent remaining-reads value reported by the API",
			},
		),
	}

	if reg == nil {
		return c, nil
	}

	for _, col := range []prometheus.Collector{c.RequestsTotal, c.RateLimitedTotal, c.RetryAfter, c.Delay, c.CurrentDelay, c.RemainingReads} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}

	return c, nil
}

func (c *Collector) RecordRequest(statusCode int, waited time.Duration) {
	c.RequestsTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	c.Delay.Observe(waited.Seconds())
	c.CurrentDelay.Set(waited.Seconds())
}

func (c *Collector) RecordRateLimited(waitSeconds int) {
	c.RateLimitedTotal.Inc()
	c.RetryAfter.Observe(float64(waitSeconds))
}

// Notifier returns a [throttle.Notifier] that updates the remaining-reads
// gauge and then forwards to next, if any.
func (c *Collector) Notifier(next throttle.Notifier) throttle.Notifier {
	return throttle.NotifierFunc(func(reads int, ok bool) {
		if ok {
			c.RemainingReads.Set(float64(reads))
		}
		if next != nil {
			next.NotifyRemainingReads(reads, ok)
		}
	})
}
