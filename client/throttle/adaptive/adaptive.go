// Package adaptive provides a controller that tunes a throttle's delay from
// the remaining-reads values the throttle reports.
package adaptive

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/adamwoolhether/quotaguard/client/throttle"
)

// DelaySetter is the part of [throttle.Throttle] the controller drives.
type DelaySetter interface {
	Delay() time.Duration
	SetDelay(d time.Duration) time.Duration
}

// Step applies Delay while the remaining reads are below Below.
type Step struct {
	Below int
	Delay time.Duration
}

// DefaultSteps suit an hourly budget of roughly twelve thousand reads.
var DefaultSteps = []Step{
	{Below: 100, Delay: 5 * time.Second},
	{Below: 1000, Delay: time.Second},
	{Below: 3000, Delay: 250 * time.Millisecond},
}

// Controller implements [throttle.Notifier]. Readings that carry no quota
// leave the delay untouched.
type Controller struct {
	mu     sync.Mutex
	target DelaySetter
	steps  []Step
	base   time.Duration
	last   int
	seen   bool
	logFn  func() *slog.Logger
}

var _ throttle.Notifier = (*Controller)(nil)

// Option is a functional option for configuring a [Controller] via [New].
type Option func(*Controller) error

// WithSteps replaces [DefaultSteps].
func WithSteps(steps ...Step) Option {
	return func(c *Controller) error {
		if len(steps) == 0 {
			return errors.New("steps must not be empty")
		}
		for _, s := range steps {
			if s.Below <= 0 || s.Delay < 0 {
				return fmt.Errorf("invalid step below[%d] delay[%s]", s.Below, s.Delay)
			}
		}
		c.steps = slices.Clone(steps)
		return nil
	}
}

// WithBaseDelay sets the delay used while quota is above every step.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Controller) error {
		if d < 0 {
			return errors.New("base delay must not be negative")
		}
		c.base = d
		return nil
	}
}

// WithLogger sets a func resolving the logger when the delay changes.
func WithLogger(logFn func() *slog.Logger) Option {
	return func(c *Controller) error {
		c.logFn = logFn
		return nil
	}
}

// New returns an unbound Controller; call [Controller.Bind] once the
// throttle it drives exists.
func New(opts ...Option) (*Controller, error) {
	c := &Controller{
		steps: slices.Clone(DefaultSteps),
		logFn: func() *slog.Logger { return nil },
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("applying controller option: %w", err)
		}
	}

	slices.SortFunc(c.steps, func(a, b Step) int { return a.Below - b.Below })

	return c, nil
}

// Bind attaches the throttle whose delay the controller sets.
func (c *Controller) Bind(target DelaySetter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = target
}

// NotifyRemainingReads records reads and, when bound, moves the target's
// delay to the step matching it.
func (c *Controller) NotifyRemainingReads(reads int, ok bool) {
	if !ok {
		return
	}

	c.mu.Lock()
	c.last, c.seen = reads, true
	target := c.target
	c.mu.Unlock()

	if target == nil {
		return
	}

	next := c.DelayFor(reads)
	if target.Delay() == next {
		return
	}

	prev := target.SetDelay(next)
	if c.logFn != nil {
		if logger := c.logFn(); logger != nil {
			logger.Info("adaptive delay adjusted", "remainingReads", reads, "previous", prev.String(), "current", next.String())
		}
	}
}

// DelayFor returns the delay for the given remaining reads.
func (c *Controller) DelayFor(reads int) time.Duration {
	for _, s := range c.steps {
		if reads < s.Below {
			return s.Delay
		}
	}

	return c.base
}

// Last returns the most recent remaining-reads value seen.
func (c *Controller) Last() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.seen
}
