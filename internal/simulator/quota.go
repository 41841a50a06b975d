package simulator

import (
	"sync"
	"time"
)

// HintStyle selects how a throttled response tells the caller to wait.
type HintStyle string

const (
	HintHeader  HintStyle = "header"
	HintMinutes HintStyle = "minutes"
	HintSeconds HintStyle = "seconds"
	HintNone    HintStyle = "none"
)

// budget is a fixed window read allowance shared by every caller.
type budget struct {
	mu        sync.Mutex
	limit     int
	remaining int
	window    time.Duration
	resetAt   time.Time
	now       func() time.Time
}

func newBudget(limit int, window time.Duration, now func() time.Time) *budget {
	return &budget{
		limit:     limit,
		remaining: limit,
		window:    window,
		resetAt:   now().Add(window),
		now:       now,
	}
}

// take consumes one read and returns what is left. When the window is
// exhausted it returns the time until the next refill and false.
func (b *budget) take() (int, time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if !now.Before(b.resetAt) {
		b.remaining = b.limit
		b.resetAt = now.Add(b.window)
	}

	if b.remaining == 0 {
		return 0, b.resetAt.Sub(now), false
	}

	b.remaining--

	return b.remaining, 0, true
}

func (b *budget) left() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// ceilUnits rounds d up to whole units, never below one.
func ceilUnits(d, unit time.Duration) int {
	n := int((d + unit - 1) / unit)
	return max(n, 1)
}
