package throttle

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Delay holds the pause applied before every request leaving a [Throttle].
// Reads and writes are atomic; a request uses whatever value it read before
// its pause, so a later Set never applies retroactively.
type Delay struct {
	ms    atomic.Int64
	logFn func() *slog.Logger
}

// Get returns the current delay.
func (d *Delay) Get() time.Duration {
	return time.Duration(d.ms.Load()) * time.Millisecond
}

// Set stores a new delay and returns the previous one. Negative values are
// stored as zero and the value is truncated to millisecond granularity.
func (d *Delay) Set(v time.Duration) time.Duration {
	if v < 0 {
		v = 0
	}

	prev := time.Duration(d.ms.Swap(v.Milliseconds())) * time.Millisecond
	if prev == v.Truncate(time.Millisecond) {
		return prev
	}

	if d.logFn != nil {
		if logger := d.logFn(); logger != nil {
			logger.Debug("throttle delay changed", "previous", prev.String(), "current", v.Truncate(time.Millisecond).String())
		}
	}

	return prev
}
