package http

import (
	"context"
	"sync/atomic"
	"time"
)

// InFlightTracker counts trigger requests being served so shutdown can wait for running ingest
// requests before backends are closed. The zero value is ready to use.
type InFlightTracker struct {
	count atomic.Int64
	peak  atomic.Int64
}

// Begin marks a request as started and returns the func that marks it done.
func (t *InFlightTracker) Begin() (done func()) {
	n := t.count.Add(1)
	for {
		p := t.peak.Load()
		if n <= p || t.peak.CompareAndSwap(p, n) {
			break
		}
	}
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			t.count.Add(-1)
		}
	}
}

func (t *InFlightTracker) Count() int64 {
	return t.count.Load()
}

// Peak is the highest concurrent count observed.
func (t *InFlightTracker) Peak() int64 {
	return t.peak.Load()
}

// WaitForZero polls every checkInterval until no requests are in flight or ctx is done.
func (t *InFlightTracker) WaitForZero(ctx context.Context, checkInterval time.Duration) error {
	if t.Count() == 0 {
		return nil
	}
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if t.Count() == 0 {
				return nil
			}
		}
	}
}
