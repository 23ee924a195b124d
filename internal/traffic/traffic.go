// Package traffic keeps a sliding window of ingest invocation outcomes. The health endpoint
// reports degraded when too many recent runs were partial failures.
package traffic

import (
	"net/http"
	"sync"
	"time"
)

// Outcome classifies an invocation by its response status.
type Outcome int

const (
	Complete Outcome = iota // 200
	Partial                 // 207
	Rejected                // 400 or rate limited
)

// OutcomeFor maps a response status code to an Outcome.
func OutcomeFor(statusCode int) Outcome {
	switch statusCode {
	case http.StatusOK:
		return Complete
	case http.StatusMultiStatus:
		return Partial
	}
	return Rejected
}

type entry struct {
	at      time.Time
	outcome Outcome
}

// Summary counts outcomes within a window.
type Summary struct {
	Complete int
	Partial  int
	Rejected int
}

// Runs is the number of invocations that processed cities.
func (s Summary) Runs() int {
	return s.Complete + s.Partial
}

// PartialPct is the share of runs that were partial failures, 0 when there were none.
func (s Summary) PartialPct() int {
	if s.Runs() == 0 {
		return 0
	}
	return s.Partial * 100 / s.Runs()
}

// Tracker records outcomes for up to maxAge.
type Tracker struct {
	mu      sync.Mutex
	maxAge  time.Duration
	entries []entry
	now     func() time.Time
}

// NewTracker returns a Tracker keeping outcomes for maxAge (default 1h).
func NewTracker(maxAge time.Duration) *Tracker {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Tracker{maxAge: maxAge, now: time.Now}
}

// Record adds the outcome for statusCode.
func (t *Tracker) Record(statusCode int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.entries = append(t.entries, entry{at: now, outcome: OutcomeFor(statusCode)})
	t.pruneLocked(now)
}

// Summary counts outcomes not older than window.
func (t *Tracker) Summary(window time.Duration) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	var s Summary
	for _, e := range t.entries {
		if e.at.Before(cutoff) {
			continue
		}
		switch e.outcome {
		case Complete:
			s.Complete++
		case Partial:
			s.Partial++
		default:
			s.Rejected++
		}
	}
	return s
}

// pruneLocked drops entries older than maxAge. Entries are appended in time order.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.maxAge)
	i := 0
	for ; i < len(t.entries) && t.entries[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.entries = append(t.entries[:0], t.entries[i:]...)
	}
}
