// Package lifecycle holds process-wide run state read by the health endpoint and shutdown.
package lifecycle

import (
	"sync/atomic"
	"time"
)

var (
	shuttingDown atomic.Bool
	running      atomic.Int32
	lastRunNanos atomic.Int64
)

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not start new runs.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// BeginRun marks an ingest run as started. The returned func marks it finished and records the
// finish time; call it exactly once.
func BeginRun() func() {
	running.Add(1)
	return func() {
		lastRunNanos.Store(time.Now().UnixNano())
		running.Add(-1)
	}
}

// Running returns the number of ingest runs in progress.
func Running() int {
	return int(running.Load())
}

// LastRun returns when the most recent run finished, or the zero time if none has.
func LastRun() time.Time {
	n := lastRunNanos.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
