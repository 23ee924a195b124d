package http

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestInFlightTracker_BeginAndDone(t *testing.T) {
	var tracker InFlightTracker

	done1 := tracker.Begin()
	done2 := tracker.Begin()
	if got := tracker.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}

	done1()
	done1() // second call is a no-op
	if got := tracker.Count(); got != 1 {
		t.Errorf("Count() after repeated done = %d, want 1", got)
	}
	done2()
	if got := tracker.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
	if got := tracker.Peak(); got != 2 {
		t.Errorf("Peak() = %d, want 2", got)
	}
}

func TestInFlightTracker_ConcurrentPeak(t *testing.T) {
	var tracker InFlightTracker
	start := make(chan struct{})
	var ready, wg sync.WaitGroup
	const n = 20
	dones := make([]func(), n)
	for i := 0; i < n; i++ {
		ready.Add(1)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dones[i] = tracker.Begin()
			ready.Done()
			<-start
			dones[i]()
		}(i)
	}
	ready.Wait()
	if got := tracker.Peak(); got != n {
		t.Errorf("Peak() = %d, want %d", got, n)
	}
	close(start)
	wg.Wait()
	if got := tracker.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

func TestInFlightTracker_WaitForZero(t *testing.T) {
	var tracker InFlightTracker
	if err := tracker.WaitForZero(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("WaitForZero() on idle tracker error = %v", err)
	}

	done := tracker.Begin()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- tracker.WaitForZero(ctx, 5*time.Millisecond) }()

	time.Sleep(10 * time.Millisecond)
	done()

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("WaitForZero() error = %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("WaitForZero did not return after the last request finished")
	}
}

func TestInFlightTracker_WaitForZero_ContextDone(t *testing.T) {
	var tracker InFlightTracker
	defer tracker.Begin()()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tracker.WaitForZero(ctx, 5*time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitForZero() error = %v, want context.Canceled", err)
	}
}
