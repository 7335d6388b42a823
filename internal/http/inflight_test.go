package http

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestInFlightTracker_Count(t *testing.T) {
	var tracker InFlightTracker

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Increment()
		}()
	}
	wg.Wait()

	if got := tracker.Count(); got != 8 {
		t.Fatalf("Count() = %d after 8 concurrent increments, want 8", got)
	}

	for i := 0; i < 8; i++ {
		tracker.Decrement()
	}
	if got := tracker.Count(); got != 0 {
		t.Fatalf("Count() = %d after matching decrements, want 0", got)
	}
}

func TestInFlightTracker_WaitForZero(t *testing.T) {
	var tracker InFlightTracker
	tracker.Increment()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- tracker.WaitForZero(ctx, 5*time.Millisecond)
	}()

	time.Sleep(15 * time.Millisecond)
	tracker.Decrement()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitForZero returned %v after count drained", err)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("WaitForZero did not return after count reached zero")
	}
}

func TestInFlightTracker_WaitForZero_ContextCanceled(t *testing.T) {
	var tracker InFlightTracker
	tracker.Increment()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tracker.WaitForZero(ctx, 5*time.Millisecond); err == nil {
		t.Fatal("WaitForZero with a canceled context and nonzero count should error")
	}
}
