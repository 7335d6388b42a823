package service

import (
	"context"
	"sync"
	"time"

	"github.com/hkealoha/town-weather-service/internal/models"
)

// inFlightFetch tracks a single upstream fetch that multiple callers may wait on.
type inFlightFetch struct {
	done   chan struct{}
	result models.WeatherReading
	err    error
}

// requestCoalescer collapses concurrent upstream fetches for the same
// location key into one call whose result every waiter shares.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightFetch
	timeout  time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*inFlightFetch),
		timeout:  timeout,
	}
}

// GetOrDo returns the result of an already in-flight fetch for key, or
// starts fn and registers it. Waiting is bounded by the coalescer timeout
// and the caller's context.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func() (models.WeatherReading, error)) (models.WeatherReading, error) {
	rc.mu.Lock()
	if req, ok := rc.inFlight[key]; ok {
		rc.mu.Unlock()
		return rc.wait(ctx, req)
	}

	req := &inFlightFetch{done: make(chan struct{})}
	rc.inFlight[key] = req
	rc.mu.Unlock()

	go func() {
		req.result, req.err = fn()
		close(req.done)

		rc.mu.Lock()
		delete(rc.inFlight, key)
		rc.mu.Unlock()
	}()

	return rc.wait(ctx, req)
}

func (rc *requestCoalescer) wait(ctx context.Context, req *inFlightFetch) (models.WeatherReading, error) {
	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-req.done:
		if req.err != nil {
			return models.WeatherReading{}, req.err
		}
		return req.result, nil
	case <-waitCtx.Done():
		return models.WeatherReading{}, waitCtx.Err()
	}
}
