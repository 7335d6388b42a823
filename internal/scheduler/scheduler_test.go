package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hkealoha/town-weather-service/internal/models"
	"github.com/hkealoha/town-weather-service/internal/store"
)

type countingCache struct {
	store.ReadingCache
	flushes int32
	err     error
}

func (c *countingCache) Flush(ctx context.Context) error {
	atomic.AddInt32(&c.flushes, 1)
	return c.err
}

func TestRunFlush_ClearsCache(t *testing.T) {
	cache := store.NewInMemoryReadingCache(time.Hour)
	if _, err := cache.Put(context.Background(), models.WeatherReading{Location: "lihue", Condition: "Rain"}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	s := New(cache, 9, zap.NewNop())
	s.runFlush()

	if _, ok, _ := cache.Get(context.Background(), "lihue"); ok {
		t.Error("cache record survived the flush")
	}
}

func TestRunFlush_ErrorDoesNotPanic(t *testing.T) {
	cache := &countingCache{err: errors.New("backend down")}
	s := New(cache, 9, zap.NewNop())
	s.runFlush()
	if got := atomic.LoadInt32(&cache.flushes); got != 1 {
		t.Errorf("flush attempts = %d, want 1", got)
	}
}

func TestStartStop(t *testing.T) {
	cache := store.NewInMemoryReadingCache(time.Hour)
	s := New(cache, 9, zap.NewNop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Stop()
}
