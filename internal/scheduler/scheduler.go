package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/hkealoha/town-weather-service/internal/observability"
	"github.com/hkealoha/town-weather-service/internal/store"
)

// Scheduler runs the daily bulk sweep of the reading cache. The sweep clears
// every cached reading regardless of per-record freshness and runs
// independently of request handling.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cache     store.ReadingCache
	flushHour int
	logger    *zap.Logger
}

// New creates a Scheduler that flushes the cache daily at flushHour UTC.
func New(cache store.ReadingCache, flushHour int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		cache:     cache,
		flushHour: flushHour,
		logger:    logger,
	}
}

// Start schedules the daily flush job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	at := fmt.Sprintf("%02d:00", s.flushHour)
	_, err := s.scheduler.Every(1).Day().At(at).Do(s.runFlush)
	if err != nil {
		return fmt.Errorf("schedule daily flush: %w", err)
	}
	s.scheduler.StartAsync()
	s.logger.Info("daily cache flush scheduled", zap.String("at", at+" UTC"))
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) runFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := s.cache.Flush(ctx); err != nil {
		observability.ReadingFlushTotal.WithLabelValues("error").Inc()
		s.logger.Error("reading cache flush failed", zap.Error(err))
		return
	}
	observability.ReadingFlushTotal.WithLabelValues("success").Inc()
	s.logger.Info("reading cache flushed", zap.Duration("duration", time.Since(start)))
}
