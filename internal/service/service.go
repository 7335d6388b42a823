package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hkealoha/town-weather-service/internal/client"
	"github.com/hkealoha/town-weather-service/internal/engine"
	"github.com/hkealoha/town-weather-service/internal/models"
	"github.com/hkealoha/town-weather-service/internal/normalize"
	"github.com/hkealoha/town-weather-service/internal/observability"
	"github.com/hkealoha/town-weather-service/internal/store"
)

// WeatherService answers "what is the weather at location X right now". It
// prefers a fresh cached reading over an upstream fetch, and overlays the
// community-resolved condition when the vote tally has cleared threshold.
// Numeric fields always come from the cached or fetched reading.
type WeatherService struct {
	client    client.WeatherClient
	cache     store.ReadingCache
	engine    *engine.Engine
	coalescer *requestCoalescer // nil when coalescing is disabled
}

// NewWeatherService creates a WeatherService. coalesceTimeout of 0 disables
// request coalescing for concurrent upstream fetches of the same location.
func NewWeatherService(client client.WeatherClient, cache store.ReadingCache, engine *engine.Engine, coalesceTimeout time.Duration) *WeatherService {
	var coalescer *requestCoalescer
	if coalesceTimeout > 0 {
		coalescer = newRequestCoalescer(coalesceTimeout)
	}
	return &WeatherService{
		client:    client,
		cache:     cache,
		engine:    engine,
		coalescer: coalescer,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns nil if logger is not found or context is invalid.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// Resolve returns the merged weather reading for a location.
//
// The community override is computed first, read-only and threshold-gated.
// The numeric reading comes from the cache when fresh, otherwise from the
// upstream provider, whose result is persisted back into the cache tagged
// source "api". A community condition without a numeric reading is not
// sufficient: upstream failure surfaces even when an override exists.
func (s *WeatherService) Resolve(ctx context.Context, location string) (models.WeatherReading, error) {
	key := normalize.Location(location)
	start := time.Now()
	logger := loggerFromContext(ctx)

	override, hasOverride, err := s.engine.ResolvedCondition(ctx, key)
	if err != nil {
		return models.WeatherReading{}, fmt.Errorf("compute community condition for %s: %w", key, err)
	}

	reading, cached, err := s.cache.Get(ctx, key)
	if err != nil {
		// Treat a failing cache backend as a miss.
		if logger != nil {
			logger.Warn("reading cache get failed", zap.String("location", key), zap.Error(err))
		}
		cached = false
	}
	if cached {
		observability.CacheHitsTotal.WithLabelValues("reading").Inc()
		if logger != nil {
			logger.Debug("cache hit", zap.String("location", key))
		}
	} else {
		if logger != nil {
			logger.Debug("cache miss, fetching upstream", zap.String("location", key))
		}
		reading, err = s.fetch(ctx, key)
		if err != nil {
			return models.WeatherReading{}, fmt.Errorf("fetch weather for %s: %w", key, err)
		}
		if stored, putErr := s.cache.Put(ctx, reading); putErr != nil {
			if logger != nil {
				logger.Warn("reading cache put failed", zap.String("location", key), zap.Error(putErr))
			}
		} else {
			reading = stored
		}
	}

	if hasOverride {
		reading.Condition = override
		reading.Source = models.SourceCommunity
	}
	if logger != nil {
		logger.Debug("weather resolved",
			zap.String("location", key),
			zap.Bool("cached", cached),
			zap.Bool("communityOverride", hasOverride),
			zap.Duration("duration", time.Since(start)))
	}
	return reading, nil
}

// UpvoteCondition bumps the rank of the current cached reading, refreshing
// its freshness window. Returns store.ErrNotFound when no fresh record
// exists for the location.
func (s *WeatherService) UpvoteCondition(ctx context.Context, location string) (models.WeatherReading, error) {
	return s.cache.BumpRank(ctx, normalize.Location(location))
}

// SelectCondition manually overrides the cached condition and bumps rank.
// The condition must be a known label; the record must already exist fresh.
func (s *WeatherService) SelectCondition(ctx context.Context, location, condition string) (models.WeatherReading, error) {
	return s.cache.SelectCondition(ctx, normalize.Location(location), condition)
}

func (s *WeatherService) fetch(ctx context.Context, key string) (models.WeatherReading, error) {
	if s.coalescer != nil {
		return s.coalescer.GetOrDo(ctx, key, func() (models.WeatherReading, error) {
			return s.client.CurrentWeather(ctx, key)
		})
	}
	return s.client.CurrentWeather(ctx, key)
}
