package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hkealoha/town-weather-service/internal/auth"
	"github.com/hkealoha/town-weather-service/internal/client"
	"github.com/hkealoha/town-weather-service/internal/config"
	"github.com/hkealoha/town-weather-service/internal/engine"
	httphandler "github.com/hkealoha/town-weather-service/internal/http"
	"github.com/hkealoha/town-weather-service/internal/lifecycle"
	"github.com/hkealoha/town-weather-service/internal/observability"
	"github.com/hkealoha/town-weather-service/internal/scheduler"
	"github.com/hkealoha/town-weather-service/internal/service"
	"github.com/hkealoha/town-weather-service/internal/store"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient, err := client.NewOpenWeatherClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.FallbackLocation,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	if cfg.BreakerEnabled {
		weatherClient.EnableBreaker(uint32(cfg.BreakerFailureThreshold), cfg.BreakerOpenTimeout)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.BreakerFailureThreshold),
			zap.Duration("open_timeout", cfg.BreakerOpenTimeout))
	}

	placesClient, err := client.NewGoogleMapsClient(cfg.MapsAPIKey, cfg.MapsRadiusM, cfg.MapsTimeout)
	if err != nil {
		logger.Fatal("maps client", zap.Error(err))
	}

	var readingCache store.ReadingCache
	var memcacheCloser *store.MemcachedReadingCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := store.NewMemcachedReadingCache(cfg.MemcachedAddrs, cfg.CacheTTL, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached reading cache", zap.Error(err))
		}
		memcacheCloser = mc
		readingCache = mc
		logger.Info("reading cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		readingCache = store.NewInMemoryReadingCache(cfg.CacheTTL)
		logger.Info("reading cache backend: in_memory")
	}

	users := store.NewInMemoryUserStore()
	ledger := store.NewInMemoryVoteLedger()

	voteEngine := engine.New(ledger, users, readingCache, cfg.VoteThreshold, cfg.VoteCap, cfg.VoteWindow, logger)
	weatherService := service.NewWeatherService(weatherClient, readingCache, voteEngine, cfg.CoalesceTimeout)
	authService := auth.NewService(users, []byte(cfg.JWTSecret), cfg.TokenTTL, logger)

	var cachePing func() error
	if memcacheCloser != nil {
		cachePing = memcacheCloser.Ping
	}
	handler := httphandler.NewHandler(weatherService, voteEngine, authService, users, placesClient, weatherClient, logger, cfg.LocationMinLength, cfg.LocationMaxLength, cachePing)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	flushScheduler := scheduler.New(readingCache, cfg.FlushHour, logger)
	if err := flushScheduler.Start(); err != nil {
		logger.Fatal("flush scheduler", zap.Error(err))
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	apiRouter := router.PathPrefix("/").Subrouter()
	apiRouter.Use(httphandler.RateLimitMiddleware(limiter))
	apiRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	apiRouter.HandleFunc("/api/vote", handler.PostVote).Methods("POST")
	apiRouter.HandleFunc("/api/weather/upvote/{location}", handler.PostUpvote).Methods("POST")
	apiRouter.HandleFunc("/api/weather/select/{location}", handler.PostSelect).Methods("POST")
	apiRouter.HandleFunc("/api/weather/{location}", handler.GetWeather).Methods("GET")
	apiRouter.HandleFunc("/api/user/{userId}", handler.GetUser).Methods("GET")
	apiRouter.HandleFunc("/auth/guest-login", handler.PostGuestLogin).Methods("POST")
	apiRouter.HandleFunc("/auth/google-login", handler.PostGoogleLogin).Methods("POST")
	apiRouter.HandleFunc("/nearby-places", handler.GetNearbyPlaces).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	flushScheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
