package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeatherMap API call rate. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// External API latency per request. Watch for: p95 > 2s (upstream degradation), p99 > 5s (timeout risk).
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts for weather API. Watch for: high retries = unstable upstream.
	WeatherAPIRetriesTotal prometheus.Counter

	// Not-found fallbacks to the configured default town. Watch for: clients sending bad town names.
	WeatherAPIFallbacksTotal prometheus.Counter

	// Circuit breaker state transitions for the weather API.
	BreakerTransitionsTotal *prometheus.CounterVec

	// Reading cache hits. Hit rate = hits/(hits + weatherApiCallsTotal).
	CacheHitsTotal *prometheus.CounterVec

	// Accepted condition votes by condition label.
	VotesSubmittedTotal *prometheus.CounterVec

	// Vote submissions that crossed the threshold and promoted a condition.
	VotesResolvedTotal prometheus.Counter

	// Vote submissions rejected by the per-voter hourly cap.
	VotesRateLimitedTotal prometheus.Counter

	// Reputation points awarded to voters whose vote matched a resolved condition.
	ReputationAwardsTotal prometheus.Counter

	// Global middleware rate limit denials (429). Watch for: overload, abuse.
	RateLimitDeniedTotal prometheus.Counter

	// Daily reading-cache flush runs by outcome.
	ReadingFlushTotal *prometheus.CounterVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for weather API calls",
		},
	)
	WeatherAPIFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiFallbacksTotal",
			Help: "Total number of not-found fallbacks to the default town",
		},
	)
	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakerTransitionsTotal",
			Help: "Circuit breaker state transitions for the weather API",
		},
		[]string{"from", "to"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of reading cache hits",
		},
		[]string{"cacheType"},
	)
	VotesSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votesSubmittedTotal",
			Help: "Accepted condition votes by condition",
		},
		[]string{"condition"},
	)
	VotesResolvedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "votesResolvedTotal",
			Help: "Vote submissions that promoted a community condition",
		},
	)
	VotesRateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "votesRateLimitedTotal",
			Help: "Vote submissions rejected by the per-voter hourly cap",
		},
	)
	ReputationAwardsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reputationAwardsTotal",
			Help: "Reputation points awarded for votes matching a resolved condition",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	ReadingFlushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readingFlushTotal",
			Help: "Daily reading-cache flush runs by outcome",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal,
		WeatherAPIFallbacksTotal, BreakerTransitionsTotal,
		CacheHitsTotal,
		VotesSubmittedTotal, VotesResolvedTotal, VotesRateLimitedTotal,
		ReputationAwardsTotal,
		RateLimitDeniedTotal, ReadingFlushTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
