package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/hkealoha/town-weather-service/internal/models"
	"github.com/hkealoha/town-weather-service/internal/normalize"
	"github.com/hkealoha/town-weather-service/internal/observability"
)

type WeatherClient interface {
	// CurrentWeather fetches the current reading for a town. On a not-found
	// town it retries exactly once against the configured fallback town;
	// any other failure, or failure of the fallback, propagates.
	CurrentWeather(ctx context.Context, location string) (models.WeatherReading, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
)

type OpenWeatherClient struct {
	apiKey           string
	apiURL           string
	timeout          time.Duration
	client           *http.Client
	retryAttempts    int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	fallbackLocation string
	breaker          *gobreaker.CircuitBreaker
}

func NewOpenWeatherClient(apiKey, apiURL, fallbackLocation string, timeout time.Duration) (*OpenWeatherClient, error) {
	return NewOpenWeatherClientWithRetry(apiKey, apiURL, fallbackLocation, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

func NewOpenWeatherClientWithRetry(apiKey, apiURL, fallbackLocation string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}

	return &OpenWeatherClient{
		apiKey:           apiKey,
		apiURL:           apiURL,
		timeout:          timeout,
		retryAttempts:    retryAttempts,
		retryBaseDelay:   retryBaseDelay,
		retryMaxDelay:    retryMaxDelay,
		fallbackLocation: normalize.Location(fallbackLocation),
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// EnableBreaker wires a circuit breaker around upstream calls. Not-found and
// key errors are the caller's problem and do not trip the breaker.
func (c *OpenWeatherClient) EnableBreaker(failureThreshold uint32, openTimeout time.Duration) {
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "weather_api",
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrLocationNotFound) || errors.Is(err, ErrInvalidAPIKey)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.BreakerTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
		},
	})
}

type openWeatherResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Name string `json:"name"`
}

// CurrentWeather fetches the town's reading, falling back once to the
// configured default town when the upstream has no data for the name.
func (c *OpenWeatherClient) CurrentWeather(ctx context.Context, location string) (models.WeatherReading, error) {
	key := normalize.Location(location)
	reading, err := c.fetchWithRetry(ctx, key)
	if err == nil {
		return reading, nil
	}
	if errors.Is(err, ErrLocationNotFound) && c.fallbackLocation != "" && key != c.fallbackLocation {
		observability.WeatherAPIFallbacksTotal.Inc()
		return c.fetchWithRetry(ctx, c.fallbackLocation)
	}
	return models.WeatherReading{}, err
}

func (c *OpenWeatherClient) fetchWithRetry(ctx context.Context, location string) (models.WeatherReading, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return models.WeatherReading{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.callUpstream(ctx, location)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return models.WeatherReading{}, err
		}
	}

	return models.WeatherReading{}, fmt.Errorf("exhausted retries: %w", lastErr)
}

// callUpstream routes the call through the breaker when one is configured.
func (c *OpenWeatherClient) callUpstream(ctx context.Context, location string) (models.WeatherReading, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, location)
	}
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.callAPI(ctx, location)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return models.WeatherReading{}, fmt.Errorf("%w: circuit open", ErrUpstreamFailure)
		}
		return models.WeatherReading{}, err
	}
	return result.(models.WeatherReading), nil
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, location string) (models.WeatherReading, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, location)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.WeatherReading{}, fmt.Errorf("build request: %w", err)
	}

	corrID := extractCorrelationID(ctx)
	if corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.WeatherReading{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.WeatherReading{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return models.WeatherReading{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.WeatherReading{}, fmt.Errorf("read response body: %w", err)
	}

	var apiResp openWeatherResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.WeatherReading{}, fmt.Errorf("parse response: %w", err)
	}

	return c.mapResponse(apiResp, location), nil
}

func (c *OpenWeatherClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrUpstreamFailure) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded") || strings.Contains(errStr, "context canceled") {
		return true
	}

	return false
}

func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, location string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("q", location)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *OpenWeatherClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: invalid API key", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

// mapResponse converts the upstream payload into a reading keyed by the
// canonical requested location. The requested key wins over the upstream
// display name so cache keys and community vote keys stay aligned.
func (c *OpenWeatherClient) mapResponse(apiResp openWeatherResponse, location string) models.WeatherReading {
	condition := ""
	icon := ""
	if len(apiResp.Weather) > 0 {
		condition = apiResp.Weather[0].Main
		icon = apiResp.Weather[0].Icon
	}

	return models.WeatherReading{
		Location:  location,
		Condition: condition,
		Temp:      apiResp.Main.Temp,
		Humidity:  apiResp.Main.Humidity,
		WindSpeed: apiResp.Wind.Speed,
		Icon:      icon,
		Source:    models.SourceAPI,
		UpdatedAt: time.Now(),
	}
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	probe := c.fallbackLocation
	if probe == "" {
		probe = "lihue"
	}
	req, err := c.buildRequest(ctx, probe)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}

	return nil
}
