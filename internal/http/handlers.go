package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/hkealoha/town-weather-service/internal/auth"
	"github.com/hkealoha/town-weather-service/internal/client"
	"github.com/hkealoha/town-weather-service/internal/engine"
	"github.com/hkealoha/town-weather-service/internal/lifecycle"
	"github.com/hkealoha/town-weather-service/internal/service"
	"github.com/hkealoha/town-weather-service/internal/store"
	"github.com/hkealoha/town-weather-service/internal/validation"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather *service.WeatherService
	engine  *engine.Engine
	auth    *auth.Service
	users   store.UserStore
	places  client.PlacesClient
	client  client.WeatherClient
	logger  *zap.Logger
	locMin  int
	locMax  int
	// CachePing, when set, is called by the health handler to check cache
	// reachability. Used when the reading cache backend is memcached.
	cachePing func() error
}

// NewHandler returns a new Handler.
func NewHandler(
	weather *service.WeatherService,
	engine *engine.Engine,
	auth *auth.Service,
	users store.UserStore,
	places client.PlacesClient,
	weatherClient client.WeatherClient,
	logger *zap.Logger,
	locationMinLength, locationMaxLength int,
	cachePing func() error,
) *Handler {
	return &Handler{
		weather:   weather,
		engine:    engine,
		auth:      auth,
		users:     users,
		places:    places,
		client:    weatherClient,
		logger:    logger,
		locMin:    locationMinLength,
		locMax:    locationMaxLength,
		cachePing: cachePing,
	}
}

// location validates a raw town name and writes a 400 on failure.
// The returned bool reports whether the request may proceed.
func (h *Handler) location(w http.ResponseWriter, r *http.Request, raw string) (string, bool) {
	loc, err := validation.ValidateLocation(raw, h.locMin, h.locMax)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return "", false
	}
	return loc, true
}

// PostVote handles POST /api/vote.
func (h *Handler) PostVote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID    string `json:"userId"`
		Location  string `json:"location"`
		Condition string `json:"condition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	location, ok := h.location(w, r, body.Location)
	if !ok {
		return
	}

	result, err := h.engine.SubmitVote(r.Context(), body.UserID, location, body.Condition)
	switch {
	case errors.Is(err, engine.ErrMissingVoter):
		writeError(w, r, http.StatusBadRequest, "MISSING_USER", "userId is required")
		return
	case errors.Is(err, validation.ErrUnknownCondition):
		writeError(w, r, http.StatusBadRequest, "UNKNOWN_CONDITION", "condition is not a known weather condition")
		return
	case errors.Is(err, engine.ErrRateLimited):
		writeError(w, r, http.StatusTooManyRequests, "VOTE_LIMIT_EXCEEDED", "Vote limit exceeded. Please try again later.")
		return
	case err != nil:
		writeInternalError(w, r, err)
		return
	}

	if result.Resolved {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"message":   "Condition aggregated",
			"condition": result.Condition,
			"weather":   result.Reading,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Vote recorded",
		"voteCount": result.VoteCount,
	})
}

// GetWeather handles GET /api/weather/{location}.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	location, ok := h.location(w, r, mux.Vars(r)["location"])
	if !ok {
		return
	}

	reading, err := h.weather.Resolve(r.Context(), location)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// PostUpvote handles POST /api/weather/upvote/{location}.
func (h *Handler) PostUpvote(w http.ResponseWriter, r *http.Request) {
	location, ok := h.location(w, r, mux.Vars(r)["location"])
	if !ok {
		return
	}

	reading, err := h.weather.UpvoteCondition(r.Context(), location)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "Weather data not found")
		return
	case err != nil:
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// PostSelect handles POST /api/weather/select/{location}.
func (h *Handler) PostSelect(w http.ResponseWriter, r *http.Request) {
	location, ok := h.location(w, r, mux.Vars(r)["location"])
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	if err := validation.ValidateCondition(body.Status); err != nil {
		writeError(w, r, http.StatusBadRequest, "UNKNOWN_CONDITION", "status is not a known weather condition")
		return
	}

	reading, err := h.weather.SelectCondition(r.Context(), location, body.Status)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "Weather data not found")
		return
	case err != nil:
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// GetUser handles GET /api/user/{userId}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	user, err := h.users.Get(r.Context(), userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	case err != nil:
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userScore": user.Reputation,
	})
}

// PostGuestLogin handles POST /auth/guest-login.
func (h *Handler) PostGuestLogin(w http.ResponseWriter, r *http.Request) {
	session, err := h.auth.GuestLogin(r.Context(), clientOrigin(r))
	switch {
	case errors.Is(err, auth.ErrMissingOrigin):
		writeError(w, r, http.StatusBadRequest, "MISSING_ORIGIN", "client origin could not be determined")
		return
	case err != nil:
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userToken": session.Token,
		"userId":    session.User.ID,
		"returning": session.Returning,
	})
}

// PostGoogleLogin handles POST /auth/google-login. The body carries the
// federated profile claims (subject id and email).
func (h *Handler) PostGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}

	session, err := h.auth.GoogleLogin(r.Context(), body.Sub, body.Email)
	switch {
	case errors.Is(err, auth.ErrMissingClaims):
		writeError(w, r, http.StatusBadRequest, "MISSING_CLAIMS", "sub and email are required")
		return
	case err != nil:
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userToken": session.Token,
		"userId":    session.User.ID,
		"returning": session.Returning,
	})
}

// GetNearbyPlaces handles GET /nearby-places?latitude=..&longitude=..
func (h *Handler) GetNearbyPlaces(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("latitude"), 64)
	lng, lngErr := strconv.ParseFloat(r.URL.Query().Get("longitude"), 64)
	if latErr != nil || lat < -90 || lat > 90 {
		writeError(w, r, http.StatusBadRequest, "INVALID_LATITUDE", "latitude must be a number in [-90, 90]")
		return
	}
	if lngErr != nil || lng < -180 || lng > 180 {
		writeError(w, r, http.StatusBadRequest, "INVALID_LONGITUDE", "longitude must be a number in [-180, 180]")
		return
	}

	places, err := h.places.NearbyTowns(r.Context(), lat, lng)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": places,
	})
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	checks := make(map[string]string)

	if lifecycle.IsShuttingDown() {
		status = "shutting-down"
		statusCode = http.StatusServiceUnavailable
	} else if err := h.client.ValidateAPIKey(r.Context()); err != nil {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
		checks["weatherApi"] = "unhealthy"
	} else {
		checks["weatherApi"] = "healthy"
	}
	if h.cachePing != nil {
		if h.cachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"service":   "town-weather-service",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// clientOrigin resolves the best-effort client network origin used to
// de-duplicate guest sign-ins. X-Forwarded-For wins over the socket address.
func clientOrigin(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError writes a 503 for upstream failures. The underlying error
// is logged at DEBUG with the request logger when present.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch upstream data")
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
}

func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Internal server error")
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Error("request failed", zap.Error(err))
	}
}
