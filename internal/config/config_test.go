package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeConfig lays out a temp project root with config/{env}.yaml and
// chdirs into it for the duration of the test.
func writeConfig(t *testing.T, env, yaml, secrets string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "config")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, env+".yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if secrets != "" {
		if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), []byte(secrets), 0o644); err != nil {
			t.Fatalf("write secrets: %v", err)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(root); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(cwd) })
}

func TestLoad_Defaults(t *testing.T) {
	writeConfig(t, "dev", "server:\n  port: \"9090\"\n", "")
	t.Setenv("ENV_NAME", "dev")
	t.Setenv("OPEN_WEATHER_API_KEY", "test-key")
	t.Setenv("GOOGLE_MAPS_API_KEY", "maps-key")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("MEMCACHED_ADDRS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %s, want 9090", cfg.ServerPort)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("CacheTTL = %v, want 1h default", cfg.CacheTTL)
	}
	if cfg.VoteThreshold != 3 || cfg.VoteCap != 5 || cfg.VoteWindow != time.Hour {
		t.Errorf("vote settings = %d/%d/%v, want 3/5/1h", cfg.VoteThreshold, cfg.VoteCap, cfg.VoteWindow)
	}
	if cfg.TokenTTL != time.Hour {
		t.Errorf("TokenTTL = %v, want 1h default", cfg.TokenTTL)
	}
	if cfg.FallbackLocation != "Lihue" {
		t.Errorf("FallbackLocation = %s, want Lihue", cfg.FallbackLocation)
	}
	if cfg.CacheBackend != "in_memory" {
		t.Errorf("CacheBackend = %s, want in_memory", cfg.CacheBackend)
	}
	if !cfg.BreakerEnabled {
		t.Error("BreakerEnabled = false, want true by default")
	}
}

func TestLoad_FileValues(t *testing.T) {
	writeConfig(t, "prod", `
server:
  port: "8081"
weather_api:
  timeout: 3s
  fallback_location: Hanalei
cache:
  backend: memcached
  ttl: 30m
  flush_hour: 10
  memcached:
    addrs: "cache1:11211,cache2:11211"
votes:
  threshold: 4
  cap: 10
  window: 2h
auth:
  token_ttl: 30m
reliability:
  breaker_enabled: false
  rate_limit_rps: 50
`, "weather_api_key: from-secrets\nmaps_api_key: maps-from-secrets\njwt_secret: signing-key\n")
	t.Setenv("ENV_NAME", "prod")
	t.Setenv("OPEN_WEATHER_API_KEY", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("MEMCACHED_ADDRS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "from-secrets" || cfg.JWTSecret != "signing-key" {
		t.Errorf("secrets = %s/%s, want values from secrets.yaml", cfg.WeatherAPIKey, cfg.JWTSecret)
	}
	if cfg.FallbackLocation != "Hanalei" {
		t.Errorf("FallbackLocation = %s, want Hanalei", cfg.FallbackLocation)
	}
	if cfg.CacheBackend != "memcached" || cfg.MemcachedAddrs != "cache1:11211,cache2:11211" {
		t.Errorf("cache backend = %s/%s", cfg.CacheBackend, cfg.MemcachedAddrs)
	}
	if cfg.VoteThreshold != 4 || cfg.VoteCap != 10 || cfg.VoteWindow != 2*time.Hour {
		t.Errorf("vote settings = %d/%d/%v, want 4/10/2h", cfg.VoteThreshold, cfg.VoteCap, cfg.VoteWindow)
	}
	if cfg.FlushHour != 10 {
		t.Errorf("FlushHour = %d, want 10", cfg.FlushHour)
	}
	if cfg.BreakerEnabled {
		t.Error("BreakerEnabled = true, want false from file")
	}
	if cfg.TokenTTL != 30*time.Minute {
		t.Errorf("TokenTTL = %v, want 30m", cfg.TokenTTL)
	}
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	writeConfig(t, "dev", "server:\n  port: \"8080\"\n", "weather_api_key: file-key\nmaps_api_key: file-maps-key\njwt_secret: file-secret\n")
	t.Setenv("ENV_NAME", "dev")
	t.Setenv("OPEN_WEATHER_API_KEY", "env-key")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("CACHE_BACKEND", "memcached")
	t.Setenv("MEMCACHED_ADDRS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "env-key" || cfg.JWTSecret != "env-secret" {
		t.Errorf("secrets = %s/%s, want env values", cfg.WeatherAPIKey, cfg.JWTSecret)
	}
	if cfg.CacheBackend != "memcached" {
		t.Errorf("CacheBackend = %s, want env override memcached", cfg.CacheBackend)
	}
}

func TestLoad_MissingSecrets(t *testing.T) {
	writeConfig(t, "dev", "server:\n  port: \"8080\"\n", "")
	t.Setenv("ENV_NAME", "dev")
	t.Setenv("OPEN_WEATHER_API_KEY", "")
	t.Setenv("GOOGLE_MAPS_API_KEY", "")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want missing weather API key error")
	}

	t.Setenv("OPEN_WEATHER_API_KEY", "key")
	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want missing maps API key error")
	}

	t.Setenv("GOOGLE_MAPS_API_KEY", "maps-key")
	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want missing JWT secret error")
	}
}

func TestLoad_InvalidBackend(t *testing.T) {
	writeConfig(t, "dev", "cache:\n  backend: redis\n", "")
	t.Setenv("ENV_NAME", "dev")
	t.Setenv("OPEN_WEATHER_API_KEY", "key")
	t.Setenv("GOOGLE_MAPS_API_KEY", "maps-key")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CACHE_BACKEND", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want invalid backend error")
	}
}

func TestLoad_InvalidFlushHour(t *testing.T) {
	writeConfig(t, "dev", "cache:\n  flush_hour: 24\n", "")
	t.Setenv("ENV_NAME", "dev")
	t.Setenv("OPEN_WEATHER_API_KEY", "key")
	t.Setenv("GOOGLE_MAPS_API_KEY", "maps-key")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CACHE_BACKEND", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want flush hour range error")
	}
}

func TestParseDuration(t *testing.T) {
	if got := parseDuration("250ms", time.Second); got != 250*time.Millisecond {
		t.Errorf("parseDuration(250ms) = %v", got)
	}
	if got := parseDuration("", time.Second); got != time.Second {
		t.Errorf("parseDuration(empty) = %v, want default", got)
	}
	if got := parseDuration("garbage", time.Second); got != time.Second {
		t.Errorf("parseDuration(garbage) = %v, want default", got)
	}
	if got := parseDuration("-5s", time.Second); got != time.Second {
		t.Errorf("parseDuration(-5s) = %v, want default", got)
	}
}
