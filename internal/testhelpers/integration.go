//go:build integration
// +build integration

// Package testhelpers wires real upstream and backend dependencies for integration tests.
package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/weather-ingest/internal/app"
	"github.com/kjstillabower/weather-ingest/internal/client"
	"github.com/kjstillabower/weather-ingest/internal/config"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	CurrentURL    string
	ForecastURL   string
	StoreBackend  string // "in_memory", "redis" or "memcached"
	RedisAddr     string
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	cfg := IntegrationTestConfig{
		APIKey:        apiKey,
		CurrentURL:    os.Getenv("WEATHER_CURRENT_URL"),
		ForecastURL:   os.Getenv("WEATHER_FORECAST_URL"),
		StoreBackend:  os.Getenv("INTEGRATION_STORE_BACKEND"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		MemcachedAddr: os.Getenv("MEMCACHED_ADDRS"),
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = config.BackendInMemory
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if cfg.MemcachedAddr == "" {
		cfg.MemcachedAddr = "localhost:11211"
	}
	return cfg
}

// SetupIntegrationApp builds the full component graph against the live API with in-memory
// blobs and log metrics. The app is shut down when the test ends.
func SetupIntegrationApp(t *testing.T, cfg IntegrationTestConfig) *app.App {
	t.Helper()
	appCfg := &config.Config{
		WeatherCurrentURL:     cfg.CurrentURL,
		WeatherForecastURL:    cfg.ForecastURL,
		WeatherAPITimeout:     5 * time.Second,
		ForecastStaleness:     3 * time.Hour,
		MaxCityLength:         100,
		StoreBackend:          cfg.StoreBackend,
		RedisAddr:             cfg.RedisAddr,
		MemcachedAddrs:        cfg.MemcachedAddr,
		MemcachedTimeout:      500 * time.Millisecond,
		MemcachedMaxIdleConns: 2,
		BlobBackend:           config.BackendInMemory,
		MetricsBackends:       []string{config.BackendLog},
		SecretsSource:         config.SourceEnv,
		APIKeyEnv:             "WEATHER_API_KEY",
		HealthWindow:          time.Hour,
	}
	a, err := app.Build(context.Background(), appCfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("app.Build() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	for name, dep := range a.Dependencies {
		if err := dep.Ping(context.Background()); err != nil {
			t.Skipf("%s backend %s not reachable: %v", name, cfg.StoreBackend, err)
		}
	}
	return a
}

// SetupIntegrationClient creates a weather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.CurrentURL, cfg.ForecastURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}
