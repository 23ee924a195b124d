package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const minimalEnvYAML = `
weather_api:
  timeout: 5s
`

// clearEnv blanks every variable Load reads so the host environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ENV_NAME", "AWS_LAMBDA_FUNCTION_NAME", "PORT", "DDBCurrWeatherTable", "DDBForecastTable",
		"S3OWBucket", "STORE_BACKEND", "BLOB_BACKEND", "BLOB_DIR", "METRICS_BACKEND", "SECRETS_SOURCE",
		"SECRETS_PARAMETER", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "MEMCACHED_ADDRS", "AWS_REGION",
		"SCHEDULE_CRON", "SCHEDULE_CITIES",
	} {
		t.Setenv(k, "")
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "dev.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.StoreBackend != BackendInMemory || cfg.BlobBackend != BackendInMemory {
		t.Errorf("backends = %s/%s, want in_memory", cfg.StoreBackend, cfg.BlobBackend)
	}
	if !reflect.DeepEqual(cfg.MetricsBackends, []string{BackendLog}) {
		t.Errorf("MetricsBackends = %v, want [log]", cfg.MetricsBackends)
	}
	if cfg.SecretsSource != SourceEnv {
		t.Errorf("SecretsSource = %s, want env", cfg.SecretsSource)
	}
	if cfg.ForecastStaleness != 3*time.Hour {
		t.Errorf("ForecastStaleness = %v, want 3h", cfg.ForecastStaleness)
	}
	if cfg.ServerPort != "8080" || cfg.FunctionName != "weather-ingest" {
		t.Errorf("ServerPort = %s, FunctionName = %s", cfg.ServerPort, cfg.FunctionName)
	}
	if cfg.NeedsAWS() {
		t.Error("NeedsAWS() = true for local defaults")
	}
}

// TestLoadFrom_LambdaEnvironment verifies that the deployment variables alone select the AWS
// backends.
func TestLoadFrom_LambdaEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "openweather-ingest")
	t.Setenv("DDBCurrWeatherTable", "current")
	t.Setenv("DDBForecastTable", "forecast")
	t.Setenv("S3OWBucket", "weather-raw")

	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.StoreBackend != BackendDynamoDB || cfg.CurrentTable != "current" || cfg.ForecastTable != "forecast" {
		t.Errorf("store = %s %s/%s", cfg.StoreBackend, cfg.CurrentTable, cfg.ForecastTable)
	}
	if cfg.BlobBackend != BackendS3 || cfg.BlobBucket != "weather-raw" {
		t.Errorf("blob = %s %s", cfg.BlobBackend, cfg.BlobBucket)
	}
	if !reflect.DeepEqual(cfg.MetricsBackends, []string{BackendCloudWatch}) || cfg.SecretsSource != SourceSSM {
		t.Errorf("metrics = %v, secrets = %s", cfg.MetricsBackends, cfg.SecretsSource)
	}
	if cfg.FunctionName != "openweather-ingest" || !cfg.NeedsAWS() {
		t.Errorf("FunctionName = %s, NeedsAWS = %v", cfg.FunctionName, cfg.NeedsAWS())
	}
}

func TestLoadFrom_YAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, `
weather_api:
  timeout: 3s
request:
  timeout: 30s
cache:
  staleness: 90m
store:
  backend: redis
  redis_addr: redis:6379
blob:
  backend: fs
  dir: /tmp/blobs
metrics:
  backend: prometheus, log
schedule:
  cron: "0 * * * *"
  cities: [London, Paris]
`)
	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.WeatherAPITimeout != 3*time.Second || cfg.RequestTimeout != 30*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.WeatherAPITimeout, cfg.RequestTimeout)
	}
	if cfg.ForecastStaleness != 90*time.Minute {
		t.Errorf("ForecastStaleness = %v, want 90m", cfg.ForecastStaleness)
	}
	if cfg.StoreBackend != BackendRedis || cfg.RedisAddr != "redis:6379" {
		t.Errorf("store = %s %s", cfg.StoreBackend, cfg.RedisAddr)
	}
	if cfg.BlobBackend != BackendFS || cfg.BlobDir != "/tmp/blobs" {
		t.Errorf("blob = %s %s", cfg.BlobBackend, cfg.BlobDir)
	}
	if !reflect.DeepEqual(cfg.MetricsBackends, []string{"prometheus", "log"}) {
		t.Errorf("MetricsBackends = %v", cfg.MetricsBackends)
	}
	if cfg.ScheduleCron != "0 * * * *" || !reflect.DeepEqual(cfg.ScheduleCities, []string{"London", "Paris"}) {
		t.Errorf("schedule = %q %v", cfg.ScheduleCron, cfg.ScheduleCities)
	}
}

func TestLoadFrom_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, "store:\n  backend: redis\nschedule:\n  cities: [London]\n")
	t.Setenv("STORE_BACKEND", "memcached")
	t.Setenv("MEMCACHED_ADDRS", "mc1:11211,mc2:11211")
	t.Setenv("SCHEDULE_CITIES", "Tokyo, Osaka")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.StoreBackend != BackendMemcached || cfg.MemcachedAddrs != "mc1:11211,mc2:11211" {
		t.Errorf("store = %s %s", cfg.StoreBackend, cfg.MemcachedAddrs)
	}
	if !reflect.DeepEqual(cfg.ScheduleCities, []string{"Tokyo", "Osaka"}) {
		t.Errorf("ScheduleCities = %v", cfg.ScheduleCities)
	}
}

func TestLoadFrom_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, "cache:\n  staleness: soon\nshutdown:\n  timeout: -5s\n")
	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.ForecastStaleness != 3*time.Hour || cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("staleness = %v, shutdown = %v; want defaults", cfg.ForecastStaleness, cfg.ShutdownTimeout)
	}
}

// TestLoadFrom_RequestTimeoutRaised verifies that the request timeout always exceeds the
// upstream timeout.
func TestLoadFrom_RequestTimeoutRaised(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, "weather_api:\n  timeout: 20s\nrequest:\n  timeout: 5s\n")
	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.RequestTimeout != 21*time.Second {
		t.Errorf("RequestTimeout = %v, want 21s", cfg.RequestTimeout)
	}
}

func TestLoadFrom_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
	}{
		{"zero upstream timeout", "weather_api:\n  timeout: 0s\n", nil, "weather_api.timeout"},
		{"unknown store", minimalEnvYAML + "store:\n  backend: cassandra\n", nil, "store.backend"},
		{"dynamodb without tables", minimalEnvYAML + "store:\n  backend: dynamodb\n", nil, "DDBCurrWeatherTable"},
		{"s3 without bucket", minimalEnvYAML + "blob:\n  backend: s3\n", nil, "S3OWBucket"},
		{"unknown metrics", minimalEnvYAML, map[string]string{"METRICS_BACKEND": "log,statsd"}, "metrics.backend"},
		{"unknown secrets", minimalEnvYAML + "secrets:\n  source: vault\n", nil, "secrets.source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			dir := t.TempDir()
			writeEnvFile(t, dir, tt.yaml)
			cfg, err := LoadFrom(dir)
			if err == nil {
				t.Fatalf("LoadFrom() = %+v, want error", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadFrom() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFrom_InvalidConfigYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, "not valid: yaml: [[[")
	if _, err := LoadFrom(dir); err == nil {
		t.Fatal("LoadFrom() expected error for invalid YAML, got nil")
	}
}

// TestLoad_DotEnv verifies that a .env file in the working directory feeds the overrides.
func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("STORE_BACKEND")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("STORE_BACKEND=redis\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	t.Cleanup(func() { os.Unsetenv("STORE_BACKEND") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StoreBackend != BackendRedis {
		t.Errorf("StoreBackend = %s, want redis from .env", cfg.StoreBackend)
	}
}
