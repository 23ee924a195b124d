package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend names accepted in configuration.
const (
	BackendInMemory   = "in_memory"
	BackendDynamoDB   = "dynamodb"
	BackendRedis      = "redis"
	BackendMemcached  = "memcached"
	BackendS3         = "s3"
	BackendFS         = "fs"
	BackendCloudWatch = "cloudwatch"
	BackendPrometheus = "prometheus"
	BackendLog        = "log"
	SourceSSM         = "ssm"
	SourceEnv         = "env"
	SourceFile        = "file"
)

// Config holds job and service configuration loaded from YAML and env.
type Config struct {
	Env          string
	FunctionName string
	InLambda     bool

	ServerPort string

	WeatherCurrentURL  string
	WeatherForecastURL string
	WeatherAPITimeout  time.Duration

	RequestTimeout    time.Duration
	ForecastStaleness time.Duration
	MaxCityLength     int

	StoreBackend          string
	CurrentTable          string
	ForecastTable         string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RedisPrefix           string
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	BlobBackend string
	BlobBucket  string
	BlobDir     string
	BlobPrefix  string

	MetricsBackends  []string
	CoreNamespace    string
	WeatherNamespace string

	SecretsSource    string
	SecretsParameter string
	SecretsFile      string
	APIKeyEnv        string

	AWSRegion string

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration

	HealthWindow       time.Duration
	DegradedPartialPct int
	ValidateAPIKey     bool

	ScheduleCron   string
	ScheduleCities []string
}

type fileConfig struct {
	FunctionName string `yaml:"function_name"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		CurrentURL  string `yaml:"current_url"`
		ForecastURL string `yaml:"forecast_url"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Staleness     string `yaml:"staleness"`
		MaxCityLength int    `yaml:"max_city_length"`
	} `yaml:"cache"`

	Store struct {
		Backend       string `yaml:"backend"`
		CurrentTable  string `yaml:"current_table"`
		ForecastTable string `yaml:"forecast_table"`
		RedisAddr     string `yaml:"redis_addr"`
		RedisDB       int    `yaml:"redis_db"`
		RedisPrefix   string `yaml:"redis_prefix"`
		Memcached     struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"store"`

	Blob struct {
		Backend string `yaml:"backend"`
		Bucket  string `yaml:"bucket"`
		Dir     string `yaml:"dir"`
		Prefix  string `yaml:"prefix"`
	} `yaml:"blob"`

	Metrics struct {
		Backend          string `yaml:"backend"`
		CoreNamespace    string `yaml:"core_namespace"`
		WeatherNamespace string `yaml:"weather_namespace"`
	} `yaml:"metrics"`

	Secrets struct {
		Source        string `yaml:"source"`
		ParameterName string `yaml:"parameter_name"`
		File          string `yaml:"file"`
	} `yaml:"secrets"`

	AWS struct {
		Region string `yaml:"region"`
	} `yaml:"aws"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		Window             string `yaml:"window"`
		DegradedPartialPct int    `yaml:"degraded_partial_pct"`
		ValidateAPIKey     bool   `yaml:"validate_api_key"`
	} `yaml:"health"`

	Schedule struct {
		Cron   string   `yaml:"cron"`
		Cities []string `yaml:"cities"`
	} `yaml:"schedule"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) under the working directory.
// A .env file in the working directory is loaded into the environment first if present.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadFrom(filepath.Join(cwd, "config"))
}

// LoadFrom reads {dir}/{ENV_NAME}.yaml and applies environment overrides. The file is optional;
// a Lambda deployment is configured from the environment alone.
func LoadFrom(dir string) (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	var fc fileConfig
	configPath := filepath.Join(dir, env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{Env: env}

	cfg.FunctionName = firstNonEmpty(os.Getenv("AWS_LAMBDA_FUNCTION_NAME"), fc.FunctionName, "weather-ingest")
	cfg.InLambda = os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")

	cfg.WeatherCurrentURL = fc.WeatherAPI.CurrentURL
	cfg.WeatherForecastURL = fc.WeatherAPI.ForecastURL
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 60*time.Second)
	cfg.ForecastStaleness = parseDuration(fc.Cache.Staleness, 3*time.Hour)
	cfg.MaxCityLength = fc.Cache.MaxCityLength
	if cfg.MaxCityLength <= 0 {
		cfg.MaxCityLength = 100
	}

	cfg.CurrentTable = firstNonEmpty(os.Getenv("DDBCurrWeatherTable"), fc.Store.CurrentTable)
	cfg.ForecastTable = firstNonEmpty(os.Getenv("DDBForecastTable"), fc.Store.ForecastTable)
	cfg.RedisAddr = firstNonEmpty(os.Getenv("REDIS_ADDR"), fc.Store.RedisAddr, "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = fc.Store.RedisDB
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("REDIS_DB: %w", err)
		}
		cfg.RedisDB = n
	}
	cfg.RedisPrefix = fc.Store.RedisPrefix
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Store.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Store.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Store.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.StoreBackend = lower(firstNonEmpty(os.Getenv("STORE_BACKEND"), fc.Store.Backend))
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = BackendInMemory
		if cfg.CurrentTable != "" && cfg.ForecastTable != "" {
			cfg.StoreBackend = BackendDynamoDB
		}
	}

	cfg.BlobBucket = firstNonEmpty(os.Getenv("S3OWBucket"), fc.Blob.Bucket)
	cfg.BlobDir = firstNonEmpty(os.Getenv("BLOB_DIR"), fc.Blob.Dir, "data")
	cfg.BlobPrefix = fc.Blob.Prefix
	cfg.BlobBackend = lower(firstNonEmpty(os.Getenv("BLOB_BACKEND"), fc.Blob.Backend))
	if cfg.BlobBackend == "" {
		cfg.BlobBackend = BackendInMemory
		if cfg.BlobBucket != "" {
			cfg.BlobBackend = BackendS3
		}
	}

	metricsBackend := lower(firstNonEmpty(os.Getenv("METRICS_BACKEND"), fc.Metrics.Backend))
	if metricsBackend == "" {
		metricsBackend = BackendLog
		if cfg.InLambda {
			metricsBackend = BackendCloudWatch
		}
	}
	cfg.MetricsBackends = splitList(metricsBackend)
	cfg.CoreNamespace = fc.Metrics.CoreNamespace
	cfg.WeatherNamespace = fc.Metrics.WeatherNamespace

	cfg.SecretsSource = lower(firstNonEmpty(os.Getenv("SECRETS_SOURCE"), fc.Secrets.Source))
	if cfg.SecretsSource == "" {
		cfg.SecretsSource = SourceEnv
		if cfg.InLambda {
			cfg.SecretsSource = SourceSSM
		}
	}
	cfg.SecretsParameter = firstNonEmpty(os.Getenv("SECRETS_PARAMETER"), fc.Secrets.ParameterName)
	cfg.SecretsFile = firstNonEmpty(fc.Secrets.File, filepath.Join(dir, "secrets.yaml"))
	cfg.APIKeyEnv = "WEATHER_API_KEY"

	cfg.AWSRegion = firstNonEmpty(os.Getenv("AWS_REGION"), fc.AWS.Region)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 5
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.HealthWindow = parseDuration(fc.Health.Window, 15*time.Minute)
	cfg.DegradedPartialPct = fc.Health.DegradedPartialPct
	if cfg.DegradedPartialPct <= 0 {
		cfg.DegradedPartialPct = 50
	}
	cfg.ValidateAPIKey = fc.Health.ValidateAPIKey

	cfg.ScheduleCron = firstNonEmpty(os.Getenv("SCHEDULE_CRON"), fc.Schedule.Cron)
	cfg.ScheduleCities = fc.Schedule.Cities
	if v := os.Getenv("SCHEDULE_CITIES"); v != "" {
		cfg.ScheduleCities = splitList(v)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero and negative durations are returned as-is for validate to reject.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validate checks timeouts and backend settings. RequestTimeout is raised above the upstream
// timeout when needed.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}

	switch cfg.StoreBackend {
	case BackendInMemory, BackendRedis, BackendMemcached:
	case BackendDynamoDB:
		if cfg.CurrentTable == "" || cfg.ForecastTable == "" {
			return fmt.Errorf("store.backend dynamodb requires DDBCurrWeatherTable and DDBForecastTable")
		}
	default:
		return fmt.Errorf("store.backend must be in_memory, dynamodb, redis or memcached, got %q", cfg.StoreBackend)
	}

	switch cfg.BlobBackend {
	case BackendInMemory, BackendFS:
	case BackendS3:
		if cfg.BlobBucket == "" {
			return fmt.Errorf("blob.backend s3 requires S3OWBucket")
		}
	default:
		return fmt.Errorf("blob.backend must be in_memory, fs or s3, got %q", cfg.BlobBackend)
	}

	for _, b := range cfg.MetricsBackends {
		switch b {
		case BackendCloudWatch, BackendPrometheus, BackendLog:
		default:
			return fmt.Errorf("metrics.backend must be cloudwatch, prometheus or log, got %q", b)
		}
	}

	switch cfg.SecretsSource {
	case SourceSSM, SourceEnv, SourceFile:
	default:
		return fmt.Errorf("secrets.source must be ssm, env or file, got %q", cfg.SecretsSource)
	}
	return nil
}

// NeedsAWS reports whether any configured backend uses the AWS SDK.
func (c *Config) NeedsAWS() bool {
	if c.StoreBackend == BackendDynamoDB || c.BlobBackend == BackendS3 || c.SecretsSource == SourceSSM {
		return true
	}
	for _, b := range c.MetricsBackends {
		if b == BackendCloudWatch {
			return true
		}
	}
	return false
}
