// Package app builds the ingest components from configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-ingest/internal/blob"
	"github.com/kjstillabower/weather-ingest/internal/cache"
	"github.com/kjstillabower/weather-ingest/internal/client"
	"github.com/kjstillabower/weather-ingest/internal/config"
	"github.com/kjstillabower/weather-ingest/internal/event"
	"github.com/kjstillabower/weather-ingest/internal/metrics"
	"github.com/kjstillabower/weather-ingest/internal/observability"
	"github.com/kjstillabower/weather-ingest/internal/persist"
	"github.com/kjstillabower/weather-ingest/internal/secrets"
	"github.com/kjstillabower/weather-ingest/internal/service"
	"github.com/kjstillabower/weather-ingest/internal/store"
	"github.com/kjstillabower/weather-ingest/internal/traffic"
)

// App holds the wired components shared by the Lambda and HTTP entry points.
type App struct {
	Config   *config.Config
	Service  *service.IngestService
	Client   *client.OpenWeatherClient
	Outcomes *traffic.Tracker
	// Dependencies are the network backends reported by health checks, keyed by check name.
	Dependencies map[string]store.Pinger

	mu    sync.Mutex
	hooks []func(ctx context.Context) error
}

// Build wires every component named by cfg. Call Shutdown to release backend connections.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Config:       cfg,
		Dependencies: make(map[string]store.Pinger),
	}

	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
	}

	apiKey, err := newSecretSource(cfg, awsCfg).APIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("weather API key: %w", err)
	}
	weatherClient, err := client.NewOpenWeatherClient(apiKey, cfg.WeatherCurrentURL, cfg.WeatherForecastURL, cfg.WeatherAPITimeout)
	if err != nil {
		return nil, err
	}
	a.Client = weatherClient

	records, err := a.newRecordStore(cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	blobs, err := newBlobStore(cfg, awsCfg)
	if err != nil {
		_ = a.Shutdown(ctx)
		return nil, err
	}
	sink, sinkName := newSink(cfg, awsCfg, logger)

	writer := persist.NewWriter(records, blobs, cfg.BlobPrefix, logger)
	forecasts := cache.NewForecastCache(records, weatherClient, writer, cfg.ForecastStaleness, logger)
	emitter := metrics.NewEmitter(sink, sinkName, metrics.Config{
		CoreNamespace:    cfg.CoreNamespace,
		WeatherNamespace: cfg.WeatherNamespace,
		FunctionName:     cfg.FunctionName,
	}, logger)
	a.Outcomes = traffic.NewTracker(cfg.HealthWindow)
	a.Service = service.NewIngestService(
		event.NewNormalizer(logger, cfg.MaxCityLength),
		weatherClient,
		forecasts,
		writer,
		emitter,
		a.Outcomes,
		logger,
	)

	logger.Info("components initialized",
		zap.String("store", cfg.StoreBackend),
		zap.String("blob", cfg.BlobBackend),
		zap.String("metrics", sinkName),
		zap.String("secrets", cfg.SecretsSource))
	return a, nil
}

// AddShutdownHook registers fn to run on Shutdown. Hooks run in reverse order.
func (a *App) AddShutdownHook(fn func(ctx context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, fn)
}

// Shutdown runs the registered hooks once, last registered first, and joins their errors.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	hooks := a.hooks
	a.hooks = nil
	a.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) newRecordStore(cfg *config.Config, awsCfg aws.Config) (store.RecordStore, error) {
	switch cfg.StoreBackend {
	case config.BackendDynamoDB:
		s, err := store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.CurrentTable, cfg.ForecastTable)
		if err != nil {
			return nil, err
		}
		a.Dependencies["store"] = s
		return s, nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		s := store.NewRedisStore(rdb, cfg.RedisPrefix)
		a.Dependencies["store"] = s
		a.AddShutdownHook(func(context.Context) error { return s.Close() })
		return s, nil
	case config.BackendMemcached:
		s := store.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		a.Dependencies["store"] = s
		a.AddShutdownHook(func(context.Context) error { return s.Close() })
		return s, nil
	case config.BackendInMemory:
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func newBlobStore(cfg *config.Config, awsCfg aws.Config) (blob.Store, error) {
	switch cfg.BlobBackend {
	case config.BackendS3:
		return blob.NewS3Store(s3.NewFromConfig(awsCfg), cfg.BlobBucket)
	case config.BackendFS:
		return blob.NewFSStore(cfg.BlobDir)
	case config.BackendInMemory:
		return blob.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
}

// newSink fans out to every configured metrics backend. The returned name labels publish failures.
func newSink(cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) (metrics.Sink, string) {
	var sinks metrics.MultiSink
	for _, b := range cfg.MetricsBackends {
		switch b {
		case config.BackendCloudWatch:
			sinks = append(sinks, metrics.NewCloudWatchSink(cloudwatch.NewFromConfig(awsCfg)))
		case config.BackendPrometheus:
			sinks = append(sinks, metrics.NewPrometheusSink(observability.Registerer()))
		case config.BackendLog:
			sinks = append(sinks, metrics.NewLogSink(logger))
		}
	}
	switch len(sinks) {
	case 0:
		return metrics.NewLogSink(logger), config.BackendLog
	case 1:
		return sinks[0], cfg.MetricsBackends[0]
	}
	return sinks, strings.Join(cfg.MetricsBackends, "+")
}

// newSecretSource reads the configured source first and falls back to the API key env var.
func newSecretSource(cfg *config.Config, awsCfg aws.Config) secrets.Source {
	env := secrets.EnvSource{Var: cfg.APIKeyEnv}
	switch cfg.SecretsSource {
	case config.SourceSSM:
		return secrets.Chain{secrets.NewSSMSource(ssm.NewFromConfig(awsCfg), cfg.SecretsParameter), env}
	case config.SourceFile:
		return secrets.Chain{secrets.FileSource{Path: cfg.SecretsFile}, env}
	}
	return env
}
