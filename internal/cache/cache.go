// Package cache implements the read-through forecast cache.
//
// The record store is the cache: the newest stored forecast for a city is served while it is
// younger than the staleness window. Older records are kept as history and never deleted; a
// stale or missing entry triggers one upstream fetch whose result is persisted and becomes the
// next cache entry.
package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-ingest/internal/client"
	"github.com/kjstillabower/weather-ingest/internal/models"
	"github.com/kjstillabower/weather-ingest/internal/observability"
	"github.com/kjstillabower/weather-ingest/internal/persist"
	"github.com/kjstillabower/weather-ingest/internal/store"
)

// DefaultStaleness is how long a stored forecast is served before it is refetched.
const DefaultStaleness = 3 * time.Hour

// Source says where a looked-up forecast came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceUpstream Source = "upstream"
)

// Fetcher fetches a fresh forecast. Implemented by client.OpenWeatherClient.
type Fetcher interface {
	FetchForecast(ctx context.Context, city string) (models.ForecastRecord, error)
}

// Writer persists a fetched forecast. Implemented by persist.Writer.
type Writer interface {
	WriteForecast(ctx context.Context, rec models.ForecastRecord, at time.Time) persist.Result
}

// Lookup is the result of GetForecast. Write is zero for cache hits.
type Lookup struct {
	Record models.ForecastRecord
	Source Source
	Write  persist.Result
}

// FromCache reports whether the record was served from the store.
func (l Lookup) FromCache() bool {
	return l.Source == SourceCache
}

type ForecastCache struct {
	records   store.RecordStore
	fetcher   Fetcher
	writer    Writer
	staleness time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewForecastCache returns a ForecastCache. staleness <= 0 uses DefaultStaleness.
func NewForecastCache(records store.RecordStore, fetcher Fetcher, writer Writer, staleness time.Duration, logger *zap.Logger) *ForecastCache {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ForecastCache{
		records:   records,
		fetcher:   fetcher,
		writer:    writer,
		staleness: staleness,
		logger:    logger,
		now:       time.Now,
	}
}

// GetForecast returns a fresh-enough forecast for city. Store lookup errors are treated as a
// miss. A fetched forecast is persisted under the blob partition for at before returning; write
// failures are reported in Lookup.Write, not as an error. The returned error is the fetch error,
// typically a *models.FetchError.
func (c *ForecastCache) GetForecast(ctx context.Context, city string, at time.Time) (Lookup, error) {
	logger := observability.LoggerFromContext(ctx, c.logger).With(zap.String("city", city))

	stored, err := c.records.LatestForecast(ctx, city)
	switch {
	case err == nil:
		age := c.now().Sub(stored.Timestamp.Time)
		if age < c.staleness {
			observability.ForecastCacheLookupsTotal.WithLabelValues("hit").Inc()
			logger.Info("Forecast served from cache", zap.Duration("age", age))
			return Lookup{Record: stored, Source: SourceCache}, nil
		}
		observability.ForecastCacheLookupsTotal.WithLabelValues("stale").Inc()
		logger.Info("Cached forecast is stale", zap.Duration("age", age), zap.Duration("staleness", c.staleness))
	case errors.Is(err, store.ErrNotFound):
		observability.ForecastCacheLookupsTotal.WithLabelValues("miss").Inc()
		logger.Info("No cached forecast")
	default:
		observability.ForecastCacheLookupsTotal.WithLabelValues("error").Inc()
		logger.Warn("Forecast cache lookup failed, treating as miss", zap.Error(err))
	}

	rec, err := c.fetcher.FetchForecast(ctx, city)
	if err != nil {
		logger.Error("Failed to fetch forecast", zap.Error(err), zap.String("category", string(client.CategorizeError(err))))
		return Lookup{}, err
	}
	write := c.writer.WriteForecast(ctx, rec, at)
	return Lookup{Record: rec, Source: SourceUpstream, Write: write}, nil
}
