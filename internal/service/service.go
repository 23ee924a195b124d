// Package service runs one ingest invocation: normalize the event, then for each city fetch the
// current weather, resolve the forecast through the cache, persist, and emit metrics.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-ingest/internal/cache"
	"github.com/kjstillabower/weather-ingest/internal/client"
	"github.com/kjstillabower/weather-ingest/internal/event"
	"github.com/kjstillabower/weather-ingest/internal/lifecycle"
	"github.com/kjstillabower/weather-ingest/internal/metrics"
	"github.com/kjstillabower/weather-ingest/internal/models"
	"github.com/kjstillabower/weather-ingest/internal/observability"
	"github.com/kjstillabower/weather-ingest/internal/persist"
	"github.com/kjstillabower/weather-ingest/internal/traffic"
)

// noCitiesBody is the 400 response body.
const noCitiesBody = `{"error":"No cities found in the event."}`

// CurrentFetcher fetches current conditions. Implemented by client.OpenWeatherClient.
type CurrentFetcher interface {
	FetchCurrent(ctx context.Context, city string) (models.WeatherObservation, error)
}

// ForecastSource resolves a forecast, from cache or upstream. Implemented by cache.ForecastCache.
type ForecastSource interface {
	GetForecast(ctx context.Context, city string, at time.Time) (cache.Lookup, error)
}

// CurrentWriter persists an observation. Implemented by persist.Writer.
type CurrentWriter interface {
	WriteCurrent(ctx context.Context, obs models.WeatherObservation, at time.Time) persist.Result
}

// IngestService handles invocations. Safe for concurrent use; cities within one invocation are
// processed sequentially.
type IngestService struct {
	normalizer *event.Normalizer
	current    CurrentFetcher
	forecasts  ForecastSource
	writer     CurrentWriter
	emitter    *metrics.Emitter
	outcomes   *traffic.Tracker
	logger     *zap.Logger
	now        func() time.Time

	// warm is false until the first invocation that processes cities completes.
	warm atomic.Bool
}

// NewIngestService wires an IngestService. outcomes may be nil.
func NewIngestService(
	normalizer *event.Normalizer,
	current CurrentFetcher,
	forecasts ForecastSource,
	writer CurrentWriter,
	emitter *metrics.Emitter,
	outcomes *traffic.Tracker,
	logger *zap.Logger,
) *IngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{
		normalizer: normalizer,
		current:    current,
		forecasts:  forecasts,
		writer:     writer,
		emitter:    emitter,
		outcomes:   outcomes,
		logger:     logger,
		now:        time.Now,
	}
}

// Run ingests cities as a scheduled trigger would.
func (s *IngestService) Run(ctx context.Context, cities []string) models.Response {
	raw, err := event.Scheduled(cities)
	if err != nil {
		s.logger.Error("Failed to build scheduled event", zap.Error(err))
		raw = []byte("{}")
	}
	return s.Handle(ctx, raw)
}

// Handle processes one raw invocation event. It always returns a response: 400 when no cities
// can be extracted, otherwise 200 when every step succeeded and 207 when anything failed.
func (s *IngestService) Handle(ctx context.Context, raw []byte) models.Response {
	done := lifecycle.BeginRun()
	defer done()

	start := s.now()
	logger := observability.LoggerFromContext(ctx, s.logger)
	logger.Debug("Received event", zap.ByteString("event", raw))

	cities, err := s.normalizer.Cities(ctx, raw)
	if err != nil {
		logger.Error("No cities found in the event.")
		batch := s.emitter.NewBatch()
		batch.AddError(metrics.NoCitiesError)
		s.emitter.Flush(ctx, batch)
		s.record(http.StatusBadRequest, 0, start)
		return models.Response{StatusCode: http.StatusBadRequest, Body: noCitiesBody}
	}

	resp := s.run(ctx, logger, cities, start, len(raw))
	s.record(resp.StatusCode, len(cities), start)
	return resp
}

func (s *IngestService) run(ctx context.Context, logger *zap.Logger, cities []string, start time.Time, payloadSize int) models.Response {
	batch := s.emitter.NewBatch()
	entries := make([]any, 0, 2*len(cities))
	failures := 0

	for _, city := range cities {
		clog := logger.With(zap.String("city", city))
		cctx := observability.ContextWithLogger(ctx, clog)

		clog.Info("Fetching current weather")
		obs, currentErr := s.current.FetchCurrent(cctx, city)

		clog.Info("Resolving forecast")
		lookup, forecastErr := s.forecasts.GetForecast(cctx, city, start)
		if forecastErr != nil {
			failures++
			batch.AddError(metrics.ForecastFetchError)
			entries = append(entries, fetchErrorEntry(forecastErr, city, models.TypeForecast))
		} else {
			if lookup.Write.StoreErr != nil {
				failures++
				batch.AddError(metrics.ForecastDynamoError)
			}
			if lookup.Write.BlobErr != nil {
				failures++
				batch.AddError(metrics.ForecastS3Error)
			}
			entries = append(entries, lookup.Record)
		}

		if currentErr != nil {
			clog.Error("Failed to fetch current weather",
				zap.Error(currentErr),
				zap.String("category", string(client.CategorizeError(currentErr))))
			failures++
			batch.AddError(metrics.ErrorCount)
			entries = append(entries, fetchErrorEntry(currentErr, city, models.TypeCurrent))
			continue
		}
		entries = append(entries, obs)
		res := s.writer.WriteCurrent(cctx, obs, start)
		if res.StoreErr != nil {
			failures++
			batch.AddError(metrics.CurrentDynamoError)
		}
		if res.BlobErr != nil {
			failures++
			batch.AddError(metrics.CurrentWeatherS3Error)
		}
		batch.AddWeather(obs)
	}

	coldStart := !s.warm.Swap(true)
	batch.SetCore(s.now().Sub(start), coldStart, payloadSize)
	s.emitter.Flush(ctx, batch)

	status := http.StatusOK
	if failures > 0 {
		status = http.StatusMultiStatus
	}
	body, err := json.Marshal(entries)
	if err != nil {
		logger.Error("Failed to encode results", zap.Error(err))
		body = []byte("[]")
		status = http.StatusMultiStatus
	}
	logger.Info("Ingest complete",
		zap.Int("cities", len(cities)),
		zap.Int("failures", failures),
		zap.Int("status", status),
		zap.Bool("cold_start", coldStart),
	)
	return models.Response{StatusCode: status, Body: string(body), Entries: entries}
}

func (s *IngestService) record(status, cities int, start time.Time) {
	observability.IngestInvocationsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	observability.IngestCitiesTotal.Add(float64(cities))
	observability.IngestDuration.Observe(s.now().Sub(start).Seconds())
	if s.outcomes != nil {
		s.outcomes.Record(status)
	}
}

// fetchErrorEntry returns the error-marked result entry for a failed fetch.
func fetchErrorEntry(err error, city, recordType string) *models.FetchError {
	var fe *models.FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &models.FetchError{
		City:       city,
		Type:       recordType,
		StatusCode: http.StatusInternalServerError,
		Failed:     true,
		Cause:      err,
	}
}
