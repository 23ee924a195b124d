// Package persist writes each record to the record store and the blob store. The two writes are
// independent: one failing never prevents the other, and neither is rolled back.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-ingest/internal/blob"
	"github.com/kjstillabower/weather-ingest/internal/models"
	"github.com/kjstillabower/weather-ingest/internal/observability"
	"github.com/kjstillabower/weather-ingest/internal/store"
)

// Result reports the outcome of both writes for one record.
type Result struct {
	StoreErr error
	BlobErr  error
}

// Failed reports whether either write failed.
func (r Result) Failed() bool {
	return r.StoreErr != nil || r.BlobErr != nil
}

// Writer persists observations and forecasts.
type Writer struct {
	records    store.RecordStore
	blobs      blob.Store
	blobPrefix string
	logger     *zap.Logger
}

// NewWriter returns a Writer. An empty blobPrefix uses blob.DefaultPrefix.
func NewWriter(records store.RecordStore, blobs blob.Store, blobPrefix string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{records: records, blobs: blobs, blobPrefix: blobPrefix, logger: logger}
}

// WriteCurrent stores obs and uploads it under the partition for at.
func (w *Writer) WriteCurrent(ctx context.Context, obs models.WeatherObservation, at time.Time) Result {
	logger := observability.LoggerFromContext(ctx, w.logger).With(zap.String("city", obs.City))
	var res Result

	if err := w.records.PutCurrent(ctx, obs); err != nil {
		res.StoreErr = err
		observability.PersistenceErrorsTotal.WithLabelValues("store", models.TypeCurrent).Inc()
		logger.Error("Failed to store current weather", zap.Error(err))
	} else {
		logger.Info("Stored current weather")
	}

	res.BlobErr = w.upload(ctx, logger, models.TypeCurrent, obs.City, obs, at)
	return res
}

// WriteForecast stores rec and uploads it under the partition for at.
func (w *Writer) WriteForecast(ctx context.Context, rec models.ForecastRecord, at time.Time) Result {
	logger := observability.LoggerFromContext(ctx, w.logger).With(zap.String("city", rec.City))
	var res Result

	if err := w.records.PutForecast(ctx, rec); err != nil {
		res.StoreErr = err
		observability.PersistenceErrorsTotal.WithLabelValues("store", models.TypeForecast).Inc()
		logger.Error("Failed to store forecast", zap.Error(err))
	} else {
		logger.Info("Stored forecast")
	}

	res.BlobErr = w.upload(ctx, logger, models.TypeForecast, rec.City, rec, at)
	return res
}

func (w *Writer) upload(ctx context.Context, logger *zap.Logger, recordType, city string, v any, at time.Time) error {
	key := blob.Key(w.blobPrefix, recordType, city, at)
	body, err := json.Marshal(v)
	if err == nil {
		err = w.blobs.Put(ctx, key, body)
	} else {
		err = fmt.Errorf("encode %s: %w", recordType, err)
	}
	if err != nil {
		observability.PersistenceErrorsTotal.WithLabelValues("blob", recordType).Inc()
		logger.Error("Failed to upload to blob store", zap.String("type", recordType), zap.String("key", key), zap.Error(err))
		return err
	}
	logger.Info("Uploaded to blob store", zap.String("type", recordType), zap.String("key", key))
	return nil
}
