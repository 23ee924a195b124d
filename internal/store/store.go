// Package store persists weather records in a keyed record store.
//
// Records are appended, never overwritten: every observation and forecast keeps its own item
// keyed by city and timestamp. Numeric fields are held as exact decimals so values read back
// match what was written.
package store

import (
	"context"
	"errors"

	"github.com/kjstillabower/weather-ingest/internal/models"
)

// ErrNotFound is returned when a city has no stored forecast.
var ErrNotFound = errors.New("record not found")

// RecordStore appends observations and forecasts and answers most-recent queries.
type RecordStore interface {
	PutCurrent(ctx context.Context, obs models.WeatherObservation) error
	PutForecast(ctx context.Context, rec models.ForecastRecord) error
	// LatestForecast returns the newest forecast for city, or ErrNotFound. Ordering between
	// records with identical timestamps is backend-defined.
	LatestForecast(ctx context.Context, city string) (models.ForecastRecord, error)
}

// Pinger is implemented by backends with a network dependency worth reporting in health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
