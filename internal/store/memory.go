package store

import (
	"context"
	"sync"

	"github.com/kjstillabower/weather-ingest/internal/models"
)

// MemoryStore is a concurrency-safe in-process RecordStore. Items are kept in their stored
// (decimal) form so reads go through the same conversion as the network backends.
type MemoryStore struct {
	mu        sync.RWMutex
	currents  map[string][]currentItem
	forecasts map[string][]forecastItem
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		currents:  make(map[string][]currentItem),
		forecasts: make(map[string][]forecastItem),
	}
}

// PutCurrent appends an observation.
func (s *MemoryStore) PutCurrent(ctx context.Context, obs models.WeatherObservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currents[obs.City] = append(s.currents[obs.City], newCurrentItem(obs))
	return nil
}

// PutForecast appends a forecast.
func (s *MemoryStore) PutForecast(ctx context.Context, rec models.ForecastRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forecasts[rec.City] = append(s.forecasts[rec.City], newForecastItem(rec))
	return nil
}

// LatestForecast returns the forecast with the greatest timestamp for city. On ties the one
// written last wins.
func (s *MemoryStore) LatestForecast(ctx context.Context, city string) (models.ForecastRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.ForecastRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.forecasts[city]
	if len(items) == 0 {
		return models.ForecastRecord{}, ErrNotFound
	}
	latest := items[0]
	for _, it := range items[1:] {
		if it.Timestamp >= latest.Timestamp {
			latest = it
		}
	}
	return latest.record()
}

// Currents returns the stored observations for city in write order.
func (s *MemoryStore) Currents(city string) ([]models.WeatherObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.WeatherObservation, 0, len(s.currents[city]))
	for _, it := range s.currents[city] {
		obs, err := it.observation()
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, nil
}

// ForecastCount returns how many forecasts are stored for city.
func (s *MemoryStore) ForecastCount(city string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.forecasts[city])
}
