package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kjstillabower/weather-ingest/internal/models"
)

const defaultRedisPrefix = "weather:"

// RedisStore keeps one sorted set per city and record type, scored by timestamp in
// microseconds. Members are the JSON-encoded stored items.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore. An empty prefix uses "weather:".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(recordType, city string) string {
	return s.prefix + recordType + ":" + city
}

func (s *RedisStore) PutCurrent(ctx context.Context, obs models.WeatherObservation) error {
	raw, err := json.Marshal(newCurrentItem(obs))
	if err != nil {
		return fmt.Errorf("redis: encode current %s: %w", obs.City, err)
	}
	member := redis.Z{Score: float64(obs.Timestamp.UnixMicro()), Member: string(raw)}
	if err := s.client.ZAdd(ctx, s.key(models.TypeCurrent, obs.City), member).Err(); err != nil {
		return fmt.Errorf("redis: put current %s: %w", obs.City, err)
	}
	return nil
}

func (s *RedisStore) PutForecast(ctx context.Context, rec models.ForecastRecord) error {
	raw, err := json.Marshal(newForecastItem(rec))
	if err != nil {
		return fmt.Errorf("redis: encode forecast %s: %w", rec.City, err)
	}
	member := redis.Z{Score: float64(rec.Timestamp.UnixMicro()), Member: string(raw)}
	if err := s.client.ZAdd(ctx, s.key(models.TypeForecast, rec.City), member).Err(); err != nil {
		return fmt.Errorf("redis: put forecast %s: %w", rec.City, err)
	}
	return nil
}

// LatestForecast reads the highest-scored member of the city's forecast set.
func (s *RedisStore) LatestForecast(ctx context.Context, city string) (models.ForecastRecord, error) {
	members, err := s.client.ZRevRange(ctx, s.key(models.TypeForecast, city), 0, 0).Result()
	if err != nil {
		return models.ForecastRecord{}, fmt.Errorf("redis: latest forecast %s: %w", city, err)
	}
	if len(members) == 0 {
		return models.ForecastRecord{}, ErrNotFound
	}
	var it forecastItem
	if err := json.Unmarshal([]byte(members[0]), &it); err != nil {
		return models.ForecastRecord{}, fmt.Errorf("redis: decode forecast %s: %w", city, err)
	}
	return it.record()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client. Call during shutdown.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
