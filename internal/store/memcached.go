package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/weather-ingest/internal/models"
)

const (
	memcachedKeyPrefix = "weather:"
	// memcachedMaxKeyLen is the server's key length limit in bytes.
	memcachedMaxKeyLen = 250
)

// memcacheClient is the subset of *memcache.Client the store uses.
type memcacheClient interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Ping() error
	Close() error
}

// MemcachedStore keeps only the newest record per city and type. It serves the forecast cache
// where history is not needed; use DynamoDB or Redis when the append-only log matters.
type MemcachedStore struct {
	client memcacheClient
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedStore {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return newMemcachedStoreWithClient(client)
}

func newMemcachedStoreWithClient(c memcacheClient) *MemcachedStore {
	return &MemcachedStore{client: c}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// key escapes the city since memcached keys may not contain spaces or control characters.
// Escaping multiplies non-ASCII names several times over, so a key that would pass the server
// limit carries the hex SHA-256 of the city instead.
func (s *MemcachedStore) key(recordType, city string) string {
	prefix := memcachedKeyPrefix + recordType + ":latest:"
	if k := prefix + url.QueryEscape(city); len(k) <= memcachedMaxKeyLen {
		return k
	}
	sum := sha256.Sum256([]byte(city))
	return prefix + "sha256:" + hex.EncodeToString(sum[:])
}

func (s *MemcachedStore) set(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(&memcache.Item{Key: key, Value: raw})
}

func (s *MemcachedStore) PutCurrent(ctx context.Context, obs models.WeatherObservation) error {
	return s.set(ctx, s.key(models.TypeCurrent, obs.City), newCurrentItem(obs))
}

func (s *MemcachedStore) PutForecast(ctx context.Context, rec models.ForecastRecord) error {
	return s.set(ctx, s.key(models.TypeForecast, rec.City), newForecastItem(rec))
}

// LatestForecast returns ErrNotFound on a memcached miss.
func (s *MemcachedStore) LatestForecast(ctx context.Context, city string) (models.ForecastRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.ForecastRecord{}, err
	}
	item, err := s.client.Get(s.key(models.TypeForecast, city))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.ForecastRecord{}, ErrNotFound
		}
		return models.ForecastRecord{}, err
	}
	var it forecastItem
	if err := json.Unmarshal(item.Value, &it); err != nil {
		return models.ForecastRecord{}, err
	}
	return it.record()
}

// Ping checks if memcached is reachable. Used for health checks.
func (s *MemcachedStore) Ping(ctx context.Context) error {
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
