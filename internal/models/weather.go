package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Record types written to the stores and reported in invocation results.
const (
	TypeCurrent  = "current"
	TypeForecast = "forecast"
)

// TimestampLayout is fixed-width so that timestamps sort lexicographically in the record store.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// legacyLayouts are accepted when reading records written by earlier deployments.
var legacyLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// Timestamp is a UTC instant serialized as ISO-8601.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to microseconds and converts it to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Microsecond)}
}

// String returns the fixed-width ISO-8601 form.
func (t Timestamp) String() string {
	return t.Time.UTC().Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTimestamp parses an ISO-8601 timestamp. Values without a zone are taken as UTC.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(TimestampLayout, s); err == nil {
		return NewTimestamp(ts), nil
	}
	for _, layout := range legacyLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return NewTimestamp(ts), nil
		}
	}
	return Timestamp{}, fmt.Errorf("timestamp: unrecognized format %q", s)
}

// WeatherObservation is the current weather for one city at one invocation. Never updated after creation.
type WeatherObservation struct {
	City          string    `json:"city"`
	Country       string    `json:"country"`
	Temperature   float64   `json:"temperature"`
	FeelsLike     float64   `json:"feels_like"`
	Humidity      float64   `json:"humidity"`
	Pressure      float64   `json:"pressure"`
	WindSpeed     float64   `json:"wind_speed"`
	CloudCoverage float64   `json:"cloud_coverage"`
	Condition     string    `json:"condition"`
	Description   string    `json:"description"`
	LatencyMS     float64   `json:"latency_ms"`
	StatusCode    int       `json:"status_code"`
	Timestamp     Timestamp `json:"timestamp"`
	Type          string    `json:"type"`
}

// ForecastRecord holds the upstream forecast payload. A freshly fetched record keeps the upstream
// bytes verbatim. A record served from DynamoDB is rebuilt from nested attributes, so it is
// semantically equal JSON with object keys in sorted order. The store keeps every record written
// per city; the newest one is the cache entry.
type ForecastRecord struct {
	City       string          `json:"city"`
	Payload    json.RawMessage `json:"forecast_payload"`
	LatencyMS  float64         `json:"latency_ms"`
	StatusCode int             `json:"status_code"`
	Timestamp  Timestamp       `json:"timestamp"`
	Type       string          `json:"type"`
}

// FetchError is the per-city error result of an upstream call. LatencyMS is nil when the
// request never produced a response.
type FetchError struct {
	City       string   `json:"city"`
	Type       string   `json:"type"`
	StatusCode int      `json:"status_code"`
	LatencyMS  *float64 `json:"latency_ms"`
	Failed     bool     `json:"error"`
	Cause      error    `json:"-"`
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s for %s: status %d: %v", e.Type, e.City, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("fetch %s for %s: status %d", e.Type, e.City, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Response is returned to the invoker. Body is a JSON document; Entries is the decoded form
// kept for in-process callers.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
	Entries    []any  `json:"-"`
}
