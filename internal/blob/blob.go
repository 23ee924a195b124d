// Package blob writes one JSON object per record into object storage, partitioned by record
// type, city and UTC date.
package blob

import (
	"context"
	"fmt"
	"time"
)

// DefaultPrefix is the top-level folder for all weather objects.
const DefaultPrefix = "weather_data"

// ContentType is set on every object written.
const ContentType = "application/json"

// Store writes an object body under key.
type Store interface {
	Put(ctx context.Context, key string, body []byte) error
}

// Key returns the partitioned object key:
// {prefix}/{type}/city={city}/year={YYYY}/month={MM}/day={DD}/{epoch}.json
// t is converted to UTC; epoch is whole seconds.
func Key(prefix, recordType, city string, t time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	t = t.UTC()
	return fmt.Sprintf("%s/%s/city=%s/year=%d/month=%02d/day=%02d/%d.json",
		prefix, recordType, city, t.Year(), int(t.Month()), t.Day(), t.Unix())
}
