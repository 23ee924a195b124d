package persist

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kjstillabower/weather-ingest/internal/blob"
	"github.com/kjstillabower/weather-ingest/internal/models"
	"github.com/kjstillabower/weather-ingest/internal/store"
)

type failingStore struct {
	store.RecordStore
	err error
}

func (f failingStore) PutCurrent(ctx context.Context, obs models.WeatherObservation) error {
	return f.err
}

func (f failingStore) PutForecast(ctx context.Context, rec models.ForecastRecord) error {
	return f.err
}

type failingBlob struct{ err error }

func (f failingBlob) Put(ctx context.Context, key string, body []byte) error { return f.err }

var partition = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func observation() models.WeatherObservation {
	return models.WeatherObservation{
		City: "London", Country: "GB", Temperature: 21.5, Pressure: 1013,
		StatusCode: 200, Timestamp: models.NewTimestamp(partition), Type: models.TypeCurrent,
	}
}

func TestWriter_WriteCurrent(t *testing.T) {
	records := store.NewMemoryStore()
	blobs := blob.NewMemoryStore()
	w := NewWriter(records, blobs, "", nil)

	res := w.WriteCurrent(context.Background(), observation(), partition)
	if res.Failed() {
		t.Fatalf("WriteCurrent() = %+v, want success", res)
	}

	stored, _ := records.Currents("London")
	if len(stored) != 1 || stored[0].Temperature != 21.5 {
		t.Errorf("stored = %+v", stored)
	}
	key := blob.Key(blob.DefaultPrefix, models.TypeCurrent, "London", partition)
	body, ok := blobs.Get(key)
	if !ok {
		t.Fatalf("blob %s not written; keys = %v", key, blobs.Keys())
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("blob body is not JSON: %v", err)
	}
	if decoded["temperature"] != 21.5 || decoded["type"] != models.TypeCurrent {
		t.Errorf("blob body = %s", body)
	}
}

// TestWriter_IndependentWrites verifies that each write is attempted when the other fails.
func TestWriter_IndependentWrites(t *testing.T) {
	storeErr := errors.New("dynamo down")
	blobErr := errors.New("s3 down")

	t.Run("store fails, blob written", func(t *testing.T) {
		blobs := blob.NewMemoryStore()
		w := NewWriter(failingStore{err: storeErr}, blobs, "", nil)
		res := w.WriteCurrent(context.Background(), observation(), partition)
		if !errors.Is(res.StoreErr, storeErr) || res.BlobErr != nil {
			t.Errorf("result = %+v", res)
		}
		if len(blobs.Keys()) != 1 {
			t.Error("blob not written after store failure")
		}
	})

	t.Run("blob fails, store written", func(t *testing.T) {
		records := store.NewMemoryStore()
		w := NewWriter(records, failingBlob{err: blobErr}, "", nil)
		rec := models.ForecastRecord{City: "London", Payload: json.RawMessage(`{}`), Timestamp: models.NewTimestamp(partition), Type: models.TypeForecast}
		res := w.WriteForecast(context.Background(), rec, partition)
		if res.StoreErr != nil || !errors.Is(res.BlobErr, blobErr) {
			t.Errorf("result = %+v", res)
		}
		if records.ForecastCount("London") != 1 {
			t.Error("forecast not stored after blob failure")
		}
	})

	t.Run("both fail", func(t *testing.T) {
		w := NewWriter(failingStore{err: storeErr}, failingBlob{err: blobErr}, "", nil)
		res := w.WriteCurrent(context.Background(), observation(), partition)
		if res.StoreErr == nil || res.BlobErr == nil || !res.Failed() {
			t.Errorf("result = %+v, want both errors", res)
		}
	})
}
