package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-ingest/internal/models"
	"github.com/kjstillabower/weather-ingest/internal/observability"
)

// recordingSink captures published batches by namespace.
type recordingSink struct {
	published map[string][]Datum
	calls     []string
	err       error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{published: make(map[string][]Datum)}
}

func (s *recordingSink) Publish(ctx context.Context, namespace string, data []Datum) error {
	s.calls = append(s.calls, namespace)
	if s.err != nil {
		return s.err
	}
	s.published[namespace] = append(s.published[namespace], data...)
	return nil
}

func find(data []Datum, name string) (Datum, bool) {
	for _, d := range data {
		if d.Name == name {
			return d, true
		}
	}
	return Datum{}, false
}

func TestBatch_SetCore(t *testing.T) {
	e := NewEmitter(newRecordingSink(), "test", Config{FunctionName: "weather-ingest"}, nil)
	b := e.NewBatch()
	b.SetCore(1500*time.Millisecond, true, 42)

	core := b.CoreData()
	if len(core) != 3 {
		t.Fatalf("CoreData() len = %d, want 3", len(core))
	}
	dur, _ := find(core, ExecutionDuration)
	if dur.Value != 1500 || dur.Unit != UnitMilliseconds {
		t.Errorf("ExecutionDuration = %+v", dur)
	}
	if len(dur.Dimensions) != 1 || dur.Dimensions[0].Value != "weather-ingest" {
		t.Errorf("ExecutionDuration dimensions = %+v", dur.Dimensions)
	}
	cold, _ := find(core, ColdStart)
	if cold.Value != 1 {
		t.Errorf("ColdStart = %v, want 1", cold.Value)
	}
	size, _ := find(core, PayloadSize)
	if size.Value != 42 || size.Unit != UnitBytes {
		t.Errorf("PayloadSize = %+v", size)
	}

	b.SetCore(time.Millisecond, false, 1)
	cold, _ = find(b.CoreData(), ColdStart)
	if cold.Value != 0 {
		t.Errorf("ColdStart after warm call = %v, want 0", cold.Value)
	}
}

// TestBatch_AddWeather verifies the six gauges and the pressure scaling.
func TestBatch_AddWeather(t *testing.T) {
	e := NewEmitter(newRecordingSink(), "test", Config{}, nil)
	b := e.NewBatch()
	b.AddWeather(models.WeatherObservation{
		City: "London", Country: "GB", Temperature: 21.5, FeelsLike: 20, Humidity: 60,
		Pressure: 1013, WindSpeed: 3.5, CloudCoverage: 75,
	})

	data := b.WeatherData()
	if len(data) != 6 {
		t.Fatalf("WeatherData() len = %d, want 6", len(data))
	}
	p, _ := find(data, Pressure)
	if p.Value != 1.013 {
		t.Errorf("Pressure = %v, want 1.013", p.Value)
	}
	for _, d := range data {
		if len(d.Dimensions) != 2 || d.Dimensions[0].Value != "London" || d.Dimensions[1].Value != "GB" {
			t.Errorf("%s dimensions = %+v", d.Name, d.Dimensions)
		}
	}
}

func TestEmitter_Flush(t *testing.T) {
	sink := newRecordingSink()
	e := NewEmitter(sink, "test", Config{}, nil)
	b := e.NewBatch()
	b.SetCore(time.Second, false, 10)
	b.AddError(ErrorCount)

	e.Flush(context.Background(), b)

	if len(sink.calls) != 2 || sink.calls[0] != DefaultCoreNamespace || sink.calls[1] != DefaultWeatherNamespace {
		t.Fatalf("publish calls = %v", sink.calls)
	}
	errCount, ok := find(sink.published[DefaultWeatherNamespace], ErrorCount)
	if !ok || errCount.Value != 1 || errCount.Kind != KindCounter {
		t.Errorf("ErrorCount = %+v, %v", errCount, ok)
	}
}

// TestEmitter_Flush_OnlyWeather verifies that an empty core batch is not published.
func TestEmitter_Flush_OnlyWeather(t *testing.T) {
	sink := newRecordingSink()
	e := NewEmitter(sink, "test", Config{}, nil)
	b := e.NewBatch()
	b.AddError(NoCitiesError)

	e.Flush(context.Background(), b)

	if len(sink.calls) != 1 || sink.calls[0] != DefaultWeatherNamespace {
		t.Errorf("publish calls = %v, want weather namespace only", sink.calls)
	}
}

// TestEmitter_Flush_PublishFailure verifies that failures are logged and counted but not returned.
func TestEmitter_Flush_PublishFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sink := newRecordingSink()
	sink.err = errors.New("throttled")
	e := NewEmitter(sink, "flush-failure-test", Config{}, zap.New(core))
	b := e.NewBatch()
	b.SetCore(time.Second, false, 10)

	before := testutil.ToFloat64(observability.MetricPublishErrorsTotal.WithLabelValues("flush-failure-test"))
	e.Flush(context.Background(), b)
	after := testutil.ToFloat64(observability.MetricPublishErrorsTotal.WithLabelValues("flush-failure-test"))

	if after-before != 1 {
		t.Errorf("MetricPublishErrorsTotal delta = %v, want 1", after-before)
	}
	if logs.FilterMessage("Metric publish failed").Len() != 1 {
		t.Errorf("expected one publish failure log, got %d", logs.Len())
	}
}
