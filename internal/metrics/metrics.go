// Package metrics assembles the per-invocation metric batches and publishes them to a sink.
//
// Two batches are built per invocation. The core batch (duration, cold start, payload size) is
// always published when the run got past input normalization. The weather batch carries the
// per-city weather gauges plus one counter per failure. Publishing is fire-and-forget: a failed
// publish is logged and counted but never changes the invocation result.
package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-ingest/internal/models"
	"github.com/kjstillabower/weather-ingest/internal/observability"
)

// Default namespaces.
const (
	DefaultCoreNamespace    = "OpenWeather/Core"
	DefaultWeatherNamespace = "OpenWeather/WeatherData"
)

// Core metric names.
const (
	ExecutionDuration = "ExecutionDuration"
	ColdStart         = "ColdStart"
	PayloadSize       = "PayloadSize"
)

// Weather gauge names.
const (
	Temperature   = "Temperature"
	FeelsLike     = "FeelsLike"
	Humidity      = "Humidity"
	Pressure      = "Pressure"
	WindSpeed     = "WindSpeed"
	CloudCoverage = "CloudCoverage"
)

// Error counter names, one per failure class.
const (
	NoCitiesError         = "NoCitiesError"
	ForecastFetchError    = "ForecastFetchError"
	ForecastDynamoError   = "ForecastDynamoError"
	ForecastS3Error       = "ForecastS3Error"
	CurrentDynamoError    = "CurrentDynamoError"
	CurrentWeatherS3Error = "CurrentWeatherS3Error"
	ErrorCount            = "ErrorCount"
)

// Unit follows the CloudWatch standard unit names.
type Unit string

const (
	UnitNone         Unit = "None"
	UnitCount        Unit = "Count"
	UnitMilliseconds Unit = "Milliseconds"
	UnitBytes        Unit = "Bytes"
)

// Kind tells pull-based sinks whether to set or add the value.
type Kind int

const (
	KindGauge Kind = iota
	KindCounter
)

type Dimension struct {
	Name  string
	Value string
}

// Datum is one metric value.
type Datum struct {
	Name       string
	Value      float64
	Unit       Unit
	Kind       Kind
	Dimensions []Dimension
	Timestamp  time.Time
}

// Sink publishes a batch of data under a namespace.
type Sink interface {
	Publish(ctx context.Context, namespace string, data []Datum) error
}

// Config names the namespaces and the function dimension.
type Config struct {
	CoreNamespace    string
	WeatherNamespace string
	FunctionName     string
}

// Emitter creates batches and publishes them.
type Emitter struct {
	sink     Sink
	sinkName string
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewEmitter returns an Emitter publishing to sink. sinkName labels publish failures.
func NewEmitter(sink Sink, sinkName string, cfg Config, logger *zap.Logger) *Emitter {
	if cfg.CoreNamespace == "" {
		cfg.CoreNamespace = DefaultCoreNamespace
	}
	if cfg.WeatherNamespace == "" {
		cfg.WeatherNamespace = DefaultWeatherNamespace
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{sink: sink, sinkName: sinkName, cfg: cfg, logger: logger, now: time.Now}
}

// Batch accumulates the two metric batches of one invocation. Not safe for concurrent use.
type Batch struct {
	functionName string
	at           time.Time
	core         []Datum
	weather      []Datum
}

// NewBatch starts an empty batch stamped with the current time.
func (e *Emitter) NewBatch() *Batch {
	return &Batch{functionName: e.cfg.FunctionName, at: e.now().UTC()}
}

// SetCore records the invocation-level metrics, replacing any earlier call.
func (b *Batch) SetCore(duration time.Duration, coldStart bool, payloadSize int) {
	var dims []Dimension
	if b.functionName != "" {
		dims = []Dimension{{Name: "FunctionName", Value: b.functionName}}
	}
	cold := 0.0
	if coldStart {
		cold = 1
	}
	b.core = []Datum{
		{Name: ExecutionDuration, Value: float64(duration) / float64(time.Millisecond), Unit: UnitMilliseconds, Kind: KindGauge, Dimensions: dims, Timestamp: b.at},
		{Name: ColdStart, Value: cold, Unit: UnitCount, Kind: KindCounter, Timestamp: b.at},
		{Name: PayloadSize, Value: float64(payloadSize), Unit: UnitBytes, Kind: KindGauge, Timestamp: b.at},
	}
}

// AddWeather appends the weather gauges for one observation. Pressure is reported in hPa/1000.
func (b *Batch) AddWeather(obs models.WeatherObservation) {
	dims := []Dimension{{Name: "City", Value: obs.City}, {Name: "Country", Value: obs.Country}}
	gauge := func(name string, v float64) Datum {
		return Datum{Name: name, Value: v, Unit: UnitNone, Kind: KindGauge, Dimensions: dims, Timestamp: b.at}
	}
	b.weather = append(b.weather,
		gauge(Temperature, obs.Temperature),
		gauge(FeelsLike, obs.FeelsLike),
		gauge(Humidity, obs.Humidity),
		gauge(Pressure, obs.Pressure/1000.0),
		gauge(WindSpeed, obs.WindSpeed),
		gauge(CloudCoverage, obs.CloudCoverage),
	)
}

// AddError appends a count of 1 for the named failure.
func (b *Batch) AddError(name string) {
	b.weather = append(b.weather, Datum{Name: name, Value: 1, Unit: UnitCount, Kind: KindCounter, Timestamp: b.at})
}

// CoreData returns the core batch.
func (b *Batch) CoreData() []Datum { return b.core }

// WeatherData returns the weather batch.
func (b *Batch) WeatherData() []Datum { return b.weather }

// Flush publishes the non-empty batches. Failures are logged and counted, never returned.
func (e *Emitter) Flush(ctx context.Context, b *Batch) {
	logger := observability.LoggerFromContext(ctx, e.logger)
	if len(b.core) > 0 {
		e.publish(ctx, logger, e.cfg.CoreNamespace, b.core)
	}
	if len(b.weather) > 0 {
		e.publish(ctx, logger, e.cfg.WeatherNamespace, b.weather)
	}
}

func (e *Emitter) publish(ctx context.Context, logger *zap.Logger, namespace string, data []Datum) {
	logger.Info("Publishing metrics", zap.String("namespace", namespace), zap.Int("count", len(data)))
	if err := e.sink.Publish(ctx, namespace, data); err != nil {
		observability.MetricPublishErrorsTotal.WithLabelValues(e.sinkName).Inc()
		logger.Error("Metric publish failed",
			zap.String("namespace", namespace),
			zap.String("sink", e.sinkName),
			zap.Error(err),
		)
	}
}
