package metrics

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// LogSink writes each datum as a log line. Used when no metrics backend is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, namespace string, data []Datum) error {
	for _, d := range data {
		fields := []zap.Field{
			zap.String("namespace", namespace),
			zap.String("metric", d.Name),
			zap.Float64("value", d.Value),
			zap.String("unit", string(d.Unit)),
		}
		for _, dim := range d.Dimensions {
			fields = append(fields, zap.String(dim.Name, dim.Value))
		}
		s.logger.Info("metric", fields...)
	}
	return nil
}

// MultiSink publishes to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, namespace string, data []Datum) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, namespace, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
