package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink exposes published data as Prometheus series. Vectors are created on first use
// and keyed by namespace and metric name; their label set is fixed by the first datum seen.
// Counters add the datum value, gauges set it.
type PrometheusSink struct {
	reg prometheus.Registerer

	mu       sync.Mutex
	gauges   map[string]*prometheus.GaugeVec
	counters map[string]*prometheus.CounterVec
	labels   map[string][]string
}

// NewPrometheusSink registers new vectors with reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	return &PrometheusSink{
		reg:      reg,
		gauges:   make(map[string]*prometheus.GaugeVec),
		counters: make(map[string]*prometheus.CounterVec),
		labels:   make(map[string][]string),
	}
}

func (s *PrometheusSink) Publish(ctx context.Context, namespace string, data []Datum) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, d := range data {
		name := promName(namespace, d.Name)
		if err := s.observe(name, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *PrometheusSink) observe(name string, d Datum) error {
	switch d.Kind {
	case KindCounter:
		vec, ok := s.counters[name]
		if !ok {
			labels := labelNames(d.Dimensions)
			vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: d.Name + " (" + string(d.Unit) + ")"}, labels)
			if err := s.reg.Register(vec); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					return err
				}
				existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
				if !ok {
					return err
				}
				vec = existing
			}
			s.counters[name] = vec
			s.labels[name] = labels
		}
		if d.Value < 0 {
			return nil
		}
		c, err := vec.GetMetricWith(labelValues(s.labels[name], d.Dimensions))
		if err != nil {
			return err
		}
		c.Add(d.Value)
	default:
		vec, ok := s.gauges[name]
		if !ok {
			labels := labelNames(d.Dimensions)
			vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: d.Name + " (" + string(d.Unit) + ")"}, labels)
			if err := s.reg.Register(vec); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					return err
				}
				existing, ok := are.ExistingCollector.(*prometheus.GaugeVec)
				if !ok {
					return err
				}
				vec = existing
			}
			s.gauges[name] = vec
			s.labels[name] = labels
		}
		g, err := vec.GetMetricWith(labelValues(s.labels[name], d.Dimensions))
		if err != nil {
			return err
		}
		g.Set(d.Value)
	}
	return nil
}

// promName turns "OpenWeather/WeatherData" and "Temperature" into "openweather_weatherdata_temperature".
func promName(namespace, name string) string {
	return sanitize(namespace) + "_" + sanitize(name)
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func labelNames(dims []Dimension) []string {
	names := make([]string, 0, len(dims))
	for _, d := range dims {
		names = append(names, sanitize(d.Name))
	}
	return names
}

// labelValues fills every known label, leaving missing ones empty and dropping unknown ones.
func labelValues(names []string, dims []Dimension) prometheus.Labels {
	out := make(prometheus.Labels, len(names))
	for _, n := range names {
		out[n] = ""
	}
	for _, d := range dims {
		n := sanitize(d.Name)
		if _, ok := out[n]; ok {
			out[n] = d.Value
		}
	}
	return out
}
