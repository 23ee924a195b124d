// Package event turns the invocation shapes the job accepts into a list of city names.
//
// Two shapes are recognized: a scheduled trigger carrying {"detail":{"cities":[...]}} and an
// API-gateway style HTTP request (GET with ?cities=a,b or POST with {"cities":[...]}).
package event

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-ingest/internal/observability"
	"github.com/kjstillabower/weather-ingest/internal/validation"
)

// ErrNoCities is returned when no usable city list can be extracted from an event.
var ErrNoCities = errors.New("no cities found in the event")

// maxBodyBytes caps HTTP bodies read by FromRequest.
const maxBodyBytes = 1 << 20

// Event is the union of the recognized invocation shapes.
type Event struct {
	Detail                json.RawMessage `json:"detail,omitempty"`
	RequestContext        *RequestContext `json:"requestContext,omitempty"`
	HTTPMethod            string          `json:"httpMethod,omitempty"`
	QueryStringParameters map[string]any  `json:"queryStringParameters,omitempty"`
	Body                  string          `json:"body,omitempty"`
	IsBase64Encoded       bool            `json:"isBase64Encoded,omitempty"`
}

// RequestContext carries the HTTP method for payload format 2.0 (http.method) and 1.0 (httpMethod).
type RequestContext struct {
	HTTP       *HTTPContext `json:"http,omitempty"`
	HTTPMethod string       `json:"httpMethod,omitempty"`
}

type HTTPContext struct {
	Method string `json:"method"`
}

type citiesPayload struct {
	Cities []string `json:"cities"`
}

// Scheduled builds the structured-trigger event for cities.
func Scheduled(cities []string) ([]byte, error) {
	detail, err := json.Marshal(citiesPayload{Cities: cities})
	if err != nil {
		return nil, fmt.Errorf("marshal detail: %w", err)
	}
	return json.Marshal(Event{Detail: detail})
}

// FromRequest converts an HTTP request into the API-gateway event shape so that HTTP
// invocations go through the same extraction rules as gateway-delivered events.
func FromRequest(r *http.Request) (Event, error) {
	ev := Event{
		RequestContext: &RequestContext{HTTP: &HTTPContext{Method: r.Method}},
	}
	query := r.URL.Query()
	if len(query) > 0 {
		ev.QueryStringParameters = make(map[string]any, len(query))
		for k := range query {
			ev.QueryStringParameters[k] = query.Get(k)
		}
	}
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			return Event{}, fmt.Errorf("read request body: %w", err)
		}
		ev.Body = string(body)
	}
	return ev, nil
}

// Normalizer extracts city lists from events. Extraction failures never escape as anything
// other than ErrNoCities.
type Normalizer struct {
	logger        *zap.Logger
	maxCityLength int
}

// NewNormalizer returns a Normalizer. maxCityLength <= 0 disables the length check.
func NewNormalizer(logger *zap.Logger, maxCityLength int) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger, maxCityLength: maxCityLength}
}

// Cities decodes a raw event and extracts its city list.
func (n *Normalizer) Cities(ctx context.Context, raw []byte) ([]string, error) {
	logger := observability.LoggerFromContext(ctx, n.logger)
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		logger.Warn("city extraction failed", zap.Error(err))
		return nil, ErrNoCities
	}
	return n.FromEvent(ctx, ev)
}

// FromEvent applies the extraction rules in priority order: trigger detail, then HTTP method.
// The result is trimmed, with empty and invalid names removed, and is never empty on success.
func (n *Normalizer) FromEvent(ctx context.Context, ev Event) ([]string, error) {
	logger := observability.LoggerFromContext(ctx, n.logger)
	raw, err := extract(ev, logger)
	if err != nil {
		logger.Warn("city extraction failed", zap.Error(err))
		return nil, ErrNoCities
	}
	cities := n.clean(raw, logger)
	if len(cities) == 0 {
		return nil, ErrNoCities
	}
	logger.Info("extracted cities", zap.Strings("cities", cities))
	return cities, nil
}

func extract(ev Event, logger *zap.Logger) ([]string, error) {
	if len(ev.Detail) > 0 {
		var detail citiesPayload
		if err := json.Unmarshal(ev.Detail, &detail); err != nil {
			return nil, fmt.Errorf("detail: %w", err)
		}
		return detail.Cities, nil
	}

	method, ok := ev.method()
	if !ok {
		return nil, errors.New("unrecognized event shape")
	}
	logger.Info("handling HTTP request", zap.String("method", method))
	switch method {
	case http.MethodGet:
		v, present := ev.QueryStringParameters["cities"]
		s, isString := v.(string)
		if !present || !isString {
			return nil, fmt.Errorf("query parameter cities: got %T", v)
		}
		return strings.Split(s, ","), nil
	case http.MethodPost:
		body, err := ev.body()
		if err != nil {
			return nil, err
		}
		var payload citiesPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
		return payload.Cities, nil
	default:
		return nil, fmt.Errorf("unsupported method %s", method)
	}
}

// method reports the HTTP method when the event is an HTTP request. Method defaults to GET.
func (e Event) method() (string, bool) {
	switch {
	case e.RequestContext != nil && e.RequestContext.HTTP != nil:
		if e.RequestContext.HTTP.Method == "" {
			return http.MethodGet, true
		}
		return strings.ToUpper(e.RequestContext.HTTP.Method), true
	case e.RequestContext != nil && e.RequestContext.HTTPMethod != "":
		return strings.ToUpper(e.RequestContext.HTTPMethod), true
	case e.HTTPMethod != "":
		return strings.ToUpper(e.HTTPMethod), true
	}
	return "", false
}

func (e Event) body() ([]byte, error) {
	if e.Body == "" {
		return []byte("{}"), nil
	}
	if !e.IsBase64Encoded {
		return []byte(e.Body), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(e.Body)
	if err != nil {
		return nil, fmt.Errorf("decode base64 body: %w", err)
	}
	return decoded, nil
}

func (n *Normalizer) clean(raw []string, logger *zap.Logger) []string {
	cities := make([]string, 0, len(raw))
	for _, c := range raw {
		city, err := validation.ValidateCity(c, n.maxCityLength)
		if err != nil {
			if !errors.Is(err, validation.ErrCityEmpty) {
				logger.Warn("dropping invalid city", zap.String("city", c), zap.Error(err))
			}
			continue
		}
		cities = append(cities, city)
	}
	return cities
}
