package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kjstillabower/weather-ingest/internal/models"
	"github.com/kjstillabower/weather-ingest/internal/observability"
)

// Default OpenWeatherMap endpoints.
const (
	DefaultCurrentURL  = "https://api.openweathermap.org/data/2.5/weather"
	DefaultForecastURL = "https://api.openweathermap.org/data/2.5/forecast"
)

const (
	endpointCurrent  = "current"
	endpointForecast = "forecast"
)

// WeatherClient fetches current weather and forecasts for a city. Failed calls return a
// *models.FetchError; each call is a single attempt.
type WeatherClient interface {
	FetchCurrent(ctx context.Context, city string) (models.WeatherObservation, error)
	FetchForecast(ctx context.Context, city string) (models.ForecastRecord, error)
}

var (
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrLocationNotFound  = errors.New("location not found")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedResponse = errors.New("malformed response")
)

type OpenWeatherClient struct {
	apiKey      string
	currentURL  string
	forecastURL string
	client      *http.Client
	now         func() time.Time
}

// NewOpenWeatherClient returns a client for the given endpoints. timeout bounds each HTTP call.
func NewOpenWeatherClient(apiKey, currentURL, forecastURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if currentURL == "" {
		currentURL = DefaultCurrentURL
	}
	if forecastURL == "" {
		forecastURL = DefaultForecastURL
	}
	for _, u := range []string{currentURL, forecastURL} {
		if _, err := url.Parse(u); err != nil {
			return nil, fmt.Errorf("invalid API URL %q: %w", u, err)
		}
	}

	return &OpenWeatherClient{
		apiKey:      apiKey,
		currentURL:  currentURL,
		forecastURL: forecastURL,
		client: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}, nil
}

// currentResponse mirrors the fields read from /weather. Pointers distinguish missing fields.
type currentResponse struct {
	Main *struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Humidity  *float64 `json:"humidity"`
		Pressure  *float64 `json:"pressure"`
	} `json:"main"`
	Wind *struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Clouds *struct {
		All *float64 `json:"all"`
	} `json:"clouds"`
	Weather []struct {
		Main        *string `json:"main"`
		Description *string `json:"description"`
	} `json:"weather"`
	Sys *struct {
		Country string `json:"country"`
	} `json:"sys"`
}

// FetchCurrent fetches current conditions for city. A field missing from the upstream body is a
// failure for the city, not a zero value.
func (c *OpenWeatherClient) FetchCurrent(ctx context.Context, city string) (models.WeatherObservation, error) {
	body, latency, err := c.get(ctx, endpointCurrent, c.currentURL, city)
	if err != nil {
		return models.WeatherObservation{}, err
	}

	var resp currentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.WeatherObservation{}, exceptionError(models.TypeCurrent, city, fmt.Errorf("%w: parse: %v", ErrMalformedResponse, err))
	}
	obs, err := mapCurrent(resp, city)
	if err != nil {
		return models.WeatherObservation{}, exceptionError(models.TypeCurrent, city, err)
	}
	obs.LatencyMS = latency
	obs.StatusCode = http.StatusOK
	obs.Timestamp = models.NewTimestamp(c.now())
	return obs, nil
}

// FetchForecast fetches the forecast for city. The payload is kept verbatim.
func (c *OpenWeatherClient) FetchForecast(ctx context.Context, city string) (models.ForecastRecord, error) {
	body, latency, err := c.get(ctx, endpointForecast, c.forecastURL, city)
	if err != nil {
		return models.ForecastRecord{}, err
	}
	if !json.Valid(body) {
		return models.ForecastRecord{}, exceptionError(models.TypeForecast, city, fmt.Errorf("%w: invalid JSON", ErrMalformedResponse))
	}
	return models.ForecastRecord{
		City:       city,
		Payload:    json.RawMessage(body),
		LatencyMS:  latency,
		StatusCode: http.StatusOK,
		Timestamp:  models.NewTimestamp(c.now()),
		Type:       models.TypeForecast,
	}, nil
}

// get issues one GET and returns the 200 body with its latency in milliseconds. Latency covers
// the round trip and body read, not URL construction.
func (c *OpenWeatherClient) get(ctx context.Context, endpoint, apiURL, city string) ([]byte, float64, error) {
	recordType := recordTypeFor(endpoint)
	req, err := c.buildRequest(ctx, apiURL, city)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, 0, exceptionError(recordType, city, fmt.Errorf("build request: %w", err))
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		label := string(CategorizeError(err))
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, label).Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, label).Observe(time.Since(start).Seconds())
		return nil, 0, exceptionError(recordType, city, fmt.Errorf("http request failed: %w", err))
	}
	defer resp.Body.Close()
	body, readErr := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	latency := float64(elapsed) / float64(time.Millisecond)

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(elapsed.Seconds())

	if resp.StatusCode != http.StatusOK {
		return nil, 0, &models.FetchError{
			City:       city,
			Type:       recordType,
			StatusCode: resp.StatusCode,
			LatencyMS:  &latency,
			Failed:     true,
			Cause:      statusError(resp.StatusCode),
		}
	}
	if readErr != nil {
		return nil, 0, exceptionError(recordType, city, fmt.Errorf("read response body: %w", readErr))
	}
	return body, latency, nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, apiURL, city string) (*http.Request, error) {
	baseURL, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func mapCurrent(r currentResponse, city string) (models.WeatherObservation, error) {
	missing := func(field string) error {
		return fmt.Errorf("%w: missing %s", ErrMalformedResponse, field)
	}
	switch {
	case r.Main == nil:
		return models.WeatherObservation{}, missing("main")
	case r.Main.Temp == nil:
		return models.WeatherObservation{}, missing("main.temp")
	case r.Main.Humidity == nil:
		return models.WeatherObservation{}, missing("main.humidity")
	case r.Main.Pressure == nil:
		return models.WeatherObservation{}, missing("main.pressure")
	case r.Wind == nil || r.Wind.Speed == nil:
		return models.WeatherObservation{}, missing("wind.speed")
	case r.Clouds == nil || r.Clouds.All == nil:
		return models.WeatherObservation{}, missing("clouds.all")
	case len(r.Weather) == 0:
		return models.WeatherObservation{}, missing("weather[0]")
	case r.Weather[0].Main == nil || r.Weather[0].Description == nil:
		return models.WeatherObservation{}, missing("weather[0].main/description")
	case r.Sys == nil:
		return models.WeatherObservation{}, missing("sys")
	}

	obs := models.WeatherObservation{
		City:          city,
		Country:       r.Sys.Country,
		Temperature:   *r.Main.Temp,
		Humidity:      *r.Main.Humidity,
		Pressure:      *r.Main.Pressure,
		WindSpeed:     *r.Wind.Speed,
		CloudCoverage: *r.Clouds.All,
		Condition:     *r.Weather[0].Main,
		Description:   *r.Weather[0].Description,
		Type:          models.TypeCurrent,
	}
	if r.Main.FeelsLike != nil {
		obs.FeelsLike = *r.Main.FeelsLike
	}
	return obs, nil
}

// exceptionError is the result for calls that produced no usable response: status 500, no latency.
func exceptionError(recordType, city string, cause error) *models.FetchError {
	return &models.FetchError{
		City:       city,
		Type:       recordType,
		StatusCode: http.StatusInternalServerError,
		Failed:     true,
		Cause:      cause,
	}
}

func statusError(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, statusCode)
	case http.StatusNotFound:
		return ErrLocationNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, statusCode)
}

func recordTypeFor(endpoint string) string {
	if endpoint == endpointForecast {
		return models.TypeForecast
	}
	return models.TypeCurrent
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey issues a single current-weather request to check the key is accepted.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, c.currentURL, "London")
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}

	return nil
}
