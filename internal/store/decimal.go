package store

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kjstillabower/weather-ingest/internal/models"
)

// currentItem is the stored form of a WeatherObservation.
type currentItem struct {
	City          string          `json:"city"`
	Timestamp     string          `json:"timestamp"`
	Country       string          `json:"country"`
	Temperature   decimal.Decimal `json:"temperature"`
	FeelsLike     decimal.Decimal `json:"feels_like"`
	Humidity      decimal.Decimal `json:"humidity"`
	Pressure      decimal.Decimal `json:"pressure"`
	WindSpeed     decimal.Decimal `json:"wind_speed"`
	CloudCoverage decimal.Decimal `json:"cloud_coverage"`
	Condition     string          `json:"condition"`
	Description   string          `json:"description"`
	LatencyMS     decimal.Decimal `json:"latency_ms"`
	StatusCode    int             `json:"status_code"`
	Type          string          `json:"type"`
}

// forecastItem is the stored form of a ForecastRecord. The payload is kept as JSON text, whose
// numbers are already exact.
type forecastItem struct {
	City       string          `json:"city"`
	Timestamp  string          `json:"timestamp"`
	Payload    json.RawMessage `json:"forecast_payload"`
	LatencyMS  decimal.Decimal `json:"latency_ms"`
	StatusCode int             `json:"status_code"`
	Type       string          `json:"type"`
}

// ToDecimal converts f using its shortest decimal representation, so 21.5 becomes exactly 21.5.
func ToDecimal(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// ToFloat converts d back to the nearest float64.
func ToFloat(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func newCurrentItem(obs models.WeatherObservation) currentItem {
	return currentItem{
		City:          obs.City,
		Timestamp:     obs.Timestamp.String(),
		Country:       obs.Country,
		Temperature:   ToDecimal(obs.Temperature),
		FeelsLike:     ToDecimal(obs.FeelsLike),
		Humidity:      ToDecimal(obs.Humidity),
		Pressure:      ToDecimal(obs.Pressure),
		WindSpeed:     ToDecimal(obs.WindSpeed),
		CloudCoverage: ToDecimal(obs.CloudCoverage),
		Condition:     obs.Condition,
		Description:   obs.Description,
		LatencyMS:     ToDecimal(obs.LatencyMS),
		StatusCode:    obs.StatusCode,
		Type:          models.TypeCurrent,
	}
}

func (it currentItem) observation() (models.WeatherObservation, error) {
	ts, err := models.ParseTimestamp(it.Timestamp)
	if err != nil {
		return models.WeatherObservation{}, err
	}
	return models.WeatherObservation{
		City:          it.City,
		Country:       it.Country,
		Temperature:   ToFloat(it.Temperature),
		FeelsLike:     ToFloat(it.FeelsLike),
		Humidity:      ToFloat(it.Humidity),
		Pressure:      ToFloat(it.Pressure),
		WindSpeed:     ToFloat(it.WindSpeed),
		CloudCoverage: ToFloat(it.CloudCoverage),
		Condition:     it.Condition,
		Description:   it.Description,
		LatencyMS:     ToFloat(it.LatencyMS),
		StatusCode:    it.StatusCode,
		Timestamp:     ts,
		Type:          models.TypeCurrent,
	}, nil
}

func newForecastItem(rec models.ForecastRecord) forecastItem {
	return forecastItem{
		City:       rec.City,
		Timestamp:  rec.Timestamp.String(),
		Payload:    rec.Payload,
		LatencyMS:  ToDecimal(rec.LatencyMS),
		StatusCode: rec.StatusCode,
		Type:       models.TypeForecast,
	}
}

func (it forecastItem) record() (models.ForecastRecord, error) {
	ts, err := models.ParseTimestamp(it.Timestamp)
	if err != nil {
		return models.ForecastRecord{}, fmt.Errorf("forecast %s: %w", it.City, err)
	}
	return models.ForecastRecord{
		City:       it.City,
		Payload:    it.Payload,
		LatencyMS:  ToFloat(it.LatencyMS),
		StatusCode: it.StatusCode,
		Timestamp:  ts,
		Type:       models.TypeForecast,
	}, nil
}
