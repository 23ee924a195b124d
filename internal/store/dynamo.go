package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/kjstillabower/weather-ingest/internal/models"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoStore keeps observations and forecasts in two tables, each with partition key "city"
// and sort key "timestamp" (string). Numbers are written as DynamoDB N values.
type DynamoStore struct {
	api           DynamoAPI
	currentTable  string
	forecastTable string
}

// NewDynamoStore returns a DynamoStore over the given tables.
func NewDynamoStore(api DynamoAPI, currentTable, forecastTable string) (*DynamoStore, error) {
	if currentTable == "" || forecastTable == "" {
		return nil, fmt.Errorf("dynamodb: current and forecast table names are required")
	}
	return &DynamoStore{api: api, currentTable: currentTable, forecastTable: forecastTable}, nil
}

func (s *DynamoStore) PutCurrent(ctx context.Context, obs models.WeatherObservation) error {
	it := newCurrentItem(obs)
	item := map[string]types.AttributeValue{
		"city":           &types.AttributeValueMemberS{Value: it.City},
		"timestamp":      &types.AttributeValueMemberS{Value: it.Timestamp},
		"country":        &types.AttributeValueMemberS{Value: it.Country},
		"temperature":    numberAttr(it.Temperature),
		"feels_like":     numberAttr(it.FeelsLike),
		"humidity":       numberAttr(it.Humidity),
		"pressure":       numberAttr(it.Pressure),
		"wind_speed":     numberAttr(it.WindSpeed),
		"cloud_coverage": numberAttr(it.CloudCoverage),
		"condition":      &types.AttributeValueMemberS{Value: it.Condition},
		"description":    &types.AttributeValueMemberS{Value: it.Description},
		"latency_ms":     numberAttr(it.LatencyMS),
		"status_code":    &types.AttributeValueMemberN{Value: strconv.Itoa(it.StatusCode)},
		"type":           &types.AttributeValueMemberS{Value: it.Type},
	}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.currentTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb: put current %s: %w", obs.City, err)
	}
	return nil
}

func (s *DynamoStore) PutForecast(ctx context.Context, rec models.ForecastRecord) error {
	it := newForecastItem(rec)
	payload, err := jsonToAttr(it.Payload)
	if err != nil {
		return fmt.Errorf("dynamodb: forecast payload %s: %w", rec.City, err)
	}
	item := map[string]types.AttributeValue{
		"city":             &types.AttributeValueMemberS{Value: it.City},
		"timestamp":        &types.AttributeValueMemberS{Value: it.Timestamp},
		"forecast_payload": payload,
		"latency_ms":       numberAttr(it.LatencyMS),
		"status_code":      &types.AttributeValueMemberN{Value: strconv.Itoa(it.StatusCode)},
		"type":             &types.AttributeValueMemberS{Value: it.Type},
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.forecastTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb: put forecast %s: %w", rec.City, err)
	}
	return nil
}

// LatestForecast queries the city partition in descending sort-key order with limit 1.
func (s *DynamoStore) LatestForecast(ctx context.Context, city string) (models.ForecastRecord, error) {
	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.forecastTable),
		KeyConditionExpression: aws.String("#c = :city"),
		ExpressionAttributeNames: map[string]string{
			"#c": "city",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":city": &types.AttributeValueMemberS{Value: city},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return models.ForecastRecord{}, fmt.Errorf("dynamodb: query forecast %s: %w", city, err)
	}
	if len(out.Items) == 0 {
		return models.ForecastRecord{}, ErrNotFound
	}
	return forecastFromItem(out.Items[0])
}

// Ping describes the forecast table.
func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.forecastTable)})
	return err
}

func forecastFromItem(item map[string]types.AttributeValue) (models.ForecastRecord, error) {
	var it forecastItem
	var err error
	if it.City, err = stringAttr(item, "city"); err != nil {
		return models.ForecastRecord{}, err
	}
	if it.Timestamp, err = stringAttr(item, "timestamp"); err != nil {
		return models.ForecastRecord{}, err
	}
	if av, ok := item["forecast_payload"]; ok {
		if it.Payload, err = attrToJSON(av); err != nil {
			return models.ForecastRecord{}, err
		}
	}
	if n, ok := item["latency_ms"].(*types.AttributeValueMemberN); ok {
		if it.LatencyMS, err = decimal.NewFromString(n.Value); err != nil {
			return models.ForecastRecord{}, fmt.Errorf("latency_ms: %w", err)
		}
	}
	if n, ok := item["status_code"].(*types.AttributeValueMemberN); ok {
		if it.StatusCode, err = strconv.Atoi(n.Value); err != nil {
			return models.ForecastRecord{}, fmt.Errorf("status_code: %w", err)
		}
	}
	return it.record()
}

func numberAttr(d decimal.Decimal) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: d.String()}
}

func stringAttr(item map[string]types.AttributeValue, name string) (string, error) {
	s, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %s: missing or not a string", name)
	}
	return s.Value, nil
}

// jsonToAttr converts JSON text to a DynamoDB attribute, keeping numbers as their literal text.
func jsonToAttr(raw json.RawMessage) (types.AttributeValue, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return valueToAttr(v)
}

func valueToAttr(v any) (types.AttributeValue, error) {
	switch t := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: t}, nil
	case string:
		return &types.AttributeValueMemberS{Value: t}, nil
	case json.Number:
		return &types.AttributeValueMemberN{Value: t.String()}, nil
	case []any:
		list := make([]types.AttributeValue, 0, len(t))
		for _, e := range t {
			av, err := valueToAttr(e)
			if err != nil {
				return nil, err
			}
			list = append(list, av)
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	case map[string]any:
		m := make(map[string]types.AttributeValue, len(t))
		for k, e := range t {
			av, err := valueToAttr(e)
			if err != nil {
				return nil, err
			}
			m[k] = av
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	}
	return nil, fmt.Errorf("unsupported JSON value %T", v)
}

// attrToJSON is the inverse of jsonToAttr. Object keys come back in sorted order and whitespace
// is dropped, so payloads read from DynamoDB are equal JSON but not byte-identical to what was put.
func attrToJSON(av types.AttributeValue) (json.RawMessage, error) {
	v, err := attrToValue(av)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func attrToValue(av types.AttributeValue) (any, error) {
	switch t := av.(type) {
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberBOOL:
		return t.Value, nil
	case *types.AttributeValueMemberS:
		return t.Value, nil
	case *types.AttributeValueMemberN:
		return json.Number(t.Value), nil
	case *types.AttributeValueMemberL:
		out := make([]any, 0, len(t.Value))
		for _, e := range t.Value {
			v, err := attrToValue(e)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *types.AttributeValueMemberM:
		out := make(map[string]any, len(t.Value))
		for k, e := range t.Value {
			v, err := attrToValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported attribute type %T", av)
}
