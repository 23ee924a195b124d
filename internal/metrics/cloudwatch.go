package metrics

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// maxDatumsPerCall is the PutMetricData limit per request.
const maxDatumsPerCall = 1000

// CloudWatchAPI is the subset of the CloudWatch client used by CloudWatchSink.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchSink publishes data with PutMetricData, split into chunks of at most 1000 datums.
type CloudWatchSink struct {
	api CloudWatchAPI
}

func NewCloudWatchSink(api CloudWatchAPI) *CloudWatchSink {
	return &CloudWatchSink{api: api}
}

func (s *CloudWatchSink) Publish(ctx context.Context, namespace string, data []Datum) error {
	for start := 0; start < len(data); start += maxDatumsPerCall {
		end := start + maxDatumsPerCall
		if end > len(data) {
			end = len(data)
		}
		input := &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(namespace),
			MetricData: toCloudWatch(data[start:end]),
		}
		if _, err := s.api.PutMetricData(ctx, input); err != nil {
			return fmt.Errorf("cloudwatch: put metric data %s: %w", namespace, err)
		}
	}
	return nil
}

// toCloudWatch converts data, dropping dimensions with empty values which CloudWatch rejects.
func toCloudWatch(data []Datum) []types.MetricDatum {
	out := make([]types.MetricDatum, 0, len(data))
	for _, d := range data {
		md := types.MetricDatum{
			MetricName: aws.String(d.Name),
			Value:      aws.Float64(d.Value),
			Unit:       types.StandardUnit(d.Unit),
		}
		if !d.Timestamp.IsZero() {
			md.Timestamp = aws.Time(d.Timestamp)
		}
		for _, dim := range d.Dimensions {
			if dim.Value == "" {
				continue
			}
			md.Dimensions = append(md.Dimensions, types.Dimension{
				Name:  aws.String(dim.Name),
				Value: aws.String(dim.Value),
			})
		}
		out = append(out, md)
	}
	return out
}
