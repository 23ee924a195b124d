package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-ingest/internal/app"
	"github.com/kjstillabower/weather-ingest/internal/config"
	"github.com/kjstillabower/weather-ingest/internal/models"
	"github.com/kjstillabower/weather-ingest/internal/observability"
)

type ingester interface {
	Handle(ctx context.Context, raw []byte) models.Response
}

// newHandler adapts ingester to the Lambda handler signature. Every event gets a response; the
// returned error is always nil so failures surface as status codes rather than retries.
func newHandler(svc ingester, logger *zap.Logger) func(ctx context.Context, raw json.RawMessage) (models.Response, error) {
	return func(ctx context.Context, raw json.RawMessage) (models.Response, error) {
		invLogger := logger.With(zap.String("function_name", lambdacontext.FunctionName))
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			invLogger = invLogger.With(zap.String("request_id", lc.AwsRequestID))
		}
		ctx = observability.ContextWithLogger(ctx, invLogger)
		return svc.Handle(ctx, raw), nil
	}
}

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("build components", zap.Error(err))
	}

	lambda.Start(newHandler(a.Service, logger))
}
