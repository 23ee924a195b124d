package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/kjstillabower/weather-ingest/internal/models"
)

// ErrorCategory is a stable label for fetch failures in logs and metrics.
type ErrorCategory string

const (
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey    ErrorCategory = "invalid_api_key"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryUpstream         ErrorCategory = "upstream"
	ErrorCategoryParsing          ErrorCategory = "parsing"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// CategorizeError maps a fetch error to an ErrorCategory. Sentinel causes win; transport errors
// are split by net.Error.Timeout; a FetchError without a cause falls back to its status code.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorCategoryTimeout
	case errors.Is(err, ErrInvalidAPIKey):
		return ErrorCategoryInvalidAPIKey
	case errors.Is(err, ErrLocationNotFound):
		return ErrorCategoryLocationNotFound
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	case errors.Is(err, ErrUpstreamFailure):
		return ErrorCategoryUpstream
	case errors.Is(err, ErrMalformedResponse):
		return ErrorCategoryParsing
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorCategoryTimeout
		}
		return ErrorCategoryNetwork
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ErrorCategoryParsing
	}
	var fe *models.FetchError
	if errors.As(err, &fe) && fe.Cause == nil {
		return categoryForStatus(fe.StatusCode)
	}
	return ErrorCategoryUnknown
}

func categoryForStatus(code int) ErrorCategory {
	switch {
	case code == http.StatusUnauthorized:
		return ErrorCategoryInvalidAPIKey
	case code == http.StatusNotFound:
		return ErrorCategoryLocationNotFound
	case code == http.StatusTooManyRequests:
		return ErrorCategoryRateLimited
	case code >= http.StatusInternalServerError:
		return ErrorCategoryUpstream
	}
	return ErrorCategoryUnknown
}
