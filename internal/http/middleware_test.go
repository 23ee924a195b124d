package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-ingest/internal/observability"
	"github.com/kjstillabower/weather-ingest/internal/traffic"
)

func newTestRouter(ing Ingester, limiter *rate.Limiter, outcomes *traffic.Tracker) http.Handler {
	h := NewHandler(ing, outcomes, nil, zap.NewNop())
	return NewRouter(h, RouterConfig{
		Logger:         zap.NewNop(),
		Limiter:        limiter,
		Outcomes:       outcomes,
		RequestTimeout: 5 * time.Second,
	})
}

func TestRouter_Ingest(t *testing.T) {
	router := newTestRouter(&mockIngester{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(`{"cities":["Oslo"]}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID header missing")
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router := newTestRouter(&mockIngester{}, nil, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/ingest", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	router := newTestRouter(&mockIngester{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "test-correlation-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "test-correlation-id" {
		t.Errorf("X-Correlation-ID = %q, want test-correlation-id", got)
	}
}

// TestMiddleware_CorrelationIDInContext verifies that downstream handlers see a generated id.
func TestMiddleware_CorrelationIDInContext(t *testing.T) {
	var gotID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = correlationIDFromContext(r.Context())
	})
	CorrelationIDMiddleware(zap.NewNop())(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if gotID == "" {
		t.Error("correlation id not set in context")
	}
}

func TestMiddleware_MetricsRecordsRouteTemplate(t *testing.T) {
	router := newTestRouter(&mockIngester{}, nil, nil)
	counter := observability.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/ingest", "4xx")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ingest", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if d := testutil.ToFloat64(counter) - before; d != 1 {
		t.Errorf("httpRequestsTotal delta = %v, want 1", d)
	}
}

func TestMiddleware_MetricsTracksInFlight(t *testing.T) {
	tracker := &InFlightTracker{}
	var during int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = tracker.Count()
	})
	MetricsMiddleware(tracker)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if during != 1 {
		t.Errorf("in-flight during request = %d, want 1", during)
	}
	if tracker.Count() != 0 {
		t.Errorf("in-flight after request = %d, want 0", tracker.Count())
	}
}

func TestTimeoutMiddleware_CancelsContextAfterTimeout(t *testing.T) {
	var ctxErr error
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		ctxErr = r.Context().Err()
	})
	TimeoutMiddleware(10*time.Millisecond)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if ctxErr != context.DeadlineExceeded {
		t.Errorf("ctx.Err() = %v, want DeadlineExceeded", ctxErr)
	}
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	outcomes := traffic.NewTracker(time.Hour)
	router := newTestRouter(&mockIngester{}, rate.NewLimiter(rate.Limit(0.001), 1), outcomes)

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ingest?cities=London", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 429]", codes)
	}
	if s := outcomes.Summary(time.Minute); s.Rejected != 1 {
		t.Errorf("rejected outcomes = %d, want 1", s.Rejected)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200 (not rate limited)", w.Code)
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	RateLimitMiddleware(nil, nil)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("next handler not called with nil limiter")
	}
}

func TestRouter_Metrics(t *testing.T) {
	observability.IngestInvocationsTotal.WithLabelValues("200").Inc()
	router := newTestRouter(&mockIngester{}, nil, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ingestInvocationsTotal") {
		t.Error("metrics output missing ingestInvocationsTotal")
	}
}
