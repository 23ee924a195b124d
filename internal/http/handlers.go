package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-ingest/internal/event"
	"github.com/kjstillabower/weather-ingest/internal/lifecycle"
	"github.com/kjstillabower/weather-ingest/internal/models"
	"github.com/kjstillabower/weather-ingest/internal/observability"
	"github.com/kjstillabower/weather-ingest/internal/store"
	"github.com/kjstillabower/weather-ingest/internal/traffic"
)

// Ingester runs one invocation. Implemented by service.IngestService.
type Ingester interface {
	Handle(ctx context.Context, raw []byte) models.Response
}

// KeyValidator checks the upstream API key. Implemented by client.OpenWeatherClient.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context) error
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	// Window is how far back invocation outcomes are considered.
	Window time.Duration
	// DegradedPartialPct is the share of partial (207) runs at which health reports degraded.
	DegradedPartialPct int
	// Validator, when set, is called on every health check.
	Validator KeyValidator
	// Dependencies are pinged on every health check, keyed by check name.
	Dependencies map[string]store.Pinger
	// StartTime, when set, is reported as uptime.
	StartTime time.Time
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	ingester         Ingester
	outcomes         *traffic.Tracker
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. outcomes and healthConfig may be nil.
func NewHandler(ingester Ingester, outcomes *traffic.Tracker, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ingester:     ingester,
		outcomes:     outcomes,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// Ingest handles GET /ingest?cities=a,b and POST /ingest {"cities":[...]}. The request is
// converted to the gateway event shape and the invocation response is written as-is.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	if lifecycle.IsShuttingDown() {
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "service is shutting down")
		return
	}
	ev, err := event.FromRequest(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "unable to read request")
		return
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "unable to encode event")
		return
	}

	resp := h.ingester.Handle(r.Context(), raw)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write([]byte(resp.Body))
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-ingest",
		"checks":    result.checks,
		"running":   lifecycle.Running(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && !h.healthConfig.StartTime.IsZero() {
		resp["uptimeSeconds"] = int64(time.Since(h.healthConfig.StartTime).Seconds())
	}
	if last := lifecycle.LastRun(); !last.IsZero() {
		resp["lastRun"] = last.UTC().Format(time.RFC3339)
	}
	if h.outcomes != nil && h.healthConfig != nil {
		s := h.outcomes.Summary(h.healthConfig.Window)
		resp["window"] = map[string]int{
			"complete": s.Complete,
			"partial":  s.Partial,
			"rejected": s.Rejected,
		}
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > API key invalid > dependency unreachable > degraded > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := make(map[string]string)
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, "", checks}
	}

	if h.healthConfig.Validator != nil {
		if err := h.healthConfig.Validator.ValidateAPIKey(ctx); err != nil {
			checks["weatherApi"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid", checks}
		}
		checks["weatherApi"] = "healthy"
	}

	names := make([]string, 0, len(h.healthConfig.Dependencies))
	for name := range h.healthConfig.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	var failed string
	for _, name := range names {
		if err := h.healthConfig.Dependencies[name].Ping(ctx); err != nil {
			checks[name] = "unhealthy"
			if failed == "" {
				failed = name
			}
			continue
		}
		checks[name] = "healthy"
	}
	if failed != "" {
		return healthResult{"degraded", http.StatusServiceUnavailable, failed + "_unreachable", checks}
	}

	if h.outcomes != nil && h.healthConfig.Window > 0 && h.healthConfig.DegradedPartialPct > 0 {
		s := h.outcomes.Summary(h.healthConfig.Window)
		if s.Runs() > 0 && s.PartialPct() >= h.healthConfig.DegradedPartialPct {
			return healthResult{"degraded", http.StatusServiceUnavailable, "partial_rate_breach", checks}
		}
	}
	return healthResult{"healthy", http.StatusOK, "", checks}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": correlationIDFromContext(r.Context()),
		},
	})
}

// MetricsHandler serves the Prometheus registry.
func MetricsHandler() http.Handler {
	return observability.MetricsHandler()
}
