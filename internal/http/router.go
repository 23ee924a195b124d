package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-ingest/internal/traffic"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Logger         *zap.Logger
	Limiter        *rate.Limiter
	Outcomes       *traffic.Tracker
	InFlight       *InFlightTracker
	RequestTimeout time.Duration
}

// NewRouter wires routes and middleware. Rate limiting and the request timeout apply to /ingest only.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	if cfg.InFlight == nil {
		cfg.InFlight = &InFlightTracker{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := mux.NewRouter()
	r.Use(CorrelationIDMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware(cfg.InFlight))

	var ingest http.Handler = http.HandlerFunc(h.Ingest)
	if cfg.RequestTimeout > 0 {
		ingest = TimeoutMiddleware(cfg.RequestTimeout)(ingest)
	}
	ingest = RateLimitMiddleware(cfg.Limiter, cfg.Outcomes)(ingest)
	r.Handle("/ingest", ingest).Methods(http.MethodGet, http.MethodPost)

	r.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	r.Handle("/metrics", MetricsHandler()).Methods(http.MethodGet)
	return r
}
