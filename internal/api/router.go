package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/voicepipe/internal/api/middleware"
	"github.com/kiranshivaraju/voicepipe/internal/api/response"
	"github.com/kiranshivaraju/voicepipe/internal/metrics"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit
	Metrics   *metrics.Middleware

	HealthHandler   http.HandlerFunc
	MetricsHandler  http.Handler
	UploadHandler   http.HandlerFunc
	GetRecording    http.HandlerFunc
	RecordingStatus http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler)
	}

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(mw.Owner)

		upload := http.Handler(orNotImplemented(deps.UploadHandler))
		if deps.RateLimit != nil {
			upload = deps.RateLimit.Limit(upload)
		}
		r.Method(http.MethodPost, "/api/v1/recordings", upload)

		r.Get("/api/v1/recordings/{recordingID}", orNotImplemented(deps.GetRecording))
		r.Get("/api/v1/recordings/{recordingID}/status", orNotImplemented(deps.RecordingStatus))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
