package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/alterity-ai/alterity/internal/api/middleware"
	"github.com/alterity-ai/alterity/internal/api/response"
)

// Dependencies holds all handler dependencies for the router.
type Dependencies struct {
	HealthHandler http.HandlerFunc

	SubmitRun     http.HandlerFunc
	GetRun        http.HandlerFunc
	GetResults    http.HandlerFunc
	StreamResults http.HandlerFunc

	PlatformConfig http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Get("/api/v1/platform/config", orNotImplemented(deps.PlatformConfig))

	r.Route("/api/v1/runs", func(r chi.Router) {
		r.Post("/", orNotImplemented(deps.SubmitRun))
		r.Get("/{runID}", orNotImplemented(deps.GetRun))
		r.Get("/{runID}/results", orNotImplemented(deps.GetResults))
		r.Get("/{runID}/results/stream", orNotImplemented(deps.StreamResults))
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
