package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/alterity-ai/alterity/internal/api/response"
	"github.com/alterity-ai/alterity/internal/results"
	"github.com/alterity-ai/alterity/internal/store"
	"github.com/alterity-ai/alterity/pkg/models"
)

// ResultsReader defines the interface the results handlers depend on.
type ResultsReader interface {
	Snapshot(ctx context.Context, runID uuid.UUID) ([]*models.Result, models.AggregateUpdate, error)
	Subscribe(ctx context.Context, runID uuid.UUID) (<-chan results.Update, error)
}

// NewGetResultsHandler returns an http.HandlerFunc for
// GET /api/v1/runs/{runID}/results.
func NewGetResultsHandler(svc ResultsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, err := uuid.Parse(chi.URLParam(r, "runID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "runID must be a valid UUID", nil)
			return
		}

		rows, agg, err := svc.Snapshot(r.Context(), runID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Run not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, resultsResponse{
			Results:   rows,
			Aggregate: agg,
		})
	}
}

// NewStreamResultsHandler returns an http.HandlerFunc for
// GET /api/v1/runs/{runID}/results/stream. It serves Server-Sent Events: an
// initial `aggregate` event replaying recorded state, then one `result` event
// per insert, each carrying the full aggregate.
func NewStreamResultsHandler(svc ResultsReader, keepalive time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, err := uuid.Parse(chi.URLParam(r, "runID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "runID must be a valid UUID", nil)
			return
		}

		updates, err := svc.Subscribe(r.Context(), runID)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Run not found", nil)
			default:
				response.Error(w, http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE",
					"Result stream is unavailable, retry later", nil)
			}
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		// Disable the server's WriteTimeout for this long-lived connection.
		// Without this, idle streams are killed after WriteTimeout.
		rc := http.NewResponseController(w)
		_ = rc.SetWriteDeadline(time.Time{})
		_ = rc.Flush()

		ticker := time.NewTicker(keepalive)
		defer ticker.Stop()

		first := true
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
					return
				}
				_ = rc.Flush()
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Err != nil {
					writeSSE(w, rc, "error", sseError{Code: "STREAM_FAILED", Message: update.Err.Error()})
					return
				}
				event := "result"
				if first {
					event = "aggregate"
					first = false
				}
				if !writeSSE(w, rc, event, update) {
					return
				}
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, rc *http.ResponseController, event string, payload any) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	if _, err := w.Write([]byte("event: " + event + "\ndata: " + string(raw) + "\n\n")); err != nil {
		return false
	}
	return rc.Flush() == nil
}

type resultsResponse struct {
	Results   []*models.Result       `json:"results"`
	Aggregate models.AggregateUpdate `json:"aggregate"`
}

type sseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
