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
	"github.com/alterity-ai/alterity/internal/dispatch"
	"github.com/alterity-ai/alterity/internal/store"
	"github.com/alterity-ai/alterity/pkg/models"
)

// RunSubmitter defines the interface the submit handler depends on.
type RunSubmitter interface {
	Submit(ctx context.Context, p dispatch.SubmitParams) (uuid.UUID, error)
}

// RunGetter defines the interface the run status handler depends on.
type RunGetter interface {
	GetRun(ctx context.Context, id uuid.UUID) (*models.SurveyRun, error)
}

// NewSubmitRunHandler returns an http.HandlerFunc for POST /api/v1/runs.
func NewSubmitRunHandler(svc RunSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SurveyID    int64  `json:"survey_id"`
			ConfigID    *int64 `json:"config_id"`
			Methodology string `json:"methodology"`
			ModelName   string `json:"model_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.SurveyID <= 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "survey_id is required", nil)
			return
		}
		if req.Methodology == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "methodology is required", nil)
			return
		}

		runID, err := svc.Submit(r.Context(), dispatch.SubmitParams{
			SurveyID:    req.SurveyID,
			ConfigID:    req.ConfigID,
			Methodology: req.Methodology,
			ModelName:   req.ModelName,
		})
		if err != nil {
			switch {
			case errors.Is(err, dispatch.ErrInvalidMethodology):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"methodology must be one of DEMOGRAPHIC_FORCING, ALTERITY", nil)
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND",
					"Survey or demographic config not found", nil)
			case errors.Is(err, dispatch.ErrPartialDispatch):
				// The run row exists but no worker will pick it up. Surface
				// the id so the caller can hand it to support.
				response.Error(w, http.StatusBadGateway, "PARTIAL_DISPATCH",
					"Run was recorded but could not be queued for execution",
					map[string]string{"run_id": runID.String()})
			case errors.Is(err, dispatch.ErrDependencyUnavailable):
				response.Error(w, http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE",
					"A backing service is unavailable, retry later", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Created(w, submitRunResponse{
			RunID:  runID.String(),
			Status: models.RunStatusQueued,
		})
	}
}

// NewGetRunHandler returns an http.HandlerFunc for GET /api/v1/runs/{runID}.
func NewGetRunHandler(svc RunGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, err := uuid.Parse(chi.URLParam(r, "runID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "runID must be a valid UUID", nil)
			return
		}

		run, err := svc.GetRun(r.Context(), runID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Run not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		resp := runResponse{
			RunID:       run.ID.String(),
			SurveyID:    run.SurveyID,
			ConfigID:    run.ConfigID,
			Methodology: run.Methodology,
			Status:      run.Status,
			ModelName:   run.RunConfig.ModelName,
			TokensUsed:  run.TokensUsed,
			CreatedAt:   run.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:   run.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if run.CompletedAt != nil {
			s := run.CompletedAt.UTC().Format(time.RFC3339)
			resp.CompletedAt = &s
		}
		response.JSON(w, resp)
	}
}

type submitRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type runResponse struct {
	RunID       string  `json:"run_id"`
	SurveyID    int64   `json:"survey_id"`
	ConfigID    *int64  `json:"config_id,omitempty"`
	Methodology string  `json:"methodology"`
	Status      string  `json:"status"`
	ModelName   string  `json:"model_name"`
	TokensUsed  int     `json:"tokens_used"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
}
