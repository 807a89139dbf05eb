package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/alterity-ai/alterity/internal/dispatch"
	"github.com/alterity-ai/alterity/internal/store"
	"github.com/alterity-ai/alterity/pkg/models"
)

// --- mocks ---

type mockSubmitter struct {
	fn func(p dispatch.SubmitParams) (uuid.UUID, error)
}

func (m *mockSubmitter) Submit(_ context.Context, p dispatch.SubmitParams) (uuid.UUID, error) {
	return m.fn(p)
}

type mockRunGetter struct {
	fn func(id uuid.UUID) (*models.SurveyRun, error)
}

func (m *mockRunGetter) GetRun(_ context.Context, id uuid.UUID) (*models.SurveyRun, error) {
	return m.fn(id)
}

// --- helpers ---

func submitReq(t *testing.T, body any) *http.Request {
	t.Helper()
	b, _ := json.Marshal(body)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// withURLParam injects a chi route parameter for handlers tested outside a router.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func parseData(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int) map[string]any {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("expected %d, got %d: %s", wantStatus, rec.Code, rec.Body.String())
	}
	var env struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env.Data
}

func parseErr(t *testing.T, rec *httptest.ResponseRecorder) (int, string) {
	t.Helper()
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, env.Error.Code
}

// --- tests ---

func TestSubmitRunHandler_Success(t *testing.T) {
	runID := uuid.New()
	var captured dispatch.SubmitParams
	mock := &mockSubmitter{fn: func(p dispatch.SubmitParams) (uuid.UUID, error) {
		captured = p
		return runID, nil
	}}

	h := NewSubmitRunHandler(mock)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, submitReq(t, map[string]any{
		"survey_id":   7,
		"methodology": "DEMOGRAPHIC_FORCING",
		"model_name":  "gpt-4o",
	}))

	data := parseData(t, rec, http.StatusCreated)
	if data["run_id"] != runID.String() {
		t.Errorf("unexpected run_id: %v", data["run_id"])
	}
	if data["status"] != "QUEUED" {
		t.Errorf("unexpected status: %v", data["status"])
	}
	if captured.SurveyID != 7 || captured.ModelName != "gpt-4o" {
		t.Errorf("unexpected params: %+v", captured)
	}
}

func TestSubmitRunHandler_InvalidJSON(t *testing.T) {
	h := NewSubmitRunHandler(&mockSubmitter{fn: func(dispatch.SubmitParams) (uuid.UUID, error) {
		t.Fatal("submit should not be called")
		return uuid.Nil, nil
	}})
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader([]byte("{nope")))
	h.ServeHTTP(rec, r)

	status, code := parseErr(t, rec)
	if status != http.StatusBadRequest || code != "INVALID_REQUEST" {
		t.Errorf("got %d %s", status, code)
	}
}

func TestSubmitRunHandler_MissingSurveyID(t *testing.T) {
	h := NewSubmitRunHandler(&mockSubmitter{fn: func(dispatch.SubmitParams) (uuid.UUID, error) {
		t.Fatal("submit should not be called")
		return uuid.Nil, nil
	}})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, submitReq(t, map[string]any{"methodology": "ALTERITY"}))

	status, code := parseErr(t, rec)
	if status != http.StatusBadRequest || code != "INVALID_REQUEST" {
		t.Errorf("got %d %s", status, code)
	}
}

func TestSubmitRunHandler_ErrorMapping(t *testing.T) {
	runID := uuid.New()
	cases := []struct {
		name       string
		err        error
		id         uuid.UUID
		wantStatus int
		wantCode   string
	}{
		{"invalid methodology", dispatch.ErrInvalidMethodology, uuid.Nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown survey", store.ErrNotFound, uuid.Nil, http.StatusNotFound, "NOT_FOUND"},
		{"partial dispatch", dispatch.ErrPartialDispatch, runID, http.StatusBadGateway, "PARTIAL_DISPATCH"},
		{"dependency down", dispatch.ErrDependencyUnavailable, uuid.Nil, http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE"},
		{"unexpected", errors.New("boom"), uuid.Nil, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewSubmitRunHandler(&mockSubmitter{fn: func(dispatch.SubmitParams) (uuid.UUID, error) {
				return tc.id, tc.err
			}})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, submitReq(t, map[string]any{
				"survey_id":   1,
				"methodology": "ALTERITY",
			}))

			status, code := parseErr(t, rec)
			if status != tc.wantStatus || code != tc.wantCode {
				t.Errorf("got %d %s, want %d %s", status, code, tc.wantStatus, tc.wantCode)
			}
		})
	}
}

func TestSubmitRunHandler_PartialDispatchIncludesRunID(t *testing.T) {
	runID := uuid.New()
	h := NewSubmitRunHandler(&mockSubmitter{fn: func(dispatch.SubmitParams) (uuid.UUID, error) {
		return runID, dispatch.ErrPartialDispatch
	}})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, submitReq(t, map[string]any{
		"survey_id":   1,
		"methodology": "ALTERITY",
	}))

	var env struct {
		Error struct {
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Details["run_id"] != runID.String() {
		t.Errorf("details missing run_id: %+v", env.Error.Details)
	}
}

func TestGetRunHandler_Success(t *testing.T) {
	runID := uuid.New()
	h := NewGetRunHandler(&mockRunGetter{fn: func(id uuid.UUID) (*models.SurveyRun, error) {
		if id != runID {
			t.Errorf("unexpected id %s", id)
		}
		return &models.SurveyRun{
			ID:          runID,
			SurveyID:    3,
			Methodology: models.MethodologyAlterity,
			Status:      models.RunStatusRunning,
			RunConfig:   models.RunConfig{ModelName: "gpt-4-turbo"},
		}, nil
	}})

	rec := httptest.NewRecorder()
	r := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+runID.String(), nil), "runID", runID.String())
	h.ServeHTTP(rec, r)

	data := parseData(t, rec, http.StatusOK)
	if data["status"] != "RUNNING" {
		t.Errorf("unexpected status: %v", data["status"])
	}
	if data["model_name"] != "gpt-4-turbo" {
		t.Errorf("unexpected model: %v", data["model_name"])
	}
	if _, present := data["completed_at"]; present {
		t.Error("completed_at should be omitted for active runs")
	}
}

func TestGetRunHandler_BadUUID(t *testing.T) {
	h := NewGetRunHandler(&mockRunGetter{fn: func(uuid.UUID) (*models.SurveyRun, error) {
		t.Fatal("store should not be called")
		return nil, nil
	}})
	rec := httptest.NewRecorder()
	r := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/runs/nope", nil), "runID", "nope")
	h.ServeHTTP(rec, r)

	status, code := parseErr(t, rec)
	if status != http.StatusBadRequest || code != "INVALID_REQUEST" {
		t.Errorf("got %d %s", status, code)
	}
}

func TestGetRunHandler_NotFound(t *testing.T) {
	h := NewGetRunHandler(&mockRunGetter{fn: func(uuid.UUID) (*models.SurveyRun, error) {
		return nil, store.ErrNotFound
	}})
	rec := httptest.NewRecorder()
	id := uuid.New().String()
	r := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+id, nil), "runID", id)
	h.ServeHTTP(rec, r)

	status, code := parseErr(t, rec)
	if status != http.StatusNotFound || code != "NOT_FOUND" {
		t.Errorf("got %d %s", status, code)
	}
}
