// Package dispatch turns a run request into a durable run record plus exactly
// one job message on the work queue.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alterity-ai/alterity/internal/queue"
	"github.com/alterity-ai/alterity/internal/store"
	"github.com/alterity-ai/alterity/pkg/models"
	"github.com/google/uuid"
)

// SubmitParams holds a validated run submission.
type SubmitParams struct {
	SurveyID    int64
	ConfigID    *int64
	Methodology string
	// ModelName is optional; the configured default applies when empty.
	ModelName string
}

// Service is the run submission service.
type Service struct {
	store        store.Store
	queue        queue.Queue
	defaultModel string
}

// NewService creates a submission service.
func NewService(st store.Store, q queue.Queue, defaultModel string) *Service {
	return &Service{store: st, queue: q, defaultModel: defaultModel}
}

// Submit persists a new run in QUEUED state and publishes its job message.
// The run id is the idempotency key for dispatch: one Submit call publishes
// at most one job. If the publish fails after the insert, the run record is
// left in place and ErrPartialDispatch is returned so the caller and
// operators both see the inconsistency.
func (s *Service) Submit(ctx context.Context, p SubmitParams) (uuid.UUID, error) {
	if !models.ValidMethodology(p.Methodology) {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidMethodology, p.Methodology)
	}

	modelName := p.ModelName
	if modelName == "" {
		modelName = s.defaultModel
	}

	now := time.Now().UTC()
	run := &models.SurveyRun{
		ID:          uuid.New(),
		SurveyID:    p.SurveyID,
		ConfigID:    p.ConfigID,
		Methodology: p.Methodology,
		Status:      models.RunStatusQueued,
		RunConfig:   models.RunConfig{ModelName: modelName},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateRun(ctx, run); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return uuid.Nil, err
		}
		return uuid.Nil, fmt.Errorf("%w: create run: %v", ErrDependencyUnavailable, err)
	}

	job := models.JobMessage{
		JobType:     models.JobTypeRunSurvey,
		RunID:       run.ID,
		Methodology: run.Methodology,
		RunConfig:   run.RunConfig,
	}
	if err := s.queue.Publish(ctx, job); err != nil {
		slog.Error("job publish failed after run insert",
			"run_id", run.ID,
			"survey_id", run.SurveyID,
			"error", err,
		)
		return run.ID, fmt.Errorf("%w: run %s: %v", ErrPartialDispatch, run.ID, err)
	}

	slog.Info("run dispatched",
		"run_id", run.ID,
		"survey_id", run.SurveyID,
		"methodology", run.Methodology,
		"model", modelName,
	)
	return run.ID, nil
}
