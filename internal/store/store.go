package store

import (
	"context"
	"errors"

	"github.com/alterity-ai/alterity/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")

// ErrInvalidTransition is returned when a status write would move a run
// backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid run status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateRun(ctx context.Context, run *models.SurveyRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.SurveyRun, error)
	UpdateRunStatus(ctx context.Context, id uuid.UUID, status string, opts ...RunUpdateOption) error

	InsertResult(ctx context.Context, result *models.Result) error
	GetResult(ctx context.Context, id uuid.UUID) (*models.Result, error)
	ListResultsByRun(ctx context.Context, runID uuid.UUID) ([]*models.Result, error)

	GetConfiguration(ctx context.Context, key string) (*models.Configuration, error)
	ListFeatureFlags(ctx context.Context) ([]*models.FeatureFlag, error)
}

type runUpdateParams struct {
	TokensUsed *int
}

type RunUpdateOption func(*runUpdateParams)

// WithTokensUsed records the run's token consumption alongside a status write.
func WithTokensUsed(n int) RunUpdateOption {
	return func(p *runUpdateParams) {
		p.TokensUsed = &n
	}
}
