package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alterity-ai/alterity/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.SurveyRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO survey_runs (id, survey_id, config_id, methodology, status, run_config, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.SurveyID, run.ConfigID, run.Methodology, run.Status, run.RunConfig,
		run.CreatedAt, run.UpdatedAt)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*models.SurveyRun, error) {
	var r models.SurveyRun
	err := s.pool.QueryRow(ctx,
		`SELECT id, survey_id, config_id, methodology, status, run_config, tokens_used, created_at, updated_at, completed_at
		 FROM survey_runs WHERE id = $1`, id,
	).Scan(&r.ID, &r.SurveyID, &r.ConfigID, &r.Methodology, &r.Status, &r.RunConfig,
		&r.TokensUsed, &r.CreatedAt, &r.UpdatedAt, &r.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &r, nil
}

// statusRank orders run statuses. Both terminal statuses share a rank, so a
// COMPLETED run can never be flipped to FAILED or back to RUNNING.
var statusRank = map[string]int{
	models.RunStatusQueued:    0,
	models.RunStatusRunning:   1,
	models.RunStatusCompleted: 2,
	models.RunStatusFailed:    2,
}

// UpdateRunStatus applies a status write from a worker. Writes are monotonic:
// re-asserting the current status is a no-op (duplicate job delivery), and any
// write that would lower or hold the rank fails with ErrInvalidTransition. The
// final UPDATE is guarded on the observed status so two racing writers cannot
// both succeed.
func (s *PostgresStore) UpdateRunStatus(ctx context.Context, id uuid.UUID, status string, opts ...RunUpdateOption) error {
	params := &runUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	newRank, ok := statusRank[status]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM survey_runs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get run status: %w", err)
	}

	if status == current {
		return nil
	}
	if newRank <= statusRank[current] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	now := time.Now().UTC()
	query := `UPDATE survey_runs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if status == models.RunStatusCompleted || status == models.RunStatusFailed {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.TokensUsed != nil {
		query += fmt.Sprintf(", tokens_used = $%d", argIdx)
		args = append(args, *params.TokensUsed)
		argIdx++
	}

	query += fmt.Sprintf(" WHERE id = $1 AND status = $%d", argIdx)
	args = append(args, current)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// The run moved between our read and write; the other writer won.
		return fmt.Errorf("%w: %s -> %s (concurrent update)", ErrInvalidTransition, current, status)
	}
	return nil
}

// --- Results ---

func (s *PostgresStore) InsertResult(ctx context.Context, result *models.Result) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO results (id, run_id, probe_id, backstory_id, response, usage_cost, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		result.ID, result.RunID, result.ProbeID, result.BackstoryID,
		result.Response, result.UsageCost, result.CreatedAt)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

const resultColumns = `r.id, r.run_id, r.probe_id, r.backstory_id, r.response, r.usage_cost, r.created_at,
	 b.id, b.content, b.model_signature, b.demographics, b.custom_tags`

func (s *PostgresStore) GetResult(ctx context.Context, id uuid.UUID) (*models.Result, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+`
		 FROM results r
		 LEFT JOIN backstories b ON b.id = r.backstory_id
		 WHERE r.id = $1`, id)

	result, err := scanResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return result, nil
}

// ListResultsByRun returns all results for a run ordered most recent first,
// each with its backstory joined for display.
func (s *PostgresStore) ListResultsByRun(ctx context.Context, runID uuid.UUID) ([]*models.Result, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumns+`
		 FROM results r
		 LEFT JOIN backstories b ON b.id = r.backstory_id
		 WHERE r.run_id = $1
		 ORDER BY r.created_at DESC, r.id DESC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []*models.Result
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func scanResult(row pgx.Row) (*models.Result, error) {
	var r models.Result
	var bID *int64
	var bContent, bSignature *string
	var bDemographics, bTags []byte

	if err := row.Scan(&r.ID, &r.RunID, &r.ProbeID, &r.BackstoryID, &r.Response,
		&r.UsageCost, &r.CreatedAt,
		&bID, &bContent, &bSignature, &bDemographics, &bTags); err != nil {
		return nil, err
	}

	if bID != nil {
		r.Backstory = &models.Backstory{
			ID:             *bID,
			ModelSignature: bSignature,
			Demographics:   bDemographics,
			CustomTags:     bTags,
		}
		if bContent != nil {
			r.Backstory.Content = *bContent
		}
	}
	return &r, nil
}

// --- Platform configuration ---

func (s *PostgresStore) GetConfiguration(ctx context.Context, key string) (*models.Configuration, error) {
	var c models.Configuration
	err := s.pool.QueryRow(ctx,
		`SELECT key, value, description, updated_at FROM configurations WHERE key = $1`, key,
	).Scan(&c.Key, &c.Value, &c.Description, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get configuration: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListFeatureFlags(ctx context.Context) ([]*models.FeatureFlag, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, is_enabled, properties, updated_at FROM feature_flags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list feature flags: %w", err)
	}
	defer rows.Close()

	var flags []*models.FeatureFlag
	for rows.Next() {
		var f models.FeatureFlag
		if err := rows.Scan(&f.Name, &f.IsEnabled, &f.Properties, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan feature flag: %w", err)
		}
		flags = append(flags, &f)
	}
	return flags, rows.Err()
}

// isForeignKeyError checks if a pgx error is a foreign key violation.
func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}
