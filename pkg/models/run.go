package models

import (
	"time"

	"github.com/google/uuid"
)

// Run statuses. The store enforces monotonic progression: QUEUED < RUNNING <
// COMPLETED/FAILED. COMPLETED and FAILED are terminal.
const (
	RunStatusQueued    = "QUEUED"
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// Persona selection methodologies.
const (
	MethodologyDemographicForcing = "DEMOGRAPHIC_FORCING"
	MethodologyAlterity           = "ALTERITY"
)

// RunConfig is the per-run execution configuration, stored as JSONB on the run
// record and duplicated into the job message so workers never need a read-back.
type RunConfig struct {
	ModelName string `json:"model_name"`
}

// SurveyRun is one execution of a survey's probes against a simulated
// population. Created by the submission service in QUEUED state; status and
// tokens_used are written back by the worker as it reports progress.
type SurveyRun struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	SurveyID    int64      `db:"survey_id"    json:"survey_id"`
	ConfigID    *int64     `db:"config_id"    json:"config_id,omitempty"`
	Methodology string     `db:"methodology"  json:"methodology"`
	Status      string     `db:"status"       json:"status"`
	RunConfig   RunConfig  `db:"run_config"   json:"run_config"`
	TokensUsed  int        `db:"tokens_used"  json:"tokens_used"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"   json:"updated_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Terminal reports whether the run has reached a final status.
func (r *SurveyRun) Terminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}

// ValidMethodology reports whether m is one of the supported methodologies.
func ValidMethodology(m string) bool {
	return m == MethodologyDemographicForcing || m == MethodologyAlterity
}
