package models

import "github.com/google/uuid"

// JobTypeRunSurvey instructs a worker to execute one survey run.
const JobTypeRunSurvey = "RUN_SURVEY"

// JobMessage is the payload pushed onto the job queue. It is self-sufficient:
// a worker can process it without reading the run record back, except to write
// status and results. Exactly one message is ever published per run id.
type JobMessage struct {
	JobType     string    `json:"job_type"`
	RunID       uuid.UUID `json:"run_id"`
	Methodology string    `json:"methodology"`
	RunConfig   RunConfig `json:"run_config"`
}
