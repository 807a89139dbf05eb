package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Result is one persona's answer to one probe, with cost metadata. Results are
// append-only: workers insert them and nothing in this service ever revises one.
type Result struct {
	ID          uuid.UUID       `db:"id"           json:"id"`
	RunID       uuid.UUID       `db:"run_id"       json:"run_id"`
	ProbeID     int64           `db:"probe_id"     json:"probe_id"`
	BackstoryID *int64          `db:"backstory_id" json:"backstory_id,omitempty"`
	Response    json.RawMessage `db:"response"     json:"response"`
	UsageCost   float64         `db:"usage_cost"   json:"usage_cost"`
	CreatedAt   time.Time       `db:"created_at"   json:"created_at"`

	// Backstory is the joined persona record, populated on reads for display.
	Backstory *Backstory `db:"-" json:"backstory,omitempty"`
}

// ResultEvent is the NOTIFY payload emitted by the results insert trigger.
// It carries only what aggregation needs; the full row (response text,
// backstory) is fetched separately when a live feed wants it, which keeps the
// payload well under the NOTIFY size limit regardless of response length.
type ResultEvent struct {
	ID          uuid.UUID `json:"id"`
	RunID       uuid.UUID `json:"run_id"`
	ProbeID     int64     `json:"probe_id"`
	BackstoryID *int64    `json:"backstory_id"`
	UsageCost   float64   `json:"usage_cost"`
	CreatedAt   time.Time `json:"created_at"`
}
