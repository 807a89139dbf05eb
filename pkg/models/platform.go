package models

import (
	"encoding/json"
	"time"
)

// Configuration is a key/value platform setting (model catalog, pricing, etc).
// Readers fall back to compiled-in defaults when a key is absent.
type Configuration struct {
	Key         string          `db:"key"         json:"key"`
	Value       json.RawMessage `db:"value"       json:"value"`
	Description *string         `db:"description" json:"description,omitempty"`
	UpdatedAt   time.Time       `db:"updated_at"  json:"updated_at"`
}

// FeatureFlag toggles optional platform behavior. Properties holds per-flag
// settings (limits, thresholds) consumed by whichever component the flag gates.
type FeatureFlag struct {
	Name       string          `db:"name"       json:"name"`
	IsEnabled  bool            `db:"is_enabled" json:"is_enabled"`
	Properties json.RawMessage `db:"properties" json:"properties"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// ModelOption is one selectable model in the platform config response.
type ModelOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
