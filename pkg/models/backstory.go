package models

import "encoding/json"

// Backstory is a synthetic persona record. Workers attach one to each result
// under the ALTERITY methodology; the aggregation side only joins it for
// display, never aggregates over it.
type Backstory struct {
	ID             int64           `db:"id"              json:"id"`
	Content        string          `db:"content"         json:"content"`
	ModelSignature *string         `db:"model_signature" json:"model_signature,omitempty"`
	Demographics   json.RawMessage `db:"demographics"    json:"demographics"`
	CustomTags     json.RawMessage `db:"custom_tags"     json:"custom_tags,omitempty"`
}
