package models

import "time"

// Event is one row of the append-only transition journal. Events are
// written in the same transaction as the instance document, so the
// journal never references a state that was not durably saved.
type Event struct {
	ID         string         `json:"id"` // UUID
	TS         time.Time      `json:"ts"`
	InstanceID string         `json:"instance_id"`
	Type       string         `json:"type"` // e.g., "phase.completed", "sprint.completed", "gate.approved"
	Payload    map[string]any `json:"payload,omitempty"`
}
